package bank

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/p-n-ai/examino/internal/question"
)

// MergeResult reports what Merge kept and dropped.
type MergeResult struct {
	Objects    int `json:"objects"`
	Kept       int `json:"kept"`
	Duplicates int `json:"duplicates"`
}

// Merge reads any number of bank objects, concatenated in one or more
// readers, into a single bank. Within each subject, entries with the same
// normalized text keep only their first occurrence; each subject is then
// stably sorted by unit and difficulty.
func Merge(readers ...io.Reader) (*Document, MergeResult, error) {
	combined := NewDocument()
	var res MergeResult

	for _, r := range readers {
		dec := json.NewDecoder(r)
		for {
			err := combined.decodeObject(dec)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, res, fmt.Errorf("%w: object %d: %v", ErrCorruptBank, res.Objects+1, err)
			}
			res.Objects++
		}
	}

	out := NewDocument()
	for _, subject := range combined.Subjects() {
		seen := make(map[string]struct{})
		var views []view
		var entries []json.RawMessage
		for _, raw := range combined.raw(subject) {
			v := parseView(raw)
			if v.hasQ {
				key := question.Normalize(v.q)
				if _, dup := seen[key]; dup {
					res.Duplicates++
					continue
				}
				seen[key] = struct{}{}
			}
			views = append(views, v)
			entries = append(entries, raw)
		}

		sorted := make([]json.RawMessage, len(entries))
		for i, idx := range sortedOrder(views) {
			sorted[i] = entries[idx]
		}
		out.setRaw(subject, sorted)
		res.Kept += len(sorted)
	}

	slog.Info("question banks merged",
		"objects", res.Objects,
		"kept", res.Kept,
		"duplicates", res.Duplicates,
	)
	return out, res, nil
}
