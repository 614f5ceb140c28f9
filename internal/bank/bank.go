// Package bank merges question candidates into the JSON question bank.
//
// The bank is one file: an object mapping subject to an array of entries.
// Every change goes through a lock, a rotating backup of the previous file
// and an atomic temp-file rename, so a crash or timeout leaves either the
// old or the new file in place.
package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/p-n-ai/examino/internal/platform/metrics"
	"github.com/p-n-ai/examino/internal/question"
)

const defaultBackupDirName = ".qb_backups"

// Config holds settings for a Synchronizer.
type Config struct {
	Path         string
	BackupDir    string // default <dir of Path>/.qb_backups
	KeepBackups  int    // 0 disables backups
	WriteTimeout time.Duration
	Locker       Locker // default in-process lock
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// Result reports the outcome of one Sync.
type Result struct {
	Inserted       int    `json:"inserted"`
	Skipped        int    `json:"skipped"`
	TotalInSubject int    `json:"total_in_subject"`
	Path           string `json:"qb_path"`
}

// Stats are per-subject entry counts.
type Stats struct {
	Subjects map[string]int `json:"subjects"`
	Total    int            `json:"total"`
	Path     string         `json:"qb_path"`
}

// Synchronizer owns one bank file.
type Synchronizer struct {
	path         string
	backupDir    string
	keepBackups  int
	writeTimeout time.Duration
	locker       Locker
	metrics      *metrics.Metrics
	now          func() time.Time
}

// New creates a Synchronizer for cfg.Path.
func New(cfg Config) (*Synchronizer, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("bank path is required")
	}
	backupDir := cfg.BackupDir
	if backupDir == "" {
		backupDir = filepath.Join(filepath.Dir(cfg.Path), defaultBackupDirName)
	}
	locker := cfg.Locker
	if locker == nil {
		locker = NewLocalLocker()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Synchronizer{
		path:         cfg.Path,
		backupDir:    backupDir,
		keepBackups:  cfg.KeepBackups,
		writeTimeout: cfg.WriteTimeout,
		locker:       locker,
		metrics:      cfg.Metrics,
		now:          now,
	}, nil
}

// Path returns the bank file path.
func (s *Synchronizer) Path() string {
	return s.path
}

// Sync merges candidates into the subject's partition. Candidates whose
// normalized text already exists in the partition, or earlier in the same
// batch, are skipped. The partition is then stably sorted by unit and
// difficulty. Nothing is written when the partition is unchanged.
func (s *Synchronizer) Sync(ctx context.Context, candidates []question.Candidate, subject string) (Result, error) {
	start := time.Now()
	res := Result{Path: s.path}

	unlock, err := s.locker.Lock(ctx)
	if err != nil {
		return res, err
	}
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return res, err
	}

	if len(candidates) == 0 {
		res.TotalInSubject = doc.Len(subject)
		return res, nil
	}

	existing := doc.raw(subject)
	seen := make(map[string]struct{}, len(existing)+len(candidates))
	views := make([]view, 0, len(existing)+len(candidates))
	entries := make([]json.RawMessage, 0, len(existing)+len(candidates))
	for _, raw := range existing {
		v := parseView(raw)
		if v.hasQ {
			seen[question.Normalize(v.q)] = struct{}{}
		}
		views = append(views, v)
		entries = append(entries, raw)
	}

	for _, c := range candidates {
		e := EntryFromCandidate(c)
		key := question.Normalize(e.Q)
		if _, dup := seen[key]; dup {
			res.Skipped++
			continue
		}
		seen[key] = struct{}{}

		raw, err := marshal(e)
		if err != nil {
			return res, fmt.Errorf("encoding entry: %w", err)
		}
		views = append(views, view{q: e.Q, hasQ: true, unit: e.Unit, rank: question.Difficulty(e.Diff).Rank()})
		entries = append(entries, raw)
		res.Inserted++
	}

	order := sortedOrder(views)
	res.TotalInSubject = len(entries)

	if res.Inserted == 0 && isIdentity(order) {
		s.metrics.Synced(subject, 0, res.Skipped, time.Since(start))
		return res, nil
	}

	sorted := make([]json.RawMessage, len(order))
	for i, idx := range order {
		sorted[i] = entries[idx]
	}
	doc.setRaw(subject, sorted)

	if err := s.commit(ctx, doc); err != nil {
		return res, err
	}

	s.metrics.Synced(subject, res.Inserted, res.Skipped, time.Since(start))
	slog.Info("question bank synced",
		"subject", subject,
		"inserted", res.Inserted,
		"skipped", res.Skipped,
		"total_in_subject", res.TotalInSubject,
		"path", s.path,
	)
	return res, nil
}

// Load returns a snapshot of the bank. A missing file is an empty bank.
func (s *Synchronizer) Load(ctx context.Context) (*Document, error) {
	unlock, err := s.locker.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.load()
}

// Stats returns per-subject and total entry counts.
func (s *Synchronizer) Stats(ctx context.Context) (Stats, error) {
	doc, err := s.Load(ctx)
	if err != nil {
		return Stats{}, err
	}
	return StatsOf(doc, s.path), nil
}

// Entries returns the decoded entries of one subject.
func (s *Synchronizer) Entries(ctx context.Context, subject string) ([]Entry, error) {
	doc, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Entries(subject), nil
}

// StatsOf counts a document's entries.
func StatsOf(doc *Document, path string) Stats {
	st := Stats{Subjects: make(map[string]int), Path: path}
	for _, subject := range doc.Subjects() {
		n := doc.Len(subject)
		st.Subjects[subject] = n
		st.Total += n
	}
	return st
}

func (s *Synchronizer) load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrCorruptBank, s.path, err)
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", s.path, err)
	}
	return doc, nil
}

// commit backs up the current file and atomically replaces it with doc.
func (s *Synchronizer) commit(ctx context.Context, doc *Document) error {
	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}

	var buf bytes.Buffer
	if err := doc.Encode(&buf); err != nil {
		return fmt.Errorf("encoding bank: %w", err)
	}

	backup(s.path, s.backupDir, s.keepBackups, s.now())
	return WriteFileAtomic(ctx, s.path, buf.Bytes())
}

// WriteFileAtomic writes data to a temp file beside path, syncs it and
// renames it over path. If ctx is done before the rename, the temp file is
// removed and path is left untouched.
func WriteFileAtomic(ctx context.Context, path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating bank directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err = ctx.Err(); err != nil {
		return fmt.Errorf("bank write aborted: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing bank file: %w", err)
	}
	return nil
}

// sortedOrder returns the indices of views stably sorted by unit, then
// difficulty rank.
func sortedOrder(views []view) []int {
	order := make([]int, len(views))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		if c := strings.Compare(views[a].unit, views[b].unit); c != 0 {
			return c
		}
		return views[a].rank - views[b].rank
	})
	return order
}

func isIdentity(order []int) bool {
	for i, idx := range order {
		if i != idx {
			return false
		}
	}
	return true
}
