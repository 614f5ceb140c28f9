package question

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// answerPrefixLen is how many leading characters of an answer are used to
// repair an answer that does not exactly match any option.
const answerPrefixLen = 4

// Assemble validates raw candidates and turns the survivors into canonical
// records carrying meta. Candidates with empty text or answer, or whose
// answer cannot be matched to an option, are dropped.
func Assemble(raw []RawCandidate, meta Metadata) []Candidate {
	out := make([]Candidate, 0, len(raw))
	for i, r := range raw {
		text := strings.TrimSpace(r.Text)
		answer := strings.TrimSpace(r.Answer)
		if text == "" || answer == "" {
			slog.Debug("dropping candidate without text or answer", "index", i, "source", meta.SourceLabel)
			continue
		}

		if len(r.Options) > 0 {
			matched, ok := MatchOption(r.Options, answer)
			if !ok {
				slog.Debug("dropping candidate whose answer matches no option",
					"index", i,
					"answer", answer,
					"source", meta.SourceLabel,
				)
				continue
			}
			answer = matched
		}

		out = append(out, Candidate{
			ID:             uuid.NewString(),
			Type:           ParseType(r.Type),
			Text:           text,
			Options:        slices.Clone(r.Options),
			Answer:         answer,
			Topic:          meta.Topic,
			Subject:        meta.Subject,
			Unit:           meta.Unit,
			Difficulty:     meta.Difficulty,
			SourceLabel:    meta.SourceLabel,
			SourceType:     DefaultSourceType,
			QuestionFormat: DefaultQuestionFormat,
			Fingerprint:    Fingerprint(text),
		})
	}
	return out
}

// MatchOption returns the option equal to answer, or else the first option
// sharing the answer's first four characters.
func MatchOption(options []string, answer string) (string, bool) {
	if slices.Contains(options, answer) {
		return answer, true
	}
	prefix := answer
	if r := []rune(answer); len(r) > answerPrefixLen {
		prefix = string(r[:answerPrefixLen])
	}
	for _, o := range options {
		if strings.HasPrefix(o, prefix) {
			return o, true
		}
	}
	return "", false
}
