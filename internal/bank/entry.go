package bank

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/p-n-ai/examino/internal/question"
)

// Entry is one question in the bank file.
type Entry struct {
	Type           string   `json:"type"`
	Q              string   `json:"q"`
	Opts           []string `json:"opts"`
	A              string   `json:"a"`
	Topic          string   `json:"topic"`
	Unit           string   `json:"unit"`
	Diff           string   `json:"diff"`
	SourceType     string   `json:"source_type"`
	QuestionFormat string   `json:"question_format"`
}

// EntryFromCandidate converts a candidate to its bank form, filling
// defaults for missing fields.
func EntryFromCandidate(c question.Candidate) Entry {
	e := Entry{
		Type:           string(c.Type),
		Q:              strings.TrimSpace(c.Text),
		Opts:           c.Options,
		A:              strings.TrimSpace(c.Answer),
		Topic:          orDefault(c.Topic, question.DefaultTopic),
		Unit:           orDefault(c.Unit, question.DefaultUnit),
		Diff:           orDefault(string(c.Difficulty), string(question.Medium)),
		SourceType:     orDefault(c.SourceType, question.DefaultSourceType),
		QuestionFormat: orDefault(c.QuestionFormat, question.DefaultQuestionFormat),
	}
	if e.Type == "" {
		e.Type = string(question.TypeMCQ)
	}
	return e
}

// Candidate converts a bank entry into a candidate for the given subject.
// The entry carries no ID; a fresh one is not assigned here.
func (e Entry) Candidate(subject string) question.Candidate {
	diff, _ := question.ParseDifficulty(e.Diff)
	return question.Candidate{
		Type:           question.ParseType(e.Type),
		Text:           e.Q,
		Options:        e.Opts,
		Answer:         e.A,
		Topic:          orDefault(e.Topic, question.DefaultTopic),
		Subject:        subject,
		Unit:           orDefault(e.Unit, question.DefaultUnit),
		Difficulty:     diff,
		SourceType:     orDefault(e.SourceType, question.DefaultSourceType),
		QuestionFormat: orDefault(e.QuestionFormat, question.DefaultQuestionFormat),
		Fingerprint:    question.Fingerprint(e.Q),
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// view is the part of a stored entry that sync needs. Fields of the wrong
// JSON type are treated as missing.
type view struct {
	q    string
	hasQ bool
	unit string
	rank int
}

func parseView(raw json.RawMessage) view {
	var v view
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		// Decode rejects these for the bank file. Merge inputs can still carry
		// them, and they are kept verbatim with no fields.
		slog.Debug("bank entry is not an object", "error", err)
	}

	v.q, v.hasQ = stringField(fields, "q")
	v.unit, _ = stringField(fields, "unit")
	diff, ok := stringField(fields, "diff")
	if !ok {
		diff = string(question.Medium)
	}
	v.rank = question.Difficulty(diff).Rank()
	return v
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
