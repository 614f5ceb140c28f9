// Package question defines the canonical question record and the steps
// that produce it: parsing generator output, the local fallback extractor,
// and assembly with identity and fingerprint.
package question

import "strings"

// Difficulty is one of the three recommendation levels.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// ParseDifficulty normalizes s. Unknown values report ok=false and Medium.
func ParseDifficulty(s string) (d Difficulty, ok bool) {
	switch Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case Easy:
		return Easy, true
	case Medium:
		return Medium, true
	case Hard:
		return Hard, true
	default:
		return Medium, false
	}
}

// Rank orders difficulties for sorting: easy 1, medium 2, hard 3.
// Unknown values rank with medium.
func (d Difficulty) Rank() int {
	switch d {
	case Easy:
		return 1
	case Hard:
		return 3
	default:
		return 2
	}
}

// Harder returns the next level up, clamped at Hard.
func (d Difficulty) Harder() Difficulty {
	switch d {
	case Easy:
		return Medium
	case Medium, Hard:
		return Hard
	default:
		return Hard // unknown is treated as medium
	}
}

// Easier returns the next level down, clamped at Easy.
func (d Difficulty) Easier() Difficulty {
	switch d {
	case Hard:
		return Medium
	default:
		return Easy
	}
}

// Type is the question format.
type Type string

const (
	TypeMCQ        Type = "mcq"
	TypeTrueFalse  Type = "true_false"
	TypeFillBlank  Type = "fill_blank"
	TypeCode       Type = "code"
	TypeComplexity Type = "complexity"
)

// ParseType coerces unknown or empty values to TypeMCQ.
func ParseType(s string) Type {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeMCQ, TypeTrueFalse, TypeFillBlank, TypeCode, TypeComplexity:
		return t
	default:
		return TypeMCQ
	}
}

// Bank wire defaults for questions produced by document ingestion.
const (
	DefaultSourceType     = "PDF_UPLOAD"
	DefaultQuestionFormat = "MCQ"
	DefaultTopic          = "General"
	DefaultUnit           = "Unit 1"
)

// RawCandidate is one question as produced by a generator, before
// validation and assembly.
type RawCandidate struct {
	Text    string   `json:"question_text"`
	Options []string `json:"options"`
	Answer  string   `json:"correct_answer"`
	Type    string   `json:"question_type,omitempty"`
}

// Metadata is attached to every candidate assembled from one section.
type Metadata struct {
	Subject     string
	Unit        string
	Topic       string
	Difficulty  Difficulty
	SourceLabel string
}

// Candidate is a canonical question record ready for the bank and store.
type Candidate struct {
	ID             string     `json:"question_id"`
	Type           Type       `json:"question_type"`
	Text           string     `json:"question_text"`
	Options        []string   `json:"options"`
	Answer         string     `json:"correct_answer"`
	Topic          string     `json:"topic"`
	Subject        string     `json:"subject"`
	Unit           string     `json:"unit"`
	Difficulty     Difficulty `json:"difficulty_level"`
	SourceLabel    string     `json:"source_file"`
	SourceType     string     `json:"source_type"`
	QuestionFormat string     `json:"question_format"`
	Fingerprint    string     `json:"content_fingerprint"`
}
