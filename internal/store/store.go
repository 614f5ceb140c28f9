// Package store persists questions, attempts and per-topic statistics.
//
// Three implementations share one interface: MemoryStore for tests and
// throwaway runs, SQLiteStore (the default, a single local file) and
// PostgresStore for shared deployments.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/p-n-ai/examino/internal/question"
)

// ErrNotFound is returned when a question or stats record does not exist.
var ErrNotFound = errors.New("not found")

const (
	defaultListLimit   = 20
	maxListLimit       = 500
	defaultRecentLimit = 30
)

// Question is a stored question.
type Question struct {
	question.Candidate
	CreatedAt time.Time `json:"created_at"`
}

// Attempt is one answer to a question.
type Attempt struct {
	ID          int64               `json:"attempt_id"`
	QuestionID  string              `json:"question_id"`
	UserAnswer  string              `json:"user_answer"`
	Correct     bool                `json:"is_correct"`
	Topic       string              `json:"topic"`
	Subject     string              `json:"subject"`
	Difficulty  question.Difficulty `json:"difficulty"`
	AttemptedAt time.Time           `json:"attempted_at"`
}

// TopicStats is the running record for one (topic, subject) pair.
type TopicStats struct {
	Topic             string              `json:"topic"`
	Subject           string              `json:"subject"`
	TotalAttempts     int                 `json:"total_attempts"`
	CorrectCount      int                 `json:"correct_count"`
	Accuracy          float64             `json:"accuracy"`
	CurrentDifficulty question.Difficulty `json:"current_difficulty"`
	LastUpdated       time.Time           `json:"last_updated"`
}

// newTopicStats is the lazily created record for a pair with no attempts.
func newTopicStats(topic, subject string) TopicStats {
	return TopicStats{Topic: topic, Subject: subject, CurrentDifficulty: question.Medium}
}

// UpdateFunc computes new stats from the current ones inside the attempt
// transaction. The stats passed in always exist; a pair seen for the
// first time starts at zero attempts and medium difficulty.
type UpdateFunc func(current TopicStats, attempt Attempt) TopicStats

// QuestionFilter narrows ListQuestions. Empty fields match everything.
type QuestionFilter struct {
	Subject    string
	Unit       string
	Topic      string
	Difficulty string
	SourceType string
	Limit      int // default 20, capped at 500
}

func (f QuestionFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	default:
		return f.Limit
	}
}

func recentLimit(n int) int {
	if n <= 0 {
		return defaultRecentLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

// Store is the relational store used by ingestion, attempts and mastery.
type Store interface {
	// SaveQuestions inserts questions whose ID is not yet stored and
	// returns how many were inserted.
	SaveQuestions(ctx context.Context, qs []question.Candidate) (int, error)
	GetQuestion(ctx context.Context, id string) (Question, error)
	ListQuestions(ctx context.Context, f QuestionFilter) ([]Question, error)
	CountQuestions(ctx context.Context) (int, error)
	// Subjects returns the distinct subjects of stored questions, sorted.
	Subjects(ctx context.Context) ([]string, error)

	// RecordAttempt stores the attempt and applies update to the pair's
	// stats in one transaction, returning the stats as persisted.
	RecordAttempt(ctx context.Context, a Attempt, update UpdateFunc) (TopicStats, error)
	// RecentAttempts returns the newest attempts first.
	RecentAttempts(ctx context.Context, limit int) ([]Attempt, error)
	GetTopicStats(ctx context.Context, topic, subject string) (TopicStats, error)
	ListTopicStats(ctx context.Context) ([]TopicStats, error)

	Ping(ctx context.Context) error
	Close() error
}
