// Package mastery adjusts each topic's recommended difficulty from the
// learner's answer accuracy.
package mastery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/p-n-ai/examino/internal/platform/metrics"
	"github.com/p-n-ai/examino/internal/question"
	"github.com/p-n-ai/examino/internal/store"
)

const (
	// MinAttempts is the number of attempts before difficulty can move.
	MinAttempts = 3
	// PromoteAt is the accuracy at or above which difficulty goes up.
	PromoteAt = 0.75
	// DemoteAt is the accuracy at or below which difficulty goes down.
	DemoteAt = 0.40
)

// Adjust returns the difficulty the stats call for. Below MinAttempts the
// current level is kept. Unknown levels are treated as medium.
func Adjust(st store.TopicStats) question.Difficulty {
	current, _ := question.ParseDifficulty(string(st.CurrentDifficulty))
	if st.TotalAttempts < MinAttempts {
		return current
	}
	switch {
	case st.Accuracy >= PromoteAt:
		return current.Harder()
	case st.Accuracy <= DemoteAt:
		return current.Easier()
	default:
		return current
	}
}

// Store is what the scheduler needs from persistence.
type Store interface {
	RecordAttempt(ctx context.Context, a store.Attempt, update store.UpdateFunc) (store.TopicStats, error)
	GetTopicStats(ctx context.Context, topic, subject string) (store.TopicStats, error)
	ListTopicStats(ctx context.Context) ([]store.TopicStats, error)
}

// Outcome is one answered question.
type Outcome struct {
	QuestionID string
	UserAnswer string
	Correct    bool
	Topic      string
	Subject    string
	Difficulty question.Difficulty // of the question answered
}

// Result is the state after an outcome was recorded.
type Result struct {
	Stats          store.TopicStats
	Recommendation question.Difficulty
}

// Scheduler records outcomes and serves recommendations.
type Scheduler struct {
	store   Store
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewScheduler creates a scheduler over s. m may be nil.
func NewScheduler(s Store, m *metrics.Metrics) *Scheduler {
	return &Scheduler{store: s, metrics: m, now: time.Now}
}

// RecordOutcome stores the attempt and updates the topic's stats and level
// in one store transaction.
func (s *Scheduler) RecordOutcome(ctx context.Context, o Outcome) (Result, error) {
	if o.Topic == "" || o.Subject == "" {
		return Result{}, fmt.Errorf("topic and subject are required")
	}

	now := s.now().UTC()
	st, err := s.store.RecordAttempt(ctx, store.Attempt{
		QuestionID:  o.QuestionID,
		UserAnswer:  o.UserAnswer,
		Correct:     o.Correct,
		Topic:       o.Topic,
		Subject:     o.Subject,
		Difficulty:  o.Difficulty,
		AttemptedAt: now,
	}, func(cur store.TopicStats, a store.Attempt) store.TopicStats {
		cur.TotalAttempts++
		if a.Correct {
			cur.CorrectCount++
		}
		cur.Accuracy = float64(cur.CorrectCount) / float64(cur.TotalAttempts)
		cur.LastUpdated = a.AttemptedAt
		cur.CurrentDifficulty = Adjust(cur)
		return cur
	})
	if err != nil {
		return Result{}, fmt.Errorf("recording outcome: %w", err)
	}

	s.metrics.Attempt(o.Correct)
	slog.Debug("outcome recorded",
		"topic", o.Topic,
		"subject", o.Subject,
		"correct", o.Correct,
		"attempts", st.TotalAttempts,
		"difficulty", st.CurrentDifficulty,
	)
	return Result{Stats: st, Recommendation: recommend(st)}, nil
}

// RecommendedDifficulty returns medium until the topic has MinAttempts
// attempts, then the stored level.
func (s *Scheduler) RecommendedDifficulty(ctx context.Context, topic, subject string) (question.Difficulty, error) {
	st, err := s.store.GetTopicStats(ctx, topic, subject)
	if errors.Is(err, store.ErrNotFound) {
		return question.Medium, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading topic stats: %w", err)
	}
	return recommend(st), nil
}

func recommend(st store.TopicStats) question.Difficulty {
	if st.TotalAttempts < MinAttempts {
		return question.Medium
	}
	d, _ := question.ParseDifficulty(string(st.CurrentDifficulty))
	return d
}

// TopicSummary is one row of the performance summary. Accuracy is a
// percentage rounded to one decimal.
type TopicSummary struct {
	Topic      string              `json:"topic"`
	Subject    string              `json:"subject"`
	Attempts   int                 `json:"attempts"`
	Correct    int                 `json:"correct"`
	Accuracy   float64             `json:"accuracy"`
	Difficulty question.Difficulty `json:"difficulty"`
}

// SubjectSummary aggregates a subject's topics.
type SubjectSummary struct {
	Attempts int     `json:"attempts"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// Summary is the learner's overall performance.
type Summary struct {
	TotalAttempts   int                       `json:"total_attempts"`
	OverallAccuracy float64                   `json:"overall_accuracy"`
	Topics          []TopicSummary            `json:"topics"`
	BySubject       map[string]SubjectSummary `json:"by_subject"`
}

// Summary reports accuracy overall, per topic (weakest first) and per
// subject.
func (s *Scheduler) Summary(ctx context.Context) (Summary, error) {
	all, err := s.store.ListTopicStats(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("listing topic stats: %w", err)
	}

	sum := Summary{
		Topics:    make([]TopicSummary, 0, len(all)),
		BySubject: make(map[string]SubjectSummary),
	}
	correct := 0
	for _, st := range all {
		sum.TotalAttempts += st.TotalAttempts
		correct += st.CorrectCount

		sum.Topics = append(sum.Topics, TopicSummary{
			Topic:      st.Topic,
			Subject:    st.Subject,
			Attempts:   st.TotalAttempts,
			Correct:    st.CorrectCount,
			Accuracy:   round1(st.Accuracy * 100),
			Difficulty: st.CurrentDifficulty,
		})

		subj := sum.BySubject[st.Subject]
		subj.Attempts += st.TotalAttempts
		subj.Correct += st.CorrectCount
		sum.BySubject[st.Subject] = subj
	}

	for name, subj := range sum.BySubject {
		subj.Accuracy = percent(subj.Correct, subj.Attempts)
		sum.BySubject[name] = subj
	}
	sum.OverallAccuracy = percent(correct, sum.TotalAttempts)

	sort.SliceStable(sum.Topics, func(i, j int) bool {
		a, b := sum.Topics[i], sum.Topics[j]
		if a.Accuracy != b.Accuracy {
			return a.Accuracy < b.Accuracy
		}
		return a.Topic < b.Topic
	})
	return sum, nil
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(n) / float64(total) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
