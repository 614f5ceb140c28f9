package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/p-n-ai/examino/internal/question"
)

type statsKey struct{ topic, subject string }

// MemoryStore keeps everything in process.
type MemoryStore struct {
	mu        sync.RWMutex
	questions map[string]*Question
	order     []string
	attempts  []Attempt
	stats     map[statsKey]TopicStats
	nextID    int64
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		questions: make(map[string]*Question),
		stats:     make(map[statsKey]TopicStats),
		now:       time.Now,
	}
}

func (s *MemoryStore) SaveQuestions(_ context.Context, qs []question.Candidate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, q := range qs {
		if q.ID == "" {
			return inserted, fmt.Errorf("question without ID")
		}
		if _, ok := s.questions[q.ID]; ok {
			continue
		}
		s.questions[q.ID] = &Question{Candidate: q, CreatedAt: s.now().UTC()}
		s.order = append(s.order, q.ID)
		inserted++
	}
	return inserted, nil
}

func (s *MemoryStore) GetQuestion(_ context.Context, id string) (Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.questions[id]
	if !ok {
		return Question{}, fmt.Errorf("question %s: %w", id, ErrNotFound)
	}
	return *q, nil
}

func (s *MemoryStore) ListQuestions(_ context.Context, f QuestionFilter) ([]Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := f.limit()
	var out []Question
	for _, id := range s.order {
		q := s.questions[id]
		if !matches(q, f) {
			continue
		}
		out = append(out, *q)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func matches(q *Question, f QuestionFilter) bool {
	return (f.Subject == "" || q.Subject == f.Subject) &&
		(f.Unit == "" || q.Unit == f.Unit) &&
		(f.Topic == "" || q.Topic == f.Topic) &&
		(f.Difficulty == "" || string(q.Difficulty) == f.Difficulty) &&
		(f.SourceType == "" || q.SourceType == f.SourceType)
}

func (s *MemoryStore) CountQuestions(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.questions), nil
}

func (s *MemoryStore) Subjects(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, q := range s.questions {
		if !seen[q.Subject] {
			seen[q.Subject] = true
			out = append(out, q.Subject)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) RecordAttempt(_ context.Context, a Attempt, update UpdateFunc) (TopicStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = s.now().UTC()
	}
	s.nextID++
	a.ID = s.nextID
	s.attempts = append(s.attempts, a)

	key := statsKey{a.Topic, a.Subject}
	current, ok := s.stats[key]
	if !ok {
		current = newTopicStats(a.Topic, a.Subject)
	}
	next := update(current, a)
	next.Topic, next.Subject = a.Topic, a.Subject
	s.stats[key] = next
	return next, nil
}

func (s *MemoryStore) RecentAttempts(_ context.Context, limit int) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = recentLimit(limit)
	out := make([]Attempt, 0, min(limit, len(s.attempts)))
	for i := len(s.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.attempts[i])
	}
	return out, nil
}

func (s *MemoryStore) GetTopicStats(_ context.Context, topic, subject string) (TopicStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stats[statsKey{topic, subject}]
	if !ok {
		return TopicStats{}, fmt.Errorf("stats for %s/%s: %w", subject, topic, ErrNotFound)
	}
	return st, nil
}

func (s *MemoryStore) ListTopicStats(_ context.Context) ([]TopicStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TopicStats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Subject != out[j].Subject {
			return out[i].Subject < out[j].Subject
		}
		return out[i].Topic < out[j].Topic
	})
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
