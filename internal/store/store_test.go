package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/p-n-ai/examino/internal/platform/database"
	"github.com/p-n-ai/examino/internal/question"
	"github.com/p-n-ai/examino/internal/store"
)

func sampleQuestions() []question.Candidate {
	return []question.Candidate{
		{
			ID: "q-1", Type: question.TypeMCQ, Text: "Unit of resistance?",
			Options: []string{"A. Ohm", "B. Volt"}, Answer: "A. Ohm",
			Topic: "Basics", Subject: "EEE", Unit: "Unit 1", Difficulty: question.Easy,
			SourceLabel: "eee.pdf", SourceType: "PDF_UPLOAD", QuestionFormat: "MCQ",
			Fingerprint: question.Fingerprint("Unit of resistance?"),
		},
		{
			ID: "q-2", Type: question.TypeTrueFalse, Text: "True or False: current flows.",
			Options: []string{"A. True", "B. False"}, Answer: "A. True",
			Topic: "Basics", Subject: "EEE", Unit: "Unit 2", Difficulty: question.Hard,
			SourceType: "QB",
		},
		{
			ID: "q-3", Type: question.TypeFillBlank, Text: "The determinant of I is ___",
			Answer: "1", Topic: "Matrices", Subject: "MES", Unit: "Unit 1", Difficulty: question.Medium,
		},
	}
}

// increment is the update used by the contract tests: count the attempt
// and move to hard once three are recorded.
func increment(st store.TopicStats, a store.Attempt) store.TopicStats {
	st.TotalAttempts++
	if a.Correct {
		st.CorrectCount++
	}
	st.Accuracy = float64(st.CorrectCount) / float64(st.TotalAttempts)
	st.LastUpdated = a.AttemptedAt
	if st.TotalAttempts >= 3 {
		st.CurrentDifficulty = question.Hard
	}
	return st
}

func runStoreContract(t *testing.T, s store.Store) {
	ctx := t.Context()

	t.Run("save questions", func(t *testing.T) {
		n, err := s.SaveQuestions(ctx, sampleQuestions())
		if err != nil {
			t.Fatalf("SaveQuestions() error = %v", err)
		}
		if n != 3 {
			t.Errorf("inserted = %d, want 3", n)
		}

		n, err = s.SaveQuestions(ctx, sampleQuestions())
		if err != nil {
			t.Fatalf("second SaveQuestions() error = %v", err)
		}
		if n != 0 {
			t.Errorf("second inserted = %d, want 0", n)
		}
	})

	t.Run("get question", func(t *testing.T) {
		q, err := s.GetQuestion(ctx, "q-1")
		if err != nil {
			t.Fatalf("GetQuestion() error = %v", err)
		}
		if q.Text != "Unit of resistance?" || q.Answer != "A. Ohm" || len(q.Options) != 2 || q.Options[1] != "B. Volt" {
			t.Errorf("GetQuestion() = %+v", q)
		}
		if q.Difficulty != question.Easy || q.Type != question.TypeMCQ || q.SourceLabel != "eee.pdf" {
			t.Errorf("GetQuestion() metadata = %+v", q)
		}
		if q.CreatedAt.IsZero() {
			t.Error("CreatedAt not set")
		}

		q3, err := s.GetQuestion(ctx, "q-3")
		if err != nil {
			t.Fatalf("GetQuestion(q-3) error = %v", err)
		}
		if q3.Options != nil {
			t.Errorf("Options = %v, want nil", q3.Options)
		}

		if _, err := s.GetQuestion(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetQuestion(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("list questions", func(t *testing.T) {
		tests := []struct {
			name   string
			filter store.QuestionFilter
			want   []string
		}{
			{"all", store.QuestionFilter{}, []string{"q-1", "q-2", "q-3"}},
			{"subject", store.QuestionFilter{Subject: "EEE"}, []string{"q-1", "q-2"}},
			{"difficulty", store.QuestionFilter{Difficulty: "hard"}, []string{"q-2"}},
			{"unit and subject", store.QuestionFilter{Subject: "EEE", Unit: "Unit 1"}, []string{"q-1"}},
			{"source", store.QuestionFilter{SourceType: "QB"}, []string{"q-2"}},
			{"topic", store.QuestionFilter{Topic: "Matrices"}, []string{"q-3"}},
			{"limit", store.QuestionFilter{Limit: 1}, []string{"q-1"}},
			{"no match", store.QuestionFilter{Subject: "Chemistry"}, nil},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := s.ListQuestions(ctx, tt.filter)
				if err != nil {
					t.Fatalf("ListQuestions() error = %v", err)
				}
				if len(got) != len(tt.want) {
					t.Fatalf("ListQuestions() returned %d, want %d", len(got), len(tt.want))
				}
				for i, id := range tt.want {
					if got[i].ID != id {
						t.Errorf("got[%d].ID = %q, want %q", i, got[i].ID, id)
					}
				}
			})
		}
	})

	t.Run("count and subjects", func(t *testing.T) {
		n, err := s.CountQuestions(ctx)
		if err != nil || n != 3 {
			t.Errorf("CountQuestions() = %d, %v; want 3", n, err)
		}
		subjects, err := s.Subjects(ctx)
		if err != nil {
			t.Fatalf("Subjects() error = %v", err)
		}
		if len(subjects) != 2 || subjects[0] != "EEE" || subjects[1] != "MES" {
			t.Errorf("Subjects() = %v, want [EEE MES]", subjects)
		}
	})

	t.Run("record attempts", func(t *testing.T) {
		if _, err := s.GetTopicStats(ctx, "Basics", "EEE"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetTopicStats() before attempts error = %v, want ErrNotFound", err)
		}

		base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		var sawInitial store.TopicStats
		for i, correct := range []bool{true, false, true} {
			st, err := s.RecordAttempt(ctx, store.Attempt{
				QuestionID:  "q-1",
				UserAnswer:  "A. Ohm",
				Correct:     correct,
				Topic:       "Basics",
				Subject:     "EEE",
				Difficulty:  question.Easy,
				AttemptedAt: base.Add(time.Duration(i) * time.Minute),
			}, func(cur store.TopicStats, a store.Attempt) store.TopicStats {
				if i == 0 {
					sawInitial = cur
				}
				return increment(cur, a)
			})
			if err != nil {
				t.Fatalf("RecordAttempt(%d) error = %v", i, err)
			}
			if st.TotalAttempts != i+1 {
				t.Errorf("TotalAttempts = %d, want %d", st.TotalAttempts, i+1)
			}
		}

		if sawInitial.TotalAttempts != 0 || sawInitial.CurrentDifficulty != question.Medium {
			t.Errorf("initial stats = %+v, want zero attempts at medium", sawInitial)
		}

		st, err := s.GetTopicStats(ctx, "Basics", "EEE")
		if err != nil {
			t.Fatalf("GetTopicStats() error = %v", err)
		}
		if st.TotalAttempts != 3 || st.CorrectCount != 2 || st.CurrentDifficulty != question.Hard {
			t.Errorf("GetTopicStats() = %+v", st)
		}
		if st.Accuracy < 0.66 || st.Accuracy > 0.67 {
			t.Errorf("Accuracy = %v, want 2/3", st.Accuracy)
		}

		// Same topic name under another subject is a separate record.
		if _, err := s.RecordAttempt(ctx, store.Attempt{
			QuestionID: "q-3", UserAnswer: "0", Topic: "Basics", Subject: "MES",
			Difficulty: question.Medium, AttemptedAt: base.Add(time.Hour),
		}, increment); err != nil {
			t.Fatalf("RecordAttempt(MES) error = %v", err)
		}

		all, err := s.ListTopicStats(ctx)
		if err != nil {
			t.Fatalf("ListTopicStats() error = %v", err)
		}
		if len(all) != 2 || all[0].Subject != "EEE" || all[1].Subject != "MES" {
			t.Errorf("ListTopicStats() = %+v", all)
		}
	})

	t.Run("recent attempts", func(t *testing.T) {
		recent, err := s.RecentAttempts(ctx, 2)
		if err != nil {
			t.Fatalf("RecentAttempts() error = %v", err)
		}
		if len(recent) != 2 {
			t.Fatalf("RecentAttempts() returned %d, want 2", len(recent))
		}
		if recent[0].QuestionID != "q-3" || recent[0].Correct {
			t.Errorf("newest attempt = %+v, want the MES attempt", recent[0])
		}
		if recent[1].ID == 0 || !recent[1].Correct {
			t.Errorf("second attempt = %+v", recent[1])
		}

		all, err := s.RecentAttempts(ctx, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 4 {
			t.Errorf("RecentAttempts(0) returned %d, want 4", len(all))
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := s.Ping(ctx); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, store.NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	db, err := database.OpenSQLite(t.Context(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	s, err := store.NewSQLiteStore(t.Context(), db)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	runStoreContract(t, s)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/examino.db"

	open := func() *store.SQLiteStore {
		db, err := database.OpenSQLite(t.Context(), path)
		if err != nil {
			t.Fatalf("OpenSQLite() error = %v", err)
		}
		s, err := store.NewSQLiteStore(t.Context(), db)
		if err != nil {
			t.Fatalf("NewSQLiteStore() error = %v", err)
		}
		return s
	}

	s := open()
	if _, err := s.SaveQuestions(t.Context(), sampleQuestions()); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s = open()
	defer s.Close()
	if n, _ := s.CountQuestions(t.Context()); n != 3 {
		t.Errorf("CountQuestions() after reopen = %d, want 3", n)
	}
}

func TestSaveQuestions_RequiresID(t *testing.T) {
	s := store.NewMemoryStore()
	if _, err := s.SaveQuestions(context.Background(), []question.Candidate{{Text: "no id"}}); err == nil {
		t.Error("SaveQuestions() should reject a question without ID")
	}
}
