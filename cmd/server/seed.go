package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/p-n-ai/examino/internal/bank"
	"github.com/p-n-ai/examino/internal/question"
	"github.com/p-n-ai/examino/internal/store"
)

// seedStore copies every bank entry into an empty store so a fresh
// database can serve questions and attempts straight away. A store that
// already holds questions is left alone.
func seedStore(ctx context.Context, st store.Store, b *bank.Synchronizer) (int, error) {
	n, err := st.CountQuestions(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting questions: %w", err)
	}
	if n > 0 {
		return 0, nil
	}

	doc, err := b.Load(ctx)
	if err != nil {
		return 0, err
	}

	source := filepath.Base(b.Path())
	var qs []question.Candidate
	for _, subject := range doc.Subjects() {
		for _, e := range doc.Entries(subject) {
			if e.Q == "" || e.A == "" {
				continue
			}
			c := e.Candidate(subject)
			c.ID = uuid.NewString()
			c.SourceLabel = source
			qs = append(qs, c)
		}
	}
	if len(qs) == 0 {
		return 0, nil
	}
	return st.SaveQuestions(ctx, qs)
}
