// Package ingest turns an uploaded document into bank entries: extract,
// segment, generate, assemble, save and sync.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/p-n-ai/examino/internal/bank"
	"github.com/p-n-ai/examino/internal/curriculum"
	"github.com/p-n-ai/examino/internal/extract"
	"github.com/p-n-ai/examino/internal/generator"
	"github.com/p-n-ai/examino/internal/question"
	"github.com/p-n-ai/examino/internal/segment"
)

// ErrInvalidInput is returned for documents that cannot be ingested.
// Nothing is written when it is returned.
var ErrInvalidInput = errors.New("invalid input")

const (
	defaultQuestionsPerSection = 3
	defaultMinTextChars        = 100
	maxQuestionsPerSection     = 20
)

// Syncer merges candidates into the question bank.
type Syncer interface {
	Sync(ctx context.Context, candidates []question.Candidate, subject string) (bank.Result, error)
}

// Saver persists candidates in the relational store.
type Saver interface {
	SaveQuestions(ctx context.Context, qs []question.Candidate) (int, error)
}

// Config holds dependencies for a Pipeline.
type Config struct {
	Runner     *generator.Runner // required
	Bank       Syncer            // required
	Store      Saver             // optional
	Curriculum *curriculum.Loader
	MinWords   int
	// QuestionsPerSection is the default request count per section.
	QuestionsPerSection int
	// MinTextChars rejects documents whose extracted text is shorter.
	MinTextChars int
}

// Request is one document to ingest. Subject, Unit and Topic override the
// inferred metadata when set.
type Request struct {
	Filename            string
	Data                []byte
	Subject             string
	Unit                string
	Topic               string
	QuestionsPerSection int
}

// Report counts what one ingestion did.
type Report struct {
	Filename          string `json:"filename"`
	Subject           string `json:"subject"`
	Unit              string `json:"unit"`
	Topic             string `json:"topic"`
	Sections          int    `json:"sections"`
	Generated         int    `json:"generated"`
	Saved             int    `json:"saved"`
	Inserted          int    `json:"inserted"`
	SkippedDuplicates int    `json:"skipped_duplicates"`
	TotalInSubject    int    `json:"total_in_subject"`
	FallbackSections  int    `json:"fallback_sections"`
}

// Pipeline runs ingestion requests.
type Pipeline struct {
	runner              *generator.Runner
	bank                Syncer
	store               Saver
	curriculum          *curriculum.Loader
	minWords            int
	questionsPerSection int
	minTextChars        int
}

// New creates a Pipeline. Without a curriculum loader the embedded
// subject catalog is used.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("ingest: runner is required")
	}
	if cfg.Bank == nil {
		return nil, fmt.Errorf("ingest: bank is required")
	}
	loader := cfg.Curriculum
	if loader == nil {
		var err error
		loader, err = curriculum.NewLoader("")
		if err != nil {
			return nil, fmt.Errorf("ingest: loading curriculum: %w", err)
		}
	}
	perSection := cfg.QuestionsPerSection
	if perSection <= 0 {
		perSection = defaultQuestionsPerSection
	}
	minChars := cfg.MinTextChars
	if minChars <= 0 {
		minChars = defaultMinTextChars
	}
	return &Pipeline{
		runner:              cfg.Runner,
		bank:                cfg.Bank,
		store:               cfg.Store,
		curriculum:          loader,
		minWords:            cfg.MinWords,
		questionsPerSection: perSection,
		minTextChars:        minChars,
	}, nil
}

// Ingest processes one document. Input errors wrap ErrInvalidInput and
// happen before any write. Once sync has run the report carries its
// counts even when the store save failed.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (Report, error) {
	rep := Report{Filename: req.Filename}

	text, err := extract.Extract(req.Data, req.Filename)
	if err != nil {
		return rep, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < p.minTextChars {
		return rep, fmt.Errorf("%w: document text is shorter than %d characters", ErrInvalidInput, p.minTextChars)
	}

	meta := p.curriculum.InferMetadata(text, req.Filename)
	rep.Subject = firstNonEmpty(req.Subject, meta.Subject)
	rep.Unit = firstNonEmpty(req.Unit, meta.Unit)
	rep.Topic = firstNonEmpty(req.Topic, meta.Topic)

	sections := segment.Segment(text, p.minWords)
	if len(sections) == 0 {
		return rep, fmt.Errorf("%w: no section reached the minimum word count", ErrInvalidInput)
	}
	rep.Sections = len(sections)

	count := req.QuestionsPerSection
	if count <= 0 {
		count = p.questionsPerSection
	}
	count = min(count, maxQuestionsPerSection)

	jobs := make([]generator.Job, len(sections))
	for i, s := range sections {
		jobs[i] = generator.Job{
			Text:       s.Content,
			Count:      count,
			Difficulty: segment.InferDifficulty(s.Content, i, len(sections)),
		}
	}

	results, err := p.runner.Run(generator.WithScope(ctx, rep.Subject), jobs)
	if err != nil {
		return rep, fmt.Errorf("generating questions: %w", err)
	}

	var candidates []question.Candidate
	for i, r := range results {
		if r.Fallback {
			rep.FallbackSections++
		}
		candidates = append(candidates, question.Assemble(r.Raw, question.Metadata{
			Subject:     rep.Subject,
			Unit:        rep.Unit,
			Topic:       rep.Topic,
			Difficulty:  jobs[i].Difficulty,
			SourceLabel: req.Filename,
		})...)
	}
	rep.Generated = len(candidates)

	res, err := p.bank.Sync(ctx, candidates, rep.Subject)
	if err != nil {
		return rep, fmt.Errorf("syncing bank: %w", err)
	}
	rep.Inserted = res.Inserted
	rep.SkippedDuplicates = res.Skipped
	rep.TotalInSubject = res.TotalInSubject

	if p.store != nil && len(candidates) > 0 {
		saved, err := p.store.SaveQuestions(ctx, candidates)
		if err != nil {
			return rep, fmt.Errorf("saving questions: %w", err)
		}
		rep.Saved = saved
	}

	slog.Info("document ingested",
		"filename", req.Filename,
		"subject", rep.Subject,
		"sections", rep.Sections,
		"generated", rep.Generated,
		"inserted", rep.Inserted,
		"skipped", rep.SkippedDuplicates,
		"fallback_sections", rep.FallbackSections,
	)
	return rep, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
