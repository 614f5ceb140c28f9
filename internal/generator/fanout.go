package generator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/examino/internal/ai"
	"github.com/p-n-ai/examino/internal/platform/metrics"
	"github.com/p-n-ai/examino/internal/question"
)

const (
	defaultConcurrency = 4
	defaultTimeout     = 60 * time.Second
)

// Job is one section to generate questions for.
type Job struct {
	Text       string
	Count      int
	Difficulty question.Difficulty
}

// Result is the outcome for the job at the same index.
type Result struct {
	Raw []question.RawCandidate
	// Fallback is true when the local extractor supplied the questions.
	Fallback bool
	// Err is the primary generator error that caused the fallback, if any.
	Err error
}

// RunnerConfig holds dependencies for the section runner.
type RunnerConfig struct {
	Primary     Generator // nil means local extraction only
	Concurrency int
	Timeout     time.Duration // per section
	// DisableFallback drops sections whose primary generation failed
	// instead of running the local extractor.
	DisableFallback bool
	Metrics         *metrics.Metrics
}

// Runner generates questions for many sections concurrently.
type Runner struct {
	primary         Generator
	local           Generator
	concurrency     int
	timeout         time.Duration
	disableFallback bool
	metrics         *metrics.Metrics
}

// NewRunner creates a section runner.
func NewRunner(cfg RunnerConfig) *Runner {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Runner{
		primary:         cfg.Primary,
		local:           Local{},
		concurrency:     concurrency,
		timeout:         timeout,
		disableFallback: cfg.DisableFallback,
		metrics:         cfg.Metrics,
	}
}

// Run generates every job and returns results in job order. A failed or
// timed-out section falls back to local extraction; only cancellation of
// ctx itself fails the run.
func (r *Runner) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	results := make([]Result, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.runOne(gctx, i, job)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Runner) runOne(ctx context.Context, index int, job Job) Result {
	var primaryErr error
	if r.primary != nil {
		sctx, cancel := context.WithTimeout(ctx, r.timeout)
		raw, err := r.primary.Generate(sctx, job.Text, job.Count, job.Difficulty)
		cancel()
		if err == nil {
			r.metrics.Generated("ai", len(raw))
			return Result{Raw: raw}
		}
		primaryErr = err
		r.metrics.GenerationError(errorReason(err))
		slog.Warn("generation failed, using fallback",
			"section", index,
			"error", err,
		)
	}

	if r.disableFallback {
		return Result{Err: primaryErr}
	}

	raw, _ := r.local.Generate(ctx, job.Text, job.Count, job.Difficulty)
	r.metrics.FallbackSection()
	r.metrics.Generated("fallback", len(raw))
	return Result{Raw: raw, Fallback: true, Err: primaryErr}
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrBudgetExhausted):
		return "budget"
	case errors.Is(err, question.ErrMalformedOutput):
		return "malformed"
	case errors.Is(err, ai.ErrNoProvider):
		return "no_provider"
	default:
		return "provider"
	}
}
