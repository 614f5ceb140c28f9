// Package generator produces raw question candidates for document sections,
// using an AI provider chain with the local extractor as the fallback.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/examino/internal/ai"
	"github.com/p-n-ai/examino/internal/question"
)

// ErrBudgetExhausted is returned when the scope's token budget is spent.
var ErrBudgetExhausted = errors.New("token budget exhausted")

const (
	maxPromptRunes   = 3000
	defaultMaxTokens = 2048
)

const systemPrompt = `You are an expert academic question setter. Given a passage of study material, generate multiple-choice questions (MCQs).

Output ONLY a valid JSON array. Each element must have:
{
  "question_text": "...",
  "options": ["A. ...", "B. ...", "C. ...", "D. ..."],
  "correct_answer": "A. ...",
  "question_type": "mcq"
}

Rules:
- Options must be labelled A. B. C. D.
- correct_answer must be the FULL option string (e.g. "A. Ohm's Law") and match one of the options exactly
- Questions must be directly answerable from the passage
- Do not include explanations or extra keys
- Output ONLY the JSON array, no markdown, no preamble`

// Generator produces raw candidates for one section of text.
type Generator interface {
	Generate(ctx context.Context, text string, count int, difficulty question.Difficulty) ([]question.RawCandidate, error)
}

type scopeKey struct{}

// WithScope tags ctx with the budget scope (the subject) for generation.
func WithScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

func scopeFrom(ctx context.Context) string {
	s, _ := ctx.Value(scopeKey{}).(string)
	return s
}

// AIConfig holds dependencies for the AI-backed generator.
type AIConfig struct {
	Router    *ai.Router
	Budget    ai.Budget // optional
	Model     string    // optional model override
	MaxTokens int       // default 2048
}

// AIGenerator asks the provider chain for questions.
type AIGenerator struct {
	router    *ai.Router
	budget    ai.Budget
	model     string
	maxTokens int
}

// NewAIGenerator creates a generator over the given router.
func NewAIGenerator(cfg AIConfig) *AIGenerator {
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	return &AIGenerator{
		router:    cfg.Router,
		budget:    cfg.Budget,
		model:     cfg.Model,
		maxTokens: maxTokens,
	}
}

// Generate sends the section to the provider chain and parses the reply.
func (g *AIGenerator) Generate(ctx context.Context, text string, count int, difficulty question.Difficulty) ([]question.RawCandidate, error) {
	if g.router == nil || !g.router.HasProvider() {
		return nil, ai.ErrNoProvider
	}

	scope := scopeFrom(ctx)
	if g.budget != nil && !g.budget.Allow(scope) {
		used, limit := g.budget.Usage(scope)
		return nil, fmt.Errorf("scope %q used %d of %d tokens: %w", scope, used, limit, ErrBudgetExhausted)
	}

	resp, err := g.router.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: UserPrompt(text, count, difficulty)},
		},
		Model:     g.model,
		MaxTokens: g.maxTokens,
		Task:      ai.TaskQuestionGeneration,
	})
	if err != nil {
		return nil, fmt.Errorf("generating questions: %w", err)
	}

	if g.budget != nil {
		if err := g.budget.Record(scope, resp.TotalTokens()); err != nil {
			slog.Warn("failed to record token usage", "scope", scope, "error", err)
		}
	}

	raw, err := question.ParseGeneratorOutput(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s output: %w", resp.Provider, err)
	}
	return raw, nil
}

// UserPrompt builds the per-section instruction. Only the first 3000
// characters of the section are sent.
func UserPrompt(text string, count int, difficulty question.Difficulty) string {
	r := []rune(text)
	if len(r) > maxPromptRunes {
		r = r[:maxPromptRunes]
	}
	return fmt.Sprintf("Generate exactly %d MCQ questions at %s difficulty based on the following study material:\n\n%s",
		count, difficulty, string(r))
}

// Local wraps the heuristic extractor as a Generator.
type Local struct{}

func (Local) Generate(_ context.Context, text string, count int, _ question.Difficulty) ([]question.RawCandidate, error) {
	return question.Heuristic(text, count), nil
}
