package segment

import (
	"regexp"
	"strings"

	"github.com/p-n-ai/examino/internal/question"
)

var (
	hardSignals   = []string{"derive", "prove", "calculate", "determine", "analyse", "evaluate", "compare", "synthesis"}
	mediumSignals = []string{"explain", "describe", "state", "define", "identify", "list", "what is"}
)

var sentenceEnd = regexp.MustCompile(`[.!?]+`)

// InferDifficulty scores a section from lexical signals, its position in
// the document and its mean sentence length. Later, longer and more
// analytical sections score harder. It is pure and deterministic.
func InferDifficulty(text string, index, total int) question.Difficulty {
	lower := strings.ToLower(text)
	hard := countSignals(lower, hardSignals)
	medium := countSignals(lower, mediumSignals)

	position := float64(index) / float64(max(total-1, 1))

	// Fragments include the empty tail after a final full stop, which pulls
	// the mean down for short passages.
	fragments := sentenceEnd.Split(text, -1)
	words := 0
	for _, f := range fragments {
		words += len(strings.Fields(f))
	}
	mean := float64(words) / float64(max(len(fragments), 1))

	score := 2 * hard
	if position > 0.6 {
		score++
	}
	if mean > 20 {
		score++
	}

	switch {
	case score >= 3 || hard >= 2:
		return question.Hard
	case score >= 1 || medium >= 2 || mean > 15:
		return question.Medium
	default:
		return question.Easy
	}
}

func countSignals(text string, signals []string) int {
	n := 0
	for _, s := range signals {
		if strings.Contains(text, s) {
			n++
		}
	}
	return n
}
