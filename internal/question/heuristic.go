package question

import (
	"regexp"
	"strings"
)

var (
	sentenceBreak = regexp.MustCompile(`[.!?]\s+`)
	declarative   = regexp.MustCompile(`(?i)\b(is|are|was|were|has|have|can|will|does)\b`)
	definition    = regexp.MustCompile(`([A-Z][a-z]{2,30})\s+(?:is|are|refers to|means)\s+(.{20,120})`)
)

// Fixed answer sets for the fallback extractor.
var (
	trueFalseOptions      = []string{"A. True", "B. False", "C. Partially True", "D. Not mentioned"}
	definitionDistractors = []string{"B. A type of measurement", "C. An electrical component", "D. A mathematical function"}
)

const (
	minStatementWords = 8
	definitionRunes   = 80
)

// Heuristic extracts up to count questions from text without any external
// service: true/false statements from declarative sentences, then
// "What is X?" questions from definition patterns. The statement is always
// presented as true. Output is deterministic.
func Heuristic(text string, count int) []RawCandidate {
	if count <= 0 {
		return nil
	}

	var out []RawCandidate

	sentences := statements(text)
	if len(sentences) > 2*count {
		sentences = sentences[:2*count]
	}
	for _, s := range sentences {
		if !declarative.MatchString(s) {
			continue
		}
		out = append(out, RawCandidate{
			Text:    "True or False: " + s,
			Options: append([]string(nil), trueFalseOptions...),
			Answer:  trueFalseOptions[0],
			Type:    string(TypeTrueFalse),
		})
		if len(out) >= count {
			break
		}
	}

	if len(out) < count {
		for _, m := range definition.FindAllStringSubmatch(text, count) {
			answer := "A. " + strings.Trim(truncateRunes(m[2], definitionRunes), ".,")
			out = append(out, RawCandidate{
				Text:    "What is " + m[1] + "?",
				Options: append([]string{answer}, definitionDistractors...),
				Answer:  answer,
				Type:    string(TypeMCQ),
			})
			if len(out) >= count {
				break
			}
		}
	}

	if len(out) > count {
		out = out[:count]
	}
	return out
}

// statements splits text after sentence-ending punctuation followed by
// whitespace and keeps trimmed sentences of at least eight words.
func statements(text string) []string {
	var out []string
	keep := func(s string) {
		s = strings.TrimSpace(s)
		if len(strings.Fields(s)) >= minStatementWords {
			out = append(out, s)
		}
	}

	start := 0
	for _, loc := range sentenceBreak.FindAllStringIndex(text, -1) {
		// Cut after the punctuation mark; the whitespace run is discarded.
		keep(text[start : loc[0]+1])
		start = loc[1]
	}
	keep(text[start:])
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
