// Package segment splits extracted document text into titled sections and
// assigns each a heuristic difficulty.
package segment

import (
	"fmt"
	"regexp"
	"strings"
)

// Section is a contiguous, titled block of document text.
type Section struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	WordCount int    `json:"word_count"`
}

// DefaultMinWords is the section size floor used when none is configured.
const DefaultMinWords = 30

// fallbackChunkWords is the paragraph-buffer size that closes a section
// when the document has no recognizable headings.
const fallbackChunkWords = 300

// heading matches a whole line that looks like a section title: markdown
// headings, UNIT/CHAPTER/SECTION/MODULE markers, numbered titles and
// ALL-CAPS lines.
var heading = regexp.MustCompile(`(?m)^(?:#{1,3}\s+.+|(?:UNIT|CHAPTER|SECTION|MODULE)\s+[\dIVX]+[^\n]*|(?:\d+\.\s+[A-Z][^\n]{5,40})|[A-Z][A-Z\s]{4,40}:?)$`)

var paragraphBreak = regexp.MustCompile(`\n{2,}`)

// Segment splits text into sections of at least minWords words, in
// document order. With two or more heading lines the text is cut at the
// headings; otherwise paragraphs are packed into blocks of about 300
// words. A non-positive minWords uses DefaultMinWords.
func Segment(text string, minWords int) []Section {
	if minWords <= 0 {
		minWords = DefaultMinWords
	}

	var sections []Section
	if locs := heading.FindAllStringIndex(text, -1); len(locs) >= 2 {
		sections = byHeadings(text, locs)
	} else {
		sections = byParagraphs(text)
	}

	kept := sections[:0]
	for _, s := range sections {
		if s.WordCount >= minWords {
			kept = append(kept, s)
		}
	}
	return kept
}

func byHeadings(text string, locs [][]int) []Section {
	sections := make([]Section, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		content := strings.TrimSpace(text[loc[1]:end])
		sections = append(sections, Section{
			Title:     cleanTitle(text[loc[0]:loc[1]]),
			Content:   content,
			WordCount: len(strings.Fields(content)),
		})
	}
	return sections
}

func cleanTitle(s string) string {
	s = strings.Trim(s, "# ")
	s = strings.Trim(s, ": ")
	return strings.TrimSpace(s)
}

func byParagraphs(text string) []Section {
	var (
		sections []Section
		buf      []string
		words    int
	)
	flush := func() {
		sections = append(sections, Section{
			Title:     fmt.Sprintf("Section %d", len(sections)+1),
			Content:   strings.Join(buf, "\n\n"),
			WordCount: words,
		})
		buf, words = nil, 0
	}

	for _, chunk := range paragraphBreak.Split(text, -1) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		buf = append(buf, chunk)
		words += len(strings.Fields(chunk))
		if words >= fallbackChunkWords {
			flush()
		}
	}
	if len(buf) > 0 {
		flush()
	}
	return sections
}
