package curriculum

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	defaultSubject = "General"
	defaultUnit    = "Unit 1"
	defaultTopic   = "General"
	maxTopicRunes  = 60
)

var (
	unitRef        = regexp.MustCompile(`unit\s*[:\-]?\s*(\d+|[ivx]+)`)
	firstHeading   = regexp.MustCompile(`(?m)^#{1,3}\s+(.+)$`)
	stemSeparators = regexp.MustCompile(`[_\-]+`)
)

// InferMetadata guesses a document's subject, unit and topic.
//
// Subject is the catalog entry with the most keyword hits in the text or
// filename (ties keep the earlier entry; no hits yields "General"). Unit
// comes from the first "unit N" reference. Topic is the first markdown
// heading, else the title-cased filename stem.
func (l *Loader) InferMetadata(text, filename string) Metadata {
	lowerText := strings.ToLower(text)
	lowerName := strings.ToLower(filename)

	subject := defaultSubject
	best := 0
	for _, s := range l.Subjects() {
		hits := 0
		for _, kw := range s.Keywords {
			if strings.Contains(lowerText, kw) || strings.Contains(lowerName, kw) {
				hits++
			}
		}
		if hits > best {
			best, subject = hits, s.Name
		}
	}

	unit := defaultUnit
	if m := unitRef.FindStringSubmatch(lowerText); m != nil {
		unit = "Unit " + strings.ToUpper(m[1])
	}

	return Metadata{Subject: subject, Unit: unit, Topic: inferTopic(text, filename)}
}

func inferTopic(text, filename string) string {
	if m := firstHeading.FindStringSubmatch(text); m != nil {
		if topic := truncate(strings.TrimSpace(m[1]), maxTopicRunes); topic != "" {
			return topic
		}
	}

	if filename == "" {
		return defaultTopic
	}
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.TrimSpace(stemSeparators.ReplaceAllString(stem, " "))
	if stem == "" {
		return defaultTopic
	}
	return truncate(cases.Title(language.Und).String(stem), maxTopicRunes)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
