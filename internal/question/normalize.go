package question

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize lowercases text and collapses whitespace runs to one space.
// It is the only normalization used for duplicate detection.
func Normalize(text string) string {
	// cases.Caser is stateful and not safe for concurrent use.
	lower := cases.Lower(language.Und).String(text)
	return strings.Join(strings.Fields(lower), " ")
}

// Fingerprint is the hex BLAKE2b-256 digest of Normalize(text).
func Fingerprint(text string) string {
	sum := blake2b.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}
