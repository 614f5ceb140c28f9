package question

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrMalformedOutput means generator output could not be turned into
// candidates at all.
var ErrMalformedOutput = errors.New("malformed generator output")

var (
	codeFence = regexp.MustCompile("```(?:json)?\\s*")
	jsonArray = regexp.MustCompile(`\[[\s\S]*\]`)
)

const (
	outputSchema = `{"type": "array"}`

	candidateSchema = `{
  "type": "object",
  "required": ["question_text", "correct_answer"],
  "properties": {
    "question_text":  {"type": "string"},
    "options":        {"type": ["array", "null"], "items": {"type": "string"}},
    "correct_answer": {"type": "string"},
    "question_type":  {"type": ["string", "null"]}
  }
}`
)

var (
	outputSchemaLoader    = gojsonschema.NewStringLoader(outputSchema)
	candidateSchemaLoader = gojsonschema.NewStringLoader(candidateSchema)
)

// ParseGeneratorOutput extracts the JSON array of questions from raw model
// output, tolerating markdown fences and surrounding prose. Only a missing
// or undecodable array is an error. Each item is validated on its own and
// items that fail the schema, or carry empty text or answer, are skipped.
// Options may be absent only for types other than mcq and true_false.
// Answer repair happens in Assemble.
func ParseGeneratorOutput(raw string) ([]RawCandidate, error) {
	cleaned := strings.Trim(strings.TrimSpace(codeFence.ReplaceAllString(raw, "")), "`")

	arr := jsonArray.FindString(cleaned)
	if arr == "" {
		return nil, fmt.Errorf("no JSON array found: %w", ErrMalformedOutput)
	}

	result, err := gojsonschema.Validate(outputSchemaLoader, gojsonschema.NewStringLoader(arr))
	if err != nil {
		return nil, fmt.Errorf("decoding array: %v: %w", err, ErrMalformedOutput)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("schema: %s: %w", schemaErrors(result), ErrMalformedOutput)
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(arr), &items); err != nil {
		return nil, fmt.Errorf("decoding array: %v: %w", err, ErrMalformedOutput)
	}

	out := make([]RawCandidate, 0, len(items))
	for i, item := range items {
		it, err := parseItem(item)
		if err != nil {
			slog.Debug("skipping generator item", "index", i, "error", err)
			continue
		}
		if it.Text == "" || it.Answer == "" {
			continue
		}
		if len(it.Options) == 0 && needsOptions(it.Type) {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func parseItem(item json.RawMessage) (RawCandidate, error) {
	result, err := gojsonschema.Validate(candidateSchemaLoader, gojsonschema.NewBytesLoader(item))
	if err != nil {
		return RawCandidate{}, err
	}
	if !result.Valid() {
		return RawCandidate{}, errors.New(schemaErrors(result))
	}

	var it RawCandidate
	if err := json.Unmarshal(item, &it); err != nil {
		return RawCandidate{}, err
	}
	it.Text = strings.TrimSpace(it.Text)
	it.Answer = strings.TrimSpace(it.Answer)
	it.Type = string(ParseType(it.Type))
	return it, nil
}

func needsOptions(t string) bool {
	switch Type(t) {
	case TypeMCQ, TypeTrueFalse:
		return true
	}
	return false
}

func schemaErrors(result *gojsonschema.Result) string {
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; ")
}
