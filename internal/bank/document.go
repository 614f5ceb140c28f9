package bank

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrCorruptBank means the bank file exists but cannot be used.
var ErrCorruptBank = errors.New("corrupt question bank")

const bankSchema = `{
  "type": "object",
  "additionalProperties": {
    "type": "array",
    "items": {"type": "object"}
  }
}`

var bankSchemaLoader = gojsonschema.NewStringLoader(bankSchema)

// Document is a question bank held as raw JSON per subject, in file order.
// Entries are never re-encoded unless their partition is rewritten, so
// fields this service does not know about survive a sync.
type Document struct {
	order []string
	parts map[string][]json.RawMessage
}

// NewDocument returns an empty bank.
func NewDocument() *Document {
	return &Document{parts: make(map[string][]json.RawMessage)}
}

// Decode parses and validates a bank. Validation or syntax failures wrap
// ErrCorruptBank.
func Decode(data []byte) (*Document, error) {
	result, err := gojsonschema.Validate(bankSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBank, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrCorruptBank, strings.Join(msgs, "; "))
	}

	doc := NewDocument()
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := doc.decodeObject(dec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBank, err)
	}
	return doc, nil
}

// decodeObject reads one top-level object from dec, appending its entries
// to the document. Subjects seen before keep their position.
func (d *Document) decodeObject(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		subject, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected subject key, got %v", tok)
		}

		var entries []json.RawMessage
		if err := dec.Decode(&entries); err != nil {
			return fmt.Errorf("subject %q: %w", subject, err)
		}
		if _, seen := d.parts[subject]; !seen {
			d.order = append(d.order, subject)
		}
		d.parts[subject] = append(d.parts[subject], entries...)
	}

	_, err = dec.Token() // closing brace
	return err
}

// Subjects returns subject names in file order.
func (d *Document) Subjects() []string {
	return append([]string(nil), d.order...)
}

// Len returns the number of entries in a subject.
func (d *Document) Len(subject string) int {
	return len(d.parts[subject])
}

// Total returns the number of entries across all subjects.
func (d *Document) Total() int {
	n := 0
	for _, entries := range d.parts {
		n += len(entries)
	}
	return n
}

// Entries decodes a subject's entries. Entries that do not decode are
// skipped.
func (d *Document) Entries(subject string) []Entry {
	raw := d.parts[subject]
	out := make([]Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if err := json.Unmarshal(r, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (d *Document) raw(subject string) []json.RawMessage {
	return d.parts[subject]
}

func (d *Document) setRaw(subject string, entries []json.RawMessage) {
	if _, seen := d.parts[subject]; !seen {
		d.order = append(d.order, subject)
	}
	d.parts[subject] = entries
}

// Encode writes the bank with two-space indentation and a trailing
// newline. HTML characters are not escaped.
func (d *Document) Encode(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, subject := range d.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString("\n  ")
		key, err := marshal(subject)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteString(": ")

		var arr bytes.Buffer
		arr.WriteByte('[')
		for j, entry := range d.parts[subject] {
			if j > 0 {
				arr.WriteByte(',')
			}
			arr.Write(entry)
		}
		arr.WriteByte(']')
		if err := json.Indent(&buf, arr.Bytes(), "  ", "  "); err != nil {
			return fmt.Errorf("subject %q: %w", subject, err)
		}
	}
	if len(d.order) > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")

	_, err := w.Write(buf.Bytes())
	return err
}

// marshal encodes v without HTML escaping and without a trailing newline.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
