package store

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

var (
	//go:embed schema/sqlite.sql
	sqliteSchema string
	//go:embed schema/postgres.sql
	postgresSchema string
)

const questionColumns = `question_id, question_type, question_text, options, correct_answer,
	topic, subject, unit, difficulty_level, source_file, source_type, question_format, text_hash`

// whereClause builds the WHERE clause for f. placeholder renders the n-th
// bind parameter (1-based) in the driver's syntax.
func whereClause(f QuestionFilter, placeholder func(n int) string) (string, []any) {
	var conds []string
	var args []any
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		conds = append(conds, fmt.Sprintf("%s = %s", col, placeholder(len(args))))
	}
	add("subject", f.Subject)
	add("unit", f.Unit)
	add("topic", f.Topic)
	add("difficulty_level", f.Difficulty)
	add("source_type", f.SourceType)

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// encodeOptions stores nil options as SQL NULL.
func encodeOptions(opts []string) ([]byte, error) {
	if opts == nil {
		return nil, nil
	}
	return json.Marshal(opts)
}

func decodeOptions(raw []byte) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var opts []string
	if err := json.Unmarshal(raw, &opts); err != nil {
		return nil, fmt.Errorf("decoding options: %w", err)
	}
	return opts, nil
}
