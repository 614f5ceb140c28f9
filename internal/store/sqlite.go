package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/p-n-ai/examino/internal/question"
)

// Fixed width, so text order is time order.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore is a Store on a single-connection SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore applies the schema and returns a store over db. The
// store takes ownership of db.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("applying sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func sqlitePlaceholder(int) string { return "?" }

func formatTime(t time.Time) string { return t.UTC().Format(sqliteTimeFormat) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeFormat, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func (s *SQLiteStore) SaveQuestions(ctx context.Context, qs []question.Candidate) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO questions (`+questionColumns+`, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (question_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	created := formatTime(s.now())
	inserted := 0
	for _, q := range qs {
		if q.ID == "" {
			return 0, fmt.Errorf("question without ID")
		}
		opts, err := encodeOptions(q.Options)
		if err != nil {
			return 0, err
		}
		var optArg any
		if opts != nil {
			optArg = string(opts)
		}
		res, err := stmt.ExecContext(ctx,
			q.ID, string(q.Type), q.Text, optArg, q.Answer,
			q.Topic, q.Subject, q.Unit, string(q.Difficulty),
			q.SourceLabel, q.SourceType, q.QuestionFormat, q.Fingerprint,
			created,
		)
		if err != nil {
			return 0, fmt.Errorf("insert question %s: %w", q.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteQuestion(row rowScanner) (Question, error) {
	var q Question
	var typ, diff, created string
	var opts sql.NullString
	if err := row.Scan(
		&q.ID, &typ, &q.Text, &opts, &q.Answer,
		&q.Topic, &q.Subject, &q.Unit, &diff,
		&q.SourceLabel, &q.SourceType, &q.QuestionFormat, &q.Fingerprint,
		&created,
	); err != nil {
		return Question{}, err
	}
	q.Type = question.Type(typ)
	q.Difficulty = question.Difficulty(diff)

	var err error
	if q.Options, err = decodeOptions([]byte(opts.String)); err != nil {
		return Question{}, err
	}
	if q.CreatedAt, err = parseTime(created); err != nil {
		return Question{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return q, nil
}

func (s *SQLiteStore) GetQuestion(ctx context.Context, id string) (Question, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+`, created_at FROM questions WHERE question_id = ?`, id)
	q, err := scanSQLiteQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, fmt.Errorf("question %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Question{}, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

func (s *SQLiteStore) ListQuestions(ctx context.Context, f QuestionFilter) ([]Question, error) {
	where, args := whereClause(f, sqlitePlaceholder)
	args = append(args, f.limit())

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+`, created_at FROM questions`+where+` ORDER BY rowid LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		q, err := scanSQLiteQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountQuestions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Subjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT subject FROM questions ORDER BY subject`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var subject string
		if err := rows.Scan(&subject); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		out = append(out, subject)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RecordAttempt(ctx context.Context, a Attempt, update UpdateFunc) (TopicStats, error) {
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = s.now()
	}
	a.AttemptedAt = a.AttemptedAt.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return TopicStats{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO attempts (question_id, user_answer, is_correct, topic, subject, difficulty, attempted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.QuestionID, a.UserAnswer, a.Correct, a.Topic, a.Subject, string(a.Difficulty), formatTime(a.AttemptedAt),
	)
	if err != nil {
		return TopicStats{}, fmt.Errorf("insert attempt: %w", err)
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return TopicStats{}, fmt.Errorf("attempt id: %w", err)
	}

	current := newTopicStats(a.Topic, a.Subject)
	current.LastUpdated = a.AttemptedAt
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO topic_stats (topic, subject, current_difficulty, last_updated)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (topic, subject) DO NOTHING`,
		a.Topic, a.Subject, string(current.CurrentDifficulty), formatTime(current.LastUpdated),
	); err != nil {
		return TopicStats{}, fmt.Errorf("create topic stats: %w", err)
	}

	current, err = scanSQLiteStats(tx.QueryRowContext(ctx,
		`SELECT topic, subject, total_attempts, correct_count, accuracy, current_difficulty, last_updated
		 FROM topic_stats WHERE topic = ? AND subject = ?`, a.Topic, a.Subject))
	if err != nil {
		return TopicStats{}, fmt.Errorf("read topic stats: %w", err)
	}

	next := update(current, a)
	next.Topic, next.Subject = a.Topic, a.Subject
	if _, err := tx.ExecContext(ctx,
		`UPDATE topic_stats
		 SET total_attempts = ?, correct_count = ?, accuracy = ?, current_difficulty = ?, last_updated = ?
		 WHERE topic = ? AND subject = ?`,
		next.TotalAttempts, next.CorrectCount, next.Accuracy, string(next.CurrentDifficulty), formatTime(next.LastUpdated),
		a.Topic, a.Subject,
	); err != nil {
		return TopicStats{}, fmt.Errorf("update topic stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return TopicStats{}, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

func scanSQLiteStats(row rowScanner) (TopicStats, error) {
	var st TopicStats
	var diff, updated string
	if err := row.Scan(&st.Topic, &st.Subject, &st.TotalAttempts, &st.CorrectCount, &st.Accuracy, &diff, &updated); err != nil {
		return TopicStats{}, err
	}
	st.CurrentDifficulty = question.Difficulty(diff)
	t, err := parseTime(updated)
	if err != nil {
		return TopicStats{}, fmt.Errorf("parsing last_updated: %w", err)
	}
	st.LastUpdated = t
	return st, nil
}

func (s *SQLiteStore) RecentAttempts(ctx context.Context, limit int) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT attempt_id, question_id, user_answer, is_correct, topic, subject, difficulty, attempted_at
		 FROM attempts ORDER BY attempted_at DESC, attempt_id DESC LIMIT ?`, recentLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("recent attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var diff, at string
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.UserAnswer, &a.Correct, &a.Topic, &a.Subject, &diff, &at); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Difficulty = question.Difficulty(diff)
		if a.AttemptedAt, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("parsing attempted_at: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetTopicStats(ctx context.Context, topic, subject string) (TopicStats, error) {
	st, err := scanSQLiteStats(s.db.QueryRowContext(ctx,
		`SELECT topic, subject, total_attempts, correct_count, accuracy, current_difficulty, last_updated
		 FROM topic_stats WHERE topic = ? AND subject = ?`, topic, subject))
	if errors.Is(err, sql.ErrNoRows) {
		return TopicStats{}, fmt.Errorf("stats for %s/%s: %w", subject, topic, ErrNotFound)
	}
	if err != nil {
		return TopicStats{}, fmt.Errorf("get topic stats: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) ListTopicStats(ctx context.Context) ([]TopicStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT topic, subject, total_attempts, correct_count, accuracy, current_difficulty, last_updated
		 FROM topic_stats ORDER BY subject, topic`)
	if err != nil {
		return nil, fmt.Errorf("list topic stats: %w", err)
	}
	defer rows.Close()

	var out []TopicStats
	for rows.Next() {
		st, err := scanSQLiteStats(rows)
		if err != nil {
			return nil, fmt.Errorf("scan topic stats: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
