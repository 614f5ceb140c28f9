package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/examino/internal/question"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore applies the schema and returns a store over pool. The
// caller keeps ownership of the pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("applying postgres schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func postgresPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

func (s *PostgresStore) SaveQuestions(ctx context.Context, qs []question.Candidate) (int, error) {
	batch := &pgx.Batch{}
	for _, q := range qs {
		if q.ID == "" {
			return 0, fmt.Errorf("question without ID")
		}
		opts, err := encodeOptions(q.Options)
		if err != nil {
			return 0, err
		}
		var optArg *string
		if opts != nil {
			v := string(opts)
			optArg = &v
		}
		batch.Queue(`INSERT INTO questions (`+questionColumns+`)
			VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (question_id) DO NOTHING`,
			q.ID, string(q.Type), q.Text, optArg, q.Answer,
			q.Topic, q.Subject, q.Unit, string(q.Difficulty),
			q.SourceLabel, q.SourceType, q.QuestionFormat, q.Fingerprint,
		)
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for i := 0; i < batch.Len(); i++ {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("insert question %s: %w", qs[i].ID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func scanPostgresQuestion(row pgx.Row) (Question, error) {
	var q Question
	var typ, diff string
	var opts []byte
	if err := row.Scan(
		&q.ID, &typ, &q.Text, &opts, &q.Answer,
		&q.Topic, &q.Subject, &q.Unit, &diff,
		&q.SourceLabel, &q.SourceType, &q.QuestionFormat, &q.Fingerprint,
		&q.CreatedAt,
	); err != nil {
		return Question{}, err
	}
	q.Type = question.Type(typ)
	q.Difficulty = question.Difficulty(diff)

	var err error
	if q.Options, err = decodeOptions(opts); err != nil {
		return Question{}, err
	}
	return q, nil
}

func (s *PostgresStore) GetQuestion(ctx context.Context, id string) (Question, error) {
	q, err := scanPostgresQuestion(s.pool.QueryRow(ctx,
		`SELECT `+questionColumns+`, created_at FROM questions WHERE question_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Question{}, fmt.Errorf("question %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Question{}, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

func (s *PostgresStore) ListQuestions(ctx context.Context, f QuestionFilter) ([]Question, error) {
	where, args := whereClause(f, postgresPlaceholder)
	args = append(args, f.limit())

	rows, err := s.pool.Query(ctx,
		`SELECT `+questionColumns+`, created_at FROM questions`+where+
			` ORDER BY seq LIMIT `+postgresPlaceholder(len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		q, err := scanPostgresQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountQuestions(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM questions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Subjects(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT subject FROM questions ORDER BY subject`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	subjects, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan subjects: %w", err)
	}
	return subjects, nil
}

func (s *PostgresStore) RecordAttempt(ctx context.Context, a Attempt, update UpdateFunc) (TopicStats, error) {
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = time.Now()
	}
	a.AttemptedAt = a.AttemptedAt.UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return TopicStats{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx,
		`INSERT INTO attempts (question_id, user_answer, is_correct, topic, subject, difficulty, attempted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING attempt_id`,
		a.QuestionID, a.UserAnswer, a.Correct, a.Topic, a.Subject, string(a.Difficulty), a.AttemptedAt,
	).Scan(&a.ID); err != nil {
		return TopicStats{}, fmt.Errorf("insert attempt: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO topic_stats (topic, subject, current_difficulty, last_updated)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (topic, subject) DO NOTHING`,
		a.Topic, a.Subject, string(question.Medium), a.AttemptedAt,
	); err != nil {
		return TopicStats{}, fmt.Errorf("create topic stats: %w", err)
	}

	current, err := scanPostgresStats(tx.QueryRow(ctx,
		`SELECT topic, subject, total_attempts, correct_count, accuracy, current_difficulty, last_updated
		 FROM topic_stats WHERE topic = $1 AND subject = $2
		 FOR UPDATE`, a.Topic, a.Subject))
	if err != nil {
		return TopicStats{}, fmt.Errorf("read topic stats: %w", err)
	}

	next := update(current, a)
	next.Topic, next.Subject = a.Topic, a.Subject
	if _, err := tx.Exec(ctx,
		`UPDATE topic_stats
		 SET total_attempts = $1, correct_count = $2, accuracy = $3, current_difficulty = $4, last_updated = $5
		 WHERE topic = $6 AND subject = $7`,
		next.TotalAttempts, next.CorrectCount, next.Accuracy, string(next.CurrentDifficulty), next.LastUpdated,
		a.Topic, a.Subject,
	); err != nil {
		return TopicStats{}, fmt.Errorf("update topic stats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return TopicStats{}, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

func scanPostgresStats(row pgx.Row) (TopicStats, error) {
	var st TopicStats
	var diff string
	if err := row.Scan(&st.Topic, &st.Subject, &st.TotalAttempts, &st.CorrectCount, &st.Accuracy, &diff, &st.LastUpdated); err != nil {
		return TopicStats{}, err
	}
	st.CurrentDifficulty = question.Difficulty(diff)
	return st, nil
}

func (s *PostgresStore) RecentAttempts(ctx context.Context, limit int) ([]Attempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT attempt_id, question_id, user_answer, is_correct, topic, subject, difficulty, attempted_at
		 FROM attempts ORDER BY attempted_at DESC, attempt_id DESC LIMIT $1`, recentLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("recent attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var diff string
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.UserAnswer, &a.Correct, &a.Topic, &a.Subject, &diff, &a.AttemptedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Difficulty = question.Difficulty(diff)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetTopicStats(ctx context.Context, topic, subject string) (TopicStats, error) {
	st, err := scanPostgresStats(s.pool.QueryRow(ctx,
		`SELECT topic, subject, total_attempts, correct_count, accuracy, current_difficulty, last_updated
		 FROM topic_stats WHERE topic = $1 AND subject = $2`, topic, subject))
	if errors.Is(err, pgx.ErrNoRows) {
		return TopicStats{}, fmt.Errorf("stats for %s/%s: %w", subject, topic, ErrNotFound)
	}
	if err != nil {
		return TopicStats{}, fmt.Errorf("get topic stats: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) ListTopicStats(ctx context.Context) ([]TopicStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT topic, subject, total_attempts, correct_count, accuracy, current_difficulty, last_updated
		 FROM topic_stats ORDER BY subject, topic`)
	if err != nil {
		return nil, fmt.Errorf("list topic stats: %w", err)
	}
	defer rows.Close()

	var out []TopicStats
	for rows.Next() {
		st, err := scanPostgresStats(rows)
		if err != nil {
			return nil, fmt.Errorf("scan topic stats: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close is a no-op; the pool belongs to the caller.
func (s *PostgresStore) Close() error {
	return nil
}
