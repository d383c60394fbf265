package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sqlorc/core/internal/model"
	"github.com/sqlorc/core/internal/storage"
)

// PostgresStore is a Store backed by internal/storage.DB's shared
// connection pool, repurposed here from decision-session grouping to
// thread/message/usage storage. Threads, messages, token usage, and
// used-database sets are durable across restarts.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-connected DB. Callers run the
// migrations in migrations/ before first use.
func NewPostgresStore(db *storage.DB) *PostgresStore {
	return &PostgresStore{pool: db.Pool()}
}

func (s *PostgresStore) CreateThread(ctx context.Context, name string) (model.Thread, error) {
	var t model.Thread
	err := s.pool.QueryRow(ctx,
		`INSERT INTO threads (id, name, created_at) VALUES (gen_random_uuid(), $1, now())
		 RETURNING id, name, created_at`, name,
	).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err != nil {
		return model.Thread{}, fmt.Errorf("session: create thread: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) GetThread(ctx context.Context, id uuid.UUID) (model.Thread, error) {
	var t model.Thread
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM threads WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Thread{}, ErrThreadNotFound
	}
	if err != nil {
		return model.Thread{}, fmt.Errorf("session: get thread: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListThreads(ctx context.Context) ([]model.Thread, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, created_at FROM threads ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("session: list threads: %w", err)
	}
	defer rows.Close()

	var out []model.Thread
	for rows.Next() {
		var t model.Thread
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("session: scan thread: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddMessage(ctx context.Context, threadID uuid.UUID, sender model.Sender, content string, metadata map[string]any) (model.Message, error) {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return model.Message{}, fmt.Errorf("session: marshal metadata: %w", err)
	}

	var m model.Message
	err = s.pool.QueryRow(ctx,
		`INSERT INTO messages (id, thread_id, sender, content, metadata, created_at)
		 SELECT gen_random_uuid(), $1, $2, $3, $4, now()
		 WHERE EXISTS (SELECT 1 FROM threads WHERE id = $1)
		 RETURNING id, thread_id, sender, content, metadata, created_at`,
		threadID, string(sender), content, meta,
	).Scan(&m.ID, &m.ThreadID, &m.Sender, &m.Content, &meta, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Message{}, ErrThreadNotFound
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("session: add message: %w", err)
	}
	if len(meta) > 0 && string(meta) != "null" {
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return model.Message{}, fmt.Errorf("session: unmarshal metadata: %w", err)
		}
	}
	return m, nil
}

func (s *PostgresStore) GetMessages(ctx context.Context, threadID uuid.UUID) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, thread_id, sender, content, metadata, created_at
		 FROM messages WHERE thread_id = $1 ORDER BY created_at ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("session: get messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var meta []byte
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Sender, &m.Content, &meta, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("session: scan message: %w", err)
		}
		if len(meta) > 0 && string(meta) != "null" {
			if err := json.Unmarshal(meta, &m.Metadata); err != nil {
				return nil, fmt.Errorf("session: unmarshal metadata: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddTokenUsage(ctx context.Context, threadID uuid.UUID, delta model.TokenUsage) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO token_usage (thread_id, input_tokens, output_tokens, total_tokens, call_count)
		 SELECT $1, $2, $3, $4, $5 WHERE EXISTS (SELECT 1 FROM threads WHERE id = $1)
		 ON CONFLICT (thread_id) DO UPDATE SET
		   input_tokens = token_usage.input_tokens + excluded.input_tokens,
		   output_tokens = token_usage.output_tokens + excluded.output_tokens,
		   total_tokens = token_usage.total_tokens + excluded.total_tokens,
		   call_count = token_usage.call_count + excluded.call_count`,
		threadID, delta.InputTokens, delta.OutputTokens, delta.TotalTokens, delta.CallCount,
	)
	if err != nil {
		return fmt.Errorf("session: add token usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrThreadNotFound
	}
	return nil
}

func (s *PostgresStore) GetTokenUsage(ctx context.Context, threadID uuid.UUID) (model.TokenUsage, error) {
	var u model.TokenUsage
	err := s.pool.QueryRow(ctx,
		`SELECT input_tokens, output_tokens, total_tokens, call_count
		 FROM token_usage WHERE thread_id = $1`, threadID,
	).Scan(&u.InputTokens, &u.OutputTokens, &u.TotalTokens, &u.CallCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.TokenUsage{}, nil
	}
	if err != nil {
		return model.TokenUsage{}, fmt.Errorf("session: get token usage: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) AddUsedDatabases(ctx context.Context, threadID uuid.UUID, dbIDs []string) error {
	if len(dbIDs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("session: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM threads WHERE id = $1)`, threadID).Scan(&exists); err != nil {
		return fmt.Errorf("session: check thread: %w", err)
	}
	if !exists {
		return ErrThreadNotFound
	}

	for _, id := range dbIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO used_databases (thread_id, db_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			threadID, id,
		); err != nil {
			return fmt.Errorf("session: add used database: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetUsedDatabases(ctx context.Context, threadID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT db_id FROM used_databases WHERE thread_id = $1 ORDER BY db_id ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("session: get used databases: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("session: scan used database: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
