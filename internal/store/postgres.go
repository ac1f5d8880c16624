package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	id         UUID PRIMARY KEY,
	seq        BIGSERIAL NOT NULL,
	client_id  TEXT NOT NULL DEFAULT '',
	username   TEXT NOT NULL,
	text       TEXT NOT NULL,
	sent_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS chat_messages_sent_at_idx ON chat_messages (sent_at, seq);
`

// PostgresStore persists messages in PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and ensures the schema exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the chat_messages table when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate chat_messages: %w", err)
	}
	return nil
}

// Insert stores a single chat message.
func (s *PostgresStore) Insert(ctx context.Context, msg Message) (string, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, client_id, username, text, sent_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, msg.ClientID, msg.Username, msg.Text, msg.Timestamp.UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert message: %w", err)
	}
	return id.String(), nil
}

// Query retrieves messages ordered by send time.
func (s *PostgresStore) Query(ctx context.Context, q Query) ([]Message, error) {
	dir := "ASC"
	if q.Order == Descending {
		dir = "DESC"
	}

	sql := fmt.Sprintf(`
		SELECT id::text, client_id, username, text, sent_at
		FROM chat_messages
		ORDER BY sent_at %[1]s, seq %[1]s`, dir)
	var args []any
	if q.Limit > 0 {
		sql += " LIMIT $1"
		args = append(args, q.Limit)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var (
			m      Message
			sentAt time.Time
		)
		if err := row.Scan(&m.ID, &m.ClientID, &m.Username, &m.Text, &sentAt); err != nil {
			return Message{}, err
		}
		m.Timestamp = sentAt.UTC()
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan messages: %w", err)
	}
	return msgs, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
