package chat

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the conversation log.
const Schema = `
CREATE TABLE IF NOT EXISTS chat_conversations (
    seq        BIGSERIAL PRIMARY KEY,
    id         TEXT NOT NULL UNIQUE,
    session_id TEXT NOT NULL,
    agent      TEXT NOT NULL,
    sender     TEXT NOT NULL,
    content    TEXT NOT NULL,
    source     TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_chat_conversations_session ON chat_conversations(session_id, seq);
`

// DB is the subset of *pgxpool.Pool used by [PostgresStore].
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by the chat_conversations table.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps db. Call [PostgresStore.Migrate] to create the table.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes [Schema].
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("chat: migrate: %w", err)
	}
	return nil
}

// Append implements [Store]. Messages are inserted one statement at a time
// in slice order, so seq preserves their order.
func (s *PostgresStore) Append(ctx context.Context, sessionID string, agent Agent, msgs ...Message) error {
	const q = `INSERT INTO chat_conversations (id, session_id, agent, sender, content, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, m := range msgs {
		_, err := s.db.Exec(ctx, q,
			m.ID, sessionID, string(agent), string(m.Sender), m.Content, string(m.Source), m.Timestamp)
		if err != nil {
			return fmt.Errorf("chat: append %q: %w", sessionID, err)
		}
	}
	return nil
}

// Conversation implements [Store]. The agent reported is the one of the
// latest message.
func (s *PostgresStore) Conversation(ctx context.Context, sessionID string) (Conversation, error) {
	const q = `SELECT id, agent, sender, content, source, created_at
		FROM chat_conversations WHERE session_id = $1 ORDER BY seq`
	rows, err := s.db.Query(ctx, q, sessionID)
	if err != nil {
		return Conversation{}, fmt.Errorf("chat: conversation %q: %w", sessionID, err)
	}
	defer rows.Close()

	c := Conversation{SessionID: sessionID}
	for rows.Next() {
		var (
			m                     Message
			agent, sender, source string
		)
		if err := rows.Scan(&m.ID, &agent, &sender, &m.Content, &source, &m.Timestamp); err != nil {
			return Conversation{}, fmt.Errorf("chat: scan message: %w", err)
		}
		m.Sender = Sender(sender)
		m.Source = Source(source)
		c.Agent = Agent(agent)
		c.Messages = append(c.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return Conversation{}, fmt.Errorf("chat: conversation %q: %w", sessionID, err)
	}
	if len(c.Messages) == 0 {
		return Conversation{}, ErrNotFound
	}
	return c, nil
}
