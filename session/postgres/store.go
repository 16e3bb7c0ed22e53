// Package postgres implements session.Store on the thread_messages table
// created by the crm/postgres migrations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hupe1980/supportdesk/core"
	"github.com/hupe1980/supportdesk/session"
)

// Store persists threads in PostgreSQL.
type Store struct {
	pool        *pgxpool.Pool
	maxMessages int
}

// Options configure a Store.
type Options struct {
	// MaxMessages limits how many trailing messages Load returns (0 = all).
	MaxMessages int
}

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool, optFns ...func(o *Options)) *Store {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{pool: pool, maxMessages: opts.MaxMessages}
}

// Load implements session.Store.
func (s *Store) Load(ctx context.Context, workspaceID, threadID string) ([]core.Content, error) {
	if workspaceID == "" || threadID == "" {
		return nil, session.ErrInvalidThread
	}

	var limit any
	if s.maxMessages > 0 {
		limit = s.maxMessages
	}

	rows, err := s.pool.Query(ctx, `
		SELECT content FROM (
			SELECT seq, content
			FROM thread_messages
			WHERE workspace_id = $1 AND thread_id = $2
			ORDER BY seq DESC
			LIMIT $3
		) recent
		ORDER BY seq ASC
	`, workspaceID, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}
	defer rows.Close()

	msgs := []core.Content{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		var c core.Content
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		msgs = append(msgs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate thread: %w", err)
	}

	for len(msgs) > 0 && msgs[0].Role == core.RoleTool {
		msgs = msgs[1:]
	}
	return msgs, nil
}

// Append implements session.Store. All messages are inserted in one batch
// inside a transaction so a thread never holds half of a turn.
func (s *Store) Append(ctx context.Context, workspaceID, threadID string, contents ...core.Content) error {
	if workspaceID == "" || threadID == "" {
		return session.ErrInvalidThread
	}
	if len(contents) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range contents {
		raw, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
		batch.Queue(`
			INSERT INTO thread_messages (workspace_id, thread_id, role, content)
			VALUES ($1, $2, $3, $4)
		`, workspaceID, threadID, c.Role, raw)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to append thread: %w", err)
		}
		return nil
	})
}

var _ session.Store = (*Store)(nil)
