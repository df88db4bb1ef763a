package store

import (
	"context"
	"fmt"
	"time"
)

// Interaction is one record of the append-only tool invocation log.
type Interaction struct {
	ID        int64     `db:"ID"`
	SessionID *string   `db:"SESSION_ID"`
	Tool      string    `db:"TOOL_NAME"`
	Request   string    `db:"REQUEST"`
	Response  string    `db:"RESPONSE"`
	CreatedAt time.Time `db:"CREATED_AT"`
}

// LogInteraction appends one record.  The dispatcher calls this after every
// tool invocation, success or failure; it is the caller's job to keep a
// failure here from affecting the tool result.
func (s *Store) LogInteraction(ctx context.Context, it Interaction) error {
	_, err := s.conn.ExecContext(ctx,
		"INSERT INTO INTERACTION_LOG (SESSION_ID, TOOL_NAME, REQUEST, RESPONSE, CREATED_AT) VALUES (?, ?, ?, ?, ?)",
		it.SessionID, it.Tool, it.Request, it.Response, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("log interaction: %w", err)
	}
	return nil
}

// Interactions returns up to limit most recent log records, newest first.
// Used by tests and operator tooling.
func (s *Store) Interactions(ctx context.Context, limit int) ([]Interaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Interaction
	err := s.conn.SelectContext(ctx, &out,
		"SELECT * FROM INTERACTION_LOG ORDER BY ID DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	return out, nil
}
