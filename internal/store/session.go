package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is a stored credential session.  Sessions are never expired or
// deleted by the server; they live until the operator purges them.
type Session struct {
	ID         string    `db:"SESSION_ID"`
	Credential string    `db:"CREDENTIAL"`
	CreatedAt  time.Time `db:"CREATED_AT"`
	LastUsedAt time.Time `db:"LAST_USED_AT"`
}

// CreateSession persists credential under a freshly generated session id and
// returns the id.  Random UUIDs make concurrent creates collision-free and
// the id non-guessable.
func (s *Store) CreateSession(ctx context.Context, credential string) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.conn.ExecContext(ctx,
		"INSERT INTO SESSION (SESSION_ID, CREDENTIAL, CREATED_AT, LAST_USED_AT) VALUES (?, ?, ?, ?)",
		id, credential, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// Credential looks up the credential stored under id.  Returns
// ErrSessionNotFound for an unknown id.
func (s *Store) Credential(ctx context.Context, id string) (string, error) {
	var cred string
	err := s.conn.GetContext(ctx, &cred, "SELECT CREDENTIAL FROM SESSION WHERE SESSION_ID = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup session: %w", err)
	}
	return cred, nil
}

// Touch updates the session's last-used timestamp.  Callers treat a failure
// as non-fatal.
func (s *Store) Touch(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx,
		"UPDATE SESSION SET LAST_USED_AT = ? WHERE SESSION_ID = ?",
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Session returns the full session record for id.
func (s *Store) Session(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.conn.GetContext(ctx, &sess, "SELECT * FROM SESSION WHERE SESSION_ID = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}
