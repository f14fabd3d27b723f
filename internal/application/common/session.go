package common

import (
	"context"
	"time"
)

// Session identifies the authenticated player on this device. The token
// travels with every ledger call.
type Session struct {
	ID         int
	PlayerName string
	Token      string
	CreatedAt  time.Time
	LastActive *time.Time
}

// SessionRepository persists the device's session
type SessionRepository interface {
	Save(ctx context.Context, session *Session) error

	// FindByPlayerName returns (nil, nil) when no session is stored for
	// the player. Callers create the session on that path.
	FindByPlayerName(ctx context.Context, playerName string) (*Session, error)

	Touch(ctx context.Context, id int) error
}
