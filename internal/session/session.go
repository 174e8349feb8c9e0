// Package session keeps the signed-in user's id, token and account type
// between CLI invocations and hands them to the fetch and save flows.
package session

import (
	"context"
	"errors"
	"time"

	"biztrack/internal/core"
)

var ErrNoSession = errors.New("not signed in")

// Session is the persisted auth context.
type Session struct {
	UserID      string           `json:"userId"`
	Token       string           `json:"token"`
	AccountType core.AccountType `json:"accountType"`
	Username    string           `json:"username"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Valid reports whether the session can authenticate requests.
func (s Session) Valid() bool {
	return s.UserID != "" && s.Token != ""
}

// Store persists at most one session.
type Store interface {
	// Load returns ErrNoSession when nothing is stored.
	Load(ctx context.Context) (Session, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
	Close() error
}
