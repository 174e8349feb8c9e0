package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"biztrack/internal/api"
	"biztrack/internal/core"
	"biztrack/internal/log"
)

// Provider is the auth context handed to everything that talks to the
// backend on the user's behalf.
type Provider struct {
	store  Store
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	current *Session
}

func NewProvider(store Store, logger *log.Logger) *Provider {
	if logger == nil {
		logger = log.Discard()
	}
	return &Provider{
		store:  store,
		logger: logger.WithComponent(log.ComponentSession),
		now:    time.Now,
	}
}

// Current returns the signed-in session or ErrNoSession.
func (p *Provider) Current(ctx context.Context) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		return *p.current, nil
	}
	s, err := p.store.Load(ctx)
	if err != nil {
		return Session{}, err
	}
	if !s.Valid() {
		return Session{}, ErrNoSession
	}
	p.current = &s
	return s, nil
}

// Begin stores the result of a successful login.
func (p *Provider) Begin(ctx context.Context, res api.LoginResult, username string) (Session, error) {
	s := Session{
		UserID:      res.UserID,
		Token:       res.Token,
		AccountType: res.AccountType,
		Username:    username,
		UpdatedAt:   p.now(),
	}
	if !s.Valid() {
		return Session{}, fmt.Errorf("begin session: %w", ErrNoSession)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.Save(ctx, s); err != nil {
		return Session{}, fmt.Errorf("begin session: %w", err)
	}
	p.current = &s

	p.logger.InfoContext(ctx, "Session started",
		log.FieldUserID, s.UserID,
		log.FieldAccountType, s.AccountType.String())
	return s, nil
}

// SetAccountType records an account change for the current session.
func (p *Provider) SetAccountType(ctx context.Context, t core.AccountType) (Session, error) {
	if _, err := core.ParseAccountType(string(t)); err != nil {
		return Session{}, err
	}
	s, err := p.Current(ctx)
	if err != nil {
		return Session{}, err
	}
	if s.AccountType == t {
		return s, nil
	}

	s.AccountType = t
	s.UpdatedAt = p.now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.Save(ctx, s); err != nil {
		return Session{}, fmt.Errorf("update account type: %w", err)
	}
	p.current = &s

	p.logger.InfoContext(ctx, "Account type changed",
		log.FieldUserID, s.UserID,
		log.FieldAccountType, t.String())
	return s, nil
}

// End forgets the session.
func (p *Provider) End(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.Clear(ctx); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	p.current = nil
	p.logger.InfoContext(ctx, "Session ended", log.FieldOperation, log.OpLogout)
	return nil
}
