package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"biztrack/internal/api"
	"biztrack/internal/core"
	"biztrack/internal/log"
	"biztrack/internal/session"
)

// DefaultCheckInterval is how often Run re-checks the subscription.
const DefaultCheckInterval = 5 * time.Minute

// AccountBackend is the part of the users API the subscription flow needs.
type AccountBackend interface {
	UpdateAccountType(ctx context.Context, userID, token string, t core.AccountType) (string, error)
	ValidateReceipt(ctx context.Context, receiptData []byte) (*time.Time, error)
}

// AccountSession reads and updates the session's account type.
type AccountSession interface {
	Current(ctx context.Context) (session.Session, error)
	SetAccountType(ctx context.Context, t core.AccountType) (session.Session, error)
}

// CheckFunc reports whether the subscription is active.
type CheckFunc func(ctx context.Context) (bool, error)

// SubscriptionService keeps the account type in step with the subscription.
type SubscriptionService struct {
	users    AccountBackend
	sessions AccountSession
	logger   *log.Logger
	now      func() time.Time
}

func NewSubscriptionService(users AccountBackend, sessions AccountSession, logger *log.Logger) *SubscriptionService {
	if logger == nil {
		logger = log.Discard()
	}
	return &SubscriptionService{
		users:    users,
		sessions: sessions,
		logger:   logger.WithComponent(log.ComponentSubscription),
		now:      time.Now,
	}
}

// Sync downgrades the account to free when the subscription is no longer
// active. The local session is downgraded even if the backend call fails.
func (s *SubscriptionService) Sync(ctx context.Context, active bool) (core.AccountType, error) {
	sess, err := s.sessions.Current(ctx)
	if err != nil {
		return "", fmt.Errorf("sync subscription: %w", err)
	}
	if active || sess.AccountType == core.AccountFree {
		return sess.AccountType, nil
	}

	if _, err := s.sessions.SetAccountType(ctx, core.AccountFree); err != nil {
		return sess.AccountType, fmt.Errorf("sync subscription: %w", err)
	}
	msg, err := s.users.UpdateAccountType(ctx, sess.UserID, sess.Token, core.AccountFree)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to downgrade account on backend",
			log.FieldUserID, sess.UserID,
			log.FieldError, err.Error())
		return core.AccountFree, fmt.Errorf("sync subscription: %w", err)
	}

	s.logger.InfoContext(ctx, "Subscription inactive, account downgraded",
		log.FieldUserID, sess.UserID,
		log.FieldOperation, log.OpSync,
		"message", msg)
	return core.AccountFree, nil
}

// Activate validates an app store receipt and upgrades the account to paid.
func (s *SubscriptionService) Activate(ctx context.Context, receiptData []byte) (*time.Time, error) {
	sess, err := s.sessions.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("activate subscription: %w", err)
	}

	expiry, err := s.users.ValidateReceipt(ctx, receiptData)
	if err != nil {
		return nil, fmt.Errorf("activate subscription: %w", err)
	}
	if expiry != nil && !expiry.After(s.now()) {
		return expiry, fmt.Errorf("activate subscription: %w: expired %s", api.ErrReceiptRejected, expiry.Format(time.RFC3339))
	}

	if _, err := s.users.UpdateAccountType(ctx, sess.UserID, sess.Token, core.AccountPaid); err != nil {
		return expiry, fmt.Errorf("activate subscription: %w", err)
	}
	if _, err := s.sessions.SetAccountType(ctx, core.AccountPaid); err != nil {
		return expiry, fmt.Errorf("activate subscription: %w", err)
	}

	s.logger.InfoContext(ctx, "Subscription activated",
		log.FieldUserID, sess.UserID,
		log.FieldOperation, log.OpValidate)
	return expiry, nil
}

// ReceiptCheck treats the subscription as active while the receipt validates
// and has not expired.
func (s *SubscriptionService) ReceiptCheck(receiptData []byte) CheckFunc {
	return func(ctx context.Context) (bool, error) {
		expiry, err := s.users.ValidateReceipt(ctx, receiptData)
		if errors.Is(err, api.ErrReceiptRejected) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return expiry == nil || expiry.After(s.now()), nil
	}
}

// Run checks the subscription every interval until ctx is done. Failed
// checks are logged and skipped.
func (s *SubscriptionService) Run(ctx context.Context, interval time.Duration, check CheckFunc) error {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "Subscription checks started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Subscription checks stopped", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			s.CheckNow(ctx, check)
		}
	}
}

// CheckNow runs one check and syncs the account with its result.
func (s *SubscriptionService) CheckNow(ctx context.Context, check CheckFunc) {
	active, err := check(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Subscription check failed", log.FieldError, err.Error())
		return
	}
	if _, err := s.Sync(ctx, active); err != nil && !errors.Is(err, session.ErrNoSession) {
		s.logger.WarnContext(ctx, "Subscription sync failed", log.FieldError, err.Error())
	}
}
