package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"biztrack/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists the session in a single-row table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping session database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (Session, error) {
	var (
		sess        Session
		accountType string
		updatedAt   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, token, account_type, username, updated_at FROM session WHERE id = 1`,
	).Scan(&sess.UserID, &sess.Token, &accountType, &sess.Username, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}

	sess.AccountType = core.AccountType(accountType)
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		sess.UpdatedAt = t
	} else {
		slog.WarnContext(ctx, "Ignoring unparseable session timestamp", "updated_at", updatedAt, "error", err)
	}
	return sess, nil
}

func (s *SQLiteStore) Save(ctx context.Context, sess Session) error {
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session (id, user_id, token, account_type, username, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			token = excluded.token,
			account_type = excluded.account_type,
			username = excluded.username,
			updated_at = excluded.updated_at`,
		sess.UserID, sess.Token, string(sess.AccountType), sess.Username,
		sess.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
