package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLiteStore is a Store persisted in a small key/value SQLite database, so
// the session survives restarts the way browser local storage survives reloads.
type SQLiteStore struct {
	conn *sql.DB
	path string

	mu      sync.Mutex
	onWrite []func(token string)
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (or creates) the session database at path.
func Open(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("session: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("session: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("session: apply schema: %w", err)
	}
	return &SQLiteStore{conn: conn, path: path}, nil
}

// OnWrite registers fn to run after this store saves or clears the
// session. fn receives the token now stored, empty after a clear.
func (s *SQLiteStore) OnWrite(fn func(token string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWrite = append(s.onWrite, fn)
}

func (s *SQLiteStore) wrote(token string) {
	s.mu.Lock()
	hooks := append([]func(string){}, s.onWrite...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(token)
	}
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Save writes token, username and the logged-in flag in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, token, username string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`)
	if err != nil {
		return fmt.Errorf("session: prepare save: %w", err)
	}
	defer stmt.Close()

	for _, kv := range [][2]string{
		{KeyToken, token},
		{KeyUsername, username},
		{KeyLoggedIn, "true"},
	} {
		if _, err := stmt.ExecContext(ctx, kv[0], kv[1]); err != nil {
			return fmt.Errorf("session: save %s: %w", kv[0], err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session: commit save: %w", err)
	}
	s.wrote(token)
	return nil
}

// Clear removes the three auth keys. The visited flag is kept.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM kv WHERE key IN (?, ?, ?)`, KeyToken, KeyUsername, KeyLoggedIn)
	if err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	s.wrote("")
	return nil
}

// IsLoggedIn reports whether a non-empty token is stored.
func (s *SQLiteStore) IsLoggedIn(ctx context.Context) bool {
	_, ok := s.Token(ctx)
	return ok
}

// Token returns the stored token.
func (s *SQLiteStore) Token(ctx context.Context) (string, bool) {
	return s.get(ctx, KeyToken)
}

// Username returns the stored username.
func (s *SQLiteStore) Username(ctx context.Context) (string, bool) {
	return s.get(ctx, KeyUsername)
}

// VisitedBefore reports whether the returning-visitor flag is set.
func (s *SQLiteStore) VisitedBefore(ctx context.Context) bool {
	v, ok := s.get(ctx, KeyVisitedBefore)
	return ok && v == "true"
}

// MarkVisited sets the returning-visitor flag.
func (s *SQLiteStore) MarkVisited(ctx context.Context) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, 'true')
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, KeyVisitedBefore)
	if err != nil {
		return fmt.Errorf("session: mark visited: %w", err)
	}
	return nil
}

// ForgetVisit removes the returning-visitor flag.
func (s *SQLiteStore) ForgetVisit(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, KeyVisitedBefore); err != nil {
		return fmt.Errorf("session: forget visit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) loggedInFlag(ctx context.Context) (bool, error) {
	var v string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, KeyLoggedIn).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("session: read flag: %w", err)
	}
	return v == "true", nil
}

// get treats read failures as absence; they are not recoverable by callers
// that only need a yes/no answer.
func (s *SQLiteStore) get(ctx context.Context, key string) (string, bool) {
	var v string
	if err := s.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v); err != nil {
		return "", false
	}
	if v == "" {
		return "", false
	}
	return v, true
}
