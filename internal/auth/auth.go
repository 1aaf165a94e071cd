// Package auth implements the Credential record collaborator (§3, §6):
// an embedded SQLite users table, bcrypt password hashing, and the
// register/login/check operations the out-of-scope auth HTTP endpoints
// expose. Authentication credential hashing is explicitly out of the
// session-layer's scope (§1); this package is the external collaborator
// that scope carves out, not part of the core.
//
// Grounded on rustyguts-bken/server/store/store.go's migration-list pattern
// for the embedded store, and RoseWrightdev-Social-Media/backend/go/post.go
// for bcrypt usage.
package auth

import (
	"database/sql"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	_ "modernc.org/sqlite"
)

var (
	ErrUsernameTaken = errors.New("username already registered")
	ErrInvalidLogin  = errors.New("invalid username or password")
)

// migrations is applied in order, tracked by schema_migrations, following
// the same shape as the teacher pack's rustyguts-bken store.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`,
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		last_login DATETIME
	)`,
}

// Store wraps the users table described in §6.
type Store struct {
	db *sql.DB
}

// Open connects to (creating if absent) the SQLite file at path, in WAL
// mode, and applies any pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	// Every statement is its own idempotent CREATE TABLE IF NOT EXISTS, so
	// re-running the full list on every Open is safe; schema_migrations is
	// still recorded for parity with the teacher pack's versioned-migration
	// convention, in case a future migration isn't naturally idempotent.
	for i, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
		if i == 0 {
			continue // this statement is what creates schema_migrations itself
		}
		if _, err := s.db.Exec(`INSERT OR IGNORE INTO schema_migrations (version) VALUES (?)`, i); err != nil {
			return err
		}
	}
	return nil
}

// Register hashes password with bcrypt and inserts a new user row.
func (s *Store) Register(username, password string) error {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&exists); err != nil {
		return err
	}
	if exists > 0 {
		return ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, string(hash), time.Now(),
	)
	return err
}

// Login verifies a password against the stored hash and stamps last_login.
func (s *Store) Login(username, password string) error {
	var hash string
	err := s.db.QueryRow(`SELECT password_hash FROM users WHERE username = ?`, username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvalidLogin
	}
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidLogin
	}
	_, err = s.db.Exec(`UPDATE users SET last_login = ? WHERE username = ?`, time.Now(), username)
	return err
}

// Exists reports whether username is already registered.
func (s *Store) Exists(username string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&count)
	return count > 0, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
