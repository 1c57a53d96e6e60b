// Package auth implements the credential, role, and per-user limit
// store of spec.md §4.D. Grounded on the teacher's
// internal/database/db_nntp_users.go (bcrypt-backed user CRUD) and
// internal/nntp/nntp-auth-manager.go (the thin authentication facade
// command handlers call through), generalized to Argon2id per spec.md
// §3 and extended with the admin/moderator/limits/usage tables the
// teacher's NNTP-user table doesn't carry.
package auth

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nntpcore/newsd/internal/nntperr"
	"github.com/nntpcore/newsd/internal/wildmat"
)

// Store is the concurrent-safe handle to the auth database.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the sqlite auth database at dsn.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, nntperr.Wrap(nntperr.KindDatabase, "open auth database", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, nntperr.Wrap(nntperr.KindDatabase, "apply auth schema", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// AddUser creates a user with a freshly hashed password, no PGP key.
func (s *Store) AddUser(username, password string) error {
	return s.AddUserWithKey(username, password, "")
}

// AddUserWithKey creates a user with a freshly hashed password and an
// optional armored PGP public key.
func (s *Store) AddUserWithKey(username, password, pgpKey string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "hash password", err)
	}
	var key interface{}
	if pgpKey != "" {
		key = pgpKey
	}
	_, err = s.db.Exec(`INSERT INTO users(username, password, pgp_key, created_at) VALUES (?, ?, ?, ?)`,
		username, hash, key, time.Now().Unix())
	if err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "add user", err)
	}
	return nil
}

// UpdatePassword rehashes and stores a new password for username.
func (s *Store) UpdatePassword(username, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "hash password", err)
	}
	res, err := s.db.Exec(`UPDATE users SET password = ? WHERE username = ?`, hash, username)
	if err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "update password", err)
	}
	return requireRowAffected(res)
}

// RemoveUser deletes username, cascading to admins/moderators/limits/usage
// via the schema's ON DELETE CASCADE.
func (s *Store) RemoveUser(username string) error {
	res, err := s.db.Exec(`DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "remove user", err)
	}
	return requireRowAffected(res)
}

// VerifyUser checks username/password, returning InvalidCredentials or
// UserNotFound on failure.
func (s *Store) VerifyUser(username, password string) error {
	var hash string
	err := s.db.QueryRow(`SELECT password FROM users WHERE username = ?`, username).Scan(&hash)
	if err == sql.ErrNoRows {
		return nntperr.New(nntperr.KindUserNotFound, "no such user")
	}
	if err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "verify user", err)
	}
	if !verifyPassword(password, hash) {
		return nntperr.New(nntperr.KindInvalidCredentials, "invalid password")
	}
	return nil
}

// IsAdmin reports whether username is in the admins table.
func (s *Store) IsAdmin(username string) bool {
	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM admins WHERE username = ?`, username).Scan(&exists)
	return err == nil
}

// AddAdmin marks username as an admin, optionally updating their PGP key.
func (s *Store) AddAdmin(username, pgpKey string) error {
	if pgpKey != "" {
		if err := s.UpdatePGPKey(username, pgpKey); err != nil {
			return err
		}
	}
	return s.AddAdminWithoutKey(username)
}

// AddAdminWithoutKey marks username as an admin without touching their PGP key.
func (s *Store) AddAdminWithoutKey(username string) error {
	_, err := s.db.Exec(`INSERT INTO admins(username) VALUES (?) ON CONFLICT(username) DO NOTHING`, username)
	if err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "add admin", err)
	}
	return nil
}

// RemoveAdmin revokes admin status from username.
func (s *Store) RemoveAdmin(username string) error {
	_, err := s.db.Exec(`DELETE FROM admins WHERE username = ?`, username)
	if err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "remove admin", err)
	}
	return nil
}

// UpdatePGPKey stores username's armored public key.
func (s *Store) UpdatePGPKey(username, pgpKey string) error {
	res, err := s.db.Exec(`UPDATE users SET pgp_key = ? WHERE username = ?`, pgpKey, username)
	if err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "update pgp key", err)
	}
	return requireRowAffected(res)
}

// GetPGPKey returns username's armored public key, or ("", false) if unset/unknown.
func (s *Store) GetPGPKey(username string) (string, bool) {
	var key sql.NullString
	err := s.db.QueryRow(`SELECT pgp_key FROM users WHERE username = ?`, username).Scan(&key)
	if err != nil || !key.Valid || key.String == "" {
		return "", false
	}
	return key.String, true
}

// AddModerator grants username moderator status over groups matching pattern.
func (s *Store) AddModerator(username, pattern string) error {
	_, err := s.db.Exec(`INSERT INTO moderators(username, pattern) VALUES (?, ?) ON CONFLICT(username, pattern) DO NOTHING`,
		username, pattern)
	if err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "add moderator", err)
	}
	return nil
}

// RemoveModerator revokes username's moderator status for pattern.
func (s *Store) RemoveModerator(username, pattern string) error {
	_, err := s.db.Exec(`DELETE FROM moderators WHERE username = ? AND pattern = ?`, username, pattern)
	if err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "remove moderator", err)
	}
	return nil
}

// IsModerator reports whether username moderates group: true iff some
// moderator row for username wildmat-matches group.
func (s *Store) IsModerator(username, group string) bool {
	rows, err := s.db.Query(`SELECT pattern FROM moderators WHERE username = ?`, username)
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var pattern string
		if rows.Scan(&pattern) == nil && wildmat.Match(group, pattern) {
			return true
		}
	}
	return false
}

// ModeratorsOf returns every username that moderates group, used by the
// moderation filter to resolve which Approved values count.
func (s *Store) ModeratorsOf(group string) ([]string, error) {
	rows, err := s.db.Query(`SELECT username, pattern FROM moderators`)
	if err != nil {
		return nil, nntperr.Wrap(nntperr.KindDatabase, "list moderators", err)
	}
	defer rows.Close()
	seen := map[string]bool{}
	var out []string
	for rows.Next() {
		var username, pattern string
		if err := rows.Scan(&username, &pattern); err != nil {
			return nil, nntperr.Wrap(nntperr.KindDatabase, "scan moderator", err)
		}
		if !seen[username] && wildmat.Match(group, pattern) {
			seen[username] = true
			out = append(out, username)
		}
	}
	return out, rows.Err()
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "rows affected", err)
	}
	if n == 0 {
		return nntperr.New(nntperr.KindUserNotFound, "no such user")
	}
	return nil
}
