// Package users manages the account store backing login and the access
// tokens issued from it.
package users

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound means no account exists under that name.
	ErrNotFound = errors.New("user not found")
	// ErrBadCredentials means the password did not verify.
	ErrBadCredentials = errors.New("password verification failed")
	// ErrExists means the account name is already taken.
	ErrExists = errors.New("user already exists")
)

// User is one account. The password hash never leaves the store.
type User struct {
	PublicID string `json:"public_id"`
	Name     string `json:"name"`
	Admin    bool   `json:"admin"`
}

// Store is the sqlite-backed account database.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the account database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS users (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			public_id TEXT NOT NULL UNIQUE,
			name      TEXT NOT NULL UNIQUE,
			password  TEXT NOT NULL,
			admin     INTEGER NOT NULL DEFAULT 0
		)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing user schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create registers a new account with a bcrypt-hashed password.
func (s *Store) Create(name, password string, admin bool) (User, error) {
	var exists int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM users WHERE name = ?`, name).Scan(&exists)
	if err != nil {
		return User{}, err
	}
	if exists > 0 {
		return User{}, fmt.Errorf("%w: %s", ErrExists, name)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{PublicID: uuid.NewString(), Name: name, Admin: admin}
	_, err = s.db.Exec(
		`INSERT INTO users (public_id, name, password, admin) VALUES (?, ?, ?, ?)`,
		user.PublicID, user.Name, string(hash), user.Admin,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// Authenticate verifies name/password and returns the account.
func (s *Store) Authenticate(name, password string) (User, error) {
	var user User
	var hash string
	err := s.db.QueryRow(
		`SELECT public_id, name, password, admin FROM users WHERE name = ?`, name,
	).Scan(&user.PublicID, &user.Name, &hash, &user.Admin)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return User{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrBadCredentials
	}
	return user, nil
}

// Delete removes the account with the given name.
func (s *Store) Delete(name string) error {
	res, err := s.db.Exec(`DELETE FROM users WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// List returns all registered accounts.
func (s *Store) List() ([]User, error) {
	rows, err := s.db.Query(`SELECT public_id, name, admin FROM users ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.PublicID, &user.Name, &user.Admin); err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, rows.Err()
}
