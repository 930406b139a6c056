package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/querylinker/internal/models"
)

// SQLiteStorage implements UserStore using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to :memory: would otherwise see its own empty database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		picture_url TEXT NOT NULL DEFAULT '',
		google_subject TEXT UNIQUE,
		email_verified INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_google_subject ON users(google_subject);
	`
	_, err := db.Exec(schema)
	return err
}

const userColumns = `id, email, name, picture_url, COALESCE(google_subject, ''), email_verified, created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PictureURL, &u.GoogleSubject, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UpsertOAuthUser matches on Google subject first, then on email, so an account
// created before Google sign-in is linked rather than duplicated. Linking by
// email requires a verified email and a row with no subject yet.
func (s *SQLiteStorage) UpsertOAuthUser(ctx context.Context, identity *models.OAuthIdentity) (*models.User, error) {
	if identity == nil || identity.SubjectID == "" || identity.Email == "" {
		return nil, fmt.Errorf("identity requires subject and email")
	}
	email := normalizeEmail(identity.Email)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	bySubject, err := lookupID(ctx, tx, `SELECT id FROM users WHERE google_subject = ?`, identity.SubjectID)
	if err != nil {
		return nil, err
	}
	byEmail, err := lookupID(ctx, tx, `SELECT id FROM users WHERE email = ?`, email)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	id := bySubject
	switch {
	case bySubject != "" && byEmail != "" && byEmail != bySubject:
		// The new email belongs to another account; keep the old one.
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET name = ?, picture_url = ?, updated_at = ? WHERE id = ?`,
			identity.Name, identity.PictureURL, now, id,
		)
	case bySubject != "":
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET email = ?, name = ?, picture_url = ?, email_verified = ?, updated_at = ? WHERE id = ?`,
			email, identity.Name, identity.PictureURL, identity.EmailVerified, now, id,
		)
	case byEmail != "":
		var subject string
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(google_subject, '') FROM users WHERE id = ?`, byEmail,
		).Scan(&subject); err != nil {
			return nil, fmt.Errorf("failed to look up user: %w", err)
		}
		if !identity.EmailVerified || subject != "" {
			return nil, ErrIdentityConflict
		}
		id = byEmail
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET name = ?, picture_url = ?, google_subject = ?, email_verified = 1, updated_at = ? WHERE id = ?`,
			identity.Name, identity.PictureURL, identity.SubjectID, now, id,
		)
	default:
		id = uuid.NewString()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO users (id, email, name, picture_url, google_subject, email_verified, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, email, identity.Name, identity.PictureURL, identity.SubjectID, identity.EmailVerified, now, now,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	user, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return user, nil
}

// lookupID returns the id selected by query, or "" when no row matches.
func lookupID(ctx context.Context, tx *sql.Tx, query string, arg string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, query, arg).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up user: %w", err)
	}
	return id, nil
}

// GetUserByEmail returns the user with the given email (case-insensitive).
func (s *SQLiteStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email)))
}

// GetUserByID returns the user with the given ID.
func (s *SQLiteStorage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// CountUsers returns the number of stored users.
func (s *SQLiteStorage) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
