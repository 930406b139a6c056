// Package storage persists QueryLinker user accounts.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/querylinker/internal/models"
)

// ErrUserNotFound is returned when no user matches a lookup.
var ErrUserNotFound = errors.New("user not found")

// ErrIdentityConflict is returned when a sign-in identity matches an existing
// account by email but may not be linked to it.
var ErrIdentityConflict = errors.New("identity conflicts with an existing account")

// UserStore defines user persistence operations.
type UserStore interface {
	// UpsertOAuthUser creates the user for identity, or updates the profile of the
	// user already linked to the same Google subject. An unlinked account with
	// the same email is linked only when the email is verified; otherwise
	// ErrIdentityConflict is returned.
	UpsertOAuthUser(ctx context.Context, identity *models.OAuthIdentity) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	CountUsers(ctx context.Context) (int64, error)

	Close() error
}
