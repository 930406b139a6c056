// Package auth implements Google sign-in and the signed tokens QueryLinker
// issues for sessions and password resets.
package auth

import "errors"

var (
	// ErrConfigurationMissing is returned before any network call when the OAuth
	// client registration is incomplete.
	ErrConfigurationMissing = errors.New("google oauth is not configured")

	// ErrAuthenticationFailed is the generic failure returned to callers; the
	// underlying cause is logged, never exposed.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrInvalidToken is returned for malformed, expired or mis-purposed tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
)
