package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/hyperjump/querylinker/internal/config"
	"github.com/hyperjump/querylinker/internal/models"
	"go.uber.org/zap"
)

// Token purposes.
const (
	PurposeSession       = "session"
	PurposePasswordReset = "password_reset"
)

// PasswordResetTTL is how long a password-reset link stays valid.
const PasswordResetTTL = 15 * time.Minute

const issuer = "querylinker"

// Claims is the payload of every token QueryLinker signs.
type Claims struct {
	UserID  string `json:"uid,omitempty"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// SessionToken is an issued session token and its expiry.
type SessionToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Tokens signs and verifies HS256 session and password-reset tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a token issuer. Without a configured secret a random one is
// generated, so issued tokens stop validating when the process restarts.
func NewTokens(cfg config.SessionConfig, logger *zap.Logger) (*Tokens, error) {
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		if logger != nil {
			logger.Warn("no session secret configured; using an ephemeral one")
		}
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{secret: secret, ttl: ttl, now: time.Now}, nil
}

// IssueSession signs a session token for user.
func (t *Tokens) IssueSession(user *models.User) (*SessionToken, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	token, err := t.sign(&Claims{
		UserID:  user.ID,
		Email:   user.Email,
		Name:    user.Name,
		Purpose: PurposeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}, now)
	if err != nil {
		return nil, err
	}
	return &SessionToken{Token: token, ExpiresAt: exp}, nil
}

// ParseSession verifies a session token and returns its claims.
func (t *Tokens) ParseSession(token string) (*Claims, error) {
	return t.parse(token, PurposeSession)
}

// IssuePasswordReset signs a reset token bound to email.
func (t *Tokens) IssuePasswordReset(email string) (string, error) {
	now := t.now()
	email = strings.ToLower(strings.TrimSpace(email))
	return t.sign(&Claims{
		Email:   email,
		Purpose: PurposePasswordReset,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(now.Add(PasswordResetTTL)),
		},
	}, now)
}

// VerifyPasswordReset returns the email a valid reset token was issued for.
func (t *Tokens) VerifyPasswordReset(token string) (string, error) {
	claims, err := t.parse(token, PurposePasswordReset)
	if err != nil {
		return "", err
	}
	return claims.Email, nil
}

func (t *Tokens) sign(claims *Claims, now time.Time) (string, error) {
	claims.Issuer = issuer
	claims.ID = uuid.NewString()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (t *Tokens) parse(token, purpose string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if claims.Purpose != purpose || claims.Issuer != issuer {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
