package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/querylinker/internal/auth"
	"github.com/hyperjump/querylinker/internal/models"
	"github.com/hyperjump/querylinker/internal/search"
	"github.com/hyperjump/querylinker/internal/storage"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// passwordResetMessage is returned whether or not the account exists.
const passwordResetMessage = "If an account exists for that email, a password reset link has been sent."

func (s *Server) handleEnhancedSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := s.decode(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request",
		zap.String("query", req.Query),
		zap.Strings("systems", req.Systems),
		zap.Bool("semantic", req.UseSemantic),
	)
	response, err := s.deps.Search.Search(r.Context(), &req)
	if err != nil {
		status := searchErrorStatus(err)
		if status >= 500 {
			s.logger.Error("search failed", zap.Error(err))
		}
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func searchErrorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrEmptyQuery), errors.Is(err, search.ErrUnknownSystem):
		return http.StatusBadRequest
	case errors.Is(err, search.ErrSemanticRanking):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) handleSystems(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string][]string{"systems": s.deps.Search.Systems()})
}

func (s *Server) handleGoogleURL(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	authURL, err := s.deps.Google.GenerateAuthURL(state)
	if err != nil {
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"url": authURL, "state": state})
}

type authResponse struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message,omitempty"`
	Token     string       `json:"token,omitempty"`
	ExpiresAt string       `json:"expiresAt,omitempty"`
	User      *models.User `json:"user,omitempty"`
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := s.decode(w, r, &body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	identity, err := s.deps.Google.ExchangeCodeForIdentity(r.Context(), body.Code)
	s.completeSignIn(w, r, identity, err)
}

func (s *Server) handleGoogleVerify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Credential string `json:"credential"`
	}
	if err := s.decode(w, r, &body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	identity, err := s.deps.Google.VerifyIdentityToken(r.Context(), body.Credential)
	s.completeSignIn(w, r, identity, err)
}

// completeSignIn stores the verified identity and issues a session token.
func (s *Server) completeSignIn(w http.ResponseWriter, r *http.Request, identity *models.OAuthIdentity, err error) {
	switch {
	case errors.Is(err, auth.ErrConfigurationMissing):
		s.respondJSON(w, http.StatusServiceUnavailable, authResponse{Message: "google sign-in is not configured"})
		return
	case err != nil:
		s.respondJSON(w, http.StatusUnauthorized, authResponse{Message: auth.ErrAuthenticationFailed.Error()})
		return
	}

	user, err := s.deps.Users.UpsertOAuthUser(r.Context(), identity)
	if errors.Is(err, storage.ErrIdentityConflict) {
		s.logger.Warn("sign-in refused: email belongs to another account", zap.String("subject", identity.SubjectID))
		s.respondJSON(w, http.StatusConflict, authResponse{Message: err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("failed to store user", zap.Error(err))
		s.respondJSON(w, http.StatusInternalServerError, authResponse{Message: "failed to store user"})
		return
	}
	session, err := s.deps.Tokens.IssueSession(user)
	if err != nil {
		s.logger.Error("failed to issue session", zap.Error(err))
		s.respondJSON(w, http.StatusInternalServerError, authResponse{Message: "failed to issue session"})
		return
	}
	s.logger.Info("user signed in", zap.String("user_id", user.ID))
	s.respondJSON(w, http.StatusOK, authResponse{
		Success:   true,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
		User:      user,
	})
}

// sessionUser resolves the user behind a "Authorization: Bearer <session>"
// header. On failure it writes the error response and returns nil.
func (s *Server) sessionUser(w http.ResponseWriter, r *http.Request) *models.User {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		s.respondError(w, http.StatusUnauthorized, "missing session token")
		return nil
	}
	claims, err := s.deps.Tokens.ParseSession(strings.TrimSpace(token))
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, auth.ErrInvalidToken.Error())
		return nil
	}
	user, err := s.deps.Users.GetUserByID(r.Context(), claims.UserID)
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		s.respondError(w, http.StatusUnauthorized, auth.ErrInvalidToken.Error())
		return nil
	case err != nil:
		s.logger.Error("session user lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to load user")
		return nil
	}
	return user
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := s.sessionUser(w, r)
	if user == nil {
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]*models.User{"user": user})
}

func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := s.decode(w, r, &body); err != nil || strings.TrimSpace(body.Email) == "" {
		s.respondError(w, http.StatusBadRequest, "email is required")
		return
	}

	user, err := s.deps.Users.GetUserByEmail(r.Context(), body.Email)
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		s.logger.Debug("password reset requested for unknown email")
	case err != nil:
		s.logger.Error("password reset lookup failed", zap.Error(err))
	default:
		s.sendPasswordReset(r.Context(), user)
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": passwordResetMessage})
}

func (s *Server) sendPasswordReset(ctx context.Context, user *models.User) {
	token, err := s.deps.Tokens.IssuePasswordReset(user.Email)
	if err != nil {
		s.logger.Error("failed to issue reset token", zap.Error(err))
		return
	}
	link := fmt.Sprintf("%s/reset-password?token=%s",
		strings.TrimRight(s.config.Server.PublicURL, "/"), url.QueryEscape(token))
	result := s.deps.Mailer.SendPasswordReset(ctx, user.Name, link, user.Email)
	if !result.Success {
		s.logger.Warn("password reset email not delivered",
			zap.String("user_id", user.ID),
			zap.String("error", result.Error),
		)
	}
}

func (s *Server) handlePasswordResetVerify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := s.decode(w, r, &body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	email, err := s.deps.Tokens.VerifyPasswordReset(body.Token)
	if err != nil {
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"valid": false})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"valid": true, "email": email})
}

// handleTestEmail sends a test message. Only signed-in users may use it.
func (s *Server) handleTestEmail(w http.ResponseWriter, r *http.Request) {
	user := s.sessionUser(w, r)
	if user == nil {
		return
	}
	var body struct {
		To string `json:"to"`
	}
	if err := s.decode(w, r, &body); err != nil || strings.TrimSpace(body.To) == "" {
		s.respondError(w, http.StatusBadRequest, "recipient is required")
		return
	}
	result := s.deps.Mailer.SendEmail(r.Context(), body.To,
		"QueryLinker test email",
		"<p>This is a test email from <strong>QueryLinker</strong>. Mail delivery is working.</p>",
		"",
	)
	s.logger.Info("test email requested", zap.String("user_id", user.ID), zap.Bool("success", result.Success))
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	s.respondJSON(w, status, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Users.CountUsers(r.Context())
	if err != nil {
		s.logger.Error("status: count users failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"users":     users,
		"systems":   s.deps.Search.Systems(),
		"embedding": s.deps.Embedder,
	}
	if s.config != nil {
		resp["mail_transport"] = s.config.Mail.Transport
		resp["google_oauth"] = s.config.Auth.Google.Configured()
		if size, err := storage.DatabaseSize(s.config.Storage.DatabasePath); err == nil {
			resp["database_bytes"] = size
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
