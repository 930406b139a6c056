package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/querylinker/internal/auth"
	"github.com/hyperjump/querylinker/internal/config"
	"github.com/hyperjump/querylinker/internal/connectors"
	"github.com/hyperjump/querylinker/internal/embedding"
	"github.com/hyperjump/querylinker/internal/models"
	"github.com/hyperjump/querylinker/internal/search"
	"github.com/hyperjump/querylinker/internal/storage"
	"go.uber.org/zap"
	"google.golang.org/api/idtoken"
)

type fakeConnector struct {
	system  string
	results []*models.SearchResult
	err     error
}

func (f *fakeConnector) System() string { return f.system }

func (f *fakeConnector) Search(ctx context.Context, query string, limit int) ([]*models.SearchResult, error) {
	return f.results, f.err
}

type fakeSearcher struct {
	err error
}

func (f *fakeSearcher) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	return nil, f.err
}

func (f *fakeSearcher) Systems() []string { return nil }

type sentMail struct {
	recipient, subject, html, link string
}

type fakeMailer struct {
	sent   []sentMail
	result models.EmailResult
}

func (f *fakeMailer) SendEmail(ctx context.Context, recipient, subject, html, text string) models.EmailResult {
	f.sent = append(f.sent, sentMail{recipient: recipient, subject: subject, html: html})
	return f.result
}

func (f *fakeMailer) SendPasswordReset(ctx context.Context, name, resetLink, recipient string) models.EmailResult {
	f.sent = append(f.sent, sentMail{recipient: recipient, link: resetLink})
	return f.result
}

type fakeVerifier struct {
	payload *idtoken.Payload
	err     error
}

func (f *fakeVerifier) Validate(ctx context.Context, token, audience string) (*idtoken.Payload, error) {
	return f.payload, f.err
}

type testEnv struct {
	server *Server
	store  *storage.SQLiteStorage
	tokens *auth.Tokens
	mailer *fakeMailer
}

func newTestEnv(t *testing.T, searcher Searcher, google *auth.GoogleAuth) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "users.db")
	cfg.Server.PublicURL = "http://ui.example.com/"

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	tokens, err := auth.NewTokens(config.SessionConfig{Secret: "test-secret"}, logger)
	if err != nil {
		t.Fatal(err)
	}
	if google == nil {
		google = auth.NewGoogleAuth(config.GoogleOAuthConfig{}, logger)
	}
	if searcher == nil {
		registry := connectors.NewStaticRegistry(
			&fakeConnector{system: connectors.SystemJira, results: []*models.SearchResult{
				{System: "jira", ID: "OPS-1", Title: "Database timeout", Snippet: "pool exhausted"},
			}},
			&fakeConnector{system: connectors.SystemSlack, err: errors.New("slack down")},
		)
		searcher = search.NewEngine(registry, embedding.NewHashEmbedder(32), cfg.Search, logger)
	}
	mailer := &fakeMailer{result: models.EmailResult{Success: true, Provider: "test", MessageID: "<id@test>"}}
	srv := NewServer(Dependencies{
		Search:   searcher,
		Google:   google,
		Tokens:   tokens,
		Users:    store,
		Mailer:   mailer,
		Embedder: "hash",
	}, cfg, logger)
	return &testEnv{server: srv, store: store, tokens: tokens, mailer: mailer}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return e.doAs(t, "", method, path, body)
}

// doAs sends the request with token as its bearer session when token is set.
func (e *testEnv) doAs(t *testing.T, token, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

// signIn stores a user and returns a session token for it.
func (e *testEnv) signIn(t *testing.T, email string) string {
	t.Helper()
	user, err := e.store.UpsertOAuthUser(context.Background(), &models.OAuthIdentity{
		SubjectID: "sub-" + email, Email: email, EmailVerified: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	session, err := e.tokens.IssueSession(user)
	if err != nil {
		t.Fatal(err)
	}
	return session.Token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestHandleEnhancedSearch(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(t, http.MethodPost, "/api/querylinker/enhanced-search", map[string]interface{}{
		"query":        "database timeout",
		"use_semantic": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp models.SearchResponse
	decodeBody(t, rec, &resp)
	if len(resp.Suggestions) != 1 || resp.Suggestions[0].ID != "OPS-1" {
		t.Errorf("suggestions = %+v", resp.Suggestions)
	}
	if !resp.Semantic {
		t.Error("response should report semantic ranking")
	}
	if _, ok := resp.Errors["slack"]; !ok {
		t.Errorf("slack failure should be reported, errors = %v", resp.Errors)
	}
}

func TestHandleEnhancedSearch_Errors(t *testing.T) {
	tests := []struct {
		name       string
		searcher   Searcher
		body       interface{}
		wantStatus int
	}{
		{"malformed body", nil, "{not json", http.StatusBadRequest},
		{"empty query", nil, map[string]string{"query": "   "}, http.StatusBadRequest},
		{"unknown system", nil, map[string]interface{}{"query": "x", "systems": []string{"jira", "trello"}}, http.StatusBadRequest},
		{"embedding failure", &fakeSearcher{err: fmt.Errorf("%w: provider down", search.ErrSemanticRanking)}, map[string]string{"query": "x"}, http.StatusBadGateway},
		{"deadline", &fakeSearcher{err: context.DeadlineExceeded}, map[string]string{"query": "x"}, http.StatusGatewayTimeout},
		{"unexpected", &fakeSearcher{err: errors.New("boom")}, map[string]string{"query": "x"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.searcher, nil)
			rec := env.do(t, http.MethodPost, "/api/querylinker/enhanced-search", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			var body map[string]string
			decodeBody(t, rec, &body)
			if body["error"] == "" {
				t.Error("error message should be set")
			}
		})
	}
}

func TestHandleSystems(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(t, http.MethodGet, "/api/querylinker/systems", nil)
	var body map[string][]string
	decodeBody(t, rec, &body)
	if got := strings.Join(body["systems"], ","); got != "jira,slack" {
		t.Errorf("systems = %s", got)
	}
}

func TestHandleGoogleURL(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(t, http.MethodGet, "/api/auth/google/url", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured: status = %d", rec.Code)
	}

	google := auth.NewGoogleAuth(config.GoogleOAuthConfig{
		ClientID:     "client-1",
		ClientSecret: "secret",
		RedirectURL:  "http://ui.example.com/auth/callback",
	}, zap.NewNop())
	env = newTestEnv(t, nil, google)
	rec = env.do(t, http.MethodGet, "/api/auth/google/url", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	u, err := url.Parse(body["url"])
	if err != nil {
		t.Fatal(err)
	}
	if body["state"] == "" || u.Query().Get("state") != body["state"] {
		t.Errorf("state mismatch: %v", body)
	}
	if u.Query().Get("client_id") != "client-1" {
		t.Errorf("client_id = %s", u.Query().Get("client_id"))
	}
}

func verifyingGoogle(v *fakeVerifier) *auth.GoogleAuth {
	return auth.NewGoogleAuth(config.GoogleOAuthConfig{ClientID: "client-1"}, zap.NewNop(), auth.WithVerifier(v))
}

func TestHandleGoogleVerify(t *testing.T) {
	v := &fakeVerifier{payload: &idtoken.Payload{
		Subject: "sub-1",
		Claims: map[string]interface{}{
			"email":          "Alice@Example.com",
			"name":           "Alice",
			"email_verified": true,
		},
	}}
	env := newTestEnv(t, nil, verifyingGoogle(v))

	rec := env.do(t, http.MethodPost, "/api/auth/google/verify", map[string]string{"credential": "id-token"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body authResponse
	decodeBody(t, rec, &body)
	if !body.Success || body.Token == "" || body.User == nil {
		t.Fatalf("response = %+v", body)
	}
	if body.User.Email != "alice@example.com" {
		t.Errorf("email = %s", body.User.Email)
	}
	claims, err := env.tokens.ParseSession(body.Token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != body.User.ID {
		t.Errorf("token user = %s, want %s", claims.UserID, body.User.ID)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	me := httptest.NewRecorder()
	env.server.Router().ServeHTTP(me, req)
	if me.Code != http.StatusOK {
		t.Fatalf("me: status = %d", me.Code)
	}
	var meBody map[string]models.User
	decodeBody(t, me, &meBody)
	if meBody["user"].ID != body.User.ID {
		t.Errorf("me user = %+v", meBody["user"])
	}

	n, err := env.store.CountUsers(context.Background())
	if err != nil || n != 1 {
		t.Errorf("users = %d, err %v", n, err)
	}
	// Signing in again reuses the account.
	env.do(t, http.MethodPost, "/api/auth/google/verify", map[string]string{"credential": "id-token"})
	if n, _ := env.store.CountUsers(context.Background()); n != 1 {
		t.Errorf("users after second sign-in = %d", n)
	}
}

func TestHandleGoogleVerify_Rejected(t *testing.T) {
	env := newTestEnv(t, nil, verifyingGoogle(&fakeVerifier{err: errors.New("bad signature")}))
	rec := env.do(t, http.MethodPost, "/api/auth/google/verify", map[string]string{"credential": "forged"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	var body authResponse
	decodeBody(t, rec, &body)
	if body.Success || body.Token != "" {
		t.Errorf("response = %+v", body)
	}
}

func TestHandleGoogleVerify_EmailOwnedByAnotherAccount(t *testing.T) {
	v := &fakeVerifier{payload: &idtoken.Payload{
		Subject: "other-sub",
		Claims:  map[string]interface{}{"email": "alice@corp.com", "email_verified": false},
	}}
	env := newTestEnv(t, nil, verifyingGoogle(v))
	owner, err := env.store.UpsertOAuthUser(context.Background(), &models.OAuthIdentity{
		SubjectID: "owner-sub", Email: "alice@corp.com", EmailVerified: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodPost, "/api/auth/google/verify", map[string]string{"credential": "id-token"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body authResponse
	decodeBody(t, rec, &body)
	if body.Success || body.Token != "" {
		t.Errorf("response = %+v", body)
	}
	got, err := env.store.GetUserByID(context.Background(), owner.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.GoogleSubject != "owner-sub" {
		t.Errorf("owner subject = %s", got.GoogleSubject)
	}
}

func TestHandleGoogleCallback_Unconfigured(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(t, http.MethodPost, "/api/auth/google/callback", map[string]string{"code": "abc"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandlePasswordReset(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	_, err := env.store.UpsertOAuthUser(context.Background(), &models.OAuthIdentity{
		SubjectID: "sub-1",
		Email:     "bob@example.com",
		Name:      "Bob",
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodPost, "/api/auth/password-reset", map[string]string{"email": "nobody@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown email: status = %d", rec.Code)
	}
	if len(env.mailer.sent) != 0 {
		t.Fatalf("no mail expected for unknown email, got %d", len(env.mailer.sent))
	}

	rec = env.do(t, http.MethodPost, "/api/auth/password-reset", map[string]string{"email": "BOB@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["success"] != true || body["message"] != passwordResetMessage {
		t.Errorf("body = %v", body)
	}
	if len(env.mailer.sent) != 1 {
		t.Fatalf("sent = %d", len(env.mailer.sent))
	}
	link, err := url.Parse(env.mailer.sent[0].link)
	if err != nil {
		t.Fatal(err)
	}
	if link.Host != "ui.example.com" || link.Path != "/reset-password" {
		t.Errorf("link = %s", link)
	}

	rec = env.do(t, http.MethodPost, "/api/auth/password-reset/verify", map[string]string{"token": link.Query().Get("token")})
	var verify map[string]interface{}
	decodeBody(t, rec, &verify)
	if verify["valid"] != true || verify["email"] != "bob@example.com" {
		t.Errorf("verify = %v", verify)
	}
}

func TestHandlePasswordReset_MissingEmail(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(t, http.MethodPost, "/api/auth/password-reset", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandlePasswordResetVerify_Invalid(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	session, err := env.tokens.IssueSession(&models.User{ID: "u1", Email: "a@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	for _, token := range []string{"garbage", session.Token} {
		rec := env.do(t, http.MethodPost, "/api/auth/password-reset/verify", map[string]string{"token": token})
		var body map[string]interface{}
		decodeBody(t, rec, &body)
		if body["valid"] != false {
			t.Errorf("token %q should be invalid, got %v", token, body)
		}
	}
}

func TestHandleTestEmail(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	token := env.signIn(t, "ops@example.com")

	rec := env.doAs(t, token, http.MethodPost, "/api/email/test", map[string]string{"to": "ops@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var result models.EmailResult
	decodeBody(t, rec, &result)
	if !result.Success || result.Provider != "test" {
		t.Errorf("result = %+v", result)
	}
	if len(env.mailer.sent) != 1 || env.mailer.sent[0].recipient != "ops@example.com" {
		t.Errorf("sent = %+v", env.mailer.sent)
	}

	env.mailer.result = models.EmailResult{Success: false, Provider: "smtp", Error: "connection refused"}
	rec = env.doAs(t, token, http.MethodPost, "/api/email/test", map[string]string{"to": "ops@example.com"})
	if rec.Code != http.StatusBadGateway {
		t.Errorf("failed send: status = %d", rec.Code)
	}
}

func TestHandleTestEmail_RequiresSession(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{name: "no token", token: ""},
		{name: "forged token", token: "not-a-session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, nil)
			rec := env.doAs(t, tt.token, http.MethodPost, "/api/email/test", map[string]string{"to": "victim@example.com"})
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d", rec.Code)
			}
			if len(env.mailer.sent) != 0 {
				t.Errorf("mail should not be sent: %+v", env.mailer.sent)
			}
		})
	}
}

func TestHandleStatus(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(t, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["users"] != float64(0) || body["embedding"] != "hash" {
		t.Errorf("body = %v", body)
	}
	if body["mail_transport"] != config.MailTransportTest {
		t.Errorf("mail_transport = %v", body["mail_transport"])
	}
	if size, ok := body["database_bytes"].(float64); !ok || size <= 0 {
		t.Errorf("database_bytes = %v", body["database_bytes"])
	}
}

func TestHandleMe_Unauthorized(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	orphan, err := env.tokens.IssueSession(&models.User{ID: "gone", Email: "gone@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	for _, header := range []string{"", "Bearer", "Bearer garbage", "Bearer " + orphan.Token} {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d", header, rec.Code)
		}
	}
}
