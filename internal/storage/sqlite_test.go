package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/querylinker/internal/models"
)

func newStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStorage_UpsertOAuthUser(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	u, err := store.UpsertOAuthUser(ctx, &models.OAuthIdentity{
		SubjectID: "sub-1", Email: "Alice@Example.com", Name: "Alice", EmailVerified: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if u.ID == "" || u.Email != "alice@example.com" || !u.EmailVerified {
		t.Errorf("unexpected user: %+v", u)
	}
	if u.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	again, err := store.UpsertOAuthUser(ctx, &models.OAuthIdentity{
		SubjectID: "sub-1", Email: "alice@example.com", Name: "Alice Smith",
	})
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != u.ID {
		t.Errorf("same subject should map to the same user: %s vs %s", again.ID, u.ID)
	}
	if again.Name != "Alice Smith" {
		t.Errorf("name should be updated, got %s", again.Name)
	}

	n, err := store.CountUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 user, got %d", n)
	}
}

func TestSQLiteStorage_LinksByEmail(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	// An account that exists before its first Google sign-in has no subject.
	if _, err := store.db.Exec(
		`INSERT INTO users (id, email, name) VALUES ('pre-1', 'bob@example.com', 'Bob')`,
	); err != nil {
		t.Fatal(err)
	}

	_, err := store.UpsertOAuthUser(ctx, &models.OAuthIdentity{SubjectID: "new", Email: "BOB@example.com"})
	if !errors.Is(err, ErrIdentityConflict) {
		t.Fatalf("unverified email should not link, got %v", err)
	}

	linked, err := store.UpsertOAuthUser(ctx, &models.OAuthIdentity{
		SubjectID: "new", Email: "BOB@example.com", EmailVerified: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if linked.ID != "pre-1" {
		t.Errorf("verified email should link to the existing user, got %s", linked.ID)
	}
	if linked.GoogleSubject != "new" || !linked.EmailVerified {
		t.Errorf("unexpected linked user: %+v", linked)
	}
}

func TestSQLiteStorage_RefusesSubjectTakeover(t *testing.T) {
	tests := []struct {
		name     string
		verified bool
	}{
		{name: "unverified", verified: false},
		{name: "verified", verified: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()

			owner, err := store.UpsertOAuthUser(ctx, &models.OAuthIdentity{
				SubjectID: "owner-sub", Email: "alice@corp.com", EmailVerified: true,
			})
			if err != nil {
				t.Fatal(err)
			}

			_, err = store.UpsertOAuthUser(ctx, &models.OAuthIdentity{
				SubjectID: "other-sub", Email: "alice@corp.com", EmailVerified: tt.verified,
			})
			if !errors.Is(err, ErrIdentityConflict) {
				t.Fatalf("expected ErrIdentityConflict, got %v", err)
			}

			got, err := store.GetUserByID(ctx, owner.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got.GoogleSubject != "owner-sub" || !got.EmailVerified {
				t.Errorf("owner should be unchanged: %+v", got)
			}
			if n, _ := store.CountUsers(ctx); n != 1 {
				t.Errorf("expected 1 user, got %d", n)
			}
		})
	}
}

func TestSQLiteStorage_KeepsEmailOwnedByAnotherUser(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	a, err := store.UpsertOAuthUser(ctx, &models.OAuthIdentity{SubjectID: "sub-a", Email: "a@example.com", Name: "A"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := store.UpsertOAuthUser(ctx, &models.OAuthIdentity{SubjectID: "sub-b", Email: "b@example.com"})
	if err != nil {
		t.Fatal(err)
	}

	// Subject A now reports B's email.
	got, err := store.UpsertOAuthUser(ctx, &models.OAuthIdentity{SubjectID: "sub-a", Email: "b@example.com", Name: "A2"})
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != a.ID || got.Email != "a@example.com" || got.Name != "A2" {
		t.Errorf("unexpected user: %+v", got)
	}
	other, err := store.GetUserByEmail(ctx, "b@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if other.ID != b.ID || other.GoogleSubject != "sub-b" {
		t.Errorf("second user should be unchanged: %+v", other)
	}
}

func TestSQLiteStorage_GetUser(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if _, err := store.GetUserByEmail(ctx, "ghost@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	u, err := store.UpsertOAuthUser(ctx, &models.OAuthIdentity{SubjectID: "s", Email: "carol@example.com", Name: "Carol"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := store.GetUserByEmail(ctx, " Carol@example.com ")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != u.ID || got.Name != "Carol" {
		t.Errorf("got %+v", got)
	}
	byID, err := store.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if byID.Email != "carol@example.com" {
		t.Errorf("got %+v", byID)
	}
	if _, err := store.GetUserByID(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSQLiteStorage_RejectsIncompleteIdentity(t *testing.T) {
	store := newStore(t)
	if _, err := store.UpsertOAuthUser(context.Background(), &models.OAuthIdentity{Email: "x@y.com"}); err == nil {
		t.Error("expected error without subject")
	}
}

func TestSQLiteStorage_Memory(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	if _, err := store.UpsertOAuthUser(ctx, &models.OAuthIdentity{SubjectID: "s", Email: "m@x.com"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetUserByEmail(ctx, "m@x.com"); err != nil {
		t.Fatal(err)
	}
}
