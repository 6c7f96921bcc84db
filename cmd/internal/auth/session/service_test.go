package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()

	store := NewMemoryStore()
	tokens, err := NewJWTManager(testTokenConfig())
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	return NewService(testTokenConfig(), store, tokens, nil), store
}

func TestServiceIssueAndValidate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	issued, err := svc.IssueSession(ctx, now, "user-1", testDevice())
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if issued.AccessToken == "" {
		t.Fatal("IssueSession returned empty token")
	}

	claims, err := svc.ValidateToken(ctx, issued.AccessToken, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != "user-1" || claims.SessionID != issued.Session.ID {
		t.Fatalf("claims = %+v, want user-1/%s", claims, issued.Session.ID)
	}

	// Validation bumps last_activity.
	list, err := svc.ListActive(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 1 || !list[0].LastActivity.After(now) {
		t.Fatalf("last_activity not bumped: %+v", list)
	}
}

func TestServiceValidateRejectsRevokedSession(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	issued, err := svc.IssueSession(ctx, now, "user-1", testDevice())
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	// Token is cryptographically valid but the session is gone: validation
	// must fail, and indistinguishably from a bad token.
	if _, err := store.DeactivateAll(ctx, now, "user-1"); err != nil {
		t.Fatalf("DeactivateAll: %v", err)
	}
	if _, err := svc.ValidateToken(ctx, issued.AccessToken, now.Add(time.Minute)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("ValidateToken after revocation = %v, want ErrInvalidToken", err)
	}
}

func TestServiceLogout(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a, err := svc.IssueSession(ctx, now, "user-1", testDevice())
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	b, err := svc.IssueSession(ctx, now.Add(time.Second), "user-1", testDevice())
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	if err := svc.Logout(ctx, now.Add(time.Minute), "user-1", a.Session.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.ValidateToken(ctx, a.AccessToken, now.Add(time.Minute)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("logged-out token validated: %v", err)
	}
	if _, err := svc.ValidateToken(ctx, b.AccessToken, now.Add(time.Minute)); err != nil {
		t.Fatalf("sibling session rejected: %v", err)
	}
}
