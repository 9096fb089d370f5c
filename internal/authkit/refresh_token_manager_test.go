package authkit

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func newTestManager(t *testing.T, store RefreshTokenStore, clock Clock) *RefreshTokenManager {
	t.Helper()
	manager, err := NewRefreshTokenManager(store, 7*24*time.Hour, clock, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return manager
}

func TestNewRefreshTokenManagerValidatesArguments(t *testing.T) {
	if _, err := NewRefreshTokenManager(nil, time.Hour, nil, nil); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := NewRefreshTokenManager(NewMemoryRefreshTokenStore(), 0, nil, nil); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}

func TestRefreshTokenManagerIssueReplacesPriorToken(t *testing.T) {
	ctx := context.Background()
	clock := newControllableClock(time.Unix(1700000000, 0).UTC())
	store := NewMemoryRefreshTokenStore()
	manager := newTestManager(t, store, clock)
	user := User{ID: "u-1", Username: "alice"}

	first, err := manager.Issue(ctx, user)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if !first.ExpiresAt.Equal(clock.Now().Add(7 * 24 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", first.ExpiresAt)
	}
	second, err := manager.Issue(ctx, user)
	if err != nil {
		t.Fatalf("second issue failed: %v", err)
	}
	if first.Token == second.Token {
		t.Fatalf("expected distinct opaque values")
	}
	if store.Count() != 1 {
		t.Fatalf("expected one stored token, got %d", store.Count())
	}
	if _, err := manager.Lookup(ctx, first.Token); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("expected first token to be replaced, got %v", err)
	}
	record, err := manager.Lookup(ctx, second.Token)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if record.Username != "alice" || record.UserID != "u-1" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestRefreshTokenManagerIssueRequiresIdentity(t *testing.T) {
	manager := newTestManager(t, NewMemoryRefreshTokenStore(), nil)
	if _, err := manager.Issue(context.Background(), User{Username: "alice"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRefreshTokenManagerLookupBlankToken(t *testing.T) {
	manager := newTestManager(t, NewMemoryRefreshTokenStore(), nil)
	if _, err := manager.Lookup(context.Background(), "   "); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("expected ErrRefreshTokenNotFound, got %v", err)
	}
}

func TestRefreshTokenManagerExpiryBoundaryPurges(t *testing.T) {
	ctx := context.Background()
	clock := newControllableClock(time.Unix(1700000000, 0).UTC())
	store := NewMemoryRefreshTokenStore()
	manager := newTestManager(t, store, clock)

	issued, err := manager.Issue(ctx, User{ID: "u-1", Username: "alice"})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	record, err := manager.Lookup(ctx, issued.Token)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}

	clock.Set(issued.ExpiresAt.Add(-time.Nanosecond))
	if err := manager.CheckNotExpired(ctx, record); err != nil {
		t.Fatalf("expected token to be valid just before expiry: %v", err)
	}

	clock.Set(issued.ExpiresAt)
	if err := manager.CheckNotExpired(ctx, record); !errors.Is(err, ErrRefreshTokenExpired) {
		t.Fatalf("expected ErrRefreshTokenExpired at the expiry instant, got %v", err)
	}
	if store.Count() != 0 {
		t.Fatalf("expected expired token to be purged")
	}
	if _, err := manager.Lookup(ctx, issued.Token); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("expected purged token to be not found, got %v", err)
	}
}

func TestRefreshTokenManagerRevokeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRefreshTokenStore()
	manager := newTestManager(t, store, nil)
	user := User{ID: "u-1", Username: "alice"}

	if err := manager.RevokeForUser(ctx, user); err != nil {
		t.Fatalf("revoke without token failed: %v", err)
	}
	issued, err := manager.Issue(ctx, user)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		if err := manager.RevokeForUser(ctx, user); err != nil {
			t.Fatalf("revoke attempt %d failed: %v", attempt, err)
		}
	}
	if _, err := manager.Lookup(ctx, issued.Token); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("expected revoked token to be gone, got %v", err)
	}
	if manager.TTL() != 7*24*time.Hour {
		t.Fatalf("unexpected ttl %v", manager.TTL())
	}
}
