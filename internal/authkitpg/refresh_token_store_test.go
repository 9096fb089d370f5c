package authkitpg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/tyemirov/passauth/internal/authkit"
)

const postgresURLEnv = "APP_TEST_POSTGRES_URL"

var _ authkit.RefreshTokenStore = (*PostgresRefreshTokenStore)(nil)

func newPostgresStore(t *testing.T) *PostgresRefreshTokenStore {
	t.Helper()
	databaseURL := os.Getenv(postgresURLEnv)
	if databaseURL == "" {
		t.Skipf("%s not set", postgresURLEnv)
	}
	ctx := context.Background()
	pool, err := BuildPool(ctx, databaseURL)
	if err != nil {
		t.Fatalf("build pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if _, err := pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id LIKE 'pgx-test-%'`); err != nil {
		t.Fatalf("reset table: %v", err)
	}
	return NewPostgresRefreshTokenStore(pool)
}

func TestBuildPoolRejectsInvalidURL(t *testing.T) {
	if _, err := BuildPool(context.Background(), ""); !errors.Is(err, errEmptyPostgresURL) {
		t.Fatalf("expected errEmptyPostgresURL, got %v", err)
	}
	if _, err := BuildPool(context.Background(), "postgres://user@localhost:notaport/db"); err == nil {
		t.Fatalf("expected parse error for invalid port")
	}
}

func TestPostgresRefreshTokenStoreLifecycle(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	expiry := time.Unix(1700000600, 987654321).UTC()
	record := authkit.RefreshTokenRecord{
		TokenHash: "pgx-hash-a",
		UserID:    "pgx-test-1",
		Username:  "alice",
		IssuedAt:  time.Unix(1700000000, 0).UTC(),
		ExpiresAt: expiry,
	}

	if _, err := store.FindByToken(ctx, "pgx-missing"); !errors.Is(err, authkit.ErrRefreshTokenNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("save: %v", err)
	}
	found, err := store.FindByToken(ctx, "pgx-hash-a")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !found.ExpiresAt.Equal(expiry) || found.Username != "alice" {
		t.Fatalf("unexpected record %+v", found)
	}

	record.TokenHash = "pgx-hash-b"
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("replacement save: %v", err)
	}
	if _, err := store.FindByToken(ctx, "pgx-hash-a"); !errors.Is(err, authkit.ErrRefreshTokenNotFound) {
		t.Fatalf("expected replaced token to be gone, got %v", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		if err := store.DeleteByUser(ctx, "pgx-test-1"); err != nil {
			t.Fatalf("delete by user attempt %d: %v", attempt, err)
		}
		if err := store.Delete(ctx, "pgx-hash-b"); err != nil {
			t.Fatalf("delete attempt %d: %v", attempt, err)
		}
	}
	if _, err := store.FindByToken(ctx, "pgx-hash-b"); !errors.Is(err, authkit.ErrRefreshTokenNotFound) {
		t.Fatalf("expected deleted token to be gone, got %v", err)
	}
}

func TestPostgresRefreshTokenStoreConcurrentSaves(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	const writers = 16
	var waitGroup sync.WaitGroup
	for index := 0; index < writers; index++ {
		waitGroup.Add(1)
		go func(index int) {
			defer waitGroup.Done()
			_ = store.Save(ctx, authkit.RefreshTokenRecord{
				TokenHash: fmt.Sprintf("pgx-race-%d", index),
				UserID:    "pgx-test-race",
				Username:  "racer",
				IssuedAt:  time.Now().UTC(),
				ExpiresAt: time.Now().Add(time.Hour).UTC(),
			})
		}(index)
	}
	waitGroup.Wait()

	live := 0
	for index := 0; index < writers; index++ {
		if _, err := store.FindByToken(ctx, fmt.Sprintf("pgx-race-%d", index)); err == nil {
			live++
		}
	}
	if live != 1 {
		t.Fatalf("expected one live token for the user, got %d", live)
	}
}
