package authkitpg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tyemirov/passauth/internal/authkit"
)

// PostgresRefreshTokenStore persists refresh tokens in PostgreSQL through pgx.
type PostgresRefreshTokenStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRefreshTokenStore constructs a Postgres store.
func NewPostgresRefreshTokenStore(pool *pgxpool.Pool) *PostgresRefreshTokenStore {
	return &PostgresRefreshTokenStore{pool: pool}
}

// Save replaces the user's token with a single upsert on the user_id constraint.
func (store *PostgresRefreshTokenStore) Save(ctx context.Context, record authkit.RefreshTokenRecord) error {
	if record.TokenHash == "" || record.UserID == "" {
		return fmt.Errorf("refresh_store.save.pgx: %w", authkit.ErrRefreshRecordIncomplete)
	}
	_, err := store.pool.Exec(ctx, `
INSERT INTO refresh_tokens (token_hash, user_id, username, issued_at_unix, expires_at_unix_nano)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id) DO UPDATE
SET token_hash = EXCLUDED.token_hash,
    username = EXCLUDED.username,
    issued_at_unix = EXCLUDED.issued_at_unix,
    expires_at_unix_nano = EXCLUDED.expires_at_unix_nano
`, record.TokenHash, record.UserID, record.Username, record.IssuedAt.Unix(), record.ExpiresAt.UnixNano())
	if err != nil {
		return fmt.Errorf("refresh_store.save.pgx: %w", err)
	}
	return nil
}

// FindByToken locates a refresh token by its hash.
func (store *PostgresRefreshTokenStore) FindByToken(ctx context.Context, tokenHash string) (authkit.RefreshTokenRecord, error) {
	var (
		userID            string
		username          string
		issuedAtUnix      int64
		expiresAtUnixNano int64
	)
	row := store.pool.QueryRow(ctx, `
SELECT user_id, username, issued_at_unix, expires_at_unix_nano
FROM refresh_tokens
WHERE token_hash = $1
`, tokenHash)
	if scanErr := row.Scan(&userID, &username, &issuedAtUnix, &expiresAtUnixNano); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return authkit.RefreshTokenRecord{}, fmt.Errorf("refresh_store.find.pgx: %w", authkit.ErrRefreshTokenNotFound)
		}
		return authkit.RefreshTokenRecord{}, fmt.Errorf("refresh_store.find.pgx: %w", scanErr)
	}
	return authkit.RefreshTokenRecord{
		TokenHash: tokenHash,
		UserID:    userID,
		Username:  username,
		IssuedAt:  time.Unix(issuedAtUnix, 0).UTC(),
		ExpiresAt: time.Unix(0, expiresAtUnixNano).UTC(),
	}, nil
}

// DeleteByUser removes the user's token; a missing row is not an error.
func (store *PostgresRefreshTokenStore) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := store.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("refresh_store.delete_by_user.pgx: %w", err)
	}
	return nil
}

// Delete removes a single token by hash; a missing row is not an error.
func (store *PostgresRefreshTokenStore) Delete(ctx context.Context, tokenHash string) error {
	if _, err := store.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("refresh_store.delete.pgx: %w", err)
	}
	return nil
}
