package authkitpg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the refresh token table if it does not exist.
// The layout matches the GORM-managed table so either backend can own it.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS refresh_tokens (
    token_hash TEXT PRIMARY KEY,
    user_id TEXT NOT NULL UNIQUE,
    username TEXT NOT NULL,
    issued_at_unix BIGINT NOT NULL,
    expires_at_unix_nano BIGINT NOT NULL
);
`)
	if err != nil {
		return fmt.Errorf("pgx.ensure_schema: %w", err)
	}
	return nil
}
