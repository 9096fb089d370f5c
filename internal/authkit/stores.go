package authkit

import (
	"context"
	"time"
)

// Role is the authorization role assigned to a user.
type Role string

const (
	// RoleUser is the default role assigned on registration.
	RoleUser Role = "USER"
	// RoleAdmin grants administrative access.
	RoleAdmin Role = "ADMIN"
)

// User is a credential-store record.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         Role
}

// UserStore persists and retrieves application users.
type UserStore interface {
	// FindUser resolves a user by username or email; returns ErrUserRecordNotFound when absent.
	FindUser(ctx context.Context, usernameOrEmail string) (User, error)
	UserExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	// SaveUser inserts a user; returns ErrUserAlreadyExists on a uniqueness violation.
	SaveUser(ctx context.Context, user User) error
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext string, digest string) (bool, error)
}

// RefreshTokenRecord is the persisted form of a refresh token.
type RefreshTokenRecord struct {
	TokenHash string
	UserID    string
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshTokenStore persists refresh token records keyed by token hash, at most one per user.
type RefreshTokenStore interface {
	// Save stores record, atomically replacing any record owned by the same user.
	Save(ctx context.Context, record RefreshTokenRecord) error
	// FindByToken returns ErrRefreshTokenNotFound when no record matches.
	FindByToken(ctx context.Context, tokenHash string) (RefreshTokenRecord, error)
	// DeleteByUser removes the user's record; a missing record is not an error.
	DeleteByUser(ctx context.Context, userID string) error
	// Delete removes the record with the given hash; a missing record is not an error.
	Delete(ctx context.Context, tokenHash string) error
}
