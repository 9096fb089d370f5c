package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RefreshToken is a freshly issued refresh token; Token is only known at issue time.
type RefreshToken struct {
	Token     string
	UserID    string
	Username  string
	ExpiresAt time.Time
}

// RefreshTokenManager owns refresh token issuance, lookup, expiry, and revocation.
type RefreshTokenManager struct {
	store  RefreshTokenStore
	ttl    time.Duration
	clock  Clock
	logger *zap.Logger
}

// NewRefreshTokenManager constructs a manager over store.
func NewRefreshTokenManager(store RefreshTokenStore, ttl time.Duration, clock Clock, logger *zap.Logger) (*RefreshTokenManager, error) {
	if store == nil {
		return nil, errors.New("refresh_manager.new: store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("refresh_manager.new: ttl must be positive")
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshTokenManager{store: store, ttl: ttl, clock: clock, logger: logger}, nil
}

// Issue mints a new opaque token for user, replacing any token the user already holds.
func (manager *RefreshTokenManager) Issue(ctx context.Context, user User) (RefreshToken, error) {
	if user.ID == "" || user.Username == "" {
		return RefreshToken{}, fmt.Errorf("refresh_manager.issue: %w", ErrInvalidInput)
	}
	opaque, tokenHash, err := generateRefreshOpaque()
	if err != nil {
		return RefreshToken{}, fmt.Errorf("refresh_manager.issue: %w", err)
	}
	issuedAt := manager.clock.Now().UTC()
	record := RefreshTokenRecord{
		TokenHash: tokenHash,
		UserID:    user.ID,
		Username:  user.Username,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(manager.ttl),
	}
	if saveErr := manager.store.Save(ctx, record); saveErr != nil {
		return RefreshToken{}, fmt.Errorf("refresh_manager.issue: %w", saveErr)
	}
	return RefreshToken{
		Token:     opaque,
		UserID:    record.UserID,
		Username:  record.Username,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// Lookup returns the record for an opaque token without checking expiry.
func (manager *RefreshTokenManager) Lookup(ctx context.Context, opaque string) (RefreshTokenRecord, error) {
	if strings.TrimSpace(opaque) == "" {
		return RefreshTokenRecord{}, fmt.Errorf("refresh_manager.lookup: %w", ErrRefreshTokenNotFound)
	}
	record, err := manager.store.FindByToken(ctx, HashRefreshOpaque(opaque))
	if err != nil {
		return RefreshTokenRecord{}, fmt.Errorf("refresh_manager.lookup: %w", err)
	}
	return record, nil
}

// CheckNotExpired rejects records whose expiry is at or before now and purges them.
func (manager *RefreshTokenManager) CheckNotExpired(ctx context.Context, record RefreshTokenRecord) error {
	if manager.clock.Now().Before(record.ExpiresAt) {
		return nil
	}
	if deleteErr := manager.store.Delete(ctx, record.TokenHash); deleteErr != nil {
		return fmt.Errorf("refresh_manager.check_expiry: %w", deleteErr)
	}
	manager.logger.Info("expired refresh token purged",
		zap.String("code", "refresh.expired_purged"),
		zap.String("user_id", record.UserID))
	return fmt.Errorf("refresh_manager.check_expiry: %w", ErrRefreshTokenExpired)
}

// RevokeForUser deletes the user's refresh token if one exists.
func (manager *RefreshTokenManager) RevokeForUser(ctx context.Context, user User) error {
	if err := manager.store.DeleteByUser(ctx, user.ID); err != nil {
		return fmt.Errorf("refresh_manager.revoke: %w", err)
	}
	return nil
}

// TTL reports the configured refresh lifetime.
func (manager *RefreshTokenManager) TTL() time.Duration {
	return manager.ttl
}
