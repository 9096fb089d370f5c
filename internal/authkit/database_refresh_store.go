package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatabaseRefreshTokenStore persists refresh tokens using GORM, one row per user.
type DatabaseRefreshTokenStore struct {
	db          *gorm.DB
	driverLabel string
}

type refreshTokenRecord struct {
	TokenHash    string `gorm:"column:token_hash;primaryKey"`
	UserID       string `gorm:"column:user_id;uniqueIndex;not null"`
	Username     string `gorm:"column:username;not null"`
	IssuedAtUnix int64  `gorm:"column:issued_at_unix;not null"`
	// Nanosecond precision keeps the inclusive expiry boundary exact.
	ExpiresAtUnixNano int64 `gorm:"column:expires_at_unix_nano;not null"`
}

func (refreshTokenRecord) TableName() string {
	return "refresh_tokens"
}

// NewDatabaseRefreshTokenStore constructs a GORM-backed store on an open database.
func NewDatabaseRefreshTokenStore(database *Database) *DatabaseRefreshTokenStore {
	return &DatabaseRefreshTokenStore{db: database.db, driverLabel: database.driverLabel}
}

// Driver exposes the selected database driver label.
func (store *DatabaseRefreshTokenStore) Driver() string {
	return store.driverLabel
}

// Save upserts on the unique user_id index so the replacement is a single statement.
func (store *DatabaseRefreshTokenStore) Save(ctx context.Context, record RefreshTokenRecord) error {
	if record.TokenHash == "" || record.UserID == "" {
		return fmt.Errorf("refresh_store.save.%s: %w", store.driverLabel, ErrRefreshRecordIncomplete)
	}
	row := refreshTokenRecord{
		TokenHash:         record.TokenHash,
		UserID:            record.UserID,
		Username:          record.Username,
		IssuedAtUnix:      record.IssuedAt.Unix(),
		ExpiresAtUnixNano: record.ExpiresAt.UnixNano(),
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token_hash", "username", "issued_at_unix", "expires_at_unix_nano"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("refresh_store.save.%s: %w", store.driverLabel, err)
	}
	return nil
}

// FindByToken locates a refresh token by its hash.
func (store *DatabaseRefreshTokenStore) FindByToken(ctx context.Context, tokenHash string) (RefreshTokenRecord, error) {
	var row refreshTokenRecord
	err := store.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RefreshTokenRecord{}, fmt.Errorf("refresh_store.find.%s: %w", store.driverLabel, ErrRefreshTokenNotFound)
		}
		return RefreshTokenRecord{}, fmt.Errorf("refresh_store.find.%s: %w", store.driverLabel, err)
	}
	return RefreshTokenRecord{
		TokenHash: row.TokenHash,
		UserID:    row.UserID,
		Username:  row.Username,
		IssuedAt:  time.Unix(row.IssuedAtUnix, 0).UTC(),
		ExpiresAt: time.Unix(0, row.ExpiresAtUnixNano).UTC(),
	}, nil
}

// DeleteByUser removes the row owned by userID.
func (store *DatabaseRefreshTokenStore) DeleteByUser(ctx context.Context, userID string) error {
	if err := store.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&refreshTokenRecord{}).Error; err != nil {
		return fmt.Errorf("refresh_store.delete_by_user.%s: %w", store.driverLabel, err)
	}
	return nil
}

// Delete removes the row stored under tokenHash.
func (store *DatabaseRefreshTokenStore) Delete(ctx context.Context, tokenHash string) error {
	if err := store.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Delete(&refreshTokenRecord{}).Error; err != nil {
		return fmt.Errorf("refresh_store.delete.%s: %w", store.driverLabel, err)
	}
	return nil
}
