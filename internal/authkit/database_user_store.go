package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

type userRecord struct {
	ID           string `gorm:"column:id;primaryKey"`
	Username     string `gorm:"column:username;uniqueIndex;not null"`
	Email        string `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash string `gorm:"column:password_hash;not null"`
	Role         string `gorm:"column:role;not null;default:'USER'"`
	CreatedUnix  int64  `gorm:"column:created_unix;autoCreateTime"`
}

func (userRecord) TableName() string {
	return "users"
}

// DatabaseUserStore persists users using GORM.
type DatabaseUserStore struct {
	db          *gorm.DB
	driverLabel string
}

// NewDatabaseUserStore constructs a GORM-backed user store on an open database.
func NewDatabaseUserStore(database *Database) *DatabaseUserStore {
	return &DatabaseUserStore{db: database.db, driverLabel: database.driverLabel}
}

// FindUser matches usernameOrEmail against the username first, then the email.
func (store *DatabaseUserStore) FindUser(ctx context.Context, usernameOrEmail string) (User, error) {
	var record userRecord
	err := store.db.WithContext(ctx).Where("username = ?", usernameOrEmail).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = store.db.WithContext(ctx).Where("email = ?", normalizeEmail(usernameOrEmail)).Take(&record).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, fmt.Errorf("user_store.find.%s: %w", store.driverLabel, ErrUserRecordNotFound)
		}
		return User{}, fmt.Errorf("user_store.find.%s: %w", store.driverLabel, err)
	}
	return User{
		ID:           record.ID,
		Username:     record.Username,
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
		Role:         Role(record.Role),
	}, nil
}

// UserExists reports whether username is taken.
func (store *DatabaseUserStore) UserExists(ctx context.Context, username string) (bool, error) {
	return store.exists(ctx, "username = ?", username)
}

// EmailExists reports whether email is taken.
func (store *DatabaseUserStore) EmailExists(ctx context.Context, email string) (bool, error) {
	return store.exists(ctx, "email = ?", normalizeEmail(email))
}

// SaveUser inserts a new user row.
func (store *DatabaseUserStore) SaveUser(ctx context.Context, user User) error {
	record := userRecord{
		ID:           user.ID,
		Username:     user.Username,
		Email:        normalizeEmail(user.Email),
		PasswordHash: user.PasswordHash,
		Role:         string(user.Role),
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		if isUniqueConstraintErr(err) {
			return fmt.Errorf("user_store.save.%s: %w", store.driverLabel, ErrUserAlreadyExists)
		}
		return fmt.Errorf("user_store.save.%s: %w", store.driverLabel, err)
	}
	return nil
}

func (store *DatabaseUserStore) exists(ctx context.Context, query string, value string) (bool, error) {
	var count int64
	if err := store.db.WithContext(ctx).Model(&userRecord{}).Where(query, value).Count(&count).Error; err != nil {
		return false, fmt.Errorf("user_store.exists.%s: %w", store.driverLabel, err)
	}
	return count > 0, nil
}

func isUniqueConstraintErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := err.Error()
	// sqlite reports "UNIQUE constraint failed", postgres reports SQLSTATE 23505.
	return strings.Contains(message, "UNIQUE constraint failed") || strings.Contains(message, "23505")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
