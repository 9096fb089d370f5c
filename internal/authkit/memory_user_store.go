package authkit

import (
	"context"
	"fmt"
	"sync"
)

// MemoryUserStore is an in-memory user store used for tests and local runs.
type MemoryUserStore struct {
	mutex      sync.RWMutex
	byUsername map[string]User
	byEmail    map[string]string
}

// NewMemoryUserStore constructs an empty store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byUsername: make(map[string]User),
		byEmail:    make(map[string]string),
	}
}

// FindUser resolves by username first, then email.
func (store *MemoryUserStore) FindUser(ctx context.Context, usernameOrEmail string) (User, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	if user, ok := store.byUsername[usernameOrEmail]; ok {
		return user, nil
	}
	if username, ok := store.byEmail[normalizeEmail(usernameOrEmail)]; ok {
		return store.byUsername[username], nil
	}
	return User{}, fmt.Errorf("user_store.find.memory: %w", ErrUserRecordNotFound)
}

// UserExists reports whether username is taken.
func (store *MemoryUserStore) UserExists(ctx context.Context, username string) (bool, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	_, ok := store.byUsername[username]
	return ok, nil
}

// EmailExists reports whether email is taken.
func (store *MemoryUserStore) EmailExists(ctx context.Context, email string) (bool, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	_, ok := store.byEmail[normalizeEmail(email)]
	return ok, nil
}

// SaveUser inserts user, enforcing unique username and email.
func (store *MemoryUserStore) SaveUser(ctx context.Context, user User) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	email := normalizeEmail(user.Email)
	if _, ok := store.byUsername[user.Username]; ok {
		return fmt.Errorf("user_store.save.memory: %w", ErrUserAlreadyExists)
	}
	if _, ok := store.byEmail[email]; ok {
		return fmt.Errorf("user_store.save.memory: %w", ErrUserAlreadyExists)
	}
	user.Email = email
	store.byUsername[user.Username] = user
	store.byEmail[email] = user.Username
	return nil
}
