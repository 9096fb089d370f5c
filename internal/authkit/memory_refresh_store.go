package authkit

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRefreshTokenStore is an in-memory store intended for tests and dev.
type MemoryRefreshTokenStore struct {
	mutex  sync.Mutex
	byHash map[string]RefreshTokenRecord
	byUser map[string]string
}

// NewMemoryRefreshTokenStore creates a new in-memory token store.
func NewMemoryRefreshTokenStore() *MemoryRefreshTokenStore {
	return &MemoryRefreshTokenStore{
		byHash: make(map[string]RefreshTokenRecord),
		byUser: make(map[string]string),
	}
}

// Save replaces the user's record under a single lock.
func (store *MemoryRefreshTokenStore) Save(ctx context.Context, record RefreshTokenRecord) error {
	if record.TokenHash == "" || record.UserID == "" {
		return fmt.Errorf("refresh_store.save.memory: %w", ErrRefreshRecordIncomplete)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if previousHash, ok := store.byUser[record.UserID]; ok {
		delete(store.byHash, previousHash)
	}
	store.byHash[record.TokenHash] = record
	store.byUser[record.UserID] = record.TokenHash
	return nil
}

// FindByToken returns the record stored under tokenHash.
func (store *MemoryRefreshTokenStore) FindByToken(ctx context.Context, tokenHash string) (RefreshTokenRecord, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	record, ok := store.byHash[tokenHash]
	if !ok {
		return RefreshTokenRecord{}, fmt.Errorf("refresh_store.find.memory: %w", ErrRefreshTokenNotFound)
	}
	return record, nil
}

// DeleteByUser removes the record owned by userID.
func (store *MemoryRefreshTokenStore) DeleteByUser(ctx context.Context, userID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if tokenHash, ok := store.byUser[userID]; ok {
		delete(store.byHash, tokenHash)
		delete(store.byUser, userID)
	}
	return nil
}

// Delete removes the record stored under tokenHash.
func (store *MemoryRefreshTokenStore) Delete(ctx context.Context, tokenHash string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	record, ok := store.byHash[tokenHash]
	if !ok {
		return nil
	}
	delete(store.byHash, tokenHash)
	if store.byUser[record.UserID] == tokenHash {
		delete(store.byUser, record.UserID)
	}
	return nil
}

// Count reports how many records are stored.
func (store *MemoryRefreshTokenStore) Count() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return len(store.byHash)
}
