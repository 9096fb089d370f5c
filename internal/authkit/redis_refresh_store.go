package authkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisKeyPrefix = "passauth:refresh:"
	// Keys outlive the logical expiry so that an expired token is reported as expired, not missing.
	redisExpiryGrace = 24 * time.Hour
)

const saveRefreshScript = `
local previous = redis.call("GET", KEYS[1])
if previous and previous ~= ARGV[1] then
  redis.call("DEL", ARGV[4] .. previous)
end
redis.call("SET", KEYS[2], ARGV[2])
redis.call("PEXPIREAT", KEYS[2], ARGV[3])
redis.call("SET", KEYS[1], ARGV[1])
redis.call("PEXPIREAT", KEYS[1], ARGV[3])
return 1
`

const deleteByUserScript = `
local current = redis.call("GET", KEYS[1])
if current then
  redis.call("DEL", ARGV[1] .. current)
end
redis.call("DEL", KEYS[1])
return 1
`

const deleteByTokenScript = `
redis.call("DEL", KEYS[1])
if redis.call("GET", KEYS[2]) == ARGV[1] then
  redis.call("DEL", KEYS[2])
end
return 1
`

var (
	saveRefreshLua   = redis.NewScript(saveRefreshScript)
	deleteByUserLua  = redis.NewScript(deleteByUserScript)
	deleteByTokenLua = redis.NewScript(deleteByTokenScript)
)

// RedisRefreshTokenStore keeps refresh tokens in Redis with a user->token pointer key.
type RedisRefreshTokenStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

type redisRefreshPayload struct {
	UserID            string `json:"user_id"`
	Username          string `json:"username"`
	IssuedAtUnix      int64  `json:"issued_at_unix"`
	ExpiresAtUnixNano int64  `json:"expires_at_unix_nano"`
}

// NewRedisRefreshTokenStore constructs a store; an empty prefix selects the default.
func NewRedisRefreshTokenStore(client redis.UniversalClient, keyPrefix string) *RedisRefreshTokenStore {
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = defaultRedisKeyPrefix
	}
	return &RedisRefreshTokenStore{client: client, keyPrefix: keyPrefix}
}

// NewRedisClientFromURL parses a redis:// URL and pings the server.
func NewRedisClientFromURL(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("refresh_store.redis.parse_url: %w", err)
	}
	client := redis.NewClient(options)
	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		_ = client.Close()
		return nil, fmt.Errorf("refresh_store.redis.ping: %w", pingErr)
	}
	return client, nil
}

// Save replaces the user's token in one Lua script.
func (store *RedisRefreshTokenStore) Save(ctx context.Context, record RefreshTokenRecord) error {
	if record.TokenHash == "" || record.UserID == "" {
		return fmt.Errorf("refresh_store.save.redis: %w", ErrRefreshRecordIncomplete)
	}
	payload, encodeErr := json.Marshal(redisRefreshPayload{
		UserID:            record.UserID,
		Username:          record.Username,
		IssuedAtUnix:      record.IssuedAt.Unix(),
		ExpiresAtUnixNano: record.ExpiresAt.UnixNano(),
	})
	if encodeErr != nil {
		return fmt.Errorf("refresh_store.save.redis: %w", encodeErr)
	}
	keys := []string{store.userKey(record.UserID), store.tokenKey(record.TokenHash)}
	expireAtMillis := record.ExpiresAt.Add(redisExpiryGrace).UnixMilli()
	if err := saveRefreshLua.Run(ctx, store.client, keys, record.TokenHash, string(payload), expireAtMillis, store.tokenKey("")).Err(); err != nil {
		return fmt.Errorf("refresh_store.save.redis: %w", err)
	}
	return nil
}

// FindByToken decodes the record stored under tokenHash.
func (store *RedisRefreshTokenStore) FindByToken(ctx context.Context, tokenHash string) (RefreshTokenRecord, error) {
	raw, err := store.client.Get(ctx, store.tokenKey(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return RefreshTokenRecord{}, fmt.Errorf("refresh_store.find.redis: %w", ErrRefreshTokenNotFound)
		}
		return RefreshTokenRecord{}, fmt.Errorf("refresh_store.find.redis: %w", err)
	}
	var payload redisRefreshPayload
	if decodeErr := json.Unmarshal(raw, &payload); decodeErr != nil {
		return RefreshTokenRecord{}, fmt.Errorf("refresh_store.find.redis: %w", decodeErr)
	}
	return RefreshTokenRecord{
		TokenHash: tokenHash,
		UserID:    payload.UserID,
		Username:  payload.Username,
		IssuedAt:  time.Unix(payload.IssuedAtUnix, 0).UTC(),
		ExpiresAt: time.Unix(0, payload.ExpiresAtUnixNano).UTC(),
	}, nil
}

// DeleteByUser removes the user's pointer and the token it references.
func (store *RedisRefreshTokenStore) DeleteByUser(ctx context.Context, userID string) error {
	if err := deleteByUserLua.Run(ctx, store.client, []string{store.userKey(userID)}, store.tokenKey("")).Err(); err != nil {
		return fmt.Errorf("refresh_store.delete_by_user.redis: %w", err)
	}
	return nil
}

// Delete removes the token and clears the owner's pointer if it still references it.
func (store *RedisRefreshTokenStore) Delete(ctx context.Context, tokenHash string) error {
	record, findErr := store.FindByToken(ctx, tokenHash)
	if findErr != nil {
		if errors.Is(findErr, ErrRefreshTokenNotFound) {
			return nil
		}
		return fmt.Errorf("refresh_store.delete.redis: %w", findErr)
	}
	keys := []string{store.tokenKey(tokenHash), store.userKey(record.UserID)}
	if err := deleteByTokenLua.Run(ctx, store.client, keys, tokenHash).Err(); err != nil {
		return fmt.Errorf("refresh_store.delete.redis: %w", err)
	}
	return nil
}

func (store *RedisRefreshTokenStore) tokenKey(tokenHash string) string {
	return store.keyPrefix + "token:" + tokenHash
}

func (store *RedisRefreshTokenStore) userKey(userID string) string {
	return store.keyPrefix + "user:" + userID
}
