package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/account-service/internal/domain"
)

const revokedTokenKeyPrefix = "revoked_token:"

// RevokedTokenRepository records bearer tokens that must no longer be accepted.
type RevokedTokenRepository interface {
	Revoke(ctx context.Context, token domain.RevokedToken) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

type redisRevokedTokenRepository struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewRedisRevokedTokenRepository stores revocations as keys expiring with the token itself.
func NewRedisRevokedTokenRepository(client redis.Cmdable) RevokedTokenRepository {
	return &redisRevokedTokenRepository{client: client, now: time.Now}
}

type revokedTokenPayload struct {
	AccountID string    `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r *redisRevokedTokenRepository) Revoke(ctx context.Context, token domain.RevokedToken) error {
	ttl := token.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(revokedTokenPayload{AccountID: token.AccountID, ExpiresAt: token.ExpiresAt})
	if err != nil {
		return fmt.Errorf("marshal revoked token: %w", err)
	}
	if err := r.client.Set(ctx, revokedTokenKey(token.Token), payload, ttl).Err(); err != nil {
		return fmt.Errorf("store revoked token: %w", err)
	}
	return nil
}

func (r *redisRevokedTokenRepository) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedTokenKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

// Keys hold a digest so raw bearer tokens never sit in Redis.
func revokedTokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return revokedTokenKeyPrefix + hex.EncodeToString(sum[:])
}

// MemoryRevokedTokenRepository is the in-process fallback; expired entries are pruned on access.
type MemoryRevokedTokenRepository struct {
	mu      sync.Mutex
	records map[string]domain.RevokedToken
	now     func() time.Time
}

// NewMemoryRevokedTokenRepository returns an empty store.
func NewMemoryRevokedTokenRepository() *MemoryRevokedTokenRepository {
	return &MemoryRevokedTokenRepository{records: make(map[string]domain.RevokedToken), now: time.Now}
}

func (r *MemoryRevokedTokenRepository) Revoke(_ context.Context, token domain.RevokedToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token.Expired(r.now()) {
		return nil
	}
	token.Token = strings.Clone(token.Token)
	r.records[token.Token] = token
	return nil
}

func (r *MemoryRevokedTokenRepository) IsRevoked(_ context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for key, record := range r.records {
		if record.Expired(now) {
			delete(r.records, key)
		}
	}
	_, ok := r.records[token]
	return ok, nil
}
