package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ticketly/internal/shared/constants"
	"ticketly/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Gate answers "is this token revoked?" in O(1) at every privileged
// boundary. Redis entries expire with the token; the relational store
// stays authoritative for the rare read-through.
type Gate interface {
	IsBlacklisted(ctx context.Context, token string) bool
	Blacklist(ctx context.Context, token string, userID uuid.UUID, expiresAt time.Time) error
	CacheRefresh(ctx context.Context, token string, userID uuid.UUID, expiresAt time.Time) error
	GetRefresh(ctx context.Context, token string) (*RefreshInfo, error)
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
}

// errKVMiss distinguishes "key absent" from a KV outage
var errKVMiss = errors.New("kv miss")

// kvStore is the slice of Redis the gate needs
type kvStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type redisKV struct {
	client *redis.Client
}

func (r *redisKV) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", errKVMiss
	}
	return val, err
}

func (r *redisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisKV) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

type gate struct {
	repo   Repository
	kv     kvStore
	logger *logger.Logger
}

// NewGate creates the token gate over Redis and the relational mirror
func NewGate(repo Repository, client *redis.Client) Gate {
	return &gate{
		repo:   repo,
		kv:     &redisKV{client: client},
		logger: logger.GetDefault(),
	}
}

// newGateWithKV is the seam used by tests
func newGateWithKV(repo Repository, kv kvStore) Gate {
	return &gate{
		repo:   repo,
		kv:     kv,
		logger: logger.GetDefault(),
	}
}

// IsBlacklisted checks Redis first, then reads through to the database.
// A KV outage fails open: short-lived access tokens make the window
// acceptable, and the DB still answers on the read-through path.
func (g *gate) IsBlacklisted(ctx context.Context, token string) bool {
	hash := HashToken(token)
	key := constants.BuildBlacklistKey(hash)

	_, err := g.kv.Get(ctx, key)
	if err == nil {
		return true
	}
	if err != errKVMiss {
		g.logger.DebugWithContext(ctx, "blacklist kv lookup failed, reading through",
			map[string]interface{}{"error": err.Error()})
	}

	record, err := g.repo.IsBlacklisted(ctx, hash)
	if err != nil {
		if !errors.Is(err, ErrTokenNotFound) {
			g.logger.ErrorWithContext(ctx, "blacklist db lookup failed", err, nil)
		}
		return false
	}

	// Repopulate the cache with the remaining lifetime
	if ttl := time.Until(record.ExpiresAt); ttl > 0 {
		if err := g.kv.Set(ctx, key, record.UserID.String(), ttl); err != nil {
			g.logger.DebugWithContext(ctx, "blacklist kv repopulate failed",
				map[string]interface{}{"error": err.Error()})
		}
	}

	return true
}

// Blacklist revokes an access token in both stores
func (g *gate) Blacklist(ctx context.Context, token string, userID uuid.UUID, expiresAt time.Time) error {
	hash := HashToken(token)

	if err := g.repo.InsertBlacklisted(ctx, &BlacklistedToken{
		TokenHash: hash,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}); err != nil {
		return err
	}

	if ttl := time.Until(expiresAt); ttl > 0 {
		if err := g.kv.Set(ctx, constants.BuildBlacklistKey(hash), userID.String(), ttl); err != nil {
			// DB write succeeded; the read-through covers the cache gap
			g.logger.DebugWithContext(ctx, "blacklist kv set failed",
				map[string]interface{}{"error": err.Error()})
		}
	}

	return nil
}

// CacheRefresh records an issued refresh token in both stores
func (g *gate) CacheRefresh(ctx context.Context, token string, userID uuid.UUID, expiresAt time.Time) error {
	hash := HashToken(token)

	if err := g.repo.InsertRefresh(ctx, &RefreshToken{
		TokenHash: hash,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}); err != nil {
		return err
	}

	info := RefreshInfo{UserID: userID, Revoked: false, ExpiresAt: expiresAt}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	if ttl := time.Until(expiresAt); ttl > 0 {
		if err := g.kv.Set(ctx, constants.BuildRefreshTokenKey(hash), string(data), ttl); err != nil {
			g.logger.DebugWithContext(ctx, "refresh kv set failed",
				map[string]interface{}{"error": err.Error()})
		}
	}

	return nil
}

// GetRefresh returns the refresh token record, or nil when unknown
func (g *gate) GetRefresh(ctx context.Context, token string) (*RefreshInfo, error) {
	hash := HashToken(token)
	key := constants.BuildRefreshTokenKey(hash)

	val, err := g.kv.Get(ctx, key)
	if err == nil {
		var info RefreshInfo
		if err := json.Unmarshal([]byte(val), &info); err == nil {
			return &info, nil
		}
	}

	record, err := g.repo.GetRefresh(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, nil
		}
		return nil, err
	}

	info := &RefreshInfo{
		UserID:    record.UserID,
		Revoked:   record.Revoked,
		ExpiresAt: record.ExpiresAt,
	}

	if ttl := time.Until(record.ExpiresAt); ttl > 0 && !record.Revoked {
		if data, err := json.Marshal(info); err == nil {
			if err := g.kv.Set(ctx, key, string(data), ttl); err != nil {
				g.logger.DebugWithContext(ctx, "refresh kv repopulate failed",
					map[string]interface{}{"error": err.Error()})
			}
		}
	}

	return info, nil
}

// RevokeAllForUser revokes every live refresh token for a user in the
// database and removes the KV mirrors so the next use misses to the
// revoked rows.
func (g *gate) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	tokens, err := g.repo.RevokeRefreshForUser(ctx, userID)
	if err != nil {
		return err
	}

	if len(tokens) == 0 {
		return nil
	}

	keys := make([]string, 0, len(tokens))
	for _, t := range tokens {
		keys = append(keys, constants.BuildRefreshTokenKey(t.TokenHash))
	}

	if err := g.kv.Del(ctx, keys...); err != nil {
		g.logger.ErrorWithContext(ctx, "refresh kv revoke-all delete failed", err,
			map[string]interface{}{"user_id": userID.String()})
	}

	return nil
}
