package seats

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"ticketly/internal/shared/constants"

	"github.com/redis/go-redis/v9"
)

// LockStore is the KV half of the lock manager: create-if-absent
// acquisition and holder-guarded release/extend, all atomic in Redis.
type LockStore interface {
	Acquire(ctx context.Context, eventID, seatTypeID, seatLabel string, lock *Lock, ttl time.Duration) (bool, error)
	Release(ctx context.Context, eventID, seatTypeID, seatLabel, userID string) (bool, error)
	Extend(ctx context.Context, eventID, seatTypeID, seatLabel, userID string, newExpiresAt time.Time) (bool, error)
	Get(ctx context.Context, eventID, seatTypeID, seatLabel string) (*Lock, error)
	PreloadScripts(ctx context.Context) error
}

type redisLockStore struct {
	redis *redis.Client
}

func NewLockStore(redisClient *redis.Client) LockStore {
	return &redisLockStore{
		redis: redisClient,
	}
}

// Lua script for atomic lock acquisition. Create-if-absent: the first
// caller materialises the hash, every later caller sees EXISTS and
// loses without touching anything.
const luaAcquireSeatLock = `
-- KEYS[1] = seat_lock:{event}:{type}:{label}
-- ARGV[1] = user_id
-- ARGV[2] = locked_at (unix)
-- ARGV[3] = expires_at (unix)
-- ARGV[4] = ttl_seconds

local key = KEYS[1]

if redis.call("EXISTS", key) == 1 then
    local holder = redis.call("HGET", key, "user_id")
    return {0, holder or "unknown"}
end

redis.call("HSET", key,
    "user_id", ARGV[1],
    "locked_at", ARGV[2],
    "expires_at", ARGV[3]
)
redis.call("EXPIRE", key, tonumber(ARGV[4]))

return {1, "ok"}
`

// Lua script for holder-guarded release
const luaReleaseSeatLock = `
-- KEYS[1] = seat_lock:{event}:{type}:{label}
-- ARGV[1] = user_id

local key = KEYS[1]

local holder = redis.call("HGET", key, "user_id")
if not holder then
    return {0, "not_found"}
end
if holder ~= ARGV[1] then
    return {0, "not_holder"}
end

redis.call("DEL", key)
return {1, "ok"}
`

// Lua script for holder-guarded extension with an absolute deadline
const luaExtendSeatLock = `
-- KEYS[1] = seat_lock:{event}:{type}:{label}
-- ARGV[1] = user_id
-- ARGV[2] = new expires_at (unix)

local key = KEYS[1]

local holder = redis.call("HGET", key, "user_id")
if not holder then
    return {0, "not_found"}
end
if holder ~= ARGV[1] then
    return {0, "not_holder"}
end

redis.call("HSET", key, "expires_at", ARGV[2])
redis.call("EXPIREAT", key, tonumber(ARGV[2]))
return {1, "ok"}
`

func (s *redisLockStore) Acquire(ctx context.Context, eventID, seatTypeID, seatLabel string, lock *Lock, ttl time.Duration) (bool, error) {
	key := constants.BuildSeatLockKey(eventID, seatTypeID, seatLabel)
	keys := []string{key}
	args := []interface{}{
		lock.UserID,
		strconv.FormatInt(lock.LockedAt.Unix(), 10),
		strconv.FormatInt(lock.ExpiresAt.Unix(), 10),
		strconv.Itoa(int(ttl.Seconds())),
	}

	ok, _, err := s.eval(ctx, luaAcquireSeatLock, keys, args...)
	if err != nil {
		return false, fmt.Errorf("acquire seat lock: %w", err)
	}
	return ok, nil
}

func (s *redisLockStore) Release(ctx context.Context, eventID, seatTypeID, seatLabel, userID string) (bool, error) {
	key := constants.BuildSeatLockKey(eventID, seatTypeID, seatLabel)

	ok, _, err := s.eval(ctx, luaReleaseSeatLock, []string{key}, userID)
	if err != nil {
		return false, fmt.Errorf("release seat lock: %w", err)
	}
	return ok, nil
}

func (s *redisLockStore) Extend(ctx context.Context, eventID, seatTypeID, seatLabel, userID string, newExpiresAt time.Time) (bool, error) {
	key := constants.BuildSeatLockKey(eventID, seatTypeID, seatLabel)

	ok, _, err := s.eval(ctx, luaExtendSeatLock, []string{key},
		userID, strconv.FormatInt(newExpiresAt.Unix(), 10))
	if err != nil {
		return false, fmt.Errorf("extend seat lock: %w", err)
	}
	return ok, nil
}

func (s *redisLockStore) Get(ctx context.Context, eventID, seatTypeID, seatLabel string) (*Lock, error) {
	key := constants.BuildSeatLockKey(eventID, seatTypeID, seatLabel)

	fields, err := s.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("get seat lock: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	return parseLockHash(eventID, seatTypeID, seatLabel, fields)
}

// eval runs a script by SHA first, falling back to a full EVAL when the
// script cache was flushed.
func (s *redisLockStore) eval(ctx context.Context, script string, keys []string, args ...interface{}) (bool, string, error) {
	result, err := s.redis.EvalSha(ctx, shaOf(script), keys, args...).Result()
	if err != nil {
		result, err = s.redis.Eval(ctx, script, keys, args...).Result()
		if err != nil {
			return false, "", err
		}
	}

	resultArray, ok := result.([]interface{})
	if !ok || len(resultArray) != 2 {
		return false, "", fmt.Errorf("unexpected result format from Lua script")
	}

	success, ok := resultArray[0].(int64)
	if !ok {
		return false, "", fmt.Errorf("invalid success flag in Lua script result")
	}

	detail, _ := resultArray[1].(string)
	return success == 1, detail, nil
}

// PreloadScripts loads the Lua scripts into Redis at startup
func (s *redisLockStore) PreloadScripts(ctx context.Context) error {
	for _, script := range []string{luaAcquireSeatLock, luaReleaseSeatLock, luaExtendSeatLock} {
		if _, err := s.redis.ScriptLoad(ctx, script).Result(); err != nil {
			return fmt.Errorf("failed to load seat lock script: %w", err)
		}
	}
	return nil
}

func shaOf(script string) string {
	sum := sha1.Sum([]byte(script))
	return hex.EncodeToString(sum[:])
}

func parseLockHash(eventID, seatTypeID, seatLabel string, fields map[string]string) (*Lock, error) {
	lockedAt, err := strconv.ParseInt(fields["locked_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid locked_at in lock hash: %w", err)
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid expires_at in lock hash: %w", err)
	}

	return &Lock{
		EventID:    eventID,
		SeatTypeID: seatTypeID,
		SeatLabel:  seatLabel,
		UserID:     fields["user_id"],
		LockedAt:   time.Unix(lockedAt, 0).UTC(),
		ExpiresAt:  time.Unix(expiresAt, 0).UTC(),
	}, nil
}
