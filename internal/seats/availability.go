package seats

import (
	"context"
	"fmt"
	"strconv"

	"ticketly/internal/events"
	"ticketly/internal/shared/constants"
	"ticketly/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Availability maintains the short-lived availability counters in Redis.
// The counters are a projection over event_seat_types; the short TTL
// bounds how stale a wrong answer can get after a missed update.
type Availability interface {
	Get(ctx context.Context, eventID, seatTypeID uuid.UUID) (int, error)
	Decrement(ctx context.Context, eventID, seatTypeID uuid.UUID)
	Increment(ctx context.Context, eventID, seatTypeID uuid.UUID, delta int)
	Invalidate(ctx context.Context, eventID uuid.UUID)
	InvalidateType(ctx context.Context, eventID, seatTypeID uuid.UUID)
}

type redisAvailability struct {
	redis  *redis.Client
	events events.Reader
}

func NewAvailability(redisClient *redis.Client, eventsReader events.Reader) Availability {
	return &redisAvailability{
		redis:  redisClient,
		events: eventsReader,
	}
}

// Decrement floors the counter at zero instead of going negative
const luaDecrementAvailability = `
local current = redis.call("GET", KEYS[1])
if not current then
    return -1
end
if tonumber(current) <= 0 then
    return 0
end
return redis.call("DECR", KEYS[1])
`

func (a *redisAvailability) Get(ctx context.Context, eventID, seatTypeID uuid.UUID) (int, error) {
	key := constants.BuildAvailabilityKey(eventID.String(), seatTypeID.String())

	value, err := a.redis.Get(ctx, key).Result()
	if err == nil {
		count, parseErr := strconv.Atoi(value)
		if parseErr == nil {
			return count, nil
		}
	} else if err != redis.Nil {
		logger.GetDefault().DebugWithContext(ctx, "availability counter read failed",
			map[string]interface{}{"key": key, "error": err.Error()})
	}

	// Miss or garbage; rebuild from the authoritative row
	seatType, err := a.events.GetSeatTypeRecord(ctx, seatTypeID)
	if err != nil {
		return 0, fmt.Errorf("rebuild availability counter: %w", err)
	}

	count := seatType.AvailableQuantity
	if setErr := a.redis.Set(ctx, key, count, constants.TTL_AVAILABILITY).Err(); setErr != nil {
		logger.GetDefault().DebugWithContext(ctx, "availability counter write failed",
			map[string]interface{}{"key": key, "error": setErr.Error()})
	}
	return count, nil
}

func (a *redisAvailability) Decrement(ctx context.Context, eventID, seatTypeID uuid.UUID) {
	key := constants.BuildAvailabilityKey(eventID.String(), seatTypeID.String())
	if err := a.redis.Eval(ctx, luaDecrementAvailability, []string{key}).Err(); err != nil {
		// Best effort; the next Get repopulates from Postgres
		logger.GetDefault().DebugWithContext(ctx, "availability decrement failed",
			map[string]interface{}{"key": key, "error": err.Error()})
	}
}

func (a *redisAvailability) Increment(ctx context.Context, eventID, seatTypeID uuid.UUID, delta int) {
	if delta <= 0 {
		return
	}
	key := constants.BuildAvailabilityKey(eventID.String(), seatTypeID.String())
	exists, err := a.redis.Exists(ctx, key).Result()
	if err != nil || exists == 0 {
		return
	}
	if err := a.redis.IncrBy(ctx, key, int64(delta)).Err(); err != nil {
		logger.GetDefault().DebugWithContext(ctx, "availability increment failed",
			map[string]interface{}{"key": key, "error": err.Error()})
	}
}

func (a *redisAvailability) Invalidate(ctx context.Context, eventID uuid.UUID) {
	a.deletePattern(ctx, constants.BuildAvailabilityPattern(eventID.String()))
}

func (a *redisAvailability) InvalidateType(ctx context.Context, eventID, seatTypeID uuid.UUID) {
	key := constants.BuildAvailabilityKey(eventID.String(), seatTypeID.String())
	if err := a.redis.Del(ctx, key).Err(); err != nil {
		logger.GetDefault().DebugWithContext(ctx, "availability invalidate failed",
			map[string]interface{}{"key": key, "error": err.Error()})
	}
}

func (a *redisAvailability) deletePattern(ctx context.Context, pattern string) {
	iter := a.redis.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logger.GetDefault().DebugWithContext(ctx, "availability scan failed",
			map[string]interface{}{"pattern": pattern, "error": err.Error()})
		return
	}
	if len(keys) > 0 {
		if err := a.redis.Del(ctx, keys...).Err(); err != nil {
			logger.GetDefault().DebugWithContext(ctx, "availability invalidate failed",
				map[string]interface{}{"pattern": pattern, "error": err.Error()})
		}
	}
}
