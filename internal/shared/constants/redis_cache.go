package constants

import (
	"fmt"
	"time"
)

// Redis keyspace and TTL values for the booking engine.
//
// Key layout:
//   seat_lock:{event}:{type}:{label}   soft lock hash (user_id, locked_at, expires_at)
//   avail:{event}:{type}               availability counter projection
//   event:{id}                         cached event details
//   events:list                        cached default listing page
//   blacklist:{token}                  revoked-token mirror
//   refresh_token:{token}              refresh-token mirror
//   rate_limit:{scope}:{identity}      sliding-window rate limiting
//   ticket_job:{id}                    ticket job state + progress

// ================== TTL DURATIONS ==================

const (
	TTL_SEAT_LOCK    = 10 * time.Minute // soft lock window (LOCK_TTL)
	TTL_AVAILABILITY = 60 * time.Second // availability counter projection
	TTL_EVENT_DETAIL = 2 * time.Hour    // event details cache
	TTL_EVENT_LIST   = 15 * time.Minute // default listing page
	TTL_JOB_STATUS   = 24 * time.Hour   // ticket job progress retention
)

// ================== KEY PREFIXES ==================

const (
	KEY_SEAT_LOCK     = "seat_lock"
	KEY_AVAILABILITY  = "avail"
	KEY_EVENT_DETAIL  = "event"
	KEY_EVENTS_LIST   = "events:list"
	KEY_BLACKLIST     = "blacklist"
	KEY_REFRESH_TOKEN = "refresh_token"
	KEY_RATE_LIMIT    = "rate_limit"
	KEY_TICKET_JOB    = "ticket_job"
)

// ================== KEY BUILDERS ==================

// BuildSeatLockKey builds the per-label lock key: seat_lock:{event}:{type}:{label}
func BuildSeatLockKey(eventID, seatTypeID, seatLabel string) string {
	return fmt.Sprintf("%s:%s:%s:%s", KEY_SEAT_LOCK, eventID, seatTypeID, seatLabel)
}

// BuildSeatLockPattern matches every lock under one seat type
func BuildSeatLockPattern(eventID, seatTypeID string) string {
	return fmt.Sprintf("%s:%s:%s:*", KEY_SEAT_LOCK, eventID, seatTypeID)
}

// BuildAvailabilityKey builds the counter key: avail:{event}:{type}
func BuildAvailabilityKey(eventID, seatTypeID string) string {
	return fmt.Sprintf("%s:%s:%s", KEY_AVAILABILITY, eventID, seatTypeID)
}

// BuildAvailabilityPattern matches every counter for one event
func BuildAvailabilityPattern(eventID string) string {
	return fmt.Sprintf("%s:%s:*", KEY_AVAILABILITY, eventID)
}

// BuildEventDetailKey builds the event details cache key: event:{id}
func BuildEventDetailKey(eventID string) string {
	return fmt.Sprintf("%s:%s", KEY_EVENT_DETAIL, eventID)
}

// BuildBlacklistKey builds the revoked-token mirror key: blacklist:{token}
func BuildBlacklistKey(tokenHash string) string {
	return fmt.Sprintf("%s:%s", KEY_BLACKLIST, tokenHash)
}

// BuildRefreshTokenKey builds the refresh-token mirror key: refresh_token:{token}
func BuildRefreshTokenKey(tokenHash string) string {
	return fmt.Sprintf("%s:%s", KEY_REFRESH_TOKEN, tokenHash)
}

// BuildRateLimitKey builds the limiter key: rate_limit:{scope}:{identity}
func BuildRateLimitKey(scope, identity string) string {
	return fmt.Sprintf("%s:%s:%s", KEY_RATE_LIMIT, scope, identity)
}

// BuildTicketJobKey builds the job progress key: ticket_job:{id}
func BuildTicketJobKey(jobID string) string {
	return fmt.Sprintf("%s:%s", KEY_TICKET_JOB, jobID)
}
