package seats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLockHash(t *testing.T) {
	lockedAt := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	expiresAt := lockedAt.Add(10 * time.Minute)

	lock, err := parseLockHash("ev1", "st1", "V1", map[string]string{
		"user_id":    "u1",
		"locked_at":  "1787738400",
		"expires_at": "1787739000",
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", lock.UserID)
	assert.Equal(t, "V1", lock.SeatLabel)
	assert.Equal(t, lock.ExpiresAt.Sub(lock.LockedAt), expiresAt.Sub(lockedAt))
}

func TestParseLockHashRejectsGarbage(t *testing.T) {
	_, err := parseLockHash("ev1", "st1", "V1", map[string]string{
		"user_id":    "u1",
		"locked_at":  "not-a-number",
		"expires_at": "1787739000",
	})
	assert.Error(t, err)

	_, err = parseLockHash("ev1", "st1", "V1", map[string]string{
		"user_id":   "u1",
		"locked_at": "1787738400",
	})
	assert.Error(t, err)
}

func TestShaOfIsStable(t *testing.T) {
	assert.Equal(t, shaOf(luaAcquireSeatLock), shaOf(luaAcquireSeatLock))
	assert.NotEqual(t, shaOf(luaAcquireSeatLock), shaOf(luaReleaseSeatLock))
	assert.Len(t, shaOf(luaExtendSeatLock), 40)
}
