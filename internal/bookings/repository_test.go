package bookings

import (
	"strings"
	"testing"

	"ticketly/internal/seats"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/utils/tests"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(tests.DummyDialector{}, &gorm.Config{DryRun: true, SkipDefaultTransaction: true})
	require.NoError(t, err)
	return db
}

// Postgres rejects FOR UPDATE combined with aggregate functions, so the
// confirmation path must lock the seat rows themselves and count what
// came back.
func TestLockedSeatQuerySelectsRowsNotAggregates(t *testing.T) {
	db := dryRunDB(t)

	var rows []seats.Seat
	stmt := lockedSeatQuery(db, []uuid.UUID{uuid.New(), uuid.New()}).Find(&rows).Statement

	sql := strings.ToLower(stmt.SQL.String())
	assert.Contains(t, sql, "for update")
	assert.NotContains(t, sql, "count(")
}

func TestUserBookingsQueryFiltersByStatus(t *testing.T) {
	userID := uuid.New()

	var rows []Booking
	stmt := userBookingsQuery(dryRunDB(t), userID, BookingListQuery{Status: "confirmed"}).Find(&rows).Statement
	assert.Contains(t, stmt.SQL.String(), "status = ")
	assert.Contains(t, stmt.Vars, "confirmed")

	stmt = userBookingsQuery(dryRunDB(t), userID, BookingListQuery{}).Find(&rows).Statement
	assert.NotContains(t, stmt.SQL.String(), "status = ")
}
