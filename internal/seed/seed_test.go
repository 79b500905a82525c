package seed

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/attendance"
	"campusattend/internal/directory"
)

func TestRoster(t *testing.T) {
	users := Roster("23210")
	pins := map[string]bool{}
	var nStudents int
	for _, u := range users {
		assert.False(t, pins[u.PIN], "duplicate pin %s", u.PIN)
		pins[u.PIN] = true
		if u.IsStudent() {
			nStudents++
			assert.Regexp(t, `^23210-[A-Z]+-\d{3}$`, u.PIN)
		}
	}
	assert.Equal(t, len(students), nStudents)
	assert.True(t, pins["23210-EC-001"])
	assert.True(t, pins["PRI-01"])
	assert.Equal(t, "kummari.vaishnavi@mira.edu", users[len(staff)].Email)
}

func TestBackfillSkipsToday(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC))
	ledger := attendance.NewLedger(attendance.NewMemoryRepository(), clock, time.UTC, nil)
	users := []directory.User{
		{ID: "s1", Role: directory.RoleStudent},
		{ID: "f1", Role: directory.RoleFaculty},
		{ID: "st1", Role: directory.RoleStaff},
	}

	n, err := Backfill(ctx, ledger, users, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, 2*BackfillDays, n)

	today, err := ledger.ByDate(ctx, "2026-10-14")
	require.NoError(t, err)
	assert.Empty(t, today)

	history, err := ledger.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, BackfillDays)
	assert.Equal(t, "2026-10-13", history[0].Date)

	again, err := Backfill(ctx, ledger, users, rand.New(rand.NewSource(2)))
	require.NoError(t, err)
	assert.Zero(t, again)
}
