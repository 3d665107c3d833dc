package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOccupancy_StateMachine(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	o := &Occupancy{Status: OccupancyActive}
	require.NoError(t, o.Release(now, "admin"))
	assert.Equal(t, OccupancyEnded, o.Status)
	assert.True(t, o.ActualEndDate.Valid)
	assert.Equal(t, now, o.ActualEndDate.Time)
	assert.Equal(t, "admin", o.UpdatedBy)

	err := o.Release(now, "admin")
	assert.True(t, IsKind(err, KindInvalidState))
	err = o.Cancel("late", now, "admin")
	assert.True(t, IsKind(err, KindInvalidState), "ended is terminal")

	c := &Occupancy{Status: OccupancyActive}
	require.NoError(t, c.Cancel("duplicate request", now, "admin"))
	assert.Equal(t, OccupancyCancelled, c.Status)
	assert.Equal(t, "duplicate request", c.CancellationReason.String)
	assert.False(t, c.ActualEndDate.Valid)
	assert.True(t, IsKind(c.Cancel("again", now, "admin"), KindInvalidState))
	assert.True(t, IsKind(c.Release(now, "admin"), KindInvalidState))
}

func TestOccupancy_CancelRequiresReason(t *testing.T) {
	o := &Occupancy{Status: OccupancyActive}
	err := o.Cancel("   ", time.Now(), "admin")
	assert.True(t, IsKind(err, KindValidation))
	assert.Equal(t, OccupancyActive, o.Status)
}

func TestOccupancy_MarkRentPaid(t *testing.T) {
	now := time.Now()
	o := &Occupancy{Status: OccupancyEnded}
	o.MarkRentPaid(now, "bursar")
	assert.True(t, o.IsRentPaid)
	assert.True(t, o.LastRentPaymentDate.Valid)
	assert.Equal(t, "bursar", o.UpdatedBy)
}

func TestErrorKinds(t *testing.T) {
	err := Conflictf("Lit non disponible (statut: %s)", BedOccupied.Label())
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "Lit non disponible (statut: occupé)", PublicMessage(err))

	un := Unavailable(assert.AnError)
	assert.ErrorIs(t, un, assert.AnError)
	assert.NotContains(t, PublicMessage(un), assert.AnError.Error())

	assert.Equal(t, ErrorKind(""), KindOf(assert.AnError))
	assert.Equal(t, "internal error", PublicMessage(assert.AnError))
}
