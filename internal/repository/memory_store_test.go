package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"residence-data/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRoom(t *testing.T, m *MemoryStore, tenantID string, beds ...string) (housingID, roomID string) {
	t.Helper()
	ctx := context.Background()
	housingID, err := m.CreateHousing(ctx, &domain.Housing{TenantID: tenantID, Name: "Résidence Nord", TotalCapacity: 10})
	require.NoError(t, err)
	roomID, err = m.CreateRoom(ctx, &domain.Room{TenantID: tenantID, HousingID: housingID, Label: "101", Capacity: len(beds)})
	require.NoError(t, err)
	require.NoError(t, m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		for _, n := range beds {
			if err := tx.InsertBed(ctx, &domain.Bed{TenantID: tenantID, RoomID: roomID, Number: n, Status: domain.BedAvailable, IsActive: true}); err != nil {
				return err
			}
		}
		return nil
	}))
	return housingID, roomID
}

func TestMemoryStore_RollbackDiscardsWork(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	_, roomID := seedRoom(t, m, "t1", "A")
	beds, _ := m.ListBeds(ctx, "t1", roomID, "")
	require.Len(t, beds, 1)
	bedID := beds[0].BedID

	boom := errors.New("boom")
	err := m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.UpdateBedStatus(ctx, "t1", bedID, domain.BedOccupied, sql.NullString{}, "admin"))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	bed, err := m.GetBed(ctx, "t1", bedID)
	require.NoError(t, err)
	assert.Equal(t, domain.BedAvailable, bed.Status)
}

func TestMemoryStore_ExpiredContextDoesNotCommit(t *testing.T) {
	m := NewMemoryStore()
	_, roomID := seedRoom(t, m, "t1", "A")
	beds, _ := m.ListBeds(context.Background(), "t1", roomID, "")
	bedID := beds[0].BedID

	ctx, cancel := context.WithCancel(context.Background())
	err := m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		cancel()
		return tx.UpdateBedStatus(ctx, "t1", bedID, domain.BedMaintenance, sql.NullString{}, "admin")
	})
	assert.True(t, domain.IsKind(err, domain.KindUnavailable))

	bed, _ := m.GetBed(context.Background(), "t1", bedID)
	assert.Equal(t, domain.BedAvailable, bed.Status)
}

func TestMemoryStore_TenantIsolation(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	housingID, roomID := seedRoom(t, m, "t1", "A")

	_, err := m.GetHousing(ctx, "t2", housingID)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
	_, err = m.GetRoom(ctx, "t2", roomID)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	beds, err := m.ListBeds(ctx, "t2", roomID, "")
	require.NoError(t, err)
	assert.Empty(t, beds)

	tenantID, err := m.TenantIDByRoomID(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, "t1", tenantID)
}

func TestMemoryStore_UniqueConstraints(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	housingID, roomID := seedRoom(t, m, "t1", "A")

	_, err := m.CreateRoom(ctx, &domain.Room{TenantID: "t1", HousingID: housingID, Label: "101"})
	assert.True(t, domain.IsKind(err, domain.KindConflict))

	err = m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertBed(ctx, &domain.Bed{TenantID: "t1", RoomID: roomID, Number: "A", Status: domain.BedAvailable})
	})
	assert.True(t, domain.IsKind(err, domain.KindConflict))

	beds, _ := m.ListBeds(ctx, "t1", roomID, "")
	bedID := beds[0].BedID
	insert := func() error {
		return m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.InsertOccupancy(ctx, &domain.Occupancy{
				TenantID: "t1", StudentID: "s1", BedID: bedID, RoomID: roomID,
				Status: domain.OccupancyActive, MonthlyRent: decimal.Zero,
			})
		})
	}
	require.NoError(t, insert())
	err = insert()
	assert.True(t, domain.IsKind(err, domain.KindConflict))
}

func TestMemoryStore_ListBedsOrderAndFilter(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	_, roomID := seedRoom(t, m, "t1", "27", "B", "A")

	beds, err := m.ListBeds(ctx, "t1", roomID, "")
	require.NoError(t, err)
	var numbers []string
	for _, b := range beds {
		numbers = append(numbers, b.Number)
	}
	assert.Equal(t, []string{"A", "B", "27"}, numbers)

	require.NoError(t, m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.UpdateBedStatus(ctx, "t1", beds[0].BedID, domain.BedMaintenance, sql.NullString{String: "fuite", Valid: true}, "admin")
	}))
	available, err := m.ListBeds(ctx, "t1", roomID, domain.BedAvailable)
	require.NoError(t, err)
	assert.Len(t, available, 2)

	bed, _ := m.GetBed(ctx, "t1", beds[0].BedID)
	assert.Equal(t, "fuite", bed.Notes.String)
}

func TestMemoryStore_DeleteHousingCascades(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	housingID, roomID := seedRoom(t, m, "t1", "A", "B")

	require.NoError(t, m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.DeleteHousing(ctx, "t1", housingID)
	}))

	_, err := m.GetRoom(ctx, "t1", roomID)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
	beds, _ := m.ListBeds(ctx, "t1", roomID, "")
	assert.Empty(t, beds)
}

func TestMemoryStore_IterExpiringOrderAndWindow(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	_, roomID := seedRoom(t, m, "t1", "A", "B", "C")
	beds, _ := m.ListBeds(ctx, "t1", roomID, "")

	today := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	ends := []time.Time{today.AddDate(0, 0, 20), today.AddDate(0, 0, 5), today.AddDate(0, 0, 45)}
	require.NoError(t, m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		for i, b := range beds {
			if err := tx.InsertOccupancy(ctx, &domain.Occupancy{
				TenantID: "t1", StudentID: "s1", BedID: b.BedID, RoomID: roomID,
				StartDate: today.AddDate(-1, 0, 0), EndDate: ends[i],
				Status: domain.OccupancyActive, MonthlyRent: decimal.Zero,
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	var got []time.Time
	for o, err := range m.IterExpiring(ctx, "t1", today, today.AddDate(0, 0, 30)) {
		require.NoError(t, err)
		got = append(got, o.EndDate)
	}
	assert.Equal(t, []time.Time{ends[1], ends[0]}, got)
}

func TestMemoryStore_ListOccupanciesSearch(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	_, roomID := seedRoom(t, m, "t1", "A", "B")
	beds, _ := m.ListBeds(ctx, "t1", roomID, "")
	require.NoError(t, m.UpsertStudent(ctx, &domain.Student{StudentID: "s1", TenantID: "t1", FullName: "Awa Diop"}))
	require.NoError(t, m.UpsertStudent(ctx, &domain.Student{StudentID: "s2", TenantID: "t1", FullName: "Jean Martin"}))

	require.NoError(t, m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		for i, sid := range []string{"s1", "s2"} {
			if err := tx.InsertOccupancy(ctx, &domain.Occupancy{
				TenantID: "t1", StudentID: sid, BedID: beds[i].BedID, RoomID: roomID,
				Status: domain.OccupancyActive, MonthlyRent: decimal.Zero,
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	items, total, err := m.ListOccupancies(ctx, "t1", OccupancyFilters{Search: "diop"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "Awa Diop", items[0].StudentName)
	assert.Equal(t, "101", items[0].RoomLabel)

	stats, err := m.Statistics(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 2, stats.Unpaid)
	assert.Equal(t, 2, stats.BedsTotal)
}
