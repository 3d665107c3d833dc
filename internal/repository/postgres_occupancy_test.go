package repository

import (
	"context"
	"testing"
	"time"

	"residence-data/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var occupancyCols = []string{
	"occupancy_id", "tenant_id", "student_id", "bed_id", "room_id", "housing_id",
	"start_date", "end_date", "actual_end_date", "status",
	"monthly_rent", "is_rent_paid", "last_rent_payment_date", "cancellation_reason",
	"created_by", "updated_by", "created_at", "updated_at",
	"full_name", "room_label", "bed_number",
}

func occupancyRow(rows *sqlmock.Rows, id string, end time.Time) *sqlmock.Rows {
	start := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now()
	return rows.AddRow(
		id, "tenant-1", "student-1", "bed-1", "room-1", "housing-1",
		start, end, nil, "active",
		"450.00", false, nil, nil,
		"admin", "admin", now, now,
		"Awa Diop", "101", "A",
	)
}

func TestListOccupancies_FiltersAndPagination(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresOccupancyRepository(db)

	end := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT COUNT\(\*\)\s+FROM occupancies o`).
		WithArgs("tenant-1", "active", "room-1", "%diop%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`ORDER BY o.start_date DESC, o.created_at DESC LIMIT \$5 OFFSET \$6`).
		WithArgs("tenant-1", "active", "room-1", "%diop%", 2, 2).
		WillReturnRows(occupancyRow(sqlmock.NewRows(occupancyCols), "occ-3", end))

	items, total, err := repo.ListOccupancies(context.Background(), "tenant-1",
		OccupancyFilters{Status: "active", RoomID: "room-1", Search: "diop"}, 2, 2)

	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 1)
	o := items[0]
	assert.Equal(t, "occ-3", o.OccupancyID)
	assert.Equal(t, domain.OccupancyActive, o.Status)
	assert.Equal(t, "450.00", o.MonthlyRent.StringFixed(2))
	assert.Equal(t, "housing-1", o.HousingID.String)
	assert.False(t, o.ActualEndDate.Valid)
	assert.Equal(t, "Awa Diop", o.StudentName)
	assert.Equal(t, "A", o.BedNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOccupancies_EmptyTenant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	items, total, err := NewPostgresOccupancyRepository(db).ListOccupancies(context.Background(), "", OccupancyFilters{}, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIterExpiring_StopsEarlyAndClosesRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresOccupancyRepository(db)

	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 30)
	rows := sqlmock.NewRows(occupancyCols)
	occupancyRow(rows, "occ-1", from.AddDate(0, 0, 3))
	occupancyRow(rows, "occ-2", from.AddDate(0, 0, 9))
	mock.ExpectQuery(`o.end_date BETWEEN \$2::date AND \$3::date`).
		WithArgs("tenant-1", "2026-06-01", "2026-07-01").
		WillReturnRows(rows).
		RowsWillBeClosed()

	var seen []string
	for o, err := range repo.IterExpiring(context.Background(), "tenant-1", from, to) {
		require.NoError(t, err)
		seen = append(seen, o.OccupancyID)
		break
	}

	assert.Equal(t, []string{"occ-1"}, seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatistics(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresOccupancyRepository(db)

	mock.ExpectQuery(`FROM occupancies`).
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "active", "ended", "cancelled", "unpaid"}).
			AddRow(10, 6, 3, 1, 2))
	mock.ExpectQuery(`FROM beds`).
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "occupied", "available"}).
			AddRow(20, 6, 12))

	s, err := repo.Statistics(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, OccupancyStats{
		Total: 10, Active: 6, Ended: 3, Cancelled: 1, Unpaid: 2,
		BedsTotal: 20, BedsOccupied: 6, BedsAvailable: 12,
	}, *s)
	assert.NoError(t, mock.ExpectationsWereMet())
}
