//go:build integration
// +build integration

package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"residence-data/common/database"
	"residence-data/internal/config"
	"residence-data/internal/domain"
	"residence-data/internal/repository"
	"residence-data/migrations"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openIntegrationDB 使用 DB_* 环境变量；连不上则跳过
func openIntegrationDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := config.Load()
	db, err := database.NewPostgresDB(context.Background(), &cfg.Database)
	if err != nil {
		t.Skipf("postgres not reachable: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	schema, err := migrations.FS.ReadFile("001_housing_occupancy.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)
	return db
}

func TestPostgres_ConcurrentAssignSingleWinner(t *testing.T) {
	db := openIntegrationDB(t)
	ctx := context.Background()
	logger := zapNop()
	tenantID := uuid.NewString()

	housingRepo := repository.NewPostgresHousingRepository(db)
	occRepo := repository.NewPostgresOccupancyRepository(db)
	students := repository.NewPostgresStudentsRepository(db)
	runner := NewTxRunner(repository.NewPostgresUnitOfWork(db), TxPolicy{MaxRetries: 5, Timeout: 5 * time.Second, Backoff: 10 * time.Millisecond}, NewMetrics(nil), logger)
	hooks := CommitHooks{Logger: logger}
	ledger := NewOccupancyLedger(occRepo, students, runner, hooks, 30, logger)
	engine := NewAllocationEngine(ledger, runner, hooks, logger)
	beds := NewBedRegistry(housingRepo, runner, hooks, logger)
	housings := NewHousingService(housingRepo, runner, hooks, logger)

	h, err := housings.CreateHousing(ctx, CreateHousingRequest{TenantID: tenantID, Name: "Integration", TotalCapacity: 1, Actor: "it"})
	require.NoError(t, err)
	room, err := housings.CreateRoom(ctx, CreateRoomRequest{TenantID: tenantID, HousingID: h.HousingID, Label: "I-1", Capacity: 1, Actor: "it"})
	require.NoError(t, err)
	gen, err := beds.GenerateBedsForRoom(ctx, GenerateBedsRequest{TenantID: tenantID, RoomID: room.RoomID, Capacity: 1, Actor: "it"})
	require.NoError(t, err)
	require.Len(t, gen.Created, 1)
	bedID := gen.Created[0].BedID

	const workers = 8
	studentIDs := make([]string, workers)
	for i := range studentIDs {
		studentIDs[i] = "it-" + uuid.NewString()
		require.NoError(t, students.UpsertStudent(ctx, &domain.Student{StudentID: studentIDs[i], TenantID: tenantID, FullName: "IT student"}))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(student string) {
			defer wg.Done()
			req := AssignBedRequest{
				TenantID: tenantID, StudentID: student, BedID: bedID, RoomID: room.RoomID,
				StartDate: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
				EndDate:   time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
				Actor:     "it",
			}
			_, err := engine.AssignBed(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case domain.IsKind(err, domain.KindConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(studentIDs[i])
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, conflicts)

	st, err := occRepo.Statistics(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Active)
	assert.Equal(t, 1, st.BedsOccupied)

	got, err := housingRepo.GetHousing(ctx, tenantID, h.HousingID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentOccupation)
	assert.Equal(t, 100.0, got.OccupancyRate)
}
