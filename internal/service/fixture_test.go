package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"residence-data/internal/domain"
	"residence-data/internal/repository"
	"residence-data/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testTenant = "t1"

// recordingSink 记录审计事件
type recordingSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *recordingSink) Emit(_ context.Context, ev AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.ResourceType+"."+ev.Action)
	}
	return out
}

type fixture struct {
	store    *repository.MemoryStore
	mr       *miniredis.Miniredis
	engine   *AllocationEngine
	beds     *BedRegistry
	housings HousingService
	ledger   *OccupancyLedger
	stats    *StatisticsService
	audit    *recordingSink

	housingID string
	roomID    string
	room2ID   string
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithUoW(t, nil)
}

// newFixtureWithUoW wrap 可替换事务实现（故障注入）
func newFixtureWithUoW(t *testing.T, wrap func(repository.UnitOfWork) repository.UnitOfWork) *fixture {
	t.Helper()
	logger := zap.NewNop()
	mem := repository.NewMemoryStore()

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	var uow repository.UnitOfWork = mem
	if wrap != nil {
		uow = wrap(mem)
	}
	runner := NewTxRunner(uow, TxPolicy{MaxRetries: 2, Timeout: time.Second, Backoff: time.Millisecond}, NewMetrics(nil), logger)
	stats := NewStatisticsService(mem, store.NewRedisKV(rc), time.Minute, logger)
	audit := &recordingSink{}
	hooks := CommitHooks{Audit: audit, Stats: stats, Logger: logger}

	ledger := NewOccupancyLedger(mem, mem, runner, hooks, 30, logger)
	f := &fixture{
		store:    mem,
		mr:       mr,
		engine:   NewAllocationEngine(ledger, runner, hooks, logger),
		beds:     NewBedRegistry(mem, runner, hooks, logger),
		housings: NewHousingService(mem, runner, hooks, logger),
		ledger:   ledger,
		stats:    stats,
		audit:    audit,
	}

	ctx := context.Background()
	h, err := f.housings.CreateHousing(ctx, CreateHousingRequest{
		TenantID: testTenant, Name: "Cité U Nord", DeclaredRooms: 2, TotalCapacity: 4, Actor: "admin",
	})
	require.NoError(t, err)
	f.housingID = h.HousingID

	r1, err := f.housings.CreateRoom(ctx, CreateRoomRequest{TenantID: testTenant, HousingID: h.HousingID, Label: "101", Capacity: 2, Actor: "admin"})
	require.NoError(t, err)
	r2, err := f.housings.CreateRoom(ctx, CreateRoomRequest{TenantID: testTenant, HousingID: h.HousingID, Label: "102", Capacity: 2, Actor: "admin"})
	require.NoError(t, err)
	f.roomID, f.room2ID = r1.RoomID, r2.RoomID

	for i := 0; i < 20; i++ {
		require.NoError(t, mem.UpsertStudent(ctx, &domain.Student{
			StudentID: fmt.Sprintf("s%d", i), TenantID: testTenant, FullName: fmt.Sprintf("Étudiant %d", i),
		}))
	}
	return f
}

func (f *fixture) generate(t *testing.T, roomID string, capacity int) *GenerateBedsResponse {
	t.Helper()
	resp, err := f.beds.GenerateBedsForRoom(context.Background(), GenerateBedsRequest{
		TenantID: testTenant, RoomID: roomID, Capacity: capacity, Actor: "admin",
	})
	require.NoError(t, err)
	return resp
}

func (f *fixture) bed(t *testing.T, roomID, label string) *domain.Bed {
	t.Helper()
	beds, err := f.store.ListBeds(context.Background(), testTenant, roomID, "")
	require.NoError(t, err)
	for _, b := range beds {
		if b.Number == label {
			return b
		}
	}
	t.Fatalf("bed %s not found in room %s", label, roomID)
	return nil
}

func (f *fixture) room(t *testing.T, roomID string) *domain.Room {
	t.Helper()
	r, err := f.store.GetRoom(context.Background(), testTenant, roomID)
	require.NoError(t, err)
	return r
}

func (f *fixture) housing(t *testing.T) *domain.Housing {
	t.Helper()
	h, err := f.store.GetHousing(context.Background(), testTenant, f.housingID)
	require.NoError(t, err)
	return h
}

func assignReq(studentID, bedID, roomID string) AssignBedRequest {
	return AssignBedRequest{
		TenantID:    testTenant,
		StudentID:   studentID,
		BedID:       bedID,
		RoomID:      roomID,
		StartDate:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		MonthlyRent: decimal.NewFromInt(15000),
		Actor:       "admin",
	}
}
