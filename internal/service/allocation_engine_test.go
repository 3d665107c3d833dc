package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"residence-data/internal/domain"
	"residence-data/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocation_EndToEndScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 1. generate beds for an empty room
	resp := f.generate(t, f.roomID, 2)
	require.Len(t, resp.Created, 2)
	assert.Equal(t, "A", resp.Created[0].Number)
	assert.Equal(t, "B", resp.Created[1].Number)
	assert.Equal(t, domain.BedAvailable, f.bed(t, f.roomID, "A").Status)
	assert.Equal(t, domain.BedAvailable, f.bed(t, f.roomID, "B").Status)
	assert.Equal(t, 0, f.room(t, f.roomID).Occupation)

	// 2. assign bed A
	bedA := f.bed(t, f.roomID, "A")
	res, err := f.engine.AssignBed(ctx, assignReq("s1", bedA.BedID, f.roomID))
	require.NoError(t, err)
	occ := res.Occupancy
	assert.Equal(t, domain.OccupancyActive, occ.Status)
	assert.False(t, occ.IsRentPaid)
	assert.Equal(t, "15000.00", occ.MonthlyRent.StringFixed(2))
	assert.Equal(t, f.housingID, occ.HousingID.String)
	assert.Equal(t, domain.BedOccupied, f.bed(t, f.roomID, "A").Status)
	room := f.room(t, f.roomID)
	assert.Equal(t, 1, room.Occupation)
	assert.Equal(t, 50.0, room.OccupancyRate)
	assert.Equal(t, domain.RoomAvailable, room.Status)

	// 5. housing with two rooms of capacity 2
	h := f.housing(t)
	assert.Equal(t, 1, h.CurrentOccupation)
	assert.Equal(t, 25.0, h.OccupancyRate)
	assert.Equal(t, room.Occupation, res.Room.Occupation)
	assert.Equal(t, h.CurrentOccupation, res.Housing.CurrentOccupation)

	// 3. second assignment on the same bed
	_, err = f.engine.AssignBed(ctx, assignReq("s2", bedA.BedID, f.roomID))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConflict))
	assert.Contains(t, domain.PublicMessage(err), "occupé")
	assert.Equal(t, 1, f.room(t, f.roomID).Occupation)
	assert.Equal(t, 1, f.housing(t).CurrentOccupation)

	// 4. release
	rel, err := f.engine.ReleaseBed(ctx, testTenant, occ.OccupancyID, "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.OccupancyEnded, rel.Occupancy.Status)
	assert.True(t, rel.Occupancy.ActualEndDate.Valid)
	assert.Equal(t, domain.BedAvailable, f.bed(t, f.roomID, "A").Status)
	room = f.room(t, f.roomID)
	assert.Equal(t, 0, room.Occupation)
	assert.Equal(t, 0.0, room.OccupancyRate)
	assert.Equal(t, 0, f.housing(t).CurrentOccupation)

	// release again
	_, err = f.engine.ReleaseBed(ctx, testTenant, occ.OccupancyID, "admin")
	assert.True(t, domain.IsKind(err, domain.KindInvalidState))
}

func TestAllocation_CancelFreesBedAndIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.generate(t, f.roomID, 2)
	bedB := f.bed(t, f.roomID, "B")

	res, err := f.engine.AssignBed(ctx, assignReq("s1", bedB.BedID, f.roomID))
	require.NoError(t, err)

	out, err := f.engine.CancelBed(ctx, testTenant, res.Occupancy.OccupancyID, "duplicate request", "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.OccupancyCancelled, out.Occupancy.Status)
	assert.Equal(t, "duplicate request", out.Occupancy.CancellationReason.String)
	assert.Equal(t, domain.BedAvailable, f.bed(t, f.roomID, "B").Status)
	assert.Equal(t, 0, f.room(t, f.roomID).Occupation)

	_, err = f.engine.CancelBed(ctx, testTenant, res.Occupancy.OccupancyID, "duplicate request", "admin")
	assert.True(t, domain.IsKind(err, domain.KindInvalidState))

	_, err = f.engine.ReleaseBed(ctx, testTenant, res.Occupancy.OccupancyID, "admin")
	assert.True(t, domain.IsKind(err, domain.KindInvalidState))
}

func TestAllocation_CancelRequiresReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.generate(t, f.roomID, 1)
	bed := f.bed(t, f.roomID, "A")
	res, err := f.engine.AssignBed(ctx, assignReq("s1", bed.BedID, f.roomID))
	require.NoError(t, err)

	_, err = f.engine.CancelBed(ctx, testTenant, res.Occupancy.OccupancyID, "  ", "admin")
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.Equal(t, domain.BedOccupied, f.bed(t, f.roomID, "A").Status)
}

func TestAllocation_FullRoomBecomesOccupied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.generate(t, f.roomID, 2)

	for i, label := range []string{"A", "B"} {
		_, err := f.engine.AssignBed(ctx, assignReq(fmt.Sprintf("s%d", i), f.bed(t, f.roomID, label).BedID, f.roomID))
		require.NoError(t, err)
	}
	room := f.room(t, f.roomID)
	assert.Equal(t, domain.RoomOccupied, room.Status)
	assert.Equal(t, 100.0, room.OccupancyRate)
	assert.Equal(t, 50.0, f.housing(t).OccupancyRate)
}

func TestAllocation_ValidationBeforeMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.generate(t, f.roomID, 1)
	bed := f.bed(t, f.roomID, "A")

	cases := map[string]func(r *AssignBedRequest){
		"missing student": func(r *AssignBedRequest) { r.StudentID = "" },
		"end before start": func(r *AssignBedRequest) {
			r.EndDate = r.StartDate.AddDate(0, 0, -1)
		},
		"same day": func(r *AssignBedRequest) { r.EndDate = r.StartDate },
		"negative rent": func(r *AssignBedRequest) {
			r.MonthlyRent = decimal.NewFromInt(-1)
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := assignReq("s1", bed.BedID, f.roomID)
			mutate(&req)
			_, err := f.engine.AssignBed(ctx, req)
			assert.True(t, domain.IsKind(err, domain.KindValidation), "got %v", err)
		})
	}
	assert.Equal(t, domain.BedAvailable, f.bed(t, f.roomID, "A").Status)
}

func TestAllocation_NotFoundCases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.generate(t, f.roomID, 1)
	bed := f.bed(t, f.roomID, "A")

	_, err := f.engine.AssignBed(ctx, assignReq("ghost", bed.BedID, f.roomID))
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	_, err = f.engine.AssignBed(ctx, assignReq("s1", "no-such-bed", f.roomID))
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	// 其他租户看不到该床位
	req := assignReq("s1", bed.BedID, f.roomID)
	req.TenantID = "t2"
	_, err = f.engine.AssignBed(ctx, req)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	_, err = f.engine.ReleaseBed(ctx, testTenant, "no-such-occupancy", "admin")
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestAllocation_RoomMismatchIsConflict(t *testing.T) {
	f := newFixture(t)
	f.generate(t, f.roomID, 1)
	bed := f.bed(t, f.roomID, "A")

	_, err := f.engine.AssignBed(context.Background(), assignReq("s1", bed.BedID, f.room2ID))
	assert.True(t, domain.IsKind(err, domain.KindConflict))
	assert.Equal(t, domain.BedAvailable, f.bed(t, f.roomID, "A").Status)
}

func TestAllocation_MaintenanceBedIsNotAssignable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.generate(t, f.roomID, 1)
	bed := f.bed(t, f.roomID, "A")
	_, err := f.beds.SetStatus(ctx, SetBedStatusRequest{TenantID: testTenant, BedID: bed.BedID, Status: "maintenance", Actor: "admin"})
	require.NoError(t, err)

	_, err = f.engine.AssignBed(ctx, assignReq("s1", bed.BedID, f.roomID))
	assert.True(t, domain.IsKind(err, domain.KindConflict))
	assert.Equal(t, "Lit non disponible (statut: en maintenance)", domain.PublicMessage(err))
}

func TestAllocation_ConcurrentAssignSameBed(t *testing.T) {
	f := newFixture(t)
	f.generate(t, f.roomID, 2)
	bed := f.bed(t, f.roomID, "A")

	const workers = 20
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
		others    atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := f.engine.AssignBed(context.Background(), assignReq(fmt.Sprintf("s%d", i), bed.BedID, f.roomID))
			switch {
			case err == nil:
				successes.Add(1)
			case domain.IsKind(err, domain.KindConflict):
				conflicts.Add(1)
			default:
				others.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(workers-1), conflicts.Load())
	assert.Zero(t, others.Load())

	active, total, err := f.store.ListOccupancies(context.Background(), testTenant,
		repository.OccupancyFilters{BedID: bed.BedID, Status: "active"}, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, active, 1)
	assert.Equal(t, domain.BedOccupied, f.bed(t, f.roomID, "A").Status)
	assert.Equal(t, 1, f.room(t, f.roomID).Occupation)
	assert.Equal(t, 1, f.housing(t).CurrentOccupation)
}

// failingHousingTx 在 housing 重算保存时失败
type failingHousingTx struct{ repository.Tx }

func (failingHousingTx) SaveHousingAggregate(context.Context, *domain.Housing) error {
	return errors.New("disk full")
}

type failingUoW struct {
	inner  repository.UnitOfWork
	active atomic.Bool
}

func (u *failingUoW) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return u.inner.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if u.active.Load() {
			tx = failingHousingTx{tx}
		}
		return fn(ctx, tx)
	})
}

func TestAllocation_RecomputeFailureRollsBackEverything(t *testing.T) {
	var fu *failingUoW
	f := newFixtureWithUoW(t, func(inner repository.UnitOfWork) repository.UnitOfWork {
		fu = &failingUoW{inner: inner}
		return fu
	})
	ctx := context.Background()
	f.generate(t, f.roomID, 2)
	bed := f.bed(t, f.roomID, "A")

	fu.active.Store(true)
	_, err := f.engine.AssignBed(ctx, assignReq("s1", bed.BedID, f.roomID))
	require.Error(t, err)

	assert.Equal(t, domain.BedAvailable, f.bed(t, f.roomID, "A").Status)
	assert.Equal(t, 0, f.room(t, f.roomID).Occupation)
	_, total, err := f.store.ListOccupancies(ctx, testTenant, repository.OccupancyFilters{}, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotContains(t, f.audit.actions(), "occupancy.create")
}

// flakyUoW 前 n 次返回 Unavailable（模拟死锁）
type flakyUoW struct {
	inner    repository.UnitOfWork
	failures int32
	calls    atomic.Int32
}

func (u *flakyUoW) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if u.calls.Add(1) <= u.failures {
		return domain.Unavailable(errors.New("deadlock detected"))
	}
	return u.inner.WithinTx(ctx, fn)
}

func TestAllocation_RetriesUnavailable(t *testing.T) {
	f := newFixture(t)
	f.generate(t, f.roomID, 1)
	bed := f.bed(t, f.roomID, "A")

	flaky := &flakyUoW{inner: f.store, failures: 2}
	runner := NewTxRunner(flaky, TxPolicy{MaxRetries: 2, Timeout: time.Second, Backoff: time.Millisecond}, nil, zapNop())
	engine := NewAllocationEngine(f.ledger, runner, CommitHooks{}, zapNop())

	res, err := engine.AssignBed(context.Background(), assignReq("s1", bed.BedID, f.roomID))
	require.NoError(t, err)
	assert.Equal(t, int32(3), flaky.calls.Load())
	assert.Equal(t, domain.OccupancyActive, res.Occupancy.Status)
}

func TestAllocation_RetriesExhausted(t *testing.T) {
	f := newFixture(t)
	f.generate(t, f.roomID, 1)
	bed := f.bed(t, f.roomID, "A")

	flaky := &flakyUoW{inner: f.store, failures: 10}
	runner := NewTxRunner(flaky, TxPolicy{MaxRetries: 1, Timeout: time.Second, Backoff: time.Millisecond}, nil, zapNop())
	engine := NewAllocationEngine(f.ledger, runner, CommitHooks{}, zapNop())

	_, err := engine.AssignBed(context.Background(), assignReq("s1", bed.BedID, f.roomID))
	assert.True(t, domain.IsKind(err, domain.KindUnavailable))
	assert.Equal(t, "service temporarily unavailable, please retry", domain.PublicMessage(err))
	assert.Equal(t, int32(2), flaky.calls.Load())
	assert.Equal(t, domain.BedAvailable, f.bed(t, f.roomID, "A").Status)
}

func TestAllocation_EmitsAuditEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.generate(t, f.roomID, 1)
	bed := f.bed(t, f.roomID, "A")

	res, err := f.engine.AssignBed(ctx, assignReq("s1", bed.BedID, f.roomID))
	require.NoError(t, err)
	_, err = f.engine.ReleaseBed(ctx, testTenant, res.Occupancy.OccupancyID, "admin")
	require.NoError(t, err)

	actions := f.audit.actions()
	assert.Contains(t, actions, "occupancy.create")
	assert.Contains(t, actions, "occupancy.release")
	assert.Contains(t, actions, "bed.status_changed")
}
