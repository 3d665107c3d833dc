package service

import (
	"context"
	"time"

	"residence-data/internal/domain"
	"residence-data/internal/repository"

	"go.uber.org/zap"
)

// AllocationEngine 唯一可以跨聚合写入的入口：
// 占用记录、床位状态、房间/住房派生字段在同一事务内提交
//
// 加锁顺序：occupancy -> bed -> room -> housing
type AllocationEngine struct {
	ledger *OccupancyLedger
	tx     *TxRunner
	hooks  CommitHooks
	logger *zap.Logger
}

func NewAllocationEngine(ledger *OccupancyLedger, tx *TxRunner, hooks CommitHooks, logger *zap.Logger) *AllocationEngine {
	return &AllocationEngine{ledger: ledger, tx: tx, hooks: hooks, logger: logger}
}

// AssignBedRequest 与 CreateOccupancyInput 相同字段
type AssignBedRequest = CreateOccupancyInput

// AllocationResult 写入后的占用记录与重算后的聚合
type AllocationResult struct {
	Occupancy *domain.Occupancy `json:"occupancy"`
	Room      *domain.Room      `json:"room"`
	Housing   *domain.Housing   `json:"housing"`
}

// AssignBed 床位不可用 -> Conflict；床位/学生不存在 -> NotFound；roomId 与床位不符 -> Conflict
func (e *AllocationEngine) AssignBed(ctx context.Context, req AssignBedRequest) (*AllocationResult, error) {
	start := time.Now()
	res, err := e.assign(ctx, req)
	e.tx.metrics.observe("assign", start, err)
	if err != nil {
		e.logger.Info("assign bed failed",
			zap.String("tenant_id", req.TenantID),
			zap.String("bed_id", req.BedID),
			zap.String("student_id", req.StudentID),
			zap.String("actor", req.Actor),
			zap.String("kind", string(domain.KindOf(err))),
			zap.Error(err),
		)
		return nil, err
	}

	o := res.Occupancy
	e.logger.Info("bed assigned",
		zap.String("tenant_id", o.TenantID),
		zap.String("bed_id", o.BedID),
		zap.String("occupancy_id", o.OccupancyID),
		zap.String("actor", req.Actor),
	)
	e.hooks.after(ctx, o.TenantID,
		occupancyEvent(o, "create", req.Actor),
		bedStatusEvent(&domain.Bed{BedID: o.BedID, TenantID: o.TenantID, RoomID: o.RoomID, Status: domain.BedOccupied}, domain.BedAvailable, req.Actor),
	)
	return res, nil
}

func (e *AllocationEngine) assign(ctx context.Context, req AssignBedRequest) (*AllocationResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if _, err := e.ledger.checkStudent(ctx, req.TenantID, req.StudentID); err != nil {
		return nil, err
	}

	var res *AllocationResult
	err := e.tx.Run(ctx, "assign", func(ctx context.Context, tx repository.Tx) error {
		// 1. 锁床位后再检查可用性
		bed, err := tx.LockBed(ctx, req.TenantID, req.BedID)
		if err != nil {
			return err
		}
		if bed.RoomID != req.RoomID {
			return domain.Conflictf("le lit %s n'appartient pas à la chambre %s", bed.Number, req.RoomID)
		}
		room, err := tx.LockRoom(ctx, req.TenantID, bed.RoomID)
		if err != nil {
			return err
		}

		// 2. 占用记录
		o, err := e.ledger.create(ctx, tx, bed, room, req)
		if err != nil {
			return err
		}
		// 3. 床位 -> occupied
		if err := tx.UpdateBedStatus(ctx, req.TenantID, bed.BedID, domain.BedOccupied, noNote, req.Actor); err != nil {
			return err
		}
		// 4/5. room -> housing
		room, housing, err := recomputeRoomAndHousing(ctx, tx, room, req.Actor)
		if err != nil {
			return err
		}
		res = &AllocationResult{Occupancy: o, Room: room, Housing: housing}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ReleaseBed active -> ended，并释放床位
func (e *AllocationEngine) ReleaseBed(ctx context.Context, tenantID, occupancyID, actor string) (*AllocationResult, error) {
	return e.finish(ctx, "release", tenantID, occupancyID, actor, func(ctx context.Context, tx repository.Tx) (*domain.Occupancy, error) {
		return e.ledger.release(ctx, tx, tenantID, occupancyID, actor)
	})
}

// CancelBed active -> cancelled（需要原因），并释放床位
func (e *AllocationEngine) CancelBed(ctx context.Context, tenantID, occupancyID, reason, actor string) (*AllocationResult, error) {
	return e.finish(ctx, "cancel", tenantID, occupancyID, actor, func(ctx context.Context, tx repository.Tx) (*domain.Occupancy, error) {
		return e.ledger.cancel(ctx, tx, tenantID, occupancyID, reason, actor)
	})
}

// finish release / cancel 的公共流程：状态转换 -> 床位 available -> room -> housing
func (e *AllocationEngine) finish(
	ctx context.Context,
	op, tenantID, occupancyID, actor string,
	transition func(ctx context.Context, tx repository.Tx) (*domain.Occupancy, error),
) (*AllocationResult, error) {
	if tenantID == "" || occupancyID == "" {
		return nil, domain.Validationf("tenant_id and occupancy_id are required")
	}

	var res *AllocationResult
	start := time.Now()
	err := e.tx.Run(ctx, op, func(ctx context.Context, tx repository.Tx) error {
		o, err := transition(ctx, tx)
		if err != nil {
			return err
		}
		res = &AllocationResult{Occupancy: o}
		if o.BedID == "" {
			// 床位已被删除（历史记录），无需释放
			return nil
		}

		bed, err := tx.LockBed(ctx, tenantID, o.BedID)
		if err != nil {
			return err
		}
		room, err := tx.LockRoom(ctx, tenantID, bed.RoomID)
		if err != nil {
			return err
		}
		if bed.Status == domain.BedOccupied {
			if err := tx.UpdateBedStatus(ctx, tenantID, bed.BedID, domain.BedAvailable, noNote, actor); err != nil {
				return err
			}
		}
		res.Room, res.Housing, err = recomputeRoomAndHousing(ctx, tx, room, actor)
		return err
	})
	e.tx.metrics.observe(op, start, err)
	if err != nil {
		e.logger.Info(op+" occupancy failed",
			zap.String("tenant_id", tenantID),
			zap.String("occupancy_id", occupancyID),
			zap.String("actor", actor),
			zap.String("kind", string(domain.KindOf(err))),
			zap.Error(err),
		)
		return nil, err
	}

	o := res.Occupancy
	e.logger.Info("occupancy "+string(o.Status),
		zap.String("tenant_id", tenantID),
		zap.String("bed_id", o.BedID),
		zap.String("occupancy_id", o.OccupancyID),
		zap.String("actor", actor),
	)
	events := []AuditEvent{occupancyEvent(o, op, actor)}
	if o.BedID != "" {
		events = append(events, bedStatusEvent(&domain.Bed{BedID: o.BedID, TenantID: tenantID, RoomID: o.RoomID, Status: domain.BedAvailable}, domain.BedOccupied, actor))
	}
	e.hooks.after(ctx, tenantID, events...)
	return res, nil
}

func occupancyEvent(o *domain.Occupancy, action, actor string) AuditEvent {
	meta := map[string]any{
		"student_id": o.StudentID,
		"bed_id":     o.BedID,
		"room_id":    o.RoomID,
		"status":     string(o.Status),
	}
	if o.HousingID.Valid {
		meta["housing_id"] = o.HousingID.String
	}
	if o.CancellationReason.Valid {
		meta["reason"] = o.CancellationReason.String
	}
	return AuditEvent{
		ResourceType: "occupancy",
		Action:       action,
		TargetID:     o.OccupancyID,
		TenantID:     o.TenantID,
		ActorID:      actor,
		Metadata:     meta,
	}
}
