package service

import (
	"context"
	"database/sql"
	"slices"
	"strings"
	"time"

	"residence-data/internal/domain"
	"residence-data/internal/repository"

	"go.uber.org/zap"
)

// maxBedsPerRoom 批量生成上限
const maxBedsPerRoom = 200

// BedRegistry 床位登记：创建、批量生成、状态变更、删除
// 每次床位写入与其触发的 room/housing 重算在同一事务内
type BedRegistry struct {
	repo   repository.HousingRepository
	tx     *TxRunner
	hooks  CommitHooks
	logger *zap.Logger
}

func NewBedRegistry(repo repository.HousingRepository, tx *TxRunner, hooks CommitHooks, logger *zap.Logger) *BedRegistry {
	return &BedRegistry{repo: repo, tx: tx, hooks: hooks, logger: logger}
}

type CreateBedRequest struct {
	TenantID string
	RoomID   string
	Number   string
	Notes    string // 可选
	Actor    string
}

type GenerateBedsRequest struct {
	TenantID string
	RoomID   string
	Capacity int
	Actor    string
}

type GenerateBedsResponse struct {
	Created  []*domain.Bed `json:"created"`
	Deleted  int           `json:"deleted"`
	Retained int           `json:"retained"`
	Room     *domain.Room  `json:"room"`
}

type SetBedStatusRequest struct {
	TenantID string
	BedID    string
	Status   string
	Note     string // 可选
	Actor    string
}

// CreateBed room 不存在 -> NotFound；同房间 number 重复 -> Conflict
func (s *BedRegistry) CreateBed(ctx context.Context, req CreateBedRequest) (*domain.Bed, error) {
	if req.TenantID == "" || req.RoomID == "" {
		return nil, domain.Validationf("tenant_id and room_id are required")
	}
	number := strings.TrimSpace(req.Number)
	if number == "" {
		return nil, domain.Validationf("bed_number is required")
	}

	bed := &domain.Bed{
		TenantID:  req.TenantID,
		RoomID:    req.RoomID,
		Number:    number,
		Status:    domain.BedAvailable,
		IsActive:  true,
		Notes:     nullString(req.Notes),
		CreatedBy: req.Actor,
		UpdatedBy: req.Actor,
	}
	start := time.Now()
	err := s.tx.Run(ctx, "create_bed", func(ctx context.Context, tx repository.Tx) error {
		room, err := tx.LockRoom(ctx, req.TenantID, req.RoomID)
		if err != nil {
			return err
		}
		b := *bed
		if err := tx.InsertBed(ctx, &b); err != nil {
			return err
		}
		if _, _, err := recomputeRoomAndHousing(ctx, tx, room, req.Actor); err != nil {
			return err
		}
		*bed = b
		return nil
	})
	s.tx.metrics.observe("create_bed", start, err)
	if err != nil {
		return nil, err
	}

	s.hooks.after(ctx, req.TenantID, AuditEvent{
		ResourceType: "bed", Action: "create", TargetID: bed.BedID, TenantID: req.TenantID, ActorID: req.Actor,
		Metadata: map[string]any{"room_id": bed.RoomID, "bed_number": bed.Number, "status": string(bed.Status)},
	})
	return bed, nil
}

// GenerateBedsForRoom 删除房间内全部 available 床位，保留 occupied/maintenance/out_of_service，
// 再按 A..Z, 27.. 生成新床位（跳过保留床位已占用的编号），
// 最终床位数 = max(capacity, 保留数)；房间容量同步为 capacity
func (s *BedRegistry) GenerateBedsForRoom(ctx context.Context, req GenerateBedsRequest) (*GenerateBedsResponse, error) {
	if req.TenantID == "" || req.RoomID == "" {
		return nil, domain.Validationf("tenant_id and room_id are required")
	}
	if req.Capacity < 0 || req.Capacity > maxBedsPerRoom {
		return nil, domain.Validationf("capacity must be between 0 and %d", maxBedsPerRoom)
	}

	var resp *GenerateBedsResponse
	start := time.Now()
	err := s.tx.Run(ctx, "generate_beds", func(ctx context.Context, tx repository.Tx) error {
		// 先锁床位再锁房间，与分配路径的加锁顺序一致
		beds, err := tx.LockBedsInRoom(ctx, req.TenantID, req.RoomID)
		if err != nil {
			return err
		}
		room, err := tx.LockRoom(ctx, req.TenantID, req.RoomID)
		if err != nil {
			return err
		}

		out := &GenerateBedsResponse{Created: []*domain.Bed{}}
		held := make(map[string]bool)
		for _, b := range beds {
			if b.Status != domain.BedAvailable {
				held[b.Number] = true
				out.Retained++
				continue
			}
			if err := tx.DeleteBed(ctx, req.TenantID, b.BedID); err != nil {
				return err
			}
			out.Deleted++
		}

		for pos := 1; len(out.Created)+out.Retained < req.Capacity; pos++ {
			label := domain.BedLabel(pos)
			if held[label] {
				continue
			}
			b := &domain.Bed{
				TenantID:  req.TenantID,
				RoomID:    req.RoomID,
				Number:    label,
				Status:    domain.BedAvailable,
				IsActive:  true,
				CreatedBy: req.Actor,
				UpdatedBy: req.Actor,
			}
			if err := tx.InsertBed(ctx, b); err != nil {
				return err
			}
			out.Created = append(out.Created, b)
		}

		if err := tx.UpdateRoomCapacity(ctx, req.TenantID, req.RoomID, req.Capacity, req.Actor); err != nil {
			return err
		}
		room.Capacity = req.Capacity
		if out.Room, _, err = recomputeRoomAndHousing(ctx, tx, room, req.Actor); err != nil {
			return err
		}
		resp = out
		return nil
	})
	s.tx.metrics.observe("generate_beds", start, err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("beds generated",
		zap.String("tenant_id", req.TenantID),
		zap.String("room_id", req.RoomID),
		zap.Int("capacity", req.Capacity),
		zap.Int("created", len(resp.Created)),
		zap.Int("deleted", resp.Deleted),
		zap.Int("retained", resp.Retained),
	)
	s.hooks.after(ctx, req.TenantID, AuditEvent{
		ResourceType: "room", Action: "generate_beds", TargetID: req.RoomID, TenantID: req.TenantID, ActorID: req.Actor,
		Metadata: map[string]any{"capacity": req.Capacity, "created": len(resp.Created), "deleted": resp.Deleted, "retained": resp.Retained},
	})
	return resp, nil
}

// SetStatus occupied 只能由分配引擎设置；occupied 床位必须先释放
func (s *BedRegistry) SetStatus(ctx context.Context, req SetBedStatusRequest) (*domain.Bed, error) {
	target, ok := domain.ParseBedStatus(req.Status)
	if !ok {
		return nil, domain.Validationf("invalid bed status: %s", req.Status)
	}
	if target == domain.BedOccupied {
		return nil, domain.InvalidTransitionf("le statut occupé est réservé aux attributions")
	}

	var (
		bed  *domain.Bed
		from domain.BedStatus
	)
	start := time.Now()
	err := s.tx.Run(ctx, "set_bed_status", func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.LockBed(ctx, req.TenantID, req.BedID)
		if err != nil {
			return err
		}
		if b.Status == domain.BedOccupied {
			return domain.InvalidTransitionf("Lit occupé : libérez l'occupation avant de passer au statut %s", target.Label())
		}
		room, err := tx.LockRoom(ctx, req.TenantID, b.RoomID)
		if err != nil {
			return err
		}
		note := nullString(req.Note)
		if err := tx.UpdateBedStatus(ctx, req.TenantID, req.BedID, target, note, req.Actor); err != nil {
			return err
		}
		if _, _, err := recomputeRoomAndHousing(ctx, tx, room, req.Actor); err != nil {
			return err
		}
		from = b.Status
		b.Status = target
		if note.Valid {
			b.Notes = note
		}
		b.UpdatedBy = req.Actor
		bed = b
		return nil
	})
	s.tx.metrics.observe("set_bed_status", start, err)
	if err != nil {
		return nil, err
	}

	s.hooks.after(ctx, req.TenantID, bedStatusEvent(bed, from, req.Actor))
	return bed, nil
}

// DeleteBed occupied -> Conflict
func (s *BedRegistry) DeleteBed(ctx context.Context, tenantID, bedID, actor string) error {
	var roomID string
	start := time.Now()
	err := s.tx.Run(ctx, "delete_bed", func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.LockBed(ctx, tenantID, bedID)
		if err != nil {
			return err
		}
		if b.Status == domain.BedOccupied {
			return domain.Conflictf("Lit occupé : suppression impossible (statut: %s)", b.Status.Label())
		}
		room, err := tx.LockRoom(ctx, tenantID, b.RoomID)
		if err != nil {
			return err
		}
		if err := tx.DeleteBed(ctx, tenantID, bedID); err != nil {
			return err
		}
		roomID = b.RoomID
		_, _, err = recomputeRoomAndHousing(ctx, tx, room, actor)
		return err
	})
	s.tx.metrics.observe("delete_bed", start, err)
	if err != nil {
		return err
	}

	s.hooks.after(ctx, tenantID, AuditEvent{
		ResourceType: "bed", Action: "delete", TargetID: bedID, TenantID: tenantID, ActorID: actor,
		Metadata: map[string]any{"room_id": roomID},
	})
	return nil
}

func (s *BedRegistry) GetBed(ctx context.Context, tenantID, bedID string) (*domain.Bed, error) {
	return s.repo.GetBed(ctx, tenantID, bedID)
}

// ListBeds 房间全部床位及状态，按编号排序
func (s *BedRegistry) ListBeds(ctx context.Context, tenantID, roomID string) ([]*domain.Bed, error) {
	if _, err := s.repo.GetRoom(ctx, tenantID, roomID); err != nil {
		return nil, err
	}
	return s.repo.ListBeds(ctx, tenantID, roomID, "")
}

func (s *BedRegistry) ListAvailableBeds(ctx context.Context, tenantID, roomID string) ([]*domain.Bed, error) {
	if _, err := s.repo.GetRoom(ctx, tenantID, roomID); err != nil {
		return nil, err
	}
	beds, err := s.repo.ListBeds(ctx, tenantID, roomID, domain.BedAvailable)
	if err != nil {
		return nil, err
	}
	// 停用床位不可分配
	return slices.DeleteFunc(beds, func(b *domain.Bed) bool { return !b.IsActive }), nil
}

func bedStatusEvent(bed *domain.Bed, from domain.BedStatus, actor string) AuditEvent {
	return AuditEvent{
		ResourceType: "bed",
		Action:       "status_changed",
		TargetID:     bed.BedID,
		TenantID:     bed.TenantID,
		ActorID:      actor,
		Metadata: map[string]any{
			"room_id": bed.RoomID,
			"from":    string(from),
			"to":      string(bed.Status),
		},
	}
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

var noNote = sql.NullString{}
