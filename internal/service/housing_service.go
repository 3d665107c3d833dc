package service

import (
	"context"
	"strings"
	"time"

	"residence-data/internal/domain"
	"residence-data/internal/repository"

	"go.uber.org/zap"
)

// HousingService 住房与房间管理服务接口
type HousingService interface {
	// Housing 管理
	CreateHousing(ctx context.Context, req CreateHousingRequest) (*domain.Housing, error)
	GetHousing(ctx context.Context, tenantID, housingID string) (*HousingDetail, error)
	ListHousings(ctx context.Context, tenantID string) ([]*domain.Housing, error)
	DeleteHousing(ctx context.Context, tenantID, housingID, actor string) error

	// Room 管理
	CreateRoom(ctx context.Context, req CreateRoomRequest) (*domain.Room, error)
	GetRoom(ctx context.Context, tenantID, roomID string) (*RoomDetail, error)
	ListRooms(ctx context.Context, tenantID, housingID string) ([]*RoomDetail, error)
	SetRoomStatus(ctx context.Context, req SetRoomStatusRequest) (*domain.Room, error)
}

// housingService 实现
type housingService struct {
	repo   repository.HousingRepository
	tx     *TxRunner
	hooks  CommitHooks
	logger *zap.Logger
}

// NewHousingService 创建 HousingService 实例
func NewHousingService(repo repository.HousingRepository, tx *TxRunner, hooks CommitHooks, logger *zap.Logger) HousingService {
	return &housingService{repo: repo, tx: tx, hooks: hooks, logger: logger}
}

// ============================================
// 请求/响应结构
// ============================================

type CreateHousingRequest struct {
	TenantID      string // 必填
	Name          string // 必填
	Category      string // 可选，默认 standard
	DeclaredRooms int
	TotalCapacity int // 声明床位容量，占用率分母
	Actor         string
}

// HousingDetail 带可用性读数
type HousingDetail struct {
	*domain.Housing
	AvailableRooms int `json:"available_rooms"`
	AvailableBeds  int `json:"available_beds"`
}

type CreateRoomRequest struct {
	TenantID  string // 必填
	HousingID string // 必填
	Label     string // 必填，同一住房内唯一
	Capacity  int
	Actor     string
}

type RoomDetail struct {
	*domain.Room
	AvailableBeds int `json:"available_beds"`
}

type SetRoomStatusRequest struct {
	TenantID string
	RoomID   string
	Status   string // available / maintenance / out_of_service
	Actor    string
}

// ============================================
// Housing
// ============================================

func (s *housingService) CreateHousing(ctx context.Context, req CreateHousingRequest) (*domain.Housing, error) {
	if req.DeclaredRooms < 0 || req.TotalCapacity < 0 {
		return nil, domain.Validationf("declared_rooms and total_capacity must be >= 0")
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = "standard"
	}
	h := &domain.Housing{
		TenantID:      req.TenantID,
		Name:          strings.TrimSpace(req.Name),
		Category:      category,
		DeclaredRooms: req.DeclaredRooms,
		TotalCapacity: req.TotalCapacity,
		Status:        domain.HousingActive,
		CreatedBy:     req.Actor,
		UpdatedBy:     req.Actor,
	}
	if _, err := s.repo.CreateHousing(ctx, h); err != nil {
		return nil, err
	}
	s.hooks.after(ctx, req.TenantID, AuditEvent{
		ResourceType: "housing", Action: "create", TargetID: h.HousingID, TenantID: req.TenantID, ActorID: req.Actor,
		Metadata: map[string]any{"housing_name": h.Name, "total_capacity": h.TotalCapacity},
	})
	return h, nil
}

func (s *housingService) GetHousing(ctx context.Context, tenantID, housingID string) (*HousingDetail, error) {
	h, err := s.repo.GetHousing(ctx, tenantID, housingID)
	if err != nil {
		return nil, err
	}
	rooms, err := s.repo.ListRooms(ctx, tenantID, housingID)
	if err != nil {
		return nil, err
	}
	agg := HousingAggregate{}
	return &HousingDetail{
		Housing:        h,
		AvailableRooms: agg.CalculateAvailableRooms(rooms),
		AvailableBeds:  agg.CalculateAvailableBeds(rooms),
	}, nil
}

func (s *housingService) ListHousings(ctx context.Context, tenantID string) ([]*domain.Housing, error) {
	return s.repo.ListHousings(ctx, tenantID)
}

// DeleteHousing 存在 active 占用时 -> Conflict；房间与床位级联删除
func (s *housingService) DeleteHousing(ctx context.Context, tenantID, housingID, actor string) error {
	start := time.Now()
	err := s.tx.Run(ctx, "delete_housing", func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.LockHousing(ctx, tenantID, housingID); err != nil {
			return err
		}
		n, err := tx.CountActiveOccupanciesInHousing(ctx, tenantID, housingID)
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.Conflictf("Résidence avec %d occupation(s) active(s) : suppression impossible", n)
		}
		return tx.DeleteHousing(ctx, tenantID, housingID)
	})
	s.tx.metrics.observe("delete_housing", start, err)
	if err != nil {
		return err
	}
	s.hooks.after(ctx, tenantID, AuditEvent{
		ResourceType: "housing", Action: "delete", TargetID: housingID, TenantID: tenantID, ActorID: actor,
	})
	return nil
}

// ============================================
// Room
// ============================================

func (s *housingService) CreateRoom(ctx context.Context, req CreateRoomRequest) (*domain.Room, error) {
	room := &domain.Room{
		TenantID:  req.TenantID,
		HousingID: req.HousingID,
		Label:     strings.TrimSpace(req.Label),
		Capacity:  req.Capacity,
		CreatedBy: req.Actor,
		UpdatedBy: req.Actor,
	}
	if _, err := s.repo.CreateRoom(ctx, room); err != nil {
		return nil, err
	}
	s.hooks.after(ctx, req.TenantID, AuditEvent{
		ResourceType: "room", Action: "create", TargetID: room.RoomID, TenantID: req.TenantID, ActorID: req.Actor,
		Metadata: map[string]any{"housing_id": room.HousingID, "room_label": room.Label, "capacity": room.Capacity},
	})
	return room, nil
}

func (s *housingService) GetRoom(ctx context.Context, tenantID, roomID string) (*RoomDetail, error) {
	room, err := s.repo.GetRoom(ctx, tenantID, roomID)
	if err != nil {
		return nil, err
	}
	return &RoomDetail{Room: room, AvailableBeds: RoomAggregate{}.CalculateAvailableBeds(room)}, nil
}

func (s *housingService) ListRooms(ctx context.Context, tenantID, housingID string) ([]*RoomDetail, error) {
	if housingID != "" {
		if _, err := s.repo.GetHousing(ctx, tenantID, housingID); err != nil {
			return nil, err
		}
	}
	rooms, err := s.repo.ListRooms(ctx, tenantID, housingID)
	if err != nil {
		return nil, err
	}
	out := make([]*RoomDetail, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, &RoomDetail{Room: r, AvailableBeds: r.AvailableBeds()})
	}
	return out, nil
}

// SetRoomStatus 人工设置维修/停用/恢复；occupied 只能由重算得出
func (s *housingService) SetRoomStatus(ctx context.Context, req SetRoomStatusRequest) (*domain.Room, error) {
	target, ok := domain.ParseBedStatus(req.Status)
	if !ok {
		return nil, domain.Validationf("invalid room status: %s", req.Status)
	}
	if target == domain.RoomOccupied {
		return nil, domain.InvalidTransitionf("le statut occupé d'une chambre est calculé, pas défini manuellement")
	}

	var (
		room *domain.Room
		from domain.RoomStatus
	)
	start := time.Now()
	err := s.tx.Run(ctx, "set_room_status", func(ctx context.Context, tx repository.Tx) error {
		r, err := tx.LockRoom(ctx, req.TenantID, req.RoomID)
		if err != nil {
			return err
		}
		from = r.Status
		r.Status = target
		room, err = RoomAggregate{}.apply(ctx, tx, r, req.Actor)
		return err
	})
	s.tx.metrics.observe("set_room_status", start, err)
	if err != nil {
		return nil, err
	}
	s.hooks.after(ctx, req.TenantID, AuditEvent{
		ResourceType: "room", Action: "status_changed", TargetID: room.RoomID, TenantID: req.TenantID, ActorID: req.Actor,
		Metadata: map[string]any{"from": string(from), "to": string(room.Status)},
	})
	return room, nil
}
