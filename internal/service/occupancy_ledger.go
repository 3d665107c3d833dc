package service

import (
	"context"
	"database/sql"
	"iter"
	"strings"
	"time"

	"residence-data/internal/domain"
	"residence-data/internal/models"
	"residence-data/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StudentDirectory 学生身份来源（本地 students 表或外部目录服务）
type StudentDirectory interface {
	GetStudent(ctx context.Context, tenantID, studentID string) (*domain.Student, error)
}

// OccupancyLedger 占用记录：查询 + 生命周期
// create / release / cancel 只在分配引擎的事务内调用
type OccupancyLedger struct {
	repo         repository.OccupancyRepository
	students     StudentDirectory
	tx           *TxRunner
	hooks        CommitHooks
	expiringDays int
	logger       *zap.Logger
	now          func() time.Time
}

func NewOccupancyLedger(
	repo repository.OccupancyRepository,
	students StudentDirectory,
	tx *TxRunner,
	hooks CommitHooks,
	expiringDays int,
	logger *zap.Logger,
) *OccupancyLedger {
	if expiringDays <= 0 {
		expiringDays = 30
	}
	return &OccupancyLedger{
		repo:         repo,
		students:     students,
		tx:           tx,
		hooks:        hooks,
		expiringDays: expiringDays,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateOccupancyInput 创建占用的业务字段
type CreateOccupancyInput struct {
	TenantID    string
	StudentID   string
	BedID       string
	RoomID      string
	StartDate   time.Time
	EndDate     time.Time
	MonthlyRent decimal.Decimal
	Actor       string
}

func (in CreateOccupancyInput) validate() error {
	fields := []struct{ name, value string }{
		{"tenant_id", in.TenantID},
		{"student_id", in.StudentID},
		{"bed_id", in.BedID},
		{"room_id", in.RoomID},
	}
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return domain.Validationf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return domain.Validationf("start_date and end_date are required")
	}
	if !in.EndDate.After(in.StartDate) {
		return domain.Validationf("end_date must be after start_date")
	}
	if in.MonthlyRent.IsNegative() {
		return domain.Validationf("monthly_rent must be >= 0")
	}
	return nil
}

// checkStudent 事务外调用，避免持锁期间访问外部目录
func (l *OccupancyLedger) checkStudent(ctx context.Context, tenantID, studentID string) (*domain.Student, error) {
	return l.students.GetStudent(ctx, tenantID, studentID)
}

// create bed 必须已在当前事务内加锁；非 available -> Conflict（消息含状态标签）
func (l *OccupancyLedger) create(ctx context.Context, tx repository.Tx, bed *domain.Bed, room *domain.Room, in CreateOccupancyInput) (*domain.Occupancy, error) {
	if bed.Status != domain.BedAvailable {
		return nil, domain.Conflictf("Lit non disponible (statut: %s)", bed.Status.Label())
	}
	if !bed.IsActive {
		return nil, domain.Conflictf("Lit désactivé")
	}
	n, err := tx.CountActiveOccupanciesForBed(ctx, in.TenantID, bed.BedID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, domain.Conflictf("Lit non disponible (statut: %s)", domain.BedOccupied.Label())
	}

	o := &domain.Occupancy{
		TenantID:    in.TenantID,
		StudentID:   in.StudentID,
		BedID:       bed.BedID,
		RoomID:      bed.RoomID,
		HousingID:   sql.NullString{String: room.HousingID, Valid: room.HousingID != ""},
		StartDate:   dateOnly(in.StartDate),
		EndDate:     dateOnly(in.EndDate),
		Status:      domain.OccupancyActive,
		MonthlyRent: in.MonthlyRent.Round(2),
		IsRentPaid:  false,
		CreatedBy:   in.Actor,
		UpdatedBy:   in.Actor,
	}
	if err := tx.InsertOccupancy(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// release active -> ended
func (l *OccupancyLedger) release(ctx context.Context, tx repository.Tx, tenantID, occupancyID, actor string) (*domain.Occupancy, error) {
	o, err := tx.LockOccupancy(ctx, tenantID, occupancyID)
	if err != nil {
		return nil, err
	}
	if err := o.Release(l.now(), actor); err != nil {
		return nil, err
	}
	if err := tx.UpdateOccupancy(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// cancel active -> cancelled
func (l *OccupancyLedger) cancel(ctx context.Context, tx repository.Tx, tenantID, occupancyID, reason, actor string) (*domain.Occupancy, error) {
	o, err := tx.LockOccupancy(ctx, tenantID, occupancyID)
	if err != nil {
		return nil, err
	}
	if err := o.Cancel(reason, l.now(), actor); err != nil {
		return nil, err
	}
	if err := tx.UpdateOccupancy(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// MarkRentPaid 只要求记录存在，不受状态机约束
func (l *OccupancyLedger) MarkRentPaid(ctx context.Context, tenantID, occupancyID, actor string) (*domain.Occupancy, error) {
	var out *domain.Occupancy
	start := time.Now()
	err := l.tx.Run(ctx, "mark_rent_paid", func(ctx context.Context, tx repository.Tx) error {
		o, err := tx.LockOccupancy(ctx, tenantID, occupancyID)
		if err != nil {
			return err
		}
		o.MarkRentPaid(l.now(), actor)
		if err := tx.UpdateOccupancy(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	l.tx.metrics.observe("mark_rent_paid", start, err)
	if err != nil {
		return nil, err
	}

	l.hooks.after(ctx, tenantID, AuditEvent{
		ResourceType: "occupancy", Action: "rent_paid", TargetID: occupancyID, TenantID: tenantID, ActorID: actor,
		Metadata: map[string]any{"monthly_rent": out.MonthlyRent.StringFixed(2)},
	})
	return out, nil
}

func (l *OccupancyLedger) Get(ctx context.Context, tenantID, occupancyID string) (*domain.Occupancy, error) {
	return l.repo.GetOccupancy(ctx, tenantID, occupancyID)
}

type ListOccupanciesRequest struct {
	TenantID string
	Filters  repository.OccupancyFilters
	Page     int
	Size     int
}

type ListOccupanciesResponse struct {
	Items      []*domain.Occupancy      `json:"items"`
	Pagination models.BackendPagination `json:"pagination"`
}

func (l *OccupancyLedger) List(ctx context.Context, req ListOccupanciesRequest) (*ListOccupanciesResponse, error) {
	if req.Filters.Status != "" {
		if _, ok := domain.ParseOccupancyStatus(req.Filters.Status); !ok {
			return nil, domain.Validationf("invalid occupancy status: %s", req.Filters.Status)
		}
	}
	page, size := models.Normalize(req.Page, req.Size)
	items, total, err := l.repo.ListOccupancies(ctx, req.TenantID, req.Filters, page, size)
	if err != nil {
		return nil, err
	}
	return &ListOccupanciesResponse{Items: items, Pagination: models.NewPagination(page, size, total)}, nil
}

// ListExpiring active 且 end_date ∈ [today, today+withinDays]；withinDays <= 0 使用默认窗口
func (l *OccupancyLedger) ListExpiring(ctx context.Context, tenantID string, withinDays int) iter.Seq2[*domain.Occupancy, error] {
	if withinDays <= 0 {
		withinDays = l.expiringDays
	}
	from := dateOnly(l.now())
	return l.repo.IterExpiring(ctx, tenantID, from, from.AddDate(0, 0, withinDays))
}

func (l *OccupancyLedger) ListUnpaid(ctx context.Context, tenantID string) ([]*domain.Occupancy, error) {
	return l.repo.ListUnpaid(ctx, tenantID)
}

// dateOnly 日期列按 UTC 零点存储
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
