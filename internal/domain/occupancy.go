package domain

import (
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Occupancy 占用记录（对应 occupancies 表），只追加不删除
// RoomID / HousingID 在创建时由床位派生，之后不可修改
type Occupancy struct {
	OccupancyID         string          `db:"occupancy_id"`
	TenantID            string          `db:"tenant_id"`
	StudentID           string          `db:"student_id"`
	BedID               string          `db:"bed_id"`
	RoomID              string          `db:"room_id"`
	HousingID           sql.NullString  `db:"housing_id"`
	StartDate           time.Time       `db:"start_date"`
	EndDate             time.Time       `db:"end_date"`
	ActualEndDate       sql.NullTime    `db:"actual_end_date"`
	Status              OccupancyStatus `db:"status"`
	MonthlyRent         decimal.Decimal `db:"monthly_rent"`
	IsRentPaid          bool            `db:"is_rent_paid"`
	LastRentPaymentDate sql.NullTime    `db:"last_rent_payment_date"`
	CancellationReason  sql.NullString  `db:"cancellation_reason"`
	CreatedBy           string          `db:"created_by"`
	UpdatedBy           string          `db:"updated_by"`
	CreatedAt           time.Time       `db:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at"`

	// 列表查询时 JOIN 填充（只读）
	StudentName string `db:"-"`
	RoomLabel   string `db:"-"`
	BedNumber   string `db:"-"`
}

// Release active -> ended
func (o *Occupancy) Release(now time.Time, actor string) error {
	if o.Status != OccupancyActive {
		return InvalidStatef("Occupation non active (statut: %s)", o.Status.Label())
	}
	o.Status = OccupancyEnded
	o.ActualEndDate = sql.NullTime{Time: now, Valid: true}
	o.UpdatedBy = actor
	o.UpdatedAt = now
	return nil
}

// Cancel active -> cancelled
func (o *Occupancy) Cancel(reason string, now time.Time, actor string) error {
	if o.Status != OccupancyActive {
		return InvalidStatef("Occupation non active (statut: %s)", o.Status.Label())
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Validationf("cancellation reason is required")
	}
	o.Status = OccupancyCancelled
	o.CancellationReason = sql.NullString{String: reason, Valid: true}
	o.UpdatedBy = actor
	o.UpdatedAt = now
	return nil
}

// MarkRentPaid 不受状态机限制
func (o *Occupancy) MarkRentPaid(now time.Time, actor string) {
	o.IsRentPaid = true
	o.LastRentPaymentDate = sql.NullTime{Time: now, Valid: true}
	o.UpdatedBy = actor
	o.UpdatedAt = now
}

// ToJSON 转换为JSON格式（用于HTTP响应）
func (o *Occupancy) ToJSON() map[string]any {
	m := map[string]any{
		"occupancy_id": o.OccupancyID,
		"tenant_id":    o.TenantID,
		"student_id":   o.StudentID,
		"bed_id":       o.BedID,
		"room_id":      o.RoomID,
		"start_date":   o.StartDate.Format(time.DateOnly),
		"end_date":     o.EndDate.Format(time.DateOnly),
		"status":       string(o.Status),
		"status_label": o.Status.Label(),
		"monthly_rent": o.MonthlyRent.StringFixed(2),
		"is_rent_paid": o.IsRentPaid,
		"created_by":   o.CreatedBy,
		"updated_by":   o.UpdatedBy,
		"created_at":   o.CreatedAt,
		"updated_at":   o.UpdatedAt,
	}
	m["housing_id"] = nil
	m["actual_end_date"] = nil
	m["last_rent_payment_date"] = nil
	m["cancellation_reason"] = nil
	if o.HousingID.Valid {
		m["housing_id"] = o.HousingID.String
	}
	if o.ActualEndDate.Valid {
		m["actual_end_date"] = o.ActualEndDate.Time
	}
	if o.LastRentPaymentDate.Valid {
		m["last_rent_payment_date"] = o.LastRentPaymentDate.Time
	}
	if o.CancellationReason.Valid {
		m["cancellation_reason"] = o.CancellationReason.String
	}
	if o.StudentName != "" {
		m["student_name"] = o.StudentName
	}
	if o.RoomLabel != "" {
		m["room_label"] = o.RoomLabel
	}
	if o.BedNumber != "" {
		m["bed_number"] = o.BedNumber
	}
	return m
}
