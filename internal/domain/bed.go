package domain

import (
	"database/sql"
	"time"
)

// Bed 床位领域模型（对应 beds 表）
// status 只有 AllocationEngine 可以设置为 occupied
type Bed struct {
	BedID     string         `db:"bed_id"`
	TenantID  string         `db:"tenant_id"`
	RoomID    string         `db:"room_id"`
	Number    string         `db:"bed_number"` // "A", "B", ... "27"
	Status    BedStatus      `db:"status"`
	IsActive  bool           `db:"is_active"`
	Notes     sql.NullString `db:"notes"` // nullable
	CreatedBy string         `db:"created_by"`
	UpdatedBy string         `db:"updated_by"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// ToJSON 转换为JSON格式（用于HTTP响应）
func (b *Bed) ToJSON() map[string]any {
	m := map[string]any{
		"bed_id":       b.BedID,
		"tenant_id":    b.TenantID,
		"room_id":      b.RoomID,
		"bed_number":   b.Number,
		"status":       string(b.Status),
		"status_label": b.Status.Label(),
		"is_active":    b.IsActive,
		"created_by":   b.CreatedBy,
		"updated_by":   b.UpdatedBy,
		"created_at":   b.CreatedAt,
		"updated_at":   b.UpdatedAt,
	}
	if b.Notes.Valid {
		m["notes"] = b.Notes.String
	} else {
		m["notes"] = nil
	}
	return m
}
