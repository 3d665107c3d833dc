package domain

import "time"

// Room 房间领域模型（对应 rooms 表）
// Occupation / OccupancyRate / Status 为派生字段，只在分配事务内重算
type Room struct {
	RoomID        string     `db:"room_id" json:"room_id"`
	TenantID      string     `db:"tenant_id" json:"tenant_id"`
	HousingID     string     `db:"housing_id" json:"housing_id"`
	Label         string     `db:"room_label" json:"room_label"`
	Capacity      int        `db:"capacity" json:"capacity"`
	Occupation    int        `db:"occupation" json:"occupation"`
	OccupancyRate float64    `db:"occupancy_rate" json:"occupancy_rate"`
	Status        RoomStatus `db:"status" json:"status"`
	CreatedBy     string     `db:"created_by" json:"created_by"`
	UpdatedBy     string     `db:"updated_by" json:"updated_by"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// AvailableBeds max(0, capacity - occupation)
func (r *Room) AvailableBeds() int {
	if n := r.Capacity - r.Occupation; n > 0 {
		return n
	}
	return 0
}
