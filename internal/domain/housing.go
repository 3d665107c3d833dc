package domain

import "time"

// Housing 住房（宿舍楼/园区）领域模型（对应 housings 表）
type Housing struct {
	HousingID         string        `db:"housing_id" json:"housing_id"`
	TenantID          string        `db:"tenant_id" json:"tenant_id"`
	Name              string        `db:"housing_name" json:"housing_name"`
	Category          string        `db:"category" json:"category"`
	DeclaredRooms     int           `db:"declared_rooms" json:"declared_rooms"`
	TotalCapacity     int           `db:"total_capacity" json:"total_capacity"`
	CurrentOccupation int           `db:"current_occupation" json:"current_occupation"`
	OccupancyRate     float64       `db:"occupancy_rate" json:"occupancy_rate"`
	Status            HousingStatus `db:"status" json:"status"`
	CreatedBy         string        `db:"created_by" json:"created_by"`
	UpdatedBy         string        `db:"updated_by" json:"updated_by"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}
