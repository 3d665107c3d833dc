package repository

import (
	"residence-data/internal/domain"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const housingColumns = `
	housing_id::text, tenant_id::text, housing_name, category,
	declared_rooms, total_capacity, current_occupation, occupancy_rate, status,
	created_by, updated_by, created_at, updated_at`

const roomColumns = `
	room_id::text, tenant_id::text, housing_id::text, room_label,
	capacity, occupation, occupancy_rate, status,
	created_by, updated_by, created_at, updated_at`

const bedColumns = `
	bed_id::text, tenant_id::text, room_id::text, bed_number,
	status, is_active, notes,
	created_by, updated_by, created_at, updated_at`

// bed_id / room_id 在床位或房间被删除后为 NULL（历史记录保留）
const occupancyColumns = `
	o.occupancy_id::text, o.tenant_id::text, o.student_id::text,
	COALESCE(o.bed_id::text, ''), COALESCE(o.room_id::text, ''), o.housing_id::text,
	o.start_date, o.end_date, o.actual_end_date, o.status,
	o.monthly_rent, o.is_rent_paid, o.last_rent_payment_date, o.cancellation_reason,
	o.created_by, o.updated_by, o.created_at, o.updated_at`

// 列表查询附带的展示字段
const occupancyJoinColumns = `,
	COALESCE(s.full_name, ''), COALESCE(r.room_label, ''), COALESCE(b.bed_number, '')`

const occupancyJoins = `
	FROM occupancies o
	LEFT JOIN students s ON s.student_id = o.student_id
	LEFT JOIN rooms r ON r.room_id = o.room_id
	LEFT JOIN beds b ON b.bed_id = o.bed_id`

func scanHousing(row rowScanner) (*domain.Housing, error) {
	var h domain.Housing
	err := row.Scan(
		&h.HousingID, &h.TenantID, &h.Name, &h.Category,
		&h.DeclaredRooms, &h.TotalCapacity, &h.CurrentOccupation, &h.OccupancyRate, &h.Status,
		&h.CreatedBy, &h.UpdatedBy, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func scanRoom(row rowScanner) (*domain.Room, error) {
	var r domain.Room
	err := row.Scan(
		&r.RoomID, &r.TenantID, &r.HousingID, &r.Label,
		&r.Capacity, &r.Occupation, &r.OccupancyRate, &r.Status,
		&r.CreatedBy, &r.UpdatedBy, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanBed(row rowScanner) (*domain.Bed, error) {
	var b domain.Bed
	err := row.Scan(
		&b.BedID, &b.TenantID, &b.RoomID, &b.Number,
		&b.Status, &b.IsActive, &b.Notes,
		&b.CreatedBy, &b.UpdatedBy, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func occupancyDest(o *domain.Occupancy) []any {
	return []any{
		&o.OccupancyID, &o.TenantID, &o.StudentID,
		&o.BedID, &o.RoomID, &o.HousingID,
		&o.StartDate, &o.EndDate, &o.ActualEndDate, &o.Status,
		&o.MonthlyRent, &o.IsRentPaid, &o.LastRentPaymentDate, &o.CancellationReason,
		&o.CreatedBy, &o.UpdatedBy, &o.CreatedAt, &o.UpdatedAt,
	}
}

func scanOccupancy(row rowScanner) (*domain.Occupancy, error) {
	var o domain.Occupancy
	if err := row.Scan(occupancyDest(&o)...); err != nil {
		return nil, err
	}
	return &o, nil
}

func scanOccupancyJoined(row rowScanner) (*domain.Occupancy, error) {
	var o domain.Occupancy
	dest := append(occupancyDest(&o), &o.StudentName, &o.RoomLabel, &o.BedNumber)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &o, nil
}
