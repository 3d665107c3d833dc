package repository

import (
	"context"
	"database/sql"
	"fmt"

	"residence-data/internal/domain"
)

// PostgresUnitOfWork 基于 database/sql 事务的 UnitOfWork
type PostgresUnitOfWork struct {
	db *sql.DB
}

func NewPostgresUnitOfWork(db *sql.DB) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{db: db}
}

// WithinTx 开启 READ COMMITTED 事务；行锁保证同一床位/房间/住房的写入串行
func (u *PostgresUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := u.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classifyPQError(fmt.Errorf("begin tx: %w", err))
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &pgTx{tx: sqlTx}); err != nil {
		return classifyPQError(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return classifyPQError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

// ============================================
// Beds
// ============================================

func (t *pgTx) LockBed(ctx context.Context, tenantID, bedID string) (*domain.Bed, error) {
	q := `SELECT ` + bedColumns + `
		FROM beds
		WHERE tenant_id = $1 AND bed_id = $2
		FOR UPDATE`
	b, err := scanBed(t.tx.QueryRowContext(ctx, q, tenantID, bedID))
	if err != nil {
		return nil, notFoundOr(err, "bed not found: bed_id=%s", bedID)
	}
	return b, nil
}

func (t *pgTx) LockBedsInRoom(ctx context.Context, tenantID, roomID string) ([]*domain.Bed, error) {
	q := `SELECT ` + bedColumns + `
		FROM beds
		WHERE tenant_id = $1 AND room_id = $2
		ORDER BY bed_id
		FOR UPDATE`
	rows, err := t.tx.QueryContext(ctx, q, tenantID, roomID)
	if err != nil {
		return nil, classifyPQError(err)
	}
	defer rows.Close()

	var out []*domain.Bed
	for rows.Next() {
		b, err := scanBed(rows)
		if err != nil {
			return nil, classifyPQError(err)
		}
		out = append(out, b)
	}
	return out, classifyPQError(rows.Err())
}

func (t *pgTx) InsertBed(ctx context.Context, bed *domain.Bed) error {
	q := `
		INSERT INTO beds (tenant_id, room_id, bed_number, status, is_active, notes, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING bed_id::text, created_at, updated_at`
	err := t.tx.QueryRowContext(ctx, q,
		bed.TenantID, bed.RoomID, bed.Number, string(bed.Status), bed.IsActive, bed.Notes,
		bed.CreatedBy, bed.UpdatedBy,
	).Scan(&bed.BedID, &bed.CreatedAt, &bed.UpdatedAt)
	return classifyPQError(err)
}

// UpdateBedStatus notes 无效时保留原值
func (t *pgTx) UpdateBedStatus(ctx context.Context, tenantID, bedID string, status domain.BedStatus, notes sql.NullString, actor string) error {
	q := `
		UPDATE beds
		SET status = $3, notes = COALESCE($4, notes), updated_by = $5, updated_at = NOW()
		WHERE tenant_id = $1 AND bed_id = $2`
	res, err := t.tx.ExecContext(ctx, q, tenantID, bedID, string(status), notes, actor)
	return affectedOrNotFound(res, err, "bed not found: bed_id=%s", bedID)
}

func (t *pgTx) DeleteBed(ctx context.Context, tenantID, bedID string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM beds WHERE tenant_id = $1 AND bed_id = $2`, tenantID, bedID)
	return affectedOrNotFound(res, err, "bed not found: bed_id=%s", bedID)
}

// ============================================
// Rooms
// ============================================

func (t *pgTx) LockRoom(ctx context.Context, tenantID, roomID string) (*domain.Room, error) {
	q := `SELECT ` + roomColumns + `
		FROM rooms
		WHERE tenant_id = $1 AND room_id = $2
		FOR UPDATE`
	r, err := scanRoom(t.tx.QueryRowContext(ctx, q, tenantID, roomID))
	if err != nil {
		return nil, notFoundOr(err, "room not found: room_id=%s", roomID)
	}
	return r, nil
}

func (t *pgTx) UpdateRoomCapacity(ctx context.Context, tenantID, roomID string, capacity int, actor string) error {
	q := `
		UPDATE rooms
		SET capacity = $3, updated_by = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND room_id = $2`
	res, err := t.tx.ExecContext(ctx, q, tenantID, roomID, capacity, actor)
	return affectedOrNotFound(res, err, "room not found: room_id=%s", roomID)
}

func (t *pgTx) CountBedsByStatus(ctx context.Context, tenantID, roomID string) (map[domain.BedStatus]int, error) {
	q := `
		SELECT status, COUNT(*)
		FROM beds
		WHERE tenant_id = $1 AND room_id = $2
		GROUP BY status`
	rows, err := t.tx.QueryContext(ctx, q, tenantID, roomID)
	if err != nil {
		return nil, classifyPQError(err)
	}
	defer rows.Close()

	counts := make(map[domain.BedStatus]int)
	for rows.Next() {
		var (
			status domain.BedStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, classifyPQError(err)
		}
		counts[status] = n
	}
	return counts, classifyPQError(rows.Err())
}

func (t *pgTx) SaveRoomAggregate(ctx context.Context, room *domain.Room) error {
	q := `
		UPDATE rooms
		SET occupation = $3, occupancy_rate = $4, status = $5, updated_by = $6, updated_at = NOW()
		WHERE tenant_id = $1 AND room_id = $2`
	res, err := t.tx.ExecContext(ctx, q,
		room.TenantID, room.RoomID, room.Occupation, room.OccupancyRate, string(room.Status), room.UpdatedBy,
	)
	return affectedOrNotFound(res, err, "room not found: room_id=%s", room.RoomID)
}

// ============================================
// Housings
// ============================================

func (t *pgTx) LockHousing(ctx context.Context, tenantID, housingID string) (*domain.Housing, error) {
	q := `SELECT ` + housingColumns + `
		FROM housings
		WHERE tenant_id = $1 AND housing_id = $2
		FOR UPDATE`
	h, err := scanHousing(t.tx.QueryRowContext(ctx, q, tenantID, housingID))
	if err != nil {
		return nil, notFoundOr(err, "housing not found: housing_id=%s", housingID)
	}
	return h, nil
}

func (t *pgTx) CountOccupiedBedsInHousing(ctx context.Context, tenantID, housingID string) (int, error) {
	q := `
		SELECT COUNT(*)
		FROM beds b
		JOIN rooms r ON r.room_id = b.room_id
		WHERE r.tenant_id = $1 AND r.housing_id = $2 AND b.status = 'occupied'`
	var n int
	if err := t.tx.QueryRowContext(ctx, q, tenantID, housingID).Scan(&n); err != nil {
		return 0, classifyPQError(err)
	}
	return n, nil
}

func (t *pgTx) SaveHousingAggregate(ctx context.Context, housing *domain.Housing) error {
	q := `
		UPDATE housings
		SET current_occupation = $3, occupancy_rate = $4, updated_by = $5, updated_at = NOW()
		WHERE tenant_id = $1 AND housing_id = $2`
	res, err := t.tx.ExecContext(ctx, q,
		housing.TenantID, housing.HousingID, housing.CurrentOccupation, housing.OccupancyRate, housing.UpdatedBy,
	)
	return affectedOrNotFound(res, err, "housing not found: housing_id=%s", housing.HousingID)
}

func (t *pgTx) CountActiveOccupanciesInHousing(ctx context.Context, tenantID, housingID string) (int, error) {
	q := `
		SELECT COUNT(*)
		FROM occupancies
		WHERE tenant_id = $1 AND status = 'active'
		  AND (housing_id = $2 OR room_id IN (SELECT room_id FROM rooms WHERE housing_id = $2))`
	var n int
	if err := t.tx.QueryRowContext(ctx, q, tenantID, housingID).Scan(&n); err != nil {
		return 0, classifyPQError(err)
	}
	return n, nil
}

// DeleteHousing rooms / beds 级联删除（ON DELETE CASCADE）
func (t *pgTx) DeleteHousing(ctx context.Context, tenantID, housingID string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM housings WHERE tenant_id = $1 AND housing_id = $2`, tenantID, housingID)
	return affectedOrNotFound(res, err, "housing not found: housing_id=%s", housingID)
}

// ============================================
// Occupancies
// ============================================

func (t *pgTx) CountActiveOccupanciesForBed(ctx context.Context, tenantID, bedID string) (int, error) {
	q := `SELECT COUNT(*) FROM occupancies WHERE tenant_id = $1 AND bed_id = $2 AND status = 'active'`
	var n int
	if err := t.tx.QueryRowContext(ctx, q, tenantID, bedID).Scan(&n); err != nil {
		return 0, classifyPQError(err)
	}
	return n, nil
}

func (t *pgTx) InsertOccupancy(ctx context.Context, o *domain.Occupancy) error {
	q := `
		INSERT INTO occupancies (
			tenant_id, student_id, bed_id, room_id, housing_id,
			start_date, end_date, status, monthly_rent, is_rent_paid,
			created_by, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING occupancy_id::text, created_at, updated_at`
	err := t.tx.QueryRowContext(ctx, q,
		o.TenantID, o.StudentID, o.BedID, o.RoomID, o.HousingID,
		o.StartDate, o.EndDate, string(o.Status), o.MonthlyRent, o.IsRentPaid,
		o.CreatedBy, o.UpdatedBy,
	).Scan(&o.OccupancyID, &o.CreatedAt, &o.UpdatedAt)
	return classifyPQError(err)
}

func (t *pgTx) LockOccupancy(ctx context.Context, tenantID, occupancyID string) (*domain.Occupancy, error) {
	q := `SELECT ` + occupancyColumns + `
		FROM occupancies o
		WHERE o.tenant_id = $1 AND o.occupancy_id = $2
		FOR UPDATE`
	o, err := scanOccupancy(t.tx.QueryRowContext(ctx, q, tenantID, occupancyID))
	if err != nil {
		return nil, notFoundOr(err, "occupancy not found: occupancy_id=%s", occupancyID)
	}
	return o, nil
}

// UpdateOccupancy 只更新可变字段（状态、结束时间、租金、取消原因）
func (t *pgTx) UpdateOccupancy(ctx context.Context, o *domain.Occupancy) error {
	q := `
		UPDATE occupancies
		SET status = $3, actual_end_date = $4, is_rent_paid = $5, last_rent_payment_date = $6,
		    cancellation_reason = $7, updated_by = $8, updated_at = NOW()
		WHERE tenant_id = $1 AND occupancy_id = $2`
	res, err := t.tx.ExecContext(ctx, q,
		o.TenantID, o.OccupancyID, string(o.Status), o.ActualEndDate, o.IsRentPaid, o.LastRentPaymentDate,
		o.CancellationReason, o.UpdatedBy,
	)
	return affectedOrNotFound(res, err, "occupancy not found: occupancy_id=%s", o.OccupancyID)
}

func affectedOrNotFound(res sql.Result, err error, format string, args ...any) error {
	if err != nil {
		return classifyPQError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classifyPQError(err)
	}
	if n == 0 {
		return domain.NotFoundf(format, args...)
	}
	return nil
}
