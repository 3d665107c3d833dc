package repository

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"time"

	"residence-data/internal/domain"
)

// PostgresOccupancyRepository 占用记录查询
type PostgresOccupancyRepository struct {
	db *sql.DB
}

func NewPostgresOccupancyRepository(db *sql.DB) *PostgresOccupancyRepository {
	return &PostgresOccupancyRepository{db: db}
}

var _ OccupancyRepository = (*PostgresOccupancyRepository)(nil)

func (r *PostgresOccupancyRepository) GetOccupancy(ctx context.Context, tenantID, occupancyID string) (*domain.Occupancy, error) {
	q := `SELECT ` + occupancyColumns + occupancyJoinColumns + occupancyJoins + `
		WHERE o.tenant_id = $1 AND o.occupancy_id = $2`
	o, err := scanOccupancyJoined(r.db.QueryRowContext(ctx, q, tenantID, occupancyID))
	if err != nil {
		return nil, notFoundOr(err, "occupancy not found: occupancy_id=%s", occupancyID)
	}
	return o, nil
}

func (r *PostgresOccupancyRepository) ListOccupancies(ctx context.Context, tenantID string, filters OccupancyFilters, page, size int) ([]*domain.Occupancy, int, error) {
	if tenantID == "" {
		return []*domain.Occupancy{}, 0, nil
	}

	where := []string{"o.tenant_id = $1"}
	args := []any{tenantID}
	argN := 2

	addEq := func(col, val string) {
		if val == "" {
			return
		}
		where = append(where, fmt.Sprintf("%s = $%d", col, argN))
		args = append(args, val)
		argN++
	}
	addEq("o.status", filters.Status)
	addEq("o.housing_id", filters.HousingID)
	addEq("o.room_id", filters.RoomID)
	addEq("o.bed_id", filters.BedID)
	addEq("o.student_id", filters.StudentID)

	// 模糊搜索 学生姓名 / 房间号 / 床位号
	if filters.Search != "" {
		where = append(where, fmt.Sprintf("(s.full_name ILIKE $%d OR r.room_label ILIKE $%d OR b.bed_number ILIKE $%d)", argN, argN, argN))
		args = append(args, "%"+filters.Search+"%")
		argN++
	}
	whereSQL := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*)"+occupancyJoins+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, classifyPQError(err)
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 100
	}
	offset := (page - 1) * size

	argsList := append(args, size, offset)
	q := `SELECT ` + occupancyColumns + occupancyJoinColumns + occupancyJoins + whereSQL +
		fmt.Sprintf(" ORDER BY o.start_date DESC, o.created_at DESC LIMIT $%d OFFSET $%d", argN, argN+1)

	rows, err := r.db.QueryContext(ctx, q, argsList...)
	if err != nil {
		return nil, 0, classifyPQError(err)
	}
	defer rows.Close()

	out := []*domain.Occupancy{}
	for rows.Next() {
		o, err := scanOccupancyJoined(rows)
		if err != nil {
			return nil, 0, classifyPQError(err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classifyPQError(err)
	}
	return out, total, nil
}

// IterExpiring 游标式遍历；调用方提前 break 时关闭 rows
func (r *PostgresOccupancyRepository) IterExpiring(ctx context.Context, tenantID string, from, to time.Time) iter.Seq2[*domain.Occupancy, error] {
	return func(yield func(*domain.Occupancy, error) bool) {
		q := `SELECT ` + occupancyColumns + occupancyJoinColumns + occupancyJoins + `
			WHERE o.tenant_id = $1 AND o.status = 'active'
			  AND o.end_date BETWEEN $2::date AND $3::date
			ORDER BY o.end_date ASC, o.occupancy_id`
		rows, err := r.db.QueryContext(ctx, q, tenantID, from.Format(time.DateOnly), to.Format(time.DateOnly))
		if err != nil {
			yield(nil, classifyPQError(err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			o, err := scanOccupancyJoined(rows)
			if err != nil {
				yield(nil, classifyPQError(err))
				return
			}
			if !yield(o, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, classifyPQError(err))
		}
	}
}

func (r *PostgresOccupancyRepository) ListUnpaid(ctx context.Context, tenantID string) ([]*domain.Occupancy, error) {
	q := `SELECT ` + occupancyColumns + occupancyJoinColumns + occupancyJoins + `
		WHERE o.tenant_id = $1 AND o.status = 'active' AND o.is_rent_paid = FALSE
		ORDER BY o.start_date ASC`
	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, classifyPQError(err)
	}
	defer rows.Close()

	out := []*domain.Occupancy{}
	for rows.Next() {
		o, err := scanOccupancyJoined(rows)
		if err != nil {
			return nil, classifyPQError(err)
		}
		out = append(out, o)
	}
	return out, classifyPQError(rows.Err())
}

func (r *PostgresOccupancyRepository) Statistics(ctx context.Context, tenantID string) (*OccupancyStats, error) {
	var s OccupancyStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'ended'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COUNT(*) FILTER (WHERE status = 'active' AND is_rent_paid = FALSE)
		FROM occupancies
		WHERE tenant_id = $1`, tenantID,
	).Scan(&s.Total, &s.Active, &s.Ended, &s.Cancelled, &s.Unpaid)
	if err != nil {
		return nil, classifyPQError(err)
	}

	err = r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'occupied'),
			COUNT(*) FILTER (WHERE status = 'available')
		FROM beds
		WHERE tenant_id = $1`, tenantID,
	).Scan(&s.BedsTotal, &s.BedsOccupied, &s.BedsAvailable)
	if err != nil {
		return nil, classifyPQError(err)
	}
	return &s, nil
}
