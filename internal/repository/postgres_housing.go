package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"residence-data/internal/domain"
)

// PostgresHousingRepository 住房/房间/床位读取与创建
type PostgresHousingRepository struct {
	db *sql.DB
}

func NewPostgresHousingRepository(db *sql.DB) *PostgresHousingRepository {
	return &PostgresHousingRepository{db: db}
}

var _ HousingRepository = (*PostgresHousingRepository)(nil)

// ============================================
// Housing
// ============================================

func (r *PostgresHousingRepository) CreateHousing(ctx context.Context, h *domain.Housing) (string, error) {
	if h == nil || h.TenantID == "" {
		return "", domain.Validationf("tenant_id is required")
	}
	if strings.TrimSpace(h.Name) == "" {
		return "", domain.Validationf("housing_name is required")
	}
	if h.Status == "" {
		h.Status = domain.HousingActive
	}

	q := `
		INSERT INTO housings (
			tenant_id, housing_name, category, declared_rooms, total_capacity,
			current_occupation, occupancy_rate, status, created_by, updated_by
		) VALUES ($1, $2, $3, $4, $5, 0, 0, $6, $7, $8)
		RETURNING housing_id::text, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, q,
		h.TenantID, h.Name, h.Category, h.DeclaredRooms, h.TotalCapacity,
		string(h.Status), h.CreatedBy, h.UpdatedBy,
	).Scan(&h.HousingID, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return "", classifyPQError(err)
	}
	return h.HousingID, nil
}

func (r *PostgresHousingRepository) GetHousing(ctx context.Context, tenantID, housingID string) (*domain.Housing, error) {
	q := `SELECT ` + housingColumns + ` FROM housings WHERE tenant_id = $1 AND housing_id = $2`
	h, err := scanHousing(r.db.QueryRowContext(ctx, q, tenantID, housingID))
	if err != nil {
		return nil, notFoundOr(err, "housing not found: housing_id=%s", housingID)
	}
	return h, nil
}

func (r *PostgresHousingRepository) ListHousings(ctx context.Context, tenantID string) ([]*domain.Housing, error) {
	if tenantID == "" {
		return []*domain.Housing{}, nil
	}
	q := `SELECT ` + housingColumns + ` FROM housings WHERE tenant_id = $1 ORDER BY housing_name`
	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, classifyPQError(err)
	}
	defer rows.Close()

	out := []*domain.Housing{}
	for rows.Next() {
		h, err := scanHousing(rows)
		if err != nil {
			return nil, classifyPQError(err)
		}
		out = append(out, h)
	}
	return out, classifyPQError(rows.Err())
}

// ============================================
// Room
// ============================================

// CreateRoom 派生字段初始化为 0 / available；床位由 GenerateBedsForRoom 生成
func (r *PostgresHousingRepository) CreateRoom(ctx context.Context, room *domain.Room) (string, error) {
	if room == nil || room.TenantID == "" {
		return "", domain.Validationf("tenant_id is required")
	}
	if strings.TrimSpace(room.Label) == "" {
		return "", domain.Validationf("room_label is required")
	}
	if room.Capacity < 0 {
		return "", domain.Validationf("capacity must be >= 0")
	}

	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM housings WHERE tenant_id = $1 AND housing_id = $2)`,
		room.TenantID, room.HousingID,
	).Scan(&exists)
	if err != nil {
		return "", classifyPQError(err)
	}
	if !exists {
		return "", domain.NotFoundf("housing not found: housing_id=%s", room.HousingID)
	}

	room.Status = domain.RoomAvailable
	q := `
		INSERT INTO rooms (
			tenant_id, housing_id, room_label, capacity,
			occupation, occupancy_rate, status, created_by, updated_by
		) VALUES ($1, $2, $3, $4, 0, 0, $5, $6, $7)
		RETURNING room_id::text, created_at, updated_at`
	err = r.db.QueryRowContext(ctx, q,
		room.TenantID, room.HousingID, room.Label, room.Capacity,
		string(room.Status), room.CreatedBy, room.UpdatedBy,
	).Scan(&room.RoomID, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		return "", classifyPQError(err)
	}
	return room.RoomID, nil
}

func (r *PostgresHousingRepository) GetRoom(ctx context.Context, tenantID, roomID string) (*domain.Room, error) {
	q := `SELECT ` + roomColumns + ` FROM rooms WHERE tenant_id = $1 AND room_id = $2`
	room, err := scanRoom(r.db.QueryRowContext(ctx, q, tenantID, roomID))
	if err != nil {
		return nil, notFoundOr(err, "room not found: room_id=%s", roomID)
	}
	return room, nil
}

// ListRooms housingID 为空时返回租户下全部房间
func (r *PostgresHousingRepository) ListRooms(ctx context.Context, tenantID, housingID string) ([]*domain.Room, error) {
	if tenantID == "" {
		return []*domain.Room{}, nil
	}
	q := `SELECT ` + roomColumns + ` FROM rooms WHERE tenant_id = $1`
	args := []any{tenantID}
	if housingID != "" {
		q += ` AND housing_id = $2`
		args = append(args, housingID)
	}
	q += ` ORDER BY room_label`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classifyPQError(err)
	}
	defer rows.Close()

	out := []*domain.Room{}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, classifyPQError(err)
		}
		out = append(out, room)
	}
	return out, classifyPQError(rows.Err())
}

// ============================================
// Bed
// ============================================

func (r *PostgresHousingRepository) GetBed(ctx context.Context, tenantID, bedID string) (*domain.Bed, error) {
	q := `SELECT ` + bedColumns + ` FROM beds WHERE tenant_id = $1 AND bed_id = $2`
	b, err := scanBed(r.db.QueryRowContext(ctx, q, tenantID, bedID))
	if err != nil {
		return nil, notFoundOr(err, "bed not found: bed_id=%s", bedID)
	}
	return b, nil
}

// ListBeds 按 bed_number 排序（"A".."Z" 之后是 "27".."N"，长度优先）
func (r *PostgresHousingRepository) ListBeds(ctx context.Context, tenantID, roomID string, status domain.BedStatus) ([]*domain.Bed, error) {
	if tenantID == "" {
		return []*domain.Bed{}, nil
	}
	where := []string{"tenant_id = $1", "room_id = $2"}
	args := []any{tenantID, roomID}
	if status != "" {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(status))
	}
	q := `SELECT ` + bedColumns + ` FROM beds WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY LENGTH(bed_number), bed_number`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classifyPQError(err)
	}
	defer rows.Close()

	out := []*domain.Bed{}
	for rows.Next() {
		b, err := scanBed(rows)
		if err != nil {
			return nil, classifyPQError(err)
		}
		out = append(out, b)
	}
	return out, classifyPQError(rows.Err())
}
