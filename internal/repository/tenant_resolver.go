package repository

import (
	"context"
	"database/sql"
)

type PostgresTenantResolver struct {
	db *sql.DB
}

func NewPostgresTenantResolver(db *sql.DB) *PostgresTenantResolver {
	return &PostgresTenantResolver{db: db}
}

func (r *PostgresTenantResolver) TenantIDByHousingID(ctx context.Context, housingID string) (string, error) {
	return r.lookup(ctx, "SELECT tenant_id::text FROM housings WHERE housing_id = $1", housingID, "housing")
}

func (r *PostgresTenantResolver) TenantIDByRoomID(ctx context.Context, roomID string) (string, error) {
	return r.lookup(ctx, "SELECT tenant_id::text FROM rooms WHERE room_id = $1", roomID, "room")
}

func (r *PostgresTenantResolver) TenantIDByBedID(ctx context.Context, bedID string) (string, error) {
	return r.lookup(ctx, "SELECT tenant_id::text FROM beds WHERE bed_id = $1", bedID, "bed")
}

func (r *PostgresTenantResolver) TenantIDByOccupancyID(ctx context.Context, occupancyID string) (string, error) {
	return r.lookup(ctx, "SELECT tenant_id::text FROM occupancies WHERE occupancy_id = $1", occupancyID, "occupancy")
}

func (r *PostgresTenantResolver) lookup(ctx context.Context, q, id, kind string) (string, error) {
	var tenantID string
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&tenantID); err != nil {
		return "", notFoundOr(err, "%s not found: id=%s", kind, id)
	}
	return tenantID, nil
}
