package service

import (
	"context"

	"residence-data/internal/domain"
	"residence-data/internal/repository"
)

// RoomAggregate 房间派生字段（occupation / occupancy_rate / status）重算
// 纯派生、幂等，只在写事务内调用
type RoomAggregate struct{}

// Recompute 加锁读取房间后重算
func (a RoomAggregate) Recompute(ctx context.Context, tx repository.Tx, tenantID, roomID, actor string) (*domain.Room, error) {
	room, err := tx.LockRoom(ctx, tenantID, roomID)
	if err != nil {
		return nil, err
	}
	return a.apply(ctx, tx, room, actor)
}

// apply room 必须已在当前事务内加锁
func (RoomAggregate) apply(ctx context.Context, tx repository.Tx, room *domain.Room, actor string) (*domain.Room, error) {
	counts, err := tx.CountBedsByStatus(ctx, room.TenantID, room.RoomID)
	if err != nil {
		return nil, err
	}
	room.Occupation = counts[domain.BedOccupied]
	room.OccupancyRate = domain.OccupancyRate(room.Occupation, room.Capacity)
	room.Status = domain.DeriveRoomStatus(room.Status, room.Occupation, room.Capacity)
	room.UpdatedBy = actor
	if err := tx.SaveRoomAggregate(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// CalculateAvailableBeds max(0, capacity - occupation)
func (RoomAggregate) CalculateAvailableBeds(room *domain.Room) int {
	return room.AvailableBeds()
}

// HousingAggregate 住房派生字段（current_occupation / occupancy_rate）重算
// 分母为声明容量 total_capacity
type HousingAggregate struct{}

func (a HousingAggregate) Recompute(ctx context.Context, tx repository.Tx, tenantID, housingID, actor string) (*domain.Housing, error) {
	housing, err := tx.LockHousing(ctx, tenantID, housingID)
	if err != nil {
		return nil, err
	}
	return a.apply(ctx, tx, housing, actor)
}

func (HousingAggregate) apply(ctx context.Context, tx repository.Tx, housing *domain.Housing, actor string) (*domain.Housing, error) {
	n, err := tx.CountOccupiedBedsInHousing(ctx, housing.TenantID, housing.HousingID)
	if err != nil {
		return nil, err
	}
	housing.CurrentOccupation = n
	housing.OccupancyRate = domain.OccupancyRate(n, housing.TotalCapacity)
	housing.UpdatedBy = actor
	if err := tx.SaveHousingAggregate(ctx, housing); err != nil {
		return nil, err
	}
	return housing, nil
}

// CalculateAvailableRooms 状态为 available 且仍有空床的房间数
func (HousingAggregate) CalculateAvailableRooms(rooms []*domain.Room) int {
	n := 0
	for _, r := range rooms {
		if r.Status == domain.RoomAvailable && r.AvailableBeds() > 0 {
			n++
		}
	}
	return n
}

// CalculateAvailableBeds 各房间空床之和；维修/停用房间不计
func (HousingAggregate) CalculateAvailableBeds(rooms []*domain.Room) int {
	n := 0
	for _, r := range rooms {
		if r.Status == domain.RoomMaintenance || r.Status == domain.RoomOutOfService {
			continue
		}
		n += r.AvailableBeds()
	}
	return n
}

// recomputeRoomAndHousing 床位变化后的标准重算链：room -> housing
// room 已加锁时传入，避免重复加锁
func recomputeRoomAndHousing(ctx context.Context, tx repository.Tx, room *domain.Room, actor string) (*domain.Room, *domain.Housing, error) {
	room, err := RoomAggregate{}.apply(ctx, tx, room, actor)
	if err != nil {
		return nil, nil, err
	}
	housing, err := HousingAggregate{}.Recompute(ctx, tx, room.TenantID, room.HousingID, actor)
	if err != nil {
		return nil, nil, err
	}
	return room, housing, nil
}
