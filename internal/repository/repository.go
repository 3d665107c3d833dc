package repository

import (
	"context"
	"database/sql"
	"iter"
	"time"

	"residence-data/internal/domain"
)

// HousingRepository 住房/房间/床位的读取与非占用字段写入
// 占用相关字段（bed.status, room.occupation/status, housing.current_occupation/rate）
// 只能通过 Tx 修改
type HousingRepository interface {
	// Housing 操作
	CreateHousing(ctx context.Context, housing *domain.Housing) (string, error)
	GetHousing(ctx context.Context, tenantID, housingID string) (*domain.Housing, error)
	ListHousings(ctx context.Context, tenantID string) ([]*domain.Housing, error)

	// Room 操作
	CreateRoom(ctx context.Context, room *domain.Room) (string, error)
	GetRoom(ctx context.Context, tenantID, roomID string) (*domain.Room, error)
	ListRooms(ctx context.Context, tenantID, housingID string) ([]*domain.Room, error)

	// Bed 操作（status 为空表示全部）
	GetBed(ctx context.Context, tenantID, bedID string) (*domain.Bed, error)
	ListBeds(ctx context.Context, tenantID, roomID string, status domain.BedStatus) ([]*domain.Bed, error)
}

// OccupancyRepository 占用记录只读查询
type OccupancyRepository interface {
	GetOccupancy(ctx context.Context, tenantID, occupancyID string) (*domain.Occupancy, error)
	ListOccupancies(ctx context.Context, tenantID string, filters OccupancyFilters, page, size int) ([]*domain.Occupancy, int, error)
	// IterExpiring active 且 end_date ∈ [from, to]，按 end_date 升序惰性产出
	IterExpiring(ctx context.Context, tenantID string, from, to time.Time) iter.Seq2[*domain.Occupancy, error]
	ListUnpaid(ctx context.Context, tenantID string) ([]*domain.Occupancy, error)
	Statistics(ctx context.Context, tenantID string) (*OccupancyStats, error)
}

// StudentsRepository 学生目录（只读）
type StudentsRepository interface {
	GetStudent(ctx context.Context, tenantID, studentID string) (*domain.Student, error)
}

// TenantResolver 扩展权限调用方未带 tenant 时，按资源反查租户
type TenantResolver interface {
	TenantIDByHousingID(ctx context.Context, housingID string) (string, error)
	TenantIDByRoomID(ctx context.Context, roomID string) (string, error)
	TenantIDByBedID(ctx context.Context, bedID string) (string, error)
	TenantIDByOccupancyID(ctx context.Context, occupancyID string) (string, error)
}

// UnitOfWork 多聚合原子写入边界
type UnitOfWork interface {
	// WithinTx fn 返回错误时全部回滚；成功则一次提交
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx 事务内的读写操作；Lock* 对行加排他锁（SELECT ... FOR UPDATE）
// 加锁顺序约定：bed -> room -> housing，避免死锁
type Tx interface {
	// Beds
	LockBed(ctx context.Context, tenantID, bedID string) (*domain.Bed, error)
	LockBedsInRoom(ctx context.Context, tenantID, roomID string) ([]*domain.Bed, error)
	InsertBed(ctx context.Context, bed *domain.Bed) error
	UpdateBedStatus(ctx context.Context, tenantID, bedID string, status domain.BedStatus, notes sql.NullString, actor string) error
	DeleteBed(ctx context.Context, tenantID, bedID string) error

	// Rooms
	LockRoom(ctx context.Context, tenantID, roomID string) (*domain.Room, error)
	UpdateRoomCapacity(ctx context.Context, tenantID, roomID string, capacity int, actor string) error
	CountBedsByStatus(ctx context.Context, tenantID, roomID string) (map[domain.BedStatus]int, error)
	SaveRoomAggregate(ctx context.Context, room *domain.Room) error

	// Housings
	LockHousing(ctx context.Context, tenantID, housingID string) (*domain.Housing, error)
	CountOccupiedBedsInHousing(ctx context.Context, tenantID, housingID string) (int, error)
	SaveHousingAggregate(ctx context.Context, housing *domain.Housing) error
	CountActiveOccupanciesInHousing(ctx context.Context, tenantID, housingID string) (int, error)
	DeleteHousing(ctx context.Context, tenantID, housingID string) error

	// Occupancies
	CountActiveOccupanciesForBed(ctx context.Context, tenantID, bedID string) (int, error)
	InsertOccupancy(ctx context.Context, occupancy *domain.Occupancy) error
	LockOccupancy(ctx context.Context, tenantID, occupancyID string) (*domain.Occupancy, error)
	UpdateOccupancy(ctx context.Context, occupancy *domain.Occupancy) error
}

// OccupancyFilters 占用记录查询过滤器
type OccupancyFilters struct {
	Status    string
	HousingID string
	RoomID    string
	BedID     string
	StudentID string
	Search    string // 模糊搜索 学生姓名 / 房间号 / 床位号
}

// OccupancyStats 租户级统计
type OccupancyStats struct {
	Total         int `json:"total"`
	Active        int `json:"active"`
	Ended         int `json:"ended"`
	Cancelled     int `json:"cancelled"`
	Unpaid        int `json:"unpaid"`
	BedsTotal     int `json:"beds_total"`
	BedsOccupied  int `json:"beds_occupied"`
	BedsAvailable int `json:"beds_available"`
}
