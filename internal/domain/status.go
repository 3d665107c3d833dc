package domain

// BedStatus 床位状态（也用于 Room.Status）
type BedStatus string

const (
	BedAvailable    BedStatus = "available"
	BedOccupied     BedStatus = "occupied"
	BedMaintenance  BedStatus = "maintenance"
	BedOutOfService BedStatus = "out_of_service"
)

// RoomStatus 与床位状态同一取值集合
type RoomStatus = BedStatus

const (
	RoomAvailable    = BedAvailable
	RoomOccupied     = BedOccupied
	RoomMaintenance  = BedMaintenance
	RoomOutOfService = BedOutOfService
)

// ParseBedStatus 校验并转换外部输入
func ParseBedStatus(s string) (BedStatus, bool) {
	st := BedStatus(s)
	switch st {
	case BedAvailable, BedOccupied, BedMaintenance, BedOutOfService:
		return st, true
	}
	return "", false
}

// Label 展示用标签
func (s BedStatus) Label() string {
	switch s {
	case BedAvailable:
		return "disponible"
	case BedOccupied:
		return "occupé"
	case BedMaintenance:
		return "en maintenance"
	case BedOutOfService:
		return "hors service"
	}
	return string(s)
}

// OccupancyStatus 占用记录状态：active -> ended | cancelled（终态）
type OccupancyStatus string

const (
	OccupancyActive    OccupancyStatus = "active"
	OccupancyEnded     OccupancyStatus = "ended"
	OccupancyCancelled OccupancyStatus = "cancelled"
)

func ParseOccupancyStatus(s string) (OccupancyStatus, bool) {
	st := OccupancyStatus(s)
	switch st {
	case OccupancyActive, OccupancyEnded, OccupancyCancelled:
		return st, true
	}
	return "", false
}

func (s OccupancyStatus) Label() string {
	switch s {
	case OccupancyActive:
		return "active"
	case OccupancyEnded:
		return "terminée"
	case OccupancyCancelled:
		return "annulée"
	}
	return string(s)
}

// Terminal ended/cancelled 不可再迁移
func (s OccupancyStatus) Terminal() bool {
	return s == OccupancyEnded || s == OccupancyCancelled
}

// HousingStatus 住房（楼）状态
type HousingStatus string

const (
	HousingActive      HousingStatus = "active"
	HousingMaintenance HousingStatus = "maintenance"
	HousingClosed      HousingStatus = "closed"
)

func ParseHousingStatus(s string) (HousingStatus, bool) {
	st := HousingStatus(s)
	switch st {
	case HousingActive, HousingMaintenance, HousingClosed:
		return st, true
	}
	return "", false
}
