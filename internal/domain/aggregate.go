package domain

import (
	"math"
	"strconv"
)

// OccupancyRate occupied / capacity * 100，保留一位小数；capacity <= 0 时为 0
func OccupancyRate(occupied, capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	return math.Round(float64(occupied)/float64(capacity)*1000) / 10
}

// FormatRate "25.0" 格式
func FormatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', 1, 64)
}

// DeriveRoomStatus 房间状态只由 occupied 床位数与容量决定；
// 人工设置的 maintenance / out_of_service 保留不变（维修床位不参与）
func DeriveRoomStatus(current RoomStatus, occupation, capacity int) RoomStatus {
	if current == RoomMaintenance || current == RoomOutOfService {
		return current
	}
	if capacity > 0 && occupation >= capacity {
		return RoomOccupied
	}
	return RoomAvailable
}

// BedLabel 第 position 张床（从 1 开始）：A..Z，之后为数字 "27", "28", ...
func BedLabel(position int) string {
	if position >= 1 && position <= 26 {
		return string(rune('A' + position - 1))
	}
	return strconv.Itoa(position)
}
