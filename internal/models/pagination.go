package models

// BackendPagination 列表接口分页信息
type BackendPagination struct {
	Size      int    `json:"size"`
	Page      int    `json:"page"`
	Count     int    `json:"count"`
	Sort      string `json:"sort"`
	Direction int    `json:"direction"`
}

// NewPagination page/size 规范化（page 从 1 开始，size 默认 100，上限 500）
func NewPagination(page, size, count int) BackendPagination {
	page, size = Normalize(page, size)
	return BackendPagination{Size: size, Page: page, Count: count}
}

func Normalize(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 100
	}
	if size > 500 {
		size = 500
	}
	return page, size
}
