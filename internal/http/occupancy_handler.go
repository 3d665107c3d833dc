package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"residence-data/internal/domain"
	"residence-data/internal/repository"
	"residence-data/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const occupanciesPath = "/admin/api/v1/occupancies"

// 导出单次上限
const exportPageSize = 500

// OccupancyHandler 占用记录与床位分配
type OccupancyHandler struct {
	engine  *service.AllocationEngine
	ledger  *service.OccupancyLedger
	stats   *service.StatisticsService
	tenants *TenantContext
	logger  *zap.Logger
}

func NewOccupancyHandler(
	engine *service.AllocationEngine,
	ledger *service.OccupancyLedger,
	stats *service.StatisticsService,
	tenants *TenantContext,
	logger *zap.Logger,
) *OccupancyHandler {
	return &OccupancyHandler{engine: engine, ledger: ledger, stats: stats, tenants: tenants, logger: logger}
}

type assignBedBody struct {
	StudentID   string          `json:"student_id" validate:"required"`
	BedID       string          `json:"bed_id" validate:"required"`
	RoomID      string          `json:"room_id" validate:"required"`
	StartDate   string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string          `json:"end_date" validate:"required,datetime=2006-01-02"`
	MonthlyRent decimal.Decimal `json:"monthly_rent"`
}

type cancelBody struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *OccupancyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, occupanciesPath)
	switch {
	case parts == nil:
		w.WriteHeader(http.StatusNotFound)
	case len(parts) == 0 && r.Method == http.MethodGet:
		h.ListOccupancies(w, r)
	case len(parts) == 0 && r.Method == http.MethodPost:
		h.AssignBed(w, r)
	case len(parts) == 1 && parts[0] == "expiring" && r.Method == http.MethodGet:
		h.ListExpiring(w, r)
	case len(parts) == 1 && parts[0] == "unpaid" && r.Method == http.MethodGet:
		h.ListUnpaid(w, r)
	case len(parts) == 1 && parts[0] == "statistics" && r.Method == http.MethodGet:
		h.Statistics(w, r)
	case len(parts) == 1 && parts[0] == "export" && r.Method == http.MethodGet:
		h.Export(w, r)
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.GetOccupancy(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "release" && r.Method == http.MethodPost:
		h.ReleaseBed(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
		h.CancelBed(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "rent-paid" && r.Method == http.MethodPost:
		h.MarkRentPaid(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// AssignBed 分配床位，返回占用记录与重算后的房间/住房
func (h *OccupancyHandler) AssignBed(w http.ResponseWriter, r *http.Request) {
	var body assignBedBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, h.logger, "AssignBed", err)
		return
	}
	rc, err := h.tenants.Resolve(r.Context(), r, resourceBed, body.BedID)
	if err != nil {
		writeError(w, h.logger, "AssignBed", err)
		return
	}
	// datetime tag 已校验格式
	start, _ := time.Parse(time.DateOnly, body.StartDate)
	end, _ := time.Parse(time.DateOnly, body.EndDate)

	res, err := h.engine.AssignBed(r.Context(), service.AssignBedRequest{
		TenantID:    rc.TenantID,
		StudentID:   body.StudentID,
		BedID:       body.BedID,
		RoomID:      body.RoomID,
		StartDate:   start,
		EndDate:     end,
		MonthlyRent: body.MonthlyRent,
		Actor:       rc.Actor,
	})
	if err != nil {
		writeError(w, h.logger, "AssignBed", err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(allocationToJSON(res)))
}

func (h *OccupancyHandler) ReleaseBed(w http.ResponseWriter, r *http.Request, occupancyID string) {
	rc, err := h.tenants.Resolve(r.Context(), r, resourceOccupancy, occupancyID)
	if err != nil {
		writeError(w, h.logger, "ReleaseBed", err)
		return
	}
	res, err := h.engine.ReleaseBed(r.Context(), rc.TenantID, occupancyID, rc.Actor)
	if err != nil {
		writeError(w, h.logger, "ReleaseBed", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(allocationToJSON(res)))
}

func (h *OccupancyHandler) CancelBed(w http.ResponseWriter, r *http.Request, occupancyID string) {
	rc, err := h.tenants.Resolve(r.Context(), r, resourceOccupancy, occupancyID)
	if err != nil {
		writeError(w, h.logger, "CancelBed", err)
		return
	}
	var body cancelBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, h.logger, "CancelBed", err)
		return
	}
	res, err := h.engine.CancelBed(r.Context(), rc.TenantID, occupancyID, body.Reason, rc.Actor)
	if err != nil {
		writeError(w, h.logger, "CancelBed", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(allocationToJSON(res)))
}

func (h *OccupancyHandler) MarkRentPaid(w http.ResponseWriter, r *http.Request, occupancyID string) {
	rc, err := h.tenants.Resolve(r.Context(), r, resourceOccupancy, occupancyID)
	if err != nil {
		writeError(w, h.logger, "MarkRentPaid", err)
		return
	}
	o, err := h.ledger.MarkRentPaid(r.Context(), rc.TenantID, occupancyID, rc.Actor)
	if err != nil {
		writeError(w, h.logger, "MarkRentPaid", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(o.ToJSON()))
}

func (h *OccupancyHandler) GetOccupancy(w http.ResponseWriter, r *http.Request, occupancyID string) {
	rc, err := h.tenants.Resolve(r.Context(), r, resourceOccupancy, occupancyID)
	if err != nil {
		writeError(w, h.logger, "GetOccupancy", err)
		return
	}
	o, err := h.ledger.Get(r.Context(), rc.TenantID, occupancyID)
	if err != nil {
		writeError(w, h.logger, "GetOccupancy", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(o.ToJSON()))
}

func filtersFromQuery(r *http.Request) repository.OccupancyFilters {
	q := r.URL.Query()
	return repository.OccupancyFilters{
		Status:    q.Get("status"),
		HousingID: q.Get("housing_id"),
		RoomID:    q.Get("room_id"),
		BedID:     q.Get("bed_id"),
		StudentID: q.Get("student_id"),
		Search:    q.Get("search"),
	}
}

// ListOccupancies 支持 status/housing_id/room_id/bed_id/student_id/search + page/size
func (h *OccupancyHandler) ListOccupancies(w http.ResponseWriter, r *http.Request) {
	rc, err := h.tenants.Resolve(r.Context(), r, resourceNone, "")
	if err != nil {
		writeError(w, h.logger, "ListOccupancies", err)
		return
	}
	resp, err := h.ledger.List(r.Context(), service.ListOccupanciesRequest{
		TenantID: rc.TenantID,
		Filters:  filtersFromQuery(r),
		Page:     parseInt(r.URL.Query().Get("page"), 1),
		Size:     parseInt(r.URL.Query().Get("size"), 100),
	})
	if err != nil {
		writeError(w, h.logger, "ListOccupancies", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items":      occupanciesToJSON(resp.Items),
		"pagination": resp.Pagination,
	}))
}

// ListExpiring ?days=30
func (h *OccupancyHandler) ListExpiring(w http.ResponseWriter, r *http.Request) {
	rc, err := h.tenants.Resolve(r.Context(), r, resourceNone, "")
	if err != nil {
		writeError(w, h.logger, "ListExpiring", err)
		return
	}
	days := parseInt(r.URL.Query().Get("days"), 0)
	if days < 0 || days > 3650 {
		writeError(w, h.logger, "ListExpiring", domain.Validationf("days must be between 0 and 3650"))
		return
	}

	out := []map[string]any{}
	for o, err := range h.ledger.ListExpiring(r.Context(), rc.TenantID, days) {
		if err != nil {
			writeError(w, h.logger, "ListExpiring", err)
			return
		}
		out = append(out, o.ToJSON())
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

func (h *OccupancyHandler) ListUnpaid(w http.ResponseWriter, r *http.Request) {
	rc, err := h.tenants.Resolve(r.Context(), r, resourceNone, "")
	if err != nil {
		writeError(w, h.logger, "ListUnpaid", err)
		return
	}
	items, err := h.ledger.ListUnpaid(r.Context(), rc.TenantID)
	if err != nil {
		writeError(w, h.logger, "ListUnpaid", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(occupanciesToJSON(items)))
}

func (h *OccupancyHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	rc, err := h.tenants.Resolve(r.Context(), r, resourceNone, "")
	if err != nil {
		writeError(w, h.logger, "Statistics", err)
		return
	}
	st, err := h.stats.Get(r.Context(), rc.TenantID)
	if err != nil {
		writeError(w, h.logger, "Statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(st))
}

// Export 按当前筛选条件导出 xlsx
func (h *OccupancyHandler) Export(w http.ResponseWriter, r *http.Request) {
	rc, err := h.tenants.Resolve(r.Context(), r, resourceNone, "")
	if err != nil {
		writeError(w, h.logger, "Export", err)
		return
	}
	filters := filtersFromQuery(r)

	var rows []*domain.Occupancy
	for page := 1; ; page++ {
		resp, err := h.ledger.List(r.Context(), service.ListOccupanciesRequest{
			TenantID: rc.TenantID, Filters: filters, Page: page, Size: exportPageSize,
		})
		if err != nil {
			writeError(w, h.logger, "Export", err)
			return
		}
		rows = append(rows, resp.Items...)
		if len(resp.Items) < exportPageSize || len(rows) >= resp.Pagination.Count {
			break
		}
	}

	data, err := GenerateOccupancyExport(rows)
	if err != nil {
		writeError(w, h.logger, "Export", err)
		return
	}
	filename := fmt.Sprintf("occupancies_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func occupanciesToJSON(items []*domain.Occupancy) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, o := range items {
		out = append(out, o.ToJSON())
	}
	return out
}

func allocationToJSON(res *service.AllocationResult) map[string]any {
	return map[string]any{
		"occupancy": res.Occupancy.ToJSON(),
		"room":      res.Room,
		"housing":   res.Housing,
	}
}
