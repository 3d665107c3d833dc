package httpapi

import (
	"net/http"

	"residence-data/internal/domain"
	"residence-data/internal/service"

	"go.uber.org/zap"
)

const (
	housingsPath = "/admin/api/v1/housings"
	roomsPath    = "/admin/api/v1/rooms"
	bedsPath     = "/admin/api/v1/beds"
)

// HousingHandler 住房 / 房间 / 床位管理
type HousingHandler struct {
	housings service.HousingService
	beds     *service.BedRegistry
	tenants  *TenantContext
	logger   *zap.Logger
}

func NewHousingHandler(housings service.HousingService, beds *service.BedRegistry, tenants *TenantContext, logger *zap.Logger) *HousingHandler {
	return &HousingHandler{housings: housings, beds: beds, tenants: tenants, logger: logger}
}

type createHousingBody struct {
	Name          string `json:"housing_name" validate:"required,max=200"`
	Category      string `json:"category" validate:"omitempty,max=50"`
	DeclaredRooms int    `json:"declared_rooms" validate:"gte=0"`
	TotalCapacity int    `json:"total_capacity" validate:"gte=0"`
}

type createRoomBody struct {
	HousingID string `json:"housing_id" validate:"required"`
	Label     string `json:"room_label" validate:"required,max=50"`
	Capacity  int    `json:"capacity" validate:"gte=0,lte=200"`
}

type statusBody struct {
	Status string `json:"status" validate:"required,oneof=available occupied maintenance out_of_service"`
	Note   string `json:"note" validate:"omitempty,max=500"`
}

type generateBedsBody struct {
	Capacity int `json:"capacity" validate:"gte=0,lte=200"`
}

type createBedBody struct {
	RoomID string `json:"room_id" validate:"required"`
	Number string `json:"bed_number" validate:"required,max=10"`
	Notes  string `json:"notes" validate:"omitempty,max=500"`
}

// ServeHTTP 路由分发
func (h *HousingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if parts := pathParts(r.URL.Path, housingsPath); parts != nil {
		h.serveHousings(w, r, parts)
		return
	}
	if parts := pathParts(r.URL.Path, roomsPath); parts != nil {
		h.serveRooms(w, r, parts)
		return
	}
	if parts := pathParts(r.URL.Path, bedsPath); parts != nil {
		h.serveBeds(w, r, parts)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *HousingHandler) serveHousings(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		h.ListHousings(w, r)
	case len(parts) == 0 && r.Method == http.MethodPost:
		h.CreateHousing(w, r)
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.GetHousing(w, r, parts[0])
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.DeleteHousing(w, r, parts[0])
	case len(parts) <= 1:
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *HousingHandler) serveRooms(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		h.ListRooms(w, r)
	case len(parts) == 0 && r.Method == http.MethodPost:
		h.CreateRoom(w, r)
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.GetRoom(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "status" && r.Method == http.MethodPut:
		h.SetRoomStatus(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "beds" && r.Method == http.MethodGet:
		h.ListBeds(w, r, parts[0], false)
	case len(parts) == 3 && parts[1] == "beds" && parts[2] == "available" && r.Method == http.MethodGet:
		h.ListBeds(w, r, parts[0], true)
	case len(parts) == 3 && parts[1] == "beds" && parts[2] == "generate" && r.Method == http.MethodPost:
		h.GenerateBeds(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *HousingHandler) serveBeds(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodPost:
		h.CreateBed(w, r)
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.GetBed(w, r, parts[0])
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.DeleteBed(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "status" && r.Method == http.MethodPut:
		h.SetBedStatus(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ============================================
// Housing
// ============================================

func (h *HousingHandler) ListHousings(w http.ResponseWriter, r *http.Request) {
	rc, err := h.tenants.Resolve(r.Context(), r, resourceNone, "")
	if err != nil {
		writeError(w, h.logger, "ListHousings", err)
		return
	}
	items, err := h.housings.ListHousings(r.Context(), rc.TenantID)
	if err != nil {
		writeError(w, h.logger, "ListHousings", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(items))
}

func (h *HousingHandler) CreateHousing(w http.ResponseWriter, r *http.Request) {
	rc, err := h.tenants.Resolve(r.Context(), r, resourceNone, "")
	if err != nil {
		writeError(w, h.logger, "CreateHousing", err)
		return
	}
	var body createHousingBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, h.logger, "CreateHousing", err)
		return
	}
	housing, err := h.housings.CreateHousing(r.Context(), service.CreateHousingRequest{
		TenantID:      rc.TenantID,
		Name:          body.Name,
		Category:      body.Category,
		DeclaredRooms: body.DeclaredRooms,
		TotalCapacity: body.TotalCapacity,
		Actor:         rc.Actor,
	})
	if err != nil {
		writeError(w, h.logger, "CreateHousing", err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(housing))
}

func (h *HousingHandler) GetHousing(w http.ResponseWriter, r *http.Request, housingID string) {
	rc, err := h.tenants.Resolve(r.Context(), r, resourceHousing, housingID)
	if err != nil {
		writeError(w, h.logger, "GetHousing", err)
		return
	}
	detail, err := h.housings.GetHousing(r.Context(), rc.TenantID, housingID)
	if err != nil {
		writeError(w, h.logger, "GetHousing", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(detail))
}

func (h *HousingHandler) DeleteHousing(w http.ResponseWriter, r *http.Request, housingID string) {
	rc, err := h.tenants.Resolve(r.Context(), r, resourceHousing, housingID)
	if err != nil {
		writeError(w, h.logger, "DeleteHousing", err)
		return
	}
	if err := h.housings.DeleteHousing(r.Context(), rc.TenantID, housingID, rc.Actor); err != nil {
		writeError(w, h.logger, "DeleteHousing", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"housing_id": housingID, "deleted": true}))
}

// ============================================
// Room
// ============================================

func (h *HousingHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	housingID := r.URL.Query().Get("housing_id")
	rc, err := h.tenants.Resolve(r.Context(), r, resourceHousing, housingID)
	if err != nil {
		writeError(w, h.logger, "ListRooms", err)
		return
	}
	rooms, err := h.housings.ListRooms(r.Context(), rc.TenantID, housingID)
	if err != nil {
		writeError(w, h.logger, "ListRooms", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(rooms))
}

func (h *HousingHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var body createRoomBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, h.logger, "CreateRoom", err)
		return
	}
	rc, err := h.tenants.Resolve(r.Context(), r, resourceHousing, body.HousingID)
	if err != nil {
		writeError(w, h.logger, "CreateRoom", err)
		return
	}
	room, err := h.housings.CreateRoom(r.Context(), service.CreateRoomRequest{
		TenantID:  rc.TenantID,
		HousingID: body.HousingID,
		Label:     body.Label,
		Capacity:  body.Capacity,
		Actor:     rc.Actor,
	})
	if err != nil {
		writeError(w, h.logger, "CreateRoom", err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(room))
}

func (h *HousingHandler) GetRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	rc, err := h.tenants.Resolve(r.Context(), r, resourceRoom, roomID)
	if err != nil {
		writeError(w, h.logger, "GetRoom", err)
		return
	}
	room, err := h.housings.GetRoom(r.Context(), rc.TenantID, roomID)
	if err != nil {
		writeError(w, h.logger, "GetRoom", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(room))
}

func (h *HousingHandler) SetRoomStatus(w http.ResponseWriter, r *http.Request, roomID string) {
	rc, err := h.tenants.Resolve(r.Context(), r, resourceRoom, roomID)
	if err != nil {
		writeError(w, h.logger, "SetRoomStatus", err)
		return
	}
	var body statusBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, h.logger, "SetRoomStatus", err)
		return
	}
	room, err := h.housings.SetRoomStatus(r.Context(), service.SetRoomStatusRequest{
		TenantID: rc.TenantID,
		RoomID:   roomID,
		Status:   body.Status,
		Actor:    rc.Actor,
	})
	if err != nil {
		writeError(w, h.logger, "SetRoomStatus", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(room))
}

func (h *HousingHandler) GenerateBeds(w http.ResponseWriter, r *http.Request, roomID string) {
	rc, err := h.tenants.Resolve(r.Context(), r, resourceRoom, roomID)
	if err != nil {
		writeError(w, h.logger, "GenerateBeds", err)
		return
	}
	var body generateBedsBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, h.logger, "GenerateBeds", err)
		return
	}
	resp, err := h.beds.GenerateBedsForRoom(r.Context(), service.GenerateBedsRequest{
		TenantID: rc.TenantID,
		RoomID:   roomID,
		Capacity: body.Capacity,
		Actor:    rc.Actor,
	})
	if err != nil {
		writeError(w, h.logger, "GenerateBeds", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"created":  bedsToJSON(resp.Created),
		"deleted":  resp.Deleted,
		"retained": resp.Retained,
		"room":     resp.Room,
	}))
}

// ============================================
// Bed
// ============================================

func (h *HousingHandler) ListBeds(w http.ResponseWriter, r *http.Request, roomID string, availableOnly bool) {
	rc, err := h.tenants.Resolve(r.Context(), r, resourceRoom, roomID)
	if err != nil {
		writeError(w, h.logger, "ListBeds", err)
		return
	}
	var beds []*domain.Bed
	if availableOnly {
		beds, err = h.beds.ListAvailableBeds(r.Context(), rc.TenantID, roomID)
	} else {
		beds, err = h.beds.ListBeds(r.Context(), rc.TenantID, roomID)
	}
	if err != nil {
		writeError(w, h.logger, "ListBeds", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(bedsToJSON(beds)))
}

func (h *HousingHandler) CreateBed(w http.ResponseWriter, r *http.Request) {
	var body createBedBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, h.logger, "CreateBed", err)
		return
	}
	rc, err := h.tenants.Resolve(r.Context(), r, resourceRoom, body.RoomID)
	if err != nil {
		writeError(w, h.logger, "CreateBed", err)
		return
	}
	bed, err := h.beds.CreateBed(r.Context(), service.CreateBedRequest{
		TenantID: rc.TenantID,
		RoomID:   body.RoomID,
		Number:   body.Number,
		Notes:    body.Notes,
		Actor:    rc.Actor,
	})
	if err != nil {
		writeError(w, h.logger, "CreateBed", err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(bed.ToJSON()))
}

func (h *HousingHandler) GetBed(w http.ResponseWriter, r *http.Request, bedID string) {
	rc, err := h.tenants.Resolve(r.Context(), r, resourceBed, bedID)
	if err != nil {
		writeError(w, h.logger, "GetBed", err)
		return
	}
	bed, err := h.beds.GetBed(r.Context(), rc.TenantID, bedID)
	if err != nil {
		writeError(w, h.logger, "GetBed", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(bed.ToJSON()))
}

func (h *HousingHandler) DeleteBed(w http.ResponseWriter, r *http.Request, bedID string) {
	rc, err := h.tenants.Resolve(r.Context(), r, resourceBed, bedID)
	if err != nil {
		writeError(w, h.logger, "DeleteBed", err)
		return
	}
	if err := h.beds.DeleteBed(r.Context(), rc.TenantID, bedID, rc.Actor); err != nil {
		writeError(w, h.logger, "DeleteBed", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"bed_id": bedID, "deleted": true}))
}

func (h *HousingHandler) SetBedStatus(w http.ResponseWriter, r *http.Request, bedID string) {
	rc, err := h.tenants.Resolve(r.Context(), r, resourceBed, bedID)
	if err != nil {
		writeError(w, h.logger, "SetBedStatus", err)
		return
	}
	var body statusBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, h.logger, "SetBedStatus", err)
		return
	}
	bed, err := h.beds.SetStatus(r.Context(), service.SetBedStatusRequest{
		TenantID: rc.TenantID,
		BedID:    bedID,
		Status:   body.Status,
		Note:     body.Note,
		Actor:    rc.Actor,
	})
	if err != nil {
		writeError(w, h.logger, "SetBedStatus", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(bed.ToJSON()))
}

func bedsToJSON(beds []*domain.Bed) []map[string]any {
	out := make([]map[string]any, 0, len(beds))
	for _, b := range beds {
		out = append(out, b.ToJSON())
	}
	return out
}
