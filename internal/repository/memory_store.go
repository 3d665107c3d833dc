package repository

import (
	"cmp"
	"context"
	"database/sql"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"residence-data/internal/domain"

	"github.com/google/uuid"
)

// MemoryStore: DB 未就绪时的联测与单元测试
// - 按 tenant_id 隔离
// - IDs 使用 uuid
// - WithinTx 在工作副本上执行，成功后整体替换（copy-on-commit），失败即丢弃
// - 与 Postgres 相同的唯一约束：(room, bed_number) / (housing, room_label) / 每床位至多一个 active 占用
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
	now   func() time.Time
}

type memState struct {
	housings    map[string]domain.Housing
	rooms       map[string]domain.Room
	beds        map[string]domain.Bed
	occupancies map[string]domain.Occupancy
	students    map[string]domain.Student
}

func newMemState() *memState {
	return &memState{
		housings:    map[string]domain.Housing{},
		rooms:       map[string]domain.Room{},
		beds:        map[string]domain.Bed{},
		occupancies: map[string]domain.Occupancy{},
		students:    map[string]domain.Student{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.housings {
		c.housings[k] = v
	}
	for k, v := range s.rooms {
		c.rooms[k] = v
	}
	for k, v := range s.beds {
		c.beds[k] = v
	}
	for k, v := range s.occupancies {
		c.occupancies[k] = v
	}
	for k, v := range s.students {
		c.students[k] = v
	}
	return c
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState(), now: time.Now}
}

var (
	_ HousingRepository   = (*MemoryStore)(nil)
	_ OccupancyRepository = (*MemoryStore)(nil)
	_ StudentsRepository  = (*MemoryStore)(nil)
	_ TenantResolver      = (*MemoryStore)(nil)
	_ UnitOfWork          = (*MemoryStore)(nil)
)

// ---- unit of work ----

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.Unavailable(err)
	}
	work := m.state.clone()
	if err := fn(ctx, &memTx{s: work, now: m.now}); err != nil {
		return err
	}
	// 超时后不提交，与数据库取消语句的行为一致
	if err := ctx.Err(); err != nil {
		return domain.Unavailable(err)
	}
	m.state = work
	return nil
}

// ---- students ----

func (m *MemoryStore) UpsertStudent(_ context.Context, s *domain.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.students[s.StudentID] = *s
	return nil
}

func (m *MemoryStore) GetStudent(_ context.Context, tenantID, studentID string) (*domain.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.state.students[studentID]
	if !ok || s.TenantID != tenantID {
		return nil, domain.NotFoundf("student not found: student_id=%s", studentID)
	}
	return &s, nil
}

// ---- housings ----

func (m *MemoryStore) CreateHousing(_ context.Context, h *domain.Housing) (string, error) {
	if h == nil || h.TenantID == "" {
		return "", domain.Validationf("tenant_id is required")
	}
	if strings.TrimSpace(h.Name) == "" {
		return "", domain.Validationf("housing_name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	h.HousingID = uuid.NewString()
	if h.Status == "" {
		h.Status = domain.HousingActive
	}
	h.CurrentOccupation = 0
	h.OccupancyRate = 0
	h.CreatedAt, h.UpdatedAt = now, now
	m.state.housings[h.HousingID] = *h
	return h.HousingID, nil
}

func (m *MemoryStore) GetHousing(_ context.Context, tenantID, housingID string) (*domain.Housing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.housing(tenantID, housingID)
}

func (m *MemoryStore) ListHousings(_ context.Context, tenantID string) ([]*domain.Housing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*domain.Housing{}
	for _, h := range m.state.housings {
		if h.TenantID == tenantID {
			out = append(out, &h)
		}
	}
	slices.SortFunc(out, func(a, b *domain.Housing) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// ---- rooms ----

func (m *MemoryStore) CreateRoom(_ context.Context, room *domain.Room) (string, error) {
	if room == nil || room.TenantID == "" {
		return "", domain.Validationf("tenant_id is required")
	}
	if strings.TrimSpace(room.Label) == "" {
		return "", domain.Validationf("room_label is required")
	}
	if room.Capacity < 0 {
		return "", domain.Validationf("capacity must be >= 0")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.state.housing(room.TenantID, room.HousingID); err != nil {
		return "", err
	}
	for _, r := range m.state.rooms {
		if r.HousingID == room.HousingID && r.Label == room.Label {
			return "", domain.Conflictf("room label already exists in this housing")
		}
	}
	now := m.now()
	room.RoomID = uuid.NewString()
	room.Occupation = 0
	room.OccupancyRate = 0
	room.Status = domain.RoomAvailable
	room.CreatedAt, room.UpdatedAt = now, now
	m.state.rooms[room.RoomID] = *room
	return room.RoomID, nil
}

func (m *MemoryStore) GetRoom(_ context.Context, tenantID, roomID string) (*domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.room(tenantID, roomID)
}

func (m *MemoryStore) ListRooms(_ context.Context, tenantID, housingID string) ([]*domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*domain.Room{}
	for _, r := range m.state.rooms {
		if r.TenantID == tenantID && (housingID == "" || r.HousingID == housingID) {
			out = append(out, &r)
		}
	}
	slices.SortFunc(out, func(a, b *domain.Room) int { return cmp.Compare(a.Label, b.Label) })
	return out, nil
}

// ---- beds ----

func (m *MemoryStore) GetBed(_ context.Context, tenantID, bedID string) (*domain.Bed, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.bed(tenantID, bedID)
}

func (m *MemoryStore) ListBeds(_ context.Context, tenantID, roomID string, status domain.BedStatus) ([]*domain.Bed, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*domain.Bed{}
	for _, b := range m.state.beds {
		if b.TenantID != tenantID || b.RoomID != roomID {
			continue
		}
		if status != "" && b.Status != status {
			continue
		}
		out = append(out, &b)
	}
	slices.SortFunc(out, func(a, b *domain.Bed) int { return compareBedNumber(a.Number, b.Number) })
	return out, nil
}

// compareBedNumber 长度优先，与 Postgres ORDER BY LENGTH(bed_number), bed_number 一致
func compareBedNumber(a, b string) int {
	if c := cmp.Compare(len(a), len(b)); c != 0 {
		return c
	}
	return cmp.Compare(a, b)
}

// ---- occupancies ----

func (m *MemoryStore) GetOccupancy(_ context.Context, tenantID, occupancyID string) (*domain.Occupancy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, err := m.state.occupancy(tenantID, occupancyID)
	if err != nil {
		return nil, err
	}
	m.state.decorate(o)
	return o, nil
}

func (m *MemoryStore) ListOccupancies(_ context.Context, tenantID string, f OccupancyFilters, page, size int) ([]*domain.Occupancy, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	search := strings.ToLower(f.Search)
	all := []*domain.Occupancy{}
	for _, o := range m.state.occupancies {
		if o.TenantID != tenantID {
			continue
		}
		if f.Status != "" && string(o.Status) != f.Status ||
			f.HousingID != "" && o.HousingID.String != f.HousingID ||
			f.RoomID != "" && o.RoomID != f.RoomID ||
			f.BedID != "" && o.BedID != f.BedID ||
			f.StudentID != "" && o.StudentID != f.StudentID {
			continue
		}
		m.state.decorate(&o)
		if search != "" &&
			!strings.Contains(strings.ToLower(o.StudentName), search) &&
			!strings.Contains(strings.ToLower(o.RoomLabel), search) &&
			!strings.Contains(strings.ToLower(o.BedNumber), search) {
			continue
		}
		all = append(all, &o)
	}
	slices.SortFunc(all, func(a, b *domain.Occupancy) int {
		if c := b.StartDate.Compare(a.StartDate); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	total := len(all)
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 100
	}
	start := (page - 1) * size
	if start >= total {
		return []*domain.Occupancy{}, total, nil
	}
	end := min(start+size, total)
	return all[start:end], total, nil
}

// IterExpiring 先在读锁下取快照，遍历时不持锁
func (m *MemoryStore) IterExpiring(ctx context.Context, tenantID string, from, to time.Time) iter.Seq2[*domain.Occupancy, error] {
	return func(yield func(*domain.Occupancy, error) bool) {
		fromDay, toDay := dateOnly(from), dateOnly(to)

		m.mu.RLock()
		var matched []*domain.Occupancy
		for _, o := range m.state.occupancies {
			if o.TenantID != tenantID || o.Status != domain.OccupancyActive {
				continue
			}
			end := dateOnly(o.EndDate)
			if end.Before(fromDay) || end.After(toDay) {
				continue
			}
			m.state.decorate(&o)
			matched = append(matched, &o)
		}
		m.mu.RUnlock()

		slices.SortFunc(matched, func(a, b *domain.Occupancy) int {
			if c := a.EndDate.Compare(b.EndDate); c != 0 {
				return c
			}
			return cmp.Compare(a.OccupancyID, b.OccupancyID)
		})
		for _, o := range matched {
			if err := ctx.Err(); err != nil {
				yield(nil, domain.Unavailable(err))
				return
			}
			if !yield(o, nil) {
				return
			}
		}
	}
}

func (m *MemoryStore) ListUnpaid(_ context.Context, tenantID string) ([]*domain.Occupancy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*domain.Occupancy{}
	for _, o := range m.state.occupancies {
		if o.TenantID == tenantID && o.Status == domain.OccupancyActive && !o.IsRentPaid {
			m.state.decorate(&o)
			out = append(out, &o)
		}
	}
	slices.SortFunc(out, func(a, b *domain.Occupancy) int { return a.StartDate.Compare(b.StartDate) })
	return out, nil
}

func (m *MemoryStore) Statistics(_ context.Context, tenantID string) (*OccupancyStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s OccupancyStats
	for _, o := range m.state.occupancies {
		if o.TenantID != tenantID {
			continue
		}
		s.Total++
		switch o.Status {
		case domain.OccupancyActive:
			s.Active++
			if !o.IsRentPaid {
				s.Unpaid++
			}
		case domain.OccupancyEnded:
			s.Ended++
		case domain.OccupancyCancelled:
			s.Cancelled++
		}
	}
	for _, b := range m.state.beds {
		if b.TenantID != tenantID {
			continue
		}
		s.BedsTotal++
		switch b.Status {
		case domain.BedOccupied:
			s.BedsOccupied++
		case domain.BedAvailable:
			s.BedsAvailable++
		}
	}
	return &s, nil
}

// ---- tenant resolver ----

func (m *MemoryStore) TenantIDByHousingID(_ context.Context, id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if h, ok := m.state.housings[id]; ok {
		return h.TenantID, nil
	}
	return "", domain.NotFoundf("housing not found: id=%s", id)
}

func (m *MemoryStore) TenantIDByRoomID(_ context.Context, id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.state.rooms[id]; ok {
		return r.TenantID, nil
	}
	return "", domain.NotFoundf("room not found: id=%s", id)
}

func (m *MemoryStore) TenantIDByBedID(_ context.Context, id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.state.beds[id]; ok {
		return b.TenantID, nil
	}
	return "", domain.NotFoundf("bed not found: id=%s", id)
}

func (m *MemoryStore) TenantIDByOccupancyID(_ context.Context, id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if o, ok := m.state.occupancies[id]; ok {
		return o.TenantID, nil
	}
	return "", domain.NotFoundf("occupancy not found: id=%s", id)
}

// ---- state lookups (返回副本) ----

func (s *memState) housing(tenantID, id string) (*domain.Housing, error) {
	h, ok := s.housings[id]
	if !ok || h.TenantID != tenantID {
		return nil, domain.NotFoundf("housing not found: housing_id=%s", id)
	}
	return &h, nil
}

func (s *memState) room(tenantID, id string) (*domain.Room, error) {
	r, ok := s.rooms[id]
	if !ok || r.TenantID != tenantID {
		return nil, domain.NotFoundf("room not found: room_id=%s", id)
	}
	return &r, nil
}

func (s *memState) bed(tenantID, id string) (*domain.Bed, error) {
	b, ok := s.beds[id]
	if !ok || b.TenantID != tenantID {
		return nil, domain.NotFoundf("bed not found: bed_id=%s", id)
	}
	return &b, nil
}

func (s *memState) occupancy(tenantID, id string) (*domain.Occupancy, error) {
	o, ok := s.occupancies[id]
	if !ok || o.TenantID != tenantID {
		return nil, domain.NotFoundf("occupancy not found: occupancy_id=%s", id)
	}
	return &o, nil
}

// decorate 填充 JOIN 展示字段
func (s *memState) decorate(o *domain.Occupancy) {
	if st, ok := s.students[o.StudentID]; ok {
		o.StudentName = st.FullName
	}
	if r, ok := s.rooms[o.RoomID]; ok {
		o.RoomLabel = r.Label
	}
	if b, ok := s.beds[o.BedID]; ok {
		o.BedNumber = b.Number
	}
}

func dateOnly(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// ============================================
// memTx
// ============================================

// memTx 在工作副本上操作；WithinTx 已持有写锁，Lock* 只做读取
type memTx struct {
	s   *memState
	now func() time.Time
}

func (t *memTx) LockBed(_ context.Context, tenantID, bedID string) (*domain.Bed, error) {
	return t.s.bed(tenantID, bedID)
}

func (t *memTx) LockBedsInRoom(_ context.Context, tenantID, roomID string) ([]*domain.Bed, error) {
	var out []*domain.Bed
	for _, b := range t.s.beds {
		if b.TenantID == tenantID && b.RoomID == roomID {
			out = append(out, &b)
		}
	}
	slices.SortFunc(out, func(a, b *domain.Bed) int { return cmp.Compare(a.BedID, b.BedID) })
	return out, nil
}

func (t *memTx) InsertBed(_ context.Context, bed *domain.Bed) error {
	if _, err := t.s.room(bed.TenantID, bed.RoomID); err != nil {
		return err
	}
	for _, b := range t.s.beds {
		if b.RoomID == bed.RoomID && b.Number == bed.Number {
			return domain.Conflictf("bed number already exists in this room")
		}
	}
	now := t.now()
	bed.BedID = uuid.NewString()
	bed.CreatedAt, bed.UpdatedAt = now, now
	t.s.beds[bed.BedID] = *bed
	return nil
}

func (t *memTx) UpdateBedStatus(_ context.Context, tenantID, bedID string, status domain.BedStatus, notes sql.NullString, actor string) error {
	b, err := t.s.bed(tenantID, bedID)
	if err != nil {
		return err
	}
	b.Status = status
	if notes.Valid {
		b.Notes = notes
	}
	b.UpdatedBy = actor
	b.UpdatedAt = t.now()
	t.s.beds[bedID] = *b
	return nil
}

func (t *memTx) DeleteBed(_ context.Context, tenantID, bedID string) error {
	if _, err := t.s.bed(tenantID, bedID); err != nil {
		return err
	}
	delete(t.s.beds, bedID)
	return nil
}

func (t *memTx) LockRoom(_ context.Context, tenantID, roomID string) (*domain.Room, error) {
	return t.s.room(tenantID, roomID)
}

func (t *memTx) UpdateRoomCapacity(_ context.Context, tenantID, roomID string, capacity int, actor string) error {
	r, err := t.s.room(tenantID, roomID)
	if err != nil {
		return err
	}
	r.Capacity = capacity
	r.UpdatedBy = actor
	r.UpdatedAt = t.now()
	t.s.rooms[roomID] = *r
	return nil
}

func (t *memTx) CountBedsByStatus(_ context.Context, tenantID, roomID string) (map[domain.BedStatus]int, error) {
	counts := map[domain.BedStatus]int{}
	for _, b := range t.s.beds {
		if b.TenantID == tenantID && b.RoomID == roomID {
			counts[b.Status]++
		}
	}
	return counts, nil
}

func (t *memTx) SaveRoomAggregate(_ context.Context, room *domain.Room) error {
	r, err := t.s.room(room.TenantID, room.RoomID)
	if err != nil {
		return err
	}
	r.Occupation = room.Occupation
	r.OccupancyRate = room.OccupancyRate
	r.Status = room.Status
	r.UpdatedBy = room.UpdatedBy
	r.UpdatedAt = t.now()
	t.s.rooms[r.RoomID] = *r
	return nil
}

func (t *memTx) LockHousing(_ context.Context, tenantID, housingID string) (*domain.Housing, error) {
	return t.s.housing(tenantID, housingID)
}

func (t *memTx) CountOccupiedBedsInHousing(_ context.Context, tenantID, housingID string) (int, error) {
	n := 0
	for _, b := range t.s.beds {
		if b.TenantID != tenantID || b.Status != domain.BedOccupied {
			continue
		}
		if r, ok := t.s.rooms[b.RoomID]; ok && r.HousingID == housingID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) SaveHousingAggregate(_ context.Context, housing *domain.Housing) error {
	h, err := t.s.housing(housing.TenantID, housing.HousingID)
	if err != nil {
		return err
	}
	h.CurrentOccupation = housing.CurrentOccupation
	h.OccupancyRate = housing.OccupancyRate
	h.UpdatedBy = housing.UpdatedBy
	h.UpdatedAt = t.now()
	t.s.housings[h.HousingID] = *h
	return nil
}

func (t *memTx) CountActiveOccupanciesInHousing(_ context.Context, tenantID, housingID string) (int, error) {
	n := 0
	for _, o := range t.s.occupancies {
		if o.TenantID != tenantID || o.Status != domain.OccupancyActive {
			continue
		}
		if o.HousingID.String == housingID {
			n++
			continue
		}
		if r, ok := t.s.rooms[o.RoomID]; ok && r.HousingID == housingID {
			n++
		}
	}
	return n, nil
}

// DeleteHousing 级联删除房间与床位；占用记录保留
func (t *memTx) DeleteHousing(_ context.Context, tenantID, housingID string) error {
	if _, err := t.s.housing(tenantID, housingID); err != nil {
		return err
	}
	for roomID, r := range t.s.rooms {
		if r.HousingID != housingID {
			continue
		}
		for bedID, b := range t.s.beds {
			if b.RoomID == roomID {
				delete(t.s.beds, bedID)
			}
		}
		delete(t.s.rooms, roomID)
	}
	delete(t.s.housings, housingID)
	// ON DELETE SET NULL
	for id, o := range t.s.occupancies {
		if o.HousingID.Valid && o.HousingID.String == housingID {
			o.BedID, o.RoomID = "", ""
			o.HousingID = sql.NullString{}
			t.s.occupancies[id] = o
		}
	}
	return nil
}

func (t *memTx) CountActiveOccupanciesForBed(_ context.Context, tenantID, bedID string) (int, error) {
	n := 0
	for _, o := range t.s.occupancies {
		if o.TenantID == tenantID && o.BedID == bedID && o.Status == domain.OccupancyActive {
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertOccupancy(_ context.Context, o *domain.Occupancy) error {
	if o.Status == domain.OccupancyActive {
		for _, ex := range t.s.occupancies {
			if ex.BedID == o.BedID && ex.Status == domain.OccupancyActive {
				return domain.Conflictf("Lit non disponible (statut: %s)", domain.BedOccupied.Label())
			}
		}
	}
	now := t.now()
	o.OccupancyID = uuid.NewString()
	o.CreatedAt, o.UpdatedAt = now, now
	t.s.occupancies[o.OccupancyID] = *o
	return nil
}

func (t *memTx) LockOccupancy(_ context.Context, tenantID, occupancyID string) (*domain.Occupancy, error) {
	return t.s.occupancy(tenantID, occupancyID)
}

func (t *memTx) UpdateOccupancy(_ context.Context, o *domain.Occupancy) error {
	cur, err := t.s.occupancy(o.TenantID, o.OccupancyID)
	if err != nil {
		return err
	}
	cur.Status = o.Status
	cur.ActualEndDate = o.ActualEndDate
	cur.IsRentPaid = o.IsRentPaid
	cur.LastRentPaymentDate = o.LastRentPaymentDate
	cur.CancellationReason = o.CancellationReason
	cur.UpdatedBy = o.UpdatedBy
	cur.UpdatedAt = t.now()
	t.s.occupancies[cur.OccupancyID] = *cur
	return nil
}
