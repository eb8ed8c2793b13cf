// Package memstore provides an in-memory implementation of the service
// store interfaces. A single mutex serialises every logical operation, so
// the validate-then-mutate discipline of the SQL stores holds here too:
// nothing is mutated until the whole operation has been validated.
//
// Values crossing the boundary are copied in both directions; callers can
// never alias internal state.
package memstore

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"aerobook/internal/model"

	"github.com/google/uuid"
)

type bookingRow struct {
	student     model.Student
	bookingDate time.Time
	packSize    int
	price       float64
	status      model.PaymentStatus
	classIDs    []string
}

// Store holds all studio state in process memory. Interface views over it
// are obtained from Classes, Bookings, Packs and Settings.
type Store struct {
	mu          sync.Mutex
	classes     map[string]*model.ClassSlot
	bookings    map[string]*bookingRow
	packs       map[string]model.ClassPack
	prices      map[int]float64
	activeMonth *time.Time
	monthSet    bool
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		classes:  make(map[string]*model.ClassSlot),
		bookings: make(map[string]*bookingRow),
		packs:    make(map[string]model.ClassPack),
		prices:   make(map[int]float64),
	}
}

// Classes returns the ClassStore view of the store.
func (s *Store) Classes() *ClassStore { return &ClassStore{s: s} }

// Bookings returns the BookingStore view of the store.
func (s *Store) Bookings() *BookingStore { return &BookingStore{s: s} }

// Packs returns the PackStore view of the store.
func (s *Store) Packs() *PackStore { return &PackStore{s: s} }

// Settings returns the SettingsStore view of the store.
func (s *Store) Settings() *SettingsStore { return &SettingsStore{s: s} }

// sortedByDate orders class ids by their slot's date, time, then id.
// Callers must hold s.mu.
func (s *Store) sortedByDate(ids []string) []string {
	out := slices.Clone(ids)
	slices.SortStableFunc(out, func(a, b string) int {
		ca, cb := s.classes[a], s.classes[b]
		if ca == nil || cb == nil {
			return 0
		}
		if !ca.Date.Equal(cb.Date) {
			return ca.Date.Compare(cb.Date)
		}
		if ca.Time != cb.Time {
			return strings.Compare(ca.Time, cb.Time)
		}
		return strings.Compare(a, b)
	})
	return out
}

func (s *Store) classCopies(ids []string) []model.ClassSlot {
	out := make([]model.ClassSlot, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.classes[id]; ok {
			out = append(out, *c)
		}
	}
	return out
}

func (s *Store) bookingCopy(id string, row *bookingRow) *model.Booking {
	return &model.Booking{
		ID:            id,
		Student:       row.student,
		Classes:       s.classCopies(row.classIDs),
		BookingDate:   row.bookingDate,
		PackSize:      row.packSize,
		Price:         row.price,
		PaymentStatus: row.status,
	}
}

func capacityError(slot *model.ClassSlot) *model.CapacityError {
	return &model.CapacityError{
		ClassID:   slot.ID,
		ClassName: slot.Name,
		Date:      slot.Date,
		Time:      slot.Time,
	}
}

// ─── BookingStore ─────────────────────────────────────────────────────────────

// BookingStore is the booking view of a Store.
type BookingStore struct {
	s *Store
}

// Create books a pack of classes. Validation of every class happens before
// any counter moves, under the store lock, so concurrent calls racing for
// the last seat serialise and exactly one wins.
func (b *BookingStore) Create(ctx context.Context, student model.Student, classIDs []string, packSize int, price float64) (*model.Booking, error) {
	s := b.s
	s.mu.Lock()
	defer s.mu.Unlock()

	requested := make(map[string]int, len(classIDs))
	for _, id := range classIDs {
		requested[id]++
	}
	ids := make([]string, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		slot, ok := s.classes[id]
		if !ok {
			return nil, &model.NotFoundError{Resource: "class", ID: id}
		}
		if slot.BookedSpots+requested[id] > slot.TotalSpots {
			return nil, capacityError(slot)
		}
	}

	for _, id := range ids {
		s.classes[id].BookedSpots += requested[id]
	}

	row := &bookingRow{
		student:     student,
		bookingDate: time.Now().UTC(),
		packSize:    packSize,
		price:       price,
		status:      model.PaymentPending,
		classIDs:    s.sortedByDate(classIDs),
	}
	id := uuid.New().String()
	s.bookings[id] = row
	return s.bookingCopy(id, row), nil
}

// Update applies the delta-map reconciliation between the booking's old
// and new class lists, then overwrites the booking's mutable fields.
func (b *BookingStore) Update(ctx context.Context, id string, upd model.BookingUpdate) (*model.Booking, error) {
	s := b.s
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.bookings[id]
	if !ok {
		return nil, &model.NotFoundError{Resource: "booking", ID: id}
	}

	changes := model.SpotChanges(row.classIDs, upd.ClassIDs)
	involved := make([]string, 0, len(changes))
	for cid := range changes {
		involved = append(involved, cid)
	}
	slices.Sort(involved)

	// A release never fails; only net seat gains need a capacity check.
	for _, cid := range involved {
		delta := changes[cid]
		if delta <= 0 {
			continue
		}
		slot, ok := s.classes[cid]
		if !ok {
			return nil, &model.NotFoundError{Resource: "class", ID: cid}
		}
		if slot.BookedSpots+delta > slot.TotalSpots {
			return nil, capacityError(slot)
		}
	}

	for _, cid := range involved {
		delta := changes[cid]
		slot, ok := s.classes[cid]
		if delta == 0 || !ok {
			continue
		}
		slot.BookedSpots = max(slot.BookedSpots+delta, 0)
	}

	row.student = upd.Student
	row.packSize = upd.PackSize
	row.price = upd.Price
	row.status = upd.PaymentStatus
	row.classIDs = s.sortedByDate(upd.ClassIDs)
	return s.bookingCopy(id, row), nil
}

// SetPaymentStatus updates only the payment status.
func (b *BookingStore) SetPaymentStatus(ctx context.Context, id string, status model.PaymentStatus) (*model.Booking, error) {
	s := b.s
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.bookings[id]
	if !ok {
		return nil, &model.NotFoundError{Resource: "booking", ID: id}
	}
	row.status = status
	return s.bookingCopy(id, row), nil
}

// Delete removes a booking, releasing every seat it held.
func (b *BookingStore) Delete(ctx context.Context, id string) error {
	s := b.s
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.bookings[id]
	if !ok {
		return &model.NotFoundError{Resource: "booking", ID: id}
	}
	for _, cid := range row.classIDs {
		if slot, ok := s.classes[cid]; ok {
			slot.BookedSpots = max(slot.BookedSpots-1, 0)
		}
	}
	delete(s.bookings, id)
	return nil
}

// List returns all bookings, newest first.
func (b *BookingStore) List(ctx context.Context) ([]model.Booking, error) {
	s := b.s
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Booking, 0, len(s.bookings))
	for id, row := range s.bookings {
		out = append(out, *s.bookingCopy(id, row))
	}
	slices.SortFunc(out, func(a, b model.Booking) int {
		return b.BookingDate.Compare(a.BookingDate)
	})
	return out, nil
}

// ListWithAttendees joins bookings onto classes.
func (b *BookingStore) ListWithAttendees(ctx context.Context) ([]model.ClassAttendance, error) {
	s := b.s
	s.mu.Lock()
	defer s.mu.Unlock()

	classIDs := make([]string, 0, len(s.classes))
	for id := range s.classes {
		classIDs = append(classIDs, id)
	}
	classIDs = s.sortedByDate(classIDs)

	out := make([]model.ClassAttendance, 0, len(classIDs))
	index := make(map[string]int, len(classIDs))
	for _, id := range classIDs {
		index[id] = len(out)
		out = append(out, model.ClassAttendance{Class: *s.classes[id], Attendees: []model.Student{}})
	}
	for _, row := range s.bookings {
		for _, cid := range row.classIDs {
			if i, ok := index[cid]; ok {
				out[i].Attendees = append(out[i].Attendees, row.student)
			}
		}
	}
	return out, nil
}

// ─── ClassStore ───────────────────────────────────────────────────────────────

// ClassStore is the class-calendar view of a Store.
type ClassStore struct {
	s *Store
}

// Create inserts a class slot, failing on an id collision.
func (c *ClassStore) Create(ctx context.Context, slot model.ClassSlot) (*model.ClassSlot, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.classes[slot.ID]; exists {
		return nil, model.ErrClassExists
	}
	slot.BookedSpots = 0
	stored := slot
	s.classes[slot.ID] = &stored
	out := stored
	return &out, nil
}

// CreateBatch inserts many class slots, skipping ids that already exist.
func (c *ClassStore) CreateBatch(ctx context.Context, slots []model.ClassSlot) ([]model.ClassSlot, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	created := make([]model.ClassSlot, 0, len(slots))
	for _, slot := range slots {
		if _, exists := s.classes[slot.ID]; exists {
			continue
		}
		slot.BookedSpots = 0
		stored := slot
		s.classes[slot.ID] = &stored
		created = append(created, stored)
	}
	return created, nil
}

// List returns all classes ordered by date then time.
func (c *ClassStore) List(ctx context.Context) ([]model.ClassSlot, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.classes))
	for id := range s.classes {
		ids = append(ids, id)
	}
	return s.classCopies(s.sortedByDate(ids)), nil
}

// GetByID returns a single class by id.
func (c *ClassStore) GetByID(ctx context.Context, id string) (*model.ClassSlot, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.classes[id]
	if !ok {
		return nil, &model.NotFoundError{Resource: "class", ID: id}
	}
	out := *slot
	return &out, nil
}

// Update edits schedule fields; the seat counter is preserved. Shrinking
// the seat total below the seats already booked is refused, so a committed
// edit can never leave booked_spots above total_spots.
func (c *ClassStore) Update(ctx context.Context, slot model.ClassSlot) (*model.ClassSlot, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.classes[slot.ID]
	if !ok {
		return nil, &model.NotFoundError{Resource: "class", ID: slot.ID}
	}
	if slot.TotalSpots < existing.BookedSpots {
		return nil, &model.CapacityBelowBookedError{
			ClassID:     slot.ID,
			TotalSpots:  slot.TotalSpots,
			BookedSpots: existing.BookedSpots,
		}
	}
	existing.Name = slot.Name
	existing.Date = slot.Date
	existing.Time = slot.Time
	existing.TotalSpots = slot.TotalSpots
	existing.Teacher = slot.Teacher
	out := *existing
	return &out, nil
}

// Delete removes a class, refusing while seats are booked.
func (c *ClassStore) Delete(ctx context.Context, id string) error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.classes[id]
	if !ok {
		return &model.NotFoundError{Resource: "class", ID: id}
	}
	if slot.BookedSpots > 0 {
		return &model.HasBookingsError{ClassID: id, BookedSpots: slot.BookedSpots}
	}
	delete(s.classes, id)
	return nil
}

// TeacherStats counts classes per teacher for the given month.
func (c *ClassStore) TeacherStats(ctx context.Context, year int, month time.Month) (map[string]int, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[string]int)
	for _, slot := range s.classes {
		if slot.Teacher == "" {
			continue
		}
		if slot.Date.Year() == year && slot.Date.Month() == month {
			stats[slot.Teacher]++
		}
	}
	return stats, nil
}

// ─── PackStore ────────────────────────────────────────────────────────────────

// PackStore is the pack-catalog view of a Store.
type PackStore struct {
	s *Store
}

// ListPacks returns the pack catalog ordered by class count.
func (p *PackStore) ListPacks(ctx context.Context) ([]model.ClassPack, error) {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.ClassPack, 0, len(s.packs))
	for _, pack := range s.packs {
		out = append(out, pack)
	}
	slices.SortFunc(out, func(a, b model.ClassPack) int { return a.Classes - b.Classes })
	return out, nil
}

// UpsertPack creates or refreshes a pack keyed by its class count.
func (p *PackStore) UpsertPack(ctx context.Context, pack model.ClassPack) (*model.ClassPack, error) {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()

	pack.ID = strconv.Itoa(pack.Classes)
	s.packs[pack.ID] = pack
	out := pack
	return &out, nil
}

// UpdatePack edits a pack, migrating its id when the class count changes.
func (p *PackStore) UpdatePack(ctx context.Context, pack model.ClassPack) (*model.ClassPack, error) {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.packs[pack.ID]; !ok {
		return nil, &model.NotFoundError{Resource: "pack", ID: pack.ID}
	}
	newID := strconv.Itoa(pack.Classes)
	if pack.ID != newID {
		delete(s.packs, pack.ID)
		pack.ID = newID
	}
	s.packs[pack.ID] = pack
	out := pack
	return &out, nil
}

// DeletePack removes a pack from the catalog.
func (p *PackStore) DeletePack(ctx context.Context, id string) error {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.packs[id]; !ok {
		return &model.NotFoundError{Resource: "pack", ID: id}
	}
	delete(s.packs, id)
	return nil
}

// CustomPrices returns a copy of the custom price table.
func (p *PackStore) CustomPrices(ctx context.Context) (map[int]float64, error) {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return p.customPricesLocked(), nil
}

func (p *PackStore) customPricesLocked() map[int]float64 {
	out := make(map[int]float64, len(p.s.prices))
	for n, price := range p.s.prices {
		out[n] = price
	}
	return out
}

// SetCustomPrices upserts custom prices, skipping entries outside 1..12.
func (p *PackStore) SetCustomPrices(ctx context.Context, prices map[int]float64) (map[int]float64, error) {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for n, price := range prices {
		if n < 1 || n > 12 {
			continue
		}
		s.prices[n] = price
	}
	return p.customPricesLocked(), nil
}

// ─── SettingsStore ────────────────────────────────────────────────────────────

// SettingsStore is the settings view of a Store.
type SettingsStore struct {
	s *Store
}

// ActiveBookingMonth returns the month open for bookings, defaulting to
// the current month when it was never set.
func (v *SettingsStore) ActiveBookingMonth(ctx context.Context) (*time.Time, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.monthSet {
		now := time.Now()
		month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return &month, nil
	}
	if s.activeMonth == nil {
		return nil, nil
	}
	month := *s.activeMonth
	return &month, nil
}

// SetActiveBookingMonth stores the month open for bookings; nil closes them.
func (v *SettingsStore) SetActiveBookingMonth(ctx context.Context, month *time.Time) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.monthSet = true
	if month == nil {
		s.activeMonth = nil
		return nil
	}
	m := month.UTC()
	s.activeMonth = &m
	return nil
}
