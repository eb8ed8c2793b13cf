package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"aerobook/internal/model"
)

func newTestStore() *Store {
	return New()
}

func mustAddClass(t *testing.T, s *Store, name string, day int, startTime string, total int, teacher string) model.ClassSlot {
	t.Helper()
	date := time.Date(2026, time.September, day, 0, 0, 0, 0, time.UTC)
	slot := model.ClassSlot{
		ID:         model.ClassID(name, date, startTime),
		Name:       name,
		Date:       date,
		Time:       startTime,
		TotalSpots: total,
		Teacher:    teacher,
	}
	created, err := s.Classes().Create(context.Background(), slot)
	if err != nil {
		t.Fatalf("create class %s: %v", name, err)
	}
	return *created
}

func classByID(t *testing.T, s *Store, id string) model.ClassSlot {
	t.Helper()
	c, err := s.Classes().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get class %s: %v", id, err)
	}
	return *c
}

// checkConsistency verifies that every class's booked_spots equals the
// number of bookings referencing it.
func checkConsistency(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	classes, err := s.Classes().List(ctx)
	if err != nil {
		t.Fatalf("list classes: %v", err)
	}
	bookings, err := s.Bookings().List(ctx)
	if err != nil {
		t.Fatalf("list bookings: %v", err)
	}

	refs := make(map[string]int)
	for _, b := range bookings {
		for _, c := range b.Classes {
			refs[c.ID]++
		}
	}
	for _, c := range classes {
		if c.BookedSpots < 0 || c.BookedSpots > c.TotalSpots {
			t.Errorf("class %s booked_spots %d outside [0,%d]", c.ID, c.BookedSpots, c.TotalSpots)
		}
		if c.BookedSpots != refs[c.ID] {
			t.Errorf("class %s booked_spots %d but %d booking references", c.ID, c.BookedSpots, refs[c.ID])
		}
	}
}

var student = model.Student{Name: "Marta", Email: "marta@example.com", Phone: "600111222"}

func TestCreateBookingFillsLastSpot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	x := mustAddClass(t, s, "Aero Flow", 7, "18:30", 7, "Lucía")

	// Occupy six of the seven seats.
	for i := 0; i < 6; i++ {
		other := model.Student{Name: fmt.Sprintf("s%d", i), Email: fmt.Sprintf("s%d@example.com", i), Phone: "600"}
		if _, err := s.Bookings().Create(ctx, other, []string{x.ID}, 1, 18); err != nil {
			t.Fatalf("prefill booking %d: %v", i, err)
		}
	}

	b, err := s.Bookings().Create(ctx, student, []string{x.ID}, 1, 18)
	if err != nil {
		t.Fatalf("booking the last seat failed: %v", err)
	}
	if b.PaymentStatus != model.PaymentPending {
		t.Errorf("new booking status = %q, want %q", b.PaymentStatus, model.PaymentPending)
	}
	if got := classByID(t, s, x.ID).BookedSpots; got != 7 {
		t.Errorf("booked_spots = %d, want 7", got)
	}

	// The class is now full; the next attempt must fail naming the class.
	_, err = s.Bookings().Create(ctx, model.Student{Name: "Eva", Email: "eva@example.com"}, []string{x.ID}, 1, 18)
	if err == nil {
		t.Fatal("overbooking succeeded")
	}
	var capErr *model.CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("error type = %T, want *model.CapacityError", err)
	}
	if capErr.ClassName != "Aero Flow" || capErr.Time != "18:30" {
		t.Errorf("capacity error context = %+v", capErr)
	}
	if got := classByID(t, s, x.ID).BookedSpots; got != 7 {
		t.Errorf("booked_spots after failed booking = %d, want 7", got)
	}
	checkConsistency(t, s)
}

func TestCreateBookingUnknownClass(t *testing.T) {
	s := newTestStore()
	_, err := s.Bookings().Create(context.Background(), student, []string{"class-missing"}, 1, 18)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestCreateBookingMultiClassAtomicity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	a := mustAddClass(t, s, "Aero Flow", 7, "18:30", 10, "")
	full := mustAddClass(t, s, "Restorative", 8, "10:00", 1, "")

	// Fill the single seat of the second class.
	if _, err := s.Bookings().Create(ctx, student, []string{full.ID}, 1, 18); err != nil {
		t.Fatalf("prefill: %v", err)
	}

	// A pack touching one free and one full class must change nothing.
	_, err := s.Bookings().Create(ctx, model.Student{Name: "Eva", Email: "eva@example.com"}, []string{a.ID, full.ID}, 2, 36)
	if !errors.Is(err, model.ErrClassFull) {
		t.Fatalf("error = %v, want ErrClassFull", err)
	}
	if got := classByID(t, s, a.ID).BookedSpots; got != 0 {
		t.Errorf("free class gained %d seats from a failed booking", got)
	}
	checkConsistency(t, s)
}

func TestUpdateBookingSwapsOneClass(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	x := mustAddClass(t, s, "Aero Flow", 7, "18:30", 5, "")
	y := mustAddClass(t, s, "Yin", 9, "19:30", 5, "")
	z := mustAddClass(t, s, "Restorative", 11, "10:00", 5, "")

	b, err := s.Bookings().Create(ctx, student, []string{x.ID, y.ID}, 2, 36)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := s.Bookings().Update(ctx, b.ID, model.BookingUpdate{
		Student:       student,
		PackSize:      2,
		Price:         36,
		PaymentStatus: model.PaymentPending,
		ClassIDs:      []string{x.ID, z.ID},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if got := classByID(t, s, x.ID).BookedSpots; got != 1 {
		t.Errorf("kept class booked_spots = %d, want 1", got)
	}
	if got := classByID(t, s, y.ID).BookedSpots; got != 0 {
		t.Errorf("released class booked_spots = %d, want 0", got)
	}
	if got := classByID(t, s, z.ID).BookedSpots; got != 1 {
		t.Errorf("acquired class booked_spots = %d, want 1", got)
	}

	ids := updated.ClassIDs()
	if len(ids) != 2 || ids[0] != x.ID || ids[1] != z.ID {
		t.Errorf("classes after update = %v, want [%s %s] (date order)", ids, x.ID, z.ID)
	}
	checkConsistency(t, s)
}

func TestUpdateBookingNoOpKeepsCounters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	// totalSpots 1: a naive release-then-rebook would still pass here, but
	// a naive rebook-then-release would reject its own seat. The delta map
	// must treat the unchanged class as zero net effect.
	x := mustAddClass(t, s, "Aero Flow", 7, "18:30", 1, "")

	b, err := s.Bookings().Create(ctx, student, []string{x.ID}, 1, 18)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := s.Bookings().Update(ctx, b.ID, model.BookingUpdate{
		Student:       student,
		PackSize:      1,
		Price:         20,
		PaymentStatus: model.PaymentCompleted,
		ClassIDs:      []string{x.ID},
	}); err != nil {
		t.Fatalf("no-op class update rejected: %v", err)
	}

	if got := classByID(t, s, x.ID).BookedSpots; got != 1 {
		t.Errorf("booked_spots = %d, want 1", got)
	}
	checkConsistency(t, s)
}

func TestUpdateBookingRollsBackOnFullClass(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	x := mustAddClass(t, s, "Aero Flow", 7, "18:30", 5, "")
	full := mustAddClass(t, s, "Yin", 9, "19:30", 1, "")

	if _, err := s.Bookings().Create(ctx, model.Student{Name: "Eva", Email: "eva@example.com"}, []string{full.ID}, 1, 18); err != nil {
		t.Fatalf("prefill: %v", err)
	}
	b, err := s.Bookings().Create(ctx, student, []string{x.ID}, 1, 18)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = s.Bookings().Update(ctx, b.ID, model.BookingUpdate{
		Student:       student,
		PackSize:      1,
		Price:         18,
		PaymentStatus: model.PaymentPending,
		ClassIDs:      []string{full.ID},
	})
	if !errors.Is(err, model.ErrClassFull) {
		t.Fatalf("error = %v, want ErrClassFull", err)
	}

	// Neither the booking nor any counter changed.
	if got := classByID(t, s, x.ID).BookedSpots; got != 1 {
		t.Errorf("old class booked_spots = %d, want 1", got)
	}
	if got := classByID(t, s, full.ID).BookedSpots; got != 1 {
		t.Errorf("full class booked_spots = %d, want 1", got)
	}
	bookings, _ := s.Bookings().List(ctx)
	for _, got := range bookings {
		if got.ID == b.ID {
			if ids := got.ClassIDs(); len(ids) != 1 || ids[0] != x.ID {
				t.Errorf("booking classes after failed update = %v, want [%s]", ids, x.ID)
			}
		}
	}
	checkConsistency(t, s)
}

func TestUpdateBookingNotFound(t *testing.T) {
	s := newTestStore()
	_, err := s.Bookings().Update(context.Background(), "missing", model.BookingUpdate{})
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestSetPaymentStatusOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	x := mustAddClass(t, s, "Aero Flow", 7, "18:30", 5, "")

	b, err := s.Bookings().Create(ctx, student, []string{x.ID}, 1, 18)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := s.Bookings().SetPaymentStatus(ctx, b.ID, model.PaymentCompleted)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if updated.PaymentStatus != model.PaymentCompleted {
		t.Errorf("status = %q, want %q", updated.PaymentStatus, model.PaymentCompleted)
	}
	if updated.Price != b.Price || updated.PackSize != b.PackSize {
		t.Error("payment status update changed unrelated fields")
	}
	if got := classByID(t, s, x.ID).BookedSpots; got != 1 {
		t.Errorf("booked_spots = %d, want 1", got)
	}

	if _, err := s.Bookings().SetPaymentStatus(ctx, "missing", model.PaymentCompleted); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestDeleteBookingReleasesSeats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	x := mustAddClass(t, s, "Aero Flow", 7, "18:30", 5, "")
	y := mustAddClass(t, s, "Yin", 9, "19:30", 5, "")

	b, err := s.Bookings().Create(ctx, student, []string{x.ID, y.ID}, 2, 36)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Bookings().Delete(ctx, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := classByID(t, s, x.ID).BookedSpots; got != 0 {
		t.Errorf("booked_spots = %d, want 0", got)
	}
	if got := classByID(t, s, y.ID).BookedSpots; got != 0 {
		t.Errorf("booked_spots = %d, want 0", got)
	}
	checkConsistency(t, s)
}

func TestDeleteClassGuard(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	x := mustAddClass(t, s, "Aero Flow", 7, "18:30", 5, "")

	for i := 0; i < 3; i++ {
		other := model.Student{Name: fmt.Sprintf("s%d", i), Email: fmt.Sprintf("s%d@example.com", i)}
		if _, err := s.Bookings().Create(ctx, other, []string{x.ID}, 1, 18); err != nil {
			t.Fatalf("booking %d: %v", i, err)
		}
	}

	err := s.Classes().Delete(ctx, x.ID)
	if !errors.Is(err, model.ErrHasBookings) {
		t.Fatalf("error = %v, want ErrHasBookings", err)
	}
	var hasErr *model.HasBookingsError
	if !errors.As(err, &hasErr) || hasErr.BookedSpots != 3 {
		t.Errorf("error detail = %v, want 3 booked spots", err)
	}
	if got := classByID(t, s, x.ID).BookedSpots; got != 3 {
		t.Errorf("class mutated by failed delete: booked_spots = %d", got)
	}
}

func TestUpdateClassCannotShrinkBelowOccupancy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	x := mustAddClass(t, s, "Aero Flow", 7, "18:30", 3, "Lucía")

	for i := 0; i < 3; i++ {
		other := model.Student{Name: fmt.Sprintf("s%d", i), Email: fmt.Sprintf("s%d@example.com", i)}
		if _, err := s.Bookings().Create(ctx, other, []string{x.ID}, 1, 18); err != nil {
			t.Fatalf("booking %d: %v", i, err)
		}
	}

	shrunk := x
	shrunk.TotalSpots = 1
	_, err := s.Classes().Update(ctx, shrunk)
	if !errors.Is(err, model.ErrHasBookings) {
		t.Fatalf("error = %v, want ErrHasBookings", err)
	}
	var capErr *model.CapacityBelowBookedError
	if !errors.As(err, &capErr) || capErr.BookedSpots != 3 || capErr.TotalSpots != 1 {
		t.Errorf("error detail = %v, want booked 3 / total 1", err)
	}

	// The failed edit changed nothing.
	got := classByID(t, s, x.ID)
	if got.TotalSpots != 3 || got.BookedSpots != 3 {
		t.Errorf("class after failed shrink = %d/%d, want 3/3", got.BookedSpots, got.TotalSpots)
	}

	// Shrinking exactly to the occupancy is allowed; growing always is.
	shrunk.TotalSpots = 3
	if _, err := s.Classes().Update(ctx, shrunk); err != nil {
		t.Fatalf("shrink to occupancy rejected: %v", err)
	}
	shrunk.TotalSpots = 10
	if _, err := s.Classes().Update(ctx, shrunk); err != nil {
		t.Fatalf("grow rejected: %v", err)
	}
	checkConsistency(t, s)
}

func TestCreateClassDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	x := mustAddClass(t, s, "Aero Flow", 7, "18:30", 5, "")

	_, err := s.Classes().Create(ctx, model.ClassSlot{
		ID: x.ID, Name: x.Name, Date: x.Date, Time: x.Time, TotalSpots: 5,
	})
	if !errors.Is(err, model.ErrClassExists) {
		t.Fatalf("error = %v, want ErrClassExists", err)
	}
}

func TestListWithAttendees(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	x := mustAddClass(t, s, "Aero Flow", 7, "18:30", 5, "Lucía")
	y := mustAddClass(t, s, "Yin", 9, "19:30", 5, "Carmen")

	eva := model.Student{Name: "Eva", Email: "eva@example.com"}
	if _, err := s.Bookings().Create(ctx, student, []string{x.ID, y.ID}, 2, 36); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Bookings().Create(ctx, eva, []string{y.ID}, 1, 18); err != nil {
		t.Fatalf("create: %v", err)
	}

	out, err := s.Bookings().ListWithAttendees(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d classes, want 2", len(out))
	}
	// Ordered by date: x (day 7) before y (day 9).
	if out[0].Class.ID != x.ID || out[1].Class.ID != y.ID {
		t.Errorf("classes out of date order: %s, %s", out[0].Class.ID, out[1].Class.ID)
	}
	if len(out[0].Attendees) != 1 || out[0].Attendees[0].Name != "Marta" {
		t.Errorf("attendees for %s = %v", x.Name, out[0].Attendees)
	}
	if len(out[1].Attendees) != 2 {
		t.Errorf("attendees for %s = %v, want 2", y.Name, out[1].Attendees)
	}
}

func TestTeacherStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	mustAddClass(t, s, "Aero Flow", 7, "18:30", 5, "Lucía")
	mustAddClass(t, s, "Aero Flow", 14, "18:30", 5, "Lucía")
	mustAddClass(t, s, "Yin", 9, "19:30", 5, "Carmen")
	mustAddClass(t, s, "Open", 10, "12:00", 5, "") // no teacher, excluded

	stats, err := s.Classes().TeacherStats(ctx, 2026, time.September)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats["Lucía"] != 2 || stats["Carmen"] != 1 {
		t.Errorf("stats = %v", stats)
	}
	if _, ok := stats[""]; ok {
		t.Error("teacherless classes counted")
	}

	empty, err := s.Classes().TeacherStats(ctx, 2026, time.October)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("stats for empty month = %v", empty)
	}
}

// TestConcurrentBookingSingleSeat fires many goroutines at a one-seat class;
// exactly one may win.
func TestConcurrentBookingSingleSeat(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	x := mustAddClass(t, s, "Aero Flow", 7, "18:30", 1, "")

	const attempts = 50
	var successCount, fullCount, otherCount int32
	var wg sync.WaitGroup
	wg.Add(attempts)

	for i := 0; i < attempts; i++ {
		go func(n int) {
			defer wg.Done()
			st := model.Student{Name: fmt.Sprintf("s%d", n), Email: fmt.Sprintf("s%d@example.com", n)}
			_, err := s.Bookings().Create(ctx, st, []string{x.ID}, 1, 18)
			switch {
			case err == nil:
				atomic.AddInt32(&successCount, 1)
			case errors.Is(err, model.ErrClassFull):
				atomic.AddInt32(&fullCount, 1)
			default:
				atomic.AddInt32(&otherCount, 1)
			}
		}(i)
	}
	wg.Wait()

	if successCount != 1 {
		t.Errorf("successes = %d, want exactly 1", successCount)
	}
	if fullCount != attempts-1 {
		t.Errorf("capacity failures = %d, want %d", fullCount, attempts-1)
	}
	if otherCount != 0 {
		t.Errorf("unexpected errors = %d", otherCount)
	}
	if got := classByID(t, s, x.ID).BookedSpots; got != 1 {
		t.Errorf("booked_spots = %d, want 1", got)
	}
	checkConsistency(t, s)
}

// TestConcurrentBookingStorm races 100 goroutines for 5 seats and verifies
// the final counters add up.
func TestConcurrentBookingStorm(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	const capacity = 5
	x := mustAddClass(t, s, "Aero Flow", 7, "18:30", capacity, "")

	const attempts = 100
	var successCount, fullCount int32
	var wg sync.WaitGroup
	wg.Add(attempts)

	for i := 0; i < attempts; i++ {
		go func(n int) {
			defer wg.Done()
			st := model.Student{Name: fmt.Sprintf("s%d", n), Email: fmt.Sprintf("s%d@example.com", n)}
			_, err := s.Bookings().Create(ctx, st, []string{x.ID}, 1, 18)
			if err == nil {
				atomic.AddInt32(&successCount, 1)
			} else if errors.Is(err, model.ErrClassFull) {
				atomic.AddInt32(&fullCount, 1)
			}
		}(i)
	}
	wg.Wait()

	if successCount != capacity {
		t.Errorf("successes = %d, want %d", successCount, capacity)
	}
	if fullCount != attempts-capacity {
		t.Errorf("capacity failures = %d, want %d", fullCount, attempts-capacity)
	}
	checkConsistency(t, s)
}

// TestConcurrentUpdatesContendOnSharedClass updates two different bookings
// onto the same one-seat class concurrently; exactly one update may win.
func TestConcurrentUpdatesContendOnSharedClass(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	a := mustAddClass(t, s, "Aero Flow", 7, "18:30", 5, "")
	b := mustAddClass(t, s, "Yin", 9, "19:30", 5, "")
	hot := mustAddClass(t, s, "Restorative", 11, "10:00", 1, "")

	eva := model.Student{Name: "Eva", Email: "eva@example.com"}
	b1, err := s.Bookings().Create(ctx, student, []string{a.ID}, 1, 18)
	if err != nil {
		t.Fatalf("create b1: %v", err)
	}
	b2, err := s.Bookings().Create(ctx, eva, []string{b.ID}, 1, 18)
	if err != nil {
		t.Fatalf("create b2: %v", err)
	}

	var successCount int32
	var wg sync.WaitGroup
	wg.Add(2)
	update := func(id string, st model.Student) {
		defer wg.Done()
		_, err := s.Bookings().Update(ctx, id, model.BookingUpdate{
			Student:       st,
			PackSize:      1,
			Price:         18,
			PaymentStatus: model.PaymentPending,
			ClassIDs:      []string{hot.ID},
		})
		if err == nil {
			atomic.AddInt32(&successCount, 1)
		} else if !errors.Is(err, model.ErrClassFull) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	go update(b1.ID, student)
	go update(b2.ID, eva)
	wg.Wait()

	if successCount != 1 {
		t.Errorf("successes = %d, want exactly 1", successCount)
	}
	if got := classByID(t, s, hot.ID).BookedSpots; got != 1 {
		t.Errorf("contended class booked_spots = %d, want 1", got)
	}
	checkConsistency(t, s)
}

func TestBookingCopiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	x := mustAddClass(t, s, "Aero Flow", 7, "18:30", 5, "")

	b, err := s.Bookings().Create(ctx, student, []string{x.ID}, 1, 18)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Mutating the returned value must not leak into the store.
	b.Classes[0].BookedSpots = 99
	b.Student.Name = "tampered"

	if got := classByID(t, s, x.ID).BookedSpots; got != 1 {
		t.Errorf("caller mutation leaked into store: booked_spots = %d", got)
	}
	list, _ := s.Bookings().List(ctx)
	if list[0].Student.Name != "Marta" {
		t.Errorf("caller mutation leaked into stored student: %q", list[0].Student.Name)
	}
}
