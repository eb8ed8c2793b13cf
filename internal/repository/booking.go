// Package repository implements the PostgreSQL-backed stores for the
// studio booking system. It uses pgx directly (no ORM) so the locking
// behaviour of every query is visible at the call site.
package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"aerobook/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BookingRepository owns the coupling between booking rows and the
// booked_spots counters on the classes they reference. Every write path
// here runs as one transaction: lock, validate everything, then mutate.
type BookingRepository struct {
	db *pgxpool.Pool
}

// NewBookingRepository constructs a BookingRepository.
func NewBookingRepository(db *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{db: db}
}

const classColumns = `id, name, date, time, total_spots, booked_spots, COALESCE(teacher, '')`

func scanClass(row pgx.Row) (model.ClassSlot, error) {
	var c model.ClassSlot
	err := row.Scan(&c.ID, &c.Name, &c.Date, &c.Time, &c.TotalSpots, &c.BookedSpots, &c.Teacher)
	return c, err
}

// lockClasses acquires row-level locks on the given class ids. The ids are
// deduplicated and locked in sorted order so that two transactions touching
// overlapping class sets always contend in the same order (no deadlocks).
func lockClasses(ctx context.Context, tx pgx.Tx, ids []string) (map[string]*model.ClassSlot, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	rows, err := tx.Query(ctx,
		`SELECT `+classColumns+`
		 FROM classes
		 WHERE id = ANY($1)
		 ORDER BY id
		 FOR UPDATE`,
		sorted,
	)
	if err != nil {
		return nil, fmt.Errorf("lock class rows: %w", err)
	}
	defer rows.Close()

	slots := make(map[string]*model.ClassSlot, len(sorted))
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		slots[c.ID] = &c
	}
	return slots, rows.Err()
}

// orderByDate returns ids sorted by their slot's date, then time, then id.
// Bookings store their class list in this order.
func orderByDate(ids []string, slots map[string]*model.ClassSlot) []string {
	out := slices.Clone(ids)
	slices.SortStableFunc(out, func(a, b string) int {
		sa, sb := slots[a], slots[b]
		if sa == nil || sb == nil {
			return 0
		}
		if !sa.Date.Equal(sb.Date) {
			return sa.Date.Compare(sb.Date)
		}
		if sa.Time != sb.Time {
			if sa.Time < sb.Time {
				return -1
			}
			return 1
		}
		if a < b {
			return -1
		} else if a > b {
			return 1
		}
		return 0
	})
	return out
}

func classesInOrder(ids []string, slots map[string]*model.ClassSlot) []model.ClassSlot {
	out := make([]model.ClassSlot, 0, len(ids))
	for _, id := range ids {
		if s, ok := slots[id]; ok {
			out = append(out, *s)
		}
	}
	return out
}

// Create books a pack of classes atomically: either every referenced class
// gains a seat and the booking row exists, or nothing changed at all.
//
// All referenced class rows are locked up front with SELECT ... FOR UPDATE,
// so two concurrent bookings racing for the last seat serialise on the row
// lock and the second one sees the first one's incremented counter. The
// capacity check aggregates repeated ids, so even a request that names the
// same class twice cannot push booked_spots past total_spots.
func (r *BookingRepository) Create(ctx context.Context, student model.Student, classIDs []string, packSize int, price float64) (*model.Booking, error) {
	requested := make(map[string]int, len(classIDs))
	for _, id := range classIDs {
		requested[id]++
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	slots, err := lockClasses(ctx, tx, classIDs)
	if err != nil {
		return nil, err
	}

	// Validate everything before mutating anything.
	ids := make([]string, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		slot, ok := slots[id]
		if !ok {
			err = &model.NotFoundError{Resource: "class", ID: id}
			return nil, err
		}
		if slot.BookedSpots+requested[id] > slot.TotalSpots {
			err = &model.CapacityError{
				ClassID:   slot.ID,
				ClassName: slot.Name,
				Date:      slot.Date,
				Time:      slot.Time,
			}
			return nil, err
		}
	}

	for _, id := range ids {
		if _, err = tx.Exec(ctx,
			`UPDATE classes SET booked_spots = booked_spots + $1 WHERE id = $2`,
			requested[id], id,
		); err != nil {
			return nil, fmt.Errorf("increment booked_spots: %w", err)
		}
		slots[id].BookedSpots += requested[id]
	}

	storedIDs := orderByDate(classIDs, slots)
	booking := &model.Booking{
		ID:            uuid.New().String(),
		Student:       student,
		BookingDate:   time.Now().UTC(),
		PackSize:      packSize,
		Price:         price,
		PaymentStatus: model.PaymentPending,
	}
	if _, err = tx.Exec(ctx,
		`INSERT INTO bookings (id, student_name, student_email, student_phone, booking_date, pack_size, price, payment_status, class_ids)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		booking.ID, student.Name, student.Email, student.Phone,
		booking.BookingDate, packSize, price, booking.PaymentStatus, storedIDs,
	); err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	booking.Classes = classesInOrder(storedIDs, slots)
	return booking, nil
}

// Update replaces a booking's student, pack size, price, payment status and
// class list in one transaction, keeping every booked_spots counter in step.
//
// The seat reconciliation is delta-based: -1 per class in the old list, +1
// per class in the new one. A class kept across the edit nets to zero, so it
// is neither capacity-checked nor touched; a naive release-then-rebook would
// briefly free its seat for a concurrent booking to steal. Capacity is
// verified for every positive delta before any counter changes.
func (r *BookingRepository) Update(ctx context.Context, id string, upd model.BookingUpdate) (*model.Booking, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var oldIDs []string
	var bookingDate time.Time
	err = tx.QueryRow(ctx,
		`SELECT class_ids, booking_date FROM bookings WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&oldIDs, &bookingDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = &model.NotFoundError{Resource: "booking", ID: id}
			return nil, err
		}
		return nil, fmt.Errorf("lock booking row: %w", err)
	}

	changes := model.SpotChanges(oldIDs, upd.ClassIDs)
	involved := make([]string, 0, len(changes))
	for cid := range changes {
		involved = append(involved, cid)
	}
	slices.Sort(involved)

	slots, err := lockClasses(ctx, tx, involved)
	if err != nil {
		return nil, err
	}

	// A release never fails; only net seat gains need a capacity check.
	for _, cid := range involved {
		delta := changes[cid]
		if delta <= 0 {
			continue
		}
		slot, ok := slots[cid]
		if !ok {
			err = &model.NotFoundError{Resource: "class", ID: cid}
			return nil, err
		}
		if slot.BookedSpots+delta > slot.TotalSpots {
			err = &model.CapacityError{
				ClassID:   slot.ID,
				ClassName: slot.Name,
				Date:      slot.Date,
				Time:      slot.Time,
			}
			return nil, err
		}
	}

	for _, cid := range involved {
		delta := changes[cid]
		slot, ok := slots[cid]
		if delta == 0 || !ok {
			continue
		}
		// GREATEST floors the counter at zero in case a drifted row would
		// otherwise go negative on release.
		if _, err = tx.Exec(ctx,
			`UPDATE classes SET booked_spots = GREATEST(booked_spots + $1, 0) WHERE id = $2`,
			delta, cid,
		); err != nil {
			return nil, fmt.Errorf("adjust booked_spots: %w", err)
		}
		slot.BookedSpots = max(slot.BookedSpots+delta, 0)
	}

	newIDs := orderByDate(upd.ClassIDs, slots)
	if _, err = tx.Exec(ctx,
		`UPDATE bookings SET
			student_name = $1, student_email = $2, student_phone = $3,
			pack_size = $4, price = $5, payment_status = $6, class_ids = $7
		 WHERE id = $8`,
		upd.Student.Name, upd.Student.Email, upd.Student.Phone,
		upd.PackSize, upd.Price, upd.PaymentStatus, newIDs, id,
	); err != nil {
		return nil, fmt.Errorf("update booking: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &model.Booking{
		ID:            id,
		Student:       upd.Student,
		Classes:       classesInOrder(newIDs, slots),
		BookingDate:   bookingDate,
		PackSize:      upd.PackSize,
		Price:         upd.Price,
		PaymentStatus: upd.PaymentStatus,
	}, nil
}

// Delete removes a booking and releases every seat it held. This is the
// delta algorithm with an empty new class list: all deltas are negative,
// so nothing can fail validation once the rows are locked.
func (r *BookingRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var oldIDs []string
	err = tx.QueryRow(ctx,
		`SELECT class_ids FROM bookings WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&oldIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = &model.NotFoundError{Resource: "booking", ID: id}
			return err
		}
		return fmt.Errorf("lock booking row: %w", err)
	}

	changes := model.SpotChanges(oldIDs, nil)
	involved := make([]string, 0, len(changes))
	for cid := range changes {
		involved = append(involved, cid)
	}
	slices.Sort(involved)

	if _, err = lockClasses(ctx, tx, involved); err != nil {
		return err
	}
	for _, cid := range involved {
		if _, err = tx.Exec(ctx,
			`UPDATE classes SET booked_spots = GREATEST(booked_spots + $1, 0) WHERE id = $2`,
			changes[cid], cid,
		); err != nil {
			return fmt.Errorf("release booked_spots: %w", err)
		}
	}

	if _, err = tx.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SetPaymentStatus updates only the payment status of a booking. No seat
// counters are involved, so a single statement suffices.
func (r *BookingRepository) SetPaymentStatus(ctx context.Context, id string, status model.PaymentStatus) (*model.Booking, error) {
	b := &model.Booking{ID: id, PaymentStatus: status}
	var classIDs []string
	err := r.db.QueryRow(ctx,
		`UPDATE bookings SET payment_status = $1
		 WHERE id = $2
		 RETURNING student_name, student_email, student_phone, booking_date, pack_size, price, class_ids`,
		status, id,
	).Scan(&b.Student.Name, &b.Student.Email, &b.Student.Phone, &b.BookingDate, &b.PackSize, &b.Price, &classIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &model.NotFoundError{Resource: "booking", ID: id}
		}
		return nil, fmt.Errorf("update payment status: %w", err)
	}

	b.Classes, err = r.loadClasses(ctx, classIDs)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// loadClasses fetches the given class ids without locking, preserving the
// order of ids (the stored order, already sorted by date).
func (r *BookingRepository) loadClasses(ctx context.Context, ids []string) ([]model.ClassSlot, error) {
	if len(ids) == 0 {
		return []model.ClassSlot{}, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+classColumns+` FROM classes WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("load booking classes: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*model.ClassSlot, len(ids))
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		byID[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return classesInOrder(ids, byID), nil
}

// List returns all bookings, newest first, with their classes resolved.
func (r *BookingRepository) List(ctx context.Context) ([]model.Booking, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, student_name, student_email, student_phone, booking_date, pack_size, price, payment_status, class_ids
		 FROM bookings
		 ORDER BY booking_date DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []model.Booking
	var idLists [][]string
	for rows.Next() {
		var b model.Booking
		var classIDs []string
		if err := rows.Scan(&b.ID, &b.Student.Name, &b.Student.Email, &b.Student.Phone,
			&b.BookingDate, &b.PackSize, &b.Price, &b.PaymentStatus, &classIDs); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
		idLists = append(idLists, classIDs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Resolve every referenced class in a single query.
	var all []string
	seen := make(map[string]struct{})
	for _, ids := range idLists {
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				all = append(all, id)
			}
		}
	}
	classes, err := r.loadClasses(ctx, all)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.ClassSlot, len(classes))
	for i := range classes {
		byID[classes[i].ID] = &classes[i]
	}
	for i := range bookings {
		bookings[i].Classes = classesInOrder(idLists[i], byID)
	}
	return bookings, nil
}

// ListWithAttendees joins bookings onto classes, producing the attendee
// list of every scheduled class, ordered by date then time.
func (r *BookingRepository) ListWithAttendees(ctx context.Context) ([]model.ClassAttendance, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+classColumns+` FROM classes ORDER BY date, time ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()

	var out []model.ClassAttendance
	index := make(map[string]int)
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		index[c.ID] = len(out)
		out = append(out, model.ClassAttendance{Class: c, Attendees: []model.Student{}})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	bRows, err := r.db.Query(ctx,
		`SELECT student_name, student_email, student_phone, class_ids FROM bookings`,
	)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer bRows.Close()

	for bRows.Next() {
		var s model.Student
		var classIDs []string
		if err := bRows.Scan(&s.Name, &s.Email, &s.Phone, &classIDs); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		for _, cid := range classIDs {
			if i, ok := index[cid]; ok {
				out[i].Attendees = append(out[i].Attendees, s)
			}
		}
	}
	return out, bRows.Err()
}
