package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aerobook/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ClassRepository handles persistence for class slots. Seat counters are
// never written here; only the booking transaction paths touch those.
type ClassRepository struct {
	db *pgxpool.Pool
}

// NewClassRepository constructs a ClassRepository.
func NewClassRepository(db *pgxpool.Pool) *ClassRepository {
	return &ClassRepository{db: db}
}

// Create inserts a new class slot. The deterministic id doubles as the
// uniqueness constraint: inserting an identical class (same name, date,
// time) conflicts on the primary key and returns ErrClassExists.
func (r *ClassRepository) Create(ctx context.Context, slot model.ClassSlot) (*model.ClassSlot, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO classes (id, name, date, time, total_spots, booked_spots, teacher)
		 VALUES ($1, $2, $3, $4, $5, 0, NULLIF($6, ''))
		 ON CONFLICT (id) DO NOTHING
		 RETURNING `+classColumns,
		slot.ID, slot.Name, slot.Date, slot.Time, slot.TotalSpots, slot.Teacher,
	)
	c, err := scanClass(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrClassExists
		}
		return nil, fmt.Errorf("insert class: %w", err)
	}
	return &c, nil
}

// CreateBatch inserts many class slots in one transaction, silently
// skipping slots that already exist. Used by recurring-class creation.
func (r *ClassRepository) CreateBatch(ctx context.Context, slots []model.ClassSlot) ([]model.ClassSlot, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	created := make([]model.ClassSlot, 0, len(slots))
	for _, slot := range slots {
		row := tx.QueryRow(ctx,
			`INSERT INTO classes (id, name, date, time, total_spots, booked_spots, teacher)
			 VALUES ($1, $2, $3, $4, $5, 0, NULLIF($6, ''))
			 ON CONFLICT (id) DO NOTHING
			 RETURNING `+classColumns,
			slot.ID, slot.Name, slot.Date, slot.Time, slot.TotalSpots, slot.Teacher,
		)
		c, scanErr := scanClass(row)
		if scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				continue // identical class already scheduled
			}
			err = fmt.Errorf("insert class: %w", scanErr)
			return nil, err
		}
		created = append(created, c)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return created, nil
}

// List returns all class slots ordered by date then time.
func (r *ClassRepository) List(ctx context.Context) ([]model.ClassSlot, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+classColumns+` FROM classes ORDER BY date, time ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()

	var classes []model.ClassSlot
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

// GetByID returns a single class slot or a NotFoundError.
func (r *ClassRepository) GetByID(ctx context.Context, id string) (*model.ClassSlot, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+classColumns+` FROM classes WHERE id = $1`, id,
	)
	c, err := scanClass(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &model.NotFoundError{Resource: "class", ID: id}
		}
		return nil, fmt.Errorf("get class: %w", err)
	}
	return &c, nil
}

// Update edits a class's schedule fields and total capacity. The seat
// counter is deliberately excluded so an administrative edit can never
// drift it out of step with the booking ledger, and the row is locked so
// the new total is checked against the booked count no concurrent booking
// can be changing underneath.
func (r *ClassRepository) Update(ctx context.Context, slot model.ClassSlot) (*model.ClassSlot, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var booked int
	err = tx.QueryRow(ctx,
		`SELECT booked_spots FROM classes WHERE id = $1 FOR UPDATE`, slot.ID,
	).Scan(&booked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = &model.NotFoundError{Resource: "class", ID: slot.ID}
			return nil, err
		}
		return nil, fmt.Errorf("lock class row: %w", err)
	}
	if slot.TotalSpots < booked {
		err = &model.CapacityBelowBookedError{
			ClassID:     slot.ID,
			TotalSpots:  slot.TotalSpots,
			BookedSpots: booked,
		}
		return nil, err
	}

	row := tx.QueryRow(ctx,
		`UPDATE classes
		 SET name = $1, date = $2, time = $3, total_spots = $4, teacher = NULLIF($5, '')
		 WHERE id = $6
		 RETURNING `+classColumns,
		slot.Name, slot.Date, slot.Time, slot.TotalSpots, slot.Teacher, slot.ID,
	)
	c, err := scanClass(row)
	if err != nil {
		return nil, fmt.Errorf("update class: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &c, nil
}

// Delete removes a class slot, refusing when seats are still booked so a
// booking can never be left pointing at a vanished class.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var booked int
	err = tx.QueryRow(ctx,
		`SELECT booked_spots FROM classes WHERE id = $1 FOR UPDATE`, id,
	).Scan(&booked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = &model.NotFoundError{Resource: "class", ID: id}
			return err
		}
		return fmt.Errorf("lock class row: %w", err)
	}
	if booked > 0 {
		err = &model.HasBookingsError{ClassID: id, BookedSpots: booked}
		return err
	}

	if _, err = tx.Exec(ctx, `DELETE FROM classes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// TeacherStats counts scheduled classes per teacher for a given month.
func (r *ClassRepository) TeacherStats(ctx context.Context, year int, month time.Month) (map[string]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT teacher, COUNT(*)
		 FROM classes
		 WHERE teacher IS NOT NULL
		   AND EXTRACT(YEAR FROM date) = $1
		   AND EXTRACT(MONTH FROM date) = $2
		 GROUP BY teacher`,
		year, int(month),
	)
	if err != nil {
		return nil, fmt.Errorf("teacher stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var teacher string
		var count int
		if err := rows.Scan(&teacher, &count); err != nil {
			return nil, fmt.Errorf("scan teacher stats: %w", err)
		}
		stats[teacher] = count
	}
	return stats, rows.Err()
}
