package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const activeMonthKey = "activeBookingMonth"

// SettingsRepository stores studio-wide settings as key/value rows.
type SettingsRepository struct {
	db *pgxpool.Pool
}

// NewSettingsRepository constructs a SettingsRepository.
func NewSettingsRepository(db *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// ActiveBookingMonth returns the month currently open for bookings, or nil
// when bookings are closed. A missing row defaults to the current month so
// a fresh database behaves sensibly before the seed has run.
func (r *SettingsRepository) ActiveBookingMonth(ctx context.Context) (*time.Time, error) {
	var value *string
	err := r.db.QueryRow(ctx,
		`SELECT value FROM settings WHERE key = $1`, activeMonthKey,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			now := time.Now()
			month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
			return &month, nil
		}
		return nil, fmt.Errorf("get active booking month: %w", err)
	}
	if value == nil || *value == "" {
		return nil, nil
	}
	month, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		return nil, fmt.Errorf("parse active booking month: %w", err)
	}
	return &month, nil
}

// SetActiveBookingMonth stores the month open for bookings; nil closes them.
func (r *SettingsRepository) SetActiveBookingMonth(ctx context.Context, month *time.Time) error {
	value := ""
	if month != nil {
		value = month.UTC().Format(time.RFC3339)
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		activeMonthKey, value,
	)
	if err != nil {
		return fmt.Errorf("set active booking month: %w", err)
	}
	return nil
}
