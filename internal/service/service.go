// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the storage layer. It depends on small store
// interfaces so the pgx-backed repositories and the in-memory store are
// interchangeable.
package service

import (
	"context"
	"strings"
	"time"

	"aerobook/internal/model"
)

// ClassStore persists class slots. Implementations must guarantee that
// Delete fails with a HasBookingsError while seats are booked and that
// Create reports ErrClassExists on an id collision.
type ClassStore interface {
	Create(ctx context.Context, slot model.ClassSlot) (*model.ClassSlot, error)
	CreateBatch(ctx context.Context, slots []model.ClassSlot) ([]model.ClassSlot, error)
	List(ctx context.Context) ([]model.ClassSlot, error)
	GetByID(ctx context.Context, id string) (*model.ClassSlot, error)
	Update(ctx context.Context, slot model.ClassSlot) (*model.ClassSlot, error)
	Delete(ctx context.Context, id string) error
	TeacherStats(ctx context.Context, year int, month time.Month) (map[string]int, error)
}

// BookingStore persists bookings. Every method is atomic: on error, no
// booking row and no seat counter has changed.
type BookingStore interface {
	Create(ctx context.Context, student model.Student, classIDs []string, packSize int, price float64) (*model.Booking, error)
	Update(ctx context.Context, id string, upd model.BookingUpdate) (*model.Booking, error)
	SetPaymentStatus(ctx context.Context, id string, status model.PaymentStatus) (*model.Booking, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.Booking, error)
	ListWithAttendees(ctx context.Context) ([]model.ClassAttendance, error)
}

// PackStore persists the pack catalog and custom per-class-count prices.
type PackStore interface {
	ListPacks(ctx context.Context) ([]model.ClassPack, error)
	UpsertPack(ctx context.Context, pack model.ClassPack) (*model.ClassPack, error)
	UpdatePack(ctx context.Context, pack model.ClassPack) (*model.ClassPack, error)
	DeletePack(ctx context.Context, id string) error
	CustomPrices(ctx context.Context) (map[int]float64, error)
	SetCustomPrices(ctx context.Context, prices map[int]float64) (map[int]float64, error)
}

// SettingsStore persists studio-wide settings.
type SettingsStore interface {
	ActiveBookingMonth(ctx context.Context) (*time.Time, error)
	SetActiveBookingMonth(ctx context.Context, month *time.Time) error
}

// isValidEmail does a basic structural check.
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}
