package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aerobook/internal/model"
)

// BookingService orchestrates booking operations.
type BookingService struct {
	bookings BookingStore
}

// NewBookingService constructs a BookingService with its dependencies.
func NewBookingService(bookings BookingStore) *BookingService {
	return &BookingService{bookings: bookings}
}

func normalizeStudent(s *model.Student) error {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.TrimSpace(strings.ToLower(s.Email))
	s.Phone = strings.TrimSpace(s.Phone)
	if s.Name == "" {
		return model.Invalidf("student name is required")
	}
	if s.Email == "" {
		return model.Invalidf("student email is required")
	}
	if !isValidEmail(s.Email) {
		return model.Invalidf("student email is not a valid email address")
	}
	return nil
}

func validateSelection(classIDs []string, packSize int) error {
	if packSize <= 0 {
		return model.Invalidf("pack size must be a positive integer")
	}
	if len(classIDs) != packSize {
		return model.Invalidf("%d classes selected but the pack holds %d", len(classIDs), packSize)
	}
	if model.HasDuplicateIDs(classIDs) {
		return model.Invalidf("the same class cannot be selected twice")
	}
	return nil
}

// Create validates the request and delegates the concurrency-safe booking
// to the store. The price is accepted as supplied by the caller; it is the
// caller's job to derive it from the pack catalog.
func (s *BookingService) Create(ctx context.Context, req model.CreateBookingRequest) (*model.Booking, error) {
	if err := normalizeStudent(&req.Student); err != nil {
		return nil, err
	}
	if err := validateSelection(req.ClassIDs, req.PackSize); err != nil {
		return nil, err
	}
	if req.Price < 0 {
		return nil, model.Invalidf("price cannot be negative")
	}

	booking, err := s.bookings.Create(ctx, req.Student, req.ClassIDs, req.PackSize, req.Price)
	if err != nil {
		// Surface domain errors directly so handlers can set correct HTTP status.
		if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrClassFull) {
			return nil, err
		}
		return nil, fmt.Errorf("create booking: %w", err)
	}
	return booking, nil
}

// Update validates and applies a full replacement of a booking's mutable
// fields, including its class selection.
func (s *BookingService) Update(ctx context.Context, id string, upd model.BookingUpdate) (*model.Booking, error) {
	if id == "" {
		return nil, model.Invalidf("booking id is required")
	}
	if err := normalizeStudent(&upd.Student); err != nil {
		return nil, err
	}
	if err := validateSelection(upd.ClassIDs, upd.PackSize); err != nil {
		return nil, err
	}
	if upd.Price < 0 {
		return nil, model.Invalidf("price cannot be negative")
	}
	if !upd.PaymentStatus.Valid() {
		return nil, model.Invalidf("payment status must be %q or %q", model.PaymentPending, model.PaymentCompleted)
	}

	booking, err := s.bookings.Update(ctx, id, upd)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrClassFull) {
			return nil, err
		}
		return nil, fmt.Errorf("update booking: %w", err)
	}
	return booking, nil
}

// SetPaymentStatus updates only the payment status of a booking.
func (s *BookingService) SetPaymentStatus(ctx context.Context, id string, status model.PaymentStatus) (*model.Booking, error) {
	if id == "" {
		return nil, model.Invalidf("booking id is required")
	}
	if !status.Valid() {
		return nil, model.Invalidf("payment status must be %q or %q", model.PaymentPending, model.PaymentCompleted)
	}

	booking, err := s.bookings.SetPaymentStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("set payment status: %w", err)
	}
	return booking, nil
}

// Delete removes a booking and releases all of its seats.
func (s *BookingService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return model.Invalidf("booking id is required")
	}
	if err := s.bookings.Delete(ctx, id); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete booking: %w", err)
	}
	return nil
}

// List returns all bookings, newest first.
func (s *BookingService) List(ctx context.Context) ([]model.Booking, error) {
	return s.bookings.List(ctx)
}

// ListWithAttendees returns every class with the students booked into it.
func (s *BookingService) ListWithAttendees(ctx context.Context) ([]model.ClassAttendance, error) {
	return s.bookings.ListWithAttendees(ctx)
}
