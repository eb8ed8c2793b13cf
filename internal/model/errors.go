package model

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for errors.Is matching across store implementations.
var (
	// ErrNotFound is returned when a requested booking or class does not exist.
	ErrNotFound = errors.New("not found")

	// ErrClassFull is returned when a class cannot accept the requested seats.
	ErrClassFull = errors.New("class is fully booked")

	// ErrHasBookings is returned when deleting a class that still has
	// active bookings against it.
	ErrHasBookings = errors.New("class has active bookings")

	// ErrClassExists is returned when an identical class (same name, date
	// and time) is already scheduled.
	ErrClassExists = errors.New("an identical class already exists at that date and time")
)

// NotFoundError reports which resource was missing.
type NotFoundError struct {
	Resource string // "class" or "booking"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// CapacityError names the class that could not accept the requested seats,
// with enough context for a human-readable message.
type CapacityError struct {
	ClassID   string
	ClassName string
	Date      time.Time
	Time      string
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("class %q on %s at %s has no free spots",
		e.ClassName, e.Date.Format("2006-01-02"), e.Time)
}

func (e *CapacityError) Is(target error) bool { return target == ErrClassFull }

// HasBookingsError reports an attempted deletion of a class with seats taken.
type HasBookingsError struct {
	ClassID     string
	BookedSpots int
}

func (e *HasBookingsError) Error() string {
	return fmt.Sprintf("class %q still has %d booked spot(s)", e.ClassID, e.BookedSpots)
}

func (e *HasBookingsError) Is(target error) bool { return target == ErrHasBookings }

// CapacityBelowBookedError reports a class edit that would lower the seat
// total beneath the seats already booked.
type CapacityBelowBookedError struct {
	ClassID     string
	TotalSpots  int
	BookedSpots int
}

func (e *CapacityBelowBookedError) Error() string {
	return fmt.Sprintf("class %q has %d booked spot(s); total spots cannot be lowered to %d",
		e.ClassID, e.BookedSpots, e.TotalSpots)
}

func (e *CapacityBelowBookedError) Is(target error) bool { return target == ErrHasBookings }

// ErrInvalid marks caller mistakes: malformed or out-of-range input.
var ErrInvalid = errors.New("invalid input")

type invalidError struct {
	msg string
}

func (e *invalidError) Error() string { return e.msg }

func (e *invalidError) Is(target error) bool { return target == ErrInvalid }

// Invalidf builds an input-validation error matched by
// errors.Is(err, ErrInvalid).
func Invalidf(format string, args ...any) error {
	return &invalidError{msg: fmt.Sprintf(format, args...)}
}
