// Package model defines the core domain types for the studio booking system.
package model

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// PaymentStatus tracks whether a booking has been paid for.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

// Valid reports whether s is one of the known payment statuses.
func (s PaymentStatus) Valid() bool {
	return s == PaymentPending || s == PaymentCompleted
}

// ClassSlot is a single scheduled class occurrence with finite seat capacity.
type ClassSlot struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Date        time.Time `json:"date"`
	Time        string    `json:"time"` // "HH:MM"
	TotalSpots  int       `json:"total_spots"`
	BookedSpots int       `json:"booked_spots"`
	Teacher     string    `json:"teacher,omitempty"`
}

// Remaining returns the number of free seats.
func (c *ClassSlot) Remaining() int {
	return c.TotalSpots - c.BookedSpots
}

// IsFull returns true when no seats remain.
func (c *ClassSlot) IsFull() bool {
	return c.BookedSpots >= c.TotalSpots
}

// ClassID derives the stable identifier for a class slot from its name,
// date and start time. Two classes with the same name at the same moment
// are the same class; the primary key on this id enforces that.
func ClassID(name string, date time.Time, startTime string) string {
	return fmt.Sprintf("class-%s-%s-%s",
		date.Format("20060102"),
		strings.ReplaceAll(startTime, ":", ""),
		slugify(name),
	)
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := true // swallow leading separators
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Student identifies the person a booking belongs to.
type Student struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Booking is a student's purchase of a pack, bound to a set of class slots.
// Classes is always sorted by date (then time) ascending and its length
// equals PackSize after any successful write.
type Booking struct {
	ID            string        `json:"id"`
	Student       Student       `json:"student"`
	Classes       []ClassSlot   `json:"classes"`
	BookingDate   time.Time     `json:"booking_date"`
	PackSize      int           `json:"pack_size"`
	Price         float64       `json:"price"`
	PaymentStatus PaymentStatus `json:"payment_status"`
}

// ClassIDs returns the ids of the booking's classes, in stored order.
func (b *Booking) ClassIDs() []string {
	ids := make([]string, len(b.Classes))
	for i, c := range b.Classes {
		ids[i] = c.ID
	}
	return ids
}

// ClassPack is a purchasable (class-count, price) product definition.
// The catalog is consulted by callers when pricing a booking; the booking
// engine itself trusts the price it is given.
type ClassPack struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Classes int     `json:"classes"`
	Price   float64 `json:"price"`
}

// ClassAttendance pairs a class slot with the students booked into it.
type ClassAttendance struct {
	Class     ClassSlot `json:"class"`
	Attendees []Student `json:"attendees"`
}

// BookingUpdate is a full replacement of a booking's mutable fields.
type BookingUpdate struct {
	Student       Student       `json:"student"`
	PackSize      int           `json:"pack_size"`
	Price         float64       `json:"price"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	ClassIDs      []string      `json:"class_ids"`
}

// CreateClassRequest is the payload for scheduling a single class.
type CreateClassRequest struct {
	Name       string `json:"name"`
	Date       string `json:"date"` // "2006-01-02"
	Time       string `json:"time"` // "HH:MM"
	TotalSpots int    `json:"total_spots"`
	Teacher    string `json:"teacher,omitempty"`
}

// UpdateClassRequest edits a class's schedule fields. The id and the
// booked-seat counter are never changed through this path.
type UpdateClassRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	TotalSpots int    `json:"total_spots"`
	Teacher    string `json:"teacher,omitempty"`
}

// RecurringClassRequest expands into one class per matching weekday
// across the given months of a year.
type RecurringClassRequest struct {
	Name       string       `json:"name"`
	Weekday    time.Weekday `json:"weekday"`
	Time       string       `json:"time"`
	Teacher    string       `json:"teacher,omitempty"`
	TotalSpots int          `json:"total_spots"`
	Months     []time.Month `json:"months"`
	Year       int          `json:"year"`
}

// CreateBookingRequest is the payload for booking a pack of classes.
type CreateBookingRequest struct {
	Student  Student  `json:"student"`
	ClassIDs []string `json:"class_ids"`
	PackSize int      `json:"pack_size"`
	Price    float64  `json:"price"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
