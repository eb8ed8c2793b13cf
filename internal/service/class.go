package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"aerobook/internal/model"
)

const dateLayout = "2006-01-02"

// ClassService orchestrates class-calendar operations.
type ClassService struct {
	classes ClassStore
}

// NewClassService constructs a ClassService with its dependencies.
func NewClassService(classes ClassStore) *ClassService {
	return &ClassService{classes: classes}
}

func parseClassDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, model.Invalidf("date must be in YYYY-MM-DD format")
	}
	return d.UTC(), nil
}

func parseClassTime(s string) (string, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return "", model.Invalidf("time must be in HH:MM format")
	}
	return t.Format("15:04"), nil
}

func validateClassFields(name string, totalSpots int) error {
	if strings.TrimSpace(name) == "" {
		return model.Invalidf("class name is required")
	}
	if totalSpots <= 0 {
		return model.Invalidf("total spots must be a positive integer")
	}
	if totalSpots > 500 {
		return model.Invalidf("total spots cannot exceed 500")
	}
	return nil
}

// Create schedules a single class. Its id is derived from name, date and
// time, so scheduling the identical class twice fails with ErrClassExists.
func (s *ClassService) Create(ctx context.Context, req model.CreateClassRequest) (*model.ClassSlot, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validateClassFields(req.Name, req.TotalSpots); err != nil {
		return nil, err
	}
	date, err := parseClassDate(req.Date)
	if err != nil {
		return nil, err
	}
	startTime, err := parseClassTime(req.Time)
	if err != nil {
		return nil, err
	}

	slot := model.ClassSlot{
		ID:         model.ClassID(req.Name, date, startTime),
		Name:       req.Name,
		Date:       date,
		Time:       startTime,
		TotalSpots: req.TotalSpots,
		Teacher:    strings.TrimSpace(req.Teacher),
	}
	created, err := s.classes.Create(ctx, slot)
	if err != nil {
		if errors.Is(err, model.ErrClassExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create class: %w", err)
	}
	return created, nil
}

// CreateRecurring expands a weekly schedule across the given months of a
// year and inserts every occurrence, skipping dates already scheduled.
func (s *ClassService) CreateRecurring(ctx context.Context, req model.RecurringClassRequest) ([]model.ClassSlot, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validateClassFields(req.Name, req.TotalSpots); err != nil {
		return nil, err
	}
	startTime, err := parseClassTime(req.Time)
	if err != nil {
		return nil, err
	}
	if req.Weekday < time.Sunday || req.Weekday > time.Saturday {
		return nil, model.Invalidf("weekday must be between 0 (Sunday) and 6 (Saturday)")
	}
	if req.Year < 2000 || req.Year > 2200 {
		return nil, model.Invalidf("year %d is out of range", req.Year)
	}
	if len(req.Months) == 0 {
		return nil, model.Invalidf("at least one month is required")
	}

	var slots []model.ClassSlot
	for _, month := range req.Months {
		if month < time.January || month > time.December {
			return nil, model.Invalidf("month %d is out of range", month)
		}
		// Day zero of the following month is the last day of this one.
		daysInMonth := time.Date(req.Year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
		for day := 1; day <= daysInMonth; day++ {
			date := time.Date(req.Year, month, day, 0, 0, 0, 0, time.UTC)
			if date.Weekday() != req.Weekday {
				continue
			}
			slots = append(slots, model.ClassSlot{
				ID:         model.ClassID(req.Name, date, startTime),
				Name:       req.Name,
				Date:       date,
				Time:       startTime,
				TotalSpots: req.TotalSpots,
				Teacher:    strings.TrimSpace(req.Teacher),
			})
		}
	}

	created, err := s.classes.CreateBatch(ctx, slots)
	if err != nil {
		return nil, fmt.Errorf("create recurring classes: %w", err)
	}
	return created, nil
}

// List returns all classes ordered by date then time.
func (s *ClassService) List(ctx context.Context) ([]model.ClassSlot, error) {
	return s.classes.List(ctx)
}

// Get returns a single class by id.
func (s *ClassService) Get(ctx context.Context, id string) (*model.ClassSlot, error) {
	if id == "" {
		return nil, model.Invalidf("class id is required")
	}
	return s.classes.GetByID(ctx, id)
}

// Update edits a class's schedule fields. The id is stable across edits
// and the booked-seat counter is untouchable from this path.
func (s *ClassService) Update(ctx context.Context, req model.UpdateClassRequest) (*model.ClassSlot, error) {
	if req.ID == "" {
		return nil, model.Invalidf("class id is required")
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validateClassFields(req.Name, req.TotalSpots); err != nil {
		return nil, err
	}
	date, err := parseClassDate(req.Date)
	if err != nil {
		return nil, err
	}
	startTime, err := parseClassTime(req.Time)
	if err != nil {
		return nil, err
	}

	updated, err := s.classes.Update(ctx, model.ClassSlot{
		ID:         req.ID,
		Name:       req.Name,
		Date:       date,
		Time:       startTime,
		TotalSpots: req.TotalSpots,
		Teacher:    strings.TrimSpace(req.Teacher),
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrHasBookings) {
			return nil, err
		}
		return nil, fmt.Errorf("update class: %w", err)
	}
	return updated, nil
}

// Delete removes a class, refusing while bookings still reference it.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return model.Invalidf("class id is required")
	}
	if err := s.classes.Delete(ctx, id); err != nil {
		if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrHasBookings) {
			return err
		}
		return fmt.Errorf("delete class: %w", err)
	}
	return nil
}

// TeacherStats counts classes per teacher for the given month.
func (s *ClassService) TeacherStats(ctx context.Context, year int, month time.Month) (map[string]int, error) {
	if month < time.January || month > time.December {
		return nil, model.Invalidf("month %d is out of range", month)
	}
	if year < 2000 || year > 2200 {
		return nil, model.Invalidf("year %d is out of range", year)
	}
	return s.classes.TeacherStats(ctx, year, month)
}
