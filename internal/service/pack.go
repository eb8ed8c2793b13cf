package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"aerobook/internal/model"
)

// PackService orchestrates pack-catalog and settings operations.
type PackService struct {
	packs    PackStore
	settings SettingsStore
}

// NewPackService constructs a PackService with its dependencies.
func NewPackService(packs PackStore, settings SettingsStore) *PackService {
	return &PackService{packs: packs, settings: settings}
}

func validatePack(pack model.ClassPack) error {
	if strings.TrimSpace(pack.Name) == "" {
		return model.Invalidf("pack name is required")
	}
	if pack.Classes <= 0 {
		return model.Invalidf("pack class count must be a positive integer")
	}
	if pack.Price < 0 {
		return model.Invalidf("pack price cannot be negative")
	}
	return nil
}

// ListPacks returns the pack catalog.
func (s *PackService) ListPacks(ctx context.Context) ([]model.ClassPack, error) {
	return s.packs.ListPacks(ctx)
}

// AddPack creates a pack, refreshing name and price when one with the same
// class count already exists.
func (s *PackService) AddPack(ctx context.Context, pack model.ClassPack) (*model.ClassPack, error) {
	pack.Name = strings.TrimSpace(pack.Name)
	if err := validatePack(pack); err != nil {
		return nil, err
	}
	return s.packs.UpsertPack(ctx, pack)
}

// UpdatePack edits an existing pack.
func (s *PackService) UpdatePack(ctx context.Context, pack model.ClassPack) (*model.ClassPack, error) {
	if pack.ID == "" {
		return nil, model.Invalidf("pack id is required")
	}
	pack.Name = strings.TrimSpace(pack.Name)
	if err := validatePack(pack); err != nil {
		return nil, err
	}
	updated, err := s.packs.UpdatePack(ctx, pack)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update pack: %w", err)
	}
	return updated, nil
}

// DeletePack removes a pack from the catalog.
func (s *PackService) DeletePack(ctx context.Context, id string) error {
	if id == "" {
		return model.Invalidf("pack id is required")
	}
	if err := s.packs.DeletePack(ctx, id); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete pack: %w", err)
	}
	return nil
}

// CustomPrices returns the per-class-count custom price table.
func (s *PackService) CustomPrices(ctx context.Context) (map[int]float64, error) {
	return s.packs.CustomPrices(ctx)
}

// SetCustomPrices bulk-updates the custom price table and returns it.
func (s *PackService) SetCustomPrices(ctx context.Context, prices map[int]float64) (map[int]float64, error) {
	for n, price := range prices {
		if price < 0 {
			return nil, model.Invalidf("price for %d classes cannot be negative", n)
		}
	}
	return s.packs.SetCustomPrices(ctx, prices)
}

// ActiveBookingMonth returns the month open for bookings, or nil when
// bookings are closed.
func (s *PackService) ActiveBookingMonth(ctx context.Context) (*time.Time, error) {
	return s.settings.ActiveBookingMonth(ctx)
}

// SetActiveBookingMonth opens bookings for the given month, or closes them
// when year and month are absent.
func (s *PackService) SetActiveBookingMonth(ctx context.Context, year *int, month *time.Month) (*time.Time, error) {
	if year == nil || month == nil {
		if err := s.settings.SetActiveBookingMonth(ctx, nil); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if *month < time.January || *month > time.December {
		return nil, model.Invalidf("month %d is out of range", *month)
	}
	m := time.Date(*year, *month, 1, 0, 0, 0, 0, time.UTC)
	if err := s.settings.SetActiveBookingMonth(ctx, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
