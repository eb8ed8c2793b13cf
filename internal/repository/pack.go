package repository

import (
	"context"
	"fmt"
	"strconv"

	"aerobook/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PackRepository handles the pack catalog: fixed class packs plus the
// per-class-count custom price table. The booking engine only ever reads
// these; mutation is an administrative concern.
type PackRepository struct {
	db *pgxpool.Pool
}

// NewPackRepository constructs a PackRepository.
func NewPackRepository(db *pgxpool.Pool) *PackRepository {
	return &PackRepository{db: db}
}

// ListPacks returns the pack catalog ordered by class count.
func (r *PackRepository) ListPacks(ctx context.Context) ([]model.ClassPack, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, classes, price FROM class_packs ORDER BY classes ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list packs: %w", err)
	}
	defer rows.Close()

	var packs []model.ClassPack
	for rows.Next() {
		var p model.ClassPack
		if err := rows.Scan(&p.ID, &p.Name, &p.Classes, &p.Price); err != nil {
			return nil, fmt.Errorf("scan pack: %w", err)
		}
		packs = append(packs, p)
	}
	return packs, rows.Err()
}

// UpsertPack creates a pack, or refreshes name and price when a pack with
// the same class count already exists. The id is the class count itself.
func (r *PackRepository) UpsertPack(ctx context.Context, pack model.ClassPack) (*model.ClassPack, error) {
	id := strconv.Itoa(pack.Classes)
	var p model.ClassPack
	err := r.db.QueryRow(ctx,
		`INSERT INTO class_packs (id, name, classes, price)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price
		 RETURNING id, name, classes, price`,
		id, pack.Name, pack.Classes, pack.Price,
	).Scan(&p.ID, &p.Name, &p.Classes, &p.Price)
	if err != nil {
		return nil, fmt.Errorf("upsert pack: %w", err)
	}
	return &p, nil
}

// UpdatePack edits a pack. Changing the class count changes the id, which
// is handled as a delete-and-insert inside one transaction.
func (r *PackRepository) UpdatePack(ctx context.Context, pack model.ClassPack) (*model.ClassPack, error) {
	newID := strconv.Itoa(pack.Classes)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if pack.ID != newID {
		if _, err = tx.Exec(ctx, `DELETE FROM class_packs WHERE id = $1`, pack.ID); err != nil {
			return nil, fmt.Errorf("delete old pack: %w", err)
		}
		if _, err = tx.Exec(ctx,
			`INSERT INTO class_packs (id, name, classes, price) VALUES ($1, $2, $3, $4)`,
			newID, pack.Name, pack.Classes, pack.Price,
		); err != nil {
			return nil, fmt.Errorf("insert pack: %w", err)
		}
	} else {
		res, execErr := tx.Exec(ctx,
			`UPDATE class_packs SET name = $1, price = $2 WHERE id = $3`,
			pack.Name, pack.Price, pack.ID,
		)
		if execErr != nil {
			err = fmt.Errorf("update pack: %w", execErr)
			return nil, err
		}
		if res.RowsAffected() == 0 {
			err = &model.NotFoundError{Resource: "pack", ID: pack.ID}
			return nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &model.ClassPack{ID: newID, Name: pack.Name, Classes: pack.Classes, Price: pack.Price}, nil
}

// DeletePack removes a pack from the catalog.
func (r *PackRepository) DeletePack(ctx context.Context, id string) error {
	res, err := r.db.Exec(ctx, `DELETE FROM class_packs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete pack: %w", err)
	}
	if res.RowsAffected() == 0 {
		return &model.NotFoundError{Resource: "pack", ID: id}
	}
	return nil
}

// CustomPrices returns the price for every custom pack size (1..12).
func (r *PackRepository) CustomPrices(ctx context.Context) (map[int]float64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT num_classes, price FROM custom_pack_prices ORDER BY num_classes ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list custom prices: %w", err)
	}
	defer rows.Close()

	prices := make(map[int]float64)
	for rows.Next() {
		var n int
		var price float64
		if err := rows.Scan(&n, &price); err != nil {
			return nil, fmt.Errorf("scan custom price: %w", err)
		}
		prices[n] = price
	}
	return prices, rows.Err()
}

// SetCustomPrices upserts the given custom prices in one transaction and
// returns the full table afterwards. Entries outside 1..12 are skipped.
func (r *PackRepository) SetCustomPrices(ctx context.Context, prices map[int]float64) (map[int]float64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for n, price := range prices {
		if n < 1 || n > 12 {
			continue
		}
		if _, err = tx.Exec(ctx,
			`INSERT INTO custom_pack_prices (num_classes, price) VALUES ($1, $2)
			 ON CONFLICT (num_classes) DO UPDATE SET price = EXCLUDED.price`,
			n, price,
		); err != nil {
			return nil, fmt.Errorf("upsert custom price: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return r.CustomPrices(ctx)
}
