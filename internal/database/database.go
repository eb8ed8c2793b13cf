// Package database provides PostgreSQL connection management using pgx,
// plus schema migration and initial seed data for the studio.
package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

// Config holds PostgreSQL connection settings read from environment variables.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// configFromEnv reads database config from well-known environment variables,
// falling back to sensible local-development defaults.
func configFromEnv() Config {
	return Config{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		DBName:   getEnv("DB_NAME", "aerobook"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// DSN builds a libpq-compatible connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// NewPool creates and validates a pgxpool connection pool, retrying while
// the database container is still starting up.
func NewPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg := configFromEnv()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	// Sensible pool defaults for a small service.
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			pingErr := pool.Ping(ctx)
			if pingErr == nil {
				return pool, nil
			}
			pool.Close()
			err = pingErr
		}
		if attempt < connectAttempts {
			log.Printf("db connect attempt %d/%d failed: %v - retrying in %s",
				attempt, connectAttempts, err, connectBackoff)
			time.Sleep(connectBackoff)
		}
	}
	return nil, fmt.Errorf("connect to postgres: %w", err)
}

// Migrate creates the schema when it does not exist yet. The CHECK
// constraints are a second line of defence behind the transaction engine:
// even a buggy write path cannot drive a seat counter out of range.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT
	);

	CREATE TABLE IF NOT EXISTS classes (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		date         DATE NOT NULL,
		time         TEXT NOT NULL,
		total_spots  INTEGER NOT NULL CHECK (total_spots > 0),
		booked_spots INTEGER NOT NULL DEFAULT 0
		             CHECK (booked_spots >= 0 AND booked_spots <= total_spots),
		teacher      TEXT
	);

	CREATE TABLE IF NOT EXISTS bookings (
		id             TEXT PRIMARY KEY,
		student_name   TEXT NOT NULL,
		student_email  TEXT NOT NULL,
		student_phone  TEXT NOT NULL,
		booking_date   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		pack_size      INTEGER NOT NULL CHECK (pack_size > 0),
		price          NUMERIC(10, 2) NOT NULL,
		payment_status TEXT NOT NULL CHECK (payment_status IN ('pending', 'completed')),
		class_ids      TEXT[] NOT NULL
	);

	CREATE TABLE IF NOT EXISTS class_packs (
		id      TEXT PRIMARY KEY,
		name    TEXT NOT NULL,
		classes INTEGER NOT NULL,
		price   NUMERIC(10, 2) NOT NULL
	);

	CREATE TABLE IF NOT EXISTS custom_pack_prices (
		num_classes INTEGER PRIMARY KEY,
		price       NUMERIC(10, 2) NOT NULL
	);
	`
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Seed inserts starter data, each table only when it is still empty:
// the default pack catalog, custom prices at 18 per class, and the
// current month as the active booking month.
func Seed(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var packCount int
	if err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM class_packs`).Scan(&packCount); err != nil {
		return fmt.Errorf("count packs: %w", err)
	}
	if packCount == 0 {
		if _, err = tx.Exec(ctx, `
			INSERT INTO class_packs (id, name, classes, price) VALUES
			('4',  '4 Clases / mes',  4,  65),
			('8',  '8 Clases / mes',  8,  110),
			('12', '12 Clases / mes', 12, 150)`,
		); err != nil {
			return fmt.Errorf("seed packs: %w", err)
		}
	}

	var priceCount int
	if err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM custom_pack_prices`).Scan(&priceCount); err != nil {
		return fmt.Errorf("count custom prices: %w", err)
	}
	if priceCount == 0 {
		for n := 1; n <= 12; n++ {
			if _, err = tx.Exec(ctx,
				`INSERT INTO custom_pack_prices (num_classes, price) VALUES ($1, $2)`,
				n, float64(n)*18,
			); err != nil {
				return fmt.Errorf("seed custom prices: %w", err)
			}
		}
	}

	var monthCount int
	if err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM settings WHERE key = 'activeBookingMonth'`,
	).Scan(&monthCount); err != nil {
		return fmt.Errorf("count settings: %w", err)
	}
	if monthCount == 0 {
		now := time.Now()
		month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		if _, err = tx.Exec(ctx,
			`INSERT INTO settings (key, value) VALUES ('activeBookingMonth', $1)`,
			month.Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("seed active booking month: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
