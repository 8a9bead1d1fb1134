package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Initialize the device-local SQLite database schema.
func InitSchema(ctx context.Context, db *sql.DB) error {
	createIdentityQuery := `
	CREATE TABLE IF NOT EXISTS identity (
		slot INTEGER PRIMARY KEY CHECK (slot = 1),
		participant_id TEXT NOT NULL,
		token TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT ''
	);
	`

	createGeocodeCacheQuery := `
	CREATE TABLE IF NOT EXISTS geocode_cache (
        query TEXT PRIMARY KEY,
        formatted_address TEXT NOT NULL,
        lat REAL NOT NULL,
        lng REAL NOT NULL
    );
	`

	createETACacheQuery := `
	CREATE TABLE IF NOT EXISTS eta_cache (
        origin TEXT NOT NULL,
        destination TEXT NOT NULL,
        duration_seconds INTEGER NOT NULL,
        cached_at INTEGER NOT NULL,
        PRIMARY KEY (origin, destination)
    );
	`

	createIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_eta_cache_destination_origin
    ON eta_cache(destination, origin);
	`

	return execAll(ctx, db, "init schema", []string{
		createIdentityQuery,
		createGeocodeCacheQuery,
		createETACacheQuery,
		createIndexQuery,
	})
}

// Initialize the shared Postgres geocode cache schema.
func InitPostgresSchema(ctx context.Context, db *sql.DB) error {
	createGeocodeCacheQuery := `
	CREATE TABLE IF NOT EXISTS geocode_cache (
        query TEXT PRIMARY KEY,
        formatted_address TEXT NOT NULL,
        lat DOUBLE PRECISION NOT NULL,
        lng DOUBLE PRECISION NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );
	`

	return execAll(ctx, db, "init postgres schema", []string{createGeocodeCacheQuery})
}

func execAll(ctx context.Context, db *sql.DB, op string, statements []string) error {
	if db == nil {
		return fmt.Errorf("%s: DB is nil", op)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: exec statement #%d: %w", op, i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit tx: %w", op, err)
	}

	return nil
}

type PlaceSeed struct {
	Query            string  `json:"query"`
	FormattedAddress string  `json:"formatted_address"`
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
}

// ReadPlaceSeeds loads known places from a JSON file for pre-warming a
// geocode cache. Queries are whitespace-normalized.
func ReadPlaceSeeds(jsonPath string) ([]PlaceSeed, error) {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("seed places: read %q: %w", jsonPath, err)
	}

	var data []PlaceSeed
	if err := json.Unmarshal(bytes, &data); err != nil {
		return nil, fmt.Errorf("seed places: parse json: %w", err)
	}

	rows := make([]PlaceSeed, 0, len(data))
	for i, item := range data {
		query := strings.Join(strings.Fields(item.Query), " ")
		if query == "" {
			return nil, fmt.Errorf("seed places: item at index %d: query cannot be empty", i+1)
		}
		if item.Lat < -90 || item.Lat > 90 || item.Lng < -180 || item.Lng > 180 {
			return nil, fmt.Errorf("seed places: item %q: coordinate out of range", query)
		}
		label := strings.TrimSpace(item.FormattedAddress)
		if label == "" {
			label = query
		}
		rows = append(rows, PlaceSeed{Query: query, FormattedAddress: label, Lat: item.Lat, Lng: item.Lng})
	}

	if len(rows) == 0 {
		return nil, errors.New("seed places: no entries")
	}

	return rows, nil
}
