package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"location-tracker/internal/adapters/cache"
	"location-tracker/internal/adapters/repositories"
	"location-tracker/internal/config"
	"location-tracker/internal/domain"
	"location-tracker/internal/platform/db"
	"location-tracker/internal/ports"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// dbtool prepares the shared Postgres geocode cache, or a device-local
// SQLite database with --sqlite, and pre-warms it with known places.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	flags := pflag.NewFlagSet("dbtool", pflag.ContinueOnError)
	seedPath := flags.String("seed", config.Get("SEED_PATH", "data/seeds/places.json"), "known places to load")
	sqlitePath := flags.String("sqlite", "", "seed this SQLite database instead of DATABASE_URL")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatal(err)
	}

	ctx := context.Background()

	var (
		conn *sql.DB
		gc   ports.GeocodeCache
		err  error
	)
	if *sqlitePath != "" {
		conn, gc, err = openSQLite(ctx, *sqlitePath)
	} else {
		conn, gc, err = openPostgres(ctx, os.Getenv("DATABASE_URL"))
	}
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	if err := seed(ctx, gc, *seedPath); err != nil {
		log.Fatalf("seeding failed: %v", err)
	}
}

func openPostgres(ctx context.Context, databaseURL string) (*sql.DB, ports.GeocodeCache, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, nil, errors.New("DATABASE_URL is required")
	}

	conn, err := db.Open(databaseURL)
	if err != nil {
		return nil, nil, err
	}

	log.Println("Initializing database schema...")
	if err := repositories.InitPostgresSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("schema initialization failed: %w", err)
	}
	log.Println("Schema ready.")

	return conn, cache.NewSQLGeocodeCache(conn), nil
}

func openSQLite(ctx context.Context, path string) (*sql.DB, ports.GeocodeCache, error) {
	conn, err := db.OpenSQLite(path)
	if err != nil {
		return nil, nil, err
	}

	log.Println("Initializing database schema...")
	if err := repositories.InitSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("schema initialization failed: %w", err)
	}
	log.Println("Schema ready.")

	return conn, cache.NewSqliteGeocodeCache(conn), nil
}

func seed(ctx context.Context, gc ports.GeocodeCache, seedPath string) error {
	seeds, err := repositories.ReadPlaceSeeds(seedPath)
	if err != nil {
		return err
	}

	log.Println("Seeding geocode cache...")
	places := make(map[string]domain.Place, len(seeds))
	for _, s := range seeds {
		places[s.Query] = domain.Place{
			FormattedAddress: s.FormattedAddress,
			Coordinate:       domain.LatLng{Lat: s.Lat, Lng: s.Lng},
		}
	}
	if err := gc.PutMany(ctx, places); err != nil {
		return err
	}
	log.Printf("Seeding complete. places=%d", len(places))

	return nil
}
