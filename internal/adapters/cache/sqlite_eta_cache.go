package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"location-tracker/internal/domain"
	"location-tracker/internal/platform/clock"
	"time"
)

// SQLite backed travel time cache used when no Redis is configured.
// Rows older than TTL are treated as misses and overwritten on the next Put.
type SqliteETACache struct {
	DB    *sql.DB
	TTL   time.Duration
	Clock clock.Clock
}

func NewSqliteETACache(db *sql.DB, ttl time.Duration, clk clock.Clock) *SqliteETACache {
	if clk == nil {
		clk = clock.Real()
	}
	return &SqliteETACache{DB: db, TTL: ttl, Clock: clk}
}

func (s *SqliteETACache) Get(ctx context.Context, origin, destination domain.LatLng) (domain.ETA, bool, error) {
	if s.DB == nil {
		return domain.ETA{}, false, errors.New("eta cache: db is nil")
	}

	q := `
	SELECT
        duration_seconds,
        cached_at
    FROM eta_cache
    WHERE origin = ?
        AND destination = ?;
	`

	var seconds int
	var cachedAt int64
	err := s.DB.QueryRowContext(ctx, q, etaKey(origin), etaKey(destination)).Scan(&seconds, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ETA{}, false, nil
	}
	if err != nil {
		return domain.ETA{}, false, fmt.Errorf("get eta cache: %w", err)
	}

	if s.TTL > 0 && s.Clock.Now().Sub(time.Unix(0, cachedAt)) > s.TTL {
		return domain.ETA{}, false, nil
	}

	return domain.ETA{DurationSeconds: seconds, DurationText: domain.FormatDuration(seconds)}, true, nil
}

func (s *SqliteETACache) Put(ctx context.Context, origin, destination domain.LatLng, eta domain.ETA) error {
	if s.DB == nil {
		return errors.New("eta cache: db is nil")
	}

	_, err := s.DB.ExecContext(ctx, `
	INSERT OR REPLACE INTO eta_cache (
        origin,
        destination,
        duration_seconds,
        cached_at
    )
    VALUES (?, ?, ?, ?);
	`, etaKey(origin), etaKey(destination), eta.DurationSeconds, s.Clock.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("insert eta cache: %w", err)
	}
	return nil
}

// etaKey rounds to 4 decimal places (about 11 m) so nearby samples share
// an entry.
func etaKey(c domain.LatLng) string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lng)
}
