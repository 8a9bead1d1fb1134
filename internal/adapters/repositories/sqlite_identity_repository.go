package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"location-tracker/internal/domain"
	"location-tracker/internal/ports"
	"strings"
)

// SQLite-backed implementation of the IdentityRepository port.
// The table holds at most one row.
type SqliteIdentityRepository struct{ DB *sql.DB }

func NewSqliteIdentityRepository(db *sql.DB) *SqliteIdentityRepository {
	return &SqliteIdentityRepository{DB: db}
}

// Return the stored device identity.
func (s *SqliteIdentityRepository) LoadIdentity(ctx context.Context) (domain.Identity, error) {
	if s.DB == nil {
		return domain.Identity{}, errors.New("sqlite identity repository: DB is nil")
	}

	query := `
	SELECT
		participant_id,
		token,
		display_name
	FROM identity
	WHERE slot = 1;
	`

	var id domain.Identity
	err := s.DB.QueryRowContext(ctx, query).Scan(&id.ParticipantID, &id.Token, &id.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Identity{}, ports.ErrIdentityNotFound
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("load identity: %w", err)
	}

	return id, nil
}

// Replace the stored device identity.
func (s *SqliteIdentityRepository) SaveIdentity(ctx context.Context, id domain.Identity) error {
	if s.DB == nil {
		return errors.New("sqlite identity repository: DB is nil")
	}

	if strings.TrimSpace(id.ParticipantID) == "" {
		return errors.New("save identity: participant id cannot be empty")
	}

	query := `
	INSERT OR REPLACE INTO identity (
		slot,
		participant_id,
		token,
		display_name
	)
	VALUES (1, ?, ?, ?);
	`
	if _, err := s.DB.ExecContext(ctx, query, id.ParticipantID, id.Token, id.DisplayName); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}

	return nil
}
