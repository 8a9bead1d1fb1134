package services

import (
	"context"
	"errors"
	"fmt"
	"location-tracker/internal/domain"
	"location-tracker/internal/ports"
	"strings"

	"github.com/google/uuid"
)

// Load the device identity, creating one with a fresh participant id on
// first run.
//
// A non-empty token or displayName replaces the stored value so a new
// login or rename survives restarts.
func EnsureIdentity(
	ctx context.Context,
	repo ports.IdentityRepository,
	token string,
	displayName string,
) (domain.Identity, error) {
	id, err := repo.LoadIdentity(ctx)
	switch {
	case errors.Is(err, ports.ErrIdentityNotFound):
		id = domain.Identity{ParticipantID: uuid.NewString()}
	case err != nil:
		return domain.Identity{}, fmt.Errorf("ensure identity: load: %w", err)
	}

	changed := errors.Is(err, ports.ErrIdentityNotFound)

	if t := strings.TrimSpace(token); t != "" && t != id.Token {
		id.Token = t
		changed = true
	}
	if n := strings.TrimSpace(displayName); n != "" && n != id.DisplayName {
		id.DisplayName = n
		changed = true
	}

	if changed {
		if err := repo.SaveIdentity(ctx, id); err != nil {
			return domain.Identity{}, fmt.Errorf("ensure identity: save: %w", err)
		}
	}

	return id, nil
}
