package ports

import (
	"context"
	"errors"
	"location-tracker/internal/domain"
)

var ErrIdentityNotFound = errors.New("identity not found")

// Port: a boundary for the device-scoped identity that survives restarts.
type IdentityRepository interface {
	// Return the stored identity or ErrIdentityNotFound.
	LoadIdentity(ctx context.Context) (domain.Identity, error)
	SaveIdentity(ctx context.Context, id domain.Identity) error
}
