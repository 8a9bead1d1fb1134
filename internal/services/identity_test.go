package services

import (
	"context"
	"errors"
	"location-tracker/internal/domain"
	"location-tracker/internal/ports"
	"testing"

	"github.com/google/uuid"
)

type memIdentityRepo struct {
	id    *domain.Identity
	saves int
	err   error
}

func (r *memIdentityRepo) LoadIdentity(ctx context.Context) (domain.Identity, error) {
	if r.err != nil {
		return domain.Identity{}, r.err
	}
	if r.id == nil {
		return domain.Identity{}, ports.ErrIdentityNotFound
	}
	return *r.id, nil
}

func (r *memIdentityRepo) SaveIdentity(ctx context.Context, id domain.Identity) error {
	r.id = &id
	r.saves++
	return nil
}

func TestEnsureIdentityCreatesOnce(t *testing.T) {
	repo := &memIdentityRepo{}

	first, err := EnsureIdentity(context.Background(), repo, "", "Dana")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := uuid.Parse(first.ParticipantID); err != nil {
		t.Fatalf("participant id %q is not a uuid: %v", first.ParticipantID, err)
	}
	if first.DisplayName != "Dana" || repo.saves != 1 {
		t.Fatalf("identity = %+v, saves = %d", first, repo.saves)
	}

	second, err := EnsureIdentity(context.Background(), repo, "", "")
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if second != first || repo.saves != 1 {
		t.Fatalf("identity changed on reload: %+v vs %+v (saves %d)", second, first, repo.saves)
	}
}

func TestEnsureIdentityUpdatesToken(t *testing.T) {
	repo := &memIdentityRepo{id: &domain.Identity{ParticipantID: "p-1", Token: "old"}}

	id, err := EnsureIdentity(context.Background(), repo, "new", "")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if id.ParticipantID != "p-1" || id.Token != "new" || repo.saves != 1 {
		t.Fatalf("identity = %+v, saves = %d", id, repo.saves)
	}
}

func TestEnsureIdentityLoadError(t *testing.T) {
	repo := &memIdentityRepo{err: errors.New("disk full")}

	if _, err := EnsureIdentity(context.Background(), repo, "", ""); err == nil {
		t.Fatal("expected error")
	}
	if repo.saves != 0 {
		t.Fatal("saved after a failed load")
	}
}
