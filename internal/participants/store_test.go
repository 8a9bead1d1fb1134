package participants

import (
	"errors"
	"location-tracker/internal/domain"
	"location-tracker/internal/platform/clock"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

func at(lat, lng float64) domain.LatLng { return domain.LatLng{Lat: lat, Lng: lng} }

func TestApplyIndividualLastWriteWins(t *testing.T) {
	clk := clock.Fake(t0)
	s := NewStore(clk)

	if err := s.ApplyIndividual(domain.Participant{ID: "a", Coordinate: at(1, 1), DisplayName: "Alice"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	clk.Advance(time.Second)
	if err := s.ApplyIndividual(domain.Participant{ID: "a", Coordinate: at(2, 2)}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}

	p, ok := s.Get("a")
	if !ok {
		t.Fatal("expected a to exist")
	}
	if p.Coordinate != at(2, 2) {
		t.Fatalf("coordinate = %v", p.Coordinate)
	}
	if p.DisplayName != "Alice" {
		t.Fatalf("display name = %q, want kept", p.DisplayName)
	}
	if !p.LastUpdatedAt.Equal(t0.Add(time.Second)) {
		t.Fatalf("last updated = %v", p.LastUpdatedAt)
	}
}

func TestApplyIndividualRejectsInvalid(t *testing.T) {
	s := NewStore(clock.Fake(t0))

	if err := s.ApplyIndividual(domain.Participant{Coordinate: at(1, 1)}); !errors.Is(err, ErrInvalidParticipant) {
		t.Fatalf("empty id err = %v", err)
	}
	if err := s.ApplyIndividual(domain.Participant{ID: "a", Coordinate: at(95, 1)}); !errors.Is(err, ErrInvalidParticipant) {
		t.Fatalf("bad coordinate err = %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("len = %d, want 0", s.Len())
	}
}

func TestApplyBulkReplacesEverything(t *testing.T) {
	s := NewStore(clock.Fake(t0))

	_ = s.ApplyIndividual(domain.Participant{ID: "stale", Coordinate: at(1, 1)})

	skipped := s.ApplyBulk([]domain.Participant{
		{ID: "b", Coordinate: at(2, 2)},
		{ID: "a", Coordinate: at(1, 1)},
		{ID: "", Coordinate: at(3, 3)},
		{ID: "b", Coordinate: at(4, 4)},
	})

	if skipped != 1 {
		t.Fatalf("skipped = %d, want 1", skipped)
	}

	all := s.All()
	if len(all) != 2 || all[0].ID != "a" || all[1].ID != "b" {
		t.Fatalf("all = %+v", all)
	}
	if all[1].Coordinate != at(4, 4) {
		t.Fatalf("duplicate id should take the later entry, got %v", all[1].Coordinate)
	}
	if _, ok := s.Get("stale"); ok {
		t.Fatal("bulk must remove entries absent from the snapshot")
	}
}

// A bulk snapshot followed by an individual update for a new id leaves
// the union in the store, with notifications in receipt order.
func TestBulkThenIndividual(t *testing.T) {
	s := NewStore(clock.Fake(t0))

	var changes []Change
	unsubscribe := s.Subscribe(func(c Change) { changes = append(changes, c) })
	defer unsubscribe()

	s.ApplyBulk([]domain.Participant{
		{ID: "A", Coordinate: at(1, 1)},
		{ID: "B", Coordinate: at(2, 2)},
	})
	if err := s.ApplyIndividual(domain.Participant{ID: "C", Coordinate: at(3, 3)}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	all := s.All()
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	want := map[string]domain.LatLng{"A": at(1, 1), "B": at(2, 2), "C": at(3, 3)}
	for _, p := range all {
		if want[p.ID] != p.Coordinate {
			t.Fatalf("%s = %v, want %v", p.ID, p.Coordinate, want[p.ID])
		}
	}

	if len(changes) != 2 {
		t.Fatalf("changes = %d, want 2", len(changes))
	}
	if changes[0].Kind != ChangeBulk || changes[1].Kind != ChangeIndividual {
		t.Fatalf("kinds = %v, %v", changes[0].Kind, changes[1].Kind)
	}
	if len(changes[0].IDs) != 2 || changes[1].IDs[0] != "C" {
		t.Fatalf("ids = %v, %v", changes[0].IDs, changes[1].IDs)
	}
}

func TestUnsubscribe(t *testing.T) {
	s := NewStore(clock.Fake(t0))

	calls := 0
	unsubscribe := s.Subscribe(func(Change) { calls++ })
	_ = s.ApplyIndividual(domain.Participant{ID: "a", Coordinate: at(1, 1)})
	unsubscribe()
	_ = s.ApplyIndividual(domain.Participant{ID: "a", Coordinate: at(2, 2)})

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestProjectMarksSelf(t *testing.T) {
	views := Project([]domain.Participant{{ID: "me"}, {ID: "you"}}, "me")

	if !views[0].Self || views[1].Self {
		t.Fatalf("views = %+v", views)
	}
	if Project([]domain.Participant{{ID: ""}}, "")[0].Self {
		t.Fatal("empty self id must not match")
	}
}
