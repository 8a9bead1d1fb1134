// Package participants holds the last known location of every tracked
// participant, local or remote.
package participants

import (
	"errors"
	"fmt"
	"location-tracker/internal/domain"
	"location-tracker/internal/platform/clock"
	"sort"
	"sync"
)

type ChangeKind int

const (
	ChangeIndividual ChangeKind = iota
	ChangeBulk
)

func (k ChangeKind) String() string {
	if k == ChangeBulk {
		return "bulk"
	}
	return "individual"
}

// Change describes one applied update. IDs lists the participants written.
type Change struct {
	Kind ChangeKind
	IDs  []string
}

var ErrInvalidParticipant = errors.New("invalid participant")

// Store maps participant id to last known state. Updates are applied in
// the order they are received; the store never reorders or coalesces.
// Reads are safe from any goroutine.
type Store struct {
	clock clock.Clock

	mu   sync.RWMutex
	byID map[string]domain.Participant

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{
		clock: clk,
		byID:  make(map[string]domain.Participant),
		subs:  make(map[int]func(Change)),
	}
}

// ApplyIndividual upserts p by id and stamps LastUpdatedAt. A missing
// display name keeps the one already known.
func (s *Store) ApplyIndividual(p domain.Participant) error {
	if err := validate(p); err != nil {
		return err
	}

	s.mu.Lock()
	if p.DisplayName == "" {
		p.DisplayName = s.byID[p.ID].DisplayName
	}
	p.LastUpdatedAt = s.clock.Now()
	s.byID[p.ID] = p
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeIndividual, IDs: []string{p.ID}})
	return nil
}

// ApplyBulk replaces the whole mapping with ps. Entries without an id or
// with an invalid coordinate are skipped; a later duplicate id wins.
// It returns the number of skipped entries.
func (s *Store) ApplyBulk(ps []domain.Participant) int {
	now := s.clock.Now()
	next := make(map[string]domain.Participant, len(ps))
	skipped := 0

	for _, p := range ps {
		if validate(p) != nil {
			skipped++
			continue
		}
		p.LastUpdatedAt = now
		next[p.ID] = p
	}

	ids := make([]string, 0, len(next))
	for id := range next {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	s.mu.Lock()
	s.byID = next
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeBulk, IDs: ids})
	return skipped
}

func (s *Store) Get(id string) (domain.Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	return p, ok
}

// All returns a snapshot of every participant, sorted by id.
func (s *Store) All() []domain.Participant {
	s.mu.RLock()
	out := make([]domain.Participant, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Subscribe registers fn for every applied change. fn runs synchronously
// on the goroutine that applied the change, after the write is visible.
// The returned func removes the subscription.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	keys := make([]int, 0, len(s.subs))
	for k := range s.subs {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	fns := make([]func(Change), 0, len(keys))
	for _, k := range keys {
		fns = append(fns, s.subs[k])
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

func validate(p domain.Participant) error {
	if p.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidParticipant)
	}
	if !p.Coordinate.Valid() {
		return fmt.Errorf("%w: %s has coordinate %v out of range", ErrInvalidParticipant, p.ID, p.Coordinate)
	}
	return nil
}
