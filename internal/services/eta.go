package services

import (
	"context"
	"location-tracker/internal/domain"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultETAConcurrency bounds in-flight travel time requests per fan-out.
const DefaultETAConcurrency = 5

// One participant's travel time toward the destination of Generation.
type ETAResult struct {
	Generation    uint64
	ParticipantID string
	ETA           domain.ETA
	Err           error
}

// An ETA board row. Pending rows have neither ETA nor Err yet.
type ETAEntry struct {
	ParticipantID string
	ETA           domain.ETA
	Err           error
	Pending       bool
}

// ETABoard holds the travel times of the current destination generation.
// Results from any other generation are discarded.
type ETABoard struct {
	mu         sync.Mutex
	generation uint64
	entries    map[string]ETAEntry
	discarded  int
}

func NewETABoard() *ETABoard {
	return &ETABoard{entries: make(map[string]ETAEntry)}
}

// Reset empties the board for a new destination generation and marks ids
// as pending.
func (b *ETABoard) Reset(generation uint64, ids []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.generation = generation
	b.entries = make(map[string]ETAEntry, len(ids))
	for _, id := range ids {
		b.entries[id] = ETAEntry{ParticipantID: id, Pending: true}
	}
}

// Apply stores r and reports whether it belonged to the current generation.
func (b *ETABoard) Apply(r ETAResult) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if r.Generation != b.generation {
		b.discarded++
		return false
	}
	b.entries[r.ParticipantID] = ETAEntry{ParticipantID: r.ParticipantID, ETA: r.ETA, Err: r.Err}
	return true
}

func (b *ETABoard) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}

// Discarded counts results dropped for belonging to an old generation.
func (b *ETABoard) Discarded() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.discarded
}

func (b *ETABoard) Get(id string) (ETAEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[id]
	return e, ok
}

// Entries returns the board sorted by participant id.
func (b *ETABoard) Entries() []ETAEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]ETAEntry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out
}

// Computes one travel time; RouteEngine.ComputeETA fits.
type ETAFunc func(ctx context.Context, origin domain.LatLng) (domain.ETA, error)

// Fetch travel times for every participant toward the destination of
// generation.
//
// Requests are independent: at most limit run at once, each result is
// handed to deliver as soon as it resolves and completion order is not
// defined. A failed request yields a result carrying its Err and does not
// cancel the others. FetchETAs returns once every request has resolved,
// or with ctx's error when ctx is cancelled first.
func FetchETAs(
	ctx context.Context,
	compute ETAFunc,
	generation uint64,
	ps []domain.Participant,
	limit int,
	deliver func(ETAResult),
) error {
	if limit <= 0 {
		limit = DefaultETAConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, p := range ps {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			eta, err := compute(gctx, p.Coordinate)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			deliver(ETAResult{Generation: generation, ParticipantID: p.ID, ETA: eta, Err: err})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
