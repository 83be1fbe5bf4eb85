// Package store holds the authoritative bid/ask state of one currency pair:
// the spot field and, per option leg, the domestic and foreign rate fields.
//
// Every mutation commits a new immutable Snapshot and then synchronously
// notifies subscribers, in commit order, with a structured Reason.
package store

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meenmo/fxlib/logging"
	"github.com/meenmo/fxlib/market"
	"github.com/meenmo/fxlib/metrics"
)

// Subscriber receives every committed snapshot with the reason it changed.
// It runs on the writer's goroutine and must not mutate the store.
type Subscriber func(snap *Snapshot, reason Reason)

// Store is the market state of a single pricing session for one pair.
type Store struct {
	// mu serializes commits and their dispatch, which fixes notification order.
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]

	subMu  sync.RWMutex
	subs   map[int]Subscriber
	nextID int

	clock   func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source (defaults to time.Now).
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithLogger sets the logger (defaults to logging.Get()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates an empty store for pair.
func New(pair market.Pair, opts ...Option) (*Store, error) {
	if _, err := market.ParsePair(string(pair)); err != nil {
		return nil, err
	}
	s := &Store{
		subs:   make(map[int]Subscriber),
		clock:  time.Now,
		logger: logging.Get(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(emptySnapshot(pair))
	return s, nil
}

// Snapshot returns the latest committed state. It never blocks on writers.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Pair is the pair currently held.
func (s *Store) Pair() market.Pair {
	return s.current.Load().pair
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Subscriber) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// Batch runs fn against a working copy of the state and commits every write
// it made as one snapshot with one notification. If fn returns an error
// nothing is committed. A batch that changes nothing commits nothing and
// returns a zero Reason.
func (s *Store) Batch(pair market.Pair, origin Origin, fn func(b *Batch) error) (Reason, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if pair != cur.pair {
		return Reason{}, fmt.Errorf("Batch: store holds %s, got %s: %w", cur.pair, pair, market.ErrInvalidInput)
	}
	b := newBatch(cur, origin, s.clock())
	if err := fn(b); err != nil {
		s.metrics.Rejected(origin.String())
		s.logger.Warn("store batch rejected", "pair", string(cur.pair), "origin", origin.String(), "error", err)
		return Reason{}, err
	}
	return s.commitLocked(cur, b)
}

// SwitchPair replaces the held pair. The spot field is reset; legs are kept.
func (s *Store) SwitchPair(pair market.Pair) (Reason, error) {
	if _, err := market.ParsePair(string(pair)); err != nil {
		return Reason{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	b := newBatch(cur, OriginSystem, s.clock())
	b.switchPair(pair)
	return s.commitLocked(cur, b)
}

func (s *Store) commitLocked(cur *Snapshot, b *Batch) (Reason, error) {
	if !b.Changed() {
		return Reason{}, nil
	}
	next := b.work
	next.seq = cur.seq + 1
	if err := next.verify(); err != nil {
		s.metrics.Rejected(b.origin.String())
		s.logger.Error("store invariant violated", "pair", string(cur.pair), "error", err)
		return Reason{}, err
	}
	s.current.Store(next)

	reason := buildReason(next.seq, b.origin, b.touched, b.removed, b.pairSwitched)
	for _, key := range reason.Fields {
		s.metrics.Mutation(b.origin.String(), string(key.Name))
	}
	s.metrics.Notification(reason.Kind().String())
	s.logger.Debug("store commit",
		"pair", string(next.pair),
		"seq", next.seq,
		"origin", b.origin.String(),
		"kind", reason.Kind().String(),
		"fields", len(reason.Fields),
		"legs", len(reason.Legs))

	s.dispatch(next, reason)
	return reason, nil
}

func (s *Store) dispatch(snap *Snapshot, reason Reason) {
	s.subMu.RLock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	subs := make([]Subscriber, 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		subs = append(subs, s.subs[id])
	}
	s.subMu.RUnlock()

	for _, fn := range subs {
		fn(snap, reason)
	}
}

// WriteFromFeed applies a single feed value.
func (s *Store) WriteFromFeed(pair market.Pair, key market.FieldKey, v market.TwoWay, stale bool) error {
	_, err := s.Batch(pair, OriginFeed, func(b *Batch) error {
		return b.WriteFromFeed(key, v, stale)
	})
	return err
}

// WriteFromUser applies a single trader entry.
func (s *Store) WriteFromUser(pair market.Pair, key market.FieldKey, v market.TwoWay, wasMid bool, view market.ViewMode) error {
	_, err := s.Batch(pair, OriginUser, func(b *Batch) error {
		return b.WriteFromUser(key, v, wasMid, view)
	})
	return err
}

// SetViewMode changes a field's view mode.
func (s *Store) SetViewMode(pair market.Pair, key market.FieldKey, v market.ViewMode) error {
	_, err := s.Batch(pair, OriginUser, func(b *Batch) error {
		return b.SetViewMode(key, v)
	})
	return err
}

// SetOverride changes a field's override.
func (s *Store) SetOverride(pair market.Pair, key market.FieldKey, o market.Override) error {
	_, err := s.Batch(pair, OriginUser, func(b *Batch) error {
		return b.SetOverride(key, o)
	})
	return err
}

// SetStale records the feed collaborator's staleness verdict.
func (s *Store) SetStale(pair market.Pair, key market.FieldKey, stale bool) error {
	_, err := s.Batch(pair, OriginFeed, func(b *Batch) error {
		return b.SetStale(key, stale)
	})
	return err
}

// InvalidateLeg marks a leg's Rd and Rf for re-derivation.
func (s *Store) InvalidateLeg(pair market.Pair, leg market.LegID) error {
	_, err := s.Batch(pair, OriginSystem, func(b *Batch) error {
		return b.InvalidateLeg(leg)
	})
	return err
}

// RemoveLeg drops a leg.
func (s *Store) RemoveLeg(pair market.Pair, leg market.LegID) error {
	_, err := s.Batch(pair, OriginSystem, func(b *Batch) error {
		return b.RemoveLeg(leg)
	})
	return err
}
