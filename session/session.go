// Package session drives one pair's market state: it keeps each leg's dates,
// pulls rates from a rate source into the store and exposes curve and
// back-solve entry points.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meenmo/fxlib/backsolve"
	"github.com/meenmo/fxlib/calendar"
	"github.com/meenmo/fxlib/fxcurve"
	"github.com/meenmo/fxlib/logging"
	"github.com/meenmo/fxlib/market"
	"github.com/meenmo/fxlib/metrics"
	"github.com/meenmo/fxlib/ratesource"
	"github.com/meenmo/fxlib/store"
	"github.com/meenmo/fxlib/utils"
)

// DateSource resolves a leg's spot and delivery dates.
type DateSource interface {
	Dates(pair market.Pair, today, expiry time.Time) (calendar.SettlementDates, error)
}

// Session owns a store and a solver for one pair.
type Session struct {
	store  *store.Store
	solver *backsolve.Solver
	rates  ratesource.Source
	dates  DateSource

	mu   sync.RWMutex
	legs map[market.LegID]fxcurve.Dates

	concurrency int
	staleAfter  time.Duration
	lockMode    backsolve.LockMode
	clock       func() time.Time
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger shared by the session, its store and solver.
func WithLogger(l *slog.Logger) Option { return func(s *Session) { s.logger = l } }

// WithMetrics attaches prometheus collectors to the session, store and solver.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Session) { s.metrics = m } }

// WithClock overrides the timestamp source (defaults to time.Now).
func WithClock(clock func() time.Time) Option { return func(s *Session) { s.clock = clock } }

// WithConcurrency bounds the number of in-flight rate requests. n <= 0 means unbounded.
func WithConcurrency(n int) Option { return func(s *Session) { s.concurrency = n } }

// WithStaleAfter sets the age past which SweepStale flags feed values.
func WithStaleAfter(d time.Duration) Option { return func(s *Session) { s.staleAfter = d } }

// WithLockMode sets the initial back-solve lock mode.
func WithLockMode(m backsolve.LockMode) Option { return func(s *Session) { s.lockMode = m } }

// New builds a session for pair.
func New(pair market.Pair, rates ratesource.Source, dates DateSource, opts ...Option) (*Session, error) {
	if rates == nil || dates == nil {
		return nil, fmt.Errorf("session.New: rate and date sources are required: %w", market.ErrInvalidInput)
	}
	s := &Session{
		rates:       rates,
		dates:       dates,
		legs:        make(map[market.LegID]fxcurve.Dates),
		concurrency: 4,
		clock:       time.Now,
		logger:      logging.Get(),
	}
	for _, opt := range opts {
		opt(s)
	}
	st, err := store.New(pair,
		store.WithClock(s.clock),
		store.WithLogger(s.logger),
		store.WithMetrics(s.metrics))
	if err != nil {
		return nil, err
	}
	s.store = st
	s.solver = backsolve.New(st, s.lockMode,
		backsolve.WithLogger(s.logger),
		backsolve.WithMetrics(s.metrics))
	return s, nil
}

// Store exposes the underlying store for subscriptions and direct edits.
func (s *Session) Store() *store.Store { return s.store }

// Pair is the pair currently held.
func (s *Session) Pair() market.Pair { return s.store.Pair() }

// SetLockMode changes the back-solve desk setting.
func (s *Session) SetLockMode(m backsolve.LockMode) { s.solver.SetLockMode(m) }

// LegDates returns the dates registered for leg.
func (s *Session) LegDates(leg market.LegID) (fxcurve.Dates, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.legs[leg]
	return d, ok
}

// SetLeg registers or updates a leg's terms. Changing the expiry of a known
// leg invalidates its rates so the next refresh re-derives them.
func (s *Session) SetLeg(leg market.LegID, valueDate, expiry time.Time) error {
	if leg == "" {
		return fmt.Errorf("SetLeg: empty leg: %w", market.ErrInvalidInput)
	}
	pair := s.store.Pair()
	sd, err := s.dates.Dates(pair, valueDate, expiry)
	if err != nil {
		return fmt.Errorf("SetLeg %s: %w", leg, err)
	}
	next := fxcurve.Dates{
		ValueDate:  utils.DateOnly(valueDate),
		Expiry:     utils.DateOnly(expiry),
		SpotDate:   sd.SpotDate,
		Settlement: sd.Settlement,
	}
	if _, err := fxcurve.NewWindows(pair, next); err != nil {
		return fmt.Errorf("SetLeg %s: %w", leg, err)
	}

	s.mu.Lock()
	prev, known := s.legs[leg]
	s.legs[leg] = next
	s.mu.Unlock()

	if known && !prev.Expiry.Equal(next.Expiry) {
		if _, ok := s.store.Snapshot().Leg(leg); ok {
			s.logger.Info("expiry changed, invalidating rates",
				"pair", string(pair), "leg", string(leg),
				"from", prev.Expiry.Format(utils.DateLayout), "to", next.Expiry.Format(utils.DateLayout))
			return s.store.InvalidateLeg(pair, leg)
		}
	}
	return nil
}

// RemoveLeg forgets a leg and drops its fields from the store.
func (s *Session) RemoveLeg(leg market.LegID) error {
	s.mu.Lock()
	delete(s.legs, leg)
	s.mu.Unlock()
	return s.store.RemoveLeg(s.store.Pair(), leg)
}

// SetSpot applies a spot tick from the feed.
func (s *Session) SetSpot(v market.TwoWay, stale bool) error {
	return s.store.WriteFromFeed(s.store.Pair(), market.SpotKey(), v, stale)
}

// SwitchPair moves the session to another pair. Legs keep their value date
// and expiry; spot and settlement dates are re-derived for the new pair and
// are in place before subscribers hear of the switch.
func (s *Session) SwitchPair(pair market.Pair) (store.Reason, error) {
	s.mu.Lock()
	prev := s.legs
	next := make(map[market.LegID]fxcurve.Dates, len(prev))
	for leg, d := range prev {
		sd, err := s.dates.Dates(pair, d.ValueDate, d.Expiry)
		if err != nil {
			s.mu.Unlock()
			return store.Reason{}, fmt.Errorf("SwitchPair %s leg %s: %w", pair, leg, err)
		}
		d.SpotDate, d.Settlement = sd.SpotDate, sd.Settlement
		next[leg] = d
	}
	s.legs = next
	s.mu.Unlock()

	// Subscribers run inside the store call and may read the session.
	reason, err := s.store.SwitchPair(pair)
	if err != nil {
		s.mu.Lock()
		s.legs = prev
		s.mu.Unlock()
		return store.Reason{}, err
	}
	return reason, nil
}

// SweepStale flags feed-sourced values whose last tick is older than the
// stale window. User and solver values never go stale.
func (s *Session) SweepStale() (store.Reason, error) {
	if s.staleAfter <= 0 {
		return store.Reason{}, nil
	}
	now := s.clock()
	snap := s.store.Snapshot()
	old := func(f market.Field) bool {
		return f.HasValue && f.Source == market.SourceFeed && !f.Stale && now.Sub(f.Timestamp) > s.staleAfter
	}
	keys := []market.FieldKey{market.SpotKey()}
	for _, leg := range snap.Legs() {
		keys = append(keys, market.RdKey(leg), market.RfKey(leg))
	}
	return s.store.Batch(snap.Pair(), store.OriginSystem, func(b *store.Batch) error {
		for _, key := range keys {
			if f, ok := b.Current().Field(key); ok && old(f) {
				if err := b.SetStale(key, true); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

type fetched struct {
	leg   market.LegID
	quote ratesource.Quote
}

// RefreshRates fetches rates for the given legs (every registered leg when
// none are named) concurrently and applies them as one feed batch. Legs whose
// rates were invalidated are always force-refreshed. If any fetch fails
// nothing is written.
func (s *Session) RefreshRates(ctx context.Context, force bool, legs ...market.LegID) (store.Reason, error) {
	pair := s.store.Pair()
	snap := s.store.Snapshot()

	s.mu.RLock()
	if len(legs) == 0 {
		for leg := range s.legs {
			legs = append(legs, leg)
		}
		sort.Slice(legs, func(i, j int) bool { return legs[i] < legs[j] })
	}
	reqs := make([]ratesource.Request, 0, len(legs))
	for _, leg := range legs {
		d, ok := s.legs[leg]
		if !ok {
			s.mu.RUnlock()
			return store.Reason{}, fmt.Errorf("RefreshRates: unknown leg %q: %w", leg, market.ErrInvalidInput)
		}
		invalidated := false
		if lr, ok := snap.Leg(leg); ok {
			invalidated = lr.Rd.Invalidated || lr.Rf.Invalidated
		}
		reqs = append(reqs, ratesource.Request{
			Pair:         pair,
			Leg:          leg,
			ValueDate:    d.ValueDate,
			Expiry:       d.Expiry,
			SpotDate:     d.SpotDate,
			Settlement:   d.Settlement,
			ForceRefresh: force || invalidated,
		})
	}
	s.mu.RUnlock()

	results := make([]fetched, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	if s.concurrency > 0 {
		g.SetLimit(s.concurrency)
	}
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			q, err := s.rates.Rates(gctx, req)
			s.metrics.RateRefresh(err)
			if err != nil {
				return fmt.Errorf("rates for %s leg %s: %w", req.Pair, req.Leg, err)
			}
			results[i] = fetched{leg: req.Leg, quote: q}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("rate refresh failed", "pair", string(pair), "legs", len(reqs), "error", err)
		return store.Reason{}, err
	}

	reason, err := s.store.Batch(pair, store.OriginFeed, func(b *store.Batch) error {
		for _, r := range results {
			if err := b.WriteFromFeed(market.RdKey(r.leg), r.quote.Rd, r.quote.Stale); err != nil {
				return err
			}
			if err := b.WriteFromFeed(market.RfKey(r.leg), r.quote.Rf, r.quote.Stale); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return store.Reason{}, err
	}
	s.logger.Debug("rates refreshed", "pair", string(pair), "legs", len(reqs), "seq", reason.Seq)
	return reason, nil
}

func (s *Session) legDates(leg market.LegID) (fxcurve.Dates, error) {
	d, ok := s.LegDates(leg)
	if !ok {
		return fxcurve.Dates{}, fmt.Errorf("unknown leg %q: %w", leg, market.ErrInvalidInput)
	}
	return d, nil
}

// Curve recomputes the leg's curve from the latest snapshot.
func (s *Session) Curve(leg market.LegID) (fxcurve.Result, error) {
	d, err := s.legDates(leg)
	if err != nil {
		return fxcurve.Result{}, fmt.Errorf("Curve: %w", err)
	}
	return fxcurve.FromSnapshot(s.store.Snapshot(), leg, d)
}

// SolveForward back-solves the leg so its forward mid equals forward.
func (s *Session) SolveForward(leg market.LegID, forward float64) (backsolve.Outcome, error) {
	return s.solve(leg, backsolve.Forward(forward))
}

// SolveSwap back-solves the leg so its swap-points mid equals points.
func (s *Session) SolveSwap(leg market.LegID, points float64) (backsolve.Outcome, error) {
	return s.solve(leg, backsolve.Swap(points))
}

func (s *Session) solve(leg market.LegID, target backsolve.Target) (backsolve.Outcome, error) {
	d, err := s.legDates(leg)
	if err != nil {
		return backsolve.Outcome{}, fmt.Errorf("Solve: %w", err)
	}
	return s.solver.Solve(s.store.Pair(), leg, d, target)
}
