// Package backsolve finds the domestic or foreign rate that reproduces a
// target forward or swap, and writes it back into the store preserving the
// quoted spread.
package backsolve

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/meenmo/fxlib/fxcurve"
	"github.com/meenmo/fxlib/logging"
	"github.com/meenmo/fxlib/market"
	"github.com/meenmo/fxlib/metrics"
	"github.com/meenmo/fxlib/store"
)

// TargetKind selects what a target value means.
type TargetKind int

const (
	TargetForward TargetKind = iota
	TargetSwap
)

// Target is the mid value the trader wants the curve to show.
type Target struct {
	Kind TargetKind
	Mid  float64
}

// Forward targets an outright forward mid.
func Forward(mid float64) Target { return Target{Kind: TargetForward, Mid: mid} }

// Swap targets a swap-points mid (forward − spot).
func Swap(mid float64) Target { return Target{Kind: TargetSwap, Mid: mid} }

// ForwardMid converts the target to a forward mid using the effective spot mid.
func (t Target) ForwardMid(spotMid float64) float64 {
	if t.Kind == TargetSwap {
		return spotMid + t.Mid
	}
	return t.Mid
}

// ImpliedMid solves the rate that is not held, on the settlement window.
func ImpliedMid(in fxcurve.Inputs, held market.FieldName, target Target) (float64, error) {
	w, err := fxcurve.NewWindows(in.Pair, in.Dates)
	if err != nil {
		return 0, err
	}
	spotMid := in.Spot.Mid()
	return fxcurve.Invert(held, spotMid, target.ForwardMid(spotMid), in.Rd.Mid(), in.Rf.Mid(), w.SettleDom, w.SettleFor)
}

// Outcome is the committed result of one back-solve.
type Outcome struct {
	Held     market.FieldName
	Solved   market.FieldName
	Rate     market.TwoWay
	Curve    fxcurve.Result
	Snapshot *store.Snapshot
	Reason   store.Reason
}

// Solver back-solves against a store.
type Solver struct {
	store   *store.Store
	mode    atomic.Int32
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Solver.
type Option func(*Solver)

// WithLogger sets the logger (defaults to logging.Get()).
func WithLogger(l *slog.Logger) Option { return func(s *Solver) { s.logger = l } }

// WithMetrics records solve counts and latency.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Solver) { s.metrics = m } }

// New returns a solver writing into st with the given default lock mode.
func New(st *store.Store, mode LockMode, opts ...Option) *Solver {
	s := &Solver{store: st, logger: logging.Get()}
	s.mode.Store(int32(mode))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LockMode returns the current desk setting.
func (s *Solver) LockMode() LockMode { return LockMode(s.mode.Load()) }

// SetLockMode changes the desk setting for later solves.
func (s *Solver) SetLockMode(m LockMode) { s.mode.Store(int32(m)) }

// Solve reads the leg, resolves the held rate, solves the other one, writes it
// back as mid ∓ spread/2 and rebuilds the curve, all in one store batch. On
// any error nothing is written.
func (s *Solver) Solve(pair market.Pair, leg market.LegID, dates fxcurve.Dates, target Target) (Outcome, error) {
	start := time.Now()
	mode := s.LockMode()

	var out Outcome
	reason, err := s.store.Batch(pair, store.OriginSolver, func(b *store.Batch) error {
		cur := b.Current()
		in, err := fxcurve.InputsFromSnapshot(cur, leg, dates)
		if err != nil {
			return err
		}
		lr, _ := cur.Leg(leg)
		held := ResolveLock(lr.Rd, lr.Rf, mode)

		mid, err := ImpliedMid(in, held, target)
		if err != nil {
			return err
		}

		key, solved := market.RfKey(leg), lr.Rf
		if held == market.FieldRf {
			key, solved = market.RdKey(leg), lr.Rd
		}
		if err := b.WriteSolved(key, mid, solved.SpreadForSolve()); err != nil {
			return err
		}

		curve, err := fxcurve.FromSnapshot(b.Current(), leg, dates)
		if err != nil {
			return err
		}
		f, _ := b.Current().Field(key)
		out = Outcome{
			Held:     held,
			Solved:   key.Name,
			Rate:     f.Value,
			Curve:    curve,
			Snapshot: b.Current(),
		}
		return nil
	})

	solvedName := string(out.Solved)
	if err != nil {
		solvedName = "unknown"
	}
	s.metrics.BackSolve(solvedName, err, time.Since(start))
	if err != nil {
		s.logger.Warn("back-solve failed",
			"pair", string(pair), "leg", string(leg), "target", target.Mid, "mode", mode.String(), "error", err)
		return Outcome{}, err
	}
	out.Reason = reason
	s.logger.Info("back-solve",
		"pair", string(pair),
		"leg", string(leg),
		"held", string(out.Held),
		"solved", string(out.Solved),
		"rate", out.Rate.String(),
		"forward_mid", out.Curve.Forward.Mid)
	return out, nil
}
