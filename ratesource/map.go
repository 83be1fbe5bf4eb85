package ratesource

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/meenmo/fxlib/market"
)

// ErrNoQuote is returned when a source has nothing for the requested leg.
var ErrNoQuote = errors.New("ratesource: no quote")

// MapSource is a static map-backed source for development and testing.
// Quotes are keyed by pair and leg; a quote stored under an empty leg serves
// every leg of the pair.
type MapSource struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewMapSource returns an empty source.
func NewMapSource() *MapSource {
	return &MapSource{quotes: make(map[string]Quote)}
}

func mapKey(pair market.Pair, leg market.LegID) string {
	return string(pair) + "/" + string(leg)
}

// Set stores q for pair and leg, replacing any previous quote.
func (m *MapSource) Set(pair market.Pair, leg market.LegID, q Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[mapKey(pair, leg)] = q
}

// Rates serves the leg's quote, falling back to the pair-wide one.
func (m *MapSource) Rates(ctx context.Context, req Request) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if q, ok := m.quotes[mapKey(req.Pair, req.Leg)]; ok {
		return q, nil
	}
	if q, ok := m.quotes[mapKey(req.Pair, "")]; ok {
		return q, nil
	}
	return Quote{}, fmt.Errorf("%s leg %q: %w", req.Pair, req.Leg, ErrNoQuote)
}
