// Package window keeps per-pair trailing price history and computes the
// percentage change across each pair's lookback window.
package window

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"price-move-alerts/internal/faults"
	"price-move-alerts/internal/market"
)

// ErrUnknownPair is returned when a sample arrives for a pair that was never tracked.
var ErrUnknownPair = errors.New("window: pair not tracked")

var hundred = decimal.NewFromInt(100)

// State is the ordered sample history of one pair.
type State struct {
	lookback time.Duration
	samples  []market.Sample
}

// Tracker owns the window state of every monitored pair.
type Tracker struct {
	states map[string]*State
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{states: make(map[string]*State)}
}

// Track registers a pair with its lookback. Re-registering keeps history and
// applies the new lookback from the next ingest on.
func (t *Tracker) Track(pair string, lookback time.Duration) error {
	if pair == "" {
		return errors.New("window: pair is required")
	}
	if lookback <= 0 {
		return fmt.Errorf("window: lookback for %s must be positive", pair)
	}
	if st, ok := t.states[pair]; ok {
		st.lookback = lookback
		return nil
	}
	t.states[pair] = &State{lookback: lookback}
	return nil
}

// Pairs returns the number of tracked pairs.
func (t *Tracker) Pairs() int {
	return len(t.states)
}

// Ingest appends the sample and evicts samples older than sample.Time - lookback.
// Out-of-order or non-positive samples are rejected with a DataQualityFault and
// leave the state untouched.
func (t *Tracker) Ingest(sample market.Sample) error {
	st, ok := t.states[sample.Pair]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPair, sample.Pair)
	}
	if !sample.Price.IsPositive() {
		return &faults.DataQualityFault{Pair: sample.Pair, Time: sample.Time, Reason: fmt.Sprintf("non-positive price %s", sample.Price.String())}
	}
	if n := len(st.samples); n > 0 && sample.Time.Before(st.samples[n-1].Time) {
		return &faults.DataQualityFault{
			Pair:   sample.Pair,
			Time:   sample.Time,
			Reason: fmt.Sprintf("out of order, latest sample is %s", st.samples[n-1].Time.UTC().Format(time.RFC3339Nano)),
		}
	}

	st.samples = append(st.samples, sample)
	st.evict(sample.Time)
	return nil
}

func (s *State) evict(now time.Time) {
	cutoff := now.Add(-s.lookback)
	drop := 0
	for drop < len(s.samples) && s.samples[drop].Time.Before(cutoff) {
		drop++
	}
	if drop == 0 {
		return
	}
	kept := make([]market.Sample, len(s.samples)-drop)
	copy(kept, s.samples[drop:])
	s.samples = kept
}

// CurrentChange returns (latest - earliest) / earliest * 100 for the pair.
// ok is false when fewer than two samples are in the window.
func (t *Tracker) CurrentChange(pair string) (change decimal.Decimal, ok bool) {
	st, found := t.states[pair]
	if !found || len(st.samples) < 2 {
		return decimal.Zero, false
	}
	first := st.samples[0].Price
	last := st.samples[len(st.samples)-1].Price
	return PercentChange(first, last), true
}

// PercentChange computes (to - from) / from * 100.
func PercentChange(from, to decimal.Decimal) decimal.Decimal {
	if from.IsZero() {
		return decimal.Zero
	}
	return to.Sub(from).Mul(hundred).Div(from)
}

// Earliest returns the oldest sample still in the pair's window.
func (t *Tracker) Earliest(pair string) (market.Sample, bool) {
	st, ok := t.states[pair]
	if !ok || len(st.samples) == 0 {
		return market.Sample{}, false
	}
	return st.samples[0], true
}

// Latest returns the newest sample of the pair.
func (t *Tracker) Latest(pair string) (market.Sample, bool) {
	st, ok := t.states[pair]
	if !ok || len(st.samples) == 0 {
		return market.Sample{}, false
	}
	return st.samples[len(st.samples)-1], true
}

// Len reports how many samples the pair's window holds.
func (t *Tracker) Len(pair string) int {
	if st, ok := t.states[pair]; ok {
		return len(st.samples)
	}
	return 0
}

// Lookback returns the configured lookback of the pair.
func (t *Tracker) Lookback(pair string) time.Duration {
	if st, ok := t.states[pair]; ok {
		return st.lookback
	}
	return 0
}

// Samples returns a copy of the pair's window.
func (t *Tracker) Samples(pair string) []market.Sample {
	st, ok := t.states[pair]
	if !ok || len(st.samples) == 0 {
		return nil
	}
	out := make([]market.Sample, len(st.samples))
	copy(out, st.samples)
	return out
}

// Reset collapses the pair's window to the given sample.
func (t *Tracker) Reset(pair string, keep market.Sample) {
	st, ok := t.states[pair]
	if !ok {
		return
	}
	st.samples = []market.Sample{keep}
}
