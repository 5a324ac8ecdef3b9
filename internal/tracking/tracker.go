// Package tracking follows a pair for a fixed period after an alert and
// condenses what happened into a Summary.
package tracking

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"price-move-alerts/internal/faults"
	"price-move-alerts/internal/market"
)

const (
	// DefaultDuration is the post-alert observation period.
	DefaultDuration = time.Hour
)

// DefaultCheckpoints are the marks reported in every summary.
var DefaultCheckpoints = []time.Duration{5 * time.Minute, 15 * time.Minute, 30 * time.Minute, 60 * time.Minute}

// State is the lifecycle position of a pair's tracking session.
type State int

const (
	StateIdle State = iota
	StateActive
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// PricePoint is one observation recorded by a session.
type PricePoint struct {
	Time  time.Time       `json:"time"`
	Price decimal.Decimal `json:"price"`
}

// Session is an open observation period for one pair.
type Session struct {
	ID     string
	Alert  market.Alert
	State  State
	Start  time.Time
	End    time.Time
	Points []PricePoint

	min decimal.Decimal
	max decimal.Decimal
}

func (s *Session) record(ts time.Time, price decimal.Decimal) {
	s.Points = append(s.Points, PricePoint{Time: ts, Price: price})
	if price.LessThan(s.min) {
		s.min = price
	}
	if price.GreaterThan(s.max) {
		s.max = price
	}
}

// Options configure a Tracker.
type Options struct {
	Duration    time.Duration
	Checkpoints []time.Duration
}

// Tracker owns at most one session per pair.
type Tracker struct {
	opts     Options
	sessions map[string]*Session
}

// New constructs a Tracker, applying defaults for zero options.
func New(opts Options) *Tracker {
	if opts.Duration <= 0 {
		opts.Duration = DefaultDuration
	}
	if len(opts.Checkpoints) == 0 {
		opts.Checkpoints = append([]time.Duration(nil), DefaultCheckpoints...)
	}
	checkpoints := append([]time.Duration(nil), opts.Checkpoints...)
	sort.Slice(checkpoints, func(i, j int) bool { return checkpoints[i] < checkpoints[j] })
	opts.Checkpoints = checkpoints

	return &Tracker{opts: opts, sessions: make(map[string]*Session)}
}

// Duration returns the configured observation period.
func (t *Tracker) Duration() time.Duration {
	return t.opts.Duration
}

// Open starts a session for the alert's pair. It returns false without side
// effects when the pair already has an active session.
func (t *Tracker) Open(alert market.Alert) bool {
	if t.State(alert.Pair) == StateActive {
		return false
	}
	start := alert.Time.UTC()
	session := &Session{
		ID:    SessionID(alert.Pair, start),
		Alert: alert,
		State: StateActive,
		Start: start,
		End:   start.Add(t.opts.Duration),
		min:   alert.TriggerPrice,
		max:   alert.TriggerPrice,
	}
	session.Points = []PricePoint{{Time: start, Price: alert.TriggerPrice}}
	t.sessions[alert.Pair] = session
	return true
}

// SessionID formats the identifier of a session.
func SessionID(pair string, start time.Time) string {
	return fmt.Sprintf("%s_%s", pair, start.UTC().Format("20060102_150405"))
}

// State returns the lifecycle state of the pair.
func (t *Tracker) State(pair string) State {
	if s, ok := t.sessions[pair]; ok {
		return s.State
	}
	return StateIdle
}

// Session returns the active session of a pair.
func (t *Tracker) Session(pair string) (*Session, bool) {
	s, ok := t.sessions[pair]
	return s, ok
}

// Active lists pairs with an open session, sorted.
func (t *Tracker) Active() []string {
	pairs := make([]string, 0, len(t.sessions))
	for pair := range t.sessions {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)
	return pairs
}

// Observe feeds a sample to the pair's session. A sample at or past the session
// end finalizes the session instead of being recorded.
func (t *Tracker) Observe(sample market.Sample) (Summary, bool, error) {
	session, ok := t.sessions[sample.Pair]
	if !ok {
		return Summary{}, false, nil
	}
	if !sample.Time.Before(session.End) {
		return t.finalize(session, sample.Time), true, nil
	}
	last := session.Points[len(session.Points)-1]
	if sample.Time.Before(last.Time) {
		return Summary{}, false, &faults.DataQualityFault{Pair: sample.Pair, Time: sample.Time, Reason: "sample precedes the session's latest point"}
	}
	if !sample.Price.IsPositive() {
		return Summary{}, false, &faults.DataQualityFault{Pair: sample.Pair, Time: sample.Time, Reason: "non-positive price"}
	}
	session.record(sample.Time, sample.Price)
	return Summary{}, false, nil
}

// Expire finalizes every session whose end is at or before now.
func (t *Tracker) Expire(now time.Time) []Summary {
	var done []*Session
	for _, s := range t.sessions {
		if !now.Before(s.End) {
			done = append(done, s)
		}
	}
	sort.Slice(done, func(i, j int) bool { return done[i].Alert.Pair < done[j].Alert.Pair })

	summaries := make([]Summary, 0, len(done))
	for _, s := range done {
		summaries = append(summaries, t.finalize(s, now))
	}
	return summaries
}

// FinalizeAll closes every active session at now, whether or not it reached
// its end. Used on shutdown.
func (t *Tracker) FinalizeAll(now time.Time) []Summary {
	pairs := t.Active()
	summaries := make([]Summary, 0, len(pairs))
	for _, pair := range pairs {
		summaries = append(summaries, t.finalize(t.sessions[pair], now))
	}
	return summaries
}

func (t *Tracker) finalize(s *Session, closedAt time.Time) Summary {
	s.State = StateFinalized
	summary := summarize(s, t.opts.Checkpoints, closedAt.UTC())
	delete(t.sessions, s.Alert.Pair)
	return summary
}
