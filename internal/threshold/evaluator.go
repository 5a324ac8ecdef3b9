// Package threshold turns window changes into alerts.
package threshold

import (
	"fmt"
	"strings"
	"time"

	"price-move-alerts/internal/market"
	"price-move-alerts/internal/window"
)

// Policy selects how a pair re-arms after an alert.
type Policy string

const (
	// PolicyAgeOut suppresses same-direction alerts until the triggering sample
	// has left the window (earliest sample newer than the trigger time).
	PolicyAgeOut Policy = "age-out"
	// PolicyReset collapses the window to the triggering sample.
	PolicyReset Policy = "reset"
	// PolicyNone never suppresses.
	PolicyNone Policy = "none"
)

// ParsePolicy validates a policy name. Empty selects PolicyAgeOut.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(name))) {
	case "", PolicyAgeOut:
		return PolicyAgeOut, nil
	case PolicyReset:
		return PolicyReset, nil
	case PolicyNone:
		return PolicyNone, nil
	default:
		return "", fmt.Errorf("unknown cooldown policy %q (want age-out, reset or none)", name)
	}
}

// Evaluator compares window changes against per-pair thresholds.
type Evaluator struct {
	policy    Policy
	cooldowns map[string]map[market.Direction]time.Time
}

// New constructs an Evaluator.
func New(policy Policy) *Evaluator {
	if policy == "" {
		policy = PolicyAgeOut
	}
	return &Evaluator{
		policy:    policy,
		cooldowns: make(map[string]map[market.Direction]time.Time),
	}
}

// Policy returns the active re-arm policy.
func (e *Evaluator) Policy() Policy {
	return e.policy
}

// Evaluate inspects the pair's window right after an ingest and returns an alert
// when the change crosses a threshold that is not cooling down.
func (e *Evaluator) Evaluate(cfg market.WindowConfig, windows *window.Tracker) (market.Alert, bool) {
	change, ok := windows.CurrentChange(cfg.Pair)
	if !ok {
		return market.Alert{}, false
	}
	earliest, _ := windows.Earliest(cfg.Pair)
	latest, _ := windows.Latest(cfg.Pair)

	e.rearm(cfg.Pair, earliest.Time)

	var (
		direction market.Direction
		threshold = cfg.UpPct
	)
	switch {
	case cfg.AlertOnUp && cfg.UpPct.IsPositive() && change.GreaterThanOrEqual(cfg.UpPct):
		direction = market.DirectionUp
	case cfg.AlertOnDown && cfg.DownPct.IsPositive() && change.LessThanOrEqual(cfg.DownPct.Neg()):
		direction = market.DirectionDown
		threshold = cfg.DownPct
	default:
		return market.Alert{}, false
	}

	if e.CoolingDown(cfg.Pair, direction) {
		return market.Alert{}, false
	}

	alert := market.Alert{
		Pair:         cfg.Pair,
		Time:         latest.Time,
		Direction:    direction,
		ChangePct:    change,
		TriggerPrice: latest.Price,
		ThresholdPct: threshold,
		Lookback:     windows.Lookback(cfg.Pair),
	}

	switch e.policy {
	case PolicyAgeOut:
		e.arm(cfg.Pair, direction, latest.Time)
	case PolicyReset:
		windows.Reset(cfg.Pair, latest)
	}

	return alert, true
}

// CoolingDown reports whether alerts in the given direction are suppressed.
func (e *Evaluator) CoolingDown(pair string, direction market.Direction) bool {
	_, ok := e.cooldowns[pair][direction]
	return ok
}

// Forget drops all cooldown state of a pair.
func (e *Evaluator) Forget(pair string) {
	delete(e.cooldowns, pair)
}

func (e *Evaluator) arm(pair string, direction market.Direction, trigger time.Time) {
	byDir, ok := e.cooldowns[pair]
	if !ok {
		byDir = make(map[market.Direction]time.Time, 2)
		e.cooldowns[pair] = byDir
	}
	byDir[direction] = trigger
}

func (e *Evaluator) rearm(pair string, earliest time.Time) {
	byDir, ok := e.cooldowns[pair]
	if !ok {
		return
	}
	for direction, trigger := range byDir {
		if earliest.After(trigger) {
			delete(byDir, direction)
		}
	}
	if len(byDir) == 0 {
		delete(e.cooldowns, pair)
	}
}
