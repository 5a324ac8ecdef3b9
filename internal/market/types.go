package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction classifies a price move.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Sign returns +1 for up and -1 for down.
func (d Direction) Sign() int {
	if d == DirectionDown {
		return -1
	}
	return 1
}

// Sample is a single timestamped price observation for a pair.
type Sample struct {
	Pair  string
	Time  time.Time
	Price decimal.Decimal
}

// NewSample is a convenience constructor used by sources and tests.
func NewSample(pair string, ts time.Time, price decimal.Decimal) Sample {
	return Sample{Pair: pair, Time: ts.UTC(), Price: price}
}

// WindowConfig describes how one pair is monitored.
type WindowConfig struct {
	Pair        string
	Lookback    time.Duration
	UpPct       decimal.Decimal
	DownPct     decimal.Decimal
	Enabled     bool
	AlertOnUp   bool
	AlertOnDown bool
}

// Alert is emitted when a window change crosses a configured threshold.
type Alert struct {
	Pair         string
	Time         time.Time
	Direction    Direction
	ChangePct    decimal.Decimal
	TriggerPrice decimal.Decimal
	ThresholdPct decimal.Decimal
	Lookback     time.Duration
}

// String renders the alert in the short operator form.
func (a Alert) String() string {
	verb := "increased"
	if a.Direction == DirectionDown {
		verb = "decreased"
	}
	return fmt.Sprintf("%s %s by %s%% in %s", a.Pair, verb, a.ChangePct.Abs().StringFixed(2), FormatLookback(a.Lookback))
}

// FormatLookback prints whole minutes when possible.
func FormatLookback(d time.Duration) string {
	if d > 0 && d%time.Minute == 0 {
		minutes := int(d / time.Minute)
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	return d.String()
}
