package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"price-move-alerts/internal/market"
)

// AlertRecord captures an emitted alert for auditing and reporting.
type AlertRecord struct {
	ID           int64           `json:"id"`
	Pair         string          `json:"pair"`
	TriggeredAt  time.Time       `json:"triggered_at"`
	Direction    string          `json:"direction"`
	ChangePct    decimal.Decimal `json:"change_pct"`
	ThresholdPct decimal.Decimal `json:"threshold_pct"`
	TriggerPrice decimal.Decimal `json:"trigger_price"`
	Lookback     time.Duration   `json:"lookback"`
	Channels     []string        `json:"channels"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewAlertRecord converts a fired alert into its persisted form.
func NewAlertRecord(alert market.Alert, channels []string) AlertRecord {
	return AlertRecord{
		Pair:         alert.Pair,
		TriggeredAt:  alert.Time.UTC(),
		Direction:    string(alert.Direction),
		ChangePct:    alert.ChangePct,
		ThresholdPct: alert.ThresholdPct,
		TriggerPrice: alert.TriggerPrice,
		Lookback:     alert.Lookback,
		Channels:     append([]string(nil), channels...),
	}
}

// SummaryFilter narrows tracking summary queries. Zero values mean no constraint.
type SummaryFilter struct {
	Pair  string
	Since time.Time
	Limit int
}
