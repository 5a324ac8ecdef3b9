package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"price-move-alerts/internal/market"
	"price-move-alerts/internal/tracking"
)

// AlertNotification renders a threshold crossing.
func AlertNotification(alert market.Alert, channels []string) Notification {
	arrow := "↑"
	if alert.Direction == market.DirectionDown {
		arrow = "↓"
	}

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("%s %s.\n", arrow, alert.String()))
	builder.WriteString(fmt.Sprintf("Price: %s\n", alert.TriggerPrice.String()))
	builder.WriteString(fmt.Sprintf("Threshold: %s%%\n", alert.ThresholdPct.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Time: %s UTC", alert.Time.UTC().Format(time.RFC3339)))

	return Notification{
		Kind:     KindAlert,
		Time:     alert.Time,
		Pair:     alert.Pair,
		Text:     builder.String(),
		Channels: channels,
	}
}

// SummaryNotification renders a finished tracking session.
func SummaryNotification(s tracking.Summary, channels []string) Notification {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("✓ %s tracking finished after %s alert of %s%%\n", s.Pair, s.Direction, s.TriggerChangePct.Abs().StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Start: %s  Close: %s\n", s.StartPrice.String(), s.ClosePrice.String()))
	builder.WriteString(fmt.Sprintf("Min: %s (%s)  Max: %s (%s)\n", s.MinPrice.String(), signed(s.MinChangePct), s.MaxPrice.String(), signed(s.MaxChangePct)))
	builder.WriteString(fmt.Sprintf("Final: %s | Volatility: %.2f%% | Trend: %s\n", signed(s.FinalChangePct), s.Volatility, s.Trend))

	marks := make([]string, 0, len(s.Checkpoints))
	for _, cp := range s.Checkpoints {
		if !cp.Reached {
			marks = append(marks, fmt.Sprintf("+%s n/a", shortDuration(cp.Offset)))
			continue
		}
		marks = append(marks, fmt.Sprintf("+%s %s", shortDuration(cp.Offset), signed(cp.ChangePct)))
	}
	if len(marks) > 0 {
		builder.WriteString("Checkpoints: " + strings.Join(marks, ", ") + "\n")
	}
	builder.WriteString(fmt.Sprintf("Data points: %d | Session: %s", s.DataPoints, s.SessionID))

	return Notification{
		Kind:     KindSummary,
		Time:     s.ClosedAt,
		Pair:     s.Pair,
		Text:     builder.String(),
		Channels: channels,
	}
}

func signed(pct decimal.Decimal) string {
	if pct.Sign() > 0 {
		return "+" + pct.StringFixed(2) + "%"
	}
	return pct.StringFixed(2) + "%"
}

func shortDuration(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%dm", int(d/time.Minute))
	}
	return d.String()
}
