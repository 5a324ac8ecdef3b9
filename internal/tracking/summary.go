package tracking

import (
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"price-move-alerts/internal/market"
)

var hundred = decimal.NewFromInt(100)

// Trend labels of a finished session.
const (
	TrendBullish = "bullish"
	TrendBearish = "bearish"
	TrendNeutral = "neutral"
)

// Checkpoint is the move from the start price as of start+Offset.
type Checkpoint struct {
	Offset    time.Duration   `json:"offset"`
	Reached   bool            `json:"reached"`
	Price     decimal.Decimal `json:"price"`
	ChangePct decimal.Decimal `json:"change_pct"`
}

// Summary is the terminal record of a tracking session.
type Summary struct {
	SessionID        string           `json:"session_id"`
	Pair             string           `json:"pair"`
	Direction        market.Direction `json:"direction"`
	TriggerChangePct decimal.Decimal  `json:"trigger_change_pct"`
	ThresholdPct     decimal.Decimal  `json:"threshold_pct"`
	Lookback         time.Duration    `json:"lookback"`

	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	ClosedAt       time.Time     `json:"closed_at"`
	Duration       time.Duration `json:"duration"`
	ActualDuration time.Duration `json:"actual_duration"`

	StartPrice decimal.Decimal `json:"start_price"`
	MinPrice   decimal.Decimal `json:"min_price"`
	MaxPrice   decimal.Decimal `json:"max_price"`
	ClosePrice decimal.Decimal `json:"close_price"`
	AvgPrice   decimal.Decimal `json:"avg_price"`

	FinalChangePct decimal.Decimal `json:"final_change_pct"`
	MaxChangePct   decimal.Decimal `json:"max_change_pct"`
	MinChangePct   decimal.Decimal `json:"min_change_pct"`
	AvgChangePct   decimal.Decimal `json:"avg_change_pct"`

	Checkpoints []Checkpoint `json:"checkpoints"`

	Volatility        float64 `json:"volatility_stdev"`
	Variance          float64 `json:"variance"`
	PositiveMoves     int     `json:"positive_moves"`
	NegativeMoves     int     `json:"negative_moves"`
	NeutralMoves      int     `json:"neutral_moves"`
	PositiveMoveRatio float64 `json:"positive_move_ratio"`
	Trend             string  `json:"trend"`
	DataPoints        int     `json:"data_points"`

	Points []PricePoint `json:"points"`
}

// Complete reports whether the session collected anything beyond the trigger point.
func (s Summary) Complete() bool {
	return s.DataPoints > 1
}

func summarize(s *Session, checkpoints []time.Duration, closedAt time.Time) Summary {
	points := append([]PricePoint(nil), s.Points...)
	start := s.Alert.TriggerPrice
	closing := points[len(points)-1]

	sum := decimal.Zero
	for _, p := range points {
		sum = sum.Add(p.Price)
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(points))))

	summary := Summary{
		SessionID:        s.ID,
		Pair:             s.Alert.Pair,
		Direction:        s.Alert.Direction,
		TriggerChangePct: s.Alert.ChangePct,
		ThresholdPct:     s.Alert.ThresholdPct,
		Lookback:         s.Alert.Lookback,
		StartTime:        s.Start,
		EndTime:          s.End,
		ClosedAt:         closedAt,
		Duration:         s.End.Sub(s.Start),
		ActualDuration:   closing.Time.Sub(s.Start),
		StartPrice:       start,
		MinPrice:         s.min,
		MaxPrice:         s.max,
		ClosePrice:       closing.Price,
		AvgPrice:         avg,
		FinalChangePct:   pct(start, closing.Price),
		MaxChangePct:     pct(start, s.max),
		MinChangePct:     pct(start, s.min),
		AvgChangePct:     pct(start, avg),
		DataPoints:       len(points),
		Points:           points,
	}

	summary.Checkpoints = make([]Checkpoint, 0, len(checkpoints))
	for _, offset := range checkpoints {
		summary.Checkpoints = append(summary.Checkpoints, checkpointAt(points, s.Start, offset, closedAt, start))
	}

	returns := make([]float64, 0, len(points))
	for i := 1; i < len(points); i++ {
		step := pct(points[i-1].Price, points[i].Price)
		returns = append(returns, step.InexactFloat64())
		switch step.Sign() {
		case 1:
			summary.PositiveMoves++
		case -1:
			summary.NegativeMoves++
		default:
			summary.NeutralMoves++
		}
	}
	if len(returns) > 1 {
		summary.Volatility = stat.StdDev(returns, nil)
		summary.Variance = stat.Variance(returns, nil)
	}
	if len(returns) > 0 {
		summary.PositiveMoveRatio = float64(summary.PositiveMoves) / float64(len(returns))
	}

	switch summary.FinalChangePct.Sign() {
	case 1:
		summary.Trend = TrendBullish
	case -1:
		summary.Trend = TrendBearish
	default:
		summary.Trend = TrendNeutral
	}

	return summary
}

// checkpointAt uses the latest point at or before the mark.
func checkpointAt(points []PricePoint, start time.Time, offset time.Duration, closedAt time.Time, startPrice decimal.Decimal) Checkpoint {
	mark := start.Add(offset)
	cp := Checkpoint{Offset: offset}
	if mark.After(closedAt) {
		return cp
	}
	price := points[0].Price
	for _, p := range points {
		if p.Time.After(mark) {
			break
		}
		price = p.Price
	}
	cp.Reached = true
	cp.Price = price
	cp.ChangePct = pct(startPrice, price)
	return cp
}

func pct(from, to decimal.Decimal) decimal.Decimal {
	if from.IsZero() {
		return decimal.Zero
	}
	return to.Sub(from).Mul(hundred).Div(from)
}
