package tracking

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"price-move-alerts/internal/market"
)

func TestAggregate(t *testing.T) {
	summaries := []Summary{
		{Pair: "BTCUSDT", Direction: market.DirectionUp, TriggerChangePct: decimal.NewFromInt(3), FinalChangePct: decimal.NewFromInt(2), DataPoints: 10},
		{Pair: "BTCUSDT", Direction: market.DirectionDown, TriggerChangePct: decimal.NewFromInt(-5), FinalChangePct: decimal.NewFromInt(-4), DataPoints: 8},
		{Pair: "BTCUSDT", Direction: market.DirectionUp, TriggerChangePct: decimal.NewFromInt(4), DataPoints: 1},
		{Pair: "ETHUSDT", Direction: market.DirectionUp, TriggerChangePct: decimal.NewFromInt(9), FinalChangePct: decimal.NewFromInt(7), DataPoints: 3},
	}

	stats := Aggregate("BTCUSDT", summaries)
	require.Equal(t, 3, stats.Total)
	require.Equal(t, 2, stats.Up)
	require.Equal(t, 1, stats.Down)
	require.InDelta(t, 4.0, stats.AvgTriggerPct, 1e-9)
	require.Equal(t, 2, stats.Completed)
	require.True(t, stats.HasFinal())
	require.InDelta(t, -1.0, stats.AvgFinalPct, 1e-9)
	require.InDelta(t, 2.0, stats.BestFinalPct, 1e-9)
	require.InDelta(t, -4.0, stats.WorstFinalPct, 1e-9)
}

func TestAggregateEmpty(t *testing.T) {
	stats := Aggregate("XRPUSDT", nil)
	require.Zero(t, stats.Total)
	require.False(t, stats.HasFinal())
}

func TestGroupByPair(t *testing.T) {
	groups := GroupByPair([]Summary{{Pair: "A", SessionID: "1"}, {Pair: "B"}, {Pair: "A", SessionID: "2"}})
	require.Len(t, groups, 2)
	require.Equal(t, "1", groups["A"][0].SessionID)
	require.Equal(t, "2", groups["A"][1].SessionID)
}
