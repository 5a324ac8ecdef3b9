package tracking

import (
	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"price-move-alerts/internal/market"
)

// Stats aggregates the summaries of one pair.
type Stats struct {
	Pair          string
	Total         int
	Up            int
	Down          int
	AvgTriggerPct float64
	Completed     int
	AvgFinalPct   float64
	BestFinalPct  float64
	WorstFinalPct float64
}

// HasFinal reports whether any completed session contributed final-change figures.
func (s Stats) HasFinal() bool {
	return s.Completed > 0
}

// Aggregate computes per-pair statistics over the given summaries; summaries of
// other pairs are ignored.
func Aggregate(pair string, summaries []Summary) Stats {
	own := lo.Filter(summaries, func(s Summary, _ int) bool { return s.Pair == pair })
	stats := Stats{Pair: pair, Total: len(own)}
	if len(own) == 0 {
		return stats
	}

	triggers := make([]float64, 0, len(own))
	for _, s := range own {
		switch s.Direction {
		case market.DirectionUp:
			stats.Up++
		case market.DirectionDown:
			stats.Down++
		}
		triggers = append(triggers, s.TriggerChangePct.Abs().InexactFloat64())
	}
	stats.AvgTriggerPct = stat.Mean(triggers, nil)

	completed := lo.Filter(own, func(s Summary, _ int) bool { return s.Complete() })
	stats.Completed = len(completed)
	if len(completed) == 0 {
		return stats
	}

	finals := lo.Map(completed, func(s Summary, _ int) float64 { return s.FinalChangePct.InexactFloat64() })
	stats.AvgFinalPct = stat.Mean(finals, nil)
	stats.BestFinalPct = floats.Max(finals)
	stats.WorstFinalPct = floats.Min(finals)
	return stats
}

// GroupByPair buckets summaries by pair, preserving input order within a bucket.
func GroupByPair(summaries []Summary) map[string][]Summary {
	return lo.GroupBy(summaries, func(s Summary) string { return s.Pair })
}
