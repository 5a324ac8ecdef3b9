package window

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"price-move-alerts/internal/faults"
	"price-move-alerts/internal/market"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func sample(pair string, offsetSec int, price float64) market.Sample {
	return market.NewSample(pair, t0.Add(time.Duration(offsetSec)*time.Second), decimal.NewFromFloat(price))
}

func TestCurrentChangeUndefinedBelowTwoSamples(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Track("BTCUSDT", 5*time.Minute))

	_, ok := tr.CurrentChange("BTCUSDT")
	require.False(t, ok)

	require.NoError(t, tr.Ingest(sample("BTCUSDT", 0, 100)))
	change, ok := tr.CurrentChange("BTCUSDT")
	require.False(t, ok, "single sample must be undefined, not zero")
	require.True(t, change.IsZero())

	_, ok = tr.CurrentChange("ETHUSDT")
	require.False(t, ok)
}

func TestCurrentChangeScenario(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Track("BTCUSDT", 300*time.Second))

	require.NoError(t, tr.Ingest(sample("BTCUSDT", 0, 100)))
	require.NoError(t, tr.Ingest(sample("BTCUSDT", 60, 101)))
	require.NoError(t, tr.Ingest(sample("BTCUSDT", 300, 103)))

	require.Equal(t, 3, tr.Len("BTCUSDT"))
	change, ok := tr.CurrentChange("BTCUSDT")
	require.True(t, ok)
	require.True(t, change.Equal(decimal.NewFromInt(3)), "got %s", change)
}

func TestCurrentChangeMatchesFormula(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Track("SOLUSDT", time.Hour))

	prices := []float64{143.21, 150.02, 139.7, 141.113, 160.5, 158.25}
	for i, p := range prices {
		require.NoError(t, tr.Ingest(sample("SOLUSDT", i*30, p)))
		if i == 0 {
			continue
		}
		first := decimal.NewFromFloat(prices[0])
		last := decimal.NewFromFloat(p)
		want := last.Sub(first).Mul(decimal.NewFromInt(100)).Div(first)

		got, ok := tr.CurrentChange("SOLUSDT")
		require.True(t, ok)
		require.True(t, got.Equal(want), "step %d: want %s got %s", i, want, got)
	}
}

func TestEvictionKeepsWindowWithinLookback(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Track("BTCUSDT", 100*time.Second))

	for i := 0; i <= 20; i++ {
		s := sample("BTCUSDT", i*25, 100+float64(i))
		require.NoError(t, tr.Ingest(s))

		earliest, ok := tr.Earliest("BTCUSDT")
		require.True(t, ok)
		require.False(t, earliest.Time.Before(s.Time.Add(-100*time.Second)), "sample older than lookback kept")
	}

	// 500s latest, lookback 100s -> 400,425,450,475,500
	require.Equal(t, 5, tr.Len("BTCUSDT"))
	earliest, _ := tr.Earliest("BTCUSDT")
	require.Equal(t, t0.Add(400*time.Second), earliest.Time)
}

func TestIngestRejectsOutOfOrder(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Track("BTCUSDT", time.Minute))
	require.NoError(t, tr.Ingest(sample("BTCUSDT", 10, 100)))
	require.NoError(t, tr.Ingest(sample("BTCUSDT", 20, 101)))

	err := tr.Ingest(sample("BTCUSDT", 15, 500))
	require.Error(t, err)
	require.True(t, faults.IsDataQuality(err))

	require.Equal(t, 2, tr.Len("BTCUSDT"))
	latest, _ := tr.Latest("BTCUSDT")
	require.True(t, latest.Price.Equal(decimal.NewFromInt(101)))

	// equal timestamps are allowed (non-decreasing)
	require.NoError(t, tr.Ingest(sample("BTCUSDT", 20, 102)))
}

func TestIngestRejectsNonPositivePrice(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Track("BTCUSDT", time.Minute))

	err := tr.Ingest(sample("BTCUSDT", 0, 0))
	require.True(t, faults.IsDataQuality(err))
	require.Equal(t, 0, tr.Len("BTCUSDT"))
}

func TestIngestUnknownPair(t *testing.T) {
	tr := New()
	err := tr.Ingest(sample("DOGEUSDT", 0, 1))
	require.True(t, errors.Is(err, ErrUnknownPair))
}

func TestTrackValidation(t *testing.T) {
	tr := New()
	require.Error(t, tr.Track("", time.Minute))
	require.Error(t, tr.Track("BTCUSDT", 0))
	require.NoError(t, tr.Track("BTCUSDT", time.Minute))
	require.NoError(t, tr.Track("BTCUSDT", 2*time.Minute))
	require.Equal(t, 2*time.Minute, tr.Lookback("BTCUSDT"))
	require.Equal(t, 1, tr.Pairs())
}

func TestReset(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Track("BTCUSDT", time.Hour))
	require.NoError(t, tr.Ingest(sample("BTCUSDT", 0, 100)))
	last := sample("BTCUSDT", 10, 120)
	require.NoError(t, tr.Ingest(last))

	tr.Reset("BTCUSDT", last)
	require.Equal(t, []market.Sample{last}, tr.Samples("BTCUSDT"))
	_, ok := tr.CurrentChange("BTCUSDT")
	require.False(t, ok)
}
