package tracking

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"price-move-alerts/internal/faults"
	"price-move-alerts/internal/market"
)

var t0 = time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)

func upAlert(pair string, at time.Time, price float64) market.Alert {
	return market.Alert{
		Pair:         pair,
		Time:         at,
		Direction:    market.DirectionUp,
		ChangePct:    decimal.NewFromFloat(3.5),
		TriggerPrice: decimal.NewFromFloat(price),
		ThresholdPct: decimal.NewFromInt(3),
		Lookback:     15 * time.Minute,
	}
}

func obs(pair string, offset time.Duration, price float64) market.Sample {
	return market.NewSample(pair, t0.Add(offset), decimal.NewFromFloat(price))
}

func TestLifecycleIdleActiveFinalized(t *testing.T) {
	tr := New(Options{})
	require.Equal(t, StateIdle, tr.State("BTCUSDT"))
	require.Equal(t, time.Hour, tr.Duration())

	require.True(t, tr.Open(upAlert("BTCUSDT", t0, 100)))
	require.Equal(t, StateActive, tr.State("BTCUSDT"))
	require.Equal(t, []string{"BTCUSDT"}, tr.Active())

	session, ok := tr.Session("BTCUSDT")
	require.True(t, ok)
	require.Equal(t, "BTCUSDT_20250602_093000", session.ID)
	require.Equal(t, t0.Add(time.Hour), session.End)

	_, done, err := tr.Observe(obs("BTCUSDT", 10*time.Minute, 101))
	require.NoError(t, err)
	require.False(t, done)

	summary, done, err := tr.Observe(obs("BTCUSDT", time.Hour, 150))
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, StateIdle, tr.State("BTCUSDT"))
	require.Empty(t, tr.Active())

	// the finalizing sample is not part of the session
	require.True(t, summary.ClosePrice.Equal(decimal.NewFromInt(101)))
	require.Equal(t, 2, summary.DataPoints)
	require.Equal(t, time.Hour, summary.Duration)
}

func TestSecondAlertDoesNotOpenSecondSession(t *testing.T) {
	tr := New(Options{Duration: 30 * time.Minute})
	first := upAlert("ETHUSDT", t0, 2000)
	require.True(t, tr.Open(first))

	second := upAlert("ETHUSDT", t0.Add(5*time.Minute), 2100)
	require.False(t, tr.Open(second))

	session, _ := tr.Session("ETHUSDT")
	require.Equal(t, first.Time, session.Start)
	require.True(t, session.Alert.TriggerPrice.Equal(decimal.NewFromInt(2000)))
	require.Len(t, tr.Active(), 1)

	// other pairs are independent
	require.True(t, tr.Open(upAlert("BTCUSDT", t0, 100)))
	require.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, tr.Active())
}

func TestReopenAfterFinalize(t *testing.T) {
	tr := New(Options{Duration: 10 * time.Minute})
	require.True(t, tr.Open(upAlert("BTCUSDT", t0, 100)))
	summaries := tr.Expire(t0.Add(10 * time.Minute))
	require.Len(t, summaries, 1)
	require.True(t, tr.Open(upAlert("BTCUSDT", t0.Add(11*time.Minute), 110)))
}

func TestSummaryMinMaxClose(t *testing.T) {
	tr := New(Options{})
	require.True(t, tr.Open(upAlert("BTCUSDT", t0, 100)))

	prices := []float64{101, 97, 104, 99.5, 102}
	for i, p := range prices {
		_, done, err := tr.Observe(obs("BTCUSDT", time.Duration(i+1)*10*time.Minute, p))
		require.NoError(t, err)
		require.False(t, done)
	}

	summaries := tr.Expire(t0.Add(time.Hour))
	require.Len(t, summaries, 1)
	s := summaries[0]

	require.True(t, s.MinPrice.Equal(decimal.NewFromInt(97)))
	require.True(t, s.MaxPrice.Equal(decimal.NewFromInt(104)))
	require.True(t, s.ClosePrice.Equal(decimal.NewFromInt(102)))
	for _, p := range s.Points {
		require.True(t, s.MinPrice.LessThanOrEqual(p.Price))
		require.True(t, s.MaxPrice.GreaterThanOrEqual(p.Price))
	}

	require.True(t, s.StartPrice.Equal(decimal.NewFromInt(100)))
	require.True(t, s.FinalChangePct.Equal(decimal.NewFromInt(2)))
	require.True(t, s.MaxChangePct.Equal(decimal.NewFromInt(4)))
	require.True(t, s.MinChangePct.Equal(decimal.NewFromInt(-3)))
	require.Equal(t, TrendBullish, s.Trend)
	require.Equal(t, 6, s.DataPoints)
	require.Equal(t, 3, s.PositiveMoves)
	require.Equal(t, 2, s.NegativeMoves)
	require.Equal(t, 0, s.NeutralMoves)
	require.Greater(t, s.Volatility, 0.0)
	require.InDelta(t, s.Volatility*s.Volatility, s.Variance, 1e-9)
	require.Equal(t, 50*time.Minute, s.ActualDuration)
	require.Equal(t, market.DirectionUp, s.Direction)
	require.Equal(t, 15*time.Minute, s.Lookback)
}

func TestCheckpoints(t *testing.T) {
	tr := New(Options{Duration: time.Hour, Checkpoints: []time.Duration{30 * time.Minute, 5 * time.Minute, 15 * time.Minute, 60 * time.Minute}})
	require.True(t, tr.Open(upAlert("BTCUSDT", t0, 100)))

	_, _, err := tr.Observe(obs("BTCUSDT", 4*time.Minute, 101))
	require.NoError(t, err)
	_, _, err = tr.Observe(obs("BTCUSDT", 5*time.Minute, 105))
	require.NoError(t, err)
	_, _, err = tr.Observe(obs("BTCUSDT", 20*time.Minute, 90))
	require.NoError(t, err)

	summaries := tr.Expire(t0.Add(time.Hour))
	require.Len(t, summaries, 1)
	cps := summaries[0].Checkpoints
	require.Len(t, cps, 4)

	require.Equal(t, 5*time.Minute, cps[0].Offset)
	require.True(t, cps[0].Reached)
	require.True(t, cps[0].Price.Equal(decimal.NewFromInt(105)))
	require.True(t, cps[0].ChangePct.Equal(decimal.NewFromInt(5)))

	require.Equal(t, 15*time.Minute, cps[1].Offset)
	require.True(t, cps[1].Price.Equal(decimal.NewFromInt(105)))

	require.Equal(t, 30*time.Minute, cps[2].Offset)
	require.True(t, cps[2].Price.Equal(decimal.NewFromInt(90)))
	require.True(t, cps[2].ChangePct.Equal(decimal.NewFromInt(-10)))

	require.True(t, cps[3].Reached)
	require.True(t, cps[3].Price.Equal(decimal.NewFromInt(90)))
}

func TestCheckpointNotReachedBeforeClose(t *testing.T) {
	tr := New(Options{Duration: 10 * time.Minute, Checkpoints: []time.Duration{5 * time.Minute, 30 * time.Minute}})
	require.True(t, tr.Open(upAlert("BTCUSDT", t0, 100)))
	s := tr.Expire(t0.Add(10 * time.Minute))[0]

	require.True(t, s.Checkpoints[0].Reached)
	require.False(t, s.Checkpoints[1].Reached)
	require.False(t, s.Complete())
	require.Equal(t, TrendNeutral, s.Trend)
	require.Zero(t, s.Volatility)
}

func TestExpireOnlyDueSessions(t *testing.T) {
	tr := New(Options{Duration: 10 * time.Minute})
	require.True(t, tr.Open(upAlert("AAAUSDT", t0, 1)))
	require.True(t, tr.Open(upAlert("BBBUSDT", t0.Add(5*time.Minute), 1)))

	require.Empty(t, tr.Expire(t0.Add(9*time.Minute)))
	done := tr.Expire(t0.Add(12 * time.Minute))
	require.Len(t, done, 1)
	require.Equal(t, "AAAUSDT", done[0].Pair)
	require.Equal(t, StateActive, tr.State("BBBUSDT"))
}

func TestObserveWithoutSessionAndBadSamples(t *testing.T) {
	tr := New(Options{})
	_, done, err := tr.Observe(obs("BTCUSDT", 0, 100))
	require.NoError(t, err)
	require.False(t, done)

	require.True(t, tr.Open(upAlert("BTCUSDT", t0.Add(time.Minute), 100)))
	_, _, err = tr.Observe(obs("BTCUSDT", 0, 100))
	require.True(t, faults.IsDataQuality(err))

	_, _, err = tr.Observe(obs("BTCUSDT", 2*time.Minute, 0))
	require.True(t, faults.IsDataQuality(err))

	session, _ := tr.Session("BTCUSDT")
	require.Len(t, session.Points, 1)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "idle", StateIdle.String())
	require.Equal(t, "active", StateActive.String())
	require.Equal(t, "finalized", StateFinalized.String())
}
