package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"price-move-alerts/internal/market"
	"price-move-alerts/internal/tracking"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newMemoryStore(t *testing.T) *BuntStore {
	t.Helper()
	store, err := OpenBunt("")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func alertAt(pair string, ts time.Time) AlertRecord {
	return NewAlertRecord(market.Alert{
		Pair:         pair,
		Time:         ts,
		Direction:    market.DirectionUp,
		ChangePct:    decimal.NewFromInt(3),
		TriggerPrice: decimal.NewFromInt(103),
		ThresholdPct: decimal.NewFromInt(2),
		Lookback:     5 * time.Minute,
	}, []string{"log"})
}

func summaryAt(pair string, start time.Time, final int64) tracking.Summary {
	return tracking.Summary{
		SessionID:      tracking.SessionID(pair, start),
		Pair:           pair,
		Direction:      market.DirectionUp,
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
		StartPrice:     decimal.NewFromInt(100),
		ClosePrice:     decimal.NewFromInt(100 + final),
		FinalChangePct: decimal.NewFromInt(final),
		DataPoints:     2,
	}
}

func TestBuntAlerts(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)

	first, err := store.InsertAlert(ctx, alertAt("BTCUSDT", base))
	require.NoError(t, err)
	second, err := store.InsertAlert(ctx, alertAt("ETHUSDT", base.Add(time.Hour)))
	require.NoError(t, err)
	require.Equal(t, int64(1), first.ID)
	require.Equal(t, int64(2), second.ID)

	recent, err := store.ListRecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "ETHUSDT", recent[0].Pair)
	require.True(t, recent[1].ChangePct.Equal(decimal.NewFromInt(3)))
	require.Equal(t, 5*time.Minute, recent[1].Lookback)

	limited, err := store.ListRecentAlerts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	require.NoError(t, store.DeleteAlertsBefore(ctx, base.Add(30*time.Minute)))
	recent, err = store.ListRecentAlerts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "ETHUSDT", recent[0].Pair)
}

func TestBuntSummaries(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)

	require.NoError(t, store.SaveSummary(ctx, summaryAt("BTCUSDT", base, 1)))
	require.NoError(t, store.SaveSummary(ctx, summaryAt("ETHUSDT", base.Add(2*time.Hour), -2)))
	require.NoError(t, store.SaveSummary(ctx, summaryAt("BTCUSDT", base.Add(4*time.Hour), 3)))

	all, err := store.ListSummaries(ctx, SummaryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.True(t, base.Add(4*time.Hour).Equal(all[0].StartTime))

	btc, err := store.ListSummaries(ctx, SummaryFilter{Pair: "btcusdt"})
	require.NoError(t, err)
	require.Len(t, btc, 2)

	recent, err := store.ListSummaries(ctx, SummaryFilter{Since: base.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, recent, 2)

	limited, err := store.ListSummaries(ctx, SummaryFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)

	got, err := store.GetSummary(ctx, tracking.SessionID("ETHUSDT", base.Add(2*time.Hour)))
	require.NoError(t, err)
	require.True(t, got.FinalChangePct.Equal(decimal.NewFromInt(-2)))

	_, err = store.GetSummary(ctx, "NOPE_20240101_000000")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestBuntSummaryUpsert(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)

	summary := summaryAt("BTCUSDT", base, 1)
	require.NoError(t, store.SaveSummary(ctx, summary))
	summary.FinalChangePct = decimal.NewFromInt(5)
	require.NoError(t, store.SaveSummary(ctx, summary))

	all, err := store.ListSummaries(ctx, SummaryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.True(t, all[0].FinalChangePct.Equal(decimal.NewFromInt(5)))
}

func TestBuntPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "movewatch.db")

	store, err := OpenBunt(path)
	require.NoError(t, err)
	_, err = store.InsertAlert(ctx, alertAt("BTCUSDT", base))
	require.NoError(t, err)
	require.NoError(t, store.SaveSummary(ctx, summaryAt("BTCUSDT", base, 2)))
	store.Close()

	reopened, err := OpenBunt(path)
	require.NoError(t, err)
	defer reopened.Close()

	next, err := reopened.InsertAlert(ctx, alertAt("BTCUSDT", base.Add(time.Hour)))
	require.NoError(t, err)
	require.Equal(t, int64(2), next.ID)

	summaries, err := reopened.ListSummaries(ctx, SummaryFilter{Pair: "BTCUSDT"})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
}

func TestPostgresStoreNotConfigured(t *testing.T) {
	var store *Store
	_, err := store.ListRecentAlerts(context.Background(), 1)
	require.ErrorIs(t, err, ErrNotConfigured)
	require.ErrorIs(t, store.SaveSummary(context.Background(), tracking.Summary{}), ErrNotConfigured)
}
