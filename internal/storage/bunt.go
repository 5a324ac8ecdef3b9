package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/buntdb"

	"price-move-alerts/internal/tracking"
)

const (
	alertPrefix   = "alert:"
	summaryPrefix = "summary:"
	alertSeqKey   = "meta:alert_seq"

	alertsByTime      = "alerts_by_time"
	summariesByStart  = "summaries_by_start"
	memoryBuntStorage = ":memory:"
)

type alertDoc struct {
	AlertRecord
	TriggeredUnix int64 `json:"triggered_unix"`
}

type summaryDoc struct {
	tracking.Summary
	StartedUnix int64 `json:"started_unix"`
}

// BuntStore is the embedded file-backed repository.
type BuntStore struct {
	db  *buntdb.DB
	now func() time.Time
}

// OpenBunt opens (or creates) a buntdb file. An empty path keeps everything in memory.
func OpenBunt(path string) (*BuntStore, error) {
	if strings.TrimSpace(path) == "" {
		path = memoryBuntStorage
	} else if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create buntdb dir: %w", err)
		}
	}

	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	if err := db.SetConfig(buntdb.Config{
		SyncPolicy:           buntdb.EverySecond,
		AutoShrinkPercentage: 100,
		AutoShrinkMinSize:    32 * 1024 * 1024,
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure buntdb: %w", err)
	}

	if err := db.CreateIndex(alertsByTime, alertPrefix+"*", buntdb.IndexJSON("triggered_unix")); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create index %s: %w", alertsByTime, err)
	}
	if err := db.CreateIndex(summariesByStart, summaryPrefix+"*", buntdb.IndexJSON("started_unix")); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create index %s: %w", summariesByStart, err)
	}

	return &BuntStore{db: db, now: time.Now}, nil
}

// Close flushes and closes the database.
func (b *BuntStore) Close() {
	if b == nil || b.db == nil {
		return
	}
	_ = b.db.Close()
}

// InsertAlert stores an alert under a monotonically increasing id.
func (b *BuntStore) InsertAlert(_ context.Context, alert AlertRecord) (AlertRecord, error) {
	rec := alert
	err := b.db.Update(func(tx *buntdb.Tx) error {
		id, err := nextSeq(tx, alertSeqKey)
		if err != nil {
			return err
		}
		rec.ID = id
		rec.CreatedAt = b.now().UTC()

		content, err := json.Marshal(alertDoc{AlertRecord: rec, TriggeredUnix: rec.TriggeredAt.Unix()})
		if err != nil {
			return fmt.Errorf("failed to marshal alert: %w", err)
		}
		if _, _, err := tx.Set(alertKey(id), string(content), nil); err != nil {
			return fmt.Errorf("failed to store alert: %w", err)
		}
		return nil
	})
	if err != nil {
		return AlertRecord{}, err
	}
	return rec, nil
}

// ListRecentAlerts returns up to limit alerts, newest first.
func (b *BuntStore) ListRecentAlerts(_ context.Context, limit int) ([]AlertRecord, error) {
	alerts := make([]AlertRecord, 0)
	var decodeErr error
	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.Descend(alertsByTime, func(key, value string) bool {
			var doc alertDoc
			if err := json.Unmarshal([]byte(value), &doc); err != nil {
				decodeErr = fmt.Errorf("decode %s: %w", key, err)
				return false
			}
			alerts = append(alerts, doc.AlertRecord)
			return limit <= 0 || len(alerts) < limit
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return alerts, nil
}

// DeleteAlertsBefore removes alerts triggered before olderThan.
func (b *BuntStore) DeleteAlertsBefore(_ context.Context, olderThan time.Time) error {
	pivot := fmt.Sprintf(`{"triggered_unix":%d}`, olderThan.Unix())
	return b.db.Update(func(tx *buntdb.Tx) error {
		var keys []string
		if err := tx.AscendLessThan(alertsByTime, pivot, func(key, _ string) bool {
			keys = append(keys, key)
			return true
		}); err != nil {
			return fmt.Errorf("failed to scan alerts: %w", err)
		}
		for _, key := range keys {
			if _, err := tx.Delete(key); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return fmt.Errorf("failed to delete %s: %w", key, err)
			}
		}
		return nil
	})
}

// SaveSummary upserts a finished tracking session.
func (b *BuntStore) SaveSummary(_ context.Context, summary tracking.Summary) error {
	if summary.SessionID == "" {
		return errors.New("summary has no session id")
	}
	content, err := json.Marshal(summaryDoc{Summary: summary, StartedUnix: summary.StartTime.Unix()})
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	return b.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(summaryPrefix+summary.SessionID, string(content), nil); err != nil {
			return fmt.Errorf("failed to store summary: %w", err)
		}
		return nil
	})
}

// ListSummaries walks the start-time index newest first.
func (b *BuntStore) ListSummaries(_ context.Context, filter SummaryFilter) ([]tracking.Summary, error) {
	pair := strings.ToUpper(strings.TrimSpace(filter.Pair))
	summaries := make([]tracking.Summary, 0)
	var decodeErr error

	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.Descend(summariesByStart, func(key, value string) bool {
			var doc summaryDoc
			if err := json.Unmarshal([]byte(value), &doc); err != nil {
				decodeErr = fmt.Errorf("decode %s: %w", key, err)
				return false
			}
			if !filter.Since.IsZero() && doc.StartTime.Before(filter.Since) {
				return false
			}
			if pair != "" && doc.Pair != pair {
				return true
			}
			summaries = append(summaries, doc.Summary)
			return filter.Limit <= 0 || len(summaries) < filter.Limit
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return summaries, nil
}

// GetSummary loads one session by id.
func (b *BuntStore) GetSummary(_ context.Context, sessionID string) (tracking.Summary, error) {
	var doc summaryDoc
	err := b.db.View(func(tx *buntdb.Tx) error {
		value, err := tx.Get(summaryPrefix + sessionID)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(value), &doc)
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return tracking.Summary{}, fmt.Errorf("summary %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return tracking.Summary{}, fmt.Errorf("failed to load summary: %w", err)
	}
	return doc.Summary, nil
}

func nextSeq(tx *buntdb.Tx, key string) (int64, error) {
	var current int64
	value, err := tx.Get(key)
	switch {
	case errors.Is(err, buntdb.ErrNotFound):
	case err != nil:
		return 0, err
	default:
		if current, err = strconv.ParseInt(value, 10, 64); err != nil {
			return 0, fmt.Errorf("corrupt sequence %s: %w", key, err)
		}
	}
	current++
	if _, _, err := tx.Set(key, strconv.FormatInt(current, 10), nil); err != nil {
		return 0, err
	}
	return current, nil
}

func alertKey(id int64) string {
	return fmt.Sprintf("%s%020d", alertPrefix, id)
}

var _ Repository = (*BuntStore)(nil)
