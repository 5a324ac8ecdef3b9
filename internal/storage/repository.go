package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"price-move-alerts/internal/tracking"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("storage: not found")
)

const (
	schemaSQL = `CREATE TABLE IF NOT EXISTS alerts (
        id               BIGSERIAL PRIMARY KEY,
        pair             TEXT        NOT NULL,
        triggered_at     TIMESTAMPTZ NOT NULL,
        direction        TEXT        NOT NULL,
        change_pct       NUMERIC     NOT NULL,
        threshold_pct    NUMERIC     NOT NULL,
        trigger_price    NUMERIC     NOT NULL,
        lookback_seconds BIGINT      NOT NULL,
        channels         TEXT[]      NOT NULL DEFAULT '{}',
        created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
        UNIQUE (pair, triggered_at, direction)
    );
    CREATE TABLE IF NOT EXISTS tracking_summaries (
        session_id       TEXT PRIMARY KEY,
        pair             TEXT        NOT NULL,
        direction        TEXT        NOT NULL,
        start_time       TIMESTAMPTZ NOT NULL,
        final_change_pct NUMERIC     NOT NULL,
        payload          JSONB       NOT NULL,
        created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS tracking_summaries_pair_start_idx
        ON tracking_summaries (pair, start_time DESC);`

	insertAlertSQL = `INSERT INTO alerts (
        pair,
        triggered_at,
        direction,
        change_pct,
        threshold_pct,
        trigger_price,
        lookback_seconds,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (pair, triggered_at, direction) DO UPDATE
    SET change_pct    = EXCLUDED.change_pct,
        threshold_pct = EXCLUDED.threshold_pct,
        trigger_price = EXCLUDED.trigger_price,
        channels      = EXCLUDED.channels
    RETURNING id, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        pair,
        triggered_at,
        direction,
        change_pct::text,
        threshold_pct::text,
        trigger_price::text,
        lookback_seconds,
        channels,
        created_at
    FROM alerts
    ORDER BY triggered_at DESC, id DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE triggered_at < $1;`

	upsertSummarySQL = `INSERT INTO tracking_summaries (
        session_id,
        pair,
        direction,
        start_time,
        final_change_pct,
        payload
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (session_id) DO UPDATE
    SET final_change_pct = EXCLUDED.final_change_pct,
        payload          = EXCLUDED.payload;`

	listSummariesSQL = `SELECT payload
    FROM tracking_summaries
    WHERE ($1 = '' OR pair = $1)
      AND start_time >= $2
    ORDER BY start_time DESC
    LIMIT $3;`

	getSummarySQL = `SELECT payload FROM tracking_summaries WHERE session_id = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// SummaryStore persists finished tracking sessions.
type SummaryStore interface {
	SaveSummary(ctx context.Context, summary tracking.Summary) error
	ListSummaries(ctx context.Context, filter SummaryFilter) ([]tracking.Summary, error)
	GetSummary(ctx context.Context, sessionID string) (tracking.Summary, error)
}

// Repository is the full persistence surface used by the service and CLI.
type Repository interface {
	AlertStore
	SummaryStore
	Close()
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the PostgreSQL repository.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates the tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// a failed unlock is released with the connection anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	channels := alert.Channels
	if channels == nil {
		channels = []string{}
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.Pair,
		alert.TriggeredAt,
		alert.Direction,
		alert.ChangePct.String(),
		alert.ThresholdPct.String(),
		alert.TriggerPrice.String(),
		int64(alert.Lookback/time.Second),
		channels,
	)

	rec := alert
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

// SaveSummary upserts a finished tracking session keyed by its session id.
func (s *Store) SaveSummary(ctx context.Context, summary tracking.Summary) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	if _, execErr := pool.Exec(ctx, upsertSummarySQL,
		summary.SessionID,
		summary.Pair,
		string(summary.Direction),
		summary.StartTime,
		summary.FinalChangePct.String(),
		payload,
	); execErr != nil {
		return fmt.Errorf("upsert summary: %w", execErr)
	}
	return nil
}

// ListSummaries returns summaries newest first.
func (s *Store) ListSummaries(ctx context.Context, filter SummaryFilter) ([]tracking.Summary, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	// LIMIT NULL is unbounded in postgres.
	var limit any
	if filter.Limit > 0 {
		limit = filter.Limit
	}

	rows, queryErr := pool.Query(ctx, listSummariesSQL, filter.Pair, filter.Since.UTC(), limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list summaries: %w", queryErr)
	}
	defer rows.Close()

	summaries := make([]tracking.Summary, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var summary tracking.Summary
		if err := json.Unmarshal(payload, &summary); err != nil {
			return nil, fmt.Errorf("decode summary payload: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return summaries, nil
}

// GetSummary loads a single session by id.
func (s *Store) GetSummary(ctx context.Context, sessionID string) (tracking.Summary, error) {
	pool, err := s.getPool()
	if err != nil {
		return tracking.Summary{}, err
	}

	var payload []byte
	if scanErr := pool.QueryRow(ctx, getSummarySQL, sessionID).Scan(&payload); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return tracking.Summary{}, fmt.Errorf("summary %s: %w", sessionID, ErrNotFound)
		}
		return tracking.Summary{}, fmt.Errorf("get summary: %w", scanErr)
	}

	var summary tracking.Summary
	if err := json.Unmarshal(payload, &summary); err != nil {
		return tracking.Summary{}, fmt.Errorf("decode summary payload: %w", err)
	}
	return summary, nil
}

func scanAlert(rows pgx.Rows) (AlertRecord, error) {
	var (
		rec                               AlertRecord
		changeStr, thresholdStr, priceStr string
		lookbackSeconds                   int64
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.Pair,
		&rec.TriggeredAt,
		&rec.Direction,
		&changeStr,
		&thresholdStr,
		&priceStr,
		&lookbackSeconds,
		&rec.Channels,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	var err error
	if rec.ChangePct, err = decimal.NewFromString(changeStr); err != nil {
		return AlertRecord{}, fmt.Errorf("parse change pct: %w", err)
	}
	if rec.ThresholdPct, err = decimal.NewFromString(thresholdStr); err != nil {
		return AlertRecord{}, fmt.Errorf("parse threshold pct: %w", err)
	}
	if rec.TriggerPrice, err = decimal.NewFromString(priceStr); err != nil {
		return AlertRecord{}, fmt.Errorf("parse trigger price: %w", err)
	}
	rec.Lookback = time.Duration(lookbackSeconds) * time.Second
	return rec, nil
}

var (
	_ Repository     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
