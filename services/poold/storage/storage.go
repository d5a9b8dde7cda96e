package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"

	"assetpool/core/events"
)

// Storage is the poold audit store: every emitted notification plus the raw
// and aggregated feeder observations.
type Storage struct {
	db *sql.DB
}

var (
	// ErrPathRequired is returned when the backing store path is missing.
	ErrPathRequired = errors.New("poold storage path must be configured")
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("poold storage: not found")
)

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(dsn string) (*Storage, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Storage) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage not configured")
	}
	return s.db.PingContext(ctx)
}

// StoredEvent is a notification record as persisted.
type StoredEvent struct {
	ID         string
	Record     events.Record
	RecordedAt time.Time
}

// RecordEvent persists a notification. Re-delivery of the same id is
// ignored.
func (s *Storage) RecordEvent(ctx context.Context, id string, rec events.Record, recorded time.Time) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	amounts, err := json.Marshal(rec.Amounts)
	if err != nil {
		return fmt.Errorf("encode amounts: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO events(id, kind, actor, amounts, event_ts, recorded_at)
        VALUES(?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO NOTHING
    `, id, rec.Kind, rec.Actor, string(amounts), int64(rec.Timestamp), recorded.UTC())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// EventFilter narrows ListEvents.
type EventFilter struct {
	Kind  string
	Actor string
	Limit int
}

// ListEvents returns the newest matching events first.
func (s *Storage) ListEvents(ctx context.Context, filter EventFilter) ([]StoredEvent, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT id, kind, actor, amounts, event_ts, recorded_at FROM events WHERE 1=1`
	args := make([]any, 0, 3)
	if kind := strings.TrimSpace(filter.Kind); kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	if actor := strings.TrimSpace(filter.Actor); actor != "" {
		query += ` AND actor = ?`
		args = append(args, actor)
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	out := make([]StoredEvent, 0)
	for rows.Next() {
		var (
			ev      StoredEvent
			amounts string
			ts      int64
		)
		if err := rows.Scan(&ev.ID, &ev.Record.Kind, &ev.Record.Actor, &amounts, &ts, &ev.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(amounts), &ev.Record.Amounts); err != nil {
			return nil, fmt.Errorf("decode amounts of %s: %w", ev.ID, err)
		}
		ev.Record.Timestamp = uint64(ts)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// RecordSample persists a raw feeder observation. Rates are stored as
// decimal strings.
func (s *Storage) RecordSample(ctx context.Context, base, quote, source, rate string, observed, recorded time.Time) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if strings.TrimSpace(rate) == "" {
		return fmt.Errorf("sample missing rate")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO oracle_samples(pair, source, rate, observed_at, recorded_at)
        VALUES(?, ?, ?, ?, ?)
    `, pairKey(base, quote), strings.ToLower(source), rate, observed.UTC().Unix(), recorded.UTC())
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// Snapshot captures an aggregated median and the fixed-point price published
// from it.
type Snapshot struct {
	MedianRate     string
	Price          uint64
	Feeders        []string
	ProofID        string
	ObservedAtUnix int64
	RecordedAt     time.Time
}

// RecordSnapshot stores the aggregated median snapshot.
func (s *Storage) RecordSnapshot(ctx context.Context, base, quote string, snap Snapshot) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	recorded := snap.RecordedAt
	if recorded.IsZero() {
		recorded = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO oracle_snapshots(pair, median_rate, price, feeders, proof_id, observed_at, recorded_at)
        VALUES(?, ?, ?, ?, ?, ?, ?)
    `, pairKey(base, quote), strings.TrimSpace(snap.MedianRate), int64(snap.Price), strings.Join(snap.Feeders, ","), snap.ProofID, snap.ObservedAtUnix, recorded.UTC())
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent aggregated median for the pair.
func (s *Storage) LatestSnapshot(ctx context.Context, base, quote string) (Snapshot, error) {
	result := Snapshot{}
	if s == nil {
		return result, fmt.Errorf("storage not configured")
	}
	row := s.db.QueryRowContext(ctx, `
        SELECT median_rate, price, feeders, proof_id, observed_at, recorded_at
        FROM oracle_snapshots
        WHERE pair = ?
        ORDER BY id DESC
        LIMIT 1
    `, pairKey(base, quote))
	var (
		feeders string
		price   int64
	)
	if err := row.Scan(&result.MedianRate, &price, &feeders, &result.ProofID, &result.ObservedAtUnix, &result.RecordedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, ErrNotFound
		}
		return result, fmt.Errorf("query snapshot: %w", err)
	}
	result.Price = uint64(price)
	if feeders != "" {
		result.Feeders = strings.Split(feeders, ",")
	}
	return result, nil
}

func pairKey(base, quote string) string {
	return strings.ToUpper(strings.TrimSpace(base)) + "/" + strings.ToUpper(strings.TrimSpace(quote))
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    kind TEXT NOT NULL,
    actor TEXT NOT NULL,
    amounts TEXT NOT NULL,
    event_ts INTEGER NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind, seq);
CREATE INDEX IF NOT EXISTS idx_events_actor ON events(actor, seq);

CREATE TABLE IF NOT EXISTS oracle_samples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    pair TEXT NOT NULL,
    source TEXT NOT NULL,
    rate TEXT NOT NULL,
    observed_at INTEGER NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_oracle_samples_pair_ts ON oracle_samples(pair, observed_at);

CREATE TABLE IF NOT EXISTS oracle_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    pair TEXT NOT NULL,
    median_rate TEXT NOT NULL,
    price INTEGER NOT NULL,
    feeders TEXT NOT NULL,
    proof_id TEXT NOT NULL,
    observed_at INTEGER NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_oracle_snapshots_pair_ts ON oracle_snapshots(pair, observed_at);
`
