// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	apperrors "optpnl/internal/errors"
	"optpnl/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The refresher writes snapshots from several goroutines.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:  db,
		now: time.Now,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Normalised option snapshots keyed by security description
	CREATE TABLE IF NOT EXISTS snapshots (
		security TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	-- Scenario run history
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		ticker TEXT NOT NULL,
		source TEXT,
		spot REAL NOT NULL,
		legs INTEGER NOT NULL,
		excluded INTEGER NOT NULL,
		intervals INTEGER NOT NULL,
		dates TEXT NOT NULL,
		computed_total REAL NOT NULL,
		net_premium REAL NOT NULL,
		premium_override REAL,
		max_pnl REAL,
		payout TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_updated ON snapshots(updated_at);
	CREATE INDEX IF NOT EXISTS idx_runs_ticker ON runs(ticker);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot inserts or replaces the snapshot for key.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, key string, snap models.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return apperrors.NewDataError("snapshot", key, "encoding", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (security, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(security) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		key, string(payload), s.now().UTC())
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrDatabaseError, "saving snapshot %s: %v", key, err)
	}
	return nil
}

// GetSnapshot returns the snapshot for key and when it was stored.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, key string) (models.Snapshot, time.Time, error) {
	var payload string
	var updated time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, updated_at FROM snapshots WHERE security = ?`, key,
	).Scan(&payload, &updated)
	if err == sql.ErrNoRows {
		return models.Snapshot{}, time.Time{}, apperrors.NewDataError("snapshot", key, "not cached", apperrors.ErrSnapshotNotFound)
	}
	if err != nil {
		return models.Snapshot{}, time.Time{}, apperrors.Wrapf(apperrors.ErrDatabaseError, "reading snapshot %s: %v", key, err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return models.Snapshot{}, time.Time{}, apperrors.NewDataError("snapshot", key, "decoding", err)
	}
	return snap, updated, nil
}

// DeleteSnapshot removes the snapshot for key. Deleting a missing key is not an error.
func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE security = ?`, key)
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrDatabaseError, "deleting snapshot %s: %v", key, err)
	}
	return nil
}

// ClearSnapshots removes every cached snapshot.
func (s *SQLiteStore) ClearSnapshots(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots`); err != nil {
		return apperrors.Wrapf(apperrors.ErrDatabaseError, "clearing snapshots: %v", err)
	}
	return nil
}

// ListSnapshots returns all cached snapshots ordered by security.
func (s *SQLiteStore) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT security, payload, updated_at FROM snapshots ORDER BY security`)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrDatabaseError, "listing snapshots: %v", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var payload string
		if err := rows.Scan(&info.Key, &payload, &info.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &info.Snapshot); err != nil {
			return nil, apperrors.NewDataError("snapshot", info.Key, "decoding", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// SaveRun records a scenario run, assigning an ID and timestamp when unset.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now().UTC()
	}

	dates, err := json.Marshal(run.Dates)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, ticker, source, spot, legs, excluded, intervals, dates,
			computed_total, net_premium, premium_override, max_pnl, payout)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt, run.Ticker, run.Source, run.Spot, run.Legs, run.Excluded, run.Intervals,
		string(dates), run.ComputedTotal, run.NetPremium, nullFloat(run.Override), nullFloat(run.MaxPnL), run.Payout)
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrDatabaseError, "saving run: %v", err)
	}
	return nil
}

// GetRuns returns runs matching filter, newest first.
func (s *SQLiteStore) GetRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	query := `SELECT id, created_at, ticker, source, spot, legs, excluded, intervals, dates,
		computed_total, net_premium, premium_override, max_pnl, payout FROM runs`
	var conds []string
	var args []interface{}

	if filter.Ticker != "" {
		conds = append(conds, "ticker = ?")
		args = append(args, filter.Ticker)
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrDatabaseError, "querying runs: %v", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun returns one run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, created_at, ticker, source, spot, legs, excluded, intervals, dates,
		computed_total, net_premium, premium_override, max_pnl, payout FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewDataError("run", id, "not found", err)
	}
	return run, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(r rowScanner) (*RunRecord, error) {
	var run RunRecord
	var source, payout sql.NullString
	var override, maxPnL sql.NullFloat64
	var dates string

	err := r.Scan(&run.ID, &run.CreatedAt, &run.Ticker, &source, &run.Spot, &run.Legs, &run.Excluded,
		&run.Intervals, &dates, &run.ComputedTotal, &run.NetPremium, &override, &maxPnL, &payout)
	if err != nil {
		return nil, err
	}
	run.Source = source.String
	run.Payout = payout.String
	if override.Valid {
		run.Override = models.Float(override.Float64)
	}
	if maxPnL.Valid {
		run.MaxPnL = models.Float(maxPnL.Float64)
	}
	if err := json.Unmarshal([]byte(dates), &run.Dates); err != nil {
		return nil, apperrors.NewDataError("run", run.ID, "decoding dates", err)
	}
	return &run, nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
