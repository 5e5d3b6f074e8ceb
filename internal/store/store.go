// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"optpnl/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Snapshots
	SaveSnapshot(ctx context.Context, key string, snap models.Snapshot) error
	GetSnapshot(ctx context.Context, key string) (models.Snapshot, time.Time, error)
	DeleteSnapshot(ctx context.Context, key string) error
	ClearSnapshots(ctx context.Context) error
	ListSnapshots(ctx context.Context) ([]SnapshotInfo, error)

	// Run history
	SaveRun(ctx context.Context, run *RunRecord) error
	GetRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error)
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// SnapshotInfo describes one cached snapshot.
type SnapshotInfo struct {
	Key       string
	UpdatedAt time.Time
	Snapshot  models.Snapshot
}

// RunRecord is the persisted outcome of one scenario run.
type RunRecord struct {
	ID            string
	CreatedAt     time.Time
	Ticker        string
	Source        string
	Spot          float64
	Legs          int
	Excluded      int
	Intervals     int
	Dates         []string
	ComputedTotal float64
	NetPremium    float64
	Override      *float64
	MaxPnL        *float64
	Payout        string
}

// RunFilter represents filters for querying run history.
type RunFilter struct {
	Ticker string
	Since  time.Time
	Limit  int
}
