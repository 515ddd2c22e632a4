// Package store persists inventory snapshots, report uploads, mapped fact
// rows, and mapping issues. It implements the reconcile engine's narrow
// read/write contracts on Postgres (pgx) and SQLite (modernc), plus the
// write side the ingest commands need.
package store

import (
	"context"

	"github.com/sells-group/adsync/internal/model"
	"github.com/sells-group/adsync/internal/reconcile"
)

// Store is the full persistence surface: the engine's collaborator
// contracts plus upload/snapshot registration and issue listing.
type Store interface {
	reconcile.SnapshotStore
	reconcile.ReportStore
	reconcile.FactWriter

	// CreateUpload registers an upload batch. Registering the same upload
	// ID again replaces its raw rows, which is how re-ingestion of an
	// identical file re-runs the same batch.
	CreateUpload(ctx context.Context, up model.ReportUpload) error
	SaveRawRows(ctx context.Context, uploadID string, rows []model.RawReportRow) error
	GetUpload(ctx context.Context, uploadID string) (*model.ReportUpload, error)

	// SaveSnapshot stores a new inventory snapshot. Snapshots are
	// immutable: saving an already-present (account, date) is an error.
	SaveSnapshot(ctx context.Context, snap *model.InventorySnapshot) error

	// SaveOverrides upserts manual overrides for an account.
	SaveOverrides(ctx context.Context, accountID string, overrides []model.ManualOverride) error

	ListIssues(ctx context.Context, uploadID string) ([]model.MappingIssue, error)

	Migrate(ctx context.Context) error
	Close() error
}

// DefaultChunkSize bounds how many rows or IDs one store round-trip
// carries. Chunking is purely a store-access concern; results are identical
// for any positive size.
const DefaultChunkSize = 500

func chunkSizeOrDefault(n int) int {
	if n <= 0 {
		return DefaultChunkSize
	}
	return n
}
