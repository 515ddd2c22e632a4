package reconcile

import (
	"context"
	"time"

	"github.com/sells-group/adsync/internal/model"
)

// SnapshotStore is the read contract for inventory snapshots and the
// account-wide override and history tables. The engine is a library; all
// persistence sits behind these narrow interfaces.
type SnapshotStore interface {
	SnapshotScorer

	// SnapshotDates returns every known snapshot date for an account.
	SnapshotDates(ctx context.Context, accountID string) ([]time.Time, error)

	// LoadSnapshot returns the full entity collections for one
	// (account, snapshot date).
	LoadSnapshot(ctx context.Context, accountID string, snapshotDate time.Time) (*model.InventorySnapshot, error)

	// Overrides returns all manual overrides for an account, unscoped by
	// date; time filtering happens at resolve time.
	Overrides(ctx context.Context, accountID string) ([]model.ManualOverride, error)

	// NameHistory returns all rename records for an account. Stores
	// without history tables return nil and resolution skips that tier.
	NameHistory(ctx context.Context, accountID string) ([]model.NameHistoryRecord, error)
}

// ReportStore is the read contract for a previously registered upload's raw
// rows.
type ReportStore interface {
	// DistinctCampaignNames returns the distinct normalized campaign
	// names referenced by an upload's rows, for selector scoring.
	DistinctCampaignNames(ctx context.Context, uploadID string) ([]string, error)

	// RawRows returns the upload's full raw row set.
	RawRows(ctx context.Context, uploadID string) ([]model.RawReportRow, error)
}

// FailedChunk reports one write chunk that could not be upserted, with the
// natural keys it contained so the caller can retry exactly that subset.
type FailedChunk struct {
	NaturalKeys []string
	Err         string
}

// WriteReport is the outcome of a fact upsert. A failed chunk never aborts
// the rest of the batch.
type WriteReport struct {
	Upserted int64
	Failed   []FailedChunk
}

// FactWriter is the write contract: idempotent upsert of fact rows keyed
// exactly on their natural keys, and idempotent replacement of an upload's
// issue set. Chunk sizes are a store-access concern and must never change
// results.
type FactWriter interface {
	UpsertFacts(ctx context.Context, facts []model.MappedFactRow) (*WriteReport, error)

	// ReplaceIssues clears any prior issue set for (upload, report type)
	// and inserts the new one, so re-running a batch never duplicates
	// issues.
	ReplaceIssues(ctx context.Context, uploadID string, reportType model.ReportType, issues []model.MappingIssue) error
}
