package reconcile

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/adsync/internal/model"
)

// Pipeline runs one report batch end to end: snapshot selection, index
// build, row mapping, dedupe, and the idempotent write step. Each batch is a
// linear, synchronous pass; independent batches (distinct upload IDs) may
// run concurrently on separate Pipeline calls since every run builds its own
// read-only index and writes a disjoint natural-key set.
type Pipeline struct {
	snapshots SnapshotStore
	reports   ReportStore
	facts     FactWriter

	// LookAheadDays bounds the selector's look past the export date;
	// zero means DefaultLookAheadDays.
	LookAheadDays int
}

// NewPipeline wires a Pipeline from its store collaborators.
func NewPipeline(snapshots SnapshotStore, reports ReportStore, facts FactWriter) *Pipeline {
	return &Pipeline{snapshots: snapshots, reports: reports, facts: facts}
}

// BatchResult summarizes one pipeline run.
type BatchResult struct {
	UploadID     string           `json:"upload_id"`
	ReportType   model.ReportType `json:"report_type"`
	SnapshotDate *time.Time       `json:"snapshot_date,omitempty"`
	RowsIn       int              `json:"rows_in"`
	Facts        int              `json:"facts"`
	Issues       int              `json:"issues"`
	Upserted     int64            `json:"upserted"`

	// FailedKeys lists natural keys whose chunks failed to upsert. The
	// engine performs no retries; callers retry exactly this subset.
	FailedKeys []string `json:"failed_keys,omitempty"`
}

// Run reconciles one upload against the best-matching inventory snapshot.
// Resolution failures become issues, never errors; an error return means an
// infrastructural failure (store I/O) or an internal defect.
func (p *Pipeline) Run(ctx context.Context, accountID, uploadID string, reportType model.ReportType, exportedAt time.Time) (*BatchResult, error) {
	log := zap.L().With(
		zap.String("component", "reconcile.pipeline"),
		zap.String("account_id", accountID),
		zap.String("upload_id", uploadID),
	)
	exportedAt = model.Date(exportedAt)
	result := &BatchResult{UploadID: uploadID, ReportType: reportType}

	candidates, err := p.snapshots.SnapshotDates(ctx, accountID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list snapshot dates")
	}
	names, err := p.reports.DistinctCampaignNames(ctx, uploadID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: distinct campaign names")
	}

	snapshotDate, err := SelectSnapshot(ctx, p.snapshots, accountID, names, exportedAt, candidates, p.LookAheadDays)
	if err != nil {
		return nil, err
	}
	if snapshotDate == nil {
		// The whole batch maps to zero facts plus exactly one issue,
		// reported distinctly so operators can prioritize backfilling
		// snapshots over chasing naming mismatches.
		log.Warn("no eligible inventory snapshot", zap.Time("exported_at", exportedAt))
		issue := model.MappingIssue{
			UploadID:    uploadID,
			ReportType:  reportType,
			EntityLevel: model.LevelCampaign,
			IssueType:   model.IssueMissingBulkSnapshot,
			KeyJSON:     keyJSON(map[string]string{"exported_at": exportedAt.Format("2006-01-02")}),
			RowCount:    0,
		}
		if err := p.facts.ReplaceIssues(ctx, uploadID, reportType, []model.MappingIssue{issue}); err != nil {
			return nil, eris.Wrap(err, "pipeline: record missing snapshot issue")
		}
		result.Issues = 1
		return result, nil
	}
	result.SnapshotDate = snapshotDate

	snap, err := p.snapshots.LoadSnapshot(ctx, accountID, *snapshotDate)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load snapshot %s", snapshotDate.Format("2006-01-02"))
	}
	overrides, err := p.snapshots.Overrides(ctx, accountID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load overrides")
	}
	history, err := p.snapshots.NameHistory(ctx, accountID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load name history")
	}
	ix := BuildIndex(snap, overrides, history)

	rows, err := p.reports.RawRows(ctx, uploadID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load raw rows")
	}
	result.RowsIn = len(rows)

	mapped, err := MapRows(uploadID, reportType, rows, ix, exportedAt)
	if err != nil {
		return nil, err
	}
	deduped := Dedupe(mapped.Facts)
	result.Facts = len(deduped)
	result.Issues = len(mapped.Issues)

	report, err := p.facts.UpsertFacts(ctx, deduped)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: upsert facts")
	}
	result.Upserted = report.Upserted
	for _, chunk := range report.Failed {
		result.FailedKeys = append(result.FailedKeys, chunk.NaturalKeys...)
	}

	if err := p.facts.ReplaceIssues(ctx, uploadID, reportType, mapped.Issues); err != nil {
		return nil, eris.Wrap(err, "pipeline: replace issues")
	}

	log.Info("batch reconciled",
		zap.String("snapshot_date", snapshotDate.Format("2006-01-02")),
		zap.Int("rows_in", result.RowsIn),
		zap.Int("facts", result.Facts),
		zap.Int("issues", result.Issues),
		zap.Int("failed_keys", len(result.FailedKeys)),
	)
	return result, nil
}
