package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/adsync/internal/model"
)

// fakeStore implements the pipeline's three collaborator contracts in memory.
type fakeStore struct {
	snap      *model.InventorySnapshot
	overrides []model.ManualOverride
	history   []model.NameHistoryRecord
	rows      []model.RawReportRow

	upserted     []model.MappedFactRow
	issues       []model.MappingIssue
	failedChunks []FailedChunk
}

func (f *fakeStore) SnapshotDates(_ context.Context, _ string) ([]time.Time, error) {
	if f.snap == nil {
		return nil, nil
	}
	return []time.Time{f.snap.SnapshotDate}, nil
}

func (f *fakeStore) CountCampaignNames(_ context.Context, _ string, _ time.Time, nameNorms []string) (int, error) {
	byName := make(map[string]bool)
	for _, c := range f.snap.Campaigns {
		byName[c.NameNorm] = true
	}
	n := 0
	for _, name := range nameNorms {
		if byName[name] {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) LoadSnapshot(_ context.Context, _ string, _ time.Time) (*model.InventorySnapshot, error) {
	return f.snap, nil
}

func (f *fakeStore) Overrides(_ context.Context, _ string) ([]model.ManualOverride, error) {
	return f.overrides, nil
}

func (f *fakeStore) NameHistory(_ context.Context, _ string) ([]model.NameHistoryRecord, error) {
	return f.history, nil
}

func (f *fakeStore) DistinctCampaignNames(_ context.Context, _ string) ([]string, error) {
	seen := make(map[string]bool)
	var names []string
	for _, r := range f.rows {
		if r.CampaignNameNorm != "" && !seen[r.CampaignNameNorm] {
			seen[r.CampaignNameNorm] = true
			names = append(names, r.CampaignNameNorm)
		}
	}
	return names, nil
}

func (f *fakeStore) RawRows(_ context.Context, _ string) ([]model.RawReportRow, error) {
	return f.rows, nil
}

func (f *fakeStore) UpsertFacts(_ context.Context, facts []model.MappedFactRow) (*WriteReport, error) {
	f.upserted = append(f.upserted, facts...)
	return &WriteReport{Upserted: int64(len(facts)), Failed: f.failedChunks}, nil
}

func (f *fakeStore) ReplaceIssues(_ context.Context, _ string, _ model.ReportType, issues []model.MappingIssue) error {
	f.issues = issues
	return nil
}

func TestPipeline_Run(t *testing.T) {
	st := &fakeStore{
		snap: testSnapshot(),
		rows: []model.RawReportRow{
			targetingRow(1, "Launch Q1", "Core", "nonexistent", model.MatchExact),
			func() model.RawReportRow {
				r := targetingRow(2, "Brand", "Shoes", "running shoes", model.MatchExact)
				r.PortfolioNameRaw = "Spring"
				r.PortfolioNameNorm = "spring"
				return r
			}(),
		},
	}
	pipe := NewPipeline(st, st, st)

	result, err := pipe.Run(context.Background(), "acct-1", "up-1", model.ReportTargeting, model.DateOf(2026, 3, 5))
	require.NoError(t, err)

	require.NotNil(t, result.SnapshotDate)
	assert.Equal(t, st.snap.SnapshotDate, *result.SnapshotDate)
	assert.Equal(t, 2, result.RowsIn)
	assert.Equal(t, 1, result.Facts)
	assert.Equal(t, 1, result.Issues)
	assert.Equal(t, int64(1), result.Upserted)
	assert.Empty(t, result.FailedKeys)

	require.Len(t, st.upserted, 1)
	assert.Equal(t, "c1", st.upserted[0].CampaignID)
	require.Len(t, st.issues, 1)
	assert.Equal(t, model.LevelTarget, st.issues[0].EntityLevel)
}

func TestPipeline_Run_Idempotent(t *testing.T) {
	st := &fakeStore{
		snap: testSnapshot(),
		rows: []model.RawReportRow{
			targetingRow(1, "Launch Q1", "Core", "nonexistent", model.MatchExact),
		},
	}
	pipe := NewPipeline(st, st, st)

	first, err := pipe.Run(context.Background(), "acct-1", "up-1", model.ReportTargeting, model.DateOf(2026, 3, 5))
	require.NoError(t, err)
	second, err := pipe.Run(context.Background(), "acct-1", "up-1", model.ReportTargeting, model.DateOf(2026, 3, 5))
	require.NoError(t, err)

	assert.Equal(t, first.Facts, second.Facts)
	assert.Equal(t, first.Issues, second.Issues)
	// ReplaceIssues swapped the set, not appended to it.
	assert.Len(t, st.issues, 1)
}

func TestPipeline_Run_MissingSnapshot(t *testing.T) {
	st := &fakeStore{
		snap: testSnapshot(),
		rows: []model.RawReportRow{
			targetingRow(1, "Launch Q1", "Core", "running shoes", model.MatchExact),
		},
	}
	// Export far before the only snapshot, outside the look-ahead window.
	exported := model.DateOf(2026, 1, 1)

	pipe := NewPipeline(st, st, st)
	result, err := pipe.Run(context.Background(), "acct-1", "up-1", model.ReportTargeting, exported)
	require.NoError(t, err)

	assert.Nil(t, result.SnapshotDate)
	assert.Zero(t, result.Facts)
	assert.Equal(t, 1, result.Issues)
	assert.Empty(t, st.upserted)

	require.Len(t, st.issues, 1)
	assert.Equal(t, model.IssueMissingBulkSnapshot, st.issues[0].IssueType)
}

func TestPipeline_Run_SurfacesFailedChunks(t *testing.T) {
	st := &fakeStore{
		snap: testSnapshot(),
		rows: []model.RawReportRow{
			targetingRow(1, "Launch Q1", "Core", "running shoes", model.MatchExact),
		},
		failedChunks: []FailedChunk{{NaturalKeys: []string{"k1", "k2"}, Err: "deadlock"}},
	}
	// Make the single row resolvable.
	st.snap.Targets = append(st.snap.Targets, model.Target{
		ID: "t8", AdGroupID: "g3", ExpressionNorm: "running shoes", MatchTypeNorm: model.MatchExact,
	})

	pipe := NewPipeline(st, st, st)
	result, err := pipe.Run(context.Background(), "acct-1", "up-1", model.ReportTargeting, model.DateOf(2026, 3, 5))
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, result.FailedKeys)
}
