package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/adsync/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeScorer serves canned overlap scores keyed by snapshot date.
type fakeScorer struct {
	scores map[string]int
	err    error
	calls  int
}

func (f *fakeScorer) CountCampaignNames(_ context.Context, _ string, snapshotDate time.Time, _ []string) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.scores[snapshotDate.Format("2006-01-02")], nil
}

func dates(ds ...string) []time.Time {
	out := make([]time.Time, len(ds))
	for i, d := range ds {
		t, err := time.ParseInLocation("2006-01-02", d, time.UTC)
		if err != nil {
			panic(err)
		}
		out[i] = t
	}
	return out
}

func TestSelectSnapshot_OverlapBeatsProximity(t *testing.T) {
	// The nearest snapshot has drifted; an older one still matches the
	// report's campaign set and must win.
	scorer := &fakeScorer{scores: map[string]int{
		"2026-02-01": 90,
		"2026-03-01": 10,
	}}
	exported := model.DateOf(2026, 3, 2)

	got, err := SelectSnapshot(context.Background(), scorer, "acct-1",
		[]string{"a", "b"}, exported, dates("2026-02-01", "2026-03-01"), 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.DateOf(2026, 2, 1), *got)
}

func TestSelectSnapshot_TieBreaksByDistance(t *testing.T) {
	scorer := &fakeScorer{scores: map[string]int{
		"2026-02-01": 50,
		"2026-02-25": 50,
	}}
	exported := model.DateOf(2026, 3, 1)

	got, err := SelectSnapshot(context.Background(), scorer, "acct-1",
		[]string{"a"}, exported, dates("2026-02-01", "2026-02-25"), 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.DateOf(2026, 2, 25), *got)
}

func TestSelectSnapshot_TieBreaksBeforeOverAfter(t *testing.T) {
	// Equal score, equal distance: one day before and one day after the
	// export date. The earlier snapshot wins.
	scorer := &fakeScorer{scores: map[string]int{
		"2026-02-28": 50,
		"2026-03-02": 50,
	}}
	exported := model.DateOf(2026, 3, 1)

	for _, candidateOrder := range [][]time.Time{
		dates("2026-02-28", "2026-03-02"),
		dates("2026-03-02", "2026-02-28"),
	} {
		got, err := SelectSnapshot(context.Background(), scorer, "acct-1",
			[]string{"a"}, exported, candidateOrder, 0)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, model.DateOf(2026, 2, 28), *got)
	}
}

func TestSelectSnapshot_LookAheadWindow(t *testing.T) {
	// Only snapshots within the look-ahead horizon are scored at all.
	scorer := &fakeScorer{scores: map[string]int{
		"2026-03-05": 10,
		"2026-03-09": 99,
	}}
	exported := model.DateOf(2026, 3, 1)

	got, err := SelectSnapshot(context.Background(), scorer, "acct-1",
		[]string{"a"}, exported, dates("2026-03-05", "2026-03-09"), 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.DateOf(2026, 3, 5), *got)
}

func TestSelectSnapshot_NoEligibleCandidates(t *testing.T) {
	scorer := &fakeScorer{}
	exported := model.DateOf(2026, 3, 1)

	got, err := SelectSnapshot(context.Background(), scorer, "acct-1",
		[]string{"a"}, exported, dates("2026-03-20"), 7)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, scorer.calls)

	got, err = SelectSnapshot(context.Background(), scorer, "acct-1",
		[]string{"a"}, exported, nil, 7)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSelectSnapshot_NoNamesFallsBackToLatestOnOrBefore(t *testing.T) {
	scorer := &fakeScorer{}
	exported := model.DateOf(2026, 3, 1)

	got, err := SelectSnapshot(context.Background(), scorer, "acct-1",
		nil, exported, dates("2026-01-15", "2026-02-20", "2026-03-04"), 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.DateOf(2026, 2, 20), *got)
	assert.Zero(t, scorer.calls, "fallback must not hit the scorer")
}

func TestSelectSnapshot_NoNamesAllCandidatesAfter(t *testing.T) {
	scorer := &fakeScorer{}
	got, err := SelectSnapshot(context.Background(), scorer, "acct-1",
		nil, model.DateOf(2026, 3, 1), dates("2026-03-04"), 7)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSelectSnapshot_Deterministic(t *testing.T) {
	scorer := &fakeScorer{scores: map[string]int{
		"2026-02-01": 40,
		"2026-02-15": 40,
		"2026-03-01": 40,
	}}
	exported := model.DateOf(2026, 3, 1)
	candidates := dates("2026-02-01", "2026-02-15", "2026-03-01")

	first, err := SelectSnapshot(context.Background(), scorer, "acct-1", []string{"a"}, exported, candidates, 0)
	require.NoError(t, err)
	second, err := SelectSnapshot(context.Background(), scorer, "acct-1", []string{"a"}, exported, candidates, 0)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, *first, *second)
}

func TestSelectSnapshot_ScorerError(t *testing.T) {
	scorer := &fakeScorer{err: fmt.Errorf("connection lost")}

	_, err := SelectSnapshot(context.Background(), scorer, "acct-1",
		[]string{"a"}, model.DateOf(2026, 3, 1), dates("2026-02-01"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "score snapshot")
}
