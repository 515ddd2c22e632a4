package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/adsync/internal/model"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

// testSnapshot builds the snapshot most resolver tests share: two campaigns
// named "brand" in different portfolios, one uniquely named campaign, an ad
// group tree, and a pair of targets differing only in match type.
func testSnapshot() *model.InventorySnapshot {
	return &model.InventorySnapshot{
		AccountID:    "acct-1",
		SnapshotDate: model.DateOf(2026, 3, 1),
		Campaigns: []model.Campaign{
			{ID: "c1", NameRaw: "Brand", NameNorm: "brand", PortfolioID: strPtr("p1")},
			{ID: "c2", NameRaw: "Brand", NameNorm: "brand", PortfolioID: strPtr("p2")},
			{ID: "c3", NameRaw: "Launch Q1", NameNorm: "launch q1"},
		},
		AdGroups: []model.AdGroup{
			{ID: "g1", CampaignID: "c1", NameRaw: "Shoes", NameNorm: "shoes"},
			{ID: "g2", CampaignID: "c2", NameRaw: "Shoes", NameNorm: "shoes"},
			{ID: "g3", CampaignID: "c3", NameRaw: "Core", NameNorm: "core"},
		},
		Targets: []model.Target{
			{ID: "t1", AdGroupID: "g1", ExpressionRaw: "running shoes", ExpressionNorm: "running shoes", MatchTypeNorm: model.MatchExact},
			{ID: "t2", AdGroupID: "g1", ExpressionRaw: "running shoes", ExpressionNorm: "running shoes", MatchTypeNorm: model.MatchBroad},
			{ID: "t3", AdGroupID: "g1", ExpressionRaw: "running shoes", ExpressionNorm: "running shoes", MatchTypeNorm: model.MatchExact, IsNegative: true},
		},
		Portfolios: []model.Portfolio{
			{ID: "p1", NameRaw: "Spring", NameNorm: "spring"},
			{ID: "p2", NameRaw: "Fall", NameNorm: "fall"},
		},
	}
}

func TestResolveCampaign_Unique(t *testing.T) {
	ix := BuildIndex(testSnapshot(), nil, nil)

	res := ix.ResolveCampaign("launch q1", "", model.DateOf(2026, 3, 5))
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "c3", res.ID)
}

func TestResolveCampaign_AmbiguousWithoutPortfolio(t *testing.T) {
	ix := BuildIndex(testSnapshot(), nil, nil)

	res := ix.ResolveCampaign("brand", "", model.DateOf(2026, 3, 5))
	assert.Equal(t, StatusAmbiguous, res.Status)
	assert.Equal(t, []string{"c1", "c2"}, res.Candidates)
}

func TestResolveCampaign_PortfolioNarrows(t *testing.T) {
	ix := BuildIndex(testSnapshot(), nil, nil)

	res := ix.ResolveCampaign("brand", "spring", model.DateOf(2026, 3, 5))
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "c1", res.ID)

	res = ix.ResolveCampaign("brand", "fall", model.DateOf(2026, 3, 5))
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "c2", res.ID)
}

func TestResolveCampaign_PortfolioCannotNarrow(t *testing.T) {
	snap := testSnapshot()
	// Both brand campaigns in the same portfolio.
	snap.Campaigns[1].PortfolioID = strPtr("p1")
	ix := BuildIndex(snap, nil, nil)

	res := ix.ResolveCampaign("brand", "spring", model.DateOf(2026, 3, 5))
	assert.Equal(t, StatusAmbiguous, res.Status)
	assert.Len(t, res.Candidates, 2)
}

func TestResolveCampaign_NotFound(t *testing.T) {
	ix := BuildIndex(testSnapshot(), nil, nil)

	res := ix.ResolveCampaign("retired name", "", model.DateOf(2026, 3, 5))
	assert.Equal(t, StatusNotFound, res.Status)
	assert.Empty(t, res.ID)
}

func TestResolveCampaign_HistoryTier(t *testing.T) {
	history := []model.NameHistoryRecord{
		{
			EntityLevel: model.LevelCampaign,
			EntityID:    "c3",
			NameNorm:    "old launch name",
			ValidFrom:   model.DateOf(2026, 1, 1),
			ValidTo:     timePtr(model.DateOf(2026, 2, 1)),
		},
	}
	ix := BuildIndex(testSnapshot(), nil, history)

	// Reference date inside the window resolves through history.
	res := ix.ResolveCampaign("old launch name", "", model.DateOf(2026, 1, 15))
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "c3", res.ID)

	// Outside the window the record does not apply.
	res = ix.ResolveCampaign("old launch name", "", model.DateOf(2026, 3, 5))
	assert.Equal(t, StatusNotFound, res.Status)

	// End bound is exclusive.
	res = ix.ResolveCampaign("old launch name", "", model.DateOf(2026, 2, 1))
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestResolveCampaign_HistoryNeverShadowsSnapshot(t *testing.T) {
	// A history record claiming "launch q1" belonged to c1 must not be
	// consulted while the live snapshot resolves that name.
	history := []model.NameHistoryRecord{
		{
			EntityLevel: model.LevelCampaign,
			EntityID:    "c1",
			NameNorm:    "launch q1",
			ValidFrom:   model.DateOf(2026, 1, 1),
		},
	}
	ix := BuildIndex(testSnapshot(), nil, history)

	res := ix.ResolveCampaign("launch q1", "", model.DateOf(2026, 3, 5))
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "c3", res.ID)
}

func TestResolveCampaign_OverrideTier(t *testing.T) {
	overrides := []model.ManualOverride{
		{
			EntityLevel: model.LevelCampaign,
			EntityID:    "c3",
			NameNorm:    "legacy export name",
			ValidFrom:   timePtr(model.DateOf(2026, 1, 1)),
		},
	}
	ix := BuildIndex(testSnapshot(), overrides, nil)

	res := ix.ResolveCampaign("legacy export name", "", model.DateOf(2026, 3, 5))
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "c3", res.ID)

	// Before the window opens the override does not apply.
	res = ix.ResolveCampaign("legacy export name", "", model.DateOf(2025, 12, 1))
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestResolveCampaign_HistoryBeatsOverride(t *testing.T) {
	history := []model.NameHistoryRecord{
		{EntityLevel: model.LevelCampaign, EntityID: "c1", NameNorm: "shared name", ValidFrom: model.DateOf(2026, 1, 1)},
	}
	overrides := []model.ManualOverride{
		{EntityLevel: model.LevelCampaign, EntityID: "c2", NameNorm: "shared name"},
	}
	ix := BuildIndex(testSnapshot(), overrides, history)

	res := ix.ResolveCampaign("shared name", "", model.DateOf(2026, 3, 5))
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "c1", res.ID)
}

func TestResolveAdGroup_ScopedToCampaign(t *testing.T) {
	ix := BuildIndex(testSnapshot(), nil, nil)

	res := ix.ResolveAdGroup("c1", "shoes", model.DateOf(2026, 3, 5))
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "g1", res.ID)

	res = ix.ResolveAdGroup("c2", "shoes", model.DateOf(2026, 3, 5))
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "g2", res.ID)

	// Same name under an unrelated campaign does not resolve.
	res = ix.ResolveAdGroup("c3", "shoes", model.DateOf(2026, 3, 5))
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestResolveAdGroup_HistoryScopeCheck(t *testing.T) {
	// g2's old name only applies under its own campaign c2.
	history := []model.NameHistoryRecord{
		{EntityLevel: model.LevelAdGroup, EntityID: "g2", NameNorm: "old shoes", ValidFrom: model.DateOf(2026, 1, 1)},
	}
	ix := BuildIndex(testSnapshot(), nil, history)

	res := ix.ResolveAdGroup("c2", "old shoes", model.DateOf(2026, 3, 5))
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "g2", res.ID)

	res = ix.ResolveAdGroup("c1", "old shoes", model.DateOf(2026, 3, 5))
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestResolveTarget_MatchTypeIdentity(t *testing.T) {
	ix := BuildIndex(testSnapshot(), nil, nil)
	ref := model.DateOf(2026, 3, 5)

	res := ix.ResolveTarget("g1", "running shoes", model.MatchExact, false, ref)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "t1", res.ID)

	res = ix.ResolveTarget("g1", "running shoes", model.MatchBroad, false, ref)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "t2", res.ID)

	res = ix.ResolveTarget("g1", "running shoes", model.MatchPhrase, false, ref)
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestResolveTarget_UnknownMatchTypeIsWildcard(t *testing.T) {
	ix := BuildIndex(testSnapshot(), nil, nil)
	ref := model.DateOf(2026, 3, 5)

	// Both positive targets share the expression, so unknown cannot narrow.
	res := ix.ResolveTarget("g1", "running shoes", model.MatchUnknown, false, ref)
	assert.Equal(t, StatusAmbiguous, res.Status)
	assert.Equal(t, []string{"t1", "t2"}, res.Candidates)
}

func TestResolveTarget_NegativeIsDistinct(t *testing.T) {
	ix := BuildIndex(testSnapshot(), nil, nil)
	ref := model.DateOf(2026, 3, 5)

	res := ix.ResolveTarget("g1", "running shoes", model.MatchExact, true, ref)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "t3", res.ID)

	// Unknown match type against the single negative resolves uniquely.
	res = ix.ResolveTarget("g1", "running shoes", model.MatchUnknown, true, ref)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "t3", res.ID)
}

func TestResolveTarget_WrongAdGroup(t *testing.T) {
	ix := BuildIndex(testSnapshot(), nil, nil)

	res := ix.ResolveTarget("g3", "running shoes", model.MatchExact, false, model.DateOf(2026, 3, 5))
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestResolveHistorical_AmbiguousHistory(t *testing.T) {
	history := []model.NameHistoryRecord{
		{EntityLevel: model.LevelCampaign, EntityID: "c1", NameNorm: "reused name", ValidFrom: model.DateOf(2026, 1, 1)},
		{EntityLevel: model.LevelCampaign, EntityID: "c2", NameNorm: "reused name", ValidFrom: model.DateOf(2026, 1, 1)},
	}
	ix := BuildIndex(testSnapshot(), nil, history)

	res := ix.ResolveCampaign("reused name", "", model.DateOf(2026, 3, 5))
	assert.Equal(t, StatusAmbiguous, res.Status)
	assert.Equal(t, []string{"c1", "c2"}, res.Candidates)
}
