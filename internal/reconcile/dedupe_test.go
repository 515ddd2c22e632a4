package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/adsync/internal/model"
)

func factRow(campaignID string, adGroupID, targetID *string, impressions int64) model.MappedFactRow {
	return model.MappedFactRow{
		AccountID:  "acct-1",
		UploadID:   "up-1",
		ReportType: model.ReportTargeting,
		Date:       model.DateOf(2026, 3, 4),
		CampaignID: campaignID,
		AdGroupID:  adGroupID,
		TargetID:   targetID,
		Metrics:    model.Metrics{Impressions: impressions},
	}
}

func TestNaturalKey_ShapeSpecific(t *testing.T) {
	g, tg := "g1", "t1"

	campaign := model.MappedFactRow{
		AccountID: "a", UploadID: "u", ReportType: model.ReportCampaigns,
		Date: model.DateOf(2026, 3, 4), CampaignID: "c1",
	}
	targeting := factRow("c1", &g, &tg, 0)
	search := model.MappedFactRow{
		AccountID: "a", UploadID: "u", ReportType: model.ReportSearchTerms,
		Date: model.DateOf(2026, 3, 4), CampaignID: "c1",
		AdGroupID: &g, TargetKey: "tk", SearchTermNorm: "blue shoes",
	}

	assert.NotEqual(t, NaturalKey(campaign), NaturalKey(targeting))
	assert.NotEqual(t, NaturalKey(targeting), NaturalKey(search))

	// Search-term identity includes the term itself.
	other := search
	other.SearchTermNorm = "red shoes"
	assert.NotEqual(t, NaturalKey(search), NaturalKey(other))
}

func TestTargetKey_DistinguishesIdentity(t *testing.T) {
	base := TargetKey("c1", "g1", "running shoes", model.MatchExact, false)

	assert.NotEqual(t, base, TargetKey("c1", "g1", "running shoes", model.MatchBroad, false))
	assert.NotEqual(t, base, TargetKey("c1", "g1", "running shoes", model.MatchExact, true))
	assert.NotEqual(t, base, TargetKey("c1", "g2", "running shoes", model.MatchExact, false))
	assert.Equal(t, base, TargetKey("c1", "g1", "running shoes", model.MatchExact, false))
}

func TestDedupe_LastWriteWins(t *testing.T) {
	g, tg := "g1", "t1"
	first := factRow("c1", &g, &tg, 10)
	second := factRow("c1", &g, &tg, 99)

	out := Dedupe([]model.MappedFactRow{first, second})
	require.Len(t, out, 1)
	assert.Equal(t, int64(99), out[0].Metrics.Impressions)
}

func TestDedupe_PreservesFirstSeenOrder(t *testing.T) {
	g1, g2, tg := "g1", "g2", "t1"
	a := factRow("c1", &g1, &tg, 1)
	b := factRow("c1", &g2, &tg, 2)
	aAgain := factRow("c1", &g1, &tg, 3)

	out := Dedupe([]model.MappedFactRow{a, b, aAgain})
	require.Len(t, out, 2)
	// a's slot keeps its first-seen position but carries the last value.
	assert.Equal(t, "g1", *out[0].AdGroupID)
	assert.Equal(t, int64(3), out[0].Metrics.Impressions)
	assert.Equal(t, "g2", *out[1].AdGroupID)
}

func TestDedupe_DistinctKeysUntouched(t *testing.T) {
	g, t1, t2 := "g1", "t1", "t2"
	rows := []model.MappedFactRow{
		factRow("c1", &g, &t1, 1),
		factRow("c1", &g, &t2, 2),
	}
	out := Dedupe(rows)
	assert.Equal(t, rows, out)
}
