package reconcile

import (
	"strings"

	"github.com/sells-group/adsync/internal/model"
)

// TargetKey synthesizes a stable grouping key from the full identifying
// tuple of a target-bearing row. Rows with no resolvable target (wildcard
// and search-term rows) still need a deterministic key so repeated ingestion
// of the same day's rows upserts in place.
func TargetKey(campaignID, adGroupID, exprNorm string, matchType model.MatchType, isNegative bool) string {
	neg := "pos"
	if isNegative {
		neg = "neg"
	}
	return strings.Join([]string{campaignID, adGroupID, exprNorm, string(matchType), neg}, "\x1f")
}

// NaturalKey computes the report-shape-specific tuple that uniquely
// identifies one logical fact row for upsert purposes. Upserts are keyed on
// exactly this value, so re-ingesting an identical report produces zero net
// new rows.
func NaturalKey(f model.MappedFactRow) string {
	parts := []string{
		f.AccountID,
		f.UploadID,
		string(f.ReportType),
		f.Date.Format("2006-01-02"),
		f.CampaignID,
	}
	switch f.ReportType {
	case model.ReportTargeting:
		parts = append(parts, deref(f.AdGroupID), deref(f.TargetID))
	case model.ReportSearchTerms:
		parts = append(parts, deref(f.AdGroupID), f.TargetKey, f.SearchTermNorm)
	}
	return strings.Join(parts, "\x1f")
}

// Dedupe collapses mapped rows to one per natural key. Where several rows
// share a key the last-seen row wins: the source guarantees no meaningful
// order beyond file order, so last-write-wins is an explicit policy, not an
// accident. Output order is the first-seen order of each key, which keeps
// dedupe deterministic end to end.
func Dedupe(facts []model.MappedFactRow) []model.MappedFactRow {
	seen := make(map[string]int, len(facts))
	out := make([]model.MappedFactRow, 0, len(facts))
	for _, f := range facts {
		k := NaturalKey(f)
		if i, dup := seen[k]; dup {
			out[i] = f
			continue
		}
		seen[k] = len(out)
		out = append(out, f)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
