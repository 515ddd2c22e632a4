package reconcile

import (
	"encoding/json"

	"github.com/sells-group/adsync/internal/model"
)

// campaignIssueKey identifies an unresolved campaign-level name chain.
type campaignIssueKey struct {
	CampaignNameNorm  string `json:"campaign_name_norm"`
	PortfolioNameNorm string `json:"portfolio_name_norm,omitempty"`
}

// adGroupIssueKey identifies an unresolved ad group under a resolved campaign.
type adGroupIssueKey struct {
	CampaignID      string `json:"campaign_id"`
	AdGroupNameNorm string `json:"ad_group_name_norm"`
}

// targetIssueKey identifies an unresolved target under a resolved ad group.
type targetIssueKey struct {
	AdGroupID     string          `json:"ad_group_id"`
	TargetingNorm string          `json:"targeting_norm"`
	MatchType     model.MatchType `json:"match_type_norm,omitempty"`
	IsNegative    bool            `json:"is_negative,omitempty"`
}

type collectorKey struct {
	level   model.EntityLevel
	keyJSON string
}

type pendingIssue struct {
	issueType  model.IssueType
	candidates []string
	rowCount   int
}

// issueCollector aggregates resolution failures across a batch. An issue is
// emitted once per distinct (level, key) with a row count, and only if no
// row with that exact key ever succeeded: the same campaign name can resolve
// for some rows and fail for others within one batch, and a key that
// succeeded anywhere is not an issue.
type issueCollector struct {
	uploadID   string
	reportType model.ReportType

	pending  map[collectorKey]*pendingIssue
	resolved map[collectorKey]struct{}
	order    []collectorKey
}

func newIssueCollector(uploadID string, reportType model.ReportType) *issueCollector {
	return &issueCollector{
		uploadID:   uploadID,
		reportType: reportType,
		pending:    make(map[collectorKey]*pendingIssue),
		resolved:   make(map[collectorKey]struct{}),
	}
}

// keyJSON is the deterministic serialization used for issue identity.
// Struct marshaling preserves field order, so identical keys always produce
// identical JSON.
func keyJSON(key any) string {
	b, err := json.Marshal(key)
	if err != nil {
		// Issue keys are plain structs of strings and bools; marshal
		// cannot fail on them.
		panic(err)
	}
	return string(b)
}

func (c *issueCollector) fail(level model.EntityLevel, key any, res Resolution) {
	k := collectorKey{level: level, keyJSON: keyJSON(key)}
	p, found := c.pending[k]
	if !found {
		issueType := model.IssueUnmapped
		if res.Status == StatusAmbiguous {
			issueType = model.IssueAmbiguous
		}
		p = &pendingIssue{issueType: issueType, candidates: res.Candidates}
		c.pending[k] = p
		c.order = append(c.order, k)
	}
	p.rowCount++
}

func (c *issueCollector) succeed(level model.EntityLevel, key any) {
	c.resolved[collectorKey{level: level, keyJSON: keyJSON(key)}] = struct{}{}
}

// finalize filters pending issues against the resolved-key sets and emits
// one MappingIssue per surviving key, in first-seen order.
func (c *issueCollector) finalize() []model.MappingIssue {
	var issues []model.MappingIssue
	for _, k := range c.order {
		if _, wasResolved := c.resolved[k]; wasResolved {
			continue
		}
		p := c.pending[k]
		issue := model.MappingIssue{
			UploadID:    c.uploadID,
			ReportType:  c.reportType,
			EntityLevel: k.level,
			IssueType:   p.issueType,
			KeyJSON:     k.keyJSON,
			RowCount:    p.rowCount,
		}
		if p.issueType == model.IssueAmbiguous && len(p.candidates) > 0 {
			issue.CandidatesJSON = keyJSON(p.candidates)
		}
		issues = append(issues, issue)
	}
	return issues
}
