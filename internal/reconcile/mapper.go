package reconcile

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/adsync/internal/model"
)

// MapResult is the outcome of mapping one batch of raw rows: resolved fact
// rows plus deduplicated issues. A given raw-row key appears in facts or in
// issues, never both.
type MapResult struct {
	Facts  []model.MappedFactRow
	Issues []model.MappingIssue
}

// MapRows streams a batch of raw rows of one report shape through the
// resolver. Rows resolve top-down through the name chain (campaign, then ad
// group, then target) and short-circuit on the first failing step: the whole
// row is dropped and recorded as a pending issue, never partially mapped.
// Resolution failures are expected, recoverable outcomes; the only error
// returned is an internal scope violation, which is a defect.
func MapRows(uploadID string, reportType model.ReportType, rows []model.RawReportRow, ix *SnapshotIndex, referenceDate time.Time) (*MapResult, error) {
	if !reportType.Valid() {
		return nil, eris.Errorf("mapper: unknown report type %q", reportType)
	}

	col := newIssueCollector(uploadID, reportType)
	facts := make([]model.MappedFactRow, 0, len(rows))

	for _, row := range rows {
		fact, err := mapRow(uploadID, reportType, row, ix, referenceDate, col)
		if err != nil {
			return nil, err
		}
		if fact != nil {
			facts = append(facts, *fact)
		}
	}

	issues := col.finalize()
	zap.L().With(zap.String("component", "reconcile.mapper")).Info("batch mapped",
		zap.String("upload_id", uploadID),
		zap.String("report_type", string(reportType)),
		zap.Int("rows_in", len(rows)),
		zap.Int("facts", len(facts)),
		zap.Int("issues", len(issues)),
	)
	return &MapResult{Facts: facts, Issues: issues}, nil
}

func mapRow(uploadID string, reportType model.ReportType, row model.RawReportRow, ix *SnapshotIndex, referenceDate time.Time, col *issueCollector) (*model.MappedFactRow, error) {
	ck := campaignIssueKey{CampaignNameNorm: row.CampaignNameNorm, PortfolioNameNorm: row.PortfolioNameNorm}
	cres := ix.ResolveCampaign(row.CampaignNameNorm, row.PortfolioNameNorm, referenceDate)
	if cres.Status != StatusOK {
		col.fail(model.LevelCampaign, ck, cres)
		return nil, nil
	}
	col.succeed(model.LevelCampaign, ck)

	fact := &model.MappedFactRow{
		AccountID:       ix.AccountID,
		UploadID:        uploadID,
		ReportType:      reportType,
		Date:            model.Date(row.Date),
		CampaignID:      cres.ID,
		CampaignNameRaw: row.CampaignNameRaw,
		Metrics:         row.Metrics,
	}
	if reportType == model.ReportCampaigns {
		return fact, nil
	}

	gk := adGroupIssueKey{CampaignID: cres.ID, AdGroupNameNorm: row.AdGroupNameNorm}
	gres := ix.ResolveAdGroup(cres.ID, row.AdGroupNameNorm, referenceDate)
	if gres.Status != StatusOK {
		col.fail(model.LevelAdGroup, gk, gres)
		return nil, nil
	}
	col.succeed(model.LevelAdGroup, gk)
	if g, found := ix.AdGroup(gres.ID); found && g.CampaignID != cres.ID {
		return nil, eris.Errorf("mapper: scope violation: ad group %s belongs to campaign %s, not %s", gres.ID, g.CampaignID, cres.ID)
	}
	adGroupID := gres.ID
	fact.AdGroupID = &adGroupID
	fact.AdGroupNameRaw = row.AdGroupNameRaw

	exprNorm := NormalizeExpression(row.TargetingNorm, ix.CategoryIDs())
	fact.TargetingRaw = row.TargetingRaw
	fact.MatchTypeNorm = row.MatchTypeNorm
	fact.SearchTermNorm = row.SearchTermNorm
	fact.TargetKey = TargetKey(cres.ID, adGroupID, exprNorm, row.MatchTypeNorm, row.IsNegative)

	// Search-term rows that carry a literal customer search term, or the
	// auto-targeting wildcard, reference no targeting entity at all. They
	// still produce a fact row; the synthesized target key stands in for
	// the missing foreign key at upsert time.
	if reportType == model.ReportSearchTerms && isLiteralSearchTermRow(row, exprNorm) {
		return fact, nil
	}

	tk := targetIssueKey{AdGroupID: adGroupID, TargetingNorm: exprNorm, MatchType: row.MatchTypeNorm, IsNegative: row.IsNegative}
	tres := ix.ResolveTarget(adGroupID, exprNorm, row.MatchTypeNorm, row.IsNegative, referenceDate)
	if tres.Status != StatusOK {
		col.fail(model.LevelTarget, tk, tres)
		return nil, nil
	}
	col.succeed(model.LevelTarget, tk)
	if t, found := ix.Target(tres.ID); found && t.AdGroupID != adGroupID {
		return nil, eris.Errorf("mapper: scope violation: target %s belongs to ad group %s, not %s", tres.ID, t.AdGroupID, adGroupID)
	}
	targetID := tres.ID
	fact.TargetID = &targetID

	return fact, nil
}

// isLiteralSearchTermRow reports whether a search-term row's targeting field
// is not a resolvable expression: the auto-targeting wildcard, an empty
// expression, or an auto-campaign row whose targeting column repeats the
// customer search term instead of naming a target.
func isLiteralSearchTermRow(row model.RawReportRow, exprNorm string) bool {
	if exprNorm == WildcardExpression || exprNorm == "" {
		return true
	}
	return row.MatchTypeNorm == model.MatchAuto
}
