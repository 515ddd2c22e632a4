package model

import "time"

// ReportType identifies the shape of an ingested performance report.
type ReportType string

const (
	// ReportCampaigns is the campaign-level daily report: one row per
	// campaign per day, no ad group or target columns.
	ReportCampaigns ReportType = "sp_campaigns"

	// ReportTargeting is the targeting report: one row per
	// campaign/ad-group/target per day.
	ReportTargeting ReportType = "sp_targeting"

	// ReportSearchTerms is the search-term report: targeting rows enriched
	// with the customer search term that triggered them. Auto-targeted rows
	// carry the wildcard expression "*" and resolve to no target.
	ReportSearchTerms ReportType = "sp_search_terms"
)

// Valid reports whether t is a known report type.
func (t ReportType) Valid() bool {
	switch t {
	case ReportCampaigns, ReportTargeting, ReportSearchTerms:
		return true
	}
	return false
}

// NeedsAdGroup reports whether rows of this shape carry an ad group name.
func (t ReportType) NeedsAdGroup() bool { return t != ReportCampaigns }

// ReportUpload is one registered report ingestion batch. The ID is derived
// deterministically from the account, report type, and file contents, so
// re-ingesting an identical file re-runs the same upload instead of creating
// a new one.
type ReportUpload struct {
	ID         string     `json:"id"`
	AccountID  string     `json:"account_id"`
	ReportType ReportType `json:"report_type"`
	ExportedAt time.Time  `json:"exported_at"`
	SourceFile string     `json:"source_file,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Metrics holds the performance measures carried by every report row.
type Metrics struct {
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Spend       float64 `json:"spend"`
	Sales       float64 `json:"sales"`
	Orders      int64   `json:"orders"`
	Units       int64   `json:"units"`
}

// RawReportRow is one parsed line of an ingested report. It carries only raw
// and normalized names, never IDs; resolution attaches those later. Fields
// not applicable to the row's report type are empty.
type RawReportRow struct {
	UploadID   string     `json:"upload_id"`
	ReportType ReportType `json:"report_type"`
	RowNum     int        `json:"row_num"`
	Date       time.Time  `json:"date"`

	CampaignNameRaw   string `json:"campaign_name_raw"`
	CampaignNameNorm  string `json:"campaign_name_norm"`
	PortfolioNameRaw  string `json:"portfolio_name_raw,omitempty"`
	PortfolioNameNorm string `json:"portfolio_name_norm,omitempty"`
	AdGroupNameRaw    string `json:"ad_group_name_raw,omitempty"`
	AdGroupNameNorm   string `json:"ad_group_name_norm,omitempty"`

	TargetingRaw   string    `json:"targeting_raw,omitempty"`
	TargetingNorm  string    `json:"targeting_norm,omitempty"`
	MatchTypeNorm  MatchType `json:"match_type_norm,omitempty"`
	IsNegative     bool      `json:"is_negative,omitempty"`
	SearchTermRaw  string    `json:"customer_search_term_raw,omitempty"`
	SearchTermNorm string    `json:"customer_search_term_norm,omitempty"`

	Metrics Metrics `json:"metrics"`
}

// MappedFactRow is a RawReportRow enriched with resolved IDs. AdGroupID and
// TargetID are nil where the report shape does not carry them or, for
// search-term rows, where no real target exists. TargetKey is always set for
// target-bearing shapes so repeated ingestion upserts in place even without a
// target foreign key.
type MappedFactRow struct {
	AccountID  string     `json:"account_id"`
	UploadID   string     `json:"upload_id"`
	ReportType ReportType `json:"report_type"`
	Date       time.Time  `json:"date"`

	CampaignID string  `json:"campaign_id"`
	AdGroupID  *string `json:"ad_group_id,omitempty"`
	TargetID   *string `json:"target_id,omitempty"`
	TargetKey  string  `json:"target_key,omitempty"`

	CampaignNameRaw string    `json:"campaign_name_raw"`
	AdGroupNameRaw  string    `json:"ad_group_name_raw,omitempty"`
	TargetingRaw    string    `json:"targeting_raw,omitempty"`
	MatchTypeNorm   MatchType `json:"match_type_norm,omitempty"`
	SearchTermNorm  string    `json:"customer_search_term_norm,omitempty"`

	Metrics Metrics `json:"metrics"`
}
