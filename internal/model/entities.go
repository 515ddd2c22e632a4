// Package model defines the domain types shared across the reconciliation
// pipeline: inventory snapshot entities, raw report rows, mapped fact rows,
// and mapping issues.
package model

import "time"

// EntityLevel identifies which step of the name chain a record refers to.
type EntityLevel string

const (
	LevelCampaign  EntityLevel = "campaign"
	LevelAdGroup   EntityLevel = "ad_group"
	LevelTarget    EntityLevel = "target"
	LevelPortfolio EntityLevel = "portfolio"
)

// MatchType is the normalized match type of a target.
// MatchUnknown acts as a wildcard during resolution: source reports sometimes
// omit the match type for product-targeting expressions.
type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchPhrase  MatchType = "phrase"
	MatchBroad   MatchType = "broad"
	MatchAuto    MatchType = "auto"
	MatchUnknown MatchType = "unknown"
)

// Campaign is one campaign row from an inventory snapshot.
// Normalized names are not unique within a snapshot; renames and duplicates
// can leave several campaigns sharing one name_norm.
type Campaign struct {
	ID          string  `json:"campaign_id"`
	NameRaw     string  `json:"name_raw"`
	NameNorm    string  `json:"name_norm"`
	PortfolioID *string `json:"portfolio_id,omitempty"`
}

// AdGroup is one ad group row from an inventory snapshot, scoped under a
// campaign. The same name may recur under different campaigns.
type AdGroup struct {
	ID         string `json:"ad_group_id"`
	CampaignID string `json:"campaign_id"`
	NameRaw    string `json:"name_raw"`
	NameNorm   string `json:"name_norm"`
}

// Target is one keyword or product-targeting row from an inventory snapshot,
// scoped under an ad group. Identity requires expression + match type +
// negative flag, not expression alone.
type Target struct {
	ID             string    `json:"target_id"`
	AdGroupID      string    `json:"ad_group_id"`
	ExpressionRaw  string    `json:"expression_raw"`
	ExpressionNorm string    `json:"expression_norm"`
	MatchTypeNorm  MatchType `json:"match_type_norm"`
	IsNegative     bool      `json:"is_negative"`
}

// Portfolio is one portfolio row from an inventory snapshot.
type Portfolio struct {
	ID       string `json:"portfolio_id"`
	NameRaw  string `json:"name_raw"`
	NameNorm string `json:"name_norm"`
}

// ProductCategory maps a human-readable product category name to its stable
// platform ID. Snapshots store targeting expressions with IDs, while reports
// sometimes carry the display name; expression normalization substitutes one
// for the other.
type ProductCategory struct {
	ID       string `json:"category_id"`
	NameNorm string `json:"name_norm"`
}

// InventorySnapshot is a dated, immutable enumeration of an account's
// entities as reported by the source-of-truth bulk export. Snapshots are
// created once per ingested export and superseded, never mutated.
type InventorySnapshot struct {
	AccountID    string            `json:"account_id"`
	SnapshotDate time.Time         `json:"snapshot_date"`
	Campaigns    []Campaign        `json:"campaigns"`
	AdGroups     []AdGroup         `json:"ad_groups"`
	Targets      []Target          `json:"targets"`
	Portfolios   []Portfolio       `json:"portfolios"`
	Categories   []ProductCategory `json:"categories,omitempty"`
}

// NameHistoryRecord states that an entity was known by name_norm during
// [ValidFrom, ValidTo). A nil ValidTo means the name is still current.
type NameHistoryRecord struct {
	EntityLevel EntityLevel `json:"entity_level"`
	EntityID    string      `json:"entity_id"`
	NameNorm    string      `json:"name_norm"`
	ValidFrom   time.Time   `json:"valid_from"`
	ValidTo     *time.Time  `json:"valid_to,omitempty"`
}

// Contains reports whether the half-open validity window covers ref.
func (r NameHistoryRecord) Contains(ref time.Time) bool {
	return intervalContains(&r.ValidFrom, r.ValidTo, ref)
}

// ManualOverride is an operator-asserted name-to-ID mapping consulted when
// automatic resolution finds nothing. Both bounds are optional.
type ManualOverride struct {
	EntityLevel EntityLevel `json:"entity_level"`
	EntityID    string      `json:"entity_id"`
	NameNorm    string      `json:"name_norm"`
	ValidFrom   *time.Time  `json:"valid_from,omitempty"`
	ValidTo     *time.Time  `json:"valid_to,omitempty"`
}

// Contains reports whether the override window covers ref.
func (o ManualOverride) Contains(ref time.Time) bool {
	return intervalContains(o.ValidFrom, o.ValidTo, ref)
}

// intervalContains checks from <= ref < to with nil meaning unbounded.
func intervalContains(from, to *time.Time, ref time.Time) bool {
	if from != nil && ref.Before(*from) {
		return false
	}
	if to != nil && !ref.Before(*to) {
		return false
	}
	return true
}

// Date truncates t to a UTC calendar date. Snapshot dates, export dates, and
// report row dates are all date-valued.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateOf builds a UTC calendar date.
func DateOf(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
