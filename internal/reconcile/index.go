package reconcile

import (
	"time"

	"github.com/sells-group/adsync/internal/model"
)

// CampaignRef is one campaign candidate under a normalized name.
type CampaignRef struct {
	ID          string
	PortfolioID *string
}

// AdGroupRef is one ad group candidate under a (campaign, name) key.
type AdGroupRef struct {
	ID         string
	CampaignID string
}

// TargetRef is one target candidate under a (ad group, expression, negative)
// key. MatchTypeNorm stays on the ref rather than in the key so an unknown
// report match type can match any stored one.
type TargetRef struct {
	ID            string
	AdGroupID     string
	MatchTypeNorm model.MatchType
}

type adGroupNameKey struct {
	campaignID string
	nameNorm   string
}

type targetExprKey struct {
	adGroupID  string
	exprNorm   string
	isNegative bool
}

type levelNameKey struct {
	level    model.EntityLevel
	nameNorm string
}

// SnapshotIndex is the read-only lookup structure built from one inventory
// snapshot plus the account's override and history tables. Every name map is
// multi-valued: a normalized name can map to zero, one, or many IDs, and
// ambiguity is a first-class resolution outcome. Construction is a pure batch
// read; the index is never mutated afterwards, so concurrent resolutions may
// share one instance.
type SnapshotIndex struct {
	AccountID    string
	SnapshotDate time.Time

	campaignsByName  map[string][]CampaignRef
	campaignsByID    map[string]model.Campaign
	adGroupsByName   map[adGroupNameKey][]AdGroupRef
	adGroupsByID     map[string]model.AdGroup
	targetsByKey     map[targetExprKey][]TargetRef
	targetsByID      map[string]model.Target
	portfoliosByName map[string][]string
	categoryIDByName map[string]string

	// History and overrides are loaded account-wide with no date scoping;
	// time filtering happens at resolve time against the reference date.
	history   map[levelNameKey][]model.NameHistoryRecord
	overrides map[levelNameKey][]model.ManualOverride
}

// BuildIndex constructs a SnapshotIndex from a loaded snapshot and the
// account-wide override and history tables. History is optional: stores
// without history tables pass nil and resolution skips that tier.
func BuildIndex(snap *model.InventorySnapshot, overrides []model.ManualOverride, history []model.NameHistoryRecord) *SnapshotIndex {
	ix := &SnapshotIndex{
		AccountID:    snap.AccountID,
		SnapshotDate: snap.SnapshotDate,

		campaignsByName:  make(map[string][]CampaignRef, len(snap.Campaigns)),
		campaignsByID:    make(map[string]model.Campaign, len(snap.Campaigns)),
		adGroupsByName:   make(map[adGroupNameKey][]AdGroupRef, len(snap.AdGroups)),
		adGroupsByID:     make(map[string]model.AdGroup, len(snap.AdGroups)),
		targetsByKey:     make(map[targetExprKey][]TargetRef, len(snap.Targets)),
		targetsByID:      make(map[string]model.Target, len(snap.Targets)),
		portfoliosByName: make(map[string][]string, len(snap.Portfolios)),
		categoryIDByName: make(map[string]string, len(snap.Categories)),
		history:          make(map[levelNameKey][]model.NameHistoryRecord, len(history)),
		overrides:        make(map[levelNameKey][]model.ManualOverride, len(overrides)),
	}

	for _, c := range snap.Campaigns {
		ix.campaignsByName[c.NameNorm] = append(ix.campaignsByName[c.NameNorm], CampaignRef{ID: c.ID, PortfolioID: c.PortfolioID})
		ix.campaignsByID[c.ID] = c
	}
	for _, g := range snap.AdGroups {
		k := adGroupNameKey{campaignID: g.CampaignID, nameNorm: g.NameNorm}
		ix.adGroupsByName[k] = append(ix.adGroupsByName[k], AdGroupRef{ID: g.ID, CampaignID: g.CampaignID})
		ix.adGroupsByID[g.ID] = g
	}
	for _, t := range snap.Targets {
		k := targetExprKey{adGroupID: t.AdGroupID, exprNorm: t.ExpressionNorm, isNegative: t.IsNegative}
		ix.targetsByKey[k] = append(ix.targetsByKey[k], TargetRef{ID: t.ID, AdGroupID: t.AdGroupID, MatchTypeNorm: t.MatchTypeNorm})
		ix.targetsByID[t.ID] = t
	}
	for _, p := range snap.Portfolios {
		ix.portfoliosByName[p.NameNorm] = append(ix.portfoliosByName[p.NameNorm], p.ID)
	}
	for _, c := range snap.Categories {
		ix.categoryIDByName[c.NameNorm] = c.ID
	}
	for _, h := range history {
		k := levelNameKey{level: h.EntityLevel, nameNorm: h.NameNorm}
		ix.history[k] = append(ix.history[k], h)
	}
	for _, o := range overrides {
		k := levelNameKey{level: o.EntityLevel, nameNorm: o.NameNorm}
		ix.overrides[k] = append(ix.overrides[k], o)
	}

	return ix
}

// Campaign returns the snapshot campaign with the given ID.
func (ix *SnapshotIndex) Campaign(id string) (model.Campaign, bool) {
	c, ok := ix.campaignsByID[id]
	return c, ok
}

// AdGroup returns the snapshot ad group with the given ID.
func (ix *SnapshotIndex) AdGroup(id string) (model.AdGroup, bool) {
	g, ok := ix.adGroupsByID[id]
	return g, ok
}

// Target returns the snapshot target with the given ID.
func (ix *SnapshotIndex) Target(id string) (model.Target, bool) {
	t, ok := ix.targetsByID[id]
	return t, ok
}

// CategoryIDs exposes the category name-to-ID table for expression
// normalization.
func (ix *SnapshotIndex) CategoryIDs() map[string]string {
	return ix.categoryIDByName
}
