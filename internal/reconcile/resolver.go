package reconcile

import (
	"sort"
	"time"

	"github.com/sells-group/adsync/internal/model"
)

// ResolutionStatus is the outcome of one resolution step.
type ResolutionStatus string

const (
	// StatusOK means the step narrowed to exactly one entity ID.
	StatusOK ResolutionStatus = "ok"
	// StatusAmbiguous means multiple entities matched with no
	// disambiguating signal. Candidates lists every matching ID.
	StatusAmbiguous ResolutionStatus = "ambiguous"
	// StatusNotFound means zero entities matched at any tier.
	StatusNotFound ResolutionStatus = "not_found"
)

// Resolution is the tagged result of a single name-chain step. Ambiguity is
// an explicit variant, never a sentinel: callers must branch on Status.
type Resolution struct {
	Status     ResolutionStatus
	ID         string
	Candidates []string
}

func ok(id string) Resolution { return Resolution{Status: StatusOK, ID: id} }

func ambiguous(candidates []string) Resolution {
	sort.Strings(candidates)
	return Resolution{Status: StatusAmbiguous, Candidates: candidates}
}

var notFound = Resolution{Status: StatusNotFound}

// ResolveCampaign resolves a normalized campaign name to a campaign ID.
// Tier 1 is the live snapshot; a supplied portfolio name narrows multiple
// matches. Tier 2 is the name-history table and tier 3 the manual-override
// table, both filtered to windows containing referenceDate. Tiers 2 and 3
// are consulted only when the snapshot has zero matches, so a history record
// can never contradict a resolution the live snapshot already satisfies.
func (ix *SnapshotIndex) ResolveCampaign(nameNorm, portfolioNameNorm string, referenceDate time.Time) Resolution {
	refs := ix.campaignsByName[nameNorm]
	switch len(refs) {
	case 1:
		return ok(refs[0].ID)
	case 0:
		// fall through to history/override
	default:
		if portfolioNameNorm != "" {
			if narrowed := narrowByPortfolio(refs, ix.portfoliosByName[portfolioNameNorm]); len(narrowed) == 1 {
				return ok(narrowed[0].ID)
			}
		}
		return ambiguous(campaignIDs(refs))
	}

	if r, done := ix.resolveHistorical(model.LevelCampaign, nameNorm, referenceDate, nil); done {
		return r
	}
	return notFound
}

// ResolveAdGroup resolves a normalized ad group name scoped to a campaign.
// It never resolves across campaigns: history and override entries only
// apply when the recorded entity is an ad group of campaignID.
func (ix *SnapshotIndex) ResolveAdGroup(campaignID, nameNorm string, referenceDate time.Time) Resolution {
	refs := ix.adGroupsByName[adGroupNameKey{campaignID: campaignID, nameNorm: nameNorm}]
	switch len(refs) {
	case 1:
		return ok(refs[0].ID)
	case 0:
		// fall through
	default:
		return ambiguous(adGroupIDs(refs))
	}

	inScope := func(entityID string) bool {
		g, found := ix.adGroupsByID[entityID]
		return found && g.CampaignID == campaignID
	}
	if r, done := ix.resolveHistorical(model.LevelAdGroup, nameNorm, referenceDate, inScope); done {
		return r
	}
	return notFound
}

// ResolveTarget resolves a normalized targeting expression scoped to an ad
// group. model.MatchUnknown matches any stored match type; a concrete match
// type must agree exactly. The negative flag is part of target identity.
func (ix *SnapshotIndex) ResolveTarget(adGroupID, exprNorm string, matchType model.MatchType, isNegative bool, referenceDate time.Time) Resolution {
	refs := ix.targetsByKey[targetExprKey{adGroupID: adGroupID, exprNorm: exprNorm, isNegative: isNegative}]

	var matched []TargetRef
	for _, ref := range refs {
		if matchType == model.MatchUnknown || matchType == "" || ref.MatchTypeNorm == matchType {
			matched = append(matched, ref)
		}
	}
	switch len(matched) {
	case 1:
		return ok(matched[0].ID)
	case 0:
		// fall through
	default:
		return ambiguous(targetIDs(matched))
	}

	inScope := func(entityID string) bool {
		t, found := ix.targetsByID[entityID]
		return found && t.AdGroupID == adGroupID
	}
	if r, done := ix.resolveHistorical(model.LevelTarget, exprNorm, referenceDate, inScope); done {
		return r
	}
	return notFound
}

// resolveHistorical runs tiers 2 and 3: time-scoped history records, then
// time-scoped manual overrides. inScope optionally restricts candidates to
// entities belonging to the already-established parent; entities absent from
// the snapshot cannot be scope-checked and are skipped. The second return is
// false when neither tier produced a result.
func (ix *SnapshotIndex) resolveHistorical(level model.EntityLevel, nameNorm string, referenceDate time.Time, inScope func(string) bool) (Resolution, bool) {
	k := levelNameKey{level: level, nameNorm: nameNorm}

	var historical []string
	for _, h := range ix.history[k] {
		if !h.Contains(referenceDate) {
			continue
		}
		if inScope != nil && !inScope(h.EntityID) {
			continue
		}
		historical = append(historical, h.EntityID)
	}
	switch len(historical) {
	case 1:
		return ok(historical[0]), true
	case 0:
	default:
		return ambiguous(historical), true
	}

	var overridden []string
	for _, o := range ix.overrides[k] {
		if !o.Contains(referenceDate) {
			continue
		}
		if inScope != nil && !inScope(o.EntityID) {
			continue
		}
		overridden = append(overridden, o.EntityID)
	}
	switch len(overridden) {
	case 1:
		return ok(overridden[0]), true
	case 0:
		return Resolution{}, false
	default:
		return ambiguous(overridden), true
	}
}

// narrowByPortfolio keeps the campaign refs whose portfolio is one of the
// IDs the supplied portfolio name resolves to.
func narrowByPortfolio(refs []CampaignRef, portfolioIDs []string) []CampaignRef {
	if len(portfolioIDs) == 0 {
		return nil
	}
	ids := make(map[string]struct{}, len(portfolioIDs))
	for _, id := range portfolioIDs {
		ids[id] = struct{}{}
	}
	var narrowed []CampaignRef
	for _, ref := range refs {
		if ref.PortfolioID == nil {
			continue
		}
		if _, found := ids[*ref.PortfolioID]; found {
			narrowed = append(narrowed, ref)
		}
	}
	return narrowed
}

func campaignIDs(refs []CampaignRef) []string {
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return ids
}

func adGroupIDs(refs []AdGroupRef) []string {
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return ids
}

func targetIDs(refs []TargetRef) []string {
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return ids
}
