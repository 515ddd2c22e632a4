package reconcile

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/adsync/internal/model"
)

// DefaultLookAheadDays bounds how far past the export date the selector will
// consider snapshots. Reports are sometimes exported slightly before the
// inventory export catches up.
const DefaultLookAheadDays = 7

// SnapshotScorer answers how many of a report's distinct normalized campaign
// names exist in a given snapshot's campaign set, exact match only.
type SnapshotScorer interface {
	CountCampaignNames(ctx context.Context, accountID string, snapshotDate time.Time, nameNorms []string) (int, error)
}

// SelectSnapshot chooses which snapshot a report batch should reconcile
// against, or nil when no snapshot is eligible (the caller records one
// missing_bulk_snapshot issue and maps zero rows).
//
// With no distinct campaign names to score, it falls back to the latest
// candidate on or before exportedAt. Otherwise every candidate on or before
// exportedAt, plus candidates within lookAheadDays after it, is scored by
// content overlap; the highest score wins. Ties break by smaller absolute
// date distance, then by preferring the candidate on or before exportedAt.
// Date proximity alone is not enough: a near-in-time snapshot whose campaign
// set has diverged would produce a wave of false unmapped issues.
func SelectSnapshot(ctx context.Context, scorer SnapshotScorer, accountID string, campaignNameNorms []string, exportedAt time.Time, candidateDates []time.Time, lookAheadDays int) (*time.Time, error) {
	if lookAheadDays <= 0 {
		lookAheadDays = DefaultLookAheadDays
	}
	exportedAt = model.Date(exportedAt)

	if len(campaignNameNorms) == 0 {
		return latestOnOrBefore(candidateDates, exportedAt), nil
	}

	horizon := exportedAt.AddDate(0, 0, lookAheadDays)
	var candidates []time.Time
	for _, d := range candidateDates {
		d = model.Date(d)
		if !d.After(horizon) {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	log := zap.L().With(
		zap.String("component", "reconcile.selector"),
		zap.String("account_id", accountID),
	)

	var (
		best      time.Time
		bestScore = -1
	)
	for _, d := range candidates {
		score, err := scorer.CountCampaignNames(ctx, accountID, d, campaignNameNorms)
		if err != nil {
			return nil, eris.Wrapf(err, "selector: score snapshot %s", d.Format("2006-01-02"))
		}
		if bestScore < 0 || better(d, score, best, bestScore, exportedAt) {
			best, bestScore = d, score
		}
	}

	log.Info("snapshot selected",
		zap.String("snapshot_date", best.Format("2006-01-02")),
		zap.Int("overlap", bestScore),
		zap.Int("names", len(campaignNameNorms)),
		zap.Int("candidates", len(candidates)),
	)
	return &best, nil
}

// better reports whether candidate (d, score) beats the current best.
// Ordering: higher score, then smaller date distance to exportedAt, then
// on-or-before over after.
func better(d time.Time, score int, best time.Time, bestScore int, exportedAt time.Time) bool {
	if score != bestScore {
		return score > bestScore
	}
	dd, bd := dateDistance(d, exportedAt), dateDistance(best, exportedAt)
	if dd != bd {
		return dd < bd
	}
	return !d.After(exportedAt) && best.After(exportedAt)
}

func dateDistance(a, b time.Time) time.Duration {
	if a.Before(b) {
		return b.Sub(a)
	}
	return a.Sub(b)
}

// latestOnOrBefore is the simple fallback rule used when the report yields
// no campaign names to score against.
func latestOnOrBefore(candidateDates []time.Time, exportedAt time.Time) *time.Time {
	var best *time.Time
	for _, d := range candidateDates {
		d = model.Date(d)
		if d.After(exportedAt) {
			continue
		}
		if best == nil || d.After(*best) {
			dc := d
			best = &dc
		}
	}
	return best
}
