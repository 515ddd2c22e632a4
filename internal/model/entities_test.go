package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func tp(t time.Time) *time.Time { return &t }

func TestNameHistoryRecord_Contains(t *testing.T) {
	rec := NameHistoryRecord{
		ValidFrom: DateOf(2026, 1, 1),
		ValidTo:   tp(DateOf(2026, 2, 1)),
	}

	assert.True(t, rec.Contains(DateOf(2026, 1, 1)), "start bound is inclusive")
	assert.True(t, rec.Contains(DateOf(2026, 1, 15)))
	assert.False(t, rec.Contains(DateOf(2026, 2, 1)), "end bound is exclusive")
	assert.False(t, rec.Contains(DateOf(2025, 12, 31)))
}

func TestNameHistoryRecord_OpenEnded(t *testing.T) {
	rec := NameHistoryRecord{ValidFrom: DateOf(2026, 1, 1)}

	assert.True(t, rec.Contains(DateOf(2030, 1, 1)))
	assert.False(t, rec.Contains(DateOf(2025, 1, 1)))
}

func TestManualOverride_Contains(t *testing.T) {
	unbounded := ManualOverride{}
	assert.True(t, unbounded.Contains(DateOf(2026, 6, 1)))

	from := ManualOverride{ValidFrom: tp(DateOf(2026, 1, 1))}
	assert.True(t, from.Contains(DateOf(2026, 1, 1)))
	assert.False(t, from.Contains(DateOf(2025, 12, 31)))

	to := ManualOverride{ValidTo: tp(DateOf(2026, 2, 1))}
	assert.True(t, to.Contains(DateOf(2026, 1, 31)))
	assert.False(t, to.Contains(DateOf(2026, 2, 1)))
}

func TestDate_TruncatesToUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	in := time.Date(2026, 3, 5, 2, 30, 0, 0, loc) // 2026-03-04T17:30Z

	assert.Equal(t, DateOf(2026, 3, 4), Date(in))
}

func TestReportType(t *testing.T) {
	assert.True(t, ReportCampaigns.Valid())
	assert.True(t, ReportTargeting.Valid())
	assert.True(t, ReportSearchTerms.Valid())
	assert.False(t, ReportType("sp_bogus").Valid())

	assert.False(t, ReportCampaigns.NeedsAdGroup())
	assert.True(t, ReportTargeting.NeedsAdGroup())
	assert.True(t, ReportSearchTerms.NeedsAdGroup())
}
