package traceability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyExpiry(t *testing.T) {
	today := time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC)
	day := func(offset int) *time.Time {
		d := today.AddDate(0, 0, offset)
		return &d
	}

	tests := []struct {
		name       string
		useBy      *time.Time
		bestBefore *time.Time
		expected   ExpirySeverity
	}{
		{"no dates", nil, nil, ExpirySeverityNone},
		{"use-by far out", day(30), nil, ExpirySeverityNone},
		{"use-by yesterday is expired", day(-1), nil, ExpirySeverityExpired},
		{"use-by today is critical not expired", day(0), nil, ExpirySeverityCritical},
		{"use-by tomorrow within 3-day window", day(1), nil, ExpirySeverityCritical},
		{"use-by exactly at window edge", day(3), nil, ExpirySeverityCritical},
		{"use-by just past window edge", day(4), nil, ExpirySeverityNone},
		{"best-before past caps at warning", nil, day(-5), ExpirySeverityWarning},
		{"best-before within window", nil, day(7), ExpirySeverityWarning},
		{"best-before outside window", nil, day(8), ExpirySeverityNone},
		{"expired use-by beats best-before warning", day(-1), day(-5), ExpirySeverityExpired},
		{"critical use-by beats best-before warning", day(2), day(-5), ExpirySeverityCritical},
		{"best-before warning with healthy use-by", day(30), day(2), ExpirySeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyExpiry(tt.useBy, tt.bestBefore, today, 3, 7)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDaysUntil(t *testing.T) {
	today := time.Date(2026, 8, 30, 23, 59, 0, 0, time.UTC)

	// Comparison is at date granularity, time of day is irrelevant.
	morning := time.Date(2026, 8, 31, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysUntil(morning, today))

	assert.Equal(t, 0, DaysUntil(today, today))
	assert.Equal(t, -1, DaysUntil(today.AddDate(0, 0, -1), today))
	assert.Equal(t, 14, DaysUntil(today.AddDate(0, 0, 14), today))
}

func TestExpirySeverity_MoreSevere(t *testing.T) {
	assert.True(t, ExpirySeverityExpired.MoreSevere(ExpirySeverityCritical))
	assert.True(t, ExpirySeverityCritical.MoreSevere(ExpirySeverityWarning))
	assert.True(t, ExpirySeverityWarning.MoreSevere(ExpirySeverityNone))
	assert.False(t, ExpirySeverityNone.MoreSevere(ExpirySeverityWarning))
	assert.False(t, ExpirySeverityWarning.MoreSevere(ExpirySeverityWarning))
}
