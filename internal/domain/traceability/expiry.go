package traceability

import "time"

// ExpirySeverity classifies how close a batch is to its dates
type ExpirySeverity string

const (
	ExpirySeverityNone     ExpirySeverity = "none"
	ExpirySeverityWarning  ExpirySeverity = "warning"
	ExpirySeverityCritical ExpirySeverity = "critical"
	ExpirySeverityExpired  ExpirySeverity = "expired"
)

var severityRank = map[ExpirySeverity]int{
	ExpirySeverityNone:     0,
	ExpirySeverityWarning:  1,
	ExpirySeverityCritical: 2,
	ExpirySeverityExpired:  3,
}

// MoreSevere reports whether s outranks other
func (s ExpirySeverity) MoreSevere(other ExpirySeverity) bool {
	return severityRank[s] > severityRank[other]
}

// ClassifyExpiry derives the expiry severity of a batch from its dates.
// Comparisons are at date granularity in the local day of `today`:
// a use-by date of today is still usable, yesterday is expired.
// Use-by drives expired/critical, best-before never exceeds warning,
// and the most severe classification wins. Both dates nil means none.
func ClassifyExpiry(useBy, bestBefore *time.Time, today time.Time, warnDaysUseBy, warnDaysBestBefore int) ExpirySeverity {
	severity := ExpirySeverityNone

	if useBy != nil {
		days := DaysUntil(*useBy, today)
		switch {
		case days < 0:
			severity = ExpirySeverityExpired
		case days <= warnDaysUseBy:
			severity = ExpirySeverityCritical
		}
	}

	if bestBefore != nil && severity != ExpirySeverityExpired && severity != ExpirySeverityCritical {
		if DaysUntil(*bestBefore, today) <= warnDaysBestBefore {
			severity = ExpirySeverityWarning
		}
	}

	return severity
}

// DaysUntil returns the whole days from today to date, at date
// granularity. Negative means the date has passed.
func DaysUntil(date, today time.Time) int {
	d := truncateToDay(date)
	t := truncateToDay(today)
	return int(d.Sub(t).Hours() / 24)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
