package report

import (
	"fmt"
	"strings"

	"powerwatch/internal/types"
)

func title(kind types.DigestKind) string {
	switch kind {
	case types.DigestWeekly:
		return "Weekly report"
	case types.DigestMonthly:
		return "Monthly report"
	default:
		return "Report"
	}
}

// windowLabel names the covered range. A window of n days spans today
// plus the n days before it.
func windowLabel(days int) string {
	return fmt.Sprintf("today and the previous %d days", days)
}

// Render formats a rollup for the chat recipient.
func Render(r *Rollup) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s (%s)\n\n", title(r.Kind), windowLabel(r.WindowDays))
	fmt.Fprintf(&b, "Outages: %d\n", r.TotalOutages)
	fmt.Fprintf(&b, "  📋 Planned: %d\n", r.PlannedOutages)
	fmt.Fprintf(&b, "  ⚠️ Emergency: %d\n", r.EmergencyOutages)
	fmt.Fprintf(&b, "⏱ Total without power: %s\n", types.FormatDuration(r.TotalDurationSeconds))
	fmt.Fprintf(&b, "⏱ Average outage: %s\n", types.FormatDuration(r.AverageDurationSeconds))
	fmt.Fprintf(&b, "⏱ Longest outage: %s", types.FormatDuration(r.LongestOutageSeconds))
	if r.WorstDay != nil && r.WorstDay.TotalOutageDurationSeconds > 0 {
		fmt.Fprintf(&b, "\n📉 Worst day: %s (%s)",
			r.WorstDay.Date.Format("02.01"), types.FormatDuration(r.WorstDay.TotalOutageDurationSeconds))
	}
	return b.String()
}

// RenderNoData is sent instead of a zeroed report when the period is empty.
func RenderNoData(kind types.DigestKind, windowDays int) string {
	return fmt.Sprintf("📊 %s\n\nNothing to report: no statistics were recorded for %s.", title(kind), windowLabel(windowDays))
}

// RenderToday formats today's counters. A nil row reads as zero outages.
func RenderToday(st *types.DailyStatistic) string {
	if st == nil {
		st = &types.DailyStatistic{}
	}
	return fmt.Sprintf("📅 Today\n\nOutages: %d (planned %d, emergency %d)\n⏱ Without power: %s\n⏱ Longest outage: %s",
		st.TotalOutages, st.PlannedOutages, st.EmergencyOutages,
		types.FormatDuration(st.TotalOutageDurationSeconds),
		types.FormatDuration(st.LongestOutageSeconds))
}
