package notify

import (
	"fmt"
	"strings"
	"time"

	"powerwatch/internal/types"
)

// FormatTransition renders the chat message for a persisted transition.
// Times are shown in loc.
func FormatTransition(e types.PowerEvent, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	at := e.OccurredAt.In(loc).Format("15:04")
	dur := types.FormatDuration(e.PreviousStateDurationSeconds)

	var b strings.Builder
	if e.IsPowered {
		fmt.Fprintf(&b, "🟢 %s Power is back\n", at)
		fmt.Fprintf(&b, "⏱ It was out for %s", dur)
		return b.String()
	}

	fmt.Fprintf(&b, "🔴 %s Power is out\n", at)
	fmt.Fprintf(&b, "⏱ It was on for %s\n", dur)
	if e.IsPlanned {
		b.WriteString("📋 Planned outage")
		if e.ExpectedEndTime != nil {
			fmt.Fprintf(&b, ", expected back at %s", *e.ExpectedEndTime)
		}
	} else {
		b.WriteString("⚠️ Emergency outage, not in the schedule")
	}
	return b.String()
}
