package schedule

import (
	"fmt"
	"strings"

	"powerwatch/internal/types"
)

// Markers that distinguish an empty schedule from a missing one.
const (
	NoOutagesMarker   = "✅ No scheduled outages"
	UnavailableMarker = "⚠️ Schedule unavailable"
)

// RenderDigest lists the Definite slots of the requested day.
func (c *Cache) RenderDigest(day types.Day) string {
	doc := c.doc.Load()
	var d *types.DaySchedule
	if doc != nil {
		switch day {
		case types.DayToday:
			d = doc.Today
		case types.DayTomorrow:
			d = doc.Tomorrow
		}
	}
	return RenderDay(day, d)
}

// RenderAll renders today and tomorrow separated by a blank line.
func (c *Cache) RenderAll() string {
	return c.RenderDigest(types.DayToday) + "\n\n" + c.RenderDigest(types.DayTomorrow)
}

// RenderDay renders one DaySchedule. A nil day renders the unavailable marker.
func RenderDay(day types.Day, d *types.DaySchedule) string {
	label := "Today"
	if day == types.DayTomorrow {
		label = "Tomorrow"
	}
	if d == nil {
		return fmt.Sprintf("🔌 %s: %s", label, UnavailableMarker)
	}

	var b strings.Builder
	if d.Date.IsZero() {
		fmt.Fprintf(&b, "🔌 Schedule for %s:\n\n", strings.ToLower(label))
	} else {
		fmt.Fprintf(&b, "🔌 Schedule for %s (%s, %s):\n\n",
			strings.ToLower(label), d.Date.Weekday(), d.Date.Format("02.01"))
	}

	slots := d.DefiniteSlots()
	if len(slots) == 0 {
		b.WriteString(NoOutagesMarker)
		return b.String()
	}
	for i, s := range slots {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "⚡ %s - %s", types.FormatMinuteOfDay(s.Start), types.FormatMinuteOfDay(s.End))
	}
	return b.String()
}
