package schedule

import (
	"encoding/json"
	"fmt"
	"time"

	"powerwatch/internal/types"
)

type rawSlot struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Type  string `json:"type"`
}

type rawDay struct {
	Date  string    `json:"date"`
	Slots []rawSlot `json:"slots"`
}

type rawGroup struct {
	Today    *rawDay `json:"today"`
	Tomorrow *rawDay `json:"tomorrow"`
}

// ParseDocument decodes a planned-outages response keyed by group id and
// extracts the sub-document for group. Slots outside a single day, or with
// start >= end, are dropped.
func ParseDocument(body []byte, group string, fetchedAt time.Time) (*types.ScheduleDocument, error) {
	var groups map[string]rawGroup
	if err := json.Unmarshal(body, &groups); err != nil {
		return nil, types.NewAppError(types.ErrCodeFetchMalformed, "schedule response is not valid JSON", err)
	}

	g, ok := groups[group]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeFetchMalformed, fmt.Sprintf("schedule has no data for group %s", group), nil)
	}

	return &types.ScheduleDocument{
		Group:     group,
		Today:     convertDay(g.Today),
		Tomorrow:  convertDay(g.Tomorrow),
		FetchedAt: fetchedAt,
	}, nil
}

func convertDay(raw *rawDay) *types.DaySchedule {
	if raw == nil {
		return nil
	}

	day := &types.DaySchedule{Slots: make([]types.ScheduleSlot, 0, len(raw.Slots))}
	if raw.Date != "" {
		if d, err := time.Parse(time.RFC3339, raw.Date); err == nil {
			day.Date = d
		}
	}

	for _, s := range raw.Slots {
		if s.Start < 0 || s.End > types.MinutesPerDay || s.Start >= s.End {
			continue
		}
		kind := types.SlotOther
		if s.Type == string(types.SlotDefinite) {
			kind = types.SlotDefinite
		}
		day.Slots = append(day.Slots, types.ScheduleSlot{Start: s.Start, End: s.End, Kind: kind})
	}
	return day
}
