package monitor

import "time"

// OutageLookup answers whether an instant falls inside a planned outage.
type OutageLookup interface {
	IsOutageAt(t time.Time) (bool, *string)
}

// Classification is the planned/emergency verdict for a power-lost event.
type Classification struct {
	IsPlanned   bool
	ExpectedEnd *string
}

// Classify decides whether a power loss at t was planned. A nil lookup
// classifies every outage as emergency.
func Classify(t time.Time, lookup OutageLookup) Classification {
	if lookup == nil {
		return Classification{}
	}
	planned, end := lookup.IsOutageAt(t)
	if !planned {
		return Classification{}
	}
	return Classification{IsPlanned: true, ExpectedEnd: end}
}
