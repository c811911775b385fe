package triage

// #region imports
import "strings"

// #endregion

// #region urgency

// Urgency is the ordered severity label attached to every answer.
type Urgency string

const (
	UrgencyLow       Urgency = "LOW"
	UrgencyMedium    Urgency = "MEDIUM"
	UrgencyHigh      Urgency = "HIGH"
	UrgencyEmergency Urgency = "EMERGENCY"
)

// Levels lists the urgency labels from least to most severe.
var Levels = []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyEmergency}

var urgencyRank = map[Urgency]int{
	UrgencyLow:       1,
	UrgencyMedium:    2,
	UrgencyHigh:      3,
	UrgencyEmergency: 4,
}

// Rank returns 1..4 for known levels and 0 otherwise.
func (u Urgency) Rank() int {
	return urgencyRank[u]
}

// Valid reports whether u is one of the four levels.
func (u Urgency) Valid() bool {
	return u.Rank() > 0
}

// ParseUrgency maps a case-insensitive label to an Urgency.
func ParseUrgency(s string) (Urgency, bool) {
	u := Urgency(strings.ToUpper(strings.TrimSpace(s)))
	if !u.Valid() {
		return "", false
	}
	return u, true
}

// MaxUrgency returns the most severe of the given levels. Invalid values are
// ignored; an empty or all-invalid input yields MEDIUM.
func MaxUrgency(levels ...Urgency) Urgency {
	best := Urgency("")
	for _, u := range levels {
		if u.Rank() > best.Rank() {
			best = u
		}
	}
	if best == "" {
		return UrgencyMedium
	}
	return best
}

// #endregion

// #region lane

// Lane is the processing bucket a request is routed to.
type Lane string

const (
	LaneFast    Lane = "fast"
	LaneVisual  Lane = "visual"
	LaneCouncil Lane = "council"
)

// Valid reports whether l is a known lane.
func (l Lane) Valid() bool {
	switch l {
	case LaneFast, LaneVisual, LaneCouncil:
		return true
	}
	return false
}

// #endregion
