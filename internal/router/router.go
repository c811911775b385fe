package router

// #region imports
import (
	"fmt"
	"strings"

	"github.com/carepoint/council-controller/internal/experiment"
	"github.com/carepoint/council-controller/internal/triage"
)

// #endregion

// #region route

// Route applies the base rule: image or high-stakes keyword means council,
// anything else takes the fast lane. No model call, no state.
func Route(text string, hasImage bool, keywords []string) triage.Lane {
	if hasImage {
		return triage.LaneCouncil
	}
	if stakes, _ := HighStakes(text, keywords); stakes {
		return triage.LaneCouncil
	}
	return triage.LaneFast
}

// HighStakes reports whether the lowercased text contains any keyword and
// returns the keywords that matched, in keyword order.
func HighStakes(text string, keywords []string) (bool, []string) {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return false, nil
	}
	var matched []string
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			matched = append(matched, kw)
		}
	}
	return len(matched) > 0, matched
}

// #endregion

// #region router

// Router wraps Route with the configured policies.
type Router struct {
	config Config
}

// NewRouter creates a router with the given configuration.
func NewRouter(config Config) *Router {
	return &Router{config: config}
}

// Keywords returns the configured high-stakes keywords.
func (r *Router) Keywords() []string {
	return r.config.HighStakesKeywords
}

// #endregion

// #region decide

// Decide picks the lane for one request under the subject's council policy.
func (r *Router) Decide(in Input, policy experiment.CouncilPolicy) Decision {
	stakes, matched := HighStakes(in.Text, r.config.HighStakesKeywords)
	if policy == "" {
		policy = experiment.PolicyControl
	}

	d := Decision{HighStakes: stakes, Matched: matched, Policy: policy}

	var council bool
	switch policy {
	case experiment.PolicySensitive:
		sampled := experiment.Slot(experiment.CouncilThresholdExperiment+":sample", in.SubjectID) < r.config.SensitivePercent
		council = in.HasImage || stakes || sampled
		if council && !in.HasImage && !stakes {
			d.Reason = "sensitive policy sample"
		}
	case experiment.PolicyAggressive:
		council = in.HasImage && stakes
	default:
		council = Route(in.Text, in.HasImage, r.config.HighStakesKeywords) == triage.LaneCouncil
	}

	switch {
	case council && r.config.VisualLane && in.HasImage && !stakes && strings.TrimSpace(in.Text) == "":
		d.Lane = triage.LaneVisual
		d.Reason = "image only"
	case council:
		d.Lane = triage.LaneCouncil
		if d.Reason == "" {
			d.Reason = councilReason(in.HasImage, matched)
		}
	case in.HasImage && r.config.VisualLane:
		d.Lane = triage.LaneVisual
		d.Reason = "image below council threshold"
	default:
		d.Lane = triage.LaneFast
		d.Reason = "no council signal"
	}
	return d
}

func councilReason(hasImage bool, matched []string) string {
	switch {
	case hasImage && len(matched) > 0:
		return fmt.Sprintf("image and keywords %s", strings.Join(matched, ", "))
	case hasImage:
		return "image attached"
	default:
		return fmt.Sprintf("keywords %s", strings.Join(matched, ", "))
	}
}

// #endregion
