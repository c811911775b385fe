package expert

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/carepoint/council-controller/internal/triage"
)

// #region patterns
var (
	urgencyPattern    = regexp.MustCompile(`(?i)urgency(?:\s+level)?\s*[:\-]?\s*\**\s*(low|medium|high|emergency)\b`)
	confidencePattern = regexp.MustCompile(`(?i)confidence(?:\s+level)?\s*[:\-]?\s*\**\s*([01](?:\.\d+)?|\.\d+)`)
)

// #endregion

// #region parse

type structuredVote struct {
	Assessment string   `json:"assessment"`
	Urgency    string   `json:"urgency"`
	Confidence *float64 `json:"confidence"`
}

// ParseOpinion extracts the vote from an expert's answer. A JSON object is
// tried first, then "Urgency: X" and "Confidence: N" patterns. Missing
// parts fall back to the supplied vote.
func ParseOpinion(expertName, text string, fallback Vote) Opinion {
	op := Opinion{
		Expert:     expertName,
		Text:       strings.TrimSpace(text),
		Urgency:    fallback.Urgency,
		Confidence: fallback.Confidence,
		Source:     SourceDefault,
	}

	if sv, ok := parseStructured(text); ok {
		if sv.Assessment != "" {
			op.Text = strings.TrimSpace(sv.Assessment)
		}
		if u, ok := triage.ParseUrgency(sv.Urgency); ok {
			op.Urgency = u
			op.Source = SourceStructured
		}
		if sv.Confidence != nil {
			op.Confidence = *sv.Confidence
			op.Source = SourceStructured
		}
	} else {
		if m := urgencyPattern.FindStringSubmatch(text); m != nil {
			if u, ok := triage.ParseUrgency(m[1]); ok {
				op.Urgency = u
				op.Source = SourcePattern
			}
		}
		if m := confidencePattern.FindStringSubmatch(text); m != nil {
			if c, err := strconv.ParseFloat(m[1], 64); err == nil {
				op.Confidence = c
				op.Source = SourcePattern
			}
		}
	}

	if !op.Urgency.Valid() {
		op.Urgency = triage.UrgencyMedium
	}
	op.Confidence = clamp(op.Confidence)
	return op
}

func parseStructured(text string) (structuredVote, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return structuredVote{}, false
	}
	var sv structuredVote
	if err := json.Unmarshal([]byte(text[start:end+1]), &sv); err != nil {
		return structuredVote{}, false
	}
	if sv.Assessment == "" && sv.Urgency == "" && sv.Confidence == nil {
		return structuredVote{}, false
	}
	return sv, true
}

func clamp(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// #endregion
