package expert

import (
	"fmt"
	"strings"

	"github.com/carepoint/council-controller/internal/triage"
)

// #region templates

const fastTemplate = `You are a medical AI assistant. Patient reports: %s%s

CRITICAL INSTRUCTION: Respond in EXACTLY 50 words or less. This will be converted to speech.

Provide:
1. Brief assessment (1 sentence)
2. Urgency level: LOW/MEDIUM/HIGH/EMERGENCY
3. One action to take

Be direct and actionable.`

const visualTemplate = `Medical image analysis. Patient says: %s%s

CRITICAL: Respond in 50 words or less for text-to-speech.

State:
1. What you see (5 words)
2. Urgency: LOW/MEDIUM/HIGH/EMERGENCY
3. Next action (5 words)

Be concise and direct.`

const councilTemplate = `Medical expert quick assessment needed.

Patient: %s%s

Provide in 20 words or less:
1. Likely diagnosis
2. Urgency: LOW/MEDIUM/HIGH/EMERGENCY
3. Confidence (0.0-1.0)

Be direct.`

// #endregion

// #region build

// BuildPrompt renders the lane template. The prompt style only reshapes the
// fast lane; council and visual prompts keep their fixed budgets.
func BuildPrompt(lane triage.Lane, pc PromptContext) string {
	patient := strings.TrimSpace(pc.PatientText)
	if patient == "" {
		patient = "(no description provided, see attached image)"
	}
	section := ""
	if pc.RetrievedContext != "" {
		section = "\n\nRELEVANT MEDICAL KNOWLEDGE:\n" + pc.RetrievedContext + "\n"
	}

	switch lane {
	case triage.LaneVisual:
		return fmt.Sprintf(visualTemplate, patient, section)
	case triage.LaneCouncil:
		return fmt.Sprintf(councilTemplate, patient, section)
	default:
		return pc.Style.Apply(fmt.Sprintf(fastTemplate, patient, section))
	}
}

// #endregion
