package experiment

// #region imports
import (
	"fmt"
	"strings"
)

// #endregion

// #region prompt-style

// PromptStyle is a closed set of prompt transformations under test.
type PromptStyle string

const (
	StyleControl    PromptStyle = "control"
	StyleConcise    PromptStyle = "concise"
	StyleDetailed   PromptStyle = "detailed"
	StyleEmpathetic PromptStyle = "empathetic"
	StyleClinical   PromptStyle = "clinical"
)

// wordBudgetDirective is the line the detailed style rewrites.
const wordBudgetDirective = "CRITICAL INSTRUCTION: Respond in EXACTLY 50 words or less."

var promptTransforms = map[PromptStyle]func(string) string{
	StyleControl: func(p string) string { return p },
	StyleConcise: func(p string) string { return p },
	StyleDetailed: func(p string) string {
		return strings.Replace(p, wordBudgetDirective,
			"Provide a detailed assessment in 80-100 words. Include reasoning and context.", 1)
	},
	StyleEmpathetic: func(p string) string {
		return p + "\n\nIMPORTANT: Use warm, empathetic language. Acknowledge patient concerns."
	},
	StyleClinical: func(p string) string {
		return p + "\n\nIMPORTANT: Use precise medical terminology. Be clinically accurate."
	},
}

// ParsePromptStyle rejects names outside the closed set.
func ParsePromptStyle(name string) (PromptStyle, error) {
	s := PromptStyle(name)
	if _, ok := promptTransforms[s]; !ok {
		return "", fmt.Errorf("unknown prompt style %q", name)
	}
	return s, nil
}

// Apply transforms a base prompt. An unset style behaves as control.
func (s PromptStyle) Apply(prompt string) string {
	if fn, ok := promptTransforms[s]; ok {
		return fn(prompt)
	}
	return prompt
}

// #endregion

// #region council-policy

// CouncilPolicy is a closed set of council-routing thresholds under test.
type CouncilPolicy string

const (
	PolicyControl    CouncilPolicy = "control"
	PolicySensitive  CouncilPolicy = "sensitive"
	PolicyAggressive CouncilPolicy = "aggressive"
)

// ParseCouncilPolicy rejects names outside the closed set.
func ParseCouncilPolicy(name string) (CouncilPolicy, error) {
	switch p := CouncilPolicy(name); p {
	case PolicyControl, PolicySensitive, PolicyAggressive:
		return p, nil
	}
	return "", fmt.Errorf("unknown council policy %q", name)
}

// #endregion
