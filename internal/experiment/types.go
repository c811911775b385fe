package experiment

// #region names

// Built-in experiment names.
const (
	PromptStyleExperiment      = "prompt_style"
	CouncilThresholdExperiment = "council_threshold"
)

// VariantControl is returned when a subject is not in an active experiment.
const VariantControl = "control"

// #endregion

// #region experiment

// Bucket is one variant and the share of subjects it receives.
// Buckets are applied in declaration order.
type Bucket struct {
	Variant string `yaml:"variant" json:"variant"`
	Percent int    `yaml:"percent" json:"percent"`
}

// Experiment declares an A/B test over subjects.
type Experiment struct {
	Name     string   `yaml:"name" json:"name"`
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	Variants []Bucket `yaml:"variants" json:"variants"`
}

// Assignment records the variant a subject received for one experiment.
type Assignment struct {
	Experiment string `json:"experiment"`
	Variant    string `json:"variant"`
}

// #endregion

// #region defaults

// DefaultExperiments returns the experiments shipped with the controller.
func DefaultExperiments() []Experiment {
	return []Experiment{
		{
			Name:    PromptStyleExperiment,
			Enabled: true,
			Variants: []Bucket{
				{Variant: string(StyleControl), Percent: 70},
				{Variant: string(StyleDetailed), Percent: 15},
				{Variant: string(StyleEmpathetic), Percent: 15},
			},
		},
		{
			Name:    CouncilThresholdExperiment,
			Enabled: false,
			Variants: []Bucket{
				{Variant: string(PolicyControl), Percent: 50},
				{Variant: string(PolicySensitive), Percent: 25},
				{Variant: string(PolicyAggressive), Percent: 25},
			},
		},
	}
}

// #endregion
