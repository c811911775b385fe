package monitor

// #region status

// Status is the classification of one metric.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusUnknown  Status = "unknown"
)

// Severity is the log level a status maps to.
type Severity string

const (
	SeverityNone    Severity = ""
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// #endregion status

// #region metric-names

// Metric names understood by the default thresholds.
const (
	MetricResponseLatency    = "response_latency"
	MetricWordCount          = "word_count"
	MetricConfidenceScore    = "confidence_score"
	MetricHallucinationScore = "hallucination_score"
	MetricCouncilConsensus   = "council_consensus"
)

// #endregion metric-names

// #region threshold

// Threshold bounds one metric from above (Max) or below (Min). The warning
// bound is Max*WarningLevel or Min/WarningLevel.
type Threshold struct {
	Metric       string   `yaml:"metric" json:"metric"`
	Max          *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Min          *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	WarningLevel float64  `yaml:"warning_level" json:"warning_level"`
}

func bound(v float64) *float64 { return &v }

// DefaultThresholds returns the production thresholds.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{Metric: MetricResponseLatency, Max: bound(15), WarningLevel: 0.8},
		{Metric: MetricWordCount, Max: bound(30), WarningLevel: 0.9},
		{Metric: MetricConfidenceScore, Min: bound(0.7), WarningLevel: 0.9},
		{Metric: MetricHallucinationScore, Max: bound(0.3), WarningLevel: 0.7},
		{Metric: MetricCouncilConsensus, Min: bound(0.66), WarningLevel: 0.9},
	}
}

// #endregion threshold

// #region check

// Check is the classification of one metric value.
type Check struct {
	Metric   string   `json:"metric"`
	Value    float64  `json:"value"`
	Status   Status   `json:"status"`
	Severity Severity `json:"severity,omitempty"`
	Message  string   `json:"message"`
	Max      *float64 `json:"max,omitempty"`
	Min      *float64 `json:"min,omitempty"`
}

// Report is the outcome of checking a metric set. Unknown metrics are
// listed but counted in neither total.
type Report struct {
	Checks        []Check `json:"checks"`
	CriticalCount int     `json:"critical_count"`
	WarningCount  int     `json:"warning_count"`
	AllOK         bool    `json:"all_ok"`
}

// #endregion check
