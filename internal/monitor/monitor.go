package monitor

// #region imports
import (
	"fmt"
	"sort"
	"time"
)

// #endregion

// #region monitor

// Monitor classifies metrics against static thresholds.
type Monitor struct {
	thresholds map[string]Threshold
}

// NewMonitor validates the thresholds. A later entry for the same metric
// replaces an earlier one, so overrides can be appended to the defaults.
func NewMonitor(thresholds []Threshold) (*Monitor, error) {
	m := &Monitor{thresholds: make(map[string]Threshold, len(thresholds))}
	for _, t := range thresholds {
		if t.Metric == "" {
			return nil, fmt.Errorf("threshold without metric name")
		}
		if (t.Max == nil) == (t.Min == nil) {
			return nil, fmt.Errorf("threshold %s: exactly one of max or min is required", t.Metric)
		}
		if t.WarningLevel <= 0 || t.WarningLevel > 1 {
			return nil, fmt.Errorf("threshold %s: warning_level %.2f outside (0,1]", t.Metric, t.WarningLevel)
		}
		m.thresholds[t.Metric] = t
	}
	return m, nil
}

// #endregion monitor

// #region check

// CheckThreshold classifies one value. Metrics without a threshold get
// StatusUnknown.
func (m *Monitor) CheckThreshold(metric string, value float64) Check {
	t, ok := m.thresholds[metric]
	if !ok {
		return Check{Metric: metric, Value: value, Status: StatusUnknown, Message: "no threshold defined"}
	}

	c := Check{Metric: metric, Value: value, Status: StatusOK, Max: t.Max, Min: t.Min}
	switch {
	case t.Max != nil:
		warn := *t.Max * t.WarningLevel
		switch {
		case value > *t.Max:
			c.Status, c.Severity = StatusCritical, SeverityError
			c.Message = fmt.Sprintf("%s exceeded max threshold: %g > %g", metric, value, *t.Max)
		case value > warn:
			c.Status, c.Severity = StatusWarning, SeverityWarning
			c.Message = fmt.Sprintf("%s approaching max threshold: %g > %.2f", metric, value, warn)
		}
	case t.Min != nil:
		warn := *t.Min / t.WarningLevel
		switch {
		case value < *t.Min:
			c.Status, c.Severity = StatusCritical, SeverityError
			c.Message = fmt.Sprintf("%s below min threshold: %g < %g", metric, value, *t.Min)
		case value < warn:
			c.Status, c.Severity = StatusWarning, SeverityWarning
			c.Message = fmt.Sprintf("%s approaching min threshold: %g < %.2f", metric, value, warn)
		}
	}
	return c
}

// CheckAll classifies every metric present, in name order.
func (m *Monitor) CheckAll(metrics map[string]float64) Report {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	r := Report{AllOK: true, Checks: make([]Check, 0, len(names))}
	for _, name := range names {
		c := m.CheckThreshold(name, metrics[name])
		r.Checks = append(r.Checks, c)
		switch c.Status {
		case StatusCritical:
			r.CriticalCount++
			r.AllOK = false
		case StatusWarning:
			r.WarningCount++
		}
	}
	return r
}

// #endregion check

// #region extract

// Signals are optional quality measurements. Nil fields were not measured.
type Signals struct {
	WordCount          *int
	HallucinationScore *float64
	CouncilConsensus   *float64
}

// ExtractMetrics builds the metric map for one consultation.
func ExtractMetrics(latency time.Duration, confidence float64, s Signals) map[string]float64 {
	metrics := map[string]float64{
		MetricResponseLatency: latency.Seconds(),
		MetricConfidenceScore: confidence,
	}
	if s.WordCount != nil {
		metrics[MetricWordCount] = float64(*s.WordCount)
	}
	if s.HallucinationScore != nil {
		metrics[MetricHallucinationScore] = *s.HallucinationScore
	}
	if s.CouncilConsensus != nil {
		metrics[MetricCouncilConsensus] = *s.CouncilConsensus
	}
	return metrics
}

// #endregion extract
