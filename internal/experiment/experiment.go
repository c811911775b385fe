package experiment

// #region imports
import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// #endregion

// #region assigner

// Assigner buckets subjects into experiment variants. It holds no mutable
// state after construction and is safe for concurrent use.
type Assigner struct {
	experiments map[string]Experiment
	names       []string
}

// NewAssigner validates the experiments and returns an Assigner.
func NewAssigner(experiments []Experiment) (*Assigner, error) {
	a := &Assigner{experiments: make(map[string]Experiment, len(experiments))}
	for _, exp := range experiments {
		if err := validate(exp); err != nil {
			return nil, err
		}
		if _, dup := a.experiments[exp.Name]; dup {
			return nil, fmt.Errorf("experiment %q declared twice", exp.Name)
		}
		a.experiments[exp.Name] = exp
		a.names = append(a.names, exp.Name)
	}
	sort.Strings(a.names)
	return a, nil
}

// #endregion

// #region assign

// Assign returns the subject's variant for the named experiment. The result
// depends only on (experiment, subjectID). Unknown or disabled experiments
// yield VariantControl.
func (a *Assigner) Assign(experiment, subjectID string) string {
	exp, ok := a.experiments[experiment]
	if !ok || !exp.Enabled {
		return VariantControl
	}
	slot := Slot(experiment, subjectID)
	cumulative := 0
	for _, b := range exp.Variants {
		cumulative += b.Percent
		if slot < cumulative {
			return b.Variant
		}
	}
	return VariantControl
}

// AssignAll assigns the subject to every configured experiment, ordered by
// experiment name.
func (a *Assigner) AssignAll(subjectID string) []Assignment {
	out := make([]Assignment, 0, len(a.names))
	for _, name := range a.names {
		out = append(out, Assignment{Experiment: name, Variant: a.Assign(name, subjectID)})
	}
	return out
}

// Slot maps "experiment:subject" onto [0, 100) with a stable 64-bit hash.
func Slot(experiment, subjectID string) int {
	return int(xxhash.Sum64String(experiment+":"+subjectID) % 100)
}

// #endregion

// #region lookup

// Of returns the variant recorded for experiment, or VariantControl.
func Of(assignments []Assignment, experiment string) string {
	for _, a := range assignments {
		if a.Experiment == experiment {
			return a.Variant
		}
	}
	return VariantControl
}

// #endregion

// #region validate

func validate(exp Experiment) error {
	if exp.Name == "" {
		return fmt.Errorf("experiment name is required")
	}
	total := 0
	seen := make(map[string]bool, len(exp.Variants))
	for _, b := range exp.Variants {
		if b.Percent < 0 || b.Percent > 100 {
			return fmt.Errorf("experiment %s: variant %q percent %d out of range", exp.Name, b.Variant, b.Percent)
		}
		if seen[b.Variant] {
			return fmt.Errorf("experiment %s: variant %q declared twice", exp.Name, b.Variant)
		}
		seen[b.Variant] = true
		if err := knownVariant(exp.Name, b.Variant); err != nil {
			return err
		}
		total += b.Percent
	}
	if total > 100 {
		return fmt.Errorf("experiment %s: variant percents sum to %d", exp.Name, total)
	}
	return nil
}

// knownVariant rejects variant names outside the closed strategy set of a
// built-in experiment. Other experiments accept any non-empty variant.
func knownVariant(experiment, variant string) error {
	if variant == "" {
		return fmt.Errorf("experiment %s: empty variant name", experiment)
	}
	switch experiment {
	case PromptStyleExperiment:
		_, err := ParsePromptStyle(variant)
		return err
	case CouncilThresholdExperiment:
		_, err := ParseCouncilPolicy(variant)
		return err
	}
	return nil
}

// #endregion
