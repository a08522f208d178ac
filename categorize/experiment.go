package categorize

import (
	"fmt"
	"strings"
)

// ExperimentType selects the repetition/perturbation strategy used for each product.
type ExperimentType string

const (
	// ExperimentBaseline is a single greedy chain-of-thought prompt.
	ExperimentBaseline ExperimentType = "baseline"
	// ExperimentSelfConsistency samples the same prompt repeatedly and majority-votes the paths.
	ExperimentSelfConsistency ExperimentType = "self-consistency"
	// ExperimentChoiceShuffling permutes the label order every round and majority-votes the paths.
	ExperimentChoiceShuffling ExperimentType = "choice-shuffling"
	// ExperimentCombined runs choice-shuffling inside every self-consistency round.
	ExperimentCombined ExperimentType = "combined"
)

var ExperimentTypes = []ExperimentType{
	ExperimentBaseline,
	ExperimentSelfConsistency,
	ExperimentChoiceShuffling,
	ExperimentCombined,
}

func (e ExperimentType) String() string {
	return string(e)
}

func (e ExperimentType) Valid() bool {
	for _, t := range ExperimentTypes {
		if e == t {
			return true
		}
	}
	return false
}

func ParseExperimentType(s string) (ExperimentType, error) {
	e := ExperimentType(strings.ToLower(strings.TrimSpace(s)))
	if !e.Valid() {
		return "", fmt.Errorf("unknown experiment type %q (want one of %s)", s, experimentTypeList())
	}
	return e, nil
}

func experimentTypeList() string {
	names := make([]string, 0, len(ExperimentTypes))
	for _, t := range ExperimentTypes {
		names = append(names, string(t))
	}
	return strings.Join(names, "|")
}

// OutputBaseName is the file stem shared by a run's CSV, log and manifest,
// e.g. "self-consistency_with_definitions".
func OutputBaseName(e ExperimentType, withDefinitions bool) string {
	if withDefinitions {
		return string(e) + "_with_definitions"
	}
	return string(e) + "_without_definitions"
}
