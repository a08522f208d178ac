package evaluation

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/theimaginaryfoundation/prodcat/categorize"
)

// Score names returned by EvalF1Scores, in report order.
const (
	PathsMicroF1       = "Paths Micro F1"
	PathsMacroF1       = "Paths Macro F1"
	SecondLevelMicroF1 = "Second-Level Micro F1"
	SecondLevelMacroF1 = "Second-Level Macro F1"
	ThirdLevelMicroF1  = "Third-Level Micro F1"
	ThirdLevelMacroF1  = "Third-Level Macro F1"
)

var ScoreNames = []string{
	PathsMicroF1,
	PathsMacroF1,
	SecondLevelMicroF1,
	SecondLevelMacroF1,
	ThirdLevelMicroF1,
	ThirdLevelMacroF1,
}

// Level selects which part of a category path is compared.
type Level string

const (
	LevelPath   Level = "path"
	LevelSecond Level = "second"
	LevelThird  Level = "third"
)

func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelPath, LevelSecond, LevelThird:
		return l, nil
	default:
		return "", fmt.Errorf("unknown level %q (want path|second|third)", s)
	}
}

func checkLengths(yTrue, yPred []string) error {
	if len(yTrue) != len(yPred) {
		return fmt.Errorf("label count mismatch: %d true vs %d predicted", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return errors.New("no labels to score")
	}
	return nil
}

// MicroF1 pools every decision before scoring. For single-label data it equals accuracy.
func MicroF1(yTrue, yPred []string) (float64, error) {
	if err := checkLengths(yTrue, yPred); err != nil {
		return 0, err
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue)), nil
}

// MacroF1 is the unweighted mean of per-label F1 over every label seen in either slice.
func MacroF1(yTrue, yPred []string) (float64, error) {
	if err := checkLengths(yTrue, yPred); err != nil {
		return 0, err
	}

	type counts struct{ tp, fp, fn int }
	per := make(map[string]*counts)
	get := func(label string) *counts {
		c, ok := per[label]
		if !ok {
			c = &counts{}
			per[label] = c
		}
		return c
	}
	for i := range yTrue {
		t, p := yTrue[i], yPred[i]
		if t == p {
			get(t).tp++
			continue
		}
		get(t).fn++
		get(p).fp++
	}

	labels := make([]string, 0, len(per))
	for l := range per {
		labels = append(labels, l)
	}
	slices.Sort(labels)

	sum := 0.0
	for _, l := range labels {
		c := per[l]
		denom := 2*c.tp + c.fp + c.fn
		if denom == 0 {
			continue
		}
		sum += float64(2*c.tp) / float64(denom)
	}
	return sum / float64(len(labels)), nil
}

// LevelLabels projects category paths onto one level.
func LevelLabels(paths []string, level Level) ([]string, error) {
	out := make([]string, len(paths))
	for i, p := range paths {
		if level == LevelPath {
			out[i] = p
			continue
		}
		_, second, third, err := categorize.SplitPath(p)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		switch level {
		case LevelSecond:
			out[i] = second
		case LevelThird:
			out[i] = third
		default:
			return nil, fmt.Errorf("unknown level %q", level)
		}
	}
	return out, nil
}

// EvalF1Scores scores whole paths, second-level labels and third-level labels.
func EvalF1Scores(pathsTrue, pathsPred []string) (map[string]float64, error) {
	if err := checkLengths(pathsTrue, pathsPred); err != nil {
		return nil, fmt.Errorf("EvalF1Scores: %w", err)
	}

	scores := make(map[string]float64, len(ScoreNames))
	levels := []struct {
		level        Level
		micro, macro string
	}{
		{LevelPath, PathsMicroF1, PathsMacroF1},
		{LevelSecond, SecondLevelMicroF1, SecondLevelMacroF1},
		{LevelThird, ThirdLevelMicroF1, ThirdLevelMacroF1},
	}
	for _, lv := range levels {
		yTrue, err := LevelLabels(pathsTrue, lv.level)
		if err != nil {
			return nil, fmt.Errorf("EvalF1Scores: true paths: %w", err)
		}
		yPred, err := LevelLabels(pathsPred, lv.level)
		if err != nil {
			return nil, fmt.Errorf("EvalF1Scores: predicted paths: %w", err)
		}
		if scores[lv.micro], err = MicroF1(yTrue, yPred); err != nil {
			return nil, fmt.Errorf("EvalF1Scores: %w", err)
		}
		if scores[lv.macro], err = MacroF1(yTrue, yPred); err != nil {
			return nil, fmt.Errorf("EvalF1Scores: %w", err)
		}
	}
	return scores, nil
}

// Correctness marks, per row, whether the prediction matches the truth at the given level.
func Correctness(pathsTrue, pathsPred []string, level Level) ([]bool, error) {
	if len(pathsTrue) != len(pathsPred) {
		return nil, fmt.Errorf("Correctness: %d true vs %d predicted paths", len(pathsTrue), len(pathsPred))
	}
	yTrue, err := LevelLabels(pathsTrue, level)
	if err != nil {
		return nil, fmt.Errorf("Correctness: true paths: %w", err)
	}
	yPred, err := LevelLabels(pathsPred, level)
	if err != nil {
		return nil, fmt.Errorf("Correctness: predicted paths: %w", err)
	}
	out := make([]bool, len(yTrue))
	for i := range yTrue {
		out[i] = yTrue[i] == yPred[i]
	}
	return out, nil
}
