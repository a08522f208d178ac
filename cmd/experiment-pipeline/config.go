package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/theimaginaryfoundation/prodcat/evaluation"
)

var allStages = []string{"baseline", "self-consistency", "choice-shuffling", "combined", "evaluate"}

type Config struct {
	ConfigPath string

	InPath       string
	OutDir       string
	TaxonomyPath string
	Model        string
	Definitions  string

	SelfConsistencyRounds int
	ChoiceShufflingRounds int
	MaxRetries            int
	Concurrency           int
	MaxRows               int
	Seed                  uint64
	APISeed               bool

	TruthColumn string
	Level       string
	Exact       bool

	FromStage string
	OnlyStage string
	Overwrite bool
}

func (c Config) Validate() error {
	if c.InPath == "" {
		return errors.New("missing -in")
	}
	if c.OutDir == "" {
		return errors.New("missing -out")
	}
	if c.Model == "" {
		return errors.New("missing -model")
	}
	switch c.Definitions {
	case "with", "without", "both":
	default:
		return fmt.Errorf("definitions must be with|without|both, got %q", c.Definitions)
	}
	if c.SelfConsistencyRounds <= 0 || c.ChoiceShufflingRounds <= 0 {
		return errors.New("sc-rounds/cs-rounds must be > 0")
	}
	if c.MaxRetries < 0 || c.Concurrency < 0 || c.MaxRows < 0 {
		return errors.New("max-retries/concurrency/max-rows must be >= 0")
	}
	if _, err := evaluation.ParseLevel(c.Level); err != nil {
		return err
	}
	if c.OnlyStage != "" && c.FromStage != "" {
		return errors.New("use only one of -only-stage or -from-stage")
	}
	for _, s := range []string{c.OnlyStage, c.FromStage} {
		if s != "" && !knownStage(s) {
			return fmt.Errorf("unknown stage %q (want %s)", s, strings.Join(allStages, "|"))
		}
	}
	return nil
}

func knownStage(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, st := range allStages {
		if st == s {
			return true
		}
	}
	return false
}

func defaultConfig() Config {
	return Config{
		InPath:                filepath.FromSlash("data/products.csv"),
		OutDir:                "results",
		Model:                 "gpt-3.5-turbo",
		Definitions:           "both",
		SelfConsistencyRounds: 5,
		ChoiceShufflingRounds: 5,
		MaxRetries:            5,
		Concurrency:           1,
		Seed:                  1,
		TruthColumn:           "Category Path",
		Level:                 string(evaluation.LevelPath),
	}
}

// definitionVariants lists the -with-definitions values to run.
func (c Config) definitionVariants() []bool {
	switch c.Definitions {
	case "with":
		return []bool{true}
	case "without":
		return []bool{false}
	default:
		return []bool{true, false}
	}
}
