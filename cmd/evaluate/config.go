package main

import (
	"errors"

	"github.com/theimaginaryfoundation/prodcat/categorize"
	"github.com/theimaginaryfoundation/prodcat/evaluation"
)

type Config struct {
	ConfigPath string

	InPath      string
	TruthColumn string
	PredColumn  string

	ComparePath       string
	ComparePredColumn string
	Level             string
	Exact             bool

	JSONPath string
}

func (c Config) Validate() error {
	if c.InPath == "" {
		return errors.New("missing -in")
	}
	if c.TruthColumn == "" {
		return errors.New("missing -truth-col")
	}
	if c.PredColumn == "" {
		return errors.New("missing -pred-col")
	}
	if _, err := evaluation.ParseLevel(c.Level); err != nil {
		return err
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		TruthColumn: "Category Path",
		PredColumn:  categorize.PredictedPathColumn,
		Level:       string(evaluation.LevelPath),
	}
}
