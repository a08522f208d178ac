package main

import (
	"errors"
	"path/filepath"

	"github.com/theimaginaryfoundation/prodcat/categorize"
)

type Config struct {
	ConfigPath string

	InPath       string
	OutDir       string
	TaxonomyPath string
	TitleColumn  string
	BrandColumn  string

	Experiment      string
	WithDefinitions bool

	Model               string
	APIKey              string
	Structured          bool
	MaxCompletionTokens int

	SelfConsistencyRounds int
	ChoiceShufflingRounds int
	MaxRetries            int
	GreedyTemperature     float64
	SamplingTemperature   float64

	Concurrency     int
	MaxRows         int
	CheckpointEvery int
	Seed            uint64
	APISeed         bool
	Resume          bool

	SQLitePath string
	LogPath    string
	Verbose    bool
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
	if c.TitleColumn == "" {
		return errors.New("missing -title-col")
	}
	if _, err := categorize.ParseExperimentType(c.Experiment); err != nil {
		return err
	}
	if c.Concurrency < 0 || c.MaxRows < 0 || c.CheckpointEvery < 0 {
		return errors.New("concurrency/max-rows/checkpoint-every must be >= 0")
	}
	if c.MaxCompletionTokens < 0 {
		return errors.New("max-completion-tokens must be >= 0")
	}
	return c.classifierOptions().Validate()
}

func defaultConfig() Config {
	opts := categorize.DefaultOptions()
	return Config{
		InPath:                filepath.FromSlash("data/products.csv"),
		OutDir:                "results",
		TitleColumn:           categorize.TitleColumn,
		BrandColumn:           categorize.BrandColumn,
		Experiment:            string(categorize.ExperimentBaseline),
		WithDefinitions:       true,
		Model:                 "gpt-3.5-turbo",
		SelfConsistencyRounds: opts.SelfConsistencyRounds,
		ChoiceShufflingRounds: opts.ChoiceShufflingRounds,
		MaxRetries:            opts.MaxRetries,
		GreedyTemperature:     opts.GreedyTemperature,
		SamplingTemperature:   opts.SamplingTemperature,
		Concurrency:           1,
		CheckpointEvery:       10,
		Seed:                  1,
	}
}

func (c Config) experiment() categorize.ExperimentType {
	e, _ := categorize.ParseExperimentType(c.Experiment)
	return e
}

func (c Config) classifierOptions() categorize.Options {
	return categorize.Options{
		Experiment:            c.experiment(),
		WithDefinitions:       c.WithDefinitions,
		SelfConsistencyRounds: c.SelfConsistencyRounds,
		ChoiceShufflingRounds: c.ChoiceShufflingRounds,
		MaxRetries:            c.MaxRetries,
		GreedyTemperature:     c.GreedyTemperature,
		SamplingTemperature:   c.SamplingTemperature,
		SeedRequests:          c.APISeed,
	}
}

// outputPaths are the files one run writes, all named after the experiment and definitions setting.
type outputPaths struct {
	Base     string
	CSV      string
	Log      string
	Manifest string
	Taxonomy string
}

func (c Config) outputPaths() outputPaths {
	base := categorize.OutputBaseName(c.experiment(), c.WithDefinitions)
	p := outputPaths{
		Base:     base,
		CSV:      filepath.Join(c.OutDir, base+".csv"),
		Log:      filepath.Join(c.OutDir, base+".log"),
		Manifest: filepath.Join(c.OutDir, base+".run.json"),
	}
	if c.LogPath != "" {
		p.Log = c.LogPath
	}
	if c.TaxonomyPath != "" {
		p.Taxonomy = filepath.Join(c.OutDir, base+".taxonomy"+filepath.Ext(c.TaxonomyPath))
	}
	return p
}
