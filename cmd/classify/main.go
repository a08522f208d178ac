package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"

	"github.com/theimaginaryfoundation/prodcat/categorize"
	"github.com/theimaginaryfoundation/prodcat/categorize/fileutils"
	"github.com/theimaginaryfoundation/prodcat/categorize/provider"
	"github.com/theimaginaryfoundation/prodcat/internal/config"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (or pass -api-key)")
		os.Exit(2)
	}

	tax, table, err := loadInputs(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := openai.NewClient(option.WithAPIKey(apiKey))
	chat := provider.NewOpenAIChat(&client, cfg.Model)
	chat.Structured = cfg.Structured
	chat.MaxCompletionTokens = int64(cfg.MaxCompletionTokens)

	m, err := run(ctx, cfg, chat, tax, table, os.Stderr)
	paths := cfg.outputPaths()
	fmt.Fprintf(os.Stdout, "run_id=%s experiment=%s rows=%d skipped=%d retries=%d fallbacks=%d out=%s log=%s manifest=%s\n",
		m.RunID, m.Experiment, m.Stats.Rows, m.Stats.Skipped, m.Stats.Retries, m.Stats.Fallbacks, paths.CSV, paths.Log, paths.Manifest)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.ConfigPath, config.FileFlag, "", "Optional YAML file with flag values (keys are flag names; PRODCAT_* env vars override it)")
	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Input CSV with one product per row")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Output directory for the result CSV, log and run manifest")
	fs.StringVar(&cfg.TaxonomyPath, "taxonomy", "", "Optional taxonomy YAML (default: embedded Computers & Electronics taxonomy)")
	fs.StringVar(&cfg.TitleColumn, "title-col", cfg.TitleColumn, "Input column holding the product title")
	fs.StringVar(&cfg.BrandColumn, "brand-col", cfg.BrandColumn, "Input column holding the brand (may be absent)")
	fs.StringVar(&cfg.Experiment, "experiment", cfg.Experiment, "Experiment: baseline|self-consistency|choice-shuffling|combined")
	fs.BoolVar(&cfg.WithDefinitions, "with-definitions", cfg.WithDefinitions, "Include label descriptions in the prompt")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI chat model (uses OPENAI_API_KEY)")
	fs.StringVar(&cfg.APIKey, "api-key", "", "OpenAI API key (overrides OPENAI_API_KEY env var)")
	fs.BoolVar(&cfg.Structured, "structured", cfg.Structured, "Request a JSON {reasoning, category_path} answer instead of free text")
	fs.IntVar(&cfg.MaxCompletionTokens, "max-completion-tokens", cfg.MaxCompletionTokens, "Cap on answer tokens (0 = API default)")
	fs.IntVar(&cfg.SelfConsistencyRounds, "sc-rounds", cfg.SelfConsistencyRounds, "Self-consistency rounds per product")
	fs.IntVar(&cfg.ChoiceShufflingRounds, "cs-rounds", cfg.ChoiceShufflingRounds, "Choice-shuffling rounds per product")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Re-requests per round when the answer has no valid path")
	fs.Float64Var(&cfg.GreedyTemperature, "greedy-temperature", cfg.GreedyTemperature, "Temperature for baseline and choice-shuffling")
	fs.Float64Var(&cfg.SamplingTemperature, "sampling-temperature", cfg.SamplingTemperature, "Temperature for self-consistency and combined")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Rows classified in parallel")
	fs.IntVar(&cfg.MaxRows, "max-rows", 0, "Classify only the first N rows (0 = all)")
	fs.IntVar(&cfg.CheckpointEvery, "checkpoint-every", cfg.CheckpointEvery, "Rewrite the result CSV after every N rows (0 = only at the end)")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Seed for label shuffling (and per-request API seeds with -api-seed)")
	fs.BoolVar(&cfg.APISeed, "api-seed", cfg.APISeed, "Send a distinct per-request seed derived from -seed so reruns reproduce the same samples")
	fs.BoolVar(&cfg.Resume, "resume", cfg.Resume, "Continue from an existing result CSV, skipping rows that already have a Predicted Path")
	fs.StringVar(&cfg.SQLitePath, "sqlite", "", "Optional SQLite database to also store the result table in")
	fs.StringVar(&cfg.LogPath, "log", "", "Run log path (default: <out>/<experiment>_<with|without>_definitions.log)")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Mirror the run log to stderr at debug level")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/classify -in data/products.csv -experiment baseline")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/classify -in data/products.csv -experiment combined -with-definitions=false -concurrency 4")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/classify -config prodcat.yaml -resume")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if err := config.OverlayFlags(fs, cfg.ConfigPath); err != nil {
		return Config{}, err
	}

	cfg.InPath = filepath.Clean(cfg.InPath)
	cfg.OutDir = filepath.Clean(cfg.OutDir)
	if cfg.TaxonomyPath != "" {
		cfg.TaxonomyPath = filepath.Clean(cfg.TaxonomyPath)
	}
	if cfg.SQLitePath != "" {
		cfg.SQLitePath = filepath.Clean(cfg.SQLitePath)
	}
	if cfg.LogPath != "" {
		cfg.LogPath = filepath.Clean(cfg.LogPath)
	}
	return cfg, nil
}

// loadInputs reads the taxonomy and the table to classify. With -resume an existing result CSV
// takes the place of the input so finished rows are kept.
func loadInputs(cfg Config) (categorize.Taxonomy, *categorize.Table, error) {
	tax := categorize.DefaultTaxonomy()
	if cfg.TaxonomyPath != "" {
		var err error
		if tax, err = categorize.LoadTaxonomy(cfg.TaxonomyPath); err != nil {
			return categorize.Taxonomy{}, nil, err
		}
	}

	src := cfg.InPath
	if out := cfg.outputPaths().CSV; cfg.Resume && fileutils.FileExists(out) {
		src = out
	}
	table, err := categorize.ReadCSVFile(src)
	if err != nil {
		return categorize.Taxonomy{}, nil, err
	}
	if !table.HasColumn(cfg.TitleColumn) {
		return categorize.Taxonomy{}, nil, fmt.Errorf("%s: missing %q column (see -title-col)", src, cfg.TitleColumn)
	}
	return tax, table, nil
}

// run classifies table and writes the result CSV, run log and manifest. The CSV is written even when
// the run fails part-way.
func run(ctx context.Context, cfg Config, chat categorize.ChatCompleter, tax categorize.Taxonomy, table *categorize.Table, stderr io.Writer) (categorize.RunManifest, error) {
	paths := cfg.outputPaths()
	opts := cfg.classifierOptions()
	m := categorize.RunManifest{
		RunID:                 uuid.NewString(),
		Experiment:            opts.Experiment,
		WithDefinitions:       opts.WithDefinitions,
		Model:                 cfg.Model,
		Structured:            cfg.Structured,
		Seed:                  cfg.Seed,
		APISeed:               cfg.APISeed,
		SelfConsistencyRounds: opts.SelfConsistencyRounds,
		ChoiceShufflingRounds: opts.ChoiceShufflingRounds,
		MaxRetries:            opts.MaxRetries,
		GreedyTemperature:     opts.GreedyTemperature,
		SamplingTemperature:   opts.SamplingTemperature,
		InputPath:             cfg.InPath,
		OutputPath:            paths.CSV,
		LogPath:               paths.Log,
		StartedAt:             time.Now().UTC(),
	}

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return m, fmt.Errorf("mkdir -out: %w", err)
	}

	level := logrus.InfoLevel
	var mirror io.Writer
	if cfg.Verbose {
		level = logrus.DebugLevel
		mirror = stderr
	}
	logger, closer, err := categorize.OpenRunLog(paths.Log, level, mirror)
	if err != nil {
		return m, err
	}
	defer closer.Close()
	log := logger.WithField("run_id", m.RunID)
	log.WithFields(logrus.Fields{"model": cfg.Model, "input": cfg.InPath, "rows": table.Len()}).Debug("run configured")

	if paths.Taxonomy != "" {
		if _, err := fileutils.CopyFileIfExists(cfg.TaxonomyPath, paths.Taxonomy, true); err != nil {
			return m, fmt.Errorf("copy taxonomy: %w", err)
		}
		m.TaxonomyPath = paths.Taxonomy
	}

	classifier, err := categorize.NewClassifier(chat, tax, opts, log)
	if err != nil {
		return m, err
	}

	start := time.Now()
	runner, err := categorize.NewRunner(classifier, log, categorize.RunOptions{
		TitleColumn:     cfg.TitleColumn,
		BrandColumn:     cfg.BrandColumn,
		Concurrency:     cfg.Concurrency,
		MaxRows:         cfg.MaxRows,
		Resume:          cfg.Resume,
		Seed:            cfg.Seed,
		CheckpointEvery: cfg.CheckpointEvery,
		Checkpoint: func(t *categorize.Table) error {
			return t.WriteCSVFile(paths.CSV)
		},
		Progress: func(done, total int) {
			fmt.Fprintf(stderr, "progress classify: %d/%d rows classified (elapsed=%s)\n",
				done, total, time.Since(start).Round(time.Millisecond).String())
		},
	})
	if err != nil {
		return m, err
	}

	stats, runErr := runner.Run(ctx, table)
	m.Stats = stats
	if runErr == nil && cfg.SQLitePath != "" {
		if err := categorize.ExportSQLite(ctx, cfg.SQLitePath, paths.Base, table); err != nil {
			runErr = err
		} else {
			log.WithField("sqlite", cfg.SQLitePath).Info("Results exported")
		}
	}

	m.FinishedAt = time.Now().UTC()
	if runErr != nil {
		m.Error = runErr.Error()
	}
	if err := categorize.WriteRunManifest(paths.Manifest, m); err != nil {
		return m, errors.Join(runErr, fmt.Errorf("write manifest: %w", err))
	}
	return m, runErr
}
