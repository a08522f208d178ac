package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/theimaginaryfoundation/prodcat/categorize"
	"github.com/theimaginaryfoundation/prodcat/categorize/fileutils"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stages := allStages
	if cfg.OnlyStage != "" {
		stages = []string{strings.ToLower(strings.TrimSpace(cfg.OnlyStage))}
	} else if cfg.FromStage != "" {
		stages = stagesFrom(stages, cfg.FromStage)
	}

	for _, stage := range stages {
		if stage == "evaluate" {
			for _, args := range evaluateCommands(cfg) {
				if err := runGo(ctx, args...); err != nil {
					os.Exit(1)
				}
			}
			continue
		}

		experiment, err := categorize.ParseExperimentType(stage)
		if err != nil {
			fmt.Fprintln(os.Stderr, "unknown stage:", stage)
			os.Exit(2)
		}
		for _, withDefs := range cfg.definitionVariants() {
			if err := runGo(ctx, classifyArgs(cfg, experiment, withDefs)...); err != nil {
				os.Exit(1)
			}
		}
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.ConfigPath, config.FileFlag, "", "Optional YAML file with flag values (keys are flag names; PRODCAT_* env vars override it)")
	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Input CSV with products and ground-truth paths")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Output directory shared by every stage")
	fs.StringVar(&cfg.TaxonomyPath, "taxonomy", "", "Optional taxonomy YAML passed to classify")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI chat model (uses OPENAI_API_KEY)")
	fs.StringVar(&cfg.Definitions, "definitions", cfg.Definitions, "Label descriptions in the prompt: with|without|both")

	fs.IntVar(&cfg.SelfConsistencyRounds, "sc-rounds", cfg.SelfConsistencyRounds, "Self-consistency rounds per product")
	fs.IntVar(&cfg.ChoiceShufflingRounds, "cs-rounds", cfg.ChoiceShufflingRounds, "Choice-shuffling rounds per product")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Re-requests per round when the answer has no valid path")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Rows classified in parallel")
	fs.IntVar(&cfg.MaxRows, "max-rows", cfg.MaxRows, "Classify only the first N rows (0 = all)")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Seed passed to every classify run")
	fs.BoolVar(&cfg.APISeed, "api-seed", cfg.APISeed, "Pass -api-seed to every classify run")

	fs.StringVar(&cfg.TruthColumn, "truth-col", cfg.TruthColumn, "Ground-truth column used by the evaluate stage")
	fs.StringVar(&cfg.Level, "level", cfg.Level, "Level compared by the McNemar tests: path|second|third")
	fs.BoolVar(&cfg.Exact, "exact", false, "Use the exact McNemar test")

	fs.StringVar(&cfg.FromStage, "from-stage", "", "Start at stage: "+strings.Join(allStages, "|"))
	fs.StringVar(&cfg.OnlyStage, "only-stage", "", "Run only one stage: "+strings.Join(allStages, "|"))
	fs.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "Reclassify from scratch instead of resuming existing result CSVs")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/experiment-pipeline -in data/products.csv -max-rows 50")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/experiment-pipeline -only-stage evaluate -level third")
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
	return cfg, nil
}

func classifyArgs(cfg Config, experiment categorize.ExperimentType, withDefs bool) []string {
	args := []string{
		"run", "./cmd/classify",
		"-in", cfg.InPath,
		"-out", cfg.OutDir,
		"-experiment", string(experiment),
		fmt.Sprintf("-with-definitions=%v", withDefs),
		"-model", cfg.Model,
		"-sc-rounds", fmt.Sprintf("%d", cfg.SelfConsistencyRounds),
		"-cs-rounds", fmt.Sprintf("%d", cfg.ChoiceShufflingRounds),
		"-max-retries", fmt.Sprintf("%d", cfg.MaxRetries),
		"-concurrency", fmt.Sprintf("%d", cfg.Concurrency),
		"-max-rows", fmt.Sprintf("%d", cfg.MaxRows),
		"-seed", fmt.Sprintf("%d", cfg.Seed),
		fmt.Sprintf("-api-seed=%v", cfg.APISeed),
		fmt.Sprintf("-resume=%v", !cfg.Overwrite),
	}
	if cfg.TaxonomyPath != "" {
		args = append(args, "-taxonomy", cfg.TaxonomyPath)
	}
	return args
}

func resultPath(cfg Config, experiment categorize.ExperimentType, withDefs bool) string {
	return filepath.Join(cfg.OutDir, categorize.OutputBaseName(experiment, withDefs)+".csv")
}

// evaluateCommands scores every existing result CSV and compares each non-baseline run against the
// baseline with the same definitions setting.
func evaluateCommands(cfg Config) [][]string {
	var cmds [][]string
	for _, withDefs := range cfg.definitionVariants() {
		baseline := resultPath(cfg, categorize.ExperimentBaseline, withDefs)
		for _, experiment := range categorize.ExperimentTypes {
			in := resultPath(cfg, experiment, withDefs)
			if !fileutils.FileExists(in) {
				fmt.Fprintln(os.Stdout, "skip evaluate: missing", in)
				continue
			}
			args := []string{
				"run", "./cmd/evaluate",
				"-in", in,
				"-truth-col", cfg.TruthColumn,
				"-json", strings.TrimSuffix(in, ".csv") + ".eval.json",
			}
			if experiment != categorize.ExperimentBaseline && fileutils.FileExists(baseline) {
				args = append(args, "-compare", baseline, "-level", cfg.Level)
				if cfg.Exact {
					args = append(args, "-exact")
				}
			}
			cmds = append(cmds, args)
		}
	}
	return cmds
}

func runGo(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, "command failed:", "go "+strings.Join(args, " "))
		fmt.Fprintln(os.Stderr, "error:", err.Error())
		return err
	}
	fmt.Fprintln(os.Stdout, "ok:", "go "+strings.Join(args, " "), "(", time.Since(start).Round(time.Millisecond).String()+")")
	return nil
}

func stagesFrom(stages []string, from string) []string {
	from = strings.ToLower(strings.TrimSpace(from))
	for i, s := range stages {
		if s == from {
			return stages[i:]
		}
	}
	return stages
}
