package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/theimaginaryfoundation/prodcat/categorize"
	"github.com/theimaginaryfoundation/prodcat/evaluation"
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

	report, err := evaluate(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	printReport(os.Stdout, report)

	if cfg.JSONPath != "" {
		if err := evaluation.WriteReport(cfg.JSONPath, report); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Fprintln(os.Stdout, "report:", cfg.JSONPath)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.ConfigPath, config.FileFlag, "", "Optional YAML file with flag values (keys are flag names; PRODCAT_* env vars override it)")
	fs.StringVar(&cfg.InPath, "in", "", "Result CSV written by classify")
	fs.StringVar(&cfg.TruthColumn, "truth-col", cfg.TruthColumn, "Column holding the ground-truth category path")
	fs.StringVar(&cfg.PredColumn, "pred-col", cfg.PredColumn, "Column holding the predicted category path")
	fs.StringVar(&cfg.ComparePath, "compare", "", "Optional second result CSV (same rows) to compare against with a McNemar test")
	fs.StringVar(&cfg.ComparePredColumn, "compare-pred-col", "", "Prediction column in -compare (default: -pred-col)")
	fs.StringVar(&cfg.Level, "level", cfg.Level, "Level compared by the McNemar test: path|second|third")
	fs.BoolVar(&cfg.Exact, "exact", false, "Use the exact binomial McNemar test instead of chi-square")
	fs.StringVar(&cfg.JSONPath, "json", "", "Optional path for a JSON report")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/evaluate -in results/baseline_with_definitions.csv")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/evaluate -in results/baseline_with_definitions.csv -compare results/combined_with_definitions.csv -level third")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if err := config.OverlayFlags(fs, cfg.ConfigPath); err != nil {
		return Config{}, err
	}

	if cfg.ComparePredColumn == "" {
		cfg.ComparePredColumn = cfg.PredColumn
	}
	if cfg.InPath != "" {
		cfg.InPath = filepath.Clean(cfg.InPath)
	}
	if cfg.ComparePath != "" {
		cfg.ComparePath = filepath.Clean(cfg.ComparePath)
	}
	if cfg.JSONPath != "" {
		cfg.JSONPath = filepath.Clean(cfg.JSONPath)
	}
	return cfg, nil
}

func readColumns(path string, cols ...string) ([][]string, error) {
	table, err := categorize.ReadCSVFile(path)
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(cols))
	for i, c := range cols {
		if out[i], err = table.Column(c); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return out, nil
}

func evaluate(cfg Config) (evaluation.Report, error) {
	cols, err := readColumns(cfg.InPath, cfg.TruthColumn, cfg.PredColumn)
	if err != nil {
		return evaluation.Report{}, err
	}
	truth, pred := cols[0], cols[1]

	scores, err := evaluation.EvalF1Scores(truth, pred)
	if err != nil {
		return evaluation.Report{}, fmt.Errorf("%s: %w", cfg.InPath, err)
	}
	report := evaluation.Report{
		Input:       cfg.InPath,
		TruthColumn: cfg.TruthColumn,
		PredColumn:  cfg.PredColumn,
		Rows:        len(truth),
		Scores:      scores,
		CreatedAt:   time.Now().UTC(),
	}
	if cfg.ComparePath == "" {
		return report, nil
	}

	level, err := evaluation.ParseLevel(cfg.Level)
	if err != nil {
		return evaluation.Report{}, err
	}
	other, err := readColumns(cfg.ComparePath, cfg.ComparePredColumn)
	if err != nil {
		return evaluation.Report{}, err
	}
	if len(other[0]) != len(truth) {
		return evaluation.Report{}, fmt.Errorf("%s has %d rows, %s has %d", cfg.ComparePath, len(other[0]), cfg.InPath, len(truth))
	}
	c1, err := evaluation.Correctness(truth, pred, level)
	if err != nil {
		return evaluation.Report{}, fmt.Errorf("%s: %w", cfg.InPath, err)
	}
	c2, err := evaluation.Correctness(truth, other[0], level)
	if err != nil {
		return evaluation.Report{}, fmt.Errorf("%s: %w", cfg.ComparePath, err)
	}
	res, err := evaluation.McNemar(c1, c2, cfg.Exact)
	if err != nil {
		return evaluation.Report{}, err
	}
	report.Comparison = &evaluation.Comparison{
		Other:         cfg.ComparePath,
		PredColumn:    cfg.ComparePredColumn,
		Level:         level,
		McNemarResult: res,
	}
	return report, nil
}

func printReport(w io.Writer, r evaluation.Report) {
	fmt.Fprintf(w, "input=%s rows=%d\n", r.Input, r.Rows)
	for _, name := range evaluation.ScoreNames {
		fmt.Fprintf(w, "%s: %.4f\n", name, r.Scores[name])
	}
	if c := r.Comparison; c != nil {
		fmt.Fprintf(w, "mcnemar other=%s level=%s exact=%v table=%v statistic=%.4f p_value=%.6g\n",
			c.Other, c.Level, c.Exact, c.Table, c.Statistic, c.PValue)
	}
}
