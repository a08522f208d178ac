package main

import (
	"bytes"
	"flag"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/theimaginaryfoundation/prodcat/evaluation"
)

func writeCSV(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestParseFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{
		"-in", "results/./baseline_with_definitions.csv",
		"-compare", "results/combined_with_definitions.csv",
		"-level", "third",
		"-exact",
		"-json", "results/eval.json",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.InPath != filepath.FromSlash("results/baseline_with_definitions.csv") {
		t.Fatalf("InPath=%q", cfg.InPath)
	}
	if cfg.TruthColumn != "Category Path" || cfg.PredColumn != "Predicted Path" || cfg.ComparePredColumn != "Predicted Path" {
		t.Fatalf("columns=%q %q %q", cfg.TruthColumn, cfg.PredColumn, cfg.ComparePredColumn)
	}
	if cfg.Level != "third" || !cfg.Exact {
		t.Fatalf("Level=%q Exact=%v", cfg.Level, cfg.Exact)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	cfg.Level = "fourth"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected invalid level error")
	}
}

func TestEvaluate_ScoresAndCompare(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeCSV(t, dir, "baseline.csv", "Title,Category Path,Predicted Path\n"+
		"a,R>A>x,R>A>x\n"+
		"b,R>A>y,R>B>y\n"+
		"c,R>B>x,R>B>z\n")
	other := writeCSV(t, dir, "combined.csv", "Title,Category Path,Predicted Path\n"+
		"a,R>A>x,R>A>x\n"+
		"b,R>A>y,R>A>y\n"+
		"c,R>B>x,R>Unknown>Unknown\n")

	cfg := defaultConfig()
	cfg.InPath = in
	cfg.ComparePath = other
	cfg.ComparePredColumn = cfg.PredColumn
	cfg.Level = "path"

	r, err := evaluate(cfg)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if r.Rows != 3 {
		t.Fatalf("rows=%d", r.Rows)
	}
	if math.Abs(r.Scores[evaluation.PathsMicroF1]-1.0/3.0) > 1e-9 {
		t.Fatalf("paths micro=%v", r.Scores[evaluation.PathsMicroF1])
	}
	if r.Comparison == nil {
		t.Fatalf("missing comparison")
	}
	// Row b: only the second file is right; rows a and c agree.
	want := [2][2]int{{1, 0}, {1, 1}}
	if r.Comparison.Table != want {
		t.Fatalf("table=%v, want %v", r.Comparison.Table, want)
	}
	if math.Abs(r.Comparison.PValue-1) > 1e-12 {
		t.Fatalf("p=%v, want 1 for a single discordant pair", r.Comparison.PValue)
	}

	var buf bytes.Buffer
	printReport(&buf, r)
	for _, s := range []string{"Paths Micro F1: 0.3333", "Third-Level Macro F1: 0.5556", "mcnemar other=", "level=path"} {
		if !strings.Contains(buf.String(), s) {
			t.Fatalf("output missing %q:\n%s", s, buf.String())
		}
	}
}

func TestEvaluate_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeCSV(t, dir, "in.csv", "Category Path,Predicted Path\nR>A>x,R>A>x\n")

	cfg := defaultConfig()
	cfg.InPath = in
	cfg.PredColumn = "Missing"
	if _, err := evaluate(cfg); err == nil {
		t.Fatalf("expected missing column error")
	}

	bad := writeCSV(t, dir, "bad.csv", "Category Path,Predicted Path\nR>A,R>A>x\n")
	cfg = defaultConfig()
	cfg.InPath = bad
	if _, err := evaluate(cfg); err == nil || !strings.Contains(err.Error(), "incorrect path format") {
		t.Fatalf("err=%v, want incorrect path format", err)
	}

	short := writeCSV(t, dir, "short.csv", "Category Path,Predicted Path\n")
	cfg = defaultConfig()
	cfg.InPath = in
	cfg.ComparePath = short
	cfg.ComparePredColumn = cfg.PredColumn
	if _, err := evaluate(cfg); err == nil {
		t.Fatalf("expected row count mismatch error")
	}
}
