package categorize

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// titleChat answers based on the product title found in the user prompt. A title in fail errors
// once it has been asked more than failAfter[title] times.
type titleChat struct {
	mu        sync.Mutex
	answers   map[string]string
	fail      map[string]error
	failAfter map[string]int
	calls     map[string]int
}

func (c *titleChat) Complete(_ context.Context, req ChatRequest) (string, error) {
	title := strings.TrimPrefix(strings.SplitN(req.User, "\n", 2)[0], "Product title: ")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[title]++
	if err := c.fail[title]; err != nil && c.calls[title] > c.failAfter[title] {
		return "", err
	}
	return c.answers[title], nil
}

func productTable(t *testing.T) *Table {
	t.Helper()
	tab, err := ReadCSV(strings.NewReader("Title,Brand,Path\nHeadset,Sony,Electronics>Audio>Headphones\nThinkPad,Lenovo,Electronics>Computers>Laptops\nSoundbar,Bose,Electronics>Audio>Speakers\nGizmo,,Electronics>Audio>Speakers\n"))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	return tab
}

func productAnswers() map[string]string {
	return map[string]string{
		"Headset":  "Category path: Electronics>Audio>Headphones",
		"ThinkPad": "Category path: Electronics>Computers>Laptops",
		"Soundbar": "Category path: Electronics > Audio > Speakers",
		"Gizmo":    "no clue",
	}
}

func runTable(t *testing.T, chat ChatCompleter, tab *Table, mutate func(*Options), ropts RunOptions) (RunStats, error) {
	t.Helper()
	c := newTestClassifier(t, chat, func(o *Options) {
		o.MaxRetries = 1
		if mutate != nil {
			mutate(o)
		}
	})
	r, err := NewRunner(c, nil, ropts)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r.Run(context.Background(), tab)
}

func TestRunner_Baseline(t *testing.T) {
	t.Parallel()

	tab := productTable(t)
	var checkpoints int
	var progress []int
	stats, err := runTable(t, &titleChat{answers: productAnswers()}, tab, nil, RunOptions{
		Checkpoint: func(*Table) error { checkpoints++; return nil },
		Progress:   func(done, total int) { progress = append(progress, done) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	preds, _ := tab.Column(PredictedPathColumn)
	want := []string{
		"Electronics>Audio>Headphones",
		"Electronics>Computers>Laptops",
		"Electronics>Audio>Speakers",
		"Electronics>Unknown>Unknown",
	}
	if diff := cmp.Diff(want, preds); diff != "" {
		t.Fatalf("predictions (-want +got):\n%s", diff)
	}
	if got := tab.Get(3, ResponseColumn); got != FallbackResponse {
		t.Fatalf("fallback response=%q", got)
	}
	if diff := cmp.Diff([]string{"Title", "Brand", "Path", "Predicted Path", "Response"}, tab.Header()); diff != "" {
		t.Fatalf("header (-want +got):\n%s", diff)
	}
	if stats.Rows != 4 || stats.Rounds != 4 || stats.Fallbacks != 1 || stats.Retries != 1 {
		t.Fatalf("stats=%+v", stats)
	}
	if checkpoints != 1 {
		t.Fatalf("checkpoints=%d, want 1", checkpoints)
	}
	if diff := cmp.Diff([]int{1, 2, 3, 4}, progress); diff != "" {
		t.Fatalf("progress (-want +got):\n%s", diff)
	}
}

func TestRunner_ConcurrencyMatchesSequential(t *testing.T) {
	t.Parallel()

	mutate := func(o *Options) {
		o.Experiment = ExperimentCombined
		o.SelfConsistencyRounds = 2
		o.ChoiceShufflingRounds = 2
	}

	seq := productTable(t)
	if _, err := runTable(t, &titleChat{answers: productAnswers()}, seq, mutate, RunOptions{Seed: 9}); err != nil {
		t.Fatalf("sequential: %v", err)
	}
	par := productTable(t)
	if _, err := runTable(t, &titleChat{answers: productAnswers()}, par, mutate, RunOptions{Seed: 9, Concurrency: 4}); err != nil {
		t.Fatalf("parallel: %v", err)
	}

	var a, b bytes.Buffer
	_ = seq.WriteCSV(&a)
	_ = par.WriteCSV(&b)
	if diff := cmp.Diff(a.String(), b.String()); diff != "" {
		t.Fatalf("concurrent output differs (-seq +par):\n%s", diff)
	}
	if got := seq.Get(0, "Path Round 1,1"); got != "Electronics>Audio>Headphones" {
		t.Fatalf("Path Round 1,1=%q", got)
	}
}

func TestRunner_PersistsPartialResultsOnError(t *testing.T) {
	t.Parallel()

	boom := errors.New("quota exceeded")
	chat := &titleChat{answers: productAnswers(), fail: map[string]error{"Soundbar": boom}}
	tab := productTable(t)

	var saved *Table
	_, err := runTable(t, chat, tab, nil, RunOptions{
		Checkpoint: func(tb *Table) error { saved = tb; return nil },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v, want %v", err, boom)
	}
	if saved == nil {
		t.Fatalf("partial results were not checkpointed")
	}
	if saved.Get(0, PredictedPathColumn) != "Electronics>Audio>Headphones" || saved.Get(1, PredictedPathColumn) != "Electronics>Computers>Laptops" {
		t.Fatalf("finished rows missing from checkpoint")
	}
	if saved.Get(2, PredictedPathColumn) != "" || saved.Get(3, PredictedPathColumn) != "" {
		t.Fatalf("rows after the failure should stay empty")
	}
	if chat.calls["Gizmo"] != 0 {
		t.Fatalf("sequential run kept going after the failure")
	}
}

func TestRunner_KeepsFinishedRoundsOfFailedRow(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	chat := &titleChat{
		answers:   productAnswers(),
		fail:      map[string]error{"Soundbar": boom},
		failAfter: map[string]int{"Soundbar": 1},
	}
	tab := productTable(t)

	var saved *Table
	stats, err := runTable(t, chat, tab, func(o *Options) {
		o.Experiment = ExperimentSelfConsistency
		o.SelfConsistencyRounds = 3
	}, RunOptions{
		Checkpoint: func(tb *Table) error { saved = tb; return nil },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v, want %v", err, boom)
	}
	if saved == nil {
		t.Fatalf("partial results were not checkpointed")
	}
	if got := saved.Get(2, "Path Round 0"); got != "Electronics>Audio>Speakers" {
		t.Fatalf("finished round lost: Path Round 0=%q", got)
	}
	if got := saved.Get(2, "Response Round 0"); got != productAnswers()["Soundbar"] {
		t.Fatalf("Response Round 0=%q", got)
	}
	if saved.Get(2, "Path Round 1") != "" || saved.Get(2, PredictedPathColumn) != "" {
		t.Fatalf("failed row should have no later rounds and no vote")
	}
	if stats.Rows != 2 || stats.Rounds != 7 {
		t.Fatalf("stats=%+v, want 2 rows and 7 rounds", stats)
	}

	// The unfinished row is picked up again on resume.
	chat.fail = nil
	stats, err = runTable(t, chat, saved, func(o *Options) {
		o.Experiment = ExperimentSelfConsistency
		o.SelfConsistencyRounds = 3
	}, RunOptions{Resume: true})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if stats.Skipped != 2 || stats.Rows != 2 {
		t.Fatalf("resume stats=%+v", stats)
	}
	if saved.Get(2, PredictedPathColumn) != "Electronics>Audio>Speakers" {
		t.Fatalf("resumed row predicted=%q", saved.Get(2, PredictedPathColumn))
	}
}

func TestRunner_ResumeAndMaxRows(t *testing.T) {
	t.Parallel()

	tab := productTable(t)
	tab.Set(0, PredictedPathColumn, "Electronics>Audio>Speakers")

	chat := &titleChat{answers: productAnswers()}
	var progress [][2]int
	stats, err := runTable(t, chat, tab, nil, RunOptions{
		Resume:   true,
		MaxRows:  3,
		Progress: func(done, total int) { progress = append(progress, [2]int{done, total}) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Skipped != 1 || stats.Rows != 2 {
		t.Fatalf("stats=%+v", stats)
	}
	// Skipped rows are not part of the total, so the last line reads 2/2.
	if diff := cmp.Diff([][2]int{{1, 2}, {2, 2}}, progress); diff != "" {
		t.Fatalf("progress (-want +got):\n%s", diff)
	}
	if chat.calls["Headset"] != 0 {
		t.Fatalf("resumed row was classified again")
	}
	if tab.Get(0, PredictedPathColumn) != "Electronics>Audio>Speakers" {
		t.Fatalf("resumed row overwritten")
	}
	if tab.Get(3, PredictedPathColumn) != "" || chat.calls["Gizmo"] != 0 {
		t.Fatalf("row beyond MaxRows was classified")
	}
}

func TestRunner_MissingTitleColumn(t *testing.T) {
	t.Parallel()

	tab, _ := NewTable([]string{"Name"})
	if _, err := runTable(t, &titleChat{}, tab, nil, RunOptions{}); err == nil {
		t.Fatalf("expected error for missing Title column")
	}
}

func TestRunner_CheckpointEvery(t *testing.T) {
	t.Parallel()

	var n int
	_, err := runTable(t, &titleChat{answers: productAnswers()}, productTable(t), nil, RunOptions{
		CheckpointEvery: 2,
		Checkpoint:      func(*Table) error { n++; return nil },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// After rows 2 and 4, plus the final save.
	if n != 3 {
		t.Fatalf("checkpoints=%d, want 3", n)
	}
}
