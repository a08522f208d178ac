package categorize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/theimaginaryfoundation/prodcat/categorize/fileutils"
)

const (
	PredictedPathColumn = "Predicted Path"
	ResponseColumn      = "Response"
)

// ChatRequest is one chat-completion call: a system and a user message sampled at Temperature.
type ChatRequest struct {
	System      string
	User        string
	Temperature float64

	// Seed, when non-nil, asks the API for reproducible sampling of this request only.
	Seed *int64
}

// ChatCompleter sends a request to a chat model and returns the assistant message text.
type ChatCompleter interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// Options controls how a single product is classified.
type Options struct {
	Experiment      ExperimentType
	WithDefinitions bool

	// SelfConsistencyRounds and ChoiceShufflingRounds size the repeated experiments;
	// combined runs SelfConsistencyRounds x ChoiceShufflingRounds rounds.
	SelfConsistencyRounds int
	ChoiceShufflingRounds int

	// MaxRetries bounds the re-requests made after a response without a valid path.
	MaxRetries int

	// GreedyTemperature is used by baseline and choice-shuffling, SamplingTemperature by
	// self-consistency and combined.
	GreedyTemperature   float64
	SamplingTemperature float64

	// SeedRequests attaches a seed drawn from the row's random source to every request. Each round
	// and retry gets its own seed, so repeated samples of a product stay independent while a rerun
	// with the same row seed reproduces them.
	SeedRequests bool
}

func DefaultOptions() Options {
	return Options{
		Experiment:            ExperimentBaseline,
		SelfConsistencyRounds: 5,
		ChoiceShufflingRounds: 5,
		MaxRetries:            5,
		GreedyTemperature:     0,
		SamplingTemperature:   1.0,
	}
}

func (o Options) Validate() error {
	if !o.Experiment.Valid() {
		return fmt.Errorf("unknown experiment type %q", o.Experiment)
	}
	if o.SelfConsistencyRounds <= 0 || o.ChoiceShufflingRounds <= 0 {
		return errors.New("round counts must be > 0")
	}
	if o.MaxRetries < 0 {
		return errors.New("max retries must be >= 0")
	}
	if o.GreedyTemperature < 0 || o.GreedyTemperature > 2 || o.SamplingTemperature < 0 || o.SamplingTemperature > 2 {
		return errors.New("temperatures must be within [0, 2]")
	}
	return nil
}

// RoundSpec describes one repetition of the prompt for a product.
type RoundSpec struct {
	// Label names the round in column headers: "" for baseline, "i" or "i,j" otherwise.
	Label       string
	Shuffle     bool
	Temperature float64
}

func (s RoundSpec) PathColumn() string {
	if s.Label == "" {
		return PredictedPathColumn
	}
	return "Path Round " + s.Label
}

func (s RoundSpec) ResponseColumn() string {
	if s.Label == "" {
		return ResponseColumn
	}
	return "Response Round " + s.Label
}

// Plan lists the rounds the experiment performs for every product.
func (o Options) Plan() []RoundSpec {
	switch o.Experiment {
	case ExperimentBaseline:
		return []RoundSpec{{Temperature: o.GreedyTemperature}}
	case ExperimentSelfConsistency:
		rounds := make([]RoundSpec, 0, o.SelfConsistencyRounds)
		for i := 0; i < o.SelfConsistencyRounds; i++ {
			rounds = append(rounds, RoundSpec{Label: fmt.Sprint(i), Temperature: o.SamplingTemperature})
		}
		return rounds
	case ExperimentChoiceShuffling:
		rounds := make([]RoundSpec, 0, o.ChoiceShufflingRounds)
		for i := 0; i < o.ChoiceShufflingRounds; i++ {
			rounds = append(rounds, RoundSpec{Label: fmt.Sprint(i), Shuffle: true, Temperature: o.GreedyTemperature})
		}
		return rounds
	case ExperimentCombined:
		rounds := make([]RoundSpec, 0, o.SelfConsistencyRounds*o.ChoiceShufflingRounds)
		for i := 0; i < o.SelfConsistencyRounds; i++ {
			for j := 0; j < o.ChoiceShufflingRounds; j++ {
				rounds = append(rounds, RoundSpec{Label: fmt.Sprintf("%d,%d", i, j), Shuffle: true, Temperature: o.SamplingTemperature})
			}
		}
		return rounds
	default:
		return nil
	}
}

// Columns lists the output columns the experiment fills, in the order they are created.
func (o Options) Columns() []string {
	plan := o.Plan()
	cols := make([]string, 0, 2*len(plan)+1)
	for _, r := range plan {
		cols = append(cols, r.PathColumn(), r.ResponseColumn())
	}
	if o.Experiment != ExperimentBaseline {
		cols = append(cols, PredictedPathColumn)
	}
	return cols
}

// RoundResult is the outcome of one round after retries.
type RoundResult struct {
	Spec     RoundSpec
	Path     string
	Response string
	Attempts int
	Fallback bool
}

// RowResult is everything produced for one product.
type RowResult struct {
	Rounds        []RoundResult
	PredictedPath string
}

// Cell is one value destined for the output table.
type Cell struct {
	Column string
	Value  string
}

// Cells flattens the result into table cells.
func (r RowResult) Cells() []Cell {
	cells := r.RoundCells()
	if len(r.Rounds) != 1 || r.Rounds[0].Spec.Label != "" {
		cells = append(cells, Cell{PredictedPathColumn, r.PredictedPath})
	}
	return cells
}

// RoundCells holds only the per-round path and response cells, e.g. for a row that failed part-way.
func (r RowResult) RoundCells() []Cell {
	cells := make([]Cell, 0, 2*len(r.Rounds)+1)
	for _, rr := range r.Rounds {
		cells = append(cells, Cell{rr.Spec.PathColumn(), rr.Path}, Cell{rr.Spec.ResponseColumn(), rr.Response})
	}
	return cells
}

// Retries is the number of re-requests made across all rounds.
func (r RowResult) Retries() int {
	n := 0
	for _, rr := range r.Rounds {
		n += rr.Attempts - 1
	}
	return n
}

func (r RowResult) Fallbacks() int {
	n := 0
	for _, rr := range r.Rounds {
		if rr.Fallback {
			n++
		}
	}
	return n
}

// Classifier runs the configured experiment for one product at a time.
type Classifier struct {
	chat     ChatCompleter
	taxonomy Taxonomy
	opts     Options
	log      logrus.FieldLogger
}

func NewClassifier(chat ChatCompleter, taxonomy Taxonomy, opts Options, log logrus.FieldLogger) (*Classifier, error) {
	if chat == nil {
		return nil, errors.New("NewClassifier: chat is nil")
	}
	if err := taxonomy.Validate(); err != nil {
		return nil, fmt.Errorf("NewClassifier: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("NewClassifier: %w", err)
	}
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	return &Classifier{chat: chat, taxonomy: taxonomy, opts: opts, log: log}, nil
}

func (c *Classifier) Options() Options {
	return c.opts
}

func (c *Classifier) Taxonomy() Taxonomy {
	return c.taxonomy
}

// WithLogger returns a copy of the classifier that logs to log, e.g. an entry carrying the row index.
func (c *Classifier) WithLogger(log logrus.FieldLogger) *Classifier {
	cp := *c
	if log != nil {
		cp.log = log
	}
	return &cp
}

// ClassifyProduct performs every round of the experiment and majority-votes the result.
// Only transport-level failures are returned as errors; unparseable answers fall back to the sentinel path.
func (c *Classifier) ClassifyProduct(ctx context.Context, p Product, rng *rand.Rand) (RowResult, error) {
	plan := c.opts.Plan()
	res := RowResult{Rounds: make([]RoundResult, 0, len(plan))}
	for _, spec := range plan {
		rr, err := c.classifyRound(ctx, p, spec, rng)
		if err != nil {
			return res, err
		}
		if spec.Label != "" {
			c.log.WithField("round", spec.Label).Infof("-> Round %s completed: %s", spec.Label, rr.Path)
		}
		res.Rounds = append(res.Rounds, rr)
	}
	res.PredictedPath = c.vote(res.Rounds)
	return res, nil
}

// vote ignores fallback rounds unless no round produced a valid path.
func (c *Classifier) vote(rounds []RoundResult) string {
	valid := make([]string, 0, len(rounds))
	for _, r := range rounds {
		if !r.Fallback {
			valid = append(valid, r.Path)
		}
	}
	if len(valid) == 0 {
		return c.taxonomy.FallbackPath()
	}
	return MostCommon(valid)
}

func (c *Classifier) classifyRound(ctx context.Context, p Product, spec RoundSpec, rng *rand.Rand) (RoundResult, error) {
	second, third := c.taxonomy.SecondLevel, c.taxonomy.ThirdLevel
	if spec.Shuffle {
		second = PermuteLabels(second, rng)
		third = PermuteLabels(third, rng)
	}
	req := ChatRequest{
		System:      SystemPrompt(),
		User:        FormatUserPrompt(p, c.taxonomy.Root, second, third, c.opts.WithDefinitions),
		Temperature: spec.Temperature,
	}

	rr := RoundResult{Spec: spec}
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return rr, err
		}
		rr.Attempts++
		if c.opts.SeedRequests {
			seed := rng.Int64()
			req.Seed = &seed
		}

		text, err := c.chat.Complete(ctx, req)
		if err != nil {
			return rr, fmt.Errorf("chat completion: %w", err)
		}
		text = strings.TrimSpace(text)

		path, err := c.taxonomy.ExtractPath(text)
		if err == nil {
			rr.Path = path
			rr.Response = text
			return rr, nil
		}
		c.log.WithField("attempt", rr.Attempts).Warnf("Response path format incorrect for response: %s", fileutils.Truncate(fileutils.OneLine(text), 2000))
	}

	c.log.WithField("attempts", rr.Attempts).Warnf("No valid path after %d attempts, storing %s", rr.Attempts, c.taxonomy.FallbackPath())
	rr.Path = c.taxonomy.FallbackPath()
	rr.Response = FallbackResponse
	rr.Fallback = true
	return rr, nil
}
