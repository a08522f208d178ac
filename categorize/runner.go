package categorize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RunOptions controls a whole-table classification run.
type RunOptions struct {
	TitleColumn string
	BrandColumn string

	// Concurrency is the number of rows classified in parallel (0 or 1 = sequential).
	Concurrency int

	// MaxRows limits the run to the first N rows (0 = all).
	MaxRows int

	// Resume skips rows whose Predicted Path is already filled.
	Resume bool

	// Seed feeds the per-row label permutations.
	Seed uint64

	// CheckpointEvery persists the table after every N finished rows (0 = only at the end).
	CheckpointEvery int

	// Checkpoint persists a snapshot of the table. It is called at the end of the run, also when the
	// run fails, so partial results are never lost.
	Checkpoint func(*Table) error

	// Progress, when set, is called after each finished row with the number of rows done and the
	// number of rows this run has to classify (rows skipped by Resume are not counted).
	Progress func(done, total int)
}

// RunStats summarises a run.
type RunStats struct {
	Rows      int64 `json:"rows"`
	Skipped   int64 `json:"skipped"`
	Rounds    int64 `json:"rounds"`
	Retries   int64 `json:"retries"`
	Fallbacks int64 `json:"fallbacks"`
}

// Runner classifies every row of a table in place.
type Runner struct {
	classifier *Classifier
	log        logrus.FieldLogger
	opts       RunOptions
}

func NewRunner(c *Classifier, log logrus.FieldLogger, opts RunOptions) (*Runner, error) {
	if c == nil {
		return nil, errors.New("NewRunner: classifier is nil")
	}
	if opts.Concurrency < 0 || opts.MaxRows < 0 || opts.CheckpointEvery < 0 {
		return nil, errors.New("NewRunner: concurrency, max rows and checkpoint interval must be >= 0")
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = 1
	}
	if opts.TitleColumn == "" {
		opts.TitleColumn = TitleColumn
	}
	if opts.BrandColumn == "" {
		opts.BrandColumn = BrandColumn
	}
	if log == nil {
		log = c.log
	}
	return &Runner{classifier: c, log: log, opts: opts}, nil
}

// Run classifies the table. On failure the partial table is checkpointed before the error is returned.
func (r *Runner) Run(ctx context.Context, table *Table) (RunStats, error) {
	if table == nil {
		return RunStats{}, errors.New("Run: table is nil")
	}
	if !table.HasColumn(r.opts.TitleColumn) {
		return RunStats{}, fmt.Errorf("Run: input has no %q column", r.opts.TitleColumn)
	}

	copts := r.classifier.Options()
	descriptions := "without category descriptions"
	if copts.WithDefinitions {
		descriptions = "with category descriptions"
	}
	r.log.Info("Starting Product Classification")
	r.log.Infof("Specifications: Experiment Type: %s, Descriptions: %s", copts.Experiment, descriptions)

	for _, col := range copts.Columns() {
		table.EnsureColumn(col)
	}

	limit := table.Len()
	if r.opts.MaxRows > 0 && r.opts.MaxRows < limit {
		limit = r.opts.MaxRows
	}

	var stats RunStats
	pending := make([]int, 0, limit)
	for row := 0; row < limit; row++ {
		if r.opts.Resume && table.Get(row, PredictedPathColumn) != "" {
			stats.Skipped++
			continue
		}
		pending = append(pending, row)
	}
	total := len(pending)

	var (
		mu   sync.Mutex
		done int
	)
	checkpoint := func() error {
		if r.opts.Checkpoint == nil {
			return nil
		}
		return r.opts.Checkpoint(table)
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	for _, row := range pending {
		if gctx.Err() != nil {
			break
		}
		mu.Lock()
		product := table.Product(row, r.opts.TitleColumn, r.opts.BrandColumn)
		mu.Unlock()

		g.Go(func() error {
			rowLog := r.log.WithField("row", row)
			rowLog.Infof("--- %s ---", product.Title)

			res, err := r.classifier.WithLogger(rowLog).ClassifyProduct(gctx, product, RowRand(r.opts.Seed, row))
			if err != nil {
				// Keep the finished rounds; the row has no Predicted Path so a resumed run redoes it.
				if len(res.Rounds) > 0 {
					mu.Lock()
					table.SetCells(row, res.RoundCells())
					stats.Rounds += int64(len(res.Rounds))
					mu.Unlock()
				}
				return fmt.Errorf("row %d (%q): %w", row, product.Title, err)
			}

			mu.Lock()
			defer mu.Unlock()
			table.SetCells(row, res.Cells())
			stats.Rows++
			stats.Rounds += int64(len(res.Rounds))
			stats.Retries += int64(res.Retries())
			stats.Fallbacks += int64(res.Fallbacks())
			done++
			if r.opts.Progress != nil {
				r.opts.Progress(done, total)
			}
			if r.opts.CheckpointEvery > 0 && done%r.opts.CheckpointEvery == 0 {
				if err := checkpoint(); err != nil {
					return fmt.Errorf("checkpoint: %w", err)
				}
			}
			return nil
		})
	}

	runErr := g.Wait()
	if runErr == nil {
		runErr = ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()
	if runErr != nil {
		r.log.WithError(runErr).Errorf("Exception caught: %v", runErr)
		if err := checkpoint(); err != nil {
			return stats, errors.Join(runErr, fmt.Errorf("persist partial results: %w", err))
		}
		return stats, runErr
	}
	if err := checkpoint(); err != nil {
		return stats, fmt.Errorf("Run: persist results: %w", err)
	}
	r.log.WithFields(logrus.Fields{
		"rows":      stats.Rows,
		"skipped":   stats.Skipped,
		"retries":   stats.Retries,
		"fallbacks": stats.Fallbacks,
		"elapsed":   time.Since(start).Round(time.Second).String(),
	}).Info("Product Classification finished")
	return stats, nil
}
