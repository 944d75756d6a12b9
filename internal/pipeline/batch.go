package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/msageha/selfcal/internal/model"
)

// DefaultBatchSteps predicts the model and phases up each set.
const DefaultBatchSteps = "mu"

// BatchOptions describe independent runs over every measurement set
// under Root. Each set gets its own results directory Results/<name>.
type BatchOptions struct {
	Root    string
	Results string
	Model   string
	Steps   string
	Debug   bool
	// KeepGoing lets the remaining sets run after one fails. Failures are
	// reported per set and joined into the returned error.
	KeepGoing bool
}

// BatchResult is the outcome of one set's run.
type BatchResult struct {
	Set     string
	Results string
	Result  *Result
	Err     error
}

// Batch runs one pipeline per measurement set, at most
// cfg.Pipeline.Workers at a time. Runs never prompt: starting a batch is
// the confirmation. Unless opts.KeepGoing is set, the first failure cancels
// runs that have not started.
func Batch(ctx context.Context, cfg model.Config, opts BatchOptions, options ...Option) ([]BatchResult, error) {
	if opts.Steps == "" {
		opts.Steps = DefaultBatchSteps
	}
	if opts.Results == "" {
		return nil, preconditionf("no batch results directory given")
	}
	sets, err := ExpandMeasurementSets(opts.Root, true)
	if err != nil {
		return nil, err
	}

	limit := cfg.Pipeline.Workers
	if limit < 1 {
		limit = 1
	}
	out := make([]BatchResult, len(sets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, set := range sets {
		name := filepath.Base(set)
		results := filepath.Join(opts.Results, name)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			seq := NewSequencer(cfg, Options{
				Steps:     opts.Steps,
				MS:        set,
				Results:   results,
				Model:     opts.Model,
				Debug:     opts.Debug,
				AssumeYes: true,
			}, options...)
			res, err := seq.Run(gctx)
			if err != nil {
				err = fmt.Errorf("batch set %s: %w", name, err)
			}
			out[i] = BatchResult{Set: set, Results: results, Result: res, Err: err}
			if opts.KeepGoing {
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var errs []error
	for _, r := range out {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return out, errors.Join(errs...)
}
