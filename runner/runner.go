/*
Package runner executes one complete LIC calculation: pipeline, validation
against the prior period, and persistence.

PURPOSE:
  The HTTP API and the batch CLI run the same sequence. This package owns
  it so both record runs the same way.

SEQUENCE:
  1. reserving.Pipeline.Run over the inputs
  2. Prior summary: supplied by the caller, or the latest stored run for
     valuation year - 1 (none found means YoY is skipped)
  3. validation.Engine.Run
  4. SaveRun + SaveFindings (status completed or flagged)

FAILED RUNS:
  A pipeline error is recorded as a run with status "failed" and the error
  text, then returned to the caller. Failed runs are never used as a prior.

SEE ALSO:
  - reserving/pipeline.go: Calculation stages
  - validation/engine.go: Check families
  - reserving/store.go: RunStore
*/
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/reserving-engine/logger"
	"github.com/warp/reserving-engine/reserving"
	"github.com/warp/reserving-engine/validation"
)

// Options adjust a single execution.
type Options struct {
	// Policy overrides the runner's policy when set.
	Policy *reserving.Policy

	// Prior is the previous period's summary. Nil looks it up in the store.
	Prior []reserving.SummaryRow

	// Source is recorded on the run, e.g. "workbook" or "api".
	Source string
}

// Outcome is everything one execution produced.
type Outcome struct {
	Run        reserving.Run
	Result     *reserving.Result
	Report     validation.Report
	PriorRunID string
}

// Runner ties the pipeline, the validation engine and a store together.
type Runner struct {
	Store      reserving.RunStore
	Policy     reserving.Policy
	Thresholds validation.Thresholds
	Log        *logger.Entry

	// NewID and Now are replaceable for tests.
	NewID func() string
	Now   func() time.Time
}

func New(store reserving.RunStore, policy reserving.Policy, thresholds validation.Thresholds) *Runner {
	return &Runner{
		Store:      store,
		Policy:     policy,
		Thresholds: thresholds,
		Log:        logger.GetLogger().WithComponent("runner"),
		NewID:      uuid.NewString,
		Now:        time.Now,
	}
}

// Execute runs the calculation and records it. On a pipeline error the
// returned Outcome still carries the failed run.
func (r *Runner) Execute(ctx context.Context, in reserving.Inputs, opts Options) (*Outcome, error) {
	policy := r.Policy
	if opts.Policy != nil {
		policy = *opts.Policy
	}

	out := &Outcome{Run: reserving.Run{
		ID:            r.NewID(),
		ValuationYear: in.ValuationYear,
		Source:        opts.Source,
		CreatedAt:     r.Now(),
	}}
	log := r.Log.WithFields(logger.Fields{"run_id": out.Run.ID, "valuation_year": in.ValuationYear})

	pipeline := reserving.NewPipeline(policy)
	pipeline.Log = log
	res, err := pipeline.Run(ctx, in)
	if err != nil {
		out.Run.Status = reserving.RunFailed
		out.Run.Error = err.Error()
		log.WithError(err).Error("Calculation failed")
		if r.Store != nil {
			if saveErr := r.Store.SaveRun(ctx, out.Run, nil, nil); saveErr != nil {
				log.WithError(saveErr).Error("Failed to record failed run")
			}
		}
		return out, err
	}
	out.Result = res
	out.Run.Horizon = res.Horizon

	prior := opts.Prior
	if prior == nil {
		prior, out.PriorRunID, err = r.lookupPrior(ctx, in.ValuationYear-1)
		if err != nil {
			return out, err
		}
	}

	engine := validation.NewEngine(r.Thresholds)
	engine.Log = log
	out.Report = engine.Run(validation.Input{
		ValuationYear: in.ValuationYear,
		Triangle:      in.Triangle,
		Current:       res.Summary,
		Prior:         prior,
		Warnings:      res.Warnings,
	})

	out.Run.Status = reserving.RunCompleted
	if !out.Report.Passed() {
		out.Run.Status = reserving.RunFlagged
	}

	if r.Store != nil {
		if err := r.Store.SaveRun(ctx, out.Run, res.Summary, out.Report.Findings); err != nil {
			return out, fmt.Errorf("save run: %w", err)
		}
	}

	log.WithFields(logger.Fields{
		"status":    out.Run.Status,
		"rows":      len(res.Summary),
		"prior_run": out.PriorRunID,
		"failures":  len(out.Report.Failures()),
	}).Info("Run recorded")
	return out, nil
}

// lookupPrior returns the newest usable summary for year. A missing run is
// not an error: the YoY family reports that it was skipped.
func (r *Runner) lookupPrior(ctx context.Context, year int) ([]reserving.SummaryRow, string, error) {
	if r.Store == nil {
		return nil, "", nil
	}
	run, err := r.Store.LatestRun(ctx, year)
	if reserving.IsNotFound(err) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("find prior run: %w", err)
	}
	summary, err := r.Store.LoadSummary(ctx, run.ID)
	if err != nil {
		return nil, "", fmt.Errorf("load prior summary %s: %w", run.ID, err)
	}
	if summary == nil {
		summary = []reserving.SummaryRow{}
	}
	return summary, run.ID, nil
}
