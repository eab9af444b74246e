// Package pipeline sequences the harvest run: Fetch, Extract, Accumulate,
// Cleanup, with strictly sequential stages and no stage-level retry.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"kuharvest/internal/engine"
	"kuharvest/internal/extractor"
)

// State is the driver's position in the run.
type State string

const (
	StateFetching     State = "Fetching"
	StateExtracting   State = "Extracting"
	StateAccumulating State = "Accumulating"
	StateCleaningUp   State = "CleaningUp"
	StateDone         State = "Done"
	StateFailed       State = "Failed"
)

// Outcome distinguishes how a finished run ended.
type Outcome int

const (
	// OutcomeComplete: every staged unit was folded into the store.
	OutcomeComplete Outcome = iota
	// OutcomePartial: the run finished but some units were skipped.
	OutcomePartial
	// OutcomeFailed: an error escaped a stage and halted the run.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomePartial:
		return "partial"
	default:
		return "failed"
	}
}

// Stage collaborators. Per-item failures are absorbed inside each stage;
// an error returned here is unrecoverable and halts the driver.
type (
	Fetcher interface {
		FetchAll(ctx context.Context, destDir string) error
	}
	Extractor interface {
		ExtractAll(ctx context.Context) (extractor.Result, error)
	}
	Accumulator interface {
		AccumulateAll(ctx context.Context) (engine.Result, error)
	}
)

// Result summarizes a run.
type Result struct {
	State       State
	Outcome     Outcome
	Extracted   int
	Accumulated int
	Skipped     int
}

// Driver owns the run sequence. On a hard failure it halts without
// cleaning up, leaving staging artifacts in place for inspection.
type Driver struct {
	Fetcher   Fetcher
	Extractor Extractor
	Engine    Accumulator
	// Cleanup removes staged archives and the unpacked tree. It runs only
	// after a successful accumulation stage.
	Cleanup func()
	Logger  *slog.Logger
	// OnState, when set, is notified of every state transition.
	OnState func(State)
}

// Run executes the pipeline. The returned error is non-nil only for hard
// failures; skipped units surface through Result.Outcome instead.
func (d *Driver) Run(ctx context.Context, stagingDir string) (Result, error) {
	res := Result{}

	d.setState(&res, StateFetching)
	if err := d.Fetcher.FetchAll(ctx, stagingDir); err != nil {
		return d.fail(&res, fmt.Errorf("fetch stage: %w", err))
	}

	d.setState(&res, StateExtracting)
	extractRes, err := d.Extractor.ExtractAll(ctx)
	if err != nil {
		return d.fail(&res, fmt.Errorf("extract stage: %w", err))
	}
	res.Extracted = len(extractRes.Units)
	res.Skipped += extractRes.Skipped

	d.setState(&res, StateAccumulating)
	accRes, err := d.Engine.AccumulateAll(ctx)
	if err != nil {
		return d.fail(&res, fmt.Errorf("accumulate stage: %w", err))
	}
	res.Accumulated = accRes.Accumulated
	res.Skipped += accRes.Skipped

	d.setState(&res, StateCleaningUp)
	d.Cleanup()

	d.setState(&res, StateDone)
	if res.Skipped > 0 {
		res.Outcome = OutcomePartial
	} else {
		res.Outcome = OutcomeComplete
	}
	d.Logger.Info("Run finished.",
		slog.String("outcome", res.Outcome.String()),
		slog.Int("extracted", res.Extracted),
		slog.Int("accumulated", res.Accumulated),
		slog.Int("skipped", res.Skipped))
	return res, nil
}

func (d *Driver) setState(res *Result, s State) {
	res.State = s
	d.Logger.Info("Stage transition.", slog.String("state", string(s)))
	if d.OnState != nil {
		d.OnState(s)
	}
}

func (d *Driver) fail(res *Result, err error) (Result, error) {
	res.State = StateFailed
	res.Outcome = OutcomeFailed
	d.Logger.Error("Run halted.", "error", err)
	if d.OnState != nil {
		d.OnState(StateFailed)
	}
	return *res, err
}
