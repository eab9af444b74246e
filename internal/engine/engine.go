// Package engine folds per-unit spatial joins into the cumulative feature
// store: the Join-and-Accumulate stage.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"kuharvest/internal/manifest"
)

// FeatureStore is the spatial-engine contract the engine drives. The
// transient joined feature set produced by SpatialJoin lives inside the
// store until DeleteTransient discards it.
type FeatureStore interface {
	SpatialJoin(ctx context.Context, targetPath, joinPath string) error
	StoreExists(ctx context.Context) (bool, error)
	CopyFeatures(ctx context.Context) error
	AppendFeatures(ctx context.Context) error
	DeleteTransient(ctx context.Context) error
}

// EventSink receives unit lifecycle events. Nil sinks are allowed.
type EventSink interface {
	Record(ctx context.Context, unit, event, message string) error
}

// Engine accumulates joined unit features into a single store. Units are
// submitted strictly one at a time; any parallelism lives inside the store.
type Engine struct {
	// Unpacked is the directory of per-unit working directories.
	Unpacked string
	Store    FeatureStore
	Logger   *slog.Logger
	Events   EventSink
	// Init, when set, performs the once-per-run workspace setup before the
	// first unit is processed. Its failure halts the stage.
	Init func(ctx context.Context) error
	// Progress, when set, is called before each unit is processed.
	Progress func(unit string, index, total int)
}

// Result summarizes one accumulation pass.
type Result struct {
	Accumulated int
	Skipped     int
	// SkippedUnits lists the units whose join or append failed.
	SkippedUnits []string
}

// AccumulateAll joins and accumulates every unit directory under Unpacked,
// in sorted order so output row order is deterministic for a given
// directory snapshot. A failed unit is logged and skipped; prior and
// subsequent units are unaffected, and nothing is rolled back.
func (e *Engine) AccumulateAll(ctx context.Context) (Result, error) {
	var res Result

	if e.Init != nil {
		if err := e.Init(ctx); err != nil {
			return res, fmt.Errorf("workspace setup: %w", err)
		}
	}

	units, err := e.listUnits()
	if err != nil {
		return res, err
	}

	e.Logger.Info("Starting accumulation.", slog.Int("units", len(units)))
	for i, unit := range units {
		select {
		case <-ctx.Done():
			return res, fmt.Errorf("accumulation cancelled: %w", ctx.Err())
		default:
		}
		if e.Progress != nil {
			e.Progress(unit, i, len(units))
		}

		if err := e.ProcessUnit(ctx, unit); err != nil {
			e.Logger.Warn("Skip unit: join or append failed.",
				slog.String("unit", unit), "error", err)
			e.record(ctx, unit, "skipped_accumulate", err.Error())
			res.Skipped++
			res.SkippedUnits = append(res.SkippedUnits, unit)
			continue
		}
		e.record(ctx, unit, "accumulated", "")
		res.Accumulated++
	}

	e.Logger.Info("Accumulation finished.",
		slog.Int("accumulated", res.Accumulated),
		slog.Int("skipped", res.Skipped))
	return res, nil
}

// ProcessUnit joins one unit's parcel layer with its definition layer and
// folds the result into the store: copy on first success of the run,
// append thereafter. The transient feature set is discarded regardless of
// outcome.
func (e *Engine) ProcessUnit(ctx context.Context, unit string) error {
	unitDir := filepath.Join(e.Unpacked, unit)
	if missing := manifest.Missing(unitDir, fileExists); len(missing) > 0 {
		return fmt.Errorf("unit %s: incomplete layers, missing %d file(s)", unit, len(missing))
	}

	target := filepath.Join(unitDir, manifest.Parcel.Shapefile())
	join := filepath.Join(unitDir, manifest.Definition.Shapefile())

	if err := e.Store.SpatialJoin(ctx, target, join); err != nil {
		return fmt.Errorf("unit %s: spatial join: %w", unit, err)
	}
	defer func() {
		if err := e.Store.DeleteTransient(ctx); err != nil {
			e.Logger.Warn("Failed to discard transient join result.",
				slog.String("unit", unit), "error", err)
		}
	}()

	exists, err := e.Store.StoreExists(ctx)
	if err != nil {
		return fmt.Errorf("unit %s: check store: %w", unit, err)
	}
	if exists {
		if err := e.Store.AppendFeatures(ctx); err != nil {
			return fmt.Errorf("unit %s: append: %w", unit, err)
		}
	} else {
		if err := e.Store.CopyFeatures(ctx); err != nil {
			return fmt.Errorf("unit %s: copy: %w", unit, err)
		}
	}
	return nil
}

// listUnits returns the unit directories under Unpacked in sorted order.
// A missing unpacked directory is an empty run, not an error.
func (e *Engine) listUnits() ([]string, error) {
	entries, err := os.ReadDir(e.Unpacked)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list unit dirs in %s: %w", e.Unpacked, err)
	}
	var units []string
	for _, entry := range entries {
		if entry.IsDir() {
			units = append(units, entry.Name())
		}
	}
	sort.Strings(units)
	return units, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (e *Engine) record(ctx context.Context, unit, event, message string) {
	if e.Events == nil {
		return
	}
	if err := e.Events.Record(ctx, unit, event, message); err != nil {
		e.Logger.Debug("Failed to record unit event.", "unit", unit, "event", event, "error", err)
	}
}
