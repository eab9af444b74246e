// Package extractor unpacks the manifest files from each staged archive
// into a per-unit working directory.
package extractor

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"kuharvest/internal/manifest"
)

// EventSink receives unit lifecycle events. Nil sinks are allowed.
type EventSink interface {
	Record(ctx context.Context, unit, event, message string) error
}

// Extractor selectively unpacks staged archives. Manifest entries are
// matched by base filename, ignoring any path prefix inside the archive.
type Extractor struct {
	// Staging holds the <unit>.zip archives; unit directories are created
	// under <Staging>/unpacked.
	Staging string
	Logger  *slog.Logger
	Events  EventSink
}

// Result summarizes one extraction pass.
type Result struct {
	// Units lists unit identifiers with a complete working directory,
	// in processing order.
	Units []string
	// Skipped counts archives abandoned because they could not be opened
	// or did not yield both complete layers.
	Skipped int
}

// ExtractAll processes every archive in the staging directory. A bad
// archive is skipped with a warning and never aborts the batch; only
// failure to set up the unpacked tree escalates. Re-running over the same
// staging directory overwrites previously extracted files.
func (e *Extractor) ExtractAll(ctx context.Context) (Result, error) {
	var res Result

	archives, err := filepath.Glob(filepath.Join(e.Staging, "*.zip"))
	if err != nil {
		return res, fmt.Errorf("glob archives in %s: %w", e.Staging, err)
	}
	sort.Strings(archives)

	unpacked := filepath.Join(e.Staging, "unpacked")
	if err := os.MkdirAll(unpacked, 0o755); err != nil {
		return res, fmt.Errorf("create unpacked dir %s: %w", unpacked, err)
	}

	e.Logger.Info("Starting extraction.", slog.Int("archives", len(archives)))
	for _, archivePath := range archives {
		select {
		case <-ctx.Done():
			return res, fmt.Errorf("extraction cancelled: %w", ctx.Err())
		default:
		}

		unit := strings.TrimSuffix(filepath.Base(archivePath), filepath.Ext(archivePath))
		l := e.Logger.With(slog.String("unit", unit), slog.String("archive", archivePath))

		if err := e.extractArchive(archivePath, filepath.Join(unpacked, unit)); err != nil {
			l.Warn("Skip archive: extraction failed.", "error", err)
			e.record(ctx, unit, "skipped_extract", err.Error())
			res.Skipped++
			continue
		}
		l.Debug("Unit extracted.")
		e.record(ctx, unit, "extracted", "")
		res.Units = append(res.Units, unit)
	}

	e.Logger.Info("Extraction finished.",
		slog.Int("extracted", len(res.Units)),
		slog.Int("skipped", res.Skipped))
	return res, nil
}

// extractArchive unpacks the manifest entries of one archive into unitDir.
// Any failure removes the partial directory so later stages never see an
// incomplete layer.
func (e *Extractor) extractArchive(archivePath, unitDir string) (err error) {
	defer func() {
		if err != nil {
			// Abandon the whole unit rather than leave a partial layer.
			if rmErr := os.RemoveAll(unitDir); rmErr != nil {
				err = errors.Join(err, fmt.Errorf("remove partial unit dir: %w", rmErr))
			}
		}
	}()

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(unitDir, 0o755); err != nil {
		return fmt.Errorf("create unit dir: %w", err)
	}

	wanted := manifest.FileSet()
	extracted := make(map[string]bool, len(wanted))
	for _, f := range zr.File {
		name := filepath.Base(f.Name)
		if f.FileInfo().IsDir() || !wanted[name] {
			continue
		}
		if err := extractEntry(f, filepath.Join(unitDir, name)); err != nil {
			return fmt.Errorf("extract %s: %w", name, err)
		}
		extracted[name] = true
	}

	// All companions of both layers must land together; a subset is an
	// unusable layer and the unit is invalid.
	if missing := manifest.Missing(unitDir, fileExists); len(missing) > 0 {
		return fmt.Errorf("incomplete layers, missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func extractEntry(f *zip.File, outPath string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry: %w", err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		rc.Close()
		return fmt.Errorf("create output: %w", err)
	}

	_, copyErr := io.Copy(out, rc)
	closeOutErr := out.Close()
	closeRcErr := rc.Close()
	return errors.Join(copyErr, closeOutErr, closeRcErr)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (e *Extractor) record(ctx context.Context, unit, event, message string) {
	if e.Events == nil {
		return
	}
	if err := e.Events.Record(ctx, unit, event, message); err != nil {
		e.Logger.Debug("Failed to record unit event.", "unit", unit, "event", event, "error", err)
	}
}
