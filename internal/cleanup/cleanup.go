// Package cleanup restores the staging directory to a clean slate once a
// run's data has been folded into the cumulative store or abandoned.
package cleanup

import (
	"log/slog"
	"os"
	"path/filepath"
)

// RemoveArchives deletes staged archives. If units is non-empty only the
// archives for those unit identifiers are removed, otherwise every .zip
// in staging goes. Per-file failures are warned and do not abort the
// remaining deletions. Returns the number of archives removed.
func RemoveArchives(staging string, units []string, logger *slog.Logger) int {
	var targets []string
	if len(units) > 0 {
		for _, unit := range units {
			targets = append(targets, filepath.Join(staging, unit+".zip"))
		}
	} else {
		matches, err := filepath.Glob(filepath.Join(staging, "*.zip"))
		if err != nil {
			logger.Warn("Failed to list archives for cleanup.", slog.String("staging", staging), "error", err)
			return 0
		}
		targets = matches
	}

	removed := 0
	for _, path := range targets {
		if err := os.Remove(path); err != nil {
			logger.Warn("Failed to remove archive.", slog.String("path", path), "error", err)
			continue
		}
		removed++
	}
	logger.Info("Archives removed.", slog.Int("removed", removed), slog.Int("targets", len(targets)))
	return removed
}

// RemoveUnpacked deletes the whole unpacked subtree in one operation.
// Failure is warned, never fatal: the next run's extraction overwrites
// anything left behind.
func RemoveUnpacked(staging string, logger *slog.Logger) {
	unpacked := filepath.Join(staging, "unpacked")
	if err := os.RemoveAll(unpacked); err != nil {
		logger.Warn("Failed to remove unpacked tree.", slog.String("path", unpacked), "error", err)
		return
	}
	logger.Info("Unpacked tree removed.", slog.String("path", unpacked))
}
