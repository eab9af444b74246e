package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kuharvest/internal/manifest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore records the engine's calls and simulates the accumulation
// contract: units whose target path contains a name in failJoin or
// failAppend fail at that step.
type fakeStore struct {
	calls      []string
	store      []string // accumulated unit markers
	transient  string   // current transient unit marker, "" when absent
	failJoin   map[string]bool
	failAppend map[string]bool
}

func unitOf(path string) string {
	return filepath.Base(filepath.Dir(path))
}

func (f *fakeStore) SpatialJoin(_ context.Context, targetPath, joinPath string) error {
	unit := unitOf(targetPath)
	f.calls = append(f.calls, "join:"+unit)
	if f.failJoin[unit] {
		return fmt.Errorf("geometry error in %s", unit)
	}
	if unitOf(joinPath) != unit {
		return fmt.Errorf("layer paths from different units: %s vs %s", targetPath, joinPath)
	}
	f.transient = unit
	return nil
}

func (f *fakeStore) StoreExists(context.Context) (bool, error) {
	return len(f.store) > 0, nil
}

func (f *fakeStore) CopyFeatures(context.Context) error {
	f.calls = append(f.calls, "copy:"+f.transient)
	f.store = append(f.store, f.transient)
	return nil
}

func (f *fakeStore) AppendFeatures(context.Context) error {
	f.calls = append(f.calls, "append:"+f.transient)
	if f.failAppend[f.transient] {
		return fmt.Errorf("schema mismatch for %s", f.transient)
	}
	f.store = append(f.store, f.transient)
	return nil
}

func (f *fakeStore) DeleteTransient(context.Context) error {
	f.calls = append(f.calls, "discard:"+f.transient)
	f.transient = ""
	return nil
}

// seedUnit creates a complete unit working directory.
func seedUnit(t *testing.T, unpacked, unit string) {
	t.Helper()
	unitDir := filepath.Join(unpacked, unit)
	require.NoError(t, os.MkdirAll(unitDir, 0o755))
	for _, name := range manifest.Files() {
		require.NoError(t, os.WriteFile(filepath.Join(unitDir, name), []byte(unit), 0o644))
	}
}

func TestAccumulateAllCopyThenAppend(t *testing.T) {
	unpacked := t.TempDir()
	seedUnit(t, unpacked, "101")
	seedUnit(t, unpacked, "100")
	seedUnit(t, unpacked, "102")

	store := &fakeStore{}
	eng := &Engine{Unpacked: unpacked, Store: store, Logger: discardLogger()}

	res, err := eng.AccumulateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Accumulated)
	assert.Zero(t, res.Skipped)

	// Sorted unit order, first unit copied, the rest appended, every
	// transient discarded.
	assert.Equal(t, []string{
		"join:100", "copy:100", "discard:100",
		"join:101", "append:101", "discard:101",
		"join:102", "append:102", "discard:102",
	}, store.calls)
	assert.Equal(t, []string{"100", "101", "102"}, store.store)
}

func TestAccumulateAllSkipsFailedUnit(t *testing.T) {
	unpacked := t.TempDir()
	for _, unit := range []string{"100", "101", "102"} {
		seedUnit(t, unpacked, unit)
	}

	store := &fakeStore{failJoin: map[string]bool{"101": true}}
	eng := &Engine{Unpacked: unpacked, Store: store, Logger: discardLogger()}

	res, err := eng.AccumulateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Accumulated)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []string{"101"}, res.SkippedUnits)

	// The store holds exactly the successful units' features.
	assert.Equal(t, []string{"100", "102"}, store.store)
}

func TestAccumulateAllAppendFailureIsMonotonic(t *testing.T) {
	unpacked := t.TempDir()
	for _, unit := range []string{"100", "101", "102"} {
		seedUnit(t, unpacked, unit)
	}

	store := &fakeStore{failAppend: map[string]bool{"101": true}}
	eng := &Engine{Unpacked: unpacked, Store: store, Logger: discardLogger()}

	res, err := eng.AccumulateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Accumulated)
	assert.Equal(t, []string{"101"}, res.SkippedUnits)

	// Prior units stay, nothing is rolled back, and the failed unit's
	// transient was still discarded.
	assert.Equal(t, []string{"100", "102"}, store.store)
	assert.Contains(t, store.calls, "discard:101")
}

func TestAccumulateAllSkipsIncompleteUnit(t *testing.T) {
	unpacked := t.TempDir()
	seedUnit(t, unpacked, "100")
	seedUnit(t, unpacked, "101")
	require.NoError(t, os.Remove(filepath.Join(unpacked, "101", "PARCELY_KN_DEF.shx")))

	store := &fakeStore{}
	eng := &Engine{Unpacked: unpacked, Store: store, Logger: discardLogger()}

	res, err := eng.AccumulateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accumulated)
	assert.Equal(t, []string{"101"}, res.SkippedUnits)

	// The incomplete unit never reached the spatial engine.
	for _, call := range store.calls {
		assert.False(t, strings.HasSuffix(call, ":101"), call)
	}
}

func TestAccumulateAllInitFailureHaltsStage(t *testing.T) {
	unpacked := t.TempDir()
	seedUnit(t, unpacked, "100")

	store := &fakeStore{}
	eng := &Engine{
		Unpacked: unpacked,
		Store:    store,
		Logger:   discardLogger(),
		Init: func(context.Context) error {
			return fmt.Errorf("container path invalid")
		},
	}

	_, err := eng.AccumulateAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workspace setup")
	assert.Empty(t, store.calls)
}

func TestAccumulateAllMissingUnpackedDir(t *testing.T) {
	eng := &Engine{
		Unpacked: filepath.Join(t.TempDir(), "unpacked"),
		Store:    &fakeStore{},
		Logger:   discardLogger(),
	}
	res, err := eng.AccumulateAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Accumulated)
}

func TestProcessUnitReportsMissingFiles(t *testing.T) {
	unpacked := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(unpacked, "100"), 0o755))

	eng := &Engine{Unpacked: unpacked, Store: &fakeStore{}, Logger: discardLogger()}
	err := eng.ProcessUnit(context.Background(), "100")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete layers")
}
