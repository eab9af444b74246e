package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kuharvest/internal/cleanup"
	"kuharvest/internal/engine"
	"kuharvest/internal/extractor"
	"kuharvest/internal/manifest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFetcher struct {
	err    error
	called bool
}

func (f *fakeFetcher) FetchAll(context.Context, string) error {
	f.called = true
	return f.err
}

type fakeExtractor struct {
	res extractor.Result
	err error
}

func (f *fakeExtractor) ExtractAll(context.Context) (extractor.Result, error) {
	return f.res, f.err
}

type fakeAccumulator struct {
	res engine.Result
	err error
}

func (f *fakeAccumulator) AccumulateAll(context.Context) (engine.Result, error) {
	return f.res, f.err
}

func TestRunComplete(t *testing.T) {
	var states []State
	cleaned := false
	d := &Driver{
		Fetcher:   &fakeFetcher{},
		Extractor: &fakeExtractor{res: extractor.Result{Units: []string{"100", "101"}}},
		Engine:    &fakeAccumulator{res: engine.Result{Accumulated: 2}},
		Cleanup:   func() { cleaned = true },
		Logger:    discardLogger(),
		OnState:   func(s State) { states = append(states, s) },
	}

	res, err := d.Run(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, OutcomeComplete, res.Outcome)
	assert.Equal(t, 2, res.Extracted)
	assert.Equal(t, 2, res.Accumulated)
	assert.True(t, cleaned)
	assert.Equal(t, []State{StateFetching, StateExtracting, StateAccumulating, StateCleaningUp, StateDone}, states)
}

func TestRunPartialWhenUnitsSkipped(t *testing.T) {
	d := &Driver{
		Fetcher:   &fakeFetcher{},
		Extractor: &fakeExtractor{res: extractor.Result{Units: []string{"100"}, Skipped: 1}},
		Engine:    &fakeAccumulator{res: engine.Result{Accumulated: 1}},
		Cleanup:   func() {},
		Logger:    discardLogger(),
	}

	res, err := d.Run(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, OutcomePartial, res.Outcome)
	assert.Equal(t, 1, res.Skipped)
}

func TestRunFetchFailureHaltsBeforeExtraction(t *testing.T) {
	cleaned := false
	d := &Driver{
		Fetcher:   &fakeFetcher{err: fmt.Errorf("catalog unreachable")},
		Extractor: &fakeExtractor{},
		Engine:    &fakeAccumulator{},
		Cleanup:   func() { cleaned = true },
		Logger:    discardLogger(),
	}

	res, err := d.Run(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch stage")
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.False(t, cleaned, "cleanup must not run on hard failure")
}

func TestRunAccumulateFailureSkipsCleanup(t *testing.T) {
	cleaned := false
	d := &Driver{
		Fetcher:   &fakeFetcher{},
		Extractor: &fakeExtractor{res: extractor.Result{Units: []string{"100"}}},
		Engine:    &fakeAccumulator{err: fmt.Errorf("workspace setup: container path invalid")},
		Cleanup:   func() { cleaned = true },
		Logger:    discardLogger(),
	}

	res, err := d.Run(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.False(t, cleaned)
}

// scenarioStore simulates the feature store for the end-to-end scenario.
type scenarioStore struct {
	store     []string
	transient string
}

func (s *scenarioStore) SpatialJoin(_ context.Context, targetPath, _ string) error {
	s.transient = filepath.Base(filepath.Dir(targetPath))
	return nil
}
func (s *scenarioStore) StoreExists(context.Context) (bool, error) { return len(s.store) > 0, nil }
func (s *scenarioStore) CopyFeatures(context.Context) error {
	s.store = append(s.store, s.transient)
	return nil
}
func (s *scenarioStore) AppendFeatures(context.Context) error {
	s.store = append(s.store, s.transient)
	return nil
}
func (s *scenarioStore) DeleteTransient(context.Context) error {
	s.transient = ""
	return nil
}

func writeArchive(t *testing.T, staging, unit string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range manifest.Files() {
		w, err := zw.Create(unit + "/" + name)
		require.NoError(t, err)
		_, err = w.Write([]byte(unit))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(filepath.Join(staging, unit+".zip"), buf.Bytes(), 0o644))
}

// TestRunScenarioCorruptArchive runs the real extract, accumulate and
// cleanup stages over staged archives 100-102 plus a truncated 103: the
// store ends up with exactly 100-102 and staging is left empty.
func TestRunScenarioCorruptArchive(t *testing.T) {
	staging := t.TempDir()
	logger := discardLogger()
	for _, unit := range []string{"100", "101", "102"} {
		writeArchive(t, staging, unit)
	}
	require.NoError(t, os.WriteFile(filepath.Join(staging, "103.zip"), []byte("truncated"), 0o644))

	store := &scenarioStore{}
	d := &Driver{
		Fetcher:   &fakeFetcher{}, // archives already staged
		Extractor: &extractor.Extractor{Staging: staging, Logger: logger},
		Engine:    &engine.Engine{Unpacked: filepath.Join(staging, "unpacked"), Store: store, Logger: logger},
		Cleanup: func() {
			cleanup.RemoveArchives(staging, nil, logger)
			cleanup.RemoveUnpacked(staging, logger)
		},
		Logger: logger,
	}

	res, err := d.Run(context.Background(), staging)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, OutcomePartial, res.Outcome)
	assert.Equal(t, 3, res.Extracted)
	assert.Equal(t, 3, res.Accumulated)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []string{"100", "101", "102"}, store.store)

	// Cleanup completeness: no archives, no unpacked subtree.
	zips, err := filepath.Glob(filepath.Join(staging, "*.zip"))
	require.NoError(t, err)
	assert.Empty(t, zips)
	_, statErr := os.Stat(filepath.Join(staging, "unpacked"))
	assert.True(t, os.IsNotExist(statErr))
}
