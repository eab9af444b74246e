// Package geodb implements the spatial engine and geodatabase container on
// DuckDB. The container is a single DuckDB database file, the cumulative
// feature store is a table inside it, and the spatial extension supplies
// shapefile reading (ST_Read) and the join predicate (ST_Intersects).
package geodb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
)

// Extent is a coordinate-domain bounding box.
type Extent struct {
	XMin, YMin, XMax, YMax float64
}

func (e Extent) String() string {
	return fmt.Sprintf("%g %g %g %g", e.XMin, e.YMin, e.XMax, e.YMax)
}

// KrovakDomain is the coordinate domain of the Czech cadastre in
// S-JTSK / Krovak East North.
var KrovakDomain = Extent{XMin: -916406, YMin: -1234597, XMax: -419902, YMax: -738093}

// SJTSKKrovakEastNorth is the EPSG id of the registry's spatial reference.
const SJTSKKrovakEastNorth = 5514

// WorkspaceConfig carries the workspace-level settings applied once per
// run, before any unit is processed. It is passed explicitly so the
// workspace has no hidden process-global state.
type WorkspaceConfig struct {
	// StoreName is the cumulative feature store table.
	StoreName string
	// SpatialRefID is the EPSG id recorded on the container.
	SpatialRefID int
	// Domain is the coordinate-domain bound recorded on the container.
	Domain Extent
	// ParallelFactor is the percentage of available CPUs the engine may
	// use. Zero means 100.
	ParallelFactor int
}

// DefaultWorkspaceConfig matches the registry's publication parameters.
func DefaultWorkspaceConfig() WorkspaceConfig {
	return WorkspaceConfig{
		StoreName:      "KU",
		SpatialRefID:   SJTSKKrovakEastNorth,
		Domain:         KrovakDomain,
		ParallelFactor: 100,
	}
}

func (c WorkspaceConfig) threads() int {
	factor := c.ParallelFactor
	if factor <= 0 {
		factor = 100
	}
	n := runtime.NumCPU() * factor / 100
	if n < 1 {
		n = 1
	}
	return n
}

// transientTable holds the joined features of the unit currently being
// processed. It is a temp table: connection-scoped, never persisted.
const transientTable = "spatial_join"

// Workspace is an open geodatabase container. All statements run on one
// pinned connection so temp tables survive between calls; there is exactly
// one writer at a time by contract.
type Workspace struct {
	db     *sql.DB
	conn   *sql.Conn
	cfg    WorkspaceConfig
	logger *slog.Logger
}

// Open opens (creating if absent) the geodatabase container at path and
// loads the spatial extension.
func Open(ctx context.Context, path string, cfg WorkspaceConfig, logger *slog.Logger) (*Workspace, error) {
	if cfg.StoreName == "" {
		return nil, fmt.Errorf("geodb: store name must not be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create container dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open container %s: %w", path, err)
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("acquire connection for %s: %w", path, err)
	}
	if _, err := conn.ExecContext(ctx, `INSTALL spatial; LOAD spatial;`); err != nil {
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("load spatial extension: %w", err)
	}

	logger.Info("Geodatabase container opened.", slog.String("path", path))
	return &Workspace{db: db, conn: conn, cfg: cfg, logger: logger}, nil
}

// Close releases the pinned connection and the container.
func (w *Workspace) Close() error {
	connErr := w.conn.Close()
	dbErr := w.db.Close()
	if connErr != nil {
		return connErr
	}
	return dbErr
}

// DB exposes the underlying pool for collaborators that store their own
// tables in the container (the run event log).
func (w *Workspace) DB() *sql.DB { return w.db }

// StoreName returns the configured cumulative store name.
func (w *Workspace) StoreName() string { return w.cfg.StoreName }

// Init applies the once-per-run workspace settings: parallelism, spatial
// reference metadata, and removal of a stale store left by a prior
// incomplete run so the new run starts clean.
func (w *Workspace) Init(ctx context.Context) error {
	threads := w.cfg.threads()
	if _, err := w.conn.ExecContext(ctx, fmt.Sprintf(`SET threads TO %d;`, threads)); err != nil {
		return fmt.Errorf("set parallelism: %w", err)
	}

	if _, err := w.conn.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS workspace_meta (key VARCHAR PRIMARY KEY, value VARCHAR);`); err != nil {
		return fmt.Errorf("create workspace metadata: %w", err)
	}
	meta := [][2]string{
		{"spatial_ref", fmt.Sprintf("EPSG:%d", w.cfg.SpatialRefID)},
		{"xy_domain", w.cfg.Domain.String()},
	}
	for _, kv := range meta {
		if _, err := w.conn.ExecContext(ctx,
			`INSERT OR REPLACE INTO workspace_meta (key, value) VALUES (?, ?);`, kv[0], kv[1]); err != nil {
			return fmt.Errorf("record workspace metadata %s: %w", kv[0], err)
		}
	}

	if err := w.DeleteStore(ctx); err != nil {
		return fmt.Errorf("drop stale store: %w", err)
	}

	w.logger.Info("Workspace initialized.",
		slog.String("store", w.cfg.StoreName),
		slog.String("spatial_ref", fmt.Sprintf("EPSG:%d", w.cfg.SpatialRefID)),
		slog.String("xy_domain", w.cfg.Domain.String()),
		slog.Int("threads", threads))
	return nil
}

// StoreExists reports whether the cumulative store has been created.
func (w *Workspace) StoreExists(ctx context.Context) (bool, error) {
	var count int
	err := w.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM duckdb_tables() WHERE table_name = ? AND NOT temporary;`,
		w.cfg.StoreName).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check store %s: %w", w.cfg.StoreName, err)
	}
	return count > 0, nil
}

// CopyFeatures creates the cumulative store from the transient joined
// feature set, fixing the store's schema for the run.
func (w *Workspace) CopyFeatures(ctx context.Context) error {
	sqlText := fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM %s;`,
		quoteIdent(w.cfg.StoreName), quoteIdent(transientTable))
	if _, err := w.conn.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("copy features into %s: %w", w.cfg.StoreName, err)
	}
	return nil
}

// AppendFeatures appends the transient joined feature set to the existing
// store without touching prior rows. The transient schema must be
// compatible with the store schema fixed by the first copy.
func (w *Workspace) AppendFeatures(ctx context.Context) error {
	sqlText := fmt.Sprintf(`INSERT INTO %s SELECT * FROM %s;`,
		quoteIdent(w.cfg.StoreName), quoteIdent(transientTable))
	if _, err := w.conn.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("append features into %s: %w", w.cfg.StoreName, err)
	}
	return nil
}

// DeleteTransient discards the per-unit joined feature set.
func (w *Workspace) DeleteTransient(ctx context.Context) error {
	if _, err := w.conn.ExecContext(ctx,
		fmt.Sprintf(`DROP TABLE IF EXISTS %s;`, quoteIdent(transientTable))); err != nil {
		return fmt.Errorf("drop transient: %w", err)
	}
	return nil
}

// DeleteStore removes the cumulative store from the container.
func (w *Workspace) DeleteStore(ctx context.Context) error {
	if _, err := w.conn.ExecContext(ctx,
		fmt.Sprintf(`DROP TABLE IF EXISTS %s;`, quoteIdent(w.cfg.StoreName))); err != nil {
		return fmt.Errorf("drop store %s: %w", w.cfg.StoreName, err)
	}
	return nil
}

// FeatureCount returns the number of rows accumulated in the store.
func (w *Workspace) FeatureCount(ctx context.Context) (int64, error) {
	var count int64
	err := w.conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s;`, quoteIdent(w.cfg.StoreName))).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count features in %s: %w", w.cfg.StoreName, err)
	}
	return count, nil
}

// ExportParquet writes the cumulative store to a Parquet file.
func (w *Workspace) ExportParquet(ctx context.Context, outPath string) error {
	// DuckDB wants forward slashes and single-quote escaping in literals.
	duckPath := strings.ReplaceAll(outPath, `\`, `/`)
	sqlText := fmt.Sprintf(`COPY %s TO '%s' (FORMAT PARQUET);`,
		quoteIdent(w.cfg.StoreName), quoteString(duckPath))
	if _, err := w.conn.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("export %s to parquet: %w", w.cfg.StoreName, err)
	}
	w.logger.Info("Store exported to Parquet.", slog.String("path", outPath))
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteString(s string) string {
	return strings.ReplaceAll(s, `'`, `''`)
}
