package geodb

import (
	"context"
	"fmt"
	"strings"
)

// Staging table names for the two input layers of a join. Temp tables,
// replaced per unit.
const (
	targetSrcTable = "target_src"
	joinSrcTable   = "join_src"
)

// joinPrefix is prepended to join-source attribute names in the joined
// output so they never collide with target attributes.
const joinPrefix = "DEF_"

// SpatialJoin performs a one-to-one spatial join of the target layer
// (parcels) with the join layer (definition points) and materializes the
// result as the transient feature set. Each target feature keeps exactly
// one output row: the first intersecting join feature by load order wins,
// and targets with no match keep NULL join attributes.
func (w *Workspace) SpatialJoin(ctx context.Context, targetPath, joinPath string) error {
	load := []struct {
		table string
		fid   string
		path  string
	}{
		{joinSrcTable, "join_fid", joinPath},
		{targetSrcTable, "target_fid", targetPath},
	}
	for _, src := range load {
		sqlText := fmt.Sprintf(
			`CREATE OR REPLACE TEMP TABLE %s AS SELECT row_number() OVER () AS %s, * FROM ST_Read('%s');`,
			quoteIdent(src.table), quoteIdent(src.fid), quoteString(src.path))
		if _, err := w.conn.ExecContext(ctx, sqlText); err != nil {
			return fmt.Errorf("read layer %s: %w", src.path, err)
		}
	}

	joinCols, err := w.tableColumns(ctx, joinSrcTable)
	if err != nil {
		return fmt.Errorf("describe join layer: %w", err)
	}
	selects := make([]string, 0, len(joinCols))
	for _, col := range joinCols {
		// The join source contributes attributes only; its geometry and
		// synthetic id stay out of the joined output.
		if col == "join_fid" || col == "geom" {
			continue
		}
		selects = append(selects, fmt.Sprintf(`j.%s AS %s`, quoteIdent(col), quoteIdent(joinPrefix+col)))
	}

	joinedAttrs := ""
	if len(selects) > 0 {
		joinedAttrs = ", " + strings.Join(selects, ", ")
	}
	sqlText := fmt.Sprintf(
		`CREATE OR REPLACE TEMP TABLE %s AS
		 SELECT t.* EXCLUDE (target_fid)%s
		 FROM %s t
		 LEFT JOIN %s j ON ST_Intersects(t.geom, j.geom)
		 QUALIFY row_number() OVER (PARTITION BY t.target_fid ORDER BY j.join_fid) = 1;`,
		quoteIdent(transientTable), joinedAttrs,
		quoteIdent(targetSrcTable), quoteIdent(joinSrcTable))
	if _, err := w.conn.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("spatial join: %w", err)
	}
	return nil
}

// tableColumns lists the column names of a table on this connection.
func (w *Workspace) tableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := w.conn.QueryContext(ctx,
		fmt.Sprintf(`SELECT column_name FROM (DESCRIBE %s);`, quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}
