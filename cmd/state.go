package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/spf13/cobra"

	"kuharvest/internal/runlog"
)

var stateLimit int

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "View the unit event log of past runs",
	Long: `Queries the event log stored inside the geodatabase container and
prints the most recent unit lifecycle events, newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		ctx := context.Background()

		db, err := sql.Open("duckdb", cfg.GDBPath)
		if err != nil {
			return fmt.Errorf("open geodatabase %s: %w", cfg.GDBPath, err)
		}
		defer db.Close()

		entries, err := runlog.Tail(ctx, db, stateLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No events recorded yet.")
			return nil
		}

		for _, e := range entries {
			unit := e.Unit
			if unit == "" {
				unit = "-"
			}
			line := fmt.Sprintf("%s  %-8s %-20s run=%.8s",
				e.Timestamp.Format(time.RFC3339), unit, e.Event, e.RunID)
			if e.Message != "" {
				line += "  " + e.Message
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	stateCmd.Flags().IntVarP(&stateLimit, "limit", "n", 50, "Limit the number of log records displayed")
}
