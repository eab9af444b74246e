package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"kuharvest/internal/engine"
	"kuharvest/internal/geodb"
	"kuharvest/internal/runlog"
)

var unitCmd = &cobra.Command{
	Use:   "unit <unit-id>",
	Short: "Join and accumulate a single already-extracted unit",
	Long: `Processes one unit directory under <download_path>/unpacked: joins its
parcel layer with its definition layer and folds the result into the
cumulative feature store. The store is created if it does not exist yet.
The unit must already be extracted; this command does not fetch or clean
up, and it never drops an existing store.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()
		ctx := context.Background()
		unit := args[0]

		wcfg := geodb.DefaultWorkspaceConfig()
		wcfg.StoreName = cfg.StoreName
		ws, err := geodb.Open(ctx, cfg.GDBPath, wcfg, logger)
		if err != nil {
			return fmt.Errorf("open geodatabase: %w", err)
		}
		defer ws.Close()

		events, err := runlog.New(ws.DB())
		if err != nil {
			return fmt.Errorf("initialize event log: %w", err)
		}

		eng := &engine.Engine{
			Unpacked: cfg.UnpackedPath(),
			Store:    ws,
			Logger:   logger,
			Events:   events,
		}
		if err := eng.ProcessUnit(ctx, unit); err != nil {
			_ = events.Record(ctx, unit, "skipped_accumulate", err.Error())
			return fmt.Errorf("process unit %s: %w", unit, err)
		}
		_ = events.Record(ctx, unit, "accumulated", "")

		count, err := ws.FeatureCount(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Unit %s accumulated; store %q now holds %d features.\n",
			unit, cfg.StoreName, count)
		return nil
	},
}
