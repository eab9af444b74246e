package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"kuharvest/internal/geodb"
	"kuharvest/internal/inspector"
)

var (
	exportOut     string
	exportInspect bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the cumulative feature store to a Parquet file",
	Long: `Copies the cumulative feature store out of the geodatabase container
into a Parquet file. With --inspect the file is read back afterwards and
its schema and row count printed, verifying the export end to end.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()
		ctx := context.Background()

		wcfg := geodb.DefaultWorkspaceConfig()
		wcfg.StoreName = cfg.StoreName
		ws, err := geodb.Open(ctx, cfg.GDBPath, wcfg, logger)
		if err != nil {
			return fmt.Errorf("open geodatabase: %w", err)
		}
		defer ws.Close()

		exists, err := ws.StoreExists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("store %q does not exist in %s; run the pipeline first", cfg.StoreName, cfg.GDBPath)
		}

		out := exportOut
		if out == "" {
			out = cfg.StoreName + ".parquet"
		}
		if err := ws.ExportParquet(ctx, out); err != nil {
			return err
		}
		fmt.Printf("Exported store %q to %s\n", cfg.StoreName, out)

		if exportInspect {
			summary, err := inspector.Summarize(out)
			if err != nil {
				return fmt.Errorf("inspect export: %w", err)
			}
			fmt.Println(summary)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output Parquet path (default <store>.parquet)")
	exportCmd.Flags().BoolVar(&exportInspect, "inspect", false, "Read the export back and print schema and row count")
}
