package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"kuharvest/internal/cleanup"
)

var cleanupUnits []string

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove staged archives and the unpacked tree",
	Long: `Restores the staging directory to a clean slate: deletes staged
archives (all of them, or only those named with --unit) and removes the
unpacked subtree. Per-file failures are logged and skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()

		removed := cleanup.RemoveArchives(cfg.DownloadPath, cleanupUnits, logger)
		if len(cleanupUnits) == 0 {
			cleanup.RemoveUnpacked(cfg.DownloadPath, logger)
		}
		fmt.Printf("Removed %d archive(s) from %s\n", removed, cfg.DownloadPath)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().StringSliceVar(&cleanupUnits, "unit", nil, "Only remove archives for these unit ids (repeatable); leaves unpacked/ in place")
}
