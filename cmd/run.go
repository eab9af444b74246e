package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"kuharvest/internal/app"
	"kuharvest/internal/cleanup"
	"kuharvest/internal/engine"
	"kuharvest/internal/extractor"
	"kuharvest/internal/fetcher"
	"kuharvest/internal/geodb"
	"kuharvest/internal/pipeline"
	"kuharvest/internal/runlog"
)

var runTUI bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full fetch, extract, accumulate, cleanup pipeline",
	Long: `Executes the complete harvest:
1. Fetches every archive listed on the catalog page into the staging dir.
2. Extracts the parcel and definition layers of each archive.
3. Spatially joins each unit's layers and accumulates the result into the
   cumulative feature store.
4. Removes the staged archives and the unpacked tree.
A bad archive or a failing unit is skipped with a warning; only
unrecoverable errors halt the run, in which case staging artifacts are
left in place for inspection.`,
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

		events, err := runlog.New(ws.DB())
		if err != nil {
			return fmt.Errorf("initialize event log: %w", err)
		}

		var fetch pipeline.Fetcher
		if cfg.UseBrowser {
			fetch = &fetcher.Browser{
				CatalogURL: cfg.CatalogURL,
				ChromePath: cfg.ChromePath,
				Filter:     cfg.DownloadList,
				Logger:     logger,
			}
		} else {
			fetch = &fetcher.HTTP{
				CatalogURL: cfg.CatalogURL,
				Filter:     cfg.DownloadList,
				Logger:     logger,
			}
		}

		extract := &extractor.Extractor{
			Staging: cfg.DownloadPath,
			Logger:  logger,
			Events:  events,
		}
		accumulate := &engine.Engine{
			Unpacked: cfg.UnpackedPath(),
			Store:    ws,
			Logger:   logger,
			Events:   events,
			Init:     ws.Init,
		}
		driver := &pipeline.Driver{
			Fetcher:   fetch,
			Extractor: extract,
			Engine:    accumulate,
			Cleanup: func() {
				cleanup.RemoveArchives(cfg.DownloadPath, nil, logger)
				cleanup.RemoveUnpacked(cfg.DownloadPath, logger)
			},
			Logger: logger,
		}

		_ = events.Record(ctx, "", runlog.EventRunStart, "")
		var res pipeline.Result
		var runErr error
		if runTUI {
			res, runErr = runWithTUI(ctx, driver, accumulate, extract, events, cfg.DownloadPath)
		} else {
			res, runErr = driver.Run(ctx, cfg.DownloadPath)
		}
		_ = events.Record(ctx, "", runlog.EventRunEnd, res.Outcome.String())

		if runErr != nil {
			return fmt.Errorf("run failed: %w", runErr)
		}
		fmt.Println("Done")
		fmt.Printf("Resulting geodatabase: %s (store %q, outcome %s)\n",
			cfg.GDBPath, cfg.StoreName, res.Outcome)
		return nil
	},
}

// teeSink forwards events to the run log and mirrors skips into the TUI.
type teeSink struct {
	log  *runlog.Log
	prog *tea.Program
}

func (t teeSink) Record(ctx context.Context, unit, event, message string) error {
	switch event {
	case "skipped_extract", "skipped_accumulate":
		t.prog.Send(app.WarnMsg{Unit: unit, Message: message})
	}
	return t.log.Record(ctx, unit, event, message)
}

// runWithTUI executes the driver under a bubbletea program showing live
// progress. Direct the log output to a file when using this mode.
func runWithTUI(ctx context.Context, driver *pipeline.Driver, accumulate *engine.Engine, extract *extractor.Extractor, events *runlog.Log, stagingDir string) (pipeline.Result, error) {
	prog := tea.NewProgram(app.NewModel())

	driver.OnState = func(s pipeline.State) { prog.Send(app.StageMsg{State: s}) }
	accumulate.Progress = func(unit string, i, n int) {
		prog.Send(app.UnitMsg{Unit: unit, Index: i, Total: n})
	}
	sink := teeSink{log: events, prog: prog}
	accumulate.Events = sink
	extract.Events = sink

	type outcome struct {
		res pipeline.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := driver.Run(ctx, stagingDir)
		done <- outcome{res, err}
		prog.Send(app.DoneMsg{Result: res, Err: err})
	}()

	if _, err := prog.Run(); err != nil {
		return pipeline.Result{}, fmt.Errorf("progress display failed: %w", err)
	}
	out := <-done
	return out.res, out.err
}

func init() {
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show live progress display (use --log-output to keep logs off the terminal)")
}
