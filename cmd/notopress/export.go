package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/natikgadzhi/notopress/internal/config"
	"github.com/natikgadzhi/notopress/internal/store"
	"github.com/natikgadzhi/notopress/internal/writer"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write consumer records for every stored page",
	Long: `Export writes one JSON record per stored page to export.dir, plus an
index.json listing them. Records for pages no longer in the store are
removed.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "log what would be written")
}

func runExport(cmd *cobra.Command, _ []string) error {
	logger := setupLogger(nil, verbose)

	ctx, cancel := setupSignalHandler(logger)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	sum, err := writer.New(cfg.Export.Dir, dryRun, logger).Export(ctx, st)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d pages to %s (%d stale removed)\n", sum.Written, cfg.Export.Dir, sum.Pruned)
	return nil
}
