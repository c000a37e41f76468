package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/natikgadzhi/notopress/internal/config"
	"github.com/natikgadzhi/notopress/internal/sync"
)

var (
	dryRun      bool
	force       bool
	metricsFile string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Render changed Notion pages into the content store",
	Long: `Sync queries the configured Notion database and renders every page
whose last-edited time differs from the stored copy. Pages removed from
the database are removed from the store.

If a page fails to render, a minimal fallback rendering is stored instead.
If that fails too, the previous rendering is kept.

Use --force to re-render every page and --dry-run to preview the outcome
without writing anything.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "preview changes without writing")
	syncCmd.Flags().BoolVarP(&force, "force", "f", false, "re-render every page regardless of its digest")
	syncCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
}

func runSync(cmd *cobra.Command, _ []string) error {
	logger := setupLogger(nil, verbose)

	ctx, cancel := setupSignalHandler(logger)
	defer cancel()

	logger.Info("loading configuration", "path", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if dryRun {
		logger.Info("dry-run mode enabled, nothing will be written")
	}

	reg := prometheus.NewRegistry()
	a, err := newApp(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, runErr := a.newEngine(sync.WithDryRun(dryRun), sync.WithForce(force)).Run(ctx)

	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
			logger.Error("writing metrics file failed", "path", metricsFile, "error", err)
		}
	}

	if res != nil {
		printSummary(cmd.OutOrStdout(), res)
	}
	if runErr != nil {
		return fmt.Errorf("sync failed: %w", runErr)
	}
	if res.Failed > 0 {
		return fmt.Errorf("sync completed with %d failed pages", res.Failed)
	}
	return nil
}

// printSummary writes the run counters and any failed pages.
func printSummary(w io.Writer, res *sync.Result) {
	mode := ""
	if res.DryRun {
		mode = " (dry run)"
	}
	_, _ = fmt.Fprintf(w, "Sync %s%s\n", res.RunID, mode)
	_, _ = fmt.Fprintf(w, "  committed: %d (fallback: %d)\n", res.Committed, res.Fallbacks)
	_, _ = fmt.Fprintf(w, "  unchanged: %d\n", res.Unchanged)
	_, _ = fmt.Fprintf(w, "  deleted:   %d\n", res.Deleted)
	_, _ = fmt.Fprintf(w, "  failed:    %d\n", res.Failed)
	if res.Pending > 0 {
		_, _ = fmt.Fprintf(w, "  pending:   %d\n", res.Pending)
	}

	var failed []string
	for _, pr := range res.Pages {
		if pr.Outcome == sync.OutcomeFailed {
			failed = append(failed, fmt.Sprintf("    %s %q: %v", pr.ID, pr.Title, pr.Err))
		}
	}
	if len(failed) > 0 {
		_, _ = fmt.Fprintln(w, "Failed pages (previous version kept):")
		_, _ = fmt.Fprintln(w, strings.Join(failed, "\n"))
	}
}
