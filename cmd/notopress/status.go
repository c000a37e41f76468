package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/natikgadzhi/notopress/internal/config"
	"github.com/natikgadzhi/notopress/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the content store holds",
	Long: `Status displays information about the content store, including:
- Number of rendered pages
- How many of them used the fallback renderer
- Number of cached assets referenced
- When the most recent page was rendered`,
	RunE: runStatus,
}

// storeSummary aggregates the entries in a store.
type storeSummary struct {
	Entries    int
	Fallbacks  int
	Assets     int
	LastUpdate time.Time
	LastTitle  string
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	sum, err := summarize(ctx, st)
	if err != nil {
		return err
	}

	printStatus(os.Stdout, cfg, sum, time.Now())
	return nil
}

// summarize reads every entry in st.
func summarize(ctx context.Context, st store.Store) (*storeSummary, error) {
	keys, err := st.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}

	sum := &storeSummary{}
	for _, id := range keys {
		e, err := st.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("reading entry %s: %w", id, err)
		}
		sum.Entries++
		sum.Assets += len(e.AssetPaths)
		if e.Fallback {
			sum.Fallbacks++
		}
		if e.UpdatedAt.After(sum.LastUpdate) {
			sum.LastUpdate = e.UpdatedAt
			sum.LastTitle = e.Title
		}
	}
	return sum, nil
}

// printStatus outputs the store summary to the given writer.
func printStatus(w io.Writer, cfg *config.Config, sum *storeSummary, now time.Time) {
	_, _ = fmt.Fprintln(w, "Notopress Status")
	_, _ = fmt.Fprintln(w, "================")
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintf(w, "Config file:   %s\n", configPath)
	_, _ = fmt.Fprintf(w, "Store:         %s (%s)\n", cfg.Store.Path, cfg.Store.Driver)
	_, _ = fmt.Fprintf(w, "Content root:  %s\n", cfg.Output.ContentRoot)
	_, _ = fmt.Fprintln(w)

	if sum.LastUpdate.IsZero() {
		_, _ = fmt.Fprintln(w, "Last render:   Never")
	} else {
		ago := now.Sub(sum.LastUpdate).Round(time.Second)
		_, _ = fmt.Fprintf(w, "Last render:   %s (%s ago) %q\n",
			sum.LastUpdate.Local().Format("2006-01-02 15:04:05"),
			formatDuration(ago),
			sum.LastTitle)
	}
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, "Summary")
	_, _ = fmt.Fprintln(w, "-------")
	_, _ = fmt.Fprintf(w, "Pages:           %d\n", sum.Entries)
	_, _ = fmt.Fprintf(w, "  Fallback:      %d\n", sum.Fallbacks)
	_, _ = fmt.Fprintf(w, "Assets:          %d\n", sum.Assets)

	if sum.Entries == 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, "No pages rendered yet. Run 'notopress sync' to sync content.")
	} else if sum.Fallbacks > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, "Fallback pages are re-rendered once edited, or with 'notopress sync --force'.")
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh %dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd %dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}
