// Package writer exports committed store entries as consumer records on disk.
package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natikgadzhi/notopress/internal/render"
	"github.com/natikgadzhi/notopress/internal/store"
)

// IndexFile lists every exported record.
const IndexFile = "index.json"

// Record is the consumer-facing shape of a rendered page.
type Record struct {
	ID       string           `json:"id"`
	Data     map[string]any   `json:"data"`
	HTML     string           `json:"html"`
	Headings []render.Heading `json:"headings"`
	Assets   []string         `json:"assets"`
}

// IndexEntry is one line of the index.
type IndexEntry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Index is the content of IndexFile.
type Index struct {
	Pages []IndexEntry `json:"pages"`
}

// Summary counts what an export did.
type Summary struct {
	Written int
	Pruned  int
}

// Writer handles writing records to the export directory.
type Writer struct {
	dir    string
	dryRun bool
	logger *slog.Logger
}

// New creates a new Writer instance.
func New(dir string, dryRun bool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		dir:    dir,
		dryRun: dryRun,
		logger: logger,
	}
}

// Export writes {dir}/{id}.json for every entry in st plus the index, and
// removes records for entries that no longer exist.
func (w *Writer) Export(ctx context.Context, st store.Store) (*Summary, error) {
	keys, err := st.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}

	if !w.dryRun {
		if err := os.MkdirAll(w.dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating export directory %s: %w", w.dir, err)
		}
	}

	sum := &Summary{}
	index := Index{Pages: make([]IndexEntry, 0, len(keys))}
	keep := make(map[string]struct{}, len(keys)+1)
	keep[IndexFile] = struct{}{}

	for _, id := range keys {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		e, err := st.Get(ctx, id)
		if err != nil {
			return sum, fmt.Errorf("reading entry %s: %w", id, err)
		}

		name := id + ".json"
		keep[name] = struct{}{}
		index.Pages = append(index.Pages, IndexEntry{ID: e.ID, Title: e.Title, UpdatedAt: e.UpdatedAt})

		rec := Record{
			ID:       e.ID,
			Data:     e.Data,
			HTML:     e.HTML,
			Headings: e.Headings,
			Assets:   e.AssetPaths,
		}
		if err := w.writeJSON(name, rec); err != nil {
			return sum, err
		}
		sum.Written++
	}

	if err := w.writeJSON(IndexFile, index); err != nil {
		return sum, err
	}

	pruned, err := w.prune(keep)
	sum.Pruned = pruned
	if err != nil {
		return sum, err
	}

	w.logger.Info("export complete", "dir", w.dir, "written", sum.Written, "pruned", sum.Pruned, "dry_run", w.dryRun)
	return sum, nil
}

// writeJSON writes v to name through a temp file and rename.
func (w *Writer) writeJSON(name string, v any) error {
	fullPath := filepath.Join(w.dir, name)

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}

	if w.dryRun {
		w.logger.Info("would write", "path", fullPath, "size", len(data))
		return nil
	}

	tmp, err := os.CreateTemp(w.dir, ".export-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", w.dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", fullPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", fullPath, err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return fmt.Errorf("renaming into %s: %w", fullPath, err)
	}

	w.logger.Debug("wrote file", "path", fullPath, "size", len(data))
	return nil
}

// prune removes .json records that are not in keep.
func (w *Writer) prune(keep map[string]struct{}) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading export directory %s: %w", w.dir, err)
	}

	pruned := 0
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		if _, ok := keep[name]; ok {
			continue
		}

		fullPath := filepath.Join(w.dir, name)
		if w.dryRun {
			w.logger.Info("would remove", "path", fullPath)
			pruned++
			continue
		}
		if err := os.Remove(fullPath); err != nil {
			return pruned, fmt.Errorf("removing %s: %w", fullPath, err)
		}
		w.logger.Debug("removed stale record", "path", fullPath)
		pruned++
	}
	return pruned, nil
}
