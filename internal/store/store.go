// Package store persists rendered pages keyed by page ID.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/natikgadzhi/notopress/internal/render"
)

// ErrNotFound is returned by Get for unknown IDs.
var ErrNotFound = errors.New("entry not found")

// Entry is one committed page render.
type Entry struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`

	// Digest is the page's last-edited time when it was rendered.
	Digest time.Time `json:"digest"`

	Data       map[string]any   `json:"data"`
	HTML       string           `json:"html"`
	Headings   []render.Heading `json:"headings"`
	AssetPaths []string         `json:"assets"`

	// Fallback marks entries produced by the minimal renderer.
	Fallback bool `json:"fallback,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a keyed collection of entries. Set replaces an entry atomically:
// readers see either the previous entry or the new one.
// Implementations are safe for concurrent use.
type Store interface {
	Get(ctx context.Context, id string) (*Entry, error)
	Set(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, id string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// Drivers accepted by Open.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Open creates the store for driver at path.
func Open(ctx context.Context, driver, path string) (Store, error) {
	switch driver {
	case DriverJSON, "":
		return NewFileStore(path)
	case DriverSQLite:
		return OpenSQLite(ctx, path)
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}

// validID rejects IDs that are empty or could be used as paths.
func validID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid entry id %q", id)
	}
	return nil
}

// normalize fills nil collections so stored entries round-trip unchanged.
func normalize(e *Entry) {
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	if e.Headings == nil {
		e.Headings = []render.Heading{}
	}
	if e.AssetPaths == nil {
		e.AssetPaths = []string{}
	}
}
