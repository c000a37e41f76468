// Package asset downloads remote images into a deterministic local cache
// under the site's content root.
package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultTimeout bounds a single download, including reading the body.
	DefaultTimeout = 10 * time.Second

	memoSize = 4096

	dirPerm = 0o755
)

var (
	// ErrInvalidDescriptor means the URL cannot be parsed or its path does not
	// end in {parentID}/{objectID}/{filename}.
	ErrInvalidDescriptor = errors.New("invalid asset descriptor")

	// ErrPathEscape means the derived destination resolves outside the asset
	// root. It is a configuration or security defect and is never retried.
	ErrPathEscape = errors.New("asset path escapes asset root")

	// ErrDownloadTimeout means the download did not finish within the timeout.
	ErrDownloadTimeout = errors.New("asset download timed out")

	// ErrDownload wraps transport failures and non-success HTTP statuses.
	ErrDownload = errors.New("asset download failed")
)

// HTTPStatusError carries the status of a failed download.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
}

// Source tells whether a file is hosted by Notion (signed, expiring URL)
// or by a third party.
type Source string

const (
	SourceFile     Source = "file"
	SourceExternal Source = "external"
)

// Descriptor identifies a remote file.
type Descriptor struct {
	URL    string
	Source Source
}

// Outcome distinguishes a fresh download from a cache hit. Both are success.
type Outcome string

const (
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeCached     Outcome = "cached"
)

// Record maps a remote file to its local copy.
type Record struct {
	ParentID string
	ObjectID string
	Filename string

	// LocalPath is forward-slash joined and relative to the content root,
	// e.g. "assets/{parentID}/{objectID}.png".
	LocalPath string

	Outcome Outcome
	Size    int64
}

// Observer receives fetch outcomes for metrics.
type Observer interface {
	AssetFetched(outcome string)
}

// Fetcher downloads remote files into {contentRoot}/{assetDir}.
// It is safe for concurrent use.
type Fetcher struct {
	client      *http.Client
	contentRoot string
	assetDir    string
	assetRoot   string
	timeout     time.Duration
	logger      *slog.Logger
	observer    Observer

	// memo maps local paths already confirmed on disk, sparing a stat call.
	memo *lru.Cache[string, struct{}]

	mu    sync.Mutex
	locks map[string]*keyLock
}

// keyLock is released from Fetcher.locks once no fetch holds or waits on it.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the client used for downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithObserver reports every successful fetch outcome to o.
func WithObserver(o Observer) Option {
	return func(f *Fetcher) {
		f.observer = o
	}
}

// NewFetcher creates a fetcher writing under contentRoot/assetDir.
// assetDir must be a relative, local path.
func NewFetcher(contentRoot, assetDir string, opts ...Option) (*Fetcher, error) {
	root, err := filepath.Abs(contentRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving content root: %w", err)
	}

	dir := path.Clean(filepath.ToSlash(assetDir))
	if !filepath.IsLocal(filepath.FromSlash(dir)) || dir == "." {
		return nil, fmt.Errorf("asset dir %q: %w", assetDir, ErrPathEscape)
	}

	memo, err := lru.New[string, struct{}](memoSize)
	if err != nil {
		return nil, fmt.Errorf("creating asset memo: %w", err)
	}

	f := &Fetcher{
		client:      &http.Client{},
		contentRoot: root,
		assetDir:    dir,
		assetRoot:   filepath.Join(root, filepath.FromSlash(dir)),
		timeout:     DefaultTimeout,
		logger:      slog.Default(),
		memo:        memo,
		locks:       make(map[string]*keyLock),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// AssetRoot returns the absolute directory assets are written to.
func (f *Fetcher) AssetRoot() string {
	return f.assetRoot
}

// SplitPath decomposes a URL path into its last three segments:
// parent container ID, object ID, and filename.
func SplitPath(p string) (parentID, objectID, filename string, ok bool) {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	if len(segments) < 3 {
		return "", "", "", false
	}
	tail := segments[len(segments)-3:]
	for _, s := range tail {
		if s == "" {
			return "", "", "", false
		}
	}
	return tail[0], tail[1], tail[2], true
}

// Resolve computes the local record for d without touching the network or disk.
func (f *Fetcher) Resolve(d Descriptor) (*Record, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute http(s) URL", ErrInvalidDescriptor, d.URL)
	}

	parentID, objectID, filename, ok := SplitPath(u.Path)
	if !ok {
		return nil, fmt.Errorf("%w: path %q lacks parent/object/filename segments", ErrInvalidDescriptor, u.Path)
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if ext == "" {
		ext = "bin"
	}

	local := path.Join(f.assetDir, parentID, objectID+"."+ext)
	abs := filepath.Join(f.contentRoot, filepath.FromSlash(local))
	if !strings.HasPrefix(abs, f.assetRoot+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s resolves to %s", ErrPathEscape, d.URL, abs)
	}

	return &Record{
		ParentID:  parentID,
		ObjectID:  objectID,
		Filename:  filename,
		LocalPath: local,
	}, nil
}

// Fetch returns the local copy of d, downloading it only when no file exists
// at the derived path. Partial downloads never remain on disk.
func (f *Fetcher) Fetch(ctx context.Context, d Descriptor) (*Record, error) {
	rec, err := f.Resolve(d)
	if err != nil {
		return nil, err
	}
	abs := filepath.Join(f.contentRoot, filepath.FromSlash(rec.LocalPath))

	if _, ok := f.memo.Get(rec.LocalPath); ok {
		return f.done(rec, OutcomeCached), nil
	}

	unlock := f.lock(rec.LocalPath)
	defer unlock()

	if info, err := os.Stat(abs); err == nil {
		rec.Size = info.Size()
		return f.done(rec, OutcomeCached), nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("checking %s: %w", abs, err)
	}

	size, err := f.download(ctx, d.URL, abs)
	if err != nil {
		return nil, err
	}
	rec.Size = size

	f.logger.Debug("downloaded asset", "url_host", hostOf(d.URL), "asset_path", rec.LocalPath, "size", size)
	return f.done(rec, OutcomeDownloaded), nil
}

// download streams url into a temp file next to dest and renames it into place.
func (f *Fetcher) download(ctx context.Context, rawURL, dest string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: creating request: %v", ErrInvalidDescriptor, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, f.classify(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: %w", ErrDownload, &HTTPStatusError{StatusCode: resp.StatusCode})
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return 0, fmt.Errorf("creating asset directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	size, err := io.Copy(tmp, resp.Body)
	if err != nil {
		return 0, f.classify(ctx, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("moving asset into place: %w", err)
	}
	committed = true

	return size, nil
}

// classify maps transport errors onto the package's error taxonomy.
func (f *Fetcher) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %v", ErrDownloadTimeout, f.timeout, err)
	}
	return fmt.Errorf("%w: %w", ErrDownload, err)
}

func (f *Fetcher) done(rec *Record, outcome Outcome) *Record {
	rec.Outcome = outcome
	f.memo.Add(rec.LocalPath, struct{}{})

	if f.observer != nil {
		f.observer.AssetFetched(string(outcome))
	}
	return rec
}

// lock serializes fetches of the same destination.
func (f *Fetcher) lock(key string) func() {
	f.mu.Lock()
	l, ok := f.locks[key]
	if !ok {
		l = &keyLock{}
		f.locks[key] = l
	}
	l.refs++
	f.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		f.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(f.locks, key)
		}
		f.mu.Unlock()
	}
}

// hostOf keeps signed query strings out of logs.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
