package blocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jomei/notionapi"

	"github.com/natikgadzhi/notopress/internal/asset"
)

// DefaultMaxDepth bounds nesting so a cyclic synced block cannot loop forever.
const DefaultMaxDepth = 64

// ChildLister fetches the direct children of a block, all pages concatenated.
type ChildLister interface {
	ListChildren(ctx context.Context, blockID string) ([]notionapi.Block, error)
}

// ImageFetcher caches a remote image locally.
type ImageFetcher interface {
	Fetch(ctx context.Context, d asset.Descriptor) (*asset.Record, error)
}

// Tree is a page's resolved block tree plus the assets it references.
type Tree struct {
	Blocks []*Block

	// Assets lists local paths of images cached while building.
	Assets []string
}

// Builder resolves a page's blocks into a tree.
type Builder struct {
	lister   ChildLister
	images   ImageFetcher
	logger   *slog.Logger
	maxDepth int
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithImageFetcher caches image blocks through f. Without it images keep
// their remote URLs.
func WithImageFetcher(f ImageFetcher) BuilderOption {
	return func(b *Builder) {
		b.images = f
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.maxDepth = n
		}
	}
}

// NewBuilder creates a tree builder that lists children through lister.
func NewBuilder(lister ChildLister, opts ...BuilderOption) *Builder {
	b := &Builder{
		lister:   lister,
		logger:   slog.Default(),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// frame is one pending children fetch. A nil parent means the page root.
type frame struct {
	parent *Block
	id     string
	depth  int
}

// Build fetches every block under rootID. It walks the tree with an explicit
// stack, so nesting depth does not grow the goroutine stack.
func (b *Builder) Build(ctx context.Context, rootID string) (*Tree, error) {
	tree := &Tree{Blocks: []*Block{}}
	stack := []frame{{id: rootID}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.depth > b.maxDepth {
			return nil, fmt.Errorf("%w: block %s nested deeper than %d", ErrMalformedShape, f.id, b.maxDepth)
		}

		raw, err := b.lister.ListChildren(ctx, f.id)
		if err != nil {
			return nil, fmt.Errorf("fetching children of %s: %w", f.id, err)
		}

		children := make([]*Block, 0, len(raw))
		for i, r := range raw {
			blk, err := FromAPI(r)
			if err != nil {
				return nil, fmt.Errorf("child %d of %s: %w", i, f.id, err)
			}
			if blk.Kind == KindImage {
				if local := b.cacheImage(ctx, blk); local != "" {
					tree.Assets = append(tree.Assets, local)
				}
			}
			children = append(children, blk)
		}

		if f.parent == nil {
			tree.Blocks = append(tree.Blocks, children...)
		} else {
			f.parent.Children = append(f.parent.Children, children...)
		}

		// Push in reverse so siblings are fetched in document order.
		for i := len(children) - 1; i >= 0; i-- {
			if id, ok := childSource(children[i]); ok {
				stack = append(stack, frame{parent: children[i], id: id, depth: f.depth + 1})
			}
		}
	}

	return tree, nil
}

// childSource reports where a block's children live, if it should be descended.
func childSource(blk *Block) (string, bool) {
	switch blk.Kind {
	case KindChildPage, KindChildDatabase:
		return "", false
	}
	if blk.SourceID != "" {
		return blk.SourceID, true
	}
	return blk.ID, blk.HasChildren
}

// cacheImage fetches the image locally and returns its local path. Failures
// leave the remote URL in place.
func (b *Builder) cacheImage(ctx context.Context, blk *Block) string {
	if b.images == nil || blk.Image == nil || blk.Image.URL == "" {
		return ""
	}

	rec, err := b.images.Fetch(ctx, asset.Descriptor{
		URL:    blk.Image.URL,
		Source: asset.Source(blk.Image.Source),
	})
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, asset.ErrPathEscape) {
			level = slog.LevelError
		}
		b.logger.Log(ctx, level, "keeping remote image", "block_id", blk.ID, "error", err)
		return ""
	}

	blk.Image.Local = rec.LocalPath
	return rec.LocalPath
}
