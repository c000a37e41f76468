package blocks

import (
	"context"
	"errors"
	"testing"

	"github.com/jomei/notionapi"

	"github.com/natikgadzhi/notopress/internal/asset"
)

// fakeLister serves children from a map and records which IDs were listed.
type fakeLister struct {
	children map[string][]notionapi.Block
	err      map[string]error
	listed   []string
}

func (f *fakeLister) ListChildren(_ context.Context, id string) ([]notionapi.Block, error) {
	f.listed = append(f.listed, id)
	if err := f.err[id]; err != nil {
		return nil, err
	}
	return f.children[id], nil
}

type fakeImages struct {
	local string
	err   error
	calls int
}

func (f *fakeImages) Fetch(_ context.Context, d asset.Descriptor) (*asset.Record, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &asset.Record{LocalPath: f.local, Outcome: asset.OutcomeDownloaded}, nil
}

func para(id, s string, hasChildren bool) notionapi.Block {
	return &notionapi.ParagraphBlock{
		BasicBlock: basic(id, notionapi.BlockTypeParagraph, hasChildren),
		Paragraph:  notionapi.Paragraph{RichText: text(s)},
	}
}

func image(id, url string) notionapi.Block {
	return &notionapi.ImageBlock{
		BasicBlock: basic(id, notionapi.BlockTypeImage, false),
		Image:      notionapi.Image{External: &notionapi.FileObject{URL: url}},
	}
}

func TestBuild_NestedChildren(t *testing.T) {
	lister := &fakeLister{children: map[string][]notionapi.Block{
		"page": {para("a", "first", true), para("b", "second", false)},
		"a":    {para("a1", "nested", true)},
		"a1":   {para("a2", "deeper", false)},
	}}

	tree, err := NewBuilder(lister).Build(context.Background(), "page")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if len(tree.Blocks) != 2 {
		t.Fatalf("expected 2 top-level blocks, got %d", len(tree.Blocks))
	}
	a := tree.Blocks[0]
	if len(a.Children) != 1 || len(a.Children[0].Children) != 1 {
		t.Fatalf("unexpected nesting under a: %+v", a)
	}
	if got := PlainText(a.Children[0].Children[0].RichText); got != "deeper" {
		t.Errorf("deepest text = %q", got)
	}
	if b := tree.Blocks[1]; b.Children == nil || len(b.Children) != 0 {
		t.Errorf("leaf children = %#v, want empty non-nil", b.Children)
	}

	want := []string{"page", "a", "a1"}
	if len(lister.listed) != len(want) {
		t.Fatalf("listed %v, want %v", lister.listed, want)
	}
	for i := range want {
		if lister.listed[i] != want[i] {
			t.Errorf("listed %v, want %v", lister.listed, want)
			break
		}
	}
}

func TestBuild_DoesNotDescendChildPages(t *testing.T) {
	sub := &notionapi.ChildPageBlock{BasicBlock: basic("sub", notionapi.BlockTypeChildPage, true)}
	sub.ChildPage.Title = "Subpage"
	lister := &fakeLister{children: map[string][]notionapi.Block{
		"page": {sub},
	}}

	tree, err := NewBuilder(lister).Build(context.Background(), "page")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(lister.listed) != 1 {
		t.Errorf("expected only the page to be listed, got %v", lister.listed)
	}
	if tree.Blocks[0].Title != "Subpage" {
		t.Errorf("title = %q", tree.Blocks[0].Title)
	}
}

func TestBuild_FollowsSyncedSource(t *testing.T) {
	lister := &fakeLister{children: map[string][]notionapi.Block{
		"page": {&notionapi.SyncedBlock{
			BasicBlock:  basic("ref", notionapi.BlockType("synced_block"), true),
			SyncedBlock: notionapi.Synced{SyncedFrom: &notionapi.SyncedFrom{BlockID: "origin"}},
		}},
		"origin": {para("o1", "shared", false)},
	}}

	tree, err := NewBuilder(lister).Build(context.Background(), "page")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	ref := tree.Blocks[0]
	if len(ref.Children) != 1 || PlainText(ref.Children[0].RichText) != "shared" {
		t.Errorf("synced children = %+v", ref.Children)
	}
}

func TestBuild_CachesImages(t *testing.T) {
	lister := &fakeLister{children: map[string][]notionapi.Block{
		"page": {image("img", "https://cdn.example.com/p/o/a.png")},
	}}
	images := &fakeImages{local: "assets/p/o.png"}

	tree, err := NewBuilder(lister, WithImageFetcher(images)).Build(context.Background(), "page")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	img := tree.Blocks[0].Image
	if img.Local != "assets/p/o.png" || img.Src() != "assets/p/o.png" {
		t.Errorf("image = %+v", img)
	}
	if len(tree.Assets) != 1 || tree.Assets[0] != "assets/p/o.png" {
		t.Errorf("assets = %v", tree.Assets)
	}
}

func TestBuild_ImageFailureKeepsRemoteURL(t *testing.T) {
	lister := &fakeLister{children: map[string][]notionapi.Block{
		"page": {image("img", "https://cdn.example.com/p/o/a.png"), para("p", "after", false)},
	}}
	images := &fakeImages{err: asset.ErrDownloadTimeout}

	tree, err := NewBuilder(lister, WithImageFetcher(images)).Build(context.Background(), "page")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := tree.Blocks[0].Image.Src(); got != "https://cdn.example.com/p/o/a.png" {
		t.Errorf("src = %q, want remote URL", got)
	}
	if len(tree.Blocks) != 2 {
		t.Errorf("expected the page to continue after a failed image, got %d blocks", len(tree.Blocks))
	}
	if len(tree.Assets) != 0 {
		t.Errorf("assets = %v, want none", tree.Assets)
	}
}

func TestBuild_MalformedChild(t *testing.T) {
	lister := &fakeLister{children: map[string][]notionapi.Block{
		"page": {para("a", "ok", false), nil},
	}}

	_, err := NewBuilder(lister).Build(context.Background(), "page")
	if !errors.Is(err, ErrMalformedShape) {
		t.Errorf("error = %v, want ErrMalformedShape", err)
	}
}

func TestBuild_MaxDepth(t *testing.T) {
	lister := &fakeLister{children: map[string][]notionapi.Block{
		"page": {para("a", "1", true)},
		"a":    {para("b", "2", true)},
		"b":    {para("c", "3", true)},
		"c":    {para("d", "4", false)},
	}}

	_, err := NewBuilder(lister, WithMaxDepth(2)).Build(context.Background(), "page")
	if !errors.Is(err, ErrMalformedShape) {
		t.Errorf("error = %v, want ErrMalformedShape", err)
	}
}

func TestBuild_ListError(t *testing.T) {
	boom := errors.New("boom")
	lister := &fakeLister{
		children: map[string][]notionapi.Block{"page": {para("a", "x", true)}},
		err:      map[string]error{"a": boom},
	}

	_, err := NewBuilder(lister).Build(context.Background(), "page")
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped boom", err)
	}
}

func TestBuild_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuilder(&fakeLister{}).Build(ctx, "page")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
