package render

import (
	"strings"
	"testing"

	"github.com/natikgadzhi/notopress/internal/blocks"
)

func blk(kind blocks.Kind, text string, children ...*blocks.Block) *blocks.Block {
	return &blocks.Block{
		ID:       string(kind) + "-" + text,
		Kind:     kind,
		RichText: []blocks.Span{{Text: text}},
		Children: append([]*blocks.Block{}, children...),
	}
}

func render(t *testing.T, bs []*blocks.Block, assets []string) *Output {
	t.Helper()
	out, err := NewPipeline().Run(FromBlocks(bs), NewAssetIndex(assets))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return out
}

func TestFromBlocks_ListsGroupAndNest(t *testing.T) {
	bs := []*blocks.Block{
		blk(blocks.KindBulleted, "one", blk(blocks.KindBulleted, "nested")),
		blk(blocks.KindBulleted, "two"),
		blk(blocks.KindNumbered, "first"),
		blk(blocks.KindParagraph, "after"),
	}

	doc := parse(t, render(t, bs, nil).HTML)

	if n := doc.Find("body > ul").Length(); n != 1 {
		t.Errorf("expected 1 top-level ul, got %d", n)
	}
	if n := doc.Find("body > ul > li").Length(); n != 2 {
		t.Errorf("expected 2 items, got %d", n)
	}
	if got := doc.Find("body > ul > li > ul > li").Text(); got != "nested" {
		t.Errorf("nested item = %q", got)
	}
	if n := doc.Find("body > ol > li").Length(); n != 1 {
		t.Errorf("expected 1 numbered item, got %d", n)
	}
	if got := doc.Find("body > p").Text(); got != "after" {
		t.Errorf("paragraph = %q", got)
	}
}

func TestFromBlocks_Annotations(t *testing.T) {
	b := &blocks.Block{
		Kind: blocks.KindParagraph,
		RichText: []blocks.Span{
			{Text: "bold", Bold: true},
			{Text: " and "},
			{Text: "link", Italic: true, Href: "https://example.com"},
			{Text: "x", Code: true},
		},
		Children: []*blocks.Block{},
	}

	doc := parse(t, render(t, []*blocks.Block{b}, nil).HTML)

	if got := doc.Find("p > strong").Text(); got != "bold" {
		t.Errorf("strong = %q", got)
	}
	a := doc.Find("p > a")
	if href, _ := a.Attr("href"); href != "https://example.com" {
		t.Errorf("href = %q", href)
	}
	if got := a.Find("em").Text(); got != "link" {
		t.Errorf("em = %q", got)
	}
	if got := doc.Find("p > code").Text(); got != "x" {
		t.Errorf("code = %q", got)
	}
}

func TestFromBlocks_CodeKeepsEscapes(t *testing.T) {
	code := blk(blocks.KindCode, `fmt.Println("\(x\)")`)
	code.Language = "go"
	para := blk(blocks.KindParagraph, `1 \+ 1`)

	doc := parse(t, render(t, []*blocks.Block{code, para}, nil).HTML)

	c := doc.Find("pre > code")
	if cls, _ := c.Attr("class"); cls != "language-go" {
		t.Errorf("class = %q", cls)
	}
	if got := c.Text(); got != `fmt.Println("\(x\)")` {
		t.Errorf("code text = %q", got)
	}
	if got := doc.Find("p").Text(); got != "1 + 1" {
		t.Errorf("paragraph = %q", got)
	}
}

func TestFromBlocks_TableAndToDo(t *testing.T) {
	row := func(cells ...string) *blocks.Block {
		r := &blocks.Block{Kind: blocks.KindTableRow, Children: []*blocks.Block{}}
		for _, c := range cells {
			r.Cells = append(r.Cells, []blocks.Span{{Text: c}})
		}
		return r
	}
	table := &blocks.Block{
		Kind:            blocks.KindTable,
		HasColumnHeader: true,
		Children:        []*blocks.Block{row("Name", "Age"), row("Ada", "36")},
	}
	todo := blk(blocks.KindToDo, "ship it")
	todo.Checked = true

	doc := parse(t, render(t, []*blocks.Block{table, todo}, nil).HTML)

	if n := doc.Find("table thead th").Length(); n != 2 {
		t.Errorf("expected 2 header cells, got %d", n)
	}
	if got := doc.Find("table tbody td").First().Text(); got != "Ada" {
		t.Errorf("first body cell = %q", got)
	}
	box := doc.Find("ul > li.to-do > input[type=checkbox]")
	if box.Length() != 1 {
		t.Fatal("missing checkbox")
	}
	if _, ok := box.Attr("checked"); !ok {
		t.Error("checkbox should be checked")
	}
}

func TestFromBlocks_SyncedAndHeadings(t *testing.T) {
	synced := &blocks.Block{
		Kind:     blocks.KindSynced,
		Children: []*blocks.Block{blk(blocks.KindHeading2, "Shared"), blk(blocks.KindParagraph, "body")},
	}
	out := render(t, []*blocks.Block{blk(blocks.KindHeading1, "Top"), synced}, nil)

	doc := parse(t, out.HTML)
	if id, _ := doc.Find("body > h2").Attr("id"); id != "shared" {
		t.Errorf("h2 id = %q", id)
	}
	if len(out.Headings) != 2 || out.Headings[1].Depth != 2 || out.Headings[1].Slug != "shared" {
		t.Errorf("headings = %+v", out.Headings)
	}
}

func TestFromBlocks_ImageTaggedWhenCached(t *testing.T) {
	img := &blocks.Block{
		Kind:     blocks.KindImage,
		Image:    &blocks.ImageRef{URL: "https://cdn.example.com/parent/obj/pic.png?sig=1"},
		Caption:  []blocks.Span{{Text: "A picture"}},
		Children: []*blocks.Block{},
	}

	doc := parse(t, render(t, []*blocks.Block{img}, []string{"assets/parent/obj.png"}).HTML)

	el := doc.Find("figure > img")
	if src, _ := el.Attr("src"); src != "assets/parent/obj.png" {
		t.Errorf("src = %q", src)
	}
	raw, ok := el.Attr("data-local-image")
	if !ok || !strings.Contains(raw, `"alt":"A picture"`) {
		t.Errorf("data-local-image = %q", raw)
	}
	if got := doc.Find("figure > figcaption").Text(); got != "A picture" {
		t.Errorf("caption = %q", got)
	}
}

func TestFromBlocks_ParagraphChildrenIndented(t *testing.T) {
	p := blk(blocks.KindParagraph, "parent", blk(blocks.KindParagraph, "child"))

	doc := parse(t, render(t, []*blocks.Block{p}, nil).HTML)

	if got := doc.Find("div.indent > p").Text(); got != "child" {
		t.Errorf("indented child = %q", got)
	}
}

func TestFromBlocks_EquationsKeepTeX(t *testing.T) {
	const tex = `\{x \mid x > 0\} \, \; \! \\  y`
	bs := []*blocks.Block{
		{Kind: blocks.KindEquation, Expression: tex, Children: []*blocks.Block{}},
		{
			Kind:     blocks.KindParagraph,
			RichText: []blocks.Span{{Text: "inline "}, {Equation: tex}},
			Children: []*blocks.Block{},
		},
	}

	doc := parse(t, render(t, bs, nil).HTML)

	if got := doc.Find("pre.equation").Text(); got != tex {
		t.Errorf("block equation = %q, want %q", got, tex)
	}
	if got := doc.Find("p > code.equation").Text(); got != tex {
		t.Errorf("inline equation = %q, want %q", got, tex)
	}
}
