package render

import (
	"github.com/natikgadzhi/notopress/internal/blocks"
)

// FromBlocks builds the node tree for a page. Nested block children are
// converted with an explicit worklist.
func FromBlocks(bs []*blocks.Block) *Node {
	type job struct {
		blocks []*blocks.Block
		parent *Node
	}

	root := Root()
	stack := []job{{blocks: bs, parent: root}}

	for len(stack) > 0 {
		j := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var list *Node
		for _, b := range expandSynced(j.blocks) {
			el, into := convert(b)
			if el == nil {
				list = nil
				continue
			}

			if tag := listTag(b.Kind); tag != "" {
				if list == nil || list.Tag != tag {
					list = Element(tag, nil)
					j.parent.Children = append(j.parent.Children, list)
				}
				list.Children = append(list.Children, el)
			} else {
				list = nil
				j.parent.Children = append(j.parent.Children, el)
			}

			if len(b.Children) == 0 || b.Kind == blocks.KindTable {
				continue
			}
			if into == nil {
				into = Element("div", map[string]any{"className": "indent"})
				j.parent.Children = append(j.parent.Children, into)
				list = nil
			}
			stack = append(stack, job{blocks: b.Children, parent: into})
		}
	}

	return root
}

// expandSynced splices the children of synced blocks into their siblings.
func expandSynced(bs []*blocks.Block) []*blocks.Block {
	out := make([]*blocks.Block, 0, len(bs))
	queue := append([]*blocks.Block(nil), bs...)
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		if b == nil {
			continue
		}
		if b.Kind == blocks.KindSynced {
			queue = append(append([]*blocks.Block(nil), b.Children...), queue...)
			continue
		}
		out = append(out, b)
	}
	return out
}

func listTag(k blocks.Kind) string {
	switch k {
	case blocks.KindBulleted, blocks.KindToDo:
		return "ul"
	case blocks.KindNumbered:
		return "ol"
	}
	return ""
}

// convert returns the element for b and, when b keeps its children inside
// itself, the node they belong in.
func convert(b *blocks.Block) (el *Node, into *Node) {
	switch b.Kind {
	case blocks.KindParagraph:
		return Element("p", nil, spans(b.RichText)...), nil

	case blocks.KindHeading1:
		return Element("h1", nil, spans(b.RichText)...), nil
	case blocks.KindHeading2:
		return Element("h2", nil, spans(b.RichText)...), nil
	case blocks.KindHeading3:
		return Element("h3", nil, spans(b.RichText)...), nil

	case blocks.KindBulleted, blocks.KindNumbered:
		li := Element("li", nil, spans(b.RichText)...)
		return li, li

	case blocks.KindToDo:
		box := Element("input", map[string]any{
			"type":     "checkbox",
			"disabled": true,
			"checked":  b.Checked,
		})
		li := Element("li", map[string]any{"className": "to-do"}, append([]*Node{box, Text(" ")}, spans(b.RichText)...)...)
		return li, li

	case blocks.KindToggle:
		details := Element("details", nil, Element("summary", nil, spans(b.RichText)...))
		return details, details

	case blocks.KindQuote:
		q := Element("blockquote", nil, spans(b.RichText)...)
		return q, q

	case blocks.KindCallout:
		aside := Element("aside", map[string]any{"className": "callout"})
		if b.Icon != "" {
			aside.Children = append(aside.Children, Element("span", map[string]any{"className": "callout-icon"}, Text(b.Icon)))
		}
		aside.Children = append(aside.Children, Element("p", nil, spans(b.RichText)...))
		return aside, aside

	case blocks.KindCode:
		var props map[string]any
		if b.Language != "" {
			props = map[string]any{"className": "language-" + b.Language}
		}
		pre := Element("pre", nil, Element("code", props, Text(blocks.PlainText(b.RichText))))
		if len(b.Caption) == 0 {
			return pre, nil
		}
		return Element("figure", map[string]any{"className": "code"}, pre, Element("figcaption", nil, spans(b.Caption)...)), nil

	case blocks.KindImage:
		if b.Image == nil || b.Image.Src() == "" {
			return nil, nil
		}
		img := Element("img", map[string]any{
			"src":     b.Image.Src(),
			"alt":     blocks.PlainText(b.Caption),
			"loading": "lazy",
		})
		fig := Element("figure", nil, img)
		if len(b.Caption) > 0 {
			fig.Children = append(fig.Children, Element("figcaption", nil, spans(b.Caption)...))
		}
		return fig, nil

	case blocks.KindVideo:
		if b.URL == "" {
			return nil, nil
		}
		return Element("video", map[string]any{"src": b.URL, "controls": true}), nil

	case blocks.KindFile, blocks.KindBookmark, blocks.KindEmbed:
		if b.URL == "" {
			return nil, nil
		}
		label := spans(b.Caption)
		if len(label) == 0 {
			label = []*Node{Text(b.URL)}
		}
		return Element("p", nil, Element("a", map[string]any{"href": b.URL, "className": string(b.Kind)}, label...)), nil

	case blocks.KindEquation:
		return Element("pre", map[string]any{"className": "equation"}, Text(b.Expression)), nil

	case blocks.KindDivider:
		return Element("hr", nil), nil

	case blocks.KindTable:
		return table(b), nil

	case blocks.KindColumnList:
		cols := Element("div", map[string]any{"className": "columns"})
		return cols, cols

	case blocks.KindColumn:
		col := Element("div", map[string]any{"className": "column"})
		return col, col

	case blocks.KindChildPage, blocks.KindChildDatabase:
		return Element("p", map[string]any{"className": string(b.Kind)},
			Element("a", map[string]any{"data-page-id": b.ID}, Text(b.Title))), nil
	}

	return nil, nil
}

func table(b *blocks.Block) *Node {
	t := Element("table", nil)
	body := Element("tbody", nil)

	for i, row := range b.Children {
		if row.Kind != blocks.KindTableRow {
			continue
		}
		cellTag := "td"
		header := i == 0 && b.HasColumnHeader
		if header {
			cellTag = "th"
		}

		tr := Element("tr", nil)
		for _, cell := range row.Cells {
			tr.Children = append(tr.Children, Element(cellTag, nil, spans(cell)...))
		}

		if header {
			t.Children = append(t.Children, Element("thead", nil, tr))
			continue
		}
		body.Children = append(body.Children, tr)
	}

	t.Children = append(t.Children, body)
	return t
}

// spans converts rich text into inline nodes. Annotations nest from code
// outward to links.
func spans(ss []blocks.Span) []*Node {
	out := make([]*Node, 0, len(ss))
	for _, s := range ss {
		var n *Node
		if s.Equation != "" {
			n = Element("code", map[string]any{"className": "equation"}, Text(s.Equation))
		} else {
			if s.Text == "" {
				continue
			}
			n = Text(s.Text)
		}

		if s.Code {
			n = Element("code", nil, n)
		}
		if s.Strikethrough {
			n = Element("s", nil, n)
		}
		if s.Underline {
			n = Element("u", nil, n)
		}
		if s.Italic {
			n = Element("em", nil, n)
		}
		if s.Bold {
			n = Element("strong", nil, n)
		}
		if s.Color != "" {
			n = Element("span", map[string]any{"className": "color-" + s.Color}, n)
		}
		if s.Href != "" {
			n = Element("a", map[string]any{"href": s.Href}, n)
		}
		out = append(out, n)
	}
	return out
}
