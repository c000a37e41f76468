package render

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// propAttr maps property names to attribute names where they differ.
var propAttr = map[string]string{
	"className": "class",
	"htmlFor":   "for",
}

// Serialize renders the tree as an HTML fragment. Attributes are emitted in
// sorted order so output is stable.
func Serialize(root *Node) (string, error) {
	doc := &html.Node{Type: html.DocumentNode}

	type item struct {
		src *Node
		dst *html.Node
	}
	stack := []item{{src: root, dst: doc}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, c := range it.src.Children {
			if c == nil {
				continue
			}
			var out *html.Node
			switch c.Type {
			case TextNode:
				out = &html.Node{Type: html.TextNode, Data: c.Value}
			case ElementNode:
				if c.Tag == "" {
					return "", fmt.Errorf("element without tag")
				}
				out = &html.Node{
					Type:     html.ElementNode,
					Data:     c.Tag,
					DataAtom: atom.Lookup([]byte(c.Tag)),
					Attr:     attributes(c.Props),
				}
				stack = append(stack, item{src: c, dst: out})
			default:
				return "", fmt.Errorf("unexpected nested node type %d", c.Type)
			}
			it.dst.AppendChild(out)
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func attributes(props map[string]any) []html.Attribute {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]html.Attribute, 0, len(keys))
	for _, k := range keys {
		name := k
		if mapped, ok := propAttr[k]; ok {
			name = mapped
		}

		switch v := props[k].(type) {
		case string:
			attrs = append(attrs, html.Attribute{Key: name, Val: v})
		case []string:
			attrs = append(attrs, html.Attribute{Key: name, Val: strings.Join(v, " ")})
		case bool:
			if v {
				attrs = append(attrs, html.Attribute{Key: name})
			}
		case int, int64, float64:
			attrs = append(attrs, html.Attribute{Key: name, Val: fmt.Sprint(v)})
		}
	}
	return attrs
}
