// Package render turns a block tree into sanitized HTML through a fixed,
// ordered sequence of tree-rewrite passes.
package render

// NodeType discriminates Node variants.
type NodeType int

const (
	RootNode NodeType = iota
	ElementNode
	TextNode
)

// Node is an HTML-like tree node. After the sanitize pass every node has a
// non-nil Children slice and every element a non-nil Props map.
type Node struct {
	Type     NodeType
	Tag      string
	Props    map[string]any
	Children []*Node

	// Value is the content of a text node.
	Value string
}

// Root creates a root node.
func Root(children ...*Node) *Node {
	return &Node{Type: RootNode, Children: children}
}

// Element creates an element node. props may be nil.
func Element(tag string, props map[string]any, children ...*Node) *Node {
	return &Node{Type: ElementNode, Tag: tag, Props: props, Children: children}
}

// Text creates a text node.
func Text(value string) *Node {
	return &Node{Type: TextNode, Value: value}
}

// IsElement reports whether n is an element with one of the given tags.
func (n *Node) IsElement(tags ...string) bool {
	if n == nil || n.Type != ElementNode {
		return false
	}
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if n.Tag == t {
			return true
		}
	}
	return false
}

// TextContent concatenates all descendant text.
func (n *Node) TextContent() string {
	var out []byte
	_ = Walk(n, func(c *Node, _ bool) error {
		if c.Type == TextNode {
			out = append(out, c.Value...)
		}
		return nil
	})
	return string(out)
}

// Walk visits n and its descendants in document order. inCode is true for
// nodes that sit inside a code or pre element. fn may replace a node's
// Children; the walk follows the updated slice.
func Walk(n *Node, fn func(node *Node, inCode bool) error) error {
	type item struct {
		node   *Node
		inCode bool
	}

	if n == nil {
		return nil
	}
	stack := []item{{node: n}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := fn(it.node, it.inCode); err != nil {
			return err
		}

		childInCode := it.inCode || it.node.IsElement("code", "pre")
		for i := len(it.node.Children) - 1; i >= 0; i-- {
			if c := it.node.Children[i]; c != nil {
				stack = append(stack, item{node: c, inCode: childInCode})
			}
		}
	}
	return nil
}
