package render

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// urlProps hold URLs and must end up as plain strings.
var urlProps = map[string]bool{
	"href":   true,
	"src":    true,
	"cite":   true,
	"poster": true,
	"action": true,
}

var (
	escapedPunct = regexp.MustCompile("\\\\([!-/:-@\\[-`{-~])")
	whitespace   = regexp.MustCompile(`\s+`)
)

// sanitize guarantees non-nil Children everywhere and non-nil Props on
// elements, dropping nil children.
func sanitize(doc *Document) error {
	return Walk(doc.Root, func(n *Node, _ bool) error {
		kept := make([]*Node, 0, len(n.Children))
		for _, c := range n.Children {
			if c != nil {
				kept = append(kept, c)
			}
		}
		n.Children = kept

		if n.Type == ElementNode && n.Props == nil {
			n.Props = map[string]any{}
		}
		return nil
	})
}

// normalizeProps coerces className to []string and URL props to strings.
// Values that cannot be coerced are removed.
func normalizeProps(doc *Document) error {
	return Walk(doc.Root, func(n *Node, _ bool) error {
		if n.Type != ElementNode {
			return nil
		}
		if n.Props == nil {
			n.Props = map[string]any{}
		}

		if v, ok := n.Props["class"]; ok {
			delete(n.Props, "class")
			if _, exists := n.Props["className"]; !exists {
				n.Props["className"] = v
			}
		}

		for key, value := range n.Props {
			switch {
			case key == "className":
				if classes, ok := classList(value); ok && len(classes) > 0 {
					n.Props[key] = classes
				} else {
					delete(n.Props, key)
				}
			case urlProps[key]:
				if s, ok := urlString(value); ok {
					n.Props[key] = s
				} else {
					delete(n.Props, key)
				}
			case value == nil:
				delete(n.Props, key)
			}
		}
		return nil
	})
}

func classList(v any) ([]string, bool) {
	switch c := v.(type) {
	case string:
		return strings.Fields(c), true
	case []string:
		out := make([]string, 0, len(c))
		for _, s := range c {
			out = append(out, strings.Fields(s)...)
		}
		return out, true
	case []any:
		out := make([]string, 0, len(c))
		for _, item := range c {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, strings.Fields(s)...)
		}
		return out, true
	}
	return nil, false
}

// urlString extracts a URL string from the shapes link props arrive in.
func urlString(v any) (string, bool) {
	switch u := v.(type) {
	case string:
		return u, true
	case *url.URL:
		if u == nil {
			return "", false
		}
		return u.String(), true
	case url.URL:
		return u.String(), true
	case map[string]any:
		s, ok := u["url"].(string)
		return s, ok
	case map[string]string:
		s, ok := u["url"]
		return s, ok
	case fmt.Stringer:
		return u.String(), true
	}
	return "", false
}

// cleanText drops backslash escapes before punctuation and collapses
// whitespace in text outside code and pre.
func cleanText(doc *Document) error {
	return Walk(doc.Root, func(n *Node, inCode bool) error {
		if n.Type != TextNode || inCode {
			return nil
		}
		v := escapedPunct.ReplaceAllString(n.Value, "$1")
		n.Value = whitespace.ReplaceAllString(v, " ")
		return nil
	})
}

// decodeHrefs percent-decodes the path of anchor hrefs. Query and fragment
// keep their encoding.
func decodeHrefs(doc *Document) error {
	return Walk(doc.Root, func(n *Node, _ bool) error {
		if !n.IsElement("a") {
			return nil
		}
		href, ok := n.Props["href"].(string)
		if !ok || !shouldDecode(href) {
			return nil
		}
		n.Props["href"] = decodePath(href)
		return nil
	})
}

func shouldDecode(href string) bool {
	if !strings.Contains(href, "%") {
		return false
	}
	return strings.HasPrefix(href, "http") || strings.HasPrefix(href, "/") || strings.HasPrefix(href, "#")
}

// decodePath returns href with only its path decoded, or href unchanged when
// it does not parse or is opaque (scheme:data without a path).
func decodePath(href string) string {
	u, err := url.Parse(href)
	if err != nil || u.Opaque != "" {
		return href
	}

	head := href
	if i := strings.IndexAny(head, "?#"); i >= 0 {
		head = head[:i]
	}
	tail := href[len(head):]

	pathStart := 0
	if u.Scheme != "" {
		pathStart = len(u.Scheme) + 1
	}
	if strings.HasPrefix(head[pathStart:], "//") {
		if j := strings.IndexByte(head[pathStart+2:], '/'); j >= 0 {
			pathStart += 2 + j
		} else {
			pathStart = len(head)
		}
	}

	segments := strings.Split(head[pathStart:], "/")
	for i, seg := range segments {
		segments[i] = decodeSegment(seg)
	}
	return head[:pathStart] + strings.Join(segments, "/") + tail
}

// decodeSegment unescapes %XX sequences except those that would change the
// structure of the URL once decoded.
func decodeSegment(seg string) string {
	if !strings.Contains(seg, "%") {
		return seg
	}
	out := make([]byte, 0, len(seg))
	for i := 0; i < len(seg); i++ {
		if seg[i] == '%' && i+2 < len(seg) {
			if b, err := strconv.ParseUint(seg[i+1:i+3], 16, 8); err == nil && !keepEscaped(byte(b)) {
				out = append(out, byte(b))
				i += 2
				continue
			}
		}
		out = append(out, seg[i])
	}
	return string(out)
}

func keepEscaped(b byte) bool {
	switch b {
	case '/', '?', '#', '%':
		return true
	}
	return false
}

// localImage is the payload of the data-local-image attribute.
type localImage struct {
	Src   string         `json:"src"`
	Attrs map[string]any `json:"attrs"`
	Index int            `json:"index"`
}

// tagImages marks images whose source is in the local asset cache and points
// them at the local copy.
func tagImages(doc *Document) error {
	index := 0
	return Walk(doc.Root, func(n *Node, _ bool) error {
		if !n.IsElement("img") {
			return nil
		}
		src, ok := n.Props["src"].(string)
		if !ok {
			return nil
		}
		local, ok := doc.Assets.Lookup(src)
		if !ok {
			return nil
		}

		// attrs keeps the element's original attributes, remote src included.
		attrs := make(map[string]any, len(n.Props))
		for k, v := range n.Props {
			if k == dataLocalImage {
				continue
			}
			attrs[k] = v
		}

		payload, err := json.Marshal(localImage{Src: local, Attrs: attrs, Index: index})
		if err != nil {
			return fmt.Errorf("encoding image %s: %w", local, err)
		}
		index++

		n.Props["src"] = local
		n.Props[dataLocalImage] = string(payload)
		return nil
	})
}

const dataLocalImage = "data-local-image"

// headingAnchors assigns unique ids to h1-h6 and records them.
func headingAnchors(doc *Document) error {
	slugger := NewSlugger()
	return Walk(doc.Root, func(n *Node, _ bool) error {
		depth := headingDepth(n)
		if depth == 0 {
			return nil
		}

		text := strings.TrimSpace(n.TextContent())
		slug := slugger.Slug(text)
		n.Props["id"] = slug
		doc.Headings = append(doc.Headings, Heading{Depth: depth, Slug: slug, Text: text})
		return nil
	})
}

func headingDepth(n *Node) int {
	if n.Type != ElementNode || len(n.Tag) != 2 || n.Tag[0] != 'h' {
		return 0
	}
	d, err := strconv.Atoi(n.Tag[1:])
	if err != nil || d < 1 || d > 6 {
		return 0
	}
	return d
}
