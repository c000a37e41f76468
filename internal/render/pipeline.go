package render

import (
	"fmt"
)

// Document is the state threaded through the passes.
type Document struct {
	Root     *Node
	Assets   *AssetIndex
	Headings []Heading
}

// Heading is one anchored heading, in document order.
type Heading struct {
	Depth int    `json:"depth"`
	Slug  string `json:"slug"`
	Text  string `json:"text"`
}

// Pass is one tree rewrite. Run may mutate the document in place.
type Pass struct {
	Name string
	Run  func(*Document) error
}

// PassError names the pass that failed.
type PassError struct {
	Pass string
	Err  error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("render pass %s: %v", e.Pass, e.Err)
}

func (e *PassError) Unwrap() error {
	return e.Err
}

// Output is a rendered page.
type Output struct {
	HTML     string
	Headings []Heading
}

// Pipeline is an ordered list of passes followed by serialization.
type Pipeline struct {
	passes []Pass
}

// NewPipeline assembles the pass order:
//
//	sanitize, normalize-props, extensions..., clean-text, decode-hrefs,
//	tag-images, renormalize-props, heading-anchors
//
// Serialization runs after the last pass. Extensions always see a
// sanitized tree with normalized props.
func NewPipeline(extensions ...Pass) *Pipeline {
	passes := []Pass{
		{Name: "sanitize", Run: sanitize},
		{Name: "normalize-props", Run: normalizeProps},
	}
	passes = append(passes, extensions...)
	passes = append(passes,
		Pass{Name: "clean-text", Run: cleanText},
		Pass{Name: "decode-hrefs", Run: decodeHrefs},
		Pass{Name: "tag-images", Run: tagImages},
		Pass{Name: "renormalize-props", Run: normalizeProps},
		Pass{Name: "heading-anchors", Run: headingAnchors},
	)
	return &Pipeline{passes: passes}
}

// Names lists the passes in execution order.
func (p *Pipeline) Names() []string {
	names := make([]string, 0, len(p.passes)+1)
	for _, pass := range p.passes {
		names = append(names, pass.Name)
	}
	return append(names, "serialize")
}

// Run rewrites root and serializes it. root is modified in place. Pass
// failures are returned as *PassError; nothing is recovered.
func (p *Pipeline) Run(root *Node, assets *AssetIndex) (*Output, error) {
	if root == nil {
		root = Root()
	}
	if assets == nil {
		assets = NewAssetIndex(nil)
	}

	doc := &Document{Root: root, Assets: assets, Headings: []Heading{}}
	for _, pass := range p.passes {
		if err := pass.Run(doc); err != nil {
			return nil, &PassError{Pass: pass.Name, Err: err}
		}
	}

	html, err := Serialize(doc.Root)
	if err != nil {
		return nil, &PassError{Pass: "serialize", Err: err}
	}

	return &Output{HTML: html, Headings: doc.Headings}, nil
}
