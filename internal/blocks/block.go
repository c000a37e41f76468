// Package blocks converts Notion API blocks into a closed, fully populated
// block model and resolves nested children into a tree.
package blocks

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/jomei/notionapi"
)

// ErrMalformedShape means the API returned a block the model cannot represent.
var ErrMalformedShape = errors.New("malformed block shape")

// Kind is the closed set of block variants the renderer understands.
type Kind string

const (
	KindParagraph     Kind = "paragraph"
	KindHeading1      Kind = "heading_1"
	KindHeading2      Kind = "heading_2"
	KindHeading3      Kind = "heading_3"
	KindBulleted      Kind = "bulleted_list_item"
	KindNumbered      Kind = "numbered_list_item"
	KindToDo          Kind = "to_do"
	KindToggle        Kind = "toggle"
	KindQuote         Kind = "quote"
	KindCallout       Kind = "callout"
	KindCode          Kind = "code"
	KindImage         Kind = "image"
	KindVideo         Kind = "video"
	KindFile          Kind = "file"
	KindDivider       Kind = "divider"
	KindBookmark      Kind = "bookmark"
	KindEmbed         Kind = "embed"
	KindEquation      Kind = "equation"
	KindTable         Kind = "table"
	KindTableRow      Kind = "table_row"
	KindColumnList    Kind = "column_list"
	KindColumn        Kind = "column"
	KindChildPage     Kind = "child_page"
	KindChildDatabase Kind = "child_database"
	KindSynced        Kind = "synced_block"
	KindUnsupported   Kind = "unsupported"
)

// Span is one run of rich text with uniform formatting.
type Span struct {
	Text          string
	Bold          bool
	Italic        bool
	Strikethrough bool
	Underline     bool
	Code          bool
	Color         string
	Href          string

	// Equation holds a TeX expression for inline math; Text is then ignored.
	Equation string
}

// ImageRef points at an image either remotely or in the local asset cache.
type ImageRef struct {
	URL    string
	Source string

	// Local is the content-root relative path once the image is cached.
	Local string
}

// Src returns the local path when cached and the remote URL otherwise.
func (r *ImageRef) Src() string {
	if r.Local != "" {
		return r.Local
	}
	return r.URL
}

// Block is a single content block. Children is never nil.
type Block struct {
	ID   string
	Kind Kind

	RichText []Span
	Caption  []Span

	Checked    bool
	Toggleable bool
	Language   string
	Icon       string
	Title      string
	URL        string
	Expression string

	Image *ImageRef

	Cells           [][]Span
	HasColumnHeader bool

	HasChildren bool

	// SourceID is set on synced block references; their children live
	// under the original block.
	SourceID string

	Children []*Block
}

// FromAPI converts a Notion block into the closed model. Content the API
// omitted is synthesized as empty.
func FromAPI(b notionapi.Block) (*Block, error) {
	if isNil(b) {
		return nil, fmt.Errorf("%w: nil block", ErrMalformedShape)
	}

	out := &Block{
		ID:          string(b.GetID()),
		HasChildren: hasChildren(b),
		Children:    []*Block{},
	}

	switch v := b.(type) {
	case *notionapi.ParagraphBlock:
		out.Kind = KindParagraph
		out.RichText = Spans(v.Paragraph.RichText)

	case *notionapi.Heading1Block:
		out.Kind = KindHeading1
		out.RichText = Spans(v.Heading1.RichText)
		out.Toggleable = v.Heading1.IsToggleable

	case *notionapi.Heading2Block:
		out.Kind = KindHeading2
		out.RichText = Spans(v.Heading2.RichText)
		out.Toggleable = v.Heading2.IsToggleable

	case *notionapi.Heading3Block:
		out.Kind = KindHeading3
		out.RichText = Spans(v.Heading3.RichText)
		out.Toggleable = v.Heading3.IsToggleable

	case *notionapi.BulletedListItemBlock:
		out.Kind = KindBulleted
		out.RichText = Spans(v.BulletedListItem.RichText)

	case *notionapi.NumberedListItemBlock:
		out.Kind = KindNumbered
		out.RichText = Spans(v.NumberedListItem.RichText)

	case *notionapi.ToDoBlock:
		out.Kind = KindToDo
		out.RichText = Spans(v.ToDo.RichText)
		out.Checked = v.ToDo.Checked

	case *notionapi.ToggleBlock:
		out.Kind = KindToggle
		out.RichText = Spans(v.Toggle.RichText)

	case *notionapi.QuoteBlock:
		out.Kind = KindQuote
		out.RichText = Spans(v.Quote.RichText)

	case *notionapi.CalloutBlock:
		out.Kind = KindCallout
		out.RichText = Spans(v.Callout.RichText)
		if v.Callout.Icon != nil && v.Callout.Icon.Emoji != nil {
			out.Icon = string(*v.Callout.Icon.Emoji)
		}

	case *notionapi.CodeBlock:
		out.Kind = KindCode
		out.RichText = Spans(v.Code.RichText)
		out.Caption = Spans(v.Code.Caption)
		out.Language = normalizeLanguage(string(v.Code.Language))

	case *notionapi.ImageBlock:
		out.Kind = KindImage
		out.Caption = Spans(v.Image.Caption)
		out.Image = imageRef(v.Image.File, v.Image.External)

	case *notionapi.VideoBlock:
		out.Kind = KindVideo
		out.Caption = Spans(v.Video.Caption)
		out.URL = mediaURL(v.Video.File, v.Video.External)

	case *notionapi.FileBlock:
		out.Kind = KindFile
		out.Caption = Spans(v.File.Caption)
		out.URL = mediaURL(v.File.File, v.File.External)

	case *notionapi.PdfBlock:
		out.Kind = KindFile
		out.Caption = Spans(v.Pdf.Caption)
		out.URL = mediaURL(v.Pdf.File, v.Pdf.External)

	case *notionapi.AudioBlock:
		out.Kind = KindFile
		out.Caption = Spans(v.Audio.Caption)
		out.URL = mediaURL(v.Audio.File, v.Audio.External)

	case *notionapi.DividerBlock:
		out.Kind = KindDivider

	case *notionapi.BookmarkBlock:
		out.Kind = KindBookmark
		out.URL = v.Bookmark.URL
		out.Caption = Spans(v.Bookmark.Caption)

	case *notionapi.EmbedBlock:
		out.Kind = KindEmbed
		out.URL = v.Embed.URL
		out.Caption = Spans(v.Embed.Caption)

	case *notionapi.LinkPreviewBlock:
		out.Kind = KindBookmark
		out.URL = v.LinkPreview.URL

	case *notionapi.EquationBlock:
		out.Kind = KindEquation
		out.Expression = v.Equation.Expression

	case *notionapi.TableBlock:
		out.Kind = KindTable
		out.HasColumnHeader = v.Table.HasColumnHeader

	case *notionapi.TableRowBlock:
		out.Kind = KindTableRow
		out.Cells = make([][]Span, 0, len(v.TableRow.Cells))
		for _, cell := range v.TableRow.Cells {
			out.Cells = append(out.Cells, Spans(cell))
		}

	case *notionapi.ColumnListBlock:
		out.Kind = KindColumnList

	case *notionapi.ColumnBlock:
		out.Kind = KindColumn

	case *notionapi.ChildPageBlock:
		out.Kind = KindChildPage
		out.Title = v.ChildPage.Title

	case *notionapi.ChildDatabaseBlock:
		out.Kind = KindChildDatabase
		out.Title = v.ChildDatabase.Title

	case *notionapi.SyncedBlock:
		out.Kind = KindSynced
		if v.SyncedBlock.SyncedFrom != nil && v.SyncedBlock.SyncedFrom.BlockID != "" {
			out.SourceID = string(v.SyncedBlock.SyncedFrom.BlockID)
		}

	default:
		out.Kind = KindUnsupported
	}

	return out, nil
}

// isNil catches both nil interfaces and typed nil pointers.
func isNil(b notionapi.Block) bool {
	if b == nil {
		return true
	}
	v := reflect.ValueOf(b)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func hasChildren(b notionapi.Block) bool {
	if hc, ok := b.(interface{ GetHasChildren() bool }); ok {
		return hc.GetHasChildren()
	}
	return false
}

func normalizeLanguage(lang string) string {
	switch lang {
	case "plain text", "plain_text":
		return ""
	}
	return lang
}

func imageRef(file, external *notionapi.FileObject) *ImageRef {
	switch {
	case file != nil && file.URL != "":
		return &ImageRef{URL: file.URL, Source: "file"}
	case external != nil && external.URL != "":
		return &ImageRef{URL: external.URL, Source: "external"}
	}
	return &ImageRef{}
}

func mediaURL(file, external *notionapi.FileObject) string {
	if file != nil {
		return file.URL
	}
	if external != nil {
		return external.URL
	}
	return ""
}
