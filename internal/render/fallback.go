package render

import (
	"html"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/microcosm-cc/bluemonday"
)

var fallbackPolicy = bluemonday.UGCPolicy()

// Fallback renders top-level blocks directly to minimal HTML. It covers
// paragraphs, headings 1-3, quotes, and list items; every other block is
// skipped. Nested children are not fetched.
func Fallback(bs []notionapi.Block) (string, error) {
	var sb strings.Builder
	var openList string

	closeList := func() {
		if openList != "" {
			sb.WriteString("</" + openList + ">")
			openList = ""
		}
	}
	item := func(list, text string) {
		if openList != list {
			closeList()
			sb.WriteString("<" + list + ">")
			openList = list
		}
		sb.WriteString("<li>" + text + "</li>")
	}

	for _, b := range bs {
		switch v := b.(type) {
		case *notionapi.ParagraphBlock:
			closeList()
			sb.WriteString("<p>" + plain(v.Paragraph.RichText) + "</p>")
		case *notionapi.Heading1Block:
			closeList()
			sb.WriteString("<h1>" + plain(v.Heading1.RichText) + "</h1>")
		case *notionapi.Heading2Block:
			closeList()
			sb.WriteString("<h2>" + plain(v.Heading2.RichText) + "</h2>")
		case *notionapi.Heading3Block:
			closeList()
			sb.WriteString("<h3>" + plain(v.Heading3.RichText) + "</h3>")
		case *notionapi.QuoteBlock:
			closeList()
			sb.WriteString("<blockquote>" + plain(v.Quote.RichText) + "</blockquote>")
		case *notionapi.BulletedListItemBlock:
			item("ul", plain(v.BulletedListItem.RichText))
		case *notionapi.NumberedListItemBlock:
			item("ol", plain(v.NumberedListItem.RichText))
		default:
			closeList()
		}
	}
	closeList()

	return fallbackPolicy.Sanitize(sb.String()), nil
}

func plain(rt []notionapi.RichText) string {
	var sb strings.Builder
	for _, t := range rt {
		sb.WriteString(t.PlainText)
	}
	return html.EscapeString(sb.String())
}
