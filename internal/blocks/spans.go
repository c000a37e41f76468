package blocks

import (
	"strings"

	"github.com/jomei/notionapi"
)

// Spans converts Notion rich text into spans. The result is never nil.
func Spans(richText []notionapi.RichText) []Span {
	spans := make([]Span, 0, len(richText))
	for _, rt := range richText {
		spans = append(spans, span(rt))
	}
	return spans
}

func span(rt notionapi.RichText) Span {
	s := Span{
		Text: rt.PlainText,
		Href: rt.Href,
	}

	if rt.Mention != nil {
		if text := mentionText(rt.Mention); text != "" {
			s.Text = text
		}
	}
	if rt.Equation != nil {
		s.Equation = rt.Equation.Expression
	}

	if ann := rt.Annotations; ann != nil {
		s.Bold = ann.Bold
		s.Italic = ann.Italic
		s.Strikethrough = ann.Strikethrough
		s.Underline = ann.Underline
		s.Code = ann.Code
		if ann.Color != "" && ann.Color != "default" {
			s.Color = string(ann.Color)
		}
	}
	return s
}

// mentionText renders the mentions whose plain text is less useful than
// their structured payload. Page and database mentions keep PlainText,
// which already carries the title.
func mentionText(m *notionapi.Mention) string {
	switch m.Type {
	case notionapi.MentionTypeUser:
		if m.User != nil && m.User.Name != "" {
			return "@" + m.User.Name
		}
	case notionapi.MentionTypeDate:
		if m.Date != nil && m.Date.Start != nil {
			text := m.Date.Start.String()
			if m.Date.End != nil {
				text += " to " + m.Date.End.String()
			}
			return text
		}
	}
	return ""
}

// PlainText joins the text of spans, ignoring formatting.
func PlainText(spans []Span) string {
	var sb strings.Builder
	for _, s := range spans {
		if s.Equation != "" {
			sb.WriteString(s.Equation)
			continue
		}
		sb.WriteString(s.Text)
	}
	return sb.String()
}
