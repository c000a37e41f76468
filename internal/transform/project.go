// Package transform projects Notion page properties into flat records with
// plain Go values.
package transform

import (
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/jomei/notionapi"
)

// Option configures Project.
type Option func(*projector)

type projector struct {
	key func(string) string
}

// WithSanitizedKeys stores values under KeyFor(name) instead of the raw
// property name.
func WithSanitizedKeys() Option {
	return func(p *projector) {
		p.key = KeyFor
	}
}

// Project flattens a property bag. Empty optional values are omitted rather
// than stored as nil. Title properties are always present.
func Project(props notionapi.Properties, opts ...Option) map[string]any {
	p := &projector{key: func(s string) string { return s }}
	for _, opt := range opts {
		opt(p)
	}

	out := make(map[string]any, len(props))
	for name, prop := range props {
		if v := Value(prop); v != nil {
			out[p.key(name)] = v
		}
	}
	return out
}

// KeyFor lowercases a property name and replaces spaces with underscores.
func KeyFor(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}

// Value extracts a single property. It returns nil for empty optional values
// and the property itself for types it does not know.
func Value(prop notionapi.Property) any {
	if prop == nil {
		return nil
	}

	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		return plainText(p.Title)

	case *notionapi.RichTextProperty:
		return nonEmpty(plainText(p.RichText))

	case *notionapi.NumberProperty:
		return p.Number

	case *notionapi.CheckboxProperty:
		return p.Checkbox

	case *notionapi.SelectProperty:
		return nonEmpty(p.Select.Name)

	case *notionapi.StatusProperty:
		return nonEmpty(p.Status.Name)

	case *notionapi.MultiSelectProperty:
		values := make([]string, 0, len(p.MultiSelect))
		for _, opt := range p.MultiSelect {
			values = append(values, opt.Name)
		}
		return values

	case *notionapi.DateProperty:
		if v := NewDateValue(p.Date); v != nil {
			return *v
		}
		return nil

	case *notionapi.URLProperty:
		if !validURL(p.URL) {
			return nil
		}
		return p.URL

	case *notionapi.EmailProperty:
		if !validEmail(p.Email) {
			return nil
		}
		return p.Email

	case *notionapi.PhoneNumberProperty:
		return nonEmpty(p.PhoneNumber)

	case *notionapi.RelationProperty:
		ids := make([]string, 0, len(p.Relation))
		for _, rel := range p.Relation {
			ids = append(ids, string(rel.ID))
		}
		return nonEmptyList(ids)

	case *notionapi.PeopleProperty:
		names := make([]string, 0, len(p.People))
		for _, user := range p.People {
			if user.Name != "" {
				names = append(names, user.Name)
			}
		}
		return nonEmptyList(names)

	case *notionapi.FilesProperty:
		urls := make([]string, 0, len(p.Files))
		for _, f := range p.Files {
			switch {
			case f.File != nil && f.File.URL != "":
				urls = append(urls, f.File.URL)
			case f.External != nil && f.External.URL != "":
				urls = append(urls, f.External.URL)
			}
		}
		return nonEmptyList(urls)

	case *notionapi.FormulaProperty:
		return formulaValue(p.Formula)

	case *notionapi.RollupProperty:
		return rollupValue(p.Rollup)

	case *notionapi.CreatedTimeProperty:
		return timestamp(p.CreatedTime)

	case *notionapi.LastEditedTimeProperty:
		return timestamp(p.LastEditedTime)

	case *notionapi.CreatedByProperty:
		return nonEmpty(p.CreatedBy.Name)

	case *notionapi.LastEditedByProperty:
		return nonEmpty(p.LastEditedBy.Name)

	default:
		return prop
	}
}

func formulaValue(f notionapi.Formula) any {
	switch f.Type {
	case notionapi.FormulaTypeString:
		return nonEmpty(f.String)
	case notionapi.FormulaTypeNumber:
		return f.Number
	case notionapi.FormulaTypeBoolean:
		return f.Boolean
	case notionapi.FormulaTypeDate:
		if v := NewDateValue(f.Date); v != nil {
			return *v
		}
	}
	return nil
}

func rollupValue(r notionapi.Rollup) any {
	switch r.Type {
	case notionapi.RollupTypeNumber:
		return r.Number
	case notionapi.RollupTypeDate:
		if v := NewDateValue(r.Date); v != nil {
			return *v
		}
	case notionapi.RollupTypeArray:
		values := make([]any, 0, len(r.Array))
		for _, item := range r.Array {
			if v := Value(item); v != nil {
				values = append(values, v)
			}
		}
		if len(values) > 0 {
			return values
		}
	}
	return nil
}

// PageTitle returns the plain text of the page's title property.
func PageTitle(page *notionapi.Page) string {
	if page == nil {
		return ""
	}
	for _, prop := range page.Properties {
		if t, ok := prop.(*notionapi.TitleProperty); ok {
			return plainText(t.Title)
		}
	}
	return ""
}

func plainText(rt []notionapi.RichText) string {
	var sb strings.Builder
	for _, t := range rt {
		sb.WriteString(t.PlainText)
	}
	return sb.String()
}

func timestamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// nonEmpty returns nil for "" so the caller omits the key.
func nonEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonEmptyList(s []string) any {
	if len(s) == 0 {
		return nil
	}
	return s
}

func validURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func validEmail(raw string) bool {
	if raw == "" {
		return false
	}
	addr, err := mail.ParseAddress(raw)
	return err == nil && addr.Address == raw
}
