package render

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Slugger produces unique heading slugs within one document.
type Slugger struct {
	seen map[string]int
}

// NewSlugger returns an empty slugger.
func NewSlugger() *Slugger {
	return &Slugger{seen: make(map[string]int)}
}

// Slug returns a slug for text. Repeats get -1, -2, ... suffixes.
func (s *Slugger) Slug(text string) string {
	base := Slugify(text)
	if base == "" {
		base = "section"
	}

	slug := base
	if n, ok := s.seen[base]; ok {
		for {
			n++
			slug = base + "-" + strconv.Itoa(n)
			if _, taken := s.seen[slug]; !taken {
				break
			}
		}
		s.seen[base] = n
	}
	s.seen[slug] = 0
	return slug
}

// Slugify lowercases text, strips diacritics and punctuation, and joins
// words with hyphens.
func Slugify(text string) string {
	var sb strings.Builder
	for _, r := range norm.NFKD.String(strings.ToLower(text)) {
		switch {
		case unicode.Is(unicode.Mn, r):
		case unicode.IsLetter(r), unicode.IsDigit(r):
			sb.WriteRune(r)
		case r == '-' || r == '_' || unicode.IsSpace(r):
			sb.WriteRune('-')
		}
	}

	// Collapse runs of hyphens.
	parts := strings.FieldsFunc(sb.String(), func(r rune) bool { return r == '-' })
	return strings.Join(parts, "-")
}
