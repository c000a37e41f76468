// Package notion wraps the Notion API client with request pacing,
// rate-limit retries, cursor pagination, and ID parsing.
package notion

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrNoID is returned when an input carries no recognizable Notion ID.
var ErrNoID = errors.New("no Notion ID found")

var hexIDPattern = regexp.MustCompile(`[a-f0-9]{32}`)

// ParseID extracts a page or database ID from a share URL or a raw ID and
// returns it in canonical UUID form (8-4-4-4-12).
//
// Accepted inputs:
//   - https://www.notion.so/{workspace}/{title}-{id}?v={view}
//   - https://www.notion.so/{id}
//   - a 32-char hex ID, with or without dashes
func ParseID(input string) (string, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return "", fmt.Errorf("empty input: %w", ErrNoID)
	}

	if raw := rawID(input); raw != "" && !strings.Contains(input, "/") {
		return formatUUID(raw), nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parsing %q: %w", input, err)
	}

	// The ID lives in the last path segment that carries one; query
	// parameters (such as ?v= view IDs) are ignored.
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if raw := rawID(segments[i]); raw != "" {
			return formatUUID(raw), nil
		}
	}

	return "", fmt.Errorf("%q: %w", input, ErrNoID)
}

// rawID finds a 32-char hex ID in s, tolerating UUID dashes and title slugs.
func rawID(s string) string {
	if compact := strings.ReplaceAll(s, "-", ""); len(compact) == 32 && hexIDPattern.MatchString(compact) {
		return compact
	}

	// Title slugs end with the ID: My-Page-abc123...
	if len(s) >= 32 {
		if tail := s[len(s)-32:]; hexIDPattern.MatchString(tail) {
			return tail
		}
	}

	// UUID-formatted ID at the end of a slug.
	if len(s) >= 36 {
		if compact := strings.ReplaceAll(s[len(s)-36:], "-", ""); len(compact) == 32 && hexIDPattern.MatchString(compact) {
			return compact
		}
	}

	return ""
}

func formatUUID(raw string) string {
	return raw[0:8] + "-" + raw[8:12] + "-" + raw[12:16] + "-" + raw[16:20] + "-" + raw[20:32]
}
