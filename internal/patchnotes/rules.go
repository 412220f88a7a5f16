// Package patchnotes interprets scanned release-note pages: it picks the
// current article off a listing page and segments an article into sections
// and changes.
package patchnotes

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultTitle is used when neither the page nor the anchor carries a title
const DefaultTitle = "Valorant Patch Notes"

// LatestPatchID is the patch id used when no version can be parsed
const LatestPatchID = "latest"

// generalSection collects changes seen before the first kept heading
const generalSection = "General"

// endOfContentHeading stops segmentation when seen as an h2/h3
const endOfContentHeading = "related articles"

// isoDateTimePattern matches lower-cased ISO-8601 date-times such as 2026-02-03t10:00
var isoDateTimePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}t\d{2}:\d{2}`)

// Rules holds the site-tuned literals used by link extraction and
// segmentation. DefaultRules preserves the values the extractor was tuned
// against; callers override fields rather than editing the defaults.
type Rules struct {
	// Link extraction
	ArticleMarker string // substring every patch-notes article href contains
	NewsSegment   string // path segment every article href contains
	ListingMarker string // substring identifying the listing page itself

	// Segmentation
	NoiseHeadings   map[string]bool
	NoiseChanges    map[string]bool
	MinChangeLength int
	MaxChangeLength int
}

// DefaultRules returns the rules tuned for playvalorant.com
func DefaultRules() Rules {
	return Rules{
		ArticleMarker: "patch-notes",
		NewsSegment:   "/news/",
		ListingMarker: "/news/tags/patch-notes",
		NoiseHeadings: map[string]bool{
			"share":            true,
			"copy link":        true,
			"riot games":       true,
			"news":             true,
			"play now":         true,
			"related articles": true,
		},
		NoiseChanges: map[string]bool{
			"share":      true,
			"copy link":  true,
			"read more":  true,
			"learn more": true,
		},
		MinChangeLength: 12,
		MaxChangeLength: 500,
	}
}

// ShouldKeepHeading reports whether a heading starts a new section
func (r Rules) ShouldKeepHeading(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return false
	}
	return !r.NoiseHeadings[normalized]
}

// ShouldKeepChange reports whether text is a real change entry rather than
// navigation, sharing widgets, timestamps, or fragments.
func (r Rules) ShouldKeepChange(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return false
	}
	if r.NoiseChanges[normalized] {
		return false
	}
	if strings.HasPrefix(normalized, endOfContentHeading) {
		return false
	}
	// breadcrumbs like "Game Updates / Patch Notes"
	if strings.Contains(normalized, "game updates") && strings.Contains(normalized, "patch notes") {
		return false
	}
	if isoDateTimePattern.MatchString(normalized) {
		return false
	}

	length := utf8.RuneCountInString(normalized)
	return length >= r.MinChangeLength && length <= r.MaxChangeLength
}
