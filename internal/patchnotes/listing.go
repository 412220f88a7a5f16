package patchnotes

import (
	"net/url"
	"strings"

	"github.com/rohankatakam/patchgraph/internal/errors"
	"github.com/rohankatakam/patchgraph/internal/htmlscan"
	"github.com/rohankatakam/patchgraph/internal/models"
)

// ErrNoCandidatesFound is returned when a listing page has no qualifying
// patch-notes links. It is fatal to the pipeline run.
var ErrNoCandidatesFound = errors.NotFoundError("no patch-notes links found on listing page")

// linkCandidate is an anchor that points at a patch-notes article
type linkCandidate struct {
	title      string
	url        string
	version    Version
	hasVersion bool
	order      int
}

// ExtractCurrentPatchLink picks the current release-notes article from a
// listing page. The highest version wins; ties go to the earliest anchor.
// Without any parsable version the earliest anchor wins.
func ExtractCurrentPatchLink(doc *htmlscan.Document, baseURL string, rules Rules) (*models.PatchLink, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.ValidationErrorf("invalid base URL %q: %v", baseURL, err)
	}

	var candidates []linkCandidate
	seen := make(map[string]bool)

	for index, anchor := range doc.EventsWithTag("a") {
		href := strings.TrimSpace(anchor.Attr("href"))
		if href == "" {
			continue
		}
		lowered := strings.ToLower(href)
		if !strings.Contains(lowered, rules.ArticleMarker) {
			continue
		}
		if strings.Contains(lowered, rules.ListingMarker) {
			continue
		}
		if !strings.Contains(lowered, rules.NewsSegment) {
			continue
		}

		resolved := resolveURL(base, href)
		if seen[resolved] {
			continue
		}
		seen[resolved] = true

		title := htmlscan.NormalizeSpace(anchor.Text)
		version, ok := ParseListingVersion(resolved)
		if !ok {
			version, ok = ParseListingVersion(title)
		}
		if title == "" {
			title = DefaultTitle
		}

		candidates = append(candidates, linkCandidate{
			title:      title,
			url:        resolved,
			version:    version,
			hasVersion: ok,
			order:      index,
		})
	}

	if len(candidates) == 0 {
		return nil, ErrNoCandidatesFound
	}

	selected := selectCandidate(candidates)
	link := &models.PatchLink{
		Title: selected.title,
		URL:   selected.url,
	}
	if selected.hasVersion {
		link.PatchID = selected.version.String()
	}
	return link, nil
}

// selectCandidate relies on candidates being in document order, so a strict
// comparison keeps the earliest of equal versions.
func selectCandidate(candidates []linkCandidate) linkCandidate {
	var best *linkCandidate
	for i := range candidates {
		c := &candidates[i]
		if !c.hasVersion {
			continue
		}
		if best == nil || best.version.Less(c.version) {
			best = c
		}
	}
	if best != nil {
		return *best
	}
	return candidates[0]
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
