package patchnotes

import (
	"fmt"
	"strings"

	"github.com/rohankatakam/patchgraph/internal/htmlscan"
	"github.com/rohankatakam/patchgraph/internal/models"
)

// rawSection accumulates change text before ids are assigned
type rawSection struct {
	name    string
	changes []string
}

type dedupeKey struct {
	section string
	text    string
}

// ParseArticle segments a scanned article page into a PatchDocument.
// The result depends only on the markup, the source URL and the rules, so
// re-parsing identical input yields identical ids.
func ParseArticle(doc *htmlscan.Document, sourceURL string, rules Rules) *models.PatchDocument {
	events := scopedEvents(doc)
	title := extractTitle(doc, events)

	patchID := FindPatchID(title, sourceURL)
	if patchID == "" {
		patchID = LatestPatchID
	}

	raw := segment(events, rules)

	return &models.PatchDocument{
		Patch: models.Patch{
			ID:          patchID,
			Title:       title,
			URL:         sourceURL,
			PublishedAt: extractPublishedAt(doc, events),
		},
		Sections: assignIDs(raw, patchID, sourceURL),
	}
}

// ParseArticleHTML scans markup and segments it with the default rules
func ParseArticleHTML(markup, sourceURL string) *models.PatchDocument {
	return ParseArticle(htmlscan.Scan(markup), sourceURL, DefaultRules())
}

// scopedEvents narrows to the article body: events under <article>, else
// under <main>, else everything.
func scopedEvents(doc *htmlscan.Document) []htmlscan.Event {
	for _, container := range []string{"article", "main"} {
		var scoped []htmlscan.Event
		for _, ev := range doc.Events {
			if ev.HasAncestor(container) {
				scoped = append(scoped, ev)
			}
		}
		if len(scoped) > 0 {
			return scoped
		}
	}
	return doc.Events
}

func extractMeta(doc *htmlscan.Document, key, value string) string {
	for _, meta := range doc.Metas {
		if meta[key] != value {
			continue
		}
		if content := htmlscan.NormalizeSpace(meta["content"]); content != "" {
			return content
		}
	}
	return ""
}

func extractTitle(doc *htmlscan.Document, events []htmlscan.Event) string {
	if og := extractMeta(doc, "property", "og:title"); og != "" {
		return og
	}
	for _, ev := range events {
		if ev.Tag == "h1" && ev.Text != "" {
			return ev.Text
		}
	}
	if doc.Title != "" {
		return doc.Title
	}
	return DefaultTitle
}

func extractPublishedAt(doc *htmlscan.Document, events []htmlscan.Event) *string {
	if published := extractMeta(doc, "property", "article:published_time"); published != "" {
		return &published
	}
	for _, ev := range events {
		if ev.Tag != "time" {
			continue
		}
		if dt := htmlscan.NormalizeSpace(ev.Attr("datetime")); dt != "" {
			return &dt
		}
		if ev.Text != "" {
			text := ev.Text
			return &text
		}
	}
	return nil
}

// segment walks headings and list items in order. Changes land in the
// current section; identical text within one section is kept once.
func segment(events []htmlscan.Event, rules Rules) []*rawSection {
	sections := []*rawSection{{name: generalSection}}
	current := sections[0]
	seen := make(map[dedupeKey]bool)

	for _, ev := range events {
		switch ev.Tag {
		case "h2", "h3", "li", "p":
		default:
			continue
		}

		text := htmlscan.NormalizeSpace(ev.Text)
		if text == "" {
			continue
		}

		if ev.Tag == "h2" || ev.Tag == "h3" {
			if strings.ToLower(text) == endOfContentHeading {
				break
			}
			if rules.ShouldKeepHeading(text) {
				current = &rawSection{name: text}
				sections = append(sections, current)
			}
			continue
		}

		// list items already carry their paragraphs' text
		if ev.Tag == "p" && ev.HasAncestor("li") {
			continue
		}

		if !rules.ShouldKeepChange(text) {
			continue
		}
		key := dedupeKey{section: current.name, text: text}
		if seen[key] {
			continue
		}
		seen[key] = true
		current.changes = append(current.changes, text)
	}

	return sections
}

// assignIDs drops empty sections and numbers the rest densely. Section order
// keeps the encounter index, including the implicit General section.
func assignIDs(raw []*rawSection, patchID, sourceURL string) []models.Section {
	sections := []models.Section{}
	for index, rs := range raw {
		if len(rs.changes) == 0 {
			continue
		}

		sectionID := fmt.Sprintf("%s-s%d", patchID, len(sections))
		changes := make([]models.Change, len(rs.changes))
		for i, text := range rs.changes {
			changes[i] = models.Change{
				ID:          fmt.Sprintf("%s-c%d", sectionID, i),
				Text:        text,
				SectionName: rs.name,
				SourceURL:   sourceURL,
				Order:       i,
			}
		}

		sections = append(sections, models.Section{
			ID:      sectionID,
			Name:    rs.name,
			Order:   index,
			Changes: changes,
		})
	}
	return sections
}
