package patchnotes

import (
	"testing"

	"github.com/rohankatakam/patchgraph/internal/htmlscan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleURL = "https://playvalorant.com/en-us/news/game-updates/valorant-patch-notes-12-02/"

func TestParseArticle_Fixture(t *testing.T) {
	doc := ParseArticleHTML(loadFixture(t, "article.html"), articleURL)

	assert.Equal(t, "12.02", doc.Patch.ID)
	assert.Equal(t, "VALORANT Patch Notes 12.02", doc.Patch.Title)
	assert.Equal(t, articleURL, doc.Patch.URL)
	require.NotNil(t, doc.Patch.PublishedAt)
	assert.Equal(t, "2026-02-03", *doc.Patch.PublishedAt)

	require.Len(t, doc.Sections, 3)

	general := doc.Sections[0]
	assert.Equal(t, "12.02-s0", general.ID)
	assert.Equal(t, "General", general.Name)
	assert.Equal(t, 0, general.Order)
	require.Len(t, general.Changes, 1)
	assert.Equal(t, "Welcome to the second patch of the year, with agent and map tuning.", general.Changes[0].Text)

	agents := doc.Sections[1]
	assert.Equal(t, "12.02-s1", agents.ID)
	assert.Equal(t, "Agent Updates", agents.Name)
	assert.Equal(t, 1, agents.Order)
	require.Len(t, agents.Changes, 2)
	assert.Equal(t, "12.02-s1-c0", agents.Changes[0].ID)
	assert.Equal(t, "Reyna's Leer duration reduced from 2s to 1.6s.", agents.Changes[0].Text)
	assert.Equal(t, "Agent Updates", agents.Changes[0].SectionName)
	assert.Equal(t, articleURL, agents.Changes[0].SourceURL)
	assert.Equal(t, 0, agents.Changes[0].Order)
	assert.Equal(t, "12.02-s1-c1", agents.Changes[1].ID)
	assert.Equal(t, "Harbor's Cove shield health increased to 500.", agents.Changes[1].Text)
	assert.Equal(t, 1, agents.Changes[1].Order)

	// empty headings are dropped but still count toward encounter order
	maps := doc.Sections[2]
	assert.Equal(t, "12.02-s2", maps.ID)
	assert.Equal(t, "Maps", maps.Name)
	assert.Equal(t, 4, maps.Order)
	require.Len(t, maps.Changes, 1)
	assert.Equal(t, "12.02-s2-c0", maps.Changes[0].ID)

	assert.Equal(t, 4, doc.ChangeCount())
	for _, s := range doc.Sections {
		for _, c := range s.Changes {
			assert.NotContains(t, c.Text, "12.01", "content after related articles must be ignored")
		}
	}
}

func TestParseArticle_Idempotent(t *testing.T) {
	markup := loadFixture(t, "article.html")

	first := ParseArticleHTML(markup, articleURL)
	second := ParseArticleHTML(markup, articleURL)
	assert.Equal(t, first, second)
}

func TestParseArticle_TitleFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		markup  string
		url     string
		title   string
		patchID string
	}{
		{
			name:    "first h1 without og:title",
			markup:  `<html><head><title>Doc Title</title></head><body><h1>Patch Notes 10.04</h1></body></html>`,
			url:     "https://example.com/news/notes/",
			title:   "Patch Notes 10.04",
			patchID: "10.04",
		},
		{
			name:    "document title",
			markup:  `<html><head><title>Release Summary</title></head><body></body></html>`,
			url:     "https://example.com/news/patch-notes-9-5/",
			title:   "Release Summary",
			patchID: "9.05",
		},
		{
			name:    "default title and latest id",
			markup:  `<p>No headings at all in this page.</p>`,
			url:     "https://example.com/news/notes/",
			title:   DefaultTitle,
			patchID: LatestPatchID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := ParseArticleHTML(tt.markup, tt.url)
			assert.Equal(t, tt.title, doc.Patch.Title)
			assert.Equal(t, tt.patchID, doc.Patch.ID)
		})
	}
}

func TestParseArticle_PublishedFromTimeElement(t *testing.T) {
	withAttr := ParseArticleHTML(`<article><time datetime="2026-01-10T09:00:00Z">Jan 10</time></article>`, articleURL)
	require.NotNil(t, withAttr.Patch.PublishedAt)
	assert.Equal(t, "2026-01-10T09:00:00Z", *withAttr.Patch.PublishedAt)

	textOnly := ParseArticleHTML(`<article><time>January 10, 2026</time></article>`, articleURL)
	require.NotNil(t, textOnly.Patch.PublishedAt)
	assert.Equal(t, "January 10, 2026", *textOnly.Patch.PublishedAt)

	none := ParseArticleHTML(`<article><p>Nothing dated in this article.</p></article>`, articleURL)
	assert.Nil(t, none.Patch.PublishedAt)
}

func TestParseArticle_ScopesToArticleThenMain(t *testing.T) {
	markup := `<body>
		<p>Footer text that should never appear.</p>
		<main><p>Main paragraph with enough text.</p></main>
	</body>`

	doc := ParseArticleHTML(markup, articleURL)
	require.Len(t, doc.Sections, 1)
	require.Len(t, doc.Sections[0].Changes, 1)
	assert.Equal(t, "Main paragraph with enough text.", doc.Sections[0].Changes[0].Text)
}

func TestParseArticle_SameTextInDifferentSections(t *testing.T) {
	markup := `<article>
		<h2>Jett</h2><ul><li>Dash cooldown increased to 12s.</li></ul>
		<h2>Neon</h2><ul><li>Dash cooldown increased to 12s.</li></ul>
	</article>`

	doc := ParseArticleHTML(markup, articleURL)
	require.Len(t, doc.Sections, 2)
	assert.Equal(t, "Jett", doc.Sections[0].Name)
	assert.Equal(t, 1, doc.Sections[0].Order)
	assert.Equal(t, "Neon", doc.Sections[1].Name)
	assert.Len(t, doc.Sections[1].Changes, 1)
}

func TestParseArticle_EmptyDocument(t *testing.T) {
	// neither the title nor the URL carries a version
	doc := ParseArticle(&htmlscan.Document{}, "https://playvalorant.com/en-us/news/", DefaultRules())
	assert.Equal(t, LatestPatchID, doc.Patch.ID)
	assert.NotNil(t, doc.Sections)
	assert.Empty(t, doc.Sections)

	// an empty article still takes its version from the URL
	doc = ParseArticle(&htmlscan.Document{}, articleURL, DefaultRules())
	assert.Equal(t, "12.02", doc.Patch.ID)
}

func TestRules_ShouldKeepChange(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		text string
		keep bool
	}{
		{"Share", false},
		{"Read more", false},
		{"Related Articles and more links", false},
		{"Game Updates / Patch Notes", false},
		{"2026-02-03T17:00:00.000Z", false},
		{"short one", false},
		{"Exactly twelve", true},
		{"Sova's Recon Bolt now reveals for longer.", true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.keep, rules.ShouldKeepChange(tt.text))
		})
	}

	rules.MaxChangeLength = 20
	assert.False(t, rules.ShouldKeepChange("Sova's Recon Bolt now reveals for longer."))
}

func TestRules_ShouldKeepHeading(t *testing.T) {
	rules := DefaultRules()
	assert.False(t, rules.ShouldKeepHeading("  Copy Link "))
	assert.False(t, rules.ShouldKeepHeading(""))
	assert.True(t, rules.ShouldKeepHeading("Agent Updates"))
}
