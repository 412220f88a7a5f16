package patchnotes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rohankatakam/patchgraph/internal/errors"
	"github.com/rohankatakam/patchgraph/internal/htmlscan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingURL = "https://playvalorant.com/en-us/news/tags/patch-notes/"

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

func TestExtractCurrentPatchLink_Fixture(t *testing.T) {
	doc := htmlscan.Scan(loadFixture(t, "listing.html"))

	link, err := ExtractCurrentPatchLink(doc, listingURL, DefaultRules())
	require.NoError(t, err)

	assert.Equal(t, "https://playvalorant.com/en-us/news/game-updates/valorant-patch-notes-12-02/", link.URL)
	assert.Equal(t, "VALORANT Patch Notes 12.02", link.Title)
	assert.Equal(t, "12.02", link.PatchID)
}

func TestExtractCurrentPatchLink_TieGoesToEarliest(t *testing.T) {
	markup := `
		<a href="/en-us/news/game-updates/valorant-patch-notes-11-01/">Older</a>
		<a href="/en-us/news/game-updates/valorant-patch-notes-11-02/">First of two</a>
		<a href="/en-us/news/game-updates/patch-notes-11-02-recap/">Second of two</a>`

	link, err := ExtractCurrentPatchLink(htmlscan.Scan(markup), listingURL, DefaultRules())
	require.NoError(t, err)

	assert.Equal(t, "First of two", link.Title)
	assert.Equal(t, "https://playvalorant.com/en-us/news/game-updates/valorant-patch-notes-11-02/", link.URL)
	assert.Equal(t, "11.02", link.PatchID)
}

func TestExtractCurrentPatchLink_VersionFromAnchorText(t *testing.T) {
	markup := `
		<a href="/en-us/news/game-updates/patch-notes-latest/">Patch Notes 9.10</a>
		<a href="/en-us/news/game-updates/patch-notes-older/">Patch Notes 9.08</a>`

	link, err := ExtractCurrentPatchLink(htmlscan.Scan(markup), listingURL, DefaultRules())
	require.NoError(t, err)
	assert.Equal(t, "9.10", link.PatchID)
}

func TestExtractCurrentPatchLink_NoVersionTakesFirst(t *testing.T) {
	markup := `
		<a href="/en-us/news/game-updates/patch-notes-alpha/"></a>
		<a href="/en-us/news/game-updates/patch-notes-beta/">Beta</a>`

	link, err := ExtractCurrentPatchLink(htmlscan.Scan(markup), listingURL, DefaultRules())
	require.NoError(t, err)

	assert.Equal(t, "https://playvalorant.com/en-us/news/game-updates/patch-notes-alpha/", link.URL)
	assert.Equal(t, DefaultTitle, link.Title)
	assert.Empty(t, link.PatchID)
}

func TestExtractCurrentPatchLink_NoCandidates(t *testing.T) {
	markup := `
		<a href="/en-us/news/tags/patch-notes/">Listing</a>
		<a href="/en-us/patch-notes-archive/">Archive</a>
		<a>No href</a>`

	link, err := ExtractCurrentPatchLink(htmlscan.Scan(markup), listingURL, DefaultRules())
	assert.Nil(t, link)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCandidatesFound)
	assert.Equal(t, errors.ErrorTypeNotFound, errors.GetType(err))
}

func TestExtractCurrentPatchLink_InvalidBase(t *testing.T) {
	_, err := ExtractCurrentPatchLink(&htmlscan.Document{}, "://bad", DefaultRules())
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeValidation, errors.GetType(err))
}

func TestVersion(t *testing.T) {
	v, ok := ParseListingVersion("valorant-patch-notes-8-1")
	require.True(t, ok)
	assert.Equal(t, "8.01", v.String())
	assert.True(t, Version{Major: 8, Minor: 11}.Less(Version{Major: 9, Minor: 0}))
	assert.False(t, Version{Major: 9, Minor: 2}.Less(Version{Major: 9, Minor: 2}))

	_, ok = ParseListingVersion("no digits here")
	assert.False(t, ok)

	assert.Equal(t, "12.02", FindPatchID("VALORANT Patch Notes 12.02", "https://x/12-03"))
	assert.Equal(t, "12.03", FindPatchID("Patch Notes", "https://x/notes-12-03/"))
	assert.Equal(t, "", FindPatchID("Patch Notes"))
}
