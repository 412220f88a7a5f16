package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/patchgraph/internal/config"
	"github.com/rohankatakam/patchgraph/internal/errors"
	"github.com/rohankatakam/patchgraph/internal/graph"
	"github.com/rohankatakam/patchgraph/internal/logging"
	"github.com/rohankatakam/patchgraph/internal/patchnotes"
)

const (
	listingURL = "https://playvalorant.com/en-us/news/tags/patch-notes/"
	agentsURL  = "https://valorant-api.com/v1/agents?isPlayableCharacter=true"
)

// stubGetter serves canned bodies by URL
type stubGetter struct {
	pages map[string][]byte
	calls []string
}

func (g *stubGetter) Get(ctx context.Context, url string) ([]byte, error) {
	g.calls = append(g.calls, url)
	body, ok := g.pages[url]
	if !ok {
		return nil, errors.NetworkError(fmt.Sprintf("GET %s returned HTTP 404", url))
	}
	return body, nil
}

func fixtureGetter(t *testing.T) *stubGetter {
	return &stubGetter{pages: map[string][]byte{
		listingURL: loadFixture(t, "listing.html"),
		articleURL: loadFixture(t, "article.html"),
		agentsURL:  loadFixture(t, "agents.json"),
	}}
}

func testSources() config.SourcesConfig {
	return config.SourcesConfig{
		ListingURL:   listingURL,
		BaseURL:      listingURL,
		AgentsAPIURL: agentsURL,
	}
}

func TestPipeline_Run(t *testing.T) {
	store := setupStore(t)
	getter := fixtureGetter(t)
	p := NewPipeline(getter, NewMaterializer(store, logging.Discard()), testSources(), logging.Discard())
	outDir := filepath.Join(t.TempDir(), "data")

	result, err := p.Run(context.Background(), RunOptions{OutputDir: outDir, ApplySchema: true})
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "12.02", result.Link.PatchID)
	assert.Equal(t, articleURL, result.Link.URL)
	assert.Equal(t, "12.02", result.Document.Patch.ID)
	require.NotNil(t, result.Roster)
	assert.Len(t, result.Roster.Agents, 2)
	assert.Equal(t, 2, result.Stats.AgentLinks)
	assert.Equal(t, []string{listingURL, articleURL, agentsURL}, getter.calls)

	assert.Equal(t, []string{
		filepath.Join(outDir, CurrentPatchFile),
		filepath.Join(outDir, "patch_12.02.json"),
		filepath.Join(outDir, AgentsFile),
	}, result.Artifacts)
	for _, path := range result.Artifacts {
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}

	doc, err := ReadPatchDocument(filepath.Join(outDir, "patch_12.02.json"))
	require.NoError(t, err)
	assert.Equal(t, result.Document, doc)

	// the graph holds a mention edge from the Leer change to Reyna
	rows, err := store.Query(context.Background(), graph.Query{
		Pattern: graph.PatternChangesByAgents,
		Params:  graph.Params{"agent_uuids": []string{"a-reyna"}, "limit": 8},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0].String("text"), "Leer")
}

func TestPipeline_RunSkipAgents(t *testing.T) {
	store := setupStore(t)
	getter := fixtureGetter(t)
	p := NewPipeline(getter, NewMaterializer(store, logging.Discard()), testSources(), logging.Discard())
	outDir := t.TempDir()

	result, err := p.Run(context.Background(), RunOptions{OutputDir: outDir, SkipAgents: true, ApplySchema: true})
	require.NoError(t, err)

	assert.Nil(t, result.Roster)
	assert.Equal(t, 0, result.Stats.Agents)
	assert.Equal(t, 0, result.Stats.AgentLinks)
	assert.Len(t, result.Artifacts, 2)
	assert.NotContains(t, getter.calls, agentsURL)

	_, err = os.Stat(filepath.Join(outDir, AgentsFile))
	assert.True(t, os.IsNotExist(err))
}

func TestPipeline_NoCandidatesIsFatal(t *testing.T) {
	store := setupStore(t)
	getter := &stubGetter{pages: map[string][]byte{
		listingURL: []byte(`<html><body><a href="/en-us/news/tags/patch-notes/">Patch Notes</a></body></html>`),
	}}
	p := NewPipeline(getter, NewMaterializer(store, logging.Discard()), testSources(), logging.Discard())

	_, err := p.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, patchnotes.ErrNoCandidatesFound)
	assert.Equal(t, []string{listingURL}, getter.calls)
}

func TestPipeline_FetchErrorPropagates(t *testing.T) {
	store := setupStore(t)
	getter := &stubGetter{pages: map[string][]byte{listingURL: loadFixture(t, "listing.html")}}
	p := NewPipeline(getter, NewMaterializer(store, logging.Discard()), testSources(), logging.Discard())

	_, err := p.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeNetwork, errors.GetType(err))
}

func TestReadPatchDocument_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadPatchDocument(filepath.Join(dir, "missing.json"))
	assert.Equal(t, errors.ErrorTypeFileSystem, errors.GetType(err))

	path := filepath.Join(dir, "empty.json")
	require.NoError(t, WriteJSON(path, map[string]any{"patch": map[string]any{}}))
	_, err = ReadPatchDocument(path)
	assert.Equal(t, errors.ErrorTypeValidation, errors.GetType(err))
}
