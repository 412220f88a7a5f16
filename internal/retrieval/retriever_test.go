package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/patchgraph/internal/errors"
	"github.com/rohankatakam/patchgraph/internal/graph"
	"github.com/rohankatakam/patchgraph/internal/ingestion"
	"github.com/rohankatakam/patchgraph/internal/logging"
	"github.com/rohankatakam/patchgraph/internal/models"
)

const sourceURL = "https://playvalorant.com/en-us/news/game-updates/valorant-patch-notes-12-02/"

func testDocument() *models.PatchDocument {
	return &models.PatchDocument{
		Patch: models.Patch{ID: "12.02", Title: "VALORANT Patch Notes 12.02", URL: sourceURL},
		Sections: []models.Section{
			{ID: "12.02-s0", Name: "Agent Updates", Order: 0, Changes: []models.Change{
				{ID: "12.02-s0-c0", Text: "Reyna's Leer duration reduced from 3 to 1.5 seconds.", SectionName: "Agent Updates", SourceURL: sourceURL, Order: 0},
				{ID: "12.02-s0-c1", Text: "Harbor fixed a bug where Cove would not block bullets.", SectionName: "Agent Updates", SourceURL: sourceURL, Order: 1},
				{ID: "12.02-s0-c2", Text: "Reyna and Harbor both received voice line updates.", SectionName: "Agent Updates", SourceURL: sourceURL, Order: 2},
			}},
			{ID: "12.02-s1", Name: "Maps", Order: 1, Changes: []models.Change{
				{ID: "12.02-s1-c0", Text: "Harbor-side walls on Lotus were lowered.", SectionName: "Maps", SourceURL: sourceURL, Order: 0},
				{ID: "12.02-s1-c1", Text: "Fixed a bug where players could clip into walls on Lotus.", SectionName: "Maps", SourceURL: sourceURL, Order: 1},
			}},
		},
	}
}

var (
	reyna  = models.Agent{UUID: "a-reyna", Name: "Reyna", Abilities: []string{"Dismiss", "Leer"}, Aliases: []string{"Dismiss", "Leer", "Reyna"}}
	harbor = models.Agent{UUID: "a-harbor", Name: "Harbor", Abilities: []string{"Cove"}, Aliases: []string{"Cove", "Harbor"}}
)

// setupRetriever loads the test document into an in-memory store without a
// full-text index
func setupRetriever(t *testing.T, agents ...models.Agent) (*Retriever, graph.Store) {
	t.Helper()
	ctx := context.Background()

	store, err := graph.OpenSQLite(ctx, ":memory:", false, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(ctx) })

	m := ingestion.NewMaterializer(store, logging.Discard())
	_, err = m.Load(ctx, testDocument(), agents, ingestion.LoadOptions{ApplySchema: true})
	require.NoError(t, err)

	return NewRetriever(store, logging.Discard()), store
}

// setupFullTextRetriever loads the test document twice into an in-memory
// store with the FTS4 index
func setupFullTextRetriever(t *testing.T) *Retriever {
	t.Helper()
	ctx := context.Background()

	store, err := graph.OpenSQLite(ctx, ":memory:", true, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(ctx) })

	m := ingestion.NewMaterializer(store, logging.Discard())
	for i := 0; i < 2; i++ {
		_, err = m.Load(ctx, testDocument(), nil, ingestion.LoadOptions{ApplySchema: true})
		require.NoError(t, err)
	}
	return NewRetriever(store, logging.Discard())
}

func changeIDs(changes []models.RetrievedChange) []string {
	ids := make([]string, len(changes))
	for i, c := range changes {
		ids[i] = c.ChangeID
	}
	return ids
}

func TestRetrieve_EntityPath(t *testing.T) {
	r, _ := setupRetriever(t, reyna, harbor)

	result, err := r.Retrieve(context.Background(), "What changed for reyna?", 0)
	require.NoError(t, err)

	assert.Equal(t, PathEntity, result.Path)
	assert.Equal(t, []string{"Reyna"}, result.MatchedAgents)
	assert.Equal(t, []string{"12.02-s0-c0", "12.02-s0-c2"}, changeIDs(result.Changes))

	first := result.Changes[0]
	assert.Equal(t, "12.02", first.PatchID)
	assert.Equal(t, "Agent Updates", first.SectionName)
	assert.Equal(t, 10.0, first.Score)
	require.NotNil(t, first.SourceURL)
	assert.Equal(t, sourceURL, *first.SourceURL)
	assert.Equal(t, []string{"Reyna"}, first.Agents)

	// every agent the change mentions is attached, not only the queried one
	assert.Equal(t, []string{"Harbor", "Reyna"}, result.Changes[1].Agents)
}

func TestRetrieve_EntityPathOrdersLongestAliasFirst(t *testing.T) {
	r, _ := setupRetriever(t, reyna, harbor)

	result, err := r.Retrieve(context.Background(), "is cove better than leer, harbor or reyna?", 8)
	require.NoError(t, err)

	assert.Equal(t, []string{"Harbor", "Reyna"}, result.MatchedAgents)
	assert.Equal(t, []string{"12.02-s0-c0", "12.02-s0-c1", "12.02-s0-c2", "12.02-s1-c0"}, changeIDs(result.Changes))
}

func TestRetrieve_EntityPathTruncates(t *testing.T) {
	r, _ := setupRetriever(t, reyna, harbor)

	result, err := r.Retrieve(context.Background(), "harbor", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"12.02-s0-c1", "12.02-s0-c2"}, changeIDs(result.Changes))
}

func TestRetrieve_FallbackWithoutFullTextIndex(t *testing.T) {
	// no agents loaded, so "Harbor" is plain text
	r, _ := setupRetriever(t)

	result, err := r.Retrieve(context.Background(), "Harbor", 8)
	require.NoError(t, err)

	assert.Equal(t, PathFallback, result.Path)
	assert.Empty(t, result.MatchedAgents)
	assert.Equal(t, []string{"12.02-s0-c1", "12.02-s0-c2", "12.02-s1-c0"}, changeIDs(result.Changes))
	for _, c := range result.Changes {
		assert.Equal(t, 1.0, c.Score)
		assert.Contains(t, c.Text, "Harbor")
		assert.Empty(t, c.Agents)
	}
}

func TestRetrieve_FallbackMatchesSectionName(t *testing.T) {
	r, _ := setupRetriever(t)

	result, err := r.Retrieve(context.Background(), "MAPS", 8)
	require.NoError(t, err)
	assert.Equal(t, []string{"12.02-s1-c0", "12.02-s1-c1"}, changeIDs(result.Changes))
}

func TestRetrieve_NoMatches(t *testing.T) {
	r, _ := setupRetriever(t, reyna)

	result, err := r.Retrieve(context.Background(), "spike plant timer", 8)
	require.NoError(t, err)
	assert.Empty(t, result.MatchedAgents)
	assert.Empty(t, result.Changes)
	assert.NotNil(t, result.Changes)
}

// fullTextStore overrides FullTextQuery on a real store
type fullTextStore struct {
	graph.Store
	rows  []graph.Row
	err   error
	calls int
}

func (s *fullTextStore) FullTextQuery(ctx context.Context, field, text string, limit int) ([]graph.Row, error) {
	s.calls++
	return s.rows, s.err
}

func TestRetrieve_FullTextPath(t *testing.T) {
	_, store := setupRetriever(t)
	ft := &fullTextStore{Store: store, rows: []graph.Row{
		graph.NewRow(
			[]string{graph.FieldChangeID, graph.FieldPatchID, graph.FieldSectionName, graph.FieldText, graph.FieldSourceURL, graph.FieldAgents, graph.FieldScore},
			[]any{"12.02-s1-c1", "12.02", "Maps", "Fixed a bug where players could clip into walls on Lotus.", nil, []any{"Reyna", "Reyna", ""}, 2.75},
		),
	}}
	r := NewRetriever(ft, logging.Discard())

	result, err := r.Retrieve(context.Background(), "clip walls", 8)
	require.NoError(t, err)

	assert.Equal(t, PathFullText, result.Path)
	assert.Equal(t, 1, ft.calls)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, 2.75, result.Changes[0].Score)
	assert.Nil(t, result.Changes[0].SourceURL)
	assert.Equal(t, []string{"Reyna"}, result.Changes[0].Agents)
}

func TestRetrieve_OtherSearchErrorsPropagate(t *testing.T) {
	_, store := setupRetriever(t)
	ft := &fullTextStore{Store: store, err: errors.NetworkError("connection reset")}
	r := NewRetriever(ft, logging.Discard())

	_, err := r.Retrieve(context.Background(), "clip walls", 8)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeNetwork, errors.GetType(err))
}

func TestRetrieve_WrappedCapabilityErrorFallsBack(t *testing.T) {
	_, store := setupRetriever(t)
	ft := &fullTextStore{Store: store, err: errors.CapabilityErrorf(assert.AnError, "index missing")}
	r := NewRetriever(ft, logging.Discard())

	result, err := r.Retrieve(context.Background(), "lotus", 8)
	require.NoError(t, err)
	assert.Equal(t, PathFallback, result.Path)
	assert.Len(t, result.Changes, 2)
}

func TestResolveAgents_CapsAtFour(t *testing.T) {
	agents := []models.Agent{
		{UUID: "1", Name: "Astra", Aliases: []string{"astra"}},
		{UUID: "2", Name: "Breach", Aliases: []string{"breach"}},
		{UUID: "3", Name: "Chamber", Aliases: []string{"chamber"}},
		{UUID: "4", Name: "Deadlock", Aliases: []string{"deadlock"}},
		{UUID: "5", Name: "Fade", Aliases: []string{"fade"}},
	}
	r, _ := setupRetriever(t, agents...)

	matches, err := r.resolveAgents(context.Background(), "astra breach chamber deadlock fade")
	require.NoError(t, err)
	require.Len(t, matches, 4)

	var names []string
	for _, m := range matches {
		names = append(names, m.name)
	}
	assert.Equal(t, []string{"Deadlock", "Chamber", "Breach", "Astra"}, names)
}

func TestRetrieve_FullTextIndexAfterReload(t *testing.T) {
	r := setupFullTextRetriever(t)

	result, err := r.Retrieve(context.Background(), "walls Lotus", 8)
	require.NoError(t, err)

	assert.Equal(t, PathFullText, result.Path)
	assert.Equal(t, []string{"12.02-s1-c0", "12.02-s1-c1"}, changeIDs(result.Changes))
	assert.Greater(t, result.Changes[0].Score, result.Changes[1].Score)
	assert.Equal(t, "Maps", result.Changes[0].SectionName)
	require.NotNil(t, result.Changes[0].SourceURL)
	assert.Equal(t, sourceURL, *result.Changes[0].SourceURL)

	result, err = r.Retrieve(context.Background(), "walls Lotus", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"12.02-s1-c0"}, changeIDs(result.Changes))
}

func TestRetrieve_BlankQueryMatchesNothing(t *testing.T) {
	substring, _ := setupRetriever(t)
	fullText := setupFullTextRetriever(t)

	for name, r := range map[string]*Retriever{"substring": substring, "full_text": fullText} {
		t.Run(name, func(t *testing.T) {
			result, err := r.Retrieve(context.Background(), "   ", 8)
			require.NoError(t, err)
			assert.NotNil(t, result.Changes)
			assert.Empty(t, result.Changes)
			assert.Empty(t, result.MatchedAgents)
		})
	}
}
