package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/patchgraph/internal/logging"
	"github.com/rohankatakam/patchgraph/internal/models"
	"github.com/rohankatakam/patchgraph/internal/output"
	"github.com/rohankatakam/patchgraph/internal/retrieval"
)

type stubRetriever struct {
	result *retrieval.Result
	err    error
	query  string
	k      int
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, k int) (*retrieval.Result, error) {
	s.query, s.k = query, k
	return s.result, s.err
}

var testImpl = &sdk.Implementation{Name: "patchgraph-test", Version: "0.1.0"}

func connect(t *testing.T, r Retriever) *sdk.ClientSession {
	t.Helper()
	srv := NewServer(r, "test", logging.Discard())

	serverT, clientT := sdk.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	session, err := sdk.NewClient(testImpl, nil).Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func callQuery(t *testing.T, session *sdk.ClientSession, args map[string]any) *sdk.CallToolResult {
	t.Helper()
	result, err := session.CallTool(context.Background(), &sdk.CallToolParams{Name: QueryToolName, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
	return result
}

func text(t *testing.T, result *sdk.CallToolResult) string {
	t.Helper()
	tc, ok := result.Content[0].(*sdk.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text
}

func TestServer_ListsQueryTool(t *testing.T) {
	session := connect(t, &stubRetriever{})

	tools, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, tools.Tools, 1)
	assert.Equal(t, QueryToolName, tools.Tools[0].Name)
}

func TestServer_Query(t *testing.T) {
	url := "https://example.com/patch-12-02"
	stub := &stubRetriever{result: &retrieval.Result{
		MatchedAgents: []string{"Reyna"},
		Changes: []models.RetrievedChange{
			{ChangeID: "12.02-s0-c0", PatchID: "12.02", SectionName: "Agent Updates", Text: "Leer shortened.", SourceURL: &url, Score: 10, Agents: []string{"Reyna"}},
		},
		Path: retrieval.PathEntity,
	}}
	session := connect(t, stub)

	result := callQuery(t, session, map[string]any{"query": "  reyna  ", "top_k": 3})
	assert.False(t, result.IsError)
	assert.Equal(t, "reyna", stub.query)
	assert.Equal(t, 3, stub.k)

	var answer output.JSONAnswer
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &answer))
	assert.Equal(t, "reyna", answer.Question)
	assert.Equal(t, []string{"Reyna"}, answer.MatchedAgents)
	assert.Equal(t, retrieval.PathEntity, answer.Path)
	require.Len(t, answer.Changes, 1)
	assert.Equal(t, "12.02-s0-c0", answer.Changes[0].ChangeID)
	assert.Contains(t, answer.Answer, "1. [12.02] Agent Updates: Leer shortened. | Mentions: Reyna")
}

func TestServer_QueryWithoutTopK(t *testing.T) {
	stub := &stubRetriever{result: &retrieval.Result{}}
	session := connect(t, stub)

	result := callQuery(t, session, map[string]any{"query": "maps"})
	assert.False(t, result.IsError)
	assert.Equal(t, 0, stub.k)
	assert.Contains(t, text(t, result), "No matching changes were found for: maps")
}

func TestServer_QueryErrors(t *testing.T) {
	t.Run("blank query", func(t *testing.T) {
		stub := &stubRetriever{}
		session := connect(t, stub)

		result := callQuery(t, session, map[string]any{"query": " "})
		assert.True(t, result.IsError)
		assert.Contains(t, text(t, result), "query is required")
		assert.Empty(t, stub.query)
	})

	t.Run("retriever failure", func(t *testing.T) {
		session := connect(t, &stubRetriever{err: fmt.Errorf("store offline")})

		result := callQuery(t, session, map[string]any{"query": "reyna"})
		assert.True(t, result.IsError)
		assert.Contains(t, text(t, result), "store offline")
	})
}
