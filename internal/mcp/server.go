// Package mcp exposes the retriever as a Model Context Protocol tool.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/patchgraph/internal/output"
	"github.com/rohankatakam/patchgraph/internal/retrieval"
)

const (
	ServerName = "patchgraph"
	// QueryToolName is the tool registered by NewServer
	QueryToolName = "query_patch_notes"
)

// Retriever is the subset of *retrieval.Retriever the server needs
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (*retrieval.Result, error)
}

type queryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// NewServer creates an MCP server with the patch-notes query tool registered
func NewServer(retriever Retriever, version string, logger *logrus.Logger) *sdk.Server {
	srv := sdk.NewServer(&sdk.Implementation{Name: ServerName, Version: version}, nil)
	registerQueryTool(srv, retriever, logger.WithField("component", "mcp"))
	return srv
}

func registerQueryTool(srv *sdk.Server, retriever Retriever, log *logrus.Entry) {
	tool := &sdk.Tool{
		Name:        QueryToolName,
		Description: "Search the current patch notes. Questions naming an agent or ability return that agent's changes; other questions are matched against change text.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Free-text question, e.g. \"What changed for Reyna?\""},
				"top_k": map[string]any{"type": "integer", "description": fmt.Sprintf("Maximum number of changes (default %d)", retrieval.DefaultTopK)},
			},
			"required": []string{"query"},
		},
	}

	srv.AddTool(tool, func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
		var r queryRequest
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
			}
		}
		r.Query = strings.TrimSpace(r.Query)
		if r.Query == "" {
			return toolError(fmt.Errorf("query is required")), nil
		}

		result, err := retriever.Retrieve(ctx, r.Query, r.TopK)
		if err != nil {
			log.WithError(err).WithField("query", r.Query).Warn("query failed")
			return toolError(err), nil
		}

		data, err := json.Marshal(output.NewJSONAnswer(&output.Answer{Question: r.Query, Result: result}))
		if err != nil {
			return toolError(fmt.Errorf("marshal: %w", err)), nil
		}
		log.WithFields(logrus.Fields{"path": result.Path, "changes": len(result.Changes)}).Debug("query served")
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: string(data)}},
		}, nil
	})
}

func toolError(err error) *sdk.CallToolResult {
	var res sdk.CallToolResult
	res.SetError(err)
	return &res
}

// ServeStdio runs the server on stdin/stdout until the client disconnects or
// ctx is cancelled. Logs must not go to stdout while this runs.
func ServeStdio(ctx context.Context, srv *sdk.Server) error {
	return srv.Run(ctx, &sdk.StdioTransport{})
}
