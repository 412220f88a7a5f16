package graph

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/patchgraph/internal/config"
	"github.com/rohankatakam/patchgraph/internal/errors"
)

// Label is a node type
type Label string

const (
	LabelPatch   Label = "Patch"
	LabelSection Label = "Section"
	LabelChange  Label = "Change"
	LabelAgent   Label = "Agent"
)

// RelType is an edge type
type RelType string

const (
	RelHasSection    RelType = "HAS_SECTION"
	RelHasChange     RelType = "HAS_CHANGE"
	RelMentionsAgent RelType = "MENTIONS_AGENT"
)

// KeyProperty returns the natural key property for a label
func KeyProperty(label Label) string {
	if label == LabelAgent {
		return "uuid"
	}
	return "id"
}

// Node is a node to upsert. Key is the natural key value; Properties are
// overwritten on every upsert and never include the key itself.
type Node struct {
	Key        string
	Properties map[string]any
}

// NodeRef addresses an existing node by label and natural key
type NodeRef struct {
	Label Label
	Key   string
}

// Edge connects two existing nodes. Missing endpoints are skipped silently.
type Edge struct {
	From NodeRef
	To   NodeRef
}

// Pattern names a read or delete shape the store knows how to execute
type Pattern string

// Delete patterns
const (
	// PatternEverything removes every node and edge
	PatternEverything Pattern = "everything"
	// PatternPatchSubgraph removes a patch's sections, changes and their
	// mention edges. Param: patch_id.
	PatternPatchSubgraph Pattern = "patch_subgraph"
	// PatternPatchMentions removes MENTIONS_AGENT edges from a patch's changes.
	// Param: patch_id.
	PatternPatchMentions Pattern = "patch_mentions"
)

// Read patterns
const (
	// PatternPatchChanges returns change_id, text for a patch. Param: patch_id.
	PatternPatchChanges Pattern = "patch_changes"
	// PatternAgents returns uuid, name, aliases for every agent
	PatternAgents Pattern = "agents"
	// PatternChangesByAgents returns change rows mentioning any of the agents,
	// scored 10.0 in section/change order. Params: agent_uuids, limit.
	PatternChangesByAgents Pattern = "changes_by_agents"
	// PatternChangesContaining returns change rows whose text or section name
	// contains the text case-insensitively, scored 1.0 in section/change
	// order. Params: text, limit.
	PatternChangesContaining Pattern = "changes_containing"
	// PatternPatchCounts returns one row with the patch's sections, changes
	// and mentions counts plus the store-wide agents count. Param: patch_id.
	PatternPatchCounts Pattern = "patch_counts"
)

// Change row fields shared by PatternChangesByAgents, PatternChangesContaining
// and FullTextQuery
const (
	FieldChangeID    = "change_id"
	FieldPatchID     = "patch_id"
	FieldSectionName = "section_name"
	FieldText        = "text"
	FieldSourceURL   = "source_url"
	FieldAgents      = "agents"
	FieldScore       = "score"
)

var changeRowFields = []string{
	FieldChangeID, FieldPatchID, FieldSectionName, FieldText, FieldSourceURL, FieldAgents, FieldScore,
}

// Params are named query parameters
type Params map[string]any

// Query is a named read pattern with its parameters
type Query struct {
	Pattern Pattern
	Params  Params
}

// ErrSearchUnavailable signals that the store has no full-text capability
// provisioned. Callers fall back to substring matching.
var ErrSearchUnavailable = errors.CapabilityError("full-text search is not available")

// Store is the graph boundary. Every call acquires and releases its own
// session or transaction.
type Store interface {
	// EnsureSchema creates constraints and indexes; safe to call repeatedly
	EnsureSchema(ctx context.Context) error

	// UpsertNodes merges nodes by natural key, overwriting properties
	UpsertNodes(ctx context.Context, label Label, nodes []Node) error

	// UpsertChildren merges nodes and a rel edge from parent to each, in one batch
	UpsertChildren(ctx context.Context, parent NodeRef, rel RelType, label Label, nodes []Node) error

	// UpsertEdges merges edges; existing edges are left as they are
	UpsertEdges(ctx context.Context, rel RelType, edges []Edge) error

	// DeleteSubgraph removes what a delete pattern matches
	DeleteSubgraph(ctx context.Context, pattern Pattern, params Params) error

	// Query runs a named read pattern
	Query(ctx context.Context, q Query) ([]Row, error)

	// FullTextQuery searches a text property. Rows use the change row fields,
	// ordered by native relevance. Returns ErrSearchUnavailable when the
	// index is not provisioned.
	FullTextQuery(ctx context.Context, field, text string, limit int) ([]Row, error)

	// Close releases the connection pool
	Close(ctx context.Context) error
}

// Open connects to the backend selected in the configuration
func Open(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (Store, error) {
	switch cfg.Graph.Backend {
	case config.BackendNeo4j:
		return NewNeo4jStore(ctx, Neo4jOptions{
			URI:           cfg.Neo4j.URI,
			User:          cfg.Neo4j.User,
			Password:      cfg.Neo4j.Password,
			Database:      cfg.Neo4j.Database,
			SchemaFile:    cfg.Neo4j.SchemaFile,
			FullTextIndex: cfg.Neo4j.FullTextIndex,
			FullText:      cfg.Graph.FullText,
		}, logger)
	case config.BackendSQLite:
		return OpenSQLite(ctx, cfg.SQL.SQLitePath, cfg.Graph.FullText, logger)
	case config.BackendPostgres:
		return OpenPostgres(ctx, cfg.SQL.PostgresDriver, cfg.SQL.PostgresDSN, cfg.Graph.FullText, logger)
	default:
		return nil, errors.ConfigErrorf("unknown graph backend %q", cfg.Graph.Backend)
	}
}

func requireParam(params Params, name string) (any, error) {
	v, ok := params[name]
	if !ok || v == nil {
		return nil, errors.ValidationErrorf("missing query parameter %q", name)
	}
	return v, nil
}

func stringParam(params Params, name string) (string, error) {
	v, err := requireParam(params, name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.ValidationErrorf("parameter %q must be a string, got %T", name, v)
	}
	return s, nil
}

func stringsParam(params Params, name string) ([]string, error) {
	v, err := requireParam(params, name)
	if err != nil {
		return nil, err
	}
	s, ok := v.([]string)
	if !ok {
		return nil, errors.ValidationErrorf("parameter %q must be a string list, got %T", name, v)
	}
	return s, nil
}

func limitParam(params Params) (int, error) {
	v, err := requireParam(params, "limit")
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	default:
		return 0, errors.ValidationErrorf("parameter \"limit\" must be an integer, got %T", v)
	}
}

func unknownPattern(p Pattern) error {
	return errors.ValidationErrorf("unsupported pattern %q", p)
}

func describe(label Label, n int) string {
	return fmt.Sprintf("%d %s node(s)", n, label)
}
