package graph

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/patchgraph/internal/errors"
)

// Neo4jOptions configures the Neo4j store
type Neo4jOptions struct {
	URI           string
	User          string
	Password      string
	Database      string
	SchemaFile    string // optional; statements separated by ';'
	FullTextIndex string
	FullText      bool
}

// Neo4jStore implements Store with Cypher over the Bolt driver
type Neo4jStore struct {
	driver  neo4j.DriverWithContext
	opts    Neo4jOptions
	batch   BatchConfig
	monitor *TimeoutMonitor
	logger  *logrus.Entry
}

// NewNeo4jStore connects and verifies connectivity (fail fast on startup)
func NewNeo4jStore(ctx context.Context, opts Neo4jOptions, logger *logrus.Logger) (*Neo4jStore, error) {
	if opts.URI == "" || opts.User == "" {
		return nil, errors.ConfigErrorf("neo4j credentials missing: uri=%s, user=%s", opts.URI, opts.User)
	}
	if opts.Database == "" {
		opts.Database = "neo4j"
	}
	if opts.FullTextIndex == "" {
		opts.FullTextIndex = "change_text_ft"
	}

	driver, err := neo4j.NewDriverWithContext(opts.URI,
		neo4j.BasicAuth(opts.User, opts.Password, ""),
		func(config *neo4j.Config) {
			config.MaxConnectionPoolSize = 50
			config.ConnectionAcquisitionTimeout = 60 * time.Second
			config.MaxConnectionLifetime = time.Hour
			config.ConnectionLivenessCheckTimeout = 5 * time.Second
			config.SocketConnectTimeout = 5 * time.Second
			config.SocketKeepalive = true
		})
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "failed to create neo4j driver")
	}

	verifyCtx, cancel := context.WithTimeout(ctx, GetConfigForOperation(OpHealthCheck).Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		driver.Close(ctx)
		return nil, errors.DatabaseErrorf(err, "failed to connect to neo4j at %s", opts.URI)
	}

	entry := logger.WithField("component", "neo4j")
	entry.WithFields(logrus.Fields{
		"uri":      opts.URI,
		"database": opts.Database,
	}).Info("neo4j store connected")

	return &Neo4jStore{
		driver:  driver,
		opts:    opts,
		batch:   DefaultBatchConfig(),
		monitor: NewTimeoutMonitor(entry),
		logger:  entry,
	}, nil
}

// statement is one parameterized Cypher statement
type statement struct {
	cypher string
	params map[string]any
}

// write runs statements in one managed write transaction
func (s *Neo4jStore) write(ctx context.Context, op string, stmts ...statement) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.opts.Database,
		AccessMode:   accessMode(op),
	})
	defer session.Close(ctx)

	txConfig := GetConfigForOperation(op).WithCustomMetadata("statements", len(stmts))
	return s.monitor.Run(ctx, op, func(ctx context.Context) error {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			for _, st := range stmts {
				result, err := tx.Run(ctx, st.cypher, st.params)
				if err != nil {
					return nil, err
				}
				if _, err := result.Consume(ctx); err != nil {
					return nil, err
				}
			}
			return nil, nil
		}, txConfig.AsNeo4jConfig()...)
		return err
	})
}

func accessMode(op string) neo4j.AccessMode {
	if IsWrite(op) {
		return neo4j.AccessModeWrite
	}
	return neo4j.AccessModeRead
}

// read runs one statement in a managed read transaction and collects rows
func (s *Neo4jStore) read(ctx context.Context, op string, st statement) ([]Row, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.opts.Database,
		AccessMode:   accessMode(op),
	})
	defer session.Close(ctx)

	var rows []Row
	err := s.monitor.Run(ctx, op, func(ctx context.Context) error {
		out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			result, err := tx.Run(ctx, st.cypher, st.params)
			if err != nil {
				return nil, err
			}
			records, err := result.Collect(ctx)
			if err != nil {
				return nil, err
			}
			rows := make([]Row, 0, len(records))
			for _, record := range records {
				rows = append(rows, NewRow(record.Keys, record.Values))
			}
			return rows, nil
		}, GetConfigForOperation(op).AsNeo4jConfig()...)
		if err != nil {
			return err
		}
		rows = out.([]Row)
		return nil
	})
	return rows, err
}

// EnsureSchema applies the schema file when configured, otherwise the
// built-in constraints and full-text index. Schema statements cannot share
// a transaction, so each runs on its own.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	stmts, err := s.schemaStatements()
	if err != nil {
		return err
	}

	for _, cypher := range stmts {
		if err := s.write(ctx, OpSchema, statement{cypher: cypher}); err != nil {
			return errors.DatabaseErrorf(err, "schema statement failed: %s", cypher)
		}
	}
	s.logger.WithField("statements", len(stmts)).Info("schema applied")
	return nil
}

func (s *Neo4jStore) schemaStatements() ([]string, error) {
	if s.opts.SchemaFile != "" {
		data, err := os.ReadFile(s.opts.SchemaFile)
		if err != nil {
			return nil, errors.FileSystemErrorf(err, "failed to read schema file %s", s.opts.SchemaFile)
		}
		return SplitStatements(string(data)), nil
	}

	b := NewCypherBuilder()
	var stmts []string
	for _, label := range []Label{LabelPatch, LabelSection, LabelChange, LabelAgent} {
		cypher, err := b.BuildUniqueConstraint(label)
		if err != nil {
			return nil, errors.InternalErrorf("build constraint: %v", err)
		}
		stmts = append(stmts, cypher)
	}
	if s.opts.FullText {
		cypher, err := b.BuildFullTextIndex(s.opts.FullTextIndex, LabelChange, "text")
		if err != nil {
			return nil, errors.ConfigErrorf("invalid full-text index name %q: %v", s.opts.FullTextIndex, err)
		}
		stmts = append(stmts, cypher)
	}
	return stmts, nil
}

// SplitStatements splits a schema script on ';', dropping blanks
func SplitStatements(script string) []string {
	var stmts []string
	for _, part := range strings.Split(script, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

func nodeRows(nodes []Node) []map[string]any {
	rows := make([]map[string]any, len(nodes))
	for i, n := range nodes {
		props := n.Properties
		if props == nil {
			props = map[string]any{}
		}
		rows[i] = map[string]any{"key": n.Key, "props": props}
	}
	return rows
}

// UpsertNodes merges nodes in UNWIND batches within one transaction
func (s *Neo4jStore) UpsertNodes(ctx context.Context, label Label, nodes []Node) error {
	if len(nodes) == 0 {
		return nil
	}

	rows := nodeRows(nodes)
	var stmts []statement
	for _, w := range chunk(len(rows), s.batch.GetBatchSizeForLabel(label)) {
		b := NewCypherBuilder()
		cypher, err := b.BuildUpsertNodes(label, rows[w[0]:w[1]])
		if err != nil {
			return errors.ValidationErrorf("upsert %s: %v", label, err)
		}
		stmts = append(stmts, statement{cypher: cypher, params: b.Params()})
	}

	if err := s.write(ctx, OpUpsert, stmts...); err != nil {
		return errors.DatabaseErrorf(err, "failed to upsert %s", describe(label, len(nodes)))
	}
	s.logger.WithField("label", label).WithField("count", len(nodes)).Debug("nodes upserted")
	return nil
}

// UpsertChildren merges child nodes and their parent edges in one transaction
func (s *Neo4jStore) UpsertChildren(ctx context.Context, parent NodeRef, rel RelType, label Label, nodes []Node) error {
	if len(nodes) == 0 {
		return nil
	}

	rows := nodeRows(nodes)
	var stmts []statement
	for _, w := range chunk(len(rows), s.batch.GetBatchSizeForLabel(label)) {
		b := NewCypherBuilder()
		cypher, err := b.BuildUpsertChildren(parent, rel, label, rows[w[0]:w[1]])
		if err != nil {
			return errors.ValidationErrorf("upsert %s children: %v", label, err)
		}
		stmts = append(stmts, statement{cypher: cypher, params: b.Params()})
	}

	if err := s.write(ctx, OpUpsert, stmts...); err != nil {
		return errors.DatabaseErrorf(err, "failed to upsert %s under %s %s", describe(label, len(nodes)), parent.Label, parent.Key)
	}
	return nil
}

// UpsertEdges merges edges grouped by endpoint labels
func (s *Neo4jStore) UpsertEdges(ctx context.Context, rel RelType, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}

	type labelPair struct{ from, to Label }
	groups := make(map[labelPair][]map[string]any)
	var order []labelPair
	for _, e := range edges {
		key := labelPair{e.From.Label, e.To.Label}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], map[string]any{"from": e.From.Key, "to": e.To.Key})
	}

	var stmts []statement
	for _, key := range order {
		rows := groups[key]
		for _, w := range chunk(len(rows), s.batch.EdgeBatchSize) {
			b := NewCypherBuilder()
			cypher, err := b.BuildMergeEdges(key.from, rel, key.to, rows[w[0]:w[1]])
			if err != nil {
				return errors.ValidationErrorf("merge %s edges: %v", rel, err)
			}
			stmts = append(stmts, statement{cypher: cypher, params: b.Params()})
		}
	}

	if err := s.write(ctx, OpUpsert, stmts...); err != nil {
		return errors.DatabaseErrorf(err, "failed to merge %d %s edges", len(edges), rel)
	}
	return nil
}

const (
	cypherDeleteEverything = `MATCH (n) DETACH DELETE n`

	cypherDeletePatchSubgraph = `
		MATCH (p:Patch {id: $patch_id})-[:HAS_SECTION]->(s:Section)
		OPTIONAL MATCH (s)-[:HAS_CHANGE]->(c:Change)
		OPTIONAL MATCH (c)-[r:MENTIONS_AGENT]->(:Agent)
		DELETE r
		DETACH DELETE c, s`

	cypherDeletePatchMentions = `
		MATCH (:Patch {id: $patch_id})-[:HAS_SECTION]->(:Section)-[:HAS_CHANGE]->(:Change)-[r:MENTIONS_AGENT]->(:Agent)
		DELETE r`
)

// DeleteSubgraph runs a delete pattern in one write transaction
func (s *Neo4jStore) DeleteSubgraph(ctx context.Context, pattern Pattern, params Params) error {
	var st statement
	switch pattern {
	case PatternEverything:
		st = statement{cypher: cypherDeleteEverything}
	case PatternPatchSubgraph, PatternPatchMentions:
		patchID, err := stringParam(params, "patch_id")
		if err != nil {
			return err
		}
		st = statement{cypher: cypherDeletePatchMentions, params: map[string]any{"patch_id": patchID}}
		if pattern == PatternPatchSubgraph {
			st.cypher = cypherDeletePatchSubgraph
		}
	default:
		return unknownPattern(pattern)
	}

	if err := s.write(ctx, OpDelete, st); err != nil {
		return errors.DatabaseErrorf(err, "failed to delete %s", pattern)
	}
	return nil
}

const (
	cypherPatchChanges = `
		MATCH (:Patch {id: $patch_id})-[:HAS_SECTION]->(s:Section)-[:HAS_CHANGE]->(c:Change)
		RETURN c.id AS change_id, c.text AS text
		ORDER BY s.order ASC, c.order ASC`

	cypherAgents = `
		MATCH (a:Agent)
		RETURN a.uuid AS uuid, a.name AS name, coalesce(a.aliases, []) AS aliases
		ORDER BY toLower(a.name) ASC`

	cypherChangesByAgents = `
		MATCH (a:Agent) WHERE a.uuid IN $agent_uuids
		MATCH (a)<-[:MENTIONS_AGENT]-(c:Change)
		WITH DISTINCT c
		MATCH (s:Section)-[:HAS_CHANGE]->(c)
		MATCH (p:Patch)-[:HAS_SECTION]->(s)
		OPTIONAL MATCH (c)-[:MENTIONS_AGENT]->(a2:Agent)
		WITH c, p, s, collect(DISTINCT a2.name) AS agents
		RETURN c.id AS change_id, p.id AS patch_id, s.name AS section_name,
		       c.text AS text, c.source_url AS source_url, agents, 10.0 AS score
		ORDER BY s.order ASC, c.order ASC
		LIMIT $limit`

	cypherChangesContaining = `
		MATCH (p:Patch)-[:HAS_SECTION]->(s:Section)-[:HAS_CHANGE]->(c:Change)
		WHERE toLower(c.text) CONTAINS toLower($text) OR toLower(s.name) CONTAINS toLower($text)
		OPTIONAL MATCH (c)-[:MENTIONS_AGENT]->(a:Agent)
		WITH c, p, s, collect(DISTINCT a.name) AS agents
		RETURN c.id AS change_id, p.id AS patch_id, s.name AS section_name,
		       c.text AS text, c.source_url AS source_url, agents, 1.0 AS score
		ORDER BY s.order ASC, c.order ASC
		LIMIT $limit`

	cypherPatchCounts = `
		OPTIONAL MATCH (p:Patch {id: $patch_id})
		OPTIONAL MATCH (p)-[:HAS_SECTION]->(s:Section)
		WITH p, count(DISTINCT s) AS sections
		OPTIONAL MATCH (p)-[:HAS_SECTION]->(:Section)-[:HAS_CHANGE]->(c:Change)
		WITH p, sections, count(DISTINCT c) AS changes
		OPTIONAL MATCH (p)-[:HAS_SECTION]->(:Section)-[:HAS_CHANGE]->(:Change)-[m:MENTIONS_AGENT]->(:Agent)
		WITH sections, changes, count(m) AS mentions
		OPTIONAL MATCH (a:Agent)
		RETURN sections, changes, mentions, count(a) AS agents`

	cypherFullText = `
		CALL db.index.fulltext.queryNodes($index, $search_text) YIELD node, score
		WITH node, score
		WHERE node:Change
		MATCH (s:Section)-[:HAS_CHANGE]->(node)
		MATCH (p:Patch)-[:HAS_SECTION]->(s)
		OPTIONAL MATCH (node)-[:MENTIONS_AGENT]->(a:Agent)
		WITH node, p, s, score, collect(DISTINCT a.name) AS agents
		RETURN node.id AS change_id, p.id AS patch_id, s.name AS section_name,
		       node.text AS text, node.source_url AS source_url, agents, score
		ORDER BY score DESC
		LIMIT $limit`
)

// Query runs a named read pattern
func (s *Neo4jStore) Query(ctx context.Context, q Query) ([]Row, error) {
	st, err := s.readStatement(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.read(ctx, OpRead, st)
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "query %s failed", q.Pattern)
	}
	return rows, nil
}

func (s *Neo4jStore) readStatement(q Query) (statement, error) {
	switch q.Pattern {
	case PatternAgents:
		return statement{cypher: cypherAgents}, nil
	case PatternPatchChanges, PatternPatchCounts:
		patchID, err := stringParam(q.Params, "patch_id")
		if err != nil {
			return statement{}, err
		}
		cypher := cypherPatchChanges
		if q.Pattern == PatternPatchCounts {
			cypher = cypherPatchCounts
		}
		return statement{cypher: cypher, params: map[string]any{"patch_id": patchID}}, nil
	case PatternChangesByAgents:
		uuids, err := stringsParam(q.Params, "agent_uuids")
		if err != nil {
			return statement{}, err
		}
		limit, err := limitParam(q.Params)
		if err != nil {
			return statement{}, err
		}
		return statement{cypher: cypherChangesByAgents, params: map[string]any{
			"agent_uuids": uuids,
			"limit":       int64(limit),
		}}, nil
	case PatternChangesContaining:
		text, err := stringParam(q.Params, "text")
		if err != nil {
			return statement{}, err
		}
		limit, err := limitParam(q.Params)
		if err != nil {
			return statement{}, err
		}
		return statement{cypher: cypherChangesContaining, params: map[string]any{
			"text":  text,
			"limit": int64(limit),
		}}, nil
	default:
		return statement{}, unknownPattern(q.Pattern)
	}
}

// FullTextQuery searches change text through the configured full-text index
func (s *Neo4jStore) FullTextQuery(ctx context.Context, field, text string, limit int) ([]Row, error) {
	if field != FieldText {
		return nil, errors.ValidationErrorf("full-text search supports only %q, got %q", FieldText, field)
	}
	if !s.opts.FullText {
		return nil, ErrSearchUnavailable
	}

	search := EscapeLucene(strings.TrimSpace(text))
	if search == "" {
		return []Row{}, nil
	}

	rows, err := s.read(ctx, OpSearch, statement{cypher: cypherFullText, params: map[string]any{
		"index":       s.opts.FullTextIndex,
		"search_text": search,
		"limit":       int64(limit),
	}})
	if err != nil {
		if isMissingSearchCapability(err) {
			s.logger.WithError(err).Debug("full-text index unavailable")
			return nil, errors.CapabilityErrorf(err, "full-text index %s is not available", s.opts.FullTextIndex)
		}
		return nil, errors.DatabaseErrorf(err, "full-text query failed")
	}
	return rows, nil
}

// isMissingSearchCapability recognises the server errors raised when the
// full-text procedure or index does not exist
func isMissingSearchCapability(err error) bool {
	var neoErr *neo4j.Neo4jError
	if !errors.As(err, &neoErr) {
		return false
	}
	switch neoErr.Code {
	case "Neo.ClientError.Procedure.ProcedureNotFound",
		"Neo.ClientError.Schema.IndexNotFound",
		"Neo.ClientError.Procedure.ProcedureCallFailed":
		return true
	}
	return false
}

// luceneSpecial lists characters with meaning in Lucene query syntax
const luceneSpecial = `+-&|!(){}[]^"~*?:\/`

// EscapeLucene backslash-escapes Lucene query syntax so user text is
// matched literally
func EscapeLucene(text string) string {
	var sb strings.Builder
	for _, r := range text {
		if strings.ContainsRune(luceneSpecial, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Close closes the Neo4j driver connection
func (s *Neo4jStore) Close(ctx context.Context) error {
	s.monitor.LogSummary()
	if err := s.driver.Close(ctx); err != nil {
		return errors.DatabaseErrorf(err, "failed to close neo4j driver")
	}
	s.logger.Info("neo4j store closed")
	return nil
}
