package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/patchgraph/internal/errors"
)

// tableSpec maps a node label onto a table
type tableSpec struct {
	name    string
	key     string
	columns []string // property columns, in insert order
	lists   map[string]bool
}

var tables = map[Label]tableSpec{
	LabelPatch: {
		name:    "patches",
		key:     "id",
		columns: []string{"title", "url", "published_at"},
	},
	LabelSection: {
		name:    "sections",
		key:     "id",
		columns: []string{"name", "order", "patch_id"},
	},
	LabelChange: {
		name:    "changes",
		key:     "id",
		columns: []string{"text", "section_name", "source_url", "order"},
	},
	LabelAgent: {
		name:    "agents",
		key:     "uuid",
		columns: []string{"name", "role", "icon_url", "abilities", "aliases"},
		lists:   map[string]bool{"abilities": true, "aliases": true},
	},
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS patches (
	id TEXT PRIMARY KEY,
	title TEXT,
	url TEXT,
	published_at TEXT
);
CREATE TABLE IF NOT EXISTS sections (
	id TEXT PRIMARY KEY,
	name TEXT,
	"order" INTEGER,
	patch_id TEXT
);
CREATE TABLE IF NOT EXISTS changes (
	id TEXT PRIMARY KEY,
	text TEXT,
	section_name TEXT,
	source_url TEXT,
	"order" INTEGER
);
CREATE TABLE IF NOT EXISTS agents (
	uuid TEXT PRIMARY KEY,
	name TEXT,
	role TEXT,
	icon_url TEXT,
	abilities TEXT,
	aliases TEXT
);
CREATE TABLE IF NOT EXISTS edges (
	type TEXT NOT NULL,
	from_key TEXT NOT NULL,
	to_key TEXT NOT NULL,
	PRIMARY KEY (type, from_key, to_key)
);
CREATE INDEX IF NOT EXISTS edges_to_idx ON edges (type, to_key)`

// endpoint labels per relationship type; edges store only keys
var relEndpoints = map[RelType][2]Label{
	RelHasSection:    {LabelPatch, LabelSection},
	RelHasChange:     {LabelSection, LabelChange},
	RelMentionsAgent: {LabelChange, LabelAgent},
}

// dialect captures the differences between SQLite and Postgres
type dialect struct {
	name string
	// containsFn is the substring position function: instr or strpos
	containsFn    string
	fullTextSetup []string
	fullTextQuery string
	// hasFullText reports whether the full-text structures exist
	hasFullText func(ctx context.Context, db *sqlx.DB) (bool, error)
	matchArg    func(text string) string
}

// joins from a change to its section and patch
const changeJoins = `
	JOIN edges hc ON hc.type = 'HAS_CHANGE' AND hc.to_key = c.id
	JOIN sections s ON s.id = hc.from_key
	JOIN edges hs ON hs.type = 'HAS_SECTION' AND hs.to_key = s.id
	JOIN patches p ON p.id = hs.from_key`

// SQLite full-text uses FTS4, which mattn/go-sqlite3 compiles in by default.
// FTS4 has no ranking function, so rows carry matchinfo and are scored in Go.
var sqliteDialect = dialect{
	name:       "sqlite",
	containsFn: "instr",
	fullTextSetup: []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS change_text_fts USING fts4(text, content="changes")`,
		`CREATE TRIGGER IF NOT EXISTS changes_fts_before_delete BEFORE DELETE ON changes BEGIN
			DELETE FROM change_text_fts WHERE docid = old.rowid;
		END`,
		`CREATE TRIGGER IF NOT EXISTS changes_fts_before_update BEFORE UPDATE ON changes BEGIN
			DELETE FROM change_text_fts WHERE docid = old.rowid;
		END`,
		`CREATE TRIGGER IF NOT EXISTS changes_fts_after_update AFTER UPDATE ON changes BEGIN
			INSERT INTO change_text_fts(docid, text) VALUES (new.rowid, new.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS changes_fts_after_insert AFTER INSERT ON changes BEGIN
			INSERT INTO change_text_fts(docid, text) VALUES (new.rowid, new.text);
		END`,
		`INSERT INTO change_text_fts(change_text_fts) VALUES ('rebuild')`,
	},
	fullTextQuery: `
		SELECT c.id AS change_id, p.id AS patch_id, s.name AS section_name,
		       c.text AS text, c.source_url AS source_url,
		       matchinfo(change_text_fts, 'pcnalx') AS match_info
		FROM change_text_fts
		JOIN changes c ON c.rowid = change_text_fts.docid` + changeJoins + `
		WHERE change_text_fts MATCH ?
		ORDER BY s."order" ASC, c."order" ASC`,
	hasFullText: func(ctx context.Context, db *sqlx.DB) (bool, error) {
		var n int
		err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'change_text_fts'`)
		return n > 0, err
	},
	matchArg: ftsMatchExpression,
}

var postgresDialect = dialect{
	name:       "postgres",
	containsFn: "strpos",
	fullTextSetup: []string{
		`CREATE INDEX IF NOT EXISTS changes_text_fts_idx ON changes USING GIN (to_tsvector('english', coalesce(text, '')))`,
	},
	fullTextQuery: `
		SELECT c.id AS change_id, p.id AS patch_id, s.name AS section_name,
		       c.text AS text, c.source_url AS source_url,
		       ts_rank(to_tsvector('english', coalesce(c.text, '')), plainto_tsquery('english', ?)) AS score
		FROM changes c` + changeJoins + `
		WHERE to_tsvector('english', coalesce(c.text, '')) @@ plainto_tsquery('english', ?)
		ORDER BY score DESC, s."order" ASC, c."order" ASC
		LIMIT ?`,
	hasFullText: func(ctx context.Context, db *sqlx.DB) (bool, error) {
		var n int
		err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM pg_indexes WHERE indexname = 'changes_text_fts_idx'`)
		return n > 0, err
	},
	matchArg: func(text string) string { return text },
}

// SQLStore implements Store on a relational database through sqlx.
// Nodes live in one table per label and edges in a shared edges table.
type SQLStore struct {
	db       *sqlx.DB
	dialect  dialect
	fullText bool
	monitor  *TimeoutMonitor
	logger   *logrus.Entry
}

// OpenSQLite opens (creating if needed) a SQLite graph store. Use ":memory:"
// for an ephemeral store.
func OpenSQLite(ctx context.Context, path string, fullText bool, logger *logrus.Logger) (*SQLStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, errors.FileSystemErrorf(err, "failed to create database directory %s", dir)
			}
		}
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite3", path)
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "failed to open sqlite database %s", path)
	}
	// a single connection keeps :memory: databases alive and serializes writers
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	return newSQLStore(db, sqliteDialect, fullText, logger), nil
}

// OpenPostgres connects to a Postgres graph store. driver is "pgx" (default)
// or "postgres" for lib/pq.
func OpenPostgres(ctx context.Context, driver, dsn string, fullText bool, logger *logrus.Logger) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.ConfigError("postgres DSN is required")
	}
	if driver == "" {
		driver = "pgx"
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "failed to connect to postgres")
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStore(db, postgresDialect, fullText, logger), nil
}

func newSQLStore(db *sqlx.DB, d dialect, fullText bool, logger *logrus.Logger) *SQLStore {
	entry := logger.WithField("component", d.name)
	entry.WithField("full_text", fullText).Info("sql graph store connected")
	return &SQLStore{
		db:       db,
		dialect:  d,
		fullText: fullText,
		monitor:  NewTimeoutMonitor(entry),
		logger:   entry,
	}
}

// withTx runs fn in a transaction, rolling back on any error
func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseErrorf(err, "begin transaction")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.DatabaseErrorf(err, "commit transaction")
	}
	return nil
}

// write runs fn in a transaction bounded by the operation's timeout
func (s *SQLStore) write(ctx context.Context, op string, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	return s.monitor.Run(ctx, op, func(ctx context.Context) error {
		return s.withTx(ctx, func(tx *sqlx.Tx) error {
			return fn(ctx, tx)
		})
	})
}

// EnsureSchema creates the tables and, when enabled, the full-text
// structures. A database without full-text support keeps working; searches
// then report ErrSearchUnavailable.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range SplitStatements(sqlSchema) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.DatabaseErrorf(err, "schema statement failed: %s", firstLine(stmt))
		}
	}

	if !s.fullText {
		return nil
	}
	err := s.write(ctx, OpSchema, func(ctx context.Context, tx *sqlx.Tx) error {
		for _, stmt := range s.dialect.fullTextSetup {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.WithError(err).Warn("full-text search not provisioned; text queries will use substring matching")
	}
	return nil
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

// columnValue converts a property value into a driver value
func columnValue(spec tableSpec, column string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if spec.lists[column] {
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(encoded), nil
	}
	switch t := v.(type) {
	case *string:
		if t == nil {
			return nil, nil
		}
		return *t, nil
	case string, int, int64, float64, bool:
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T for %s.%s", v, spec.name, column)
	}
}

// upsertStatement inserts the key plus the given columns; on conflict only
// those columns are overwritten, matching SET += on the Cypher side
func (s *SQLStore) upsertStatement(spec tableSpec, columns []string) string {
	cols := []string{quoteIdent(spec.key)}
	placeholders := []string{"?"}
	updates := make([]string, 0, len(columns))
	for _, c := range columns {
		cols = append(cols, quoteIdent(c))
		placeholders = append(placeholders, "?")
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", quoteIdent(c), quoteIdent(c)))
	}

	conflict := "DO NOTHING"
	if len(updates) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}
	return s.db.Rebind(fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		spec.name, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
		quoteIdent(spec.key), conflict,
	))
}

func (s *SQLStore) upsertNodes(ctx context.Context, tx *sqlx.Tx, label Label, nodes []Node) error {
	spec, ok := tables[label]
	if !ok {
		return errors.ValidationErrorf("unknown label %q", label)
	}

	for _, n := range nodes {
		for prop := range n.Properties {
			if !contains(spec.columns, prop) {
				return errors.ValidationErrorf("unknown %s property %q", label, prop)
			}
		}

		var columns []string
		args := []any{n.Key}
		for _, c := range spec.columns {
			raw, present := n.Properties[c]
			if !present {
				continue
			}
			v, err := columnValue(spec, c, raw)
			if err != nil {
				return errors.ValidationErrorf("%v", err)
			}
			columns = append(columns, c)
			args = append(args, v)
		}
		if _, err := tx.ExecContext(ctx, s.upsertStatement(spec, columns), args...); err != nil {
			return errors.DatabaseErrorf(err, "upsert %s %s", label, n.Key)
		}
	}
	return nil
}

// UpsertNodes merges nodes by natural key in one transaction
func (s *SQLStore) UpsertNodes(ctx context.Context, label Label, nodes []Node) error {
	if len(nodes) == 0 {
		return nil
	}
	return s.write(ctx, OpUpsert, func(ctx context.Context, tx *sqlx.Tx) error {
		return s.upsertNodes(ctx, tx, label, nodes)
	})
}

// UpsertChildren merges child nodes and parent edges in one transaction.
// Nothing is written when the parent does not exist.
func (s *SQLStore) UpsertChildren(ctx context.Context, parent NodeRef, rel RelType, label Label, nodes []Node) error {
	if len(nodes) == 0 {
		return nil
	}
	if err := s.checkRel(rel, parent.Label, label); err != nil {
		return err
	}

	return s.write(ctx, OpUpsert, func(ctx context.Context, tx *sqlx.Tx) error {
		exists, err := s.nodeExists(ctx, tx, parent)
		if err != nil {
			return err
		}
		if !exists {
			s.logger.WithField("parent", parent.Key).Debug("parent missing; children skipped")
			return nil
		}

		if err := s.upsertNodes(ctx, tx, label, nodes); err != nil {
			return err
		}
		edges := make([]Edge, len(nodes))
		for i, n := range nodes {
			edges[i] = Edge{From: parent, To: NodeRef{Label: label, Key: n.Key}}
		}
		return s.mergeEdges(ctx, tx, rel, edges)
	})
}

func (s *SQLStore) nodeExists(ctx context.Context, tx *sqlx.Tx, ref NodeRef) (bool, error) {
	spec, ok := tables[ref.Label]
	if !ok {
		return false, errors.ValidationErrorf("unknown label %q", ref.Label)
	}
	var n int
	query := s.db.Rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", spec.name, quoteIdent(spec.key)))
	if err := tx.GetContext(ctx, &n, query, ref.Key); err != nil {
		return false, errors.DatabaseErrorf(err, "lookup %s %s", ref.Label, ref.Key)
	}
	return n > 0, nil
}

func (s *SQLStore) checkRel(rel RelType, from, to Label) error {
	endpoints, ok := relEndpoints[rel]
	if !ok {
		return errors.ValidationErrorf("unknown relationship %q", rel)
	}
	if endpoints[0] != from || endpoints[1] != to {
		return errors.ValidationErrorf("%s connects %s to %s, not %s to %s", rel, endpoints[0], endpoints[1], from, to)
	}
	return nil
}

// mergeEdges inserts edges whose endpoints both exist; duplicates are ignored
func (s *SQLStore) mergeEdges(ctx context.Context, tx *sqlx.Tx, rel RelType, edges []Edge) error {
	endpoints := relEndpoints[rel]
	from, to := tables[endpoints[0]], tables[endpoints[1]]

	query := s.db.Rebind(fmt.Sprintf(
		`INSERT INTO edges (type, from_key, to_key)
		SELECT ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM %s WHERE %s = ?)
		  AND EXISTS (SELECT 1 FROM %s WHERE %s = ?)
		ON CONFLICT DO NOTHING`,
		from.name, quoteIdent(from.key), to.name, quoteIdent(to.key),
	))
	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return errors.DatabaseErrorf(err, "prepare %s merge", rel)
	}
	defer stmt.Close()

	for _, e := range edges {
		if _, err := stmt.ExecContext(ctx, string(rel), e.From.Key, e.To.Key, e.From.Key, e.To.Key); err != nil {
			return errors.DatabaseErrorf(err, "merge %s %s -> %s", rel, e.From.Key, e.To.Key)
		}
	}
	return nil
}

// UpsertEdges merges edges in one transaction
func (s *SQLStore) UpsertEdges(ctx context.Context, rel RelType, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}
	for _, e := range edges {
		if err := s.checkRel(rel, e.From.Label, e.To.Label); err != nil {
			return err
		}
	}
	return s.write(ctx, OpUpsert, func(ctx context.Context, tx *sqlx.Tx) error {
		return s.mergeEdges(ctx, tx, rel, edges)
	})
}

const (
	sqlPatchSectionIDs = `SELECT to_key FROM edges WHERE type = 'HAS_SECTION' AND from_key = ?`
	sqlPatchChangeIDs  = `
		SELECT hc.to_key FROM edges hs
		JOIN edges hc ON hc.type = 'HAS_CHANGE' AND hc.from_key = hs.to_key
		WHERE hs.type = 'HAS_SECTION' AND hs.from_key = ?`
)

// DeleteSubgraph runs a delete pattern in one transaction
func (s *SQLStore) DeleteSubgraph(ctx context.Context, pattern Pattern, params Params) error {
	switch pattern {
	case PatternEverything:
		return s.write(ctx, OpDelete, func(ctx context.Context, tx *sqlx.Tx) error {
			for _, table := range []string{"edges", "changes", "sections", "patches", "agents"} {
				if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
					return errors.DatabaseErrorf(err, "wipe %s", table)
				}
			}
			return nil
		})

	case PatternPatchMentions:
		patchID, err := stringParam(params, "patch_id")
		if err != nil {
			return err
		}
		return s.write(ctx, OpDelete, func(ctx context.Context, tx *sqlx.Tx) error {
			query := s.db.Rebind(`DELETE FROM edges WHERE type = 'MENTIONS_AGENT' AND from_key IN (` + sqlPatchChangeIDs + `)`)
			if _, err := tx.ExecContext(ctx, query, patchID); err != nil {
				return errors.DatabaseErrorf(err, "delete mentions for patch %s", patchID)
			}
			return nil
		})

	case PatternPatchSubgraph:
		patchID, err := stringParam(params, "patch_id")
		if err != nil {
			return err
		}
		return s.write(ctx, OpDelete, func(ctx context.Context, tx *sqlx.Tx) error {
			return s.deletePatchSubgraph(ctx, tx, patchID)
		})

	default:
		return unknownPattern(pattern)
	}
}

func (s *SQLStore) deletePatchSubgraph(ctx context.Context, tx *sqlx.Tx, patchID string) error {
	var sectionIDs, changeIDs []string
	if err := tx.SelectContext(ctx, &sectionIDs, s.db.Rebind(sqlPatchSectionIDs), patchID); err != nil {
		return errors.DatabaseErrorf(err, "list sections for patch %s", patchID)
	}
	if err := tx.SelectContext(ctx, &changeIDs, s.db.Rebind(sqlPatchChangeIDs), patchID); err != nil {
		return errors.DatabaseErrorf(err, "list changes for patch %s", patchID)
	}

	steps := []struct {
		query string
		ids   []string
	}{
		{`DELETE FROM edges WHERE type = 'MENTIONS_AGENT' AND from_key IN (?)`, changeIDs},
		{`DELETE FROM edges WHERE type = 'HAS_CHANGE' AND to_key IN (?)`, changeIDs},
		{`DELETE FROM edges WHERE type = 'HAS_CHANGE' AND from_key IN (?)`, sectionIDs},
		{`DELETE FROM edges WHERE type = 'HAS_SECTION' AND to_key IN (?)`, sectionIDs},
		{`DELETE FROM changes WHERE id IN (?)`, changeIDs},
		{`DELETE FROM sections WHERE id IN (?)`, sectionIDs},
	}
	for _, step := range steps {
		if len(step.ids) == 0 {
			continue
		}
		query, args, err := sqlx.In(step.query, step.ids)
		if err != nil {
			return errors.InternalErrorf("expand delete: %v", err)
		}
		if _, err := tx.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
			return errors.DatabaseErrorf(err, "delete subgraph of patch %s", patchID)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"patch_id": patchID,
		"sections": len(sectionIDs),
		"changes":  len(changeIDs),
	}).Debug("patch subgraph cleared")
	return nil
}

// Query runs a named read pattern
func (s *SQLStore) Query(ctx context.Context, q Query) ([]Row, error) {
	var rows []Row
	err := s.monitor.Run(ctx, OpRead, func(ctx context.Context) error {
		var err error
		rows, err = s.query(ctx, q)
		return err
	})
	return rows, err
}

func (s *SQLStore) query(ctx context.Context, q Query) ([]Row, error) {
	switch q.Pattern {
	case PatternPatchChanges:
		patchID, err := stringParam(q.Params, "patch_id")
		if err != nil {
			return nil, err
		}
		return s.rows(ctx, `
			SELECT c.id AS change_id, c.text AS text
			FROM changes c`+changeJoins+`
			WHERE p.id = ?
			ORDER BY s."order" ASC, c."order" ASC`, patchID)

	case PatternAgents:
		return s.agentRows(ctx)

	case PatternChangesByAgents:
		uuids, err := stringsParam(q.Params, "agent_uuids")
		if err != nil {
			return nil, err
		}
		limit, err := limitParam(q.Params)
		if err != nil {
			return nil, err
		}
		if len(uuids) == 0 {
			return []Row{}, nil
		}
		query, args, err := sqlx.In(`
			SELECT DISTINCT c.id AS change_id, p.id AS patch_id, s.name AS section_name,
			       c.text AS text, c.source_url AS source_url, 10.0 AS score,
			       s."order" AS section_order, c."order" AS change_order
			FROM edges m
			JOIN changes c ON c.id = m.from_key`+changeJoins+`
			WHERE m.type = 'MENTIONS_AGENT' AND m.to_key IN (?)
			ORDER BY section_order ASC, change_order ASC
			LIMIT ?`, uuids, limit)
		if err != nil {
			return nil, errors.InternalErrorf("expand agent query: %v", err)
		}
		return s.changeRows(ctx, query, args...)

	case PatternChangesContaining:
		text, err := stringParam(q.Params, "text")
		if err != nil {
			return nil, err
		}
		limit, err := limitParam(q.Params)
		if err != nil {
			return nil, err
		}
		fn := s.dialect.containsFn
		query := fmt.Sprintf(`
			SELECT c.id AS change_id, p.id AS patch_id, s.name AS section_name,
			       c.text AS text, c.source_url AS source_url, 1.0 AS score
			FROM changes c`+changeJoins+`
			WHERE %s(lower(coalesce(c.text, '')), lower(CAST(? AS TEXT))) > 0 OR %s(lower(coalesce(s.name, '')), lower(CAST(? AS TEXT))) > 0
			ORDER BY s."order" ASC, c."order" ASC
			LIMIT ?`, fn, fn)
		return s.changeRows(ctx, query, text, text, limit)

	case PatternPatchCounts:
		patchID, err := stringParam(q.Params, "patch_id")
		if err != nil {
			return nil, err
		}
		return s.rows(ctx, `
			SELECT
				(SELECT COUNT(*) FROM edges hs JOIN sections s ON s.id = hs.to_key
				 WHERE hs.type = 'HAS_SECTION' AND hs.from_key = ?) AS sections,
				(SELECT COUNT(*) FROM edges hs
				 JOIN edges hc ON hc.type = 'HAS_CHANGE' AND hc.from_key = hs.to_key
				 JOIN changes c ON c.id = hc.to_key
				 WHERE hs.type = 'HAS_SECTION' AND hs.from_key = ?) AS changes,
				(SELECT COUNT(*) FROM edges hs
				 JOIN edges hc ON hc.type = 'HAS_CHANGE' AND hc.from_key = hs.to_key
				 JOIN edges m ON m.type = 'MENTIONS_AGENT' AND m.from_key = hc.to_key
				 WHERE hs.type = 'HAS_SECTION' AND hs.from_key = ?) AS mentions,
				(SELECT COUNT(*) FROM agents) AS agents`, patchID, patchID, patchID)

	default:
		return nil, unknownPattern(q.Pattern)
	}
}

// rows runs a query and maps every result row positionally
func (s *SQLStore) rows(ctx context.Context, query string, args ...any) ([]Row, error) {
	rs, err := s.db.QueryxContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "query failed")
	}
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "read columns")
	}

	out := []Row{}
	for rs.Next() {
		values, err := rs.SliceScan()
		if err != nil {
			return nil, errors.DatabaseErrorf(err, "scan row")
		}
		out = append(out, NewRow(cols, values))
	}
	if err := rs.Err(); err != nil {
		return nil, errors.DatabaseErrorf(err, "iterate rows")
	}
	return out, nil
}

// changeRows runs a change-shaped query and attaches mentioned agent names
func (s *SQLStore) changeRows(ctx context.Context, query string, args ...any) ([]Row, error) {
	raw, err := s.rows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return s.attachAgents(ctx, raw)
}

// attachAgents rebuilds change rows in changeRowFields order with the names
// of the agents each change mentions
func (s *SQLStore) attachAgents(ctx context.Context, raw []Row) ([]Row, error) {
	if len(raw) == 0 {
		return raw, nil
	}

	ids := make([]string, len(raw))
	for i, r := range raw {
		ids[i] = r.String(FieldChangeID)
	}
	agents, err := s.mentionedAgents(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Row, len(raw))
	for i, r := range raw {
		values := make([]any, len(changeRowFields))
		for j, field := range changeRowFields {
			if field == FieldAgents {
				values[j] = agents[r.String(FieldChangeID)]
				continue
			}
			values[j], _ = r.Get(field)
		}
		out[i] = NewRow(changeRowFields, values)
	}
	return out, nil
}

func (s *SQLStore) mentionedAgents(ctx context.Context, changeIDs []string) (map[string][]string, error) {
	query, args, err := sqlx.In(`
		SELECT DISTINCT m.from_key AS change_id, a.name AS name
		FROM edges m
		JOIN agents a ON a.uuid = m.to_key
		WHERE m.type = 'MENTIONS_AGENT' AND m.from_key IN (?)
		ORDER BY name`, changeIDs)
	if err != nil {
		return nil, errors.InternalErrorf("expand mentions query: %v", err)
	}

	var links []struct {
		ChangeID string         `db:"change_id"`
		Name     sql.NullString `db:"name"`
	}
	if err := s.db.SelectContext(ctx, &links, s.db.Rebind(query), args...); err != nil {
		return nil, errors.DatabaseErrorf(err, "load mentioned agents")
	}

	out := make(map[string][]string, len(changeIDs))
	for _, id := range changeIDs {
		out[id] = []string{}
	}
	for _, l := range links {
		if l.Name.Valid && l.Name.String != "" {
			out[l.ChangeID] = append(out[l.ChangeID], l.Name.String)
		}
	}
	return out, nil
}

func (s *SQLStore) agentRows(ctx context.Context) ([]Row, error) {
	var agents []struct {
		UUID    string         `db:"uuid"`
		Name    sql.NullString `db:"name"`
		Aliases sql.NullString `db:"aliases"`
	}
	if err := s.db.SelectContext(ctx, &agents, `SELECT uuid, name, aliases FROM agents ORDER BY lower(name) ASC`); err != nil {
		return nil, errors.DatabaseErrorf(err, "load agents")
	}

	keys := []string{"uuid", "name", "aliases"}
	out := make([]Row, 0, len(agents))
	for _, a := range agents {
		aliases := []string{}
		if a.Aliases.Valid && a.Aliases.String != "" {
			if err := json.Unmarshal([]byte(a.Aliases.String), &aliases); err != nil {
				return nil, errors.DatabaseErrorf(err, "decode aliases of agent %s", a.UUID)
			}
		}
		out = append(out, NewRow(keys, []any{a.UUID, a.Name.String, aliases}))
	}
	return out, nil
}

// FullTextQuery searches change text with the dialect's full-text engine
func (s *SQLStore) FullTextQuery(ctx context.Context, field, text string, limit int) ([]Row, error) {
	var rows []Row
	err := s.monitor.Run(ctx, OpSearch, func(ctx context.Context) error {
		var err error
		rows, err = s.fullTextQuery(ctx, field, text, limit)
		return err
	})
	return rows, err
}

func (s *SQLStore) fullTextQuery(ctx context.Context, field, text string, limit int) ([]Row, error) {
	if field != FieldText {
		return nil, errors.ValidationErrorf("full-text search supports only %q, got %q", FieldText, field)
	}
	if !s.fullText {
		return nil, ErrSearchUnavailable
	}

	ok, err := s.dialect.hasFullText(ctx, s.db)
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "inspect full-text structures")
	}
	if !ok {
		return nil, ErrSearchUnavailable
	}

	match := s.dialect.matchArg(text)
	if strings.TrimSpace(match) == "" {
		return []Row{}, nil
	}

	if s.dialect.name == postgresDialect.name {
		return s.changeRows(ctx, s.dialect.fullTextQuery, match, match, limit)
	}
	return s.rankedFTSRows(ctx, match, limit)
}

// rankedFTSRows runs the FTS4 query, scores each hit with BM25 over its
// matchinfo and keeps the best limit rows
func (s *SQLStore) rankedFTSRows(ctx context.Context, match string, limit int) ([]Row, error) {
	var hits []struct {
		ChangeID    string         `db:"change_id"`
		PatchID     string         `db:"patch_id"`
		SectionName sql.NullString `db:"section_name"`
		Text        sql.NullString `db:"text"`
		SourceURL   sql.NullString `db:"source_url"`
		MatchInfo   []byte         `db:"match_info"`
	}
	if err := s.db.SelectContext(ctx, &hits, s.db.Rebind(s.dialect.fullTextQuery), match); err != nil {
		return nil, errors.DatabaseErrorf(err, "full-text query failed")
	}

	cols := []string{FieldChangeID, FieldPatchID, FieldSectionName, FieldText, FieldSourceURL, FieldScore}
	raw := make([]Row, len(hits))
	for i, h := range hits {
		score, err := bm25(h.MatchInfo)
		if err != nil {
			return nil, errors.DatabaseErrorf(err, "decode matchinfo of change %s", h.ChangeID)
		}
		var sourceURL any
		if h.SourceURL.Valid {
			sourceURL = h.SourceURL.String
		}
		raw[i] = NewRow(cols, []any{h.ChangeID, h.PatchID, h.SectionName.String, h.Text.String, sourceURL, score})
	}

	// hits arrive in document order, so a stable sort keeps it for ties
	sort.SliceStable(raw, func(i, j int) bool {
		return raw[i].Float(FieldScore) > raw[j].Float(FieldScore)
	})
	if limit >= 0 && len(raw) > limit {
		raw = raw[:limit]
	}
	return s.attachAgents(ctx, raw)
}

// ftsMatchExpression turns free text into an FTS query that ORs every
// word as a quoted phrase, so user punctuation is never parsed as syntax
func ftsMatchExpression(text string) string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !(r == '\'' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r > 127)
	})
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		quoted = append(quoted, `"`+strings.ReplaceAll(w, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// Close closes the database
func (s *SQLStore) Close(ctx context.Context) error {
	s.monitor.LogSummary()
	if err := s.db.Close(); err != nil {
		return errors.DatabaseErrorf(err, "failed to close %s database", s.dialect.name)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
