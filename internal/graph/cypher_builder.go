package graph

import (
	"fmt"
	"regexp"
)

// CypherBuilder builds parameterized Cypher statements. Labels, relationship
// types and property keys are interpolated only after identifier validation;
// every value travels as a parameter.
type CypherBuilder struct {
	params  map[string]any
	counter int
}

// NewCypherBuilder creates a query builder
func NewCypherBuilder() *CypherBuilder {
	return &CypherBuilder{
		params: make(map[string]any),
	}
}

// AddParam adds a parameter and returns its placeholder
func (b *CypherBuilder) AddParam(value any) string {
	paramName := fmt.Sprintf("p%d", b.counter)
	b.counter++
	b.params[paramName] = value
	return "$" + paramName
}

// Params returns all parameters for the query
func (b *CypherBuilder) Params() map[string]any {
	return b.params
}

// BuildUpsertNodes merges a batch of nodes by natural key.
// Each row is {key: ..., props: {...}}; SET += overwrites listed properties.
func (b *CypherBuilder) BuildUpsertNodes(label Label, rows []map[string]any) (string, error) {
	keyProp := KeyProperty(label)
	if err := validateIdentifiers(string(label), keyProp); err != nil {
		return "", err
	}

	rowsParam := b.AddParam(rows)
	return fmt.Sprintf(
		"UNWIND %s AS row MERGE (n:%s {%s: row.key}) SET n += row.props",
		rowsParam, label, keyProp,
	), nil
}

// BuildUpsertChildren merges a batch of nodes and an edge from one parent to
// each of them. No rows are written when the parent does not exist.
func (b *CypherBuilder) BuildUpsertChildren(parent NodeRef, rel RelType, label Label, rows []map[string]any) (string, error) {
	parentKey := KeyProperty(parent.Label)
	childKey := KeyProperty(label)
	if err := validateIdentifiers(string(parent.Label), parentKey, string(rel), string(label), childKey); err != nil {
		return "", err
	}

	parentParam := b.AddParam(parent.Key)
	rowsParam := b.AddParam(rows)
	return fmt.Sprintf(
		"MATCH (parent:%s {%s: %s}) UNWIND %s AS row "+
			"MERGE (n:%s {%s: row.key}) SET n += row.props "+
			"MERGE (parent)-[:%s]->(n)",
		parent.Label, parentKey, parentParam, rowsParam,
		label, childKey,
		rel,
	), nil
}

// BuildMergeEdges merges a batch of edges between existing nodes.
// Each row is {from: ..., to: ...}; all edges share endpoint labels.
func (b *CypherBuilder) BuildMergeEdges(fromLabel Label, rel RelType, toLabel Label, rows []map[string]any) (string, error) {
	fromKey := KeyProperty(fromLabel)
	toKey := KeyProperty(toLabel)
	if err := validateIdentifiers(string(fromLabel), fromKey, string(rel), string(toLabel), toKey); err != nil {
		return "", err
	}

	rowsParam := b.AddParam(rows)
	return fmt.Sprintf(
		"UNWIND %s AS row MATCH (from:%s {%s: row.from}) MATCH (to:%s {%s: row.to}) MERGE (from)-[:%s]->(to)",
		rowsParam,
		fromLabel, fromKey,
		toLabel, toKey,
		rel,
	), nil
}

// BuildUniqueConstraint creates an idempotent uniqueness constraint on a
// label's natural key
func (b *CypherBuilder) BuildUniqueConstraint(label Label) (string, error) {
	keyProp := KeyProperty(label)
	if err := validateIdentifiers(string(label), keyProp); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s_unique", toSnake(string(label)), keyProp)
	return fmt.Sprintf(
		"CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
		name, label, keyProp,
	), nil
}

// BuildFullTextIndex creates an idempotent full-text index over one property
func (b *CypherBuilder) BuildFullTextIndex(name string, label Label, property string) (string, error) {
	if err := validateIdentifiers(name, string(label), property); err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"CREATE FULLTEXT INDEX %s IF NOT EXISTS FOR (n:%s) ON EACH [n.%s]",
		name, label, property,
	), nil
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// isValidIdentifier validates that a string can be safely used as a Cypher identifier.
// Only allows alphanumeric characters and underscores.
func isValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

func validateIdentifiers(ids ...string) error {
	for _, id := range ids {
		if !isValidIdentifier(id) {
			return fmt.Errorf("invalid identifier: %q (must be alphanumeric + underscore)", id)
		}
	}
	return nil
}

func toSnake(s string) string {
	out := make([]byte, 0, len(s)+2)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
