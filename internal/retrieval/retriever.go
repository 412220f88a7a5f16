// Package retrieval answers free-text questions against the patch graph.
// Questions naming an agent take the entity path; everything else goes
// through full-text search, or substring matching when the store has no
// full-text index.
package retrieval

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/patchgraph/internal/errors"
	"github.com/rohankatakam/patchgraph/internal/graph"
	"github.com/rohankatakam/patchgraph/internal/models"
)

const (
	// DefaultTopK is the result limit when callers pass k <= 0
	DefaultTopK = 8
	// maxMatchedAgents caps entity resolution
	maxMatchedAgents = 4
)

// Path names the retrieval strategy that produced a result
type Path string

const (
	PathEntity   Path = "entity"
	PathFullText Path = "full_text"
	PathFallback Path = "substring"
)

// Result is the retriever output
type Result struct {
	MatchedAgents []string                 `json:"matched_agents"`
	Changes       []models.RetrievedChange `json:"changes"`
	Path          Path                     `json:"path"`
}

// Retriever runs read-only queries against a graph store
type Retriever struct {
	store  graph.Store
	logger *logrus.Entry
}

// NewRetriever creates a retriever over a graph store
func NewRetriever(store graph.Store, logger *logrus.Logger) *Retriever {
	return &Retriever{
		store:  store,
		logger: logger.WithField("component", "retriever"),
	}
}

// matchedAgent is an agent resolved from the query text
type matchedAgent struct {
	uuid     string
	name     string
	aliasLen int
}

// Retrieve returns up to k changes for the query
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (*Result, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	// a blank query matches nothing on any path
	if strings.TrimSpace(query) == "" {
		return &Result{MatchedAgents: []string{}, Changes: []models.RetrievedChange{}}, nil
	}
	start := time.Now()

	agents, err := r.resolveAgents(ctx, query)
	if err != nil {
		return nil, err
	}

	result := &Result{MatchedAgents: make([]string, 0, len(agents))}
	var rows []graph.Row

	if len(agents) > 0 {
		uuids := make([]string, len(agents))
		for i, a := range agents {
			uuids[i] = a.uuid
			result.MatchedAgents = append(result.MatchedAgents, a.name)
		}
		result.Path = PathEntity
		rows, err = r.store.Query(ctx, graph.Query{
			Pattern: graph.PatternChangesByAgents,
			Params:  graph.Params{"agent_uuids": uuids, "limit": k},
		})
	} else {
		result.Path = PathFullText
		rows, err = r.store.FullTextQuery(ctx, graph.FieldText, query, k)
		if errors.Is(err, graph.ErrSearchUnavailable) {
			r.logger.WithError(err).Debug("full-text search unavailable; using substring match")
			result.Path = PathFallback
			rows, err = r.store.Query(ctx, graph.Query{
				Pattern: graph.PatternChangesContaining,
				Params:  graph.Params{"text": query, "limit": k},
			})
		}
	}
	if err != nil {
		return nil, err
	}

	result.Changes = make([]models.RetrievedChange, 0, len(rows))
	for _, row := range rows {
		result.Changes = append(result.Changes, toRetrievedChange(row))
	}

	r.logger.WithFields(logrus.Fields{
		"path":           result.Path,
		"matched_agents": len(result.MatchedAgents),
		"changes":        len(result.Changes),
		"duration":       time.Since(start),
	}).Debug("retrieval completed")
	return result, nil
}

// resolveAgents finds agents with an alias contained in the query,
// longest matching alias first
func (r *Retriever) resolveAgents(ctx context.Context, query string) ([]matchedAgent, error) {
	lowered := strings.ToLower(query)
	if strings.TrimSpace(lowered) == "" {
		return nil, nil
	}

	rows, err := r.store.Query(ctx, graph.Query{Pattern: graph.PatternAgents})
	if err != nil {
		return nil, err
	}

	var matches []matchedAgent
	for _, row := range rows {
		uuid := row.String("uuid")
		name := row.String("name")
		aliases := row.Strings("aliases")
		if len(aliases) == 0 && name != "" {
			aliases = []string{name}
		}

		best := 0
		for _, alias := range aliases {
			a := strings.ToLower(strings.TrimSpace(alias))
			if a != "" && strings.Contains(lowered, a) && len(a) > best {
				best = len(a)
			}
		}
		if best > 0 && uuid != "" {
			matches = append(matches, matchedAgent{uuid: uuid, name: name, aliasLen: best})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].aliasLen != matches[j].aliasLen {
			return matches[i].aliasLen > matches[j].aliasLen
		}
		return matches[i].name < matches[j].name
	})
	if len(matches) > maxMatchedAgents {
		matches = matches[:maxMatchedAgents]
	}
	return matches, nil
}

func toRetrievedChange(row graph.Row) models.RetrievedChange {
	seen := make(map[string]bool)
	agents := []string{}
	for _, name := range row.Strings(graph.FieldAgents) {
		if !seen[name] {
			seen[name] = true
			agents = append(agents, name)
		}
	}
	return models.RetrievedChange{
		ChangeID:    row.String(graph.FieldChangeID),
		PatchID:     row.String(graph.FieldPatchID),
		SectionName: row.String(graph.FieldSectionName),
		Text:        row.String(graph.FieldText),
		SourceURL:   row.NullableString(graph.FieldSourceURL),
		Score:       row.Float(graph.FieldScore),
		Agents:      agents,
	}
}
