package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/patchgraph/internal/errors"
	"github.com/rohankatakam/patchgraph/internal/graph"
	"github.com/rohankatakam/patchgraph/internal/linking"
	"github.com/rohankatakam/patchgraph/internal/models"
)

// LoadOptions controls the destructive and schema steps of a load
type LoadOptions struct {
	// Wipe deletes the entire graph before loading
	Wipe bool
	// ApplySchema creates constraints and indexes before loading
	ApplySchema bool
}

// Materializer writes a patch document and agent roster into a graph store.
// Patch, section and change nodes of the patch are rebuilt on every load;
// agent nodes are only ever upserted.
type Materializer struct {
	store  graph.Store
	linker *linking.Linker
	logger *logrus.Logger
}

// NewMaterializer creates a materializer over a graph store
func NewMaterializer(store graph.Store, logger *logrus.Logger) *Materializer {
	return &Materializer{
		store:  store,
		linker: linking.NewLinker(store, logger),
		logger: logger,
	}
}

// Load materializes doc and agents. Each step commits on its own, so a
// failure part way leaves earlier steps applied; rerunning converges.
func (m *Materializer) Load(ctx context.Context, doc *models.PatchDocument, agents []models.Agent, opts LoadOptions) (*models.LoadStats, error) {
	if doc == nil || doc.Patch.ID == "" {
		return nil, errors.ValidationErrorf("patch document has no patch id")
	}

	startTime := time.Now()
	patchID := doc.Patch.ID
	log := m.logger.WithFields(logrus.Fields{
		"component": "materializer",
		"patch_id":  patchID,
	})
	log.Info("Starting graph materialization")

	// Step 0: optional wipe and schema
	if opts.Wipe {
		if err := m.store.DeleteSubgraph(ctx, graph.PatternEverything, nil); err != nil {
			return nil, err
		}
		log.Warn("graph wiped")
	}
	if opts.ApplySchema {
		if err := m.store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}

	// Step 1: agents
	agentNodes := agentNodes(agents)
	if err := m.store.UpsertNodes(ctx, graph.LabelAgent, agentNodes); err != nil {
		return nil, err
	}

	// Step 2: patch
	if err := m.store.UpsertNodes(ctx, graph.LabelPatch, []graph.Node{patchNode(doc.Patch)}); err != nil {
		return nil, err
	}

	// Step 3: clear the previous sections, changes and their mentions
	if err := m.store.DeleteSubgraph(ctx, graph.PatternPatchSubgraph, graph.Params{"patch_id": patchID}); err != nil {
		return nil, err
	}

	// Step 4: sections
	patchRef := graph.NodeRef{Label: graph.LabelPatch, Key: patchID}
	sections := make([]graph.Node, len(doc.Sections))
	for i, s := range doc.Sections {
		sections[i] = graph.Node{Key: s.ID, Properties: map[string]any{
			"name":     s.Name,
			"order":    s.Order,
			"patch_id": patchID,
		}}
	}
	if err := m.store.UpsertChildren(ctx, patchRef, graph.RelHasSection, graph.LabelSection, sections); err != nil {
		return nil, err
	}

	// Step 5: one batched write of changes per section
	changeCount := 0
	for _, s := range doc.Sections {
		changes := make([]graph.Node, len(s.Changes))
		for i, c := range s.Changes {
			changes[i] = graph.Node{Key: c.ID, Properties: map[string]any{
				"text":         c.Text,
				"section_name": c.SectionName,
				"source_url":   c.SourceURL,
				"order":        c.Order,
			}}
		}
		sectionRef := graph.NodeRef{Label: graph.LabelSection, Key: s.ID}
		if err := m.store.UpsertChildren(ctx, sectionRef, graph.RelHasChange, graph.LabelChange, changes); err != nil {
			return nil, err
		}
		changeCount += len(changes)
	}

	// Step 6: mentions
	links, err := m.linker.Relink(ctx, patchID, agents)
	if err != nil {
		return nil, err
	}

	stats := &models.LoadStats{
		Sections:   len(doc.Sections),
		Changes:    changeCount,
		Agents:     len(agents),
		AgentLinks: links,
	}
	log.WithFields(logrus.Fields{
		"duration":    time.Since(startTime).String(),
		"sections":    stats.Sections,
		"changes":     stats.Changes,
		"agents":      stats.Agents,
		"agent_links": stats.AgentLinks,
	}).Info("Graph materialization completed")
	return stats, nil
}

func agentNodes(agents []models.Agent) []graph.Node {
	nodes := make([]graph.Node, 0, len(agents))
	for _, a := range agents {
		if a.UUID == "" {
			continue
		}
		abilities := a.Abilities
		if abilities == nil {
			abilities = []string{}
		}
		aliases := a.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		nodes = append(nodes, graph.Node{Key: a.UUID, Properties: map[string]any{
			"name":      a.Name,
			"role":      deref(a.Role),
			"icon_url":  deref(a.IconURL),
			"abilities": abilities,
			"aliases":   aliases,
		}})
	}
	return nodes
}

func patchNode(p models.Patch) graph.Node {
	return graph.Node{Key: p.ID, Properties: map[string]any{
		"title":        p.Title,
		"url":          p.URL,
		"published_at": deref(p.PublishedAt),
	}}
}

// deref turns an optional string into a plain property value; nil stays nil
// so the store records a null rather than an empty string
func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// Describe renders stats for CLI output
func Describe(stats *models.LoadStats) string {
	return fmt.Sprintf("sections=%d changes=%d agents=%d agent_links=%d",
		stats.Sections, stats.Changes, stats.Agents, stats.AgentLinks)
}
