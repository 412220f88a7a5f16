package linking

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/patchgraph/internal/errors"
	"github.com/rohankatakam/patchgraph/internal/graph"
	"github.com/rohankatakam/patchgraph/internal/models"
)

// Linker rebuilds MENTIONS_AGENT edges for a patch
type Linker struct {
	store  graph.Store
	logger *logrus.Entry
}

// NewLinker creates a linker over a graph store
func NewLinker(store graph.Store, logger *logrus.Logger) *Linker {
	return &Linker{
		store:  store,
		logger: logger.WithField("component", "linker"),
	}
}

// Relink clears the patch's mention edges, re-reads its changes from the
// store and recreates an edge for every detected agent. Returns the number
// of (change, agent) pairs detected; edges to agents missing from the store
// are skipped by the store but still counted.
func (l *Linker) Relink(ctx context.Context, patchID string, agents []models.Agent) (int, error) {
	start := time.Now()
	params := graph.Params{"patch_id": patchID}

	if err := l.store.DeleteSubgraph(ctx, graph.PatternPatchMentions, params); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeDatabase, errors.SeverityHigh, "failed to clear mentions for patch "+patchID)
	}
	if len(agents) == 0 {
		l.logger.WithField("patch_id", patchID).Info("no agents loaded; mention linking skipped")
		return 0, nil
	}

	rows, err := l.store.Query(ctx, graph.Query{Pattern: graph.PatternPatchChanges, Params: params})
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeDatabase, errors.SeverityHigh, "failed to read changes for patch "+patchID)
	}

	var edges []graph.Edge
	for _, row := range rows {
		changeID := row.String(graph.FieldChangeID)
		for _, uuid := range DetectMentions(row.String(graph.FieldText), agents) {
			edges = append(edges, graph.Edge{
				From: graph.NodeRef{Label: graph.LabelChange, Key: changeID},
				To:   graph.NodeRef{Label: graph.LabelAgent, Key: uuid},
			})
		}
	}

	if err := l.store.UpsertEdges(ctx, graph.RelMentionsAgent, edges); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeDatabase, errors.SeverityHigh, "failed to write mentions for patch "+patchID)
	}

	l.logger.WithFields(logrus.Fields{
		"patch_id": patchID,
		"changes":  len(rows),
		"links":    len(edges),
		"duration": time.Since(start),
	}).Info("agent mentions relinked")
	return len(edges), nil
}
