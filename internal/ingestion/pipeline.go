package ingestion

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/patchgraph/internal/config"
	"github.com/rohankatakam/patchgraph/internal/htmlscan"
	"github.com/rohankatakam/patchgraph/internal/models"
	"github.com/rohankatakam/patchgraph/internal/patchnotes"
	"github.com/rohankatakam/patchgraph/internal/roster"
)

// RunOptions controls one pipeline run
type RunOptions struct {
	OutputDir   string // artifacts are skipped when empty
	SkipAgents  bool
	Wipe        bool
	ApplySchema bool
}

// RunResult contains the results of a pipeline run
type RunResult struct {
	RunID     string
	Link      *models.PatchLink
	Document  *models.PatchDocument
	Roster    *models.Roster // nil when agents were skipped
	Stats     *models.LoadStats
	Artifacts []string
	Duration  time.Duration
}

// Pipeline runs listing → article → roster → graph, sequentially
type Pipeline struct {
	getter       roster.Getter
	materializer *Materializer
	sources      config.SourcesConfig
	rules        patchnotes.Rules
	logger       *logrus.Logger
}

// NewPipeline creates a pipeline. getter is usually a *fetch.Fetcher.
func NewPipeline(getter roster.Getter, materializer *Materializer, sources config.SourcesConfig, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		getter:       getter,
		materializer: materializer,
		sources:      sources,
		rules:        patchnotes.DefaultRules(),
		logger:       logger,
	}
}

// CurrentPatch fetches the listing page and picks the current article.
// An empty listingURL uses the configured one.
func (p *Pipeline) CurrentPatch(ctx context.Context, listingURL string) (*models.PatchLink, error) {
	if listingURL == "" {
		listingURL = p.sources.ListingURL
	}
	body, err := p.getter.Get(ctx, listingURL)
	if err != nil {
		return nil, err
	}
	return patchnotes.ExtractCurrentPatchLink(htmlscan.Scan(string(body)), p.sources.BaseURL, p.rules)
}

// PatchDocument fetches and segments one article
func (p *Pipeline) PatchDocument(ctx context.Context, articleURL string) (*models.PatchDocument, error) {
	body, err := p.getter.Get(ctx, articleURL)
	if err != nil {
		return nil, err
	}
	return patchnotes.ParseArticle(htmlscan.Scan(string(body)), articleURL, p.rules), nil
}

// Roster fetches the agent roster from the configured API
func (p *Pipeline) Roster(ctx context.Context) (*models.Roster, error) {
	return roster.Fetch(ctx, p.getter, p.sources.AgentsAPIURL)
}

// Run executes the complete pipeline. Any fetch, parse or store error ends
// the run; there are no retries.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	startTime := time.Now()
	result := &RunResult{RunID: uuid.New().String()}
	log := p.logger.WithFields(logrus.Fields{
		"component": "pipeline",
		"run_id":    result.RunID,
	})
	log.Info("Starting pipeline run")

	// Phase 1: locate the current article
	link, err := p.CurrentPatch(ctx, "")
	if err != nil {
		return nil, err
	}
	result.Link = link
	log.WithFields(logrus.Fields{"url": link.URL, "patch_id": link.PatchID}).Info("current patch located")

	// Phase 2: segment it
	doc, err := p.PatchDocument(ctx, link.URL)
	if err != nil {
		return nil, err
	}
	result.Document = doc

	if opts.OutputDir != "" {
		if err := p.writeArtifact(result, filepath.Join(opts.OutputDir, CurrentPatchFile), link); err != nil {
			return nil, err
		}
		if err := p.writeArtifact(result, filepath.Join(opts.OutputDir, PatchDocumentFile(doc.Patch.ID)), doc); err != nil {
			return nil, err
		}
	}

	// Phase 3: roster
	var agents []models.Agent
	if !opts.SkipAgents {
		r, err := p.Roster(ctx)
		if err != nil {
			return nil, err
		}
		result.Roster = r
		agents = r.Agents
		if opts.OutputDir != "" {
			if err := p.writeArtifact(result, filepath.Join(opts.OutputDir, AgentsFile), r); err != nil {
				return nil, err
			}
		}
	}

	// Phase 4: materialize
	stats, err := p.materializer.Load(ctx, doc, agents, LoadOptions{Wipe: opts.Wipe, ApplySchema: opts.ApplySchema})
	if err != nil {
		return nil, err
	}
	result.Stats = stats
	result.Duration = time.Since(startTime)

	log.WithFields(logrus.Fields{
		"duration":  result.Duration.String(),
		"patch_id":  doc.Patch.ID,
		"sections":  stats.Sections,
		"changes":   stats.Changes,
		"artifacts": len(result.Artifacts),
	}).Info("Pipeline run completed")
	return result, nil
}

func (p *Pipeline) writeArtifact(result *RunResult, path string, v any) error {
	if err := WriteJSON(path, v); err != nil {
		return err
	}
	result.Artifacts = append(result.Artifacts, path)
	return nil
}
