package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/patchgraph/internal/config"
	"github.com/rohankatakam/patchgraph/internal/ingestion"
	"github.com/rohankatakam/patchgraph/internal/models"
	"github.com/rohankatakam/patchgraph/internal/roster"
)

var (
	patchJSON  string
	agentsJSON string
	wipe       bool
	skipSchema bool

	outputDir  string
	skipAgents bool
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load a parsed patch document into the graph",
	Long: `Materialize a patch document (and optionally an agent roster) into the
configured graph store. Loading the same document twice leaves the graph
unchanged.

Examples:
  patchgraph load --patch-json data/patch_12.02.json --agents-json data/agents.json
  patchgraph load --patch-json data/patch_12.02.json --wipe`,
	Args: cobra.NoArgs,
	RunE: runLoad,
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Fetch, parse and load the current patch end to end",
	Long: `Locate the current patch notes, segment the article, fetch the agent roster
and load everything into the graph. JSON artifacts are written to the output
directory: current_patch.json, patch_<id>.json and agents.json.`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

func init() {
	loadCmd.Flags().StringVar(&patchJSON, "patch-json", "", "parsed patch document JSON")
	loadCmd.Flags().StringVar(&agentsJSON, "agents-json", "", "agent roster JSON (optional)")
	loadCmd.Flags().BoolVar(&wipe, "wipe", false, "delete all graph data before loading")
	loadCmd.Flags().BoolVar(&skipSchema, "skip-schema", false, "do not apply constraints and indexes")
	_ = loadCmd.MarkFlagRequired("patch-json")

	pipelineCmd.Flags().StringVar(&outputDir, "output-dir", "", "artifact directory (default: output.directory)")
	pipelineCmd.Flags().BoolVar(&skipAgents, "skip-agents", false, "skip fetching and loading agents")
	pipelineCmd.Flags().BoolVar(&wipe, "wipe", false, "delete all graph data before loading")
	pipelineCmd.Flags().BoolVar(&skipSchema, "skip-schema", false, "do not apply constraints and indexes")
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	doc, err := ingestion.ReadPatchDocument(patchJSON)
	if err != nil {
		return err
	}
	var agents []models.Agent
	if agentsJSON != "" {
		r, err := roster.Load(agentsJSON)
		if err != nil {
			return err
		}
		agents = r.Agents
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	m := ingestion.NewMaterializer(store, logger)
	stats, err := m.Load(ctx, doc, agents, ingestion.LoadOptions{Wipe: wipe, ApplySchema: !skipSchema})
	if err != nil {
		return err
	}

	fmt.Printf("✅ Loaded patch %s (%s)\n", doc.Patch.ID, ingestion.Describe(stats))
	return nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	if err := cfg.Validate(config.ValidationContextAll).Err(); err != nil {
		return err
	}
	fetcher, err := newFetcher()
	if err != nil {
		return err
	}
	defer fetcher.Close()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	dir := outputDir
	if dir == "" {
		dir = cfg.Output.Directory
	}

	p := ingestion.NewPipeline(fetcher, ingestion.NewMaterializer(store, logger), cfg.Sources, logger)
	result, err := p.Run(ctx, ingestion.RunOptions{
		OutputDir:   dir,
		SkipAgents:  skipAgents,
		Wipe:        wipe,
		ApplySchema: !skipSchema,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Current patch: %s\n", result.Link.URL)
	for _, path := range result.Artifacts {
		fmt.Printf("Wrote %s\n", path)
	}
	fmt.Printf("✅ Loaded patch %s (%s) in %s\n", result.Document.Patch.ID, ingestion.Describe(result.Stats), result.Duration.Round(time.Millisecond))
	return nil
}
