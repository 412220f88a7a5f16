package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/patchgraph/internal/errors"
	"github.com/rohankatakam/patchgraph/internal/ingestion"
	"github.com/rohankatakam/patchgraph/internal/patchnotes"
	"github.com/rohankatakam/patchgraph/internal/roster"
)

// localSourceURL stands in for the article URL when parsing a saved page
const localSourceURL = "local://patch-notes.html"

var (
	listingURL string
	outPath    string

	parseURL       string
	parseHTMLFile  string
	parseSourceURL string

	agentsAPIURL string
)

var currentPatchCmd = &cobra.Command{
	Use:   "current-patch",
	Short: "Find the current patch notes article",
	Long: `Fetch the patch notes listing page and print the newest release-notes link.

Examples:
  patchgraph current-patch
  patchgraph current-patch --out data/current_patch.json`,
	Args: cobra.NoArgs,
	RunE: runCurrentPatch,
}

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Segment one patch notes article into sections and changes",
	Long: `Parse a patch notes article fetched from --url, or a saved page given with
--html-file. --source-url sets the URL recorded on each change of a saved page.

Examples:
  patchgraph parse --url https://playvalorant.com/en-us/news/game-updates/valorant-patch-notes-12-02/
  patchgraph parse --html-file page.html --source-url https://... --out patch.json`,
	Args: cobra.NoArgs,
	RunE: runParse,
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Fetch the playable agent roster",
	Args:  cobra.NoArgs,
	RunE:  runAgents,
}

func init() {
	currentPatchCmd.Flags().StringVar(&listingURL, "listing-url", "", "patch notes listing page (default: sources.listing_url)")
	currentPatchCmd.Flags().StringVar(&outPath, "out", "", "write JSON to this file instead of stdout")

	parseCmd.Flags().StringVar(&parseURL, "url", "", "article URL to fetch and parse")
	parseCmd.Flags().StringVar(&parseHTMLFile, "html-file", "", "local HTML file to parse")
	parseCmd.Flags().StringVar(&parseSourceURL, "source-url", "", "source URL recorded for --html-file (default: "+localSourceURL+")")
	parseCmd.Flags().StringVar(&outPath, "out", "", "write JSON to this file instead of stdout")
	parseCmd.MarkFlagsMutuallyExclusive("url", "html-file")
	parseCmd.MarkFlagsOneRequired("url", "html-file")

	agentsCmd.Flags().StringVar(&agentsAPIURL, "api-url", "", "agents API URL (default: sources.agents_api_url)")
	agentsCmd.Flags().StringVar(&outPath, "out", "", "write JSON to this file instead of stdout")
}

func runCurrentPatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	fetcher, err := newFetcher()
	if err != nil {
		return err
	}
	defer fetcher.Close()

	p := ingestion.NewPipeline(fetcher, nil, cfg.Sources, logger)
	link, err := p.CurrentPatch(ctx, listingURL)
	if err != nil {
		return err
	}
	return writeOutput(outPath, link, "current patch link")
}

func runParse(cmd *cobra.Command, args []string) error {
	if parseHTMLFile != "" {
		data, err := os.ReadFile(parseHTMLFile)
		if err != nil {
			return errors.FileSystemErrorf(err, "failed to read %s", parseHTMLFile)
		}
		sourceURL := parseSourceURL
		if sourceURL == "" {
			sourceURL = localSourceURL
		}
		doc := patchnotes.ParseArticleHTML(string(data), sourceURL)
		return writeOutput(outPath, doc, "parsed patch document")
	}

	ctx, cancel := commandContext()
	defer cancel()

	fetcher, err := newFetcher()
	if err != nil {
		return err
	}
	defer fetcher.Close()

	doc, err := ingestion.NewPipeline(fetcher, nil, cfg.Sources, logger).PatchDocument(ctx, parseURL)
	if err != nil {
		return err
	}
	logger.WithField("patch_id", doc.Patch.ID).Debug(fmt.Sprintf("parsed %d sections, %d changes", len(doc.Sections), doc.ChangeCount()))
	return writeOutput(outPath, doc, "parsed patch document")
}

func runAgents(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	fetcher, err := newFetcher()
	if err != nil {
		return err
	}
	defer fetcher.Close()

	url := agentsAPIURL
	if url == "" {
		url = cfg.Sources.AgentsAPIURL
	}
	r, err := roster.Fetch(ctx, fetcher, url)
	if err != nil {
		return err
	}
	return writeOutput(outPath, r, fmt.Sprintf("%d agents", len(r.Agents)))
}
