package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/patchgraph/internal/config"
	"github.com/rohankatakam/patchgraph/internal/fetch"
	"github.com/rohankatakam/patchgraph/internal/graph"
	"github.com/rohankatakam/patchgraph/internal/ingestion"
	"github.com/rohankatakam/patchgraph/internal/logging"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile     string
	verbose     bool
	logger      *logrus.Logger
	cfg         *config.Config
	closeLogger = func() error { return nil }
)

func main() {
	err := rootCmd.Execute()
	_ = closeLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "patchgraph",
	Short: "patchgraph - VALORANT patch notes as a queryable graph",
	Long: `patchgraph finds the current VALORANT patch notes, segments them into
sections and changes, links changes to the agents they mention and stores the
result in a graph that can be queried from the command line or over MCP.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			logrus.WithError(err).Warn("Failed to load config, using defaults")
			cfg = config.Default()
		}

		// stdout carries command output and the MCP stream; logs go to stderr
		opts := logging.OptionsFromConfig(cfg.Log)
		opts.Console = os.Stderr
		opts.Verbose = verbose
		logger, closeLogger, err = logging.New(opts)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .patchgraph/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.SetVersionTemplate(`patchgraph {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(currentPatchCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(pipelineCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(configCmd)
}

// commandContext is cancelled on SIGINT or SIGTERM
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openStore validates the store settings and connects to the configured backend
func openStore(ctx context.Context) (graph.Store, error) {
	if err := cfg.Validate(config.ValidationContextStore).Err(); err != nil {
		return nil, err
	}
	return graph.Open(ctx, cfg, logger)
}

// newFetcher builds the HTTP fetcher from the fetch settings
func newFetcher() (*fetch.Fetcher, error) {
	if err := cfg.Validate(config.ValidationContextFetch).Err(); err != nil {
		return nil, err
	}
	return fetch.New(fetch.OptionsFromConfig(cfg.Fetch), logger)
}

// writeOutput writes v as JSON to path, or to stdout when path is empty
func writeOutput(path string, v any, what string) error {
	if path == "" {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	if err := ingestion.WriteJSON(path, v); err != nil {
		return err
	}
	fmt.Printf("Wrote %s to %s\n", what, path)
	return nil
}
