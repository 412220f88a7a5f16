package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/patchgraph/internal/config"
	"github.com/rohankatakam/patchgraph/internal/mcp"
	"github.com/rohankatakam/patchgraph/internal/output"
	"github.com/rohankatakam/patchgraph/internal/retrieval"
)

var (
	queryText   string
	queryTopK   int
	queryFormat string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Ask questions about the loaded patch notes",
	Long: `Answer one question with --query, or read questions line by line until
"exit", "quit" or end of input.

Examples:
  patchgraph query --query "What changed for Reyna?"
  patchgraph query --query "ui" --format json
  echo "harbor" | patchgraph query`,
	Args: cobra.NoArgs,
	RunE: runQuery,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the query tool over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func init() {
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "ask one question and exit")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "maximum number of changes (default: retrieval.top_k)")
	queryCmd.Flags().StringVar(&queryFormat, "format", "", "output format: text, quiet or json")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	level := output.GetDefaultVerbosity()
	if queryFormat != "" {
		var ok bool
		if level, ok = output.ParseVerbosity(queryFormat); !ok {
			return fmt.Errorf("unknown format %q (use text, quiet or json)", queryFormat)
		}
	}
	formatter := output.NewFormatter(level)

	k := queryTopK
	if k <= 0 {
		k = cfg.Retrieval.TopK
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close(ctx)
	retriever := retrieval.NewRetriever(store, logger)

	if strings.TrimSpace(queryText) != "" {
		return answer(ctx, retriever, queryText, k, formatter, os.Stdout)
	}
	return runREPL(ctx, retriever, os.Stdin, os.Stdout, k, formatter, config.IsInteractive())
}

// runREPL answers one question per input line. A failed question is
// reported and the loop continues.
func runREPL(ctx context.Context, r mcp.Retriever, in io.Reader, out io.Writer, k int, formatter output.Formatter, interactive bool) error {
	if interactive {
		fmt.Fprintln(out, "Interactive mode. Type 'exit' to quit.")
	}

	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			if interactive {
				fmt.Fprintln(out)
			}
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch strings.ToLower(line) {
		case "exit", "quit":
			return nil
		}

		if err := answer(ctx, r, line, k, formatter, out); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
		fmt.Fprintln(out)
	}
}

func answer(ctx context.Context, r mcp.Retriever, question string, k int, formatter output.Formatter, out io.Writer) error {
	question = strings.TrimSpace(question)
	result, err := r.Retrieve(ctx, question, k)
	if err != nil {
		return err
	}
	return formatter.Format(&output.Answer{Question: question, Result: result}, out)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	srv := mcp.NewServer(retrieval.NewRetriever(store, logger), Version, logger)
	logger.WithField("tool", mcp.QueryToolName).Info("serving MCP on stdio")
	return mcp.ServeStdio(ctx, srv)
}
