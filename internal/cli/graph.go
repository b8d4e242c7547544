package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/dossier/internal/identity"
)

var graphClear bool

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Dump the identity graph as JSON",
	Long: `Graph reads every node and relationship from the configured graph
database and prints them as JSON.

Example:
  NEO4J_URI=neo4j://localhost:7687 NEO4J_PASSWORD=secret dossier graph
  dossier graph --clear`,
	Args: cobra.NoArgs,
	RunE: runGraph,
}

func init() {
	rootCmd.AddCommand(graphCmd)

	graphCmd.Flags().BoolVar(&graphClear, "clear", false, "delete every node and relationship instead of printing")
}

func runGraph(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if cfg.Graph.URI == "" || cfg.Graph.URI == identity.MemoryURI {
		return fmt.Errorf("graph: %w", identity.ErrGraphDisabled)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client := identity.NewNeo4jClient(cfg.Graph, logger)
	defer func() { _ = client.Close(context.WithoutCancel(ctx)) }()
	if err := client.Connect(ctx); err != nil {
		return err
	}

	if graphClear {
		if err := client.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Cleared identity graph\n")
		return nil
	}

	g, err := client.FullGraph(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ %d nodes, %d relationships\n", len(g.Nodes), len(g.Relationships))

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(g)
}
