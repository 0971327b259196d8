package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	// Imported for their topic declarations.
	_ "github.com/tradepost/chatkit/internal/session"
	_ "github.com/tradepost/chatkit/internal/transport"

	"github.com/tradepost/chatkit/internal/topics"
)

var (
	topicsOutputFormat string
	topicsScopeFilter  string
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Inspect the event catalog",
}

var topicsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered topics and wire events",
	Long: `List every event channel the chat core uses: consumer-bus topics
published for presentation layers and named wire events exchanged over the
push channel.

Examples:
  chatkit topics list                  # All topics in table format
  chatkit topics list --scope wire     # Only push-channel wire events
  chatkit topics list --scope bus      # Only consumer-bus topics
  chatkit topics list --format json    # Machine-readable output`,
	RunE: topicsListHandler,
}

func topicsListHandler(cmd *cobra.Command, args []string) error {
	scope := topics.Scope(topicsScopeFilter)
	switch scope {
	case "", topics.ScopeBus, topics.ScopeWire:
	default:
		return fmt.Errorf("unknown scope %q (want bus or wire)", topicsScopeFilter)
	}

	list := topics.Default().List(scope)

	if topicsOutputFormat == "json" {
		out := make([]map[string]string, 0, len(list))
		for _, cfg := range list {
			out = append(out, map[string]string{
				"name":        cfg.Name,
				"scope":       string(cfg.Scope),
				"direction":   cfg.Direction,
				"description": cfg.Description,
				"example":     cfg.Example,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSCOPE\tDIRECTION\tDESCRIPTION")
	for _, cfg := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", cfg.Name, cfg.Scope, cfg.Direction, cfg.Description)
	}
	return w.Flush()
}

func init() {
	topicsListCmd.Flags().StringVar(&topicsOutputFormat, "format", "table", "Output format: table or json")
	topicsListCmd.Flags().StringVar(&topicsScopeFilter, "scope", "", "Filter by scope: bus or wire")
	topicsCmd.AddCommand(topicsListCmd)
	rootCmd.AddCommand(topicsCmd)
}
