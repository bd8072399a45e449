package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/chatsync/internal/provider"
)

var modelsTools bool

var modelsCmd = &cobra.Command{
	Use:   "models [provider]",
	Short: "List available models",
	Long: `List the models offered by a running server.

Examples:
  chatsync models              # List all models
  chatsync models groq         # List only groq models
  chatsync models --tools      # Only models that can call tools`,
	Args: cobra.MaximumNArgs(1),
	RunE: runModels,
}

func init() {
	modelsCmd.Flags().BoolVar(&modelsTools, "tools", false, "Only list tool-capable models")
}

func runModels(cmd *cobra.Command, args []string) error {
	catalog, err := newClient().Models(cmd.Context())
	if err != nil {
		return err
	}

	var providerFilter string
	if len(args) > 0 {
		providerFilter = args[0]
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tMODEL\tNAME\tFEATURES\t")

	for _, kind := range provider.Kinds {
		name := string(kind)
		if providerFilter != "" && providerFilter != name {
			continue
		}
		for _, m := range catalog[name] {
			if modelsTools && !m.SupportsTools {
				continue
			}
			features := "chat"
			if m.SupportsTools {
				features += ",tools"
			}
			if kind.Capabilities().Streaming {
				features += ",stream"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", name, m.ID, m.DisplayName, features)
		}
	}
	return w.Flush()
}
