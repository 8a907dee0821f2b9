package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozo2/Hatchling/internal/config"
	"github.com/kozo2/Hatchling/internal/provider"
)

var modelsCmd = &cobra.Command{
	Use:   "models [provider]",
	Short: "List available models",
	Long: `List the models offered by the configured backends.

Examples:
  hatchling models           # all backends
  hatchling models ollama    # one backend`,
	RunE: runModels,
}

func runModels(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	settings, err := config.Load(wd)
	if err != nil {
		return err
	}

	registry := provider.NewDefaultRegistry(settings)
	defer registry.Close()

	ids := registry.IDs()
	if len(args) > 0 {
		ids = []string{strings.ToLower(args[0])}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	for _, id := range ids {
		prov, err := registry.Get(id)
		if err != nil {
			return err
		}
		models, err := prov.ListModels(cmd.Context())
		if err != nil {
			fmt.Fprintf(w, "%s\t(unavailable: %v)\n", id, err)
			continue
		}
		for _, m := range models {
			marker := ""
			if id == settings.LLM.Provider && m == settings.LLM.Model {
				marker = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", id, m, marker)
		}
	}
	return nil
}
