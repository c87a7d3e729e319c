// Command officerctl parses officer reports and renders prompts offline,
// without the database, queue or object storage.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/visa"
)

func newRootCmd() *cobra.Command {
	var catalogPath string
	root := &cobra.Command{
		Use:           "officerctl",
		Short:         "Offline tools for officer-style petition reviews",
		Long:          "officerctl parses generated officer reports into structured scores, lists the supported visa categories and renders the review prompts.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&catalogPath, "catalog", "", "Path to a visa catalog YAML file (defaults to the embedded catalog)")

	loadCatalog := func() (*visa.Catalog, error) {
		if catalogPath == "" {
			return visa.Default(), nil
		}
		data, err := os.ReadFile(catalogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog: %w", err)
		}
		return visa.Parse(data)
	}

	root.AddCommand(
		newParseCmd(loadCatalog),
		newVisasCmd(loadCatalog),
		newPromptCmd(loadCatalog),
		newHashPasswordCmd(),
	)
	return root
}

type catalogLoader func() (*visa.Catalog, error)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput reads path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	return data, nil
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
