package main

import (
	"github.com/spf13/cobra"

	"github.com/shamayhq/nesach/internal/api"
	"github.com/shamayhq/nesach/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "nesach",
	Short: "Land-registry document extraction with staged LLM pipelines",
	Long: `Nesach extracts structured data from Hebrew land-registry documents
(nesach Tabu) using staged LLM calls over OCR'd or rendered pages.

The pipeline includes:
  - PDF page rendering and multi-provider OCR
  - A structure survey that counts owners, mortgages, notes and easements
  - Parallel comprehensive and per-category detail extraction
  - Deterministic merge with per-field confidence scores`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.nesach/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "nesach home directory (default: ~/.nesach)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
