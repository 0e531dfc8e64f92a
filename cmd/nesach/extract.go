package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shamayhq/nesach/internal/config"
	"github.com/shamayhq/nesach/internal/extraction"
	"github.com/shamayhq/nesach/internal/ingest"
	"github.com/shamayhq/nesach/internal/pipeline"
	"github.com/shamayhq/nesach/internal/providers"
)

var (
	extractProvider string
	extractVision   bool
	extractOutFile  string
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract a single document without the server",
	Long: `Run the extraction pipeline over one document and print the result JSON.

This runs locally against the configured LLM provider. Nothing is
persisted: no DefraDB, no session, no metrics. Use 'nesach serve' plus
'nesach api sessions upload' for the durable path.

Text files run in text mode. PDFs and images are attached to the
provider as-is (vision mode); pass --vision to force it for text input.

Examples:
  nesach extract nesach.pdf
  nesach extract nesach.txt --llm-provider openai
  nesach extract nesach.pdf -f result.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Stage progress goes to stderr so stdout stays valid JSON
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read document: %w", err)
		}
		filename := filepath.Base(args[0])
		mediaType := ingest.DetectMediaType(filename, data)
		if mediaType == "" {
			return fmt.Errorf("unsupported document type: %s", filename)
		}

		cfgMgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cfgMgr.Get()

		registry := providers.NewRegistry()
		registry.SetLogger(logger)
		registry.Reload(cfg.ToProviderRegistryConfig())

		providerName := extractProvider
		if providerName == "" {
			providerName = cfg.Defaults.LLMProvider
		}
		client, err := registry.GetLLM(providerName)
		if err != nil {
			return fmt.Errorf("LLM provider %q not available: %w", providerName, err)
		}

		doc := extraction.Document{Filename: filename}
		switch mediaType {
		case "text/plain", "text/markdown":
			doc.Text = string(data)
		default:
			doc.Data = data
			doc.MediaType = mediaType
		}

		p, err := pipeline.New(pipeline.Config{
			Client:            client,
			DetailConcurrency: cfg.Defaults.DetailConcurrency,
			Logger:            logger,
		})
		if err != nil {
			return err
		}

		result, err := p.Run(ctx, doc, pipeline.Options{
			UseVision: extractVision || !doc.HasText(),
			IsPDF:     mediaType == "application/pdf",
		})
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		if extractOutFile != "" {
			return os.WriteFile(extractOutFile, out, 0o644)
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractProvider, "llm-provider", "", "LLM provider name (default from config)")
	extractCmd.Flags().BoolVar(&extractVision, "vision", false, "Force vision mode even for text input")
	extractCmd.Flags().StringVarP(&extractOutFile, "file", "f", "", "Write the result JSON to a file instead of stdout")

	rootCmd.AddCommand(extractCmd)
}
