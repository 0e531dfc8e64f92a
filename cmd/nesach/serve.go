package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shamayhq/nesach/internal/config"
	"github.com/shamayhq/nesach/internal/defra"
	"github.com/shamayhq/nesach/internal/server"
	"github.com/shamayhq/nesach/internal/server/endpoints"
)

var (
	serveHost       string
	servePort       string
	serveCPUWorkers int
	serveLogLevel   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Nesach server",
	Long: `Start the Nesach HTTP server.

This starts the HTTP API server, the DefraDB container and the job
scheduler. When the server shuts down (via Ctrl+C or SIGTERM), DefraDB
is also stopped. Extraction jobs interrupted by a shutdown resume on
the next start.

Examples:
  nesach serve                    # Start on default port 8080
  nesach serve --port 3000        # Start on custom port
  nesach serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Set up logger
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLogLevel(serveLogLevel),
		}))

		// Get home directory
		h, err := getHome()
		if err != nil {
			return err
		}

		// Ensure defradb data directory exists
		defraDataPath := filepath.Join(h.Path(), "defradb")
		if err := os.MkdirAll(defraDataPath, 0755); err != nil {
			return err
		}

		// Load file config for provider bootstrap, watch for changes
		cfgMgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfgMgr.WatchConfig()

		// Create server
		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			Home:          h,
			DefraDataPath: defraDataPath,
			DefraConfig: defra.DockerConfig{
				// Use defaults from defra package
			},
			ConfigManager:   cfgMgr,
			SwaggerSpecPath: endpoints.GetSwaggerSpecPath(),
			CPUWorkers:      serveCPUWorkers,
			Logger:          logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

// parseLogLevel maps a level name to slog.Level, defaulting to info.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")
	serveCmd.Flags().IntVar(&serveCPUWorkers, "cpu-workers", 0, "CPU pool size for page rendering (0 = all cores)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
}
