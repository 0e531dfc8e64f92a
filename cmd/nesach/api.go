package main

import (
	"github.com/spf13/cobra"

	"github.com/shamayhq/nesach/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running Nesach server via HTTP.

These commands require a running server (nesach serve).
Use --server to specify a custom server URL.

Examples:
  nesach api health                   # Check server health
  nesach api sessions upload doc.pdf  # Upload a document and extract
  nesach api sessions result <id>     # Get an extraction result`,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Session management commands",
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Job management commands",
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Metrics and cost tracking commands",
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Configuration settings commands",
}

var llmcallsCmd = &cobra.Command{
	Use:   "llmcalls",
	Short: "LLM call history commands",
}

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Prompt inspection and override commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ReadyEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.StatusEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.RegistryEndpoint{}).Command(getServerURL))

	// Sessions as subcommand group
	sessionsCmd.AddCommand((&endpoints.UploadSessionEndpoint{}).Command(getServerURL))
	sessionsCmd.AddCommand((&endpoints.ListSessionsEndpoint{}).Command(getServerURL))
	sessionsCmd.AddCommand((&endpoints.GetSessionEndpoint{}).Command(getServerURL))
	sessionsCmd.AddCommand((&endpoints.SessionResultEndpoint{}).Command(getServerURL))
	sessionsCmd.AddCommand((&endpoints.RerunSessionEndpoint{}).Command(getServerURL))
	sessionsCmd.AddCommand((&endpoints.SessionCostEndpoint{}).Command(getServerURL))
	sessionsCmd.AddCommand((&endpoints.SessionMetricsDetailedEndpoint{}).Command(getServerURL))

	// Jobs as subcommand group
	jobsCmd.AddCommand((&endpoints.CreateJobEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.ListJobsEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.GetJobEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.UpdateJobEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.DeleteJobEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.StartJobEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.JobStatusEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.DetailedJobStatusEndpoint{}).Command(getServerURL))

	// Metrics as subcommand group
	metricsCmd.AddCommand((&endpoints.ListMetricsEndpoint{}).Command(getServerURL))
	metricsCmd.AddCommand((&endpoints.MetricsCostEndpoint{}).Command(getServerURL))
	metricsCmd.AddCommand((&endpoints.MetricsSummaryEndpoint{}).Command(getServerURL))
	metricsCmd.AddCommand((&endpoints.MetricsDetailedEndpoint{}).Command(getServerURL))

	// Excel export at top level
	apiCmd.AddCommand((&endpoints.ExportExcelEndpoint{}).Command(getServerURL))

	// Settings as subcommand group
	settingsCmd.AddCommand((&endpoints.ListSettingsEndpoint{}).Command(getServerURL))
	settingsCmd.AddCommand((&endpoints.GetSettingEndpoint{}).Command(getServerURL))
	settingsCmd.AddCommand((&endpoints.UpdateSettingEndpoint{}).Command(getServerURL))
	settingsCmd.AddCommand((&endpoints.ResetSettingEndpoint{}).Command(getServerURL))

	// LLM calls as subcommand group
	llmcallsCmd.AddCommand((&endpoints.ListLLMCallsEndpoint{}).Command(getServerURL))
	llmcallsCmd.AddCommand((&endpoints.GetLLMCallEndpoint{}).Command(getServerURL))
	llmcallsCmd.AddCommand((&endpoints.LLMCallCountsEndpoint{}).Command(getServerURL))

	// Prompts as subcommand group
	promptsCmd.AddCommand((&endpoints.ListPromptsEndpoint{}).Command(getServerURL))
	promptsCmd.AddCommand((&endpoints.GetPromptEndpoint{}).Command(getServerURL))
	promptsCmd.AddCommand((&endpoints.ListSessionPromptsEndpoint{}).Command(getServerURL))
	promptsCmd.AddCommand((&endpoints.GetSessionPromptEndpoint{}).Command(getServerURL))
	promptsCmd.AddCommand((&endpoints.SetSessionPromptEndpoint{}).Command(getServerURL))
	promptsCmd.AddCommand((&endpoints.ClearSessionPromptEndpoint{}).Command(getServerURL))

	// Swagger spec fetch at top level
	apiCmd.AddCommand((&endpoints.SwaggerEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(sessionsCmd)
	apiCmd.AddCommand(jobsCmd)
	apiCmd.AddCommand(metricsCmd)
	apiCmd.AddCommand(settingsCmd)
	apiCmd.AddCommand(llmcallsCmd)
	apiCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(apiCmd)
}
