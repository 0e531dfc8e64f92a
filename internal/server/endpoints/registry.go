package endpoints

import (
	"github.com/shamayhq/nesach/internal/api"
	"github.com/shamayhq/nesach/internal/defra"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	DefraManager    *defra.DockerManager
	SwaggerSpecPath string
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{DefraManager: cfg.DefraManager},

		// Session endpoints
		&UploadSessionEndpoint{},
		&ListSessionsEndpoint{},
		&GetSessionEndpoint{},
		&SessionResultEndpoint{},
		&RerunSessionEndpoint{},

		// Page endpoints
		&PageImageEndpoint{},
		&ListPagesEndpoint{},
		&GetPageEndpoint{},

		// Job endpoints
		&CreateJobEndpoint{},
		&ListJobsEndpoint{},
		&GetJobEndpoint{},
		&UpdateJobEndpoint{},
		&DeleteJobEndpoint{},
		&StartJobEndpoint{},
		&JobStatusEndpoint{},
		&DetailedJobStatusEndpoint{},

		// Metrics endpoints
		&ListMetricsEndpoint{},
		&MetricsCostEndpoint{},
		&MetricsSummaryEndpoint{},
		&MetricsDetailedEndpoint{},
		&SessionCostEndpoint{},
		&SessionMetricsDetailedEndpoint{},

		// Export endpoints
		&ExportExcelEndpoint{},

		// Provider registry endpoints
		&RegistryEndpoint{},

		// Settings endpoints
		&ListSettingsEndpoint{},
		&GetSettingEndpoint{},
		&UpdateSettingEndpoint{},
		&ResetSettingEndpoint{},

		// LLM call history endpoints
		&ListLLMCallsEndpoint{},
		&GetLLMCallEndpoint{},
		&LLMCallCountsEndpoint{},

		// Prompt endpoints
		&ListPromptsEndpoint{},
		&GetPromptEndpoint{},
		&ListSessionPromptsEndpoint{},
		&GetSessionPromptEndpoint{},
		&SetSessionPromptEndpoint{},
		&ClearSessionPromptEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{SpecPath: cfg.SwaggerSpecPath},
		&SwaggerUIEndpoint{},

		// Static files (catch-all, must be last)
		&StaticEndpoint{},
	}
}

// SessionCommands returns endpoints for session operations.
// This groups session-related commands under "sessions" subcommand.
func SessionCommands() []api.Endpoint {
	return []api.Endpoint{
		&UploadSessionEndpoint{},
		&ListSessionsEndpoint{},
		&GetSessionEndpoint{},
		&SessionResultEndpoint{},
		&RerunSessionEndpoint{},
		&SessionCostEndpoint{},
		&SessionMetricsDetailedEndpoint{},
	}
}

// JobCommands returns endpoints for job operations.
// This groups job-related commands under "jobs" subcommand.
func JobCommands() []api.Endpoint {
	return []api.Endpoint{
		&CreateJobEndpoint{},
		&ListJobsEndpoint{},
		&GetJobEndpoint{},
		&UpdateJobEndpoint{},
		&DeleteJobEndpoint{},
		&StartJobEndpoint{},
		&JobStatusEndpoint{},
		&DetailedJobStatusEndpoint{},
	}
}

// SettingsCommands returns endpoints for settings operations.
// This groups settings-related commands under "settings" subcommand.
func SettingsCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListSettingsEndpoint{},
		&GetSettingEndpoint{},
		&UpdateSettingEndpoint{},
		&ResetSettingEndpoint{},
	}
}

// MetricsCommands returns endpoints for metrics operations.
// This groups metrics-related commands under "metrics" subcommand.
func MetricsCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListMetricsEndpoint{},
		&MetricsCostEndpoint{},
		&MetricsSummaryEndpoint{},
		&MetricsDetailedEndpoint{},
	}
}

// LLMCallCommands returns endpoints for LLM call history operations.
// This groups llmcall-related commands under "llmcalls" subcommand.
func LLMCallCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListLLMCallsEndpoint{},
		&GetLLMCallEndpoint{},
		&LLMCallCountsEndpoint{},
	}
}
