package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// DefaultEntries returns the default configuration entries.
// These are seeded into DefraDB on first run.
func DefaultEntries() []Entry {
	return []Entry{
		// ===================
		// OCR Providers
		// ===================

		// OCR Providers - Mistral
		{
			Key:         "providers.ocr.mistral.type",
			Value:       "mistral-ocr",
			Description: "OCR provider type for Mistral",
		},
		{
			Key:         "providers.ocr.mistral.api_key",
			Value:       "${MISTRAL_API_KEY}",
			Description: "Mistral API key (uses environment variable)",
		},
		{
			Key:         "providers.ocr.mistral.rate_limit",
			Value:       6.0,
			Description: "Rate limit in requests per second for Mistral",
		},
		{
			Key:         "providers.ocr.mistral.enabled",
			Value:       true,
			Description: "Whether Mistral OCR provider is enabled",
		},
		{
			Key:         "providers.ocr.mistral.timeout_seconds",
			Value:       500,
			Description: "HTTP timeout in seconds for Mistral OCR requests",
		},
		{
			Key:         "providers.ocr.mistral.max_retries",
			Value:       7,
			Description: "Maximum retry attempts for failed Mistral requests",
		},
		{
			Key:         "providers.ocr.mistral.max_concurrency",
			Value:       30,
			Description: "Maximum concurrent requests to Mistral",
		},

		// OCR Providers - DeepInfra
		{
			Key:         "providers.ocr.deepinfra.type",
			Value:       "deepinfra",
			Description: "OCR provider type for DeepInfra",
		},
		{
			Key:         "providers.ocr.deepinfra.model",
			Value:       "allenai/olmOCR-7B-0725-FP8",
			Description: "Vision model used for DeepInfra OCR",
		},
		{
			Key:         "providers.ocr.deepinfra.api_key",
			Value:       "${DEEPINFRA_API_KEY}",
			Description: "DeepInfra API key (uses environment variable)",
		},
		{
			Key:         "providers.ocr.deepinfra.rate_limit",
			Value:       3.0,
			Description: "Rate limit in requests per second for DeepInfra",
		},
		{
			Key:         "providers.ocr.deepinfra.enabled",
			Value:       false,
			Description: "Whether DeepInfra OCR provider is enabled",
		},

		// ===================
		// LLM Providers
		// ===================

		// LLM Providers - OpenRouter
		{
			Key:         "providers.llm.openrouter.type",
			Value:       "openrouter",
			Description: "LLM provider type for OpenRouter",
		},
		{
			Key:         "providers.llm.openrouter.model",
			Value:       "anthropic/claude-sonnet-4",
			Description: "Default model for OpenRouter",
		},
		{
			Key:         "providers.llm.openrouter.api_key",
			Value:       "${OPENROUTER_API_KEY}",
			Description: "OpenRouter API key (uses environment variable)",
		},
		{
			Key:         "providers.llm.openrouter.rate_limit",
			Value:       150.0,
			Description: "Rate limit in requests per second for OpenRouter",
		},
		{
			Key:         "providers.llm.openrouter.enabled",
			Value:       true,
			Description: "Whether OpenRouter LLM provider is enabled",
		},
		{
			Key:         "providers.llm.openrouter.timeout_seconds",
			Value:       500,
			Description: "HTTP timeout in seconds for OpenRouter requests",
		},
		{
			Key:         "providers.llm.openrouter.max_retries",
			Value:       7,
			Description: "Maximum retry attempts for failed OpenRouter requests",
		},
		{
			Key:         "providers.llm.openrouter.max_concurrency",
			Value:       30,
			Description: "Maximum concurrent requests to OpenRouter",
		},

		// LLM Providers - OpenAI
		{
			Key:         "providers.llm.openai.type",
			Value:       "openai",
			Description: "LLM provider type for OpenAI",
		},
		{
			Key:         "providers.llm.openai.model",
			Value:       "gpt-4o",
			Description: "Default model for OpenAI",
		},
		{
			Key:         "providers.llm.openai.api_key",
			Value:       "${OPENAI_API_KEY}",
			Description: "OpenAI API key (uses environment variable)",
		},
		{
			Key:         "providers.llm.openai.rate_limit",
			Value:       8.0,
			Description: "Rate limit in requests per second for OpenAI",
		},
		{
			Key:         "providers.llm.openai.enabled",
			Value:       false,
			Description: "Whether OpenAI LLM provider is enabled",
		},

		// ===================
		// Extraction Defaults
		// ===================
		{
			Key:         "defaults.ocr_providers",
			Value:       []string{"mistral"},
			Description: "Ordered list of OCR providers for scanned documents",
		},
		{
			Key:         "defaults.llm_provider",
			Value:       "openrouter",
			Description: "Default LLM provider used for extraction passes (analysis, comprehensive, detail)",
		},
		{
			Key:         "defaults.use_vision",
			Value:       false,
			Description: "Send rendered page images to the model instead of OCR text",
		},
		{
			Key:         "defaults.detail_concurrency",
			Value:       4,
			Description: "Concurrent detail sub-queries per extraction run",
		},
		{
			Key:         "defaults.max_workers",
			Value:       10,
			Description: "Maximum concurrent extraction jobs",
		},
	}
}

// SeedDefaults seeds default configuration entries into the store.
// This is idempotent - existing entries are not overwritten.
func SeedDefaults(ctx context.Context, store Store, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultEntries()
	seeded := 0
	skipped := 0

	for _, entry := range defaults {
		// Check if key already exists
		existing, err := store.Get(ctx, entry.Key)
		if err != nil {
			return fmt.Errorf("failed to check key %q: %w", entry.Key, err)
		}

		if existing != nil {
			skipped++
			continue
		}

		// Create the entry
		if err := store.Set(ctx, entry.Key, entry.Value, entry.Description); err != nil {
			return fmt.Errorf("failed to seed key %q: %w", entry.Key, err)
		}
		seeded++
	}

	if seeded > 0 {
		logger.Info("seeded default config entries", "seeded", seeded, "skipped", skipped)
	}
	return nil
}

// GetDefault returns the default value for a config key.
// Returns nil if no default exists for the key.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// ResetToDefault resets a config key to its default value.
// Returns ErrNoDefault if no default exists for the key.
func ResetToDefault(ctx context.Context, store Store, key string) error {
	def := GetDefault(key)
	if def == nil {
		return fmt.Errorf("%w for key %q", ErrNoDefault, key)
	}
	return store.Set(ctx, key, def.Value, def.Description)
}
