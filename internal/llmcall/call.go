// Package llmcall provides LLM call recording and querying for traceability.
// Every gateway call is recorded with its prompt key, response, and usage.
package llmcall

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shamayhq/nesach/internal/providers"
)

// Call represents a recorded LLM API call.
type Call struct {
	// Unique identifier
	ID string `json:"id"`

	// Timing
	Timestamp time.Time `json:"timestamp"`
	LatencyMs int       `json:"latency_ms"`

	// Context references
	SessionID string `json:"session_id,omitempty"`
	JobID     string `json:"job_id,omitempty"`

	// Pipeline attribution
	Stage   string `json:"stage,omitempty"`    // analysis, comprehensive, detail
	ItemKey string `json:"item_key,omitempty"` // detail sub-query category

	// Prompt traceability
	PromptKey string `json:"prompt_key"`
	PromptCID string `json:"prompt_cid,omitempty"` // Content-addressed ID linking to the exact prompt version used

	// Model info
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`

	// Usage
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd,omitempty"`

	// Response
	Response  string          `json:"response"`
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`

	// Status
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RecordOptions provides context for recording an LLM call.
type RecordOptions struct {
	// Context references (all optional)
	SessionID string
	JobID     string

	// Pipeline attribution (optional)
	Stage   string
	ItemKey string

	// Prompt identification (required for traceability)
	PromptKey string
	PromptCID string // Content-addressed ID linking to exact prompt version

	// Request parameters (pointer to distinguish "not set" from "set to 0")
	Temperature *float64

	// Optional logger for non-fatal serialization warnings.
	Logger *slog.Logger
}

// FromChatResult creates a Call from a ChatResult.
// Returns nil if result is nil.
func FromChatResult(result *providers.ChatResult, opts RecordOptions) *Call {
	if result == nil {
		return nil
	}

	call := &Call{
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		LatencyMs:    int(result.ExecutionTime.Milliseconds()),
		SessionID:    opts.SessionID,
		JobID:        opts.JobID,
		Stage:        opts.Stage,
		ItemKey:      opts.ItemKey,
		PromptKey:    opts.PromptKey,
		PromptCID:    opts.PromptCID,
		Provider:     result.Provider,
		Model:        result.ModelUsed,
		InputTokens:  result.PromptTokens,
		OutputTokens: result.CompletionTokens,
		TotalTokens:  result.TotalTokens,
		CostUSD:      result.CostUSD,
		Response:     result.Content,
		Success:      result.Success,
	}

	if opts.Temperature != nil {
		call.Temperature = opts.Temperature
	}

	if !result.Success {
		call.Error = result.ErrorMessage
	}

	// Serialize tool calls if present
	if len(result.ToolCalls) > 0 {
		if data, err := json.Marshal(result.ToolCalls); err != nil {
			logger := opts.Logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.Warn("failed to serialize tool calls for LLM call record",
				"error", err,
				"tool_call_count", len(result.ToolCalls))
		} else {
			call.ToolCalls = data
		}
	}

	return call
}

// ToMap converts the Call to a map for DefraDB insertion.
func (c *Call) ToMap() map[string]any {
	m := map[string]any{
		"id":            c.ID,
		"timestamp":     c.Timestamp,
		"latency_ms":    c.LatencyMs,
		"prompt_key":    c.PromptKey,
		"provider":      c.Provider,
		"model":         c.Model,
		"input_tokens":  c.InputTokens,
		"output_tokens": c.OutputTokens,
		"total_tokens":  c.TotalTokens,
		"response":      c.Response,
		"success":       c.Success,
	}

	if c.SessionID != "" {
		m["session_id"] = c.SessionID
	}
	if c.JobID != "" {
		m["job_id"] = c.JobID
	}
	if c.Stage != "" {
		m["stage"] = c.Stage
	}
	if c.ItemKey != "" {
		m["item_key"] = c.ItemKey
	}
	if c.PromptCID != "" {
		m["prompt_cid"] = c.PromptCID
	}
	if c.Temperature != nil {
		m["temperature"] = *c.Temperature
	}
	if c.CostUSD > 0 {
		m["cost_usd"] = c.CostUSD
	}
	if c.Error != "" {
		m["error"] = c.Error
	}
	if len(c.ToolCalls) > 0 {
		// Convert to string so GraphQL sees it as a JSON string literal,
		// not raw JSON syntax that the parser would try to interpret
		m["tool_calls"] = string(c.ToolCalls)
	}

	return m
}
