package jobs

import (
	"github.com/shamayhq/nesach/internal/providers"
)

// WorkUnitType identifies which pool executes a work unit.
type WorkUnitType string

const (
	WorkUnitTypeLLM WorkUnitType = "llm"
	WorkUnitTypeOCR WorkUnitType = "ocr"
	WorkUnitTypeCPU WorkUnitType = "cpu"
)

// WorkUnit is a single schedulable piece of work. Jobs emit work units
// from Start and OnComplete; the scheduler routes each unit to a pool
// based on its type and (optionally) its provider.
type WorkUnit struct {
	ID    string // Unique unit ID (UUID)
	JobID string // Owning job's record ID (set by scheduler on enqueue)

	Type     WorkUnitType
	Provider string // Specific provider name (empty = any pool of matching type)
	Priority int    // Queue priority; see PriorityForStage

	// Exactly one of these is set, matching Type
	ChatRequest *providers.ChatRequest
	OCRRequest  *OCRWorkRequest
	CPURequest  *CPUWorkRequest

	// Tools for LLM units that need function calling
	Tools []providers.Tool

	// Metrics attribution. When nil, the scheduler fills it from the
	// job's MetricsFor before routing.
	Metrics *WorkUnitMetrics
}

// OCRWorkRequest carries a page image for OCR processing.
type OCRWorkRequest struct {
	Image   []byte
	PageNum int
}

// CPUWorkRequest carries a named local task for the CPU pool.
// Data is task-specific; handlers type-assert it.
type CPUWorkRequest struct {
	Task string
	Data any
}

// CPUWorkResult is the output of a CPU task handler.
type CPUWorkResult struct {
	Data any
}

// WorkUnitMetrics attributes a work unit's cost and output to a
// session, stage, and prompt version for the Metric and LLMCall
// collections.
type WorkUnitMetrics struct {
	SessionID string // Session record ID
	Stage     string // Pipeline stage (e.g., "analysis", "comprehensive", "detail")
	ItemKey   string // Sub-item within the stage (e.g., "owners", "page_0001_mistral")
	PromptKey string // Registry key of the prompt used
	PromptCID string // Exact prompt version (content-addressed ID)
}

// WorkResult is delivered to the owning job's OnComplete after a pool
// finishes executing a work unit.
type WorkResult struct {
	WorkUnitID string
	Success    bool
	Error      error

	// Exactly one of these is set, matching the unit's type
	ChatResult *providers.ChatResult
	OCRResult  *providers.OCRResult
	CPUResult  *CPUWorkResult

	// MetricDocID references the persisted Metric row for this unit,
	// when the executing pool recorded one synchronously.
	MetricDocID string
}

// ProviderProgress tracks work unit completion for a single provider
// within a job.
type ProviderProgress struct {
	TotalExpected    int `json:"total_expected"`
	CompletedAtStart int `json:"completed_at_start"`
	Queued           int `json:"queued"`
	Completed        int `json:"completed"`
	Failed           int `json:"failed"`
}
