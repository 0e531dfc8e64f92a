package extract

import (
	"sync"
	"time"

	"github.com/shamayhq/nesach/internal/extraction"
	"github.com/shamayhq/nesach/internal/home"
)

// JobType is the type identifier for extraction jobs.
const JobType = "extract"

// MaxPageRetries bounds retries for render and OCR work units. Pages are
// load-bearing: a page that cannot be prepared fails the session rather
// than producing a partial extract.
const MaxPageRetries = 3

// Work unit kinds within an extraction job.
const (
	unitRender        = "render"
	unitOCR           = "ocr"
	unitAnalysis      = "analysis"
	unitComprehensive = "comprehensive"
	unitDetail        = "detail"
	unitMerge         = "merge"
)

// Page record status values.
const (
	PageStatusPending   = "pending"
	PageStatusRendered  = "rendered"
	PageStatusCompleted = "completed"
)

// Config for creating a new extraction job.
type Config struct {
	SessionID    string
	Filename     string
	MediaType    string
	SourcePath   string
	PageCount    int
	HasText      bool // plain-text upload: no page preparation needed
	UseVision    bool // send page images to the gateway instead of OCR text
	HomeDir      *home.Dir
	OcrProviders []string
	LLMProvider  string
}

// unitInfo tracks one pending work unit.
type unitInfo struct {
	Kind       string
	PageNum    int                 // render and ocr units
	Provider   string              // ocr units
	Category   extraction.Category // detail units
	RetryCount int
}

// pageSlot tracks one page through render and OCR. Render state comes from
// the filesystem, OCR state from the Page record; see loadPages.
type pageSlot struct {
	docID     string
	imagePath string
	rendered  bool
	ocrDone   bool
	ocrText   string
}

// stageOverrides carries resolved session prompt override texts. Empty
// fields use the embedded defaults.
type stageOverrides struct {
	analyzeSystem       string
	analyzeUser         string
	comprehensiveSystem string
	comprehensiveUser   string
	detailSystem        string
	detailUser          map[extraction.Category]string
}

// Job drives one session through the staged extraction: page preparation,
// the structure survey, the two extraction passes, and the deterministic
// merge. The final result lands in the Extract collection and the Session
// status reflects the outcome.
type Job struct {
	mu sync.Mutex

	// Configuration
	SessionID    string
	Filename     string
	MediaType    string
	SourcePath   string
	PageCount    int
	HasText      bool
	UseVision    bool
	HomeDir      *home.Dir
	OcrProviders []string
	LLMProvider  string

	// Job state
	recordID  string
	isDone    bool
	startedAt time.Time

	// Work unit tracking
	pendingUnits map[string]unitInfo

	// Page tracking
	pages map[int]*pageSlot

	// Document payload once pages are ready. Text mode fills documentText,
	// vision mode fills pageImages.
	documentText string
	pageImages   [][]byte

	// Resolved prompt versions by key, for metrics attribution.
	promptCIDs map[string]string
	overrides  stageOverrides

	// Extraction pass state
	surveyStarted bool
	report        *extraction.AnalysisReport
	surveyOK      bool
	primary       *extraction.StageOutput
	booster       *extraction.StageOutput
	detailPending int
	compRetried   bool
	mergeQueued   bool

	warnings []string
	tokens   int

	// LLM unit counters for progress reporting
	llmTotal  int
	llmDone   int
	llmFailed int
}

// New creates a new extraction job.
func New(cfg Config) *Job {
	return &Job{
		SessionID:    cfg.SessionID,
		Filename:     cfg.Filename,
		MediaType:    cfg.MediaType,
		SourcePath:   cfg.SourcePath,
		PageCount:    cfg.PageCount,
		HasText:      cfg.HasText,
		UseVision:    cfg.UseVision,
		HomeDir:      cfg.HomeDir,
		OcrProviders: cfg.OcrProviders,
		LLMProvider:  cfg.LLMProvider,
		pendingUnits: make(map[string]unitInfo),
		pages:        make(map[int]*pageSlot),
		promptCIDs:   make(map[string]string),
	}
}
