// Package pipeline orchestrates the staged extraction of structured data
// from land-registry documents: a structure survey that counts repeating
// entries, two concurrent extraction passes (comprehensive and targeted
// detail), and a deterministic merge with count validation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shamayhq/nesach/internal/extraction"
	"github.com/shamayhq/nesach/internal/providers"
)

// DefaultDetailConcurrency bounds how many detail sub-queries run at once
// when the config does not say otherwise. One slot per category.
const DefaultDetailConcurrency = 4

// StageCall describes one gateway call the pipeline made, including
// failed ones, for audit hooks.
type StageCall struct {
	SessionID string
	Stage     extraction.Stage
	Category  extraction.Category // set for detail sub-queries only
	PromptKey string
	Result    *providers.ChatResult
}

// CallRecorder receives the audit record of every gateway call.
// Implementations must not block: the pipeline invokes it inline on the
// stage path.
type CallRecorder interface {
	RecordCall(call StageCall)
}

// Config configures a Pipeline.
type Config struct {
	// Client executes the LLM calls. Required.
	Client providers.LLMClient

	// Model overrides the client's default model when set.
	Model string

	// Normalizer builds the entity identity keys for the merge. Nil
	// selects extraction.DefaultNormalizer.
	Normalizer extraction.Normalizer

	// Recorder receives per-call audit records. Optional; the one-shot
	// CLI path runs without one.
	Recorder CallRecorder

	// DetailConcurrency bounds concurrent detail sub-queries. Zero
	// selects DefaultDetailConcurrency.
	DetailConcurrency int

	// Logger receives stage progress and absorbed failures. Nil selects
	// slog.Default.
	Logger *slog.Logger
}

// Pipeline executes extraction runs. Safe for concurrent use: each run
// keeps its state on the stack.
type Pipeline struct {
	client            providers.LLMClient
	model             string
	merger            *extraction.Merger
	recorder          CallRecorder
	detailConcurrency int
	logger            *slog.Logger
}

// New creates a Pipeline from the config.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("pipeline: client is required")
	}
	concurrency := cfg.DetailConcurrency
	if concurrency <= 0 {
		concurrency = DefaultDetailConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		client:            cfg.Client,
		model:             cfg.Model,
		merger:            extraction.NewMerger(cfg.Normalizer),
		recorder:          cfg.Recorder,
		detailConcurrency: concurrency,
		logger:            logger,
	}, nil
}

// Options are per-run settings.
type Options struct {
	// UseVision sends the document as a binary attachment instead of
	// interpolating text into the prompts. Forced when the document
	// carries no text.
	UseVision bool

	// IsPDF marks Document.Data as a whole PDF to attach as a file.
	// Redundant when Document.MediaType already says application/pdf.
	IsPDF bool

	// PageImages are pre-rendered page images for vision mode, preferred
	// over attaching the whole PDF when present.
	PageImages [][]byte

	// SessionID attributes audit records to a session. Optional.
	SessionID string

	// Overrides carries resolved session prompt overrides. Zero value
	// uses the embedded defaults.
	Overrides Overrides

	// OnProgress observes state transitions. Optional.
	OnProgress ProgressFunc
}

// Overrides carries session-level prompt override texts. Empty fields
// fall back to the embedded defaults; template fields keep the embedded
// template's variables.
type Overrides struct {
	AnalyzeSystem       string
	AnalyzeUser         string
	ComprehensiveSystem string
	ComprehensiveUser   string
	DetailSystem        string
	DetailUser          map[extraction.Category]string
}

// Run executes the full pipeline over one document and returns the merged
// result. A failed structure survey degrades to generic guidance; a failed
// comprehensive pass fails the run; failed detail sub-queries cost only
// their category. The context cancels outstanding gateway calls.
func (p *Pipeline) Run(ctx context.Context, doc extraction.Document, opts Options) (*extraction.Result, error) {
	if !doc.HasText() && !doc.HasData() && len(opts.PageImages) == 0 {
		return nil, ErrEmptyDocument
	}

	start := time.Now()
	progress := func(s State) {
		if opts.OnProgress != nil {
			opts.OnProgress(s)
		}
	}
	progress(StateInit)

	payload := buildPayload(doc, opts)
	logger := p.logger.With("filename", doc.Filename)

	var (
		warnings  []string
		tokens    int
		completed []extraction.Stage
	)

	// Structure survey. Failure is absorbed: the extraction passes fall
	// back to generic guidance instead of counts.
	progress(StateAnalyzing)
	report, surveyTokens, err := p.runAnalysis(ctx, payload, doc.Filename, opts)
	if err != nil {
		logger.Warn("structure survey failed, proceeding without counts", "error", err)
		warnings = append(warnings, fmt.Sprintf("structure survey failed: %v", err))
		report = &extraction.AnalysisReport{}
	} else {
		tokens += surveyTokens
		completed = append(completed, extraction.StageAnalysis)
		logger.Info("structure survey complete", "summary", report.Summary(), "tokens", surveyTokens)
	}
	if err := ctx.Err(); err != nil {
		progress(StateFailed)
		return nil, err
	}

	// Both extraction passes run concurrently. The comprehensive pass is
	// required; detail sub-queries degrade per category.
	progress(StateExtracting)
	var (
		primary        *extraction.StageOutput
		booster        *extraction.StageOutput
		detailWarnings []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := p.runComprehensive(gctx, payload, doc.Filename, report, opts)
		if err != nil {
			return err
		}
		primary = out
		return nil
	})
	g.Go(func() error {
		booster, detailWarnings = p.runDetail(gctx, payload, doc.Filename, opts)
		return nil
	})
	if err := g.Wait(); err != nil {
		progress(StateFailed)
		logger.Error("comprehensive pass failed", "error", err)
		return nil, &StageError{Stage: extraction.StageComprehensive, Err: err}
	}
	if err := ctx.Err(); err != nil {
		progress(StateFailed)
		return nil, err
	}

	tokens += primary.TokensUsed
	completed = append(completed, extraction.StageComprehensive)
	warnings = append(warnings, detailWarnings...)
	if booster != nil {
		tokens += booster.TokensUsed
		completed = append(completed, extraction.StageDetail)
	}

	// Join point: deterministic merge plus count validation. Pure, no
	// gateway calls.
	progress(StateMerging)
	merged := p.merger.Merge(primary, booster, *report)

	result := &extraction.Result{
		Owners:           merged.Owners,
		Mortgages:        merged.Mortgages,
		Notes:            merged.Notes,
		Easements:        merged.Easements,
		Property:         merged.Property,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		TokensUsed:       tokens,
		StagesCompleted:  completed,
		AnalysisSummary:  report.Summary(),
	}
	result.ExtractionChallenges = append(result.ExtractionChallenges, report.ExtractionChallenges...)
	result.ExtractionChallenges = append(result.ExtractionChallenges, warnings...)
	result.ExtractionChallenges = append(result.ExtractionChallenges, merged.Challenges...)

	if overall, ok := extraction.AggregateConfidence(primary, booster); ok {
		result.OverallConfidence = &overall
	}

	progress(StateDone)
	logger.Info("extraction complete",
		"owners", len(result.Owners),
		"mortgages", len(result.Mortgages),
		"notes", len(result.Notes),
		"easements", len(result.Easements),
		"challenges", len(result.ExtractionChallenges),
		"tokens", tokens,
		"duration_ms", result.ProcessingTimeMs)
	return result, nil
}

// Run executes a single extraction with a default pipeline. Callers that
// process many documents should construct one Pipeline and reuse it.
func Run(ctx context.Context, client providers.LLMClient, doc extraction.Document, opts Options) (*extraction.Result, error) {
	p, err := New(Config{Client: client})
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, doc, opts)
}
