package pipeline

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/shamayhq/nesach/internal/extraction"
	"github.com/shamayhq/nesach/internal/prompts/analyze"
	"github.com/shamayhq/nesach/internal/prompts/comprehensive"
	"github.com/shamayhq/nesach/internal/prompts/details"
	"github.com/shamayhq/nesach/internal/providers"
)

// documentPayload is the document split into the prompt-facing fields:
// plain text, rendered page images, or a whole-PDF attachment. Exactly one
// carries the document.
type documentPayload struct {
	text   string
	images [][]byte
	pdf    []byte
}

// buildPayload decides how the document reaches the gateway. Vision mode
// prefers pre-rendered page images over attaching the whole PDF. Documents
// without text force vision mode; vision mode without binary falls back to
// text.
func buildPayload(doc extraction.Document, opts Options) documentPayload {
	useVision := opts.UseVision || !doc.HasText()
	if useVision {
		if len(opts.PageImages) > 0 {
			return documentPayload{images: opts.PageImages}
		}
		if doc.HasData() {
			if opts.IsPDF || doc.MediaType == "application/pdf" {
				return documentPayload{pdf: doc.Data}
			}
			return documentPayload{images: [][]byte{doc.Data}}
		}
	}
	return documentPayload{text: doc.Text}
}

// chat executes one gateway call and records it for audit, including
// failures. The returned error is classified per the pipeline taxonomy.
func (p *Pipeline) chat(ctx context.Context, call StageCall, req *providers.ChatRequest) (*providers.ChatResult, error) {
	if req.Model == "" {
		req.Model = p.model
	}
	result, err := p.client.Chat(ctx, req)
	call.Result = result
	if p.recorder != nil {
		p.recorder.RecordCall(call)
	}
	if err != nil || result == nil || !result.Success {
		return result, classifyCallFailure(p.client.Name(), result, err)
	}
	if req.ResponseFormat != nil && len(result.ParsedJSON) == 0 {
		return result, &MalformedResponseError{Detail: "empty structured response"}
	}
	return result, nil
}

// runAnalysis executes the structure survey pass.
func (p *Pipeline) runAnalysis(ctx context.Context, payload documentPayload, filename string, opts Options) (*extraction.AnalysisReport, int, error) {
	unit := analyze.CreateWorkUnit(analyze.Input{
		DocumentText:         payload.text,
		PageImages:           payload.images,
		PDF:                  payload.pdf,
		Filename:             filename,
		SystemPromptOverride: opts.Overrides.AnalyzeSystem,
		UserPromptOverride:   opts.Overrides.AnalyzeUser,
	})
	call := StageCall{
		SessionID: opts.SessionID,
		Stage:     extraction.StageAnalysis,
		PromptKey: analyze.SystemPromptKey,
	}
	result, err := p.chat(ctx, call, unit.ChatRequest)
	if err != nil {
		return nil, 0, err
	}
	report, err := analyze.ParseResult(result.ParsedJSON)
	if err != nil {
		return nil, 0, &MalformedResponseError{Detail: "structure survey", Err: err}
	}
	return report, result.TotalTokens, nil
}

// runComprehensive executes the full extraction pass, steered by the
// structure survey when it produced counts.
func (p *Pipeline) runComprehensive(ctx context.Context, payload documentPayload, filename string, report *extraction.AnalysisReport, opts Options) (*extraction.StageOutput, error) {
	unit := comprehensive.CreateWorkUnit(comprehensive.Input{
		DocumentText:         payload.text,
		PageImages:           payload.images,
		PDF:                  payload.pdf,
		Filename:             filename,
		Report:               report,
		SystemPromptOverride: opts.Overrides.ComprehensiveSystem,
		UserPromptOverride:   opts.Overrides.ComprehensiveUser,
	})
	call := StageCall{
		SessionID: opts.SessionID,
		Stage:     extraction.StageComprehensive,
		PromptKey: comprehensive.SystemPromptKey,
	}
	result, err := p.chat(ctx, call, unit.ChatRequest)
	if err != nil {
		return nil, err
	}
	parsed, err := comprehensive.ParseResult(result.ParsedJSON)
	if err != nil {
		return nil, &MalformedResponseError{Detail: "comprehensive extraction", Err: err}
	}
	out := parsed.ToStageOutput(result.TotalTokens)
	p.logger.Debug("comprehensive pass complete",
		"owners", len(out.Owners),
		"mortgages", len(out.Mortgages),
		"notes", len(out.Notes),
		"easements", len(out.Easements),
		"tokens", out.TokensUsed)
	return out, nil
}

// runDetail executes the four targeted sub-queries concurrently and folds
// the survivors into one detail pass output. Sub-query failures are
// absorbed: the category contributes nothing and a warning is recorded.
// Returns nil when every sub-query failed.
func (p *Pipeline) runDetail(ctx context.Context, payload documentPayload, filename string, opts Options) (*extraction.StageOutput, []string) {
	var (
		mu       sync.Mutex
		results  = make(map[extraction.Category]*details.Result)
		tokens   = make(map[extraction.Category]int)
		failures = make(map[extraction.Category]error)
	)

	// Plain group: sub-query failures must not cancel their siblings.
	var g errgroup.Group
	g.SetLimit(p.detailConcurrency)
	for _, cat := range extraction.Categories() {
		g.Go(func() error {
			res, used, err := p.runDetailQuery(ctx, payload, filename, cat, opts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[cat] = err
				return nil
			}
			results[cat] = res
			tokens[cat] = used
			return nil
		})
	}
	_ = g.Wait() // sub-query failures are absorbed per category

	// Fold in canonical category order so the output is deterministic
	// regardless of completion order.
	var warnings []string
	var out *extraction.StageOutput
	for _, cat := range extraction.Categories() {
		if err, ok := failures[cat]; ok {
			p.logger.Warn("detail sub-query failed", "category", cat, "error", err)
			warnings = append(warnings, fmt.Sprintf("detail pass for %s failed: %v", cat, err))
			continue
		}
		res, ok := results[cat]
		if !ok {
			continue
		}
		if out == nil {
			out = &extraction.StageOutput{Stage: extraction.StageDetail}
		}
		res.Apply(out, cat)
		out.TokensUsed += tokens[cat]
	}
	return out, warnings
}

// runDetailQuery executes one targeted sub-query.
func (p *Pipeline) runDetailQuery(ctx context.Context, payload documentPayload, filename string, cat extraction.Category, opts Options) (*details.Result, int, error) {
	unit, err := details.CreateWorkUnit(details.Input{
		Category:             cat,
		DocumentText:         payload.text,
		PageImages:           payload.images,
		PDF:                  payload.pdf,
		Filename:             filename,
		SystemPromptOverride: opts.Overrides.DetailSystem,
		UserPromptOverride:   opts.Overrides.DetailUser[cat],
	})
	if err != nil {
		return nil, 0, err
	}
	call := StageCall{
		SessionID: opts.SessionID,
		Stage:     extraction.StageDetail,
		Category:  cat,
		PromptKey: details.UserPromptKey(cat),
	}
	result, err := p.chat(ctx, call, unit.ChatRequest)
	if err != nil {
		return nil, 0, err
	}
	parsed, err := details.ParseResult(result.ParsedJSON)
	if err != nil {
		return nil, 0, &MalformedResponseError{Detail: fmt.Sprintf("%s detail extraction", cat), Err: err}
	}
	return parsed, result.TotalTokens, nil
}
