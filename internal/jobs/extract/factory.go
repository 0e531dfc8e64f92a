package extract

import (
	"context"
	"fmt"

	"github.com/shamayhq/nesach/internal/jobs"
	"github.com/shamayhq/nesach/internal/svcctx"
)

// Settings are the store-derived extraction knobs. The jobcfg builder
// resolves them at job creation and resume time so settings changes apply
// to the next job without a restart.
type Settings struct {
	LLMProvider  string
	UseVision    bool
	OcrProviders []string
}

// NewJob creates an extraction job for the given session. The session
// record supplies the document shape; settings supply the providers and
// the vision flag.
func NewJob(ctx context.Context, settings Settings, sessionID string) (jobs.Job, error) {
	defraClient := svcctx.DefraClientFrom(ctx)
	if defraClient == nil {
		return nil, fmt.Errorf("defra client not in context")
	}

	homeDir := svcctx.HomeFrom(ctx)
	if homeDir == nil {
		return nil, fmt.Errorf("home directory not in context")
	}

	query := fmt.Sprintf(`{
		Session(filter: {_docID: {_eq: "%s"}}) {
			filename
			media_type
			source_path
			page_count
			has_text
		}
	}`, sessionID)

	resp, err := defraClient.Execute(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	sessions, ok := resp.Data["Session"].([]any)
	if !ok || len(sessions) == 0 {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	session, ok := sessions[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid session document for %s", sessionID)
	}

	cfg := Config{
		SessionID:    sessionID,
		HomeDir:      homeDir,
		UseVision:    settings.UseVision,
		OcrProviders: settings.OcrProviders,
		LLMProvider:  settings.LLMProvider,
	}
	cfg.Filename, _ = session["filename"].(string)
	cfg.MediaType, _ = session["media_type"].(string)
	cfg.SourcePath, _ = session["source_path"].(string)
	if pc, ok := session["page_count"].(float64); ok {
		cfg.PageCount = int(pc)
	}
	cfg.HasText, _ = session["has_text"].(bool)

	logger := svcctx.LoggerFrom(ctx)
	if logger != nil {
		logger.Info("creating extraction job",
			"session_id", sessionID,
			"filename", cfg.Filename,
			"page_count", cfg.PageCount,
			"has_text", cfg.HasText,
			"use_vision", cfg.UseVision,
			"llm_provider", cfg.LLMProvider,
			"ocr_providers", cfg.OcrProviders)
	}

	return New(cfg), nil
}
