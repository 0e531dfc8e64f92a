package extract

import (
	"context"
	"fmt"
	"os"

	"github.com/shamayhq/nesach/internal/svcctx"
)

// PreconditionError represents a failed precondition check.
type PreconditionError struct {
	Condition string
	Details   string
}

func (e *PreconditionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("precondition failed: %s - %s", e.Condition, e.Details)
	}
	return fmt.Sprintf("precondition failed: %s", e.Condition)
}

// checkPreconditions verifies all requirements are met before starting the
// job. Caller must hold j.mu.
func (j *Job) checkPreconditions(ctx context.Context) error {
	defraClient := svcctx.DefraClientFrom(ctx)
	if defraClient == nil {
		return &PreconditionError{
			Condition: "defra_client_available",
			Details:   "DefraDB client not in context",
		}
	}

	query := fmt.Sprintf(`{
		Session(filter: {_docID: {_eq: "%s"}}) {
			_docID
			status
		}
	}`, j.SessionID)

	resp, err := defraClient.Execute(ctx, query, nil)
	if err != nil {
		return &PreconditionError{
			Condition: "session_exists",
			Details:   fmt.Sprintf("failed to query session: %v", err),
		}
	}
	sessions, ok := resp.Data["Session"].([]any)
	if !ok || len(sessions) == 0 {
		return &PreconditionError{
			Condition: "session_exists",
			Details:   fmt.Sprintf("session %s not found in DefraDB", j.SessionID),
		}
	}

	if j.SourcePath == "" {
		return &PreconditionError{
			Condition: "source_available",
			Details:   "session has no stored source path",
		}
	}
	if _, err := os.Stat(j.SourcePath); err != nil {
		return &PreconditionError{
			Condition: "source_available",
			Details:   fmt.Sprintf("source file not readable: %v", err),
		}
	}

	if !j.HasText {
		if j.PageCount <= 0 {
			return &PreconditionError{
				Condition: "pages_counted",
				Details:   "session has no page count",
			}
		}
		if j.HomeDir == nil {
			return &PreconditionError{
				Condition: "home_dir_available",
				Details:   "home directory not configured",
			}
		}
		if !j.UseVision && len(j.OcrProviders) == 0 {
			return &PreconditionError{
				Condition: "ocr_providers_configured",
				Details:   "text mode requires at least one OCR provider",
			}
		}
	}

	if j.LLMProvider == "" {
		return &PreconditionError{
			Condition: "llm_provider_configured",
			Details:   "no LLM provider configured (defaults.llm_provider)",
		}
	}

	return nil
}
