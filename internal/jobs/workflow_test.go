package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shamayhq/nesach/internal/defra"
	"github.com/shamayhq/nesach/internal/providers"
)

// TestMultiPhaseJob_Workflow tests that OCR→LLM workflow works correctly.
func TestMultiPhaseJob_Workflow(t *testing.T) {
	t.Run("creates LLM units as OCR completes", func(t *testing.T) {
		job := NewMultiPhaseJob(MultiPhaseJobConfig{
			OCRPages:  3,
			LLMPerOCR: 2,
		})
		job.SetRecordID("test-multi") // Set ID for testing

		// Start job - should get OCR units
		units, err := job.Start(context.Background())
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if len(units) != 3 {
			t.Errorf("got %d units, want 3 OCR units", len(units))
		}
		for _, u := range units {
			if u.Type != WorkUnitTypeOCR {
				t.Errorf("unit type = %s, want ocr", u.Type)
			}
		}

		if job.Done() {
			t.Error("job should not be done yet")
		}

		// Complete first OCR - should create 2 LLM units
		newUnits, err := job.OnComplete(context.Background(), WorkResult{
			WorkUnitID: units[0].ID,
			Success:    true,
			OCRResult:  &providers.OCRResult{Success: true, Text: "page 1 text"},
		})
		if err != nil {
			t.Fatalf("OnComplete() error = %v", err)
		}
		if len(newUnits) != 2 {
			t.Errorf("got %d new units, want 2 LLM units", len(newUnits))
		}
		for _, u := range newUnits {
			if u.Type != WorkUnitTypeLLM {
				t.Errorf("unit type = %s, want llm", u.Type)
			}
		}

		// Complete remaining OCR units
		for _, u := range units[1:] {
			job.OnComplete(context.Background(), WorkResult{
				WorkUnitID: u.ID,
				Success:    true,
				OCRResult:  &providers.OCRResult{Success: true},
			})
		}

		// Job not done - still need LLM completions
		if job.Done() {
			t.Error("job should not be done - LLM work pending")
		}

		// Complete all LLM units (3 OCR * 2 LLM = 6 total)
		for i := 0; i < 6; i++ {
			job.OnComplete(context.Background(), WorkResult{
				WorkUnitID: fmt.Sprintf("llm-%d", i),
				Success:    true,
				ChatResult: &providers.ChatResult{Success: true},
			})
		}

		if !job.Done() {
			ocr, llm, _ := job.Stats()
			t.Errorf("job should be done, ocr=%d llm=%d", ocr, llm)
		}
	})

	t.Run("handles failures without creating follow-up work", func(t *testing.T) {
		job := NewMultiPhaseJob(MultiPhaseJobConfig{
			OCRPages:  2,
			LLMPerOCR: 1,
		})

		units, _ := job.Start(context.Background())

		// Fail first OCR - should not create LLM units
		newUnits, _ := job.OnComplete(context.Background(), WorkResult{
			WorkUnitID: units[0].ID,
			Success:    false,
			Error:      nil,
		})
		if len(newUnits) != 0 {
			t.Errorf("got %d units for failed OCR, want 0", len(newUnits))
		}

		_, _, failed := job.Stats()
		if failed != 1 {
			t.Errorf("failed = %d, want 1", failed)
		}
	})
}

// TestScheduler_MultiPhaseWorkflow tests the full scheduler with mixed pools.
func TestScheduler_MultiPhaseWorkflow(t *testing.T) {
	scheduler := NewScheduler(SchedulerConfig{Logger: slog.Default()})

	ocrProvider := providers.NewMockOCRProvider()
	ocrProvider.ResponseText = "extracted text"
	scheduler.RegisterPool(newOCRPool(t, "mistral-ocr", ocrProvider))

	llmClient := providers.NewMockClient()
	llmClient.ResponseText = "processed result"
	llmClient.Latency = time.Millisecond
	scheduler.RegisterPool(newLLMPool(t, "openrouter", llmClient))

	if len(scheduler.ListPools()) != 2 {
		t.Fatalf("expected 2 pools, got %d", len(scheduler.ListPools()))
	}

	// Multi-phase job: 3 OCR pages, 1 LLM per OCR = 6 total units
	job := NewMultiPhaseJob(MultiPhaseJobConfig{
		OCRPages:  3,
		LLMPerOCR: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go scheduler.Start(ctx)

	if err := scheduler.Submit(ctx, job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// Wait for completion
	for i := 0; i < 100; i++ {
		if job.Done() {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if !job.Done() {
		ocr, llm, failed := job.Stats()
		t.Fatalf("job not done: ocr=%d/3 llm=%d/3 failed=%d", ocr, llm, failed)
	}

	// Verify both providers were used
	if ocrProvider.RequestCount() != 3 {
		t.Errorf("OCR provider got %d requests, want 3", ocrProvider.RequestCount())
	}
	if llmClient.RequestCount() != 3 {
		t.Errorf("LLM client got %d requests, want 3", llmClient.RequestCount())
	}
}

// TestScheduler_RoutesToCorrectPool tests provider-targeted work unit routing.
func TestScheduler_RoutesToCorrectPool(t *testing.T) {
	scheduler := NewScheduler(SchedulerConfig{})

	// Two pools of each type
	ocrProvider1 := providers.NewMockOCRProvider()
	scheduler.RegisterPool(newOCRPool(t, "mistral-ocr", ocrProvider1))

	ocrProvider2 := providers.NewMockOCRProvider()
	scheduler.RegisterPool(newOCRPool(t, "deepinfra", ocrProvider2))

	llmClient1 := providers.NewMockClient()
	scheduler.RegisterPool(newLLMPool(t, "openrouter", llmClient1))

	llmClient2 := providers.NewMockClient()
	scheduler.RegisterPool(newLLMPool(t, "openai", llmClient2))

	// Create job that targets specific providers
	job := NewMultiPhaseJob(MultiPhaseJobConfig{
		OCRPages:    2,
		LLMPerOCR:   1,
		OCRProvider: "deepinfra",
		LLMProvider: "openrouter",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go scheduler.Start(ctx)

	if err := scheduler.Submit(ctx, job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// Wait for completion
	for i := 0; i < 100; i++ {
		if job.Done() {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if !job.Done() {
		t.Fatal("job not done")
	}

	// OCR should only go to deepinfra
	if ocrProvider1.RequestCount() != 0 {
		t.Errorf("mistral-ocr got %d requests, want 0", ocrProvider1.RequestCount())
	}
	if ocrProvider2.RequestCount() != 2 {
		t.Errorf("deepinfra got %d requests, want 2", ocrProvider2.RequestCount())
	}

	// LLM should only go to openrouter
	if llmClient1.RequestCount() != 2 {
		t.Errorf("openrouter got %d requests, want 2", llmClient1.RequestCount())
	}
	if llmClient2.RequestCount() != 0 {
		t.Errorf("openai got %d requests, want 0", llmClient2.RequestCount())
	}
}

// MockDefraServer creates a test server that simulates DefraDB responses.
func MockDefraServer(t *testing.T) (*httptest.Server, *mockDefraState) {
	t.Helper()
	state := &mockDefraState{
		jobs: make(map[string]*Record),
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state.mu.Lock()
		defer state.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/health-check":
			w.WriteHeader(http.StatusOK)

		case "/api/v0/graphql":
			var req defra.GQLRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}

			switch {
			// Handle create mutation
			case strings.Contains(req.Query, "create_Job"):
				state.jobCounter++
				id := fmt.Sprintf("bae-job-%d", state.jobCounter)
				state.jobs[id] = &Record{
					ID:        id,
					Status:    StatusQueued,
					CreatedAt: time.Now(),
				}
				json.NewEncoder(w).Encode(map[string]any{
					"data": map[string]any{
						"create_Job": []any{
							map[string]any{"_docID": id},
						},
					},
				})

			// Handle update mutation
			case strings.Contains(req.Query, "update_Job"):
				for _, status := range []Status{StatusRunning, StatusCompleted, StatusFailed} {
					if strings.Contains(req.Query, fmt.Sprintf("status: %q", status)) {
						for _, job := range state.jobs {
							job.Status = status
						}
					}
				}
				json.NewEncoder(w).Encode(map[string]any{
					"data": map[string]any{
						"update_Job": []any{
							map[string]any{"_docID": "updated"},
						},
					},
				})

			// Handle list query
			case strings.Contains(req.Query, "Job("):
				jobs := make([]any, 0)
				for _, job := range state.jobs {
					jobs = append(jobs, map[string]any{
						"_docID":     job.ID,
						"job_type":   job.JobType,
						"status":     string(job.Status),
						"created_at": job.CreatedAt.Format(time.RFC3339),
					})
				}
				json.NewEncoder(w).Encode(map[string]any{
					"data": map[string]any{"Job": jobs},
				})

			default:
				json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{}})
			}

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	return server, state
}

type mockDefraState struct {
	mu         sync.Mutex
	jobs       map[string]*Record
	jobCounter int
}

// TestScheduler_WithManager tests scheduler persistence via Manager.
func TestScheduler_WithManager(t *testing.T) {
	server, state := MockDefraServer(t)
	defer server.Close()

	manager := NewManager(defra.NewClient(server.URL), slog.Default())

	scheduler := NewScheduler(SchedulerConfig{
		Manager: manager,
		Logger:  slog.Default(),
	})

	scheduler.RegisterPool(newOCRPool(t, "mistral-ocr", providers.NewMockOCRProvider()))
	scheduler.RegisterPool(newLLMPool(t, "openrouter", providers.NewMockClient()))

	job := NewMultiPhaseJob(MultiPhaseJobConfig{
		OCRPages:  2,
		LLMPerOCR: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go scheduler.Start(ctx)

	if err := scheduler.Submit(ctx, job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if job.ID() == "" {
		t.Fatal("job should have a persisted record ID")
	}

	for i := 0; i < 100; i++ {
		if job.Done() {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if !job.Done() {
		t.Fatal("job not done")
	}

	// Record created and eventually marked completed
	completed := false
	for i := 0; i < 100; i++ {
		state.mu.Lock()
		for _, rec := range state.jobs {
			if rec.Status == StatusCompleted {
				completed = true
			}
		}
		state.mu.Unlock()
		if completed {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !completed {
		t.Error("job record not marked completed in DefraDB")
	}
}

// TestScheduler_Resume tests reconstruction of interrupted jobs via factories.
func TestScheduler_Resume(t *testing.T) {
	server, state := MockDefraServer(t)
	defer server.Close()

	// Seed a record left in running state by a previous process
	state.mu.Lock()
	state.jobs["bae-job-interrupted"] = &Record{
		ID:        "bae-job-interrupted",
		JobType:   "counting",
		Status:    StatusRunning,
		CreatedAt: time.Now(),
	}
	state.mu.Unlock()

	manager := NewManager(defra.NewClient(server.URL), slog.Default())
	scheduler := NewScheduler(SchedulerConfig{Manager: manager, Logger: slog.Default()})

	client := providers.NewMockClient()
	scheduler.RegisterPool(newLLMPool(t, "openrouter", client))

	scheduler.RegisterFactory("counting", func(ctx context.Context, recordID string, metadata map[string]any) (Job, error) {
		job := NewCountingJob(2)
		job.SetRecordID(recordID)
		return job, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go scheduler.Start(ctx)

	resumed, err := scheduler.Resume(ctx)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed != 1 {
		t.Fatalf("resumed = %d, want 1", resumed)
	}

	// Resumed job runs to completion on the pool
	for i := 0; i < 100; i++ {
		if client.RequestCount() == 2 && scheduler.ActiveJobs() == 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if client.RequestCount() != 2 {
		t.Errorf("client got %d requests, want 2", client.RequestCount())
	}
	if scheduler.ActiveJobs() != 0 {
		t.Errorf("ActiveJobs() = %d after resume completion, want 0", scheduler.ActiveJobs())
	}
}

// TestScheduler_PartialFailure tests that a job keeps processing past unit failures.
func TestScheduler_PartialFailure(t *testing.T) {
	scheduler := NewScheduler(SchedulerConfig{Logger: slog.Default()})

	ocrProvider := providers.NewMockOCRProvider()
	ocrProvider.FailAfter = 1
	scheduler.RegisterPool(newOCRPool(t, "mistral-ocr", ocrProvider))

	llmClient := providers.NewMockClient()
	scheduler.RegisterPool(newLLMPool(t, "openrouter", llmClient))

	job := NewMultiPhaseJob(MultiPhaseJobConfig{
		OCRPages:  3,
		LLMPerOCR: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go scheduler.Start(ctx)

	if err := scheduler.Submit(ctx, job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// One OCR page succeeds and feeds an LLM unit; the other two fail
	var ocr, llm, failed int
	for i := 0; i < 100; i++ {
		ocr, llm, failed = job.Stats()
		if failed == 2 && llm == 1 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if ocr != 1 {
		t.Errorf("ocr completed = %d, want 1", ocr)
	}
	if failed != 2 {
		t.Errorf("failed = %d, want 2", failed)
	}
	if llm != 1 {
		t.Errorf("llm completed = %d, want 1", llm)
	}
}
