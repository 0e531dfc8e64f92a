package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shamayhq/nesach/internal/home"
)

// newTestHome creates a home directory under t.TempDir().
func newTestHome(t *testing.T) *home.Dir {
	t.Helper()

	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New() error = %v", err)
	}
	if err := h.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists() error = %v", err)
	}
	return h
}

// TestServer_RequiresHome tests that New rejects a missing home directory.
func TestServer_RequiresHome(t *testing.T) {
	_, err := New(Config{Host: "127.0.0.1", Port: "18083"})
	if err == nil {
		t.Fatal("New() without Home should return error")
	}
}

// waitForServer polls the server until it responds or timeout.
func waitForServer(ctx context.Context, baseURL string, timeout time.Duration) error {
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"/health", nil)
		if err != nil {
			return err
		}

		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		time.Sleep(500 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %s", timeout)
}
