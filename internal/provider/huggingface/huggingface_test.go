package huggingface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"meetscribe/config"
	"meetscribe/internal/provider"
)

func newTestClient(t *testing.T, baseURL string, maxInput int) *Client {
	t.Helper()
	c := New(config.HuggingFaceConfig{
		APIKey:        "test-key",
		BaseURL:       baseURL,
		Model:         "facebook/bart-large-cnn",
		MaxInputChars: maxInput,
		MaxAttempts:   3,
		RetryWait:     20 * time.Second,
	})
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func TestCompleteTruncatesInput(t *testing.T) {
	var gotInput string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/facebook/bart-large-cnn" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Inputs string `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotInput = req.Inputs
		json.NewEncoder(w).Encode([]map[string]string{{"summary_text": "short summary"}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 10)
	out, err := c.Complete(context.Background(), provider.CompletionRequest{Prompt: strings.Repeat("x", 50)})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "short summary" {
		t.Fatalf("unexpected output %q", out)
	}
	if len(gotInput) != 10 {
		t.Fatalf("expected input truncated to 10 chars, got %d", len(gotInput))
	}
}

// The default configuration points the client at the /models root, so a
// deployment that never overrides base_url must request /models/<model>.
func TestCompleteRequestPathWithDefaults(t *testing.T) {
	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	base, err := url.Parse(cfg.Providers.HuggingFace.BaseURL)
	if err != nil {
		t.Fatalf("parse base url: %v", err)
	}

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode([]map[string]string{{"summary_text": "ok"}})
	}))
	defer srv.Close()

	hf := cfg.Providers.HuggingFace
	hf.APIKey = "test-key"
	hf.BaseURL = srv.URL + base.Path
	c := New(hf)
	if _, err := c.Complete(context.Background(), provider.CompletionRequest{Prompt: "hello"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	want := "/models/" + hf.Model
	if gotPath != want {
		t.Fatalf("expected request path %q, got %q", want, gotPath)
	}
}

func TestCompleteTruncatesOnRuneBoundary(t *testing.T) {
	var gotInput string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs string `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotInput = req.Inputs
		json.NewEncoder(w).Encode([]map[string]string{{"summary_text": "ok"}})
	}))
	defer srv.Close()

	// Byte 5 falls inside the first two-byte rune after the prefix.
	c := newTestClient(t, srv.URL, 5)
	if _, err := c.Complete(context.Background(), provider.CompletionRequest{Prompt: "aaaa" + strings.Repeat("é", 10)}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !utf8.ValidString(gotInput) {
		t.Fatalf("truncated input is not valid UTF-8: %q", gotInput)
	}
	if gotInput != "aaaa" {
		t.Fatalf("expected truncation to back off to %q, got %q", "aaaa", gotInput)
	}
}

func TestCompleteRetriesWhileModelLoads(t *testing.T) {
	calls := 0
	var waits []time.Duration
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":          "Model facebook/bart-large-cnn is currently loading",
				"estimated_time": 1.5,
			})
			return
		}
		json.NewEncoder(w).Encode([]map[string]string{{"summary_text": "done"}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 1000)
	c.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	out, err := c.Complete(context.Background(), provider.CompletionRequest{Prompt: "transcript"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "done" {
		t.Fatalf("unexpected output %q", out)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(waits) != 2 {
		t.Fatalf("expected 2 waits, got %d", len(waits))
	}
	if waits[0] != 1500*time.Millisecond {
		t.Fatalf("expected server-estimated wait, got %v", waits[0])
	}
}

func TestCompleteGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": "Model is currently loading"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 1000)
	_, err := c.Complete(context.Background(), provider.CompletionRequest{Prompt: "transcript"})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	perr, ok := provider.AsError(err)
	if !ok {
		t.Fatalf("expected provider error, got %T", err)
	}
	if perr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", perr.StatusCode)
	}
}

func TestCompleteNonLoadingErrorFailsImmediately(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": "invalid input"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 1000)
	_, err := c.Complete(context.Background(), provider.CompletionRequest{Prompt: "transcript"})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}
