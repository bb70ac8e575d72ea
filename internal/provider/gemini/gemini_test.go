package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"meetscribe/config"
	"meetscribe/internal/provider"
)

func TestCompleteFoldsSystemIntoPrompt(t *testing.T) {
	var captured struct {
		Contents []struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "models/gemini-pro:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("key"); got != "test-key" {
			t.Errorf("unexpected key %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": "part one "}, {"text": "part two"}},
				}},
			},
		})
	}))
	defer srv.Close()

	c := New(config.GeminiConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "gemini-pro"})
	out, err := c.Complete(context.Background(), provider.CompletionRequest{System: "sys", Prompt: "hello"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "part one part two" {
		t.Fatalf("expected joined parts, got %q", out)
	}
	if len(captured.Contents) != 1 || len(captured.Contents[0].Parts) != 1 {
		t.Fatalf("unexpected request shape %+v", captured)
	}
	if got := captured.Contents[0].Parts[0].Text; !strings.HasPrefix(got, "sys\n\n") {
		t.Fatalf("expected system folded into prompt, got %q", got)
	}
}

func TestCompleteEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"candidates": []interface{}{}})
	}))
	defer srv.Close()

	c := New(config.GeminiConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "gemini-pro"})
	_, err := c.Complete(context.Background(), provider.CompletionRequest{Prompt: "hello"})
	if err == nil {
		t.Fatal("expected error on empty candidates")
	}
	if _, ok := provider.AsError(err); !ok {
		t.Fatalf("expected provider error, got %T", err)
	}
}

func TestCompleteNormalizesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"message": "Resource has been exhausted"},
		})
	}))
	defer srv.Close()

	c := New(config.GeminiConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "gemini-pro"})
	_, err := c.Complete(context.Background(), provider.CompletionRequest{Prompt: "hello"})
	perr, ok := provider.AsError(err)
	if !ok {
		t.Fatalf("expected provider error, got %v", err)
	}
	if perr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", perr.StatusCode)
	}
	if perr.Provider != provider.NameGemini {
		t.Fatalf("expected gemini provider tag, got %q", perr.Provider)
	}
}
