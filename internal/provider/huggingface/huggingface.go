package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"meetscribe/config"
	"meetscribe/internal/provider"
)

// Client talks to the Hugging Face inference API. It is the last-resort
// completion provider: a summarization model with a hard input cap, tried
// only after the richer providers have failed.
type Client struct {
	apiKey        string
	baseURL       string
	model         string
	maxInputChars int
	maxAttempts   int
	retryWait     time.Duration
	httpClient    *http.Client
	sleep         func(ctx context.Context, d time.Duration) error
}

type inferenceRequest struct {
	Inputs string `json:"inputs"`
}

type summaryItem struct {
	SummaryText string `json:"summary_text"`
}

// loadingError is returned with a 503 while the hosted model warms up.
type loadingError struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

// New creates a Hugging Face client from configuration.
func New(cfg config.HuggingFaceConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api-inference.huggingface.co/models"
	}
	maxInput := cfg.MaxInputChars
	if maxInput <= 0 {
		maxInput = 1000
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	wait := cfg.RetryWait
	if wait <= 0 {
		wait = 20 * time.Second
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		apiKey:        cfg.APIKey,
		baseURL:       baseURL,
		model:         cfg.Model,
		maxInputChars: maxInput,
		maxAttempts:   attempts,
		retryWait:     wait,
		httpClient:    &http.Client{Timeout: timeout},
		sleep:         sleepCtx,
	}
}

func (c *Client) Name() string { return provider.NameHuggingFace }

// Complete summarizes the prompt. The input is truncated to the leading
// maxInputChars characters before the call, and cold-start responses are
// retried up to maxAttempts times, waiting the server's estimated time when
// it reports one.
func (c *Client) Complete(ctx context.Context, req provider.CompletionRequest) (string, error) {
	if c.apiKey == "" {
		return "", &provider.Error{Provider: c.Name(), Message: "api key not configured"}
	}

	input := req.Prompt
	if len(input) > c.maxInputChars {
		cut := c.maxInputChars
		// Never cut in the middle of a multibyte rune.
		for cut > 0 && !utf8.RuneStart(input[cut]) {
			cut--
		}
		input = input[:cut]
	}
	body, err := json.Marshal(inferenceRequest{Inputs: input})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		text, wait, err := c.doOnce(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if wait <= 0 {
			return "", err
		}
		if attempt == c.maxAttempts {
			break
		}
		if err := c.sleep(ctx, wait); err != nil {
			return "", &provider.Error{Provider: c.Name(), Message: err.Error()}
		}
	}
	return "", lastErr
}

// doOnce performs one inference call. A positive wait in the return values
// means the model is still loading and the call may be retried after waiting.
func (c *Client) doOnce(ctx context.Context, body []byte) (string, time.Duration, error) {
	url := c.baseURL + "/" + c.model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, provider.WrapTransport(c.Name(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, &provider.Error{Provider: c.Name(), Message: "read response: " + err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		var le loadingError
		if json.Unmarshal(raw, &le) == nil && strings.Contains(strings.ToLower(le.Error), "loading") {
			wait := c.retryWait
			if le.EstimatedTime > 0 {
				wait = time.Duration(le.EstimatedTime * float64(time.Second))
			}
			return "", wait, &provider.Error{Provider: c.Name(), StatusCode: resp.StatusCode, Message: le.Error}
		}
		msg := resp.Status
		if le.Error != "" {
			msg = le.Error
		}
		return "", 0, &provider.Error{Provider: c.Name(), StatusCode: resp.StatusCode, Message: msg}
	}

	var items []summaryItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return "", 0, &provider.Error{Provider: c.Name(), Message: "parse response: " + err.Error()}
	}
	if len(items) == 0 || strings.TrimSpace(items[0].SummaryText) == "" {
		return "", 0, &provider.Error{Provider: c.Name(), Message: "empty summary in response"}
	}
	return strings.TrimSpace(items[0].SummaryText), 0, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
