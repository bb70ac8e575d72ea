package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"meetscribe/config"
	"meetscribe/internal/provider"
)

// Client talks to the OpenAI chat-completions and embeddings APIs. It is the
// primary completion provider and the only embedding provider.
type Client struct {
	apiKey          string
	baseURL         string
	completionModel string
	embeddingModel  string
	temperature     float64
	maxTokens       int
	httpClient      *http.Client
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// apiError is the error envelope OpenAI returns on non-2xx responses.
type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// New creates an OpenAI client from configuration.
func New(cfg config.OpenAIConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		apiKey:          cfg.APIKey,
		baseURL:         baseURL,
		completionModel: cfg.CompletionModel,
		embeddingModel:  cfg.EmbeddingModel,
		temperature:     cfg.Temperature,
		maxTokens:       cfg.MaxTokens,
		httpClient:      &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return provider.NameOpenAI }

// Complete performs a single chat-completion call.
func (c *Client) Complete(ctx context.Context, req provider.CompletionRequest) (string, error) {
	if c.apiKey == "" {
		return "", &provider.Error{Provider: c.Name(), Message: "api key not configured"}
	}

	msgs := make([]message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, message{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:       c.completionModel,
		Messages:    msgs,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var out chatResponse
	if err := c.postJSON(ctx, c.baseURL+"/chat/completions", body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", &provider.Error{Provider: c.Name(), Message: "no choices in response"}
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// Embed generates an embedding for the given text. Newlines are flattened
// before the call, matching the embedding API's input recommendations.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.apiKey == "" {
		return nil, &provider.Error{Provider: c.Name(), Message: "api key not configured"}
	}

	body, err := json.Marshal(map[string]interface{}{
		"model": c.embeddingModel,
		"input": strings.ReplaceAll(text, "\n", " "),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := c.postJSON(ctx, c.baseURL+"/embeddings", body, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, &provider.Error{Provider: c.Name(), Message: "no embedding in response"}
	}
	return out.Data[0].Embedding, nil
}

func (c *Client) postJSON(ctx context.Context, url string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return provider.WrapTransport(c.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := resp.Status
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && ae.Error.Message != "" {
			msg = ae.Error.Message
		}
		return &provider.Error{Provider: c.Name(), StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &provider.Error{Provider: c.Name(), Message: "parse response: " + err.Error()}
	}
	return nil
}
