package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"replybot/internal/domain"
)

const (
	completionService = "completion"

	defaultCompletionBase    = "https://api.deepseek.com"
	defaultCompletionModel   = "deepseek-chat"
	defaultCompletionTokens  = 1500
	defaultTemperature       = 0.7
	defaultCompletionTimeout = 30 * time.Second
)

// Completion implements domain.Completer for OpenAI-compatible
// /chat/completions APIs (DeepSeek by default).
type Completion struct {
	apiKey      string
	apiBase     string
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	webSearch   bool
	client      *http.Client
	logger      *slog.Logger
}

type CompletionConfig struct {
	APIKey      string
	APIBase     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	// SupportsWebSearch enables sending the web_search flag. Backends
	// without search augmentation reject unknown fields, so it is off by default.
	SupportsWebSearch bool
	Client            *http.Client
	Logger            *slog.Logger
}

func NewCompletion(cfg CompletionConfig) *Completion {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultCompletionBase
	}
	if cfg.Model == "" {
		cfg.Model = defaultCompletionModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultCompletionTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCompletionTimeout
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Completion{
		apiKey:      cfg.APIKey,
		apiBase:     cfg.APIBase,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		webSearch:   cfg.SupportsWebSearch,
		client:      cfg.Client,
		logger:      cfg.Logger,
	}
}

func (c *Completion) Name() string  { return completionService }
func (c *Completion) Model() string { return c.model }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	WebSearch   *bool         `json:"web_search,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete sends one user message and returns the first choice's content.
// It makes exactly one attempt bounded by the configured timeout.
func (c *Completion) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if c.apiKey == "" {
		return "", &CallError{Service: completionService, Kind: FailureConfig, Message: "API key is not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if c.webSearch && req.WebSearch {
		on := true
		body.WebSearch = &on
	}

	resp, err := postJSON(ctx, c.client, completionService, c.apiBase+"/chat/completions", body, map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(completionService, resp)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if isTimeout(ctx, err) {
			return "", &CallError{Service: completionService, Kind: FailureTimeout, Err: err}
		}
		return "", &CallError{Service: completionService, Kind: FailureSchema, Err: fmt.Errorf("decode: %w", err)}
	}
	if len(out.Choices) == 0 || out.Choices[0].Message == nil || out.Choices[0].Message.Content == nil {
		return "", &CallError{Service: completionService, Kind: FailureSchema, Message: "response has no choices[0].message.content"}
	}

	c.logger.Debug("completion done",
		"model", c.model,
		"finish_reason", out.Choices[0].FinishReason,
		"prompt_tokens", out.Usage.PromptTokens,
		"completion_tokens", out.Usage.CompletionTokens,
	)
	return *out.Choices[0].Message.Content, nil
}

// Healthy checks that the API is reachable and the key is accepted.
func (c *Completion) Healthy(ctx context.Context) error {
	if c.apiKey == "" {
		return fmt.Errorf("completion: API key is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("completion not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("completion: invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("completion returned %d", resp.StatusCode)
	}
	return nil
}
