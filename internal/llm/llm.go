// Package llm adapts an HTTP-backed LLM provider into the generate
// contract the Analysis Stage (C8) depends on. It is grounded on the
// teacher's internal/ai/llm.go multi-provider LLMClient, narrowed from
// a free-text Generate(prompt) to the structured request/response
// shape spec §4.8 requires of the analysis collaborator.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rivalscope/corewatch/internal/errkind"
)

// Provider identifies which LLM backend Client talks to.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
	ProviderCustom Provider = "custom"
)

// Config configures a Client.
type Config struct {
	Provider Provider
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// Message is one turn of the conversation sent to the model.
type Message struct {
	Role    string
	Content string
}

// Request is the structured analysis-generation request (§4.8).
type Request struct {
	Messages        []Message
	MaxTokens       int
	Temperature     float64
	TopP            float64
	TopK            int
	StopSequences   []string
}

// StopReason classifies why generation ended.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopMaxTokens StopReason = "max_tokens"
	StopSequence  StopReason = "stop_sequence"
)

// Response is the structured analysis-generation response.
type Response struct {
	Content    string
	StopReason StopReason
}

// Generator is the contract the Analysis Stage depends on.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Client is an HTTP-backed Generator.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient builds a Client for the configured provider.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger.With("component", "llm_client"),
	}
}

// Generate dispatches req to the configured provider and classifies
// any failure into the §7 taxonomy as KindLLMUnavailable.
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	var (
		resp *Response
		err  error
	)
	switch c.cfg.Provider {
	case ProviderOllama:
		resp, err = c.generateOllama(ctx, req)
	case ProviderOpenAI:
		resp, err = c.generateOpenAI(ctx, req)
	case ProviderCustom:
		resp, err = c.generateCustom(ctx, req)
	default:
		return nil, errkind.New("llm", errkind.KindLLMUnavailable, "", fmt.Errorf("unsupported provider: %s", c.cfg.Provider))
	}
	if err != nil {
		return nil, errkind.New("llm", errkind.KindLLMUnavailable, "", err)
	}
	return resp, nil
}

func (c *Client) generateOllama(ctx context.Context, req Request) (*Response, error) {
	messages := make([]map[string]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, map[string]string{"role": m.Role, "content": m.Content})
	}

	payload := map[string]any{
		"model":    c.cfg.Model,
		"messages": messages,
		"stream":   false,
		"options": map[string]any{
			"temperature": req.Temperature,
			"top_p":       req.TopP,
			"top_k":       req.TopK,
			"num_predict": req.MaxTokens,
			"stop":        req.StopSequences,
		},
	}

	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Done bool `json:"done"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}
	return &Response{Content: result.Message.Content, StopReason: StopEndTurn}, nil
}

func (c *Client) generateOpenAI(ctx context.Context, req Request) (*Response, error) {
	messages := make([]map[string]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, map[string]string{"role": m.Role, "content": m.Content})
	}

	payload := map[string]any{
		"model":       c.cfg.Model,
		"messages":    messages,
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
		"top_p":       req.TopP,
		"stop":        req.StopSequences,
	}

	body, _ := json.Marshal(payload)
	endpoint := c.cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("no choices in openai response")
	}

	stopReason := StopEndTurn
	switch result.Choices[0].FinishReason {
	case "length":
		stopReason = StopMaxTokens
	case "stop":
		stopReason = StopSequence
	}

	return &Response{Content: result.Choices[0].Message.Content, StopReason: stopReason}, nil
}

func (c *Client) generateCustom(ctx context.Context, req Request) (*Response, error) {
	payload := map[string]any{
		"messages": req.Messages,
		"model":    c.cfg.Model,
	}
	body, _ := json.Marshal(payload)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &Response{Content: result.Content, StopReason: StopEndTurn}, nil
}

var _ Generator = (*Client)(nil)
