package oaihttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/persona-backend/internal/analysis"
	"github.com/yungbote/persona-backend/internal/inference/engine"
	"github.com/yungbote/persona-backend/internal/platform/jsonx"
)

const (
	defaultChatPath = "/v1/chat/completions"
	defaultTimeout  = 60 * time.Second
	maxBodyBytes    = 8 << 20
)

type Config struct {
	BaseURL             string
	APIKey              string
	ChatCompletionsPath string
	// Timeout applies when a request does not carry its own.
	Timeout time.Duration
}

// Gateway talks to an OpenAI-compatible chat completions endpoint.
type Gateway struct {
	baseURL  string
	apiKey   string
	chatPath string
	timeout  time.Duration

	httpClient *http.Client
}

func New(cfg Config) (*Gateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, &analysis.ConfigurationError{Key: "OPENAI_API_KEY", Reason: "not set"}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, &analysis.ConfigurationError{Key: "OPENAI_BASE_URL", Reason: "not set"}
	}
	chatPath := strings.TrimSpace(cfg.ChatCompletionsPath)
	if chatPath == "" {
		chatPath = defaultChatPath
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Gateway{
		baseURL:    baseURL,
		apiKey:     apiKey,
		chatPath:   chatPath,
		timeout:    timeout,
		httpClient: &http.Client{Transport: tr},
	}, nil
}

// NewWithHTTPClient is intended for tests; it avoids network access by using a custom RoundTripper.
func NewWithHTTPClient(cfg Config, httpClient *http.Client) (*Gateway, error) {
	g, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		g.httpClient = httpClient
	}
	return g, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model            string         `json:"model"`
	Messages         []chatMessage  `json:"messages"`
	MaxTokens        int            `json:"max_tokens,omitempty"`
	Temperature      float64        `json:"temperature"`
	TopP             float64        `json:"top_p,omitempty"`
	FrequencyPenalty float64        `json:"frequency_penalty,omitempty"`
	ResponseFormat   map[string]any `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content,omitempty"`
		} `json:"message,omitempty"`
		Text         string `json:"text,omitempty"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete performs one chat completion. The request timeout cancels the
// underlying HTTP call, not just the wait for it.
func (g *Gateway) Complete(ctx context.Context, req engine.Request) (*engine.Envelope, error) {
	msgs := toChatMessages(req.Messages)
	if len(msgs) == 0 {
		return nil, &analysis.UpstreamError{Message: "no messages"}
	}
	body := chatCompletionRequest{
		Model:            req.Model,
		Messages:         msgs,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
	}
	if req.JSONObject {
		body.ResponseFormat = map[string]any{"type": "json_object"}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = g.timeout
	}

	var resp chatCompletionResponse
	if err := g.doJSON(ctx, timeout, http.MethodPost, g.chatPath, body, &resp); err != nil {
		return nil, err
	}

	env := &engine.Envelope{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: engine.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	env.Content, env.FinishReason = extractChatText(resp)
	if strings.TrimSpace(env.Content) == "" {
		return nil, &analysis.UpstreamError{Status: http.StatusOK, Message: "empty upstream completion"}
	}
	return env, nil
}

func toChatMessages(messages []engine.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		role := strings.TrimSpace(m.Role)
		content := strings.TrimSpace(m.Content)
		if role == "" || content == "" {
			continue
		}
		out = append(out, chatMessage{Role: role, Content: content})
	}
	return out
}

func extractChatText(resp chatCompletionResponse) (string, string) {
	for _, c := range resp.Choices {
		if strings.TrimSpace(c.Message.Content) != "" {
			return c.Message.Content, c.FinishReason
		}
		if strings.TrimSpace(c.Text) != "" {
			return c.Text, c.FinishReason
		}
	}
	return "", ""
}

// ---------------- HTTP helpers ----------------

func (g *Gateway) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
}

func (g *Gateway) doJSON(ctx context.Context, timeout time.Duration, method string, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := jsonx.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	ctx2, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx2, method, g.baseURL+path, &buf)
	if err != nil {
		return &analysis.UpstreamError{Message: "build request", Err: err}
	}
	g.setHeaders(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return classify(ctx2, timeout, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return classify(ctx2, timeout, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
		return &analysis.UpstreamError{
			Status:  resp.StatusCode,
			Message: upstreamMessage(httpErr.Body),
			Err:     httpErr,
		}
	}

	if out == nil {
		return nil
	}
	if err := jsonx.Unmarshal(raw, out); err != nil {
		return &analysis.UpstreamError{Status: resp.StatusCode, Message: "malformed completion envelope", Err: err}
	}
	return nil
}

// classify maps a transport failure to the timeout or upstream class.
func classify(ctx context.Context, timeout time.Duration, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &analysis.TimeoutError{Op: "chat_completion", Budget: timeout, Err: ctxErr}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &analysis.TimeoutError{Op: "chat_completion", Budget: timeout, Err: err}
	}
	return &analysis.UpstreamError{Message: "transport failure", Err: err}
}
