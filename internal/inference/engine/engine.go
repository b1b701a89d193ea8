package engine

import (
	"context"
	"time"
)

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

type Message struct {
	Role    string
	Content string
}

// Request is one chat completion call. Timeout bounds the whole HTTP round
// trip; zero means the gateway default.
type Request struct {
	Model            string
	Messages         []Message
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	JSONObject       bool
	Timeout          time.Duration
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Envelope is the top-level completion response. Content is the text of the
// first choice; it is not parsed here.
type Envelope struct {
	ID           string
	Model        string
	Content      string
	FinishReason string
	Usage        Usage
}

// Gateway performs exactly one completion call. It never retries and never
// persists. Failures are *analysis.TimeoutError or *analysis.UpstreamError.
type Gateway interface {
	Complete(ctx context.Context, req Request) (*Envelope, error)
}
