// Package mock provides a scripted gateway for tests and for local runs
// without an API key.
package mock

import (
	"context"
	"sync"

	"github.com/yungbote/persona-backend/internal/analysis"
	"github.com/yungbote/persona-backend/internal/inference/engine"
)

// Step is one scripted reply. Exactly one of Content, Err, Hang is used.
type Step struct {
	Content string
	Err     error
	// Hang blocks until the request context ends and then returns a
	// TimeoutError, like a real call that exceeds its budget.
	Hang bool
}

// Gateway replays Steps in order; the last step repeats once the script is
// exhausted. It records every request it receives.
type Gateway struct {
	mu       sync.Mutex
	steps    []Step
	requests []engine.Request
}

func New(steps ...Step) *Gateway {
	return &Gateway{steps: steps}
}

// Reply is a convenience constructor for a single-content script.
func Reply(content string) *Gateway {
	return New(Step{Content: content})
}

func (g *Gateway) Complete(ctx context.Context, req engine.Request) (*engine.Envelope, error) {
	g.mu.Lock()
	n := len(g.requests)
	g.requests = append(g.requests, req)
	var st Step
	if len(g.steps) > 0 {
		if n < len(g.steps) {
			st = g.steps[n]
		} else {
			st = g.steps[len(g.steps)-1]
		}
	}
	g.mu.Unlock()

	if st.Hang {
		callCtx := ctx
		if req.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, req.Timeout)
			defer cancel()
		}
		<-callCtx.Done()
		return nil, &analysis.TimeoutError{Op: "chat_completion", Budget: req.Timeout, Err: callCtx.Err()}
	}
	if err := ctx.Err(); err != nil {
		return nil, &analysis.TimeoutError{Op: "chat_completion", Budget: req.Timeout, Err: err}
	}
	if st.Err != nil {
		return nil, st.Err
	}
	return &engine.Envelope{
		ID:           "mock-completion",
		Model:        req.Model,
		Content:      st.Content,
		FinishReason: "stop",
	}, nil
}

func (g *Gateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func (g *Gateway) Requests() []engine.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]engine.Request, len(g.requests))
	copy(out, g.requests)
	return out
}
