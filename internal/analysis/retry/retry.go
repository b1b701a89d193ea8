// Package retry drives the attempt state machine around the gateway:
// primary attempts with growing timeouts and exponential backoff, one
// fallback attempt, then the static fallback.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/persona-backend/internal/analysis"
	"github.com/yungbote/persona-backend/internal/analysis/repair"
	"github.com/yungbote/persona-backend/internal/inference/engine"
	"github.com/yungbote/persona-backend/internal/platform/logger"
)

type State int

const (
	Idle State = iota
	Attempting
	Success
	FallbackAttempting
	FallbackSuccess
	StaticFallback
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Attempting:
		return "attempting"
	case Success:
		return "success"
	case FallbackAttempting:
		return "fallback_attempting"
	case FallbackSuccess:
		return "fallback_success"
	case StaticFallback:
		return "static_fallback"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == Success || s == FallbackSuccess || s == StaticFallback
}

type Policy struct {
	// MaxRetries is the retry ceiling: MaxRetries+1 primary attempts.
	MaxRetries      int
	BackoffBase     time.Duration
	AttemptTimeout  time.Duration
	FallbackTimeout time.Duration
}

// Backoff is the delay after failed primary attempt n (0-based).
func (p Policy) Backoff(n int) time.Duration {
	return p.BackoffBase * time.Duration(1<<uint(n))
}

// Timeout is the budget of primary attempt n (0-based).
func (p Policy) Timeout(n int) time.Duration {
	return p.AttemptTimeout * time.Duration(n+1)
}

// Plan carries the two request templates. Timeouts are set per attempt.
type Plan struct {
	Variant  string
	Primary  engine.Request
	Fallback engine.Request
}

type Transition struct {
	From    State
	To      State
	Attempt int
	Elapsed time.Duration
	Class   string
}

func (t Transition) String() string {
	to := t.To.String()
	if t.To == Attempting {
		to = fmt.Sprintf("attempting(%d)", t.Attempt)
	}
	return t.From.String() + "->" + to
}

type Attempt struct {
	N        int
	Fallback bool
	Model    string
	Timeout  time.Duration
	Duration time.Duration
	Err      error
	Repair   repair.Step
}

type Outcome struct {
	State       State
	Tree        map[string]any
	Attempts    []Attempt
	Transitions []Transition
	// Err is the last attempt error; nil on Success.
	Err     error
	Elapsed time.Duration
}

// Degraded is true when the result did not come from the primary model.
func (o Outcome) Degraded() bool { return o.State != Success }

// Recorder receives every attempt and transition for metrics.
type Recorder interface {
	ObserveAttempt(variant string, fallback bool, class string, d time.Duration)
	ObserveTransition(variant string, from, to State)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttempt(string, bool, string, time.Duration) {}
func (nopRecorder) ObserveTransition(string, State, State) {}

type Controller struct {
	gw       engine.Gateway
	policy   Policy
	log      *logger.Logger
	recorder Recorder
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

type Option func(*Controller)

func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithSleep replaces the backoff sleep. It must return ctx.Err() when ctx ends
// first.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) { c.sleep = fn }
}

func NewController(gw engine.Gateway, policy Policy, baseLog *logger.Logger, opts ...Option) *Controller {
	c := &Controller{
		gw:       gw,
		policy:   policy,
		log:      baseLog.With("service", "RetryController"),
		recorder: nopRecorder{},
		sleep:    sleepCtx,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Policy() Policy { return c.policy }

type run struct {
	c     *Controller
	plan  Plan
	start time.Time
	state State
	out   Outcome
}

func (r *run) move(to State, attempt int, err error) {
	t := Transition{
		From:    r.state,
		To:      to,
		Attempt: attempt,
		Elapsed: r.c.now().Sub(r.start),
		Class:   analysis.Class(err),
	}
	r.out.Transitions = append(r.out.Transitions, t)
	r.c.recorder.ObserveTransition(r.plan.Variant, t.From, t.To)

	kv := []interface{}{
		"variant", r.plan.Variant,
		"transition", t.String(),
		"attempt", attempt,
		"elapsed_ms", t.Elapsed.Milliseconds(),
		"error_class", t.Class,
	}
	if err != nil {
		kv = append(kv, "error", err.Error())
	}
	if to == StaticFallback || (err != nil && to != Attempting) {
		r.c.log.Warn("analysis transition", kv...)
	} else {
		r.c.log.Info("analysis transition", kv...)
	}
	r.state = to
}

// Run executes the state machine. It always returns a terminal outcome; on
// StaticFallback Tree is nil and the caller synthesizes the static result.
func (c *Controller) Run(ctx context.Context, plan Plan) Outcome {
	r := &run{c: c, plan: plan, start: c.now(), state: Idle}
	defer func() { r.out.Elapsed = c.now().Sub(r.start) }()

	r.move(Attempting, 0, nil)
	var lastErr error
	for n := 0; n <= c.policy.MaxRetries; n++ {
		if err := ctx.Err(); err != nil {
			return r.finish(StaticFallback, n, cancelled(err))
		}
		if n > 0 {
			if err := c.sleep(ctx, c.policy.Backoff(n-1)); err != nil {
				return r.finish(StaticFallback, n, cancelled(err))
			}
		}
		tree, err := r.attempt(ctx, n, false, plan.Primary, c.policy.Timeout(n))
		if err == nil {
			r.out.Tree = tree
			return r.finish(Success, n, nil)
		}
		lastErr = err
		if ctx.Err() != nil {
			return r.finish(StaticFallback, n, err)
		}
		if n < c.policy.MaxRetries {
			r.move(Attempting, n+1, err)
		}
	}

	r.move(FallbackAttempting, c.policy.MaxRetries+1, lastErr)
	tree, err := r.attempt(ctx, c.policy.MaxRetries+1, true, plan.Fallback, c.policy.FallbackTimeout)
	if err == nil {
		r.out.Tree = tree
		return r.finish(FallbackSuccess, c.policy.MaxRetries+1, nil)
	}
	return r.finish(StaticFallback, c.policy.MaxRetries+1, err)
}

func (r *run) finish(to State, attempt int, err error) Outcome {
	r.move(to, attempt, err)
	r.out.State = to
	r.out.Err = err
	return r.out
}

// attempt is one gateway call plus parse. Unparsable content fails the
// attempt exactly like an upstream error.
func (r *run) attempt(ctx context.Context, n int, fallback bool, req engine.Request, timeout time.Duration) (map[string]any, error) {
	req.Timeout = timeout
	start := r.c.now()
	a := Attempt{N: n, Fallback: fallback, Model: req.Model, Timeout: timeout}

	var tree map[string]any
	env, err := r.c.gw.Complete(ctx, req)
	if err == nil {
		var res repair.Result
		res, err = repair.Parse(env.Content)
		if err == nil {
			tree = res.Tree
			a.Repair = res.Step
			if res.Step > repair.StepDirect {
				r.c.log.Debug("analysis content repaired", "variant", r.plan.Variant, "attempt", n, "step", res.Step.String())
			}
		}
	}
	a.Duration = r.c.now().Sub(start)
	a.Err = err
	r.out.Attempts = append(r.out.Attempts, a)
	r.c.recorder.ObserveAttempt(r.plan.Variant, fallback, analysis.Class(err), a.Duration)
	return tree, err
}

func cancelled(err error) error {
	return &analysis.TimeoutError{Op: "analysis", Err: err}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
