// Package pipeline runs one analysis invocation end to end: validate, build
// the prompt, drive the retry controller, complete the schema and persist.
// Stages run strictly in sequence.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/persona-backend/internal/analysis"
	"github.com/yungbote/persona-backend/internal/analysis/complete"
	"github.com/yungbote/persona-backend/internal/analysis/prompt"
	"github.com/yungbote/persona-backend/internal/analysis/retry"
	"github.com/yungbote/persona-backend/internal/data/cache"
	repo "github.com/yungbote/persona-backend/internal/data/repos/analysis"
	"github.com/yungbote/persona-backend/internal/domain"
	"github.com/yungbote/persona-backend/internal/inference/engine"
	"github.com/yungbote/persona-backend/internal/observability"
	"github.com/yungbote/persona-backend/internal/platform/logger"
)

const DefaultMinResponseChars = 20

// Persister stores a finished analysis and returns the stored row id.
type Persister interface {
	Save(ctx context.Context, in repo.SaveInput) (string, error)
}

type Result struct {
	Analysis     *domain.PersonalityAnalysis
	StoredID     string
	AssessmentID string
	Variant      string
	State        retry.State
	Degraded     bool
	// Processing is set when another invocation already holds this
	// assessment; Analysis is nil then.
	Processing bool
	Elapsed    time.Duration
}

type Deps struct {
	Variants  analysis.Registry
	Builder   *prompt.Builder
	Gateway   engine.Gateway
	Policy    retry.Policy
	Completer *complete.Completer
	Store     Persister
	Guard     cache.Guard
	Metrics   *observability.Metrics
	Tracer    trace.Tracer
	Log       *logger.Logger

	// Budget bounds one invocation; zero means no deadline beyond ctx.
	Budget           time.Duration
	MinResponseChars int
	// ConfigErr is returned for every request when the service could not be
	// fully configured, typically a missing API key.
	ConfigErr error

	RetryOptions []retry.Option
}

type Service struct {
	variants   analysis.Registry
	builder    *prompt.Builder
	gw         engine.Gateway
	controller *retry.Controller
	completer  *complete.Completer
	store      Persister
	guard      cache.Guard
	metrics    *observability.Metrics
	tracer     trace.Tracer
	log        *logger.Logger
	budget     time.Duration
	minChars   int
	configErr  error
}

func NewService(d Deps) *Service {
	serviceLog := d.Log.With("service", "AnalysisPipeline")
	minChars := d.MinResponseChars
	if minChars <= 0 {
		minChars = DefaultMinResponseChars
	}
	tracer := d.Tracer
	if tracer == nil {
		tracer = observability.Tracer()
	}
	completer := d.Completer
	if completer == nil {
		completer = complete.New(nil)
	}
	configErr := d.ConfigErr
	if configErr == nil && d.Gateway == nil {
		configErr = &analysis.ConfigurationError{Key: "OPENAI_API_KEY", Reason: "no completion gateway configured"}
	}

	opts := append([]retry.Option{}, d.RetryOptions...)
	if d.Metrics != nil {
		opts = append(opts, retry.WithRecorder(d.Metrics))
	}

	return &Service{
		variants:   d.Variants,
		builder:    d.Builder,
		gw:         d.Gateway,
		controller: retry.NewController(d.Gateway, d.Policy, d.Log, opts...),
		completer:  completer,
		store:      d.Store,
		guard:      d.Guard,
		metrics:    d.Metrics,
		tracer:     tracer,
		log:        serviceLog,
		budget:     d.Budget,
		minChars:   minChars,
		configErr:  configErr,
	}
}

// Analyze runs the pipeline for one request. Only ValidationError and
// ConfigurationError are returned; every other failure degrades the result
// instead.
func (s *Service) Analyze(ctx context.Context, variantName string, req domain.AnalysisRequest) (*Result, error) {
	start := time.Now()

	v, err := s.validate(variantName, &req)
	if err != nil {
		s.log.Warn("analysis request rejected", "variant", variantName, "error", err.Error())
		return nil, err
	}
	if s.configErr != nil {
		s.log.Error("analysis unavailable", "variant", v.Name, "error", s.configErr.Error())
		return nil, s.configErr
	}

	ctx, span := s.tracer.Start(ctx, "analysis.analyze", trace.WithAttributes(
		attribute.String("analysis.variant", v.Name),
		attribute.String("analysis.assessment_id", req.AssessmentID),
		attribute.Int("analysis.responses", len(req.Responses)),
	))
	defer span.End()

	// Only runs that will be stored are guarded: a duplicate told to poll
	// must be able to find the first run's result.
	persisted := req.UserID != "" && s.store != nil
	if persisted && s.guard != nil {
		ok, gerr := s.guard.Acquire(ctx, req.AssessmentID)
		switch {
		case gerr != nil:
			// An unreachable guard must not block analyses.
			s.log.Warn("inflight guard unavailable", "assessment_id", req.AssessmentID, "error", gerr.Error())
		case !ok:
			s.metrics.IncDuplicateSubmission(v.Name)
			s.log.Info("analysis already in progress", "variant", v.Name, "assessment_id", req.AssessmentID)
			span.SetAttributes(attribute.Bool("analysis.processing", true))
			return &Result{AssessmentID: req.AssessmentID, Variant: v.Name, Processing: true, Elapsed: time.Since(start)}, nil
		default:
			defer func() {
				_ = s.guard.Release(context.WithoutCancel(ctx), req.AssessmentID)
			}()
		}
	}

	s.log.Info("analysis started",
		"variant", v.Name,
		"assessment_id", req.AssessmentID,
		"user_id", req.UserID,
		"responses", len(req.Responses),
		"retry_count", req.RetryCount,
	)

	runCtx := ctx
	if s.budget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.budget)
		defer cancel()
	}

	plan := s.plan(runCtx, v, req.Responses)

	attemptCtx, runSpan := s.tracer.Start(runCtx, "analysis.attempts")
	outcome := s.controller.Run(attemptCtx, plan)
	runSpan.SetAttributes(
		attribute.String("analysis.state", outcome.State.String()),
		attribute.Int("analysis.attempts", len(outcome.Attempts)),
	)
	if outcome.Err != nil && outcome.State == retry.StaticFallback {
		runSpan.SetStatus(codes.Error, analysis.Class(outcome.Err))
	}
	runSpan.End()

	result := &Result{
		AssessmentID: req.AssessmentID,
		Variant:      v.Name,
		State:        outcome.State,
		Degraded:     outcome.Degraded(),
	}
	result.Analysis = s.complete(runCtx, v, outcome)
	s.metrics.ObserveOutcome(v.Name, outcome.State)

	if persisted {
		result.StoredID = s.persist(ctx, v, req, result)
	}

	result.Elapsed = time.Since(start)
	span.SetAttributes(
		attribute.String("analysis.state", outcome.State.String()),
		attribute.Bool("analysis.degraded", result.Degraded),
	)
	s.log.Info("analysis finished",
		"variant", v.Name,
		"assessment_id", req.AssessmentID,
		"state", outcome.State.String(),
		"degraded", result.Degraded,
		"attempts", len(outcome.Attempts),
		"stored", result.StoredID != "",
		"elapsed_ms", result.Elapsed.Milliseconds(),
	)
	return result, nil
}

func (s *Service) validate(variantName string, req *domain.AnalysisRequest) (analysis.Variant, error) {
	v, ok := s.variants.Lookup(variantName)
	if !ok {
		return analysis.Variant{}, &analysis.ValidationError{Field: "variant", Reason: "unknown analysis variant " + variantName}
	}
	if len(req.Responses) == 0 {
		return v, &analysis.ValidationError{Field: "responses", Reason: "no responses provided"}
	}
	text := 0
	for _, r := range req.Responses {
		if strings.TrimSpace(r.QuestionID) == "" {
			return v, &analysis.ValidationError{Field: "responses", Reason: "response without questionId"}
		}
		text += utf8.RuneCountInString(r.Answer())
	}
	if text < s.minChars {
		return v, &analysis.ValidationError{Field: "responses", Reason: "not enough response text to analyze"}
	}
	req.AssessmentID = strings.TrimSpace(req.AssessmentID)
	if req.AssessmentID == "" {
		req.AssessmentID = uuid.New().String()
	}
	req.UserID = strings.TrimSpace(req.UserID)
	return v, nil
}

func (s *Service) plan(ctx context.Context, v analysis.Variant, responses []domain.RawResponse) retry.Plan {
	_, span := s.tracer.Start(ctx, "analysis.prompt")
	defer span.End()

	primary := s.builder.Build(v, responses)
	fallback := s.builder.ForFallback(v, responses)
	span.SetAttributes(
		attribute.Int("prompt.user_chars", utf8.RuneCountInString(primary.User)),
		attribute.Bool("prompt.truncated", primary.Truncated),
		attribute.Int("prompt.dropped_lines", primary.DroppedLines),
	)
	if primary.Truncated {
		s.log.Info("prompt truncated", "variant", v.Name, "dropped_lines", primary.DroppedLines, "budget", v.PromptBudget)
	}

	return retry.Plan{
		Variant: v.Name,
		Primary: engine.Request{
			Model:            v.Model,
			Messages:         primary.Messages(),
			MaxTokens:        v.MaxTokens,
			Temperature:      v.Temperature,
			TopP:             v.TopP,
			FrequencyPenalty: v.FrequencyPenalty,
			JSONObject:       true,
		},
		Fallback: engine.Request{
			Model:            v.FallbackModel,
			Messages:         fallback.Messages(),
			MaxTokens:        v.FallbackMaxTokens,
			Temperature:      v.Temperature,
			TopP:             v.TopP,
			FrequencyPenalty: v.FrequencyPenalty,
			JSONObject:       true,
		},
	}
}

// complete always yields a contract-satisfying analysis: the model tree when
// there is one, the static fallback otherwise.
func (s *Service) complete(ctx context.Context, v analysis.Variant, outcome retry.Outcome) *domain.PersonalityAnalysis {
	_, span := s.tracer.Start(ctx, "analysis.complete")
	defer span.End()

	if outcome.Tree != nil {
		a, rep, err := s.completer.Complete(outcome.Tree, v.Contract)
		if err == nil {
			s.observeReport(v.Name, rep)
			if rep.Changed() {
				s.log.Debug("analysis completed with defaults",
					"variant", v.Name,
					"filled_strings", rep.FilledStrings,
					"added_items", rep.AddedItems,
					"regenerated_scores", rep.RegeneratedScores,
				)
			}
			return a
		}
		s.log.Error("completed analysis failed to decode", "variant", v.Name, "error", err.Error())
	}

	a, err := s.completer.Fallback(v.Contract)
	if err != nil {
		// The static tree is built in-process; a decode failure is a bug.
		s.log.Error("static fallback failed to decode", "variant", v.Name, "error", err.Error())
		return &domain.PersonalityAnalysis{
			ID:         uuid.New().String(),
			CreatedAt:  time.Now().UTC(),
			Overview:   complete.FallbackOverview,
			CoreTraits: domain.CoreTraits{Primary: complete.FallbackPrimary},
		}
	}
	return a
}

func (s *Service) observeReport(variant string, rep complete.Report) {
	s.metrics.ObserveCompletion(variant, "created_sections", rep.CreatedSections)
	s.metrics.ObserveCompletion(variant, "filled_strings", rep.FilledStrings)
	s.metrics.ObserveCompletion(variant, "extended_lists", rep.ExtendedLists)
	s.metrics.ObserveCompletion(variant, "added_items", rep.AddedItems)
	s.metrics.ObserveCompletion(variant, "coerced_items", rep.CoercedItems)
	s.metrics.ObserveCompletion(variant, "dropped_items", rep.DroppedItems)
	s.metrics.ObserveCompletion(variant, "regenerated_scores", rep.RegeneratedScores)
}

// persist stores the result. It runs detached from the execution budget so a
// run that spent its budget on retries still records its fallback; the store
// applies its own timeout. Failures are logged and counted only.
func (s *Service) persist(ctx context.Context, v analysis.Variant, req domain.AnalysisRequest, res *Result) string {
	ctx, span := s.tracer.Start(context.WithoutCancel(ctx), "analysis.persist")
	defer span.End()

	id, err := s.store.Save(ctx, repo.SaveInput{
		AssessmentID: req.AssessmentID,
		UserID:       req.UserID,
		Variant:      v.Name,
		Degraded:     res.Degraded,
		Analysis:     res.Analysis,
		Responses:    req.Responses,
	})
	if err != nil {
		op := "save"
		var pe *analysis.PersistenceError
		if errors.As(err, &pe) && pe.Op != "" {
			op = pe.Op
		}
		s.metrics.IncPersistenceFailure(op)
		span.SetStatus(codes.Error, "persistence")
		s.log.Error("analysis persistence failed",
			"variant", v.Name,
			"assessment_id", req.AssessmentID,
			"error_class", analysis.Class(err),
			"error", err.Error(),
		)
		return ""
	}
	return id
}
