// Package recovery is the consumer side of the analysis API: submit once,
// then reconcile through an explicit, bounded refresh that walks the
// by-id, by-assessment and latest-for-user lookups in order.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/yungbote/persona-backend/internal/analysis/complete"
	"github.com/yungbote/persona-backend/internal/domain"
	"github.com/yungbote/persona-backend/internal/platform/logger"
)

const DefaultMaxRetries = 3

var (
	// ErrNoAnalysis is the terminal "nothing found" state; the user should be
	// offered a retake.
	ErrNoAnalysis = errors.New("no analysis found")
	// ErrRetriesExhausted is returned by Refresh once MaxRetries is spent.
	ErrRetriesExhausted = errors.New("refresh limit reached")
	ErrBusy             = errors.New("a request is already in progress")
)

type State int

const (
	Idle State = iota
	Submitting
	Processing
	Ready
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Processing:
		return "processing"
	case Ready:
		return "ready"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// API is the subset of Client a Session needs.
type API interface {
	Submit(ctx context.Context, variant string, req SubmitRequest) (*SubmitResponse, error)
	FetchByID(ctx context.Context, id string) (*FetchResponse, error)
	FetchByAssessment(ctx context.Context, assessmentID string) (*FetchResponse, error)
	FetchLatestForUser(ctx context.Context, userID string) (*FetchResponse, error)
}

type Config struct {
	Variant string
	// UserID enables the latest-for-user step of the recovery chain.
	UserID     string
	MaxRetries int
}

// Snapshot is a consistent view of a Session.
type Snapshot struct {
	State        State
	AssessmentID string
	StoredID     string
	Analysis     *domain.PersonalityAnalysis
	Err          error
	Retries      int
	// Source names the lookup that produced Analysis: "submit", "id",
	// "assessment" or "latest".
	Source string
}

// Session tracks one assessment from submission to a rendered result. It is
// safe for concurrent use but runs one request at a time.
type Session struct {
	api        API
	variant    string
	userID     string
	maxRetries int
	log        *logger.Logger

	mu   sync.Mutex
	busy bool
	snap Snapshot
}

func NewSession(api API, cfg Config, baseLog *logger.Logger) *Session {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Session{
		api:        api,
		variant:    strings.TrimSpace(cfg.Variant),
		userID:     strings.TrimSpace(cfg.UserID),
		maxRetries: maxRetries,
		log:        baseLog.With("service", "RecoverySession"),
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *Session) State() State { return s.Snapshot().State }

// RetriesLeft is how many explicit refreshes remain.
func (s *Session) RetriesLeft() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxRetries - s.snap.Retries
}

// IsDegraded reports whether the current analysis is the static fallback.
func (s *Session) IsDegraded() bool {
	return complete.IsFallback(s.Snapshot().Analysis)
}

// Message is the banner text for the current state; empty when the full
// analysis is shown.
func (s *Session) Message() string {
	snap := s.Snapshot()
	switch {
	case snap.State == Ready && complete.IsFallback(snap.Analysis):
		return complete.DegradedMessage
	case snap.State == Processing:
		return "Your analysis is still being prepared."
	case snap.State == Error && errors.Is(snap.Err, ErrNoAnalysis):
		return "We couldn't find your analysis. Please retake the assessment."
	case snap.State == Error:
		return "Something went wrong loading your analysis."
	default:
		return ""
	}
}

func (s *Session) begin(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.busy = true
	from := s.snap.State
	s.snap.State = to
	s.log.Debug("recovery transition", "from", from.String(), "to", to.String())
	return nil
}

func (s *Session) end(apply func(*Snapshot)) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	from := s.snap.State
	apply(&s.snap)
	s.busy = false
	s.log.Info("recovery transition",
		"from", from.String(),
		"to", s.snap.State.String(),
		"assessment_id", s.snap.AssessmentID,
		"source", s.snap.Source,
	)
	return s.snap
}

// Resume seeds a session from ids the caller kept from an earlier submission,
// e.g. after a page reload.
func (s *Session) Resume(storedID, assessmentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.StoredID = strings.TrimSpace(storedID)
	s.snap.AssessmentID = strings.TrimSpace(assessmentID)
	if s.snap.State == Idle && (s.snap.StoredID != "" || s.snap.AssessmentID != "") {
		s.snap.State = Processing
	}
}

// Submit sends the responses once. A 200 makes the session Ready; a 202
// leaves it Processing with the assessment id to recover by.
func (s *Session) Submit(ctx context.Context, assessmentID string, responses []domain.RawResponse) (Snapshot, error) {
	if err := s.begin(Submitting); err != nil {
		return s.Snapshot(), err
	}
	resp, err := s.api.Submit(ctx, s.variant, SubmitRequest{
		Responses:    responses,
		AssessmentID: strings.TrimSpace(assessmentID),
		UserID:       s.userID,
	})
	if err != nil {
		snap := s.end(func(sn *Snapshot) {
			sn.State = Error
			sn.Err = fmt.Errorf("submit: %w", err)
			if sn.AssessmentID == "" {
				sn.AssessmentID = strings.TrimSpace(assessmentID)
			}
		})
		return snap, snap.Err
	}
	snap := s.end(func(sn *Snapshot) {
		sn.AssessmentID = resp.AssessmentID
		sn.StoredID = resp.StoredID
		sn.Err = nil
		if resp.Processing() || resp.Analysis == nil {
			sn.State = Processing
			return
		}
		sn.State = Ready
		sn.Analysis = resp.Analysis
		sn.Source = "submit"
	})
	return snap, nil
}

// Refresh is the user's explicit retry. It runs the recovery chain once and
// counts against MaxRetries; it never loops on its own.
func (s *Session) Refresh(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.snap.Retries >= s.maxRetries {
		snap := s.snap
		s.mu.Unlock()
		return snap, ErrRetriesExhausted
	}
	s.mu.Unlock()

	if err := s.begin(Processing); err != nil {
		return s.Snapshot(), err
	}
	snap := s.Snapshot()
	res, source, err := s.recover(ctx, snap.StoredID, snap.AssessmentID)
	out := s.end(func(sn *Snapshot) {
		sn.Retries++
		if err != nil {
			sn.State = Error
			sn.Err = err
			return
		}
		sn.State = Ready
		sn.Err = nil
		sn.Analysis = res.Analysis
		sn.Source = source
		if res.Record.ID != "" {
			sn.StoredID = res.Record.ID
		}
		if sn.AssessmentID == "" {
			sn.AssessmentID = res.Record.AssessmentID
		}
	})
	return out, err
}

// recover walks by-id, by-assessment and latest-for-user. Only a not-found
// result advances the chain; any other failure stops it so a transient
// outage is not reported as a missing analysis.
func (s *Session) recover(ctx context.Context, storedID, assessmentID string) (*FetchResponse, string, error) {
	steps := []struct {
		source string
		key    string
		fetch  func(context.Context, string) (*FetchResponse, error)
	}{
		{"id", storedID, s.api.FetchByID},
		{"assessment", assessmentID, s.api.FetchByAssessment},
		{"latest", s.userID, s.api.FetchLatestForUser},
	}
	for _, st := range steps {
		if st.key == "" {
			continue
		}
		res, err := st.fetch(ctx, st.key)
		if err == nil {
			return res, st.source, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, st.source, fmt.Errorf("fetch by %s: %w", st.source, err)
		}
		s.log.Debug("recovery step missed", "source", st.source)
	}
	return nil, "", ErrNoAnalysis
}
