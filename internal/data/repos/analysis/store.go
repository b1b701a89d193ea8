package analysis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	aerr "github.com/yungbote/persona-backend/internal/analysis"
	"github.com/yungbote/persona-backend/internal/domain"
	"github.com/yungbote/persona-backend/internal/platform/jsonx"
	"github.com/yungbote/persona-backend/internal/platform/logger"
)

// Record is a stored analysis with its payload decoded.
type Record struct {
	ID           string                      `json:"id"`
	AssessmentID string                      `json:"assessmentId"`
	UserID       string                      `json:"userId,omitempty"`
	Variant      string                      `json:"variant"`
	Degraded     bool                        `json:"degraded"`
	CreatedAt    time.Time                   `json:"createdAt"`
	Analysis     *domain.PersonalityAnalysis `json:"-"`
}

type SaveInput struct {
	AssessmentID string
	UserID       string
	Variant      string
	Degraded     bool
	Analysis     *domain.PersonalityAnalysis
	Responses    []domain.RawResponse
}

// Store is the persistence adapter used by the pipeline and the fetch
// handlers. Every call runs under the persistence timeout; failures come
// back as *analysis.PersistenceError and misses as ErrNotFound.
type Store struct {
	db        *gorm.DB
	analyses  AnalysisRepo
	responses ResponseRepo
	timeout   time.Duration
	log       *logger.Logger
}

func NewStore(db *gorm.DB, analyses AnalysisRepo, responses ResponseRepo, timeout time.Duration, baseLog *logger.Logger) *Store {
	return &Store{
		db:        db,
		analyses:  analyses,
		responses: responses,
		timeout:   timeout,
		log:       baseLog.With("service", "AnalysisStore"),
	}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Save upserts the analysis by assessment id and appends the raw responses
// to the audit table in one transaction. It returns the stored row id.
func (s *Store) Save(ctx context.Context, in SaveInput) (string, error) {
	fail := func(err error) (string, error) {
		return "", &aerr.PersistenceError{Op: "save", AssessmentID: in.AssessmentID, Err: err}
	}
	if strings.TrimSpace(in.AssessmentID) == "" {
		return fail(errors.New("empty assessment id"))
	}
	if in.Analysis == nil {
		return fail(errors.New("nil analysis"))
	}
	payload, err := jsonx.Marshal(in.Analysis)
	if err != nil {
		return fail(err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	row := &domain.StoredAnalysis{
		AssessmentID: in.AssessmentID,
		UserID:       in.UserID,
		Variant:      in.Variant,
		AnalysisData: datatypes.JSON(payload),
		Degraded:     in.Degraded,
		CreatedAt:    now,
	}

	var storedID uuid.UUID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := s.analyses.Upsert(ctx, tx, row)
		if err != nil {
			return err
		}
		storedID = id
		return s.responses.Create(ctx, tx, auditRows(in, now))
	})
	if err != nil {
		return fail(err)
	}
	s.log.Debug("analysis stored", "assessment_id", in.AssessmentID, "stored_id", storedID.String(), "degraded", in.Degraded)
	return storedID.String(), nil
}

func auditRows(in SaveInput, now time.Time) []*domain.RawResponseRecord {
	rows := make([]*domain.RawResponseRecord, 0, len(in.Responses))
	for _, r := range in.Responses {
		rows = append(rows, &domain.RawResponseRecord{
			ID:             uuid.New().String(),
			AssessmentID:   in.AssessmentID,
			UserID:         in.UserID,
			QuestionID:     r.QuestionID,
			Category:       r.Category,
			SelectedOption: r.SelectedOption,
			CustomResponse: r.CustomResponse,
			AnsweredAt:     r.Timestamp,
			CreatedAt:      now,
		})
	}
	return rows
}

func (s *Store) FetchByID(ctx context.Context, id string) (*Record, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, ErrNotFound
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	row, err := s.analyses.GetByID(ctx, nil, parsed)
	return s.record("fetch_by_id", id, row, err)
}

func (s *Store) FetchByAssessmentID(ctx context.Context, assessmentID string) (*Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	row, err := s.analyses.GetByAssessmentID(ctx, nil, strings.TrimSpace(assessmentID))
	return s.record("fetch_by_assessment", assessmentID, row, err)
}

func (s *Store) FetchLatestForUser(ctx context.Context, userID string) (*Record, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrNotFound
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	row, err := s.analyses.GetLatestForUser(ctx, nil, strings.TrimSpace(userID))
	return s.record("fetch_latest", "", row, err)
}

func (s *Store) record(op, key string, row *domain.StoredAnalysis, err error) (*Record, error) {
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &aerr.PersistenceError{Op: op, AssessmentID: key, Err: err}
	}
	rec, err := Decode(row)
	if err != nil {
		return nil, &aerr.PersistenceError{Op: op, AssessmentID: row.AssessmentID, Err: err}
	}
	return rec, nil
}

// Decode turns a stored row into a Record.
func Decode(row *domain.StoredAnalysis) (*Record, error) {
	var a domain.PersonalityAnalysis
	if err := jsonx.Unmarshal(row.AnalysisData, &a); err != nil {
		return nil, err
	}
	return &Record{
		ID:           row.ID.String(),
		AssessmentID: row.AssessmentID,
		UserID:       row.UserID,
		Variant:      row.Variant,
		Degraded:     row.Degraded,
		CreatedAt:    row.CreatedAt,
		Analysis:     &a,
	}, nil
}
