package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/persona-backend/internal/analysis"
	"github.com/yungbote/persona-backend/internal/analysis/complete"
	"github.com/yungbote/persona-backend/internal/analysis/format"
	"github.com/yungbote/persona-backend/internal/analysis/pipeline"
	"github.com/yungbote/persona-backend/internal/analysis/retry"
	"github.com/yungbote/persona-backend/internal/config"
	repo "github.com/yungbote/persona-backend/internal/data/repos/analysis"
	"github.com/yungbote/persona-backend/internal/domain"
	"github.com/yungbote/persona-backend/internal/platform/ctxutil"
	"github.com/yungbote/persona-backend/internal/platform/jsonx"
	"github.com/yungbote/persona-backend/internal/platform/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

type analyzerFunc func(ctx context.Context, variant string, req domain.AnalysisRequest) (*pipeline.Result, error)

func (f analyzerFunc) Analyze(ctx context.Context, variant string, req domain.AnalysisRequest) (*pipeline.Result, error) {
	return f(ctx, variant, req)
}

func analysisRouter(t *testing.T, a Analyzer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	bank, err := config.LoadQuestionBank("")
	require.NoError(t, err)

	h := NewAnalysisHandler(a, format.New(bank), newTestLogger(t))
	r := gin.New()
	r.POST("/functions/v1/:variant", h.Analyze)
	r.OPTIONS("/functions/v1/:variant", h.Preflight)
	return r
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, jsonx.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAnalyzeSuccess(t *testing.T) {
	var got domain.AnalysisRequest
	var gotVariant string
	r := analysisRouter(t, analyzerFunc(func(ctx context.Context, variant string, req domain.AnalysisRequest) (*pipeline.Result, error) {
		gotVariant, got = variant, req
		return &pipeline.Result{
			Analysis:     &domain.PersonalityAnalysis{Overview: "A careful planner."},
			StoredID:     "row-1",
			AssessmentID: "assess-1",
			State:        retry.Success,
		}, nil
	}))

	rec := post(r, "/functions/v1/analyze-responses-deep", `{
		"assessmentId": "assess-1",
		"userId": "user-1",
		"responses": [{"questionId": "cog-1", "selectedOption": "I map it out first", "category": "cognitive"}]
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "assess-1", body["assessmentId"])
	assert.Equal(t, "row-1", body["storedId"])
	assert.NotContains(t, body, "message")
	assert.NotContains(t, body, "degraded")
	assert.Equal(t, "A careful planner.", body["analysis"].(map[string]any)["overview"])

	assert.Equal(t, "analyze-responses-deep", gotVariant)
	assert.Equal(t, "user-1", got.UserID)
	require.Len(t, got.Responses, 1)
	assert.Equal(t, "I map it out first", got.Responses[0].Answer())
}

func TestAnalyzeAcceptsAnswerMap(t *testing.T) {
	var got domain.AnalysisRequest
	r := analysisRouter(t, analyzerFunc(func(ctx context.Context, variant string, req domain.AnalysisRequest) (*pipeline.Result, error) {
		got = req
		return &pipeline.Result{Analysis: &domain.PersonalityAnalysis{}, AssessmentID: "a"}, nil
	}))

	rec := post(r, "/functions/v1/big-me-analysis", `{"responses": {"soc-2": "small groups", "cog-1": "lists"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, got.Responses, 2)
	assert.Equal(t, "cog-1", got.Responses[0].QuestionID)
	assert.Equal(t, "cognitive", got.Responses[0].Category)
	assert.Equal(t, "social", got.Responses[1].Category)
}

func TestAnalyzeDegradedCarriesMessage(t *testing.T) {
	v, ok := analysis.DefaultVariants("m", "f").Lookup("deep")
	require.True(t, ok)
	fallback, err := complete.New(nil).Fallback(v.Contract)
	require.NoError(t, err)
	r := analysisRouter(t, analyzerFunc(func(ctx context.Context, variant string, req domain.AnalysisRequest) (*pipeline.Result, error) {
		return &pipeline.Result{Analysis: fallback, AssessmentID: "a", State: retry.StaticFallback, Degraded: true}, nil
	}))

	rec := post(r, "/functions/v1/analyze-responses-deep", `{"responses": []}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, complete.DegradedMessage, body["message"])
}

func TestAnalyzeProcessing(t *testing.T) {
	r := analysisRouter(t, analyzerFunc(func(ctx context.Context, variant string, req domain.AnalysisRequest) (*pipeline.Result, error) {
		return &pipeline.Result{AssessmentID: "assess-1", Processing: true}, nil
	}))

	rec := post(r, "/functions/v1/analyze-concise-responses", `{"assessmentId": "assess-1", "responses": []}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"assessmentId":"assess-1","status":"processing","success":true}`, rec.Body.String())
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"validation", `{"responses": []}`, &analysis.ValidationError{Field: "responses", Reason: "no answered responses"}, http.StatusBadRequest, "invalid request: responses: no answered responses"},
		{"configuration", `{"responses": []}`, &analysis.ConfigurationError{Key: "OPENAI_API_KEY", Reason: "not set"}, http.StatusInternalServerError, "analysis service is not configured"},
		{"unexpected", `{"responses": []}`, errors.New("boom"), http.StatusInternalServerError, "internal server error"},
		{"malformed body", `{"responses": `, nil, http.StatusBadRequest, "invalid request: body: invalid JSON body"},
		{"scalar responses", `{"responses": 7}`, nil, http.StatusBadRequest, "invalid request: responses: must be an array or an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			r := analysisRouter(t, analyzerFunc(func(ctx context.Context, variant string, req domain.AnalysisRequest) (*pipeline.Result, error) {
				atomic.AddInt32(&calls, 1)
				return nil, tt.err
			}))

			rec := post(r, "/functions/v1/analyze-responses-deep", tt.body)

			require.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantError, body["error"])
			if tt.err == nil {
				assert.Zero(t, atomic.LoadInt32(&calls))
			}
		})
	}
}

func TestPreflight(t *testing.T) {
	r := analysisRouter(t, analyzerFunc(nil))
	req := httptest.NewRequest(http.MethodOptions, "/functions/v1/analyze-responses-deep", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "x-client-info")
}

type fakeFetcher struct {
	mu      sync.Mutex
	records map[string]*repo.Record
	calls   int
	delay   time.Duration
	err     error
}

func (f *fakeFetcher) get(key string) (*repo.Record, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	if rec, ok := f.records[key]; ok {
		return rec, nil
	}
	return nil, repo.ErrNotFound
}

func (f *fakeFetcher) FetchByID(_ context.Context, id string) (*repo.Record, error) {
	return f.get("id:" + id)
}

func (f *fakeFetcher) FetchByAssessmentID(_ context.Context, id string) (*repo.Record, error) {
	return f.get("assessment:" + id)
}

func (f *fakeFetcher) FetchLatestForUser(_ context.Context, id string) (*repo.Record, error) {
	return f.get("user:" + id)
}

func fetchRouter(t *testing.T, f Fetcher) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewFetchHandler(f, newTestLogger(t))
	r := gin.New()
	r.GET("/api/analyses/:id", h.ByID)
	r.GET("/api/assessments/:assessmentId/analysis", h.ByAssessment)
	r.GET("/api/users/:userId/analyses/latest", h.LatestForUser)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestFetchRoutes(t *testing.T) {
	rec := &repo.Record{
		ID:           "row-1",
		AssessmentID: "assess-1",
		UserID:       "user-1",
		Variant:      analysis.VariantDeep,
		Analysis:     &domain.PersonalityAnalysis{Overview: "Steady."},
	}
	f := &fakeFetcher{records: map[string]*repo.Record{
		"id:row-1":            rec,
		"assessment:assess-1": rec,
		"user:user-1":         rec,
	}}
	r := fetchRouter(t, f)

	for _, path := range []string{
		"/api/analyses/row-1",
		"/api/assessments/assess-1/analysis",
	} {
		res := get(r, path)
		require.Equal(t, http.StatusOK, res.Code, path)
		body := decodeBody(t, res)
		assert.Equal(t, "Steady.", body["analysis"].(map[string]any)["overview"], path)
		assert.Equal(t, "row-1", body["record"].(map[string]any)["id"], path)
	}

	res := get(r, "/api/analyses/missing")
	require.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, false, decodeBody(t, res)["success"])

	// Latest-for-user needs a caller identity.
	res = get(r, "/api/users/user-1/analyses/latest")
	require.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "unauthorized", decodeBody(t, res)["code"])

	req := httptest.NewRequest(http.MethodGet, "/api/users/user-1/analyses/latest", nil)
	req = req.WithContext(ctxutil.WithAuthData(req.Context(), &ctxutil.AuthData{UserID: "user-1", Enforced: true}))
	res = httptest.NewRecorder()
	r.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "row-1", decodeBody(t, res)["record"].(map[string]any)["id"])
}

func TestFetchStoreFailureIsHidden(t *testing.T) {
	f := &fakeFetcher{err: &analysis.PersistenceError{Op: "fetch_by_id", Err: errors.New("connection reset")}}
	res := get(fetchRouter(t, f), "/api/analyses/row-1")

	require.Equal(t, http.StatusInternalServerError, res.Code)
	assert.Equal(t, "internal server error", decodeBody(t, res)["error"])
}

func TestConcurrentPollsShareOneRead(t *testing.T) {
	f := &fakeFetcher{
		records: map[string]*repo.Record{"id:row-1": {ID: "row-1", Analysis: &domain.PersonalityAnalysis{}}},
		delay:   50 * time.Millisecond,
	}
	r := fetchRouter(t, f)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, http.StatusOK, get(r, "/api/analyses/row-1").Code)
		}()
	}
	wg.Wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Less(t, f.calls, 8)
}
