package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/persona-backend/internal/analysis/pipeline"
	repo "github.com/yungbote/persona-backend/internal/data/repos/analysis"
	"github.com/yungbote/persona-backend/internal/domain"
	httpH "github.com/yungbote/persona-backend/internal/http/handlers"
	httpMW "github.com/yungbote/persona-backend/internal/http/middleware"
	"github.com/yungbote/persona-backend/internal/observability"
	"github.com/yungbote/persona-backend/internal/platform/logger"
)

func testRouter(t *testing.T) (*gin.Engine, *observability.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("test")
	require.NoError(t, err)
	m := observability.New(prometheus.NewRegistry())
	r := NewRouter(RouterConfig{
		Log:            log,
		AllowOrigin:    "*",
		Metrics:        m,
		AuthMiddleware: httpMW.NewAuthMiddleware(log, ""),
		HealthHandler:  httpH.NewHealthHandler(),
	})
	return r, m
}

func TestHealthAndMetrics(t *testing.T) {
	r, _ := testRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.NotEmpty(t, rec.Header().Get("X-Trace-Id"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `persona_api_requests_total{method="GET",route="/healthcheck",status="200"} 1`))
}

func TestRequestIDIsEchoed(t *testing.T) {
	r, _ := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))
}

const routerSecret = "s3cret"

type memoryFetcher struct {
	byID         map[string]*repo.Record
	byAssessment map[string]*repo.Record
	latest       map[string]*repo.Record
}

func find(m map[string]*repo.Record, key string) (*repo.Record, error) {
	if rec, ok := m[key]; ok {
		return rec, nil
	}
	return nil, repo.ErrNotFound
}

func (f *memoryFetcher) FetchByID(_ context.Context, id string) (*repo.Record, error) {
	return find(f.byID, id)
}

func (f *memoryFetcher) FetchByAssessmentID(_ context.Context, id string) (*repo.Record, error) {
	return find(f.byAssessment, id)
}

func (f *memoryFetcher) FetchLatestForUser(_ context.Context, id string) (*repo.Record, error) {
	return find(f.latest, id)
}

// recordingAnalyzer remembers the user id every submission ran under.
type recordingAnalyzer struct {
	mu    sync.Mutex
	users []string
}

func (a *recordingAnalyzer) Analyze(_ context.Context, _ string, req domain.AnalysisRequest) (*pipeline.Result, error) {
	a.mu.Lock()
	a.users = append(a.users, req.UserID)
	a.mu.Unlock()
	return &pipeline.Result{
		AssessmentID: req.AssessmentID,
		Analysis:     &domain.PersonalityAnalysis{Overview: "ok"},
	}, nil
}

func (a *recordingAnalyzer) lastUser() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.users[len(a.users)-1]
}

func authedRouter(t *testing.T, secret string, analyzer httpH.Analyzer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("test")
	require.NoError(t, err)

	victim := &repo.Record{
		ID:           "row-victim",
		AssessmentID: "assess-victim",
		UserID:       "victim",
		Analysis:     &domain.PersonalityAnalysis{Overview: "victim private profile"},
	}
	anon := &repo.Record{
		ID:           "row-anon",
		AssessmentID: "assess-anon",
		Analysis:     &domain.PersonalityAnalysis{Overview: "anonymous profile"},
	}
	f := &memoryFetcher{
		byID:         map[string]*repo.Record{"row-victim": victim, "row-anon": anon},
		byAssessment: map[string]*repo.Record{"assess-victim": victim, "assess-anon": anon},
		latest:       map[string]*repo.Record{"victim": victim},
	}
	return NewRouter(RouterConfig{
		Log:             log,
		AllowOrigin:     "*",
		AuthMiddleware:  httpMW.NewAuthMiddleware(log, secret),
		AnalysisHandler: httpH.NewAnalysisHandler(analyzer, nil, log),
		FetchHandler:    httpH.NewFetchHandler(f, log),
	})
}

func bearer(t *testing.T, subject string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(routerSecret))
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestFetchRequiresOwner(t *testing.T) {
	r := authedRouter(t, routerSecret, &recordingAnalyzer{})

	tests := []struct {
		name       string
		path       string
		subject    string
		wantStatus int
	}{
		{"latest anonymous", "/api/users/victim/analyses/latest", "", http.StatusUnauthorized},
		{"latest other user", "/api/users/victim/analyses/latest", "mallory", http.StatusForbidden},
		{"latest owner", "/api/users/victim/analyses/latest", "victim", http.StatusOK},
		{"by id anonymous", "/api/analyses/row-victim", "", http.StatusNotFound},
		{"by id other user", "/api/analyses/row-victim", "mallory", http.StatusNotFound},
		{"by id owner", "/api/analyses/row-victim", "victim", http.StatusOK},
		{"by assessment other user", "/api/assessments/assess-victim/analysis", "mallory", http.StatusNotFound},
		{"by assessment owner", "/api/assessments/assess-victim/analysis", "victim", http.StatusOK},
		{"unowned record is public", "/api/assessments/assess-anon/analysis", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.subject != "" {
				req.Header.Set("Authorization", bearer(t, tt.subject))
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				assert.NotContains(t, rec.Body.String(), "victim private profile")
				assert.Contains(t, rec.Body.String(), `"success":false`)
			}
		})
	}
}

func TestLatestNeedsIdentityWithoutVerification(t *testing.T) {
	r := authedRouter(t, "", &recordingAnalyzer{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/victim/analyses/latest", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmissionUserComesFromToken(t *testing.T) {
	const body = `{"responses":[{"questionId":"cog-1","selectedOption":"I plan ahead"}],"assessmentId":"a-1","userId":"victim"}`

	tests := []struct {
		name     string
		secret   string
		subject  string
		wantUser string
	}{
		{"anonymous with verification", routerSecret, "", ""},
		{"token overrides body", routerSecret, "mallory", "mallory"},
		{"verification disabled", "", "", "victim"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			an := &recordingAnalyzer{}
			r := authedRouter(t, tt.secret, an)
			req := httptest.NewRequest(http.MethodPost, "/functions/v1/deep", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			if tt.subject != "" {
				req.Header.Set("Authorization", bearer(t, tt.subject))
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantUser, an.lastUser())
		})
	}
}

func TestUnsafeRequestIDIsReplaced(t *testing.T) {
	r, _ := testRouter(t)
	for _, id := range []string{"bad id\twith spaces", strings.Repeat("a", 200)} {
		req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
		req.Header.Set("X-Request-Id", id)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		got := rec.Header().Get("X-Request-Id")
		assert.NotEqual(t, id, got)
		assert.Len(t, got, 36)
	}
}
