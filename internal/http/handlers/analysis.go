package handlers

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/persona-backend/internal/analysis"
	"github.com/yungbote/persona-backend/internal/analysis/complete"
	"github.com/yungbote/persona-backend/internal/analysis/format"
	"github.com/yungbote/persona-backend/internal/analysis/pipeline"
	"github.com/yungbote/persona-backend/internal/domain"
	"github.com/yungbote/persona-backend/internal/http/middleware"
	"github.com/yungbote/persona-backend/internal/http/response"
	"github.com/yungbote/persona-backend/internal/platform/ctxutil"
	"github.com/yungbote/persona-backend/internal/platform/jsonx"
	"github.com/yungbote/persona-backend/internal/platform/logger"
)

// Analyzer runs one analysis invocation.
type Analyzer interface {
	Analyze(ctx context.Context, variant string, req domain.AnalysisRequest) (*pipeline.Result, error)
}

type AnalysisHandler struct {
	analyzer  Analyzer
	formatter *format.Formatter
	log       *logger.Logger
}

func NewAnalysisHandler(analyzer Analyzer, formatter *format.Formatter, log *logger.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		analyzer:  analyzer,
		formatter: formatter,
		log:       log.With("handler", "AnalysisHandler"),
	}
}

// analyzeRequest accepts responses either as a list of RawResponse or as the
// lightweight questionId -> answer map.
type analyzeRequest struct {
	Responses    jsonx.RawMessage `json:"responses"`
	AssessmentID string           `json:"assessmentId"`
	UserID       string           `json:"userId"`
	RetryCount   int              `json:"retryCount"`
}

type analyzeResponse struct {
	Analysis     *domain.PersonalityAnalysis `json:"analysis"`
	Success      bool                        `json:"success"`
	AssessmentID string                      `json:"assessmentId"`
	StoredID     string                      `json:"storedId,omitempty"`
	// Message is set only when the content is the static fallback.
	Message string `json:"message,omitempty"`
}

type processingResponse struct {
	AssessmentID string `json:"assessmentId"`
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}

// POST /functions/v1/:variant
// body: { "responses": [...] | {...}, "assessmentId": "...", "userId": "...", "retryCount": 0 }
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	variant := c.Param("variant")
	c.Set(middleware.ContextVariantKey, variant)

	var body analyzeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondAPIError(c, &analysis.ValidationError{Field: "body", Reason: "invalid JSON body"})
		return
	}
	responses, err := h.decodeResponses(body.Responses)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}

	// With token verification on, only the token names the user; an
	// anonymous caller cannot claim a body userId.
	ctx := c.Request.Context()
	userID := ctxutil.UserID(ctx)
	if userID == "" && !ctxutil.AuthEnforced(ctx) {
		userID = strings.TrimSpace(body.UserID)
	}

	res, err := h.analyzer.Analyze(c.Request.Context(), variant, domain.AnalysisRequest{
		AssessmentID: strings.TrimSpace(body.AssessmentID),
		Responses:    responses,
		UserID:       userID,
		RetryCount:   body.RetryCount,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if res.Processing {
		c.JSON(http.StatusAccepted, processingResponse{
			AssessmentID: res.AssessmentID,
			Status:       "processing",
			Success:      true,
		})
		return
	}

	out := analyzeResponse{
		Analysis:     res.Analysis,
		Success:      true,
		AssessmentID: res.AssessmentID,
		StoredID:     res.StoredID,
	}
	if complete.IsFallback(res.Analysis) {
		out.Message = complete.DegradedMessage
	}
	c.JSON(http.StatusOK, out)
}

// Preflight answers OPTIONS when no CORS middleware handled it.
func (h *AnalysisHandler) Preflight(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Headers", strings.Join(middleware.AllowHeaders, ", "))
	c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
	c.Status(http.StatusNoContent)
}

func (h *AnalysisHandler) decodeResponses(raw jsonx.RawMessage) ([]domain.RawResponse, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	switch trimmed[0] {
	case '[':
		var list []domain.RawResponse
		if err := jsonx.Unmarshal(trimmed, &list); err != nil {
			return nil, &analysis.ValidationError{Field: "responses", Reason: "malformed response list"}
		}
		return list, nil
	case '{':
		var m map[string]string
		if err := jsonx.Unmarshal(trimmed, &m); err != nil {
			return nil, &analysis.ValidationError{Field: "responses", Reason: "answers must be strings"}
		}
		return h.formatter.FromMap(m), nil
	default:
		return nil, &analysis.ValidationError{Field: "responses", Reason: "must be an array or an object"}
	}
}
