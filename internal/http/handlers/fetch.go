package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	repo "github.com/yungbote/persona-backend/internal/data/repos/analysis"
	"github.com/yungbote/persona-backend/internal/domain"
	"github.com/yungbote/persona-backend/internal/http/response"
	"github.com/yungbote/persona-backend/internal/platform/apierr"
	"github.com/yungbote/persona-backend/internal/platform/ctxutil"
	"github.com/yungbote/persona-backend/internal/platform/logger"
)

// Fetcher is the read side of the analysis store.
type Fetcher interface {
	FetchByID(ctx context.Context, id string) (*repo.Record, error)
	FetchByAssessmentID(ctx context.Context, assessmentID string) (*repo.Record, error)
	FetchLatestForUser(ctx context.Context, userID string) (*repo.Record, error)
}

var (
	errAuthRequired = errors.New("authentication required")
	errOtherUser    = errors.New("analyses of another user are not accessible")
)

type FetchHandler struct {
	store Fetcher
	group singleflight.Group
	log   *logger.Logger
}

func NewFetchHandler(store Fetcher, log *logger.Logger) *FetchHandler {
	return &FetchHandler{store: store, log: log.With("handler", "FetchHandler")}
}

type fetchResponse struct {
	Analysis *domain.PersonalityAnalysis `json:"analysis"`
	Record   *repo.Record                `json:"record"`
	Success  bool                        `json:"success"`
}

// GET /api/analyses/:id
func (h *FetchHandler) ByID(c *gin.Context) {
	id := c.Param("id")
	h.respond(c, "id:"+id, func(ctx context.Context) (*repo.Record, error) {
		return h.store.FetchByID(ctx, id)
	})
}

// GET /api/assessments/:assessmentId/analysis
func (h *FetchHandler) ByAssessment(c *gin.Context) {
	assessmentID := c.Param("assessmentId")
	h.respond(c, "assessment:"+assessmentID, func(ctx context.Context) (*repo.Record, error) {
		return h.store.FetchByAssessmentID(ctx, assessmentID)
	})
}

// GET /api/users/:userId/analyses/latest
// Served only to the authenticated user named in the path.
func (h *FetchHandler) LatestForUser(c *gin.Context) {
	caller := ctxutil.UserID(c.Request.Context())
	if caller == "" {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errAuthRequired)
		return
	}
	userID := c.Param("userId")
	if userID != caller {
		response.RespondError(c, http.StatusForbidden, "forbidden", errOtherUser)
		return
	}
	h.respond(c, "user:"+userID, func(ctx context.Context) (*repo.Record, error) {
		return h.store.FetchLatestForUser(ctx, userID)
	})
}

// respond collapses concurrent polls for the same key into one store read.
// The shared read is detached from any single caller's cancellation; the
// store applies its own timeout. Ownership is checked per caller after the
// shared read.
func (h *FetchHandler) respond(c *gin.Context, key string, load func(ctx context.Context) (*repo.Record, error)) {
	ctx := context.WithoutCancel(c.Request.Context())
	v, err, shared := h.group.Do(key, func() (interface{}, error) {
		return load(ctx)
	})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			response.RespondAPIError(c, apierr.NotFound("not_found", err))
			return
		}
		h.log.Warn("analysis fetch failed", "key", key, "error", err)
		response.RespondAPIError(c, err)
		return
	}
	if shared {
		h.log.Debug("analysis fetch shared", "key", key)
	}
	rec := v.(*repo.Record)
	if !visible(c.Request.Context(), rec) {
		// Reported as missing so record ids cannot be probed.
		response.RespondAPIError(c, apierr.NotFound("not_found", repo.ErrNotFound))
		return
	}
	response.RespondOK(c, fetchResponse{Analysis: rec.Analysis, Record: rec, Success: true})
}

// visible reports whether the caller may read rec. Without token
// verification there is no identity to check against.
func visible(ctx context.Context, rec *repo.Record) bool {
	if !ctxutil.AuthEnforced(ctx) || rec.UserID == "" {
		return true
	}
	return rec.UserID == ctxutil.UserID(ctx)
}
