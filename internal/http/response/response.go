package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/persona-backend/internal/analysis"
	"github.com/yungbote/persona-backend/internal/platform/apierr"
)

// ErrorEnvelope is the body of every non-2xx response.
type ErrorEnvelope struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Success bool   `json:"success"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: msg, Code: code, Success: false})
}

// RespondAPIError maps err onto a status through apierr and the analysis
// error taxonomy. Causes of 5xx responses are not echoed to the client.
func RespondAPIError(c *gin.Context, err error) {
	ae := Classify(err)
	if ae.Status >= http.StatusInternalServerError {
		RespondError(c, ae.Status, ae.Code, errors.New(publicMessage(ae)))
		return
	}
	RespondError(c, ae.Status, ae.Code, ae.Err)
}

// Classify converts err into an *apierr.Error.
func Classify(err error) *apierr.Error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae
	}
	var (
		ve *analysis.ValidationError
		ce *analysis.ConfigurationError
	)
	switch {
	case errors.As(err, &ve):
		return apierr.BadRequest("invalid_request", err)
	case errors.As(err, &ce):
		return apierr.Internal("configuration_error", err)
	default:
		return apierr.From(err)
	}
}

func publicMessage(ae *apierr.Error) string {
	switch ae.Code {
	case "configuration_error":
		return "analysis service is not configured"
	default:
		return "internal server error"
	}
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
