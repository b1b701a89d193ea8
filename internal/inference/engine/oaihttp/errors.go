package oaihttp

import (
	"fmt"
	"strings"

	"github.com/yungbote/persona-backend/internal/platform/jsonx"
)

// HTTPError keeps the raw non-2xx response. It is wrapped by
// *analysis.UpstreamError.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "upstream http error"
	}
	if e.Body == "" {
		return fmt.Sprintf("upstream http error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("upstream http error: status=%d body=%s", e.StatusCode, e.Body)
}

// upstreamMessage extracts error.message from an OpenAI-style error body,
// falling back to a trimmed prefix of the body.
func upstreamMessage(body string) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := jsonx.Unmarshal([]byte(body), &parsed); err == nil {
		if msg := strings.TrimSpace(parsed.Error.Message); msg != "" {
			return msg
		}
	}
	body = strings.TrimSpace(body)
	if r := []rune(body); len(r) > 200 {
		body = string(r[:200])
	}
	return body
}
