package recovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/persona-backend/internal/domain"
	"github.com/yungbote/persona-backend/internal/platform/jsonx"
)

// ErrNotFound is returned by the fetch calls on a 404.
var ErrNotFound = errors.New("analysis not found")

type Options struct {
	BaseURL string
	// Token is sent as a bearer token; the backend derives the user id from
	// it when set.
	Token string
	// Timeout bounds fetches. Submissions use SubmitTimeout because the
	// server may spend its whole execution budget on one analysis.
	Timeout       time.Duration
	SubmitTimeout time.Duration

	HTTPClient *http.Client
}

// Client talks to the analysis HTTP API. It never retries on its own.
type Client struct {
	baseURL       string
	token         string
	timeout       time.Duration
	submitTimeout time.Duration

	httpClient *http.Client
}

func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("baseURL required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	submitTimeout := opts.SubmitTimeout
	if submitTimeout <= 0 {
		submitTimeout = 160 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		baseURL:       baseURL,
		token:         strings.TrimSpace(opts.Token),
		timeout:       timeout,
		submitTimeout: submitTimeout,
		httpClient:    hc,
	}, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

type SubmitRequest struct {
	Responses    []domain.RawResponse `json:"responses"`
	AssessmentID string               `json:"assessmentId,omitempty"`
	UserID       string               `json:"userId,omitempty"`
	RetryCount   int                  `json:"retryCount"`
}

// SubmitResponse covers both the 200 and the 202 shapes.
type SubmitResponse struct {
	Analysis     *domain.PersonalityAnalysis `json:"analysis"`
	Success      bool                        `json:"success"`
	AssessmentID string                      `json:"assessmentId"`
	StoredID     string                      `json:"storedId"`
	Status       string                      `json:"status"`
	Message      string                      `json:"message"`
}

// Processing reports a 202: another submission of the same assessment is
// still running.
func (r *SubmitResponse) Processing() bool {
	return r != nil && r.Analysis == nil && r.Status == "processing"
}

type FetchResponse struct {
	Analysis *domain.PersonalityAnalysis `json:"analysis"`
	Record   struct {
		ID           string    `json:"id"`
		AssessmentID string    `json:"assessmentId"`
		UserID       string    `json:"userId"`
		Variant      string    `json:"variant"`
		Degraded     bool      `json:"degraded"`
		CreatedAt    time.Time `json:"createdAt"`
	} `json:"record"`
}

func (c *Client) Submit(ctx context.Context, variant string, req SubmitRequest) (*SubmitResponse, error) {
	var resp SubmitResponse
	path := "/functions/v1/" + url.PathEscape(variant)
	if err := c.doJSON(ctx, c.submitTimeout, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) FetchByID(ctx context.Context, id string) (*FetchResponse, error) {
	return c.fetch(ctx, "/api/analyses/"+url.PathEscape(id))
}

func (c *Client) FetchByAssessment(ctx context.Context, assessmentID string) (*FetchResponse, error) {
	return c.fetch(ctx, "/api/assessments/"+url.PathEscape(assessmentID)+"/analysis")
}

// FetchLatestForUser is served only to the authenticated owner, so without a
// token there is nothing this client can see.
func (c *Client) FetchLatestForUser(ctx context.Context, userID string) (*FetchResponse, error) {
	if c.token == "" {
		return nil, ErrNotFound
	}
	return c.fetch(ctx, "/api/users/"+url.PathEscape(userID)+"/analyses/latest")
}

func (c *Client) fetch(ctx context.Context, path string) (*FetchResponse, error) {
	var resp FetchResponse
	if err := c.doJSON(ctx, c.timeout, http.MethodGet, path, nil, &resp); err != nil {
		var herr *HTTPError
		if errors.As(err, &herr) && herr.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if resp.Analysis == nil {
		return nil, ErrNotFound
	}
	return &resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) doJSON(ctx context.Context, timeout time.Duration, method string, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := jsonx.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	ctx2, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx2, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseHTTPError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	return jsonx.Unmarshal(raw, out)
}

type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "http error"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if msg == "" {
		msg = "http error"
	}
	if strings.TrimSpace(e.Code) != "" {
		return fmt.Sprintf("http error: status=%d code=%s message=%s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("http error: status=%d message=%s", e.StatusCode, msg)
}

func parseHTTPError(status int, raw []byte) error {
	body := strings.TrimSpace(string(raw))
	var env struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := jsonx.Unmarshal(raw, &env); err == nil {
		return &HTTPError{StatusCode: status, Message: strings.TrimSpace(env.Error), Code: env.Code, Body: body}
	}
	return &HTTPError{StatusCode: status, Body: body}
}
