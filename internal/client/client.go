// Package client is an HTTP client for the sqlrunner API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/sqlrunner/pkg/models"
)

// Sentinel errors for API client failures.
var (
	ErrUnreachable = errors.New("sqlrunner unreachable")
	ErrTimeout     = errors.New("sqlrunner request timeout")
	ErrJobNotFound = errors.New("job not found")
	ErrRejected    = errors.New("request rejected")
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrServer      = errors.New("sqlrunner server error")
)

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string

	// RetryAfter is the server's Retry-After hint on a 429, zero if absent.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// Unwrap maps the response onto the package sentinels so callers can match
// with errors.Is.
func (e *APIError) Unwrap() error {
	switch {
	case e.Code == "JOB_NOT_FOUND":
		return ErrJobNotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode >= 500:
		return ErrServer
	default:
		return ErrRejected
	}
}

// StatusRequest selects a page of command history.
type StatusRequest struct {
	Page  int
	Limit int
	Order string
}

// StatusPage is one page of history plus the jobs running right now.
type StatusPage struct {
	History []models.CommandResult `json:"history"`
	Running []models.RunningJob    `json:"running"`
	Page    int                    `json:"-"`
	Limit   int                    `json:"-"`
	Total   int                    `json:"-"`
	HasNext bool                   `json:"-"`
}

// JobStatus is the lightweight status view of one job. Source is
// "registry" for jobs the server tracks and "mirror" for jobs known only
// from the Redis status mirror.
type JobStatus struct {
	JobID  uuid.UUID `json:"job_id"`
	Status string    `json:"status"`
	Source string    `json:"source"`
}

// HealthReport is the server's view of its dependencies.
type HealthReport struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// HTTPClient talks to one sqlrunner server.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client for the server at baseURL. Sync submissions
// block for the whole batch, so timeout should cover the longest expected
// job; zero means no timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Submit queues a batch and returns the job with its ID and initial status.
func (c *HTTPClient) Submit(ctx context.Context, commands []string) (*models.Job, error) {
	var out struct {
		JobID  uuid.UUID `json:"job_id"`
		Status string    `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs", submitBody(commands), &out, nil); err != nil {
		return nil, err
	}
	return &models.Job{ID: out.JobID, Status: out.Status, Commands: commands}, nil
}

// SubmitAndWait runs a batch synchronously and returns the finished job.
func (c *HTTPClient) SubmitAndWait(ctx context.Context, commands []string) (*models.Job, error) {
	var job models.Job
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs?wait=true", submitBody(commands), &job, nil); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *HTTPClient) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var job models.Job
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(id.String()), nil, &job, nil); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJobStatus fetches only the job's status. It also answers for jobs
// the server no longer tracks while their mirrored status lives.
func (c *HTTPClient) GetJobStatus(ctx context.Context, id uuid.UUID) (*JobStatus, error) {
	var st JobStatus
	path := "/api/v1/jobs/" + url.PathEscape(id.String()) + "/status"
	if err := c.do(ctx, http.MethodGet, path, nil, &st, nil); err != nil {
		return nil, err
	}
	return &st, nil
}

// WaitForJob polls the job every interval until it reaches a terminal
// status or ctx is done. A rate-limited poll is retried after the server's
// Retry-After hint instead of failing the wait.
func (c *HTTPClient) WaitForJob(ctx context.Context, id uuid.UUID, interval time.Duration) (*models.Job, error) {
	for {
		delay := interval
		job, err := c.GetJob(ctx, id)
		switch {
		case errors.Is(err, ErrRateLimited):
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > delay {
				delay = apiErr.RetryAfter
			}
		case err != nil:
			return nil, err
		case job.IsTerminal():
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		case <-time.After(delay):
		}
	}
}

func (c *HTTPClient) ListRunning(ctx context.Context) ([]models.RunningJob, error) {
	var running []models.RunningJob
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs", nil, &running, nil); err != nil {
		return nil, err
	}
	return running, nil
}

func (c *HTTPClient) Status(ctx context.Context, req StatusRequest) (*StatusPage, error) {
	params := url.Values{}
	if req.Page > 0 {
		params.Set("page", strconv.Itoa(req.Page))
	}
	if req.Limit > 0 {
		params.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Order != "" {
		params.Set("order", req.Order)
	}
	path := "/api/v1/status"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var (
		page StatusPage
		meta struct {
			Page    int  `json:"page"`
			Limit   int  `json:"limit"`
			Total   int  `json:"total"`
			HasNext bool `json:"has_next"`
		}
	)
	if err := c.do(ctx, http.MethodGet, path, nil, &page, &meta); err != nil {
		return nil, err
	}
	page.Page, page.Limit, page.Total, page.HasNext = meta.Page, meta.Limit, meta.Total, meta.HasNext
	return &page, nil
}

// ClearHistory wipes the server's command history and job records.
func (c *HTTPClient) ClearHistory(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/history", nil, nil, nil)
}

// Health reports dependency status. A degraded server answers 503; that is
// returned as a report, not an error.
func (c *HTTPClient) Health(ctx context.Context) (*HealthReport, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/v1/health", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var env struct {
			Data HealthReport `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return nil, fmt.Errorf("decoding health response: %w", err)
		}
		return &env.Data, nil
	case http.StatusServiceUnavailable:
		var env struct {
			Error struct {
				Details map[string]string `json:"details"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return nil, fmt.Errorf("decoding health response: %w", err)
		}
		return &HealthReport{Status: "degraded", Services: env.Error.Details}, nil
	default:
		return nil, decodeAPIError(resp)
	}
}

// do sends the request and decodes the envelope's data (and meta, when
// non-nil) on success.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any, data, meta any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if data == nil {
		return nil
	}

	env := struct {
		Data any `json:"data"`
		Meta any `json:"meta"`
	}{Data: data, Meta: meta}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *HTTPClient) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	return resp, nil
}

func submitBody(commands []string) map[string]any {
	return map[string]any{"sql_commands": commands}
}

func decodeAPIError(resp *http.Response) error {
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	if apiErr.Code == "" {
		apiErr.Code = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
