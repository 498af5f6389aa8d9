// Package backend is the HTTP client for the analysis service the widget
// talks to. The service itself is external.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doc-analyzer/widget/internal/models"
)

const (
	uploadPath   = "/upload"
	jobsPath     = "/api/jobs"
	fileField    = "file"
	maxErrorBody = 1 << 20
)

// Error is a failure reported by the backend with a non-2xx status.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// UploadRequest is one file submission.
type UploadRequest struct {
	FileName string
	Content  io.Reader
	Fields   []models.Field
}

// Client calls the analysis backend.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds every request. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing backend URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend URL must be http or https: %q", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Upload posts the file and its fields as multipart form data.
// A non-2xx answer with a JSON error body is returned as *Error; any other
// failure, including an undecodable body, is a transport error.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (*models.UploadResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeMultipart(mw, req))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(uploadPath), pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("building upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("posting upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}

	var result models.UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	return &result, nil
}

func writeMultipart(mw *multipart.Writer, req UploadRequest) error {
	for _, f := range req.Fields {
		if err := mw.WriteField(f.Name, f.Value); err != nil {
			return fmt.Errorf("writing field %s: %w", f.Name, err)
		}
	}

	part, err := mw.CreateFormFile(fileField, req.FileName)
	if err != nil {
		return fmt.Errorf("creating file part: %w", err)
	}
	if req.Content != nil {
		if _, err := io.Copy(part, req.Content); err != nil {
			return fmt.Errorf("copying file content: %w", err)
		}
	}

	return mw.Close()
}

// ListJobs fetches the job history in the backend's order.
func (c *Client) ListJobs(ctx context.Context) ([]models.JobSummary, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(jobsPath), nil)
	if err != nil {
		return nil, fmt.Errorf("building jobs request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetching jobs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}

	var jobs []models.JobSummary
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return nil, fmt.Errorf("decoding jobs response: %w", err)
	}
	if jobs == nil {
		return nil, fmt.Errorf("decoding jobs response: not a list")
	}
	return jobs, nil
}

func decodeError(resp *http.Response) error {
	var body models.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&body); err != nil {
		return fmt.Errorf("decoding error response (status %d): %w", resp.StatusCode, err)
	}
	return &Error{StatusCode: resp.StatusCode, Message: body.Error}
}

func (c *Client) endpoint(p string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + p
	return u.String()
}
