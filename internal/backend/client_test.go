package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/doc-analyzer/widget/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	return c
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient("ftp://example.com")
	assert.Error(t, err)

	_, err = NewClient("://bad")
	assert.Error(t, err)
}

func TestClient_UploadSuccess(t *testing.T) {
	var gotFields map[string][]string
	var gotName, gotContent string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/upload", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotFields = r.MultipartForm.Value

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		gotName = hdr.Filename
		gotContent = string(data)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"job_id":"abc123","files":[{"name":"report.pdf","url":"/files/report.pdf","size":42}],"success":true}`))
	})

	res, err := c.Upload(context.Background(), UploadRequest{
		FileName: "scan.png",
		Content:  strings.NewReader("png-bytes"),
		Fields: []models.Field{
			{Name: "format", Value: "md"},
			{Name: "vis", Value: "on"},
			{Name: "format", Value: "json"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "abc123", res.JobID)
	require.Len(t, res.Files, 1)
	assert.Equal(t, models.GeneratedFile{Name: "report.pdf", URL: "/files/report.pdf", Size: 42}, res.Files[0])

	assert.Equal(t, "scan.png", gotName)
	assert.Equal(t, "png-bytes", gotContent)
	assert.Equal(t, []string{"md", "json"}, gotFields["format"])
	assert.Equal(t, []string{"on"}, gotFields["vis"])
}

func TestClient_UploadBackendError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"unsupported format"}`))
	})

	_, err := c.Upload(context.Background(), UploadRequest{FileName: "a.txt", Content: strings.NewReader("x")})
	require.Error(t, err)

	var be *Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusBadRequest, be.StatusCode)
	assert.Equal(t, "unsupported format", be.Message)
}

func TestClient_UploadMalformedBodies(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "error status with html body", status: http.StatusInternalServerError, body: "<html>oops</html>"},
		{name: "success status with html body", status: http.StatusOK, body: "<html>ok</html>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.Upload(context.Background(), UploadRequest{FileName: "a.pdf", Content: strings.NewReader("x")})
			require.Error(t, err)

			var be *Error
			assert.False(t, errors.As(err, &be), "malformed body must be a transport error")
		})
	}
}

func TestClient_UploadConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := NewClient(base)
	require.NoError(t, err)

	_, err = c.Upload(context.Background(), UploadRequest{FileName: "a.pdf", Content: strings.NewReader("x")})
	require.Error(t, err)

	var be *Error
	assert.False(t, errors.As(err, &be))
}

func TestClient_ListJobs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/jobs", r.URL.Path)
		w.Write([]byte(`[
			{"id":"j2","created":1700000100.75,"files_count":3},
			{"id":"j1","created":1700000000,"files_count":0}
		]`))
	})

	jobs, err := c.ListJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, models.JobSummary{ID: "j2", Created: 1700000100, FilesCount: 3}, jobs[0])
	assert.Equal(t, models.JobSummary{ID: "j1", Created: 1700000000, FilesCount: 0}, jobs[1])
}

func TestClient_ListJobsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	jobs, err := c.ListJobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestClient_ListJobsFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"boom"}`},
		{name: "object instead of list", status: http.StatusOK, body: `{"id":"x"}`},
		{name: "null", status: http.StatusOK, body: `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.ListJobs(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestClient_BasePathPreserved(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/analyzer/")
	require.NoError(t, err)

	_, err = c.ListJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/analyzer/api/jobs", gotPath)
}
