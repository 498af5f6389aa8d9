package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/doc-analyzer/widget/internal/backend"
	"github.com/doc-analyzer/widget/internal/session"
	"github.com/doc-analyzer/widget/internal/storage"
	"github.com/doc-analyzer/widget/internal/upload"
	"github.com/doc-analyzer/widget/internal/widget"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

type receivedUpload struct {
	FileName string
	Content  string
	Fields   url.Values
}

// fakeAnalyzer is an analysis backend over HTTP.
type fakeAnalyzer struct {
	mu          sync.Mutex
	uploads     []receivedUpload
	uploadError string
	jobs        string
}

func (f *fakeAnalyzer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)

		f.mu.Lock()
		f.uploads = append(f.uploads, receivedUpload{
			FileName: header.Filename,
			Content:  string(data),
			Fields:   r.MultipartForm.Value,
		})
		uploadError := f.uploadError
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if uploadError != "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": uploadError})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"job_id":  "abc123",
			"files":   []map[string]string{{"name": "report.pdf", "url": "/download/abc123/report.pdf"}},
			"success": true,
		})
	})
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		jobs := f.jobs
		f.mu.Unlock()
		if jobs == "" {
			jobs = "[]"
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, jobs)
	})
	mux.HandleFunc("/results/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "results page "+r.URL.Path)
	})
	return mux
}

func (f *fakeAnalyzer) received() []receivedUpload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]receivedUpload(nil), f.uploads...)
}

type testServer struct {
	echo      *echo.Echo
	server    *httptest.Server
	analyzer  *fakeAnalyzer
	sessions  *session.Manager
	transfers *upload.Manager
	store     *storage.LocalStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	analyzer := &fakeAnalyzer{}
	backendSrv := httptest.NewServer(analyzer.handler())
	t.Cleanup(backendSrv.Close)

	client, err := backend.NewClient(backendSrv.URL)
	require.NoError(t, err)

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	transfers := upload.NewManager(store)

	sessions := session.NewManager(widget.Config{
		Backend:  client,
		Spool:    store,
		Location: time.UTC,
	}, 10)
	t.Cleanup(sessions.Shutdown)

	deps := &Dependencies{
		Sessions:   sessions,
		Transfers:  transfers,
		BackendURL: client.BaseURL(),
		ProxyPaths: []string{"/results", "/download"},
		Socket:     SocketOptions{DefaultLang: "fr", ChunkSize: 4},
		Version:    "test",
	}

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	RegisterRoutes(e, deps, NewHandlers(deps))

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	return &testServer{
		echo:      e,
		server:    srv,
		analyzer:  analyzer,
		sessions:  sessions,
		transfers: transfers,
		store:     store,
	}
}
