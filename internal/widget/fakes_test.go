package widget

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/doc-analyzer/widget/internal/backend"
	"github.com/doc-analyzer/widget/internal/i18n"
	"github.com/doc-analyzer/widget/internal/models"
	"github.com/doc-analyzer/widget/internal/testutil"
	"github.com/stretchr/testify/require"
)

type uploadCall struct {
	FileName string
	Content  string
	Fields   []models.Field
}

type fakeBackend struct {
	mu        sync.Mutex
	uploadFn  func(ctx context.Context) (*models.UploadResult, error)
	jobsFn    func(ctx context.Context) ([]models.JobSummary, error)
	uploads   []uploadCall
	jobsCalls int
}

func (b *fakeBackend) Upload(ctx context.Context, req backend.UploadRequest) (*models.UploadResult, error) {
	data, err := io.ReadAll(req.Content)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.uploads = append(b.uploads, uploadCall{FileName: req.FileName, Content: string(data), Fields: req.Fields})
	fn := b.uploadFn
	b.mu.Unlock()

	if fn == nil {
		return &models.UploadResult{JobID: "job-1"}, nil
	}
	return fn(ctx)
}

func (b *fakeBackend) ListJobs(ctx context.Context) ([]models.JobSummary, error) {
	b.mu.Lock()
	b.jobsCalls++
	fn := b.jobsFn
	b.mu.Unlock()

	if fn == nil {
		return []models.JobSummary{}, nil
	}
	return fn(ctx)
}

func (b *fakeBackend) uploadCalls() []uploadCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]uploadCall(nil), b.uploads...)
}

func (b *fakeBackend) listCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jobsCalls
}

type controlCall struct {
	Disabled bool
	Label    template.HTML
}

type contentRequest struct {
	TransferID string
	Index      int
	File       FileDescriptor
}

type recordingView struct {
	mu         sync.Mutex
	choosers   int
	dropZone   []bool
	selections []string
	requests   []contentRequest
	controls   []controlCall
	results    []template.HTML
	jobs       []template.HTML
	alerts     []string
	console    []string
}

func (v *recordingView) OpenFileChooser() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.choosers++
}

func (v *recordingView) SetDropZoneActive(active bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropZone = append(v.dropZone, active)
}

func (v *recordingView) ShowSelection(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selections = append(v.selections, name)
}

func (v *recordingView) RequestFileContent(transferID string, index int, file FileDescriptor) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.requests = append(v.requests, contentRequest{TransferID: transferID, Index: index, File: file})
}

func (v *recordingView) SetSubmitControl(disabled bool, label template.HTML) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.controls = append(v.controls, controlCall{Disabled: disabled, Label: label})
}

func (v *recordingView) ShowResults(panel template.HTML) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.results = append(v.results, panel)
}

func (v *recordingView) SetJobs(list template.HTML) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.jobs = append(v.jobs, list)
}

func (v *recordingView) Alert(message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.alerts = append(v.alerts, message)
}

func (v *recordingView) Console(message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.console = append(v.console, message)
}

func (v *recordingView) snapshot() *recordingView {
	v.mu.Lock()
	defer v.mu.Unlock()
	return &recordingView{
		choosers:   v.choosers,
		dropZone:   append([]bool(nil), v.dropZone...),
		selections: append([]string(nil), v.selections...),
		requests:   append([]contentRequest(nil), v.requests...),
		controls:   append([]controlCall(nil), v.controls...),
		results:    append([]template.HTML(nil), v.results...),
		jobs:       append([]template.HTML(nil), v.jobs...),
		alerts:     append([]string(nil), v.alerts...),
		console:    append([]string(nil), v.console...),
	}
}

type discardLogger struct{}

func (discardLogger) Errorf(string, ...interface{}) {}

// harness runs a widget on its own goroutine for the duration of a test.
type harness struct {
	t       *testing.T
	w       *Widget
	backend *fakeBackend
	view    *recordingView
	spool   *testutil.MockSpool
	events  chan Event
	cancel  context.CancelFunc
	stopped chan error
	once    sync.Once
}

func startWidget(t *testing.T, b *fakeBackend) *harness {
	t.Helper()

	if b == nil {
		b = &fakeBackend{}
	}
	view := &recordingView{}
	spool := testutil.NewMockSpool()

	n := 0
	w := New(Config{
		ID:       "widget-test",
		Backend:  b,
		View:     view,
		Spool:    spool,
		Logger:   discardLogger{},
		Catalog:  i18n.Lookup("fr"),
		Location: time.UTC,
		NewID: func() string {
			n++
			return fmt.Sprintf("tr-%d", n)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		t:       t,
		w:       w,
		backend: b,
		view:    view,
		spool:   spool,
		events:  make(chan Event),
		cancel:  cancel,
		stopped: make(chan error, 1),
	}

	go func() { h.stopped <- w.Run(ctx, h.events) }()
	t.Cleanup(h.stop)

	// The initial history fetch always happens first.
	h.eventually(func(v *recordingView) bool { return len(v.jobs) >= 1 })
	return h
}

func (h *harness) send(ev Event) {
	h.t.Helper()
	select {
	case h.events <- ev:
	case <-time.After(2 * time.Second):
		h.t.Fatalf("widget did not accept %T", ev)
	}
}

func (h *harness) state() Snapshot {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := h.w.Snapshot(ctx)
	require.NoError(h.t, err)
	return s
}

func (h *harness) eventually(cond func(v *recordingView) bool) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return cond(h.view.snapshot()) }, 2*time.Second, 5*time.Millisecond)
}

// selectFile drops a single file and delivers its bytes.
func (h *harness) selectFile(name, content string) string {
	h.t.Helper()
	before := len(h.view.snapshot().requests)
	h.send(Drop{Files: []FileDescriptor{{Name: name, Size: int64(len(content))}}})
	h.eventually(func(v *recordingView) bool { return len(v.requests) == before+1 })

	transferID := h.view.snapshot().requests[before].TransferID
	fileID := h.spool.Put(name, []byte(content))
	h.send(ContentReady{TransferID: transferID, FileID: fileID})
	return fileID
}

func (h *harness) stop() {
	h.once.Do(func() {
		h.cancel()
		select {
		case <-h.stopped:
		case <-time.After(2 * time.Second):
			h.t.Errorf("widget did not stop")
		}
	})
}
