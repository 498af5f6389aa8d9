// Package widget implements the upload-and-status component of the analysis
// page: file selection, submission to the backend, the results panel and the
// recent-jobs list.
//
// A Widget is driven by Run, which processes events one at a time on a
// single goroutine. Backend calls run on helper goroutines and hand their
// outcome back to that loop, so widget state is never touched concurrently
// and other events keep flowing while a request is in flight.
package widget

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"sync"
	"time"

	"github.com/doc-analyzer/widget/internal/backend"
	"github.com/doc-analyzer/widget/internal/i18n"
	"github.com/doc-analyzer/widget/internal/models"
	"github.com/google/uuid"
)

// ErrStopped is returned when talking to a widget whose loop has ended.
var ErrStopped = errors.New("widget stopped")

// Backend is the analysis service.
type Backend interface {
	Upload(ctx context.Context, req backend.UploadRequest) (*models.UploadResult, error)
	ListJobs(ctx context.Context) ([]models.JobSummary, error)
}

// Spool gives access to selected files once their bytes have arrived.
type Spool interface {
	Open(id string) (io.ReadCloser, *models.FileInfo, error)
	Delete(id string) error
}

// View applies the widget's output to the page.
type View interface {
	OpenFileChooser()
	SetDropZoneActive(active bool)
	ShowSelection(name string)
	RequestFileContent(transferID string, index int, file FileDescriptor)
	SetSubmitControl(disabled bool, label template.HTML)
	ShowResults(panel template.HTML)
	SetJobs(list template.HTML)
	Alert(message string)
	Console(message string)
}

// Logger receives diagnostics. echo.Logger satisfies it.
type Logger interface {
	Errorf(format string, args ...interface{})
}

// Config holds a widget's collaborators.
type Config struct {
	ID       string
	Backend  Backend
	View     View
	Spool    Spool
	Logger   Logger
	Catalog  *i18n.Catalog
	Location *time.Location
	NewID    func() string
}

// selection is the pending file.
type selection struct {
	file       FileDescriptor
	transferID string

	// Set on the loop before ready is closed.
	fileID string
	err    error
	ready  chan struct{}

	arrived   bool
	pinned    int // submissions reading this selection
	discarded bool
}

// Widget is one upload-and-status component.
type Widget struct {
	id      string
	backend Backend
	view    View
	spool   Spool
	log     Logger
	text    *i18n.Catalog
	loc     *time.Location
	newID   func() string

	resume  chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	started bool

	dropActive bool
	selection  *selection
	transfers  map[string]*selection
	submitting bool

	resultsShown bool
	lastJobID    string
	jobs         []models.JobSummary
	jobsState    JobsState
	jobsGen      uint64 // latest history fetch; older replies are dropped
}

// New creates a widget. Call Run to start it.
func New(cfg Config) *Widget {
	w := &Widget{
		id:        cfg.ID,
		backend:   cfg.Backend,
		view:      cfg.View,
		spool:     cfg.Spool,
		log:       cfg.Logger,
		text:      cfg.Catalog,
		loc:       cfg.Location,
		newID:     cfg.NewID,
		resume:    make(chan func()),
		done:      make(chan struct{}),
		transfers: make(map[string]*selection),
		jobsState: JobsLoading,
	}
	if w.id == "" {
		w.id = uuid.New().String()
	}
	if w.text == nil {
		w.text = i18n.Lookup(i18n.DefaultLang)
	}
	if w.loc == nil {
		w.loc = time.Local
	}
	if w.newID == nil {
		w.newID = func() string { return uuid.New().String() }
	}
	if w.log == nil {
		w.log = printfLogger{}
	}
	return w
}

// ID returns the widget's identifier.
func (w *Widget) ID() string {
	return w.id
}

// Run fetches the job history and then processes events until ctx is done
// or events is closed. In-flight backend calls are abandoned on return and
// spooled files owned by the widget are deleted.
func (w *Widget) Run(ctx context.Context, events <-chan Event) error {
	if w.started {
		return errors.New("widget already running")
	}
	w.started = true

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		close(w.done)
		w.wg.Wait()
		w.releaseAll()
	}()

	w.refreshJobs(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			w.dispatch(ctx, ev)
		case fn := <-w.resume:
			fn()
		}
	}
}

func (w *Widget) dispatch(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case Click:
		w.view.OpenFileChooser()
	case DragOver:
		if !w.dropActive {
			w.dropActive = true
			w.view.SetDropZoneActive(true)
		}
	case DragLeave:
		w.clearDropZone()
	case Drop:
		w.clearDropZone()
		w.selectFiles(e.Files)
	case Change:
		w.selectFiles(e.Files)
	case Submit:
		w.submit(ctx, e.Fields)
	case ContentReady:
		w.contentArrived(e.TransferID, e.FileID, nil)
	case ContentFailed:
		err := e.Err
		if err == nil {
			err = errors.New("transfer failed")
		}
		w.contentArrived(e.TransferID, "", err)
	default:
		w.log.Errorf("[Widget %s] unhandled event %T", shortID(w.id), ev)
	}
}

func (w *Widget) clearDropZone() {
	if w.dropActive {
		w.dropActive = false
		w.view.SetDropZoneActive(false)
	}
}

// selectFiles makes the first file the pending selection. Any further files
// are ignored and an empty list changes nothing.
func (w *Widget) selectFiles(files []FileDescriptor) {
	if len(files) == 0 {
		return
	}

	next := &selection{
		file:       files[0],
		transferID: w.newID(),
		ready:      make(chan struct{}),
	}
	prev := w.selection
	w.selection = next
	w.transfers[next.transferID] = next

	w.view.ShowSelection(next.file.Name)
	w.view.RequestFileContent(next.transferID, 0, next.file)

	if prev != nil {
		prev.discarded = true
		w.releaseIfUnused(prev)
	}
}

func (w *Widget) contentArrived(transferID, fileID string, err error) {
	sel, ok := w.transfers[transferID]
	if !ok || sel.arrived {
		if fileID != "" {
			w.deleteSpooled(fileID)
		}
		return
	}

	sel.arrived = true
	sel.fileID = fileID
	sel.err = err
	close(sel.ready)

	if err != nil {
		w.log.Errorf("[Widget %s] transfer %s failed: %v", shortID(w.id), shortID(transferID), err)
	}
	w.releaseIfUnused(sel)
}

// releaseIfUnused drops a replaced selection once no submission reads it and
// its bytes have settled.
func (w *Widget) releaseIfUnused(sel *selection) {
	if !sel.discarded || sel.pinned > 0 || !sel.arrived {
		return
	}
	delete(w.transfers, sel.transferID)
	if sel.fileID != "" {
		w.deleteSpooled(sel.fileID)
	}
}

func (w *Widget) deleteSpooled(fileID string) {
	if w.spool == nil {
		return
	}
	if err := w.spool.Delete(fileID); err != nil {
		w.log.Errorf("[Widget %s] deleting spooled file %s: %v", shortID(w.id), shortID(fileID), err)
	}
}

func (w *Widget) releaseAll() {
	for id, sel := range w.transfers {
		if sel.fileID != "" {
			w.deleteSpooled(sel.fileID)
		}
		delete(w.transfers, id)
	}
	w.selection = nil
}

// submit validates the selection and starts the upload. The control stays
// disabled until the upload settles.
func (w *Widget) submit(ctx context.Context, fields []models.Field) {
	if w.selection == nil {
		w.view.Alert(w.text.NoFileSelected)
		return
	}
	if w.submitting {
		return
	}

	w.submitting = true
	w.view.SetSubmitControl(true, SubmitLabel(w.text, true))

	sel := w.selection
	sel.pinned++
	fields = append([]models.Field(nil), fields...)

	w.async(ctx, func(ctx context.Context) func() {
		res, err := w.upload(ctx, sel, fields)
		return func() { w.uploadSettled(ctx, sel, res, err) }
	})
}

// upload runs off the loop. It only reads selection fields published before
// ready was closed.
func (w *Widget) upload(ctx context.Context, sel *selection, fields []models.Field) (*models.UploadResult, error) {
	select {
	case <-sel.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if sel.err != nil {
		return nil, fmt.Errorf("receiving %s: %w", sel.file.Name, sel.err)
	}
	if w.spool == nil {
		return nil, errors.New("no spool configured")
	}

	rc, _, err := w.spool.Open(sel.fileID)
	if err != nil {
		return nil, fmt.Errorf("opening spooled file: %w", err)
	}
	defer rc.Close()

	return w.backend.Upload(ctx, backend.UploadRequest{
		FileName: sel.file.Name,
		Content:  rc,
		Fields:   fields,
	})
}

func (w *Widget) uploadSettled(ctx context.Context, sel *selection, res *models.UploadResult, err error) {
	defer func() {
		w.submitting = false
		w.view.SetSubmitControl(false, SubmitLabel(w.text, false))
	}()

	sel.pinned--
	w.releaseIfUnused(sel)

	if err == nil && res == nil {
		err = errors.New("empty upload response")
	}

	var backendErr *backend.Error
	switch {
	case err == nil:
		panel, renderErr := RenderResults(w.text, res)
		if renderErr != nil {
			w.transportFailure(fmt.Errorf("rendering results: %w", renderErr))
			return
		}
		w.resultsShown = true
		w.lastJobID = res.JobID
		w.view.ShowResults(panel)
		w.refreshJobs(ctx)
	case errors.As(err, &backendErr):
		w.view.Alert(w.text.BackendError(backendErr.Message))
	default:
		w.transportFailure(err)
	}
}

func (w *Widget) transportFailure(err error) {
	w.log.Errorf("[Widget %s] upload failed: %v", shortID(w.id), err)
	w.view.Console(fmt.Sprintf("%s: %v", w.text.Error, err))
	w.view.Alert(w.text.UploadFailed)
}

// refreshJobs re-fetches the history and replaces the list when it arrives,
// unless a later fetch was started in the meantime.
func (w *Widget) refreshJobs(ctx context.Context) {
	w.jobsGen++
	gen := w.jobsGen
	w.async(ctx, func(ctx context.Context) func() {
		jobs, err := w.backend.ListJobs(ctx)
		return func() {
			if gen != w.jobsGen {
				return
			}
			w.jobsArrived(jobs, err)
		}
	})
}

func (w *Widget) jobsArrived(jobs []models.JobSummary, err error) {
	var html template.HTML
	if err == nil {
		html, err = RenderJobs(w.text, w.loc, jobs)
	}

	if err != nil {
		w.log.Errorf("[Widget %s] loading jobs: %v", shortID(w.id), err)
		w.view.Console(fmt.Sprintf("%s: %v", w.text.JobsLoadError, err))
		w.jobs = nil
		w.jobsState = JobsFailed
		placeholder, _ := RenderPlaceholder(w.text.JobsLoadError)
		w.view.SetJobs(placeholder)
		return
	}

	if len(jobs) > MaxRecentJobs {
		jobs = jobs[:MaxRecentJobs]
	}
	w.jobs = append([]models.JobSummary(nil), jobs...)
	if len(jobs) == 0 {
		w.jobsState = JobsEmpty
	} else {
		w.jobsState = JobsListed
	}
	w.view.SetJobs(html)
}

// async runs call on a helper goroutine and applies the continuation it
// returns on the loop.
func (w *Widget) async(ctx context.Context, call func(context.Context) func()) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.post(call(ctx))
	}()
}

func (w *Widget) post(fn func()) bool {
	select {
	case w.resume <- fn:
		return true
	case <-w.done:
		return false
	}
}

type printfLogger struct{}

func (printfLogger) Errorf(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
