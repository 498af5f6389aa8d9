package widget

import (
	"context"

	"github.com/doc-analyzer/widget/internal/models"
)

// JobsState describes what the job history list currently shows.
type JobsState string

const (
	JobsLoading JobsState = "loading"
	JobsEmpty   JobsState = "empty"
	JobsListed  JobsState = "listed"
	JobsFailed  JobsState = "error"
)

// SelectionSnapshot describes the pending file.
type SelectionSnapshot struct {
	Name       string `json:"name" msgpack:"name"`
	Size       int64  `json:"size" msgpack:"size"`
	Type       string `json:"type,omitempty" msgpack:"type,omitempty"`
	TransferID string `json:"transferId" msgpack:"transferId"`
	Received   bool   `json:"received" msgpack:"received"`
	Failed     bool   `json:"failed,omitempty" msgpack:"failed,omitempty"`
	// Percentage of the bytes received so far; filled in by the host.
	Progress float64 `json:"progress" msgpack:"progress"`
}

// Snapshot is a point-in-time copy of a widget's state.
type Snapshot struct {
	ID             string              `json:"id" msgpack:"id"`
	Lang           string              `json:"lang" msgpack:"lang"`
	DropZoneActive bool                `json:"dropZoneActive" msgpack:"dropZoneActive"`
	Selection      *SelectionSnapshot  `json:"selection,omitempty" msgpack:"selection,omitempty"`
	Submitting     bool                `json:"submitting" msgpack:"submitting"`
	ResultsVisible bool                `json:"resultsVisible" msgpack:"resultsVisible"`
	LastJobID      string              `json:"lastJobId,omitempty" msgpack:"lastJobId,omitempty"`
	JobsState      JobsState           `json:"jobsState" msgpack:"jobsState"`
	Jobs           []models.JobSummary `json:"jobs" msgpack:"jobs"`
}

// Snapshot asks the loop for a copy of the current state.
func (w *Widget) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)

	select {
	case w.resume <- func() { reply <- w.snapshot() }:
	case <-w.done:
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}

	select {
	case s := <-reply:
		return s, nil
	case <-w.done:
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (w *Widget) snapshot() Snapshot {
	s := Snapshot{
		ID:             w.id,
		Lang:           w.text.Lang,
		DropZoneActive: w.dropActive,
		Submitting:     w.submitting,
		ResultsVisible: w.resultsShown,
		LastJobID:      w.lastJobID,
		JobsState:      w.jobsState,
		Jobs:           append([]models.JobSummary{}, w.jobs...),
	}
	if sel := w.selection; sel != nil {
		s.Selection = &SelectionSnapshot{
			Name:       sel.file.Name,
			Size:       sel.file.Size,
			Type:       sel.file.Type,
			TransferID: sel.transferID,
			Received:   sel.arrived && sel.err == nil,
			Failed:     sel.err != nil,
		}
		if s.Selection.Received {
			s.Selection.Progress = 100
		}
	}
	return s
}
