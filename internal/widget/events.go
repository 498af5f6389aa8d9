package widget

import "github.com/doc-analyzer/widget/internal/models"

// Event is something that happened on the page, or the arrival of a
// selected file's bytes.
type Event interface {
	eventName() string
}

// FileDescriptor describes a file the browser holds, without its bytes.
type FileDescriptor struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// Click is a click on the drop zone.
type Click struct{}

// DragOver is a file being dragged over the drop zone.
type DragOver struct{}

// DragLeave is the drag leaving the drop zone.
type DragLeave struct{}

// Drop is files released on the drop zone.
type Drop struct {
	Files []FileDescriptor
}

// Change is files chosen with the native picker.
type Change struct {
	Files []FileDescriptor
}

// Submit is the form being submitted with its non-file fields.
type Submit struct {
	Fields []models.Field
}

// ContentReady reports that a transfer's bytes are in the spool.
type ContentReady struct {
	TransferID string
	FileID     string
}

// ContentFailed reports that a transfer could not be completed.
type ContentFailed struct {
	TransferID string
	Err        error
}

func (Click) eventName() string         { return "click" }
func (DragOver) eventName() string      { return "dragover" }
func (DragLeave) eventName() string     { return "dragleave" }
func (Drop) eventName() string          { return "drop" }
func (Change) eventName() string        { return "change" }
func (Submit) eventName() string        { return "submit" }
func (ContentReady) eventName() string  { return "content:ready" }
func (ContentFailed) eventName() string { return "content:failed" }
