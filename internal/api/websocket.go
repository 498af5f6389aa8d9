package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/doc-analyzer/widget/internal/models"
	"github.com/doc-analyzer/widget/internal/session"
	"github.com/doc-analyzer/widget/internal/upload"
	"github.com/doc-analyzer/widget/internal/widget"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// WebSocket message types for the widget protocol
const (
	// Client -> Server messages
	MsgTypeClick        = "click"
	MsgTypeDragOver     = "dragover"
	MsgTypeDragLeave    = "dragleave"
	MsgTypeDrop         = "drop"
	MsgTypeChange       = "change"
	MsgTypeSubmit       = "submit"
	MsgTypeFileChunk    = "file:chunk"
	MsgTypeFileComplete = "file:complete"
	MsgTypePing         = "ping"

	// Server -> Client messages
	MsgTypeConnected   = "connected"
	MsgTypeChooser     = "chooser"
	MsgTypeDropZone    = "dropzone"
	MsgTypeSelection   = "selection"
	MsgTypeControl     = "control"
	MsgTypeResults     = "results"
	MsgTypeJobs        = "jobs"
	MsgTypeAlert       = "alert"
	MsgTypeConsole     = "console"
	MsgTypeFileRequest = "file:request"
	MsgTypePong        = "pong"
	MsgTypeError       = "error"
)

// Error codes carried by error frames
const (
	CodeInvalidType        = "INVALID_TYPE"
	CodeInvalidPayload     = "INVALID_PAYLOAD"
	CodeInvalidData        = "INVALID_DATA"
	CodeTransferNotFound   = "TRANSFER_NOT_FOUND"
	CodeIncompleteTransfer = "INCOMPLETE_TRANSFER"
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// FilesPayload carries drop and change events
type FilesPayload struct {
	Files []widget.FileDescriptor `json:"files"`
}

// SubmitPayload carries the form fields of a submission
type SubmitPayload struct {
	Fields []models.Field `json:"fields"`
}

// FileChunkPayload is one base64 chunk of a requested file
type FileChunkPayload struct {
	TransferID string `json:"transferId"`
	ChunkIndex int    `json:"chunkIndex"`
	Data       string `json:"data"`
}

// FileCompletePayload ends a transfer
type FileCompletePayload struct {
	TransferID  string `json:"transferId"`
	TotalChunks int    `json:"totalChunks"` // -1 when the browser could not read the file
	Size        int64  `json:"size"`
	Encoding    string `json:"encoding,omitempty"` // "gzip", "none"
}

// FileRequestPayload asks the browser for a selected file's bytes
type FileRequestPayload struct {
	TransferID string `json:"transferId"`
	Index      int    `json:"index"`
	ChunkSize  int    `json:"chunkSize"`
	Compress   bool   `json:"compress"`
}

// ConnectedPayload greets a new connection
type ConnectedPayload struct {
	SessionID string `json:"sessionId"`
}

// DropZonePayload toggles the drop zone highlight
type DropZonePayload struct {
	Active bool `json:"active"`
}

// SelectionPayload names the pending file
type SelectionPayload struct {
	Name string `json:"name"`
}

// ControlPayload updates the submit control
type ControlPayload struct {
	Disabled bool          `json:"disabled"`
	HTML     template.HTML `json:"html"`
}

// FragmentPayload replaces a region of the page
type FragmentPayload struct {
	HTML template.HTML `json:"html"`
}

// AlertPayload is a blocking notification
type AlertPayload struct {
	Message string `json:"message"`
}

// ConsolePayload is a diagnostic for the browser console
type ConsolePayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// WSErrorResponse describes a rejected frame
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// SocketOptions tunes the widget transport
type SocketOptions struct {
	// DefaultLang is used when the visitor has none.
	DefaultLang string
	// MaxMessageSize bounds a single inbound frame in bytes.
	MaxMessageSize int64
	// ChunkSize is the chunk size asked of the browser in bytes.
	ChunkSize int
	// Compress asks the browser to gzip file bytes when it can.
	Compress bool
}

// WebSocketHandler connects browsers to their widgets
type WebSocketHandler struct {
	sessions  SessionManager
	transfers *upload.Manager
	upgrader  websocket.Upgrader
	opts      SocketOptions
}

// NewWebSocketHandler creates the widget transport
func NewWebSocketHandler(sessions SessionManager, transfers *upload.Manager, opts SocketOptions) *WebSocketHandler {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 2 << 20
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 512 * 1024
	}
	return &WebSocketHandler{
		sessions:  sessions,
		transfers: transfers,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		opts: opts,
	}
}

// HandleWebSocket starts a widget for the page view and relays its events.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	view := newSocketView(wsh.transfers, wsh.opts)

	sess, err := wsh.sessions.StartSession(RequestLang(c, wsh.opts.DefaultLang), view)
	if err != nil {
		if errors.Is(err, session.ErrTooManySessions) {
			return NewServiceUnavailableError(err.Error())
		}
		return NewInternalError("failed to start widget", err)
	}
	view.attach(sess)
	defer func() {
		view.close()
		wsh.sessions.EndSession(sess.ID)
	}()

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}
	defer ws.Close()
	ws.SetReadLimit(wsh.opts.MaxMessageSize)

	fmt.Printf("[WebSocket %s] Client connected\n", shortID(sess.ID))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		view.writeLoop(ws, sess.ID)
	}()

	ctx := c.Request().Context()
	wsh.readLoop(ctx, ws, sess, view)

	view.close()
	<-writerDone
	fmt.Printf("[WebSocket %s] Client disconnected\n", shortID(sess.ID))
	return nil
}

func (wsh *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, sess *session.Session, view *socketView) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				fmt.Printf("[WebSocket %s] Connection error: %v\n", shortID(sess.ID), err)
			}
			return
		}
		wsh.sessions.TouchSession(sess.ID)

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			view.sendError("Invalid message: "+err.Error(), CodeInvalidPayload)
			continue
		}

		ev, ok := wsh.decode(view, msg)
		if !ok {
			continue
		}
		if err := sess.Send(ctx, ev); err != nil {
			return
		}
	}
}

// decode turns a frame into a widget event. Frames that are fully handled
// here, such as file chunks, yield no event.
func (wsh *WebSocketHandler) decode(view *socketView, msg WSMessage) (widget.Event, bool) {
	switch msg.Type {
	case MsgTypePing:
		view.send(MsgTypePong, nil)
		return nil, false
	case MsgTypeClick:
		return widget.Click{}, true
	case MsgTypeDragOver:
		return widget.DragOver{}, true
	case MsgTypeDragLeave:
		return widget.DragLeave{}, true
	case MsgTypeDrop, MsgTypeChange:
		var payload FilesPayload
		if err := decodePayload(msg, &payload); err != nil {
			view.sendError("Invalid "+msg.Type+" payload: "+err.Error(), CodeInvalidPayload)
			return nil, false
		}
		if msg.Type == MsgTypeDrop {
			return widget.Drop{Files: payload.Files}, true
		}
		return widget.Change{Files: payload.Files}, true
	case MsgTypeSubmit:
		var payload SubmitPayload
		if err := decodePayload(msg, &payload); err != nil {
			view.sendError("Invalid submit payload: "+err.Error(), CodeInvalidPayload)
			return nil, false
		}
		return widget.Submit{Fields: payload.Fields}, true
	case MsgTypeFileChunk:
		wsh.handleFileChunk(view, msg)
		return nil, false
	case MsgTypeFileComplete:
		return wsh.handleFileComplete(view, msg)
	default:
		view.sendError("Unknown message type: "+msg.Type, CodeInvalidType)
		return nil, false
	}
}

func decodePayload(msg WSMessage, v interface{}) error {
	if len(msg.Payload) == 0 {
		return errors.New("missing payload")
	}
	return json.Unmarshal(msg.Payload, v)
}

// handleFileChunk stages a chunk of a requested file
func (wsh *WebSocketHandler) handleFileChunk(view *socketView, msg WSMessage) {
	var payload FileChunkPayload
	if err := decodePayload(msg, &payload); err != nil {
		view.sendError("Invalid chunk payload: "+err.Error(), CodeInvalidPayload)
		return
	}

	data, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		view.sendError("Invalid base64 data: "+err.Error(), CodeInvalidData)
		return
	}

	if err := wsh.transfers.WriteChunk(payload.TransferID, payload.ChunkIndex, data); err != nil {
		if errors.Is(err, upload.ErrTransferNotFound) {
			view.sendError(err.Error(), CodeTransferNotFound)
			return
		}
		view.sendError("Failed to store chunk: "+err.Error(), CodeInvalidData)
	}
}

// handleFileComplete assembles a requested file and reports the outcome to
// the widget.
func (wsh *WebSocketHandler) handleFileComplete(view *socketView, msg WSMessage) (widget.Event, bool) {
	var payload FileCompletePayload
	if err := decodePayload(msg, &payload); err != nil {
		view.sendError("Invalid complete payload: "+err.Error(), CodeInvalidPayload)
		return nil, false
	}

	if payload.TotalChunks < 0 {
		wsh.transfers.Discard(payload.TransferID)
		return widget.ContentFailed{TransferID: payload.TransferID, Err: errTransferAborted}, true
	}

	info, err := wsh.transfers.Complete(payload.TransferID, payload.TotalChunks, payload.Size, payload.Encoding)
	if err != nil {
		switch {
		case errors.Is(err, upload.ErrTransferNotFound):
			view.sendError(err.Error(), CodeTransferNotFound)
			return nil, false
		case errors.Is(err, upload.ErrIncompleteTransfer):
			view.sendError(err.Error(), CodeIncompleteTransfer)
		default:
			view.sendError(err.Error(), CodeInvalidData)
		}
		wsh.transfers.Discard(payload.TransferID)
		return widget.ContentFailed{TransferID: payload.TransferID, Err: err}, true
	}

	fmt.Printf("[WebSocket] Transfer complete: %s (%d bytes)\n", shortID(payload.TransferID), info.Size)
	return widget.ContentReady{TransferID: payload.TransferID, FileID: info.ID}, true
}

// errTransferAborted is reported when the browser could not read a file.
var errTransferAborted = errors.New("browser aborted the transfer")

// socketView applies a widget's output to the browser. Its methods are
// called from the widget loop and only enqueue frames; writeLoop is the
// single writer of the connection.
type socketView struct {
	out       chan WSMessage
	done      chan struct{}
	closed    bool
	transfers *upload.Manager
	opts      SocketOptions

	// Set before the first event reaches the widget.
	sess *session.Session
}

func newSocketView(transfers *upload.Manager, opts SocketOptions) *socketView {
	return &socketView{
		out:       make(chan WSMessage, 64),
		done:      make(chan struct{}),
		transfers: transfers,
		opts:      opts,
	}
}

func (v *socketView) attach(sess *session.Session) {
	v.sess = sess
}

// transferStalled tells the widget that cleanup gave up on a transfer.
func (v *socketView) transferStalled(transferID string) func(error) {
	return func(err error) {
		if v.sess == nil {
			return
		}
		go v.sess.Send(context.Background(), widget.ContentFailed{TransferID: transferID, Err: err})
	}
}

// close is only called from the connection handler goroutine.
func (v *socketView) close() {
	if !v.closed {
		v.closed = true
		close(v.done)
	}
}

func (v *socketView) writeLoop(ws *websocket.Conn, sessionID string) {
	write := func(msg WSMessage) bool {
		if err := ws.WriteJSON(msg); err != nil {
			fmt.Printf("[WebSocket %s] Failed to send message: %v\n", shortID(sessionID), err)
			return false
		}
		return true
	}

	if !write(WSMessage{
		Type:      MsgTypeConnected,
		Timestamp: time.Now().UnixMilli(),
		Payload:   mustJSON(ConnectedPayload{SessionID: sessionID}),
	}) {
		return
	}

	for {
		select {
		case msg := <-v.out:
			if !write(msg) {
				return
			}
		case <-v.done:
			return
		}
	}
}

func (v *socketView) send(msgType string, payload interface{}) {
	msg := WSMessage{Type: msgType, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		msg.Payload = mustJSON(payload)
	}
	select {
	case v.out <- msg:
	case <-v.done:
	}
}

func (v *socketView) sendError(message, code string) {
	v.send(MsgTypeError, WSErrorResponse{Message: message, Code: code})
}

func (v *socketView) OpenFileChooser() {
	v.send(MsgTypeChooser, nil)
}

func (v *socketView) SetDropZoneActive(active bool) {
	v.send(MsgTypeDropZone, DropZonePayload{Active: active})
}

func (v *socketView) ShowSelection(name string) {
	v.send(MsgTypeSelection, SelectionPayload{Name: name})
}

func (v *socketView) RequestFileContent(transferID string, index int, file widget.FileDescriptor) {
	v.transfers.Begin(transferID, file.Name, file.Size, v.transferStalled(transferID))
	v.send(MsgTypeFileRequest, FileRequestPayload{
		TransferID: transferID,
		Index:      index,
		ChunkSize:  v.opts.ChunkSize,
		Compress:   v.opts.Compress,
	})
}

func (v *socketView) SetSubmitControl(disabled bool, label template.HTML) {
	v.send(MsgTypeControl, ControlPayload{Disabled: disabled, HTML: label})
}

func (v *socketView) ShowResults(panel template.HTML) {
	v.send(MsgTypeResults, FragmentPayload{HTML: panel})
}

func (v *socketView) SetJobs(list template.HTML) {
	v.send(MsgTypeJobs, FragmentPayload{HTML: list})
}

func (v *socketView) Alert(message string) {
	v.send(MsgTypeAlert, AlertPayload{Message: message})
}

func (v *socketView) Console(message string) {
	v.send(MsgTypeConsole, ConsolePayload{Level: "error", Message: message})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
