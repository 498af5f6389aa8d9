// handlers_state.go - Live widget state for diagnostics
package api

import (
	"errors"
	"net/http"

	"github.com/doc-analyzer/widget/internal/upload"
	"github.com/doc-analyzer/widget/internal/widget"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// StateHandlerImpl implements the StateHandler interface
type StateHandlerImpl struct {
	sessions  SessionManager
	transfers *upload.Manager
}

// NewStateHandler creates a state handler
func NewStateHandler(sessions SessionManager, transfers *upload.Manager) StateHandler {
	return &StateHandlerImpl{sessions: sessions, transfers: transfers}
}

func (h *StateHandlerImpl) snapshot(c echo.Context) (widget.Snapshot, error) {
	id := c.Param("sessionId")
	if id == "" {
		return widget.Snapshot{}, NewValidationError("sessionId")
	}

	snap, ok, err := h.sessions.Snapshot(c.Request().Context(), id)
	if !ok || errors.Is(err, widget.ErrStopped) {
		return widget.Snapshot{}, NewNotFoundError("session", id)
	}
	if err != nil {
		return widget.Snapshot{}, NewServiceUnavailableError("widget did not respond: " + err.Error())
	}

	if sel := snap.Selection; sel != nil && !sel.Received && h.transfers != nil {
		if t, ok := h.transfers.Get(sel.TransferID); ok {
			sel.Progress = t.Progress()
		}
	}
	return snap, nil
}

// HandleWidgetState returns a widget snapshot as JSON
func (h *StateHandlerImpl) HandleWidgetState(c echo.Context) error {
	snap, err := h.snapshot(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

// HandleWidgetStateMsgpack returns a widget snapshot in MessagePack format
func (h *StateHandlerImpl) HandleWidgetStateMsgpack(c echo.Context) error {
	snap, err := h.snapshot(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleListSessions returns the IDs of live widgets
func (h *StateHandlerImpl) HandleListSessions(c echo.Context) error {
	ids := h.sessions.ListSessions()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": ids,
		"count":    len(ids),
	})
}
