// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/doc-analyzer/widget/internal/session"
	"github.com/doc-analyzer/widget/internal/widget"
	"github.com/labstack/echo/v4"
)

// PageHandler serves the analysis page
type PageHandler interface {
	HandleIndex(c echo.Context) error
	HandleSetLang(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// StateHandler exposes live widget state for diagnostics
type StateHandler interface {
	HandleWidgetState(c echo.Context) error
	HandleWidgetStateMsgpack(c echo.Context) error
	HandleListSessions(c echo.Context) error
}

// SocketHandler carries widget events over a websocket
type SocketHandler interface {
	HandleWebSocket(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	StartSession(lang string, view widget.View) (*session.Session, error)
	EndSession(id string) bool
	TouchSession(id string) bool
	Snapshot(ctx context.Context, id string) (widget.Snapshot, bool, error)
	ListSessions() []string
	Count() int
}
