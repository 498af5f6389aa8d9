// routes.go - Route registration helpers
package api

import (
	"net/url"

	"github.com/doc-analyzer/widget/internal/upload"
	"github.com/labstack/echo/v4"
)

// WidgetSocketPath is where the page's shim connects.
const WidgetSocketPath = "/api/ws/widget"

// Dependencies holds all handler dependencies
type Dependencies struct {
	Sessions   SessionManager
	Transfers  *upload.Manager
	BackendURL *url.URL
	ProxyPaths []string
	Socket     SocketOptions
	Version    string
}

// Handlers holds all handler instances
type Handlers struct {
	Health HealthHandler
	Page   PageHandler
	State  StateHandler
	Socket SocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health: NewHealthHandler(deps.Version, deps.Sessions),
		Page:   NewPageHandler(deps.Socket.DefaultLang, WidgetSocketPath),
		State:  NewStateHandler(deps.Sessions, deps.Transfers),
		Socket: NewWebSocketHandler(deps.Sessions, deps.Transfers, deps.Socket),
	}
}

// RegisterRoutes registers all routes with the Echo instance
func RegisterRoutes(e *echo.Echo, deps *Dependencies, handlers *Handlers) {
	e.GET("/", handlers.Page.HandleIndex)
	e.GET("/set_lang/:lang", handlers.Page.HandleSetLang)

	apiGroup := e.Group("/api")
	apiGroup.GET("/health", handlers.Health.HandleHealth)
	apiGroup.GET("/ws/widget", handlers.Socket.HandleWebSocket)

	widgetGroup := apiGroup.Group("/widget")
	widgetGroup.GET("", handlers.State.HandleListSessions)
	widgetGroup.GET("/:sessionId/state", handlers.State.HandleWidgetState)
	widgetGroup.GET("/:sessionId/state/msgpack", handlers.State.HandleWidgetStateMsgpack)

	RegisterBackendProxy(e, deps.BackendURL, deps.ProxyPaths)
}
