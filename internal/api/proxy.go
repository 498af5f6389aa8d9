// proxy.go - Forwards result and download links to the analysis backend
package api

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RegisterBackendProxy forwards every request under the given path prefixes
// to the backend, so links rendered by the widget resolve on this host.
func RegisterBackendProxy(e *echo.Echo, backendURL *url.URL, prefixes []string) {
	if backendURL == nil || len(prefixes) == 0 {
		return
	}

	balancer := middleware.NewRoundRobinBalancer([]*middleware.ProxyTarget{
		{Name: "backend", URL: backendURL},
	})
	proxy := middleware.ProxyWithConfig(middleware.ProxyConfig{
		Balancer: balancer,
		ErrorHandler: func(c echo.Context, err error) error {
			fmt.Printf("[Proxy] %s %s failed: %v\n", c.Request().Method, c.Request().URL.Path, err)
			return &APIError{
				Status:  http.StatusBadGateway,
				Code:    "BAD_GATEWAY",
				Message: "analysis backend unavailable",
			}
		},
	})

	for _, prefix := range prefixes {
		g := e.Group(prefix, proxy)
		g.Any("", proxyPassthrough)
		g.Any("/*", proxyPassthrough)
	}
}

// proxyPassthrough is never reached; the proxy middleware answers first.
func proxyPassthrough(c echo.Context) error {
	return echo.ErrNotFound
}
