// handlers_page.go - Analysis page and language switch
package api

import (
	"bytes"
	"net/http"
	"net/url"
	"time"

	"github.com/doc-analyzer/widget/internal/i18n"
	"github.com/doc-analyzer/widget/internal/web"
	"github.com/labstack/echo/v4"
)

// LangCookie stores the visitor's language.
const LangCookie = "lang"

// PageHandlerImpl implements the PageHandler interface
type PageHandlerImpl struct {
	defaultLang string
	socketPath  string
}

// NewPageHandler creates a page handler
func NewPageHandler(defaultLang, socketPath string) PageHandler {
	if !i18n.Supported(defaultLang) {
		defaultLang = i18n.DefaultLang
	}
	return &PageHandlerImpl{
		defaultLang: defaultLang,
		socketPath:  socketPath,
	}
}

// HandleIndex renders the page in the visitor's language
func (h *PageHandlerImpl) HandleIndex(c echo.Context) error {
	var buf bytes.Buffer
	if err := web.RenderPage(&buf, web.NewPageData(RequestLang(c, h.defaultLang), h.socketPath)); err != nil {
		return NewInternalError("failed to render page", err)
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

// HandleSetLang stores the language and sends the visitor back
func (h *PageHandlerImpl) HandleSetLang(c echo.Context) error {
	lang := c.Param("lang")
	if i18n.Supported(lang) {
		c.SetCookie(&http.Cookie{
			Name:     LangCookie,
			Value:    lang,
			Path:     "/",
			Expires:  time.Now().AddDate(1, 0, 0),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return c.Redirect(http.StatusFound, backTarget(c))
}

// RequestLang picks the language from the query, then the cookie.
func RequestLang(c echo.Context, fallback string) string {
	if lang := c.QueryParam("lang"); i18n.Supported(lang) {
		return lang
	}
	if cookie, err := c.Cookie(LangCookie); err == nil && i18n.Supported(cookie.Value) {
		return cookie.Value
	}
	return fallback
}

// backTarget returns the referring page when it is on this host.
func backTarget(c echo.Context) string {
	ref, err := url.Parse(c.Request().Referer())
	if err != nil || ref.Path == "" {
		return "/"
	}
	if ref.Host != "" && ref.Host != c.Request().Host {
		return "/"
	}
	target := ref.EscapedPath()
	if ref.RawQuery != "" {
		target += "?" + ref.RawQuery
	}
	return target
}
