// Package web holds the page template and the browser shim of the widget.
package web

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"net/http"

	"github.com/doc-analyzer/widget/internal/i18n"
	"github.com/labstack/echo/v4"
)

//go:embed dist/*
var staticFiles embed.FS

var page = template.Must(template.ParseFS(staticFiles, "dist/index.html"))

// DefaultAccept lists the document types the analysis backend accepts.
const DefaultAccept = ".png,.jpg,.jpeg,.pdf,.tiff,.bmp"

// DefaultOllamaModel pre-fills the translation model field.
const DefaultOllamaModel = "qwen3:8b"

// LangLink is one entry of the language switcher.
type LangLink struct {
	Code   string
	Label  string
	Active bool
}

// Flag is an analysis option rendered as a checkbox.
type Flag struct {
	Name    string
	Label   string
	Checked bool
}

// PageData is what the page template renders.
type PageData struct {
	Lang        string
	Text        *i18n.Catalog
	Languages   []LangLink
	Flags       []Flag
	SocketPath  string
	Accept      string
	OllamaModel string
}

// NewPageData fills the page for a language.
func NewPageData(lang, socketPath string) PageData {
	c := i18n.Lookup(lang)
	return PageData{
		Lang: c.Lang,
		Text: c,
		Languages: []LangLink{
			{Code: "fr", Label: "FR", Active: c.Lang == "fr"},
			{Code: "en", Label: "EN", Active: c.Lang == "en"},
			{Code: "ja", Label: "日本語", Active: c.Lang == "ja"},
		},
		Flags: []Flag{
			{Name: "vis", Label: c.Vis},
			{Name: "lite", Label: c.Lite},
			{Name: "figure", Label: c.Figure},
			{Name: "figure_letter", Label: c.FigureLetter},
			{Name: "ignore_line_break", Label: c.IgnoreLineBreak},
			{Name: "combine", Label: c.Combine},
			{Name: "ignore_meta", Label: c.IgnoreMeta},
		},
		SocketPath:  socketPath,
		Accept:      DefaultAccept,
		OllamaModel: DefaultOllamaModel,
	}
}

// RenderPage writes the page.
func RenderPage(w io.Writer, data PageData) error {
	return page.ExecuteTemplate(w, "index.html", data)
}

// GetFileSystem returns the embedded filesystem with the dist folder as root.
func GetFileSystem() (fs.FS, error) {
	return fs.Sub(staticFiles, "dist")
}

// RegisterStaticRoutes serves the shim and stylesheet under /static.
func RegisterStaticRoutes(e *echo.Echo) error {
	staticFS, err := GetFileSystem()
	if err != nil {
		return err
	}

	fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
	e.GET("/static/*", func(c echo.Context) error {
		if c.Param("*") == "index.html" {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		fileServer.ServeHTTP(c.Response(), c.Request())
		return nil
	})

	return nil
}
