// Package i18n holds the UI text of the widget and its page in each
// supported language.
package i18n

import (
	"embed"
	"fmt"
	"path"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultLang is used when no language, or an unsupported one, is requested.
const DefaultLang = "fr"

//go:embed locales/*.yaml
var localeFiles embed.FS

// Option is one choice of a select input.
type Option struct {
	Value string `yaml:"value"`
	Label string `yaml:"label"`
}

// Catalog is the UI text of one language.
type Catalog struct {
	Lang            string   `yaml:"lang"`
	Title           string   `yaml:"title"`
	Subtitle        string   `yaml:"subtitle"`
	SelectFile      string   `yaml:"select_file"`
	Format          string   `yaml:"format"`
	Formats         []Option `yaml:"formats"`
	Device          string   `yaml:"device"`
	Options         string   `yaml:"options"`
	TransOptions    string   `yaml:"trans_options"`
	Vis             string   `yaml:"vis"`
	Lite            string   `yaml:"lite"`
	Figure          string   `yaml:"figure"`
	FigureLetter    string   `yaml:"figure_letter"`
	IgnoreLineBreak string   `yaml:"ignore_line_break"`
	Combine         string   `yaml:"combine"`
	IgnoreMeta      string   `yaml:"ignore_meta"`
	Translate       string   `yaml:"translate"`
	TargetLang      string   `yaml:"target_lang"`
	TargetLangs     []Option `yaml:"target_langs"`
	OllamaModel     string   `yaml:"ollama_model"`
	Launch          string   `yaml:"launch"`
	DragDrop        string   `yaml:"drag_drop"`
	Success         string   `yaml:"success"`
	Analyzing       string   `yaml:"analyzing"`
	Error           string   `yaml:"error"`
	Download        string   `yaml:"download"`
	ViewResults     string   `yaml:"view_results"`
	JobID           string   `yaml:"job_id"`
	FilesGenerated  string   `yaml:"files_generated"`
	RecentJobs      string   `yaml:"recent_jobs"`
	Loading         string   `yaml:"loading"`
	NoFileSelected  string   `yaml:"no_file_selected"`
	UploadFailed    string   `yaml:"upload_failed"`
	NoRecentJobs    string   `yaml:"no_recent_jobs"`
	JobsLoadError   string   `yaml:"jobs_load_error"`
	JobLabel        string   `yaml:"job_label"`
	FilesCount      string   `yaml:"files_count"`
	DateLayout      string   `yaml:"date_layout"`
}

// BackendError formats an error reported by the backend for an alert.
func (c *Catalog) BackendError(message string) string {
	return fmt.Sprintf("%s: %s", c.Error, message)
}

// JobTitle formats the heading of a job history entry.
func (c *Catalog) JobTitle(id string) string {
	return fmt.Sprintf(c.JobLabel, id)
}

// FileCount formats the number of files a job generated.
func (c *Catalog) FileCount(n int) string {
	return fmt.Sprintf(c.FilesCount, n)
}

// FormatDate formats t with the language's date layout in loc.
func (c *Catalog) FormatDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(c.DateLayout)
}

func (c *Catalog) validate() error {
	required := map[string]string{
		"lang": c.Lang, "title": c.Title, "subtitle": c.Subtitle,
		"select_file": c.SelectFile, "format": c.Format, "device": c.Device,
		"options": c.Options, "trans_options": c.TransOptions, "vis": c.Vis,
		"lite": c.Lite, "figure": c.Figure, "figure_letter": c.FigureLetter,
		"ignore_line_break": c.IgnoreLineBreak, "combine": c.Combine,
		"ignore_meta": c.IgnoreMeta, "translate": c.Translate,
		"target_lang": c.TargetLang, "ollama_model": c.OllamaModel,
		"launch": c.Launch, "drag_drop": c.DragDrop, "success": c.Success,
		"analyzing": c.Analyzing, "error": c.Error, "download": c.Download,
		"view_results": c.ViewResults, "job_id": c.JobID,
		"files_generated": c.FilesGenerated, "recent_jobs": c.RecentJobs,
		"loading": c.Loading, "no_file_selected": c.NoFileSelected,
		"upload_failed": c.UploadFailed, "no_recent_jobs": c.NoRecentJobs,
		"jobs_load_error": c.JobsLoadError, "job_label": c.JobLabel,
		"files_count": c.FilesCount, "date_layout": c.DateLayout,
	}
	for key, value := range required {
		if value == "" {
			return fmt.Errorf("missing key %q", key)
		}
	}
	if len(c.Formats) == 0 {
		return fmt.Errorf("missing key %q", "formats")
	}
	if len(c.TargetLangs) == 0 {
		return fmt.Errorf("missing key %q", "target_langs")
	}
	return nil
}

var (
	loadOnce sync.Once
	catalogs map[string]*Catalog
	loadErr  error
)

// Load parses every embedded locale file. It is safe to call repeatedly.
func Load() (map[string]*Catalog, error) {
	loadOnce.Do(func() {
		catalogs, loadErr = parseLocales()
	})
	return catalogs, loadErr
}

func parseLocales() (map[string]*Catalog, error) {
	entries, err := localeFiles.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("reading locales: %w", err)
	}

	result := make(map[string]*Catalog, len(entries))
	for _, entry := range entries {
		data, err := localeFiles.ReadFile(path.Join("locales", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		var c Catalog
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", entry.Name(), err)
		}
		if err := c.validate(); err != nil {
			return nil, fmt.Errorf("locale %s: %w", entry.Name(), err)
		}
		result[c.Lang] = &c
	}

	if _, ok := result[DefaultLang]; !ok {
		return nil, fmt.Errorf("default locale %q not found", DefaultLang)
	}
	return result, nil
}

// Supported reports whether lang has a catalog.
func Supported(lang string) bool {
	all, err := Load()
	if err != nil {
		return false
	}
	_, ok := all[lang]
	return ok
}

// Lookup returns the catalog for lang, falling back to DefaultLang.
// It panics if the embedded catalogs are invalid, which tests rule out.
func Lookup(lang string) *Catalog {
	all, err := Load()
	if err != nil {
		panic(fmt.Sprintf("i18n: %v", err))
	}
	if c, ok := all[lang]; ok {
		return c
	}
	return all[DefaultLang]
}
