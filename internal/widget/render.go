package widget

import (
	"bytes"
	"html/template"
	"time"

	"github.com/doc-analyzer/widget/internal/i18n"
	"github.com/doc-analyzer/widget/internal/models"
)

// MaxRecentJobs is how many history entries are displayed.
const MaxRecentJobs = 5

var fragments = template.Must(template.New("widget").Parse(`
{{define "results"}}
<div class="alert alert-success">
    <i class="fas fa-check-circle"></i> {{.Text.Success}}
    <a href="/results/{{.Result.JobID}}" class="btn btn-sm btn-success float-end">
        <i class="fas fa-external-link-alt"></i> {{.Text.ViewResults}}
    </a>
</div>
<p><strong>{{.Text.JobID}}:</strong> {{.Result.JobID}}</p>
{{- if .Result.Files}}
<h6>{{.Text.FilesGenerated}}:</h6>
<ul class="list-unstyled">
{{- range .Result.Files}}
    <li>
        <i class="fas fa-file"></i> {{.Name}}
        <a href="{{.URL}}" class="btn btn-sm btn-link" download="{{.Name}}">{{$.Text.Download}}</a>
    </li>
{{- end}}
</ul>
{{- end}}
{{end}}

{{define "jobs"}}
<div class="list-group">
{{- range .}}
    <a href="/results/{{.ID}}" class="list-group-item list-group-item-action">
        <div class="d-flex w-100 justify-content-between">
            <h6 class="mb-1"><i class="fas fa-folder-open"></i> {{.Title}}</h6>
            <small class="text-muted">{{.Date}}</small>
        </div>
        <p class="mb-1">{{.Count}}</p>
    </a>
{{- end}}
</div>
{{end}}

{{define "placeholder"}}<p class="text-muted text-center">{{.}}</p>{{end}}

{{define "idle"}}<i class="fas fa-magic"></i> {{.}}{{end}}

{{define "busy"}}<i class="fas fa-spinner fa-spin"></i> {{.}}{{end}}
`))

type resultsData struct {
	Text   *i18n.Catalog
	Result *models.UploadResult
}

type jobRow struct {
	ID    string
	Title string
	Date  string
	Count string
}

func execute(name string, data interface{}) (template.HTML, error) {
	var buf bytes.Buffer
	if err := fragments.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// RenderResults renders the success panel of an upload.
func RenderResults(c *i18n.Catalog, res *models.UploadResult) (template.HTML, error) {
	return execute("results", resultsData{Text: c, Result: res})
}

// RenderJobs renders the job history. Only the first MaxRecentJobs entries
// are shown, in the order given.
func RenderJobs(c *i18n.Catalog, loc *time.Location, jobs []models.JobSummary) (template.HTML, error) {
	if len(jobs) == 0 {
		return RenderPlaceholder(c.NoRecentJobs)
	}

	if len(jobs) > MaxRecentJobs {
		jobs = jobs[:MaxRecentJobs]
	}

	rows := make([]jobRow, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, jobRow{
			ID:    j.ID,
			Title: c.JobTitle(j.ID),
			Date:  c.FormatDate(j.CreatedAt(), loc),
			Count: c.FileCount(j.FilesCount),
		})
	}
	return execute("jobs", rows)
}

// RenderPlaceholder renders an inline muted message.
func RenderPlaceholder(message string) (template.HTML, error) {
	return execute("placeholder", message)
}

// SubmitLabel renders the submit control's label for the given state.
func SubmitLabel(c *i18n.Catalog, submitting bool) template.HTML {
	name, text := "idle", c.Launch
	if submitting {
		name, text = "busy", c.Analyzing
	}
	html, err := execute(name, text)
	if err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return html
}
