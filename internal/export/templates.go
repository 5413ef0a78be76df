package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/report.html")
	if err != nil {
		// Fallback to built-in template if file not found
		reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for report template rendering
type TemplateData struct {
	URI         string
	GroupName   string
	GeneratedAt time.Time
	Annotations []TemplateAnnotation
}

// TemplateAnnotation holds one annotation for the template
type TemplateAnnotation struct {
	Author    string
	BodyHTML  template.HTML
	Tags      []string
	Likes     int
	Dislikes  int
	CreatedAt time.Time
	Replies   []TemplateReply
}

// TemplateReply holds reply data for the template
type TemplateReply struct {
	Author   string
	BodyHTML template.HTML
}

// FormatBody escapes annotation text and preserves line breaks.
func FormatBody(body string) template.HTML {
	escaped := template.HTMLEscapeString(body)
	escaped = strings.ReplaceAll(escaped, "\n", "<br>")
	return template.HTML(escaped)
}

// RenderReportHTML renders the report template with provided data
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Annotations for {{.URI}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .annotation { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; }
  </style>
</head>
<body>
  <h1>Annotations</h1>
  <div class="meta">{{.URI}} | {{.GeneratedAt.Format "Jan 2, 2006"}}</div>
  {{range .Annotations}}<div class="annotation">{{.BodyHTML}}</div>{{end}}
</body>
</html>`
