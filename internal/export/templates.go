package export

import (
	"bytes"
	"html/template"
	"time"
)

var directoryTemplate = template.Must(template.New("directory").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).Parse(directoryHTML))

// DirectoryData holds data for the link directory template.
type DirectoryData struct {
	Title       string
	GeneratedAt time.Time
	Groups      []DirectoryGroup
}

// DirectoryGroup is one category section of the directory.
type DirectoryGroup struct {
	Category string
	InCharge string
	Links    []DirectoryLink
}

type DirectoryLink struct {
	Title string
	URL   string
}

// RenderDirectoryHTML renders the link directory template with provided data
func RenderDirectoryHTML(data DirectoryData) (string, error) {
	var buf bytes.Buffer
	if err := directoryTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const directoryHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; margin: 0 auto; max-width: 800px; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    h2 { margin-top: 1.5rem; font-size: 1.1em; }
    .meta { color: #666; font-size: 0.85em; }
    table { width: 100%; border-collapse: collapse; }
    td { border-bottom: 1px solid #ddd; padding: 0.3rem 0.4rem; vertical-align: top; }
    td.url { color: #1a4f8b; word-break: break-all; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">Generated {{formatDate .GeneratedAt "Jan 2, 2006 15:04"}}</div>
  {{range .Groups}}
  <h2>{{.Category}}</h2>
  {{if .InCharge}}<div class="meta">In charge: {{.InCharge}}</div>{{end}}
  <table>
    {{range .Links}}<tr><td>{{.Title}}</td><td class="url">{{.URL}}</td></tr>
    {{end}}
  </table>
  {{else}}
  <p>No active links.</p>
  {{end}}
</body>
</html>`
