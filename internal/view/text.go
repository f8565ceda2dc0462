package view

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"
)

const pageTemplate = `source {{ .Source }}{{ if .Revision }} revision {{ .Revision }}{{ end }}{{ if .FetchedAt }} fetched {{ .FetchedAt.Format "2006-01-02T15:04:05Z07:00" }}{{ end }}
{{- if .FetchError }}
fetch error{{ if .Stale }} (stale){{ end }}: {{ .FetchError }}
{{- end }}
{{- with .MatcherError }}
matcher error at offset {{ .Offset }}: {{ .Message }} (input {{ json .Input }})
{{- end }}
group by: {{ if .GroupBy }}{{ join .GroupBy ", " }}{{ else }}default{{ end }}
matcher: {{ if .Matcher }}{{ .Matcher }}{{ else }}none{{ end }}
{{ .AlertCount }} alerts in {{ len .Groups }} groups
{{- range .Groups }}

[{{ .Title }}] {{ .Count }} {{ plural .Count "alert" "alerts" }}
{{- range .Rows }}
  - {{ if .Name }}{{ .Name }}{{ else }}<unnamed>{{ end }} {{ .State }}{{ if .ActiveFor }} for {{ fmtDuration .ActiveFor }}{{ end }} {{ chips .Labels }}
{{- with .Actions.Silence }}
    silence: {{ . }}
{{- end }}
{{- with .Actions.SeeSource }}
    source: {{ . }}
{{- end }}
{{- end }}
{{- end }}
`

var textTemplate = template.Must(template.New("page").Funcs(FuncMap()).Option("missingkey=error").Parse(pageTemplate))

// FuncMap returns helpers shared by page templates.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"fmtDuration": FormatDuration,
		"json":        MarshalJSON,
		"chips":       ChipsString,
		"join":        strings.Join,
		"plural": func(n int, one, many string) string {
			if n == 1 {
				return one
			}
			return many
		},
	}
}

// RenderText writes a plain-text view of page.
// Params: destination writer and page.
// Returns: template execution or write error.
func RenderText(w io.Writer, page Page) error {
	return textTemplate.Execute(w, page)
}

// FormatDuration renders duration in compact human form with one decimal precision.
// Params: time.Duration or *time.Duration; other values render as zero.
// Returns: formatted duration string.
func FormatDuration(value any) string {
	var duration time.Duration
	switch typed := value.(type) {
	case time.Duration:
		duration = typed
	case *time.Duration:
		if typed != nil {
			duration = *typed
		}
	}
	if duration < 0 {
		duration = -duration
	}
	seconds := duration.Seconds()
	switch {
	case seconds >= 86400:
		return fmt.Sprintf("%.1fd", seconds/86400)
	case seconds >= 3600:
		return fmt.Sprintf("%.1fh", seconds/3600)
	case seconds >= 60:
		return fmt.Sprintf("%.1fm", seconds/60)
	default:
		return fmt.Sprintf("%.1fs", seconds)
	}
}

// MarshalJSON renders value as JSON for template embedding.
// Params: any value.
// Returns: JSON text or "null" when value cannot be encoded.
func MarshalJSON(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "null"
	}
	return string(encoded)
}
