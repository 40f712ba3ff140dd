// Package report renders search reports for humans (text), machines (JSON)
// and prompts (the numbered context block).
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/template"

	"github.com/AriajSarkar/SPAAR/internal/serp"
)

// DefaultPriority is the engine order consulted when picking fallback
// results for a prompt.
var DefaultPriority = []string{serp.EngineGoogle, serp.EngineBing, serp.EngineDuckDuckGo}

// DefaultTopN caps how many fallback results feed a prompt.
const DefaultTopN = 3

// Summary contains aggregate counts for one search report.
type Summary struct {
	Query           string
	Engines         int
	TotalResults    int
	Errors          int
	ResultsByEngine map[string]int
}

// GenerateSummary tallies a report's outcomes.
func GenerateSummary(rep *serp.Report) Summary {
	s := Summary{
		Query:           rep.Query,
		ResultsByEngine: make(map[string]int),
	}

	for name, outcome := range rep.Outcomes {
		s.Engines++
		s.TotalResults += len(outcome.Results)
		s.ResultsByEngine[name] = len(outcome.Results)
		if outcome.Err != "" {
			s.Errors++
		}
	}

	return s
}

// TopByPriority returns the first engine in priority order that produced
// results, and at most n of them. Empty priority means DefaultPriority,
// n <= 0 means DefaultTopN. When every engine came back empty the engine
// name is "" and the slice nil.
func TopByPriority(rep *serp.Report, priority []string, n int) (string, []serp.Result) {
	if len(priority) == 0 {
		priority = DefaultPriority
	}
	if n <= 0 {
		n = DefaultTopN
	}

	for _, name := range priority {
		outcome, ok := rep.Outcomes[name]
		if !ok || len(outcome.Results) == 0 {
			continue
		}
		results := outcome.Results
		if len(results) > n {
			results = results[:n]
		}
		return name, results
	}

	return "", nil
}

// RenderContext writes the numbered block a prompt embeds: the top fallback
// results, entries separated by a blank line, no trailing newline. An empty
// report writes nothing.
func RenderContext(w io.Writer, rep *serp.Report, priority []string, n int) error {
	const contextTmpl = `{{range $i, $r := .}}{{if $i}}

{{end}}{{$r.Rank}}. {{$r.Title}}
   URL: {{$r.URL}}
   {{$r.Description}}{{end}}`

	_, results := TopByPriority(rep, priority, n)
	if len(results) == 0 {
		return nil
	}

	t, err := template.New("context").Parse(contextTmpl)
	if err != nil {
		return fmt.Errorf("failed to parse context template: %w", err)
	}
	if err := t.Execute(w, results); err != nil {
		return fmt.Errorf("failed to render context: %w", err)
	}
	return nil
}

// WriteJSON writes the full report as indented JSON.
func WriteJSON(w io.Writer, rep *serp.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteText writes a human-readable report, engines in alphabetical order.
func WriteText(w io.Writer, rep *serp.Report) error {
	const textTmpl = `Search Report
-------------
Query:    {{.Query}}
Time:     {{.CreatedAt.Format "2006-01-02 15:04:05"}}

{{range $name, $o := .Outcomes -}}
[{{$name}}] {{len $o.Results}} results via {{$o.Egress}}{{if $o.Err}} (error: {{$o.Err}}){{end}}
{{- range $o.Results}}
  {{.Rank}}. {{.Title}}
     {{.URL}}
{{- end}}

{{end -}}
`

	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("failed to parse text template: %w", err)
	}
	if err := t.Execute(w, rep); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}
