package report

import (
	"html/template"
	"strings"
)

// writeDashboard renders the self-contained HTML dashboard. Everything
// is embedded; the page loads no external resources.
func (g *Generator) writeDashboard(path string, sum *Summary) error {
	var b strings.Builder
	if err := dashboardTmpl.Execute(&b, sum); err != nil {
		return err
	}
	return atomicWrite(path, []byte(b.String()))
}

var dashboardTmpl = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"scoreClass": func(score float64) string {
		switch {
		case score >= 90:
			return "good"
		case score >= 70:
			return "warn"
		default:
			return "bad"
		}
	},
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Integration Health Report</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; margin: 2em; color: #222; }
h1 { margin-bottom: 0; }
.meta { color: #666; margin-bottom: 2em; }
.cards { display: flex; flex-wrap: wrap; gap: 1em; }
.card { border: 1px solid #ddd; border-radius: 8px; padding: 1em; min-width: 14em; }
.card h3 { margin-top: 0; }
.score { font-size: 2em; font-weight: bold; }
.good { color: #1a7f37; }
.warn { color: #9a6700; }
.bad { color: #cf222e; }
.unavailable { color: #999; font-style: italic; }
.columns { display: flex; gap: 2em; margin-top: 2em; }
.column { flex: 1; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; border-bottom: 1px solid #eee; padding: 0.4em 0.6em; }
details { margin: 0.5em 0; }
summary { cursor: pointer; }
.sev-critical { color: #cf222e; font-weight: bold; }
.sev-high { color: #cf222e; }
.sev-medium { color: #9a6700; }
.sev-low { color: #666; }
.rec { background: #f6f8fa; border-radius: 6px; padding: 0.6em 1em; margin: 0.4em 0; }
</style>
</head>
<body>
<h1>Integration Health Report</h1>
<p class="meta">Generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}{{if .SessionID}} for session {{.SessionID}}{{end}}</p>

<div class="cards">
  <div class="card">
    <h3>Overall</h3>
    <div class="score {{scoreClass .OverallScore}}">{{printf "%.1f" .OverallScore}}</div>
    <div>{{.ScoredCount}} monitor(s) scored</div>
    <div>{{.FailureCount}} anomalie(s)</div>
  </div>
  {{range .Monitors}}
  <div class="card">
    <h3>{{.Name}}</h3>
    {{if .Available}}
    <div class="score {{scoreClass .HealthScore}}">{{printf "%.1f" .HealthScore}}</div>
    <div>{{.ChecksCompleted}} completed / {{.ChecksStalled}} stalled</div>
    <div>{{.InFlight}} in flight</div>
    {{else}}
    <div class="unavailable">monitor not available</div>
    {{end}}
  </div>
  {{end}}
</div>

<h2>Scenario checks</h2>
<table>
<tr><th>Pipeline</th><th>Result</th><th>Expected stages</th><th>Observed</th><th>Detail</th></tr>
{{range .Checks}}
<tr>
  <td>{{.Pipeline}}</td>
  <td>{{if .Passed}}<span class="good">pass</span>{{else}}<span class="bad">fail</span>{{end}}</td>
  <td>{{range .Expected}}{{.}} {{end}}</td>
  <td>{{range .Observed}}{{.}} {{end}}</td>
  <td>{{.Detail}}</td>
</tr>
{{end}}
</table>

<div class="columns">
  <div class="column">
    <h2>Needs human review ({{len .NeedsReview}})</h2>
    {{range .NeedsReview}}
    <details>
      <summary><span class="sev-{{.Severity}}">[{{.Severity}}]</span> {{.Type}}: {{.Message}}</summary>
      <table>
        <tr><th>Monitor</th><td>{{.Monitor}}</td></tr>
        <tr><th>Detected</th><td>{{.Timestamp.Format "15:04:05.000"}}</td></tr>
        {{if .Recommendation}}<tr><th>Recommendation</th><td>{{.Recommendation}}</td></tr>{{end}}
        {{range $k, $v := .Context}}<tr><th>{{$k}}</th><td>{{$v}}</td></tr>{{end}}
      </table>
    </details>
    {{else}}<p>Nothing needs review.</p>{{end}}
  </div>
  <div class="column">
    <h2>Auto-handled ({{len .AutoHandled}})</h2>
    {{range .AutoHandled}}
    <details>
      <summary><span class="sev-{{.Severity}}">[{{.Severity}}]</span> {{.Type}}: {{.Message}}</summary>
      <table>
        <tr><th>Monitor</th><td>{{.Monitor}}</td></tr>
        <tr><th>Detected</th><td>{{.Timestamp.Format "15:04:05.000"}}</td></tr>
        {{if .Recommendation}}<tr><th>Recommendation</th><td>{{.Recommendation}}</td></tr>{{end}}
      </table>
    </details>
    {{else}}<p>Nothing was auto-handled.</p>{{end}}
  </div>
</div>

{{if .Recommends}}
<h2>Recommendations</h2>
{{range .Recommends}}<div class="rec">{{.}}</div>{{end}}
{{end}}

<h2>Log overview</h2>
<p>{{.EntryCount}} entries buffered ({{.ErrorCount}} errors, {{.WarnCount}} warnings), {{.CaptureCount}} state captures retained.</p>
</body>
</html>
`))
