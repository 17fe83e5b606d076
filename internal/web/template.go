package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/beatmon/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Beat Monitor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.fault { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Beat Monitor</h1>

<h2>Liveness</h2>
<table>
<tr><th>Status</th><td class="{{if eq .Status.String "OK"}}ok{{else}}fault{{end}}">{{.Status}}</td></tr>
{{if .FaultKind}}<tr><th>Fault</th><td>{{.FaultKind}}{{if .FaultDetail}}: {{.FaultDetail}}{{end}}</td></tr>{{end}}
<tr><th>Armed</th><td>{{if .Armed}}yes{{else}}no{{end}}</td></tr>
<tr><th>Last change</th><td>{{if .LastChangeAt.IsZero}}never{{else}}{{.LastChangeAt.UTC.Format "2006-01-02T15:04:05Z"}}{{end}}</td></tr>
</table>

<h2>Beat Counts</h2>
<table>
<tr><th>Observed</th><td>{{.Counts.Observed}}</td></tr>
<tr><th>Accepted</th><td>{{.Counts.Accepted}}</td></tr>
<tr><th>Timeouts</th><td>{{.Counts.Timeouts}}</td></tr>
<tr><th>Window misses</th><td>{{.Counts.Windows}}</td></tr>
<tr><th>Out of order</th><td>{{.Counts.OutOfOrder}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Transport</th><td>{{.Config.Transport}}{{if .Config.Endpoint}} ({{.Config.Endpoint}}){{end}}</td></tr>
{{if .Config.Broker}}<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>{{else}}<tr><th>MQTT</th><td>disabled</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Instance</th><td>{{.InstanceID}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Period</th><td>{{.Config.PeriodMs}}ms</td></tr>
<tr><th>Window</th><td>-{{.Config.ToleranceLowMs}}ms / +{{.Config.ToleranceHighMs}}ms</td></tr>
<tr><th>Max silence</th><td>{{.Config.MaxSilenceMs}}ms</td></tr>
<tr><th>Ordered</th><td>{{if .Config.Ordered}}yes{{else}}no{{end}}</td></tr>
<tr><th>Min beats</th><td>{{.Config.MinBeats}}</td></tr>
<tr><th>Warmup</th><td>{{.Config.WarmupMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but the template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
