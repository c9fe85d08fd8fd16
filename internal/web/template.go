package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/spi-handshake/internal/status"
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
	"timeout": func(ms int64) string {
		if ms <= 0 {
			return "unbounded"
		}
		return fmt.Sprintf("%dms", ms)
	},
	"clock": func(t time.Time) string {
		return t.UTC().Format("15:04:05.000")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>SPI Handshake</title>
<style>
body { font-family: monospace; max-width: 760px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; }
.transfer_failed, .sensor_failed { color: red; }
.wait_timeout { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>SPI Handshake <small>({{.Config.Role}})</small></h1>

<h2>Initiator</h2>
<table>
<tr><th>Transfers</th><td>{{.Initiator.Cycles}} ({{.Initiator.OK}} ok, {{.Initiator.TransferFailures}} failed)</td></tr>
<tr><th>Wait timeouts</th><td>{{.Initiator.WaitTimeouts}}</td></tr>
<tr><th>Truncations</th><td>{{.Initiator.Truncations}}</td></tr>
<tr><th>Last sent</th><td>{{.Initiator.LastSent}}</td></tr>
<tr><th>Last received</th><td>{{.Initiator.LastReceived}}</td></tr>
{{if .Initiator.LastError}}<tr><th>Last error</th><td class="transfer_failed">{{.Initiator.LastError}}</td></tr>{{end}}
</table>

{{if eq .Config.Role "both"}}
<h2>Responder</h2>
<table>
<tr><th>Transactions</th><td>{{.Responder.Cycles}} ({{.Responder.OK}} ok, {{.Responder.TransferFailures}} failed)</td></tr>
<tr><th>Sensor failures</th><td>{{.Responder.SensorFailures}}</td></tr>
<tr><th>Last measurement</th><td>{{.Responder.LastMeasurement}}</td></tr>
<tr><th>Last received</th><td>{{.Responder.LastReceived}}</td></tr>
{{if .Responder.LastError}}<tr><th>Last error</th><td class="transfer_failed">{{.Responder.LastError}}</td></tr>{{end}}
</table>
{{end}}

<h2>Ready Line</h2>
<table>
<tr><th>Edges accepted</th><td>{{.Debounce.Accepted}}</td></tr>
<tr><th>Edges discarded</th><td>{{.Debounce.Discarded}}</td></tr>
<tr><th>Gate pending</th><td>{{if .Gate.Pending}}yes{{else}}no{{end}}</td></tr>
<tr><th>Signals coalesced</th><td>{{.Gate.Coalesced}} of {{.Gate.Signals}}</td></tr>
{{if .Bus}}<tr><th>Bus exchanges</th><td>{{.Bus.Transfers}} ({{.Bus.ArmTimeouts}} arm timeouts)</td></tr>{{end}}
{{if eq .Config.Role "both"}}<tr><th>Line</th><td>{{if .Line.High}}high{{else}}low{{end}} ({{.Line.Raises}} raises, {{.Line.Lowers}} lowers)</td></tr>{{end}}
</table>

{{if .Recent}}
<h2>Recent Cycles</h2>
<table>
<tr><th>Time</th><th>Role</th><th>#</th><th>Outcome</th></tr>
{{range .Recent}}<tr><td>{{clock .Started}}</td><td>{{.Role}}</td><td>{{.Cycle}}</td><td class="{{.Outcome}}">{{.Outcome}}</td></tr>
{{end}}</table>
{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}none{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Pacing</th><td>{{.Config.PacingMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceUs}}us</td></tr>
<tr><th>Wait timeout</th><td>{{timeout .Config.WaitTimeoutMs}}</td></tr>
<tr><th>Arm timeout</th><td>{{timeout .Config.ArmTimeoutMs}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
