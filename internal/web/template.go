package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/sweeney/dust-controller/internal/status"
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
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"stateClass": func(s string) string {
		switch s {
		case "ON", "OPEN":
			return "on"
		case "SPINDOWN":
			return "spindown"
		case "OFF", "CLOSED":
			return "off"
		}
		return "unknown"
	},
	"join": strings.Join,
	"since": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Dust Controller</title>
<style>
body { font-family: monospace; max-width: 800px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.on { color: green; font-weight: bold; }
.spindown { color: #b60; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.pending { color: red; }
button { font-family: monospace; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Dust Controller{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Tools</h2>
<table>
<tr><th>Tool</th><th>Status</th><th>Button</th><th>Sensor</th><th>Gates</th><th>Uses</th><th></th></tr>
{{range .Tools}}<tr>
<td>{{.Label}}</td>
<td id="tool-{{.ID}}" class="{{stateClass (stateOrUnknown (printf "%s" .Status))}}">{{stateOrUnknown (printf "%s" .Status)}}</td>
<td>{{if .Override}}on{{else}}off{{end}}</td>
<td>{{.Sensor}}{{with .SensorInfo}}{{if .Unavailable}} <span class="pending" title="{{.Failure}}">unavailable</span>{{else if .Calibrated}} ({{.Strategy}} {{printf "%.3f" .Low}}..{{printf "%.3f" .High}}V){{else}} calibrating{{end}}{{end}}</td>
<td>{{join .Gates ", "}}</td>
<td>{{join .Collectors ", "}}</td>
<td><form method="post" action="/tools/{{.ID}}/toggle"><button>toggle</button></form>{{if .SensorInfo}}<form method="post" action="/tools/{{.ID}}/calibrate"><button>recalibrate</button></form>{{end}}</td>
</tr>{{end}}
</table>

<h2>Gates</h2>
<table>
<tr><th>Gate</th><th>Position</th><th></th></tr>
{{range .Gates}}<tr>
<td>{{.Label}}</td>
<td id="gate-{{.ID}}" class="{{stateClass (printf "%s" .Position)}}">{{.Position}}{{if .Pending}} <span class="pending">retrying</span>{{end}}{{if .Identifying}} identifying{{end}}</td>
<td><form method="post" action="/gates/{{.ID}}/identify"><button>identify</button></form></td>
</tr>{{end}}
</table>

<h2>Collectors</h2>
<table>
<tr><th>Collector</th><th>State</th><th>Last on</th></tr>
{{range .Collectors}}<tr>
<td>{{.Label}}</td>
<td id="collector-{{.ID}}" class="{{stateClass (printf "%s" .State)}}">{{.State}}{{if .Pending}} (holding){{end}}</td>
<td>{{since .LastTurnedOn}}</td>
</tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}calibrating{{end}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Instance</th><td>{{.InstanceID}}</td></tr>
<tr><th>Config</th><td>{{.Config.ConfigPath}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
{{if .Config.WSBroker}}
<script src="/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var prefix = "{{.Config.TopicPrefix}}";
  var dot = document.getElementById("live-dot");
  var classes = { ON: "on", OPEN: "on", SPINDOWN: "spindown", OFF: "off", CLOSED: "off" };

  function setState(id, state) {
    var el = document.getElementById(id);
    if (!el) return;
    el.textContent = state;
    el.className = classes[state] || "unknown";
  }

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe([prefix + "/events", prefix + "/actuators"]);
  });

  client.on("reconnect", function() {
    setDot("pending", "reconnecting");
  });

  client.on("offline", function() {
    setDot("err", "offline");
  });

  client.on("error", function() {
    setDot("err", "error");
  });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (msg.tool) {
        setState("tool-" + msg.tool.id, msg.tool.to);
      }
      if (msg.actuator) {
        setState(msg.actuator.kind + "-" + msg.actuator.id, msg.actuator.state);
      }
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
