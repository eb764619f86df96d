package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/pet-feeder/internal/logic"
	"github.com/sweeney/pet-feeder/internal/mqtt"
	"github.com/sweeney/pet-feeder/internal/status"
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
	"grams": func(v float64) string {
		return fmt.Sprintf("%.1fg", v)
	},
	"clock": logic.FormatClock,
	"local": func(t time.Time) string {
		return t.Format("Mon 15:04 MST")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Pet Feeder</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
pre.lcd { background: #1d3b1d; color: #9f9; padding: 6px 10px; display: inline-block; }
.busy { color: orange; font-weight: bold; }
.idle { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Pet Feeder{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<pre class="lcd">{{printf "%-16s" .Display.Line1}}
{{printf "%-16s" .Display.Line2}}</pre>

<h2>Food</h2>
<table>
<tr><th>Phase</th><td id="feed-phase" class="{{if eq .Feeder.Phase "IDLE"}}idle{{else}}busy{{end}}">{{.Feeder.Phase}}</td></tr>
{{if .Feeder.SessionID}}<tr><th>Dispensed</th><td>{{grams .Feeder.Dispensed}} of {{grams .Feeder.Target}}{{if .Feeder.Retries}} ({{.Feeder.Retries}} retries){{end}}</td></tr>{{end}}
<tr><th>Target</th><td>{{grams .Config.TargetGrams}}</td></tr>
<tr><th>Last feeding</th><td id="feed-last">{{with .Feeder.Last}}{{.Terminal}} {{grams .DispensedGrams}} ({{printf "%.1f" .AccuracyPct}}%, {{.Band}}){{else}}none{{end}}</td></tr>
<tr><th>Feedings</th><td>{{.Feeder.Feedings}}</td></tr>
</table>
<form method="post" action="/api/feed"><button type="submit">Feed now</button></form>

<h2>Water</h2>
<table>
<tr><th>State</th><td id="water-state">{{.Water.State}}</td></tr>
<tr><th>Level</th><td id="water-level">{{with .Water.Last}}{{if eq .Status "sensor_error"}}sensor error{{else}}{{printf "%.0f" .LevelPct}}% ({{printf "%.1f" .DistanceCm}}cm){{end}}{{else}}unknown{{end}}</td></tr>
<tr><th>Refills</th><td>{{.Water.Refills}}</td></tr>
<tr><th>Sensor errors</th><td>{{.Water.SensorErrors}}</td></tr>
</table>

<h2>Schedule</h2>
<table>
{{range .Schedule.Entries}}<tr><th>{{clock .Minute}}</th><td>{{if .Enabled}}enabled{{else}}disabled{{end}}</td></tr>
{{else}}<tr><th>Times</th><td>none</td></tr>
{{end}}<tr><th>Next feeding</th><td>{{if .Schedule.HasNext}}{{local .Schedule.Next}}{{else}}none{{end}}</td></tr>
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
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Time zone</th><td>{{.Config.TimeZone}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
{{if .Config.WSBroker}}
<script src="/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "{{.EventsTopic}}";
  var dot = document.getElementById("live-dot");
  var phaseEl = document.getElementById("feed-phase");
  var lastEl = document.getElementById("feed-last");
  var stateEl = document.getElementById("water-state");
  var levelEl = document.getElementById("water-level");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
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
      var msg = JSON.parse(payload.toString()).feeder;
      if (!msg) return;
      if (msg.event === "feeding_start") {
        phaseEl.textContent = "FEEDING";
        phaseEl.className = "busy";
      } else if (msg.feeding) {
        phaseEl.textContent = "IDLE";
        phaseEl.className = "idle";
        lastEl.textContent = msg.feeding.result + " " + msg.feeding.dispensed_g.toFixed(1) + "g (" +
          msg.feeding.accuracy_pct.toFixed(1) + "%, " + msg.feeding.band + ")";
      } else if (msg.water) {
        stateEl.textContent = msg.water.state;
        levelEl.textContent = msg.water.status === "sensor_error" ? "sensor error" :
          msg.water.level_pct.toFixed(0) + "% (" + (msg.water.distance_cm || 0).toFixed(1) + "cm)";
      }
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime      time.Duration
		EventsTopic string
	}{
		Snapshot:    snap,
		Uptime:      snap.Uptime(),
		EventsTopic: mqtt.TopicEvents,
	}
	indexTmpl.Execute(w, data)
}
