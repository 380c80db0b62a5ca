package handler

import (
	"fmt"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

var viewTemplate = template.Must(template.New("view").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>livehook · {{.EndpointID}}</title>
<style>
body { font-family: ui-monospace, monospace; margin: 2rem; }
pre { background: #f4f4f4; padding: 1rem; overflow-x: auto; }
</style>
</head>
<body>
<h1>{{.EndpointID}}</h1>
<p>Send requests to <code>/{{.EndpointID}}</code>. New ones appear below.</p>
<div id="requests"></div>
<script>
const list = document.getElementById("requests");
function show(req) {
  const pre = document.createElement("pre");
  pre.textContent = req.method + " " + req.url + "\n" + JSON.stringify(req, null, 2);
  list.prepend(pre);
}
fetch({{.ListURL}}).then(r => r.json()).then(p => p.requests.reverse().forEach(show));
const es = new EventSource({{.EventsURL}});
es.onmessage = e => show(JSON.parse(e.data));
</script>
</body>
</html>
`))

const usage = `livehook

Send any HTTP request to /<endpoint>/... to capture it.
  GET  /view/<endpoint>                 watch captured requests live
  GET  /events/<endpoint>               event stream (SSE or WebSocket)
  GET  /api/requests/<endpoint>         list captured requests (?page=&limit=)
  GET  /api/config/<endpoint>           show the synthetic response
  POST /api/config/<endpoint>           change it: {"status":201,"headers":{},"body":"","delay":0}

Per-request overrides: X-Response-Status, ?response-status=, X-Response-Delay (ms).
`

func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, usage)
}

// View serves a minimal live page for one endpoint.
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	endpointID := chi.URLParam(r, "endpointID")
	if !endpointIDPattern.MatchString(endpointID) {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := viewTemplate.Execute(w, map[string]string{
		"EndpointID": endpointID,
		"ListURL":    "/api/requests/" + endpointID,
		"EventsURL":  "/events/" + endpointID,
	})
	if err != nil {
		h.log.Warn("failed to render view", zap.String("endpoint", endpointID), zap.Error(err))
	}
}
