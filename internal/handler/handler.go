// Package handler exposes the HTTP surface: endpoint ingestion, the live
// event stream and the management API.
package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/PipeOpsHQ/livehook/internal/capture"
	"github.com/PipeOpsHQ/livehook/internal/hub"
	"github.com/PipeOpsHQ/livehook/internal/metrics"
	"github.com/PipeOpsHQ/livehook/internal/netx"
	"github.com/PipeOpsHQ/livehook/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // viewers are public, same as the SSE stream
	},
}

type Options struct {
	Store    store.Store
	Hub      *hub.Hub
	Pipeline *capture.Pipeline
	IPs      netx.IPResolver
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	MaxBodyBytes int64
	DefaultLimit int
	MaxLimit     int
	// PublicURL is the base replays are sent to. Replay is disabled when it
	// is empty.
	PublicURL string
}

type Handler struct {
	Store    store.Store
	Hub      *hub.Hub
	Pipeline *capture.Pipeline

	ips          netx.IPResolver
	log          *zap.Logger
	metrics      *metrics.Metrics
	gatherer     prometheus.Gatherer
	maxBodyBytes int64
	defaultLimit int
	maxLimit     int
	publicURL    string
	replayClient *http.Client
}

func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.DefaultLimit < 1 {
		opts.DefaultLimit = 10
	}
	if opts.MaxLimit < opts.DefaultLimit {
		opts.MaxLimit = opts.DefaultLimit
	}
	return &Handler{
		Store:        opts.Store,
		Hub:          opts.Hub,
		Pipeline:     opts.Pipeline,
		ips:          opts.IPs,
		log:          opts.Logger,
		metrics:      opts.Metrics,
		gatherer:     opts.Gatherer,
		maxBodyBytes: opts.MaxBodyBytes,
		defaultLimit: opts.DefaultLimit,
		maxLimit:     opts.MaxLimit,
		publicURL:    strings.TrimRight(opts.PublicURL, "/"),
		replayClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Routes builds the router. Everything that is not a reserved route is
// ingestion.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.recoverer)
	r.Use(h.accessLog)
	r.Use(h.instrument)

	r.Get("/", h.Home)
	r.Get("/view/{endpointID}", h.View)

	r.Route("/events", func(r chi.Router) {
		r.Use(cors)
		r.Get("/{endpointID}", h.Events)
		r.NotFound(notFound)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(cors)
		r.Get("/health", h.Health)
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

		r.Route("/requests/{id}", func(r chi.Router) {
			r.Get("/", h.ListRequests)
			r.Delete("/", h.DeleteRequest)
			r.Get("/{requestID}", h.GetRequest)
			r.Post("/replay", h.ReplayRequest)
		})

		r.Get("/config/{endpointID}", h.GetConfig)
		r.Post("/config/{endpointID}", h.SaveConfig)

		r.NotFound(notFound)
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		})
	})

	r.HandleFunc("/*", h.CaptureWebhook)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
}
