package app

import (
	"net/http"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/grafana/spyglass/modules/consumer"
	"github.com/grafana/spyglass/pkg/normalize"
	"github.com/grafana/spyglass/pkg/util"
)

const (
	PathTelemetry = "/api/telemetry"
	PathTraceByID = "/api/traces/{traceID}"
	PathMetrics   = "/metrics"
	PathReady     = "/ready"
	PathConfig    = "/config"

	muxVarTraceID = "traceID"

	HeaderRefreshInterval = "X-Refresh-Interval"

	headerContentType = "Content-Type"
	mimeTypeJSON      = "application/json"
)

// telemetrySource is the part of the consumer served over HTTP.
type telemetrySource interface {
	TriggerStart()
	Snapshot() consumer.Snapshot
	Trace(id string) []normalize.Span
}

// TraceResponse is the body of a trace lookup.
type TraceResponse struct {
	TraceID string           `json:"traceId"`
	Spans   []normalize.Span `json:"spans"`
}

type handlers struct {
	cfg     Config
	source  telemetrySource
	logger  log.Logger
	refresh string
}

func newRouter(cfg Config, source telemetrySource, gatherer prometheus.Gatherer, logger log.Logger) *mux.Router {
	h := &handlers{
		cfg:    cfg,
		source: source,
		logger: logger,
		// milliseconds, as used by the polling client
		refresh: strconv.FormatInt(cfg.Server.RefreshInterval.Milliseconds(), 10),
	}

	r := mux.NewRouter()
	r.Use(httpGzipMiddleware)

	r.Path(PathTelemetry).Methods(http.MethodGet).HandlerFunc(h.telemetryHandler)
	r.Path(PathTraceByID).Methods(http.MethodGet).HandlerFunc(h.traceByIDHandler)
	r.Path(PathMetrics).Handler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Path(PathReady).HandlerFunc(h.readyHandler)
	r.Path(PathConfig).HandlerFunc(h.configHandler)

	return r
}

func httpGzipMiddleware(handler http.Handler) http.Handler {
	return gzhttp.GzipHandler(handler)
}

// telemetryHandler serves the cached data. A stopped consumer is started in
// the background and the request is answered right away with what is cached;
// the response is always a 200.
func (h *handlers) telemetryHandler(w http.ResponseWriter, _ *http.Request) {
	h.source.TriggerStart()
	h.writeJSON(w, http.StatusOK, h.source.Snapshot())
}

func (h *handlers) traceByIDHandler(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)[muxVarTraceID]

	traceID := util.NormalizeID(raw)
	if traceID == "" {
		http.Error(w, "invalid trace id "+strconv.Quote(raw), http.StatusBadRequest)
		return
	}

	spans := h.source.Trace(traceID)
	if len(spans) == 0 {
		http.Error(w, "trace not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, TraceResponse{TraceID: traceID, Spans: spans})
}

func (h *handlers) readyHandler(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "ready", http.StatusOK)
}

func (h *handlers) configHandler(w http.ResponseWriter, _ *http.Request) {
	out, err := yaml.Marshal(h.cfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set(headerContentType, "text/yaml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out); err != nil {
		level.Error(h.logger).Log("msg", "error writing response", "err", err)
	}
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
	if err != nil {
		level.Error(h.logger).Log("msg", "error encoding response", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set(headerContentType, mimeTypeJSON)
	w.Header().Set(HeaderRefreshInterval, h.refresh)
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		level.Error(h.logger).Log("msg", "error writing response", "err", err)
	}
}
