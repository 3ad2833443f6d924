package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/opsalert/internal/config"
	"github.com/gyaneshwarpardhi/opsalert/internal/dispatch"
	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/metrics"
	"github.com/gyaneshwarpardhi/opsalert/internal/routing"
	"github.com/gyaneshwarpardhi/opsalert/internal/store"
)

const (
	maxBodyBytes      = 1 << 20
	defaultListLimit  = 50
	overloadThreshold = 0.8
)

// Dispatcher is the part of *dispatch.Dispatcher the API drives.
type Dispatcher interface {
	Fire(a event.Alert) (dispatch.Receipt, error)
	ListDeadLetters(ctx context.Context, limit int) ([]store.DeadLetter, error)
	Replay(ctx context.Context, id string) (dispatch.Receipt, error)
}

// Options wires the handler. Loader, Hub and Utilization are optional.
type Options struct {
	Dispatcher  Dispatcher
	Router      *routing.Router
	Loader      *config.Loader
	Hub         http.Handler
	Utilization func() map[string]float64
	Logger      *slog.Logger
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	opts   Options
	logger *slog.Logger
	mux    *http.ServeMux
}

// FireRequest is the body of POST /v1/alerts/{type}. Data holds the
// variant's own fields; Meta may pin the id, time or initiator.
type FireRequest struct {
	Meta event.Meta      `json:"meta"`
	Data json.RawMessage `json:"data"`
}

// New creates an HTTP handler and registers all routes.
func New(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &Handler{opts: opts, logger: opts.Logger, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/alerts/{type}", h.fireAlert)
	h.mux.HandleFunc("GET /v1/alerts/types", h.listTypes)
	h.mux.HandleFunc("GET /v1/routing", h.listRouting)
	h.mux.HandleFunc("POST /v1/routing/reload", h.reloadRouting)
	h.mux.HandleFunc("GET /v1/dead-letters", h.listDeadLetters)
	h.mux.HandleFunc("POST /v1/dead-letters/{id}/replay", h.replayDeadLetter)
	if opts.Hub != nil {
		h.mux.Handle("GET /v1/broadcast/ws", opts.Hub)
	}
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.logger, h.mux)
}

// POST /v1/alerts/{type}: validate, classify and queue one alert.
func (h *Handler) fireAlert(w http.ResponseWriter, r *http.Request) {
	typ := r.PathValue("type")
	if !event.Known(typ) {
		metrics.AlertsRejected.WithLabelValues("unknown_type").Inc()
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("unknown alert type %q", typ))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %s", err))
		return
	}
	var req FireRequest
	if err := json.Unmarshal(body, &req); err != nil {
		metrics.AlertsRejected.WithLabelValues("invalid_json").Inc()
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid JSON: %s", err))
		return
	}

	a, err := event.Decode(typ, req.Data, req.Meta)
	if err != nil {
		var verr *event.ValidationError
		switch {
		case errors.As(err, &verr):
			metrics.AlertsRejected.WithLabelValues("validation").Inc()
			writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Error: verr.Error(), Problems: verr.Problems})
		case errors.Is(err, event.ErrUnknownType):
			metrics.AlertsRejected.WithLabelValues("unknown_type").Inc()
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			metrics.AlertsRejected.WithLabelValues("classification").Inc()
			h.logger.Error("alert could not be built", "event_type", typ, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	receipt, err := h.opts.Dispatcher.Fire(a)
	if err != nil {
		h.logger.Error("alert dispatch failed", "event_type", typ, "event_id", a.ID(), "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// GET /v1/alerts/types: the registered alert types and their categories.
func (h *Handler) listTypes(w http.ResponseWriter, r *http.Request) {
	types := event.Types()
	out := make([]typeInfo, 0, len(types))
	for _, t := range types {
		c, _ := event.CategoryOf(t)
		out = append(out, typeInfo{Type: t, Category: string(c)})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"types": out})
}

// GET /v1/routing: the active recipient rule table.
func (h *Handler) listRouting(w http.ResponseWriter, r *http.Request) {
	rc := h.opts.Router.Rules()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"nodes":     h.opts.Router.Graph().NodeCount(),
		"scenarios": rc.Scenarios,
	})
}

// POST /v1/routing/reload: re-read the config file and swap the rule table.
func (h *Handler) reloadRouting(w http.ResponseWriter, r *http.Request) {
	if h.opts.Loader == nil {
		writeError(w, http.StatusConflict, "no config file loaded")
		return
	}
	cfg, err := h.opts.Loader.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.opts.Router.Swap(cfg.Routing); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded":        true,
		"scenarios_count": len(cfg.Routing.Scenarios),
		"nodes":           h.opts.Router.Graph().NodeCount(),
	})
}

// GET /v1/dead-letters?limit=N: most recent failures first.
func (h *Handler) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", s))
			return
		}
		limit = n
	}
	dls, err := h.opts.Dispatcher.ListDeadLetters(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"dead_letters": dls,
		"count":        len(dls),
	})
}

// POST /v1/dead-letters/{id}/replay: queue a dead letter again.
func (h *Handler) replayDeadLetter(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	receipt, err := h.opts.Dispatcher.Replay(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("dead letter %q not found", id))
	case errors.Is(err, event.ErrValidation), errors.Is(err, event.ErrUnknownType):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		h.logger.Error("dead letter replay failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, receipt)
	}
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if any queue is more than 80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := map[string]float64{}
	if h.opts.Utilization != nil {
		util = h.opts.Utilization()
	}
	status, code := "ready", http.StatusOK
	for q, u := range util {
		metrics.QueueUtilization.WithLabelValues(q).Set(u)
		if u > overloadThreshold {
			status, code = "overloaded", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]interface{}{
		"status":            status,
		"queue_utilization": util,
	})
}
