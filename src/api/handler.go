package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/zvdy/emrfleet/src/dispatch"
	"github.com/zvdy/emrfleet/src/models"
	"github.com/zvdy/emrfleet/src/reconcile"
)

const defaultOperationsLimit = 50

// Fleet is the service behind the handler.
type Fleet interface {
	ListClusters(ctx context.Context) ([]models.MergedClusterRecord, error)
	GetCluster(ctx context.Context, name string) (models.MergedClusterRecord, error)
	Stats(ctx context.Context) (models.FleetStats, error)
	StartCluster(ctx context.Context, name string) (json.RawMessage, error)
	TerminateCluster(ctx context.Context, name string) (json.RawMessage, error)
	RecentOperations(ctx context.Context, limit int) ([]models.Operation, error)
	Ready(ctx context.Context) error
}

// Handler handles API requests
type Handler struct {
	fleet Fleet
	log   *logrus.Logger
}

// NewHandler creates a new API handler
func NewHandler(fleet Fleet, log *logrus.Logger) *Handler {
	return &Handler{
		fleet: fleet,
		log:   log,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Health check
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/ready", h.ReadinessCheck).Methods("GET")

	// Fleet stats. The legacy path shadows a cluster named "stats", which
	// stays reachable under /api/v1/clusters.
	r.HandleFunc("/clusters/stats", h.GetStats).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/v1/stats", h.GetStats).Methods("GET", "OPTIONS")

	// Cluster endpoints, served at the legacy paths and under /api/v1
	for _, base := range []string{"/clusters", "/api/v1/clusters"} {
		r.HandleFunc(base, h.ListClusters).Methods("GET", "OPTIONS")
		r.HandleFunc(base+"/{name}", h.GetCluster).Methods("GET", "OPTIONS")
		r.HandleFunc(base+"/{name}/start", h.StartCluster).Methods("POST", "OPTIONS")
		r.HandleFunc(base+"/{name}/terminate", h.TerminateCluster).Methods("POST", "OPTIONS")
	}

	// Operation journal
	r.HandleFunc("/api/v1/operations", h.ListOperations).Methods("GET", "OPTIONS")
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "ok",
	}
	h.respondJSON(w, http.StatusOK, response)
}

// ReadinessCheck checks if the configuration registry answers
func (h *Handler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.fleet.Ready(r.Context()); err != nil {
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ListClusters returns the merged view of every cluster, optionally filtered
// by a search term (q, fields), a state and active=true.
func (h *Handler) ListClusters(w http.ResponseWriter, r *http.Request) {
	clusters, err := h.fleet.ListClusters(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	query := r.URL.Query()
	clusters = reconcile.Filter(clusters, query.Get("q"), splitFields(query.Get("fields")))
	clusters = reconcile.FilterByState(clusters, query.Get("state"))
	if active, _ := strconv.ParseBool(query.Get("active")); active {
		clusters = reconcile.FilterActive(clusters)
	}

	h.respondJSON(w, http.StatusOK, clusters)
}

// GetStats returns cluster counts per state
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.fleet.Stats(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, stats)
}

// GetCluster returns the merged view of a single cluster
func (h *Handler) GetCluster(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	cluster, err := h.fleet.GetCluster(r.Context(), name)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, cluster)
}

// StartCluster dispatches a create command
func (h *Handler) StartCluster(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	payload, err := h.fleet.StartCluster(r.Context(), name)
	h.respondCommand(w, r, name, payload, err)
}

// TerminateCluster dispatches an immediate terminate command
func (h *Handler) TerminateCluster(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	payload, err := h.fleet.TerminateCluster(r.Context(), name)
	h.respondCommand(w, r, name, payload, err)
}

// ListOperations returns recent lifecycle commands, newest first
func (h *Handler) ListOperations(w http.ResponseWriter, r *http.Request) {
	limit := defaultOperationsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	ops, err := h.fleet.RecentOperations(r.Context(), limit)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, ops)
}

// respondCommand writes the executor payload verbatim on success.
func (h *Handler) respondCommand(w http.ResponseWriter, r *http.Request, name string, payload json.RawMessage, err error) {
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.entry(r).WithField("cluster", name).Info("Command dispatched")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		h.log.Errorf("Failed to write response: %v", err)
	}
}

// respondServiceError maps service errors onto status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *dispatch.DispatchError
	switch {
	case errors.Is(err, models.ErrClusterNotFound):
		h.respondError(w, http.StatusNotFound, fmt.Sprintf("Cluster %s not found", mux.Vars(r)["name"]))
	case errors.As(err, &de):
		h.entry(r).WithFields(logrus.Fields{
			"cluster": de.Cluster,
			"action":  de.Action,
		}).Errorf("Dispatch failed: %v", err)
		h.respondJSON(w, http.StatusBadGateway, dispatchErrorBody(de))
	case errors.Is(err, models.ErrUpstreamUnavailable):
		h.entry(r).Warnf("Upstream unavailable: %v", err)
		h.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.entry(r).Errorf("Request failed: %v", err)
		h.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func dispatchErrorBody(de *dispatch.DispatchError) map[string]interface{} {
	body := map[string]interface{}{"error": de.Error()}
	if len(de.Payload) > 0 {
		if json.Valid(de.Payload) {
			body["payload"] = json.RawMessage(de.Payload)
		} else {
			body["payload"] = string(de.Payload)
		}
	}
	return body
}

func (h *Handler) entry(r *http.Request) *logrus.Entry {
	return h.log.WithField("request_id", RequestIDFromContext(r.Context()))
}

func splitFields(raw string) []string {
	if raw == "" {
		return nil
	}
	var fields []string
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// respondJSON sends a JSON response
func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError sends an error response
func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]string{
		"error": message,
	}
	h.respondJSON(w, statusCode, response)
}
