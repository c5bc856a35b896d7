package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/hongminglow/cdms-be/internal/http/respond"
)

// APIVersion is reported by the root endpoint.
const APIVersion = "1.0.0"

// Pinger reports whether the document store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus describes the configured dependencies.
type HealthStatus struct {
	Database  Pinger
	Analytics bool
	AI        bool
}

// HealthHandler returns uptime and dependency status.
type HealthHandler struct {
	startedAt time.Time
	status    HealthStatus
}

// NewHealthHandler creates a health endpoint handler.
func NewHealthHandler(startedAt time.Time, status HealthStatus) *HealthHandler {
	return &HealthHandler{startedAt: startedAt, status: status}
}

// Register wires the handler into a ServeMux.
func (h *HealthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/{$}", h.handleRoot)
	mux.HandleFunc("GET /api/health", h.handleHealth)
}

func (h *HealthHandler) handleRoot(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, "ok", map[string]string{
		"message": "Clinical Data Monitoring System API",
		"version": APIVersion,
	})
}

func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	database := "connected"
	status := "healthy"
	if h.status.Database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.status.Database.Ping(ctx); err != nil {
			database = "unreachable"
			status = "degraded"
		}
	}

	respond.JSON(w, http.StatusOK, "ok", map[string]string{
		"status":     status,
		"database":   database,
		"supabase":   configured(h.status.Analytics, "connected"),
		"ai_service": configured(h.status.AI, "configured"),
		"uptime":     time.Since(h.startedAt).Truncate(time.Second).String(),
	})
}

func configured(ok bool, label string) string {
	if ok {
		return label
	}
	return "not_configured"
}
