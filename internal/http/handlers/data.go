package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hongminglow/cdms-be/internal/analytics"
	"github.com/hongminglow/cdms-be/internal/http/respond"
	"github.com/hongminglow/cdms-be/internal/middleware"
	"github.com/hongminglow/cdms-be/internal/models"
)

const msgAnalyticsOff = "Supabase not configured"

// TableResponse is the payload of a table read.
type TableResponse struct {
	Data    []analytics.Record `json:"data"`
	Count   int                `json:"count"`
	Partial bool               `json:"partial"`
}

// DataHandler serves analytics tables through the cached gateway.
type DataHandler struct {
	gateway *analytics.Gateway
	logger  *slog.Logger
}

// NewDataHandler builds the handler; a nil gateway answers 503.
func NewDataHandler(gateway *analytics.Gateway, logger *slog.Logger) *DataHandler {
	return &DataHandler{gateway: gateway, logger: logger}
}

// Register attaches the protected data routes. Clearing the cache is limited
// to admins.
func (h *DataHandler) Register(mux *http.ServeMux, protect Middleware) {
	adminOnly := middleware.RequireRole(h.logger, models.RoleAdmin)
	mux.Handle("GET /api/data/high-risk-sites", protect(h.table(analytics.TableHighRiskSites)))
	mux.Handle("GET /api/data/patient-level", protect(h.table(analytics.TablePatients)))
	mux.Handle("GET /api/data/site-level", protect(h.table(analytics.TableSites)))
	mux.Handle("GET /api/data/dashboard-stats", protect(http.HandlerFunc(h.handleDashboard)))
	mux.Handle("POST /api/data/cache/clear", protect(adminOnly(http.HandlerFunc(h.handleClear))))
}

func (h *DataHandler) table(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.gateway == nil {
			respond.Error(w, http.StatusServiceUnavailable, msgAnalyticsOff)
			return
		}
		rows, complete := h.gateway.Table(r.Context(), name, !refresh(r))
		if !complete {
			h.logger.Warn("serving partial table", "table", name, "rows", len(rows))
		}
		respond.JSON(w, http.StatusOK, "ok", TableResponse{Data: rows, Count: len(rows), Partial: !complete})
	})
}

func (h *DataHandler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil {
		respond.Error(w, http.StatusServiceUnavailable, msgAnalyticsOff)
		return
	}
	stats, err := h.gateway.DashboardStats(r.Context(), !refresh(r))
	if err != nil {
		h.logger.Error("dashboard stats failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to calculate dashboard stats")
		return
	}
	respond.JSON(w, http.StatusOK, "ok", stats)
}

func (h *DataHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	cleared := 0
	if h.gateway != nil {
		cleared = h.gateway.ClearCache()
	}
	h.logger.Info("cache cleared by operator", "user_id", caller(r).ID, "entries", cleared)
	respond.JSON(w, http.StatusOK, "cache cleared", map[string]int{"cleared": cleared})
}

// refresh reports whether the caller asked to bypass the cache.
func refresh(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("refresh"))
	return err == nil && v
}
