package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hongminglow/cdms-be/internal/http/respond"
	"github.com/hongminglow/cdms-be/internal/models"
	"github.com/hongminglow/cdms-be/internal/models/dto"
	"github.com/hongminglow/cdms-be/internal/storage"
	"github.com/hongminglow/cdms-be/internal/validation"
)

// AlertHandler manages risk alerts.
type AlertHandler struct {
	store    storage.AlertStore
	validate *validation.Validator
	logger   *slog.Logger
}

// NewAlertHandler constructs the handler.
func NewAlertHandler(store storage.AlertStore, v *validation.Validator, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{store: store, validate: v, logger: logger}
}

// Register attaches the protected alert routes.
func (h *AlertHandler) Register(mux *http.ServeMux, protect Middleware) {
	mux.Handle("POST /api/alerts", protect(http.HandlerFunc(h.handleCreate)))
	mux.Handle("GET /api/alerts", protect(http.HandlerFunc(h.handleList)))
	mux.Handle("PATCH /api/alerts/{id}/status", protect(http.HandlerFunc(h.handleStatus)))
}

func (h *AlertHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req dto.AlertCreateRequest
	if !decode(w, r, h.validate, &req) {
		return
	}
	alert, err := h.store.CreateAlert(r.Context(), models.Alert{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		SiteID:      req.SiteID,
		PatientID:   req.PatientID,
		AlertType:   req.AlertType,
		Status:      models.AlertOpen,
		CreatedBy:   caller(r).ID,
	})
	if err != nil {
		h.logger.Error("create alert failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to create alert")
		return
	}
	respond.JSON(w, http.StatusOK, "alert created", alert)
}

func (h *AlertHandler) handleList(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.store.ListAlerts(r.Context(), strings.TrimSpace(r.URL.Query().Get("status")))
	if err != nil {
		h.logger.Error("list alerts failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	respond.JSON(w, http.StatusOK, "ok", nonNil(alerts))
}

func (h *AlertHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status == "" {
		respond.Error(w, http.StatusBadRequest, "status is required")
		return
	}
	id := r.PathValue("id")
	if err := h.store.UpdateAlertStatus(r.Context(), id, status); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "Alert not found")
			return
		}
		h.logger.Error("update alert failed", "alert_id", id, "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to update alert")
		return
	}
	respond.JSON(w, http.StatusOK, "Alert status updated", nil)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
