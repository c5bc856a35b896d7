package handlers

import (
	"log/slog"
	"net/http"

	"github.com/hongminglow/cdms-be/internal/http/respond"
	"github.com/hongminglow/cdms-be/internal/models"
	"github.com/hongminglow/cdms-be/internal/models/dto"
	"github.com/hongminglow/cdms-be/internal/storage"
	"github.com/hongminglow/cdms-be/internal/validation"
)

// AnnotationStore persists comments and tags.
type AnnotationStore interface {
	storage.CommentStore
	storage.TagStore
}

// AnnotationHandler manages comments and tags attached to sites, patients or alerts.
type AnnotationHandler struct {
	store    AnnotationStore
	validate *validation.Validator
	logger   *slog.Logger
}

func NewAnnotationHandler(store AnnotationStore, v *validation.Validator, logger *slog.Logger) *AnnotationHandler {
	return &AnnotationHandler{store: store, validate: v, logger: logger}
}

// Register attaches the protected comment and tag routes.
func (h *AnnotationHandler) Register(mux *http.ServeMux, protect Middleware) {
	mux.Handle("POST /api/comments", protect(http.HandlerFunc(h.handleCreateComment)))
	mux.Handle("GET /api/comments/{entity_type}/{entity_id}", protect(http.HandlerFunc(h.handleListComments)))
	mux.Handle("POST /api/tags", protect(http.HandlerFunc(h.handleCreateTag)))
	mux.Handle("GET /api/tags/{entity_type}/{entity_id}", protect(http.HandlerFunc(h.handleListTags)))
}

func (h *AnnotationHandler) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var req dto.CommentCreateRequest
	if !decode(w, r, h.validate, &req) {
		return
	}
	comment, err := h.store.CreateComment(r.Context(), models.Comment{
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		CommentText: req.CommentText,
		CreatedBy:   caller(r).ID,
	})
	if err != nil {
		h.logger.Error("create comment failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to create comment")
		return
	}
	respond.JSON(w, http.StatusOK, "comment created", comment)
}

func (h *AnnotationHandler) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.store.ListComments(r.Context(), r.PathValue("entity_type"), r.PathValue("entity_id"))
	if err != nil {
		h.logger.Error("list comments failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to list comments")
		return
	}
	respond.JSON(w, http.StatusOK, "ok", nonNil(comments))
}

func (h *AnnotationHandler) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var req dto.TagCreateRequest
	if !decode(w, r, h.validate, &req) {
		return
	}
	tag, err := h.store.CreateTag(r.Context(), models.Tag{
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		TagName:    req.TagName,
		CreatedBy:  caller(r).ID,
	})
	if err != nil {
		h.logger.Error("create tag failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to create tag")
		return
	}
	respond.JSON(w, http.StatusOK, "tag created", tag)
}

func (h *AnnotationHandler) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.store.ListTags(r.Context(), r.PathValue("entity_type"), r.PathValue("entity_id"))
	if err != nil {
		h.logger.Error("list tags failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to list tags")
		return
	}
	respond.JSON(w, http.StatusOK, "ok", nonNil(tags))
}
