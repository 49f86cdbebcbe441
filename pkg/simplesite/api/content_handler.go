package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-site/pkg/simplesite"
)

func (h *AdminHandler) contentRoutes(r chi.Router) {
	r.Route("/content-block-types", func(r chi.Router) {
		r.Get("/", h.ListContentBlockTypes)
		r.Post("/", h.CreateContentBlockType)
		r.Get("/{id}", h.GetContentBlockType)
		r.Put("/{id}", h.UpdateContentBlockType)
		r.Delete("/{id}", h.DeleteContentBlockType)
	})
	r.Route("/content-blocks", func(r chi.Router) {
		r.Get("/", h.ListContentBlocks)
		r.Post("/", h.CreateContentBlock)
		r.Get("/{id}", h.GetContentBlock)
		r.Put("/{id}", h.UpdateContentBlock)
		r.Delete("/{id}", h.DeleteContentBlock)
		r.Get("/{id}/check", h.CheckContentBlock)
		r.Get("/{id}/preview", h.PreviewContentBlock)
	})
}

// ContentBlockTypeRequest is the body for creating or updating a block type
type ContentBlockTypeRequest struct {
	Name   string                  `json:"name"`
	Fields []simplesite.FieldInput `json:"fields"`
}

func (req ContentBlockTypeRequest) toService() simplesite.SaveContentBlockTypeRequest {
	return simplesite.SaveContentBlockTypeRequest{Name: req.Name, Fields: req.Fields}
}

// ListContentBlockTypes lists the organisation's types and the default types
func (h *AdminHandler) ListContentBlockTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.service.ListContentBlockTypes(r.Context(), scopeFrom(r))
	if err != nil {
		writeError(w, r, "Failed to list content block types", err)
		return
	}
	render.JSON(w, r, types)
}

// CreateContentBlockType creates a block type in the organisation
func (h *AdminHandler) CreateContentBlockType(w http.ResponseWriter, r *http.Request) {
	var req ContentBlockTypeRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := h.service.CreateContentBlockType(r.Context(), scopeFrom(r), req.toService())
	if err != nil {
		writeError(w, r, "Failed to create content block type", err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, t)
}

// GetContentBlockType returns a visible block type
func (h *AdminHandler) GetContentBlockType(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	t, err := h.service.GetContentBlockType(r.Context(), scopeFrom(r), id)
	if err != nil {
		writeError(w, r, "Failed to get content block type", err)
		return
	}
	render.JSON(w, r, t)
}

// UpdateContentBlockType replaces a block type's name and fields
func (h *AdminHandler) UpdateContentBlockType(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req ContentBlockTypeRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := h.service.UpdateContentBlockType(r.Context(), scopeFrom(r), id, req.toService())
	if err != nil {
		writeError(w, r, "Failed to update content block type", err)
		return
	}
	render.JSON(w, r, t)
}

// DeleteContentBlockType deletes an unused block type
func (h *AdminHandler) DeleteContentBlockType(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteContentBlockType(r.Context(), scopeFrom(r), id); err != nil {
		writeError(w, r, "Failed to delete content block type", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ContentBlockRequest is the body for creating or updating a block
type ContentBlockRequest struct {
	TypeID      uuid.UUID      `json:"type_id"`
	Description string         `json:"description"`
	Content     map[string]any `json:"content"`
}

func (req ContentBlockRequest) toService() simplesite.SaveContentBlockRequest {
	return simplesite.SaveContentBlockRequest{TypeID: req.TypeID, Description: req.Description, Content: req.Content}
}

// ListContentBlocks lists blocks, optionally of one type (?type=)
func (h *AdminHandler) ListContentBlocks(w http.ResponseWriter, r *http.Request) {
	var typeID *uuid.UUID
	if raw := r.URL.Query().Get("type"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeStatus(w, r, http.StatusBadRequest, "invalid type")
			return
		}
		typeID = &id
	}
	blocks, err := h.service.ListContentBlocks(r.Context(), scopeFrom(r), typeID)
	if err != nil {
		writeError(w, r, "Failed to list content blocks", err)
		return
	}
	render.JSON(w, r, blocks)
}

// CreateContentBlock validates and stores a new block
func (h *AdminHandler) CreateContentBlock(w http.ResponseWriter, r *http.Request) {
	var req ContentBlockRequest
	if !decode(w, r, &req) {
		return
	}
	b, err := h.service.CreateContentBlock(r.Context(), scopeFrom(r), req.toService())
	if err != nil {
		writeError(w, r, "Failed to create content block", err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, b)
}

// GetContentBlock returns a stored block
func (h *AdminHandler) GetContentBlock(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	b, err := h.service.GetContentBlock(r.Context(), scopeFrom(r), id)
	if err != nil {
		writeError(w, r, "Failed to get content block", err)
		return
	}
	render.JSON(w, r, b)
}

// UpdateContentBlock validates and replaces a block's content
func (h *AdminHandler) UpdateContentBlock(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req ContentBlockRequest
	if !decode(w, r, &req) {
		return
	}
	b, err := h.service.UpdateContentBlock(r.Context(), scopeFrom(r), id, req.toService())
	if err != nil {
		writeError(w, r, "Failed to update content block", err)
		return
	}
	render.JSON(w, r, b)
}

// DeleteContentBlock deletes a block
func (h *AdminHandler) DeleteContentBlock(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteContentBlock(r.Context(), scopeFrom(r), id); err != nil {
		writeError(w, r, "Failed to delete content block", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckContentBlock reports how a block's content has drifted from its type
func (h *AdminHandler) CheckContentBlock(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	report, err := h.service.CheckContentBlock(r.Context(), scopeFrom(r), id)
	if err != nil {
		writeError(w, r, "Failed to check content block", err)
		return
	}
	render.JSON(w, r, map[string]any{"clean": report.Clean(), "report": report})
}

// PreviewContentBlock renders a block the way the public API would
func (h *AdminHandler) PreviewContentBlock(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	scope := scopeFrom(r)
	b, err := h.service.GetContentBlock(r.Context(), scope, id)
	if err != nil {
		writeError(w, r, "Failed to get content block", err)
		return
	}
	rendered, err := h.service.RenderContentBlock(r.Context(), b)
	if err != nil {
		writeError(w, r, "Failed to render content block", err)
		return
	}
	render.JSON(w, r, rendered)
}
