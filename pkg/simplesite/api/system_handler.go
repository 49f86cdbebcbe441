package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-site/pkg/simplesite"
)

// SystemHandler manages platform-wide data. Mount it behind an API key.
type SystemHandler struct {
	service simplesite.Service
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(service simplesite.Service) *SystemHandler {
	return &SystemHandler{service: service}
}

// Routes returns the system routes
func (h *SystemHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/content-block-types", h.CreateDefaultContentBlockType)
	r.Post("/content-block-types/seed", h.SeedContentBlockTypes)
	return r
}

// CreateDefaultContentBlockType creates a type visible to every organisation
func (h *SystemHandler) CreateDefaultContentBlockType(w http.ResponseWriter, r *http.Request) {
	var req ContentBlockTypeRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := h.service.CreateDefaultContentBlockType(r.Context(), req.toService())
	if err != nil {
		writeError(w, r, "Failed to create default content block type", err)
		return
	}
	slog.Info("Default content block type created", "type_id", t.ID, "slug", t.Slug)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, t)
}

// SeedContentBlockTypes installs the starter types that are missing
func (h *SystemHandler) SeedContentBlockTypes(w http.ResponseWriter, r *http.Request) {
	created, err := simplesite.SeedStarterContentBlockTypes(r.Context(), h.service)
	if err != nil {
		writeError(w, r, "Failed to seed content block types", err)
		return
	}
	if created == nil {
		created = []*simplesite.ContentBlockType{}
	}
	slog.Info("Starter content block types seeded", "created", len(created))
	render.JSON(w, r, map[string]any{"created": created})
}
