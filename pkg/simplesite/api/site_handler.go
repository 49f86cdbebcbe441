package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-site/pkg/simplesite"
)

func (h *AdminHandler) siteRoutes(r chi.Router) {
	r.Route("/websites", func(r chi.Router) {
		r.Get("/", h.ListWebsites)
		r.Post("/", h.CreateWebsite)
		r.Get("/{id}", h.GetWebsite)
		r.Put("/{id}", h.UpdateWebsite)
		r.Delete("/{id}", h.DeleteWebsite)
		r.Get("/{id}/globals", h.ListGlobalBlocks)
		r.Post("/{id}/globals", h.AttachGlobalBlock)
		r.Delete("/{id}/globals/{key}", h.DetachGlobalBlock)
	})
	r.Route("/pages", func(r chi.Router) {
		r.Get("/", h.ListPages)
		r.Post("/", h.CreatePage)
		r.Get("/{id}", h.GetPage)
		r.Put("/{id}", h.UpdatePage)
		r.Delete("/{id}", h.DeletePage)
		r.Get("/{id}/blocks", h.ListPageBlocks)
		r.Put("/{id}/blocks", h.SetPageBlocks)
	})
}

// WebsiteRequest is the body for creating or updating a website
type WebsiteRequest struct {
	Name   string `json:"name" form:"name"`
	Domain string `json:"domain" form:"domain"`
}

// ListWebsites lists the organisation's websites
func (h *AdminHandler) ListWebsites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.service.ListWebsites(r.Context(), scopeFrom(r))
	if err != nil {
		writeError(w, r, "Failed to list websites", err)
		return
	}
	render.JSON(w, r, sites)
}

// CreateWebsite creates a website on a globally unique domain
func (h *AdminHandler) CreateWebsite(w http.ResponseWriter, r *http.Request) {
	var req WebsiteRequest
	if !decode(w, r, &req) {
		return
	}
	site, err := h.service.CreateWebsite(r.Context(), scopeFrom(r), simplesite.SaveWebsiteRequest{Name: req.Name, Domain: req.Domain})
	if err != nil {
		writeError(w, r, "Failed to create website", err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, site)
}

// GetWebsite returns a website
func (h *AdminHandler) GetWebsite(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	site, err := h.service.GetWebsite(r.Context(), scopeFrom(r), id)
	if err != nil {
		writeError(w, r, "Failed to get website", err)
		return
	}
	render.JSON(w, r, site)
}

// UpdateWebsite renames a website or moves it to another domain
func (h *AdminHandler) UpdateWebsite(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req WebsiteRequest
	if !decode(w, r, &req) {
		return
	}
	site, err := h.service.UpdateWebsite(r.Context(), scopeFrom(r), id, simplesite.SaveWebsiteRequest{Name: req.Name, Domain: req.Domain})
	if err != nil {
		writeError(w, r, "Failed to update website", err)
		return
	}
	render.JSON(w, r, site)
}

// DeleteWebsite deletes a website with its pages and global blocks
func (h *AdminHandler) DeleteWebsite(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteWebsite(r.Context(), scopeFrom(r), id); err != nil {
		writeError(w, r, "Failed to delete website", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GlobalBlockRequest attaches a block to a website slot
type GlobalBlockRequest struct {
	Key      string    `json:"key" form:"key"`
	BlockID  uuid.UUID `json:"block_id" form:"block_id"`
	Position int       `json:"position" form:"position"`
}

// ListGlobalBlocks lists a website's global blocks
func (h *AdminHandler) ListGlobalBlocks(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	globals, err := h.service.ListGlobalBlocks(r.Context(), scopeFrom(r), id)
	if err != nil {
		writeError(w, r, "Failed to list global blocks", err)
		return
	}
	render.JSON(w, r, globals)
}

// AttachGlobalBlock places a block in a website slot, replacing what was there
func (h *AdminHandler) AttachGlobalBlock(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req GlobalBlockRequest
	if !decode(w, r, &req) {
		return
	}
	g, err := h.service.AttachGlobalBlock(r.Context(), scopeFrom(r), id, simplesite.AttachGlobalBlockRequest{
		Key:      req.Key,
		BlockID:  req.BlockID,
		Position: req.Position,
	})
	if err != nil {
		writeError(w, r, "Failed to attach global block", err)
		return
	}
	render.JSON(w, r, g)
}

// DetachGlobalBlock empties a website slot
func (h *AdminHandler) DetachGlobalBlock(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DetachGlobalBlock(r.Context(), scopeFrom(r), id, chi.URLParam(r, "key")); err != nil {
		writeError(w, r, "Failed to detach global block", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PageRequest is the body for creating or updating a page
type PageRequest struct {
	WebsiteID uuid.UUID `json:"website_id" form:"website_id"`
	Title     string    `json:"title" form:"title"`
	Published bool      `json:"published" form:"published"`
}

func (req PageRequest) toService() simplesite.SavePageRequest {
	return simplesite.SavePageRequest{WebsiteID: req.WebsiteID, Title: req.Title, Published: req.Published}
}

// ListPages lists pages, optionally of one website (?website=)
func (h *AdminHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	var websiteID *uuid.UUID
	if raw := r.URL.Query().Get("website"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeStatus(w, r, http.StatusBadRequest, "invalid website")
			return
		}
		websiteID = &id
	}
	pages, err := h.service.ListPages(r.Context(), scopeFrom(r), websiteID)
	if err != nil {
		writeError(w, r, "Failed to list pages", err)
		return
	}
	render.JSON(w, r, pages)
}

// CreatePage creates a page; its slug derives from the title
func (h *AdminHandler) CreatePage(w http.ResponseWriter, r *http.Request) {
	var req PageRequest
	if !decode(w, r, &req) {
		return
	}
	page, err := h.service.CreatePage(r.Context(), scopeFrom(r), req.toService())
	if err != nil {
		writeError(w, r, "Failed to create page", err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, page)
}

// GetPage returns a page
func (h *AdminHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	page, err := h.service.GetPage(r.Context(), scopeFrom(r), id)
	if err != nil {
		writeError(w, r, "Failed to get page", err)
		return
	}
	render.JSON(w, r, page)
}

// UpdatePage updates a page
func (h *AdminHandler) UpdatePage(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req PageRequest
	if !decode(w, r, &req) {
		return
	}
	page, err := h.service.UpdatePage(r.Context(), scopeFrom(r), id, req.toService())
	if err != nil {
		writeError(w, r, "Failed to update page", err)
		return
	}
	render.JSON(w, r, page)
}

// DeletePage deletes a page
func (h *AdminHandler) DeletePage(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeletePage(r.Context(), scopeFrom(r), id); err != nil {
		writeError(w, r, "Failed to delete page", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPageBlocks lists a page's blocks in order
func (h *AdminHandler) ListPageBlocks(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	blocks, err := h.service.ListPageBlocks(r.Context(), scopeFrom(r), id)
	if err != nil {
		writeError(w, r, "Failed to list page blocks", err)
		return
	}
	render.JSON(w, r, blocks)
}

// PageBlocksRequest is the ordered block list of a page
type PageBlocksRequest struct {
	BlockIDs []uuid.UUID `json:"block_ids"`
}

// SetPageBlocks replaces a page's block list
func (h *AdminHandler) SetPageBlocks(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req PageBlocksRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.service.SetPageBlocks(r.Context(), scopeFrom(r), id, req.BlockIDs); err != nil {
		writeError(w, r, "Failed to set page blocks", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SiteHandler serves published pages to the public
type SiteHandler struct {
	service simplesite.Service
}

// NewSiteHandler creates a new public site handler
func NewSiteHandler(service simplesite.Service) *SiteHandler {
	return &SiteHandler{service: service}
}

// Routes returns the routes mounted under /api/v1/sites
func (h *SiteHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{domain}/pages/{slug}", h.GetPage)
	return r
}

// GetPage returns a published page with its blocks and the website's global
// blocks. Unpublished and unknown pages are both 404.
func (h *SiteHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	slug := chi.URLParam(r, "slug")

	page, err := h.service.GetPublishedPage(r.Context(), domain, slug)
	if err != nil {
		writeError(w, r, "Failed to get published page", err)
		return
	}
	slog.Debug("Served page", "domain", domain, "slug", slug)
	w.Header().Set("Cache-Control", "no-store")
	render.JSON(w, r, page)
}
