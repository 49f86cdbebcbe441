package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-site/pkg/simplesite"
)

func (h *AdminHandler) commerceRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.CreateProduct)
		r.Get("/{id}", h.GetProduct)
		r.Put("/{id}", h.UpdateProduct)
		r.Delete("/{id}", h.DeleteProduct)
	})
	r.Get("/payments", h.ListPayments)
}

// ProductRequest is the body for creating or updating a product
type ProductRequest struct {
	Name        string `json:"name" form:"name"`
	Description string `json:"description" form:"description"`
	PriceCents  int64  `json:"price_cents" form:"price_cents"`
	Currency    string `json:"currency" form:"currency"`
	Active      bool   `json:"active" form:"active"`
}

func (req ProductRequest) toService() simplesite.SaveProductRequest {
	return simplesite.SaveProductRequest{
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Currency:    req.Currency,
		Active:      req.Active,
	}
}

// ListProducts lists every product, active or not
func (h *AdminHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context(), scopeFrom(r).OrganisationID(), false)
	if err != nil {
		writeError(w, r, "Failed to list products", err)
		return
	}
	render.JSON(w, r, products)
}

// CreateProduct creates a product
func (h *AdminHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.service.CreateProduct(r.Context(), scopeFrom(r), req.toService())
	if err != nil {
		writeError(w, r, "Failed to create product", err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, p)
}

// GetProduct returns a product
func (h *AdminHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	p, err := h.service.GetProduct(r.Context(), scopeFrom(r).OrganisationID(), id)
	if err != nil {
		writeError(w, r, "Failed to get product", err)
		return
	}
	render.JSON(w, r, p)
}

// UpdateProduct updates a product
func (h *AdminHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req ProductRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.service.UpdateProduct(r.Context(), scopeFrom(r), id, req.toService())
	if err != nil {
		writeError(w, r, "Failed to update product", err)
		return
	}
	render.JSON(w, r, p)
}

// DeleteProduct deletes a product nobody has paid for
func (h *AdminHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteProduct(r.Context(), scopeFrom(r), id); err != nil {
		writeError(w, r, "Failed to delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPayments lists the organisation's payments
func (h *AdminHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListPayments(r.Context(), scopeFrom(r))
	if err != nil {
		writeError(w, r, "Failed to list payments", err)
		return
	}
	render.JSON(w, r, payments)
}

// maxWebhookBody bounds webhook payloads; Stripe events are far smaller
const maxWebhookBody = 1 << 16

// WebhookHandler receives payment provider events
type WebhookHandler struct {
	service simplesite.Service
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(service simplesite.Service) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// Routes returns the routes mounted under /webhooks
func (h *WebhookHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/stripe/{org}", h.Stripe)
	return r
}

// Stripe verifies and applies a Stripe event for one organisation
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	orgID, ok := uuidParam(w, r, "org")
	if !ok {
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			slog.Warn("Rejected oversized stripe webhook", "organisation_id", orgID, "limit", tooLarge.Limit)
			writeStatus(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeStatus(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.HandlePaymentWebhook(r.Context(), orgID, payload, r.Header.Get("Stripe-Signature")); err != nil {
		writeError(w, r, "Failed to handle stripe webhook", err)
		return
	}
	slog.Debug("Handled stripe webhook", "organisation_id", orgID)
	render.JSON(w, r, map[string]bool{"received": true})
}
