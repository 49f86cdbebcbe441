package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-site/pkg/simplesite"
)

func (h *AdminHandler) providerRoutes(r chi.Router) {
	r.Route("/providers", func(r chi.Router) {
		r.Get("/", h.ListConfiguredProviders)
		r.Get("/{provider}", h.GetProviderConfiguration)
		r.Put("/{provider}", h.ConfigureProvider)
		r.Delete("/{provider}", h.RemoveProviderConfiguration)
	})
}

// ProviderCatalog lists every integration and the variables it declares
func (h *AdminHandler) ProviderCatalog(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, simplesite.Catalog())
}

// ListConfiguredProviders lists providers the organisation has stored values for
func (h *AdminHandler) ListConfiguredProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.service.ConfiguredProviders(r.Context(), scopeFrom(r))
	if err != nil {
		writeError(w, r, "Failed to list configured providers", err)
		return
	}
	render.JSON(w, r, map[string][]string{"providers": providers})
}

// GetProviderConfiguration returns stored values with secrets masked
func (h *AdminHandler) GetProviderConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.ProviderConfiguration(r.Context(), scopeFrom(r), chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, r, "Failed to get provider configuration", err)
		return
	}
	render.JSON(w, r, cfg)
}

// ProviderValuesRequest maps variable keys to values. An empty secret keeps
// the stored value.
type ProviderValuesRequest struct {
	Values map[string]string `json:"values"`
}

// ConfigureProvider stores an organisation's values for a provider
func (h *AdminHandler) ConfigureProvider(w http.ResponseWriter, r *http.Request) {
	var req ProviderValuesRequest
	if !decode(w, r, &req) {
		return
	}
	scope := scopeFrom(r)
	provider := chi.URLParam(r, "provider")
	if err := h.service.ConfigureProvider(r.Context(), scope, provider, req.Values); err != nil {
		writeError(w, r, "Failed to configure provider", err)
		return
	}
	cfg, err := h.service.ProviderConfiguration(r.Context(), scope, provider)
	if err != nil {
		writeError(w, r, "Failed to get provider configuration", err)
		return
	}
	render.JSON(w, r, cfg)
}

// RemoveProviderConfiguration deletes every stored value for a provider
func (h *AdminHandler) RemoveProviderConfiguration(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveProviderConfiguration(r.Context(), scopeFrom(r), chi.URLParam(r, "provider")); err != nil {
		writeError(w, r, "Failed to remove provider configuration", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
