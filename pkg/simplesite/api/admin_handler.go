package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-site/pkg/simplesite"
)

// AdminHandler serves the admin surface: user sessions, organisations and
// everything an organisation member manages.
type AdminHandler struct {
	service       simplesite.Service
	tokens        *TokenAuth
	secureCookies bool
	loginLimit    func(http.Handler) http.Handler
}

// AdminOption configures an AdminHandler
type AdminOption func(*AdminHandler)

// WithSecureCookies marks the session and CSRF cookies Secure
func WithSecureCookies(secure bool) AdminOption {
	return func(h *AdminHandler) {
		h.secureCookies = secure
	}
}

// WithLoginLimit limits register and login attempts with mw, e.g. LoginLimit
func WithLoginLimit(mw func(http.Handler) http.Handler) AdminOption {
	return func(h *AdminHandler) {
		h.loginLimit = mw
	}
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(service simplesite.Service, tokens *TokenAuth, opts ...AdminOption) *AdminHandler {
	h := &AdminHandler{
		service:    service,
		tokens:     tokens,
		loginLimit: LoginLimit(0, false),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the routes mounted under /admin
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(CSRF(h.secureCookies))

	r.Get("/csrf", CSRFToken)
	r.Get("/field-types", h.FieldTypes)
	r.Get("/providers", h.ProviderCatalog)
	r.Group(func(r chi.Router) {
		r.Use(h.loginLimit)
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.tokens.Authenticator(h.service, kindUser))

		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
		r.Get("/orgs", h.ListOrganisations)
		r.Post("/orgs", h.CreateOrganisation)

		r.Route("/orgs/{org}", func(r chi.Router) {
			r.Use(OrganisationScope(h.service))

			r.Get("/", h.GetOrganisation)
			r.Get("/members", h.ListMembers)
			r.Post("/members", h.AddMember)
			r.Delete("/members/{user}", h.RemoveMember)

			h.contentRoutes(r)
			h.siteRoutes(r)
			h.providerRoutes(r)
			h.commerceRoutes(r)
			h.fileRoutes(r)
		})
	})

	return r
}

// RegisterRequest creates an admin user
type RegisterRequest struct {
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// LoginRequest authenticates an admin user
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// SessionResponse is returned when a session starts
type SessionResponse struct {
	Token        string                   `json:"token"`
	ExpiresAt    time.Time                `json:"expires_at"`
	User         *simplesite.User         `json:"user"`
	Organisation *simplesite.Organisation `json:"organisation,omitempty"`
}

func (h *AdminHandler) startSession(w http.ResponseWriter, r *http.Request, user *simplesite.User) (string, time.Time, bool) {
	token, expires, err := h.tokens.IssueUserToken(user)
	if err != nil {
		writeError(w, r, "Failed to issue session token", err)
		return "", time.Time{}, false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return token, expires, true
}

// Register creates a user with a personal organisation and starts a session
func (h *AdminHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	user, org, err := h.service.RegisterUser(r.Context(), simplesite.RegisterUserRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, r, "Failed to register user", err)
		return
	}

	token, expires, ok := h.startSession(w, r, user)
	if !ok {
		return
	}
	slog.Info("User registered", "user_id", user.ID, "organisation_id", org.ID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, SessionResponse{Token: token, ExpiresAt: expires, User: user, Organisation: org})
}

// Login starts a session for valid credentials
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, "User login failed", err)
		return
	}
	token, expires, ok := h.startSession(w, r, user)
	if !ok {
		return
	}
	slog.Info("User logged in", "user_id", user.ID)
	render.JSON(w, r, SessionResponse{Token: token, ExpiresAt: expires, User: user})
}

// Logout revokes the session token and clears the cookie
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	if err := revoke(r.Context(), h.service, p); err != nil {
		writeError(w, r, "Failed to revoke session", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	slog.Info("User logged out", "user_id", p.SubjectID)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the signed-in user
func (h *AdminHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	user, err := h.service.GetUser(r.Context(), p.SubjectID)
	if err != nil {
		writeError(w, r, "Failed to get user", err)
		return
	}
	render.JSON(w, r, user)
}

// FieldTypes lists the field types a content block type may declare
func (h *AdminHandler) FieldTypes(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, simplesite.FieldTypes)
}

// ListOrganisations lists the organisations the user belongs to
func (h *AdminHandler) ListOrganisations(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	orgs, err := h.service.ListOrganisationsForUser(r.Context(), p.SubjectID)
	if err != nil {
		writeError(w, r, "Failed to list organisations", err)
		return
	}
	render.JSON(w, r, orgs)
}

// CreateOrganisationRequest names a new organisation
type CreateOrganisationRequest struct {
	Name string `json:"name" form:"name"`
}

// CreateOrganisation creates an organisation owned by the user
func (h *AdminHandler) CreateOrganisation(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	var req CreateOrganisationRequest
	if !decode(w, r, &req) {
		return
	}
	org, err := h.service.CreateOrganisation(r.Context(), p.SubjectID, simplesite.CreateOrganisationRequest{Name: req.Name})
	if err != nil {
		writeError(w, r, "Failed to create organisation", err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, org)
}

// OrganisationResponse is an organisation with the caller's role in it
type OrganisationResponse struct {
	*simplesite.Organisation
	Role simplesite.Role `json:"role"`
}

// GetOrganisation returns the scoped organisation
func (h *AdminHandler) GetOrganisation(w http.ResponseWriter, r *http.Request) {
	scope := scopeFrom(r)
	render.JSON(w, r, OrganisationResponse{Organisation: scope.Organisation, Role: scope.Role})
}

// ListMembers lists the organisation's memberships
func (h *AdminHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.ListMembers(r.Context(), scopeFrom(r))
	if err != nil {
		writeError(w, r, "Failed to list members", err)
		return
	}
	render.JSON(w, r, members)
}

// AddMemberRequest grants an existing user a role
type AddMemberRequest struct {
	Email string          `json:"email" form:"email"`
	Role  simplesite.Role `json:"role" form:"role"`
}

// AddMember adds or updates a membership
func (h *AdminHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := h.service.AddMember(r.Context(), scopeFrom(r), simplesite.AddMemberRequest{Email: req.Email, Role: req.Role})
	if err != nil {
		writeError(w, r, "Failed to add member", err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, m)
}

// RemoveMember removes a membership
func (h *AdminHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "user")
	if !ok {
		return
	}
	if err := h.service.RemoveMember(r.Context(), scopeFrom(r), userID); err != nil {
		writeError(w, r, "Failed to remove member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
