package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-site/pkg/simplesite"
)

// CustomerHandler serves customer accounts and the storefront of one organisation
type CustomerHandler struct {
	service       simplesite.Service
	tokens        *TokenAuth
	publicBaseURL string
	loginLimit    func(http.Handler) http.Handler
}

// NewCustomerHandler creates a new customer handler. publicBaseURL provides
// default checkout return URLs; loginLimit may be nil.
func NewCustomerHandler(service simplesite.Service, tokens *TokenAuth, publicBaseURL string, loginLimit func(http.Handler) http.Handler) *CustomerHandler {
	if loginLimit == nil {
		loginLimit = LoginLimit(0, false)
	}
	return &CustomerHandler{
		service:       service,
		tokens:        tokens,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		loginLimit:    loginLimit,
	}
}

// Routes returns the routes mounted under /api/v1/orgs/{org}
func (h *CustomerHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(h.loginLimit)
		r.Post("/customers/register", h.Register)
		r.Post("/customers/login", h.Login)
	})
	r.Get("/products", h.ListProducts)
	r.Get("/products/{id}", h.GetProduct)

	r.Group(func(r chi.Router) {
		r.Use(h.tokens.Authenticator(h.service, kindCustomer))
		r.Use(h.requireSameOrganisation)

		r.Post("/customers/logout", h.Logout)
		r.Get("/customers/me", h.Me)
		r.Post("/products/{id}/purchase", h.Purchase)
		r.Get("/products/{id}/access", h.Access)
	})

	return r
}

// requireSameOrganisation rejects customer tokens issued by another organisation
func (h *CustomerHandler) requireSameOrganisation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := uuidParam(w, r, "org")
		if !ok {
			return
		}
		p, _ := PrincipalFromContext(r.Context())
		if p.OrganisationID != orgID {
			slog.Info("Customer token used for another organisation", "customer_id", p.SubjectID, "organisation_id", orgID)
			writeStatus(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CustomerCredentials is the body of register and login
type CustomerCredentials struct {
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// CustomerResponse is the public view of a customer
type CustomerResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenResponse carries a freshly issued bearer token
type TokenResponse struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	Customer  *CustomerResponse `json:"customer,omitempty"`
}

func customerResponse(c *simplesite.Customer) *CustomerResponse {
	return &CustomerResponse{ID: c.ID.String(), Name: c.Name, Email: c.Email, CreatedAt: c.CreatedAt}
}

// Register creates a customer and returns a bearer token
func (h *CustomerHandler) Register(w http.ResponseWriter, r *http.Request) {
	orgID, ok := uuidParam(w, r, "org")
	if !ok {
		return
	}
	var req CustomerCredentials
	if !decode(w, r, &req) {
		return
	}

	customer, err := h.service.RegisterCustomer(r.Context(), simplesite.RegisterCustomerRequest{
		OrganisationID: orgID,
		Name:           req.Name,
		Email:          req.Email,
		Password:       req.Password,
	})
	if err != nil {
		writeError(w, r, "Failed to register customer", err)
		return
	}

	token, expires, err := h.tokens.IssueCustomerToken(customer)
	if err != nil {
		writeError(w, r, "Failed to issue token", err)
		return
	}

	slog.Info("Customer registered", "customer_id", customer.ID, "organisation_id", orgID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, TokenResponse{Token: token, ExpiresAt: expires, Customer: customerResponse(customer)})
}

// Login exchanges email and password for a bearer token
func (h *CustomerHandler) Login(w http.ResponseWriter, r *http.Request) {
	orgID, ok := uuidParam(w, r, "org")
	if !ok {
		return
	}
	var req CustomerCredentials
	if !decode(w, r, &req) {
		return
	}

	customer, err := h.service.AuthenticateCustomer(r.Context(), orgID, req.Email, req.Password)
	if err != nil {
		writeError(w, r, "Customer login failed", err)
		return
	}
	token, expires, err := h.tokens.IssueCustomerToken(customer)
	if err != nil {
		writeError(w, r, "Failed to issue token", err)
		return
	}

	slog.Info("Customer logged in", "customer_id", customer.ID)
	render.JSON(w, r, TokenResponse{Token: token, ExpiresAt: expires})
}

// Logout revokes the presented token
func (h *CustomerHandler) Logout(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	if err := revoke(r.Context(), h.service, p); err != nil {
		writeError(w, r, "Failed to revoke token", err)
		return
	}
	slog.Info("Customer logged out", "customer_id", p.SubjectID)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated customer
func (h *CustomerHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	customer, err := h.service.GetCustomer(r.Context(), p.OrganisationID, p.SubjectID)
	if err != nil {
		writeError(w, r, "Failed to get customer", err)
		return
	}
	render.JSON(w, r, customerResponse(customer))
}

// ProductResponse is the storefront view of a product
type ProductResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Currency    string `json:"currency"`
}

func productResponse(p *simplesite.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		PriceCents:  p.PriceCents,
		Currency:    p.Currency,
	}
}

// ListProducts lists the organisation's active products
func (h *CustomerHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	orgID, ok := uuidParam(w, r, "org")
	if !ok {
		return
	}
	products, err := h.service.ListProducts(r.Context(), orgID, true)
	if err != nil {
		writeError(w, r, "Failed to list products", err)
		return
	}
	resp := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, productResponse(p))
	}
	render.JSON(w, r, resp)
}

// GetProduct returns one active product
func (h *CustomerHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	orgID, ok := uuidParam(w, r, "org")
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	p, err := h.service.GetProduct(r.Context(), orgID, id)
	if err == nil && !p.Active {
		err = simplesite.ErrProductNotFound
	}
	if err != nil {
		writeError(w, r, "Failed to get product", err)
		return
	}
	render.JSON(w, r, productResponse(p))
}

// PurchaseRequest optionally overrides where checkout returns to
type PurchaseRequest struct {
	SuccessURL string `json:"success_url" form:"success_url"`
	CancelURL  string `json:"cancel_url" form:"cancel_url"`
}

// PurchaseResponse points the customer at the hosted checkout
type PurchaseResponse struct {
	PaymentID   string `json:"payment_id"`
	CheckoutURL string `json:"checkout_url"`
}

func validReturnURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Purchase starts a hosted checkout for a product
func (h *CustomerHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	productID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req PurchaseRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	if req.SuccessURL == "" {
		req.SuccessURL = h.publicBaseURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}"
	}
	if req.CancelURL == "" {
		req.CancelURL = h.publicBaseURL + "/checkout/cancel"
	}
	verr := &simplesite.ValidationError{}
	if !validReturnURL(req.SuccessURL) {
		verr.Add("success_url", "must be an absolute http or https URL")
	}
	if !validReturnURL(req.CancelURL) {
		verr.Add("cancel_url", "must be an absolute http or https URL")
	}
	if err := verr.Err(); err != nil {
		writeError(w, r, "Invalid purchase request", err)
		return
	}

	result, err := h.service.Purchase(r.Context(), simplesite.PurchaseRequest{
		OrganisationID: p.OrganisationID,
		CustomerID:     p.SubjectID,
		ProductID:      productID,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
	})
	if err != nil {
		writeError(w, r, "Failed to start purchase", err)
		return
	}

	slog.Info("Checkout started", "payment_id", result.Payment.ID, "customer_id", p.SubjectID, "product_id", productID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, PurchaseResponse{PaymentID: result.Payment.ID.String(), CheckoutURL: result.CheckoutURL})
}

// AccessResponse reports whether the customer owns a product
type AccessResponse struct {
	ProductID string `json:"product_id"`
	HasAccess bool   `json:"has_access"`
}

// Access reports whether the customer has been granted the product
func (h *CustomerHandler) Access(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	productID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	has, err := h.service.HasAccess(r.Context(), p.OrganisationID, p.SubjectID, productID)
	if err != nil {
		writeError(w, r, "Failed to check access", err)
		return
	}
	render.JSON(w, r, AccessResponse{ProductID: productID.String(), HasAccess: has})
}
