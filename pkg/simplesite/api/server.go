package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/simple-site/pkg/simplesite"
	"github.com/tendant/simple-site/pkg/simplesite/signedurl"
)

// Deps are the components the HTTP surface is built from
type Deps struct {
	Service simplesite.Service
	Tokens  *TokenAuth

	// Signer and BlobStore enable /files. Leave Signer nil when the blob
	// store presigns its own links.
	Signer    *signedurl.Signer
	BlobStore simplesite.BlobStore

	PublicBaseURL  string
	CORSOrigins    []string
	SecureCookies  bool
	LoginPerMinute int // negative disables the login limit
	MaxBodyBytes   int64
	MaxUploadBytes int64

	// TrustProxy keys clients by X-Forwarded-For / X-Real-IP. Leave it off
	// unless a proxy in front of the server sets those headers.
	TrustProxy bool
}

func (d Deps) withDefaults() Deps {
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = 1 << 20
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 64 << 20
	}
	if d.LoginPerMinute == 0 {
		d.LoginPerMinute = 20
	}
	return d
}

// Mount registers every route on r:
//
//	/api/v1/sites/{domain}/pages/{slug}  public pages
//	/api/v1/orgs/{org}/...               customers and storefront
//	/webhooks/stripe/{org}               payment events
//	/admin/...                           admin surface
//	/files/...                           signed downloads
func Mount(r chi.Router, deps Deps) {
	deps = deps.withDefaults()
	loginLimit := LoginLimit(deps.LoginPerMinute, deps.TrustProxy)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(PublicCORS(deps.CORSOrigins))
		r.Use(BodyLimit(deps.MaxBodyBytes))
		r.Mount("/sites", NewSiteHandler(deps.Service).Routes())

		r.Mount("/orgs/{org}", NewCustomerHandler(deps.Service, deps.Tokens, deps.PublicBaseURL, loginLimit).Routes())
	})

	r.Mount("/webhooks", BodyLimit(deps.MaxBodyBytes)(NewWebhookHandler(deps.Service).Routes()))

	admin := NewAdminHandler(deps.Service, deps.Tokens,
		WithSecureCookies(deps.SecureCookies),
		WithLoginLimit(loginLimit),
	)
	r.Mount("/admin", BodyLimit(deps.MaxUploadBytes)(admin.Routes()))

	if deps.Signer != nil && deps.BlobStore != nil {
		r.Handle("/files/*", NewFileServer(deps.Signer, deps.BlobStore).Handler())
	}
}

// NewRouter returns a chi router with the standard middleware stack and every
// route mounted. RemoteAddr is rewritten from proxy headers only with TrustProxy.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if deps.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	Mount(r, deps)
	return r
}
