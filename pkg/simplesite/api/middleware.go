package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"
	"github.com/justinas/nosurf"
	"github.com/tendant/simple-site/pkg/simplesite"
)

// CSRFHeaderName is the header browser clients echo the CSRF token in
const CSRFHeaderName = nosurf.HeaderName

// OrganisationScope resolves the {org} URL parameter against the authenticated
// user's membership and stores the resulting Scope in the request context.
// Callers without a membership get 403.
func OrganisationScope(service simplesite.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID, ok := uuidParam(w, r, "org")
			if !ok {
				return
			}
			p, ok := PrincipalFromContext(r.Context())
			if !ok || p.Kind != kindUser {
				writeStatus(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}

			scope, err := service.ResolveScope(r.Context(), orgID, p.SubjectID)
			if err != nil {
				writeError(w, r, "Failed to resolve organisation", err)
				return
			}
			next.ServeHTTP(w, r.WithContext(simplesite.WithScope(r.Context(), scope)))
		})
	}
}

// scopeFrom returns the request's scope. Routes using it sit behind OrganisationScope.
func scopeFrom(r *http.Request) simplesite.Scope {
	scope, _ := simplesite.ScopeFromContext(r.Context())
	return scope
}

// CSRF protects cookie-authenticated admin requests. Requests that carry a
// bearer Authorization header or no session cookie have no ambient
// credentials to abuse and are exempt.
func CSRF(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		h := nosurf.New(next)
		h.SetBaseCookie(http.Cookie{
			Path:     "/",
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
		h.ExemptFunc(func(r *http.Request) bool {
			if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
				return true
			}
			_, err := r.Cookie(SessionCookieName)
			return err != nil
		})
		h.SetFailureHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slog.Info("CSRF check failed", "path", r.URL.Path, "reason", nosurf.Reason(r))
			writeStatus(w, r, http.StatusForbidden, "invalid csrf token")
		}))
		return h
	}
}

// CSRFToken returns the token a browser client must echo in X-CSRF-Token
func CSRFToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	render.JSON(w, r, map[string]string{"csrf_token": nosurf.Token(r)})
}

// PublicCORS allows cross-origin reads of the public content and customer API
func PublicCORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}

// BodyLimit caps request bodies at maxBytes
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// LoginLimit allows perMinute credential attempts per client address in a
// sliding one-minute window; perMinute <= 0 disables it. Clients are keyed by
// the socket address unless trustProxy is set.
func LoginLimit(perMinute int, trustProxy bool) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	keyFunc := httprate.KeyByIP
	if trustProxy {
		keyFunc = httprate.KeyByRealIP
	}
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			slog.Warn("Throttled request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			writeStatus(w, r, http.StatusTooManyRequests, "too many requests")
		}),
	)
}
