package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/google/uuid"
	"github.com/tendant/simple-site/pkg/simplesite"
)

// Token kinds. A customer token is only valid for its organisation's routes.
const (
	kindCustomer = "customer"
	kindUser     = "user"
)

// SessionCookieName is the admin session cookie; jwtauth.TokenFromCookie reads it.
const SessionCookieName = "jwt"

// Principal is the verified subject of a bearer token or session cookie.
type Principal struct {
	Kind           string
	SubjectID      uuid.UUID
	OrganisationID uuid.UUID
	TokenID        string
	ExpiresAt      time.Time
}

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by the auth middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// TokenAuth issues and verifies HS256 tokens.
type TokenAuth struct {
	auth *jwtauth.JWTAuth
	ttl  time.Duration
	now  func() time.Time
}

// NewTokenAuth creates a TokenAuth signing with secret. Tokens live for ttl.
func NewTokenAuth(secret string, ttl time.Duration) (*TokenAuth, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenAuth{
		auth: jwtauth.New("HS256", []byte(secret), nil),
		ttl:  ttl,
		now:  time.Now,
	}, nil
}

func (t *TokenAuth) issue(kind string, subject, orgID uuid.UUID) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := map[string]interface{}{
		"sub":  subject.String(),
		"jti":  uuid.NewString(),
		"kind": kind,
	}
	if orgID != uuid.Nil {
		claims["org"] = orgID.String()
	}
	jwtauth.SetIssuedAt(claims, now)
	jwtauth.SetExpiry(claims, expires)

	_, token, err := t.auth.Encode(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expires, nil
}

// IssueCustomerToken returns a bearer token scoped to the customer's organisation.
func (t *TokenAuth) IssueCustomerToken(c *simplesite.Customer) (string, time.Time, error) {
	return t.issue(kindCustomer, c.ID, c.OrganisationID)
}

// IssueUserToken returns an admin session token.
func (t *TokenAuth) IssueUserToken(u *simplesite.User) (string, time.Time, error) {
	return t.issue(kindUser, u.ID, uuid.Nil)
}

// authenticate turns the token jwtauth.Verify stored in the context into a
// principal of the wanted kind and rejects revoked tokens.
func authenticate(svc simplesite.Service, kind string, r *http.Request) (Principal, error) {
	token, _, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return Principal{}, err
	}
	if token == nil {
		return Principal{}, jwtauth.ErrNoTokenFound
	}

	if k, _ := token.Get("kind"); k != kind {
		return Principal{}, jwtauth.ErrUnauthorized
	}
	subject, err := uuid.Parse(token.Subject())
	if err != nil {
		return Principal{}, jwtauth.ErrUnauthorized
	}
	p := Principal{Kind: kind, SubjectID: subject, TokenID: token.JwtID(), ExpiresAt: token.Expiration()}
	if raw, ok := token.Get("org"); ok {
		s, _ := raw.(string)
		if p.OrganisationID, err = uuid.Parse(s); err != nil {
			return Principal{}, jwtauth.ErrUnauthorized
		}
	}
	if p.TokenID == "" {
		return Principal{}, jwtauth.ErrUnauthorized
	}

	revoked, err := svc.IsTokenRevoked(r.Context(), p.TokenID)
	if err != nil {
		return Principal{}, err
	}
	if revoked {
		return Principal{}, simplesite.ErrTokenRevoked
	}
	return p, nil
}

// Authenticator verifies tokens of one kind from the Authorization header or
// the session cookie and stores the Principal in the request context.
func (t *TokenAuth) Authenticator(svc simplesite.Service, kind string) func(http.Handler) http.Handler {
	verify := jwtauth.Verify(t.auth, jwtauth.TokenFromHeader, jwtauth.TokenFromCookie)
	return func(next http.Handler) http.Handler {
		return verify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := authenticate(svc, kind, r)
			if err != nil {
				if errors.Is(err, simplesite.ErrTokenRevoked) || isTokenError(err) {
					slog.Info("Rejected token", "path", r.URL.Path, "err", err)
					writeStatus(w, r, http.StatusUnauthorized, "unauthorized")
					return
				}
				writeError(w, r, "Failed to authenticate request", err)
				return
			}
			ctx := context.WithValue(r.Context(), principalContextKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		}))
	}
}

func isTokenError(err error) bool {
	for _, target := range []error{
		jwtauth.ErrUnauthorized, jwtauth.ErrExpired, jwtauth.ErrNBFInvalid,
		jwtauth.ErrIATInvalid, jwtauth.ErrNoTokenFound, jwtauth.ErrAlgoInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// revoke records the principal's token as logged out until it would have expired.
func revoke(ctx context.Context, svc simplesite.Service, p Principal) error {
	expires := p.ExpiresAt
	if expires.IsZero() {
		expires = time.Now().Add(24 * time.Hour)
	}
	return svc.RevokeToken(ctx, p.TokenID, expires)
}
