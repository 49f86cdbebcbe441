package signedurl

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
)

type contextKey string

const objectKeyContextKey contextKey = "signedurl:object_key"

// Middleware rejects requests whose signature is missing, wrong or expired and
// stores the validated object key in the request context.
func Middleware(signer *Signer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := signer.ValidateRequest(r); err != nil {
				handleValidationError(w, err)
				return
			}

			objectKey, err := signer.ExtractObjectKey(r.URL.EscapedPath())
			if err != nil {
				slog.Warn("Rejected signed URL", "path", r.URL.Path, "err", err)
				http.Error(w, "Invalid download URL", http.StatusBadRequest)
				return
			}

			ctx := context.WithValue(r.Context(), objectKeyContextKey, objectKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ObjectKeyFromContext returns the key validated by Middleware, or "".
func ObjectKeyFromContext(ctx context.Context) string {
	if key, ok := ctx.Value(objectKeyContextKey).(string); ok {
		return key
	}
	return ""
}

func handleValidationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrMissingSignature):
		http.Error(w, "Missing signature parameter", http.StatusUnauthorized)
	case errors.Is(err, ErrMissingExpiration):
		http.Error(w, "Missing expires parameter", http.StatusUnauthorized)
	case errors.Is(err, ErrInvalidExpiration):
		http.Error(w, "Invalid expires parameter", http.StatusBadRequest)
	case errors.Is(err, ErrExpired):
		http.Error(w, "Signed URL has expired", http.StatusForbidden)
	case errors.Is(err, ErrInvalidSignature):
		http.Error(w, "Invalid signature", http.StatusForbidden)
	default:
		slog.Error("Signed URL validation failed", "err", err)
		http.Error(w, "Authentication failed", http.StatusForbidden)
	}
}
