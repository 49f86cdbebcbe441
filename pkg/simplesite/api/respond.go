package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-site/pkg/simplesite"
)

// ErrorResponse is the body of every non-validation error
type ErrorResponse struct {
	Error string `json:"error"`
}

// ValidationErrorResponse carries field-scoped messages
type ValidationErrorResponse struct {
	Errors map[string]string `json:"errors"`
}

// errorStatus maps a service error to an HTTP status and a client-safe message
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, simplesite.ErrInvalidCredentials):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, simplesite.ErrTokenRevoked):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, simplesite.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, simplesite.ErrUnknownProvider):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, simplesite.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, simplesite.ErrAlreadyOwned):
		return http.StatusConflict, err.Error()
	case errors.Is(err, simplesite.ErrProductUnavailable):
		return http.StatusConflict, err.Error()
	case errors.Is(err, simplesite.ErrDuplicate):
		return http.StatusConflict, err.Error()
	case errors.Is(err, simplesite.ErrInvalidSignature):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, simplesite.ErrPaymentProvider):
		return http.StatusBadGateway, "the payment provider could not start checkout, please try again later"
	case errors.Is(err, simplesite.ErrProviderNotConfigured):
		return http.StatusServiceUnavailable, "payments are not configured for this organisation"
	}
	return http.StatusInternalServerError, "internal server error"
}

// writeError renders err with the status it maps to. Server errors are logged.
func writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if verr, ok := simplesite.AsValidationError(err); ok {
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, ValidationErrorResponse{Errors: verr.Fields})
		return
	}

	status, text := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error(msg, "path", r.URL.Path, "err", err)
	} else {
		slog.Info(msg, "path", r.URL.Path, "status", status, "err", err)
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: text})
}

// writeStatus renders a plain error message with status
func writeStatus(w http.ResponseWriter, r *http.Request, status int, text string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: text})
}

// uuidParam parses a URL parameter as a UUID, answering 400 when it is malformed
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		slog.Info("Invalid id in path", "param", name, "value", raw)
		writeStatus(w, r, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// decode reads a JSON or form body into v, answering 400 on failure
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := render.Decode(r, v); err != nil {
		slog.Info("Invalid request body", "path", r.URL.Path, "err", err)
		writeStatus(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
