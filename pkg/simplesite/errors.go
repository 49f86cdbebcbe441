package simplesite

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrNotFound is wrapped by every entity-specific not-found error
	ErrNotFound = errors.New("not found")

	ErrUserNotFound             = fmt.Errorf("user %w", ErrNotFound)
	ErrOrganisationNotFound     = fmt.Errorf("organisation %w", ErrNotFound)
	ErrMembershipNotFound       = fmt.Errorf("membership %w", ErrNotFound)
	ErrContentBlockTypeNotFound = fmt.Errorf("content block type %w", ErrNotFound)
	ErrContentBlockNotFound     = fmt.Errorf("content block %w", ErrNotFound)
	ErrWebsiteNotFound          = fmt.Errorf("website %w", ErrNotFound)
	ErrPageNotFound             = fmt.Errorf("page %w", ErrNotFound)
	ErrGlobalBlockNotFound      = fmt.Errorf("global content block %w", ErrNotFound)
	ErrCustomerNotFound         = fmt.Errorf("customer %w", ErrNotFound)
	ErrProductNotFound          = fmt.Errorf("product %w", ErrNotFound)
	ErrPaymentNotFound          = fmt.Errorf("payment %w", ErrNotFound)
	ErrFileNotFound             = fmt.Errorf("file %w", ErrNotFound)
	ErrObjectNotFound           = fmt.Errorf("object %w", ErrNotFound)

	// ErrDuplicate indicates a unique constraint was violated
	ErrDuplicate = errors.New("already exists")

	// ErrForbidden indicates the caller's role does not permit the operation
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidCredentials indicates a failed login
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrTokenRevoked indicates a bearer token was logged out
	ErrTokenRevoked = errors.New("token revoked")

	// ErrAlreadyOwned indicates a purchase of a product the customer already has
	ErrAlreadyOwned = errors.New("product already owned")

	// ErrProductUnavailable indicates a purchase of an inactive product
	ErrProductUnavailable = errors.New("product is not available for purchase")

	// ErrPaymentProvider indicates the payment provider rejected or failed a request
	ErrPaymentProvider = errors.New("payment provider error")

	// ErrProviderNotConfigured indicates required provider credentials are missing
	ErrProviderNotConfigured = errors.New("provider not configured")

	// ErrInvalidSignature indicates a webhook payload failed signature verification
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrUnknownProvider indicates a provider id outside the catalog
	ErrUnknownProvider = errors.New("unknown provider")
)

// ValidationError carries field-scoped, user-visible messages.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns a ValidationError with a single field message.
func NewValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

// Add records a message for field. The first message for a field wins.
func (v *ValidationError) Add(field, message string) {
	if v.Fields == nil {
		v.Fields = make(map[string]string)
	}
	if _, exists := v.Fields[field]; !exists {
		v.Fields[field] = message
	}
}

// HasErrors reports whether any field message was recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.Fields) > 0
}

// Err returns v as an error, or nil when no messages were recorded.
func (v *ValidationError) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AsValidationError extracts a *ValidationError from err.
func AsValidationError(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// ForbiddenError reports the role an operation required.
type ForbiddenError struct {
	Op       string
	Required Role
	Actual   Role
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("%s requires role %s, caller has %q", e.Op, e.Required, e.Actual)
}

func (e *ForbiddenError) Unwrap() error {
	return ErrForbidden
}

// PaymentError represents an error related to payment operations
type PaymentError struct {
	PaymentID uuid.UUID
	Op        string
	Err       error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment operation %s failed for payment %s: %v", e.Op, e.PaymentID, e.Err)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
