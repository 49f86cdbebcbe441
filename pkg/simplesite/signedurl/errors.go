package signedurl

import "errors"

// Signature validation errors
var (
	ErrNoSecretKey       = errors.New("signedurl: no secret key configured")
	ErrMissingSignature  = errors.New("signedurl: missing signature parameter")
	ErrMissingExpiration = errors.New("signedurl: missing expires parameter")
	ErrInvalidExpiration = errors.New("signedurl: invalid expires parameter")
	ErrExpired           = errors.New("signedurl: URL has expired")
	ErrInvalidSignature  = errors.New("signedurl: invalid signature")
)

// IsAuthError returns true if the error is a signature validation error
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingSignature) ||
		errors.Is(err, ErrMissingExpiration) ||
		errors.Is(err, ErrInvalidExpiration) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrInvalidSignature)
}
