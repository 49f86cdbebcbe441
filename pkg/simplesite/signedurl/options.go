package signedurl

import "time"

// Option is a functional option for configuring a Signer
type Option func(*Signer)

// WithSecretKey sets the secret key used for HMAC signing
func WithSecretKey(key string) Option {
	return func(s *Signer) {
		s.secretKey = []byte(key)
	}
}

// WithDefaultExpiration sets the lifetime of links signed without an explicit one
func WithDefaultExpiration(d time.Duration) Option {
	return func(s *Signer) {
		s.defaultExpiration = d
	}
}

// WithURLPattern sets the path template for object links. It must contain {key}.
func WithURLPattern(pattern string) Option {
	return func(s *Signer) {
		s.urlPattern = pattern
	}
}

// WithBaseURL prefixes signed object links, e.g. "https://cms.example.com"
func WithBaseURL(base string) Option {
	return func(s *Signer) {
		s.baseURL = base
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}
