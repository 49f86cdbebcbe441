// Package signedurl issues and verifies HMAC-signed, time-limited download
// links for private files held by a storage backend that cannot presign on
// its own (memory and filesystem).
package signedurl

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Signer generates and validates HMAC-signed URLs
type Signer struct {
	secretKey         []byte
	defaultExpiration time.Duration
	urlPattern        string // e.g. "/files/{key}"
	baseURL           string
	now               func() time.Time
}

// New creates a Signer. A secret key is required: private files are never
// served unsigned.
func New(opts ...Option) (*Signer, error) {
	s := &Signer{
		defaultExpiration: 15 * time.Minute,
		urlPattern:        "/files/{key}",
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.secretKey) == 0 {
		return nil, ErrNoSecretKey
	}
	if !strings.Contains(s.urlPattern, keyPlaceholder) {
		return nil, fmt.Errorf("signedurl: URL pattern %q does not contain %s", s.urlPattern, keyPlaceholder)
	}
	return s, nil
}

const keyPlaceholder = "{key}"

// SignURL signs path for method and returns it with signature and expires
// query parameters appended.
func (s *Signer) SignURL(method, path string, expiresIn time.Duration) string {
	if expiresIn <= 0 {
		expiresIn = s.defaultExpiration
	}
	expiresAt := s.now().Add(expiresIn).Unix()
	signature := s.generateSignature(s.createPayload(method, path, expiresAt))

	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%ssignature=%s&expires=%d", path, separator, signature, expiresAt)
}

// SignObjectURL returns an absolute GET link for objectKey. A non-empty
// downloadFilename is carried (and signed) as the filename query parameter.
func (s *Signer) SignObjectURL(objectKey, downloadFilename string, expiresIn time.Duration) string {
	path := strings.Replace(s.urlPattern, keyPlaceholder, escapeKey(objectKey), 1)
	if downloadFilename != "" {
		path += "?" + url.Values{"filename": {downloadFilename}}.Encode()
	}
	return s.baseURL + s.SignURL(http.MethodGet, path, expiresIn)
}

// ValidateRequest validates the signature and expiration of an HTTP request.
func (s *Signer) ValidateRequest(r *http.Request) error {
	query := r.URL.Query()
	signature := query.Get("signature")
	expiresStr := query.Get("expires")

	if signature == "" {
		return ErrMissingSignature
	}
	if expiresStr == "" {
		return ErrMissingExpiration
	}
	expiresAt, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExpiration, err)
	}

	path := r.URL.EscapedPath()
	cleanQuery := url.Values{}
	for k, v := range query {
		if k != "signature" && k != "expires" {
			cleanQuery[k] = v
		}
	}
	if len(cleanQuery) > 0 {
		path = path + "?" + cleanQuery.Encode()
	}
	return s.Validate(r.Method, path, signature, expiresAt)
}

// Validate checks a signature and expiration for method and path.
func (s *Signer) Validate(method, path, signature string, expiresAt int64) error {
	if s.now().Unix() > expiresAt {
		return ErrExpired
	}
	expected := s.generateSignature(s.createPayload(method, path, expiresAt))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// ExtractObjectKey extracts the object key from a request path using the URL pattern.
func (s *Signer) ExtractObjectKey(path string) (string, error) {
	idx := strings.Index(s.urlPattern, keyPlaceholder)
	prefix := s.urlPattern[:idx]
	suffix := s.urlPattern[idx+len(keyPlaceholder):]

	if !strings.HasPrefix(path, prefix) {
		return "", fmt.Errorf("path does not match URL pattern prefix")
	}
	key := strings.TrimPrefix(path, prefix)
	if suffix != "" {
		key = strings.TrimSuffix(key, suffix)
	}
	key, err := url.PathUnescape(key)
	if err != nil {
		return "", err
	}
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return key, nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// createPayload builds METHOD|PATH|EXPIRES
func (s *Signer) createPayload(method, path string, expiresAt int64) string {
	return fmt.Sprintf("%s|%s|%d", method, path, expiresAt)
}

func (s *Signer) generateSignature(payload string) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
