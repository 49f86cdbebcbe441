package signedurl

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T, opts ...Option) *Signer {
	t.Helper()
	s, err := New(append([]Option{WithSecretKey("test-secret-key-with-enough-bytes")}, opts...)...)
	require.NoError(t, err)
	return s
}

func TestNew_RequiresSecret(t *testing.T) {
	_, err := New()
	assert.ErrorIs(t, err, ErrNoSecretKey)

	_, err = New(WithSecretKey("k"), WithURLPattern("/files/"))
	assert.Error(t, err)
}

func TestSignObjectURL_RoundTrip(t *testing.T) {
	s := newTestSigner(t, WithBaseURL("https://cms.example.com"))
	signed := s.SignObjectURL("orgs/a/files/b/report.pdf", "report.pdf", time.Minute)

	assert.True(t, strings.HasPrefix(signed, "https://cms.example.com/files/orgs/a/files/b/report.pdf?filename=report.pdf&signature="), signed)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, u.RequestURI(), nil)
	require.NoError(t, s.ValidateRequest(req))

	key, err := s.ExtractObjectKey(req.URL.EscapedPath())
	require.NoError(t, err)
	assert.Equal(t, "orgs/a/files/b/report.pdf", key)
}

func TestValidateRequest_Failures(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newTestSigner(t, WithClock(func() time.Time { return now }))
	signed := s.SignURL(http.MethodGet, "/files/k", time.Minute)

	tests := []struct {
		name string
		req  *http.Request
		want error
	}{
		{"missing signature", httptest.NewRequest(http.MethodGet, "/files/k", nil), ErrMissingSignature},
		{"missing expires", httptest.NewRequest(http.MethodGet, "/files/k?signature=abc", nil), ErrMissingExpiration},
		{"bad expires", httptest.NewRequest(http.MethodGet, "/files/k?signature=abc&expires=soon", nil), ErrInvalidExpiration},
		{"other path", httptest.NewRequest(http.MethodGet, strings.Replace(signed, "/files/k", "/files/x", 1), nil), ErrInvalidSignature},
		{"other method", httptest.NewRequest(http.MethodDelete, signed, nil), ErrInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateRequest(tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsAuthError(err))
		})
	}

	t.Run("expired", func(t *testing.T) {
		later := newTestSigner(t, WithClock(func() time.Time { return now.Add(2 * time.Minute) }))
		assert.ErrorIs(t, later.ValidateRequest(httptest.NewRequest(http.MethodGet, signed, nil)), ErrExpired)
	})

	t.Run("other secret", func(t *testing.T) {
		other, err := New(WithSecretKey("another-secret"), WithClock(func() time.Time { return now }))
		require.NoError(t, err)
		assert.ErrorIs(t, other.ValidateRequest(httptest.NewRequest(http.MethodGet, signed, nil)), ErrInvalidSignature)
	})
}

func TestExtractObjectKey_RejectsTraversal(t *testing.T) {
	s := newTestSigner(t)
	_, err := s.ExtractObjectKey("/files/../secret")
	assert.Error(t, err)
	_, err = s.ExtractObjectKey("/other/key")
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	s := newTestSigner(t)
	var seen string
	handler := Middleware(s)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ObjectKeyFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, s.SignObjectURL("orgs/o/files/f/a.txt", "", 0), nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "orgs/o/files/f/a.txt", seen)
	})

	t.Run("unsigned", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/orgs/o/files/f/a.txt", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("tampered", func(t *testing.T) {
		signed := s.SignObjectURL("orgs/o/files/f/a.txt", "", 0)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, strings.Replace(signed, "a.txt", "b.txt", 1), nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
