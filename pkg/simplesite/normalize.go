package simplesite

import (
	"strings"

	"github.com/gosimple/slug"
)

// Slugify derives the kebab-case slug used for types, pages and organisations.
func Slugify(name string) string {
	return slug.Make(strings.TrimSpace(name))
}

// FieldSlug derives the machine-safe content key for a field label.
func FieldSlug(label string) string {
	return strings.ReplaceAll(slug.Make(strings.TrimSpace(label)), "-", "_")
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeDomain lowercases a website domain and strips scheme, path and trailing dot.
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	if i := strings.IndexByte(d, '/'); i >= 0 {
		d = d[:i]
	}
	return strings.TrimSuffix(d, ".")
}

// NormalizeProvider lowercases a provider id.
func NormalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
