// Package presets builds ready-to-use services for local development and tests.
package presets

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/tendant/simple-site/pkg/simplesite"
	"github.com/tendant/simple-site/pkg/simplesite/repo/memory"
	"github.com/tendant/simple-site/pkg/simplesite/signedurl"
	fsstorage "github.com/tendant/simple-site/pkg/simplesite/storage/fs"
	memorystorage "github.com/tendant/simple-site/pkg/simplesite/storage/memory"
)

// DevelopmentOptions configures NewDevelopment.
type DevelopmentOptions struct {
	StorageDir    string
	BaseURL       string
	SigningSecret string
	StarterTypes  bool
	Extra         []simplesite.Option
}

// DevelopmentOption modifies DevelopmentOptions.
type DevelopmentOption func(*DevelopmentOptions)

// WithDevStorage stores files below dir instead of ./dev-data.
func WithDevStorage(dir string) DevelopmentOption {
	return func(o *DevelopmentOptions) { o.StorageDir = dir }
}

// WithDevBaseURL sets the origin signed file links point at.
func WithDevBaseURL(base string) DevelopmentOption {
	return func(o *DevelopmentOptions) { o.BaseURL = base }
}

// WithoutStarterTypes skips seeding the default block types.
func WithoutStarterTypes() DevelopmentOption {
	return func(o *DevelopmentOptions) { o.StarterTypes = false }
}

// WithDevServiceOption passes an extra option to simplesite.New.
func WithDevServiceOption(opt simplesite.Option) DevelopmentOption {
	return func(o *DevelopmentOptions) { o.Extra = append(o.Extra, opt) }
}

// NewDevelopment returns an in-memory service storing files on disk and
// seeded with the starter block types. cleanup removes the storage directory.
func NewDevelopment(opts ...DevelopmentOption) (simplesite.Service, func(), error) {
	o := DevelopmentOptions{
		StorageDir:    "./dev-data",
		BaseURL:       "http://localhost:8080",
		SigningSecret: "dev-signing-secret",
		StarterTypes:  true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	signer, err := signedurl.New(signedurl.WithSecretKey(o.SigningSecret), signedurl.WithBaseURL(o.BaseURL))
	if err != nil {
		return nil, nil, err
	}
	blobs, err := fsstorage.New(fsstorage.Config{BaseDir: o.StorageDir, Signer: signer, Expiry: time.Hour})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create filesystem storage: %w", err)
	}
	cleanup := func() { os.RemoveAll(o.StorageDir) }

	svc, err := simplesite.New(append([]simplesite.Option{
		simplesite.WithRepository(memory.New()),
		simplesite.WithBlobStore(blobs),
	}, o.Extra...)...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	if o.StarterTypes {
		if _, err := simplesite.SeedStarterContentBlockTypes(context.Background(), svc); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to seed block types: %w", err)
		}
	}
	return svc, cleanup, nil
}

// TestingOptions configures NewTesting.
type TestingOptions struct {
	StarterTypes bool
	Extra        []simplesite.Option
}

// TestingOption modifies TestingOptions.
type TestingOption func(*TestingOptions)

// WithTestFixtures seeds the starter block types.
func WithTestFixtures() TestingOption {
	return func(o *TestingOptions) { o.StarterTypes = true }
}

// WithTestServiceOption passes an extra option to simplesite.New.
func WithTestServiceOption(opt simplesite.Option) TestingOption {
	return func(o *TestingOptions) { o.Extra = append(o.Extra, opt) }
}

// NewTesting returns a fully in-memory service. Failures abort the test.
func NewTesting(t testing.TB, opts ...TestingOption) simplesite.Service {
	t.Helper()
	var o TestingOptions
	for _, opt := range opts {
		opt(&o)
	}

	signer, err := signedurl.New(signedurl.WithSecretKey("testing-secret"), signedurl.WithBaseURL("http://files.test"))
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	svc, err := simplesite.New(append([]simplesite.Option{
		simplesite.WithRepository(memory.New()),
		simplesite.WithBlobStore(memorystorage.New(signer, time.Minute)),
	}, o.Extra...)...)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	if o.StarterTypes {
		if _, err := simplesite.SeedStarterContentBlockTypes(context.Background(), svc); err != nil {
			t.Fatalf("failed to seed block types: %v", err)
		}
	}
	return svc
}
