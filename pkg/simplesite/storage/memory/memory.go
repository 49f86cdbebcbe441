package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/tendant/simple-site/pkg/simplesite"
)

// URLSigner issues download links for backends that cannot presign themselves.
// *signedurl.Signer satisfies it.
type URLSigner interface {
	SignObjectURL(objectKey, downloadFilename string, expiresIn time.Duration) string
}

type object struct {
	data      []byte
	mimeType  string
	updatedAt time.Time
}

// Backend is an in-memory implementation of the simplesite.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
	signer  URLSigner
	expiry  time.Duration
}

// New creates a new in-memory storage backend. signer may be nil, in which
// case download links are unavailable.
func New(signer URLSigner, expiry time.Duration) *Backend {
	return &Backend{
		objects: make(map[string]object),
		signer:  signer,
		expiry:  expiry,
	}
}

// GetObjectMeta retrieves metadata for an object in memory
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*simplesite.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, simplesite.ErrObjectNotFound
	}
	return &simplesite.ObjectMeta{
		Key:         objectKey,
		Size:        int64(len(obj.data)),
		ContentType: obj.mimeType,
		UpdatedAt:   obj.updatedAt,
	}, nil
}

// Upload stores the reader's bytes
func (b *Backend) Upload(ctx context.Context, reader io.Reader, params simplesite.UploadParams) error {
	if params.ObjectKey == "" {
		return errors.New("object key is required")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	mimeType := params.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[params.ObjectKey] = object{data: data, mimeType: mimeType, updatedAt: time.Now()}
	return nil
}

// GetDownloadURL returns a signed link served by the files handler
func (b *Backend) GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error) {
	if b.signer == nil {
		return "", errors.New("direct download required for memory backend")
	}
	return b.signer.SignObjectURL(objectKey, downloadFilename, b.expiry), nil
}

// Download downloads content directly
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, simplesite.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Delete deletes content
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[objectKey]; !exists {
		return simplesite.ErrObjectNotFound
	}
	delete(b.objects, objectKey)
	return nil
}
