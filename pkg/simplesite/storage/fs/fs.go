package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tendant/simple-site/pkg/simplesite"
)

// URLSigner issues download links served by the files handler.
// *signedurl.Signer satisfies it.
type URLSigner interface {
	SignObjectURL(objectKey, downloadFilename string, expiresIn time.Duration) string
}

// Backend is a filesystem implementation of the simplesite.BlobStore interface
type Backend struct {
	baseDir string
	signer  URLSigner
	expiry  time.Duration
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string        // Base directory for storing files
	Signer  URLSigner     // Signs download links; required for GetDownloadURL
	Expiry  time.Duration // Lifetime of download links
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	baseDir, err := filepath.Abs(config.BaseDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Backend{
		baseDir: baseDir,
		signer:  config.Signer,
		expiry:  config.Expiry,
	}, nil
}

// resolve maps an object key below baseDir and refuses keys that escape it.
func (b *Backend) resolve(objectKey string) (string, error) {
	p := filepath.Join(b.baseDir, filepath.FromSlash(objectKey))
	if p != b.baseDir && !strings.HasPrefix(p, b.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("object key %q escapes the storage directory", objectKey)
	}
	return p, nil
}

// GetObjectMeta retrieves metadata for an object in the filesystem
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*simplesite.ObjectMeta, error) {
	filePath, err := b.resolve(objectKey)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, simplesite.ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		contentType = "application/octet-stream"
		if file, err := os.Open(filePath); err == nil {
			defer file.Close()
			buffer := make([]byte, 512)
			if n, err := file.Read(buffer); err == nil {
				contentType = http.DetectContentType(buffer[:n])
			}
		}
	}

	return &simplesite.ObjectMeta{
		Key:         objectKey,
		Size:        info.Size(),
		ContentType: contentType,
		UpdatedAt:   info.ModTime(),
	}, nil
}

// Upload writes to a temporary file and renames it into place so readers
// never observe a partial object.
func (b *Backend) Upload(ctx context.Context, reader io.Reader, params simplesite.UploadParams) error {
	filePath, err := b.resolve(params.ObjectKey)
	if err != nil {
		return err
	}
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return os.Rename(tmp.Name(), filePath)
}

// GetDownloadURL returns a signed link served by the files handler
func (b *Backend) GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error) {
	if b.signer == nil {
		return "", errors.New("direct download required for filesystem backend")
	}
	return b.signer.SignObjectURL(objectKey, downloadFilename, b.expiry), nil
}

// Download downloads content directly from the filesystem
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	filePath, err := b.resolve(objectKey)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, simplesite.ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete deletes content from the filesystem
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	filePath, err := b.resolve(objectKey)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return simplesite.ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	b.cleanupEmptyDirectories(filepath.Dir(filePath))
	return nil
}

// cleanupEmptyDirectories removes empty directories up to baseDir
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir || !strings.HasPrefix(dir, b.baseDir) {
		return
	}
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}
