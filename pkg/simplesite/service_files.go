package simplesite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/tendant/simple-site/pkg/simplesite/objectkey"
)

// WithObjectKeyGenerator sets the private-file key strategy
func WithObjectKeyGenerator(g objectkey.Generator) Option {
	return func(s *service) {
		s.keyGenerator = g
	}
}

func (s *service) objectKey(orgID, fileID uuid.UUID, name string) string {
	return s.keyGenerator.GenerateKey(orgID, fileID, name)
}

// countingReader records how many bytes the blob store consumed.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (s *service) UploadFile(ctx context.Context, scope Scope, req UploadFileRequest) (*PrivateFile, error) {
	if err := scope.Require("upload file", RoleEditor); err != nil {
		return nil, err
	}
	if s.blobStore == nil {
		return nil, errors.New("no blob store configured")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, NewValidationError("file", "is required")
	}
	if req.Reader == nil {
		return nil, NewValidationError("file", "has no content")
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	f := &PrivateFile{
		ID:             uuid.New(),
		OrganisationID: scope.OrganisationID(),
		Name:           name,
		MimeType:       mimeType,
		CreatedAt:      s.timestamp(),
	}
	f.ObjectKey = s.objectKey(f.OrganisationID, f.ID, name)

	counter := &countingReader{r: req.Reader}
	if err := s.blobStore.Upload(ctx, counter, UploadParams{ObjectKey: f.ObjectKey, MimeType: mimeType}); err != nil {
		return nil, &StorageError{Backend: "blob", Key: f.ObjectKey, Op: "upload", Err: err}
	}
	f.Size = counter.n

	if err := s.repository.CreatePrivateFile(ctx, f); err != nil {
		if delErr := s.blobStore.Delete(ctx, f.ObjectKey); delErr != nil {
			slog.Warn("Failed to remove orphaned upload", "object_key", f.ObjectKey, "err", delErr)
		}
		return nil, err
	}
	return f, nil
}

func (s *service) GetFile(ctx context.Context, scope Scope, id uuid.UUID) (*PrivateFile, error) {
	if err := scope.Require("get file", RoleViewer); err != nil {
		return nil, err
	}
	f, err := s.repository.GetPrivateFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.OrganisationID != scope.OrganisationID() {
		return nil, ErrFileNotFound
	}
	return f, nil
}

func (s *service) GetFileURL(ctx context.Context, scope Scope, id uuid.UUID) (string, error) {
	f, err := s.GetFile(ctx, scope, id)
	if err != nil {
		return "", err
	}
	if s.blobStore == nil {
		return "", errors.New("no blob store configured")
	}
	return s.blobStore.GetDownloadURL(ctx, f.ObjectKey, f.Name)
}

func (s *service) ListFiles(ctx context.Context, scope Scope) ([]*PrivateFile, error) {
	if err := scope.Require("list files", RoleViewer); err != nil {
		return nil, err
	}
	return s.repository.ListPrivateFiles(ctx, scope.OrganisationID())
}

func (s *service) DeleteFile(ctx context.Context, scope Scope, id uuid.UUID) error {
	if err := scope.Require("delete file", RoleEditor); err != nil {
		return err
	}
	f, err := s.GetFile(ctx, scope, id)
	if err != nil {
		return err
	}
	if s.blobStore != nil {
		if err := s.blobStore.Delete(ctx, f.ObjectKey); err != nil && !errors.Is(err, ErrObjectNotFound) {
			return &StorageError{Backend: "blob", Key: f.ObjectKey, Op: "delete", Err: err}
		}
	}
	return s.repository.DeletePrivateFile(ctx, id)
}
