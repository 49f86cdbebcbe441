package api

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-site/pkg/simplesite"
	"github.com/tendant/simple-site/pkg/simplesite/signedurl"
)

// maxUploadMemory is how much of a multipart upload is buffered before spilling to disk
const maxUploadMemory = 32 << 20

func (h *AdminHandler) fileRoutes(r chi.Router) {
	r.Route("/files", func(r chi.Router) {
		r.Get("/", h.ListFiles)
		r.Post("/", h.UploadFile)
		r.Get("/{id}", h.GetFile)
		r.Get("/{id}/url", h.GetFileURL)
		r.Delete("/{id}", h.DeleteFile)
	})
}

// ListFiles lists the organisation's private files
func (h *AdminHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.service.ListFiles(r.Context(), scopeFrom(r))
	if err != nil {
		writeError(w, r, "Failed to list files", err)
		return
	}
	render.JSON(w, r, files)
}

// UploadFile stores the multipart "file" part. An optional "name" field
// overrides the uploaded filename.
func (h *AdminHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		slog.Info("Invalid upload", "path", r.URL.Path, "err", err)
		writeStatus(w, r, http.StatusBadRequest, "expected multipart form with a file")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, "Missing upload", simplesite.NewValidationError("file", "is required"))
		return
	}
	defer file.Close()

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}

	f, err := h.service.UploadFile(r.Context(), scopeFrom(r), simplesite.UploadFileRequest{
		Name:     name,
		MimeType: header.Header.Get("Content-Type"),
		Reader:   file,
	})
	if err != nil {
		writeError(w, r, "Failed to upload file", err)
		return
	}
	slog.Info("File uploaded", "file_id", f.ID, "size", f.Size)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, f)
}

// GetFile returns a file's metadata
func (h *AdminHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	f, err := h.service.GetFile(r.Context(), scopeFrom(r), id)
	if err != nil {
		writeError(w, r, "Failed to get file", err)
		return
	}
	render.JSON(w, r, f)
}

// FileURLResponse is a time-limited download link
type FileURLResponse struct {
	URL string `json:"url"`
}

// GetFileURL signs a download link for a file
func (h *AdminHandler) GetFileURL(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	link, err := h.service.GetFileURL(r.Context(), scopeFrom(r), id)
	if err != nil {
		writeError(w, r, "Failed to sign file URL", err)
		return
	}
	render.JSON(w, r, FileURLResponse{URL: link})
}

// DeleteFile deletes a file and its stored object
func (h *AdminHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteFile(r.Context(), scopeFrom(r), id); err != nil {
		writeError(w, r, "Failed to delete file", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FileServer streams objects behind signed links. It serves the memory and
// filesystem backends; S3 links point at the bucket directly.
type FileServer struct {
	signer *signedurl.Signer
	store  simplesite.BlobStore
}

// NewFileServer creates a file server validating links with signer
func NewFileServer(signer *signedurl.Signer, store simplesite.BlobStore) *FileServer {
	return &FileServer{signer: signer, store: store}
}

// Handler returns the handler mounted at the signer's URL pattern
func (fs *FileServer) Handler() http.Handler {
	return signedurl.Middleware(fs.signer)(http.HandlerFunc(fs.serve))
}

func (fs *FileServer) serve(w http.ResponseWriter, r *http.Request) {
	key := signedurl.ObjectKeyFromContext(r.Context())

	meta, err := fs.store.GetObjectMeta(r.Context(), key)
	if err != nil {
		if errors.Is(err, simplesite.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		slog.Error("Failed to stat object", "object_key", key, "err", err)
		http.Error(w, "Failed to read file", http.StatusInternalServerError)
		return
	}

	reader, err := fs.store.Download(r.Context(), key)
	if err != nil {
		slog.Error("Failed to open object", "object_key", key, "err", err)
		http.Error(w, "Failed to read file", http.StatusInternalServerError)
		return
	}
	defer reader.Close()

	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.Header().Set("Cache-Control", "private, no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if filename := r.URL.Query().Get("filename"); filename != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	}

	if _, err := io.Copy(w, reader); err != nil {
		slog.Warn("Download interrupted", "object_key", key, "err", err)
	}
}
