package portfolio

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

const (
	// DefaultMaxUploadBytes caps one upload request body.
	DefaultMaxUploadBytes = 64 << 20

	// multipartMemory is how much of a multipart body is held in memory
	// before spilling file parts to temp files.
	multipartMemory = 8 << 20

	// uploadsPrefix is the site-relative directory stored in records.
	uploadsPrefix = "uploads"
)

// HandlerConfig configures the HTTP API.
type HandlerConfig struct {
	UploadsDir  string
	MaxBytes    int64
	ThumbnailPx int

	// UploadLimit uploads per UploadWindow per client IP. Zero disables
	// limiting.
	UploadLimit  int
	UploadWindow time.Duration

	// OnAdd, if set, is called after a project has been stored.
	OnAdd func(Project)
}

// Handler serves the project listing, upload and uploaded files.
type Handler struct {
	store   Store
	cfg     HandlerConfig
	limiter *RateLimiter
	now     func() time.Time
}

// NewHandler creates the API handler over store.
func NewHandler(store Store, cfg HandlerConfig) *Handler {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxUploadBytes
	}
	if cfg.ThumbnailPx <= 0 {
		cfg.ThumbnailPx = DefaultThumbnailPx
	}
	h := &Handler{store: store, cfg: cfg, now: time.Now}
	if cfg.UploadLimit > 0 && cfg.UploadWindow > 0 {
		h.limiter = NewRateLimiter(cfg.UploadLimit, cfg.UploadWindow)
	}
	return h
}

// Limiter returns the upload rate limiter, or nil when limiting is off.
func (h *Handler) Limiter() *RateLimiter { return h.limiter }

// Register mounts the API and the uploads file server on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/projects", h.handleProjects)

	upload := h.handleUpload
	if h.limiter != nil {
		upload = RateLimit(h.limiter, upload)
	}
	mux.HandleFunc("/api/upload", upload)

	mux.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(h.cfg.UploadsDir))))
}

type errorBody struct {
	Error string `json:"error"`
}

type uploadResponse struct {
	Success bool    `json:"success"`
	Project Project `json:"project"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

// handleProjects serves GET /api/projects[?category=...].
func (h *Handler) handleProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
		return
	}

	projects, err := h.store.List(r.Context())
	if err != nil {
		slog.Error("failed to read projects", "error", err)
		writeJSON(w, http.StatusInternalServerError, []Project{})
		return
	}
	writeJSON(w, http.StatusOK, FilterCategory(projects, r.URL.Query().Get("category")))
}

// uploadFields are the text fields of an upload, from a form or JSON body.
type uploadFields struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// handleUpload serves POST /api/upload.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBytes)

	fields, files, err := h.parseUpload(r)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "Upload too large"})
			return
		}
		slog.Warn("malformed upload", "error", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Malformed upload"})
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	if fields.Title == "" || fields.Category == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Missing title or category"})
		return
	}

	project, err := h.storeUpload(r, fields, files)
	if err != nil {
		slog.Error("upload failed", "title", fields.Title, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
		return
	}

	if h.cfg.OnAdd != nil {
		h.cfg.OnAdd(project)
	}
	writeJSON(w, http.StatusOK, uploadResponse{Success: true, Project: project})
}

// parseUpload reads the text fields and file parts. Multipart, urlencoded
// and JSON bodies are accepted; only multipart carries files.
func (h *Handler) parseUpload(r *http.Request) (uploadFields, map[string][]*multipart.FileHeader, error) {
	var fields uploadFields

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil && !errors.Is(err, io.EOF) {
			return fields, nil, err
		}
		return fields, nil, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return fields, nil, err
	}
	fields.Title = r.FormValue("title")
	fields.Description = r.FormValue("description")
	fields.Category = r.FormValue("category")

	if r.MultipartForm == nil {
		return fields, nil, nil
	}
	return fields, r.MultipartForm.File, nil
}

func (h *Handler) storeUpload(r *http.Request, fields uploadFields, files map[string][]*multipart.FileHeader) (project Project, err error) {
	if err := os.MkdirAll(h.cfg.UploadsDir, 0o755); err != nil {
		return Project{}, fmt.Errorf("create uploads dir: %w", err)
	}

	// Everything written for this request goes if the record is not stored.
	var written []string
	defer func() {
		if err != nil {
			h.removeUploads(written)
		}
	}()

	media, err := h.saveAll(files["media"], &written)
	if err != nil {
		return Project{}, err
	}
	thumbs, err := h.saveAll(files["thumbnail"], &written)
	if err != nil {
		return Project{}, err
	}

	var thumbnail *string
	switch {
	case len(thumbs) > 0:
		thumbnail = &thumbs[0]
	case len(media) > 0:
		t := media[0]
		if gen, ok := h.generateThumbnail(media[0]); ok {
			written = append(written, gen)
			t = gen
		}
		thumbnail = &t
	}

	project = NewProject(h.now(), fields.Title, fields.Description, fields.Category, media, thumbnail)
	if err := h.store.Add(r.Context(), project); err != nil {
		return Project{}, fmt.Errorf("store project: %w", err)
	}
	slog.Info("project uploaded",
		"id", project.ID,
		"title", project.Title,
		"category", project.Category,
		"media", len(project.Media),
	)
	return project, nil
}

// saveAll saves every part, recording each stored path in written as it
// goes.
func (h *Handler) saveAll(headers []*multipart.FileHeader, written *[]string) ([]string, error) {
	paths := make([]string, 0, len(headers))
	for _, fh := range headers {
		p, err := h.saveFile(fh)
		if err != nil {
			return nil, err
		}
		*written = append(*written, p)
		paths = append(paths, p)
	}
	return paths, nil
}

func (h *Handler) removeUploads(rels []string) {
	for _, rel := range rels {
		if err := os.Remove(filepath.Join(h.cfg.UploadsDir, path.Base(rel))); err != nil && !os.IsNotExist(err) {
			slog.Warn("remove orphaned upload failed", "file", rel, "error", err)
		}
	}
}

// saveFile stores one part under a fresh UUID name, keeping the uploaded
// file's extension, and returns its site-relative path.
func (h *Handler) saveFile(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open part %q: %w", fh.Filename, err)
	}
	defer src.Close()

	name := uuid.NewString() + strings.ToLower(filepath.Ext(filepath.Base(fh.Filename)))
	dst, err := os.OpenFile(filepath.Join(h.cfg.UploadsDir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("write %s: %w", name, err)
	}

	slog.Debug("saved upload", "file", fh.Filename, "as", name, "size", humanize.Bytes(uint64(n)))
	return path.Join(uploadsPrefix, name), nil
}

// generateThumbnail renders a PNG thumbnail for the uploaded file at rel.
// ok is false when the file is not a decodable image.
func (h *Handler) generateThumbnail(rel string) (string, bool) {
	src := filepath.Join(h.cfg.UploadsDir, path.Base(rel))
	name := uuid.NewString() + ".png"
	dst := filepath.Join(h.cfg.UploadsDir, name)

	if err := WriteThumbnailPNG(src, dst, h.cfg.ThumbnailPx); err != nil {
		slog.Debug("no thumbnail generated", "file", rel, "error", err)
		os.Remove(dst)
		return "", false
	}
	return path.Join(uploadsPrefix, name), true
}
