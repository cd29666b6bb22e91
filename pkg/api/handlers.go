package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/platinummonkey/shelf/pkg/httputil"
	"github.com/platinummonkey/shelf/pkg/manifest"
	"github.com/platinummonkey/shelf/pkg/observability"
	"github.com/platinummonkey/shelf/pkg/registry"
)

// Handlers serves the registry endpoints
type Handlers struct {
	service *registry.Service
	logger  *observability.Logger
	logoDir string
}

// NewHandlers creates the endpoint handlers
func NewHandlers(service *registry.Service, logger *observability.Logger, logoDir string) *Handlers {
	return &Handlers{service: service, logger: logger, logoDir: logoDir}
}

// UploadPlugin stages a multipart-uploaded archive and returns the preview
func (h *Handlers) UploadPlugin(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteBadRequest(w, "missing file field in multipart form")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httputil.WriteBadRequest(w, "failed to read uploaded file")
		return
	}

	preview, err := h.service.Stage(r.Context(), data, header.Filename)
	if err != nil {
		var extractErr *manifest.ExtractionError
		if errors.As(err, &extractErr) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("failed to stage submission")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteData(w, preview)
}

// CommitPlugin authenticates and publishes a staged submission
func (h *Handlers) CommitPlugin(w http.ResponseWriter, r *http.Request) {
	var req registry.CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}
	if req.PluginID == "" || req.Version == "" || req.File == "" {
		httputil.WriteBadRequest(w, "plugin_id, version, and file are required")
		return
	}

	if err := h.service.Commit(r.Context(), &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteMessage(w, "plugin published")
}

// DeletePlugin retires a plugin, softly or permanently
func (h *Handlers) DeletePlugin(w http.ResponseWriter, r *http.Request) {
	var req registry.RetireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}
	if req.PluginID == "" {
		httputil.WriteBadRequest(w, "plugin_id is required")
		return
	}

	if err := h.service.Retire(r.Context(), &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteMessage(w, "plugin retired")
}

// GetPlugins lists every published release
func (h *Handlers) GetPlugins(w http.ResponseWriter, r *http.Request) {
	releases, err := h.service.ListPublished(r.Context())
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to list published plugins")
		httputil.WriteInternalError(w, err)
		return
	}
	if releases == nil {
		releases = []registry.PluginRelease{}
	}

	httputil.WriteData(w, releases)
}

// Image serves a published logo from the public logo directory. The path
// query parameter is confined to that directory.
func (h *Handlers) Image(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("path")
	if name == "" {
		httputil.WriteBadRequest(w, "path query parameter is required")
		return
	}

	root := filepath.Clean(h.logoDir)
	dest := filepath.Join(root, filepath.FromSlash(name))
	if dest != root && !strings.HasPrefix(dest, root+string(os.PathSeparator)) {
		httputil.WriteBadRequest(w, "invalid image path")
		return
	}

	info, err := os.Stat(dest)
	if err != nil || info.IsDir() {
		httputil.WriteNotFound(w, "image not found")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, dest)
}

// writeServiceError maps workflow errors onto the response envelope. Auth
// failures keep their distinct messages so a submitter can tell an absent
// secret from a wrong one.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if registry.IsAuthError(err) {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	if errors.Is(err, registry.ErrNotFound) {
		httputil.WriteNotFound(w, err.Error())
		return
	}

	observability.FromContext(r.Context()).WithError(err).Error("request failed")
	httputil.WriteInternalError(w, err)
}
