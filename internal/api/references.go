package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aarnphm/morph/internal/models"
	"github.com/aarnphm/morph/internal/storage"
	"github.com/aarnphm/morph/internal/store"
	"github.com/aarnphm/morph/internal/vault"
)

const (
	referencesDir  = "references"
	maxUploadBytes = 50 << 20 // 50 MB
)

// ReferenceHandler accepts and serves citation database files. One reference
// is tracked per vault; a new upload replaces the previous one.
type ReferenceHandler struct {
	db     *store.DB
	vaults *vault.Service
}

// NewReferenceHandler creates a handler backed by the entity store.
func NewReferenceHandler(db *store.DB, vaults *vault.Service) *ReferenceHandler {
	return &ReferenceHandler{db: db, vaults: vaults}
}

// refDir returns the references directory inside a vault's config dir.
func refDir(rootPath string) string {
	return filepath.Join(rootPath, vault.ConfigDirName, referencesDir)
}

// safeName validates that the filename is a plain name (no path separators,
// no traversal) and returns the absolute path under the references dir.
func safeName(rootPath, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	dir := refDir(rootPath)
	abs := filepath.Join(dir, cleaned)
	if !strings.HasPrefix(abs, dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes references directory")
	}
	return abs, nil
}

// formatFor maps a filename to a citation format.
func formatFor(name, explicit string) (models.CitationFormat, error) {
	switch explicit {
	case string(models.FormatBibLaTeX):
		return models.FormatBibLaTeX, nil
	case string(models.FormatCSLJSON):
		return models.FormatCSLJSON, nil
	case "":
	default:
		return "", fmt.Errorf("unsupported format: %s", explicit)
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".bib":
		return models.FormatBibLaTeX, nil
	case ".json":
		return models.FormatCSLJSON, nil
	}
	return "", fmt.Errorf("cannot infer citation format from %q", name)
}

// Upload handles POST /api/references (multipart/form-data, field "file").
//
//	@Summary		Upload a citation database for a vault
//	@Tags			references
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			vault_id	formData	string	true	"Vault id"
//	@Param			format		formData	string	false	"Citation format"	Enums(biblatex, csl-json)
//	@Param			file		formData	file	true	"Citation file"
//	@Success		201			{object}	ReferenceUploadResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/references [post]
func (h *ReferenceHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	vaultID := r.FormValue("vault_id")
	if vaultID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("vault_id is required"))
		return
	}
	v, err := h.vaults.Get(vaultID)
	if err != nil {
		writeError(w, err, "reference upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	format, err := formatFor(header.Filename, r.FormValue("format"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	abs, err := safeName(v.RootPath, header.Filename)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read upload"))
		return
	}
	if err := storage.WriteAtomic(abs, data); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to write file"))
		return
	}

	ref := models.Reference{
		ID:           uuid.NewString(),
		VaultID:      vaultID,
		FileID:       r.FormValue("file_id"),
		Format:       format,
		Path:         abs,
		LastModified: time.Now(),
	}
	if err := h.db.PutReference(ref); err != nil {
		writeError(w, err, "reference upload")
		return
	}
	writeJSON(w, http.StatusCreated, ReferenceUploadResponse{Reference: ref})
}

// Get handles GET /api/references?vault_id=.... It returns the latest
// reference registered for the vault.
func (h *ReferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	vaultID := r.URL.Query().Get("vault_id")
	if vaultID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'vault_id' is required"))
		return
	}
	ref, err := h.db.GetReference(vaultID)
	if err != nil {
		writeError(w, err, "get reference")
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

// Delete handles DELETE /api/references/{id}. The stored file is left on
// disk; only the registration is removed.
func (h *ReferenceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.db.DeleteReference(chi.URLParam(r, "id")); err != nil {
		writeError(w, err, "delete reference")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeFile handles GET /api/references/file?vault_id=... and streams the
// stored citation database.
func (h *ReferenceHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	vaultID := r.URL.Query().Get("vault_id")
	if vaultID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'vault_id' is required"))
		return
	}
	ref, err := h.db.GetReference(vaultID)
	if err != nil {
		writeError(w, err, "serve reference")
		return
	}
	if _, statErr := os.Stat(ref.Path); os.IsNotExist(statErr) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, ref.Path)
}
