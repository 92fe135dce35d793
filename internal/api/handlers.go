package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aarnphm/morph/internal/agent"
	"github.com/aarnphm/morph/internal/models"
	"github.com/aarnphm/morph/internal/noteservice"
	"github.com/aarnphm/morph/internal/steering"
	"github.com/aarnphm/morph/internal/vault"
)

// Handler holds API route handlers.
type Handler struct {
	vaults *vault.Service
	notes  *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(vaults *vault.Service, notes *noteservice.Service) *Handler {
	return &Handler{vaults: vaults, notes: notes}
}

// ListVaults handles GET /api/vaults.
//
//	@Summary		List known vaults, most recently opened first
//	@Tags			vaults
//	@Produce		json
//	@Success		200	{object}	VaultListResponse
//	@Security		BearerAuth
//	@Router			/vaults [get]
func (h *Handler) ListVaults(w http.ResponseWriter, r *http.Request) {
	vaults, err := h.vaults.List()
	if err != nil {
		writeError(w, err, "list vaults")
		return
	}
	writeJSON(w, http.StatusOK, VaultListResponse{Vaults: vaults})
}

// CreateVault handles POST /api/vaults.
//
//	@Summary		Register a directory as a vault and scan its tree
//	@Tags			vaults
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateVaultRequest	true	"Vault to register"
//	@Success		201		{object}	models.Vault
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vaults [post]
func (h *Handler) CreateVault(w http.ResponseWriter, r *http.Request) {
	var req CreateVaultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Name == "" || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name and path are required"))
		return
	}
	v, err := h.vaults.Create(req.Name, req.Path)
	if err != nil {
		writeError(w, err, "create vault")
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// OpenVault handles POST /api/vaults/{id}/open.
//
//	@Summary		Make a vault the active one
//	@Tags			vaults
//	@Produce		json
//	@Param			id	path		string	true	"Vault id"
//	@Success		200	{object}	models.Vault
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vaults/{id}/open [post]
func (h *Handler) OpenVault(w http.ResponseWriter, r *http.Request) {
	v, err := h.vaults.Open(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "open vault")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// CloseVault handles POST /api/vaults/close.
//
//	@Summary		Deactivate the active vault
//	@Tags			vaults
//	@Success		204	"No vault active afterwards"
//	@Security		BearerAuth
//	@Router			/vaults/close [post]
func (h *Handler) CloseVault(w http.ResponseWriter, _ *http.Request) {
	h.vaults.Close()
	w.WriteHeader(http.StatusNoContent)
}

// ActiveVault handles GET /api/vaults/active.
func (h *Handler) ActiveVault(w http.ResponseWriter, r *http.Request) {
	v, err := h.vaults.Active()
	if err != nil {
		writeError(w, err, "active vault")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// DeleteVault handles DELETE /api/vaults/{id}.
//
//	@Summary		Forget a vault and drop its entities and handles
//	@Tags			vaults
//	@Param			id	path	string	true	"Vault id"
//	@Success		204	"Vault deleted"
//	@Security		BearerAuth
//	@Router			/vaults/{id} [delete]
func (h *Handler) DeleteVault(w http.ResponseWriter, r *http.Request) {
	if err := h.vaults.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, err, "delete vault")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RescanVault handles POST /api/vaults/{id}/rescan.
func (h *Handler) RescanVault(w http.ResponseWriter, r *http.Request) {
	v, err := h.vaults.Rescan(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "rescan vault")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// VaultTree handles GET /api/vaults/{id}/tree. It returns the runtime tree,
// with files that lost their handle flagged for regrant.
//
//	@Summary		Get the runtime file tree of a vault
//	@Tags			vaults
//	@Produce		json
//	@Param			id	path		string	true	"Vault id"
//	@Success		200	{object}	vault.RuntimeNode
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vaults/{id}/tree [get]
func (h *Handler) VaultTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.vaults.RuntimeTree(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "vault tree")
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// ToggleFolder handles POST /api/vaults/{id}/tree/toggle.
func (h *Handler) ToggleFolder(w http.ResponseWriter, r *http.Request) {
	var req ToggleFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.NodeID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("node_id is required"))
		return
	}
	if err := h.vaults.ToggleFolder(chi.URLParam(r, "id"), req.NodeID); err != nil {
		writeError(w, err, "toggle folder")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSettings handles GET /api/vaults/{id}/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	v, err := h.vaults.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "get settings")
		return
	}
	writeJSON(w, http.StatusOK, v.Settings)
}

// UpdateSettings handles PUT /api/vaults/{id}/settings. The body replaces the
// stored settings wholesale.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.vaults.UpdateSettings(id, settings); err != nil {
		writeError(w, err, "update settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// ListNotes handles GET /api/notes?file_id=...&editor=true.
//
//	@Summary		List the notes attached to a file
//	@Tags			notes
//	@Produce		json
//	@Param			file_id	query		string	true	"File id"
//	@Param			editor	query		bool	false	"Only notes placed in the editor"
//	@Success		200		{object}	NoteListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("file_id")
	if fileID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'file_id' is required"))
		return
	}
	var (
		notes []models.Note
		err   error
	)
	if r.URL.Query().Get("editor") == "true" {
		notes, err = h.notes.EditorNotes(fileID)
	} else {
		notes, err = h.notes.Notes(fileID)
	}
	if err != nil {
		writeError(w, err, "list notes")
		return
	}
	if notes == nil {
		notes = []models.Note{}
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes})
}

// AddNote handles POST /api/notes.
//
//	@Summary		Attach a note to a file
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AddNoteRequest	true	"Note to add"
//	@Success		201		{object}	models.Note
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req AddNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.VaultID == "" || req.FileID == "" || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("vault_id, file_id and content are required"))
		return
	}
	note, err := h.notes.AddNote(r.Context(), req.VaultID, req.FileID, req.Content, req.Steering)
	if err != nil {
		writeError(w, err, "add note")
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// DropNote handles DELETE /api/notes/{id}.
func (h *Handler) DropNote(w http.ResponseWriter, r *http.Request) {
	if err := h.notes.Drop(chi.URLParam(r, "id")); err != nil {
		writeError(w, err, "drop note")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveToEditor handles POST /api/notes/{id}/editor.
//
//	@Summary		Place a note on the editor canvas
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Note id"
//	@Param			body	body		MoveToEditorRequest	true	"Canvas position"
//	@Success		200		{object}	models.Note
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/editor [post]
func (h *Handler) MoveToEditor(w http.ResponseWriter, r *http.Request) {
	var req MoveToEditorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	note, err := h.notes.MoveToEditor(chi.URLParam(r, "id"), models.Position{X: req.X, Y: req.Y})
	if err != nil {
		writeError(w, err, "move to editor")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// RemoveFromEditor handles DELETE /api/notes/{id}/editor. The note keeps its
// last position so it re-enters where it was dropped.
func (h *Handler) RemoveFromEditor(w http.ResponseWriter, r *http.Request) {
	note, err := h.notes.RemoveFromEditor(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "remove from editor")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// SubmitNoteEmbedding handles POST /api/notes/{id}/embedding.
func (h *Handler) SubmitNoteEmbedding(w http.ResponseWriter, r *http.Request) {
	note, err := h.notes.Note(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "note embedding")
		return
	}
	if err := h.notes.SubmitNoteEmbeddings(r.Context(), []models.Note{*note}); err != nil {
		writeError(w, err, "note embedding")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// SimilarNotes handles GET /api/notes/{id}/similar.
//
//	@Summary		Rank other notes by embedding similarity
//	@Tags			notes
//	@Produce		json
//	@Param			id		path		string	true	"Note id"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/notes/{id}/similar [get]
func (h *Handler) SimilarNotes(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.notes.SimilarNotes(chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err, "similar notes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// Suggest handles POST /api/suggestions. It reads the file, asks the agent
// for suggestions, and persists one note per suggestion plus the reasoning
// trace behind them.
//
//	@Summary		Generate suggestion notes for a file
//	@Tags			suggestions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SuggestRequest	true	"Generation parameters"
//	@Success		201		{object}	SuggestResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/suggestions [post]
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	var req SuggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.VaultID == "" || req.FileID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("vault_id and file_id are required"))
		return
	}
	notes, reasoning, err := h.notes.GenerateNotes(r.Context(), req.VaultID, req.FileID, req.Steering)
	if err != nil {
		writeError(w, err, "suggest")
		return
	}
	writeJSON(w, http.StatusCreated, SuggestResponse{Notes: notes, Reasoning: *reasoning})
}

// SuggestStream handles POST /api/suggestions/stream. Agent events are
// relayed as NDJSON lines while generation runs; once the stream finishes,
// the suggestions are persisted and a final "persisted" line carries the
// created notes and the reasoning trace.
func (h *Handler) SuggestStream(w http.ResponseWriter, r *http.Request) {
	var req SuggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.VaultID == "" || req.FileID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("vault_id and file_id are required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")

	enc := json.NewEncoder(w)
	notes, reasoning, err := h.notes.StreamSuggestions(r.Context(), req.VaultID, req.FileID, req.Steering, func(ev agent.StreamEvent) error {
		if err := enc.Encode(ev); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// Headers are already out; report the failure in-band.
		_ = enc.Encode(map[string]string{"type": "error", "error": err.Error()})
		flusher.Flush()
		return
	}
	_ = enc.Encode(map[string]any{
		"type":      "persisted",
		"notes":     notes,
		"reasoning": reasoning,
	})
	flusher.Flush()
}

// Reasonings handles GET /api/reasonings?file_id=....
func (h *Handler) Reasonings(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("file_id")
	if fileID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'file_id' is required"))
		return
	}
	traces, err := h.notes.Reasonings(fileID)
	if err != nil {
		writeError(w, err, "reasonings")
		return
	}
	if traces == nil {
		traces = []models.Reasoning{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reasonings": traces})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across a vault's notes
//	@Tags			search
//	@Produce		json
//	@Param			vault_id	query		string	true	"Vault id"
//	@Param			q			query		string	true	"Search query"
//	@Param			limit		query		int		false	"Max results"
//	@Success		200			{object}	map[string]any
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	vaultID := r.URL.Query().Get("vault_id")
	if q == "" || vaultID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameters 'q' and 'vault_id' are required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.notes.SearchNotes(vaultID, q, limit)
	if err != nil {
		writeError(w, err, "search")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// SubmitFileEmbedding handles POST /api/files/embedding.
func (h *Handler) SubmitFileEmbedding(w http.ResponseWriter, r *http.Request) {
	var req FileEmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.VaultID == "" || req.FileID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("vault_id and file_id are required"))
		return
	}
	if err := h.notes.SubmitFileEmbedding(r.Context(), req.VaultID, req.FileID); err != nil {
		writeError(w, err, "file embedding")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// AgentHealth handles GET /api/agent/health. The report degrades to
// unhealthy instead of erroring when the agent is unreachable.
func (h *Handler) AgentHealth(w http.ResponseWriter, r *http.Request) {
	timeout := 5 * time.Second
	if s := r.URL.Query().Get("timeout"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}
	writeJSON(w, http.StatusOK, h.notes.BackendHealth(r.Context(), timeout))
}

// SteeringDefaults handles GET /api/steering/defaults.
func (h *Handler) SteeringDefaults(w http.ResponseWriter, r *http.Request) {
	st := steering.Default()
	writeJSON(w, http.StatusOK, SteeringDefaultsResponse{
		Steering:         st,
		TemperatureLabel: steering.TemperatureLabel(st.Temperature),
	})
}

// NormalizeTonality handles POST /api/steering/tonality. The edited axis is
// kept as sent (clamped to [0,1]) and the remaining axes are rescaled so the
// weights sum to at most one.
func (h *Handler) NormalizeTonality(w http.ResponseWriter, r *http.Request) {
	var req NormalizeTonalityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Edited == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("edited axis is required"))
		return
	}
	if _, ok := req.Tonality[req.Edited]; !ok {
		writeJSON(w, http.StatusBadRequest, errorBody(
			"unknown axis "+strconv.Quote(req.Edited)+", expected one of "+strings.Join(steering.Axes(req.Tonality), ", ")))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tonality": steering.NormalizeTonality(req.Tonality, req.Edited, steering.Clamp01(req.Value)),
	})
}

// Tasks handles GET /api/tasks.
func (h *Handler) Tasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.notes.PendingTasks()
	if tasks == nil {
		tasks = []string{}
	}
	writeJSON(w, http.StatusOK, TaskListResponse{Tasks: tasks})
}
