package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aarnphm/morph/internal/noteservice"
	"github.com/aarnphm/morph/internal/store"
	"github.com/aarnphm/morph/internal/vault"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(db *store.DB, vaults *vault.Service, notes *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(vaults, notes)
	rh := NewReferenceHandler(db, vaults)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Vaults and trees.
	r.Get("/vaults", h.ListVaults)
	r.Post("/vaults", h.CreateVault)
	r.Get("/vaults/active", h.ActiveVault)
	r.Post("/vaults/close", h.CloseVault)
	r.Post("/vaults/{id}/open", h.OpenVault)
	r.Delete("/vaults/{id}", h.DeleteVault)
	r.Post("/vaults/{id}/rescan", h.RescanVault)
	r.Get("/vaults/{id}/tree", h.VaultTree)
	r.Post("/vaults/{id}/tree/toggle", h.ToggleFolder)
	r.Get("/vaults/{id}/settings", h.GetSettings)
	r.Put("/vaults/{id}/settings", h.UpdateSettings)

	// Notes and the editor canvas.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.AddNote)
	r.Delete("/notes/{id}", h.DropNote)
	r.Post("/notes/{id}/editor", h.MoveToEditor)
	r.Delete("/notes/{id}/editor", h.RemoveFromEditor)
	r.Post("/notes/{id}/embedding", h.SubmitNoteEmbedding)
	r.Get("/notes/{id}/similar", h.SimilarNotes)

	// Suggestions and reasoning traces.
	r.Post("/suggestions", h.Suggest)
	r.Post("/suggestions/stream", h.SuggestStream)
	r.Get("/reasonings", h.Reasonings)

	// Steering parameters.
	r.Get("/steering/defaults", h.SteeringDefaults)
	r.Post("/steering/tonality", h.NormalizeTonality)

	// Search.
	r.Get("/search", h.Search)

	// File embeddings and task polling.
	r.Post("/files/embedding", h.SubmitFileEmbedding)
	r.Get("/tasks", h.Tasks)

	// Agent health proxy.
	r.Get("/agent/health", h.AgentHealth)

	// Citation databases.
	r.Post("/references", rh.Upload)
	r.Get("/references", rh.Get)
	r.Get("/references/file", rh.ServeFile)
	r.Delete("/references/{id}", rh.Delete)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
