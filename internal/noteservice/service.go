// Package noteservice coordinates the store, vault handles, the suggestion
// backend, task polling, and the SSE broker into the operations the API and
// MCP surfaces expose.
package noteservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aarnphm/morph/internal/agent"
	"github.com/aarnphm/morph/internal/apperr"
	"github.com/aarnphm/morph/internal/models"
	"github.com/aarnphm/morph/internal/parser"
	"github.com/aarnphm/morph/internal/sse"
	"github.com/aarnphm/morph/internal/steering"
	"github.com/aarnphm/morph/internal/store"
	"github.com/aarnphm/morph/internal/task"
	"github.com/aarnphm/morph/internal/vault"
)

// Backend is the slice of the agent client the service depends on.
type Backend interface {
	Available(ctx context.Context) bool
	Health(ctx context.Context, timeout time.Duration) (*agent.HealthReport, error)
	TaskStatus(ctx context.Context, class agent.TaskClass, taskID string) (*agent.TaskStatusResponse, error)
	SubmitNoteEmbeddings(ctx context.Context, req agent.NoteEmbedRequest) (string, error)
	SubmitEssayEmbeddings(ctx context.Context, req agent.EssayEmbedRequest) (string, error)
	GetNoteEmbeddings(ctx context.Context, taskID string) ([]agent.NoteEmbedding, error)
	GetEssayEmbeddings(ctx context.Context, taskID string) ([]agent.EssayEmbedding, error)
	Suggest(ctx context.Context, req agent.SuggestRequest) ([]agent.Suggestion, error)
	SuggestStream(ctx context.Context, req agent.SuggestRequest, fn func(agent.StreamEvent) error) error
}

// Service is the entity-layer coordinator.
type Service struct {
	db      *store.DB
	vaults  *vault.Service
	backend Backend
	runner  *task.Runner
	broker  *sse.Broker
	log     *slog.Logger

	// baseCtx parents the per-task poll contexts so shutdown stops them.
	baseCtx context.Context
}

// New creates the service and wires task completion and vault-switch
// teardown. ctx bounds the lifetime of all background pollers.
func New(ctx context.Context, db *store.DB, vaults *vault.Service, backend Backend, broker *sse.Broker, log *slog.Logger, runnerOpts ...task.RunnerOption) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		db:      db,
		vaults:  vaults,
		backend: backend,
		broker:  broker,
		log:     log,
		baseCtx: ctx,
	}
	s.runner = task.NewRunner(task.NewRegistry(), backend.TaskStatus, s.handleCompletion,
		append([]task.RunnerOption{task.WithRunnerLogger(log)}, runnerOpts...)...)
	vaults.OnSwitch(func(oldID, _ string) {
		if oldID != "" {
			s.runner.StopVault(oldID)
		}
	})
	return s
}

// Shutdown waits for all pollers to stop. Call after baseCtx is cancelled.
func (s *Service) Shutdown() {
	s.runner.Wait()
}

// AddNote creates a note scoped to one file in one vault. The note starts
// outside the editor with no embedding requested.
func (s *Service) AddNote(_ context.Context, vaultID, fileID, content string, st *models.Steering) (*models.Note, error) {
	if st != nil {
		merged := steering.Merge(*st)
		if err := steering.Validate(merged); err != nil {
			return nil, fmt.Errorf("%w: %s", apperr.ErrInvalid, err)
		}
		st = &merged
	}
	now := time.Now()
	n := models.Note{
		ID:         uuid.NewString(),
		Content:    content,
		Color:      RandomColor(),
		FileID:     fileID,
		VaultID:    vaultID,
		CreatedAt:  now,
		AccessedAt: now,
		Steering:   st,
	}
	if err := s.db.AddNote(n); err != nil {
		return nil, err
	}
	s.broker.PublishNoteEvent("created", n.ID, fileID)
	return &n, nil
}

// Note returns a single note by id.
func (s *Service) Note(id string) (*models.Note, error) {
	return s.db.GetNote(id)
}

// Notes returns the notes attached to a file.
func (s *Service) Notes(fileID string) ([]models.Note, error) {
	return s.db.ListNotes(fileID)
}

// EditorNotes returns the notes currently placed in the editor for a file.
func (s *Service) EditorNotes(fileID string) ([]models.Note, error) {
	return s.db.ListEditorNotes(fileID)
}

// MoveToEditor places a note in the editor at a position.
func (s *Service) MoveToEditor(id string, pos models.Position) (*models.Note, error) {
	if err := s.db.MoveNoteToEditor(id, pos); err != nil {
		return nil, err
	}
	n, err := s.db.GetNote(id)
	if err != nil {
		return nil, err
	}
	s.broker.PublishNoteEvent("updated", id, n.FileID)
	return n, nil
}

// RemoveFromEditor takes a note out of the editor.
func (s *Service) RemoveFromEditor(id string) (*models.Note, error) {
	if err := s.db.RemoveNoteFromEditor(id); err != nil {
		return nil, err
	}
	n, err := s.db.GetNote(id)
	if err != nil {
		return nil, err
	}
	s.broker.PublishNoteEvent("updated", id, n.FileID)
	return n, nil
}

// Drop hides a note from all panels while keeping it for history.
func (s *Service) Drop(id string) error {
	n, err := s.db.GetNote(id)
	if err != nil {
		return err
	}
	if err := s.db.DropNote(id); err != nil {
		return err
	}
	s.broker.PublishNoteEvent("deleted", id, n.FileID)
	return nil
}

// GenerateNotes asks the backend for suggestions over a file's current
// content, records the reasoning trace, creates one note per suggestion
// with the steering snapshot attached, and queues their embeddings.
func (s *Service) GenerateNotes(ctx context.Context, vaultID, fileID string, st models.Steering) ([]models.Note, *models.Reasoning, error) {
	st = steering.Merge(st)
	title, req, err := s.prepareSuggestRequest(vaultID, fileID, st)
	if err != nil {
		return nil, nil, err
	}

	started := time.Now()
	suggestions, err := s.backend.Suggest(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	elapsed := time.Since(started)

	return s.persistSuggestions(ctx, vaultID, fileID, st, title, suggestions, elapsed)
}

// StreamSuggestions is the streaming variant of GenerateNotes. Events are
// forwarded to emit as they arrive; once the stream completes, the collected
// suggestions are persisted the same way the blocking path persists them.
func (s *Service) StreamSuggestions(ctx context.Context, vaultID, fileID string, st models.Steering, emit func(agent.StreamEvent) error) ([]models.Note, *models.Reasoning, error) {
	st = steering.Merge(st)
	title, req, err := s.prepareSuggestRequest(vaultID, fileID, st)
	if err != nil {
		return nil, nil, err
	}

	started := time.Now()
	var suggestions []agent.Suggestion
	err = s.backend.SuggestStream(ctx, req, func(ev agent.StreamEvent) error {
		if ev.Type == agent.EventSuggestion && ev.Suggestion != "" {
			suggestions = append(suggestions, agent.Suggestion{Suggestion: ev.Suggestion})
		}
		return emit(ev)
	})
	if err != nil {
		return nil, nil, err
	}
	elapsed := time.Since(started)

	return s.persistSuggestions(ctx, vaultID, fileID, st, title, suggestions, elapsed)
}

// prepareSuggestRequest validates the already-merged steering, reads the
// file through its handle, and assembles the agent request with prior note
// context.
func (s *Service) prepareSuggestRequest(vaultID, fileID string, st models.Steering) (string, agent.SuggestRequest, error) {
	if err := steering.Validate(st); err != nil {
		return "", agent.SuggestRequest{}, fmt.Errorf("%w: %s", apperr.ErrInvalid, err)
	}
	data, err := s.vaults.ReadFile(vaultID, fileID)
	if err != nil {
		return "", agent.SuggestRequest{}, err
	}
	doc, err := parser.Parse(data)
	if err != nil {
		return "", agent.SuggestRequest{}, err
	}

	existing, err := s.db.ListNotes(fileID)
	if err != nil {
		return "", agent.SuggestRequest{}, err
	}
	var priorNotes []string
	for _, n := range existing {
		if !n.Dropped {
			priorNotes = append(priorNotes, n.Content)
		}
	}

	return doc.Title, agent.SuggestRequest{
		Essay:          doc.Body,
		Authors:        st.Authors,
		Notes:          priorNotes,
		Tonality:       st.Tonality,
		NumSuggestions: st.NumSuggestions,
		Temperature:    st.Temperature,
	}, nil
}

func (s *Service) persistSuggestions(ctx context.Context, vaultID, fileID string, st models.Steering, title string, suggestions []agent.Suggestion, elapsed time.Duration) ([]models.Note, *models.Reasoning, error) {
	now := time.Now()
	stCopy := st
	reasoning := models.Reasoning{
		ID:         uuid.NewString(),
		Content:    title,
		FileID:     fileID,
		VaultID:    vaultID,
		CreatedAt:  now,
		AccessedAt: now,
		Duration:   elapsed,
		Steering:   &stCopy,
	}

	notes := make([]models.Note, 0, len(suggestions))
	for _, sug := range suggestions {
		n := models.Note{
			ID:          uuid.NewString(),
			Content:     sug.Suggestion,
			Color:       RandomColor(),
			FileID:      fileID,
			VaultID:     vaultID,
			ReasoningID: reasoning.ID,
			CreatedAt:   now,
			AccessedAt:  now,
			Steering:    &stCopy,
		}
		if err := s.db.AddNote(n); err != nil {
			return nil, nil, err
		}
		reasoning.NoteIDs = append(reasoning.NoteIDs, n.ID)
		notes = append(notes, n)
		s.broker.PublishNoteEvent("created", n.ID, fileID)
	}
	if err := s.db.AddReasoning(reasoning); err != nil {
		return nil, nil, err
	}

	if err := s.SubmitNoteEmbeddings(ctx, notes); err != nil {
		// Suggestions already landed; embedding submission failing is not
		// fatal to the generation itself.
		s.log.Warn("embedding submission failed after generation",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()))
	}
	return notes, &reasoning, nil
}

// SubmitNoteEmbeddings queues embeddings for notes that still need them.
// Notes with a stored vector are marked success immediately; notes with an
// in-flight task are left alone.
func (s *Service) SubmitNoteEmbeddings(ctx context.Context, notes []models.Note) error {
	var pending []models.Note
	for _, n := range notes {
		has, err := s.db.HasNoteEmbedding(n.ID)
		if err != nil {
			return err
		}
		if has {
			if err := s.db.SetNoteEmbedding(n.ID, models.EmbeddingSuccess, n.EmbeddingTaskID); err != nil {
				return err
			}
			continue
		}
		if n.EmbeddingStatus == models.EmbeddingInProgress && n.EmbeddingTaskID != "" {
			continue
		}
		pending = append(pending, n)
	}
	if len(pending) == 0 {
		return nil
	}

	req := agent.NoteEmbedRequest{}
	for _, n := range pending {
		req.Notes = append(req.Notes, agent.NotePayload{ID: n.ID, Content: n.Content})
	}
	taskID, err := s.backend.SubmitNoteEmbeddings(ctx, req)
	if err != nil {
		return err
	}
	for _, n := range pending {
		if err := s.db.SetNoteEmbedding(n.ID, models.EmbeddingInProgress, taskID); err != nil {
			return err
		}
		s.broker.PublishEmbeddingUpdated(n.ID, string(models.EmbeddingInProgress))
	}
	s.runner.Register(s.baseCtx, task.Task{ID: taskID, FileID: pending[0].FileID, Class: agent.ClassNotes})
	return nil
}

// SubmitFileEmbedding queues a whole-document embedding. Submission is
// skipped when the file already has vectors for its current checksum or a
// task is in flight.
func (s *Service) SubmitFileEmbedding(ctx context.Context, vaultID, fileID string) error {
	f, err := s.db.GetFile(fileID)
	if err != nil {
		return err
	}
	switch {
	case f.EmbeddingStatus == models.EmbeddingSuccess:
		return nil // checksum changes reset the status on rescan
	case f.EmbeddingStatus == models.EmbeddingInProgress && f.EmbeddingTaskID != "":
		return nil
	}

	data, err := s.vaults.ReadFile(vaultID, fileID)
	if err != nil {
		return err
	}
	doc, err := parser.Parse(data)
	if err != nil {
		return err
	}
	taskID, err := s.backend.SubmitEssayEmbeddings(ctx, agent.EssayEmbedRequest{
		FileID:  fileID,
		Title:   doc.Title,
		Content: doc.Body,
	})
	if err != nil {
		return err
	}
	if err := s.db.SetFileEmbedding(fileID, models.EmbeddingInProgress, taskID); err != nil {
		return err
	}
	s.broker.PublishEmbeddingUpdated(fileID, string(models.EmbeddingInProgress))
	s.runner.Register(s.baseCtx, task.Task{ID: taskID, FileID: fileID, Class: agent.ClassEssays})
	return nil
}

// SimilarNotes returns notes nearest to the given note's embedding.
func (s *Service) SimilarNotes(noteID string, limit int) ([]store.SimilarNote, error) {
	return s.db.SimilarNotes(noteID, limit)
}

// SearchNotes runs full-text search over a vault's notes.
func (s *Service) SearchNotes(vaultID, query string, limit int) ([]store.SearchResult, error) {
	return s.db.SearchNotes(vaultID, query, limit)
}

// Reasonings returns the reasoning traces recorded for a file.
func (s *Service) Reasonings(fileID string) ([]models.Reasoning, error) {
	return s.db.ListReasonings(fileID)
}

// handleCompletion runs exactly once per task. Success fetches and stores
// the vectors; failure and cancellation are recorded as plain states.
func (s *Service) handleCompletion(t task.Task, status agent.TaskStatus) {
	switch t.Class {
	case agent.ClassNotes:
		s.completeNoteTask(t, status)
	case agent.ClassEssays:
		s.completeEssayTask(t, status)
	}
	s.broker.PublishTaskCompleted(t.ID, string(status))
}

func (s *Service) completeNoteTask(t task.Task, status agent.TaskStatus) {
	notes, err := s.db.NotesByTask(t.ID)
	if err != nil {
		s.log.Error("completion: load notes failed",
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()))
		return
	}

	if status == agent.StatusSuccess {
		embeddings, err := s.backend.GetNoteEmbeddings(s.baseCtx, t.ID)
		if err != nil {
			s.log.Error("completion: fetch embeddings failed",
				slog.String("task_id", t.ID),
				slog.String("error", err.Error()))
			status = agent.StatusFailure
		} else {
			for _, e := range embeddings {
				if err := s.db.SaveNoteEmbedding(e.NoteID, e.Vector); err != nil {
					s.log.Error("completion: save embedding failed",
						slog.String("note_id", e.NoteID),
						slog.String("error", err.Error()))
				}
			}
		}
	}

	final := embeddingStatusFor(status)
	for _, n := range notes {
		if err := s.db.SetNoteEmbedding(n.ID, final, t.ID); err != nil {
			s.log.Warn("completion: status update failed",
				slog.String("note_id", n.ID),
				slog.String("error", err.Error()))
			continue
		}
		s.broker.PublishEmbeddingUpdated(n.ID, string(final))
	}
}

func (s *Service) completeEssayTask(t task.Task, status agent.TaskStatus) {
	if status == agent.StatusSuccess {
		embeddings, err := s.backend.GetEssayEmbeddings(s.baseCtx, t.ID)
		if err != nil {
			s.log.Error("completion: fetch essay embeddings failed",
				slog.String("task_id", t.ID),
				slog.String("error", err.Error()))
			status = agent.StatusFailure
		} else {
			for _, e := range embeddings {
				if err := s.db.SaveFileEmbedding(t.FileID, e.NodeID, e.Vector); err != nil {
					s.log.Error("completion: save essay embedding failed",
						slog.String("node_id", e.NodeID),
						slog.String("error", err.Error()))
				}
			}
		}
	}

	final := embeddingStatusFor(status)
	if err := s.db.SetFileEmbedding(t.FileID, final, t.ID); err != nil {
		s.log.Warn("completion: file status update failed",
			slog.String("file_id", t.FileID),
			slog.String("error", err.Error()))
		return
	}
	s.broker.PublishEmbeddingUpdated(t.FileID, string(final))
}

func embeddingStatusFor(status agent.TaskStatus) models.EmbeddingStatus {
	switch status {
	case agent.StatusSuccess:
		return models.EmbeddingSuccess
	case agent.StatusCancelled:
		return models.EmbeddingCancelled
	default:
		return models.EmbeddingFailure
	}
}

// BackendHealth proxies the backend health check, degrading to a report
// with Healthy=false when the backend is unreachable.
func (s *Service) BackendHealth(ctx context.Context, timeout time.Duration) *agent.HealthReport {
	report, err := s.backend.Health(ctx, timeout)
	if err != nil {
		s.log.Debug("backend health check failed", slog.String("error", err.Error()))
		return &agent.HealthReport{Healthy: false, Timestamp: time.Now()}
	}
	return report
}

// PendingTasks returns the ids of tasks still awaiting completion.
func (s *Service) PendingTasks() []string {
	var out []string
	for _, t := range s.runner.Pending() {
		out = append(out, t.ID)
	}
	return out
}
