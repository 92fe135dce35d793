package store

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/aarnphm/morph/internal/apperr"
	"github.com/aarnphm/morph/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "morph-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testNote(id, fileID string) models.Note {
	now := time.Now()
	return models.Note{
		ID:         id,
		Content:    "content of " + id,
		Color:      "#fde2e4",
		FileID:     fileID,
		VaultID:    "v1",
		CreatedAt:  now,
		AccessedAt: now,
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"vaults", "files", "notes", "reasonings", "refs", "note_embeddings", "file_embeddings"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestAddAndGetNote(t *testing.T) {
	db := testDB(t)
	n := testNote("n1", "v1:/essay.md")
	n.Steering = &models.Steering{
		Authors:        []string{"Franz Kafka"},
		Tonality:       map[string]float64{"formal": 0.4, "fun": 0.6},
		Temperature:    0.6,
		NumSuggestions: 4,
	}
	if err := db.AddNote(n); err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	got, err := db.GetNote("n1")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got.Content != n.Content {
		t.Errorf("content = %q, want %q", got.Content, n.Content)
	}
	if got.Steering == nil || got.Steering.Tonality["fun"] != 0.6 {
		t.Errorf("steering not round-tripped: %+v", got.Steering)
	}
	if got.Position != nil {
		t.Errorf("expected nil position, got %+v", got.Position)
	}
}

func TestGetNoteMissing(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetNote("absent"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListNotesScopedToFile(t *testing.T) {
	db := testDB(t)
	for _, id := range []string{"a", "b"} {
		if err := db.AddNote(testNote(id, "v1:/one.md")); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.AddNote(testNote("c", "v1:/other.md")); err != nil {
		t.Fatal(err)
	}
	notes, err := db.ListNotes("v1:/one.md")
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("got %d notes, want 2", len(notes))
	}
}

func TestEditorLifecycle(t *testing.T) {
	db := testDB(t)
	if err := db.AddNote(testNote("n1", "v1:/essay.md")); err != nil {
		t.Fatal(err)
	}
	if err := db.MoveNoteToEditor("n1", models.Position{X: 120, Y: 48}); err != nil {
		t.Fatalf("MoveNoteToEditor: %v", err)
	}
	got, _ := db.GetNote("n1")
	if !got.IsInEditor {
		t.Error("note should be in editor")
	}
	if got.Position == nil || got.Position.X != 120 || got.Position.Y != 48 {
		t.Errorf("position = %+v, want {120 48}", got.Position)
	}

	if err := db.RemoveNoteFromEditor("n1"); err != nil {
		t.Fatalf("RemoveNoteFromEditor: %v", err)
	}
	got, _ = db.GetNote("n1")
	if got.IsInEditor {
		t.Error("note should no longer be in editor")
	}
	// Position survives removal so the note can re-enter where it sat.
	if got.Position == nil {
		t.Error("position should be retained after removal")
	}

	if err := db.MoveNoteToEditor("absent", models.Position{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDropNoteHidesFromEditor(t *testing.T) {
	db := testDB(t)
	if err := db.AddNote(testNote("n1", "v1:/essay.md")); err != nil {
		t.Fatal(err)
	}
	if err := db.MoveNoteToEditor("n1", models.Position{X: 1, Y: 1}); err != nil {
		t.Fatal(err)
	}
	if err := db.DropNote("n1"); err != nil {
		t.Fatalf("DropNote: %v", err)
	}
	got, _ := db.GetNote("n1")
	if !got.Dropped || got.IsInEditor {
		t.Errorf("dropped=%v inEditor=%v, want true/false", got.Dropped, got.IsInEditor)
	}
	editor, _ := db.ListEditorNotes("v1:/essay.md")
	if len(editor) != 0 {
		t.Errorf("editor notes = %d, want 0", len(editor))
	}
}

func TestEmbeddingTransitions(t *testing.T) {
	db := testDB(t)
	if err := db.AddNote(testNote("n1", "v1:/essay.md")); err != nil {
		t.Fatal(err)
	}

	if err := db.SetNoteEmbedding("n1", models.EmbeddingInProgress, "t1"); err != nil {
		t.Fatalf("none -> in_progress: %v", err)
	}
	// Same status again is idempotent.
	if err := db.SetNoteEmbedding("n1", models.EmbeddingInProgress, "t1"); err != nil {
		t.Fatalf("idempotent set: %v", err)
	}
	if err := db.SetNoteEmbedding("n1", models.EmbeddingSuccess, "t1"); err != nil {
		t.Fatalf("in_progress -> success: %v", err)
	}
	// Terminal states never regress.
	if err := db.SetNoteEmbedding("n1", models.EmbeddingInProgress, "t2"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("success -> in_progress err = %v, want ErrConflict", err)
	}
	if err := db.SetNoteEmbedding("absent", models.EmbeddingInProgress, "t1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestNotesByTask(t *testing.T) {
	db := testDB(t)
	if err := db.AddNote(testNote("n1", "v1:/essay.md")); err != nil {
		t.Fatal(err)
	}
	if err := db.AddNote(testNote("n2", "v1:/essay.md")); err != nil {
		t.Fatal(err)
	}
	if err := db.SetNoteEmbedding("n1", models.EmbeddingInProgress, "task-7"); err != nil {
		t.Fatal(err)
	}
	notes, err := db.NotesByTask("task-7")
	if err != nil {
		t.Fatalf("NotesByTask: %v", err)
	}
	if len(notes) != 1 || notes[0].ID != "n1" {
		t.Errorf("got %v, want just n1", notes)
	}
}

func TestUpsertFilePreservesEmbeddingOnSameChecksum(t *testing.T) {
	db := testDB(t)
	f := models.FileRecord{
		ID: "v1:/essay.md", VaultID: "v1", Name: "essay", Extension: "md",
		Checksum: "abc", LastModified: time.Now(),
	}
	if err := db.UpsertFile(f); err != nil {
		t.Fatal(err)
	}
	if err := db.SetFileEmbedding(f.ID, models.EmbeddingSuccess, "t1"); err != nil {
		t.Fatal(err)
	}

	// Re-upsert with the same checksum keeps the embedding state.
	if err := db.UpsertFile(f); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetFile(f.ID)
	if got.EmbeddingStatus != models.EmbeddingSuccess {
		t.Errorf("status = %q, want success after identical checksum", got.EmbeddingStatus)
	}

	// Changed checksum resets it so the file re-embeds.
	f.Checksum = "def"
	if err := db.UpsertFile(f); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetFile(f.ID)
	if got.EmbeddingStatus != models.EmbeddingNone {
		t.Errorf("status = %q, want reset after checksum change", got.EmbeddingStatus)
	}
}

func TestVaultRoundTripAndDefaults(t *testing.T) {
	db := testDB(t)
	v := models.Vault{
		ID: "v1", Name: "notes", RootPath: "/home/me/notes",
		LastOpened: time.Now(),
		Tree: &models.TreeNode{
			Name: "notes", Kind: models.KindDirectory, ID: "v1:/", Path: "/",
			Children: []*models.TreeNode{
				{Name: "essay", Extension: "md", Kind: models.KindFile, ID: "v1:/essay.md", Path: "/essay.md"},
			},
		},
		Settings: models.DefaultSettings(),
	}
	if err := db.UpsertVault(v); err != nil {
		t.Fatalf("UpsertVault: %v", err)
	}
	got, err := db.GetVault("v1")
	if err != nil {
		t.Fatalf("GetVault: %v", err)
	}
	if got.Tree == nil || len(got.Tree.Children) != 1 || got.Tree.Children[0].ID != "v1:/essay.md" {
		t.Errorf("tree not round-tripped: %+v", got.Tree)
	}
	if got.Settings.Editor.TabSize != 2 {
		t.Errorf("tab size = %d, want default 2", got.Settings.Editor.TabSize)
	}
}

func TestListVaultsOrder(t *testing.T) {
	db := testDB(t)
	old := models.Vault{ID: "old", Name: "old", RootPath: "/a", LastOpened: time.Now().Add(-time.Hour)}
	recent := models.Vault{ID: "recent", Name: "recent", RootPath: "/b", LastOpened: time.Now()}
	for _, v := range []models.Vault{old, recent} {
		if err := db.UpsertVault(v); err != nil {
			t.Fatal(err)
		}
	}
	vaults, err := db.ListVaults()
	if err != nil {
		t.Fatalf("ListVaults: %v", err)
	}
	if len(vaults) != 2 || vaults[0].ID != "recent" {
		t.Errorf("order = %v, want recent first", vaults)
	}
}

func TestDeleteVaultCascades(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertVault(models.Vault{ID: "v1", Name: "n", RootPath: "/a", LastOpened: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := db.AddNote(testNote("n1", "v1:/essay.md")); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveNoteEmbedding("n1", []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteVault("v1"); err != nil {
		t.Fatalf("DeleteVault: %v", err)
	}
	if _, err := db.GetNote("n1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("note survived vault delete: %v", err)
	}
	has, _ := db.HasNoteEmbedding("n1")
	if has {
		t.Error("embedding survived vault delete")
	}
}

func TestSimilarNotesRanking(t *testing.T) {
	db := testDB(t)
	vectors := map[string][]float32{
		"n1": {1, 0, 0},
		"n2": {0.9, 0.1, 0}, // closest to n1
		"n3": {0, 1, 0},
		"n4": {0, 0, 1},
	}
	for id, v := range vectors {
		if err := db.SaveNoteEmbedding(id, v); err != nil {
			t.Fatalf("SaveNoteEmbedding(%s): %v", id, err)
		}
	}
	hits, err := db.SimilarNotes("n1", 2)
	if err != nil {
		t.Fatalf("SimilarNotes: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].NoteID != "n2" {
		t.Errorf("top hit = %s, want n2", hits[0].NoteID)
	}
	if hits[0].Similarity <= hits[1].Similarity {
		t.Errorf("hits not sorted: %v", hits)
	}
}

func TestSearchNotes(t *testing.T) {
	db := testDB(t)
	n := testNote("n1", "v1:/essay.md")
	n.Content = "the gravity of unfinished drafts"
	if err := db.AddNote(n); err != nil {
		t.Fatal(err)
	}
	other := testNote("n2", "v1:/essay.md")
	other.Content = "something else entirely"
	if err := db.AddNote(other); err != nil {
		t.Fatal(err)
	}

	hits, err := db.SearchNotes("v1", "gravity", 10)
	if err != nil {
		t.Fatalf("SearchNotes: %v", err)
	}
	if len(hits) != 1 || hits[0].NoteID != "n1" {
		t.Errorf("hits = %v, want just n1", hits)
	}
	// Other vaults never leak in.
	hits, err = db.SearchNotes("v2", "gravity", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("cross-vault hits = %v, want none", hits)
	}
}

func TestReasoningRoundTrip(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	r := models.Reasoning{
		ID: "r1", Content: "thinking about structure",
		FileID: "v1:/essay.md", VaultID: "v1",
		NoteIDs:   []string{"n1", "n2"},
		CreatedAt: now, AccessedAt: now,
		Duration: 2300 * time.Millisecond,
	}
	if err := db.AddReasoning(r); err != nil {
		t.Fatalf("AddReasoning: %v", err)
	}
	got, err := db.GetReasoning("r1")
	if err != nil {
		t.Fatalf("GetReasoning: %v", err)
	}
	if len(got.NoteIDs) != 2 || got.NoteIDs[0] != "n1" {
		t.Errorf("note ids = %v", got.NoteIDs)
	}
	if got.Duration != 2300*time.Millisecond {
		t.Errorf("duration = %v", got.Duration)
	}
}

func TestReferenceLatestWins(t *testing.T) {
	db := testDB(t)
	older := models.Reference{
		ID: "ref1", VaultID: "v1", Format: models.FormatBibLaTeX,
		Path: "/refs/old.bib", LastModified: time.Now().Add(-time.Hour),
	}
	newer := models.Reference{
		ID: "ref2", VaultID: "v1", Format: models.FormatCSLJSON,
		Path: "/refs/new.json", LastModified: time.Now(),
	}
	for _, r := range []models.Reference{older, newer} {
		if err := db.PutReference(r); err != nil {
			t.Fatal(err)
		}
	}
	got, err := db.GetReference("v1")
	if err != nil {
		t.Fatalf("GetReference: %v", err)
	}
	if got.ID != "ref2" || got.Format != models.FormatCSLJSON {
		t.Errorf("got %+v, want ref2/csl-json", got)
	}
	if err := db.DeleteReference("absent"); err != nil {
		t.Errorf("delete absent: %v", err)
	}
}
