package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/aarnphm/morph/internal/agent"
	"github.com/aarnphm/morph/internal/handles"
	"github.com/aarnphm/morph/internal/models"
	"github.com/aarnphm/morph/internal/noteservice"
	"github.com/aarnphm/morph/internal/sse"
	"github.com/aarnphm/morph/internal/store"
	"github.com/aarnphm/morph/internal/vault"
)

// nullBackend is an agent that never produces anything.
type nullBackend struct{}

func (nullBackend) Available(context.Context) bool { return false }
func (nullBackend) Health(context.Context, time.Duration) (*agent.HealthReport, error) {
	return &agent.HealthReport{Timestamp: time.Now()}, nil
}
func (nullBackend) TaskStatus(context.Context, agent.TaskClass, string) (*agent.TaskStatusResponse, error) {
	return &agent.TaskStatusResponse{Status: agent.StatusInProgress}, nil
}
func (nullBackend) SubmitNoteEmbeddings(context.Context, agent.NoteEmbedRequest) (string, error) {
	return "t", nil
}
func (nullBackend) SubmitEssayEmbeddings(context.Context, agent.EssayEmbedRequest) (string, error) {
	return "t", nil
}
func (nullBackend) GetNoteEmbeddings(context.Context, string) ([]agent.NoteEmbedding, error) {
	return nil, nil
}
func (nullBackend) GetEssayEmbeddings(context.Context, string) ([]agent.EssayEmbedding, error) {
	return nil, nil
}
func (nullBackend) Suggest(context.Context, agent.SuggestRequest) ([]agent.Suggestion, error) {
	return nil, nil
}
func (nullBackend) SuggestStream(context.Context, agent.SuggestRequest, func(agent.StreamEvent) error) error {
	return nil
}

func testServer(t *testing.T) (*Server, string, string) {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	dbFile, err := os.CreateTemp("", "morph-mcp-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })
	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	hFile, err := os.CreateTemp("", "morph-mcp-handles-*.db")
	if err != nil {
		t.Fatal(err)
	}
	hFile.Close()
	t.Cleanup(func() { os.Remove(hFile.Name()) })
	hs, err := handles.Open(hFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { hs.Close() })

	vaults := vault.NewService(db, hs, quiet)

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "essay.md"), []byte("# Essay\nBody."), 0o644); err != nil {
		t.Fatal(err)
	}
	v, err := vaults.Create("test", root)
	if err != nil {
		t.Fatal(err)
	}

	broker := sse.NewBroker(time.Second)
	t.Cleanup(broker.Close)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	notes := noteservice.New(ctx, db, vaults, nullBackend{}, broker, quiet)

	srv := New(db, vaults, notes)
	return srv, v.ID, v.ID + ":/essay.md"
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go doesn't expose a direct "call tool" test helper, so we call the
	// handler functions directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_vaults":
		result, err = srv.listVaults(ctx, req)
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "add_note":
		result, err = srv.addNote(ctx, req)
	case "read_file":
		result, err = srv.readFile(ctx, req)
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "upload_reference":
		result, err = srv.uploadReference(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListVaults(t *testing.T) {
	srv, vaultID, _ := testServer(t)
	r := callTool(t, srv, "list_vaults", map[string]interface{}{})
	if !strings.Contains(resultText(r), vaultID) {
		t.Errorf("list_vaults = %q, want it to mention %s", resultText(r), vaultID)
	}
}

func TestAddAndListNotes(t *testing.T) {
	srv, vaultID, fileID := testServer(t)

	r := callTool(t, srv, "add_note", map[string]interface{}{
		"vault_id": vaultID,
		"file_id":  fileID,
		"content":  "tighten the opening",
	})
	if r.IsError || !strings.HasPrefix(resultText(r), "created: ") {
		t.Fatalf("add_note = %q", resultText(r))
	}

	r = callTool(t, srv, "list_notes", map[string]interface{}{"file_id": fileID})
	var notes []models.Note
	if err := json.Unmarshal([]byte(resultText(r)), &notes); err != nil {
		t.Fatalf("list_notes output: %v", err)
	}
	if len(notes) != 1 || notes[0].Content != "tighten the opening" {
		t.Errorf("notes = %+v", notes)
	}
}

func TestReadFile(t *testing.T) {
	srv, vaultID, fileID := testServer(t)
	r := callTool(t, srv, "read_file", map[string]interface{}{
		"vault_id": vaultID,
		"file_id":  fileID,
	})
	if resultText(r) != "# Essay\nBody." {
		t.Errorf("read_file = %q", resultText(r))
	}
}

func TestReadFileMissing(t *testing.T) {
	srv, vaultID, _ := testServer(t)
	r := callTool(t, srv, "read_file", map[string]interface{}{
		"vault_id": vaultID,
		"file_id":  vaultID + ":/nope.md",
	})
	if !r.IsError {
		t.Error("expected error for missing file")
	}
}

func TestSearchNotesTool(t *testing.T) {
	srv, vaultID, fileID := testServer(t)
	callTool(t, srv, "add_note", map[string]interface{}{
		"vault_id": vaultID,
		"file_id":  fileID,
		"content":  "the quick brown fox",
	})

	r := callTool(t, srv, "search_notes", map[string]interface{}{
		"vault_id": vaultID,
		"query":    "quick",
	})
	if r.IsError || !strings.Contains(resultText(r), "quick") {
		t.Errorf("search_notes = %q", resultText(r))
	}
}

func TestUploadReference(t *testing.T) {
	srv, vaultID, _ := testServer(t)

	encoded := base64.StdEncoding.EncodeToString([]byte("@book{k, title={X}}"))
	r := callTool(t, srv, "upload_reference", map[string]interface{}{
		"vault_id": vaultID,
		"filename": "library.bib",
		"content":  encoded,
	})
	if r.IsError {
		t.Fatalf("upload_reference = %q", resultText(r))
	}
	var res uploadResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	if res.Format != string(models.FormatBibLaTeX) {
		t.Errorf("format = %q", res.Format)
	}
	if _, err := os.Stat(res.SavedPath); err != nil {
		t.Errorf("stored file missing: %v", err)
	}

	r = callTool(t, srv, "upload_reference", map[string]interface{}{
		"vault_id": vaultID,
		"filename": "notes.txt",
		"content":  encoded,
	})
	if !r.IsError {
		t.Error("expected error for unsupported extension")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"library.bib":      "library.bib",
		"../escape.bib":    "escape.bib",
		"we ird name.json": "we_ird_name.json",
		"..":               "reference",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
