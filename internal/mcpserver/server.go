// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes morph tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aarnphm/morph/internal/noteservice"
	"github.com/aarnphm/morph/internal/store"
	"github.com/aarnphm/morph/internal/vault"
)

// Server wraps the MCP server with morph tools.
type Server struct {
	mcp    *server.MCPServer
	db     *store.DB
	vaults *vault.Service
	notes  *noteservice.Service
}

// New creates a new MCP server with all morph tools registered.
func New(db *store.DB, vaults *vault.Service, notes *noteservice.Service) *Server {
	s := &Server{db: db, vaults: vaults, notes: notes}

	s.mcp = server.NewMCPServer(
		"morph",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_vaults",
		mcp.WithDescription("List the registered vaults, most recently opened first."),
	), s.listVaults)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List the notes attached to a file."),
		mcp.WithString("file_id", mcp.Required(), mcp.Description("File id in vaultId:/relative/path form")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("add_note",
		mcp.WithDescription("Attach a note to a file. Notes are short writing suggestions "+
			"or observations scoped to one file; read the morph://note-model resource for "+
			"the data model."),
		mcp.WithString("vault_id", mcp.Required(), mcp.Description("Vault id")),
		mcp.WithString("file_id", mcp.Required(), mcp.Description("File id in vaultId:/relative/path form")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note text")),
	), s.addNote)

	s.mcp.AddTool(mcp.NewTool("read_file",
		mcp.WithDescription("Read the content of a file in a vault."),
		mcp.WithString("vault_id", mcp.Required(), mcp.Description("Vault id")),
		mcp.WithString("file_id", mcp.Required(), mcp.Description("File id in vaultId:/relative/path form")),
	), s.readFile)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through a vault's notes."),
		mcp.WithString("vault_id", mcp.Required(), mcp.Description("Vault id")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("upload_reference",
		mcp.WithDescription("Register a citation database (BibLaTeX or CSL-JSON) for a vault. "+
			"Content is base64-encoded."),
		mcp.WithString("vault_id", mcp.Required(), mcp.Description("Vault id")),
		mcp.WithString("filename", mcp.Required(), mcp.Description("File name ending in .bib or .json")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Base64-encoded file content")),
	), s.uploadReference)

	// Resource: note data model.
	s.mcp.AddResource(
		mcp.NewResource("morph://note-model", "Note Data Model",
			mcp.WithResourceDescription("The morph note, reasoning, and steering data model."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteModelResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listVaults(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vaults, err := s.vaults.List()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(vaults) == 0 {
		return mcp.NewToolResultText("no vaults registered"), nil
	}
	var lines []string
	for _, v := range vaults {
		lines = append(lines, fmt.Sprintf("%s\t%s\t%s", v.ID, v.Name, v.RootPath))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fileID, err := req.RequireString("file_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	notes, err := s.notes.Notes(fileID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(notes, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) addNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vaultID, err := req.RequireString("vault_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fileID, err := req.RequireString("file_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.notes.AddNote(ctx, vaultID, fileID, content, nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", note.ID)), nil
}

func (s *Server) readFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vaultID, err := req.RequireString("vault_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fileID, err := req.RequireString("file_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.vaults.ReadFile(vaultID, fileID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", fileID)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vaultID, err := req.RequireString("vault_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.notes.SearchNotes(vaultID, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNoteModelResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "morph://note-model",
			MIMEType: "text/markdown",
			Text:     NoteModelContract,
		},
	}, nil
}
