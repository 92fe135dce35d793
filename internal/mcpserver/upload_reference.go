package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/aarnphm/morph/internal/models"
	"github.com/aarnphm/morph/internal/storage"
	"github.com/aarnphm/morph/internal/vault"
)

const maxReferenceSize = 10 << 20 // 10 MB

var (
	formatByExt = map[string]models.CitationFormat{
		".bib":  models.FormatBibLaTeX,
		".json": models.FormatCSLJSON,
	}

	safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

type uploadResult struct {
	ReferenceID string `json:"referenceId"`
	SavedPath   string `json:"savedPath"`
	Format      string `json:"format"`
}

func (s *Server) uploadReference(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vaultID, err := req.RequireString("vault_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filename, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	encoded, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	v, err := s.vaults.Get(vaultID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("unknown vault: %s", vaultID)), nil
	}

	filename = sanitizeFilename(filename)
	format, ok := formatByExt[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported file extension: %s (allowed: bib, json)", filepath.Ext(filename))), nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid base64 content: %v", err)), nil
		}
	}
	if len(data) > maxReferenceSize {
		return mcp.NewToolResultError(fmt.Sprintf("file too large: %d bytes (max %d)", len(data), maxReferenceSize)), nil
	}

	abs := filepath.Join(v.RootPath, vault.ConfigDirName, "references", filename)
	if err := storage.WriteAtomic(abs, data); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save reference: %v", err)), nil
	}

	ref := models.Reference{
		ID:           uuid.NewString(),
		VaultID:      vaultID,
		Format:       format,
		Path:         abs,
		LastModified: time.Now(),
	}
	if err := s.db.PutReference(ref); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to register reference: %v", err)), nil
	}

	out, _ := json.Marshal(uploadResult{
		ReferenceID: ref.ID,
		SavedPath:   abs,
		Format:      string(format),
	})
	return mcp.NewToolResultText(string(out)), nil
}

// sanitizeFilename keeps the base name and replaces anything outside
// [a-zA-Z0-9._-].
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = safeFilenameRe.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." {
		name = "reference"
	}
	return name
}
