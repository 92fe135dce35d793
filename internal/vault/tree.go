// Package vault manages vault roots: scanning the directory into a durable
// tree, reconciling it with live file handles, settings persistence, and
// change watching.
package vault

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aarnphm/morph/internal/checksum"
	"github.com/aarnphm/morph/internal/models"
	"github.com/aarnphm/morph/internal/storage"
)

// ConfigDirName is the reserved hidden directory under the vault root that
// holds vault-scoped configuration. It is never part of the scanned tree.
const ConfigDirName = ".morph"

// NodeID derives the stable id for a tree node from its vault and relative
// path. Directories keep a trailing slash so a file and a directory with
// the same name never collide.
func NodeID(vaultID, relPath string, dir bool) string {
	relPath = strings.TrimPrefix(filepath.ToSlash(relPath), "/")
	id := vaultID + ":/" + relPath
	if dir && !strings.HasSuffix(id, "/") {
		id += "/"
	}
	return id
}

// VaultID derives a vault's id from its absolute root path, so reopening
// the same directory always resolves to the same vault.
func VaultID(rootPath string) string {
	return checksum.Short(filepath.Clean(rootPath))
}

// ScannedFile pairs a file's durable record with its absolute path, used to
// grant handles during a scan.
type ScannedFile struct {
	Record  models.FileRecord
	AbsPath string
}

// Scan enumerates the vault root through the storage provider and builds
// the durable tree plus one record per file. Ignored entries and the
// reserved config directory are skipped, unreadable entries are dropped,
// and directories left with no visible files are pruned for free because
// only file paths materialise directory nodes.
func Scan(rootPath, vaultID string, ignore *storage.IgnoreList) (*models.TreeNode, []ScannedFile, error) {
	if ignore == nil {
		ignore = storage.NewIgnoreList(nil)
	}
	fsys, err := storage.NewFS(rootPath, ignore.With(ConfigDirName))
	if err != nil {
		return nil, nil, fmt.Errorf("vault: open root: %w", err)
	}
	metas, err := fsys.List("")
	if err != nil {
		return nil, nil, fmt.Errorf("vault: scan: %w", err)
	}

	root := &models.TreeNode{
		Name:   filepath.Base(fsys.Root()),
		Kind:   models.KindDirectory,
		ID:     NodeID(vaultID, "", true),
		Path:   "/",
		IsOpen: true,
	}
	dirs := map[string]*models.TreeNode{"": root}

	files := make([]ScannedFile, 0, len(metas))
	for _, m := range metas {
		parent := ensureDir(root, dirs, vaultID, path.Dir(m.Path))
		id := NodeID(vaultID, m.Path, false)
		parent.Children = append(parent.Children, &models.TreeNode{
			Name:      m.Name,
			Extension: m.Extension,
			Kind:      models.KindFile,
			ID:        id,
			Path:      "/" + m.Path,
		})
		files = append(files, ScannedFile{
			Record: models.FileRecord{
				ID:           id,
				VaultID:      vaultID,
				Name:         m.Name,
				Extension:    m.Extension,
				Checksum:     m.Checksum,
				LastModified: m.UpdatedAt,
			},
			AbsPath: filepath.Join(fsys.Root(), filepath.FromSlash(m.Path)),
		})
	}

	root.Walk(func(n *models.TreeNode) {
		if n.Kind == models.KindDirectory {
			sortChildren(n.Children)
		}
	})
	return root, files, nil
}

// ensureDir returns the directory node for rel, creating it and any
// missing ancestors on the way down.
func ensureDir(root *models.TreeNode, dirs map[string]*models.TreeNode, vaultID, rel string) *models.TreeNode {
	if rel == "." || rel == "" {
		return root
	}
	if n, ok := dirs[rel]; ok {
		return n
	}
	parent := ensureDir(root, dirs, vaultID, path.Dir(rel))
	node := &models.TreeNode{
		Name: path.Base(rel),
		Kind: models.KindDirectory,
		ID:   NodeID(vaultID, rel, true),
		Path: "/" + rel,
	}
	parent.Children = append(parent.Children, node)
	dirs[rel] = node
	return node
}

// sortChildren orders directories before files, each group alphabetically.
func sortChildren(children []*models.TreeNode) {
	sort.SliceStable(children, func(i, j int) bool {
		a, b := children[i], children[j]
		if a.Kind != b.Kind {
			return a.Kind == models.KindDirectory
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
}

// InsertNode places a node into the tree under the directory identified by
// parentPath (vault-relative, "/" for the root), keeping sibling order.
// Intermediate directories must already exist.
func InsertNode(root *models.TreeNode, parentPath string, node *models.TreeNode) bool {
	parent := FindByPath(root, parentPath)
	if parent == nil || parent.Kind != models.KindDirectory {
		return false
	}
	for _, c := range parent.Children {
		if c.ID == node.ID {
			return true // already present
		}
	}
	parent.Children = append(parent.Children, node)
	sortChildren(parent.Children)
	return true
}

// RemoveNode deletes the node with the given id from the tree. Removing an
// absent id is a no-op.
func RemoveNode(root *models.TreeNode, id string) bool {
	for i, c := range root.Children {
		if c.ID == id {
			root.Children = append(root.Children[:i], root.Children[i+1:]...)
			return true
		}
		if c.Kind == models.KindDirectory && RemoveNode(c, id) {
			return true
		}
	}
	return false
}

// FindByPath returns the node at the given vault-relative path, or nil.
func FindByPath(root *models.TreeNode, path string) *models.TreeNode {
	path = "/" + strings.Trim(filepath.ToSlash(path), "/")
	if path == root.Path || path == "/" && root.Path == "/" {
		return root
	}
	var found *models.TreeNode
	root.Walk(func(n *models.TreeNode) {
		if found == nil && n.Path == path {
			found = n
		}
	})
	return found
}

// FindByID returns the node with the given id, or nil.
func FindByID(root *models.TreeNode, id string) *models.TreeNode {
	var found *models.TreeNode
	root.Walk(func(n *models.TreeNode) {
		if found == nil && n.ID == id {
			found = n
		}
	})
	return found
}
