package vault

import (
	"github.com/aarnphm/morph/internal/handles"
	"github.com/aarnphm/morph/internal/models"
)

// RuntimeNode is the live counterpart of a durable tree node. It carries
// the resource handle for file nodes and is never persisted; the handle is
// re-resolved from the handle store on every load.
type RuntimeNode struct {
	Name      string          `json:"name"`
	Extension string          `json:"extension,omitempty"`
	Kind      models.NodeKind `json:"kind"`
	ID        string          `json:"id"`
	Path      string          `json:"path"`
	IsOpen    bool            `json:"is_open,omitempty"`

	// Handle is nil when the grant is missing, in which case NeedsRegrant
	// is set and the node stays usable for display.
	Handle       *handles.Handle `json:"-"`
	NeedsRegrant bool            `json:"needs_regrant,omitempty"`

	Children []*RuntimeNode `json:"children,omitempty"`
}

// Reconcile builds the runtime tree from a durable tree, resolving each
// file node's handle by id. Resolution failures are contained per node:
// a vault with zero stored handles still reconciles fully, with every file
// marked as needing re-grant.
func Reconcile(durable *models.TreeNode, resolve func(fileID string) *handles.Handle) *RuntimeNode {
	if durable == nil {
		return nil
	}
	node := &RuntimeNode{
		Name:      durable.Name,
		Extension: durable.Extension,
		Kind:      durable.Kind,
		ID:        durable.ID,
		Path:      durable.Path,
		IsOpen:    durable.IsOpen,
	}
	if durable.Kind == models.KindFile {
		if h := resolve(durable.ID); h != nil {
			node.Handle = h
		} else {
			node.NeedsRegrant = true
		}
	}
	for _, c := range durable.Children {
		node.Children = append(node.Children, Reconcile(c, resolve))
	}
	return node
}

// Durable strips the runtime tree back down to its serializable form.
// Handles never survive the conversion.
func (n *RuntimeNode) Durable() *models.TreeNode {
	if n == nil {
		return nil
	}
	out := &models.TreeNode{
		Name:      n.Name,
		Extension: n.Extension,
		Kind:      n.Kind,
		ID:        n.ID,
		Path:      n.Path,
		IsOpen:    n.IsOpen,
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, c.Durable())
	}
	return out
}

// Walk visits every runtime node depth-first.
func (n *RuntimeNode) Walk(fn func(*RuntimeNode)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// FilesNeedingRegrant lists the file nodes whose handles are missing.
func (n *RuntimeNode) FilesNeedingRegrant() []*RuntimeNode {
	var out []*RuntimeNode
	n.Walk(func(rn *RuntimeNode) {
		if rn.Kind == models.KindFile && rn.NeedsRegrant {
			out = append(out, rn)
		}
	})
	return out
}
