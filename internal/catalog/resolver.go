package catalog

import (
	"context"

	"github.com/fxcobra/salesbot/internal/model"
)

// Resolver answers catalog lookups. Implementations must tolerate
// malformed trees: dangling parent references and cycles are data
// problems, not panics.
type Resolver interface {
	// ChildrenOf lists the direct children of parentID in display order.
	// The empty string selects the top-level nodes.
	ChildrenOf(ctx context.Context, parentID string) ([]model.CatalogNode, error)

	// ByID fetches a single node. A missing id yields (nil, nil).
	ByID(ctx context.Context, id string) (*model.CatalogNode, error)

	// ChildCount reports how many direct children a node has.
	ChildCount(ctx context.Context, id string) (int, error)
}

// HasOrderable reports whether any node in the subtree rooted at the
// given children is orderable. The walk short-circuits on the first hit
// and carries a visited set so each node is expanded at most once even
// when the stored tree contains a cycle.
func HasOrderable(ctx context.Context, r Resolver, nodes []model.CatalogNode) (bool, error) {
	visited := make(map[string]struct{})
	return hasOrderable(ctx, r, nodes, visited)
}

func hasOrderable(ctx context.Context, r Resolver, nodes []model.CatalogNode, visited map[string]struct{}) (bool, error) {
	for _, n := range nodes {
		if n.Orderable() {
			return true, nil
		}
		if _, seen := visited[n.ID]; seen {
			continue
		}
		visited[n.ID] = struct{}{}

		children, err := r.ChildrenOf(ctx, n.ID)
		if err != nil {
			return false, err
		}
		ok, err := hasOrderable(ctx, r, children, visited)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Breadcrumb walks parent links from the node up to the root and returns
// the names ordered root first. Nodes without a name render as
// "(unnamed)". A dangling parent reference truncates the walk at the
// last resolvable node; a cycle terminates it.
func Breadcrumb(ctx context.Context, r Resolver, node model.CatalogNode) ([]string, error) {
	names := []string{displayName(node)}
	visited := map[string]struct{}{node.ID: {}}

	parentID := node.ParentID
	for parentID != nil && *parentID != "" {
		if _, seen := visited[*parentID]; seen {
			break
		}
		parent, err := r.ByID(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			break
		}
		visited[parent.ID] = struct{}{}
		names = append([]string{displayName(*parent)}, names...)
		parentID = parent.ParentID
	}
	return names, nil
}

func displayName(n model.CatalogNode) string {
	if n.Name == "" {
		return "(unnamed)"
	}
	return n.Name
}
