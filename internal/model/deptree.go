package model

import "sort"

// TreeNode is a single node in the recursive containment tree.
// Each node carries its full subtree of children inline so the tree can be
// rendered at any depth.
//
// Example:
//
//	firmware.iso -> children: [rootfs.tar -> children: [libssl.so.3]]
type TreeNode struct {
	UUID     string      `json:"UUID"`
	Name     string      `json:"name"`
	Version  string      `json:"version,omitempty"`
	SHA256   string      `json:"sha256,omitempty"`
	Paths    []string    `json:"paths,omitempty"`
	Children []*TreeNode `json:"children,omitempty"`
}

// ContainmentTree holds the Contains hierarchy of an SBOM.
type ContainmentTree struct {
	// Children maps a container UUID to the UUIDs it directly contains.
	Children map[string][]string

	// ByUUID provides O(1) lookup of any software entity.
	ByUUID map[string]*Software

	// Roots is the recursive tree: entities that nothing contains at the top
	// level, each carrying their full subtree.
	Roots []*TreeNode
}

// BuildContainmentTree builds the tree from the SBOM's Contains edges.
func BuildContainmentTree(sbom *SBOM) *ContainmentTree {
	tree := &ContainmentTree{
		Children: map[string][]string{},
		ByUUID:   make(map[string]*Software, len(sbom.Software)),
	}

	for _, sw := range sbom.Software {
		tree.ByUUID[sw.UUID] = sw
	}

	contained := map[string]bool{}
	for _, r := range sbom.Relationships {
		if r.Relationship != Contains {
			continue
		}
		tree.Children[r.XUUID] = AppendUnique(tree.Children[r.XUUID], r.YUUID)
		contained[r.YUUID] = true
	}

	var roots []*Software
	for _, sw := range sbom.Software {
		if !contained[sw.UUID] {
			roots = append(roots, sw)
		}
	}
	tree.Roots = tree.buildTree(roots)
	return tree
}

// workItem holds a pending node to be expanded along with the set of ancestor
// UUIDs on the path from the root to this node (used for cycle detection).
type workItem struct {
	uuid      string
	node      *TreeNode
	ancestors map[string]bool
}

// buildTree expands the tree iteratively, level by level, using a queue
// instead of recursion. Cycles are broken by tracking the ancestor set on the
// path from the root; a child that would close a cycle is emitted as a leaf.
func (t *ContainmentTree) buildTree(roots []*Software) []*TreeNode {
	sorted := make([]*Software, len(roots))
	copy(sorted, roots)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DisplayName() < sorted[j].DisplayName()
	})

	out := make([]*TreeNode, 0, len(sorted))
	queue := make([]workItem, 0, len(sorted))

	for _, sw := range sorted {
		node := newTreeNode(sw)
		out = append(out, node)
		queue = append(queue, workItem{uuid: sw.UUID, node: node, ancestors: map[string]bool{sw.UUID: true}})
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		childIDs := make([]string, len(t.Children[item.uuid]))
		copy(childIDs, t.Children[item.uuid])
		sort.Slice(childIDs, func(i, j int) bool {
			return t.label(childIDs[i]) < t.label(childIDs[j])
		})

		for _, id := range childIDs {
			sw := t.ByUUID[id]
			if sw == nil {
				// Edge to an entity that is not in the SBOM; keep it visible.
				item.node.Children = append(item.node.Children, &TreeNode{UUID: id, Name: id})
				continue
			}
			child := newTreeNode(sw)
			item.node.Children = append(item.node.Children, child)

			if item.ancestors[id] {
				continue
			}

			childAncestors := make(map[string]bool, len(item.ancestors)+1)
			for k := range item.ancestors {
				childAncestors[k] = true
			}
			childAncestors[id] = true
			queue = append(queue, workItem{uuid: id, node: child, ancestors: childAncestors})
		}
	}

	return out
}

func (t *ContainmentTree) label(id string) string {
	if sw := t.ByUUID[id]; sw != nil {
		return sw.DisplayName()
	}
	return id
}

func newTreeNode(sw *Software) *TreeNode {
	paths := sw.InstallPath
	if len(paths) == 0 {
		paths = sw.ContainerPath
	}
	return &TreeNode{
		UUID:    sw.UUID,
		Name:    sw.DisplayName(),
		Version: sw.Version,
		SHA256:  sw.SHA256,
		Paths:   paths,
	}
}
