// Package catalog keeps the category hierarchy in an index-based arena so parent
// changes can be checked for cycles without recursive queries.
package catalog

import (
	"fmt"
	"sort"

	"possale/backend/internal/domain"
)

const noParent = -1

type node struct {
	category domain.Category
	parent   int
	children []int
}

type Tree struct {
	nodes []node
	index map[string]int
}

// Node is the nested read view returned by the categories endpoint.
type Node struct {
	domain.Category
	Children []*Node `json:"children"`
}

func NewTree(categories []domain.Category) (*Tree, error) {
	t := &Tree{
		nodes: make([]node, 0, len(categories)),
		index: make(map[string]int, len(categories)),
	}
	sorted := append([]domain.Category(nil), categories...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for _, c := range sorted {
		t.index[c.ID] = len(t.nodes)
		t.nodes = append(t.nodes, node{category: c, parent: noParent})
	}
	for i := range t.nodes {
		parentID := t.nodes[i].category.ParentID
		if parentID == nil {
			continue
		}
		p, ok := t.index[*parentID]
		if !ok {
			return nil, fmt.Errorf("%w: parent %s of %s", domain.ErrCategoryNotFound, *parentID, t.nodes[i].category.ID)
		}
		t.nodes[i].parent = p
		t.nodes[p].children = append(t.nodes[p].children, i)
	}
	return t, nil
}

func (t *Tree) Has(id string) bool {
	_, ok := t.index[id]
	return ok
}

// Descendants walks the subtree below id with an explicit stack. The visited set keeps
// the walk finite even if stored data already contains a loop.
func (t *Tree) Descendants(id string) []string {
	start, ok := t.index[id]
	if !ok {
		return nil
	}
	visited := make([]bool, len(t.nodes))
	visited[start] = true
	stack := append([]int(nil), t.nodes[start].children...)
	out := make([]string, 0, len(stack))
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		out = append(out, t.nodes[cur].category.ID)
		stack = append(stack, t.nodes[cur].children...)
	}
	return out
}

// CheckReparent rejects moving childID under newParentID when newParentID is childID
// itself or anywhere in its subtree. An empty newParentID makes the category a root.
func (t *Tree) CheckReparent(childID string, newParentID string) error {
	if _, ok := t.index[childID]; !ok {
		return domain.ErrCategoryNotFound
	}
	if newParentID == "" {
		return nil
	}
	if _, ok := t.index[newParentID]; !ok {
		return domain.ErrCategoryNotFound
	}
	if newParentID == childID {
		return domain.ErrCategoryCycle
	}
	for _, id := range t.Descendants(childID) {
		if id == newParentID {
			return domain.ErrCategoryCycle
		}
	}
	return nil
}

// Path returns the ancestors of id from the root down, id included.
func (t *Tree) Path(id string) []string {
	cur, ok := t.index[id]
	if !ok {
		return nil
	}
	seen := make(map[int]bool)
	path := make([]string, 0, 4)
	for cur != noParent && !seen[cur] {
		seen[cur] = true
		path = append(path, t.nodes[cur].category.ID)
		cur = t.nodes[cur].parent
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Nested builds the forest breadth first.
func (t *Tree) Nested() []*Node {
	views := make([]*Node, len(t.nodes))
	for i := range t.nodes {
		views[i] = &Node{Category: t.nodes[i].category, Children: []*Node{}}
	}
	roots := make([]*Node, 0)
	queue := make([]int, 0, len(t.nodes))
	for i := range t.nodes {
		if t.nodes[i].parent == noParent {
			roots = append(roots, views[i])
			queue = append(queue, i)
		}
	}
	visited := make([]bool, len(t.nodes))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, child := range t.nodes[cur].children {
			views[cur].Children = append(views[cur].Children, views[child])
			queue = append(queue, child)
		}
	}
	return roots
}
