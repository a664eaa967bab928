package rollup

import (
    "github.com/mkoursha/sprintlens/internal/domain"
)

// Node wraps one issue record together with its children and the rollup
// fields computed over its subtree. The source record is never mutated;
// everything derived lives on the node.
type Node struct {
    Record   domain.IssueRecord `json:"record"`
    Children []*Node            `json:"children,omitempty"`

    RollupEstimateSeconds int64   `json:"rollup_estimate_seconds"`
    RollupSpentSeconds    int64   `json:"rollup_spent_seconds"`
    RollupStoryPoints     float64 `json:"rollup_story_points"`
    ProgressPercent       int     `json:"progress_percent"`
    Overrun               bool    `json:"overrun"`

    parent *Node
}

// BuildForest links flat records into trees by parent reference. A record
// whose parent id is absent from the input set becomes a root rather than an
// error, and a link that would close a cycle is broken by promoting the child
// to a root. Child order is discovery order.
func BuildForest(records []domain.IssueRecord) []*Node {
    index := make(map[string]*Node, len(records))
    order := make([]*Node, 0, len(records))
    for _, r := range records {
        if _, ok := index[r.ID]; ok { continue } // duplicate id, first wins
        n := &Node{Record: r}
        index[r.ID] = n
        order = append(order, n)
    }
    roots := make([]*Node, 0, len(order))
    for _, n := range order {
        pid := n.Record.ParentID
        if pid == nil || *pid == "" {
            roots = append(roots, n)
            continue
        }
        parent, ok := index[*pid]
        if !ok || parent == n || reachesThroughParents(parent, n) {
            roots = append(roots, n)
            continue
        }
        n.parent = parent
        parent.Children = append(parent.Children, n)
    }
    return roots
}

// reachesThroughParents reports whether target sits on from's chain of
// already-linked parents. The visited set makes the walk safe even if the
// chain were ever corrupted into a loop.
func reachesThroughParents(from, target *Node) bool {
    visited := map[*Node]struct{}{}
    for cur := from; cur != nil; cur = cur.parent {
        if cur == target { return true }
        if _, ok := visited[cur]; ok { return true }
        visited[cur] = struct{}{}
    }
    return false
}

// Walk calls fn for every node of the forest, parents before children.
func Walk(forest []*Node, fn func(*Node)) {
    for _, root := range forest {
        fn(root)
        Walk(root.Children, fn)
    }
}

// Count returns the number of nodes in the forest.
func Count(forest []*Node) int {
    n := 0
    Walk(forest, func(*Node) { n++ })
    return n
}
