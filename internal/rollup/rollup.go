package rollup

import "math"

// ComputeRollups fills the rollup fields on every node of the forest with a
// post-order traversal: a node's rollup is its own value plus the rollups of
// all children. The forest invariant from BuildForest guarantees each node is
// visited exactly once. Returns the same forest for chaining.
func ComputeRollups(forest []*Node) []*Node {
    for _, root := range forest { computeNode(root) }
    return forest
}

func computeNode(n *Node) {
    est := n.Record.OriginalEstimateSeconds
    spent := n.Record.TimeSpentSeconds
    points := 0.0
    // nil story points sum as zero; the record's own value stays unset
    if n.Record.StoryPoints != nil { points = *n.Record.StoryPoints }
    for _, c := range n.Children {
        computeNode(c)
        est += c.RollupEstimateSeconds
        spent += c.RollupSpentSeconds
        points += c.RollupStoryPoints
    }
    n.RollupEstimateSeconds = est
    n.RollupSpentSeconds = spent
    n.RollupStoryPoints = points
    // unestimated subtrees are never flagged as overrun
    n.Overrun = est > 0 && spent > est
    if est > 0 {
        pct := float64(spent) / float64(est) * 100
        if pct > 100 { pct = 100 }
        n.ProgressPercent = int(math.Round(pct))
    } else {
        n.ProgressPercent = 0
    }
}
