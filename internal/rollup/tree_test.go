package rollup

import (
    "testing"

    "github.com/mkoursha/sprintlens/internal/domain"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func rec(id string, parent *string) domain.IssueRecord {
    return domain.IssueRecord{ID: id, ParentID: parent}
}

func TestBuildForest_LinksByParentID(t *testing.T) {
    forest := BuildForest([]domain.IssueRecord{
        rec("E-1", nil),
        rec("S-1", strp("E-1")),
        rec("S-2", strp("E-1")),
        rec("T-1", strp("S-2")),
    })
    require.Len(t, forest, 1)
    root := forest[0]
    assert.Equal(t, "E-1", root.Record.ID)
    require.Len(t, root.Children, 2)
    assert.Equal(t, "S-1", root.Children[0].Record.ID)
    assert.Equal(t, "S-2", root.Children[1].Record.ID)
    require.Len(t, root.Children[1].Children, 1)
    assert.Equal(t, "T-1", root.Children[1].Children[0].Record.ID)
    assert.Equal(t, 4, Count(forest))
}

func TestBuildForest_MissingParentPromotesToRoot(t *testing.T) {
    forest := BuildForest([]domain.IssueRecord{
        rec("A", strp("GHOST")),
        rec("B", nil),
    })
    require.Len(t, forest, 2)
    assert.Equal(t, "A", forest[0].Record.ID)
    assert.Empty(t, forest[0].Children)
}

func TestBuildForest_SelfParentPromotesToRoot(t *testing.T) {
    forest := BuildForest([]domain.IssueRecord{rec("A", strp("A"))})
    require.Len(t, forest, 1)
    assert.Empty(t, forest[0].Children)
}

func TestBuildForest_CycleIsBrokenNotLooped(t *testing.T) {
    // A claims B as parent and B claims A: corrupt upstream data. One link
    // survives, the other node becomes a root, and construction terminates.
    forest := BuildForest([]domain.IssueRecord{
        rec("A", strp("B")),
        rec("B", strp("A")),
    })
    require.Len(t, forest, 1)
    assert.Equal(t, 2, Count(forest))
}

func TestBuildForest_LongCycleTerminates(t *testing.T) {
    forest := BuildForest([]domain.IssueRecord{
        rec("A", strp("C")),
        rec("B", strp("A")),
        rec("C", strp("B")),
        rec("D", strp("C")),
    })
    assert.Equal(t, 4, Count(forest))
    require.NotEmpty(t, forest)
}

func TestBuildForest_DuplicateIDFirstWins(t *testing.T) {
    a := rec("A", nil)
    a.Assignee = "first"
    dup := rec("A", nil)
    dup.Assignee = "second"
    forest := BuildForest([]domain.IssueRecord{a, dup})
    require.Len(t, forest, 1)
    assert.Equal(t, "first", forest[0].Record.Assignee)
}
