package kpi

import (
    "testing"
    "time"

    "github.com/mkoursha/sprintlens/internal/domain"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func floatp(f float64) *float64 { return &f }

func weighted(id, assignee, team string, w *float64, labels ...string) domain.IssueRecord {
    return domain.IssueRecord{ID: id, Assignee: assignee, Team: team, Weight: w, Labels: labels}
}

func TestGroupWeighted_ByAssignee(t *testing.T) {
    records := []domain.IssueRecord{
        weighted("1", "ada", "core", floatp(30)),
        weighted("2", "ada", "core", floatp(20)),
        weighted("3", "", "core", floatp(10)),
        weighted("4", "lin", "core", nil), // missing weight counts as 0
    }
    got, err := GroupWeighted(records, ByAssignee, nil)
    require.NoError(t, err)
    require.Len(t, got, 3)
    assert.Equal(t, GroupStat{Key: "ada", Ponderation: 50, TicketCount: 2}, got[0])
    assert.Equal(t, GroupStat{Key: "unassigned", Ponderation: 10, TicketCount: 1}, got[1])
    assert.Equal(t, GroupStat{Key: "lin", Ponderation: 0, TicketCount: 1}, got[2])
}

func TestGroupWeighted_ByLabelCountsEachMembership(t *testing.T) {
    records := []domain.IssueRecord{
        weighted("1", "a", "t", floatp(10), "payments", "urgent"),
        weighted("2", "b", "t", floatp(5), "payments"),
        weighted("3", "c", "t", floatp(1)),
    }
    got, err := GroupWeighted(records, ByLabel, nil)
    require.NoError(t, err)
    require.Len(t, got, 3)
    assert.Equal(t, "payments", got[0].Key)
    assert.Equal(t, 15.0, got[0].Ponderation)
    assert.Equal(t, 2, got[0].TicketCount)
    assert.Equal(t, "urgent", got[1].Key)
    assert.Equal(t, "unlabeled", got[2].Key)
}

func TestGroupWeighted_ByBand(t *testing.T) {
    records := []domain.IssueRecord{
        weighted("1", "a", "t", floatp(10)),
        weighted("2", "b", "t", floatp(80)),
        weighted("3", "c", "t", floatp(90)),
        weighted("4", "d", "t", nil), // banded at 0
    }
    got, err := GroupWeighted(records, ByBand, DefaultBands())
    require.NoError(t, err)
    require.Len(t, got, 2)
    assert.Equal(t, GroupStat{Key: "very-high", Ponderation: 170, TicketCount: 2}, got[0])
    assert.Equal(t, GroupStat{Key: "low", Ponderation: 10, TicketCount: 2}, got[1])
}

func TestGroupWeighted_BandGroupingValidatesBands(t *testing.T) {
    bad := Bands{{Name: "a", Min: 0, Max: 10}, {Name: "b", Min: 50, Max: 60}}
    _, err := GroupWeighted(nil, ByBand, bad)
    require.Error(t, err)
}

func TestGroupWeighted_UnknownGrouping(t *testing.T) {
    _, err := GroupWeighted(nil, GroupBy("sprint"), nil)
    require.Error(t, err)
}

func TestGroupWeighted_Deterministic(t *testing.T) {
    records := []domain.IssueRecord{
        weighted("1", "a", "", floatp(10)),
        weighted("2", "b", "", floatp(10)),
        weighted("3", "c", "", floatp(10)),
        weighted("4", "c", "", floatp(0)),
    }
    first, err := GroupWeighted(records, ByAssignee, nil)
    require.NoError(t, err)
    for i := 0; i < 20; i++ {
        again, err := GroupWeighted(records, ByAssignee, nil)
        require.NoError(t, err)
        assert.Equal(t, first, again)
    }
    // ties on ponderation break by ticket count, then key
    assert.Equal(t, []string{"c", "a", "b"}, []string{first[0].Key, first[1].Key, first[2].Key})
}

func TestResolvedWithinRate(t *testing.T) {
    created := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
    resolve := func(after time.Duration) *time.Time {
        ts := created.Add(after)
        return &ts
    }
    records := []domain.IssueRecord{
        {ID: "1", Weight: floatp(80), Created: created, Resolved: resolve(24 * time.Hour)},
        {ID: "2", Weight: floatp(90), Created: created, Resolved: resolve(200 * time.Hour)},
        {ID: "3", Weight: floatp(70), Created: created},                      // unresolved, in population
        {ID: "4", Weight: floatp(10), Created: created, Resolved: resolve(time.Hour)}, // below threshold
        {ID: "5", Weight: nil, Created: created, Resolved: resolve(time.Hour)},        // no weight: excluded
    }
    rate, population := ResolvedWithinRate(records, 50, 72*time.Hour)
    assert.Equal(t, 3, population)
    assert.InDelta(t, 100.0/3.0, rate, 1e-9)

    rate, population = ResolvedWithinRate(nil, 50, time.Hour)
    assert.Zero(t, rate)
    assert.Zero(t, population)
}
