package timeinstatus

import (
    "testing"
    "time"

    "github.com/mkoursha/sprintlens/internal/domain"
    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func strp(s string) *string { return &s }

func transition(key string, from *string, to string, at time.Time) domain.StatusTransition {
    return domain.StatusTransition{IssueKey: key, FromStatus: from, ToStatus: to, At: at}
}

func TestBreakdown_AttributesIntervalsToEnteredStatus(t *testing.T) {
    h := domain.IssueStatusHistory{
        IssueKey:      "SL-1",
        CurrentStatus: "In Progress",
        Created:       t0,
        Transitions: []domain.StatusTransition{
            transition("SL-1", nil, "To Do", t0),
            transition("SL-1", strp("To Do"), "In Progress", t0.Add(2*time.Hour)),
        },
    }
    now := t0.Add(5 * time.Hour)
    got := Breakdown(h, now, zerolog.Nop())
    assert.Equal(t, 2*time.Hour, got["To Do"])
    assert.Equal(t, 3*time.Hour, got["In Progress"])
}

func TestBreakdown_ResolvedIssueEndsAtResolution(t *testing.T) {
    resolved := t0.Add(8 * time.Hour)
    h := domain.IssueStatusHistory{
        IssueKey:      "SL-2",
        CurrentStatus: "Done",
        Created:       t0,
        Resolved:      &resolved,
        Transitions: []domain.StatusTransition{
            transition("SL-2", nil, "To Do", t0),
            transition("SL-2", strp("To Do"), "Done", t0.Add(6*time.Hour)),
        },
    }
    // now far in the future must not leak into a resolved issue
    got := Breakdown(h, t0.Add(1000*time.Hour), zerolog.Nop())
    assert.Equal(t, 6*time.Hour, got["To Do"])
    assert.Equal(t, 2*time.Hour, got["Done"])
}

func TestBreakdown_Conservation(t *testing.T) {
    h := domain.IssueStatusHistory{
        IssueKey:      "SL-3",
        CurrentStatus: "Review",
        Created:       t0,
        Transitions: []domain.StatusTransition{
            transition("SL-3", nil, "To Do", t0),
            transition("SL-3", strp("To Do"), "In Progress", t0.Add(90*time.Minute)),
            transition("SL-3", strp("In Progress"), "Review", t0.Add(7*time.Hour)),
        },
    }
    now := t0.Add(31 * time.Hour)
    got := Breakdown(h, now, zerolog.Nop())
    var sum time.Duration
    for _, d := range got { sum += d }
    assert.Equal(t, now.Sub(h.Created), sum)
}

func TestBreakdown_LeadInBeforeFirstTransition(t *testing.T) {
    // transition log starts after creation (no creation event recorded);
    // the gap belongs to the status the issue left first
    h := domain.IssueStatusHistory{
        IssueKey:      "SL-4",
        CurrentStatus: "In Progress",
        Created:       t0,
        Transitions: []domain.StatusTransition{
            transition("SL-4", strp("To Do"), "In Progress", t0.Add(4*time.Hour)),
        },
    }
    now := t0.Add(10 * time.Hour)
    got := Breakdown(h, now, zerolog.Nop())
    assert.Equal(t, 4*time.Hour, got["To Do"])
    assert.Equal(t, 6*time.Hour, got["In Progress"])
    var sum time.Duration
    for _, d := range got { sum += d }
    assert.Equal(t, now.Sub(h.Created), sum)
}

func TestBreakdown_ZeroTransitionsAttributeWholeLifetime(t *testing.T) {
    h := domain.IssueStatusHistory{
        IssueKey:      "SL-5",
        CurrentStatus: "Backlog",
        Created:       t0,
    }
    got := Breakdown(h, t0.Add(48*time.Hour), zerolog.Nop())
    require.Len(t, got, 1)
    assert.Equal(t, 48*time.Hour, got["Backlog"])
}

func TestBreakdown_NegativeIntervalClampedToZero(t *testing.T) {
    h := domain.IssueStatusHistory{
        IssueKey:      "SL-6",
        CurrentStatus: "Done",
        Created:       t0,
        Transitions: []domain.StatusTransition{
            transition("SL-6", nil, "To Do", t0),
            // out of order: earlier than the previous event
            transition("SL-6", strp("To Do"), "Done", t0.Add(-2*time.Hour)),
        },
    }
    got := Breakdown(h, t0.Add(3*time.Hour), zerolog.Nop())
    for status, d := range got {
        assert.GreaterOrEqual(t, d, time.Duration(0), "status %q went negative", status)
    }
}

func TestCompute_RejectsNonPositiveWorkingHours(t *testing.T) {
    _, err := Compute(nil, t0, 0, zerolog.Nop())
    require.Error(t, err)
    _, err = Compute(nil, t0, -8, zerolog.Nop())
    require.Error(t, err)
}

func TestCompute_StatsPerStatusAndType(t *testing.T) {
    now := t0.Add(12 * time.Hour)
    resolvedAt4 := t0.Add(4 * time.Hour)
    histories := []domain.IssueStatusHistory{
        {
            IssueKey: "SL-10", IssueType: "Story", CurrentStatus: "In Progress", Created: t0,
            Transitions: []domain.StatusTransition{transition("SL-10", nil, "In Progress", t0)},
        },
        {
            IssueKey: "SL-11", IssueType: "Bug", CurrentStatus: "In Progress", Created: t0,
            Resolved:    &resolvedAt4,
            Transitions: []domain.StatusTransition{transition("SL-11", nil, "In Progress", t0)},
        },
    }
    m, err := Compute(histories, now, 8, zerolog.Nop())
    require.NoError(t, err)

    s := m.ByStatus["In Progress"]
    assert.Equal(t, 2, s.Count)
    assert.InDelta(t, 8.0, s.MeanHours, 1e-9)  // (12 + 4) / 2
    assert.InDelta(t, 4.0, s.MinHours, 1e-9)
    assert.InDelta(t, 12.0, s.MaxHours, 1e-9)
    assert.InDelta(t, 1.0, s.MeanDays, 1e-9) // 8h mean at 8 working hours per day

    require.Contains(t, m.ByStatusAndType, "In Progress")
    assert.Equal(t, 1, m.ByStatusAndType["In Progress"]["Story"].Count)
    assert.InDelta(t, 12.0, m.ByStatusAndType["In Progress"]["Story"].MeanHours, 1e-9)
    assert.InDelta(t, 4.0, m.ByStatusAndType["In Progress"]["Bug"].MeanHours, 1e-9)
}
