package kpi

import (
    "fmt"
    "sort"
    "time"

    "github.com/mkoursha/sprintlens/internal/domain"
)

type GroupBy string

const (
    ByAssignee GroupBy = "assignee"
    ByTeam     GroupBy = "team"
    ByLabel    GroupBy = "label"
    ByBand     GroupBy = "band"
)

// GroupStat is one row of a weighted grouping. Rows are produced fresh per
// call and never persisted by this package.
type GroupStat struct {
    Key         string  `json:"key"`
    Ponderation float64 `json:"ponderation"`
    TicketCount int     `json:"ticket_count"`
}

// GroupWeighted computes weighted sums per group key. Issues missing the
// grouping attribute land in an explicit "unassigned"/"unlabeled" bucket
// rather than being dropped, and an issue with several labels counts once
// per label. A missing weight contributes zero to the sum but still counts
// a ticket. Output order is ponderation desc, ticket count desc, key asc,
// so repeated runs over the same input are identical.
func GroupWeighted(records []domain.IssueRecord, by GroupBy, bands Bands) ([]GroupStat, error) {
    if by == ByBand {
        if err := bands.Validate(); err != nil { return nil, err }
    }
    type agg struct {
        sum float64
        n   int
    }
    groups := map[string]*agg{}
    add := func(key string, w float64) {
        g := groups[key]
        if g == nil { g = &agg{}; groups[key] = g }
        g.sum += w
        g.n++
    }
    for _, r := range records {
        w := 0.0
        if r.Weight != nil { w = *r.Weight }
        switch by {
        case ByAssignee:
            key := r.Assignee
            if key == "" { key = "unassigned" }
            add(key, w)
        case ByTeam:
            key := r.Team
            if key == "" { key = "unassigned" }
            add(key, w)
        case ByLabel:
            if len(r.Labels) == 0 {
                add("unlabeled", w)
                continue
            }
            for _, l := range r.Labels { add(l, w) }
        case ByBand:
            add(bands.BandFor(w), w)
        default:
            return nil, fmt.Errorf("kpi: unknown grouping %q", by)
        }
    }
    out := make([]GroupStat, 0, len(groups))
    for k, g := range groups { out = append(out, GroupStat{Key: k, Ponderation: g.sum, TicketCount: g.n}) }
    sort.Slice(out, func(i, j int) bool {
        if out[i].Ponderation != out[j].Ponderation { return out[i].Ponderation > out[j].Ponderation }
        if out[i].TicketCount != out[j].TicketCount { return out[i].TicketCount > out[j].TicketCount }
        return out[i].Key < out[j].Key
    })
    return out, nil
}

// ResolvedWithinRate returns the percentage of issues weighing at least
// minWeight that were resolved within target of creation, together with the
// population size. Numerator and denominator come from the same filtered
// pass. Issues without a weight are excluded from the population entirely;
// unresolved issues stay in the denominator and count against the rate.
func ResolvedWithinRate(records []domain.IssueRecord, minWeight float64, target time.Duration) (rate float64, population int) {
    hit := 0
    for _, r := range records {
        if r.Weight == nil || *r.Weight < minWeight { continue }
        population++
        if r.Resolved != nil && r.Resolved.Sub(r.Created) <= target { hit++ }
    }
    if population == 0 { return 0, 0 }
    return float64(hit) / float64(population) * 100, population
}
