package timeinstatus

import (
    "fmt"
    "time"

    "github.com/mkoursha/sprintlens/internal/domain"
    "github.com/rs/zerolog"
)

// Breakdown converts one ordered transition log into duration-per-status.
// Each interval [t_i, t_{i+1}) is attributed to the status entered at t_i;
// the final open interval runs to the resolution time when resolved,
// otherwise to now. With zero transitions the entire lifetime belongs to the
// issue's current status. The sum of all buckets equals end - created, which
// keeps the report's totals honest regardless of workflow shape.
//
// Negative intervals from clock skew or out-of-order events are clamped to
// zero and logged as a data-quality signal, never summed into totals.
func Breakdown(h domain.IssueStatusHistory, now time.Time, log zerolog.Logger) map[string]time.Duration {
    end := now
    if h.Resolved != nil { end = *h.Resolved }
    out := map[string]time.Duration{}
    if len(h.Transitions) == 0 {
        out[h.CurrentStatus] = clamp(log, h.IssueKey, h.CurrentStatus, end.Sub(h.Created))
        return out
    }
    // lead-in before the first logged transition belongs to the status the
    // issue started in; for a creation event this interval is zero anyway
    first := h.Transitions[0]
    headStatus := first.ToStatus
    if first.FromStatus != nil && *first.FromStatus != "" { headStatus = *first.FromStatus }
    if head := first.At.Sub(h.Created); head != 0 {
        out[headStatus] += clamp(log, h.IssueKey, headStatus, head)
    }
    for i := 0; i+1 < len(h.Transitions); i++ {
        cur := h.Transitions[i]
        d := h.Transitions[i+1].At.Sub(cur.At)
        out[cur.ToStatus] += clamp(log, h.IssueKey, cur.ToStatus, d)
    }
    last := h.Transitions[len(h.Transitions)-1]
    out[last.ToStatus] += clamp(log, h.IssueKey, last.ToStatus, end.Sub(last.At))
    return out
}

func clamp(log zerolog.Logger, key, status string, d time.Duration) time.Duration {
    if d < 0 {
        log.Warn().Str("issue", key).Str("status", status).Dur("interval", d).Msg("negative status interval clamped to zero")
        return 0
    }
    return d
}

// Stats summarizes observed durations for one bucket, in hours and in
// working days (hours divided by the configured working hours per day, not
// calendar days).
type Stats struct {
    Count     int     `json:"count"`
    MeanHours float64 `json:"mean_hours"`
    MinHours  float64 `json:"min_hours"`
    MaxHours  float64 `json:"max_hours"`
    MeanDays  float64 `json:"mean_days"`
    MinDays   float64 `json:"min_days"`
    MaxDays   float64 `json:"max_days"`
}

// Metrics is the duration-per-status report over a set of issues, overall
// and split by issue type.
type Metrics struct {
    WorkingHoursPerDay float64                     `json:"working_hours_per_day"`
    ByStatus           map[string]Stats            `json:"by_status"`
    ByStatusAndType    map[string]map[string]Stats `json:"by_status_and_type"`
}

type acc struct{ n int; sum, min, max float64 }

func (a *acc) add(h float64) {
    if a.n == 0 || h < a.min { a.min = h }
    if a.n == 0 || h > a.max { a.max = h }
    a.sum += h
    a.n++
}

func (a *acc) stats(workingHoursPerDay float64) Stats {
    mean := a.sum / float64(a.n)
    return Stats{
        Count:     a.n,
        MeanHours: mean,
        MinHours:  a.min,
        MaxHours:  a.max,
        MeanDays:  mean / workingHoursPerDay,
        MinDays:   a.min / workingHoursPerDay,
        MaxDays:   a.max / workingHoursPerDay,
    }
}

// Compute derives duration-per-status statistics across issues. now is an
// explicit parameter so still-open intervals stay deterministic under test;
// nothing here reads the wall clock. A non-positive workingHoursPerDay is a
// configuration error reported before any history is walked.
func Compute(histories []domain.IssueStatusHistory, now time.Time, workingHoursPerDay float64, log zerolog.Logger) (Metrics, error) {
    if workingHoursPerDay <= 0 {
        return Metrics{}, fmt.Errorf("timeinstatus: working hours per day must be positive, got %g", workingHoursPerDay)
    }
    byStatus := map[string]*acc{}
    byStatusType := map[string]map[string]*acc{}
    for _, h := range histories {
        for status, d := range Breakdown(h, now, log) {
            hours := d.Hours()
            a := byStatus[status]
            if a == nil { a = &acc{}; byStatus[status] = a }
            a.add(hours)
            perType := byStatusType[status]
            if perType == nil { perType = map[string]*acc{}; byStatusType[status] = perType }
            ta := perType[h.IssueType]
            if ta == nil { ta = &acc{}; perType[h.IssueType] = ta }
            ta.add(hours)
        }
    }
    m := Metrics{
        WorkingHoursPerDay: workingHoursPerDay,
        ByStatus:           make(map[string]Stats, len(byStatus)),
        ByStatusAndType:    make(map[string]map[string]Stats, len(byStatusType)),
    }
    for status, a := range byStatus { m.ByStatus[status] = a.stats(workingHoursPerDay) }
    for status, perType := range byStatusType {
        m.ByStatusAndType[status] = make(map[string]Stats, len(perType))
        for typ, a := range perType { m.ByStatusAndType[status][typ] = a.stats(workingHoursPerDay) }
    }
    return m, nil
}
