package kpi

import (
    "errors"
    "fmt"
    "strconv"
    "strings"
)

// Band is one named slice of the weight scale. Min is inclusive; Max is
// exclusive except on the last band of a set, where it is inclusive so the
// partition covers the whole domain.
type Band struct {
    Name string  `json:"name"`
    Min  float64 `json:"min"`
    Max  float64 `json:"max"`
}

type Bands []Band

// DefaultBands partitions the expected weight domain [0,100].
func DefaultBands() Bands {
    return Bands{
        {Name: "low", Min: 0, Max: 25},
        {Name: "medium", Min: 25, Max: 50},
        {Name: "high", Min: 50, Max: 75},
        {Name: "very-high", Min: 75, Max: 100},
    }
}

// Validate rejects band sets with empty ranges, gaps or overlaps. Bands must
// be listed in ascending order and contiguous so every weight in the domain
// maps to exactly one band. This is checked once at setup, before any
// aggregation runs.
func (bs Bands) Validate() error {
    if len(bs) == 0 { return errors.New("kpi: empty band definition") }
    for i, b := range bs {
        if strings.TrimSpace(b.Name) == "" { return fmt.Errorf("kpi: band %d has no name", i) }
        if b.Max <= b.Min { return fmt.Errorf("kpi: band %q has empty range [%g,%g]", b.Name, b.Min, b.Max) }
        if i == 0 { continue }
        prev := bs[i-1]
        switch {
        case b.Min < prev.Max:
            return fmt.Errorf("kpi: bands %q and %q overlap", prev.Name, b.Name)
        case b.Min > prev.Max:
            return fmt.Errorf("kpi: gap between bands %q and %q", prev.Name, b.Name)
        }
    }
    return nil
}

// BandFor maps a weight to its band name. Weights outside the configured
// domain are clamped into the nearest edge band, a deterministic fallback
// for corrupt upstream scores.
func (bs Bands) BandFor(w float64) string {
    if len(bs) == 0 { return "" }
    if w < bs[0].Min { return bs[0].Name }
    for i, b := range bs {
        last := i == len(bs)-1
        if w >= b.Min && (w < b.Max || (last && w <= b.Max)) { return b.Name }
    }
    return bs[len(bs)-1].Name
}

// ParseBands reads a band definition like
// "low:0-25,medium:25-50,high:50-75,very-high:75-100".
// An empty spec yields the default partition. The result is validated.
func ParseBands(spec string) (Bands, error) {
    spec = strings.TrimSpace(spec)
    if spec == "" { return DefaultBands(), nil }
    var bs Bands
    for _, part := range strings.Split(spec, ",") {
        part = strings.TrimSpace(part)
        if part == "" { continue }
        name, rng, ok := strings.Cut(part, ":")
        if !ok { return nil, fmt.Errorf("kpi: malformed band %q, want name:min-max", part) }
        lo, hi, ok := strings.Cut(rng, "-")
        if !ok { return nil, fmt.Errorf("kpi: malformed band range %q, want min-max", rng) }
        min, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
        if err != nil { return nil, fmt.Errorf("kpi: band %q: bad min %q", name, lo) }
        max, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
        if err != nil { return nil, fmt.Errorf("kpi: band %q: bad max %q", name, hi) }
        bs = append(bs, Band{Name: strings.TrimSpace(name), Min: min, Max: max})
    }
    if err := bs.Validate(); err != nil { return nil, err }
    return bs, nil
}
