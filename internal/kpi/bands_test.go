package kpi

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestDefaultBands_ExhaustiveOverDomain(t *testing.T) {
    bands := DefaultBands()
    require.NoError(t, bands.Validate())
    // every weight in [0,100] maps to exactly one band, no gaps
    for w := 0.0; w <= 100.0; w += 0.5 {
        name := bands.BandFor(w)
        assert.NotEmpty(t, name, "weight %g fell through the partition", w)
        matches := 0
        for i, b := range bands {
            last := i == len(bands)-1
            if w >= b.Min && (w < b.Max || (last && w <= b.Max)) { matches++ }
        }
        assert.Equal(t, 1, matches, "weight %g matched %d bands", w, matches)
    }
    assert.Equal(t, "low", bands.BandFor(0))
    assert.Equal(t, "medium", bands.BandFor(25))
    assert.Equal(t, "very-high", bands.BandFor(100))
}

func TestBandFor_ClampsOutOfDomainWeights(t *testing.T) {
    bands := DefaultBands()
    assert.Equal(t, "low", bands.BandFor(-5))
    assert.Equal(t, "very-high", bands.BandFor(250))
}

func TestValidate_RejectsGapsAndOverlaps(t *testing.T) {
    gap := Bands{{Name: "a", Min: 0, Max: 10}, {Name: "b", Min: 20, Max: 30}}
    require.Error(t, gap.Validate())

    overlap := Bands{{Name: "a", Min: 0, Max: 15}, {Name: "b", Min: 10, Max: 30}}
    require.Error(t, overlap.Validate())

    empty := Bands{{Name: "a", Min: 10, Max: 10}}
    require.Error(t, empty.Validate())

    require.Error(t, Bands{}.Validate())
}

func TestParseBands(t *testing.T) {
    bs, err := ParseBands("low:0-30,mid:30-60,high:60-100")
    require.NoError(t, err)
    require.Len(t, bs, 3)
    assert.Equal(t, Band{Name: "mid", Min: 30, Max: 60}, bs[1])

    _, err = ParseBands("low:0-30,mid:40-60")
    require.Error(t, err, "gapped spec must not validate")

    _, err = ParseBands("garbage")
    require.Error(t, err)

    bs, err = ParseBands("")
    require.NoError(t, err)
    assert.Equal(t, DefaultBands(), bs)
}
