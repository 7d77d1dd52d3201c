package sourcespace

import (
	"math"
	"sort"

	"sourceboot/domain/core"
)

// Band is a named frequency range in Hz
type Band struct {
	Name string  `json:"name"`
	FMin float64 `json:"fmin"`
	FMax float64 `json:"fmax"`
}

// FrequencyGrid is the logarithmically spaced analysis grid shared by all
// wavelet decompositions of one resampling run, with matching cycle counts.
type FrequencyGrid struct {
	Freqs  []float64 `json:"freqs"`
	Cycles []float64 `json:"cycles"`
}

// NewFrequencyGrid builds a grid of `steps` frequencies log-spaced over
// [fmin, fmax] with cycle counts log-spaced over [nmin, nmax].
func NewFrequencyGrid(fmin, fmax, nmin, nmax float64, steps int) (FrequencyGrid, error) {
	if steps < 1 || fmin <= 0 || fmax < fmin || nmin <= 0 || nmax < nmin {
		return FrequencyGrid{}, core.NewValidationError("frequency_grid", "invalid grid bounds")
	}
	return FrequencyGrid{
		Freqs:  logspace(fmin, fmax, steps),
		Cycles: logspace(nmin, nmax, steps),
	}, nil
}

// BandBins returns, per band, the grid indices whose frequency falls inside
// the band. Bands capturing no grid frequency are omitted, matching how the
// decomposition skips them.
func (g FrequencyGrid) BandBins(bands []Band) map[string][]int {
	bins := make(map[string][]int)
	for _, b := range bands {
		var idx []int
		for i, f := range g.Freqs {
			if f >= b.FMin && f <= b.FMax {
				idx = append(idx, i)
			}
		}
		if len(idx) > 0 {
			bins[b.Name] = idx
		}
	}
	return bins
}

// BandNames returns the band names in deterministic order
func BandNames(bins map[string][]int) []string {
	names := make([]string, 0, len(bins))
	for name := range bins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func logspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = lo
		return out
	}
	llo, lhi := math.Log10(lo), math.Log10(hi)
	for i := range out {
		out[i] = math.Pow(10, llo+(lhi-llo)*float64(i)/float64(n-1))
	}
	return out
}
