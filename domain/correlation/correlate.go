// Package correlation relates bootstrap-sample statistics to a behavioral
// covariate: per-source permutation null distributions of the regression
// coefficient, and the signed inverse-p surprise statistic derived from them.
package correlation

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"

	"sourceboot/domain/core"
	"sourceboot/domain/sourcespace"
)

// PermutationMatrix holds the n_permutations x Nboot shuffled orderings of
// the bootstrap-sample axis, drawn once per engine run and reused for every
// source so null distributions are reproducible from the seed.
type PermutationMatrix struct {
	Indices [][]int `json:"indices"`
}

// NewPermutationMatrix draws nPerm orderings of [0, nBoot) with replacement
func NewPermutationMatrix(rng *rand.Rand, nPerm, nBoot int) (PermutationMatrix, error) {
	if nPerm < 1 || nBoot < 1 {
		return PermutationMatrix{}, core.NewValidationError("permutation_matrix", "counts must be positive")
	}
	indices := make([][]int, nPerm)
	for p := range indices {
		row := make([]int, nBoot)
		for j := range row {
			row[j] = rng.Intn(nBoot)
		}
		indices[p] = row
	}
	return PermutationMatrix{Indices: indices}, nil
}

// NPerm returns the permutation count
func (m PermutationMatrix) NPerm() int { return len(m.Indices) }

// Coefficient returns the Pearson correlation coefficient between x and y,
// which carries the regression slope's sign. Degenerate inputs (zero
// variance) yield 0 rather than NaN.
func Coefficient(x, y []float64) float64 {
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// NullDistribution builds one source's permutation null: the coefficient of
// each permuted ordering of the baseline-averaged statistic against the
// covariate vector.
func NullDistribution(baselineAvg, covariate []float64, perms PermutationMatrix) []float64 {
	null := make([]float64, perms.NPerm())
	shuffled := make([]float64, len(baselineAvg))
	for p, ordering := range perms.Indices {
		for j, idx := range ordering {
			shuffled[j] = baselineAvg[idx]
		}
		null[p] = Coefficient(shuffled, covariate)
	}
	return null
}

// SignedInverseP converts an observed coefficient and its null distribution
// into the signed surprise statistic: sign(r)/p with the two-sided empirical
// p-value, substituting the smallest representable p (1/nPerm) when no null
// value exceeds the observation.
func SignedInverseP(r float64, null []float64) float64 {
	nPerm := len(null)
	if nPerm == 0 {
		return 0
	}
	extreme := 0
	for _, v := range null {
		if math.Abs(v) > math.Abs(r) {
			extreme++
		}
	}
	p := float64(extreme) / float64(nPerm)
	if p <= 0 {
		p = 1 / float64(nPerm)
	}
	sign := 1.0
	if r < 0 {
		sign = -1
	} else if r == 0 {
		sign = 0
	}
	return sign / p
}

// BandMaps carries the per-band correlation maps when time-frequency
// reduction was part of the resampling run.
type BandMaps struct {
	Power map[string]sourcespace.MatrixPayload `json:"power,omitempty"`
	Phase map[string]sourcespace.MatrixPayload `json:"phase,omitempty"`
}

// Artifact is the persisted correlation result for one (event, condition)
type Artifact struct {
	ID            core.ArtifactID           `json:"id"`
	Key           core.AnalysisKey          `json:"key"`
	Covariate     core.ConditionKey         `json:"covariate"`
	NPermutations int                       `json:"n_permutations"`
	Seed          int64                     `json:"seed"`
	BaselineTmin  float64                   `json:"bl_tmin"`
	BaselineTmax  float64                   `json:"bl_tmax"`
	Map           sourcespace.MatrixPayload `json:"map"`
	Bands         BandMaps                  `json:"bands,omitempty"`
	CreatedAt     core.Timestamp            `json:"created_at"`
}

// Validate checks the artifact is complete
func (a *Artifact) Validate() error {
	if err := a.Key.Validate(); err != nil {
		return err
	}
	if a.NPermutations < 1 {
		return core.NewValidationError("correlation_artifact", "n_permutations must be positive")
	}
	if len(a.Map.Data) == 0 {
		return core.NewValidationError("correlation_artifact", "map missing")
	}
	return nil
}
