// Package threshold derives per-source binarization thresholds from
// baseline-period null distributions, or from the split-half median policy.
package threshold

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"sourceboot/domain/core"
	"sourceboot/domain/sourcespace"
)

// PolicyMode selects how thresholds are derived
type PolicyMode string

const (
	// ModeBootstrap builds a max-statistic null distribution from baseline
	// resampling and takes its (1-alpha)-quantile.
	ModeBootstrap PolicyMode = "bootstrap"
	// ModeMedianSplit ("50_50") thresholds each source at the median of |J|
	// over the analysis window, bypassing the bootstrap entirely.
	ModeMedianSplit PolicyMode = "50_50"
)

// Policy is the thresholding configuration for one analysis cell
type Policy struct {
	Mode  PolicyMode `json:"mode"`
	Alpha float64    `json:"alpha,omitempty"`
}

// BootstrapPolicy returns the quantile policy for a given alpha
func BootstrapPolicy(alpha float64) Policy {
	return Policy{Mode: ModeBootstrap, Alpha: alpha}
}

// MedianSplitPolicy returns the 50_50 policy
func MedianSplitPolicy() Policy {
	return Policy{Mode: ModeMedianSplit}
}

// Validate checks the policy parameters
func (p Policy) Validate() error {
	switch p.Mode {
	case ModeBootstrap:
		if p.Alpha <= 0 || p.Alpha >= 1 {
			return core.NewValidationError("threshold_policy", "alpha must be in (0,1)")
		}
		return nil
	case ModeMedianSplit:
		return nil
	default:
		return core.NewValidationError("threshold_policy", "unknown mode")
	}
}

// QuantileIndex maps alpha onto the pooled null distribution's sorted index:
// floor((1-alpha) * n). An index beyond the array is a configuration error
// (alpha too small for the pooled sample count) and fails loudly.
func QuantileIndex(alpha float64, n int) (int, error) {
	idx := int(math.Floor((1 - alpha) * float64(n)))
	if idx < 0 || idx >= n {
		return 0, core.NewAlphaOutOfRangeError(alpha, idx, n)
	}
	return idx, nil
}

// MultiplierFromNull sorts the pooled max-|z| null values and returns the
// global threshold multiplier at the (1-alpha)-quantile index. The input
// slice is not modified.
func MultiplierFromNull(pooled []float64, alpha float64) (float64, error) {
	idx, err := QuantileIndex(alpha, len(pooled))
	if err != nil {
		return 0, err
	}
	sorted := make([]float64, len(pooled))
	copy(sorted, pooled)
	sort.Float64s(sorted)
	return sorted[idx], nil
}

// PerSource scales the global multiplier by each source's baseline standard
// deviation, yielding the per-source threshold vector.
func PerSource(multiplier float64, baselineStd []float64) []float64 {
	out := make([]float64, len(baselineStd))
	for i, s := range baselineStd {
		out[i] = multiplier * s
	}
	return out
}

// MedianSplit computes the 50_50 thresholds: per source, the median of |J|
// over the analysis-window time indices.
func MedianSplit(j *sourcespace.SourceTimeSeries, windowIdx []int) ([]float64, error) {
	nSRC, _ := j.Dims()
	out := make([]float64, nSRC)
	buf := make([]float64, len(windowIdx))
	for i := 0; i < nSRC; i++ {
		for k, t := range windowIdx {
			buf[k] = math.Abs(j.Data.At(i, t))
		}
		med, err := stats.Median(buf)
		if err != nil {
			return nil, err
		}
		out[i] = med
	}
	return out, nil
}

// Artifact is the persisted threshold for one analysis cell. The real source
// waveform and its baseline statistics travel with the threshold so the PCI
// stage can binarize without re-running the inverse.
type Artifact struct {
	ID     core.ArtifactID  `json:"id"`
	Key    core.AnalysisKey `json:"key"`
	Policy Policy           `json:"policy"`
	NBoot  int              `json:"nboot"`

	BaselineTmin float64 `json:"bl_tmin"`
	BaselineTmax float64 `json:"bl_tmax"`

	SourceWaveform sourcespace.MatrixPayload `json:"source_waveform"` // baseline-mean-corrected J
	BaselineMean   []float64                 `json:"baseline_mean"`
	BaselineStd    []float64                 `json:"baseline_std"`
	Multiplier     float64                   `json:"multiplier,omitempty"`
	PerSource      []float64                 `json:"per_source"`

	TrialIDs  []core.TrialID `json:"trial_ids"`
	CreatedAt core.Timestamp `json:"created_at"`
}

// Validate checks shape agreement
func (a *Artifact) Validate() error {
	if err := a.Key.Validate(); err != nil {
		return err
	}
	if err := a.Policy.Validate(); err != nil {
		return err
	}
	nSRC := a.SourceWaveform.Rows
	if len(a.PerSource) != nSRC || len(a.BaselineStd) != nSRC || len(a.BaselineMean) != nSRC {
		return core.ErrShapeMismatch
	}
	return nil
}

// Matrix broadcasts the per-source thresholds over the waveform's time
// columns, yielding the (nSources, nTimes) threshold matrix.
func (a *Artifact) Matrix() *mat.Dense {
	nSRC, nT := a.SourceWaveform.Rows, a.SourceWaveform.Cols
	out := mat.NewDense(nSRC, nT, nil)
	for i := 0; i < nSRC; i++ {
		for t := 0; t < nT; t++ {
			out.Set(i, t, a.PerSource[i])
		}
	}
	return out
}
