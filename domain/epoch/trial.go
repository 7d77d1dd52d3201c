// Package epoch holds pre-segmented trial windows and their behavioral
// annotations. Trials are produced by the surrounding preprocessing pipeline
// and are immutable once loaded; everything downstream (resampling,
// thresholding, correlation) reads them through TrialSet.
package epoch

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"sourceboot/domain/core"
)

// Trial is one behavioral event instance: a channels-by-time sensor waveform
// segment plus the behavioral row it is linked to.
type Trial struct {
	ID         core.TrialID
	Waveform   *mat.Dense // nChannels x nTimes
	Covariates map[core.ConditionKey]float64
}

// Covariate returns the behavioral value for one condition, NaN when the
// behavioral log has no entry.
func (t Trial) Covariate(cond core.ConditionKey) float64 {
	v, ok := t.Covariates[cond]
	if !ok {
		return math.NaN()
	}
	return v
}

// TimeAxis describes the shared sample grid of an epoched recording.
type TimeAxis struct {
	Tmin  float64 `json:"tmin"`
	SFreq float64 `json:"sfreq"`
	N     int     `json:"n"`
}

// Times materializes the axis as seconds relative to the event
func (a TimeAxis) Times() []float64 {
	times := make([]float64, a.N)
	for i := range times {
		times[i] = a.Tmin + float64(i)/a.SFreq
	}
	return times
}

// Tmax returns the time of the last sample
func (a TimeAxis) Tmax() float64 {
	if a.N == 0 {
		return a.Tmin
	}
	return a.Tmin + float64(a.N-1)/a.SFreq
}

// IndexRange returns the sample indices with tmin <= t <= tmax. An empty
// window is a configuration error, not a silent clamp.
func (a TimeAxis) IndexRange(tmin, tmax float64) ([]int, error) {
	if tmin < a.Tmin-0.5/a.SFreq || tmax > a.Tmax()+0.5/a.SFreq {
		return nil, core.ErrWindowOutOfRange
	}
	var idx []int
	for i, t := range a.Times() {
		if t >= tmin && t <= tmax {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return nil, core.ErrWindowOutOfRange
	}
	return idx, nil
}

// TrialSet is the trial population for one event, all sharing one time axis
// and channel count.
type TrialSet struct {
	Event  core.EventKey
	Axis   TimeAxis
	Trials []Trial

	nChannels int
}

// NewTrialSet validates waveform shapes against the axis and builds the set
func NewTrialSet(event core.EventKey, axis TimeAxis, trials []Trial) (*TrialSet, error) {
	if len(trials) == 0 {
		return nil, core.NewInsufficientTrialsError(0, 1)
	}
	nCH, nT := trials[0].Waveform.Dims()
	if nT != axis.N {
		return nil, core.ErrShapeMismatch
	}
	for _, tr := range trials {
		r, c := tr.Waveform.Dims()
		if r != nCH || c != nT {
			return nil, core.ErrShapeMismatch
		}
	}
	return &TrialSet{Event: event, Axis: axis, Trials: trials, nChannels: nCH}, nil
}

// Len returns the trial count
func (s *TrialSet) Len() int { return len(s.Trials) }

// NChannels returns the sensor count
func (s *TrialSet) NChannels() int { return s.nChannels }

// IDs returns the trial identifiers in population order
func (s *TrialSet) IDs() []core.TrialID {
	ids := make([]core.TrialID, len(s.Trials))
	for i, tr := range s.Trials {
		ids[i] = tr.ID
	}
	return ids
}

// Subset returns a new set referencing the selected trials. Waveforms are
// shared, not copied.
func (s *TrialSet) Subset(indices []int) (*TrialSet, error) {
	trials := make([]Trial, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(s.Trials) {
			return nil, core.NewValidationError("trial_subset", "index out of range")
		}
		trials[i] = s.Trials[idx]
	}
	return NewTrialSet(s.Event, s.Axis, trials)
}

// MatchBaseline drops trials whose IDs have no counterpart in the baseline
// population. Resampling requires a baseline-matched trial for every retained
// trial, so an empty intersection fails.
func (s *TrialSet) MatchBaseline(baseline *TrialSet) (*TrialSet, error) {
	blIDs := make(map[core.TrialID]struct{}, baseline.Len())
	for _, tr := range baseline.Trials {
		blIDs[tr.ID] = struct{}{}
	}
	var kept []Trial
	for _, tr := range s.Trials {
		if _, ok := blIDs[tr.ID]; ok {
			kept = append(kept, tr)
		}
	}
	if len(kept) == 0 {
		return nil, core.NewInsufficientTrialsError(0, 1)
	}
	return NewTrialSet(s.Event, s.Axis, kept)
}

// Average returns the trial-averaged waveform over the selected population
// indices. Indices may repeat (bootstrap draws average with replacement).
func (s *TrialSet) Average(indices []int) (*mat.Dense, error) {
	if len(indices) == 0 {
		return nil, core.NewInsufficientTrialsError(0, 1)
	}
	avg := mat.NewDense(s.nChannels, s.Axis.N, nil)
	for _, idx := range indices {
		if idx < 0 || idx >= len(s.Trials) {
			return nil, core.NewValidationError("trial_average", "index out of range")
		}
		avg.Add(avg, s.Trials[idx].Waveform)
	}
	avg.Scale(1/float64(len(indices)), avg)
	return avg, nil
}

// AverageTimeResampled averages the selected trials after remapping each
// trial's time samples through its own column index vector. timeCols[j] lists
// the source columns for trial indices[j]; all vectors share one length, the
// width of the result. Used by baseline bootstrapping, where each trial gets
// an independent with-replacement redraw of the baseline samples.
func (s *TrialSet) AverageTimeResampled(indices []int, timeCols [][]int) (*mat.Dense, error) {
	if len(indices) == 0 || len(timeCols) != len(indices) {
		return nil, core.NewValidationError("time_resample", "indices and column sets must align")
	}
	width := len(timeCols[0])
	avg := mat.NewDense(s.nChannels, width, nil)
	for j, idx := range indices {
		if idx < 0 || idx >= len(s.Trials) {
			return nil, core.NewValidationError("time_resample", "trial index out of range")
		}
		if len(timeCols[j]) != width {
			return nil, core.NewValidationError("time_resample", "ragged column sets")
		}
		w := s.Trials[idx].Waveform
		for c, src := range timeCols[j] {
			if src < 0 || src >= s.Axis.N {
				return nil, core.NewValidationError("time_resample", "time column out of range")
			}
			for r := 0; r < s.nChannels; r++ {
				avg.Set(r, c, avg.At(r, c)+w.At(r, src))
			}
		}
	}
	avg.Scale(1/float64(len(indices)), avg)
	return avg, nil
}

// CovariateMean returns the NaN-ignoring mean of a behavioral covariate over
// the selected trials. All-missing selections yield NaN.
func (s *TrialSet) CovariateMean(cond core.ConditionKey, indices []int) float64 {
	sum, n := 0.0, 0
	for _, idx := range indices {
		v := s.Trials[idx].Covariate(cond)
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// SplitByValue partitions population indices by a condition's value, rendered
// through the supplied formatter (values are stored as float64 behavioral
// entries; the formatter maps them onto ValueKeys).
func (s *TrialSet) SplitByValue(cond core.ConditionKey, format func(float64) core.ValueKey) map[core.ValueKey][]int {
	out := make(map[core.ValueKey][]int)
	for i, tr := range s.Trials {
		v := tr.Covariate(cond)
		if math.IsNaN(v) {
			continue
		}
		key := format(v)
		out[key] = append(out[key], i)
	}
	return out
}
