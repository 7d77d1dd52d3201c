// Package sourcespace holds source-estimate value objects: the
// source-by-time matrices produced by inverse operators and the frequency
// band definitions used for their time-frequency reduction.
package sourcespace

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"sourceboot/domain/core"
	"sourceboot/domain/epoch"
)

// SourceTimeSeries is a source-location by time matrix in source space,
// carrying the time axis it was estimated on.
type SourceTimeSeries struct {
	Data *mat.Dense // nSources x nTimes
	Axis epoch.TimeAxis
}

// NewSourceTimeSeries validates the matrix against the axis
func NewSourceTimeSeries(data *mat.Dense, axis epoch.TimeAxis) (*SourceTimeSeries, error) {
	_, nT := data.Dims()
	if nT != axis.N {
		return nil, core.ErrShapeMismatch
	}
	return &SourceTimeSeries{Data: data, Axis: axis}, nil
}

// Dims returns (nSources, nTimes)
func (s *SourceTimeSeries) Dims() (int, int) {
	return s.Data.Dims()
}

// Clone deep-copies the series
func (s *SourceTimeSeries) Clone() *SourceTimeSeries {
	return &SourceTimeSeries{Data: mat.DenseCopyOf(s.Data), Axis: s.Axis}
}

// BaselineStats returns the per-source mean and sample standard deviation
// over the given time indices. These are computed from the real (not
// bootstrapped) data and anchor all z-normalization downstream.
func (s *SourceTimeSeries) BaselineStats(timeIdx []int) (means, stds []float64) {
	nSRC, _ := s.Data.Dims()
	means = make([]float64, nSRC)
	stds = make([]float64, nSRC)
	buf := make([]float64, len(timeIdx))
	for i := 0; i < nSRC; i++ {
		for j, t := range timeIdx {
			buf[j] = s.Data.At(i, t)
		}
		means[i], stds[i] = stat.MeanStdDev(buf, nil)
	}
	return means, stds
}

// SubtractPerSource removes a per-source offset from every time sample,
// in place.
func (s *SourceTimeSeries) SubtractPerSource(offsets []float64) error {
	nSRC, nT := s.Data.Dims()
	if len(offsets) != nSRC {
		return core.ErrShapeMismatch
	}
	for i := 0; i < nSRC; i++ {
		for t := 0; t < nT; t++ {
			s.Data.Set(i, t, s.Data.At(i, t)-offsets[i])
		}
	}
	return nil
}

// MeanOverTimes returns, per source, the mean over the given time indices
func (s *SourceTimeSeries) MeanOverTimes(timeIdx []int) []float64 {
	nSRC, _ := s.Data.Dims()
	out := make([]float64, nSRC)
	for i := 0; i < nSRC; i++ {
		sum := 0.0
		for _, t := range timeIdx {
			sum += s.Data.At(i, t)
		}
		out[i] = sum / float64(len(timeIdx))
	}
	return out
}
