package ports

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"sourceboot/domain/core"
)

// InverseOperator maps a trial-averaged sensor waveform (nChannels x nTimes)
// into source space (nSources x nTimes). Implementations are precomputed per
// condition value by the surrounding pipeline and are read-only here.
type InverseOperator interface {
	Apply(avg *mat.Dense) (*mat.Dense, error)
	NSources() int
	Lambda2() float64
}

// InverseProvider supplies the operator for one analysis cell
type InverseProvider interface {
	Operator(ctx context.Context, key core.AnalysisKey) (InverseOperator, error)
}
