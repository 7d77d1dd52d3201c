package pci

import (
	"math"

	"sourceboot/domain/core"
)

// NormFactor returns the theoretical maximum complexity of a binary matrix
// with the observed overall activation rate p: L*H(p)/log2(L), where H is the
// binary source entropy. Degenerate matrices (all zeros or all ones) have
// zero entropy and a zero factor; callers map that onto a zero trajectory.
func NormFactor(b *BinaryMatrix) float64 {
	nS, nT := b.Dims()
	L := float64(nS * nT)
	if L <= 1 {
		return 0
	}
	p1 := b.ActivationRate()
	if p1 <= 0 || p1 >= 1 {
		return 0
	}
	h := -p1*math.Log2(p1) - (1-p1)*math.Log2(1-p1)
	return L * h / math.Log2(L)
}

// Trajectory computes the normalized complexity curve of a ranked,
// analysis-window binary matrix. The matrix is consumed time step by time
// step, sources in rank order within each step, so the value at index t is
// the normalized LZ76 phrase count of the first t+1 time steps. The raw
// phrase count is non-decreasing in t by construction; one whole-matrix
// entropy factor normalizes the entire curve.
func Trajectory(b *BinaryMatrix) []float64 {
	nS, nT := b.Dims()
	ct := make([]float64, nT)
	norm := NormFactor(b)
	if norm == 0 {
		return ct
	}
	sc := NewScanner()
	col := make([]byte, nS)
	for t := 0; t < nT; t++ {
		for s := 0; s < nS; s++ {
			col[s] = b.Bits[s][t]
		}
		sc.Append(col...)
		ct[t] = float64(sc.Complexity()) / norm
	}
	return ct
}

// Artifact is the persisted complexity result for one analysis cell
type Artifact struct {
	ID  core.ArtifactID  `json:"id"`
	Key core.AnalysisKey `json:"key"`

	Trajectory    []float64     `json:"trajectory"`
	RankedMatrix  *BinaryMatrix `json:"ranked_matrix"`
	RankPerm      []int         `json:"rank_perm"`
	Order         RankOrder     `json:"order"`
	Tmin          float64       `json:"tmin"`
	Tmax          float64       `json:"tmax"`
	LeadingOffset int           `json:"leading_offset"`

	CreatedAt core.Timestamp `json:"created_at"`
}

// PCI returns the endpoint of the trajectory, the perturbational complexity
// index over the full analysis window.
func (a *Artifact) PCI() float64 {
	if len(a.Trajectory) == 0 {
		return 0
	}
	return a.Trajectory[len(a.Trajectory)-1]
}

// Validate checks shape agreement
func (a *Artifact) Validate() error {
	if err := a.Key.Validate(); err != nil {
		return err
	}
	if a.RankedMatrix == nil {
		return core.NewValidationError("pci_artifact", "ranked matrix missing")
	}
	_, nT := a.RankedMatrix.Dims()
	if len(a.Trajectory) != nT {
		return core.ErrShapeMismatch
	}
	return nil
}
