// Package pci computes the perturbational complexity index: binarization of
// source estimates against their thresholds, activity ranking, and a
// streaming Lempel-Ziv complexity trajectory over the ranked binary matrix.
package pci

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"sourceboot/domain/core"
)

// RankOrder fixes the direction of the activity ranking. The convention is
// configurable and covered by tests rather than assumed.
type RankOrder string

const (
	// RankAscending puts the lowest-activity sources first, the background
	// against which spatiotemporal complexity is measured.
	RankAscending RankOrder = "ascending"
	// RankDescending puts the highest-activity sources first.
	RankDescending RankOrder = "descending"
)

// BinaryMatrix is a source-by-time activation matrix of 0/1 symbols
type BinaryMatrix struct {
	Bits [][]byte `json:"bits"` // one row per source
}

// NewBinaryMatrix validates row lengths
func NewBinaryMatrix(bits [][]byte) (*BinaryMatrix, error) {
	if len(bits) == 0 {
		return nil, core.ErrShapeMismatch
	}
	nT := len(bits[0])
	for _, row := range bits {
		if len(row) != nT {
			return nil, core.ErrShapeMismatch
		}
	}
	return &BinaryMatrix{Bits: bits}, nil
}

// Dims returns (nSources, nTimes)
func (b *BinaryMatrix) Dims() (int, int) {
	if len(b.Bits) == 0 {
		return 0, 0
	}
	return len(b.Bits), len(b.Bits[0])
}

// ActivationRate returns the overall fraction of active cells
func (b *BinaryMatrix) ActivationRate() float64 {
	nS, nT := b.Dims()
	if nS == 0 || nT == 0 {
		return 0
	}
	count := 0
	for _, row := range b.Bits {
		for _, v := range row {
			if v != 0 {
				count++
			}
		}
	}
	return float64(count) / float64(nS*nT)
}

// Binarize thresholds |j| against the per-source thresholds, broadcast over
// time: bit[s][t] = |j[s,t]| > thresh[s].
func Binarize(j *mat.Dense, thresh []float64) (*BinaryMatrix, error) {
	nS, nT := j.Dims()
	if len(thresh) != nS {
		return nil, core.ErrShapeMismatch
	}
	bits := make([][]byte, nS)
	for s := 0; s < nS; s++ {
		row := make([]byte, nT)
		for t := 0; t < nT; t++ {
			v := j.At(s, t)
			if v < 0 {
				v = -v
			}
			if v > thresh[s] {
				row[t] = 1
			}
		}
		bits[s] = row
	}
	return &BinaryMatrix{Bits: bits}, nil
}

// RankByActivity reorders source rows by total activation count with a
// stable sort, ties preserving original source order. Returns the ranked
// matrix and the permutation applied (ranked row i came from source perm[i]).
func (b *BinaryMatrix) RankByActivity(order RankOrder) (*BinaryMatrix, []int) {
	nS, _ := b.Dims()
	counts := make([]int, nS)
	for s, row := range b.Bits {
		for _, v := range row {
			if v != 0 {
				counts[s]++
			}
		}
	}
	perm := make([]int, nS)
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, c int) bool {
		if order == RankDescending {
			return counts[perm[a]] > counts[perm[c]]
		}
		return counts[perm[a]] < counts[perm[c]]
	})
	bits := make([][]byte, nS)
	for i, src := range perm {
		bits[i] = b.Bits[src]
	}
	return &BinaryMatrix{Bits: bits}, perm
}

// Crop restricts the matrix to the analysis-window time indices, dropping the
// first `leadingOffset` of them (edge artifact points near stimulus onset).
func (b *BinaryMatrix) Crop(windowIdx []int, leadingOffset int) (*BinaryMatrix, error) {
	if leadingOffset < 0 || leadingOffset >= len(windowIdx) {
		return nil, core.NewValidationError("pci_crop", "leading offset leaves no analysis window")
	}
	keep := windowIdx[leadingOffset:]
	nS, nT := b.Dims()
	bits := make([][]byte, nS)
	for s := 0; s < nS; s++ {
		row := make([]byte, len(keep))
		for i, t := range keep {
			if t < 0 || t >= nT {
				return nil, core.NewValidationError("pci_crop", "window index out of range")
			}
			row[i] = b.Bits[s][t]
		}
		bits[s] = row
	}
	return &BinaryMatrix{Bits: bits}, nil
}
