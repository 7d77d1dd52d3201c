// Package bootstrap defines the resampling plan: the shared trial index
// matrix every bootstrap draw reads from, and the batch partitioning used to
// checkpoint draws to durable storage.
package bootstrap

import (
	"math/rand"

	"sourceboot/domain/core"
)

// IndexMatrix holds the Nboot x Nave trial indices, drawn with replacement
// from the trial population once up front. Sharing one matrix across all
// draws is what makes the whole resampling run reproducible from a seed.
type IndexMatrix struct {
	Indices [][]int `json:"indices"`
}

// NewIndexMatrix draws the full matrix from rng. The caller owns the rng and
// its seed; the matrix never reseeds or reads global state.
func NewIndexMatrix(rng *rand.Rand, nBoot, nAve, nTrials int) (IndexMatrix, error) {
	if nBoot < 1 || nAve < 1 {
		return IndexMatrix{}, core.NewValidationError("index_matrix", "Nboot and Nave must be positive")
	}
	if nTrials < 1 {
		return IndexMatrix{}, core.NewInsufficientTrialsError(nTrials, 1)
	}
	indices := make([][]int, nBoot)
	for i := range indices {
		row := make([]int, nAve)
		for j := range row {
			row[j] = rng.Intn(nTrials)
		}
		indices[i] = row
	}
	return IndexMatrix{Indices: indices}, nil
}

// NBoot returns the number of draws
func (m IndexMatrix) NBoot() int { return len(m.Indices) }

// NAve returns the trials per draw
func (m IndexMatrix) NAve() int {
	if len(m.Indices) == 0 {
		return 0
	}
	return len(m.Indices[0])
}

// Sample returns the index set of one draw
func (m IndexMatrix) Sample(i int) []int { return m.Indices[i] }

// Hash fingerprints the matrix for determinism checks
func (m IndexMatrix) Hash() core.Hash {
	return core.ComputeIndexHash(m.Indices)
}

// BatchRange is one checkpointed slice of the draw sequence, [Min, Max)
type BatchRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Len returns the draws in the batch
func (b BatchRange) Len() int { return b.Max - b.Min }

// Batches partitions nBoot draws into fixed-size batches. A trailing partial
// batch is kept; batch commit is all-or-nothing per range.
func Batches(nBoot, batchSize int) []BatchRange {
	if batchSize < 1 || nBoot < 1 {
		return nil
	}
	var out []BatchRange
	for lo := 0; lo < nBoot; lo += batchSize {
		hi := lo + batchSize
		if hi > nBoot {
			hi = nBoot
		}
		out = append(out, BatchRange{Min: lo, Max: hi})
	}
	return out
}
