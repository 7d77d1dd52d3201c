// Package rng provides the deterministic stream adapter behind
// ports.RNGPort. Stream seeds are derived by hashing the owning analysis
// cell and stage name into the base seed, so every stage of every cell gets
// an independent, replayable generator.
package rng

import (
	"context"
	"math/rand"

	"sourceboot/domain/core"
)

// StreamAdapter implements ports.RNGPort
type StreamAdapter struct{}

// NewStreamAdapter creates the adapter
func NewStreamAdapter() *StreamAdapter {
	return &StreamAdapter{}
}

// SeededStream creates a deterministic generator for a named operation
func (a *StreamAdapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	return rand.New(rand.NewSource(seed + int64(hashString(name)))), nil
}

// Stream creates a deterministic stream for one analysis cell and stage
func (a *StreamAdapter) Stream(ctx context.Context, key core.AnalysisKey, stageName string, baseSeed int64) (*rand.Rand, error) {
	seed := baseSeed
	seed += int64(hashString(key.String()))
	seed += int64(hashString(stageName))
	return rand.New(rand.NewSource(seed)), nil
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2 algorithm
	}
	return hash
}
