package ports

import (
	"context"
	"math/rand"

	"sourceboot/domain/core"
)

// RNGPort provides seeded random number generation for deterministic
// operations. Every stage draws from an explicitly owned stream; nothing in
// the pipeline touches global seed state.
type RNGPort interface {
	// SeededStream creates a deterministic generator for a named operation
	SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error)

	// Stream creates a deterministic stream scoped to one analysis cell and
	// stage, so resumed runs reproduce identical draws per stage rather than
	// per process.
	Stream(ctx context.Context, key core.AnalysisKey, stageName string, baseSeed int64) (*rand.Rand, error)
}
