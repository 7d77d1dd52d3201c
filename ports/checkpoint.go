package ports

import (
	"context"

	"sourceboot/domain/bootstrap"
	"sourceboot/domain/core"
)

// CheckpointStore is the durable home of resampling runs: one manifest per
// analysis cell plus one block per completed batch. Batch commit is
// all-or-nothing; a block that cannot be read back intact must be reported
// as absent, not returned partially.
type CheckpointStore interface {
	WriteManifest(ctx context.Context, m *bootstrap.ResampleManifest) error
	ReadManifest(ctx context.Context, key core.AnalysisKey) (*bootstrap.ResampleManifest, error)
	HasManifest(ctx context.Context, key core.AnalysisKey) (bool, error)

	WriteBatch(ctx context.Context, key core.AnalysisKey, block *bootstrap.BatchBlock) error
	ReadBatch(ctx context.Context, key core.AnalysisKey, r bootstrap.BatchRange) (*bootstrap.BatchBlock, error)
	HasBatch(ctx context.Context, key core.AnalysisKey, r bootstrap.BatchRange) (bool, error)

	// DeleteRun removes the manifest and every batch for a cell; used when a
	// forced recompute invalidates existing checkpoints.
	DeleteRun(ctx context.Context, key core.AnalysisKey) error
}
