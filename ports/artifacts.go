package ports

import (
	"context"

	"sourceboot/domain/core"
	"sourceboot/domain/correlation"
	"sourceboot/domain/pci"
	"sourceboot/domain/threshold"
)

// ArtifactStore persists the typed stage outputs. Loads of absent artifacts
// return core.ErrNotFound-wrapped errors so callers can distinguish "not yet
// computed" from storage failures.
type ArtifactStore interface {
	SaveThreshold(ctx context.Context, a *threshold.Artifact) error
	LoadThreshold(ctx context.Context, key core.AnalysisKey) (*threshold.Artifact, error)
	HasThreshold(ctx context.Context, key core.AnalysisKey) (bool, error)

	SavePCI(ctx context.Context, a *pci.Artifact) error
	LoadPCI(ctx context.Context, key core.AnalysisKey) (*pci.Artifact, error)
	HasPCI(ctx context.Context, key core.AnalysisKey) (bool, error)

	SaveCorrelation(ctx context.Context, a *correlation.Artifact) error
	LoadCorrelation(ctx context.Context, key core.AnalysisKey) (*correlation.Artifact, error)
	HasCorrelation(ctx context.Context, key core.AnalysisKey) (bool, error)
}
