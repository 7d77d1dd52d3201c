package ports

import (
	"context"

	"sourceboot/domain/core"
	"sourceboot/domain/epoch"
)

// TrialProvider exposes the epoched trial populations produced by the
// surrounding preprocessing pipeline. Trial waveforms are read-only once
// loaded.
type TrialProvider interface {
	// Trials returns the population epoched around the given event
	Trials(ctx context.Context, event core.EventKey) (*epoch.TrialSet, error)

	// Baseline returns the baseline-period population whose trial IDs link
	// event trials to their pre-stimulus segments
	Baseline(ctx context.Context) (*epoch.TrialSet, error)
}
