package app

import (
	"context"
	"errors"
	"log"

	"sourceboot/domain/core"
	"sourceboot/domain/pci"
	"sourceboot/domain/stage"
)

// PCIParams configures the complexity stage
type PCIParams struct {
	Order         pci.RankOrder
	WindowTmax    float64 // analysis window end; <=0 means end of epoch
	LeadingOffset int     // post-event samples dropped for stimulus artifact
}

// PCIService turns a thresholded source waveform into its complexity
// trajectory: binarize against the per-source thresholds, rank sources by
// total activity over the full epoch, crop to the analysis window, then run
// the streaming phrase count.
type PCIService struct {
	deps   Deps
	params PCIParams
}

// NewPCIService creates the complexity service
func NewPCIService(deps Deps, params PCIParams) *PCIService {
	return &PCIService{deps: deps, params: params}
}

// Run computes and persists the complexity artifact for one analysis cell.
// Re-running a completed cell without force returns the stored artifact.
func (p *PCIService) Run(ctx context.Context, key core.AnalysisKey, force bool) (*pci.Artifact, error) {
	if err := gate(ctx, p.deps.Ledger, key, stage.StagePCI, force); err != nil {
		if errors.Is(err, core.ErrAlreadyComputed) {
			log.Printf("[PCI] %s: already complete, returning existing artifact", key)
			return p.deps.Artifacts.LoadPCI(ctx, key)
		}
		return nil, err
	}

	th, err := p.deps.Artifacts.LoadThreshold(ctx, key)
	if err != nil {
		return nil, err
	}
	j, err := th.SourceWaveform.Dense()
	if err != nil {
		return nil, err
	}

	trials, err := p.deps.Trials.Trials(ctx, key.Event)
	if err != nil {
		return nil, err
	}
	windowIdx, err := analysisWindow(trials.Axis, p.params.WindowTmax)
	if err != nil {
		return nil, err
	}

	order := p.params.Order
	if order == "" {
		order = pci.RankAscending
	}

	fp := core.ComputeParamHash(map[string]interface{}{
		"order":       order,
		"window_tmax": p.params.WindowTmax,
		"leading":     p.params.LeadingOffset,
		"threshold":   th.SourceWaveform.Hash(),
	})
	if err := markInProgress(ctx, p.deps.Ledger, key, stage.StagePCI, fp, 0); err != nil {
		return nil, err
	}

	binary, err := pci.Binarize(j, th.PerSource)
	if err != nil {
		return nil, err
	}
	ranked, perm := binary.RankByActivity(order)
	cropped, err := ranked.Crop(windowIdx, p.params.LeadingOffset)
	if err != nil {
		return nil, err
	}
	trajectory := pci.Trajectory(cropped)

	tmin := trials.Axis.Times()[windowIdx[p.params.LeadingOffset]]
	tmax := trials.Axis.Times()[windowIdx[len(windowIdx)-1]]
	artifact := &pci.Artifact{
		ID:            core.NewArtifactID(),
		Key:           key,
		Trajectory:    trajectory,
		RankedMatrix:  cropped,
		RankPerm:      perm,
		Order:         order,
		Tmin:          tmin,
		Tmax:          tmax,
		LeadingOffset: p.params.LeadingOffset,
		CreatedAt:     core.Now(),
	}
	if err := p.deps.Artifacts.SavePCI(ctx, artifact); err != nil {
		return nil, err
	}
	if err := markComplete(ctx, p.deps.Ledger, key, stage.StagePCI, fp, 1); err != nil {
		return nil, err
	}
	log.Printf("[PCI] %s: trajectory over %d samples, endpoint %.4f", key, len(trajectory), artifact.PCI())
	return artifact, nil
}
