package app

import (
	"context"
	"log"

	"sourceboot/domain/core"
	"sourceboot/domain/stage"
)

// Pipeline bundles the stage services behind one entry point. Stages gate on
// the ledger individually, so any subset can be re-run; RunAll chains them in
// dependency order and treats an already-computed stage as a skip rather
// than a failure.
type Pipeline struct {
	Resampler   *Resampler
	Thresholder *Thresholder
	PCI         *PCIService
	Correlator  *Correlator

	deps Deps
}

// NewPipeline assembles the full pipeline
func NewPipeline(deps Deps, rp ResamplerParams, tp ThresholderParams, pp PCIParams, cp CorrelatorParams) *Pipeline {
	return &Pipeline{
		Resampler:   NewResampler(deps, rp),
		Thresholder: NewThresholder(deps, tp),
		PCI:         NewPCIService(deps, pp),
		Correlator:  NewCorrelator(deps, cp),
		deps:        deps,
	}
}

// RunAll drives every stage for one analysis cell. Completed stages are
// skipped unless force is set; force propagates to each stage so the whole
// chain recomputes from fresh draws.
func (p *Pipeline) RunAll(ctx context.Context, key core.AnalysisKey, withCorrelation, force bool) error {
	run := func(name string, f func() error) error {
		err := f()
		if err == nil {
			return nil
		}
		if core.IsSequencingError(err) && !force {
			log.Printf("[Pipeline] %s: %s skipped: %v", key, name, err)
			return nil
		}
		return err
	}

	if err := run("bootstrap", func() error {
		_, err := p.Resampler.Run(ctx, key, force)
		return err
	}); err != nil {
		return err
	}
	if err := run("threshold", func() error {
		_, err := p.Thresholder.Run(ctx, key, force)
		return err
	}); err != nil {
		return err
	}
	if err := run("pci", func() error {
		_, err := p.PCI.Run(ctx, key, force)
		return err
	}); err != nil {
		return err
	}
	if withCorrelation {
		if err := run("correlation", func() error {
			_, err := p.Correlator.Run(ctx, key, force)
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}

// Status reports the recorded stage states for an event
func (p *Pipeline) Status(ctx context.Context, event core.EventKey) ([]stage.Record, error) {
	return p.deps.Ledger.ListStages(ctx, event)
}
