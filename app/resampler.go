package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"sourceboot/adapters/wavelet"
	"sourceboot/domain/bootstrap"
	"sourceboot/domain/core"
	"sourceboot/domain/epoch"
	"sourceboot/domain/sourcespace"
	"sourceboot/domain/stage"
	"sourceboot/ports"
)

// ResamplerParams configures one resampling run
type ResamplerParams struct {
	NBoot     int
	NAve      int
	BatchSize int
	Seed      int64
	Workers   int

	// Downsample equalizes per-value cells to the smallest value group of
	// the condition before drawing.
	Downsample bool

	// Time-frequency reduction; TFR false disables it
	TFR   bool
	Phase bool
	FMin  float64
	FMax  float64
	NMin  float64
	NMax  float64
	Steps int
	Bands []sourcespace.Band
}

// Resampler runs the bootstrap resampling stage: it draws the shared trial
// index matrix once, then averages, inverts, and optionally band-reduces each
// draw, committing results in batches so an interrupted run resumes at the
// first uncommitted batch.
type Resampler struct {
	deps   Deps
	params ResamplerParams
}

// NewResampler creates the resampling service
func NewResampler(deps Deps, params ResamplerParams) *Resampler {
	return &Resampler{deps: deps, params: params}
}

// Run executes or resumes resampling for one analysis cell. Re-running a
// completed cell without force returns the stored manifest untouched.
func (r *Resampler) Run(ctx context.Context, key core.AnalysisKey, force bool) (*bootstrap.ResampleManifest, error) {
	if err := gate(ctx, r.deps.Ledger, key, stage.StageBootstrap, force); err != nil {
		if errors.Is(err, core.ErrAlreadyComputed) {
			log.Printf("[Resampler] %s: already complete, returning existing run", key)
			return r.deps.Checkpoints.ReadManifest(ctx, key)
		}
		return nil, err
	}
	if force {
		if err := r.deps.Checkpoints.DeleteRun(ctx, key); err != nil {
			return nil, err
		}
	}

	set, err := r.loadCell(ctx, key)
	if err != nil {
		return nil, err
	}
	op, err := r.deps.Inverse.Operator(ctx, key)
	if err != nil {
		return nil, err
	}

	manifest, err := r.openManifest(ctx, key, set.Len(), op.NSources())
	if err != nil {
		return nil, err
	}
	fp := manifest.IndexHash

	batches := manifest.Batches()
	done := 0
	for _, br := range batches {
		has, err := r.deps.Checkpoints.HasBatch(ctx, key, br)
		if err != nil {
			return nil, err
		}
		if has {
			done++
			log.Printf("[Resampler] %s: batch %d-%d already committed, skipping", key, br.Min, br.Max)
			continue
		}
		if err := markInProgress(ctx, r.deps.Ledger, key, stage.StageBootstrap, fp, done); err != nil {
			return nil, err
		}
		block, err := r.computeBatch(ctx, manifest, set, op, br)
		if err != nil {
			return nil, err
		}
		if err := r.deps.Checkpoints.WriteBatch(ctx, key, block); err != nil {
			return nil, err
		}
		done++
		log.Printf("[Resampler] %s: batch %d-%d committed (%d/%d)", key, br.Min, br.Max, done, len(batches))
	}

	if err := markComplete(ctx, r.deps.Ledger, key, stage.StageBootstrap, fp, done); err != nil {
		return nil, err
	}
	log.Printf("[Resampler] %s: %d draws complete in %d batches", key, manifest.NBoot, done)
	return manifest, nil
}

// loadCell narrows the event population to this cell's baseline-matched
// trials.
func (r *Resampler) loadCell(ctx context.Context, key core.AnalysisKey) (*epoch.TrialSet, error) {
	return loadMatchedCell(ctx, r.deps, key, r.params.Downsample, r.params.Seed)
}

// openManifest resumes an existing manifest or creates a new one. A stored
// manifest whose parameters disagree with the requested run fails loudly
// rather than silently mixing draw plans.
func (r *Resampler) openManifest(ctx context.Context, key core.AnalysisKey, nTrials, nSources int) (*bootstrap.ResampleManifest, error) {
	has, err := r.deps.Checkpoints.HasManifest(ctx, key)
	if err != nil {
		return nil, err
	}
	if has {
		m, err := r.deps.Checkpoints.ReadManifest(ctx, key)
		if err != nil {
			return nil, err
		}
		if m.NBoot != r.params.NBoot || m.NAve != r.params.NAve || m.Seed != r.params.Seed ||
			m.BatchSize != r.params.BatchSize || m.NTrials != nTrials ||
			m.TFR != r.params.TFR || m.Phase != r.params.Phase {
			return nil, fmt.Errorf("%w: stored manifest for %s disagrees with requested parameters",
				core.ErrFingerprintChange, key)
		}
		log.Printf("[Resampler] %s: resuming run seeded %d", key, m.Seed)
		return m, nil
	}

	rng, err := r.deps.RNG.Stream(ctx, key, string(stage.StageBootstrap), r.params.Seed)
	if err != nil {
		return nil, err
	}
	indices, err := bootstrap.NewIndexMatrix(rng, r.params.NBoot, r.params.NAve, nTrials)
	if err != nil {
		return nil, err
	}
	var grid sourcespace.FrequencyGrid
	if r.params.TFR {
		grid, err = sourcespace.NewFrequencyGrid(r.params.FMin, r.params.FMax, r.params.NMin, r.params.NMax, r.params.Steps)
		if err != nil {
			return nil, err
		}
	}
	m := bootstrap.NewResampleManifest(key, r.params.Seed, r.params.BatchSize, nTrials, nSources,
		indices, r.params.TFR, r.params.Phase, grid, r.params.Bands)
	if err := r.deps.Checkpoints.WriteManifest(ctx, m); err != nil {
		return nil, err
	}
	log.Printf("[Resampler] %s: new run, Nboot=%d Nave=%d over %d trials", key, m.NBoot, m.NAve, nTrials)
	return m, nil
}

// computeBatch runs the draws of one batch across a worker pool. Each worker
// owns its own wavelet transformer; the draw plan itself is fixed by the
// manifest, so scheduling order cannot change results.
func (r *Resampler) computeBatch(ctx context.Context, m *bootstrap.ResampleManifest,
	set *epoch.TrialSet, op ports.InverseOperator, br bootstrap.BatchRange) (*bootstrap.BatchBlock, error) {

	var bandNames []string
	var bins map[string][]int
	if m.TFR {
		bins = m.Grid.BandBins(m.Bands)
		bandNames = sourcespace.BandNames(bins)
	}
	block := bootstrap.NewBatchBlock(br, bandNames, m.TFR && m.Phase)

	workers := r.params.Workers
	if workers < 1 {
		workers = 1
	}
	draws := make(chan int)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			var tf *wavelet.Transformer
			if m.TFR {
				var err error
				tf, err = wavelet.NewTransformer(set.Axis.SFreq, m.Grid)
				if err != nil {
					return err
				}
			}
			for i := range draws {
				if err := r.computeDraw(m, set, op, tf, bins, block, i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(draws)
		for i := br.Min; i < br.Max; i++ {
			select {
			case draws <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return block, nil
}

// computeDraw averages one draw's trials, applies the inverse, and fills the
// block slot. Slots are disjoint per draw, so no locking is needed.
func (r *Resampler) computeDraw(m *bootstrap.ResampleManifest, set *epoch.TrialSet,
	op ports.InverseOperator, tf *wavelet.Transformer, bins map[string][]int,
	block *bootstrap.BatchBlock, i int) error {

	avg, err := set.Average(m.Indices.Sample(i))
	if err != nil {
		return err
	}
	j, err := op.Apply(avg)
	if err != nil {
		return err
	}
	slot := i - block.Range.Min
	block.Source[slot] = sourcespace.NewMatrixPayload(j)

	if tf == nil {
		return nil
	}
	reduced, err := tf.Reduce(j, bins, m.Phase)
	if err != nil {
		return err
	}
	for name, pw := range reduced.Power {
		block.Power[name][slot] = sourcespace.NewMatrixPayload(pw)
	}
	for name, ph := range reduced.Phase {
		block.Phase[name][slot] = sourcespace.NewMatrixPayload(ph)
	}
	return nil
}
