package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"sourceboot/domain/bootstrap"
	"sourceboot/domain/core"
	"sourceboot/domain/correlation"
	"sourceboot/domain/sourcespace"
	"sourceboot/domain/stage"
)

// CorrelatorParams configures the permutation correlation stage
type CorrelatorParams struct {
	NPermutations int
	BaselineTmin  float64
	BaselineTmax  float64
	Seed          int64
	Workers       int

	// Downsample must match the resampling run's setting so both stages
	// select the same trial population.
	Downsample bool
}

// Correlator relates the bootstrap samples to a behavioral covariate. Each
// draw's covariate value is the mean over the trials it averaged; each
// source gets a permutation null built from baseline-averaged statistics,
// and every (source, time) cell becomes a signed inverse-p value against
// that null. Band power and phase blocks get the same treatment when the
// resampling run carried them.
type Correlator struct {
	deps   Deps
	params CorrelatorParams
}

// NewCorrelator creates the correlation service
func NewCorrelator(deps Deps, params CorrelatorParams) *Correlator {
	return &Correlator{deps: deps, params: params}
}

// Run computes and persists the correlation artifact for one analysis cell.
// Re-running a completed cell without force returns the stored artifact.
func (c *Correlator) Run(ctx context.Context, key core.AnalysisKey, force bool) (*correlation.Artifact, error) {
	if err := gate(ctx, c.deps.Ledger, key, stage.StageCorrelation, force); err != nil {
		if errors.Is(err, core.ErrAlreadyComputed) {
			log.Printf("[Correlator] %s: already complete, returning existing artifact", key)
			return c.deps.Artifacts.LoadCorrelation(ctx, key)
		}
		return nil, err
	}

	manifest, err := c.deps.Checkpoints.ReadManifest(ctx, key)
	if err != nil {
		if core.IsNotFoundError(err) {
			return nil, core.NewStageIncompleteError(string(stage.StageBootstrap))
		}
		return nil, err
	}
	set, err := loadMatchedCell(ctx, c.deps, key, c.params.Downsample, c.params.Seed)
	if err != nil {
		return nil, err
	}
	if set.Len() != manifest.NTrials {
		return nil, fmt.Errorf("%w: manifest averaged %d trials, population now has %d",
			core.ErrFingerprintChange, manifest.NTrials, set.Len())
	}

	baseIdx, err := set.Axis.IndexRange(c.params.BaselineTmin, c.params.BaselineTmax)
	if err != nil {
		return nil, err
	}

	// Per-draw covariate: mean of the behavioral value over the draw's trials.
	conditions := make([]float64, manifest.NBoot)
	for i := range conditions {
		conditions[i] = set.CovariateMean(key.Condition, manifest.Indices.Sample(i))
	}

	rng, err := c.deps.RNG.Stream(ctx, key, string(stage.StageCorrelation), c.params.Seed)
	if err != nil {
		return nil, err
	}
	perms, err := correlation.NewPermutationMatrix(rng, c.params.NPermutations, manifest.NBoot)
	if err != nil {
		return nil, err
	}

	fp := core.ComputeParamHash(map[string]interface{}{
		"nperm":   c.params.NPermutations,
		"seed":    c.params.Seed,
		"bl_tmin": c.params.BaselineTmin,
		"bl_tmax": c.params.BaselineTmax,
		"indices": manifest.IndexHash,
	})
	if err := markInProgress(ctx, c.deps.Ledger, key, stage.StageCorrelation, fp, 0); err != nil {
		return nil, err
	}

	draws, err := c.rehydrate(ctx, key, manifest)
	if err != nil {
		return nil, err
	}
	log.Printf("[Correlator] %s: %d draws rehydrated, correlating against %s", key, manifest.NBoot, key.Condition)

	srcMap, err := c.correlateBlock(ctx, draws.source, conditions, baseIdx, perms)
	if err != nil {
		return nil, err
	}

	artifact := &correlation.Artifact{
		ID:            core.NewArtifactID(),
		Key:           key,
		Covariate:     key.Condition,
		NPermutations: c.params.NPermutations,
		Seed:          c.params.Seed,
		BaselineTmin:  c.params.BaselineTmin,
		BaselineTmax:  c.params.BaselineTmax,
		Map:           sourcespace.NewMatrixPayload(srcMap),
		CreatedAt:     core.Now(),
	}
	if len(draws.power) > 0 {
		artifact.Bands.Power = make(map[string]sourcespace.MatrixPayload, len(draws.power))
		for name, blocks := range draws.power {
			bandMap, err := c.correlateBlock(ctx, blocks, conditions, baseIdx, perms)
			if err != nil {
				return nil, err
			}
			artifact.Bands.Power[name] = sourcespace.NewMatrixPayload(bandMap)
		}
	}
	if len(draws.phase) > 0 {
		artifact.Bands.Phase = make(map[string]sourcespace.MatrixPayload, len(draws.phase))
		for name, blocks := range draws.phase {
			bandMap, err := c.correlateBlock(ctx, blocks, conditions, baseIdx, perms)
			if err != nil {
				return nil, err
			}
			artifact.Bands.Phase[name] = sourcespace.NewMatrixPayload(bandMap)
		}
	}

	if err := c.deps.Artifacts.SaveCorrelation(ctx, artifact); err != nil {
		return nil, err
	}
	if err := markComplete(ctx, c.deps.Ledger, key, stage.StageCorrelation, fp, len(manifest.Batches())); err != nil {
		return nil, err
	}
	return artifact, nil
}

// drawBlocks holds the rehydrated per-draw matrices of one run
type drawBlocks struct {
	source []*mat.Dense
	power  map[string][]*mat.Dense
	phase  map[string][]*mat.Dense
}

// rehydrate reads every committed batch back into per-draw matrices. A
// missing batch means the bootstrap stage did not finish and is a
// sequencing error.
func (c *Correlator) rehydrate(ctx context.Context, key core.AnalysisKey, m *bootstrap.ResampleManifest) (*drawBlocks, error) {
	out := &drawBlocks{source: make([]*mat.Dense, m.NBoot)}
	for _, br := range m.Batches() {
		block, err := c.deps.Checkpoints.ReadBatch(ctx, key, br)
		if err != nil {
			if core.IsNotFoundError(err) {
				return nil, core.NewStageIncompleteError(string(stage.StageBootstrap))
			}
			return nil, err
		}
		for slot := 0; slot < br.Len(); slot++ {
			draw := br.Min + slot
			d, err := block.Source[slot].Dense()
			if err != nil {
				return nil, err
			}
			out.source[draw] = d
			for name, payloads := range block.Power {
				if out.power == nil {
					out.power = make(map[string][]*mat.Dense)
				}
				if out.power[name] == nil {
					out.power[name] = make([]*mat.Dense, m.NBoot)
				}
				d, err := payloads[slot].Dense()
				if err != nil {
					return nil, err
				}
				out.power[name][draw] = d
			}
			for name, payloads := range block.Phase {
				if out.phase == nil {
					out.phase = make(map[string][]*mat.Dense)
				}
				if out.phase[name] == nil {
					out.phase[name] = make([]*mat.Dense, m.NBoot)
				}
				d, err := payloads[slot].Dense()
				if err != nil {
					return nil, err
				}
				out.phase[name][draw] = d
			}
		}
	}
	return out, nil
}

// correlateBlock builds the signed inverse-p map of one statistic block.
// Sources are independent, so they fan out across the worker pool; the
// permutation matrix is shared read-only.
func (c *Correlator) correlateBlock(ctx context.Context, draws []*mat.Dense,
	conditions []float64, baseIdx []int, perms correlation.PermutationMatrix) (*mat.Dense, error) {

	nBoot := len(draws)
	nSRC, nT := draws[0].Dims()
	out := mat.NewDense(nSRC, nT, nil)

	workers := c.params.Workers
	if workers < 1 {
		workers = 1
	}
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for s := 0; s < nSRC; s++ {
		s := s
		g.Go(func() error {
			baseAvg := make([]float64, nBoot)
			for d, m := range draws {
				sum := 0.0
				for _, t := range baseIdx {
					sum += m.At(s, t)
				}
				baseAvg[d] = sum / float64(len(baseIdx))
			}
			null := correlation.NullDistribution(baseAvg, conditions, perms)
			x := make([]float64, nBoot)
			for t := 0; t < nT; t++ {
				for d, m := range draws {
					x[d] = m.At(s, t)
				}
				r := correlation.Coefficient(x, conditions)
				out.Set(s, t, correlation.SignedInverseP(r, null))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
