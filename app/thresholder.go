package app

import (
	"context"
	"errors"
	"log"
	"math"

	"golang.org/x/sync/errgroup"

	"sourceboot/domain/core"
	"sourceboot/domain/epoch"
	"sourceboot/domain/sourcespace"
	"sourceboot/domain/stage"
	"sourceboot/domain/threshold"
	"sourceboot/ports"
)

// ThresholderParams configures threshold derivation
type ThresholderParams struct {
	Policy       threshold.Policy
	NBoot        int // baseline bootstrap draws, bootstrap mode only
	BaselineTmin float64
	BaselineTmax float64
	WindowTmax   float64 // analysis window end; <=0 means end of epoch
	Seed         int64
	Workers      int

	// SharedBaseline makes per-value cells reuse the thresholds of the
	// event-wide "all" cell instead of deriving their own, so binarization
	// is identical across values of the condition.
	SharedBaseline bool
}

// Thresholder derives per-source binarization thresholds. Bootstrap mode
// builds a max-statistic null distribution by resampling baseline time
// samples; median-split mode thresholds each source at the median of |J|
// over the analysis window. The real source waveform is never altered beyond
// baseline mean correction.
type Thresholder struct {
	deps   Deps
	params ThresholderParams
}

// NewThresholder creates the thresholding service
func NewThresholder(deps Deps, params ThresholderParams) *Thresholder {
	return &Thresholder{deps: deps, params: params}
}

// Run derives and persists the threshold artifact for one analysis cell.
// Re-running a completed cell without force returns the stored artifact.
func (t *Thresholder) Run(ctx context.Context, key core.AnalysisKey, force bool) (*threshold.Artifact, error) {
	if err := t.params.Policy.Validate(); err != nil {
		return nil, err
	}
	if err := gate(ctx, t.deps.Ledger, key, stage.StageThreshold, force); err != nil {
		if errors.Is(err, core.ErrAlreadyComputed) {
			log.Printf("[Thresholder] %s: already complete, returning existing artifact", key)
			return t.deps.Artifacts.LoadThreshold(ctx, key)
		}
		return nil, err
	}

	trials, err := t.deps.Trials.Trials(ctx, key.Event)
	if err != nil {
		return nil, err
	}
	set, err := cellTrials(trials, key)
	if err != nil {
		return nil, err
	}
	op, err := t.deps.Inverse.Operator(ctx, key)
	if err != nil {
		return nil, err
	}

	// Real source waveform: inverse of the plain trial average.
	all := make([]int, set.Len())
	for i := range all {
		all[i] = i
	}
	avg, err := set.Average(all)
	if err != nil {
		return nil, err
	}
	raw, err := op.Apply(avg)
	if err != nil {
		return nil, err
	}
	j, err := sourcespace.NewSourceTimeSeries(raw, set.Axis)
	if err != nil {
		return nil, err
	}

	baseIdx, err := set.Axis.IndexRange(t.params.BaselineTmin, t.params.BaselineTmax)
	if err != nil {
		return nil, err
	}
	means, stds := j.BaselineStats(baseIdx)
	if err := j.SubtractPerSource(means); err != nil {
		return nil, err
	}

	// Shared-baseline cells reuse the event-wide thresholds, which must
	// exist before any per-value cell can be thresholded.
	var shared *threshold.Artifact
	if t.params.SharedBaseline && key.Value != ValueAll {
		shared, err = t.deps.Artifacts.LoadThreshold(ctx, key.WithValue(ValueAll))
		if err != nil {
			if core.IsNotFoundError(err) {
				return nil, core.NewStageIncompleteError(string(stage.StageThreshold))
			}
			return nil, err
		}
		if len(shared.PerSource) != len(stds) {
			return nil, core.ErrShapeMismatch
		}
	}

	fp := core.ComputeParamHash(map[string]interface{}{
		"mode":    t.params.Policy.Mode,
		"alpha":   t.params.Policy.Alpha,
		"nboot":   t.params.NBoot,
		"bl_tmin": t.params.BaselineTmin,
		"bl_tmax": t.params.BaselineTmax,
		"seed":    t.params.Seed,
		"shared":  shared != nil,
	})
	if err := markInProgress(ctx, t.deps.Ledger, key, stage.StageThreshold, fp, 0); err != nil {
		return nil, err
	}

	policy := t.params.Policy
	nboot := t.params.NBoot
	var (
		perSource  []float64
		multiplier float64
	)
	switch {
	case shared != nil:
		policy = shared.Policy
		nboot = shared.NBoot
		multiplier = shared.Multiplier
		perSource = shared.PerSource
		stds = shared.BaselineStd
		log.Printf("[Thresholder] %s: reusing event-wide thresholds from %s", key, shared.Key)
	case t.params.Policy.Mode == threshold.ModeMedianSplit:
		windowIdx, err := analysisWindow(set.Axis, t.params.WindowTmax)
		if err != nil {
			return nil, err
		}
		perSource, err = threshold.MedianSplit(j, windowIdx)
		if err != nil {
			return nil, err
		}
		log.Printf("[Thresholder] %s: median-split thresholds over %d window samples", key, len(windowIdx))
	case t.params.Policy.Mode == threshold.ModeBootstrap:
		multiplier, err = t.nullMultiplier(ctx, key, set, op, means, stds, baseIdx)
		if err != nil {
			return nil, err
		}
		perSource = threshold.PerSource(multiplier, stds)
		log.Printf("[Thresholder] %s: null multiplier %.4f from %d draws x %d samples",
			key, multiplier, t.params.NBoot, len(baseIdx))
	}

	artifact := &threshold.Artifact{
		ID:             core.NewArtifactID(),
		Key:            key,
		Policy:         policy,
		NBoot:          nboot,
		BaselineTmin:   t.params.BaselineTmin,
		BaselineTmax:   t.params.BaselineTmax,
		SourceWaveform: sourcespace.NewMatrixPayload(j.Data),
		BaselineMean:   means,
		BaselineStd:    stds,
		Multiplier:     multiplier,
		PerSource:      perSource,
		TrialIDs:       set.IDs(),
		CreatedAt:      core.Now(),
	}
	if err := t.deps.Artifacts.SaveThreshold(ctx, artifact); err != nil {
		return nil, err
	}
	if err := markComplete(ctx, t.deps.Ledger, key, stage.StageThreshold, fp, 1); err != nil {
		return nil, err
	}
	return artifact, nil
}

// nullMultiplier builds the pooled max-|z| null distribution. One trial draw
// is taken up front and reused for every baseline draw; within each draw,
// every trial's baseline time samples are independently redrawn with
// replacement. The pooled Nboot*N0 maxima then yield the (1-alpha)-quantile
// multiplier.
func (t *Thresholder) nullMultiplier(ctx context.Context, key core.AnalysisKey,
	set *epoch.TrialSet, op ports.InverseOperator, means, stds []float64, baseIdx []int) (float64, error) {

	if t.params.NBoot < 1 {
		return 0, core.NewValidationError("thresholder", "bootstrap draw count must be positive")
	}
	rng, err := t.deps.RNG.Stream(ctx, key, string(stage.StageThreshold), t.params.Seed)
	if err != nil {
		return 0, err
	}

	nTR := set.Len()
	n0 := len(baseIdx)
	trialDraw := make([]int, nTR)
	for i := range trialDraw {
		trialDraw[i] = rng.Intn(nTR)
	}
	// All time redraws come off the stream sequentially before the pool
	// starts, so worker scheduling cannot perturb the draws.
	allCols := make([][][]int, t.params.NBoot)
	for b := range allCols {
		cols := make([][]int, nTR)
		for j := range cols {
			c := make([]int, n0)
			for k := range c {
				c[k] = baseIdx[rng.Intn(n0)]
			}
			cols[j] = c
		}
		allCols[b] = cols
	}

	workers := t.params.Workers
	if workers < 1 {
		workers = 1
	}
	pooled := make([]float64, t.params.NBoot*n0)
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for b := 0; b < t.params.NBoot; b++ {
		b := b
		g.Go(func() error {
			avg, err := set.AverageTimeResampled(trialDraw, allCols[b])
			if err != nil {
				return err
			}
			et, err := op.Apply(avg)
			if err != nil {
				return err
			}
			nSRC, _ := et.Dims()
			for c := 0; c < n0; c++ {
				maxZ := 0.0
				for s := 0; s < nSRC; s++ {
					z := math.Abs((et.At(s, c) - means[s]) / stds[s])
					if z > maxZ {
						maxZ = z
					}
				}
				pooled[b*n0+c] = maxZ
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return threshold.MultiplierFromNull(pooled, t.params.Policy.Alpha)
}
