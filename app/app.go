// Package app wires the pipeline stages over the ports: resampling,
// thresholding, complexity, and correlation services share the stage ledger
// gating and the analysis-cell trial selection implemented here.
package app

import (
	"context"
	"sort"
	"strconv"

	"sourceboot/domain/core"
	"sourceboot/domain/epoch"
	"sourceboot/domain/stage"
	"sourceboot/ports"
)

// Deps bundles the ports every stage service needs
type Deps struct {
	Trials      ports.TrialProvider
	Inverse     ports.InverseProvider
	RNG         ports.RNGPort
	Checkpoints ports.CheckpointStore
	Artifacts   ports.ArtifactStore
	Ledger      ports.StageLedger
}

// ValueAll is the condition value naming the whole trial population of an
// event, used when an analysis is not split by condition.
const ValueAll core.ValueKey = "all"

// gate checks the ledger before a stage starts: the prerequisite stage must
// be complete and the stage itself must not be, unless force is set.
func gate(ctx context.Context, ledger ports.StageLedger, key core.AnalysisKey, s stage.Stage, force bool) error {
	self, err := ledger.GetStage(ctx, key, s)
	if err != nil {
		return err
	}
	prereqStatus := stage.StatusComplete
	if pre, ok := stage.Prerequisite(s); ok {
		rec, err := ledger.GetStage(ctx, key, pre)
		if err != nil {
			return err
		}
		prereqStatus = rec.Status
	}
	return stage.CheckStart(s, self.Status, prereqStatus, key, force)
}

// markInProgress records a stage transition with the batches completed so far
func markInProgress(ctx context.Context, ledger ports.StageLedger, key core.AnalysisKey, s stage.Stage, fp core.Hash, done int) error {
	return ledger.PutStage(ctx, stage.Record{
		Key:         key,
		Stage:       s,
		Status:      stage.StatusInProgress,
		Fingerprint: fp,
		BatchesDone: done,
		UpdatedAt:   core.Now(),
	})
}

// markComplete records a stage's terminal transition
func markComplete(ctx context.Context, ledger ports.StageLedger, key core.AnalysisKey, s stage.Stage, fp core.Hash, done int) error {
	return ledger.PutStage(ctx, stage.Record{
		Key:         key,
		Stage:       s,
		Status:      stage.StatusComplete,
		Fingerprint: fp,
		BatchesDone: done,
		UpdatedAt:   core.Now(),
	})
}

// formatValue renders a behavioral covariate as a condition value key
func formatValue(v float64) core.ValueKey {
	return core.ValueKey(strconv.FormatFloat(v, 'g', -1, 64))
}

// cellTrials selects the trial population of one analysis cell: the whole
// event population for ValueAll, otherwise the trials whose condition
// covariate renders to the cell's value.
func cellTrials(set *epoch.TrialSet, key core.AnalysisKey) (*epoch.TrialSet, error) {
	if key.Value == ValueAll {
		return set, nil
	}
	groups := set.SplitByValue(key.Condition, formatValue)
	indices, ok := groups[key.Value]
	if !ok || len(indices) == 0 {
		return nil, core.NewInsufficientTrialsError(0, 1)
	}
	return set.Subset(indices)
}

// loadMatchedCell fetches the event population, drops trials without a
// baseline counterpart, and narrows to the cell's condition value. Resampling
// and correlation both go through this path so the manifest's trial indices
// always refer to the same population. With downsample set, a per-value cell
// is subsampled to the smallest value group of its condition, making derived
// statistics comparable across values; the subset is drawn from the cell's
// own seeded stream, so resampling and correlation select identical trials.
func loadMatchedCell(ctx context.Context, deps Deps, key core.AnalysisKey, downsample bool, seed int64) (*epoch.TrialSet, error) {
	trials, err := deps.Trials.Trials(ctx, key.Event)
	if err != nil {
		return nil, err
	}
	baseline, err := deps.Trials.Baseline(ctx)
	if err != nil {
		return nil, err
	}
	matched, err := trials.MatchBaseline(baseline)
	if err != nil {
		return nil, err
	}
	if !downsample || key.Value == ValueAll {
		return cellTrials(matched, key)
	}

	groups := matched.SplitByValue(key.Condition, formatValue)
	indices, ok := groups[key.Value]
	if !ok || len(indices) == 0 {
		return nil, core.NewInsufficientTrialsError(0, 1)
	}
	smallest := len(indices)
	for _, g := range groups {
		if len(g) < smallest {
			smallest = len(g)
		}
	}
	if len(indices) > smallest {
		rng, err := deps.RNG.Stream(ctx, key, "downsample", seed)
		if err != nil {
			return nil, err
		}
		picked := make([]int, smallest)
		for i, p := range rng.Perm(len(indices))[:smallest] {
			picked[i] = indices[p]
		}
		sort.Ints(picked)
		indices = picked
	}
	return matched.Subset(indices)
}

// analysisWindow returns the post-event sample indices (t > 0), up to tmax
// when tmax is positive, otherwise to the end of the epoch.
func analysisWindow(axis epoch.TimeAxis, tmax float64) ([]int, error) {
	if tmax <= 0 {
		tmax = axis.Tmax()
	}
	var idx []int
	for i, t := range axis.Times() {
		if t > 0 && t <= tmax {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return nil, core.ErrWindowOutOfRange
	}
	return idx, nil
}
