// Package stage defines the per-analysis-cell pipeline state machine.
// Transitions are persisted through the ledger; re-entry at any state skips
// completed prior stages unless a recompute is forced.
package stage

import (
	"sourceboot/domain/core"
)

// Stage names one pipeline step
type Stage string

const (
	StageBootstrap   Stage = "bootstrap"
	StageThreshold   Stage = "threshold"
	StagePCI         Stage = "pci"
	StageCorrelation Stage = "correlation"
)

// Status is a stage's lifecycle state
type Status string

const (
	StatusUnstarted  Status = "unstarted"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
)

// Record is the persisted state of one stage for one analysis cell
type Record struct {
	Key         core.AnalysisKey `json:"key"`
	Stage       Stage            `json:"stage"`
	Status      Status           `json:"status"`
	Fingerprint core.Hash        `json:"fingerprint"`
	BatchesDone int              `json:"batches_done"`
	UpdatedAt   core.Timestamp   `json:"updated_at"`
}

// Prerequisite returns the stage that must be complete before s may run.
// Bootstrap has none; threshold and correlation both hang off bootstrap,
// and PCI hangs off threshold.
func Prerequisite(s Stage) (Stage, bool) {
	switch s {
	case StageThreshold, StageCorrelation:
		return StageBootstrap, true
	case StagePCI:
		return StageThreshold, true
	default:
		return "", false
	}
}

// CheckStart validates that s may begin given the states of its prerequisite
// and itself. A complete stage without force is ErrAlreadyComputed; an
// incomplete prerequisite names the missing stage.
func CheckStart(s Stage, self, prereq Status, key core.AnalysisKey, force bool) error {
	if pre, ok := Prerequisite(s); ok && prereq != StatusComplete {
		return core.NewStageIncompleteError(string(pre))
	}
	if self == StatusComplete && !force {
		return core.NewAlreadyComputedError(string(s), key)
	}
	return nil
}
