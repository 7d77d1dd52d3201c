package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound          = errors.New("resource not found")
	ErrArtifactNotFound  = fmt.Errorf("%w: artifact", ErrNotFound)
	ErrBatchNotFound     = fmt.Errorf("%w: batch checkpoint", ErrNotFound)
	ErrManifestNotFound  = fmt.Errorf("%w: resample manifest", ErrNotFound)
	ErrThresholdNotFound = fmt.Errorf("%w: threshold", ErrNotFound)

	// Pipeline sequencing errors
	ErrStageIncomplete = errors.New("prerequisite stage incomplete")
	ErrAlreadyComputed = errors.New("stage output already exists")

	// Configuration errors
	ErrInsufficientTrials = errors.New("insufficient trials for analysis")
	ErrAlphaOutOfRange    = errors.New("alpha too small for bootstrap count")
	ErrWindowOutOfRange   = errors.New("window outside epoch time range")
	ErrShapeMismatch      = errors.New("matrix shape mismatch")

	// Determinism errors
	ErrNonDeterministic  = errors.New("non-deterministic result")
	ErrFingerprintChange = errors.New("parameter fingerprint mismatch")

	// Storage errors
	ErrCheckpointCorrupt = errors.New("checkpoint unreadable")
)

// Error constructors with context
func NewValidationError(field string, reason string) error {
	return fmt.Errorf("validation failed for %s: %s", field, reason)
}

// NewStageIncompleteError names the stage that must run first, so callers see
// "must compute bootstrap first" rather than a bare sequencing failure.
func NewStageIncompleteError(missing string) error {
	return fmt.Errorf("%w: must compute %s first", ErrStageIncomplete, missing)
}

func NewAlreadyComputedError(stage string, key AnalysisKey) error {
	return fmt.Errorf("%w: %s for %s (use force to recompute)", ErrAlreadyComputed, stage, key)
}

func NewInsufficientTrialsError(have, need int) error {
	return fmt.Errorf("%w: have %d, need at least %d", ErrInsufficientTrials, have, need)
}

func NewAlphaOutOfRangeError(alpha float64, index, limit int) error {
	return fmt.Errorf("%w: alpha=%g selects index %d of %d pooled samples", ErrAlphaOutOfRange, alpha, index, limit)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsSequencingError(err error) bool {
	return errors.Is(err, ErrStageIncomplete) || errors.Is(err, ErrAlreadyComputed)
}

func IsDeterminismError(err error) bool {
	return errors.Is(err, ErrNonDeterministic) || errors.Is(err, ErrFingerprintChange)
}
