package bootstrap

import (
	"sourceboot/domain/core"
	"sourceboot/domain/sourcespace"
)

// ResampleManifest is the truth source for one resampling run: it records
// every parameter needed to replay or resume the run and must exist before
// any downstream stage reads the batch checkpoints.
type ResampleManifest struct {
	Key       core.AnalysisKey `json:"key"`
	Seed      int64            `json:"seed"`
	NBoot     int              `json:"nboot"`
	NAve      int              `json:"nave"`
	BatchSize int              `json:"batch_size"`
	NTrials   int              `json:"n_trials"`
	NSources  int              `json:"n_sources"`

	Indices IndexMatrix `json:"index_matrix"`

	// Time-frequency reduction settings; Bands empty when TFR is off.
	TFR   bool                     `json:"tfr"`
	Phase bool                     `json:"phase"`
	Grid  sourcespace.FrequencyGrid `json:"grid,omitempty"`
	Bands []sourcespace.Band        `json:"bands,omitempty"`

	IndexHash core.Hash      `json:"index_hash"`
	CreatedAt core.Timestamp `json:"created_at"`
}

// NewResampleManifest assembles and fingerprints a manifest
func NewResampleManifest(key core.AnalysisKey, seed int64, batchSize, nTrials, nSources int,
	indices IndexMatrix, tfr, phase bool, grid sourcespace.FrequencyGrid, bands []sourcespace.Band) *ResampleManifest {
	return &ResampleManifest{
		Key:       key,
		Seed:      seed,
		NBoot:     indices.NBoot(),
		NAve:      indices.NAve(),
		BatchSize: batchSize,
		NTrials:   nTrials,
		NSources:  nSources,
		Indices:   indices,
		TFR:       tfr,
		Phase:     phase,
		Grid:      grid,
		Bands:     bands,
		IndexHash: indices.Hash(),
		CreatedAt: core.Now(),
	}
}

// Validate checks the manifest is internally consistent
func (m *ResampleManifest) Validate() error {
	if err := m.Key.Validate(); err != nil {
		return err
	}
	if m.NBoot != m.Indices.NBoot() || m.NAve != m.Indices.NAve() {
		return core.NewValidationError("resample_manifest", "index matrix shape disagrees with Nboot/Nave")
	}
	if m.BatchSize < 1 {
		return core.NewValidationError("resample_manifest", "batch size must be positive")
	}
	if m.NSources < 1 {
		return core.NewValidationError("resample_manifest", "source count must be positive")
	}
	if !m.IndexHash.Equals(m.Indices.Hash()) {
		return core.ErrFingerprintChange
	}
	if m.Phase && !m.TFR {
		return core.NewValidationError("resample_manifest", "phase requires tfr")
	}
	return nil
}

// Batches returns the checkpoint partitioning of this run
func (m *ResampleManifest) Batches() []BatchRange {
	return Batches(m.NBoot, m.BatchSize)
}
