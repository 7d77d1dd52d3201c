package bootstrap

import (
	"sourceboot/domain/core"
	"sourceboot/domain/sourcespace"
)

// BatchBlock is one checkpointed batch of bootstrap results: the
// source-space series for each draw in the range, plus per-band power and
// phase blocks when time-frequency reduction is enabled. A block is written
// atomically; a partially written block is treated as absent on restart.
type BatchBlock struct {
	Range  BatchRange                  `json:"range"`
	Source []sourcespace.MatrixPayload `json:"source"`

	Power map[string][]sourcespace.MatrixPayload `json:"power,omitempty"`
	Phase map[string][]sourcespace.MatrixPayload `json:"phase,omitempty"`
}

// NewBatchBlock allocates an empty block for a range
func NewBatchBlock(r BatchRange, bands []string, withPhase bool) *BatchBlock {
	b := &BatchBlock{
		Range:  r,
		Source: make([]sourcespace.MatrixPayload, r.Len()),
	}
	if len(bands) > 0 {
		b.Power = make(map[string][]sourcespace.MatrixPayload, len(bands))
		for _, name := range bands {
			b.Power[name] = make([]sourcespace.MatrixPayload, r.Len())
		}
		if withPhase {
			b.Phase = make(map[string][]sourcespace.MatrixPayload, len(bands))
			for _, name := range bands {
				b.Phase[name] = make([]sourcespace.MatrixPayload, r.Len())
			}
		}
	}
	return b
}

// Validate checks the block against its declared range
func (b *BatchBlock) Validate() error {
	if b.Range.Len() < 1 {
		return core.NewValidationError("batch_block", "empty range")
	}
	if len(b.Source) != b.Range.Len() {
		return core.ErrCheckpointCorrupt
	}
	for _, blocks := range b.Power {
		if len(blocks) != b.Range.Len() {
			return core.ErrCheckpointCorrupt
		}
	}
	for _, blocks := range b.Phase {
		if len(blocks) != b.Range.Len() {
			return core.ErrCheckpointCorrupt
		}
	}
	return nil
}
