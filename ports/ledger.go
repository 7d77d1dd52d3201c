package ports

import (
	"context"

	"sourceboot/domain/core"
	"sourceboot/domain/stage"
)

// StageLedger persists stage state transitions. Reading a stage that was
// never recorded returns an unstarted record, not an error; the ledger is
// the pipeline's resumability source of truth.
type StageLedger interface {
	GetStage(ctx context.Context, key core.AnalysisKey, s stage.Stage) (stage.Record, error)
	PutStage(ctx context.Context, rec stage.Record) error
	ListStages(ctx context.Context, event core.EventKey) ([]stage.Record, error)
}
