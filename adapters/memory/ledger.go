// Package memory provides a map-backed stage ledger for single-process runs
// without a configured database. State lives for the life of the process;
// checkpoints and artifacts still persist through their own stores, so a
// rerun against durable storage resumes from the committed batches even
// though the ledger starts empty.
package memory

import (
	"context"
	"sync"

	"sourceboot/domain/core"
	"sourceboot/domain/stage"
	"sourceboot/ports"
)

// Ledger implements ports.StageLedger in a mutex-guarded map
type Ledger struct {
	mu      sync.Mutex
	records map[string]stage.Record
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{records: make(map[string]stage.Record)}
}

func recordKey(key core.AnalysisKey, s stage.Stage) string {
	return key.String() + "/" + string(s)
}

// GetStage returns the recorded state, or an unstarted record
func (l *Ledger) GetStage(ctx context.Context, key core.AnalysisKey, s stage.Stage) (stage.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[recordKey(key, s)]
	if !ok {
		return stage.Record{Key: key, Stage: s, Status: stage.StatusUnstarted}, nil
	}
	return rec, nil
}

// PutStage stores a record
func (l *Ledger) PutStage(ctx context.Context, rec stage.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[recordKey(rec.Key, rec.Stage)] = rec
	return nil
}

// ListStages returns every record for an event
func (l *Ledger) ListStages(ctx context.Context, event core.EventKey) ([]stage.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []stage.Record
	for _, rec := range l.records {
		if rec.Key.Event == event {
			out = append(out, rec)
		}
	}
	return out, nil
}

var _ ports.StageLedger = (*Ledger)(nil)
