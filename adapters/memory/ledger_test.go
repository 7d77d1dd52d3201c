package memory

import (
	"context"
	"testing"

	"sourceboot/domain/core"
	"sourceboot/domain/stage"
)

func TestGetStageAbsentIsUnstarted(t *testing.T) {
	l := NewLedger()
	key, err := core.NewAnalysisKey("stim", "state", "all")
	if err != nil {
		t.Fatal(err)
	}
	rec, err := l.GetStage(context.Background(), key, stage.StageBootstrap)
	if err != nil {
		t.Fatalf("GetStage: %v", err)
	}
	if rec.Status != stage.StatusUnstarted {
		t.Errorf("status = %s, want unstarted", rec.Status)
	}
	if rec.Key != key || rec.Stage != stage.StageBootstrap {
		t.Errorf("record = %+v", rec)
	}
}

func TestPutStageRoundtrip(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	key, _ := core.NewAnalysisKey("stim", "state", "all")

	rec := stage.Record{
		Key:         key,
		Stage:       stage.StageBootstrap,
		Status:      stage.StatusInProgress,
		BatchesDone: 2,
		UpdatedAt:   core.Now(),
	}
	if err := l.PutStage(ctx, rec); err != nil {
		t.Fatalf("PutStage: %v", err)
	}
	got, err := l.GetStage(ctx, key, stage.StageBootstrap)
	if err != nil {
		t.Fatalf("GetStage: %v", err)
	}
	if got.Status != stage.StatusInProgress || got.BatchesDone != 2 {
		t.Errorf("record changed across roundtrip: %+v", got)
	}

	// Records are scoped per stage, not shared across them.
	other, err := l.GetStage(ctx, key, stage.StageThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if other.Status != stage.StatusUnstarted {
		t.Errorf("threshold record = %s, want unstarted", other.Status)
	}
}

func TestListStagesFiltersByEvent(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	a, _ := core.NewAnalysisKey("stim", "state", "all")
	b, _ := core.NewAnalysisKey("response", "state", "all")

	for _, key := range []core.AnalysisKey{a, b} {
		if err := l.PutStage(ctx, stage.Record{
			Key:       key,
			Stage:     stage.StageBootstrap,
			Status:    stage.StatusComplete,
			UpdatedAt: core.Now(),
		}); err != nil {
			t.Fatal(err)
		}
	}

	records, err := l.ListStages(ctx, "stim")
	if err != nil {
		t.Fatalf("ListStages: %v", err)
	}
	if len(records) != 1 || records[0].Key != a {
		t.Errorf("records = %+v, want just the stim record", records)
	}
}
