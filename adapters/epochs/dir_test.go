package epochs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"sourceboot/adapters/excel"
	"sourceboot/domain/core"
	"sourceboot/domain/epoch"
)

func makeSet(t *testing.T, event core.EventKey, nTrials int) *epoch.TrialSet {
	t.Helper()
	axis := epoch.TimeAxis{Tmin: -0.1, SFreq: 100, N: 10}
	trials := make([]epoch.Trial, nTrials)
	for i := range trials {
		w := mat.NewDense(2, axis.N, nil)
		for ch := 0; ch < 2; ch++ {
			for s := 0; s < axis.N; s++ {
				w.Set(ch, s, float64(i*100+ch*10+s))
			}
		}
		trials[i] = epoch.Trial{
			ID:       core.TrialID(fmt.Sprintf("t-%d", i)),
			Waveform: w,
		}
	}
	set, err := epoch.NewTrialSet(event, axis, trials)
	if err != nil {
		t.Fatalf("NewTrialSet: %v", err)
	}
	return set
}

func writeBehavior(t *testing.T, content string) *excel.BehaviorLog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "behavior.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	blog, err := excel.NewBehaviorReader(path).ReadLog()
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	return blog
}

func TestWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	set := makeSet(t, "stim", 3)
	if err := WriteEpochs(dir, "stim", set); err != nil {
		t.Fatalf("WriteEpochs: %v", err)
	}

	blog := writeBehavior(t, "trial,score\n"+
		"t-0,0.1\n"+
		"t-1,0.7\n"+
		"t-2,0.4\n")

	got, err := NewDirProvider(dir, blog).Trials(context.Background(), "stim")
	if err != nil {
		t.Fatalf("Trials: %v", err)
	}
	if got.Event != "stim" {
		t.Errorf("Event = %s, want stim", got.Event)
	}
	if got.Axis != set.Axis {
		t.Errorf("Axis = %+v, want %+v", got.Axis, set.Axis)
	}
	if got.Len() != set.Len() {
		t.Fatalf("Len = %d, want %d", got.Len(), set.Len())
	}
	for i, tr := range got.Trials {
		if tr.ID != set.Trials[i].ID {
			t.Errorf("trial %d ID = %s, want %s", i, tr.ID, set.Trials[i].ID)
		}
		if !mat.Equal(tr.Waveform, set.Trials[i].Waveform) {
			t.Errorf("trial %d waveform changed across the round trip", i)
		}
	}
	if v := got.Trials[1].Covariate("score"); v != 0.7 {
		t.Errorf("t-1 score = %v, want 0.7", v)
	}
}

func TestLoadWithoutBehaviorHasNoCovariates(t *testing.T) {
	dir := t.TempDir()
	if err := WriteEpochs(dir, "stim", makeSet(t, "stim", 2)); err != nil {
		t.Fatalf("WriteEpochs: %v", err)
	}

	got, err := NewDirProvider(dir, nil).Trials(context.Background(), "stim")
	if err != nil {
		t.Fatalf("Trials: %v", err)
	}
	if v := got.Trials[0].Covariate("score"); !math.IsNaN(v) {
		t.Errorf("covariate without a behavior log = %v, want NaN", v)
	}
}

func TestBaselineLoadsPseudoEvent(t *testing.T) {
	dir := t.TempDir()
	if err := WriteEpochs(dir, BaselineName, makeSet(t, BaselineName, 2)); err != nil {
		t.Fatalf("WriteEpochs: %v", err)
	}

	got, err := NewDirProvider(dir, nil).Baseline(context.Background())
	if err != nil {
		t.Fatalf("Baseline: %v", err)
	}
	if got.Len() != 2 {
		t.Errorf("Len = %d, want 2", got.Len())
	}
}

func TestMissingEpochsIsNotFound(t *testing.T) {
	p := NewDirProvider(t.TempDir(), nil)
	_, err := p.Trials(context.Background(), "absent")
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	_, err = p.Baseline(context.Background())
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("baseline err = %v, want ErrNotFound", err)
	}
}
