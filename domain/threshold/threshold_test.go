package threshold

import (
	"errors"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"sourceboot/domain/core"
	"sourceboot/domain/epoch"
	"sourceboot/domain/sourcespace"
)

func TestQuantileIndex(t *testing.T) {
	tests := []struct {
		name    string
		alpha   float64
		n       int
		want    int
		wantErr bool
	}{
		{name: "one percent of 5000", alpha: 0.01, n: 5000, want: 4950},
		{name: "five percent of 100", alpha: 0.05, n: 100, want: 95},
		{name: "alpha one", alpha: 1, n: 10, want: 0},
		{name: "alpha zero overflows", alpha: 0, n: 10, wantErr: true},
		{name: "alpha above one", alpha: 1.5, n: 10, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := QuantileIndex(tt.alpha, tt.n)
			if tt.wantErr {
				if !errors.Is(err, core.ErrAlphaOutOfRange) {
					t.Fatalf("QuantileIndex(%v,%d) err = %v, want alpha out of range", tt.alpha, tt.n, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("QuantileIndex: %v", err)
			}
			if got != tt.want {
				t.Errorf("QuantileIndex(%v,%d) = %d, want %d", tt.alpha, tt.n, got, tt.want)
			}
		})
	}
}

func TestMultiplierFromNull(t *testing.T) {
	pooled := make([]float64, 100)
	for i := range pooled {
		pooled[i] = float64(i)
	}
	rand.New(rand.NewSource(1)).Shuffle(len(pooled), func(i, j int) {
		pooled[i], pooled[j] = pooled[j], pooled[i]
	})
	snapshot := make([]float64, len(pooled))
	copy(snapshot, pooled)

	m, err := MultiplierFromNull(pooled, 0.05)
	if err != nil {
		t.Fatalf("MultiplierFromNull: %v", err)
	}
	if m != 95 {
		t.Errorf("multiplier = %v, want 95", m)
	}
	for i := range pooled {
		if pooled[i] != snapshot[i] {
			t.Fatal("input slice was modified")
		}
	}
}

func TestPerSource(t *testing.T) {
	got := PerSource(2.5, []float64{1, 0, 4})
	want := []float64{2.5, 0, 10}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("PerSource[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMedianSplit(t *testing.T) {
	axis := epoch.TimeAxis{Tmin: 0, SFreq: 1, N: 4}
	data := mat.NewDense(2, 4, []float64{
		1, -3, 2, 100, // |values| in window {1,3,2} -> median 2
		-5, 5, 5, 100, // {5,5,5} -> median 5
	})
	j, err := sourcespace.NewSourceTimeSeries(data, axis)
	if err != nil {
		t.Fatalf("NewSourceTimeSeries: %v", err)
	}
	got, err := MedianSplit(j, []int{0, 1, 2})
	if err != nil {
		t.Fatalf("MedianSplit: %v", err)
	}
	if got[0] != 2 || got[1] != 5 {
		t.Errorf("MedianSplit = %v, want [2 5]", got)
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := BootstrapPolicy(0.01).Validate(); err != nil {
		t.Errorf("alpha 0.01 rejected: %v", err)
	}
	if err := BootstrapPolicy(0).Validate(); err == nil {
		t.Error("alpha 0 accepted")
	}
	if err := BootstrapPolicy(1).Validate(); err == nil {
		t.Error("alpha 1 accepted")
	}
	if err := MedianSplitPolicy().Validate(); err != nil {
		t.Errorf("median split rejected: %v", err)
	}
	if err := (Policy{Mode: "quartile"}).Validate(); err == nil {
		t.Error("unknown mode accepted")
	}
}

func TestArtifactMatrixBroadcast(t *testing.T) {
	key, _ := core.NewAnalysisKey("stim", "state", "all")
	a := &Artifact{
		Key:            key,
		Policy:         BootstrapPolicy(0.01),
		SourceWaveform: sourcespace.MatrixPayload{Rows: 2, Cols: 3, Data: make([]float64, 6)},
		BaselineMean:   []float64{0, 0},
		BaselineStd:    []float64{1, 1},
		PerSource:      []float64{1.5, 4},
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	m := a.Matrix()
	for c := 0; c < 3; c++ {
		if m.At(0, c) != 1.5 || m.At(1, c) != 4 {
			t.Fatalf("broadcast column %d = (%v,%v), want (1.5,4)", c, m.At(0, c), m.At(1, c))
		}
	}
}
