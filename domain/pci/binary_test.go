package pci

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestBinarizeStrictThreshold(t *testing.T) {
	j := mat.NewDense(2, 3, []float64{
		0.5, -2.0, 1.0,
		-0.1, 0.1, 3.0,
	})
	b, err := Binarize(j, []float64{1.0, 0.2})
	if err != nil {
		t.Fatalf("Binarize: %v", err)
	}
	want := [][]byte{
		{0, 1, 0}, // |1.0| is not strictly above 1.0
		{0, 0, 1},
	}
	for s := range want {
		for c := range want[s] {
			if b.Bits[s][c] != want[s][c] {
				t.Errorf("bit[%d][%d] = %d, want %d", s, c, b.Bits[s][c], want[s][c])
			}
		}
	}
}

func TestBinarizeShapeMismatch(t *testing.T) {
	j := mat.NewDense(2, 3, nil)
	if _, err := Binarize(j, []float64{1.0}); err == nil {
		t.Fatal("expected shape mismatch error")
	}
}

func TestRankByActivityAscendingStable(t *testing.T) {
	b := &BinaryMatrix{Bits: [][]byte{
		{1, 1, 1}, // source 0: count 3
		{1, 0, 0}, // source 1: count 1
		{0, 1, 0}, // source 2: count 1, ties with source 1
		{0, 0, 0}, // source 3: count 0
	}}
	ranked, perm := b.RankByActivity(RankAscending)

	wantPerm := []int{3, 1, 2, 0}
	for i := range wantPerm {
		if perm[i] != wantPerm[i] {
			t.Fatalf("perm = %v, want %v", perm, wantPerm)
		}
	}
	for i, src := range perm {
		for c := range b.Bits[src] {
			if ranked.Bits[i][c] != b.Bits[src][c] {
				t.Errorf("ranked row %d does not match source %d", i, src)
			}
		}
	}
}

func TestRankByActivityDescending(t *testing.T) {
	b := &BinaryMatrix{Bits: [][]byte{
		{0, 0, 0},
		{1, 1, 0},
		{1, 0, 0},
	}}
	_, perm := b.RankByActivity(RankDescending)
	want := []int{1, 2, 0}
	for i := range want {
		if perm[i] != want[i] {
			t.Fatalf("perm = %v, want %v", perm, want)
		}
	}
}

func TestCrop(t *testing.T) {
	b := &BinaryMatrix{Bits: [][]byte{
		{0, 1, 0, 1, 1},
		{1, 0, 1, 0, 0},
	}}
	cropped, err := b.Crop([]int{2, 3, 4}, 1)
	if err != nil {
		t.Fatalf("Crop: %v", err)
	}
	nS, nT := cropped.Dims()
	if nS != 2 || nT != 2 {
		t.Fatalf("cropped dims = (%d,%d), want (2,2)", nS, nT)
	}
	if cropped.Bits[0][0] != 1 || cropped.Bits[0][1] != 1 {
		t.Errorf("cropped row 0 = %v, want [1 1]", cropped.Bits[0])
	}
	if cropped.Bits[1][0] != 0 || cropped.Bits[1][1] != 0 {
		t.Errorf("cropped row 1 = %v, want [0 0]", cropped.Bits[1])
	}
}

func TestCropOffsetOutOfRange(t *testing.T) {
	b := &BinaryMatrix{Bits: [][]byte{{0, 1}}}
	if _, err := b.Crop([]int{0, 1}, 2); err == nil {
		t.Fatal("expected error when offset consumes the whole window")
	}
}

func TestActivationRate(t *testing.T) {
	b := &BinaryMatrix{Bits: [][]byte{
		{1, 0},
		{0, 0},
	}}
	if got := b.ActivationRate(); got != 0.25 {
		t.Errorf("ActivationRate = %v, want 0.25", got)
	}
}
