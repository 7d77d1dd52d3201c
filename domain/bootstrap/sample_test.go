package bootstrap

import (
	"math/rand"
	"testing"
)

func TestIndexMatrixDeterministic(t *testing.T) {
	a, err := NewIndexMatrix(rand.New(rand.NewSource(13)), 5, 3, 10)
	if err != nil {
		t.Fatalf("NewIndexMatrix: %v", err)
	}
	b, err := NewIndexMatrix(rand.New(rand.NewSource(13)), 5, 3, 10)
	if err != nil {
		t.Fatalf("NewIndexMatrix: %v", err)
	}
	if !a.Hash().Equals(b.Hash()) {
		t.Fatal("same seed produced different index matrices")
	}
	for i := range a.Indices {
		for j := range a.Indices[i] {
			if a.Indices[i][j] != b.Indices[i][j] {
				t.Fatalf("draw %d slot %d differs: %d vs %d", i, j, a.Indices[i][j], b.Indices[i][j])
			}
		}
	}

	c, err := NewIndexMatrix(rand.New(rand.NewSource(14)), 5, 3, 10)
	if err != nil {
		t.Fatalf("NewIndexMatrix: %v", err)
	}
	if a.Hash().Equals(c.Hash()) {
		t.Fatal("different seeds produced identical index matrices")
	}
}

func TestIndexMatrixShapeAndRange(t *testing.T) {
	m, err := NewIndexMatrix(rand.New(rand.NewSource(1)), 5, 3, 10)
	if err != nil {
		t.Fatalf("NewIndexMatrix: %v", err)
	}
	if m.NBoot() != 5 || m.NAve() != 3 {
		t.Fatalf("shape = (%d,%d), want (5,3)", m.NBoot(), m.NAve())
	}
	for i := 0; i < m.NBoot(); i++ {
		for _, idx := range m.Sample(i) {
			if idx < 0 || idx >= 10 {
				t.Fatalf("index %d out of trial range", idx)
			}
		}
	}
}

func TestIndexMatrixRejectsBadArgs(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if _, err := NewIndexMatrix(rng, 0, 3, 10); err == nil {
		t.Error("expected error for zero draws")
	}
	if _, err := NewIndexMatrix(rng, 5, 0, 10); err == nil {
		t.Error("expected error for zero averages")
	}
	if _, err := NewIndexMatrix(rng, 5, 3, 0); err == nil {
		t.Error("expected error for empty trial population")
	}
}

func TestBatches(t *testing.T) {
	tests := []struct {
		name      string
		nBoot     int
		batchSize int
		want      []BatchRange
	}{
		{name: "even split", nBoot: 20, batchSize: 10, want: []BatchRange{{0, 10}, {10, 20}}},
		{name: "trailing partial", nBoot: 25, batchSize: 10, want: []BatchRange{{0, 10}, {10, 20}, {20, 25}}},
		{name: "single batch", nBoot: 4, batchSize: 10, want: []BatchRange{{0, 4}}},
		{name: "zero draws", nBoot: 0, batchSize: 10, want: nil},
		{name: "zero batch size", nBoot: 10, batchSize: 0, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Batches(tt.nBoot, tt.batchSize)
			if len(got) != len(tt.want) {
				t.Fatalf("Batches = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Batches = %v, want %v", got, tt.want)
				}
			}
		})
	}
}
