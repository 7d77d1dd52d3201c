package pci

import (
	"math/rand"
	"testing"
)

func bitsOf(s string) []byte {
	out := make([]byte, len(s))
	for i := range s {
		if s[i] == '1' {
			out[i] = 1
		}
	}
	return out
}

func TestScannerKnownSequences(t *testing.T) {
	tests := []struct {
		name string
		seq  string
		want int
	}{
		{name: "empty", seq: "", want: 0},
		{name: "single zero", seq: "0", want: 1},
		{name: "single one", seq: "1", want: 1},
		{name: "two symbols", seq: "01", want: 2},
		{name: "constant run", seq: "0000", want: 2},
		{name: "run then flip", seq: "0001", want: 2},
		{name: "zero one one", seq: "011", want: 3},
		{name: "alternating", seq: "0101010101", want: 3},
		{name: "all ones", seq: "11111111", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := NewScanner()
			sc.Append(bitsOf(tt.seq)...)
			if got := sc.Complexity(); got != tt.want {
				t.Errorf("Complexity(%q) = %d, want %d", tt.seq, got, tt.want)
			}
		})
	}
}

func TestScannerStreamingMatchesOneShot(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	seq := make([]byte, 500)
	for i := range seq {
		if rng.Float64() < 0.4 {
			seq[i] = 1
		}
	}

	oneShot := NewScanner()
	oneShot.Append(seq...)

	streamed := NewScanner()
	for _, b := range seq {
		streamed.Append(b)
	}

	if oneShot.Complexity() != streamed.Complexity() {
		t.Errorf("streamed complexity %d differs from one-shot %d",
			streamed.Complexity(), oneShot.Complexity())
	}
}

func TestScannerComplexityNonDecreasing(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	sc := NewScanner()
	prev := 0
	for i := 0; i < 300; i++ {
		b := byte(0)
		if rng.Float64() < 0.5 {
			b = 1
		}
		sc.Append(b)
		c := sc.Complexity()
		if c < prev {
			t.Fatalf("complexity decreased from %d to %d at symbol %d", prev, c, i)
		}
		prev = c
	}
}
