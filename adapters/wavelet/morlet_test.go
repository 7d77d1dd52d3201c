package wavelet

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"sourceboot/domain/sourcespace"
)

func TestReduceDimsMatchInput(t *testing.T) {
	grid, err := sourcespace.NewFrequencyGrid(7, 35, 3, 10, 7)
	if err != nil {
		t.Fatalf("NewFrequencyGrid: %v", err)
	}
	tf, err := NewTransformer(250, grid)
	if err != nil {
		t.Fatalf("NewTransformer: %v", err)
	}

	series := mat.NewDense(3, 200, nil)
	bins := grid.BandBins([]sourcespace.Band{{Name: "alpha", FMin: 8, FMax: 15}})
	out, err := tf.Reduce(series, bins, true)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	r, c := out.Power["alpha"].Dims()
	if r != 3 || c != 200 {
		t.Fatalf("power dims = (%d,%d), want (3,200)", r, c)
	}
	if out.Phase["alpha"] == nil {
		t.Fatal("phase requested but absent")
	}
}

func TestReducePeakBandTracksSignalFrequency(t *testing.T) {
	const sfreq = 250.0
	grid, err := sourcespace.NewFrequencyGrid(5, 40, 3, 10, 9)
	if err != nil {
		t.Fatalf("NewFrequencyGrid: %v", err)
	}
	tf, err := NewTransformer(sfreq, grid)
	if err != nil {
		t.Fatalf("NewTransformer: %v", err)
	}

	// One source carrying a pure 10 Hz oscillation.
	n := 500
	series := mat.NewDense(1, n, nil)
	for i := 0; i < n; i++ {
		series.Set(0, i, math.Sin(2*math.Pi*10*float64(i)/sfreq))
	}

	bins := grid.BandBins([]sourcespace.Band{
		{Name: "alpha", FMin: 8, FMax: 13},
		{Name: "beta", FMin: 20, FMax: 35},
	})
	if len(bins["alpha"]) == 0 || len(bins["beta"]) == 0 {
		t.Fatal("grid does not cover both test bands")
	}
	out, err := tf.Reduce(series, bins, false)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}

	// Compare mean power over the middle of the signal, away from edges.
	alpha, beta := 0.0, 0.0
	for i := n / 4; i < 3*n/4; i++ {
		alpha += out.Power["alpha"].At(0, i)
		beta += out.Power["beta"].At(0, i)
	}
	if alpha <= 5*beta {
		t.Errorf("alpha power %v not dominant over beta %v for a 10 Hz signal", alpha, beta)
	}
}

func TestNewTransformerRejectsBadInputs(t *testing.T) {
	grid, _ := sourcespace.NewFrequencyGrid(7, 35, 3, 10, 7)
	if _, err := NewTransformer(0, grid); err == nil {
		t.Error("zero sampling frequency accepted")
	}
	if _, err := NewTransformer(250, sourcespace.FrequencyGrid{}); err == nil {
		t.Error("empty grid accepted")
	}
}

func TestMorletWaveletIsUnitEnergyEnvelope(t *testing.T) {
	w := morlet(250, 10, 5)
	if len(w)%2 != 1 {
		t.Fatalf("wavelet length %d not odd", len(w))
	}
	// Envelope peaks at the center and decays toward the edges.
	mid := len(w) / 2
	center := cmplxAbs(w[mid])
	edge := cmplxAbs(w[0])
	if center <= edge {
		t.Errorf("envelope center %v not above edge %v", center, edge)
	}
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}
