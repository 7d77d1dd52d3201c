// Package wavelet implements the Morlet continuous wavelet transform used
// for time-frequency band reduction of source estimates. Convolution is
// FFT-based with 'same' alignment, so each band map keeps the dimensions of
// the series it was derived from.
package wavelet

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"

	"sourceboot/domain/core"
	"sourceboot/domain/sourcespace"
)

// Transformer holds a precomputed Morlet wavelet bank over a frequency grid
type Transformer struct {
	sfreq    float64
	grid     sourcespace.FrequencyGrid
	wavelets [][]complex128

	// cached FFT plan and wavelet spectra, keyed by padded length
	fftLen      int
	fft         *fourier.CmplxFFT
	waveSpectra [][]complex128
}

// NewTransformer builds the wavelet bank for a sampling rate and grid
func NewTransformer(sfreq float64, grid sourcespace.FrequencyGrid) (*Transformer, error) {
	if sfreq <= 0 {
		return nil, core.NewValidationError("wavelet", "sampling frequency must be positive")
	}
	if len(grid.Freqs) == 0 || len(grid.Freqs) != len(grid.Cycles) {
		return nil, core.NewValidationError("wavelet", "frequency grid and cycles must align")
	}
	t := &Transformer{sfreq: sfreq, grid: grid}
	t.wavelets = make([][]complex128, len(grid.Freqs))
	for i, f := range grid.Freqs {
		t.wavelets[i] = morlet(sfreq, f, grid.Cycles[i])
	}
	return t, nil
}

// morlet builds one complex Morlet wavelet: a complex exponential under a
// Gaussian envelope with sigma_t = cycles/(2*pi*f), truncated at 5 sigma and
// L2-normalized.
func morlet(sfreq, freq, cycles float64) []complex128 {
	sigmaT := cycles / (2 * math.Pi * freq)
	half := int(math.Ceil(5 * sigmaT * sfreq))
	n := 2*half + 1
	w := make([]complex128, n)
	norm := 0.0
	for i := 0; i < n; i++ {
		t := float64(i-half) / sfreq
		osc := cmplx.Exp(complex(0, 2*math.Pi*freq*t))
		env := math.Exp(-t * t / (2 * sigmaT * sigmaT))
		w[i] = osc * complex(env, 0)
		norm += env * env
	}
	scale := complex(1/(math.Sqrt(0.5)*math.Sqrt(norm)), 0)
	for i := range w {
		w[i] *= scale
	}
	return w
}

// BandSeries is one bootstrap draw's per-band reduction
type BandSeries struct {
	Power map[string]*mat.Dense
	Phase map[string]*mat.Dense
}

// Reduce decomposes a source-by-time series across the grid and reduces each
// band to its mean power (and mean instantaneous phase when withPhase) over
// the band's frequency bins. Output matrices match the input's dimensions.
func (tr *Transformer) Reduce(series *mat.Dense, bins map[string][]int, withPhase bool) (*BandSeries, error) {
	nSRC, nT := series.Dims()
	if nT == 0 {
		return nil, core.ErrShapeMismatch
	}
	tr.plan(nT)

	out := &BandSeries{Power: make(map[string]*mat.Dense, len(bins))}
	if withPhase {
		out.Phase = make(map[string]*mat.Dense, len(bins))
	}
	for name := range bins {
		out.Power[name] = mat.NewDense(nSRC, nT, nil)
		if withPhase {
			out.Phase[name] = mat.NewDense(nSRC, nT, nil)
		}
	}

	coef := make([][]complex128, len(tr.wavelets))
	for s := 0; s < nSRC; s++ {
		row := series.RawRowView(s)
		for i := range tr.wavelets {
			coef[i] = tr.convolveSame(row, i)
		}
		for name, idx := range bins {
			power := out.Power[name]
			var phase *mat.Dense
			if withPhase {
				phase = out.Phase[name]
			}
			for t := 0; t < nT; t++ {
				pSum, aSum := 0.0, 0.0
				for _, fi := range idx {
					c := coef[fi][t]
					pSum += real(c)*real(c) + imag(c)*imag(c)
					if withPhase {
						aSum += cmplx.Phase(c)
					}
				}
				power.Set(s, t, pSum/float64(len(idx)))
				if withPhase {
					phase.Set(s, t, aSum/float64(len(idx)))
				}
			}
		}
	}
	return out, nil
}

// plan prepares the FFT and wavelet spectra for a signal length
func (tr *Transformer) plan(nT int) {
	maxW := 0
	for _, w := range tr.wavelets {
		if len(w) > maxW {
			maxW = len(w)
		}
	}
	need := nextPow2(nT + maxW - 1)
	if tr.fftLen == need {
		return
	}
	tr.fftLen = need
	tr.fft = fourier.NewCmplxFFT(need)
	tr.waveSpectra = make([][]complex128, len(tr.wavelets))
	for i, w := range tr.wavelets {
		padded := make([]complex128, need)
		copy(padded, w)
		tr.waveSpectra[i] = tr.fft.Coefficients(nil, padded)
	}
}

// convolveSame returns the 'same'-aligned complex convolution of a real
// signal with wavelet i.
func (tr *Transformer) convolveSame(signal []float64, i int) []complex128 {
	n := len(signal)
	m := len(tr.wavelets[i])
	padded := make([]complex128, tr.fftLen)
	for j, v := range signal {
		padded[j] = complex(v, 0)
	}
	spec := tr.fft.Coefficients(nil, padded)
	for j := range spec {
		spec[j] *= tr.waveSpectra[i][j]
	}
	full := tr.fft.Sequence(nil, spec)
	scale := complex(1/float64(tr.fftLen), 0)
	// center crop of the full convolution (length n+m-1) to length n
	start := (m - 1) / 2
	out := make([]complex128, n)
	for j := 0; j < n; j++ {
		out[j] = full[start+j] * scale
	}
	return out
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
