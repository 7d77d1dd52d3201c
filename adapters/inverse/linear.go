// Package inverse provides the linear inverse operator adapter: a
// precomputed source-by-channel kernel applied to trial-averaged sensor
// waveforms by matrix multiplication.
package inverse

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"sourceboot/domain/core"
	"sourceboot/domain/sourcespace"
	"sourceboot/internal/errors"
	"sourceboot/ports"
)

// LinearOperator implements ports.InverseOperator with a dense kernel
type LinearOperator struct {
	kernel  *mat.Dense // nSources x nChannels
	lambda2 float64
}

// NewLinearOperator wraps a kernel matrix
func NewLinearOperator(kernel *mat.Dense, lambda2 float64) *LinearOperator {
	return &LinearOperator{kernel: kernel, lambda2: lambda2}
}

// Apply maps a sensor average (nChannels x nTimes) into source space
func (op *LinearOperator) Apply(avg *mat.Dense) (*mat.Dense, error) {
	_, kCH := op.kernel.Dims()
	aCH, _ := avg.Dims()
	if kCH != aCH {
		return nil, fmt.Errorf("%w: kernel expects %d channels, waveform has %d",
			core.ErrShapeMismatch, kCH, aCH)
	}
	var out mat.Dense
	out.Mul(op.kernel, avg)
	return &out, nil
}

// NSources returns the source-space dimensionality
func (op *LinearOperator) NSources() int {
	n, _ := op.kernel.Dims()
	return n
}

// Lambda2 returns the regularization parameter the kernel was built with
func (op *LinearOperator) Lambda2() float64 {
	return op.lambda2
}

// kernelFile is the on-disk form of one operator
type kernelFile struct {
	Kernel  sourcespace.MatrixPayload `json:"kernel"`
	Lambda2 float64                   `json:"lambda2"`
}

// DirProvider implements ports.InverseProvider over a directory of kernel
// files. The most specific file wins: event_condition_value.json, then
// event.json.
type DirProvider struct {
	dir string
}

// NewDirProvider creates a provider rooted at dir
func NewDirProvider(dir string) *DirProvider {
	return &DirProvider{dir: dir}
}

// Operator loads the operator for one analysis cell
func (p *DirProvider) Operator(ctx context.Context, key core.AnalysisKey) (ports.InverseOperator, error) {
	candidates := []string{
		fmt.Sprintf("%s_%s_%s.json", key.Event, key.Condition, key.Value),
		fmt.Sprintf("%s.json", key.Event),
	}
	for _, name := range candidates {
		path := filepath.Join(p.dir, name)
		raw, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading inverse kernel %s", path)
		}
		var kf kernelFile
		if err := json.Unmarshal(raw, &kf); err != nil {
			return nil, errors.Wrapf(err, "decoding inverse kernel %s", path)
		}
		kernel, err := kf.Kernel.Dense()
		if err != nil {
			return nil, errors.Wrapf(err, "kernel shape in %s", path)
		}
		return NewLinearOperator(kernel, kf.Lambda2), nil
	}
	return nil, fmt.Errorf("%w: inverse operator for %s", core.ErrNotFound, key)
}
