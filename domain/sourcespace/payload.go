package sourcespace

import (
	"gonum.org/v1/gonum/mat"

	"sourceboot/domain/core"
)

// MatrixPayload is the serializable form of a dense matrix, row-major.
// Artifacts carry these; live computation uses gonum matrices.
type MatrixPayload struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// NewMatrixPayload copies a dense matrix into payload form
func NewMatrixPayload(m *mat.Dense) MatrixPayload {
	r, c := m.Dims()
	data := make([]float64, r*c)
	for i := 0; i < r; i++ {
		copy(data[i*c:(i+1)*c], m.RawRowView(i))
	}
	return MatrixPayload{Rows: r, Cols: c, Data: data}
}

// Dense rebuilds the gonum matrix. The payload's backing slice is reused.
func (p MatrixPayload) Dense() (*mat.Dense, error) {
	if p.Rows*p.Cols != len(p.Data) {
		return nil, core.ErrShapeMismatch
	}
	return mat.NewDense(p.Rows, p.Cols, p.Data), nil
}

// Hash fingerprints the payload bit-exactly
func (p MatrixPayload) Hash() core.Hash {
	return core.ComputeMatrixHash(p.Data)
}
