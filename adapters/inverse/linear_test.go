package inverse

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"sourceboot/domain/core"
	"sourceboot/domain/sourcespace"
)

func writeKernel(t *testing.T, dir, name string, kernel *mat.Dense, lambda2 float64) {
	t.Helper()
	raw, err := json.Marshal(kernelFile{
		Kernel:  sourcespace.NewMatrixPayload(kernel),
		Lambda2: lambda2,
	})
	if err != nil {
		t.Fatalf("marshal kernel: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), raw, 0o644); err != nil {
		t.Fatal(err)
	}
}

func mustKey(t *testing.T, event, condition, value string) core.AnalysisKey {
	t.Helper()
	key, err := core.NewAnalysisKey(core.EventKey(event), core.ConditionKey(condition), core.ValueKey(value))
	if err != nil {
		t.Fatalf("NewAnalysisKey: %v", err)
	}
	return key
}

func TestOperatorPrefersCellSpecificKernel(t *testing.T) {
	dir := t.TempDir()
	writeKernel(t, dir, "stim_state_all.json", mat.NewDense(3, 2, nil), 0.25)
	writeKernel(t, dir, "stim.json", mat.NewDense(4, 2, nil), 1.0/9)

	op, err := NewDirProvider(dir).Operator(context.Background(), mustKey(t, "stim", "state", "all"))
	if err != nil {
		t.Fatalf("Operator: %v", err)
	}
	lin := op.(*LinearOperator)
	if lin.Lambda2() != 0.25 {
		t.Errorf("Lambda2 = %v, want the cell-specific kernel's 0.25", lin.Lambda2())
	}
	if lin.NSources() != 3 {
		t.Errorf("NSources = %d, want 3", lin.NSources())
	}
}

func TestOperatorFallsBackToEventKernel(t *testing.T) {
	dir := t.TempDir()
	writeKernel(t, dir, "stim.json", mat.NewDense(4, 2, nil), 1.0/9)

	op, err := NewDirProvider(dir).Operator(context.Background(), mustKey(t, "stim", "state", "wake"))
	if err != nil {
		t.Fatalf("Operator: %v", err)
	}
	if n := op.(*LinearOperator).NSources(); n != 4 {
		t.Errorf("NSources = %d, want the event-wide kernel's 4", n)
	}
}

func TestOperatorMissingIsNotFound(t *testing.T) {
	_, err := NewDirProvider(t.TempDir()).Operator(context.Background(), mustKey(t, "stim", "state", "all"))
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestApplyMultipliesKernel(t *testing.T) {
	kernel := mat.NewDense(2, 3, []float64{
		1, 0, 2,
		0, 1, -1,
	})
	avg := mat.NewDense(3, 2, []float64{
		1, 2,
		3, 4,
		5, 6,
	})
	op := NewLinearOperator(kernel, 1.0/9)

	got, err := op.Apply(avg)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := mat.NewDense(2, 2, []float64{
		11, 14,
		-2, -2,
	})
	if !mat.Equal(got, want) {
		t.Errorf("Apply = %v, want %v", mat.Formatted(got), mat.Formatted(want))
	}
}

func TestApplyRejectsChannelMismatch(t *testing.T) {
	op := NewLinearOperator(mat.NewDense(2, 3, nil), 1.0/9)
	_, err := op.Apply(mat.NewDense(2, 4, nil))
	if !errors.Is(err, core.ErrShapeMismatch) {
		t.Fatalf("err = %v, want ErrShapeMismatch", err)
	}
}
