package bootstrap

import (
	"errors"
	"math/rand"
	"testing"

	"sourceboot/domain/core"
	"sourceboot/domain/sourcespace"
)

func testManifest(t *testing.T) *ResampleManifest {
	t.Helper()
	key, err := core.NewAnalysisKey("stim", "state", "all")
	if err != nil {
		t.Fatalf("NewAnalysisKey: %v", err)
	}
	indices, err := NewIndexMatrix(rand.New(rand.NewSource(7)), 6, 4, 12)
	if err != nil {
		t.Fatalf("NewIndexMatrix: %v", err)
	}
	return NewResampleManifest(key, 7, 2, 12, 20, indices, false, false,
		sourcespace.FrequencyGrid{}, nil)
}

func TestManifestValidate(t *testing.T) {
	m := testManifest(t)
	if err := m.Validate(); err != nil {
		t.Fatalf("valid manifest rejected: %v", err)
	}
	if got := len(m.Batches()); got != 3 {
		t.Errorf("batch count = %d, want 3", got)
	}
}

func TestManifestRejectsTamperedIndices(t *testing.T) {
	m := testManifest(t)
	m.Indices.Indices[0][0]++
	if err := m.Validate(); !errors.Is(err, core.ErrFingerprintChange) {
		t.Fatalf("tampered indices gave %v, want fingerprint change", err)
	}
}

func TestManifestRejectsPhaseWithoutTFR(t *testing.T) {
	m := testManifest(t)
	m.Phase = true
	if err := m.Validate(); err == nil {
		t.Fatal("phase without tfr should fail validation")
	}
}
