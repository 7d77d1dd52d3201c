package fsstore

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"sourceboot/domain/bootstrap"
	"sourceboot/domain/core"
	"sourceboot/domain/sourcespace"
	"sourceboot/domain/threshold"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func testKey(t *testing.T) core.AnalysisKey {
	t.Helper()
	key, err := core.NewAnalysisKey("stim", "state", "all")
	if err != nil {
		t.Fatalf("NewAnalysisKey: %v", err)
	}
	return key
}

func testManifest(t *testing.T, key core.AnalysisKey) *bootstrap.ResampleManifest {
	t.Helper()
	indices, err := bootstrap.NewIndexMatrix(rand.New(rand.NewSource(3)), 4, 2, 6)
	if err != nil {
		t.Fatalf("NewIndexMatrix: %v", err)
	}
	return bootstrap.NewResampleManifest(key, 3, 2, 6, 5, indices, false, false,
		sourcespace.FrequencyGrid{}, nil)
}

func TestManifestRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	key := testKey(t)

	if has, _ := s.HasManifest(ctx, key); has {
		t.Fatal("manifest reported before write")
	}
	if _, err := s.ReadManifest(ctx, key); !errors.Is(err, core.ErrManifestNotFound) {
		t.Fatalf("missing manifest gave %v", err)
	}

	m := testManifest(t, key)
	if err := s.WriteManifest(ctx, m); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	got, err := s.ReadManifest(ctx, key)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if !got.IndexHash.Equals(m.IndexHash) {
		t.Error("index hash changed across roundtrip")
	}
	if got.NBoot != m.NBoot || got.NAve != m.NAve || got.Seed != m.Seed {
		t.Errorf("manifest fields changed: %+v", got)
	}
}

func TestBatchRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	key := testKey(t)
	r := bootstrap.BatchRange{Min: 0, Max: 2}

	block := bootstrap.NewBatchBlock(r, nil, false)
	block.Source[0] = sourcespace.MatrixPayload{Rows: 2, Cols: 2, Data: []float64{1, 2, 3, 4}}
	block.Source[1] = sourcespace.MatrixPayload{Rows: 2, Cols: 2, Data: []float64{5, 6, 7, 8}}

	if err := s.WriteBatch(ctx, key, block); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	has, err := s.HasBatch(ctx, key, r)
	if err != nil || !has {
		t.Fatalf("HasBatch = %v, %v", has, err)
	}
	got, err := s.ReadBatch(ctx, key, r)
	if err != nil {
		t.Fatalf("ReadBatch: %v", err)
	}
	if got.Source[1].Data[3] != 8 {
		t.Errorf("payload data changed across roundtrip")
	}
}

func TestPartialTempFileTreatedAbsent(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	key := testKey(t)
	r := bootstrap.BatchRange{Min: 0, Max: 2}

	// Simulate a crash mid-write: only the temp file exists.
	dir := s.cellDir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	tmp := filepath.Join(dir, batchName(r)+".tmp")
	if err := os.WriteFile(tmp, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	has, err := s.HasBatch(ctx, key, r)
	if err != nil {
		t.Fatalf("HasBatch: %v", err)
	}
	if has {
		t.Fatal("temp file counted as a committed batch")
	}
	if _, err := s.ReadBatch(ctx, key, r); !errors.Is(err, core.ErrBatchNotFound) {
		t.Fatalf("ReadBatch gave %v, want batch not found", err)
	}
}

func TestCorruptBatchReported(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	key := testKey(t)
	r := bootstrap.BatchRange{Min: 0, Max: 2}

	dir := s.cellDir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, batchName(r)), []byte("not gzip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReadBatch(ctx, key, r); !errors.Is(err, core.ErrCheckpointCorrupt) {
		t.Fatalf("corrupt batch gave %v, want checkpoint corrupt", err)
	}
}

func TestDeleteRun(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	key := testKey(t)

	m := testManifest(t, key)
	if err := s.WriteManifest(ctx, m); err != nil {
		t.Fatal(err)
	}
	block := bootstrap.NewBatchBlock(bootstrap.BatchRange{Min: 0, Max: 2}, nil, false)
	block.Source[0] = sourcespace.MatrixPayload{Rows: 1, Cols: 1, Data: []float64{1}}
	block.Source[1] = sourcespace.MatrixPayload{Rows: 1, Cols: 1, Data: []float64{2}}
	if err := s.WriteBatch(ctx, key, block); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteRun(ctx, key); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if has, _ := s.HasManifest(ctx, key); has {
		t.Error("manifest survived DeleteRun")
	}
	if has, _ := s.HasBatch(ctx, key, block.Range); has {
		t.Error("batch survived DeleteRun")
	}
}

func TestThresholdArtifactRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	key := testKey(t)

	a := &threshold.Artifact{
		Key:            key,
		Policy:         threshold.BootstrapPolicy(0.01),
		NBoot:          8,
		SourceWaveform: sourcespace.MatrixPayload{Rows: 2, Cols: 2, Data: []float64{1, 2, 3, 4}},
		BaselineMean:   []float64{0, 0},
		BaselineStd:    []float64{1, 2},
		Multiplier:     2.5,
		PerSource:      []float64{2.5, 5},
		CreatedAt:      core.Now(),
	}
	if err := s.SaveThreshold(ctx, a); err != nil {
		t.Fatalf("SaveThreshold: %v", err)
	}
	got, err := s.LoadThreshold(ctx, key)
	if err != nil {
		t.Fatalf("LoadThreshold: %v", err)
	}
	if got.Multiplier != 2.5 || got.PerSource[1] != 5 {
		t.Errorf("artifact changed across roundtrip: %+v", got)
	}

	other := key.WithValue("wake")
	if _, err := s.LoadThreshold(ctx, other); !errors.Is(err, core.ErrThresholdNotFound) {
		t.Fatalf("missing threshold gave %v", err)
	}
}
