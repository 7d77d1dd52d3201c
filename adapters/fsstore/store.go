// Package fsstore is the filesystem checkpoint and artifact store. Batch
// blocks are gob-encoded and gzipped; stage artifacts are gzipped JSON. All
// writes go through a temp file and an atomic rename, so a file that exists
// under its final name is complete and a crash mid-write leaves nothing a
// restart could mistake for a checkpoint.
package fsstore

import (
	"compress/gzip"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sourceboot/domain/bootstrap"
	"sourceboot/domain/core"
	"sourceboot/domain/correlation"
	"sourceboot/domain/pci"
	"sourceboot/domain/threshold"
	"sourceboot/internal/errors"
)

// Store implements ports.CheckpointStore and ports.ArtifactStore on a data
// directory.
type Store struct {
	root string
}

// NewStore creates the store rooted at dir
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating store root %s", dir)
	}
	return &Store{root: dir}, nil
}

func (s *Store) cellDir(key core.AnalysisKey) string {
	return filepath.Join(s.root, sanitize(string(key.Event)),
		sanitize(string(key.Condition)), sanitize(string(key.Value)))
}

func sanitize(part string) string {
	part = strings.ReplaceAll(part, string(os.PathSeparator), "_")
	part = strings.ReplaceAll(part, "..", "_")
	if part == "" {
		part = "_"
	}
	return part
}

func batchName(r bootstrap.BatchRange) string {
	return fmt.Sprintf("batch_%06d-%06d.gob.gz", r.Min, r.Max)
}

// WriteManifest persists the resampling manifest
func (s *Store) WriteManifest(ctx context.Context, m *bootstrap.ResampleManifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return s.writeJSON(filepath.Join(s.cellDir(m.Key), "manifest.json.gz"), m)
}

// ReadManifest loads the manifest for a cell
func (s *Store) ReadManifest(ctx context.Context, key core.AnalysisKey) (*bootstrap.ResampleManifest, error) {
	var m bootstrap.ResampleManifest
	path := filepath.Join(s.cellDir(key), "manifest.json.gz")
	if err := s.readJSON(path, &m); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w for %s", core.ErrManifestNotFound, key)
		}
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(err, "manifest failed validation on load")
	}
	return &m, nil
}

// HasManifest reports whether a committed manifest exists
func (s *Store) HasManifest(ctx context.Context, key core.AnalysisKey) (bool, error) {
	return s.exists(filepath.Join(s.cellDir(key), "manifest.json.gz"))
}

// WriteBatch commits one batch block atomically
func (s *Store) WriteBatch(ctx context.Context, key core.AnalysisKey, block *bootstrap.BatchBlock) error {
	if err := block.Validate(); err != nil {
		return err
	}
	path := filepath.Join(s.cellDir(key), batchName(block.Range))
	return s.writeAtomic(path, func(f *os.File) error {
		zw := gzip.NewWriter(f)
		if err := gob.NewEncoder(zw).Encode(block); err != nil {
			return err
		}
		return zw.Close()
	})
}

// ReadBatch loads one committed batch block
func (s *Store) ReadBatch(ctx context.Context, key core.AnalysisKey, r bootstrap.BatchRange) (*bootstrap.BatchBlock, error) {
	path := filepath.Join(s.cellDir(key), batchName(r))
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s %v", core.ErrBatchNotFound, key, r)
		}
		return nil, errors.Wrapf(err, "opening batch %s", path)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrCheckpointCorrupt, path, err)
	}
	defer zr.Close()
	var block bootstrap.BatchBlock
	if err := gob.NewDecoder(zr).Decode(&block); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrCheckpointCorrupt, path, err)
	}
	if err := block.Validate(); err != nil {
		return nil, err
	}
	if block.Range != r {
		return nil, fmt.Errorf("%w: %s holds range %v", core.ErrCheckpointCorrupt, path, block.Range)
	}
	return &block, nil
}

// HasBatch reports whether a committed batch exists. Only files under their
// final name count; temp files from interrupted writes do not.
func (s *Store) HasBatch(ctx context.Context, key core.AnalysisKey, r bootstrap.BatchRange) (bool, error) {
	return s.exists(filepath.Join(s.cellDir(key), batchName(r)))
}

// DeleteRun removes the manifest and all batches for a cell
func (s *Store) DeleteRun(ctx context.Context, key core.AnalysisKey) error {
	dir := s.cellDir(key)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "listing %s", dir)
	}
	for _, e := range entries {
		name := e.Name()
		if name == "manifest.json.gz" || strings.HasPrefix(name, "batch_") {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				return errors.Wrapf(err, "removing %s", name)
			}
		}
	}
	return nil
}

// SaveThreshold persists the threshold artifact
func (s *Store) SaveThreshold(ctx context.Context, a *threshold.Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return s.writeJSON(filepath.Join(s.cellDir(a.Key), "threshold.json.gz"), a)
}

// LoadThreshold loads the threshold artifact
func (s *Store) LoadThreshold(ctx context.Context, key core.AnalysisKey) (*threshold.Artifact, error) {
	var a threshold.Artifact
	if err := s.readJSON(filepath.Join(s.cellDir(key), "threshold.json.gz"), &a); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w for %s", core.ErrThresholdNotFound, key)
		}
		return nil, err
	}
	return &a, nil
}

// HasThreshold reports whether a threshold artifact exists
func (s *Store) HasThreshold(ctx context.Context, key core.AnalysisKey) (bool, error) {
	return s.exists(filepath.Join(s.cellDir(key), "threshold.json.gz"))
}

// SavePCI persists the complexity artifact
func (s *Store) SavePCI(ctx context.Context, a *pci.Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return s.writeJSON(filepath.Join(s.cellDir(a.Key), "pci.json.gz"), a)
}

// LoadPCI loads the complexity artifact
func (s *Store) LoadPCI(ctx context.Context, key core.AnalysisKey) (*pci.Artifact, error) {
	var a pci.Artifact
	if err := s.readJSON(filepath.Join(s.cellDir(key), "pci.json.gz"), &a); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: pci for %s", core.ErrArtifactNotFound, key)
		}
		return nil, err
	}
	return &a, nil
}

// HasPCI reports whether a complexity artifact exists
func (s *Store) HasPCI(ctx context.Context, key core.AnalysisKey) (bool, error) {
	return s.exists(filepath.Join(s.cellDir(key), "pci.json.gz"))
}

// SaveCorrelation persists the correlation artifact
func (s *Store) SaveCorrelation(ctx context.Context, a *correlation.Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return s.writeJSON(filepath.Join(s.cellDir(a.Key), "correlation.json.gz"), a)
}

// LoadCorrelation loads the correlation artifact
func (s *Store) LoadCorrelation(ctx context.Context, key core.AnalysisKey) (*correlation.Artifact, error) {
	var a correlation.Artifact
	if err := s.readJSON(filepath.Join(s.cellDir(key), "correlation.json.gz"), &a); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: correlation for %s", core.ErrArtifactNotFound, key)
		}
		return nil, err
	}
	return &a, nil
}

// HasCorrelation reports whether a correlation artifact exists
func (s *Store) HasCorrelation(ctx context.Context, key core.AnalysisKey) (bool, error) {
	return s.exists(filepath.Join(s.cellDir(key), "correlation.json.gz"))
}

func (s *Store) exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *Store) writeJSON(path string, v interface{}) error {
	return s.writeAtomic(path, func(f *os.File) error {
		zw := gzip.NewWriter(f)
		if err := json.NewEncoder(zw).Encode(v); err != nil {
			return err
		}
		return zw.Close()
	})
}

func (s *Store) readJSON(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrCheckpointCorrupt, path, err)
	}
	defer zr.Close()
	if err := json.NewDecoder(zr).Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrCheckpointCorrupt, path, err)
	}
	return nil
}

// writeAtomic writes into <path>.tmp and renames on success
func (s *Store) writeAtomic(path string, fill func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Dir(path))
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "creating %s", tmp)
	}
	if err := fill(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "writing %s", tmp)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "closing %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "committing %s", path)
	}
	return nil
}
