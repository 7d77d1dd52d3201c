// Package testkit provides synthetic data and fakes for tests: a trial
// population generator, a dense linear inverse operator, and map-backed
// implementations of the checkpoint and artifact ports.
package testkit

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"

	"sourceboot/domain/bootstrap"
	"sourceboot/domain/core"
	"sourceboot/domain/correlation"
	"sourceboot/domain/epoch"
	"sourceboot/domain/pci"
	"sourceboot/domain/threshold"
	"sourceboot/ports"
)

// SyntheticTrials generates a seeded trial population: a damped post-event
// oscillation on every channel plus white noise, so inverse estimates carry
// real structure for thresholding and complexity tests.
func SyntheticTrials(event core.EventKey, nTrials, nChannels int, axis epoch.TimeAxis, seed int64) *epoch.TrialSet {
	rng := rand.New(rand.NewSource(seed))
	times := axis.Times()
	trials := make([]epoch.Trial, nTrials)
	for i := range trials {
		w := mat.NewDense(nChannels, axis.N, nil)
		for ch := 0; ch < nChannels; ch++ {
			f := 8 + float64(ch)
			for t, tv := range times {
				v := rng.NormFloat64() * 0.3
				if tv > 0 {
					v += math.Sin(2*math.Pi*f*tv) * math.Exp(-2*tv)
				}
				w.Set(ch, t, v)
			}
		}
		trials[i] = epoch.Trial{
			ID:       core.TrialID(fmt.Sprintf("trial-%03d", i)),
			Waveform: w,
			Covariates: map[core.ConditionKey]float64{
				"score": rng.Float64(),
			},
		}
	}
	set, err := epoch.NewTrialSet(event, axis, trials)
	if err != nil {
		panic(err)
	}
	return set
}

// StaticTrialProvider serves fixed populations
type StaticTrialProvider struct {
	Sets         map[core.EventKey]*epoch.TrialSet
	BaselineSets *epoch.TrialSet
}

// Trials returns the population for an event
func (p *StaticTrialProvider) Trials(ctx context.Context, event core.EventKey) (*epoch.TrialSet, error) {
	set, ok := p.Sets[event]
	if !ok {
		return nil, fmt.Errorf("%w: epochs for %s", core.ErrNotFound, event)
	}
	return set, nil
}

// Baseline returns the baseline population
func (p *StaticTrialProvider) Baseline(ctx context.Context) (*epoch.TrialSet, error) {
	if p.BaselineSets == nil {
		return nil, fmt.Errorf("%w: baseline epochs", core.ErrNotFound)
	}
	return p.BaselineSets, nil
}

// RandomOperator builds a dense inverse kernel with seeded weights
func RandomOperator(nSources, nChannels int, seed int64) *StaticOperator {
	rng := rand.New(rand.NewSource(seed))
	kernel := mat.NewDense(nSources, nChannels, nil)
	for i := 0; i < nSources; i++ {
		for j := 0; j < nChannels; j++ {
			kernel.Set(i, j, rng.NormFloat64()/float64(nChannels))
		}
	}
	return &StaticOperator{Kernel: kernel}
}

// StaticOperator implements ports.InverseOperator over a fixed kernel
type StaticOperator struct {
	Kernel *mat.Dense
}

// Apply maps a sensor average into source space
func (o *StaticOperator) Apply(avg *mat.Dense) (*mat.Dense, error) {
	_, kCH := o.Kernel.Dims()
	aCH, _ := avg.Dims()
	if kCH != aCH {
		return nil, core.ErrShapeMismatch
	}
	var out mat.Dense
	out.Mul(o.Kernel, avg)
	return &out, nil
}

// NSources returns the kernel's source count
func (o *StaticOperator) NSources() int {
	n, _ := o.Kernel.Dims()
	return n
}

// Lambda2 returns a fixed regularization value
func (o *StaticOperator) Lambda2() float64 { return 1.0 / 9.0 }

// StaticInverseProvider serves one operator for every cell
type StaticInverseProvider struct {
	Op ports.InverseOperator
}

// Operator returns the fixed operator
func (p *StaticInverseProvider) Operator(ctx context.Context, key core.AnalysisKey) (ports.InverseOperator, error) {
	return p.Op, nil
}

// InMemoryStore implements CheckpointStore and ArtifactStore in maps
type InMemoryStore struct {
	mu           sync.Mutex
	manifests    map[string]*bootstrap.ResampleManifest
	batches      map[string]*bootstrap.BatchBlock
	thresholds   map[string]*threshold.Artifact
	pcis         map[string]*pci.Artifact
	correlations map[string]*correlation.Artifact
}

// NewInMemoryStore creates an empty store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		manifests:    make(map[string]*bootstrap.ResampleManifest),
		batches:      make(map[string]*bootstrap.BatchBlock),
		thresholds:   make(map[string]*threshold.Artifact),
		pcis:         make(map[string]*pci.Artifact),
		correlations: make(map[string]*correlation.Artifact),
	}
}

func batchKey(key core.AnalysisKey, r bootstrap.BatchRange) string {
	return fmt.Sprintf("%s/%d-%d", key, r.Min, r.Max)
}

// WriteManifest stores a manifest
func (s *InMemoryStore) WriteManifest(ctx context.Context, m *bootstrap.ResampleManifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests[m.Key.String()] = m
	return nil
}

// ReadManifest loads a manifest
func (s *InMemoryStore) ReadManifest(ctx context.Context, key core.AnalysisKey) (*bootstrap.ResampleManifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.manifests[key.String()]
	if !ok {
		return nil, fmt.Errorf("%w for %s", core.ErrManifestNotFound, key)
	}
	return m, nil
}

// HasManifest reports manifest existence
func (s *InMemoryStore) HasManifest(ctx context.Context, key core.AnalysisKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.manifests[key.String()]
	return ok, nil
}

// WriteBatch stores a batch block
func (s *InMemoryStore) WriteBatch(ctx context.Context, key core.AnalysisKey, block *bootstrap.BatchBlock) error {
	if err := block.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batchKey(key, block.Range)] = block
	return nil
}

// ReadBatch loads a batch block
func (s *InMemoryStore) ReadBatch(ctx context.Context, key core.AnalysisKey, r bootstrap.BatchRange) (*bootstrap.BatchBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	block, ok := s.batches[batchKey(key, r)]
	if !ok {
		return nil, fmt.Errorf("%w: %s %v", core.ErrBatchNotFound, key, r)
	}
	return block, nil
}

// HasBatch reports batch existence
func (s *InMemoryStore) HasBatch(ctx context.Context, key core.AnalysisKey, r bootstrap.BatchRange) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.batches[batchKey(key, r)]
	return ok, nil
}

// DeleteRun removes the manifest and batches of a cell
func (s *InMemoryStore) DeleteRun(ctx context.Context, key core.AnalysisKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.manifests, key.String())
	prefix := key.String() + "/"
	for k := range s.batches {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(s.batches, k)
		}
	}
	return nil
}

// SaveThreshold stores a threshold artifact
func (s *InMemoryStore) SaveThreshold(ctx context.Context, a *threshold.Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds[a.Key.String()] = a
	return nil
}

// LoadThreshold loads a threshold artifact
func (s *InMemoryStore) LoadThreshold(ctx context.Context, key core.AnalysisKey) (*threshold.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.thresholds[key.String()]
	if !ok {
		return nil, fmt.Errorf("%w for %s", core.ErrThresholdNotFound, key)
	}
	return a, nil
}

// HasThreshold reports threshold existence
func (s *InMemoryStore) HasThreshold(ctx context.Context, key core.AnalysisKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.thresholds[key.String()]
	return ok, nil
}

// SavePCI stores a complexity artifact
func (s *InMemoryStore) SavePCI(ctx context.Context, a *pci.Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pcis[a.Key.String()] = a
	return nil
}

// LoadPCI loads a complexity artifact
func (s *InMemoryStore) LoadPCI(ctx context.Context, key core.AnalysisKey) (*pci.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.pcis[key.String()]
	if !ok {
		return nil, fmt.Errorf("%w: pci for %s", core.ErrArtifactNotFound, key)
	}
	return a, nil
}

// HasPCI reports complexity artifact existence
func (s *InMemoryStore) HasPCI(ctx context.Context, key core.AnalysisKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pcis[key.String()]
	return ok, nil
}

// SaveCorrelation stores a correlation artifact
func (s *InMemoryStore) SaveCorrelation(ctx context.Context, a *correlation.Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.correlations[a.Key.String()] = a
	return nil
}

// LoadCorrelation loads a correlation artifact
func (s *InMemoryStore) LoadCorrelation(ctx context.Context, key core.AnalysisKey) (*correlation.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.correlations[key.String()]
	if !ok {
		return nil, fmt.Errorf("%w: correlation for %s", core.ErrArtifactNotFound, key)
	}
	return a, nil
}

// HasCorrelation reports correlation artifact existence
func (s *InMemoryStore) HasCorrelation(ctx context.Context, key core.AnalysisKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.correlations[key.String()]
	return ok, nil
}

var (
	_ ports.TrialProvider   = (*StaticTrialProvider)(nil)
	_ ports.InverseOperator = (*StaticOperator)(nil)
	_ ports.InverseProvider = (*StaticInverseProvider)(nil)
	_ ports.CheckpointStore = (*InMemoryStore)(nil)
	_ ports.ArtifactStore   = (*InMemoryStore)(nil)
)
