// Package epochs loads pre-segmented trial populations from disk. The
// surrounding preprocessing pipeline exports one gob-encoded file per event
// plus one for the shared baseline period; behavioral covariates attach from
// the session's behavior log at load time.
package epochs

import (
	"compress/gzip"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"sourceboot/adapters/excel"
	"sourceboot/domain/core"
	"sourceboot/domain/epoch"
	"sourceboot/domain/sourcespace"
	"sourceboot/internal/errors"
	"sourceboot/ports"
)

// BaselineName is the pseudo-event the baseline population is stored under
const BaselineName = "baseline"

// epochFile is the on-disk form of one trial population
type epochFile struct {
	Event     core.EventKey
	Axis      epoch.TimeAxis
	IDs       []core.TrialID
	Waveforms []sourcespace.MatrixPayload
}

// DirProvider implements ports.TrialProvider over a directory of epoch
// exports.
type DirProvider struct {
	dir      string
	behavior *excel.BehaviorLog
}

// NewDirProvider creates a provider rooted at dir. The behavior log is
// optional; without it trials carry no covariates and condition-split
// analyses fail at selection time.
func NewDirProvider(dir string, behavior *excel.BehaviorLog) *DirProvider {
	return &DirProvider{dir: dir, behavior: behavior}
}

// Trials loads the population epoched around one event
func (p *DirProvider) Trials(ctx context.Context, event core.EventKey) (*epoch.TrialSet, error) {
	return p.load(string(event))
}

// Baseline loads the pre-stimulus baseline population
func (p *DirProvider) Baseline(ctx context.Context) (*epoch.TrialSet, error) {
	return p.load(BaselineName)
}

func (p *DirProvider) load(name string) (*epoch.TrialSet, error) {
	path := filepath.Join(p.dir, fmt.Sprintf("epochs_%s.gob.gz", name))
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: epochs for %s", core.ErrNotFound, name)
		}
		return nil, errors.Wrapf(err, "opening epochs %s", path)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading epochs %s", path)
	}
	defer zr.Close()

	var file epochFile
	if err := gob.NewDecoder(zr).Decode(&file); err != nil {
		return nil, errors.Wrapf(err, "decoding epochs %s", path)
	}
	if len(file.IDs) != len(file.Waveforms) {
		return nil, core.ErrShapeMismatch
	}

	trials := make([]epoch.Trial, len(file.IDs))
	for i, id := range file.IDs {
		w, err := file.Waveforms[i].Dense()
		if err != nil {
			return nil, errors.Wrapf(err, "trial %s waveform shape", id)
		}
		tr := epoch.Trial{ID: id, Waveform: w}
		if p.behavior != nil {
			if cov, ok := p.behavior.Covariates(id); ok {
				tr.Covariates = cov
			}
		}
		trials[i] = tr
	}
	return epoch.NewTrialSet(file.Event, file.Axis, trials)
}

// WriteEpochs exports one population in the provider's on-disk format. Used
// by ingestion tooling and tests.
func WriteEpochs(dir, name string, set *epoch.TrialSet) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	file := epochFile{
		Event: set.Event,
		Axis:  set.Axis,
		IDs:   set.IDs(),
	}
	file.Waveforms = make([]sourcespace.MatrixPayload, set.Len())
	for i, tr := range set.Trials {
		file.Waveforms[i] = sourcespace.NewMatrixPayload(tr.Waveform)
	}

	path := filepath.Join(dir, fmt.Sprintf("epochs_%s.gob.gz", name))
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "creating %s", tmp)
	}
	zw := gzip.NewWriter(f)
	if err := gob.NewEncoder(zw).Encode(&file); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "encoding epochs %s", name)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "flushing %s", tmp)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "closing %s", tmp)
	}
	return os.Rename(tmp, path)
}

var _ ports.TrialProvider = (*DirProvider)(nil)
