package imagegan

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

const checkpointVersion = 1

var (
	// ErrCheckpointMismatch Checkpoint parameters do not match network definition
	ErrCheckpointMismatch = errors.New("checkpoint does not match network")
)

// Checkpoint Serialized parameters of one network
//
// RunID - identifier of training run which produced checkpoint
// Epoch - number of finished epochs when checkpoint was written (0 for checkpoints written outside of training)
//
type Checkpoint struct {
	Version int
	RunID   string
	Epoch   int
	Params  []ParamRecord
}

// ParamRecord Named learnable's value
type ParamRecord struct {
	Name  string
	Shape []int
	Data  []float64
}

// NewCheckpoint Captures copies of learnables' current values
func NewCheckpoint(runID string, epoch int, learnables gorgonia.Nodes) (*Checkpoint, error) {
	ckpt := &Checkpoint{
		Version: checkpointVersion,
		RunID:   runID,
		Epoch:   epoch,
		Params:  make([]ParamRecord, len(learnables)),
	}
	for i, n := range learnables {
		data, err := float64Data(n)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't access learnable '%s'", n.Name()))
		}
		ckpt.Params[i] = ParamRecord{
			Name:  n.Name(),
			Shape: append([]int{}, n.Shape()...),
			Data:  append([]float64{}, data...),
		}
	}
	return ckpt, nil
}

// Restore Copies checkpoint's values into learnables. Names and shapes must match pairwise.
func (ckpt *Checkpoint) Restore(learnables gorgonia.Nodes) error {
	if len(ckpt.Params) != len(learnables) {
		return errors.Wrap(ErrCheckpointMismatch, fmt.Sprintf("checkpoint has %d parameters, network has %d", len(ckpt.Params), len(learnables)))
	}
	// Validate everything before touching the network
	for i, n := range learnables {
		p := ckpt.Params[i]
		if p.Name != n.Name() {
			return errors.Wrap(ErrCheckpointMismatch, fmt.Sprintf("parameter #%d is '%s', network expects '%s'", i, p.Name, n.Name()))
		}
		if !sameShape(p.Shape, n.Shape()) {
			return errors.Wrap(ErrCheckpointMismatch, fmt.Sprintf("parameter '%s' has shape %v, network expects %v", p.Name, p.Shape, n.Shape()))
		}
		if len(p.Data) != n.Shape().TotalSize() {
			return errors.Wrap(ErrCheckpointMismatch, fmt.Sprintf("parameter '%s' has %d values, network expects %d", p.Name, len(p.Data), n.Shape().TotalSize()))
		}
	}
	for i, n := range learnables {
		data, err := float64Data(n)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't access learnable '%s'", n.Name()))
		}
		copy(data, ckpt.Params[i].Data)
	}
	return nil
}

func sameShape(a []int, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SaveCheckpoint Writes checkpoint to file. Existing file is replaced atomically.
func SaveCheckpoint(ckpt *Checkpoint, fname string) error {
	dir := filepath.Dir(fname)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "Can't create checkpoint directory")
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(fname)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "Can't create temporary checkpoint file")
	}
	tmpName := tmp.Name()
	if err := gob.NewEncoder(tmp).Encode(ckpt); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "Can't encode checkpoint")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "Can't close temporary checkpoint file")
	}
	if err := os.Rename(tmpName, fname); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "Can't replace checkpoint file")
	}
	return nil
}

// LoadCheckpoint Reads checkpoint from file
func LoadCheckpoint(fname string) (*Checkpoint, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, errors.Wrap(err, "Can't open checkpoint")
	}
	defer f.Close()
	ckpt := &Checkpoint{}
	if err := gob.NewDecoder(f).Decode(ckpt); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't decode checkpoint '%s'", fname))
	}
	if ckpt.Version != checkpointVersion {
		return nil, errors.Wrap(ErrCheckpointMismatch, fmt.Sprintf("checkpoint version %d is not supported", ckpt.Version))
	}
	return ckpt, nil
}
