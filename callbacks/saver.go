package callbacks

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/trainkit/pkg/errors"
	"github.com/YuminosukeSato/trainkit/pkg/log"
	"github.com/YuminosukeSato/trainkit/train"
)

// CheckpointFileName is the name of the run-state checkpoint file.
const CheckpointFileName = "checkpoint.json"

// Saver persists the trainer's snapshot on every epoch trigger, so an
// interrupted run can resume from the last completed flush. The file is
// rewritten via temp-file plus atomic rename. Place the Saver after
// telemetry callbacks so their state is settled when the snapshot is taken.
type Saver struct {
	train.Base

	dir string
}

// NewSaver creates a saver writing to dir/checkpoint.json.
func NewSaver(dir string) *Saver {
	return &Saver{dir: dir}
}

// TriggerEpoch snapshots the run and persists it. Write failures are logged
// and do not abort the run; a stale checkpoint is preferable to a dead run.
func (s *Saver) TriggerEpoch() error {
	cp, err := s.Trainer().Snapshot()
	if err != nil {
		return err
	}
	if err := s.persist(cp); err != nil {
		log.GetLoggerWithName("callbacks.saver").Error("writing checkpoint failed",
			log.ErrAttr(err),
			log.PathKey, filepath.Join(s.dir, CheckpointFileName),
			log.EpochKey, cp.EpochNum,
		)
	}
	return nil
}

func (s *Saver) persist(cp *train.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return errors.NewSinkWriteError("Saver", "marshal", err)
	}
	path := filepath.Join(s.dir, CheckpointFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.NewSinkWriteError("Saver", "write", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.NewSinkWriteError("Saver", "rename", err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint persisted by a Saver from dir. Returns
// nil with no error when no checkpoint exists yet.
func LoadCheckpoint(dir string) (*train.Checkpoint, error) {
	raw, err := os.ReadFile(filepath.Join(dir, CheckpointFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading checkpoint")
	}
	var cp train.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, errors.Wrap(err, "parsing checkpoint")
	}
	return &cp, nil
}
