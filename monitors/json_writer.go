// Package monitors provides the built-in telemetry sinks: a resumable JSON
// stat writer, a console scalar printer, an append-only event stream, and a
// plot renderer. Every sink implements train.Monitor and keeps its failures
// local: a broken sink is logged and skipped, never fatal to the run.
package monitors

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/trainkit/pkg/errors"
	"github.com/YuminosukeSato/trainkit/pkg/log"
	"github.com/YuminosukeSato/trainkit/train"
)

// StatsFileName is the fixed name of the stat history file. Do not change
// it: the resumption logic looks for exactly this name.
const StatsFileName = "stats.json"

// JSONWriter persists all scalar data to a single JSON file, grouped by
// global step. One object is appended to the history per flush, stamped with
// the trainer's epoch_num and global_step.
//
// On before_train it looks for an earlier stats.json in its directory: a
// history whose last epoch precedes the declared starting epoch is appended
// to; anything else is backed up under a timestamped name and replaced by a
// fresh history, with a warning.
type JSONWriter struct {
	train.BaseMonitor

	dir   string
	fname string

	stats   []map[string]any
	pending map[string]float64
}

// NewJSONWriter creates a writer persisting to dir/stats.json.
func NewJSONWriter(dir string) *JSONWriter {
	return &JSONWriter{
		dir:     dir,
		fname:   filepath.Join(dir, StatsFileName),
		pending: make(map[string]float64),
	}
}

// LoadExistingStats returns the stat history persisted under dir, or nil if
// no stats.json exists there.
func LoadExistingStats(dir string) ([]map[string]any, error) {
	raw, err := os.ReadFile(filepath.Join(dir, StatsFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading stat history")
	}
	var stats []map[string]any
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, errors.Wrap(err, "parsing stat history")
	}
	return stats, nil
}

// LoadExistingEpochNumber returns the last epoch recorded in the stat
// history under dir, or -1 if there is no history or it carries no epoch.
func LoadExistingEpochNumber(dir string) (int, error) {
	stats, err := LoadExistingStats(dir)
	if err != nil {
		return -1, err
	}
	return lastEpoch(stats), nil
}

func lastEpoch(stats []map[string]any) int {
	if len(stats) == 0 {
		return -1
	}
	v, ok := stats[len(stats)-1]["epoch_num"]
	if !ok {
		return -1
	}
	// JSON numbers decode as float64.
	f, ok := v.(float64)
	if !ok {
		return -1
	}
	return int(f)
}

// BeforeTrain initializes the stat buffers and resolves resumption. It runs
// before other callbacks consume the history, so the chain must place the
// writer ahead of anything reading stats.json.
func (w *JSONWriter) BeforeTrain() error {
	w.stats = nil
	w.pending = make(map[string]float64)

	logger := log.GetLoggerWithName("monitors.json_writer")

	stats, err := LoadExistingStats(w.dir)
	if err != nil {
		// Unreadable history cannot be appended to; treat like a mismatch.
		logger.Warn("existing stat history is unreadable; starting fresh",
			log.ErrAttr(err),
			log.PathKey, w.fname,
		)
		stats = nil
	}

	if stats != nil {
		historyEpoch := lastEpoch(stats)
		startingEpoch := w.Trainer().StartingEpoch()

		if historyEpoch < 0 || historyEpoch+1 == startingEpoch {
			logger.Info("found existing stat history, appending to it",
				log.PathKey, w.fname,
				log.StartingEpochKey, startingEpoch,
			)
			w.stats = stats
		} else {
			backup := w.fname + "." + time.Now().Format("0102-150405")
			warning := errors.NewInconsistentResumeWarning(historyEpoch, startingEpoch, backup)
			errors.Warn(warning)
			logger.Warn("stat history does not match the starting epoch; backing it up",
				log.ErrAttr(warning),
				log.PathKey, w.fname,
			)
			if err := os.Rename(w.fname, backup); err != nil {
				logger.Error("backing up stat history failed",
					log.ErrAttr(errors.NewSinkWriteError("JSONWriter", "backup", err)),
					log.PathKey, backup,
				)
			}
		}
	}

	// In case something was logged before the run started.
	w.trigger()
	return nil
}

// AddScalar buffers a value under its name; the last write before a flush
// wins.
func (w *JSONWriter) AddScalar(name string, value float64) error {
	w.pending[name] = value
	return nil
}

// TriggerStep flushes unless this is the epoch's last step, which the
// epoch-level trigger subsumes.
func (w *JSONWriter) TriggerStep() error {
	if !w.Trainer().LastStepOfEpoch() {
		w.trigger()
	}
	return nil
}

// TriggerEpoch always flushes.
func (w *JSONWriter) TriggerEpoch() error {
	w.trigger()
	return nil
}

// trigger stamps the pending buffer with the trainer counters, appends it to
// the history, and rewrites the whole file durably. Idempotent: an empty
// pending buffer is a no-op. IO failures are sink-local: logged, never
// propagated into the run.
func (w *JSONWriter) trigger() {
	if len(w.pending) == 0 {
		return
	}

	stat := make(map[string]any, len(w.pending)+2)
	for k, v := range w.pending {
		stat[k] = v
	}
	if t := w.Trainer(); t != nil {
		stat["epoch_num"] = t.EpochNum()
		stat["global_step"] = t.GlobalStep()
	}

	w.stats = append(w.stats, stat)
	w.pending = make(map[string]float64)

	if err := w.persist(); err != nil {
		log.GetLoggerWithName("monitors.json_writer").Error("flushing stat history failed",
			log.ErrAttr(err),
			log.PathKey, w.fname,
		)
	}
}

// persist rewrites the full history via temp-file plus atomic rename, so the
// live file never holds a partial write.
func (w *JSONWriter) persist() error {
	data, err := json.Marshal(w.stats)
	if err != nil {
		return errors.NewSinkWriteError("JSONWriter", "marshal", err)
	}
	tmp := w.fname + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.NewSinkWriteError("JSONWriter", "write", err)
	}
	if err := os.Rename(tmp, w.fname); err != nil {
		return errors.NewSinkWriteError("JSONWriter", "rename", err)
	}
	return nil
}
