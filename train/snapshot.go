package train

import (
	"github.com/YuminosukeSato/trainkit/pkg/errors"
)

// Checkpoint is the serialized run state: the trainer's counters plus each
// stateful callback's opaque sub-state keyed by its stable name. It is
// sufficient to resume stepping from the same point.
type Checkpoint struct {
	EpochNum   int                       `json:"epoch_num"`
	LocalStep  int                       `json:"local_step"`
	GlobalStep int                       `json:"global_step"`
	Callbacks  map[string]map[string]any `json:"callbacks"`
}

// Snapshot captures the current run state. Callable at any point; during a
// run it reflects the counters as of the calling hook.
func (t *Trainer) Snapshot() (*Checkpoint, error) {
	cp := &Checkpoint{
		EpochNum:   t.epochNum,
		LocalStep:  t.localStep,
		GlobalStep: t.globalStep,
		Callbacks:  map[string]map[string]any{},
	}
	if t.callbacks != nil {
		states, err := t.callbacks.StateDict()
		if err != nil {
			return nil, err
		}
		cp.Callbacks = states
	}
	return cp, nil
}

// Restore loads a checkpoint taken by Snapshot. It must be called before Run
// begins stepping: restoring mid-run is undefined and rejected. Callback
// sub-states are applied when Run assembles the callback chain.
func (t *Trainer) Restore(cp *Checkpoint) error {
	if cp == nil {
		return errors.ErrEmptyCheckpoint
	}
	if t.running || t.started {
		return errors.NewRestoreAfterRunError(t.epochNum, t.globalStep)
	}

	t.epochNum = cp.EpochNum
	t.localStep = cp.LocalStep
	t.globalStep = cp.GlobalStep
	t.restored = true

	if len(cp.Callbacks) > 0 {
		t.pendingStates = cp.Callbacks
	}
	return nil
}
