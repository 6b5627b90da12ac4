package train

import (
	"iter"
	"time"

	"github.com/YuminosukeSato/trainkit/pkg/errors"
	"github.com/YuminosukeSato/trainkit/pkg/log"
)

// Batch is the opaque input record pulled from a data source and handed to
// the step function. The trainer never inspects its contents.
type Batch map[string]any

// Output is the opaque record returned by the step function and handed to
// the after-step hooks.
type Output map[string]any

// StepFunc is the external computation executed once per step.
type StepFunc func(batch Batch) (Output, error)

// DataSource supplies the batches of one epoch. Len is the number of steps
// per epoch; the epoch number is forwarded to Batches so epoch-aware
// samplers can reshuffle.
type DataSource interface {
	Len() int
	Batches(epoch int) iter.Seq[Batch]
}

// SliceSource is a DataSource over a fixed slice of batches, yielded in
// order every epoch. Mostly useful for tests and examples.
type SliceSource []Batch

func (s SliceSource) Len() int { return len(s) }

func (s SliceSource) Batches(epoch int) iter.Seq[Batch] {
	return func(yield func(Batch) bool) {
		for _, b := range s {
			if !yield(b) {
				return
			}
		}
	}
}

// Options configure a trainer. Zero values are replaced with defaults by New.
type Options struct {
	// NumEpochs is the epoch budget of the run. Defaults to 1.
	NumEpochs int

	// EvalInterval gates the epoch-level trigger hook: it fires only on
	// epochs divisible by this interval. Zero or negative means every
	// epoch. The before/after epoch hooks always fire.
	EvalInterval int
}

// Trainer is the state machine driving the training loop. It owns the run
// counters exclusively and is the only component that fires lifecycle hooks.
type Trainer struct {
	step StepFunc
	opts Options

	callbacks *CallbackGroup
	monitors  *MonitorGroup

	epochNum      int
	globalStep    int
	localStep     int
	stepsPerEpoch int

	running  bool
	started  bool // true once the first step has begun; restore is rejected after
	restored bool

	pendingStates map[string]map[string]any

	logger log.Logger
}

// New creates a trainer around the given step function.
func New(step StepFunc, opts Options) *Trainer {
	if opts.NumEpochs <= 0 {
		opts.NumEpochs = 1
	}
	return &Trainer{
		step:   step,
		opts:   opts,
		logger: log.GetLoggerWithName("train.trainer"),
	}
}

// Counter accessors. Valid for reading at any hook point; callbacks must use
// these rather than holding references to sibling callbacks.

// EpochNum returns the current epoch number (1-based; 0 before the first
// epoch starts).
func (t *Trainer) EpochNum() int { return t.epochNum }

// GlobalStep returns the step counter across all epochs.
func (t *Trainer) GlobalStep() int { return t.globalStep }

// LocalStep returns the step counter within the current epoch (1-based; 0 at
// epoch start).
func (t *Trainer) LocalStep() int { return t.localStep }

// StepsPerEpoch returns the declared number of steps per epoch.
func (t *Trainer) StepsPerEpoch() int { return t.stepsPerEpoch }

// NumEpochs returns the epoch budget of the run.
func (t *Trainer) NumEpochs() int { return t.opts.NumEpochs }

// StartingEpoch returns the epoch the run begins (or resumes) from.
func (t *Trainer) StartingEpoch() int { return t.epochNum + 1 }

// LastStepOfEpoch reports whether the current step is the epoch's final one.
// Step-triggered sinks use this to defer their flush to the epoch-level
// trigger and avoid double-counting the boundary step.
func (t *Trainer) LastStepOfEpoch() bool {
	return t.stepsPerEpoch > 0 && t.localStep == t.stepsPerEpoch
}

// Monitors returns the run's monitor hub. Callbacks report telemetry through
// it; it is non-nil from the moment Run assembles the callback chain.
func (t *Trainer) Monitors() *MonitorGroup { return t.monitors }

// Run executes the training loop: for each epoch, pull every batch from the
// data source, invoke the step function, and fire the lifecycle hooks on all
// callbacks in their declared order.
//
// The first *MonitorGroup among the callbacks becomes the trainer's monitor
// hub; if none is supplied an empty hub is appended so Monitors() is always
// usable. The after-train hook is delivered to every callback on every exit
// path: normal completion, early stop, or a failing hook/step.
func (t *Trainer) Run(data DataSource, callbacks ...Callback) (retErr error) {
	if t.step == nil {
		return errors.New("train: trainer has no step function")
	}
	if t.running {
		return errors.New("train: run already in progress")
	}

	for _, cb := range callbacks {
		if g, ok := cb.(*MonitorGroup); ok {
			t.monitors = g
			break
		}
	}
	if t.monitors == nil {
		t.monitors = NewMonitorGroup()
		callbacks = append(callbacks, t.monitors)
	}
	t.callbacks = NewCallbackGroup(callbacks...)
	t.callbacks.SetTrainer(t)

	if t.pendingStates != nil {
		if err := t.callbacks.LoadStateDict(t.pendingStates); err != nil {
			return err
		}
		t.pendingStates = nil
	}

	t.stepsPerEpoch = data.Len()
	t.running = true

	if t.restored {
		t.logger.Info("resuming from restored state",
			log.StartingEpochKey, t.StartingEpoch(),
			log.GlobalStepKey, t.globalStep,
		)
	}

	trainStart := time.Now()
	defer func() {
		// After-train delivery is unconditional; each callback's hook is
		// best-effort inside the group.
		t.callbacks.AfterTrain()
		t.running = false
	}()

	err := t.loop(data)
	if err != nil {
		var stop *StopTraining
		if errors.As(err, &stop) {
			t.logger.Info("training stopped early",
				log.CallbackKey, stop.Callback,
				log.StopReasonKey, stop.Reason,
				log.EpochKey, t.epochNum,
				log.GlobalStepKey, t.globalStep,
			)
			return nil
		}
		return err
	}

	t.logger.Info("training finished",
		log.NumEpochsKey, t.opts.NumEpochs,
		log.GlobalStepKey, t.globalStep,
		log.DurationSecondsKey, time.Since(trainStart).Seconds(),
	)
	return nil
}

func (t *Trainer) loop(data DataSource) error {
	if err := t.callbacks.BeforeTrain(); err != nil {
		return err
	}

	for t.epochNum < t.opts.NumEpochs {
		t.epochNum++
		t.localStep = 0

		t.logger.Info("epoch started",
			log.EpochKey, t.epochNum,
			log.NumEpochsKey, t.opts.NumEpochs,
		)
		epochStart := time.Now()

		if err := t.callbacks.BeforeEpoch(); err != nil {
			return err
		}

		for batch := range data.Batches(t.epochNum) {
			t.localStep++
			t.globalStep++
			t.started = true

			if err := t.callbacks.BeforeStep(batch); err != nil {
				return err
			}
			output, err := t.step(batch)
			if err != nil {
				return errors.Wrapf(err, "run_step at epoch %d step %d", t.epochNum, t.globalStep)
			}
			if err := t.callbacks.AfterStep(output); err != nil {
				return err
			}
			if err := t.callbacks.TriggerStep(); err != nil {
				return err
			}
		}

		if err := t.callbacks.AfterEpoch(); err != nil {
			return err
		}
		if t.opts.EvalInterval <= 0 || t.epochNum%t.opts.EvalInterval == 0 {
			if err := t.callbacks.TriggerEpoch(); err != nil {
				return err
			}
		}

		t.logger.Info("epoch finished",
			log.EpochKey, t.epochNum,
			log.DurationSecondsKey, time.Since(epochStart).Seconds(),
		)
	}
	return nil
}
