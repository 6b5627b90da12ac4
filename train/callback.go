// Package train drives the epoch/step lifecycle of a training run and fans
// lifecycle hooks out to registered callbacks and monitors.
//
// The trainer owns the run counters and the dispatch order; callbacks own
// their private buffers and communicate only through the trainer's read
// accessors and the monitor hub. Dispatch is strictly sequential, so ordering
// is the only discipline callbacks need.
package train

import (
	"fmt"

	"github.com/YuminosukeSato/trainkit/pkg/errors"
	"github.com/YuminosukeSato/trainkit/pkg/log"
)

// Callback is a lifecycle participant of a training run. Every hook is
// invoked by the trainer in the callback's declared position; returning an
// error aborts the run (after-train delivery is still guaranteed), and
// returning a StopTraining signal ends the run gracefully.
type Callback interface {
	// SetTrainer attaches the owning trainer before any hook fires.
	SetTrainer(t *Trainer)

	BeforeTrain() error
	BeforeEpoch() error
	BeforeStep(batch Batch) error
	AfterStep(output Output) error
	TriggerStep() error
	AfterEpoch() error
	TriggerEpoch() error
	AfterTrain() error
}

// Stateful is the optional capability for callbacks whose state belongs in a
// checkpoint. Name must be stable across runs; it keys the callback's
// sub-state inside the snapshot payload.
type Stateful interface {
	Name() string
	StateDict() (map[string]any, error)
	LoadStateDict(state map[string]any) error
}

// Base provides no-op defaults for every Callback hook. Embed it and
// override only the hooks you need.
type Base struct {
	trainer *Trainer
}

// SetTrainer implements Callback.SetTrainer.
func (b *Base) SetTrainer(t *Trainer) { b.trainer = t }

// Trainer returns the trainer this callback is attached to. Nil until the
// run starts.
func (b *Base) Trainer() *Trainer { return b.trainer }

func (b *Base) BeforeTrain() error            { return nil }
func (b *Base) BeforeEpoch() error            { return nil }
func (b *Base) BeforeStep(batch Batch) error  { return nil }
func (b *Base) AfterStep(output Output) error { return nil }
func (b *Base) TriggerStep() error            { return nil }
func (b *Base) AfterEpoch() error             { return nil }
func (b *Base) TriggerEpoch() error           { return nil }
func (b *Base) AfterTrain() error             { return nil }

// CallbackGroup broadcasts every hook to its members in the fixed order they
// were registered. Sequential dispatch is part of the contract: a later
// callback may read buffer state an earlier one wrote during the same hook.
type CallbackGroup struct {
	members []Callback
}

// NewCallbackGroup creates a group over the given callbacks. The order is
// fixed for the group's lifetime.
func NewCallbackGroup(callbacks ...Callback) *CallbackGroup {
	return &CallbackGroup{members: callbacks}
}

// Members returns the callbacks in dispatch order.
func (g *CallbackGroup) Members() []Callback {
	return g.members
}

// SetTrainer implements Callback.SetTrainer.
func (g *CallbackGroup) SetTrainer(t *Trainer) {
	for _, cb := range g.members {
		cb.SetTrainer(t)
	}
}

// dispatch invokes fn on every member in order. The first failure stops the
// sweep and propagates; a StopTraining signal is annotated with the
// originating callback's type name on its way out.
func (g *CallbackGroup) dispatch(hook string, fn func(Callback) error) error {
	for _, cb := range g.members {
		if err := fn(cb); err != nil {
			var stop *StopTraining
			if errors.As(err, &stop) {
				if stop.Callback == "" {
					stop.Callback = fmt.Sprintf("%T", cb)
				}
				return err
			}
			return errors.Wrapf(err, "%s hook of %T", hook, cb)
		}
	}
	return nil
}

func (g *CallbackGroup) BeforeTrain() error {
	return g.dispatch("before_train", func(cb Callback) error { return cb.BeforeTrain() })
}

func (g *CallbackGroup) BeforeEpoch() error {
	return g.dispatch("before_epoch", func(cb Callback) error { return cb.BeforeEpoch() })
}

func (g *CallbackGroup) BeforeStep(batch Batch) error {
	return g.dispatch("before_step", func(cb Callback) error { return cb.BeforeStep(batch) })
}

func (g *CallbackGroup) AfterStep(output Output) error {
	return g.dispatch("after_step", func(cb Callback) error { return cb.AfterStep(output) })
}

func (g *CallbackGroup) TriggerStep() error {
	return g.dispatch("trigger_step", func(cb Callback) error { return cb.TriggerStep() })
}

func (g *CallbackGroup) AfterEpoch() error {
	return g.dispatch("after_epoch", func(cb Callback) error { return cb.AfterEpoch() })
}

func (g *CallbackGroup) TriggerEpoch() error {
	return g.dispatch("trigger_epoch", func(cb Callback) error { return cb.TriggerEpoch() })
}

// AfterTrain delivers the after-train hook to every member regardless of
// earlier failures. Each member's hook is best-effort: a failure is logged
// with the offending callback's type name and does not block the rest.
func (g *CallbackGroup) AfterTrain() error {
	logger := log.GetLoggerWithName("train.callbacks")
	for _, cb := range g.members {
		if err := cb.AfterTrain(); err != nil {
			logger.Error("after_train hook failed",
				log.ErrAttr(err),
				log.HookKey, "after_train",
				log.CallbackKey, fmt.Sprintf("%T", cb),
			)
		}
	}
	return nil
}

// StateDict collects the serialized sub-state of every Stateful member,
// keyed by its stable name.
func (g *CallbackGroup) StateDict() (map[string]map[string]any, error) {
	states := make(map[string]map[string]any)
	for _, cb := range g.members {
		s, ok := cb.(Stateful)
		if !ok {
			continue
		}
		state, err := s.StateDict()
		if err != nil {
			return nil, errors.Wrapf(err, "state of %T", cb)
		}
		if _, dup := states[s.Name()]; dup {
			return nil, errors.Newf("duplicate stateful callback name %q", s.Name())
		}
		states[s.Name()] = state
	}
	return states, nil
}

// LoadStateDict restores each Stateful member's sub-state from a snapshot.
// Members absent from the snapshot keep their fresh state; snapshot entries
// with no matching member are tolerated with a warning.
func (g *CallbackGroup) LoadStateDict(states map[string]map[string]any) error {
	logger := log.GetLoggerWithName("train.callbacks")
	seen := make(map[string]bool, len(states))
	for _, cb := range g.members {
		s, ok := cb.(Stateful)
		if !ok {
			continue
		}
		state, found := states[s.Name()]
		if !found {
			continue
		}
		seen[s.Name()] = true
		if err := s.LoadStateDict(state); err != nil {
			return errors.Wrapf(err, "restoring state of %T", cb)
		}
	}
	for name := range states {
		if !seen[name] {
			logger.Warn("checkpoint contains state for an unregistered callback",
				log.CallbackKey, name,
			)
		}
	}
	return nil
}
