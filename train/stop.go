package train

import (
	"fmt"

	"github.com/YuminosukeSato/trainkit/pkg/errors"
)

// StopTraining is the control signal a callback raises to terminate the run
// before its epoch budget is exhausted. It travels through the error return
// of a hook but is not an error condition: the trainer catches it exactly
// once at the top of the loop, logs the originator, and proceeds straight to
// the after-train hooks.
type StopTraining struct {
	Reason string
	// Callback records the concrete type name of the callback that raised
	// the signal. Filled in by the dispatching group.
	Callback string
}

func (s *StopTraining) Error() string {
	if s.Callback != "" {
		return fmt.Sprintf("training stopped by %s: %s", s.Callback, s.Reason)
	}
	return fmt.Sprintf("training stopped: %s", s.Reason)
}

// Stop creates a stop signal with the given reason. Return it from any hook
// to end the run gracefully.
func Stop(reason string) error {
	return &StopTraining{Reason: reason}
}

// IsStop reports whether err carries a StopTraining signal.
func IsStop(err error) bool {
	var stop *StopTraining
	return errors.As(err, &stop)
}
