// Package log defines standard attribute keys for training-loop operations.
//
// This file contains predefined attribute keys that provide consistency across
// all logging operations in trainkit. Using these standard keys enables better
// log analysis, monitoring, and debugging of training runs.
//
// The attributes are organized into categories:
//   - Run and Hook Context
//   - Counter State
//   - Sink and Metric Context
//   - Performance Metrics
//   - Error Context
//
// These keys follow a hierarchical naming convention (e.g., "run.hook",
// "sink.name") to enable structured log analysis and filtering.
package log

// Run and Hook Context
// These attributes identify the lifecycle point and the component firing it.
const (
	// HookKey specifies the lifecycle hook being dispatched.
	// Standard values: "before_train", "before_epoch", "before_step",
	// "after_step", "trigger_step", "after_epoch", "trigger_epoch",
	// "after_train"
	HookKey = "run.hook"

	// ComponentKey identifies which component or package emitted the log.
	// Examples: "train.trainer", "monitors.json_writer"
	ComponentKey = "run.component"

	// CallbackKey identifies the callback involved in the log entry.
	// Populated with the callback's concrete type name.
	CallbackKey = "run.callback"

	// StopReasonKey records the reason attached to an early-stop signal.
	StopReasonKey = "run.stop_reason"
)

// Counter State
// These attributes capture the trainer's counters at the time of logging.
const (
	// EpochKey records the current epoch number (1-based).
	EpochKey = "counters.epoch_num"

	// NumEpochsKey records the total epoch budget of the run.
	NumEpochsKey = "counters.num_epochs"

	// GlobalStepKey records the step counter across all epochs.
	GlobalStepKey = "counters.global_step"

	// LocalStepKey records the step counter within the current epoch.
	LocalStepKey = "counters.local_step"

	// StepsPerEpochKey records the declared number of steps per epoch.
	StepsPerEpochKey = "counters.steps_per_epoch"

	// StartingEpochKey records the epoch a resumed run begins from.
	StartingEpochKey = "counters.starting_epoch"
)

// Sink and Metric Context
// These attributes describe telemetry sinks and the metrics flowing through them.
const (
	// SinkKey identifies a monitor sink by name.
	// Examples: "JSONWriter", "ScalarPrinter", "EventWriter"
	SinkKey = "sink.name"

	// MetricNameKey identifies the metric a log entry refers to.
	MetricNameKey = "metric.name"

	// MetricValueKey records the scalar value of a metric.
	MetricValueKey = "metric.value"

	// PathKey records the filesystem path a sink reads or writes.
	PathKey = "sink.path"
)

// Performance Metrics
// These attributes capture timing information for runs and epochs.
const (
	// DurationSecondsKey records the execution time in seconds.
	DurationSecondsKey = "perf.duration_seconds"

	// ETASecondsKey records the estimated remaining run time in seconds.
	ETASecondsKey = "perf.eta_seconds"
)

// Error Context
// These attributes provide additional context for error and warning messages.
const (
	// ErrorTypeKey categorizes the type of error encountered.
	// Examples: "SinkWriteError", "InvalidMetricTypeError"
	ErrorTypeKey = "error.type"
)
