package train

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/trainkit/core/metric"
	"github.com/YuminosukeSato/trainkit/pkg/errors"
	"github.com/YuminosukeSato/trainkit/pkg/log"
)

// Event is a raw record forwarded verbatim to every monitor. Kind
// distinguishes the payload: scalar events carry Value, image events carry
// Shape/Data, raw events carry whatever the producer stamped on them.
type Event struct {
	WallTime time.Time
	Step     int
	Kind     string
	Name     string
	Value    float64
	Shape    []int
	Data     []float64
}

// Event kinds produced by the monitor hub.
const (
	EventScalar = "scalar"
	EventImage  = "image"
)

// Monitor is an observer specialized in telemetry ingestion. It receives the
// full callback lifecycle plus normalized metric values: scalars arrive as
// float64, images as canonical rank-4 (N,H,W,C) tensors.
type Monitor interface {
	Callback
	AddScalar(name string, value float64) error
	AddImage(name string, img *metric.Tensor) error
	AddEvent(e Event) error
}

// BaseMonitor provides no-op defaults for every Monitor method.
// Embed it and override only what the sink consumes.
type BaseMonitor struct {
	Base
}

func (m *BaseMonitor) AddScalar(name string, value float64) error     { return nil }
func (m *BaseMonitor) AddImage(name string, img *metric.Tensor) error { return nil }
func (m *BaseMonitor) AddEvent(e Event) error                         { return nil }

// ScalarRecord is one cached time-series entry: the global step at which a
// value was recorded, and the value itself.
type ScalarRecord struct {
	Step  int
	Value float64
}

// MonitorGroup fans telemetry and lifecycle hooks out to its member monitors
// in fixed order, and retains an in-memory time series per metric name for
// query by other callbacks.
//
// The cache write always happens before the member fan-out, and a failure in
// one member's handler is logged and skipped, so partial sink failure can
// corrupt neither the cache nor the remaining sinks.
type MonitorGroup struct {
	Base
	monitors []Monitor
	scalars  map[string][]ScalarRecord
	logger   log.Logger
}

// NewMonitorGroup creates a monitor hub over the given member monitors. The
// order is fixed for the group's lifetime.
func NewMonitorGroup(monitors ...Monitor) *MonitorGroup {
	return &MonitorGroup{
		monitors: monitors,
		scalars:  make(map[string][]ScalarRecord),
		logger:   log.GetLoggerWithName("train.monitors"),
	}
}

// SetTrainer implements Callback.SetTrainer, forwarding to every member.
func (g *MonitorGroup) SetTrainer(t *Trainer) {
	g.Base.SetTrainer(t)
	for _, m := range g.monitors {
		m.SetTrainer(t)
	}
}

// forward runs fn on every member, logging and skipping failures so one
// sink cannot starve its siblings.
func (g *MonitorGroup) forward(op, name string, fn func(Monitor) error) {
	for _, m := range g.monitors {
		if err := fn(m); err != nil {
			g.logger.Error("monitor handler failed; continuing with remaining sinks",
				log.ErrAttr(err),
				log.SinkKey, fmt.Sprintf("%T", m),
				log.MetricNameKey, name,
				"op", op,
				log.GlobalStepKey, g.currentStep(),
			)
		}
	}
}

func (g *MonitorGroup) currentStep() int {
	if t := g.Trainer(); t != nil {
		return t.GlobalStep()
	}
	return 0
}

// AddScalar normalizes value to a float64, appends it to the group's own
// time-series cache under the current global step, then forwards it to every
// member monitor. A non-numeric value is a caller contract violation and
// fails the calling hook; member failures are logged and skipped.
func (g *MonitorGroup) AddScalar(name string, value interface{}) error {
	v, err := metric.Scalarize(name, value)
	if err != nil {
		return err
	}
	step := g.currentStep()
	g.scalars[name] = append(g.scalars[name], ScalarRecord{Step: step, Value: v})
	g.forward("add_scalar", name, func(m Monitor) error { return m.AddScalar(name, v) })
	return nil
}

// AddImage normalizes an image-like value into the canonical rank-4
// (N,H,W,C) tensor layout and forwards it to every member monitor.
// Accepted inputs are *metric.Tensor (rank 2-4) and gonum mat.Matrix
// (treated as a rank-2 grayscale image).
func (g *MonitorGroup) AddImage(name string, value interface{}) error {
	var t *metric.Tensor
	switch v := value.(type) {
	case *metric.Tensor:
		t = v
	case mat.Matrix:
		t = metric.FromMatrix(v)
	default:
		return errors.NewInvalidMetricTypeError(name, value)
	}
	img, err := metric.NormalizeImage(name, t)
	if err != nil {
		return err
	}
	g.forward("add_image", name, func(m Monitor) error { return m.AddImage(name, img) })
	return nil
}

// AddEvent forwards a raw event to every member monitor.
func (g *MonitorGroup) AddEvent(e Event) error {
	if e.WallTime.IsZero() {
		e.WallTime = time.Now()
	}
	if e.Step == 0 {
		e.Step = g.currentStep()
	}
	g.forward("add_event", e.Name, func(m Monitor) error { return m.AddEvent(e) })
	return nil
}

// GetLatest returns the most recently recorded value of a metric.
func (g *MonitorGroup) GetLatest(name string) (float64, error) {
	history, ok := g.scalars[name]
	if !ok || len(history) == 0 {
		return 0, errors.NewUnknownMetricError(name)
	}
	return history[len(history)-1].Value, nil
}

// GetHistory returns the full (step, value) history of a metric in
// increasing step order. The returned slice is a copy.
func (g *MonitorGroup) GetHistory(name string) ([]ScalarRecord, error) {
	history, ok := g.scalars[name]
	if !ok {
		return nil, errors.NewUnknownMetricError(name)
	}
	out := make([]ScalarRecord, len(history))
	copy(out, history)
	return out, nil
}

// Names returns every metric name with at least one recorded value.
func (g *MonitorGroup) Names() []string {
	names := make([]string, 0, len(g.scalars))
	for name := range g.scalars {
		names = append(names, name)
	}
	return names
}

// HistoryStats returns the mean and standard deviation over a metric's full
// history.
func (g *MonitorGroup) HistoryStats(name string) (mean, stddev float64, err error) {
	history, ok := g.scalars[name]
	if !ok || len(history) == 0 {
		return 0, 0, errors.NewUnknownMetricError(name)
	}
	values := make([]float64, len(history))
	for i, r := range history {
		values[i] = r.Value
	}
	mean, stddev = stat.MeanStdDev(values, nil)
	return mean, stddev, nil
}

// Lifecycle hooks forward to every member in order. Hook errors propagate
// (they are run failures, not sink-local write failures).

func (g *MonitorGroup) BeforeTrain() error {
	return g.hook("before_train", func(m Monitor) error { return m.BeforeTrain() })
}

func (g *MonitorGroup) BeforeEpoch() error {
	return g.hook("before_epoch", func(m Monitor) error { return m.BeforeEpoch() })
}

func (g *MonitorGroup) BeforeStep(batch Batch) error {
	return g.hook("before_step", func(m Monitor) error { return m.BeforeStep(batch) })
}

func (g *MonitorGroup) AfterStep(output Output) error {
	return g.hook("after_step", func(m Monitor) error { return m.AfterStep(output) })
}

func (g *MonitorGroup) TriggerStep() error {
	return g.hook("trigger_step", func(m Monitor) error { return m.TriggerStep() })
}

func (g *MonitorGroup) AfterEpoch() error {
	return g.hook("after_epoch", func(m Monitor) error { return m.AfterEpoch() })
}

func (g *MonitorGroup) TriggerEpoch() error {
	return g.hook("trigger_epoch", func(m Monitor) error { return m.TriggerEpoch() })
}

// AfterTrain is best-effort per member, mirroring CallbackGroup.AfterTrain.
func (g *MonitorGroup) AfterTrain() error {
	for _, m := range g.monitors {
		if err := m.AfterTrain(); err != nil {
			g.logger.Error("after_train hook failed",
				log.ErrAttr(err),
				log.HookKey, "after_train",
				log.SinkKey, fmt.Sprintf("%T", m),
			)
		}
	}
	return nil
}

func (g *MonitorGroup) hook(name string, fn func(Monitor) error) error {
	for _, m := range g.monitors {
		if err := fn(m); err != nil {
			var stop *StopTraining
			if errors.As(err, &stop) {
				if stop.Callback == "" {
					stop.Callback = fmt.Sprintf("%T", m)
				}
				return err
			}
			return errors.Wrapf(err, "%s hook of %T", name, m)
		}
	}
	return nil
}
