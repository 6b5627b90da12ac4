package train

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/trainkit/core/metric"
	"github.com/YuminosukeSato/trainkit/pkg/errors"
)

// sinkProbe records everything forwarded to it and can be armed to fail.
type sinkProbe struct {
	BaseMonitor
	scalars []ScalarRecord
	images  []*metric.Tensor
	events  []Event
	fail    error
}

func (p *sinkProbe) AddScalar(name string, value float64) error {
	if p.fail != nil {
		return p.fail
	}
	p.scalars = append(p.scalars, ScalarRecord{Value: value})
	return nil
}

func (p *sinkProbe) AddImage(name string, img *metric.Tensor) error {
	if p.fail != nil {
		return p.fail
	}
	p.images = append(p.images, img)
	return nil
}

func (p *sinkProbe) AddEvent(e Event) error {
	if p.fail != nil {
		return p.fail
	}
	p.events = append(p.events, e)
	return nil
}

func TestAddScalarCoercesAndCaches(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  float64
	}{
		{"float64", 0.25, 0.25},
		{"float32", float32(2), 2},
		{"int", 7, 7},
		{"int64", int64(-3), -3},
		{"uint8", uint8(255), 255},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewMonitorGroup()
			if err := g.AddScalar("m", tt.value); err != nil {
				t.Fatalf("AddScalar(%v) failed: %v", tt.value, err)
			}
			got, err := g.GetLatest("m")
			if err != nil {
				t.Fatalf("GetLatest failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("GetLatest = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAddScalarRejectsNonNumeric(t *testing.T) {
	g := NewMonitorGroup()
	err := g.AddScalar("m", "not a number")
	if err == nil {
		t.Fatal("AddScalar with a string should fail")
	}
	var typeErr *errors.InvalidMetricTypeError
	if !errors.As(err, &typeErr) {
		t.Errorf("error = %v, want InvalidMetricTypeError", err)
	}
	// The rejected value must not have touched the cache.
	if _, err := g.GetLatest("m"); err == nil {
		t.Error("rejected value should not be cached")
	}
}

func TestCacheWrittenBeforeFanOutFailure(t *testing.T) {
	broken := &sinkProbe{fail: errors.New("sink down")}
	healthy := &sinkProbe{}
	g := NewMonitorGroup(broken, healthy)

	if err := g.AddScalar("loss", 0.5); err != nil {
		t.Fatalf("AddScalar should tolerate member failure, got: %v", err)
	}

	if got, err := g.GetLatest("loss"); err != nil || got != 0.5 {
		t.Errorf("cache read = (%v, %v), want (0.5, nil)", got, err)
	}
	if len(healthy.scalars) != 1 {
		t.Errorf("healthy sink received %d scalars, want 1", len(healthy.scalars))
	}
}

func TestGetHistoryOrderAndIsolation(t *testing.T) {
	g := NewMonitorGroup()
	for _, v := range []float64{3, 2, 1} {
		if err := g.AddScalar("loss", v); err != nil {
			t.Fatalf("AddScalar failed: %v", err)
		}
	}

	history, err := g.GetHistory("loss")
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	for i, want := range []float64{3, 2, 1} {
		if history[i].Value != want {
			t.Errorf("history[%d].Value = %v, want %v", i, history[i].Value, want)
		}
	}

	// Mutating the returned slice must not corrupt the cache.
	history[0].Value = math.NaN()
	fresh, _ := g.GetHistory("loss")
	if fresh[0].Value != 3 {
		t.Error("GetHistory should return a copy")
	}
}

func TestGetUnknownMetric(t *testing.T) {
	g := NewMonitorGroup()
	if _, err := g.GetLatest("nope"); err == nil {
		t.Error("GetLatest of an unknown metric should fail")
	}
	_, err := g.GetHistory("nope")
	var unknown *errors.UnknownMetricError
	if !errors.As(err, &unknown) {
		t.Errorf("GetHistory error = %v, want UnknownMetricError", err)
	}
}

func TestAddImageNormalizesBeforeFanOut(t *testing.T) {
	probe := &sinkProbe{}
	g := NewMonitorGroup(probe)

	hwc, err := metric.NewTensor([]int{4, 6, 3}, nil)
	if err != nil {
		t.Fatalf("NewTensor failed: %v", err)
	}
	if err := g.AddImage("img", hwc); err != nil {
		t.Fatalf("AddImage failed: %v", err)
	}

	dense := mat.NewDense(2, 5, nil)
	if err := g.AddImage("gray", dense); err != nil {
		t.Fatalf("AddImage(mat.Matrix) failed: %v", err)
	}

	if len(probe.images) != 2 {
		t.Fatalf("sink received %d images, want 2", len(probe.images))
	}
	wantShapes := [][]int{{1, 4, 6, 3}, {1, 2, 5, 1}}
	for i, want := range wantShapes {
		got := probe.images[i].Shape
		if len(got) != 4 {
			t.Fatalf("image %d rank = %d, want 4", i, len(got))
		}
		for d := range want {
			if got[d] != want[d] {
				t.Errorf("image %d shape = %v, want %v", i, got, want)
			}
		}
	}
}

func TestAddImageRejectsUnsupportedType(t *testing.T) {
	g := NewMonitorGroup()
	if err := g.AddImage("img", []float64{1, 2, 3}); err == nil {
		t.Error("AddImage with a plain slice should fail")
	}
}

func TestAddEventStampsDefaults(t *testing.T) {
	probe := &sinkProbe{}
	g := NewMonitorGroup(probe)

	if err := g.AddEvent(Event{Kind: EventScalar, Name: "e", Value: 1}); err != nil {
		t.Fatalf("AddEvent failed: %v", err)
	}
	if len(probe.events) != 1 {
		t.Fatalf("sink received %d events, want 1", len(probe.events))
	}
	if probe.events[0].WallTime.IsZero() {
		t.Error("AddEvent should stamp a wall time")
	}
}

func TestHistoryStats(t *testing.T) {
	g := NewMonitorGroup()
	for _, v := range []float64{1, 2, 3, 4} {
		if err := g.AddScalar("acc", v); err != nil {
			t.Fatalf("AddScalar failed: %v", err)
		}
	}
	mean, stddev, err := g.HistoryStats("acc")
	if err != nil {
		t.Fatalf("HistoryStats failed: %v", err)
	}
	if mean != 2.5 {
		t.Errorf("mean = %v, want 2.5", mean)
	}
	if math.Abs(stddev-1.2909944487358056) > 1e-12 {
		t.Errorf("stddev = %v, want ~1.29099", stddev)
	}
}

func TestMonitorGroupAfterTrainBestEffort(t *testing.T) {
	failing := &failAfterTrainMonitor{}
	witness := &sinkProbe{}
	g := NewMonitorGroup(failing, witness)

	if err := g.AfterTrain(); err != nil {
		t.Errorf("AfterTrain should swallow member failures, got: %v", err)
	}
}

type failAfterTrainMonitor struct{ BaseMonitor }

func (m *failAfterTrainMonitor) AfterTrain() error { return errors.New("close failed") }
