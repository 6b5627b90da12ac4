package monitors

import (
	"path/filepath"
	"testing"

	"github.com/YuminosukeSato/trainkit/core/metric"
	"github.com/YuminosukeSato/trainkit/train"
)

func TestEventWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writer := NewEventWriter(dir)

	trainer := train.New(noopStep, train.Options{NumEpochs: 1})
	err := trainer.Run(makeBatches(2),
		train.NewMonitorGroup(writer),
		&emitScalars{name: "loss"},
	)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	events, err := ReadEvents(filepath.Join(dir, EventFileName))
	if err != nil {
		t.Fatalf("ReadEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("decoded %d events, want 2", len(events))
	}
	for i, e := range events {
		if e.Kind != train.EventScalar {
			t.Errorf("event %d kind = %q, want scalar", i, e.Kind)
		}
		if e.Name != "loss" {
			t.Errorf("event %d name = %q, want loss", i, e.Name)
		}
		if e.Step != i+1 || e.Value != float64(i+1) {
			t.Errorf("event %d = step %d value %v, want step %d value %d", i, e.Step, e.Value, i+1, i+1)
		}
		if e.WallTime.IsZero() {
			t.Errorf("event %d has no wall time", i)
		}
	}
}

func TestEventWriterAppendsAcrossRuns(t *testing.T) {
	dir := t.TempDir()

	for run := 0; run < 2; run++ {
		trainer := train.New(noopStep, train.Options{NumEpochs: 1})
		err := trainer.Run(makeBatches(1),
			train.NewMonitorGroup(NewEventWriter(dir)),
			&emitScalars{name: "loss"},
		)
		if err != nil {
			t.Fatalf("run %d failed: %v", run, err)
		}
	}

	// Both runs' records decode: the second run opened the file in append
	// mode and wrote its own frames after the first run's.
	events, err := ReadEvents(filepath.Join(dir, EventFileName))
	if err != nil {
		t.Fatalf("ReadEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("decoded %d events after two runs, want 2", len(events))
	}
	for i, e := range events {
		if e.Kind != train.EventScalar || e.Name != "loss" || e.Step != 1 {
			t.Errorf("event %d = %+v, want scalar loss at step 1", i, e)
		}
	}
}

func TestEventWriterImageAndRawEvents(t *testing.T) {
	dir := t.TempDir()
	writer := NewEventWriter(dir)
	writer.SetTrainer(train.New(noopStep, train.Options{}))

	if err := writer.BeforeTrain(); err != nil {
		t.Fatalf("BeforeTrain failed: %v", err)
	}
	img, err := metric.NewTensor([]int{1, 2, 2, 1}, []float64{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("NewTensor failed: %v", err)
	}
	if err := writer.AddImage("sample", img); err != nil {
		t.Fatalf("AddImage failed: %v", err)
	}
	if err := writer.AddEvent(train.Event{Kind: "custom", Name: "note", Value: 7}); err != nil {
		t.Fatalf("AddEvent failed: %v", err)
	}
	if err := writer.AfterTrain(); err != nil {
		t.Fatalf("AfterTrain failed: %v", err)
	}

	events, err := ReadEvents(filepath.Join(dir, EventFileName))
	if err != nil {
		t.Fatalf("ReadEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("decoded %d events, want 2", len(events))
	}
	if events[0].Kind != train.EventImage || len(events[0].Data) != 4 {
		t.Errorf("image event = %+v, want 4 data points", events[0])
	}
	if events[1].Kind != "custom" || events[1].Value != 7 {
		t.Errorf("raw event = %+v, want custom kind with value 7", events[1])
	}
}

func TestEventWriterClosedSinkRejectsWrites(t *testing.T) {
	writer := NewEventWriter(t.TempDir())
	// Never opened: writes must fail locally instead of panicking.
	if err := writer.AddScalar("loss", 1); err == nil {
		t.Error("write to an unopened sink should fail")
	}
	if err := writer.AfterTrain(); err != nil {
		t.Errorf("AfterTrain on an unopened sink should be a no-op, got: %v", err)
	}
}
