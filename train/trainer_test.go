package train

import (
	"fmt"
	"testing"

	"github.com/YuminosukeSato/trainkit/pkg/errors"
)

// recorder appends every hook invocation to a shared trace, tagged with its
// own name, so tests can assert the exact dispatch order.
type recorder struct {
	Base
	name  string
	trace *[]string
}

func (r *recorder) record(hook string) {
	*r.trace = append(*r.trace, r.name+":"+hook)
}

func (r *recorder) BeforeTrain() error           { r.record("before_train"); return nil }
func (r *recorder) BeforeEpoch() error           { r.record("before_epoch"); return nil }
func (r *recorder) BeforeStep(batch Batch) error { r.record("before_step"); return nil }
func (r *recorder) AfterStep(output Output) error {
	r.record("after_step")
	return nil
}
func (r *recorder) TriggerStep() error  { r.record("trigger_step"); return nil }
func (r *recorder) AfterEpoch() error   { r.record("after_epoch"); return nil }
func (r *recorder) TriggerEpoch() error { r.record("trigger_epoch"); return nil }
func (r *recorder) AfterTrain() error   { r.record("after_train"); return nil }

func makeBatches(n int) SliceSource {
	src := make(SliceSource, n)
	for i := range src {
		src[i] = Batch{"index": i}
	}
	return src
}

func noopStep(batch Batch) (Output, error) {
	return Output{}, nil
}

func TestRunHookOrder(t *testing.T) {
	var trace []string
	a := &recorder{name: "A", trace: &trace}
	b := &recorder{name: "B", trace: &trace}

	trainer := New(noopStep, Options{NumEpochs: 2})
	if err := trainer.Run(makeBatches(2), a, b); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var want []string
	hook := func(name string) {
		want = append(want, "A:"+name, "B:"+name)
	}
	hook("before_train")
	for epoch := 0; epoch < 2; epoch++ {
		hook("before_epoch")
		for step := 0; step < 2; step++ {
			hook("before_step")
			hook("after_step")
			hook("trigger_step")
		}
		hook("after_epoch")
		hook("trigger_epoch")
	}
	hook("after_train")

	if len(trace) != len(want) {
		t.Fatalf("trace length = %d, want %d\ntrace: %v", len(trace), len(want), trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace[%d] = %q, want %q\ntrace: %v", i, trace[i], want[i], trace)
		}
	}
}

func TestRunCounters(t *testing.T) {
	type snapshot struct {
		epoch, local, global int
	}
	var seen []snapshot

	trainer := New(noopStep, Options{NumEpochs: 3})

	probe := &hookFunc{onTriggerStep: func(tr *Trainer) error {
		seen = append(seen, snapshot{tr.EpochNum(), tr.LocalStep(), tr.GlobalStep()})
		return nil
	}}

	if err := trainer.Run(makeBatches(2), probe); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []snapshot{
		{1, 1, 1}, {1, 2, 2},
		{2, 1, 3}, {2, 2, 4},
		{3, 1, 5}, {3, 2, 6},
	}
	if len(seen) != len(want) {
		t.Fatalf("got %d trigger_step calls, want %d", len(seen), len(want))
	}
	for i, w := range want {
		if seen[i] != w {
			t.Errorf("step %d counters = %+v, want %+v", i, seen[i], w)
		}
	}

	if trainer.GlobalStep() != 6 {
		t.Errorf("final GlobalStep = %d, want 6", trainer.GlobalStep())
	}
	if trainer.EpochNum() != 3 {
		t.Errorf("final EpochNum = %d, want 3", trainer.EpochNum())
	}
}

// hookFunc adapts closures into a Callback for concise tests.
type hookFunc struct {
	Base
	onBeforeEpoch  func(tr *Trainer) error
	onAfterStep    func(tr *Trainer, out Output) error
	onTriggerStep  func(tr *Trainer) error
	onTriggerEpoch func(tr *Trainer) error
	onAfterTrain   func(tr *Trainer) error
}

func (h *hookFunc) BeforeEpoch() error {
	if h.onBeforeEpoch != nil {
		return h.onBeforeEpoch(h.Trainer())
	}
	return nil
}

func (h *hookFunc) AfterStep(out Output) error {
	if h.onAfterStep != nil {
		return h.onAfterStep(h.Trainer(), out)
	}
	return nil
}

func (h *hookFunc) TriggerStep() error {
	if h.onTriggerStep != nil {
		return h.onTriggerStep(h.Trainer())
	}
	return nil
}

func (h *hookFunc) TriggerEpoch() error {
	if h.onTriggerEpoch != nil {
		return h.onTriggerEpoch(h.Trainer())
	}
	return nil
}

func (h *hookFunc) AfterTrain() error {
	if h.onAfterTrain != nil {
		return h.onAfterTrain(h.Trainer())
	}
	return nil
}

func TestEvalIntervalGatesTriggerEpochOnly(t *testing.T) {
	var triggered []int
	var epochs []int

	trainer := New(noopStep, Options{NumEpochs: 5, EvalInterval: 2})
	probe := &hookFunc{
		onBeforeEpoch: func(tr *Trainer) error {
			epochs = append(epochs, tr.EpochNum())
			return nil
		},
		onTriggerEpoch: func(tr *Trainer) error {
			triggered = append(triggered, tr.EpochNum())
			return nil
		},
	}

	if err := trainer.Run(makeBatches(1), probe); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(epochs) != 5 {
		t.Errorf("before_epoch fired %d times, want 5 (hooks are not gated)", len(epochs))
	}
	if len(triggered) != 2 || triggered[0] != 2 || triggered[1] != 4 {
		t.Errorf("trigger_epoch fired at epochs %v, want [2 4]", triggered)
	}
}

func TestEarlyStopSkipsRemainingWork(t *testing.T) {
	var stepsRun int
	afterTrainCalls := map[string]int{}

	step := func(batch Batch) (Output, error) {
		stepsRun++
		return Output{}, nil
	}

	stopper := &hookFunc{
		onAfterStep: func(tr *Trainer, out Output) error {
			if tr.EpochNum() == 2 && tr.LocalStep() == 3 {
				return Stop("test stop")
			}
			return nil
		},
		onAfterTrain: func(tr *Trainer) error {
			afterTrainCalls["stopper"]++
			return nil
		},
	}
	witness := &hookFunc{
		onAfterTrain: func(tr *Trainer) error {
			afterTrainCalls["witness"]++
			return nil
		},
	}

	trainer := New(step, Options{NumEpochs: 10})
	if err := trainer.Run(makeBatches(5), stopper, witness); err != nil {
		t.Fatalf("Run returned error on early stop: %v", err)
	}

	// Epoch 1 ran all 5 steps, epoch 2 stopped after step 3.
	if stepsRun != 8 {
		t.Errorf("stepsRun = %d, want 8", stepsRun)
	}
	if trainer.EpochNum() != 2 || trainer.LocalStep() != 3 {
		t.Errorf("stop position = epoch %d step %d, want epoch 2 step 3",
			trainer.EpochNum(), trainer.LocalStep())
	}
	for name, n := range afterTrainCalls {
		if n != 1 {
			t.Errorf("%s received %d after_train calls, want exactly 1", name, n)
		}
	}
}

func TestHookFailureStillDeliversAfterTrain(t *testing.T) {
	afterTrain := 0
	boom := errors.New("boom")

	failing := &hookFunc{
		onTriggerEpoch: func(tr *Trainer) error { return boom },
	}
	witness := &hookFunc{
		onAfterTrain: func(tr *Trainer) error {
			afterTrain++
			return nil
		},
	}

	trainer := New(noopStep, Options{NumEpochs: 2})
	err := trainer.Run(makeBatches(1), failing, witness)
	if err == nil {
		t.Fatal("Run should propagate the hook failure")
	}
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped boom", err)
	}
	if afterTrain != 1 {
		t.Errorf("after_train delivered %d times despite failure, want 1", afterTrain)
	}
}

func TestStepErrorPropagates(t *testing.T) {
	boom := errors.New("nan loss")
	step := func(batch Batch) (Output, error) {
		return nil, boom
	}

	afterTrain := 0
	witness := &hookFunc{
		onAfterTrain: func(tr *Trainer) error {
			afterTrain++
			return nil
		},
	}

	trainer := New(step, Options{NumEpochs: 1})
	err := trainer.Run(makeBatches(3), witness)
	if err == nil || !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want wrapped step error", err)
	}
	if afterTrain != 1 {
		t.Errorf("after_train delivered %d times, want 1", afterTrain)
	}
}

func TestRunWithoutMonitorGroupAppendsOne(t *testing.T) {
	trainer := New(noopStep, Options{NumEpochs: 1})
	probe := &hookFunc{
		onAfterStep: func(tr *Trainer, out Output) error {
			return tr.Monitors().AddScalar("loss", 0.5)
		},
	}
	if err := trainer.Run(makeBatches(2), probe); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	history, err := trainer.Monitors().GetHistory("loss")
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("history length = %d, want 2", len(history))
	}
}

func TestRunRejectsNilStep(t *testing.T) {
	trainer := New(nil, Options{NumEpochs: 1})
	if err := trainer.Run(makeBatches(1)); err == nil {
		t.Error("Run with nil step function should fail")
	}
}

func TestEmptyDataSourceStillFiresEpochHooks(t *testing.T) {
	var trace []string
	r := &recorder{name: "A", trace: &trace}

	trainer := New(noopStep, Options{NumEpochs: 1})
	if err := trainer.Run(makeBatches(0), r); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{"A:before_train", "A:before_epoch", "A:after_epoch", "A:trigger_epoch", "A:after_train"}
	if fmt.Sprint(trace) != fmt.Sprint(want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestStopSignalAnnotatedWithOriginator(t *testing.T) {
	err := Stop("enough")
	if !IsStop(err) {
		t.Fatal("Stop should produce a StopTraining signal")
	}

	g := NewCallbackGroup(&stopOnTrigger{})
	err = g.TriggerEpoch()
	var stop *StopTraining
	if !errors.As(err, &stop) {
		t.Fatalf("dispatch error = %v, want StopTraining", err)
	}
	if stop.Callback == "" {
		t.Error("StopTraining.Callback should name the originator")
	}
}

type stopOnTrigger struct{ Base }

func (s *stopOnTrigger) TriggerEpoch() error { return Stop("from test") }
