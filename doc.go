// Package trainkit provides a callback-driven training loop orchestrator
// for Go, designed for long-running optimization jobs that need structured
// telemetry, resumable checkpoints, and graceful early stopping.
//
// The trainer owns the epoch/step state machine; everything else plugs in
// as a callback. Monitors are callbacks specialized in telemetry: they
// receive normalized scalar and image values through a fan-out hub that
// also keeps an in-memory time series per metric for other callbacks to
// query.
//
// # Installation
//
// Install trainkit using go get:
//
//	go get github.com/YuminosukeSato/trainkit
//
// # Quick Start
//
// A minimal training run with console output and persisted stats:
//
//	package main
//
//	import (
//	    "log"
//
//	    "github.com/YuminosukeSato/trainkit/monitors"
//	    "github.com/YuminosukeSato/trainkit/train"
//	)
//
//	func main() {
//	    step := func(batch train.Batch) (train.Output, error) {
//	        loss := computeLoss(batch)
//	        return train.Output{"loss": loss}, nil
//	    }
//
//	    printer, err := monitors.NewScalarPrinter(monitors.ScalarPrinterOptions{})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    trainer := train.New(step, train.Options{NumEpochs: 10})
//	    err = trainer.Run(dataset,
//	        train.NewMonitorGroup(monitors.NewJSONWriter("runs/exp1"), printer),
//	        &reportLoss{},
//	    )
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Packages
//
// The library is organized into several packages:
//
//   - train: the trainer state machine, callback lifecycle, and monitor hub
//   - monitors: built-in telemetry sinks (JSON stats, console printer,
//     event stream, plots)
//   - callbacks: built-in lifecycle callbacks (early stopping, ETA,
//     checkpoint saver)
//   - core/metric: scalar coercion and image tensor normalization
//   - pkg/log, pkg/errors: structured logging and error handling used
//     throughout
package trainkit
