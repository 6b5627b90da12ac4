package callbacks

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/trainkit/pkg/log"
	"github.com/YuminosukeSato/trainkit/train"
)

// etaWindow is the number of recent epochs the estimate averages over.
const etaWindow = 5

// EstimatedTimeLeft logs an estimate of the remaining run time after each
// epoch, based on the mean duration of the most recent epochs.
type EstimatedTimeLeft struct {
	train.Base

	epochStart time.Time
	durations  []float64
}

// NewEstimatedTimeLeft creates the estimator.
func NewEstimatedTimeLeft() *EstimatedTimeLeft {
	return &EstimatedTimeLeft{}
}

func (e *EstimatedTimeLeft) BeforeEpoch() error {
	e.epochStart = time.Now()
	return nil
}

func (e *EstimatedTimeLeft) AfterEpoch() error {
	e.durations = append(e.durations, time.Since(e.epochStart).Seconds())
	if len(e.durations) > etaWindow {
		e.durations = e.durations[len(e.durations)-etaWindow:]
	}

	t := e.Trainer()
	remaining := t.NumEpochs() - t.EpochNum()
	if remaining <= 0 {
		return nil
	}

	perEpoch := stat.Mean(e.durations, nil)
	log.GetLoggerWithName("callbacks.eta").Info("estimated time left",
		log.EpochKey, t.EpochNum(),
		log.NumEpochsKey, t.NumEpochs(),
		log.ETASecondsKey, perEpoch*float64(remaining),
	)
	return nil
}
