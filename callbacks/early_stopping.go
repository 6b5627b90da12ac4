// Package callbacks provides the built-in lifecycle callbacks: metric-based
// early stopping, run-time estimation, and periodic checkpoint saving.
package callbacks

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/trainkit/pkg/errors"
	"github.com/YuminosukeSato/trainkit/pkg/log"
	"github.com/YuminosukeSato/trainkit/train"
)

// EarlyStopping raises the stop signal when a monitored metric has not
// improved for a given number of epoch triggers. The metric is read from the
// run's monitor cache, so any callback that reports it through AddScalar
// feeds the stopper.
type EarlyStopping struct {
	train.Base

	Metric   string
	Rounds   int
	Minimize bool

	bestScore       float64
	bestEpoch       int
	roundsNoImprove int
}

// NewEarlyStopping creates a stopper watching metric with the given
// patience. Whether the metric is minimized is inferred from its name:
// score-like metrics (auc, accuracy, precision, recall, f1, r2) are
// maximized, everything else minimized.
func NewEarlyStopping(metric string, rounds int) *EarlyStopping {
	minimize := true
	switch metric {
	case "auc", "accuracy", "precision", "recall", "f1", "r2":
		minimize = false
	}

	bestScore := math.Inf(1)
	if !minimize {
		bestScore = math.Inf(-1)
	}

	return &EarlyStopping{
		Metric:    metric,
		Rounds:    rounds,
		Minimize:  minimize,
		bestScore: bestScore,
	}
}

// TriggerEpoch compares the metric's latest value against the best seen so
// far and stops the run once patience is exhausted. Epochs where the metric
// has not been recorded yet are skipped.
func (es *EarlyStopping) TriggerEpoch() error {
	value, err := es.Trainer().Monitors().GetLatest(es.Metric)
	if err != nil {
		var unknown *errors.UnknownMetricError
		if errors.As(err, &unknown) {
			return nil
		}
		return err
	}

	improved := value < es.bestScore
	if !es.Minimize {
		improved = value > es.bestScore
	}

	if improved {
		es.bestScore = value
		es.bestEpoch = es.Trainer().EpochNum()
		es.roundsNoImprove = 0
		return nil
	}

	es.roundsNoImprove++
	if es.roundsNoImprove >= es.Rounds {
		log.GetLoggerWithName("callbacks.early_stopping").Info("patience exhausted",
			log.MetricNameKey, es.Metric,
			log.MetricValueKey, es.bestScore,
			log.EpochKey, es.Trainer().EpochNum(),
			"best_epoch", es.bestEpoch,
		)
		return train.Stop(fmt.Sprintf("%s did not improve for %d epochs (best %.6g at epoch %d)",
			es.Metric, es.Rounds, es.bestScore, es.bestEpoch))
	}
	return nil
}

// Name implements train.Stateful.
func (es *EarlyStopping) Name() string { return "early_stopping" }

// StateDict implements train.Stateful. While the metric has never improved,
// bestScore holds the ±Inf sentinel, which JSON cannot represent; the entry
// is omitted instead, and LoadStateDict keeps the sentinel when it is absent.
func (es *EarlyStopping) StateDict() (map[string]any, error) {
	state := map[string]any{
		"best_epoch":        es.bestEpoch,
		"rounds_no_improve": es.roundsNoImprove,
	}
	if !math.IsInf(es.bestScore, 0) {
		state["best_score"] = es.bestScore
	}
	return state, nil
}

// LoadStateDict implements train.Stateful. Numeric fields tolerate the
// float64 representation a JSON round-trip produces.
func (es *EarlyStopping) LoadStateDict(state map[string]any) error {
	if v, ok := asFloat(state["best_score"]); ok {
		es.bestScore = v
	}
	if v, ok := asFloat(state["best_epoch"]); ok {
		es.bestEpoch = int(v)
	}
	if v, ok := asFloat(state["rounds_no_improve"]); ok {
		es.roundsNoImprove = int(v)
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
