package monitors

import (
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/trainkit/pkg/errors"
	"github.com/YuminosukeSato/trainkit/pkg/log"
	"github.com/YuminosukeSato/trainkit/train"
)

// PlotWriter renders each scalar time series from the run's monitor cache to
// a PNG line plot when training ends. Rendering failures are sink-local.
type PlotWriter struct {
	train.BaseMonitor

	dir string
}

// NewPlotWriter creates a writer emitting one <metric>.png per recorded
// scalar under dir.
func NewPlotWriter(dir string) *PlotWriter {
	return &PlotWriter{dir: dir}
}

// AfterTrain renders every recorded metric.
func (w *PlotWriter) AfterTrain() error {
	t := w.Trainer()
	if t == nil || t.Monitors() == nil {
		return nil
	}
	logger := log.GetLoggerWithName("monitors.plot_writer")

	names := t.Monitors().Names()
	sort.Strings(names)
	for _, name := range names {
		history, err := t.Monitors().GetHistory(name)
		if err != nil || len(history) == 0 {
			continue
		}
		if err := w.render(name, history); err != nil {
			logger.Error("rendering metric plot failed",
				log.ErrAttr(err),
				log.MetricNameKey, name,
			)
		}
	}
	return nil
}

func (w *PlotWriter) render(name string, history []train.ScalarRecord) error {
	xys := make(plotter.XYs, len(history))
	for i, r := range history {
		xys[i].X = float64(r.Step)
		xys[i].Y = r.Value
	}

	p := plot.New()
	p.Title.Text = name
	p.X.Label.Text = "global step"
	p.Y.Label.Text = name

	line, err := plotter.NewLine(xys)
	if err != nil {
		return errors.NewSinkWriteError("PlotWriter", "line", err)
	}
	p.Add(line)
	p.Add(plotter.NewGrid())

	path := filepath.Join(w.dir, sanitizeMetricName(name)+".png")
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.NewSinkWriteError("PlotWriter", "save", err)
	}
	return nil
}

// sanitizeMetricName maps a metric name to a safe file stem: path
// separators and spaces become underscores.
func sanitizeMetricName(name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", " ", "_")
	return r.Replace(name)
}
