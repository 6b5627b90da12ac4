package monitors

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/YuminosukeSato/trainkit/pkg/errors"
	"github.com/YuminosukeSato/trainkit/pkg/log"
	"github.com/YuminosukeSato/trainkit/train"
)

// ScalarPrinterOptions configure which scalars a ScalarPrinter renders and
// when it renders them.
type ScalarPrinterOptions struct {
	// TriggerEpoch renders the pending buffer on epoch triggers. Default
	// when both flags are false.
	TriggerEpoch bool

	// TriggerStep renders the pending buffer on step triggers. When both
	// flags are set, the epoch's last step defers to the epoch trigger so
	// the boundary is printed once.
	TriggerStep bool

	// Allowlist restricts printing to names matching at least one of these
	// regular expressions. Empty means every name is allowed.
	Allowlist []string

	// Denylist suppresses names matching any of these regular expressions.
	Denylist []string
}

// ScalarPrinter renders buffered scalar values as one multi-line structured
// log message per trigger, sorted by metric name.
type ScalarPrinter struct {
	train.BaseMonitor

	allowlist   []*regexp.Regexp
	denylist    []*regexp.Regexp
	enableStep  bool
	enableEpoch bool

	pending map[string]float64
}

// NewScalarPrinter creates a printer. Invalid regular expressions in the
// allow/deny lists are reported immediately.
func NewScalarPrinter(opts ScalarPrinterOptions) (*ScalarPrinter, error) {
	if !opts.TriggerEpoch && !opts.TriggerStep {
		opts.TriggerEpoch = true
	}

	compile := func(patterns []string) ([]*regexp.Regexp, error) {
		if len(patterns) == 0 {
			return nil, nil
		}
		rs := make([]*regexp.Regexp, 0, len(patterns))
		for _, p := range patterns {
			r, err := regexp.Compile(p)
			if err != nil {
				return nil, errors.Wrapf(err, "compiling pattern %q", p)
			}
			rs = append(rs, r)
		}
		return rs, nil
	}

	allow, err := compile(opts.Allowlist)
	if err != nil {
		return nil, err
	}
	deny, err := compile(opts.Denylist)
	if err != nil {
		return nil, err
	}

	return &ScalarPrinter{
		allowlist:   allow,
		denylist:    deny,
		enableStep:  opts.TriggerStep,
		enableEpoch: opts.TriggerEpoch,
		pending:     make(map[string]float64),
	}, nil
}

// AddScalar buffers a value under its name; the last write before a trigger
// wins.
func (p *ScalarPrinter) AddScalar(name string, value float64) error {
	p.pending[name] = value
	return nil
}

func (p *ScalarPrinter) BeforeTrain() error {
	p.trigger()
	return nil
}

func (p *ScalarPrinter) TriggerStep() error {
	if !p.enableStep {
		return nil
	}
	if !p.Trainer().LastStepOfEpoch() {
		p.trigger()
	} else if !p.enableEpoch {
		// The epoch trigger would otherwise print the boundary step.
		p.trigger()
	}
	return nil
}

func (p *ScalarPrinter) TriggerEpoch() error {
	if p.enableEpoch {
		p.trigger()
	}
	return nil
}

func matchAny(rs []*regexp.Regexp, name string) bool {
	for _, r := range rs {
		if r.MatchString(name) {
			return true
		}
	}
	return false
}

// trigger renders every pending entry passing the allow/deny filters as a
// single message, then clears the buffer.
func (p *ScalarPrinter) trigger() {
	names := make([]string, 0, len(p.pending))
	for name := range p.pending {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		if len(p.allowlist) > 0 && !matchAny(p.allowlist, name) {
			continue
		}
		if matchAny(p.denylist, name) {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] = %.5g", name, p.pending[name]))
	}

	if len(lines) > 0 {
		logger := log.GetLoggerWithName("monitors.scalar_printer")
		fields := []any{"scalars", "\n+ " + strings.Join(lines, "\n+ ")}
		if t := p.Trainer(); t != nil {
			fields = append(fields,
				log.EpochKey, t.EpochNum(),
				log.GlobalStepKey, t.GlobalStep(),
			)
		}
		logger.Info("training scalars", fields...)
	}

	p.pending = make(map[string]float64)
}
