// Package pipeline drives studies through the three harmonization phases.
//
// Phase 1 checks the raw submission, phase 2 normalizes a working copy and
// validates it against the reference dictionaries, phase 3 reconciles and
// transforms it into the harmonized outputs. Every phase writes its findings
// to an error log in the study's work directory; a phase only runs when the
// logs of the phases before it are clean.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/harmonize/internal/config"
	"github.com/leapstack-labs/harmonize/internal/dictionary"
	"github.com/leapstack-labs/harmonize/internal/metrics"
	"github.com/leapstack-labs/harmonize/internal/reconcile"
	"github.com/leapstack-labs/harmonize/internal/report"
	"github.com/leapstack-labs/harmonize/internal/submission"
	"github.com/leapstack-labs/harmonize/internal/transform"
	"github.com/leapstack-labs/harmonize/internal/units"
	"github.com/leapstack-labs/harmonize/internal/validator"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// Config holds the collaborators of a Pipeline.
type Config struct {
	// Settings is required.
	Settings *config.Config
	// Index is the Dictionary Index; nil means an empty index.
	Index *dictionary.Index
	// Units defaults to units.Default().
	Units *units.Table
	// DictValidator and MetaValidator are optional external validators for
	// DICT and META files.
	DictValidator validator.Validator
	MetaValidator validator.Validator
	// Metrics is optional.
	Metrics *metrics.Metrics
	// Logger is optional; a discard logger is used when nil.
	Logger *slog.Logger
}

// Pipeline runs phases for studies under one data directory. It holds no
// per-study state and is safe for concurrent use.
type Pipeline struct {
	settings      *config.Config
	index         *dictionary.Index
	units         *units.Table
	reconciler    *reconcile.Reconciler
	transformer   *transform.Transformer
	dictValidator validator.Validator
	metaValidator validator.Validator
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// New creates a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Settings == nil {
		return nil, errors.New("pipeline: settings are required")
	}
	p := &Pipeline{
		settings:      cfg.Settings,
		index:         cfg.Index,
		units:         cfg.Units,
		dictValidator: cfg.DictValidator,
		metaValidator: cfg.MetaValidator,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.units == nil {
		p.units = units.Default()
	}
	if p.index == nil {
		ix, err := dictionary.New(nil)
		if err != nil {
			return nil, err
		}
		p.index = ix
	}
	order, err := cfg.Settings.Match.Kinds()
	if err != nil {
		return nil, err
	}
	p.reconciler, err = reconcile.New(reconcile.Config{
		Order:  order,
		Units:  p.units,
		Logger: p.logger,
	})
	if err != nil {
		return nil, err
	}
	var required []*core.FieldDefinition
	for _, d := range p.index.Definitions(core.AuthorityGlobal) {
		if d.Required {
			required = append(required, d)
		}
	}
	p.transformer = transform.New(transform.Config{Logger: p.logger, Required: required})
	return p, nil
}

// Load builds a Pipeline from settings: it loads the reference dictionaries,
// the unit table and the configured validators. A *dictionary.LoadError
// means the reference data is unusable and nothing should run.
func Load(settings *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Pipeline, error) {
	cfg := Config{Settings: settings, Metrics: m, Logger: logger}

	ix, err := dictionary.Load(settings.Reference.Sources())
	if err != nil {
		return nil, err
	}
	cfg.Index = ix

	if settings.UnitsFile != "" {
		if cfg.Units, err = units.LoadFile(settings.UnitsFile); err != nil {
			return nil, err
		}
	}
	if v := settings.Validators.Dictionary; v.Enabled() {
		if cfg.DictValidator, err = validator.ParseCommand(v.Command); err != nil {
			return nil, fmt.Errorf("validators.dictionary: %w", err)
		}
	}
	if v := settings.Validators.Metadata; v.Enabled() {
		if cfg.MetaValidator, err = validator.ParseCommand(v.Command); err != nil {
			return nil, fmt.Errorf("validators.metadata: %w", err)
		}
	}
	return New(cfg)
}

// Index returns the Dictionary Index in use.
func (p *Pipeline) Index() *dictionary.Index { return p.index }

// =============================================================================
// Options and results
// =============================================================================

// Options control a phase invocation.
type Options struct {
	// Reset discards the outputs of earlier runs before the phase starts.
	Reset bool
	// Rerun reprocesses the work directory in place: files are not copied
	// from preorigcopy again and the lock file is ignored.
	Rerun bool
	// Start and End select triplets by 1-based position in name order,
	// both inclusive. Zero means unbounded.
	Start, End int
}

// Validate rejects contradictory options.
func (o Options) Validate() error {
	if o.Reset && o.Rerun {
		return errors.New("reset and rerun cannot be combined")
	}
	if o.Start < 0 || o.End < 0 {
		return errors.New("start and end must not be negative")
	}
	if o.End > 0 && o.Start > o.End {
		return fmt.Errorf("start %d is after end %d", o.Start, o.End)
	}
	return nil
}

// whole reports whether every triplet is selected.
func (o Options) whole() bool { return o.Start <= 1 && o.End == 0 }

// slice applies Start and End to triplets.
func (o Options) slice(ts []submission.Triplet) []submission.Triplet {
	lo, hi := 0, len(ts)
	if o.Start > 1 {
		lo = min(o.Start-1, len(ts))
	}
	if o.End > 0 {
		hi = min(o.End, len(ts))
	}
	if lo > hi {
		return nil
	}
	return ts[lo:hi]
}

// StudyResult is the outcome of one phase for one study.
type StudyResult struct {
	Study    string
	Phase    core.Phase
	RunID    string
	Skipped  bool
	Reason   string
	Errors   int
	Warnings int
	// LogPath is the phase's error log, empty when the phase found nothing.
	LogPath  string
	Duration time.Duration
	// Err is the fatal error that aborted the phase, if any.
	Err error
}

// Clean reports whether the phase ran and found nothing.
func (r StudyResult) Clean() bool {
	return !r.Skipped && r.Err == nil && r.Errors == 0 && r.Warnings == 0
}

// Outcome classifies the result for metrics and display.
func (r StudyResult) Outcome() string {
	switch {
	case r.Err != nil:
		return metrics.OutcomeFailed
	case r.Skipped:
		return metrics.OutcomeSkipped
	case r.Errors+r.Warnings > 0:
		return metrics.OutcomeFindings
	default:
		return metrics.OutcomeClean
	}
}

// StudyError is a fatal error in one study's phase.
type StudyError struct {
	Study string
	Phase core.Phase
	Err   error
}

func (e *StudyError) Error() string {
	return fmt.Sprintf("study %s phase %d: %v", e.Study, e.Phase, e.Err)
}

func (e *StudyError) Unwrap() error { return e.Err }

// =============================================================================
// StudyRun
// =============================================================================

// StudyRun is the state of one phase execution for one study. It is owned
// by a single goroutine.
type StudyRun struct {
	ID        string
	Study     string
	Phase     core.Phase
	Layout    Layout
	Logger    *slog.Logger
	Collector *report.Collector

	started time.Time
}

func (p *Pipeline) newRun(study string, phase core.Phase) *StudyRun {
	id := uuid.NewString()
	return &StudyRun{
		ID:        id,
		Study:     study,
		Phase:     phase,
		Layout:    NewLayout(p.settings.DataDir, study),
		Logger:    p.logger.With("study", study, "phase", int(phase), "run", id),
		Collector: report.NewCollector(study, phase),
		started:   time.Now(),
	}
}

func (r *StudyRun) result() StudyResult {
	return StudyResult{
		Study:    r.Study,
		Phase:    r.Phase,
		RunID:    r.ID,
		Duration: time.Since(r.started),
	}
}

func (p *Pipeline) skip(r *StudyRun, reason string) (StudyResult, error) {
	r.Logger.Info("skipping study", "reason", reason)
	res := r.result()
	res.Skipped, res.Reason = true, reason
	p.metrics.Study(r.Phase, res.Outcome(), res.Duration)
	return res, nil
}

func (p *Pipeline) fail(r *StudyRun, err error) (StudyResult, error) {
	se := &StudyError{Study: r.Study, Phase: r.Phase, Err: err}
	r.Logger.Error("phase failed", "error", err)
	res := r.result()
	res.Err = se
	p.metrics.Study(r.Phase, res.Outcome(), res.Duration)
	return res, se
}

// finish writes the phase log, or removes a stale one when nothing was
// found, and records metrics.
func (p *Pipeline) finish(r *StudyRun) (StudyResult, error) {
	res := r.result()
	errs := r.Collector.Errors()
	res.Errors, res.Warnings = report.Count(errs)

	path := r.Layout.ErrorLog(r.Phase)
	if len(errs) > 0 {
		if err := report.Write(path, errs); err != nil {
			return p.fail(r, fmt.Errorf("writing error log: %w", err))
		}
		res.LogPath = path
	} else if err := removeIfExists(path); err != nil {
		return p.fail(r, err)
	}

	p.metrics.Findings(r.Phase, errs)
	p.metrics.Study(r.Phase, res.Outcome(), res.Duration)
	if len(errs) > 0 {
		r.Logger.Warn("phase finished with findings", "errors", res.Errors, "warnings", res.Warnings, "log", path)
	} else {
		r.Logger.Info("phase passed")
	}
	return res, nil
}
