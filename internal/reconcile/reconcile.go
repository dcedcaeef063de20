// Package reconcile resolves a study's field definitions against the
// reference dictionaries and produces one FieldMapping per field.
//
// Resolution runs an ordered chain of match strategies and takes the first
// hit. Everything that cannot be reconciled safely is reported as a
// HarmonizationError and never silently dropped: unmatched fields keep a
// mapping with an empty target, and fields that resolved but cannot be
// written are marked Excluded.
package reconcile

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/harmonize/internal/match"
	"github.com/leapstack-labs/harmonize/internal/units"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// Index is what the reconciler needs from a dictionary index.
// *dictionary.Index satisfies it.
type Index interface {
	match.Index
	Identifiers() []string
}

// Config holds reconciler configuration.
type Config struct {
	// Order is the strategy order; empty means match.DefaultOrder.
	Order []core.MatchKind
	// Labels compares allowed-value meanings; nil means match.DefaultLabels.
	Labels match.LabelNormalizer
	// Units resolves unit conversions; nil means units.Default().
	Units *units.Table
	// Logger is optional; a discard logger is used when nil.
	Logger *slog.Logger
}

// Reconciler maps submission fields to reference definitions. It holds no
// per-run state and may be shared between goroutines.
type Reconciler struct {
	strategies []match.Strategy
	labels     match.LabelNormalizer
	units      *units.Table
	logger     *slog.Logger
}

// New creates a Reconciler.
func New(cfg Config) (*Reconciler, error) {
	chain, err := match.Chain(cfg.Order)
	if err != nil {
		return nil, err
	}
	r := &Reconciler{
		strategies: chain,
		labels:     cfg.Labels,
		units:      cfg.Units,
		logger:     cfg.Logger,
	}
	if r.labels == nil {
		r.labels = match.DefaultLabels
	}
	if r.units == nil {
		r.units = units.Default()
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	return r, nil
}

// Reconcile resolves every field in order. The same fields and index always
// produce equal mappings and the same error sequence.
func (r *Reconciler) Reconcile(fields []*core.FieldDefinition, ix Index) ([]core.FieldMapping, []core.HarmonizationError) {
	rc := &run{Reconciler: r, ix: ix, claimed: make(map[string]string)}
	mappings := make([]core.FieldMapping, 0, len(fields))
	for _, f := range fields {
		mappings = append(mappings, rc.field(f))
	}
	r.logger.Debug("reconciled fields",
		"fields", len(fields),
		"writable", countWritable(mappings),
		"errors", len(rc.errs))
	return mappings, rc.errs
}

// HarmonizedDictionary returns the target definitions of the writable
// mappings in submission order. This is the column order of harmonized
// output.
func HarmonizedDictionary(mappings []core.FieldMapping) []*core.FieldDefinition {
	var out []*core.FieldDefinition
	for _, m := range mappings {
		if m.Writable() {
			out = append(out, m.Target)
		}
	}
	return out
}

func countWritable(mappings []core.FieldMapping) int {
	n := 0
	for _, m := range mappings {
		if m.Writable() {
			n++
		}
	}
	return n
}

// run carries the state of one Reconcile call.
type run struct {
	*Reconciler
	ix      Index
	claimed map[string]string // target key -> submission identifier
	errs    []core.HarmonizationError
}

func (rc *run) fail(f *core.FieldDefinition, sev core.Severity, code core.Code, format string, args ...any) {
	rc.errs = append(rc.errs, core.HarmonizationError{
		File:     f.Origin,
		Row:      f.Line,
		Field:    f.Identifier,
		Severity: sev,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (rc *run) field(f *core.FieldDefinition) core.FieldMapping {
	m := core.FieldMapping{
		SubmissionIdentifier: f.Identifier,
		Kind:                 core.MatchUnmatched,
		Submission:           f,
	}

	var (
		res  match.Result
		kind core.MatchKind
		hit  bool
	)
	for _, s := range rc.strategies {
		if res, hit = s.Match(f, rc.ix); hit {
			kind = s.Kind()
			break
		}
	}

	switch {
	case !hit:
		msg := fmt.Sprintf("Field %q matches no reference data element", f.Identifier)
		if s := match.Suggest(f.Identifier, rc.ix.Identifiers(), 1); len(s) > 0 {
			msg += fmt.Sprintf("; did you mean %q?", s[0])
		}
		rc.fail(f, core.SeverityError, core.CodeUnmatched, "%s", msg)
		return m
	case res.Target == nil:
		rc.fail(f, core.SeverityError, core.CodeLegacyNoTarget,
			"Legacy field %q maps to %q, which no standard dictionary defines", f.Identifier, res.Legacy.Target)
		return m
	}

	m.Kind = kind
	m.Target = res.Target
	m.TargetIdentifier = res.Target.Identifier

	conv, ok := rc.conversion(f, res.Target)
	if !ok {
		m.Excluded = true
		return m
	}
	m.Conversion = conv

	key := core.Key(res.Target.Identifier)
	if prev, taken := rc.claimed[key]; taken {
		rc.fail(f, core.SeverityError, core.CodeTargetClaimed,
			"Field %q resolves to %q, already mapped from %q", f.Identifier, res.Target.Identifier, prev)
		m.Excluded = true
		return m
	}
	rc.claimed[key] = f.Identifier

	if kind == core.MatchLegacy {
		m.Recoding = rc.legacyRecoding(f, res)
		rc.fail(f, core.SeverityWarning, core.CodeLegacyTranslated,
			"Legacy field %q translated to %q", f.Identifier, res.Target.Identifier)
		return m
	}
	m.Recoding = rc.recoding(f, res.Target)
	return m
}

// conversion returns the unit conversion from f to target. It returns nil
// when no conversion is needed and ok false when one is needed but unknown.
func (rc *run) conversion(f, target *core.FieldDefinition) (*core.UnitConversion, bool) {
	from, to := strings.TrimSpace(f.Unit), strings.TrimSpace(target.Unit)
	if from == "" || to == "" || rc.units.Same(from, to) {
		return nil, true
	}
	conv, ok := rc.units.Conversion(from, to)
	if !ok {
		rc.fail(f, core.SeverityError, core.CodeUnitUnconvertible,
			"Unit %q of %q cannot be converted to %q of %q", from, f.Identifier, to, target.Identifier)
		return nil, false
	}
	return &conv, true
}

func (rc *run) recoding(f, target *core.FieldDefinition) core.ValueRecoding {
	if len(f.AllowedValues) == 0 || len(target.AllowedValues) == 0 || sameChoices(f.AllowedValues, target.AllowedValues, rc.labels) {
		return core.IdentityRecoding()
	}
	pairs, missing := labelPairs(f.AllowedValues, target.AllowedValues, nil, rc.labels)
	for _, c := range missing {
		rc.fail(f, core.SeverityError, core.CodeNoLabelMatch,
			"Code %q (%s) of %q has no matching value in %q", c.Code, c.Meaning, f.Identifier, target.Identifier)
	}
	return core.ValueRecoding{Pairs: pairs}
}

func (rc *run) legacyRecoding(f *core.FieldDefinition, res match.Result) core.ValueRecoding {
	target := res.Target
	var hints []core.CodePair
	covered := make(map[string]bool)
	for _, h := range res.Legacy.Recoding {
		if len(target.AllowedValues) > 0 && !target.Allows(h.To) {
			rc.fail(f, core.SeverityError, core.CodeLegacyBadHint,
				"Legacy recoding %s=%s targets a code %q does not allow", h.From, h.To, target.Identifier)
			continue
		}
		if covered[h.From] {
			continue
		}
		covered[h.From] = true
		hints = append(hints, h)
	}
	if len(target.AllowedValues) == 0 {
		return core.ValueRecoding{Pairs: hints}
	}
	pairs, missing := labelPairs(f.AllowedValues, target.AllowedValues, covered, rc.labels)
	for _, c := range missing {
		rc.fail(f, core.SeverityError, core.CodeNoLabelMatch,
			"Code %q (%s) of legacy field %q has no matching value in %q", c.Code, c.Meaning, f.Identifier, target.Identifier)
	}
	return core.ValueRecoding{Pairs: append(hints, pairs...)}
}
