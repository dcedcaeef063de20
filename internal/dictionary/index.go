// Package dictionary loads reference dictionaries into a read-only index.
//
// An Index holds the controlled-vocabulary definitions a study is reconciled
// against: the global Tier1 dictionary, the domain Tier1 and Tier2
// dictionaries, and the legacy dictionary that maps historical codings to
// current ones. Identifiers are compared case-insensitively after trimming.
package dictionary

import (
	"cmp"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sort"

	"github.com/leapstack-labs/harmonize/internal/csvio"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// Source names one reference dictionary file and the authority of its rows.
type Source struct {
	Path      string
	Authority core.Authority
}

// Sentinel causes wrapped by LoadError.
var (
	ErrDuplicateIdentifier = errors.New("duplicate identifier within tier")
	ErrMissingColumn       = errors.New("required column missing")
	ErrEmptyIdentifier     = errors.New("empty identifier")
)

// LoadError reports a reference dictionary that cannot be used. It is fatal
// for the run: bad reference data is a setup problem, not a study problem.
type LoadError struct {
	Path string
	Line int
	Err  error
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("dictionary %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("dictionary %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Index is an immutable lookup structure over reference definitions.
// It is safe for concurrent use.
type Index struct {
	byKey map[string][]*core.FieldDefinition
	byAlt map[string][]*core.FieldDefinition
	tiers map[core.Authority][]*core.FieldDefinition
	keys  []string
}

// Load reads the sources in order and builds an Index.
func Load(sources []Source) (*Index, error) {
	var defs []*core.FieldDefinition
	for _, src := range sources {
		d, err := loadFile(src)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d...)
	}
	return New(defs)
}

// New builds an Index from definitions. Definitions keep their relative
// order within a tier. A second definition of an identifier in the same tier
// is a LoadError.
func New(defs []*core.FieldDefinition) (*Index, error) {
	ix := &Index{
		byKey: make(map[string][]*core.FieldDefinition),
		byAlt: make(map[string][]*core.FieldDefinition),
		tiers: make(map[core.Authority][]*core.FieldDefinition),
	}
	for _, d := range defs {
		key := core.Key(d.Identifier)
		for _, prev := range ix.byKey[key] {
			if prev.Source != d.Source {
				continue
			}
			msg := fmt.Errorf("%w: %q (%s) already defined in %s", ErrDuplicateIdentifier, d.Identifier, d.Source, describe(prev))
			if !sameChoices(prev.AllowedValues, d.AllowedValues) {
				msg = fmt.Errorf("%w with conflicting allowed values", msg)
			}
			return nil, &LoadError{Path: d.Origin, Line: d.Line, Err: msg}
		}
		ix.byKey[key] = append(ix.byKey[key], d)
		ix.tiers[d.Source] = append(ix.tiers[d.Source], d)
		if d.Source.Standard() {
			for _, alt := range d.AlternateNames {
				ak := core.Key(alt)
				ix.byAlt[ak] = append(ix.byAlt[ak], d)
			}
		}
	}

	byPrecedence := func(a, b *core.FieldDefinition) int { return int(a.Source) - int(b.Source) }
	for k := range ix.byKey {
		slices.SortStableFunc(ix.byKey[k], byPrecedence)
		ix.keys = append(ix.keys, k)
	}
	for k := range ix.byAlt {
		slices.SortStableFunc(ix.byAlt[k], byPrecedence)
	}
	sort.Strings(ix.keys)
	return ix, nil
}

// Lookup returns every definition of identifier, highest precedence first.
func (ix *Index) Lookup(identifier string) []*core.FieldDefinition {
	return slices.Clone(ix.byKey[core.Key(identifier)])
}

// Standard returns the highest-precedence non-legacy definition.
func (ix *Index) Standard(identifier string) (*core.FieldDefinition, bool) {
	for _, d := range ix.byKey[core.Key(identifier)] {
		if d.Source.Standard() {
			return d, true
		}
	}
	return nil, false
}

// Legacy returns the legacy definition of identifier.
func (ix *Index) Legacy(identifier string) (*core.FieldDefinition, bool) {
	for _, d := range ix.byKey[core.Key(identifier)] {
		if d.Source == core.AuthorityLegacy {
			return d, true
		}
	}
	return nil, false
}

// ByAlternateName returns standard definitions listing name as an alternate
// name, highest precedence first.
func (ix *Index) ByAlternateName(name string) []*core.FieldDefinition {
	return slices.Clone(ix.byAlt[core.Key(name)])
}

// Definitions returns the definitions of one tier in load order.
func (ix *Index) Definitions(a core.Authority) []*core.FieldDefinition {
	return slices.Clone(ix.tiers[a])
}

// Identifiers returns every indexed identifier key, sorted.
func (ix *Index) Identifiers() []string {
	return slices.Clone(ix.keys)
}

// Len returns the number of distinct identifiers.
func (ix *Index) Len() int {
	return len(ix.keys)
}

// Conflict describes an identifier defined in several tiers with different
// allowed values. Conflicts are legal; the higher tier wins.
type Conflict struct {
	Identifier string
	Winner     *core.FieldDefinition
	Shadowed   []*core.FieldDefinition
}

// Conflicts lists identifiers whose standard definitions disagree on allowed
// values, sorted by identifier.
func (ix *Index) Conflicts() []Conflict {
	var out []Conflict
	for _, k := range ix.keys {
		var std []*core.FieldDefinition
		for _, d := range ix.byKey[k] {
			if d.Source.Standard() {
				std = append(std, d)
			}
		}
		if len(std) < 2 {
			continue
		}
		c := Conflict{Identifier: std[0].Identifier, Winner: std[0]}
		for _, d := range std[1:] {
			if !sameChoices(std[0].AllowedValues, d.AllowedValues) {
				c.Shadowed = append(c.Shadowed, d)
			}
		}
		if len(c.Shadowed) > 0 {
			out = append(out, c)
		}
	}
	return out
}

func loadFile(src Source) ([]*core.FieldDefinition, error) {
	tbl, err := csvio.ReadTableFile(src.Path)
	if err != nil {
		return nil, &LoadError{Path: src.Path, Err: err}
	}
	layout := ResolveLayout(tbl.Header)
	if !layout.Has(ColIdentifier) {
		return nil, &LoadError{Path: src.Path, Line: 1, Err: fmt.Errorf("%w: identifier", ErrMissingColumn)}
	}

	defs := make([]*core.FieldDefinition, 0, len(tbl.Rows))
	for i, row := range tbl.Rows {
		line := tbl.Lines[i]
		fail := func(err error) error { return &LoadError{Path: src.Path, Line: line, Err: err} }

		id := layout.Get(row, ColIdentifier)
		if id == "" {
			return nil, fail(ErrEmptyIdentifier)
		}
		authority := src.Authority
		if tier := layout.Get(row, ColTier); tier != "" {
			a, ok := core.ParseAuthority(tier)
			if !ok || a == core.AuthoritySubmission {
				return nil, fail(fmt.Errorf("unknown tier %q", tier))
			}
			authority = a
		}
		dt, choices, err := ResolveType(layout.Get(row, ColType), layout.Get(row, ColAllowedValues))
		if err != nil {
			return nil, fail(fmt.Errorf("field %q: %w", id, err))
		}
		recoding, err := ParseRecoding(layout.Get(row, ColRecoding))
		if err != nil {
			return nil, fail(fmt.Errorf("field %q: %w", id, err))
		}

		defs = append(defs, &core.FieldDefinition{
			Identifier:     id,
			Label:          layout.Get(row, ColLabel),
			Type:           dt,
			FieldType:      layout.Get(row, ColType),
			AllowedValues:  choices,
			Unit:           layout.Get(row, ColUnit),
			Description:    layout.Get(row, ColDescription),
			Section:        layout.Get(row, ColSection),
			Source:         authority,
			AlternateNames: SplitList(layout.Get(row, ColAlternateNames)),
			Required:       ParseBool(layout.Get(row, ColRequired)),
			Target:         layout.Get(row, ColTarget),
			Recoding:       recoding,
			Origin:         src.Path,
			Line:           line,
		})
	}
	return defs, nil
}

func describe(d *core.FieldDefinition) string {
	if d.Origin == "" {
		return "an earlier definition"
	}
	if d.Line > 0 {
		return fmt.Sprintf("%s:%d", filepath.Base(d.Origin), d.Line)
	}
	return filepath.Base(d.Origin)
}

// sameChoices compares allowed values as sets.
func sameChoices(a, b []core.Choice) bool {
	if len(a) != len(b) {
		return false
	}
	order := func(x, y core.Choice) int { return cmp.Or(cmp.Compare(x.Code, y.Code), cmp.Compare(x.Meaning, y.Meaning)) }
	return slices.Equal(slices.SortedFunc(slices.Values(a), order), slices.SortedFunc(slices.Values(b), order))
}
