// Package match resolves submission fields to reference definitions.
//
// Each way of resolving a field is a Strategy. The reconciler runs an ordered
// chain of strategies and takes the first hit, so strategies can be swapped
// or reordered without touching reconciliation control flow.
package match

import (
	"fmt"

	"github.com/leapstack-labs/harmonize/pkg/core"
)

// Index is the read side of a reference dictionary index.
type Index interface {
	Standard(identifier string) (*core.FieldDefinition, bool)
	Legacy(identifier string) (*core.FieldDefinition, bool)
	ByAlternateName(name string) []*core.FieldDefinition
}

// Result is a strategy hit.
type Result struct {
	// Target is the standard definition the field maps to. It is nil when a
	// legacy entry names a target that no standard tier defines.
	Target *core.FieldDefinition
	// Legacy is the legacy entry that produced the match, if any.
	Legacy *core.FieldDefinition
	// Via is the identifier or alternate name that matched.
	Via string
}

// Strategy resolves one submission field.
type Strategy interface {
	Kind() core.MatchKind
	Match(field *core.FieldDefinition, ix Index) (Result, bool)
}

// Exact matches the identifier against the highest standard tier defining it.
type Exact struct{}

// Kind implements Strategy.
func (Exact) Kind() core.MatchKind { return core.MatchExact }

// Match implements Strategy.
func (Exact) Match(field *core.FieldDefinition, ix Index) (Result, bool) {
	d, ok := ix.Standard(field.Identifier)
	if !ok {
		return Result{}, false
	}
	return Result{Target: d, Via: d.Identifier}, true
}

// Renamed matches the identifier against standard alternate-name lists.
type Renamed struct{}

// Kind implements Strategy.
func (Renamed) Kind() core.MatchKind { return core.MatchRenamed }

// Match implements Strategy.
func (Renamed) Match(field *core.FieldDefinition, ix Index) (Result, bool) {
	hits := ix.ByAlternateName(field.Identifier)
	if len(hits) == 0 {
		return Result{}, false
	}
	return Result{Target: hits[0], Via: field.Identifier}, true
}

// Legacy matches the identifier against the legacy dictionary and follows
// the entry to its standard target.
type Legacy struct{}

// Kind implements Strategy.
func (Legacy) Kind() core.MatchKind { return core.MatchLegacy }

// Match implements Strategy.
func (Legacy) Match(field *core.FieldDefinition, ix Index) (Result, bool) {
	l, ok := ix.Legacy(field.Identifier)
	if !ok {
		return Result{}, false
	}
	res := Result{Legacy: l, Via: l.Identifier}
	if l.Target != "" {
		if t, ok := ix.Standard(l.Target); ok {
			res.Target = t
		}
	}
	return res, true
}

// DefaultOrder is exact > renamed > legacy. A field that is both renamed in
// a standard tier and listed in the legacy dictionary resolves as renamed.
var DefaultOrder = []core.MatchKind{core.MatchExact, core.MatchRenamed, core.MatchLegacy}

// Chain builds strategies for the given order.
func Chain(order []core.MatchKind) ([]Strategy, error) {
	if len(order) == 0 {
		order = DefaultOrder
	}
	seen := make(map[core.MatchKind]bool, len(order))
	out := make([]Strategy, 0, len(order))
	for _, k := range order {
		if seen[k] {
			return nil, fmt.Errorf("match strategy %q listed twice", k)
		}
		seen[k] = true
		switch k {
		case core.MatchExact:
			out = append(out, Exact{})
		case core.MatchRenamed:
			out = append(out, Renamed{})
		case core.MatchLegacy:
			out = append(out, Legacy{})
		default:
			return nil, fmt.Errorf("unknown match strategy %q", k)
		}
	}
	return out, nil
}
