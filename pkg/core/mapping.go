package core

// MatchKind classifies how a submission field was resolved.
type MatchKind string

// Match kinds in precedence order.
const (
	MatchExact     MatchKind = "exact"
	MatchRenamed   MatchKind = "renamed"
	MatchLegacy    MatchKind = "legacy"
	MatchUnmatched MatchKind = "unmatched"
)

// ParseMatchKind converts a string to a MatchKind.
func ParseMatchKind(s string) (MatchKind, bool) {
	switch MatchKind(s) {
	case MatchExact, MatchRenamed, MatchLegacy, MatchUnmatched:
		return MatchKind(s), true
	default:
		return "", false
	}
}

// ValueRecoding maps submitted codes to target codes.
type ValueRecoding struct {
	Identity bool       `json:"identity"`
	Pairs    []CodePair `json:"pairs,omitempty"`
}

// IdentityRecoding returns a recoding that leaves every value unchanged.
func IdentityRecoding() ValueRecoding {
	return ValueRecoding{Identity: true}
}

// Apply returns the target code for a submitted code.
// ok is false when a non-identity recoding has no pair for code.
func (r ValueRecoding) Apply(code string) (string, bool) {
	if r.Identity {
		return code, true
	}
	for _, p := range r.Pairs {
		if p.From == code {
			return p.To, true
		}
	}
	return code, false
}

// UnitConversion converts a value with target = value*Scale + Offset.
type UnitConversion struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`
}

// Convert applies the conversion.
func (u UnitConversion) Convert(v float64) float64 {
	return v*u.Scale + u.Offset
}

// FieldMapping is the reconciliation result for one submission field.
// A mapping is never modified after the reconciler returns it.
type FieldMapping struct {
	SubmissionIdentifier string          `json:"submission_identifier"`
	TargetIdentifier     string          `json:"target_identifier,omitempty"` // empty when unmatched
	Kind                 MatchKind       `json:"match_kind"`
	Recoding             ValueRecoding   `json:"value_recoding"`
	Conversion           *UnitConversion `json:"unit_conversion,omitempty"`
	// Excluded marks a resolved field that must not be written.
	Excluded bool `json:"excluded,omitempty"`

	Submission *FieldDefinition `json:"-"`
	Target     *FieldDefinition `json:"-"`
}

// Writable reports whether the mapping contributes an output column.
func (m FieldMapping) Writable() bool {
	return m.TargetIdentifier != "" && !m.Excluded && m.Target != nil
}
