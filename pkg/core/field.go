package core

import "strings"

// =============================================================================
// DataType
// =============================================================================

// DataType is the canonical value domain of a field.
type DataType string

// Canonical data types.
const (
	DataTypeCategorical DataType = "categorical"
	DataTypeNumeric     DataType = "numeric"
	DataTypeText        DataType = "text"
	DataTypeDate        DataType = "date"
)

// =============================================================================
// Authority
// =============================================================================

// Authority identifies where a field definition came from. Lower values take
// precedence over higher ones when the same identifier is defined twice.
type Authority int

// Authorities in precedence order.
const (
	AuthorityGlobal Authority = iota
	AuthorityTier1
	AuthorityTier2
	AuthorityLegacy
	// AuthoritySubmission marks definitions parsed from a study's own DICT.
	// It never appears in a reference index.
	AuthoritySubmission
)

// String returns the string representation of the authority.
func (a Authority) String() string {
	switch a {
	case AuthorityGlobal:
		return "global"
	case AuthorityTier1:
		return "tier1"
	case AuthorityTier2:
		return "tier2"
	case AuthorityLegacy:
		return "legacy"
	case AuthoritySubmission:
		return "submission"
	default:
		return "unknown"
	}
}

// ParseAuthority converts a string to an Authority.
func ParseAuthority(s string) (Authority, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "global":
		return AuthorityGlobal, true
	case "tier1", "domain_tier1":
		return AuthorityTier1, true
	case "tier2", "domain_tier2":
		return AuthorityTier2, true
	case "legacy":
		return AuthorityLegacy, true
	case "submission", "study":
		return AuthoritySubmission, true
	default:
		return AuthoritySubmission, false
	}
}

// Standard reports whether definitions of this authority can be match targets.
func (a Authority) Standard() bool {
	return a < AuthorityLegacy
}

// =============================================================================
// FieldDefinition
// =============================================================================

// Choice is one (code, meaning) pair of a categorical field.
type Choice struct {
	Code    string `json:"code"`
	Meaning string `json:"meaning"`
}

// CodePair maps a submitted code to a target code.
type CodePair struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// FieldDefinition describes one field of a dictionary.
// Definitions are shared by pointer and must not be modified after loading.
type FieldDefinition struct {
	Identifier    string    `json:"identifier"`
	Label         string    `json:"label"`
	Type          DataType  `json:"type"`
	FieldType     string    `json:"field_type,omitempty"` // raw REDCap type
	AllowedValues []Choice  `json:"allowed_values,omitempty"`
	Unit          string    `json:"unit,omitempty"`
	Description   string    `json:"description,omitempty"`
	Section       string    `json:"section,omitempty"`
	Source        Authority `json:"source"`
	// AlternateNames lists historical identifiers that resolve to this field.
	AlternateNames []string `json:"alternate_names,omitempty"`
	Required       bool     `json:"required,omitempty"`

	// Target and Recoding are only set on legacy definitions.
	Target   string     `json:"target,omitempty"`
	Recoding []CodePair `json:"recoding,omitempty"`

	// Origin is the file the definition was read from, Line its 1-based line.
	Origin string `json:"origin,omitempty"`
	Line   int    `json:"line,omitempty"`
}

// Categorical reports whether the field has an enumerated value set.
func (f *FieldDefinition) Categorical() bool {
	return len(f.AllowedValues) > 0
}

// Allows reports whether code is one of the field's allowed codes.
// Fields without allowed values accept everything.
func (f *FieldDefinition) Allows(code string) bool {
	if len(f.AllowedValues) == 0 {
		return true
	}
	for _, c := range f.AllowedValues {
		if c.Code == code {
			return true
		}
	}
	return false
}

// Key returns the comparison key for an identifier: trimmed and lower-cased.
func Key(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
