package dictionary

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/harmonize/pkg/core"
)

// Errors wrapped by the parsing helpers.
var (
	ErrMalformedChoices = errors.New("malformed choices")
	ErrUnknownType      = errors.New("unknown field type")
)

// ParseChoices parses a REDCap choice list such as "1, Male | 2, Female".
// An item without a comma uses the item as both code and meaning.
func ParseChoices(s string) ([]core.Choice, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	items := strings.Split(s, "|")
	out := make([]core.Choice, 0, len(items))
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, fmt.Errorf("%w: empty item %d in %q", ErrMalformedChoices, i+1, s)
		}
		code, meaning, ok := strings.Cut(item, ",")
		code = strings.TrimSpace(code)
		meaning = strings.TrimSpace(meaning)
		if !ok {
			meaning = code
		}
		if code == "" {
			return nil, fmt.Errorf("%w: item %q has no code", ErrMalformedChoices, item)
		}
		if seen[code] {
			return nil, fmt.Errorf("%w: code %q listed twice", ErrMalformedChoices, code)
		}
		seen[code] = true
		out = append(out, core.Choice{Code: code, Meaning: meaning})
	}
	return out, nil
}

// FormatChoices renders choices in REDCap form.
func FormatChoices(choices []core.Choice) string {
	parts := make([]string, len(choices))
	for i, c := range choices {
		parts[i] = c.Code + ", " + c.Meaning
	}
	return strings.Join(parts, " | ")
}

// ParseRecoding parses legacy recoding hints such as "1=M|2=F".
func ParseRecoding(s string) ([]core.CodePair, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []core.CodePair
	for _, item := range strings.Split(s, "|") {
		from, to, ok := strings.Cut(item, "=")
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("%w: recoding item %q must be from=to", ErrMalformedChoices, strings.TrimSpace(item))
		}
		out = append(out, core.CodePair{From: from, To: to})
	}
	return out, nil
}

// SplitList splits a "|"-delimited list, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, "|") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// fieldTypes maps REDCap field types and canonical names to data types.
var fieldTypes = map[string]core.DataType{
	"categorical": core.DataTypeCategorical,
	"radio":       core.DataTypeCategorical,
	"dropdown":    core.DataTypeCategorical,
	"checkbox":    core.DataTypeCategorical,
	"yesno":       core.DataTypeCategorical,
	"list":        core.DataTypeCategorical,
	"category":    core.DataTypeCategorical,
	"numeric":     core.DataTypeNumeric,
	"number":      core.DataTypeNumeric,
	"integer":     core.DataTypeNumeric,
	"float":       core.DataTypeNumeric,
	"calc":        core.DataTypeNumeric,
	"date":        core.DataTypeDate,
	"datetime":    core.DataTypeDate,
	"time":        core.DataTypeDate,
	"text":        core.DataTypeText,
	"notes":       core.DataTypeText,
	"timezone":    core.DataTypeText,
	"zipcode":     core.DataTypeText,
	"url":         core.DataTypeText,
	"sequence":    core.DataTypeText,
	"string":      core.DataTypeText,
}

// NormalizeType maps a raw field type to a canonical data type. An empty
// type is reported as text with ok true; callers decide from the choice list.
// ok is false for unknown types.
func NormalizeType(raw string) (core.DataType, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return core.DataTypeText, true
	}
	t, ok := fieldTypes[raw]
	if !ok {
		return core.DataTypeText, false
	}
	return t, true
}

// yesNoChoices are the implicit choices of a REDCap yesno field.
var yesNoChoices = []core.Choice{{Code: "1", Meaning: "Yes"}, {Code: "0", Meaning: "No"}}

// ResolveType derives the data type and allowed values of a field from its
// raw type and choice cell. Choices are only read for categorical or untyped
// fields since other REDCap types reuse the column for calculations.
func ResolveType(rawType, rawChoices string) (core.DataType, []core.Choice, error) {
	t, ok := NormalizeType(rawType)
	if !ok {
		return t, nil, fmt.Errorf("%w: %q", ErrUnknownType, strings.TrimSpace(rawType))
	}
	untyped := strings.TrimSpace(rawType) == ""
	if t != core.DataTypeCategorical && !untyped {
		return t, nil, nil
	}
	choices, err := ParseChoices(rawChoices)
	if err != nil {
		return t, nil, err
	}
	if untyped && len(choices) > 0 {
		t = core.DataTypeCategorical
	}
	if len(choices) == 0 && strings.EqualFold(strings.TrimSpace(rawType), "yesno") {
		choices = yesNoChoices
	}
	return t, choices, nil
}

// FieldTypes returns the accepted raw field type names.
func FieldTypes() []string {
	out := make([]string, 0, len(fieldTypes))
	for k := range fieldTypes {
		out = append(out, k)
	}
	return out
}
