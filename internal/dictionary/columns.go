package dictionary

import (
	"strings"

	"github.com/leapstack-labs/harmonize/internal/csvio"
)

// Column names a logical dictionary column.
type Column int

// Logical dictionary columns.
const (
	ColIdentifier Column = iota
	ColLabel
	ColType
	ColTier
	ColAllowedValues
	ColUnit
	ColAlternateNames
	ColRequired
	ColDescription
	ColSection
	ColCDEReference
	ColTarget
	ColRecoding
	numColumns
)

// Header names accepted for each column, compared case-insensitively.
// The first entry of each list is the REDCap export name where one exists.
var aliases = [numColumns][]string{
	ColIdentifier:     {"Variable / Field Name", "identifier", "field_name", "variable"},
	ColLabel:          {"Field Label", "label"},
	ColType:           {"Field Type", "type", "data_type"},
	ColTier:           {"tier", "authority"},
	ColAllowedValues:  {"Choices, Calculations, OR Slider Labels", "allowed_values", "choices"},
	ColUnit:           {"Unit", "units"},
	ColAlternateNames: {"alternate_names", "aliases", "alternate names"},
	ColRequired:       {"required", "Required Field?"},
	ColDescription:    {"Field Note", "description"},
	ColSection:        {"Section Header", "section"},
	ColCDEReference:   {"CDE Reference", "cde_reference"},
	ColTarget:         {"target", "target_identifier"},
	ColRecoding:       {"value_recoding", "recoding"},
}

// REDCapName returns the REDCap export header for a column, or the first
// alias when REDCap has none.
func REDCapName(c Column) string {
	return aliases[c][0]
}

// Layout maps logical columns to header positions.
type Layout struct {
	idx [numColumns]int
}

// ResolveLayout locates every known column in header.
func ResolveLayout(header []string) Layout {
	var l Layout
	for c := Column(0); c < numColumns; c++ {
		l.idx[c] = -1
		for _, name := range aliases[c] {
			if i := csvio.IndexOf(header, name); i >= 0 {
				l.idx[c] = i
				break
			}
		}
	}
	return l
}

// Has reports whether the column is present.
func (l Layout) Has(c Column) bool {
	return l.idx[c] >= 0
}

// Index returns the header position of column c, or -1.
func (l Layout) Index(c Column) int {
	return l.idx[c]
}

// Get returns the trimmed cell for column c, or "".
func (l Layout) Get(row []string, c Column) string {
	return csvio.Cell(row, l.idx[c])
}

// ParseBool interprets a yes/no cell.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "true", "1", "x":
		return true
	}
	return false
}
