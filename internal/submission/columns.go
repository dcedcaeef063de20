package submission

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/harmonize/pkg/core"
)

// CheckColumns reports problems with the raw column names of a CSV header:
// empty names, pandas-style "Unnamed" placeholders, duplicates and names
// padded with whitespace. Call it before the header is trimmed.
func CheckColumns(file string, header []string) []core.HarmonizationError {
	var out []core.HarmonizationError
	add := func(field string, sev core.Severity, code core.Code, format string, args ...any) {
		out = append(out, core.HarmonizationError{
			File:     file,
			Row:      1,
			Field:    field,
			Severity: sev,
			Code:     code,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	seen := make(map[string]int, len(header))
	for i, raw := range header {
		name := strings.TrimSpace(raw)
		switch {
		case name == "":
			add("", core.SeverityError, core.CodeEmptyColumnName, "Column %d has an empty name", i+1)
			continue
		case strings.Contains(name, "Unnamed"):
			add(name, core.SeverityError, core.CodeUnnamedColumn, "Column %d is unnamed (%q)", i+1, name)
			continue
		}
		key := strings.ToLower(name)
		if first, dup := seen[key]; dup {
			add(name, core.SeverityError, core.CodeDuplicateColumn, "Column %q duplicates column %d", name, first)
			continue
		}
		seen[key] = i + 1
		if name != raw {
			add(name, core.SeverityWarning, core.CodeColumnWhitespace, "Column header %q contains leading or trailing spaces", raw)
		}
	}
	return out
}
