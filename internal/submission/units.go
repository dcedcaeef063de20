package submission

import (
	"fmt"
	"path/filepath"

	"github.com/leapstack-labs/harmonize/internal/csvio"
	"github.com/leapstack-labs/harmonize/internal/dictionary"
	"github.com/leapstack-labs/harmonize/internal/units"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// StandardizeUnits rewrites the unit column of the DICT at path in place,
// replacing every known spelling with its canonical unit name. Unknown
// units are left as written and reported as warnings. A DICT without a unit
// column is left untouched.
func StandardizeUnits(path string, table *units.Table) ([]core.HarmonizationError, error) {
	tbl, err := csvio.ReadTableFile(path)
	if err != nil {
		return nil, err
	}
	layout := dictionary.ResolveLayout(tbl.Header)
	if !layout.Has(dictionary.ColUnit) {
		return nil, nil
	}
	col := layout.Index(dictionary.ColUnit)
	name := filepath.Base(path)

	var (
		out     []core.HarmonizationError
		changed bool
	)
	for i, row := range tbl.Rows {
		raw := csvio.Cell(row, col)
		if raw == "" {
			continue
		}
		canonical, ok := table.Normalize(raw)
		if !ok {
			out = append(out, core.HarmonizationError{
				File:     name,
				Row:      tbl.Lines[i],
				Field:    layout.Get(row, dictionary.ColIdentifier),
				Severity: core.SeverityWarning,
				Code:     core.CodeDictUnknownUnit,
				Message:  fmt.Sprintf("Unit %q is not in the unit table", raw),
			})
			continue
		}
		if canonical != row[col] {
			row[col] = canonical
			changed = true
		}
	}
	if !changed {
		return out, nil
	}
	return out, csvio.WriteTableFile(path, tbl.Header, tbl.Rows)
}
