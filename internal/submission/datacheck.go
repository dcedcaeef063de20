package submission

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/harmonize/internal/csvio"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// DefaultPrimaryKey is the field identifying a participant row.
const DefaultPrimaryKey = "id"

// DateLayouts are the accepted spellings of date fields.
var DateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"15:04",
	"15:04:05",
}

// DataCheckOptions configures CheckDataAgainstDict.
type DataCheckOptions struct {
	// PrimaryKey defaults to DefaultPrimaryKey. Set NoPrimaryKey to skip
	// key checks entirely.
	PrimaryKey   string
	NoPrimaryKey bool
	// MaxFindingsPerField caps value findings per column; 0 means 100.
	MaxFindingsPerField int
}

// CheckDataAgainstDict streams the DATA file at path once and compares it
// with the fields its DICT declares: every column must be declared, every
// declared field must be present, the primary key must be present, filled
// and unique, and values must fit their declared type.
func CheckDataAgainstDict(path string, defs []*core.FieldDefinition, opts DataCheckOptions) ([]core.HarmonizationError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return checkData(f, filepath.Base(path), defs, opts)
}

func checkData(r io.Reader, name string, defs []*core.FieldDefinition, opts DataCheckOptions) ([]core.HarmonizationError, error) {
	if opts.PrimaryKey == "" {
		opts.PrimaryKey = DefaultPrimaryKey
	}
	if opts.MaxFindingsPerField <= 0 {
		opts.MaxFindingsPerField = 100
	}

	var out []core.HarmonizationError
	add := func(row int, field string, code core.Code, format string, args ...any) {
		out = append(out, core.HarmonizationError{
			File:     name,
			Row:      row,
			Field:    field,
			Severity: core.SeverityError,
			Code:     code,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	cr := csvio.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, csvio.ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	header = append([]string(nil), header...)

	byKey := make(map[string]*core.FieldDefinition, len(defs))
	for _, d := range defs {
		byKey[core.Key(d.Identifier)] = d
	}
	cols := make([]*core.FieldDefinition, len(header))
	present := make(map[string]bool, len(header))
	for i, h := range header {
		k := core.Key(h)
		present[k] = true
		d, ok := byKey[k]
		if !ok {
			add(1, strings.TrimSpace(h), core.CodeColumnNotInDict, "Column %q is not defined in the dictionary", strings.TrimSpace(h))
			continue
		}
		cols[i] = d
	}
	for _, d := range defs {
		if !present[core.Key(d.Identifier)] {
			add(0, d.Identifier, core.CodeFieldNotInData, "Dictionary field %q is not a column of the data file", d.Identifier)
		}
	}

	keyCol := -1
	if !opts.NoPrimaryKey {
		if _, ok := byKey[core.Key(opts.PrimaryKey)]; !ok {
			add(0, opts.PrimaryKey, core.CodeNoPrimaryKey, "Primary key %q is not defined in the dictionary", opts.PrimaryKey)
		}
		keyCol = csvio.IndexOf(header, opts.PrimaryKey)
	}

	seenKeys := make(map[string]int)
	type tally struct {
		n    int
		code core.Code
	}
	perField := make([]tally, len(header))
	valueErr := func(i, line int, code core.Code, format string, args ...any) {
		perField[i].n++
		perField[i].code = code
		if perField[i].n <= opts.MaxFindingsPerField {
			add(line, cols[i].Identifier, code, format, args...)
		}
	}

	cr.ReuseRecord = true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("reading %s: %w", name, err)
		}
		line, _ := cr.FieldPos(0)

		if keyCol >= 0 {
			key := csvio.Cell(rec, keyCol)
			switch first, dup := seenKeys[key]; {
			case key == "":
				add(line, opts.PrimaryKey, core.CodeEmptyPrimaryKey, "Primary key %q is empty", opts.PrimaryKey)
			case dup:
				add(line, opts.PrimaryKey, core.CodeDuplicatePrimaryKey, "Primary key value %q already used on line %d", key, first)
			default:
				seenKeys[key] = line
			}
		}

		for i, d := range cols {
			if d == nil {
				continue
			}
			v := csvio.Cell(rec, i)
			if v == "" {
				continue
			}
			switch d.Type {
			case core.DataTypeNumeric:
				if _, err := strconv.ParseFloat(v, 64); err != nil {
					valueErr(i, line, core.CodeNotNumeric, "Value %q is not numeric", v)
				}
			case core.DataTypeDate:
				if !IsDate(v) {
					valueErr(i, line, core.CodeNotDate, "Value %q is not a date", v)
				}
			case core.DataTypeCategorical:
				if !d.Allows(v) {
					valueErr(i, line, core.CodeValueNotAllowed, "Value %q is not one of the allowed values", v)
				}
			}
		}
	}

	for i, t := range perField {
		if t.n > opts.MaxFindingsPerField {
			add(0, cols[i].Identifier, t.code, "%d more invalid values not listed", t.n-opts.MaxFindingsPerField)
		}
	}
	return out, nil
}

// IsDate reports whether v parses with one of DateLayouts.
func IsDate(v string) bool {
	for _, layout := range DateLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}
