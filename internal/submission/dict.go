// Package submission reads and checks the files a study submits: the
// DATA/DICT/META triplets and their naming.
package submission

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/harmonize/internal/csvio"
	"github.com/leapstack-labs/harmonize/internal/dictionary"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// RequiredDictColumns are the REDCap export columns a submission DICT must
// carry. Each may be spelled with any alias dictionary.ResolveLayout accepts.
var RequiredDictColumns = []dictionary.Column{
	dictionary.ColIdentifier,
	dictionary.ColLabel,
	dictionary.ColSection,
	dictionary.ColType,
	dictionary.ColUnit,
	dictionary.ColAllowedValues,
	dictionary.ColDescription,
	dictionary.ColCDEReference,
}

// Violation is one problem found in a submission DICT.
type Violation struct {
	Line    int
	Field   string
	Code    core.Code
	Message string
}

// FormatError lists every violation found in a submission DICT. The parse
// is not aborted at the first problem so users can fix them in one pass.
type FormatError struct {
	File       string
	Violations []Violation
}

func (e *FormatError) Error() string {
	if len(e.Violations) == 1 {
		v := e.Violations[0]
		return fmt.Sprintf("dictionary %s:%d: %s", e.File, v.Line, v.Message)
	}
	return fmt.Sprintf("dictionary %s: %d format violations", e.File, len(e.Violations))
}

// Findings converts the violations to findings.
func (e *FormatError) Findings() []core.HarmonizationError {
	out := make([]core.HarmonizationError, len(e.Violations))
	for i, v := range e.Violations {
		out[i] = core.HarmonizationError{
			File:     e.File,
			Row:      v.Line,
			Field:    v.Field,
			Severity: core.SeverityError,
			Code:     v.Code,
			Message:  v.Message,
		}
	}
	return out
}

// DictParser parses submission dictionaries.
type DictParser struct {
	// Required overrides RequiredDictColumns when non-nil.
	Required []dictionary.Column
}

// ParseDictionary parses a DICT with the default required columns.
func ParseDictionary(r io.Reader, name string) ([]*core.FieldDefinition, error) {
	return DictParser{}.Parse(r, name)
}

// ParseDictionaryFile parses the DICT at path.
func ParseDictionaryFile(path string) ([]*core.FieldDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ParseDictionary(f, filepath.Base(path))
}

// Parse reads a submission DICT and returns its fields in file order.
// Format problems are returned together as a *FormatError; any other error
// means the file could not be read.
func (p DictParser) Parse(r io.Reader, name string) ([]*core.FieldDefinition, error) {
	tbl, err := csvio.ReadTable(r)
	if err != nil {
		if errors.Is(err, csvio.ErrEmptyFile) {
			return nil, &FormatError{File: name, Violations: []Violation{{Line: 1, Code: core.CodeDictMissingColumn, Message: "dictionary has no header row"}}}
		}
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	fe := &FormatError{File: name}
	layout := dictionary.ResolveLayout(tbl.Header)
	required := p.Required
	if required == nil {
		required = RequiredDictColumns
	}
	for _, c := range required {
		if !layout.Has(c) {
			fe.Violations = append(fe.Violations, Violation{
				Line:    1,
				Field:   dictionary.REDCapName(c),
				Code:    core.CodeDictMissingColumn,
				Message: fmt.Sprintf("Required column %q is missing", dictionary.REDCapName(c)),
			})
		}
	}
	if !layout.Has(dictionary.ColIdentifier) {
		return nil, fe
	}

	seen := make(map[string]int)
	defs := make([]*core.FieldDefinition, 0, len(tbl.Rows))
	for i, row := range tbl.Rows {
		line := tbl.Lines[i]
		id := layout.Get(row, dictionary.ColIdentifier)
		if id == "" {
			fe.Violations = append(fe.Violations, Violation{Line: line, Code: core.CodeDictEmptyID, Message: "Field identifier is empty"})
			continue
		}
		if first, dup := seen[core.Key(id)]; dup {
			fe.Violations = append(fe.Violations, Violation{
				Line: line, Field: id, Code: core.CodeDictDuplicateID,
				Message: fmt.Sprintf("Field %q is already defined on line %d", id, first),
			})
			continue
		}
		seen[core.Key(id)] = line

		rawType := layout.Get(row, dictionary.ColType)
		dt, choices, err := dictionary.ResolveType(rawType, layout.Get(row, dictionary.ColAllowedValues))
		switch {
		case errors.Is(err, dictionary.ErrUnknownType):
			fe.Violations = append(fe.Violations, Violation{
				Line: line, Field: id, Code: core.CodeDictUnknownType,
				Message: fmt.Sprintf("Field type %q is not supported", rawType),
			})
			continue
		case err != nil:
			fe.Violations = append(fe.Violations, Violation{
				Line: line, Field: id, Code: core.CodeDictBadChoices,
				Message: strings.TrimPrefix(err.Error(), dictionary.ErrMalformedChoices.Error()+": "),
			})
			continue
		}

		defs = append(defs, &core.FieldDefinition{
			Identifier:    id,
			Label:         layout.Get(row, dictionary.ColLabel),
			Type:          dt,
			FieldType:     rawType,
			AllowedValues: choices,
			Unit:          layout.Get(row, dictionary.ColUnit),
			Description:   layout.Get(row, dictionary.ColDescription),
			Section:       layout.Get(row, dictionary.ColSection),
			Source:        core.AuthoritySubmission,
			Required:      dictionary.ParseBool(layout.Get(row, dictionary.ColRequired)),
			Origin:        name,
			Line:          line,
		})
	}

	if len(fe.Violations) > 0 {
		return defs, fe
	}
	return defs, nil
}
