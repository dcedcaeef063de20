// Package transform rewrites a study's DATA file into the harmonized schema
// described by a set of field mappings.
//
// The transformer streams: it holds one input record and one output record
// at a time, so memory use does not depend on file size. Problems with
// individual cells or rows are reported as findings and never abort the
// stream; only I/O failures and an unreadable header do.
package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/leapstack-labs/harmonize/internal/csvio"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// ctxCheckInterval is how many rows pass between context checks.
const ctxCheckInterval = 1024

// Result summarizes one transform.
type Result struct {
	Findings     []core.HarmonizationError
	RowsRead     int
	RowsWritten  int
	RowsOmitted  int
	CellsBlanked int
}

// Config holds transformer configuration.
type Config struct {
	// Logger is optional; a discard logger is used when nil.
	Logger *slog.Logger
	// Required lists reference fields every harmonized file must carry,
	// whether or not the submission mentions them.
	Required []*core.FieldDefinition
}

// Transformer applies field mappings to DATA files.
type Transformer struct {
	logger   *slog.Logger
	required []*core.FieldDefinition
}

// New creates a Transformer.
func New(cfg Config) *Transformer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Transformer{logger: logger, required: cfg.Required}
}

// column is one output column resolved against the input header.
type column struct {
	m   core.FieldMapping
	src int // input position, -1 when the column is absent
}

// Transform reads CSV from in and writes the harmonized CSV to out. Output
// columns are the writable mappings in order. Findings carry no file name;
// TransformFile fills it in.
//
// When a required field has no writable mapping, no row can be complete:
// every row is omitted and one T002 finding without a row number is
// reported per unsatisfied field.
func (t *Transformer) Transform(ctx context.Context, in io.Reader, mappings []core.FieldMapping, out io.Writer) (Result, error) {
	var res Result
	fail := func(row int, field string, code core.Code, format string, args ...any) {
		res.Findings = append(res.Findings, core.HarmonizationError{
			Row:      row,
			Field:    field,
			Severity: core.SeverityError,
			Code:     code,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	cr := csvio.NewReader(in)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return res, csvio.ErrEmptyFile
	}
	if err != nil {
		return res, fmt.Errorf("reading header: %w", err)
	}
	header = append([]string(nil), header...)
	cr.ReuseRecord = true

	var cols []column
	for _, m := range mappings {
		if !m.Writable() {
			continue
		}
		c := column{m: m, src: csvio.IndexOf(header, m.SubmissionIdentifier)}
		if c.src < 0 {
			fail(1, m.SubmissionIdentifier, core.CodeMissingColumn,
				"Column %q is missing from the data file; its values are treated as empty", m.SubmissionIdentifier)
		}
		cols = append(cols, c)
	}

	unsatisfied := t.unsatisfied(mappings)

	cw := csvio.NewWriter(out)
	outHeader := make([]string, len(cols))
	for i, c := range cols {
		outHeader[i] = c.m.TargetIdentifier
	}
	if err := cw.Write(outHeader); err != nil {
		return res, err
	}

	record := make([]string, len(cols))
	for {
		if res.RowsRead%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("reading row %d: %w", res.RowsRead+2, err)
		}
		res.RowsRead++
		if len(unsatisfied) > 0 {
			res.RowsOmitted++
			continue
		}
		line, _ := cr.FieldPos(0)

		if len(rec) != len(header) {
			fail(line, "", core.CodeMalformedRow, "Row has %d values, header has %d; row omitted", len(rec), len(header))
			res.RowsOmitted++
			continue
		}

		omit := false
		for i, c := range cols {
			v, keep := t.cell(rec, c, line, fail, &res)
			if !keep {
				omit = true
			}
			record[i] = v
		}
		if omit {
			res.RowsOmitted++
			continue
		}
		if err := cw.Write(record); err != nil {
			return res, err
		}
		res.RowsWritten++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return res, err
	}
	for _, field := range unsatisfied {
		fail(0, field, core.CodeRequiredMissing,
			"Required field %q has no usable mapping; all %d rows omitted", field, res.RowsRead)
	}
	t.logger.Debug("transformed data",
		"rows_read", res.RowsRead,
		"rows_written", res.RowsWritten,
		"rows_omitted", res.RowsOmitted,
		"findings", len(res.Findings))
	return res, nil
}

// cell computes one output value. keep is false when the row must be
// omitted.
func (t *Transformer) cell(rec []string, c column, line int, fail func(int, string, core.Code, string, ...any), res *Result) (string, bool) {
	m := c.m
	v := csvio.Cell(rec, c.src)

	if v != "" && m.Submission != nil && !m.Submission.Allows(v) {
		fail(line, m.SubmissionIdentifier, core.CodeCorruptValue,
			"Value %q is not an allowed value of %q; row omitted", v, m.SubmissionIdentifier)
		return "", false
	}

	if v != "" {
		// codes without a recoding pair are allowed values and pass through
		v, _ = m.Recoding.Apply(v)
	}

	if v != "" && m.Conversion != nil {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			if m.Target.Required {
				fail(line, m.SubmissionIdentifier, core.CodeConversion,
					"Value %q cannot be converted from %s to %s; row omitted", v, m.Conversion.From, m.Conversion.To)
				return "", false
			}
			fail(line, m.SubmissionIdentifier, core.CodeConversion,
				"Value %q cannot be converted from %s to %s; cell left empty", v, m.Conversion.From, m.Conversion.To)
			res.CellsBlanked++
			v = ""
		} else {
			v = FormatNumber(m.Conversion.Convert(f))
		}
	}

	if v == "" && m.Target.Required {
		fail(line, m.TargetIdentifier, core.CodeRequiredMissing,
			"Required field %q is empty; row omitted", m.TargetIdentifier)
		return "", false
	}
	return v, true
}

// unsatisfied returns the required fields, in mapping order and then
// reference order, that no writable mapping produces. A required field is a
// required target or submission field of an excluded or unmatched mapping,
// or a required reference field.
func (t *Transformer) unsatisfied(mappings []core.FieldMapping) []string {
	written := make(map[string]bool)
	for _, m := range mappings {
		if m.Writable() {
			written[core.Key(m.TargetIdentifier)] = true
		}
	}

	var out []string
	seen := make(map[string]bool)
	add := func(field string) {
		key := core.Key(field)
		if field == "" || written[key] || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, field)
	}
	for _, m := range mappings {
		if m.Writable() {
			continue
		}
		switch {
		case m.Target != nil && m.Target.Required:
			add(m.TargetIdentifier)
		case m.Submission != nil && m.Submission.Required:
			if m.TargetIdentifier != "" && written[core.Key(m.TargetIdentifier)] {
				continue
			}
			add(m.SubmissionIdentifier)
		}
	}
	for _, d := range t.required {
		if d.Required {
			add(d.Identifier)
		}
	}
	return out
}

// FormatNumber renders a converted value with the shortest representation
// after rounding away floating point noise below 1e-9.
func FormatNumber(v float64) string {
	r := math.Round(v*1e9) / 1e9
	if r == 0 {
		r = 0 // drop negative zero
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// TransformFile transforms the DATA file at dataPath into outPath. The
// output is written to a temporary file next to outPath and renamed into
// place only when the stream completes.
func (t *Transformer) TransformFile(ctx context.Context, dataPath string, mappings []core.FieldMapping, outPath string) (Result, error) {
	in, err := os.Open(dataPath)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = in.Close() }()

	var res Result
	err = csvio.WriteFileAtomic(outPath, func(w io.Writer) error {
		var terr error
		res, terr = t.Transform(ctx, in, mappings, w)
		return terr
	})
	name := filepath.Base(dataPath)
	for i := range res.Findings {
		res.Findings[i].File = name
	}
	if err != nil {
		return res, fmt.Errorf("transforming %s: %w", name, err)
	}
	return res, nil
}
