// Package report collects harmonization findings and reads and writes the
// per-phase error logs.
//
// An error log is a CSV file with the columns in Header. A log that is
// absent or has no data rows means the phase found nothing, and is the only
// signal later phases use to decide whether a study may proceed.
package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/leapstack-labs/harmonize/internal/csvio"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// Header is the column layout of an error log.
var Header = []string{"study_id", "phase", "file", "row", "field", "severity", "message", "code"}

// =============================================================================
// Collector
// =============================================================================

// Collector accumulates the findings of one study phase. Findings keep the
// order they were added in. A Collector is safe for concurrent use.
type Collector struct {
	study string
	phase core.Phase

	mu   sync.Mutex
	errs []core.HarmonizationError
}

// NewCollector creates a collector bound to a study phase.
func NewCollector(study string, phase core.Phase) *Collector {
	return &Collector{study: study, phase: phase}
}

// Add records findings, filling in the study and phase.
func (c *Collector) Add(errs ...core.HarmonizationError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range errs {
		e.StudyID = c.study
		e.Phase = c.phase
		c.errs = append(c.errs, e)
	}
}

// Extend is Add for a slice.
func (c *Collector) Extend(errs []core.HarmonizationError) {
	c.Add(errs...)
}

// Addf records a single finding.
func (c *Collector) Addf(file string, sev core.Severity, code core.Code, format string, args ...any) {
	c.Add(core.HarmonizationError{
		File:     file,
		Severity: sev,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Len returns the number of findings.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}

// Errors returns a copy of the findings in insertion order.
func (c *Collector) Errors() []core.HarmonizationError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.HarmonizationError(nil), c.errs...)
}

// Counts returns the number of errors and warnings.
func (c *Collector) Counts() (errs, warnings int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Count(c.errs)
}

// HasErrors reports whether any finding has error severity.
func (c *Collector) HasErrors() bool {
	n, _ := c.Counts()
	return n > 0
}

// Count returns the number of errors and warnings in errs.
func Count(errs []core.HarmonizationError) (nerr, nwarn int) {
	for _, e := range errs {
		if e.IsError() {
			nerr++
		} else {
			nwarn++
		}
	}
	return nerr, nwarn
}

// =============================================================================
// Writing
// =============================================================================

// Sort orders findings by file, then row with rows of 0 last, then field.
// The sort is stable so findings on the same cell keep their order.
func Sort(errs []core.HarmonizationError) {
	sort.SliceStable(errs, func(i, j int) bool {
		a, b := errs[i], errs[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Row != b.Row {
			switch {
			case a.Row == 0:
				return false
			case b.Row == 0:
				return true
			}
			return a.Row < b.Row
		}
		return a.Field < b.Field
	})
}

// WriteTo writes errs as a log to w. errs is sorted in place.
func WriteTo(w io.Writer, errs []core.HarmonizationError) error {
	Sort(errs)
	cw := csvio.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, e := range errs {
		row := ""
		if e.Row > 0 {
			row = strconv.Itoa(e.Row)
		}
		if err := cw.Write([]string{
			e.StudyID,
			strconv.Itoa(int(e.Phase)),
			e.File,
			row,
			e.Field,
			e.Severity.String(),
			e.Message,
			string(e.Code),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write writes a sorted copy of errs to path atomically. The same findings
// always produce the same bytes.
func Write(path string, errs []core.HarmonizationError) error {
	sorted := append([]core.HarmonizationError(nil), errs...)
	return csvio.WriteFileAtomic(path, func(w io.Writer) error {
		return WriteTo(w, sorted)
	})
}

// =============================================================================
// Reading
// =============================================================================

// Read parses a log written by Write. A missing file yields no findings.
func Read(path string) ([]core.HarmonizationError, error) {
	tbl, err := csvio.ReadTableFile(path)
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, csvio.ErrEmptyFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	idx := make([]int, len(Header))
	for i, name := range Header {
		if idx[i] = tbl.Column(name); idx[i] < 0 {
			return nil, fmt.Errorf("%s: column %q missing", path, name)
		}
	}
	out := make([]core.HarmonizationError, 0, len(tbl.Rows))
	for i, r := range tbl.Rows {
		e := core.HarmonizationError{
			StudyID: csvio.Cell(r, idx[0]),
			File:    csvio.Cell(r, idx[2]),
			Field:   csvio.Cell(r, idx[4]),
			Message: csvio.Cell(r, idx[6]),
			Code:    core.Code(csvio.Cell(r, idx[7])),
		}
		phase, err := strconv.Atoi(csvio.Cell(r, idx[1]))
		if err != nil {
			return nil, fmt.Errorf("%s:%d: bad phase: %w", path, tbl.Lines[i], err)
		}
		e.Phase = core.Phase(phase)
		if s := csvio.Cell(r, idx[3]); s != "" {
			if e.Row, err = strconv.Atoi(s); err != nil {
				return nil, fmt.Errorf("%s:%d: bad row: %w", path, tbl.Lines[i], err)
			}
		}
		sev, ok := core.ParseSeverity(csvio.Cell(r, idx[5]))
		if !ok {
			return nil, fmt.Errorf("%s:%d: bad severity %q", path, tbl.Lines[i], csvio.Cell(r, idx[5]))
		}
		e.Severity = sev
		out = append(out, e)
	}
	return out, nil
}

// Clean reports whether the log at path allows the next phase to run: the
// file is absent or holds no findings of any severity.
func Clean(path string) (bool, error) {
	errs, err := Read(path)
	if err != nil {
		return false, err
	}
	return len(errs) == 0, nil
}

// ErrorFree reports whether the log at path holds no error-severity
// findings. Warnings are allowed.
func ErrorFree(path string) (bool, error) {
	errs, err := Read(path)
	if err != nil {
		return false, err
	}
	n, _ := Count(errs)
	return n == 0, nil
}
