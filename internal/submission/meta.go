package submission

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/harmonize/internal/csvio"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// META file layout.
const (
	MetaLabelColumn       = "Field Label"
	MetaChoicesColumn     = "Choices"
	MetaDescriptionColumn = "Description"

	MetaFileCountRow = "number_of_datafiles_in_this_package"
	MetaFileNameRow  = "datafile_names - add_additional_rows_as_needed"
	MetaDigestRow    = "data_file_sha256_digest"

	MetaProjectRow     = "project_num"
	MetaSubprojectRow  = "subproject"
	MetaPHSRow         = "phs_identifier"
	MetaPublicationRow = "publications - add_additional_rows_as_needed"
)

var metaColumns = []string{MetaLabelColumn, MetaChoicesColumn, MetaDescriptionColumn}

// CheckMeta validates the META file at path. Checks run in stages and stop
// at the first stage that reports an error, so a file with the wrong shape
// does not also produce a row-level finding for every row.
func CheckMeta(path string) ([]core.HarmonizationError, error) {
	tbl, err := csvio.ReadTableFile(path)
	if err != nil {
		return nil, err
	}
	return checkMetaTable(tbl, filepath.Base(path)), nil
}

func checkMetaTable(tbl *csvio.Table, name string) []core.HarmonizationError {
	var out []core.HarmonizationError
	fail := func(row int, sev core.Severity, code core.Code, format string, args ...any) {
		out = append(out, core.HarmonizationError{
			File:     name,
			Row:      row,
			Severity: sev,
			Code:     code,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	if len(tbl.Header) != len(metaColumns) {
		fail(1, core.SeverityError, core.CodeMetaColumnCount,
			"Metadata file has %d columns, %d columns are required", len(tbl.Header), len(metaColumns))
		return out
	}
	for i, want := range metaColumns {
		if tbl.Header[i] != want {
			fail(1, core.SeverityError, core.CodeMetaColumnNames, "%s column missing", want)
		}
	}
	if len(out) > 0 {
		return out
	}

	countRows := metaRows(tbl, MetaFileCountRow)
	if len(countRows) != 1 {
		fail(0, core.SeverityError, core.CodeMetaRowMissing, "Row '%s' is missing", MetaFileCountRow)
		return out
	}
	if n := csvio.Cell(tbl.Rows[countRows[0]], 1); n != "1" {
		fail(tbl.Lines[countRows[0]], core.SeverityError, core.CodeMetaFileCount,
			"%s is %s, it must be 1", MetaFileCountRow, n)
	}

	nameRows := metaRows(tbl, MetaFileNameRow)
	if len(nameRows) != 1 {
		fail(0, core.SeverityError, core.CodeMetaRowMissing, "Row '%s' is missing", MetaFileNameRow)
	}
	if len(out) > 0 {
		return out
	}

	row := tbl.Rows[nameRows[0]]
	line := tbl.Lines[nameRows[0]]
	want := name
	if i := strings.LastIndex(name, "_META"); i >= 0 {
		want = name[:i] + "_DATA" + name[i+len("_META"):]
	}
	if got := csvio.Cell(row, 1); got != want {
		fail(line, core.SeverityError, core.CodeMetaFileName, "Data file name: %s doesn't match %s", got, want)
	}
	if csvio.Cell(row, 2) == "" {
		fail(line, core.SeverityWarning, core.CodeMetaNoDescription, "Data file description is missing")
	}
	return out
}

func metaRows(tbl *csvio.Table, label string) []int {
	var idx []int
	for i, row := range tbl.Rows {
		if csvio.Cell(row, 0) == label {
			idx = append(idx, i)
		}
	}
	return idx
}

// RewriteMeta copies the META file at src to dst, pointing its data file
// row at dataName and recording digest in the digest row. The digest row is
// appended when absent.
func RewriteMeta(src, dst, dataName, digest string) error {
	tbl, err := csvio.ReadTableFile(src)
	if err != nil {
		return err
	}
	if len(tbl.Header) < 2 {
		return fmt.Errorf("%s: metadata file has %d columns", filepath.Base(src), len(tbl.Header))
	}
	rows := make([][]string, 0, len(tbl.Rows)+1)
	hasDigest := false
	for _, r := range tbl.Rows {
		row := make([]string, len(tbl.Header))
		copy(row, r)
		switch csvio.Cell(row, 0) {
		case MetaFileNameRow:
			row[1] = dataName
		case MetaDigestRow:
			row[1] = digest
			hasDigest = true
		}
		rows = append(rows, row)
	}
	if !hasDigest {
		row := make([]string, len(tbl.Header))
		row[0], row[1] = MetaDigestRow, digest
		if len(row) > 2 {
			row[2] = "SHA-256 digest of " + dataName
		}
		rows = append(rows, row)
	}
	return csvio.WriteTableFile(dst, tbl.Header, rows)
}

// MetaInfo is the descriptive part of a META file.
type MetaInfo struct {
	Project       string
	Subproject    string
	PHSIdentifier string
	// Publications holds the non-empty publication rows in file order.
	Publications []string
}

// ReadMetaInfo reads the project identifiers and publications of the META
// file at path. Missing rows leave their fields empty.
func ReadMetaInfo(path string) (MetaInfo, error) {
	tbl, err := csvio.ReadTableFile(path)
	if err != nil {
		return MetaInfo{}, err
	}
	var info MetaInfo
	for _, row := range tbl.Rows {
		v := csvio.Cell(row, 1)
		switch csvio.Cell(row, 0) {
		case MetaProjectRow:
			info.Project = v
		case MetaSubprojectRow:
			info.Subproject = v
		case MetaPHSRow:
			info.PHSIdentifier = v
		case MetaPublicationRow:
			if v != "" {
				info.Publications = append(info.Publications, v)
			}
		}
	}
	return info, nil
}
