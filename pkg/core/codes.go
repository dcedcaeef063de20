package core

import "sort"

// Code is a stable finding identifier written to error logs.
type Code string

// =============================================================================
// File inventory
// =============================================================================

const (
	CodeUnrecognizedFile Code = "F001"
	CodeTripletMismatch  Code = "F002"
	CodeMissingDict      Code = "F003"
	CodeMissingMeta      Code = "F004"
	CodeMissingData      Code = "F005"
	CodeStudyPrefix      Code = "F006"
	CodeMissingInputDir  Code = "F007"
)

// =============================================================================
// META file
// =============================================================================

const (
	CodeMetaColumnCount   Code = "M001"
	CodeMetaColumnNames   Code = "M002"
	CodeMetaRowMissing    Code = "M003"
	CodeMetaFileCount     Code = "M004"
	CodeMetaFileName      Code = "M005"
	CodeMetaNoDescription Code = "M006"
)

// =============================================================================
// CSV and encoding
// =============================================================================

const (
	CodeNotUTF8          Code = "C001"
	CodeConvertedLatin1  Code = "C002"
	CodeMalformedCSV     Code = "C003"
	CodeEmptyColumnName  Code = "C004"
	CodeUnnamedColumn    Code = "C005"
	CodeDuplicateColumn  Code = "C006"
	CodeColumnWhitespace Code = "C007"
)

// =============================================================================
// Submission dictionary
// =============================================================================

const (
	CodeDictMissingColumn Code = "D001"
	CodeDictEmptyID       Code = "D002"
	CodeDictDuplicateID   Code = "D003"
	CodeDictUnknownType   Code = "D004"
	CodeDictBadChoices    Code = "D005"
	CodeDictUnknownUnit   Code = "D006"
)

// =============================================================================
// DATA against DICT
// =============================================================================

const (
	CodeColumnNotInDict     Code = "X001"
	CodeFieldNotInData      Code = "X002"
	CodeNoPrimaryKey        Code = "X003"
	CodeEmptyPrimaryKey     Code = "X004"
	CodeDuplicatePrimaryKey Code = "X005"
	CodeNotNumeric          Code = "V001"
	CodeNotDate             Code = "V002"
	CodeValueNotAllowed     Code = "V003"
)

// =============================================================================
// Reconciliation
// =============================================================================

const (
	CodeUnmatched         Code = "R001"
	CodeNoLabelMatch      Code = "R002"
	CodeLegacyTranslated  Code = "R003"
	CodeUnitUnconvertible Code = "R004"
	CodeLegacyNoTarget    Code = "R005"
	CodeTargetClaimed     Code = "R006"
	CodeLegacyBadHint     Code = "R007"
)

// =============================================================================
// Transformation
// =============================================================================

const (
	CodeCorruptValue    Code = "T001"
	CodeRequiredMissing Code = "T002"
	CodeConversion      Code = "T003"
	CodeMalformedRow    Code = "T004"
	CodeMissingColumn   Code = "T005"
)

// =============================================================================
// External validation and consistency
// =============================================================================

const (
	CodeValidatorFinding Code = "E001"
	CodeNoTransformCopy  Code = "P001"
	CodeMissingCDE       Code = "P002"
)

// CodeInfo describes a finding code for documentation and tooling.
type CodeInfo struct {
	Code            Code     `json:"code"`
	Group           string   `json:"group"`
	Summary         string   `json:"summary"`
	DefaultSeverity Severity `json:"default_severity"`
}

var catalog = map[Code]CodeInfo{}

func register(code Code, group, summary string, sev Severity) {
	catalog[code] = CodeInfo{Code: code, Group: group, Summary: summary, DefaultSeverity: sev}
}

func init() {
	register(CodeUnrecognizedFile, "inventory", "file name does not follow the triplet naming convention", SeverityError)
	register(CodeTripletMismatch, "inventory", "DATA, DICT and META file counts differ", SeverityError)
	register(CodeMissingDict, "inventory", "DATA file has no DICT file", SeverityError)
	register(CodeMissingMeta, "inventory", "DATA file has no META file", SeverityError)
	register(CodeMissingData, "inventory", "DICT or META file has no DATA file", SeverityError)
	register(CodeStudyPrefix, "inventory", "file name does not start with the study identifier", SeverityError)
	register(CodeMissingInputDir, "inventory", "study input directory does not exist", SeverityError)

	register(CodeMetaColumnCount, "meta", "META file must have exactly three columns", SeverityError)
	register(CodeMetaColumnNames, "meta", "META columns must be Field Label, Choices, Description", SeverityError)
	register(CodeMetaRowMissing, "meta", "required META row is missing", SeverityError)
	register(CodeMetaFileCount, "meta", "number_of_datafiles_in_this_package must be 1", SeverityError)
	register(CodeMetaFileName, "meta", "datafile name does not match the DATA file", SeverityError)
	register(CodeMetaNoDescription, "meta", "META row has no description", SeverityWarning)

	register(CodeNotUTF8, "csv", "file is not UTF-8 and could not be converted", SeverityError)
	register(CodeConvertedLatin1, "csv", "file was converted from ISO-8859-1 to UTF-8", SeverityWarning)
	register(CodeMalformedCSV, "csv", "file is not well-formed CSV", SeverityError)
	register(CodeEmptyColumnName, "csv", "column name is empty", SeverityError)
	register(CodeUnnamedColumn, "csv", "column name is a spreadsheet placeholder", SeverityError)
	register(CodeDuplicateColumn, "csv", "column name appears more than once", SeverityError)
	register(CodeColumnWhitespace, "csv", "column name contains whitespace", SeverityWarning)

	register(CodeDictMissingColumn, "dict", "DICT is missing a required column", SeverityError)
	register(CodeDictEmptyID, "dict", "DICT row has no field identifier", SeverityError)
	register(CodeDictDuplicateID, "dict", "field identifier is defined twice", SeverityError)
	register(CodeDictUnknownType, "dict", "field type is not supported", SeverityError)
	register(CodeDictBadChoices, "dict", "choices cannot be parsed", SeverityError)
	register(CodeDictUnknownUnit, "dict", "unit is not in the unit table", SeverityWarning)

	register(CodeColumnNotInDict, "data", "DATA column is not defined in DICT", SeverityError)
	register(CodeFieldNotInData, "data", "DICT field is not present in DATA", SeverityError)
	register(CodeNoPrimaryKey, "data", "primary key field is missing", SeverityError)
	register(CodeEmptyPrimaryKey, "data", "primary key value is empty", SeverityError)
	register(CodeDuplicatePrimaryKey, "data", "primary key value is not unique", SeverityError)
	register(CodeNotNumeric, "data", "value is not numeric", SeverityError)
	register(CodeNotDate, "data", "value is not a date", SeverityError)
	register(CodeValueNotAllowed, "data", "value is not one of the allowed codes", SeverityError)

	register(CodeUnmatched, "reconcile", "field matches no reference definition", SeverityError)
	register(CodeNoLabelMatch, "reconcile", "submitted code has no matching target label", SeverityError)
	register(CodeLegacyTranslated, "reconcile", "field was translated from a legacy definition", SeverityWarning)
	register(CodeUnitUnconvertible, "reconcile", "no conversion between the declared units", SeverityError)
	register(CodeLegacyNoTarget, "reconcile", "legacy definition points at an unknown target", SeverityError)
	register(CodeTargetClaimed, "reconcile", "target field is already mapped by another field", SeverityError)
	register(CodeLegacyBadHint, "reconcile", "legacy recoding targets an unknown code", SeverityError)

	register(CodeCorruptValue, "transform", "value is outside the field's allowed set; row omitted", SeverityError)
	register(CodeRequiredMissing, "transform", "required field has no value; row omitted", SeverityError)
	register(CodeConversion, "transform", "unit conversion failed", SeverityError)
	register(CodeMalformedRow, "transform", "row could not be read; row omitted", SeverityError)
	register(CodeMissingColumn, "transform", "mapped column is missing from the DATA header", SeverityError)

	register(CodeValidatorFinding, "validator", "external validator reported a problem", SeverityError)
	register(CodeNoTransformCopy, "consistency", "origcopy file has no transformcopy counterpart", SeverityError)
	register(CodeMissingCDE, "consistency", "required common data element is missing", SeverityError)
}

// LookupCode returns catalog information for a code.
func LookupCode(code Code) (CodeInfo, bool) {
	info, ok := catalog[code]
	return info, ok
}

// Codes returns the catalog sorted by code.
func Codes() []CodeInfo {
	out := make([]CodeInfo, 0, len(catalog))
	for _, info := range catalog {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
