package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Phase numbers a pipeline stage. The zero value means "no phase".
type Phase int

// Pipeline phases.
const (
	Phase1 Phase = iota + 1
	Phase2
	Phase3
)

// String returns the phase number as text.
func (p Phase) String() string {
	return strconv.Itoa(int(p))
}

// ErrorFile returns the conventional error log name for the phase.
func (p Phase) ErrorFile() string {
	return fmt.Sprintf("phase%d_errors.csv", int(p))
}

// HarmonizationError is one structured finding.
// Row 0 means the finding is not tied to a row; an empty Field means it is
// not tied to a field.
type HarmonizationError struct {
	StudyID  string   `json:"study_id"`
	Phase    Phase    `json:"phase"`
	File     string   `json:"file"`
	Row      int      `json:"row,omitempty"`
	Field    string   `json:"field,omitempty"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Code     Code     `json:"code"`
}

// Error implements the error interface.
func (e HarmonizationError) Error() string {
	var b strings.Builder
	b.WriteString(e.File)
	if e.Row > 0 {
		b.WriteString(":")
		b.WriteString(strconv.Itoa(e.Row))
	}
	if e.Field != "" {
		b.WriteString(" [")
		b.WriteString(e.Field)
		b.WriteString("]")
	}
	fmt.Fprintf(&b, " %s %s: %s", e.Severity, e.Code, e.Message)
	return b.String()
}

// IsError reports whether the finding has error severity.
func (e HarmonizationError) IsError() bool {
	return e.Severity == SeverityError
}
