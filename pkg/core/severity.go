package core

import "strings"

// =============================================================================
// Severity
// =============================================================================

// Severity indicates the importance of a harmonization finding.
type Severity int

// Severity levels for findings.
const (
	// SeverityError blocks the next phase.
	SeverityError Severity = iota
	// SeverityWarning is reported but does not change output.
	SeverityWarning
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// ParseSeverity converts a string to a Severity value.
// Returns the severity and true if valid, or SeverityError and false if invalid.
// The upper-case forms written by older tooling ("ERROR", "WARN") are accepted.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return SeverityError, true
	case "warning", "warn":
		return SeverityWarning, true
	default:
		return SeverityError, false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
