// Package core defines the shared language of the harmonize system.
//
// This package contains:
//   - Dictionary entities (FieldDefinition, Choice, Authority)
//   - Reconciliation results (FieldMapping, ValueRecoding, UnitConversion)
//   - Findings (HarmonizationError, Severity, the error code catalog)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
