package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in     string
		want   Severity
		wantOK bool
	}{
		{"error", SeverityError, true},
		{"ERROR", SeverityError, true},
		{"warning", SeverityWarning, true},
		{"WARN", SeverityWarning, true},
		{" warn ", SeverityWarning, true},
		{"fatal", SeverityError, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseSeverity(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestAuthorityPrecedence(t *testing.T) {
	assert.Less(t, int(AuthorityGlobal), int(AuthorityTier1))
	assert.Less(t, int(AuthorityTier1), int(AuthorityTier2))
	assert.Less(t, int(AuthorityTier2), int(AuthorityLegacy))
	assert.True(t, AuthorityTier2.Standard())
	assert.False(t, AuthorityLegacy.Standard())

	a, ok := ParseAuthority("Domain_Tier1")
	assert.True(t, ok)
	assert.Equal(t, AuthorityTier1, a)
}

func TestValueRecoding_Apply(t *testing.T) {
	id := IdentityRecoding()
	got, ok := id.Apply("7")
	assert.True(t, ok)
	assert.Equal(t, "7", got)

	r := ValueRecoding{Pairs: []CodePair{{From: "1", To: "M"}, {From: "2", To: "F"}}}
	got, ok = r.Apply("2")
	assert.True(t, ok)
	assert.Equal(t, "F", got)

	got, ok = r.Apply("3")
	assert.False(t, ok)
	assert.Equal(t, "3", got)
}

func TestUnitConversion_Convert(t *testing.T) {
	f2c := UnitConversion{From: "degF", To: "degC", Scale: 5.0 / 9.0, Offset: -160.0 / 9.0}
	assert.InDelta(t, 100.0, f2c.Convert(212), 1e-9)
	assert.InDelta(t, 0.0, f2c.Convert(32), 1e-9)
}

func TestFieldDefinition_Allows(t *testing.T) {
	f := &FieldDefinition{AllowedValues: []Choice{{Code: "1", Meaning: "Yes"}}}
	assert.True(t, f.Allows("1"))
	assert.False(t, f.Allows("2"))
	assert.True(t, (&FieldDefinition{}).Allows("anything"))
}

func TestHarmonizationError_Error(t *testing.T) {
	e := HarmonizationError{File: "a.csv", Row: 3, Field: "sex", Severity: SeverityError, Code: CodeCorruptValue, Message: "bad"}
	assert.Equal(t, "a.csv:3 [sex] error T001: bad", e.Error())

	e = HarmonizationError{File: "a.csv", Severity: SeverityWarning, Code: CodeLegacyTranslated, Message: "x"}
	assert.Equal(t, "a.csv warning R003: x", e.Error())
}

func TestCodes_CatalogComplete(t *testing.T) {
	codes := Codes()
	assert.NotEmpty(t, codes)
	for i := 1; i < len(codes); i++ {
		assert.Less(t, codes[i-1].Code, codes[i].Code)
	}
	info, ok := LookupCode(CodeLegacyTranslated)
	assert.True(t, ok)
	assert.Equal(t, SeverityWarning, info.DefaultSeverity)
}

func TestPhase_ErrorFile(t *testing.T) {
	assert.Equal(t, "phase2_errors.csv", Phase2.ErrorFile())
	assert.Equal(t, "3", Phase3.String())
}
