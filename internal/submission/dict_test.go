package submission

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/harmonize/internal/dictionary"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

const redcapHeader = `Variable / Field Name,Field Label,Section Header,Field Type,Unit,"Choices, Calculations, OR Slider Labels",Field Note,CDE Reference` + "\n"

func TestParseDictionary(t *testing.T) {
	src := redcapHeader +
		`id,Participant ID,,text,,,,` + "\n" +
		`sex,Sex,Demographics,radio,,"1, Male | 2, Female",,global` + "\n" +
		`age,Age,Demographics,integer,years,,Age at enrollment,` + "\n" +
		`smoker,Smoker,,yesno,,,,` + "\n"

	defs, err := ParseDictionary(strings.NewReader(src), "s1_a_DICT.csv")
	require.NoError(t, err)
	require.Len(t, defs, 4)

	assert.Equal(t, []string{"id", "sex", "age", "smoker"}, identifiers(defs))

	sex := defs[1]
	assert.Equal(t, core.DataTypeCategorical, sex.Type)
	assert.Equal(t, []core.Choice{{Code: "1", Meaning: "Male"}, {Code: "2", Meaning: "Female"}}, sex.AllowedValues)
	assert.Equal(t, "Demographics", sex.Section)
	assert.Equal(t, core.AuthoritySubmission, sex.Source)
	assert.Equal(t, 3, sex.Line)
	assert.Equal(t, "s1_a_DICT.csv", sex.Origin)

	age := defs[2]
	assert.Equal(t, core.DataTypeNumeric, age.Type)
	assert.Equal(t, "years", age.Unit)
	assert.Equal(t, "Age at enrollment", age.Description)

	assert.Len(t, defs[3].AllowedValues, 2, "yesno carries implicit choices")
}

func TestParseDictionary_AliasColumns(t *testing.T) {
	p := DictParser{Required: []dictionary.Column{dictionary.ColIdentifier, dictionary.ColType}}
	defs, err := p.Parse(strings.NewReader("identifier,type,allowed_values\nsex,radio,\"1, M | 2, F\"\n"), "d.csv")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "sex", defs[0].Identifier)
}

func TestParseDictionary_CollectsAllViolations(t *testing.T) {
	src := "Variable / Field Name,Field Label,Field Type,\"Choices, Calculations, OR Slider Labels\"\n" +
		"id,ID,text,\n" +
		",Blank,text,\n" +
		"id,Again,text,\n" +
		"mood,Mood,emoji,\n" +
		"sex,Sex,radio,\"1, Male | 1, Female\"\n" +
		"age,Age,integer,\n"

	defs, err := ParseDictionary(strings.NewReader(src), "d.csv")
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, []string{"id", "age"}, identifiers(defs), "valid rows are still returned")

	type v struct {
		line int
		code core.Code
	}
	var got []v
	for _, viol := range fe.Violations {
		got = append(got, v{viol.Line, viol.Code})
	}
	assert.Equal(t, []v{
		{1, core.CodeDictMissingColumn}, // Section Header
		{1, core.CodeDictMissingColumn}, // Unit
		{1, core.CodeDictMissingColumn}, // Field Note
		{1, core.CodeDictMissingColumn}, // CDE Reference
		{3, core.CodeDictEmptyID},
		{4, core.CodeDictDuplicateID},
		{5, core.CodeDictUnknownType},
		{6, core.CodeDictBadChoices},
	}, got)

	findings := fe.Findings()
	require.Len(t, findings, len(fe.Violations))
	assert.Equal(t, "d.csv", findings[4].File)
	assert.Equal(t, 3, findings[4].Row)
	assert.Equal(t, core.SeverityError, findings[4].Severity)
	assert.Contains(t, fe.Error(), "8 format violations")
}

func TestParseDictionary_NoIdentifierColumn(t *testing.T) {
	defs, err := ParseDictionary(strings.NewReader("name,type\nage,integer\n"), "d.csv")
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Nil(t, defs)
	assert.Equal(t, "Variable / Field Name", fe.Violations[0].Field)
}

func TestParseDictionary_Empty(t *testing.T) {
	_, err := ParseDictionary(strings.NewReader(""), "d.csv")
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, core.CodeDictMissingColumn, fe.Violations[0].Code)
}

func identifiers(defs []*core.FieldDefinition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Identifier
	}
	return out
}
