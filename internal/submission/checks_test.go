package submission

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/harmonize/internal/csvio"
	"github.com/leapstack-labs/harmonize/internal/testutil"
	"github.com/leapstack-labs/harmonize/internal/units"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

func metaFile(count, dataName, desc string) string {
	return "Field Label,Choices,Description\n" +
		"study_name,Demo,\n" +
		MetaFileCountRow + "," + count + ",\n" +
		MetaFileNameRow + "," + dataName + "," + desc + "\n"
}

func codes(errs []core.HarmonizationError) []core.Code {
	out := make([]core.Code, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestCheckMeta(t *testing.T) {
	const name = "s1_a_META_preorigcopy.csv"
	tests := []struct {
		desc    string
		content string
		want    []core.Code
	}{
		{"valid", metaFile("1", "s1_a_DATA_preorigcopy.csv", "Visit data"), nil},
		{"no description", metaFile("1", "s1_a_DATA_preorigcopy.csv", ""), []core.Code{core.CodeMetaNoDescription}},
		{"two columns", "Field Label,Choices\nx,1\n", []core.Code{core.CodeMetaColumnCount}},
		{"bad names", "Label,Choices,Notes\nx,1,\n", []core.Code{core.CodeMetaColumnNames, core.CodeMetaColumnNames}},
		{"count row missing", "Field Label,Choices,Description\n" + MetaFileNameRow + ",s1_a_DATA_preorigcopy.csv,d\n", []core.Code{core.CodeMetaRowMissing}},
		{"count and name wrong", metaFile("2", "other.csv", "d"), []core.Code{core.CodeMetaFileCount}},
		{"wrong data name", metaFile("1", "other.csv", "d"), []core.Code{core.CodeMetaFileName}},
		{"count wrong, name row missing", "Field Label,Choices,Description\n" + MetaFileCountRow + ",3,\n", []core.Code{core.CodeMetaFileCount, core.CodeMetaRowMissing}},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			path := testutil.WriteFile(t, t.TempDir(), name, tt.content)
			got, err := CheckMeta(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, nilIfEmpty(codes(got)))
			for _, e := range got {
				assert.Equal(t, name, e.File)
			}
		})
	}
}

func nilIfEmpty(c []core.Code) []core.Code {
	if len(c) == 0 {
		return nil
	}
	return c
}

func TestRewriteMeta(t *testing.T) {
	dir := t.TempDir()
	src := testutil.WriteFile(t, dir, "s1_a_META_origcopy.csv", metaFile("1", "s1_a_DATA_origcopy.csv", "Visit data"))
	dst := dir + "/s1_a_META_transformcopy.csv"

	require.NoError(t, RewriteMeta(src, dst, "s1_a_DATA_transformcopy.csv", "abc123"))
	tbl, err := csvio.ReadTableFile(dst)
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 4)
	assert.Equal(t, "s1_a_DATA_transformcopy.csv", tbl.Rows[2][1])
	assert.Equal(t, []string{MetaDigestRow, "abc123", "SHA-256 digest of s1_a_DATA_transformcopy.csv"}, tbl.Rows[3])

	// rewriting again updates the digest row instead of appending another
	require.NoError(t, RewriteMeta(dst, dst, "s1_a_DATA_transformcopy.csv", "def456"))
	tbl, err = csvio.ReadTableFile(dst)
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 4)
	assert.Equal(t, "def456", tbl.Rows[3][1])
}

func TestCheckColumns(t *testing.T) {
	got := CheckColumns("d.csv", []string{"id", " age", "", "Unnamed: 3", "AGE", "weight"})
	assert.Equal(t, []core.Code{
		core.CodeColumnWhitespace,
		core.CodeEmptyColumnName,
		core.CodeUnnamedColumn,
		core.CodeDuplicateColumn,
	}, codes(got))
	assert.Equal(t, core.SeverityWarning, got[0].Severity)
	assert.Equal(t, "age", got[0].Field)
	assert.Equal(t, 1, got[0].Row)
	assert.Empty(t, CheckColumns("d.csv", []string{"id", "age"}))
}

func dataDefs() []*core.FieldDefinition {
	return []*core.FieldDefinition{
		{Identifier: "id", Type: core.DataTypeText},
		{Identifier: "sex", Type: core.DataTypeCategorical, AllowedValues: []core.Choice{{Code: "1", Meaning: "Male"}, {Code: "2", Meaning: "Female"}}},
		{Identifier: "age", Type: core.DataTypeNumeric},
		{Identifier: "visit", Type: core.DataTypeDate},
		{Identifier: "site", Type: core.DataTypeText},
	}
}

func TestCheckDataAgainstDict(t *testing.T) {
	data := "id,sex,age,visit,extra\n" +
		"p1,1,34,2021-03-04,\n" +
		"p2,3,abc,03/04/2021,\n" +
		",2,,yesterday,\n" +
		"p1,,41.5,,\n"
	path := testutil.WriteFile(t, t.TempDir(), "s1_a_DATA.csv", data)

	got, err := CheckDataAgainstDict(path, dataDefs(), DataCheckOptions{})
	require.NoError(t, err)

	type f struct {
		row   int
		field string
		code  core.Code
	}
	var flat []f
	for _, e := range got {
		flat = append(flat, f{e.Row, e.Field, e.Code})
		assert.Equal(t, "s1_a_DATA.csv", e.File)
	}
	assert.Equal(t, []f{
		{1, "extra", core.CodeColumnNotInDict},
		{0, "site", core.CodeFieldNotInData},
		{3, "sex", core.CodeValueNotAllowed},
		{3, "age", core.CodeNotNumeric},
		{4, "id", core.CodeEmptyPrimaryKey},
		{4, "visit", core.CodeNotDate},
		{5, "id", core.CodeDuplicatePrimaryKey},
	}, flat)
}

func TestCheckDataAgainstDict_PrimaryKey(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "d.csv", "record,age\nr1,3\n")
	defs := []*core.FieldDefinition{{Identifier: "record"}, {Identifier: "age", Type: core.DataTypeNumeric}}

	got, err := CheckDataAgainstDict(path, defs, DataCheckOptions{})
	require.NoError(t, err)
	assert.Equal(t, []core.Code{core.CodeNoPrimaryKey}, codes(got))

	got, err = CheckDataAgainstDict(path, defs, DataCheckOptions{PrimaryKey: "record"})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = CheckDataAgainstDict(path, defs, DataCheckOptions{NoPrimaryKey: true})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCheckDataAgainstDict_CapsValueFindings(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,age\n")
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, "p%d,x\n", i)
	}
	path := testutil.WriteFile(t, t.TempDir(), "d.csv", b.String())
	defs := []*core.FieldDefinition{{Identifier: "id"}, {Identifier: "age", Type: core.DataTypeNumeric}}

	got, err := CheckDataAgainstDict(path, defs, DataCheckOptions{MaxFindingsPerField: 2})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 0, got[2].Row)
	assert.Contains(t, got[2].Message, "3 more")
}

func TestIsDate(t *testing.T) {
	for _, v := range []string{"2021-12-31", "12/31/2021", "2021-12-31T10:00:00Z", "10:30"} {
		assert.True(t, IsDate(v), v)
	}
	for _, v := range []string{"31/12/2021", "soon", "2021-13-01"} {
		assert.False(t, IsDate(v), v)
	}
}

func TestStandardizeUnits(t *testing.T) {
	src := redcapHeader +
		"age,Age,,integer,Years,,,\n" +
		"temp,Temperature,,float,celsius,,,\n" +
		"dose,Dose,,float,puffs,,,\n" +
		"id,ID,,text,,,,\n"
	path := testutil.WriteFile(t, t.TempDir(), "s1_a_DICT.csv", src)

	got, err := StandardizeUnits(path, units.Default())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.CodeDictUnknownUnit, got[0].Code)
	assert.Equal(t, core.SeverityWarning, got[0].Severity)
	assert.Equal(t, "dose", got[0].Field)
	assert.Equal(t, 4, got[0].Row)

	defs, err := ParseDictionaryFile(path)
	require.NoError(t, err)
	assert.Equal(t, "yr", defs[0].Unit)
	assert.Equal(t, "degC", defs[1].Unit)
	assert.Equal(t, "puffs", defs[2].Unit)
}
