package transform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/harmonize/internal/csvio"
	"github.com/leapstack-labs/harmonize/internal/dictionary"
	"github.com/leapstack-labs/harmonize/internal/reconcile"
	"github.com/leapstack-labs/harmonize/internal/submission"
	"github.com/leapstack-labs/harmonize/internal/testutil"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

var (
	idDef  = &core.FieldDefinition{Identifier: "id", Label: "Participant ID", Type: core.DataTypeText, Required: true, Source: core.AuthorityGlobal}
	sexDef = &core.FieldDefinition{Identifier: "sex", Label: "Sex", Section: "Demographics", Type: core.DataTypeCategorical, Source: core.AuthorityGlobal,
		AllowedValues: []core.Choice{{Code: "M", Meaning: "Male"}, {Code: "F", Meaning: "Female"}}}
	ageDef = &core.FieldDefinition{Identifier: "age", Label: "Age", Type: core.DataTypeNumeric, Unit: "yr", Description: "Age in years", Source: core.AuthorityTier1}
)

func fixtureMappings() []core.FieldMapping {
	subSex := &core.FieldDefinition{Identifier: "sex", Type: core.DataTypeCategorical,
		AllowedValues: []core.Choice{{Code: "1", Meaning: "Male"}, {Code: "2", Meaning: "Female"}}}
	return []core.FieldMapping{
		{SubmissionIdentifier: "id", TargetIdentifier: "id", Kind: core.MatchExact, Recoding: core.IdentityRecoding(),
			Submission: &core.FieldDefinition{Identifier: "id"}, Target: idDef},
		{SubmissionIdentifier: "sex", TargetIdentifier: "sex", Kind: core.MatchExact,
			Recoding:   core.ValueRecoding{Pairs: []core.CodePair{{From: "1", To: "M"}, {From: "2", To: "F"}}},
			Submission: subSex, Target: sexDef},
		{SubmissionIdentifier: "age_months", TargetIdentifier: "age", Kind: core.MatchRenamed, Recoding: core.IdentityRecoding(),
			Conversion: &core.UnitConversion{From: "mo", To: "yr", Scale: 1.0 / 12},
			Submission: &core.FieldDefinition{Identifier: "age_months", Unit: "mo"}, Target: ageDef},
		{SubmissionIdentifier: "note", Kind: core.MatchUnmatched,
			Submission: &core.FieldDefinition{Identifier: "note"}},
	}
}

const fixtureData = "id,sex,age_months,note\n" +
	"p1,1,24,hello\n" +
	"p2,2,18,\n" +
	"p3,3,12,x\n" +
	",1,6,\n" +
	"p5,,abc,\n" +
	"p6,1,30\n" +
	"p7,2,,\n"

func TestTransform_Golden(t *testing.T) {
	tr := New(Config{Logger: testutil.NewTestLogger(t)})
	var out bytes.Buffer
	res, err := tr.Transform(context.Background(), strings.NewReader(fixtureData), fixtureMappings(), &out)
	require.NoError(t, err)

	newGoldie(t).Assert(t, "harmonized_data", out.Bytes())

	assert.Equal(t, 7, res.RowsRead)
	assert.Equal(t, 4, res.RowsWritten)
	assert.Equal(t, 3, res.RowsOmitted)
	assert.Equal(t, 1, res.CellsBlanked)

	type f struct {
		row   int
		field string
		code  core.Code
	}
	var got []f
	for _, e := range res.Findings {
		got = append(got, f{e.Row, e.Field, e.Code})
		assert.Equal(t, core.SeverityError, e.Severity)
	}
	assert.Equal(t, []f{
		{4, "sex", core.CodeCorruptValue},
		{5, "id", core.CodeRequiredMissing},
		{6, "age_months", core.CodeConversion},
		{7, "", core.CodeMalformedRow},
	}, got)
}

// Every written row has exactly the harmonized column set.
func TestTransform_RowsMatchDictionary(t *testing.T) {
	var out bytes.Buffer
	_, err := New(Config{}).Transform(context.Background(), strings.NewReader(fixtureData), fixtureMappings(), &out)
	require.NoError(t, err)

	tbl, err := csvio.ReadTable(&out)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "sex", "age"}, tbl.Header)
	for _, row := range tbl.Rows {
		assert.Len(t, row, 3)
		assert.NotEmpty(t, row[0], "required id is never written empty")
	}
}

func TestTransform_MissingColumn(t *testing.T) {
	var out bytes.Buffer
	res, err := New(Config{}).Transform(context.Background(), strings.NewReader("id,sex\np1,1\n"), fixtureMappings(), &out)
	require.NoError(t, err)

	require.Len(t, res.Findings, 1)
	assert.Equal(t, core.CodeMissingColumn, res.Findings[0].Code)
	assert.Equal(t, "age_months", res.Findings[0].Field)
	assert.Equal(t, "id,sex,age\np1,M,\n", out.String())
}

func TestTransform_RequiredConversionFailureOmitsRow(t *testing.T) {
	target := &core.FieldDefinition{Identifier: "weight", Unit: "kg", Required: true}
	mappings := []core.FieldMapping{{
		SubmissionIdentifier: "wt", TargetIdentifier: "weight", Kind: core.MatchRenamed,
		Recoding: core.IdentityRecoding(), Conversion: &core.UnitConversion{From: "lb", To: "kg", Scale: 0.45359237},
		Submission: &core.FieldDefinition{Identifier: "wt"}, Target: target,
	}}
	var out bytes.Buffer
	res, err := New(Config{}).Transform(context.Background(), strings.NewReader("wt\n100\nheavy\n"), mappings, &out)
	require.NoError(t, err)
	assert.Equal(t, "weight\n45.359237\n", out.String())
	require.Len(t, res.Findings, 1)
	assert.Equal(t, core.CodeConversion, res.Findings[0].Code)
	assert.Equal(t, 1, res.RowsOmitted)
	assert.Zero(t, res.CellsBlanked)
}

// A required field that no written column carries makes every row
// incomplete, so nothing is written.
func TestTransform_UnsatisfiableRequiredField(t *testing.T) {
	subjectDef := &core.FieldDefinition{Identifier: "subject_id", Type: core.DataTypeText, Source: core.AuthorityGlobal}
	subject := core.FieldMapping{
		SubmissionIdentifier: "subject_id", TargetIdentifier: "subject_id", Kind: core.MatchExact,
		Recoding: core.IdentityRecoding(), Submission: &core.FieldDefinition{Identifier: "subject_id"}, Target: subjectDef,
	}
	requiredAge := &core.FieldDefinition{Identifier: "age", Unit: "yr", Required: true, Source: core.AuthorityGlobal}

	tests := []struct {
		name     string
		required []*core.FieldDefinition
		mappings []core.FieldMapping
		field    string
	}{
		{
			name: "excluded required target",
			mappings: []core.FieldMapping{subject, {
				SubmissionIdentifier: "age", TargetIdentifier: "age", Kind: core.MatchExact, Excluded: true,
				Submission: &core.FieldDefinition{Identifier: "age", Unit: "furlongs"}, Target: requiredAge,
			}},
			field: "age",
		},
		{
			name: "unmatched required submission field",
			mappings: []core.FieldMapping{subject, {
				SubmissionIdentifier: "visit_code", Kind: core.MatchUnmatched,
				Submission: &core.FieldDefinition{Identifier: "visit_code", Required: true},
			}},
			field: "visit_code",
		},
		{
			name:     "required reference field never mapped",
			required: []*core.FieldDefinition{subjectDef, requiredAge},
			mappings: []core.FieldMapping{subject},
			field:    "age",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			res, err := New(Config{Required: tt.required}).Transform(context.Background(),
				strings.NewReader("subject_id,age,visit_code\ns1,40,v1\ns2,50,v2\n"), tt.mappings, &out)
			require.NoError(t, err)

			assert.Equal(t, "subject_id\n", out.String())
			assert.Equal(t, 2, res.RowsRead)
			assert.Zero(t, res.RowsWritten)
			assert.Equal(t, 2, res.RowsOmitted)
			require.Len(t, res.Findings, 1)
			assert.Equal(t, core.CodeRequiredMissing, res.Findings[0].Code)
			assert.Equal(t, tt.field, res.Findings[0].Field)
			assert.Zero(t, res.Findings[0].Row)
			assert.Equal(t, core.SeverityError, res.Findings[0].Severity)
		})
	}
}

// A required target lost to another field's claim is still written by the
// winning mapping.
func TestTransform_ClaimedRequiredTargetIsSatisfied(t *testing.T) {
	mappings := append(fixtureMappings(), core.FieldMapping{
		SubmissionIdentifier: "participant", TargetIdentifier: "id", Kind: core.MatchRenamed, Excluded: true,
		Submission: &core.FieldDefinition{Identifier: "participant", Required: true}, Target: idDef,
	})
	res, err := New(Config{Required: []*core.FieldDefinition{idDef}}).Transform(context.Background(),
		strings.NewReader("id,sex,age_months,note\np1,1,24,\n"), mappings, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowsWritten)
	assert.Empty(t, res.Findings)
}

// An age in a unit with no conversion is excluded by the reconciler, and
// because the reference requires age no row survives.
func TestTransform_RequiredFieldExcludedByReconcile(t *testing.T) {
	ix, err := dictionary.New([]*core.FieldDefinition{
		{Identifier: "subject_id", Type: core.DataTypeText, Source: core.AuthorityGlobal},
		{Identifier: "age", Type: core.DataTypeNumeric, Unit: "yr", Required: true, Source: core.AuthorityGlobal},
	})
	require.NoError(t, err)
	r, err := reconcile.New(reconcile.Config{})
	require.NoError(t, err)
	mappings, errs := r.Reconcile([]*core.FieldDefinition{
		{Identifier: "subject_id", Type: core.DataTypeText, Source: core.AuthoritySubmission},
		{Identifier: "age", Type: core.DataTypeNumeric, Unit: "furlongs", Source: core.AuthoritySubmission},
	}, ix)
	require.Len(t, errs, 1)
	require.Equal(t, core.CodeUnitUnconvertible, errs[0].Code)

	var out bytes.Buffer
	res, err := New(Config{}).Transform(context.Background(), strings.NewReader("subject_id,age\ns1,40\ns2,50\n"), mappings, &out)
	require.NoError(t, err)
	assert.Equal(t, "subject_id\n", out.String())
	assert.Zero(t, res.RowsWritten)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, core.CodeRequiredMissing, res.Findings[0].Code)
	assert.Equal(t, "age", res.Findings[0].Field)
}

func TestTransform_EmptyInput(t *testing.T) {
	_, err := New(Config{}).Transform(context.Background(), strings.NewReader(""), fixtureMappings(), io.Discard)
	assert.ErrorIs(t, err, csvio.ErrEmptyFile)
}

func TestTransform_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{}).Transform(ctx, strings.NewReader(fixtureData), fixtureMappings(), io.Discard)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "2", FormatNumber(24*(1.0/12)))
	assert.Equal(t, "37", FormatNumber((98.6-32)*5/9))
	assert.Equal(t, "0", FormatNumber(-1e-12))
	assert.Equal(t, "0.1", FormatNumber(0.1+0.2-0.2))
}

func TestTransformFile(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WriteFile(t, dir, "s1_a_DATA_origcopy.csv", fixtureData)
	outPath := filepath.Join(dir, "out", "s1_a_DATA_transformcopy.csv")

	res, err := New(Config{}).TransformFile(context.Background(), in, fixtureMappings(), outPath)
	require.NoError(t, err)
	for _, f := range res.Findings {
		assert.Equal(t, "s1_a_DATA_origcopy.csv", f.File)
	}
	newGoldie(t).Assert(t, "harmonized_data", []byte(testutil.ReadFile(t, outPath)))
}

func TestTransformFile_FailureLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WriteFile(t, dir, "d.csv", "")
	outPath := filepath.Join(dir, "out.csv")

	_, err := New(Config{}).TransformFile(context.Background(), in, fixtureMappings(), outPath)
	require.Error(t, err)
	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteDictionary_Golden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDictionary(&buf, []*core.FieldDefinition{idDef, sexDef, ageDef}))
	newGoldie(t).Assert(t, "harmonized_dict", buf.Bytes())

	// the harmonized DICT is itself a valid submission DICT
	defs, err := submission.ParseDictionary(&buf, "h.csv")
	require.NoError(t, err)
	require.Len(t, defs, 3)
	assert.Equal(t, sexDef.AllowedValues, defs[1].AllowedValues)
}

// When a study's DICT is exactly the top reference dictionary, the output
// carries the input's rows and values unchanged.
func TestTransform_RoundTrip(t *testing.T) {
	const dict = `Variable / Field Name,Field Label,Section Header,Field Type,Unit,"Choices, Calculations, OR Slider Labels",Field Note,CDE Reference
id,ID,,text,,,,
sex,Sex,,radio,,"M, Male | F, Female",,
age,Age,,integer,yr,,,
`
	const data = "sex,id,age\nM,p1,30\nF,p2,41\n,p3,\n"

	dir := t.TempDir()
	refPath := testutil.WriteFile(t, dir, "global.csv", dict)
	ix, err := dictionary.Load([]dictionary.Source{{Path: refPath, Authority: core.AuthorityGlobal}})
	require.NoError(t, err)

	fields, err := submission.ParseDictionary(strings.NewReader(dict), "s1_a_DICT.csv")
	require.NoError(t, err)
	r, err := reconcile.New(reconcile.Config{})
	require.NoError(t, err)
	mappings, errs := r.Reconcile(fields, ix)
	require.Empty(t, errs)

	var out bytes.Buffer
	res, err := New(Config{}).Transform(context.Background(), strings.NewReader(data), mappings, &out)
	require.NoError(t, err)
	require.Empty(t, res.Findings)

	in, err := csvio.ReadTable(strings.NewReader(data))
	require.NoError(t, err)
	got, err := csvio.ReadTable(&out)
	require.NoError(t, err)
	require.Len(t, got.Rows, len(in.Rows))
	for i := range in.Rows {
		for j, name := range in.Header {
			assert.Equal(t, in.Rows[i][j], got.Rows[i][got.Column(name)], "row %d column %s", i, name)
		}
	}
}

// rowSource generates a large CSV on the fly and samples the heap at two
// points so the test can check that transforming does not accumulate rows.
type rowSource struct {
	rows, next int
	buf        bytes.Buffer
	samples    map[int]uint64
}

func (s *rowSource) Read(p []byte) (int, error) {
	for s.buf.Len() < len(p) && s.next <= s.rows {
		if s.next == 0 {
			s.buf.WriteString("id,sex,age_months,note\n")
		} else {
			fmt.Fprintf(&s.buf, "p%d,%d,%d,some free text\n", s.next, 1+s.next%2, s.next%1200)
		}
		if _, ok := s.samples[s.next]; ok {
			runtime.GC()
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			s.samples[s.next] = ms.HeapInuse
		}
		s.next++
	}
	if s.buf.Len() == 0 {
		return 0, io.EOF
	}
	return s.buf.Read(p)
}

func TestTransform_StreamsInBoundedMemory(t *testing.T) {
	if testing.Short() {
		t.Skip("large input")
	}
	const rows = 300_000
	src := &rowSource{rows: rows, samples: map[int]uint64{rows / 10: 0, rows / 2: 0}}

	res, err := New(Config{}).Transform(context.Background(), src, fixtureMappings(), io.Discard)
	require.NoError(t, err)
	require.Equal(t, rows, res.RowsWritten)

	early, late := src.samples[rows/10], src.samples[rows/2]
	require.NotZero(t, early)
	require.NotZero(t, late)
	growth := int64(late) - int64(early)
	assert.Less(t, growth, int64(4<<20), "heap grew by %d bytes between %d and %d rows", growth, rows/10, rows/2)
}
