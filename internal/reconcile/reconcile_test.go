package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/harmonize/internal/dictionary"
	"github.com/leapstack-labs/harmonize/internal/testutil"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

var (
	male   = core.Choice{Code: "M", Meaning: "Male"}
	female = core.Choice{Code: "F", Meaning: "Female"}
)

func fixtureIndex(t *testing.T) *dictionary.Index {
	t.Helper()
	ix, err := dictionary.New([]*core.FieldDefinition{
		{Identifier: "id", Source: core.AuthorityGlobal, Type: core.DataTypeText, Required: true},
		{Identifier: "sex", Label: "Sex", Source: core.AuthorityGlobal, Type: core.DataTypeCategorical,
			AllowedValues: []core.Choice{male, female}, AlternateNames: []string{"gender"}},
		{Identifier: "age", Source: core.AuthorityGlobal, Type: core.DataTypeNumeric, Unit: "yr"},
		{Identifier: "smoker", Source: core.AuthorityTier1, Type: core.DataTypeCategorical,
			AllowedValues: []core.Choice{{Code: "1", Meaning: "Yes"}, {Code: "0", Meaning: "No"}}},
		{Identifier: "bmi", Source: core.AuthorityTier2, Type: core.DataTypeNumeric},
		{Identifier: "gender_legacy", Source: core.AuthorityLegacy, Target: "sex",
			Recoding: []core.CodePair{{From: "1", To: "M"}, {From: "2", To: "F"}}},
		{Identifier: "gender", Source: core.AuthorityLegacy, Target: "sex"},
		{Identifier: "old_race", Source: core.AuthorityLegacy, Target: "race"},
		{Identifier: "old_smoke", Source: core.AuthorityLegacy, Target: "smoker",
			Recoding: []core.CodePair{{From: "Y", To: "1"}, {From: "N", To: "9"}}},
	})
	require.NoError(t, err)
	return ix
}

func newReconciler(t *testing.T, order ...core.MatchKind) *Reconciler {
	t.Helper()
	r, err := New(Config{Order: order, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	return r
}

func field(id string, choices ...core.Choice) *core.FieldDefinition {
	f := &core.FieldDefinition{Identifier: id, Source: core.AuthoritySubmission, Origin: "s1_a_DICT.csv", Line: 2}
	if len(choices) > 0 {
		f.Type = core.DataTypeCategorical
		f.AllowedValues = choices
	}
	return f
}

func errCodes(errs []core.HarmonizationError) []core.Code {
	var out []core.Code
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestReconcile_ExactIdentity(t *testing.T) {
	r := newReconciler(t)
	mappings, errs := r.Reconcile([]*core.FieldDefinition{field("sex", male, female)}, fixtureIndex(t))

	require.Empty(t, errs)
	require.Len(t, mappings, 1)
	m := mappings[0]
	assert.Equal(t, core.MatchExact, m.Kind)
	assert.Equal(t, "sex", m.TargetIdentifier)
	assert.True(t, m.Recoding.Identity)
	assert.Nil(t, m.Conversion)
	assert.True(t, m.Writable())
}

func TestReconcile_ExactIdentityIgnoresLabelCase(t *testing.T) {
	r := newReconciler(t)
	mappings, errs := r.Reconcile([]*core.FieldDefinition{
		field("sex", core.Choice{Code: "M", Meaning: " male"}, core.Choice{Code: "F", Meaning: "FEMALE"}),
	}, fixtureIndex(t))
	require.Empty(t, errs)
	assert.True(t, mappings[0].Recoding.Identity)
}

// Allowed values are a set: listing them in another order is still identical.
func TestReconcile_ExactIdentityIgnoresChoiceOrder(t *testing.T) {
	r := newReconciler(t)
	mappings, errs := r.Reconcile([]*core.FieldDefinition{field("sex", female, male)}, fixtureIndex(t))
	require.Empty(t, errs)
	assert.Equal(t, core.IdentityRecoding(), mappings[0].Recoding)
}

func TestReconcile_ExactRecodesByLabel(t *testing.T) {
	r := newReconciler(t)
	mappings, errs := r.Reconcile([]*core.FieldDefinition{
		field("sex", core.Choice{Code: "1", Meaning: "Male"}, core.Choice{Code: "2", Meaning: "Female"}),
	}, fixtureIndex(t))

	require.Empty(t, errs)
	m := mappings[0]
	assert.Equal(t, core.MatchExact, m.Kind)
	assert.False(t, m.Recoding.Identity)
	assert.Equal(t, []core.CodePair{{From: "1", To: "M"}, {From: "2", To: "F"}}, m.Recoding.Pairs)
}

func TestReconcile_CodeWithoutLabelMatch(t *testing.T) {
	r := newReconciler(t)
	mappings, errs := r.Reconcile([]*core.FieldDefinition{
		field("sex", core.Choice{Code: "1", Meaning: "Male"}, core.Choice{Code: "2", Meaning: "Female"}, core.Choice{Code: "3", Meaning: "Other"}),
	}, fixtureIndex(t))

	require.Equal(t, []core.Code{core.CodeNoLabelMatch}, errCodes(errs))
	assert.Equal(t, "sex", errs[0].Field)
	assert.Equal(t, "s1_a_DICT.csv", errs[0].File)
	assert.Contains(t, errs[0].Message, `"3"`)
	assert.True(t, mappings[0].Writable(), "the field is kept")
	assert.Len(t, mappings[0].Recoding.Pairs, 2)
}

func TestReconcile_Unmatched(t *testing.T) {
	r := newReconciler(t)
	mappings, errs := r.Reconcile([]*core.FieldDefinition{field("smokr")}, fixtureIndex(t))

	require.Len(t, errs, 1)
	assert.Equal(t, core.CodeUnmatched, errs[0].Code)
	assert.Equal(t, core.SeverityError, errs[0].Severity)
	assert.Contains(t, errs[0].Message, `did you mean "smoker"?`)

	m := mappings[0]
	assert.Equal(t, core.MatchUnmatched, m.Kind)
	assert.Empty(t, m.TargetIdentifier)
	assert.False(t, m.Writable())
}

func TestReconcile_UnmatchedWithoutSuggestion(t *testing.T) {
	r := newReconciler(t)
	_, errs := r.Reconcile([]*core.FieldDefinition{field("qqqqqqqq")}, fixtureIndex(t))
	require.Len(t, errs, 1)
	assert.NotContains(t, errs[0].Message, "did you mean")
}

func TestReconcile_Renamed(t *testing.T) {
	r := newReconciler(t)
	mappings, errs := r.Reconcile([]*core.FieldDefinition{field("gender", male, female)}, fixtureIndex(t))
	require.Empty(t, errs)
	assert.Equal(t, core.MatchRenamed, mappings[0].Kind)
	assert.Equal(t, "sex", mappings[0].TargetIdentifier)
}

// gender is both an alternate name of sex and a legacy entry.
func TestReconcile_RenamedBeatsLegacy(t *testing.T) {
	ix := fixtureIndex(t)

	mappings, _ := newReconciler(t).Reconcile([]*core.FieldDefinition{field("gender")}, ix)
	assert.Equal(t, core.MatchRenamed, mappings[0].Kind)

	mappings, _ = newReconciler(t, core.MatchLegacy, core.MatchExact, core.MatchRenamed).
		Reconcile([]*core.FieldDefinition{field("gender")}, ix)
	assert.Equal(t, core.MatchLegacy, mappings[0].Kind, "order is configurable")
}

func TestReconcile_Legacy(t *testing.T) {
	r := newReconciler(t)
	mappings, errs := r.Reconcile([]*core.FieldDefinition{
		field("gender_legacy", core.Choice{Code: "1", Meaning: "Male"}, core.Choice{Code: "2", Meaning: "Female"}),
	}, fixtureIndex(t))

	require.Len(t, errs, 1)
	assert.Equal(t, core.CodeLegacyTranslated, errs[0].Code)
	assert.Equal(t, core.SeverityWarning, errs[0].Severity)

	m := mappings[0]
	assert.Equal(t, core.MatchLegacy, m.Kind)
	assert.Equal(t, "sex", m.TargetIdentifier)
	assert.False(t, m.Recoding.Identity)
	assert.Equal(t, []core.CodePair{{From: "1", To: "M"}, {From: "2", To: "F"}}, m.Recoding.Pairs)
}

func TestReconcile_LegacyHintsThenLabels(t *testing.T) {
	r := newReconciler(t)
	mappings, errs := r.Reconcile([]*core.FieldDefinition{
		field("old_smoke",
			core.Choice{Code: "Y", Meaning: "Yes"},
			core.Choice{Code: "N", Meaning: "No"},
			core.Choice{Code: "U", Meaning: "Unknown"}),
	}, fixtureIndex(t))

	assert.Equal(t, []core.Code{core.CodeLegacyBadHint, core.CodeNoLabelMatch, core.CodeLegacyTranslated}, errCodes(errs))
	assert.Equal(t, []core.CodePair{{From: "Y", To: "1"}, {From: "N", To: "0"}}, mappings[0].Recoding.Pairs)
}

func TestReconcile_LegacyTargetMissing(t *testing.T) {
	r := newReconciler(t)
	mappings, errs := r.Reconcile([]*core.FieldDefinition{field("old_race")}, fixtureIndex(t))

	assert.Equal(t, []core.Code{core.CodeLegacyNoTarget}, errCodes(errs))
	assert.Equal(t, core.MatchUnmatched, mappings[0].Kind)
	assert.Empty(t, mappings[0].TargetIdentifier)
}

func TestReconcile_UnitConversion(t *testing.T) {
	r := newReconciler(t)
	age := field("age")
	age.Unit = "months"
	mappings, errs := r.Reconcile([]*core.FieldDefinition{age}, fixtureIndex(t))

	require.Empty(t, errs)
	conv := mappings[0].Conversion
	require.NotNil(t, conv)
	assert.Equal(t, "mo", conv.From)
	assert.Equal(t, "yr", conv.To)
	assert.InDelta(t, 2.0, conv.Convert(24), 1e-9)
}

func TestReconcile_SameUnitDifferentSpelling(t *testing.T) {
	r := newReconciler(t)
	age := field("age")
	age.Unit = "Years"
	mappings, errs := r.Reconcile([]*core.FieldDefinition{age}, fixtureIndex(t))
	require.Empty(t, errs)
	assert.Nil(t, mappings[0].Conversion)
}

func TestReconcile_UnitNotConvertible(t *testing.T) {
	r := newReconciler(t)
	age := field("age")
	age.Unit = "kg"
	mappings, errs := r.Reconcile([]*core.FieldDefinition{age}, fixtureIndex(t))

	assert.Equal(t, []core.Code{core.CodeUnitUnconvertible}, errCodes(errs))
	assert.True(t, mappings[0].Excluded)
	assert.Equal(t, "age", mappings[0].TargetIdentifier)
	assert.False(t, mappings[0].Writable())
}

func TestReconcile_TargetClaimedTwice(t *testing.T) {
	r := newReconciler(t)
	mappings, errs := r.Reconcile([]*core.FieldDefinition{
		field("sex", male, female),
		field("gender", male, female),
	}, fixtureIndex(t))

	assert.Equal(t, []core.Code{core.CodeTargetClaimed}, errCodes(errs))
	assert.Equal(t, "gender", errs[0].Field)
	assert.True(t, mappings[0].Writable())
	assert.True(t, mappings[1].Excluded)
}

func TestReconcile_Deterministic(t *testing.T) {
	ix := fixtureIndex(t)
	fields := []*core.FieldDefinition{
		field("id"),
		field("gender_legacy", core.Choice{Code: "1", Meaning: "Male"}, core.Choice{Code: "2", Meaning: "Female"}),
		field("smokr"),
		field("sex", core.Choice{Code: "1", Meaning: "Male"}, core.Choice{Code: "3", Meaning: "Other"}),
		field("bmi"),
		field("old_race"),
	}
	r := newReconciler(t)
	m1, e1 := r.Reconcile(fields, ix)
	for i := 0; i < 10; i++ {
		m2, e2 := r.Reconcile(fields, ix)
		require.Equal(t, m1, m2)
		require.Equal(t, e1, e2)
	}
}

func TestHarmonizedDictionary(t *testing.T) {
	r := newReconciler(t)
	age := field("age")
	age.Unit = "kg"
	mappings, _ := r.Reconcile([]*core.FieldDefinition{
		field("bmi"), field("nope"), age, field("id"), field("gender_legacy"),
	}, fixtureIndex(t))

	var ids []string
	for _, d := range HarmonizedDictionary(mappings) {
		ids = append(ids, d.Identifier)
	}
	assert.Equal(t, []string{"bmi", "id", "sex"}, ids)
}

func TestNew_RejectsUnknownStrategy(t *testing.T) {
	_, err := New(Config{Order: []core.MatchKind{"fuzzy"}})
	assert.Error(t, err)
}
