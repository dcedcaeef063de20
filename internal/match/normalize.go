package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// LabelNormalizer reduces a human-written label to a comparison key.
// Two labels match when their keys are equal.
type LabelNormalizer interface {
	NormalizeLabel(s string) string
}

// LabelNormalizerFunc adapts a function to LabelNormalizer.
type LabelNormalizerFunc func(string) string

// NormalizeLabel implements LabelNormalizer.
func (f LabelNormalizerFunc) NormalizeLabel(s string) string { return f(s) }

// DefaultLabels is the label comparison used unless configured otherwise.
// The pipeline:
// 1. Unicode NFC so composed and decomposed accents compare equal.
// 2. Case folding.
// 3. Punctuation dropped, whitespace runs collapsed to one space.
var DefaultLabels LabelNormalizer = LabelNormalizerFunc(NormalizeLabel)

// StrictLabels only trims and case-folds.
var StrictLabels LabelNormalizer = LabelNormalizerFunc(func(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
})

// NormalizeLabel applies the default label pipeline.
func NormalizeLabel(s string) string {
	s = norm.NFC.String(s)
	s = cases.Fold().String(s)

	var b strings.Builder
	space := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r), unicode.IsPunct(r), unicode.IsSymbol(r):
			space = true
		}
	}
	return b.String()
}

// NormalizeIdent normalizes an identifier for fuzzy comparison: lower case,
// separators removed, so "Age_Years", "ageYears" and "age-years" agree.
func NormalizeIdent(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r == '_' || r == '-' || r == '.' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
