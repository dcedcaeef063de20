package reconcile

import (
	"github.com/leapstack-labs/harmonize/internal/match"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// sameChoices reports whether two allowed-value sets carry the same codes
// with the same normalized meanings. Order is ignored.
func sameChoices(a, b []core.Choice, labels match.LabelNormalizer) bool {
	if len(a) != len(b) {
		return false
	}
	want := make(map[string]string, len(a))
	for _, c := range a {
		want[c.Code] = labels.NormalizeLabel(c.Meaning)
	}
	if len(want) != len(a) {
		return false // duplicate codes
	}
	for _, c := range b {
		m, ok := want[c.Code]
		if !ok || m != labels.NormalizeLabel(c.Meaning) {
			return false
		}
		delete(want, c.Code)
	}
	return len(want) == 0
}

// labelPairs pairs each submitted code not in skip with the target code
// whose meaning normalizes to the same text. Submitted codes without a
// counterpart are returned as missing, in submission order.
func labelPairs(sub, target []core.Choice, skip map[string]bool, labels match.LabelNormalizer) (pairs []core.CodePair, missing []core.Choice) {
	byMeaning := make(map[string]string, len(target))
	for _, c := range target {
		k := labels.NormalizeLabel(c.Meaning)
		if _, dup := byMeaning[k]; !dup {
			byMeaning[k] = c.Code
		}
	}
	for _, c := range sub {
		if skip[c.Code] {
			continue
		}
		if to, ok := byMeaning[labels.NormalizeLabel(c.Meaning)]; ok {
			pairs = append(pairs, core.CodePair{From: c.Code, To: to})
			continue
		}
		missing = append(missing, c)
	}
	return pairs, missing
}
