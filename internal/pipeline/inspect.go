package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/leapstack-labs/harmonize/internal/submission"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// Inspection is the dry-run reconciliation of one study dictionary.
type Inspection struct {
	File     string
	Mappings []core.FieldMapping
	Findings []core.HarmonizationError
}

// Inspect reconciles the dictionaries of a study without writing anything.
// It reads the most processed triplets available: the origcopy triplets in
// work/, then the working copies, then the raw submission.
func (p *Pipeline) Inspect(ctx context.Context, study string) ([]Inspection, error) {
	layout := NewLayout(p.settings.DataDir, study)
	sources := []struct {
		dir  string
		role submission.Role
	}{
		{layout.Work(), submission.RoleOrigCopy},
		{layout.Work(), submission.RoleWork},
		{layout.PreOrigCopy(), submission.RolePreOrigCopy},
	}

	var triplets []submission.Triplet
	for _, s := range sources {
		if !dirExists(s.dir) {
			continue
		}
		ts, err := submission.Collect(s.dir, study, s.role)
		if err != nil {
			return nil, err
		}
		if len(ts) > 0 {
			triplets = ts
			break
		}
	}
	if len(triplets) == 0 {
		return nil, fmt.Errorf("study %s has no triplets to inspect", study)
	}

	out := make([]Inspection, 0, len(triplets))
	for _, t := range triplets {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		in := Inspection{File: t.File(submission.KindDict)}
		defs, err := submission.ParseDictionaryFile(t.Path(submission.KindDict))
		var fe *submission.FormatError
		switch {
		case errors.As(err, &fe):
			in.Findings = fe.Findings()
		case err != nil:
			return out, err
		}
		mappings, recErrs := p.reconciler.Reconcile(defs, p.index)
		in.Mappings = mappings
		in.Findings = append(in.Findings, recErrs...)
		out = append(out, in)
	}
	return out, nil
}
