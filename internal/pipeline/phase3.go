package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/harmonize/internal/csvio"
	"github.com/leapstack-labs/harmonize/internal/dictionary"
	"github.com/leapstack-labs/harmonize/internal/reconcile"
	"github.com/leapstack-labs/harmonize/internal/submission"
	"github.com/leapstack-labs/harmonize/internal/transform"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// RunPhase3 reconciles the origcopy triplets produced by phase 2 against
// the Dictionary Index and writes the origcopy/ and transformcopy/
// directories of the study.
func (p *Pipeline) RunPhase3(ctx context.Context, study string, opts Options) (StudyResult, error) {
	r := p.newRun(study, core.Phase3)
	if err := opts.Validate(); err != nil {
		return p.fail(r, err)
	}
	if !opts.Rerun && r.Layout.Locked() {
		return p.skip(r, "study is locked")
	}
	if ok, ph, err := r.Layout.clean(core.Phase3); err != nil {
		return p.fail(r, err)
	} else if !ok {
		return p.skip(r, fmt.Sprintf("phase %d log is not clean", ph))
	}

	if opts.whole() {
		for _, dir := range []string{r.Layout.OrigCopy(), r.Layout.TransformCopy()} {
			if err := os.RemoveAll(dir); err != nil {
				return p.fail(r, err)
			}
		}
	}
	for _, dir := range []string{r.Layout.OrigCopy(), r.Layout.TransformCopy()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return p.fail(r, err)
		}
	}

	var triplets []submission.Triplet
	if dirExists(r.Layout.Work()) {
		all, err := submission.Collect(r.Layout.Work(), study, submission.RoleOrigCopy)
		if err != nil {
			return p.fail(r, err)
		}
		triplets = opts.slice(all)
	}
	if len(triplets) == 0 {
		r.Collector.Addf(DirWork, core.SeverityError, core.CodeMissingData,
			"No origcopy triplets found; run phase 2 first")
		return p.finish(r)
	}

	for _, t := range triplets {
		if err := ctx.Err(); err != nil {
			return p.fail(r, err)
		}
		if err := p.harmonizeTriplet(ctx, r, t); err != nil {
			return p.fail(r, err)
		}
	}

	if err := p.checkPublication(r); err != nil {
		return p.fail(r, err)
	}
	return p.finish(r)
}

// harmonizeTriplet publishes one origcopy triplet into origcopy/ and its
// standardized form into transformcopy/.
func (p *Pipeline) harmonizeTriplet(ctx context.Context, r *StudyRun, t submission.Triplet) error {
	metaFindings, err := submission.CheckMeta(t.Path(submission.KindMeta))
	if err != nil {
		return fmt.Errorf("checking %s: %w", t.File(submission.KindMeta), err)
	}
	r.Collector.Extend(metaFindings)
	if hasErrors(metaFindings) {
		return nil
	}
	if err := p.validateDict(ctx, r, t.Path(submission.KindDict)); err != nil {
		return err
	}
	if err := p.validateMeta(ctx, r, t.Path(submission.KindMeta)); err != nil {
		return err
	}

	orig := submission.Triplet{Name: t.Name, Dir: r.Layout.OrigCopy()}
	for _, k := range tripletKinds {
		if err := csvio.CopyFile(t.Path(k), orig.Path(k)); err != nil {
			return fmt.Errorf("copying %s: %w", t.File(k), err)
		}
	}

	defs, err := submission.ParseDictionaryFile(orig.Path(submission.KindDict))
	if err != nil {
		// phase 2 parsed this dictionary; failing now means it changed underneath us
		return fmt.Errorf("parsing %s: %w", orig.File(submission.KindDict), err)
	}
	mappings, recErrs := p.reconciler.Reconcile(defs, p.index)
	r.Collector.Extend(recErrs)

	out := submission.Triplet{
		Name: t.Name.With(submission.KindData, submission.RoleTransformCopy),
		Dir:  r.Layout.TransformCopy(),
	}
	dataOut := out.Path(submission.KindData)
	res, err := p.transformer.TransformFile(ctx, orig.Path(submission.KindData), mappings, dataOut)
	if err != nil {
		return err
	}
	r.Collector.Extend(res.Findings)
	p.metrics.Rows(res.RowsWritten, res.RowsOmitted)
	r.Logger.Info("transformed data file",
		"file", out.File(submission.KindData),
		"rows_read", res.RowsRead,
		"rows_written", res.RowsWritten,
		"rows_omitted", res.RowsOmitted,
		"cells_blanked", res.CellsBlanked)

	if err := transform.WriteDictionaryFile(out.Path(submission.KindDict), reconcile.HarmonizedDictionary(mappings)); err != nil {
		return err
	}
	digest, err := fileSHA256(dataOut)
	if err != nil {
		return err
	}
	if err := submission.RewriteMeta(orig.Path(submission.KindMeta), out.Path(submission.KindMeta), filepath.Base(dataOut), digest); err != nil {
		return err
	}

	if err := p.validateDict(ctx, r, out.Path(submission.KindDict)); err != nil {
		return err
	}
	return p.validateMeta(ctx, r, out.Path(submission.KindMeta))
}

// checkPublication verifies the study's output directories: every origcopy
// DATA file has a transformcopy counterpart and every transformcopy DICT
// carries the minimum common data elements.
func (p *Pipeline) checkPublication(r *StudyRun) error {
	origs, err := submission.Collect(r.Layout.OrigCopy(), r.Study, submission.RoleOrigCopy)
	if err != nil {
		return err
	}
	for _, t := range origs {
		want := t.Name.With(submission.KindData, submission.RoleTransformCopy).String()
		if _, err := os.Stat(filepath.Join(r.Layout.TransformCopy(), want)); err != nil {
			r.Collector.Addf(t.File(submission.KindData), core.SeverityError, core.CodeNoTransformCopy,
				"No transformcopy file %s", want)
		}
	}

	outs, err := submission.Collect(r.Layout.TransformCopy(), r.Study, submission.RoleTransformCopy)
	if err != nil {
		return err
	}
	for _, t := range outs {
		ids, err := dictIdentifiers(t.Path(submission.KindDict))
		if err != nil {
			return err
		}
		for _, cde := range p.settings.MinCDEs {
			if !ids[core.Key(cde)] {
				r.Collector.Add(core.HarmonizationError{
					File:     t.File(submission.KindDict),
					Field:    cde,
					Severity: core.SeverityError,
					Code:     core.CodeMissingCDE,
					Message:  fmt.Sprintf("Required common data element %s is missing", cde),
				})
			}
		}
	}
	return nil
}

// dictIdentifiers returns the keys of the identifiers in a harmonized DICT.
func dictIdentifiers(path string) (map[string]bool, error) {
	tbl, err := csvio.ReadTableFile(path)
	if err != nil {
		return nil, err
	}
	layout := dictionary.ResolveLayout(tbl.Header)
	ids := make(map[string]bool, len(tbl.Rows))
	for _, row := range tbl.Rows {
		ids[core.Key(layout.Get(row, dictionary.ColIdentifier))] = true
	}
	return ids, nil
}
