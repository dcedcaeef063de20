package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/harmonize/internal/csvio"
	"github.com/leapstack-labs/harmonize/internal/submission"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// RunPhase2 prepares the working copies of a study and validates them
// against their own dictionaries and the Dictionary Index. When nothing is
// found the origcopy triplets are written to the work directory.
func (p *Pipeline) RunPhase2(ctx context.Context, study string, opts Options) (StudyResult, error) {
	r := p.newRun(study, core.Phase2)
	if err := opts.Validate(); err != nil {
		return p.fail(r, err)
	}
	if !opts.Rerun && r.Layout.Locked() {
		return p.skip(r, "study is locked")
	}
	if ok, ph, err := r.Layout.clean(core.Phase2); err != nil {
		return p.fail(r, err)
	} else if !ok {
		return p.skip(r, fmt.Sprintf("phase %d log is not clean", ph))
	}
	if err := os.MkdirAll(r.Layout.Work(), 0o750); err != nil {
		return p.fail(r, err)
	}
	if opts.Reset {
		if err := p.resetWork(r); err != nil {
			return p.fail(r, err)
		}
	}

	triplets, err := p.workTriplets(r, opts)
	if err != nil {
		return p.fail(r, err)
	}
	if len(triplets) == 0 {
		if r.Collector.Len() == 0 {
			r.Collector.Addf(DirWork, core.SeverityError, core.CodeMissingData, "No DATA, DICT, META triplets to process")
		}
		return p.finish(r)
	}

	for _, t := range triplets {
		if err := ctx.Err(); err != nil {
			return p.fail(r, err)
		}
		if err := p.checkTriplet(r, t); err != nil {
			return p.fail(r, err)
		}
	}

	if r.Collector.Len() == 0 {
		for _, t := range triplets {
			if err := writeOrigCopy(r.Layout, t); err != nil {
				return p.fail(r, err)
			}
		}
		r.Logger.Info("origcopy written", "triplets", len(triplets))
	}
	return p.finish(r)
}

// workTriplets returns the work directory triplets to process. Unless
// rerunning, the selected preorigcopy triplets are copied in first, each
// file only when the source is newer than its working copy.
func (p *Pipeline) workTriplets(r *StudyRun, opts Options) ([]submission.Triplet, error) {
	work := r.Layout.Work()
	if opts.Rerun {
		ts, err := submission.Collect(work, r.Study, submission.RoleWork)
		if err != nil {
			return nil, err
		}
		return opts.slice(ts), nil
	}

	pre := r.Layout.PreOrigCopy()
	if !dirExists(pre) {
		r.Collector.Addf(DirPreOrigCopy, core.SeverityError, core.CodeMissingInputDir,
			"Input directory %s does not exist", pre)
		return nil, nil
	}
	src, err := submission.Collect(pre, r.Study, submission.RolePreOrigCopy)
	if err != nil {
		return nil, err
	}
	var out []submission.Triplet
	for _, t := range opts.slice(src) {
		for _, k := range tripletKinds {
			dst := r.Layout.WorkCopy(t.Name, k, submission.RoleWork)
			newer, err := csvio.IsNewer(t.Path(k), dst)
			if err != nil {
				return nil, err
			}
			if !newer {
				continue
			}
			if err := csvio.CopyFile(t.Path(k), dst); err != nil {
				return nil, fmt.Errorf("copying %s: %w", t.File(k), err)
			}
		}
		out = append(out, submission.Triplet{Name: t.Name.With(submission.KindData, submission.RoleWork), Dir: work})
	}
	return out, nil
}

// resetWork removes the working copies and origcopy triplets of the study.
// Error logs and the lock file stay.
func (p *Pipeline) resetWork(r *StudyRun) error {
	entries, err := os.ReadDir(r.Layout.Work())
	if err != nil {
		return err
	}
	removed := 0
	for _, e := range entries {
		fn, ok, prefixOK := submission.ParseFileName(e.Name(), r.Study)
		if e.IsDir() || !ok || !prefixOK {
			continue
		}
		if fn.Role != submission.RoleWork && fn.Role != submission.RoleOrigCopy {
			continue
		}
		if err := os.Remove(filepath.Join(r.Layout.Work(), e.Name())); err != nil {
			return err
		}
		removed++
	}
	r.Logger.Info("reset work directory", "removed", removed)
	return nil
}

// checkTriplet normalizes one working triplet and runs the dictionary and
// data checks. Later checks are skipped when an earlier one makes their
// input unreliable.
func (p *Pipeline) checkTriplet(r *StudyRun, t submission.Triplet) error {
	ok := true
	for _, k := range tripletKinds {
		prepared, err := p.prepare(r, t.Path(k))
		if err != nil {
			return err
		}
		ok = ok && prepared
	}
	if !ok {
		return nil
	}

	dictPath := t.Path(submission.KindDict)
	unitFindings, err := submission.StandardizeUnits(dictPath, p.units)
	if err != nil {
		return fmt.Errorf("standardizing units in %s: %w", t.File(submission.KindDict), err)
	}
	r.Collector.Extend(unitFindings)

	defs, err := submission.ParseDictionaryFile(dictPath)
	var fe *submission.FormatError
	if errors.As(err, &fe) {
		r.Collector.Extend(fe.Findings())
		return nil
	}
	if err != nil {
		return err
	}

	dataFindings, err := submission.CheckDataAgainstDict(t.Path(submission.KindData), defs, submission.DataCheckOptions{
		PrimaryKey: p.settings.PrimaryKey,
	})
	if err != nil {
		return fmt.Errorf("checking %s: %w", t.File(submission.KindData), err)
	}
	r.Collector.Extend(dataFindings)

	// Warnings such as legacy translations belong to phase 3, which is
	// where the translation happens.
	_, recErrs := p.reconciler.Reconcile(defs, p.index)
	for _, e := range recErrs {
		if e.IsError() {
			r.Collector.Add(e)
		}
	}
	return nil
}

// prepare fixes the encoding of one working file, normalizes it in place
// and checks its header. It reports whether the file is usable.
func (p *Pipeline) prepare(r *StudyRun, path string) (bool, error) {
	ok, err := p.checkEncoding(r, path, true)
	if err != nil || !ok {
		return false, err
	}
	stats, err := csvio.Clean(path, path)
	if err != nil {
		return false, fmt.Errorf("normalizing %s: %w", filepath.Base(path), err)
	}
	if stats.EmptyRows > 0 || len(stats.EmptyColumns) > 0 {
		r.Logger.Debug("removed empty rows and columns", "file", filepath.Base(path),
			"rows", stats.EmptyRows, "columns", len(stats.EmptyColumns))
	}
	colFindings := submission.CheckColumns(filepath.Base(path), stats.Header)
	r.Collector.Extend(colFindings)
	return !hasErrors(colFindings), nil
}

// writeOrigCopy writes the _origcopy triplet of t into the work directory.
// The META copy names the origcopy DATA file and records its digest.
func writeOrigCopy(l Layout, t submission.Triplet) error {
	dataOut := l.WorkCopy(t.Name, submission.KindData, submission.RoleOrigCopy)
	if err := csvio.CopyFile(t.Path(submission.KindData), dataOut); err != nil {
		return err
	}
	dictOut := l.WorkCopy(t.Name, submission.KindDict, submission.RoleOrigCopy)
	if err := csvio.CopyFile(t.Path(submission.KindDict), dictOut); err != nil {
		return err
	}
	digest, err := fileSHA256(dataOut)
	if err != nil {
		return err
	}
	metaOut := l.WorkCopy(t.Name, submission.KindMeta, submission.RoleOrigCopy)
	return submission.RewriteMeta(t.Path(submission.KindMeta), metaOut, filepath.Base(dataOut), digest)
}
