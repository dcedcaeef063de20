package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/leapstack-labs/harmonize/internal/submission"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// RunPhase1 checks a study's raw submission in preorigcopy/: file naming
// and triplet completeness, encoding and CSV syntax, the META files, and
// the dictionary validator when one is configured.
func (p *Pipeline) RunPhase1(ctx context.Context, study string, opts Options) (StudyResult, error) {
	r := p.newRun(study, core.Phase1)
	if r.Layout.Locked() {
		return p.skip(r, "study is locked")
	}
	if opts.Reset {
		r.Logger.Info("resetting work directory")
		if err := os.RemoveAll(r.Layout.Work()); err != nil {
			return p.fail(r, err)
		}
	}
	if err := os.MkdirAll(r.Layout.Work(), 0o750); err != nil {
		return p.fail(r, err)
	}

	pre := r.Layout.PreOrigCopy()
	if !dirExists(pre) {
		r.Collector.Addf(DirPreOrigCopy, core.SeverityError, core.CodeMissingInputDir,
			"Input directory %s does not exist", pre)
		return p.finish(r)
	}

	triplets, findings, err := submission.Inventory(pre, study, submission.RolePreOrigCopy)
	if err != nil {
		return p.fail(r, err)
	}
	r.Collector.Extend(findings)
	if len(triplets) == 0 && len(findings) == 0 {
		r.Collector.Addf(DirPreOrigCopy, core.SeverityError, core.CodeMissingData,
			"No DATA, DICT, META triplets found")
	}

	for _, t := range triplets {
		if err := ctx.Err(); err != nil {
			return p.fail(r, err)
		}
		readable := make(map[submission.Kind]bool, len(tripletKinds))
		for _, k := range tripletKinds {
			ok, err := p.checkEncoding(r, t.Path(k), false)
			if err != nil {
				return p.fail(r, err)
			}
			readable[k] = ok
		}

		if readable[submission.KindMeta] {
			metaFindings, err := submission.CheckMeta(t.Path(submission.KindMeta))
			if err != nil {
				return p.fail(r, fmt.Errorf("checking %s: %w", t.File(submission.KindMeta), err))
			}
			r.Collector.Extend(metaFindings)
		}
		if readable[submission.KindDict] {
			if err := p.validateDict(ctx, r, t.Path(submission.KindDict)); err != nil {
				return p.fail(r, err)
			}
		}
	}
	return p.finish(r)
}
