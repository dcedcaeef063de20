package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/harmonize/pkg/core"
)

// RunPhase dispatches to the runner of phase.
func (p *Pipeline) RunPhase(ctx context.Context, phase core.Phase, study string, opts Options) (StudyResult, error) {
	switch phase {
	case core.Phase1:
		return p.RunPhase1(ctx, study, opts)
	case core.Phase2:
		return p.RunPhase2(ctx, study, opts)
	case core.Phase3:
		return p.RunPhase3(ctx, study, opts)
	default:
		return StudyResult{}, fmt.Errorf("unknown phase %d", phase)
	}
}

// Run executes phases in order for every study, running up to
// settings.Workers studies concurrently. A study stops at the first phase
// that fails. After a phase with findings the next phase still runs and its
// gate records the skip. Results are grouped by study in the order of
// studies, then by phase.
//
// A fatal error in one study is reported in its StudyResult.Err and does
// not stop other studies. Only context cancellation is returned.
func (p *Pipeline) Run(ctx context.Context, studies []string, phases []core.Phase, opts Options) ([]StudyResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	perStudy := make([][]StudyResult, len(studies))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.settings.Workers, 1))
	for i, study := range studies {
		g.Go(func() error {
			for _, ph := range phases {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, err := p.RunPhase(gctx, ph, study, opts)
				perStudy[i] = append(perStudy[i], res)
				if err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					break
				}
			}
			return nil
		})
	}
	err := g.Wait()

	var out []StudyResult
	for _, rs := range perStudy {
		out = append(out, rs...)
	}
	return out, err
}

// SelectStudies lists the study directories under dataDir, sorted. With
// include set only those studies are returned and each must exist; with
// exclude set the named studies are dropped. Hidden directories are never
// studies.
func SelectStudies(dataDir string, include, exclude []string) ([]string, error) {
	if len(include) > 0 && len(exclude) > 0 {
		return nil, errors.New("include and exclude cannot be combined")
	}
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("reading data directory: %w", err)
	}
	var all []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			all = append(all, e.Name())
		}
	}
	slices.Sort(all)

	switch {
	case len(include) > 0:
		out := make([]string, 0, len(include))
		for _, s := range include {
			if !slices.Contains(all, s) {
				return nil, fmt.Errorf("study %q not found in %s", s, dataDir)
			}
			if !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
		slices.Sort(out)
		return out, nil
	case len(exclude) > 0:
		return slices.DeleteFunc(all, func(s string) bool { return slices.Contains(exclude, s) }), nil
	default:
		return all, nil
	}
}
