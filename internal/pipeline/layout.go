package pipeline

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/harmonize/internal/report"
	"github.com/leapstack-labs/harmonize/internal/submission"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// Study directory names.
const (
	DirPreOrigCopy   = "preorigcopy"
	DirWork          = "work"
	DirOrigCopy      = "origcopy"
	DirTransformCopy = "transformcopy"
	LockFileName     = "lock.txt"
)

// Layout locates the directories and files of one study:
//
//	<data_dir>/<study>/preorigcopy/    raw submitted triplets
//	<data_dir>/<study>/work/           working copies, phase logs, lock.txt
//	<data_dir>/<study>/origcopy/       harmonized-raw triplets
//	<data_dir>/<study>/transformcopy/  standardized triplets
type Layout struct {
	Root  string
	Study string
}

// NewLayout returns the layout of study under dataDir.
func NewLayout(dataDir, study string) Layout {
	return Layout{Root: filepath.Join(dataDir, study), Study: study}
}

func (l Layout) PreOrigCopy() string   { return filepath.Join(l.Root, DirPreOrigCopy) }
func (l Layout) Work() string          { return filepath.Join(l.Root, DirWork) }
func (l Layout) OrigCopy() string      { return filepath.Join(l.Root, DirOrigCopy) }
func (l Layout) TransformCopy() string { return filepath.Join(l.Root, DirTransformCopy) }
func (l Layout) LockFile() string      { return filepath.Join(l.Work(), LockFileName) }

// ErrorLog returns the path of a phase's error log.
func (l Layout) ErrorLog(p core.Phase) string {
	return filepath.Join(l.Work(), p.ErrorFile())
}

// Locked reports whether the study's lock file exists.
func (l Layout) Locked() bool {
	_, err := os.Stat(l.LockFile())
	return err == nil
}

// WorkCopy returns the work directory path of fn with the given role.
func (l Layout) WorkCopy(fn submission.FileName, kind submission.Kind, role submission.Role) string {
	return filepath.Join(l.Work(), fn.With(kind, role).String())
}

// clean reports whether the logs of every phase before p are clean.
func (l Layout) clean(before core.Phase) (bool, core.Phase, error) {
	for ph := core.Phase1; ph < before; ph++ {
		ok, err := report.Clean(l.ErrorLog(ph))
		if err != nil {
			return false, ph, err
		}
		if !ok {
			return false, ph, nil
		}
	}
	return true, 0, nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func dirExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
