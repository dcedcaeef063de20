package submission

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/leapstack-labs/harmonize/pkg/core"
)

// Kind is the role of a file within a triplet.
type Kind string

// Triplet members.
const (
	KindData Kind = "DATA"
	KindDict Kind = "DICT"
	KindMeta Kind = "META"
)

// Role is the processing stage encoded in a file name.
type Role string

// File roles. RoleWork files carry no role suffix.
const (
	RoleWork          Role = ""
	RolePreOrigCopy   Role = "preorigcopy"
	RoleOrigCopy      Role = "origcopy"
	RoleTransformCopy Role = "transformcopy"
)

var fileNameRE = regexp.MustCompile(`^(.+)_(DATA|DICT|META)(?:_(preorigcopy|origcopy|transformcopy))?\.csv$`)

// FileName is a parsed submission file name:
// <study>[_<label>]_<KIND>[_<role>].csv
type FileName struct {
	Study string
	Label string
	Kind  Kind
	Role  Role
}

// ParseFileName parses name for the given study. ok is false when the name
// does not follow the convention; prefixOK is false when it does but does
// not start with the study identifier.
func ParseFileName(name, study string) (fn FileName, ok, prefixOK bool) {
	m := fileNameRE.FindStringSubmatch(name)
	if m == nil {
		return FileName{}, false, false
	}
	prefix := m[1]
	fn = FileName{Study: study, Kind: Kind(m[2]), Role: Role(m[3])}
	switch {
	case prefix == study:
	case strings.HasPrefix(prefix, study+"_") && len(prefix) > len(study)+1:
		fn.Label = prefix[len(study)+1:]
	default:
		fn.Study, fn.Label = prefix, ""
		return fn, true, false
	}
	return fn, true, true
}

// Prefix returns the study and label part of the name.
func (f FileName) Prefix() string {
	if f.Label == "" {
		return f.Study
	}
	return f.Study + "_" + f.Label
}

// String formats the file name.
func (f FileName) String() string {
	if f.Role == RoleWork {
		return fmt.Sprintf("%s_%s.csv", f.Prefix(), f.Kind)
	}
	return fmt.Sprintf("%s_%s_%s.csv", f.Prefix(), f.Kind, f.Role)
}

// With returns a copy with another kind and role.
func (f FileName) With(kind Kind, role Role) FileName {
	f.Kind, f.Role = kind, role
	return f
}

// Triplet is one complete DATA/DICT/META set.
type Triplet struct {
	Name FileName // the DATA file name
	Dir  string
}

// Path returns the path of the triplet member of kind k.
func (t Triplet) Path(k Kind) string {
	return filepath.Join(t.Dir, t.Name.With(k, t.Name.Role).String())
}

// File returns the base name of the triplet member of kind k.
func (t Triplet) File(k Kind) string {
	return t.Name.With(k, t.Name.Role).String()
}

// Inventory checks every file in dir against the naming convention for role
// and returns the complete triplets sorted by prefix together with findings
// for unrecognized names and incomplete triplets.
func Inventory(dir, study string, role Role) ([]Triplet, []core.HarmonizationError, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	var findings []core.HarmonizationError
	add := func(file string, code core.Code, format string, args ...any) {
		findings = append(findings, core.HarmonizationError{
			File:     file,
			Severity: core.SeverityError,
			Code:     code,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	groups := make(map[string]map[Kind]FileName)
	counts := make(map[Kind]int)
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		fn, ok, prefixOK := ParseFileName(e.Name(), study)
		if !ok || fn.Role != role {
			add(e.Name(), core.CodeUnrecognizedFile, "Unrecognized file name")
			continue
		}
		if !prefixOK {
			add(e.Name(), core.CodeStudyPrefix, "File name does not start with study identifier %s", study)
			continue
		}
		if groups[fn.Prefix()] == nil {
			groups[fn.Prefix()] = make(map[Kind]FileName)
		}
		groups[fn.Prefix()][fn.Kind] = fn
		counts[fn.Kind]++
	}

	if counts[KindData] != counts[KindDict] || counts[KindData] != counts[KindMeta] {
		add(filepath.Base(dir), core.CodeTripletMismatch, "DATA, DICT, META file mismatch (%d DATA, %d DICT, %d META)",
			counts[KindData], counts[KindDict], counts[KindMeta])
	}

	prefixes := make([]string, 0, len(groups))
	for p := range groups {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	var triplets []Triplet
	for _, p := range prefixes {
		g := groups[p]
		data, hasData := g[KindData]
		if !hasData {
			for _, k := range []Kind{KindDict, KindMeta} {
				if fn, ok := g[k]; ok {
					add(fn.With(KindData, role).String(), core.CodeMissingData, "DATA file missing for %s", fn)
				}
			}
			continue
		}
		complete := true
		if _, ok := g[KindDict]; !ok {
			add(data.With(KindDict, role).String(), core.CodeMissingDict, "DICT file missing")
			complete = false
		}
		if _, ok := g[KindMeta]; !ok {
			add(data.With(KindMeta, role).String(), core.CodeMissingMeta, "META file missing")
			complete = false
		}
		if complete {
			triplets = append(triplets, Triplet{Name: data, Dir: dir})
		}
	}
	return triplets, findings, nil
}

// Collect returns the complete triplets of role in dir and ignores every
// other file. Used on work directories that also hold logs.
func Collect(dir, study string, role Role) ([]Triplet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool)
	var datas []FileName
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fn, ok, prefixOK := ParseFileName(e.Name(), study)
		if !ok || !prefixOK || fn.Role != role {
			continue
		}
		present[e.Name()] = true
		if fn.Kind == KindData {
			datas = append(datas, fn)
		}
	}
	var out []Triplet
	for _, d := range datas {
		if present[d.With(KindDict, role).String()] && present[d.With(KindMeta, role).String()] {
			out = append(out, Triplet{Name: d, Dir: dir})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name.Prefix() < out[j].Name.Prefix() })
	return out, nil
}
