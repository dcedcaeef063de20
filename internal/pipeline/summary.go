package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/leapstack-labs/harmonize/internal/csvio"
	"github.com/leapstack-labs/harmonize/internal/report"
	"github.com/leapstack-labs/harmonize/internal/submission"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// Summary file names.
const (
	ErrorSummaryFile = "error_summary.csv"
	DataElementsFile = "data_elements.csv"
	PublicationsFile = "publications.csv"

	// TierStudy marks a field with no standard definition in the index.
	TierStudy = "study"
)

var (
	errorSummaryHeader = []string{"study_id", "phase", "errors", "warnings", "path"}
	dataElementsHeader = []string{"study_id", "label", "field", "field_label", "data_type", "tier"}
	publicationsHeader = []string{"study_id", "label", "project_num", "subproject", "phs_identifier", "publication"}
)

// LogSummary is one existing phase log.
type LogSummary struct {
	Study    string
	Phase    core.Phase
	Errors   int
	Warnings int
	Path     string
}

// DataElement is one field of a harmonized dictionary.
type DataElement struct {
	Study      string
	Label      string
	Field      string
	FieldLabel string
	Type       core.DataType
	Tier       string
}

// Publication is one publication listed in a study's META file.
type Publication struct {
	Study         string
	Label         string
	Project       string
	Subproject    string
	PHSIdentifier string
	Publication   string
}

// SummaryResult lists what Summarize wrote.
type SummaryResult struct {
	ErrorSummaryPath string
	DataElementsPath string
	PublicationsPath string
	Logs             []LogSummary
	Elements         []DataElement
	Publications     []Publication
}

// Summarize writes the cross-study error summary to the data directory, and
// the data element and publication summaries to the summary directory.
func (p *Pipeline) Summarize(ctx context.Context, studies []string) (SummaryResult, error) {
	var res SummaryResult
	for _, study := range studies {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		layout := NewLayout(p.settings.DataDir, study)

		for ph := core.Phase1; ph <= core.Phase3; ph++ {
			path := layout.ErrorLog(ph)
			if !fileExists(path) {
				continue
			}
			errs, err := report.Read(path)
			if err != nil {
				return res, err
			}
			n, w := report.Count(errs)
			res.Logs = append(res.Logs, LogSummary{Study: study, Phase: ph, Errors: n, Warnings: w, Path: path})
		}

		elems, err := p.dataElements(layout)
		if err != nil {
			return res, err
		}
		res.Elements = append(res.Elements, elems...)

		pubs, err := publications(layout)
		if err != nil {
			return res, err
		}
		res.Publications = append(res.Publications, pubs...)
	}

	sort.SliceStable(res.Elements, func(i, j int) bool {
		a, b := res.Elements[i], res.Elements[j]
		if a.Study != b.Study {
			return a.Study < b.Study
		}
		if a.Label != b.Label {
			return a.Label < b.Label
		}
		return a.Field < b.Field
	})

	logRows := make([][]string, 0, len(res.Logs))
	for _, l := range res.Logs {
		logRows = append(logRows, []string{
			l.Study, strconv.Itoa(int(l.Phase)), strconv.Itoa(l.Errors), strconv.Itoa(l.Warnings), l.Path,
		})
	}
	res.ErrorSummaryPath = filepath.Join(p.settings.DataDir, ErrorSummaryFile)
	if err := csvio.WriteTableFile(res.ErrorSummaryPath, errorSummaryHeader, logRows); err != nil {
		return res, fmt.Errorf("writing error summary: %w", err)
	}

	elemRows := make([][]string, 0, len(res.Elements))
	for _, e := range res.Elements {
		elemRows = append(elemRows, []string{e.Study, e.Label, e.Field, e.FieldLabel, string(e.Type), e.Tier})
	}
	res.DataElementsPath = filepath.Join(p.settings.SummaryDir, DataElementsFile)
	if err := csvio.WriteTableFile(res.DataElementsPath, dataElementsHeader, elemRows); err != nil {
		return res, fmt.Errorf("writing data element summary: %w", err)
	}

	pubRows := make([][]string, 0, len(res.Publications))
	for _, pub := range res.Publications {
		pubRows = append(pubRows, []string{pub.Study, pub.Label, pub.Project, pub.Subproject, pub.PHSIdentifier, pub.Publication})
	}
	res.PublicationsPath = filepath.Join(p.settings.SummaryDir, PublicationsFile)
	if err := csvio.WriteTableFile(res.PublicationsPath, publicationsHeader, pubRows); err != nil {
		return res, fmt.Errorf("writing publication summary: %w", err)
	}
	p.logger.Info("summary written",
		"studies", len(studies), "logs", len(res.Logs), "elements", len(res.Elements), "publications", len(res.Publications))
	return res, nil
}

// dataElements reads the harmonized dictionaries of one study.
func (p *Pipeline) dataElements(l Layout) ([]DataElement, error) {
	if !dirExists(l.TransformCopy()) {
		return nil, nil
	}
	triplets, err := submission.Collect(l.TransformCopy(), l.Study, submission.RoleTransformCopy)
	if err != nil {
		return nil, err
	}
	var out []DataElement
	for _, t := range triplets {
		defs, err := submission.ParseDictionaryFile(t.Path(submission.KindDict))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", t.File(submission.KindDict), err)
		}
		for _, d := range defs {
			tier := TierStudy
			if std, ok := p.index.Standard(d.Identifier); ok {
				tier = std.Source.String()
			}
			out = append(out, DataElement{
				Study:      l.Study,
				Label:      t.Name.Label,
				Field:      d.Identifier,
				FieldLabel: d.Label,
				Type:       d.Type,
				Tier:       tier,
			})
		}
	}
	return out, nil
}

// publications lists the publications of a study's origcopy META files,
// dropping repeats.
func publications(l Layout) ([]Publication, error) {
	if !dirExists(l.OrigCopy()) {
		return nil, nil
	}
	triplets, err := submission.Collect(l.OrigCopy(), l.Study, submission.RoleOrigCopy)
	if err != nil {
		return nil, err
	}
	var out []Publication
	seen := make(map[Publication]bool)
	for _, t := range triplets {
		info, err := submission.ReadMetaInfo(t.Path(submission.KindMeta))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", t.File(submission.KindMeta), err)
		}
		for _, title := range info.Publications {
			pub := Publication{
				Study:         l.Study,
				Label:         t.Name.Label,
				Project:       info.Project,
				Subproject:    info.Subproject,
				PHSIdentifier: info.PHSIdentifier,
				Publication:   title,
			}
			if !seen[pub] {
				seen[pub] = true
				out = append(out, pub)
			}
		}
	}
	return out, nil
}
