package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/harmonize/internal/csvio"
	"github.com/leapstack-labs/harmonize/internal/submission"
	"github.com/leapstack-labs/harmonize/internal/validator"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

var tripletKinds = []submission.Kind{submission.KindData, submission.KindDict, submission.KindMeta}

// checkEncoding reports whether the file at path is text that parses as
// CSV. With convert set, ISO-8859-1 files are rewritten as UTF-8 in place.
func (p *Pipeline) checkEncoding(r *StudyRun, path string, convert bool) (bool, error) {
	name := filepath.Base(path)
	binary, err := csvio.IsBinary(path)
	if err != nil {
		return false, err
	}
	if binary {
		r.Collector.Addf(name, core.SeverityError, core.CodeNotUTF8,
			"File is not UTF-8 encoded text and cannot be converted (binary content)")
		return false, nil
	}

	isUTF8, err := csvio.ValidUTF8File(path)
	if err != nil {
		return false, err
	}
	latin1 := !isUTF8
	if latin1 && convert {
		if err := csvio.ConvertLatin1(path, path); err != nil {
			return false, fmt.Errorf("converting %s: %w", name, err)
		}
		r.Collector.Addf(name, core.SeverityWarning, core.CodeConvertedLatin1, "Converted from ISO-8859-1 to UTF-8")
		latin1 = false
	} else if latin1 {
		r.Logger.Debug("file is not UTF-8, it will be converted from ISO-8859-1", "file", name)
	}

	if err := csvio.CheckWellFormed(path, latin1); err != nil {
		var pe *csv.ParseError
		switch {
		case errors.As(err, &pe):
			r.Collector.Add(core.HarmonizationError{
				File:     name,
				Row:      pe.StartLine,
				Severity: core.SeverityError,
				Code:     core.CodeMalformedCSV,
				Message:  fmt.Sprintf("Invalid CSV: %v", pe.Err),
			})
		case errors.Is(err, csvio.ErrEmptyFile):
			r.Collector.Addf(name, core.SeverityError, core.CodeMalformedCSV, "File is empty")
		default:
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// validate runs v on input and records its findings. An InvocationError is
// returned for the caller to treat as fatal.
func (p *Pipeline) validate(ctx context.Context, r *StudyRun, v validator.Validator, spec, input string) error {
	if v == nil {
		return nil
	}
	out, err := v.Validate(ctx, input, spec)
	if err != nil {
		return err
	}
	if !out.Passed {
		r.Logger.Debug("validator reported findings", "file", filepath.Base(input), "findings", len(out.Findings))
	}
	r.Collector.Extend(validator.Findings(filepath.Base(input), out))
	return nil
}

func (p *Pipeline) validateDict(ctx context.Context, r *StudyRun, path string) error {
	return p.validate(ctx, r, p.dictValidator, p.settings.Validators.Dictionary.Spec, path)
}

func (p *Pipeline) validateMeta(ctx context.Context, r *StudyRun, path string) error {
	return p.validate(ctx, r, p.metaValidator, p.settings.Validators.Metadata.Spec, path)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hasErrors(errs []core.HarmonizationError) bool {
	for _, e := range errs {
		if e.IsError() {
			return true
		}
	}
	return false
}
