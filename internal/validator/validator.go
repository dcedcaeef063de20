// Package validator runs external format validators against submission
// files. Validators are black boxes: a process is started, and its exit
// status and output are turned into findings.
package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/leapstack-labs/harmonize/pkg/core"
)

// Placeholders substituted into command arguments.
const (
	InputPlaceholder = "{input}"
	SpecPlaceholder  = "{spec}"
)

// Finding is one problem a validator reported.
type Finding struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Outcome is the result of one validator run.
type Outcome struct {
	Passed   bool
	Findings []Finding
}

// Validator checks one file against a specification.
type Validator interface {
	Validate(ctx context.Context, input, spec string) (Outcome, error)
}

// InvocationError means the validator could not be run at all. It is fatal
// for the phase that needed the validator.
type InvocationError struct {
	Command string
	Err     error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("validator %q could not run: %v", e.Command, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Exec runs a command template such as
// "java -jar dictionary-validator.jar -i {input} -s {spec}".
// The template is split on whitespace; no shell is involved.
type Exec struct {
	Name string
	Args []string
}

// ParseCommand builds an Exec from a command template.
func ParseCommand(template string) (*Exec, error) {
	fields := strings.Fields(template)
	if len(fields) == 0 {
		return nil, errors.New("validator command is empty")
	}
	return &Exec{Name: fields[0], Args: fields[1:]}, nil
}

// Validate implements Validator. The file passes when the process exits 0
// and writes nothing to stderr.
func (x *Exec) Validate(ctx context.Context, input, spec string) (Outcome, error) {
	args := make([]string, len(x.Args))
	r := strings.NewReplacer(InputPlaceholder, input, SpecPlaceholder, spec)
	for i, a := range x.Args {
		args[i] = r.Replace(a)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, x.Name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Outcome{}, &InvocationError{Command: x.Name, Err: ctxErr}
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return Outcome{}, &InvocationError{Command: x.Name, Err: err}
	}
	if err == nil && strings.TrimSpace(stderr.String()) == "" {
		return Outcome{Passed: true}, nil
	}

	findings := ParseFindings(stderr.String())
	if len(findings) == 0 {
		findings = ParseFindings(stdout.String())
	}
	if len(findings) == 0 {
		findings = []Finding{{Message: fmt.Sprintf("validator exited with status %d", cmd.ProcessState.ExitCode())}}
	}
	return Outcome{Findings: findings}, nil
}

// ParseFindings reads validator output. Lines that are JSON objects with a
// message are decoded as findings; any other non-empty line is a finding
// with only a message.
func ParseFindings(out string) []Finding {
	var findings []Finding
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "{") {
			var f Finding
			if err := json.Unmarshal([]byte(line), &f); err == nil && f.Message != "" {
				findings = append(findings, f)
				continue
			}
		}
		findings = append(findings, Finding{Message: line})
	}
	return findings
}

// Findings converts an outcome to E001 errors against file.
func Findings(file string, out Outcome) []core.HarmonizationError {
	errs := make([]core.HarmonizationError, 0, len(out.Findings))
	for _, f := range out.Findings {
		errs = append(errs, core.HarmonizationError{
			File:     file,
			Row:      f.Row,
			Field:    f.Field,
			Severity: core.SeverityError,
			Code:     core.CodeValidatorFinding,
			Message:  f.Message,
		})
	}
	return errs
}
