package validator

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/harmonize/pkg/core"
)

func shell(t *testing.T, script string) *Exec {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	return &Exec{Name: "sh", Args: []string{"-c", script, "validator", InputPlaceholder, SpecPlaceholder}}
}

func TestParseCommand(t *testing.T) {
	x, err := ParseCommand("java -jar  dict.jar -i {input} -s {spec}")
	require.NoError(t, err)
	assert.Equal(t, "java", x.Name)
	assert.Equal(t, []string{"-jar", "dict.jar", "-i", "{input}", "-s", "{spec}"}, x.Args)

	_, err = ParseCommand("   ")
	assert.Error(t, err)
}

func TestExec_Pass(t *testing.T) {
	out, err := shell(t, `test "$1" = in.csv && test "$2" = spec.json`).Validate(context.Background(), "in.csv", "spec.json")
	require.NoError(t, err)
	assert.True(t, out.Passed)
	assert.Empty(t, out.Findings)
}

func TestExec_PlainFindings(t *testing.T) {
	out, err := shell(t, `echo "missing column Unit" >&2; echo "bad type on line 4" >&2; exit 1`).
		Validate(context.Background(), "in.csv", "spec.json")
	require.NoError(t, err)
	assert.False(t, out.Passed)
	assert.Equal(t, []Finding{{Message: "missing column Unit"}, {Message: "bad type on line 4"}}, out.Findings)
}

func TestExec_JSONFindingsOnStdout(t *testing.T) {
	out, err := shell(t, `echo '{"row":3,"field":"age","message":"not an integer"}'; exit 2`).
		Validate(context.Background(), "in.csv", "spec.json")
	require.NoError(t, err)
	assert.False(t, out.Passed)
	assert.Equal(t, []Finding{{Row: 3, Field: "age", Message: "not an integer"}}, out.Findings)
}

func TestExec_SilentFailure(t *testing.T) {
	out, err := shell(t, `exit 3`).Validate(context.Background(), "in.csv", "spec.json")
	require.NoError(t, err)
	require.Len(t, out.Findings, 1)
	assert.Contains(t, out.Findings[0].Message, "status 3")
}

func TestExec_StderrFailsEvenOnZeroExit(t *testing.T) {
	out, err := shell(t, `echo "warning: odd header" >&2`).Validate(context.Background(), "in.csv", "spec.json")
	require.NoError(t, err)
	assert.False(t, out.Passed)
}

func TestExec_MissingExecutable(t *testing.T) {
	x := &Exec{Name: "definitely-not-a-validator-binary"}
	_, err := x.Validate(context.Background(), "in.csv", "spec.json")
	var ie *InvocationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "definitely-not-a-validator-binary", ie.Command)
}

func TestExec_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := shell(t, `sleep 5`).Validate(ctx, "in.csv", "spec.json")
	var ie *InvocationError
	require.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFindings(t *testing.T) {
	errs := Findings("s1_a_DICT.csv", Outcome{Findings: []Finding{{Row: 2, Field: "age", Message: "bad"}}})
	require.Len(t, errs, 1)
	assert.Equal(t, core.HarmonizationError{
		File: "s1_a_DICT.csv", Row: 2, Field: "age", Severity: core.SeverityError,
		Code: core.CodeValidatorFinding, Message: "bad",
	}, errs[0])
}
