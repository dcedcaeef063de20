package commands

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// confirm asks a yes/no question on the terminal. Without a terminal there
// is nobody to ask, so the caller must pass --yes instead.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	in, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(in.Fd())) {
		return false, NewExitError(ExitCommandError, "stdin is not a terminal; pass --yes to confirm")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          question + " [y/N] ",
		Stdin:           in,
		Stdout:          cmd.ErrOrStderr(),
		InterruptPrompt: "^C",
	})
	if err != nil {
		return false, WrapExitError(ExitCommandError, "failed to read confirmation", err)
	}
	defer func() { _ = rl.Close() }()

	line, err := rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, WrapExitError(ExitCommandError, "failed to read confirmation", err)
	}
	return isYes(line), nil
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
