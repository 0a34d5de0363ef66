package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCommand executes the root command with the given args, capturing
// stdout and stderr.
func runCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	_, _, err := runCommand(t, "--format", "xml", "plan", "--schema", "x", "--desired", "y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"diff", "plan", "validate", "apply"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "boom")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := WrapExitError(ExitFailure, "outer", errors.New("inner"))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
	assert.ErrorContains(t, wrapped, "outer: inner")
}
