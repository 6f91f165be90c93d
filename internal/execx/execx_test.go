package execx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCapturesOutput(t *testing.T) {
	output, err := Run(context.Background(), "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(output))
}

func TestRunReturnsExitError(t *testing.T) {
	output, err := Run(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.ExitCode)
	assert.Contains(t, exitErr.Command, "sh -c")
	assert.Contains(t, string(output), "boom")
	assert.Contains(t, err.Error(), "exit code 3")
	assert.Contains(t, err.Error(), "boom")
}

func TestStartBackgroundStop(t *testing.T) {
	bg, err := StartBackground("sleep", "60")
	require.NoError(t, err)
	assert.Greater(t, bg.PID(), 0)

	bg.Stop()
	// Stop after exit must not panic.
	assert.NotPanics(t, bg.Stop)
}
