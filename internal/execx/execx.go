// Package execx runs the external CLIs the pipeline delegates to (kubectl,
// docker, argocd, npx). Every hard operation in this harness belongs to one of
// those tools; this package only captures their output and exit codes.
package execx

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ExitError wraps a failed external command with enough context for the
// pipeline's diagnostic dump.
type ExitError struct {
	Command  string
	Output   []byte
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf(
		"command %q failed with exit code %d: %s",
		e.Command,
		e.ExitCode,
		strings.TrimSpace(string(e.Output)),
	)
}

// Run executes the command and returns its combined output. A non-zero exit
// is returned as an *ExitError carrying the captured output.
func Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, &ExitError{
			Command:  strings.Join(cmd.Args, " "),
			Output:   output,
			ExitCode: cmd.ProcessState.ExitCode(),
		}
	}
	return output, nil
}

// RunStreaming executes the command relaying stdout/stderr to the terminal.
// Used for long-running tools whose progress the user should see (docker
// build, playwright).
func RunStreaming(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return &ExitError{
			Command:  strings.Join(cmd.Args, " "),
			ExitCode: cmd.ProcessState.ExitCode(),
		}
	}
	return nil
}

// RunStreamingEnv is RunStreaming with extra KEY=VALUE pairs appended to the
// inherited environment.
func RunStreamingEnv(ctx context.Context, env []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return &ExitError{
			Command:  strings.Join(cmd.Args, " "),
			ExitCode: cmd.ProcessState.ExitCode(),
		}
	}
	return nil
}

// Background starts the command detached from the current run's lifetime and
// returns it. The caller owns termination; the pipeline registers a kill in
// its cleanup stack.
type Background struct {
	cmd *exec.Cmd
}

// StartBackground launches a helper process (a locally started app instance)
// whose lifetime outlives a single Run call.
func StartBackground(name string, args ...string) (*Background, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}
	return &Background{cmd: cmd}, nil
}

// PID returns the process id of the background process.
func (b *Background) PID() int {
	if b.cmd.Process == nil {
		return 0
	}
	return b.cmd.Process.Pid
}

// Stop kills the background process and reaps it. Safe to call if the process
// already exited.
func (b *Background) Stop() {
	if b.cmd.Process == nil {
		return
	}
	_ = b.cmd.Process.Kill()
	_ = b.cmd.Wait()
}
