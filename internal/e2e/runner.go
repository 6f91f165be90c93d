// Package e2e shells out to the Playwright suite and treats its exit code as
// the verdict for an environment.
package e2e

import (
	"context"
	"fmt"

	"github.com/a2z-ice/student-mgmt-pipeline/internal/execx"
)

// Runner invokes the browser test suite from its project directory.
type Runner struct {
	dir string
}

// New returns a Runner for the Playwright project at dir.
func New(dir string) *Runner {
	return &Runner{dir: dir}
}

// Run executes the suite against baseURL, optionally narrowed with a --grep
// filter. Output streams to the terminal; a non-zero exit is the caller's cue
// to dump diagnostics and abort.
func (r *Runner) Run(ctx context.Context, baseURL, filter string) error {
	args := []string{"--prefix", r.dir, "exec", "playwright", "test", "--"}
	if filter != "" {
		args = append(args, "--grep", filter)
	}
	env := []string{fmt.Sprintf("APP_URL=%s", baseURL)}
	if err := execx.RunStreamingEnv(ctx, env, "npm", args...); err != nil {
		return fmt.Errorf("e2e suite failed against %s: %w", baseURL, err)
	}
	return nil
}

// StartLocalApp launches the application locally for suite runs that do not
// target a deployed environment. The returned process must be registered in
// the cleanup stack.
func StartLocalApp(dir string) (*execx.Background, error) {
	return execx.StartBackground("npm", "--prefix", dir, "run", "dev")
}
