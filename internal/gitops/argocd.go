package gitops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/a2z-ice/student-mgmt-pipeline/internal/execx"
)

// ArgoCD observes application health through the argocd CLI in core mode, so
// no API server login is needed; the CLI talks straight to the cluster the
// current kubeconfig context points at. Applications are never created or
// synced from here: reconciliation is ArgoCD's job, the pipeline only waits
// for its outcome.
type ArgoCD struct {
	namespace string
}

// NewArgoCD returns an observer for applications in the given namespace.
func NewArgoCD(namespace string) *ArgoCD {
	return &ArgoCD{namespace: namespace}
}

// WaitHealthy blocks until the application is synced and healthy or the
// timeout elapses. The CLI's own timeout handling applies; a non-zero exit is
// fatal to the run.
func (a *ArgoCD) WaitHealthy(ctx context.Context, app string, timeout time.Duration) error {
	args := []string{"app", "wait", app,
		"--sync", "--health",
		"--timeout", fmt.Sprintf("%d", int(timeout.Seconds())),
		"--core",
	}
	if a.namespace != "" {
		args = append(args, "--app-namespace", a.namespace)
	}
	output, err := execx.Run(ctx, "argocd", args...)
	if err != nil {
		return fmt.Errorf("argocd app %s did not become healthy: %w\n%s", app, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// ListApps returns the names of all applications ArgoCD manages.
func (a *ArgoCD) ListApps(ctx context.Context) ([]string, error) {
	args := []string{"app", "list", "-o", "name", "--core"}
	if a.namespace != "" {
		args = append(args, "--app-namespace", a.namespace)
	}
	output, err := execx.Run(ctx, "argocd", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list argocd applications: %w", err)
	}
	var apps []string
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			apps = append(apps, line)
		}
	}
	return apps, nil
}
