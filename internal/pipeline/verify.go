package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/a2z-ice/student-mgmt-pipeline/internal/envs"
)

// runVerify is a read-only aggregate report over every external system the
// pipeline touched. It mutates nothing; a broken invariant (unreachable
// health endpoint, leftover preview namespace) fails the run.
func (p *Pipeline) runVerify(ctx context.Context) error {
	p.ui.Step(1, "Registry contents...")
	repos, err := p.deps.Registry.Catalog(ctx)
	if err != nil {
		return err
	}
	p.ui.Info(fmt.Sprintf("Repositories: %s", strings.Join(repos, ", ")))

	p.ui.Step(2, "ArgoCD applications...")
	apps, err := p.deps.GitOps.ListApps(ctx)
	if err != nil {
		return err
	}
	for _, app := range apps {
		p.ui.Info(app)
	}

	p.ui.Step(3, "Pod status per environment...")
	for _, env := range []envs.Environment{envs.Dev(p.cfg.DevBranch), envs.Prod(p.cfg.ProdBranch)} {
		statuses, err := p.deps.Cluster.PodStatuses(ctx, env.Namespace)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(statuses))
		for _, s := range statuses {
			rows = append(rows, []string{s.Name, s.Ready, s.Phase, fmt.Sprintf("%d", s.Restarts)})
		}
		p.ui.Info(fmt.Sprintf("Namespace %s:", env.Namespace))
		p.ui.Table([]string{"POD", "READY", "STATUS", "RESTARTS"}, rows)
	}

	p.ui.Step(4, "Health endpoints...")
	for _, env := range []envs.Environment{envs.Dev(p.cfg.DevBranch), envs.Prod(p.cfg.ProdBranch)} {
		url := env.BaseURL + "/api/health"
		ok, err := p.deps.Prober.Reachable(ctx, url, 200, 301, 302)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("health endpoint %s is not reachable", url)
		}
		p.ui.Success(fmt.Sprintf("%s reachable", url))
	}

	p.ui.Step(5, "Checking for leftover preview namespaces...")
	leftovers, err := p.deps.Cluster.ListNamespaces(ctx, envs.PreviewNamespacePrefix)
	if err != nil {
		return err
	}
	if len(leftovers) > 0 {
		return fmt.Errorf("leftover preview namespaces found: %s", strings.Join(leftovers, ", "))
	}
	p.ui.Success("No leftover preview namespaces")

	return nil
}
