package pipeline

import (
	"context"
	"fmt"

	"github.com/a2z-ice/student-mgmt-pipeline/internal/envs"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/poll"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/seed"
)

// runDevDeploy builds, promotes to dev, seeds and verifies it end to end.
func (p *Pipeline) runDevDeploy(ctx context.Context) error {
	env := envs.Dev(p.cfg.DevBranch)

	p.ui.Step(1, "Resolving source revision...")
	sha, err := p.deps.Overlays.HeadShortSHA()
	if err != nil {
		return err
	}
	tag := envs.NewImageTag("dev", sha)
	p.ui.Info(fmt.Sprintf("Image tag: %s", tag))

	p.ui.Step(2, "Building and pushing images...")
	if err := p.deps.Registry.BuildAndPush(ctx, p.cfg.RepoRoot, tag); err != nil {
		return err
	}
	p.ui.Success("Images pushed")

	p.ui.Step(3, fmt.Sprintf("Updating dev overlay to %s...", tag))
	committed, err := p.deps.Overlays.SetImageTag(ctx, env.OverlayPath, tag, env.WatchedBranch,
		fmt.Sprintf("deploy(dev): image tag %s", tag))
	if err != nil {
		return err
	}
	if committed {
		p.ui.Success(fmt.Sprintf("Dev overlay updated on branch %s", env.WatchedBranch))
	} else {
		p.ui.Info("Dev overlay already at this tag, no commit created")
	}

	return p.deployAndTest(ctx, env)
}

// deployAndTest is the shared tail of every deploy phase: wait for ArgoCD,
// wait for pods, seed, probe, run the suite.
func (p *Pipeline) deployAndTest(ctx context.Context, env envs.Environment) error {
	p.ui.Progress(fmt.Sprintf("Waiting for ArgoCD application %s...", env.ArgoCDApp))
	if err := p.deps.GitOps.WaitHealthy(ctx, env.ArgoCDApp, p.argoTimeout); err != nil {
		p.dumpDiagnostics(ctx, env.Namespace)
		return err
	}
	p.ui.Success(fmt.Sprintf("Application %s is healthy", env.ArgoCDApp))

	if err := poll.Until(ctx, p.pollInterval, p.podTimeout,
		fmt.Sprintf("backend pod readiness in %s", env.Namespace),
		func(ctx context.Context) (bool, error) {
			return p.deps.Cluster.PodsReady(ctx, env.Namespace, seed.BackendSelector)
		}); err != nil {
		p.dumpDiagnostics(ctx, env.Namespace)
		return err
	}

	p.ui.Progress(fmt.Sprintf("Seeding %s...", env.Namespace))
	if err := p.seedEnvironment(ctx, env.Namespace); err != nil {
		return err
	}
	p.ui.Success("Reference data seeded")

	healthURL := env.BaseURL + "/api/health"
	if err := poll.Until(ctx, p.pollInterval, p.probeTimeout,
		fmt.Sprintf("reachability of %s", healthURL),
		func(ctx context.Context) (bool, error) {
			return p.deps.Prober.Reachable(ctx, healthURL, 200, 301, 302)
		}); err != nil {
		p.dumpDiagnostics(ctx, env.Namespace)
		return err
	}

	p.ui.Progress(fmt.Sprintf("Running E2E suite against %s...", env.BaseURL))
	if err := p.deps.E2E.Run(ctx, p.baseURL(env), p.opts.Filter); err != nil {
		p.dumpDiagnostics(ctx, env.Namespace)
		return err
	}
	p.ui.Success("E2E suite passed")
	return nil
}

// baseURL honors the APP_URL override for the test runner.
func (p *Pipeline) baseURL(env envs.Environment) string {
	if p.cfg.AppURL != "" {
		return p.cfg.AppURL
	}
	return env.BaseURL
}
