package pipeline

import (
	"context"
	"fmt"

	"github.com/a2z-ice/student-mgmt-pipeline/internal/envs"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/keycloak"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/poll"
)

// runPreview owns the full create/test/destroy lifecycle of an ephemeral PR
// environment. Teardown is verified, not assumed: the phase polls until the
// namespace and application are gone and the throwaway identity-provider
// client is deleted.
func (p *Pipeline) runPreview(ctx context.Context) error {
	if p.cfg.GitHubToken == "" {
		return fmt.Errorf("GITHUB_TOKEN is required for the PR-preview phase")
	}

	p.ui.Step(1, "Ensuring pull request...")
	prNumber := p.opts.PRNumber
	if prNumber == 0 {
		head := fmt.Sprintf("preview/%s", p.runID)
		if err := p.deps.Overlays.PushBranch(ctx, head); err != nil {
			return err
		}
		n, err := p.deps.VCS.EnsurePullRequest(ctx, head, p.cfg.DevBranch,
			fmt.Sprintf("Preview run %s", p.runID),
			"Ephemeral preview environment exercised by the pipeline harness.")
		if err != nil {
			return err
		}
		prNumber = n
	}
	env := envs.Preview(prNumber)
	p.ui.Info(fmt.Sprintf("Pull request #%d, namespace %s", prNumber, env.Namespace))

	if err := p.deps.Hosts.Ensure(env.Host); err != nil {
		return err
	}
	p.deps.Cleanups.Register(fmt.Sprintf("hosts entry %s", env.Host), func() {
		_ = p.deps.Hosts.Remove(env.Host)
	})

	p.ui.Step(2, "Building and pushing PR images...")
	sha, err := p.deps.Overlays.HeadShortSHA()
	if err != nil {
		return err
	}
	tag := envs.PreviewImageTag(prNumber, sha)
	if err := p.deps.Registry.BuildAndPush(ctx, p.cfg.RepoRoot, tag); err != nil {
		return err
	}
	p.ui.Success(fmt.Sprintf("Images pushed with tag %s", tag))

	p.ui.Step(3, fmt.Sprintf("Labeling PR #%d with %q...", prNumber, PreviewLabel))
	if err := p.deps.VCS.AddLabel(ctx, prNumber, PreviewLabel); err != nil {
		return err
	}

	p.ui.Progress("Waiting for ArgoCD to materialize the preview environment...")
	if err := poll.Until(ctx, p.pollInterval, p.argoTimeout,
		fmt.Sprintf("preview namespace %s and application %s", env.Namespace, env.ArgoCDApp),
		func(ctx context.Context) (bool, error) {
			nsExists, err := p.deps.Cluster.NamespaceExists(ctx, env.Namespace)
			if err != nil || !nsExists {
				return false, err
			}
			return p.deps.Cluster.ApplicationExists(ctx, p.cfg.ArgoCDNamespace, env.ArgoCDApp)
		}); err != nil {
		return err
	}
	p.ui.Success("Preview environment materialized")

	p.ui.Step(4, "Registering throwaway identity-provider client...")
	token, err := p.deps.Identity.AdminToken(ctx)
	if err != nil {
		return err
	}
	clientID := env.KeycloakClientID()
	if err := p.deps.Identity.UpsertClient(ctx, token, keycloak.ClientSpec{
		ClientID:     clientID,
		RedirectURIs: []string{env.BaseURL + "/*"},
		WebOrigins:   []string{env.BaseURL},
		Description:  fmt.Sprintf("Ephemeral client for PR #%d", prNumber),
	}); err != nil {
		return err
	}
	// The client must not outlive the run even if a later step fails.
	p.deps.Cleanups.Register(fmt.Sprintf("identity client %s", clientID), func() {
		cleanupCtx := context.Background()
		if t, err := p.deps.Identity.AdminToken(cleanupCtx); err == nil {
			_ = p.deps.Identity.DeleteClient(cleanupCtx, t, clientID)
		}
	})
	p.ui.Success(fmt.Sprintf("Client %s registered", clientID))

	if err := p.deployAndTest(ctx, env); err != nil {
		// Close the PR so a broken preview does not linger, then surface the
		// original failure.
		if closeErr := p.deps.VCS.ClosePullRequest(ctx, prNumber); closeErr != nil {
			p.ui.Warning(fmt.Sprintf("Failed to close PR #%d: %v", prNumber, closeErr))
		}
		return err
	}

	p.ui.Step(5, fmt.Sprintf("Merging PR #%d...", prNumber))
	if err := p.deps.VCS.MergePullRequest(ctx, prNumber); err != nil {
		return err
	}

	p.ui.Progress("Waiting for ArgoCD to prune the preview environment...")
	if err := poll.Until(ctx, p.pollInterval, p.teardownTimeout,
		fmt.Sprintf("teardown of namespace %s and application %s", env.Namespace, env.ArgoCDApp),
		func(ctx context.Context) (bool, error) {
			nsExists, err := p.deps.Cluster.NamespaceExists(ctx, env.Namespace)
			if err != nil || nsExists {
				return false, err
			}
			appExists, err := p.deps.Cluster.ApplicationExists(ctx, p.cfg.ArgoCDNamespace, env.ArgoCDApp)
			return !appExists, err
		}); err != nil {
		return err
	}
	p.ui.Success("Preview environment pruned")

	if err := p.deps.Hosts.Remove(env.Host); err != nil {
		p.ui.Warning(fmt.Sprintf("Failed to remove hosts entry %s: %v", env.Host, err))
	}

	p.ui.Step(6, "Deleting throwaway identity-provider client...")
	token, err = p.deps.Identity.AdminToken(ctx)
	if err != nil {
		return err
	}
	if err := p.deps.Identity.DeleteClient(ctx, token, clientID); err != nil {
		return err
	}
	exists, err := p.deps.Identity.ClientExists(ctx, token, clientID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("identity client %s still registered after deletion", clientID)
	}
	p.ui.Success("Throwaway client deleted")

	return nil
}
