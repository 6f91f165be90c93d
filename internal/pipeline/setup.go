package pipeline

import (
	"context"
	"fmt"

	"github.com/a2z-ice/student-mgmt-pipeline/internal/poll"
)

const (
	registryContainer  = "student-mgmt-registry"
	keycloakHostname   = "idp.keycloak.com"
	keycloakDNSTarget  = "keycloak.keycloak.svc.cluster.local"
	githubTokenSecret  = "github-token"
	argoRolloutsNS     = "argo-rollouts"
	argoRolloutsDeploy = "argo-rollouts"
)

// runSetup brings up the baseline the later phases assume. Every step checks
// for existing resources before creating; rerunning is safe.
func (p *Pipeline) runSetup(ctx context.Context) error {
	p.ui.Step(1, "Checking local registry...")
	running, err := p.deps.Registry.ContainerRunning(ctx, registryContainer)
	if err != nil {
		return err
	}
	if !running {
		return fmt.Errorf("registry container %q is not running; start the kind environment first", registryContainer)
	}
	p.ui.Success("Local registry is running")

	p.ui.Step(2, "Checking cluster reachability...")
	if err := poll.Until(ctx, p.pollInterval, p.probeTimeout, "cluster API reachability", func(ctx context.Context) (bool, error) {
		return p.deps.Cluster.NamespaceExists(ctx, "kube-system")
	}); err != nil {
		return err
	}
	p.ui.Success("Cluster API is reachable")

	p.ui.Step(3, "Checking ArgoCD and Argo Rollouts controllers...")
	for _, check := range []struct {
		namespace, deployment string
	}{
		{p.cfg.ArgoCDNamespace, "argocd-repo-server"},
		{p.cfg.ArgoCDNamespace, "argocd-applicationset-controller"},
		{argoRolloutsNS, argoRolloutsDeploy},
	} {
		exists, err := p.deps.Cluster.DeploymentExists(ctx, check.namespace, check.deployment)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("deployment %s/%s not found; install it before running the pipeline", check.namespace, check.deployment)
		}
		p.ui.Info(fmt.Sprintf("%s/%s present", check.namespace, check.deployment))
	}

	p.ui.Step(4, "Patching CoreDNS for the identity provider hostname...")
	if err := p.deps.Cluster.EnsureCoreDNSRewrite(ctx, keycloakHostname, keycloakDNSTarget); err != nil {
		return err
	}
	p.ui.Success(fmt.Sprintf("CoreDNS resolves %s in-cluster", keycloakHostname))

	p.ui.Step(5, "Ensuring GitHub token secret...")
	if p.cfg.GitHubToken == "" {
		p.ui.Warning("GITHUB_TOKEN not set; the PR-preview phase will fail without it")
	} else {
		if err := p.deps.Cluster.EnsureSecret(ctx, p.cfg.ArgoCDNamespace, githubTokenSecret, map[string][]byte{
			"token": []byte(p.cfg.GitHubToken),
		}); err != nil {
			return err
		}
		p.ui.Success("GitHub token secret ensured")
	}

	return nil
}
