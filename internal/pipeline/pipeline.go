// Package pipeline sequences the GitOps promotion workflow through its fixed
// phases: Setup, Dev Deploy, PR Preview, Prod Promotion, Verify. Phases run
// strictly in that order, each independently skippable; the first failing step
// aborts the run. Rerunning with skip flags is the recovery mechanism; only
// the poller retries, and only for eventually-consistent conditions.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/a2z-ice/student-mgmt-pipeline/internal/cluster"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/config"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/envs"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/keycloak"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/ui"
)

// SeedUsername is the Keycloak account the seeded student row is linked to
// and the E2E suite logs in with.
const SeedUsername = "student-user"

// PreviewLabel triggers the ArgoCD pull-request generator.
const PreviewLabel = "preview"

// ClusterClient is the narrow cluster surface the orchestrator needs. The
// production implementation is internal/cluster; tests use fakes.
type ClusterClient interface {
	NamespaceExists(ctx context.Context, name string) (bool, error)
	PodsReady(ctx context.Context, namespace, selector string) (bool, error)
	RunningPodName(ctx context.Context, namespace, selector string) (string, error)
	PodStatuses(ctx context.Context, namespace string) ([]cluster.PodStatus, error)
	PodLogs(ctx context.Context, namespace, pod string, tail int64) (string, error)
	EnsureSecret(ctx context.Context, namespace, name string, data map[string][]byte) error
	EnsureCoreDNSRewrite(ctx context.Context, hostname, target string) error
	DeploymentExists(ctx context.Context, namespace, name string) (bool, error)
	ApplicationExists(ctx context.Context, namespace, name string) (bool, error)
	ListNamespaces(ctx context.Context, prefix string) ([]string, error)
}

// GitOpsClient observes ArgoCD.
type GitOpsClient interface {
	WaitHealthy(ctx context.Context, app string, timeout time.Duration) error
	ListApps(ctx context.Context) ([]string, error)
}

// OverlayUpdater mutates and reads the Kustomize overlays in git.
type OverlayUpdater interface {
	CurrentTag(overlayPath string) (envs.ImageTag, error)
	SetImageTag(ctx context.Context, overlayPath string, tag envs.ImageTag, branch, message string) (bool, error)
	PushBranch(ctx context.Context, branch string) error
	HeadShortSHA() (string, error)
}

// RegistryClient builds and pushes images and inspects the registry.
type RegistryClient interface {
	ContainerRunning(ctx context.Context, name string) (bool, error)
	BuildAndPush(ctx context.Context, repoRoot string, tag envs.ImageTag) error
	Catalog(ctx context.Context) ([]string, error)
}

// VCSClient drives the pull-request lifecycle.
type VCSClient interface {
	EnsurePullRequest(ctx context.Context, head, base, title, body string) (int, error)
	AddLabel(ctx context.Context, number int, label string) error
	MergePullRequest(ctx context.Context, number int) error
	ClosePullRequest(ctx context.Context, number int) error
}

// IdentityClient manages Keycloak client registrations and user lookup.
type IdentityClient interface {
	AdminToken(ctx context.Context) (string, error)
	UserID(ctx context.Context, token, username string) (string, error)
	UpsertClient(ctx context.Context, token string, spec keycloak.ClientSpec) error
	DeleteClient(ctx context.Context, token, clientID string) error
	ClientExists(ctx context.Context, token, clientID string) (bool, error)
}

// Seeder ensures the reference data in one namespace.
type Seeder interface {
	Seed(ctx context.Context, namespace, keycloakUserID string) error
}

// TestRunner invokes the E2E suite against a base URL.
type TestRunner interface {
	Run(ctx context.Context, baseURL, filter string) error
}

// Prober checks HTTP reachability.
type Prober interface {
	Reachable(ctx context.Context, url string, accepted ...int) (bool, error)
}

// Hosts manages the temporary hosts-file entries preview hostnames need to
// resolve locally.
type Hosts interface {
	Ensure(host string) error
	Remove(host string) error
}

// Cleanups is the guaranteed-release stack the pipeline registers background
// resources into.
type Cleanups interface {
	Register(name string, fn func())
	Run(report func(name string))
}

// Options selects which phases run and how.
type Options struct {
	SkipSetup   bool
	SkipDev     bool
	SkipPreview bool
	SkipProd    bool
	SkipVerify  bool
	// PRNumber reuses an existing pull request for the preview phase instead
	// of creating one.
	PRNumber int
	// DryRun prints the phase plan without touching any external system.
	DryRun bool
	// AutoApprove skips the interactive prod-promotion confirmation.
	AutoApprove bool
	// Filter narrows the E2E suite (--grep expression).
	Filter string
}

// Deps bundles the collaborators the orchestrator depends on. Everything is
// an interface so phases can be exercised without a live cluster.
type Deps struct {
	Cluster  ClusterClient
	GitOps   GitOpsClient
	Overlays OverlayUpdater
	Registry RegistryClient
	VCS      VCSClient
	Identity IdentityClient
	Seeder   Seeder
	E2E      TestRunner
	Prober   Prober
	Hosts    Hosts
	Cleanups Cleanups
	// Confirm asks the user before prod promotion. Defaults to the huh prompt
	// in cmd; tests stub it.
	Confirm func(prompt string) (bool, error)
}

// Pipeline is one run of the promotion workflow.
type Pipeline struct {
	cfg  *config.Config
	opts Options
	deps Deps
	ui   *ui.Printer

	runID string

	pollInterval    time.Duration
	podTimeout      time.Duration
	argoTimeout     time.Duration
	probeTimeout    time.Duration
	teardownTimeout time.Duration
}

// New assembles a Pipeline with default polling policy.
func New(cfg *config.Config, opts Options, deps Deps, printer *ui.Printer) *Pipeline {
	return &Pipeline{
		cfg:  cfg,
		opts: opts,
		deps: deps,
		ui:   printer,

		runID: uuid.NewString()[:8],

		pollInterval:    5 * time.Second,
		podTimeout:      5 * time.Minute,
		argoTimeout:     5 * time.Minute,
		probeTimeout:    2 * time.Minute,
		teardownTimeout: 5 * time.Minute,
	}
}

type phase struct {
	name string
	skip bool
	run  func(context.Context) error
}

func (p *Pipeline) phases() []phase {
	return []phase{
		{"Setup", p.opts.SkipSetup, p.runSetup},
		{"Dev Deploy", p.opts.SkipDev, p.runDevDeploy},
		{"PR Preview", p.opts.SkipPreview, p.runPreview},
		{"Prod Promotion", p.opts.SkipProd, p.runProdPromotion},
		{"Verify", p.opts.SkipVerify, p.runVerify},
	}
}

// PhasePlan returns the names of the phases that will execute, in order.
func (p *Pipeline) PhasePlan() []string {
	var plan []string
	for _, ph := range p.phases() {
		if !ph.skip {
			plan = append(plan, ph.name)
		}
	}
	return plan
}

// Run executes the enabled phases in order. Cleanups registered along the way
// run on every exit path.
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.deps.Cleanups.Run(func(name string) {
		p.ui.Info(fmt.Sprintf("Releasing %s", name))
	})

	p.ui.Info(fmt.Sprintf("Pipeline run %s", p.runID))

	for _, ph := range p.phases() {
		if ph.skip {
			p.ui.Warning(fmt.Sprintf("Skipping phase: %s", ph.name))
			continue
		}
		p.ui.Banner(ph.name)
		if p.opts.DryRun {
			p.ui.Info(fmt.Sprintf("[dry-run] would execute phase %s", ph.name))
			continue
		}
		if err := ph.run(ctx); err != nil {
			p.ui.Error(fmt.Sprintf("Phase %s failed: %v", ph.name, err))
			return fmt.Errorf("phase %s: %w", ph.name, err)
		}
		p.ui.Success(fmt.Sprintf("Phase %s complete", ph.name))
	}

	p.ui.Success("🎉 Pipeline run complete!")
	return nil
}

// seedEnvironment resolves the seeded user's Keycloak id and applies the
// fixtures to the namespace.
func (p *Pipeline) seedEnvironment(ctx context.Context, namespace string) error {
	token, err := p.deps.Identity.AdminToken(ctx)
	if err != nil {
		return err
	}
	userID, err := p.deps.Identity.UserID(ctx, token, SeedUsername)
	if err != nil {
		return err
	}
	return p.deps.Seeder.Seed(ctx, namespace, userID)
}
