package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/a2z-ice/student-mgmt-pipeline/internal/cleanup"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/cluster"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/config"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/e2e"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/envs"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/gitops"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/hostsfile"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/keycloak"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/pipeline"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/probe"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/registry"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/seed"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/ui"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/vcs"
)

var (
	// version is set via ldflags at build time
	version = "dev"

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00D4AA")).
			Bold(true)

	bannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00D4AA")).
			Bold(true).
			Padding(1, 0)
)

const banner = `
██████╗ ██╗██████╗ ███████╗ ██████╗████████╗██╗
██╔══██╗██║██╔══██╗██╔════╝██╔════╝╚══██╔══╝██║
██████╔╝██║██████╔╝█████╗  ██║        ██║   ██║
██╔═══╝ ██║██╔═══╝ ██╔══╝  ██║        ██║   ██║
██║     ██║██║     ███████╗╚██████╗   ██║   ███████╗
╚═╝     ╚═╝╚═╝     ╚══════╝ ╚═════╝   ╚═╝   ╚══════╝
`

const subtitle = "⚡ GitOps promotion harness for the student-mgmt stack ⚡"

func printBanner() {
	fmt.Print(bannerStyle.Render(banner))
	fmt.Print(bannerStyle.Render(subtitle))
	fmt.Println()
}

var rootCmd = &cobra.Command{
	Use:   "pipectl",
	Short: "Drive the student-mgmt GitOps pipeline on a local Kind cluster",
	Long: `pipectl automates the multi-environment GitOps workflow for the
student-mgmt application: build and push images, update the Kustomize
overlays ArgoCD watches, wait for reconciliation, seed reference data,
and run the Playwright E2E suites across dev, PR-preview and prod.`,
}

// deps wires the production implementations behind the pipeline interfaces.
func buildDeps(cfg *config.Config, reg *cleanup.Registry) (pipeline.Deps, error) {
	clusterClient, err := cluster.New(cfg.KubeContext)
	if err != nil {
		return pipeline.Deps{}, err
	}
	return pipeline.Deps{
		Cluster:  clusterClient,
		GitOps:   gitops.NewArgoCD(cfg.ArgoCDNamespace),
		Overlays: gitops.NewOverlayUpdater(cfg.RepoRoot, cfg.GitRemote, cfg.GitHubToken),
		Registry: registry.New(cfg.RegistryHost),
		VCS:      vcs.New(cfg.GitHubToken, cfg.GitHubOwner, cfg.GitHubRepo),
		Identity: keycloak.New(keycloak.Config{
			BaseURL:       cfg.KeycloakURL,
			Realm:         cfg.KeycloakRealm,
			AdminUser:     cfg.KeycloakAdmin,
			AdminPassword: cfg.KeycloakAdminPassword,
			InsecureTLS:   cfg.KeycloakInsecureTLS,
		}),
		Seeder:   seed.NewNamespaceSeeder(clusterClient),
		E2E:      e2e.New(cfg.RepoRoot + "/e2e"),
		Prober:   probe.New(),
		Hosts:    hostsfile.NewManager(cfg.HostsFile, cfg.IngressIP),
		Cleanups: reg,
		Confirm:  confirmPrompt,
	}, nil
}

func confirmPrompt(prompt string) (bool, error) {
	var approved bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(prompt).
			Affirmative("Promote").
			Negative("Abort").
			Value(&approved),
	))
	if err := form.Run(); err != nil {
		return false, err
	}
	return approved, nil
}

func newPipelineCmd() *cobra.Command {
	pipelineCmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run or verify the promotion workflow",
	}

	var opts pipeline.Options
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full promotion workflow",
		Long: `Run the promotion workflow through its phases in order:
Setup, Dev Deploy, PR Preview, Prod Promotion, Verify.

Each phase can be skipped independently; the remaining phases keep
their relative order. The first failing step aborts the run; rerun
with the appropriate --skip flags to resume.

Examples:
  pipectl pipeline run
  pipectl pipeline run --skip-setup --skip-pr-preview
  pipectl pipeline run --pr-number 42 --skip-dev --skip-prod
  pipectl pipeline run --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner()
			fmt.Println(titleStyle.Render("🚀 Running student-mgmt pipeline"))
			fmt.Println()

			printer := ui.New()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			reg := cleanup.NewRegistry()
			reg.HandleSignals(func(name string) {
				printer.Info(fmt.Sprintf("Releasing %s", name))
			})
			deps, err := buildDeps(cfg, reg)
			if err != nil {
				return err
			}
			return pipeline.New(cfg, opts, deps, printer).Run(cmd.Context())
		},
	}
	runCmd.Flags().BoolVar(&opts.SkipSetup, "skip-setup", false, "Skip the Setup phase")
	runCmd.Flags().BoolVar(&opts.SkipDev, "skip-dev", false, "Skip the Dev Deploy phase")
	runCmd.Flags().BoolVar(&opts.SkipPreview, "skip-pr-preview", false, "Skip the PR Preview phase")
	runCmd.Flags().BoolVar(&opts.SkipProd, "skip-prod", false, "Skip the Prod Promotion phase")
	runCmd.Flags().BoolVar(&opts.SkipVerify, "skip-verify", false, "Skip the Verify phase")
	runCmd.Flags().IntVar(&opts.PRNumber, "pr-number", 0, "Reuse an existing pull request for the preview phase")
	runCmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Print the phase plan without touching anything")
	runCmd.Flags().BoolVarP(&opts.AutoApprove, "yes", "y", false, "Skip the prod promotion confirmation")
	runCmd.Flags().StringVar(&opts.Filter, "filter", "", "Narrow the E2E suite (--grep expression)")

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Run only the read-only verification report",
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := ui.New()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			reg := cleanup.NewRegistry()
			deps, err := buildDeps(cfg, reg)
			if err != nil {
				return err
			}
			verifyOnly := pipeline.Options{
				SkipSetup: true, SkipDev: true, SkipPreview: true, SkipProd: true,
			}
			return pipeline.New(cfg, verifyOnly, deps, printer).Run(cmd.Context())
		},
	}

	pipelineCmd.AddCommand(runCmd)
	pipelineCmd.AddCommand(verifyCmd)
	return pipelineCmd
}

func newSeedCmd() *cobra.Command {
	var namespace string
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the reference data in one namespace",
		Long: `Ensure the canonical departments and students exist in the target
namespace's database. Safe to run repeatedly: names mutated by a prior
E2E run are corrected back to their canonical values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := ui.New()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			clusterClient, err := cluster.New(cfg.KubeContext)
			if err != nil {
				return err
			}
			idp := keycloak.New(keycloak.Config{
				BaseURL:       cfg.KeycloakURL,
				Realm:         cfg.KeycloakRealm,
				AdminUser:     cfg.KeycloakAdmin,
				AdminPassword: cfg.KeycloakAdminPassword,
				InsecureTLS:   cfg.KeycloakInsecureTLS,
			})
			ctx := cmd.Context()
			token, err := idp.AdminToken(ctx)
			if err != nil {
				return err
			}
			userID, err := idp.UserID(ctx, token, pipeline.SeedUsername)
			if err != nil {
				return err
			}
			if err := seed.NewNamespaceSeeder(clusterClient).Seed(ctx, namespace, userID); err != nil {
				return err
			}
			printer.Success(fmt.Sprintf("Namespace %s seeded", namespace))
			return nil
		},
	}
	seedCmd.Flags().StringVarP(&namespace, "namespace", "n", "student-mgmt-dev", "Target namespace")
	return seedCmd
}

func newE2ECmd() *cobra.Command {
	var (
		envName  string
		appURL   string
		filter   string
		local    bool
		startApp bool
		deployed bool
	)
	e2eCmd := &cobra.Command{
		Use:   "e2e",
		Short: "Run the Playwright suite against an environment",
		Long: `Run the browser E2E suite against a deployed environment, an explicit
URL, or a locally started application instance.

Examples:
  pipectl e2e --env dev
  pipectl e2e --env pr-42 --filter "students"
  pipectl e2e --local --start-app
  pipectl e2e --app-url https://dev.student-mgmt.local:8443 --deployed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := ui.New()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			baseURL := appURL
			if baseURL == "" {
				baseURL = cfg.AppURL
			}
			if baseURL == "" {
				env, err := resolveEnv(envName, cfg)
				if err != nil {
					return err
				}
				baseURL = env.BaseURL
			}
			if local && deployed {
				return fmt.Errorf("--local and --deployed are mutually exclusive")
			}
			if local {
				baseURL = "http://localhost:8000"
			}

			reg := cleanup.NewRegistry()
			reg.HandleSignals(func(name string) {
				printer.Info(fmt.Sprintf("Releasing %s", name))
			})
			defer reg.Run(func(name string) {
				printer.Info(fmt.Sprintf("Releasing %s", name))
			})

			if startApp {
				app, err := e2e.StartLocalApp(cfg.RepoRoot)
				if err != nil {
					return err
				}
				printer.Info(fmt.Sprintf("Started local app (pid %d)", app.PID()))
				reg.Register("local app instance", app.Stop)
			}

			printer.Progress(fmt.Sprintf("Running E2E suite against %s", baseURL))
			if err := e2e.New(cfg.RepoRoot+"/e2e").Run(cmd.Context(), baseURL, filter); err != nil {
				return err
			}
			printer.Success("E2E suite passed")
			return nil
		},
	}
	e2eCmd.Flags().StringVar(&envName, "env", "dev", "Target environment: dev, prod, or pr-N")
	e2eCmd.Flags().StringVar(&appURL, "app-url", "", "Explicit base URL, overrides --env")
	e2eCmd.Flags().StringVar(&filter, "filter", "", "Narrow the suite (--grep expression)")
	e2eCmd.Flags().BoolVar(&local, "local", false, "Target a locally running application")
	e2eCmd.Flags().BoolVar(&startApp, "start-app", false, "Start a local application instance first")
	e2eCmd.Flags().BoolVar(&deployed, "deployed", false, "Target the deployed environment (default)")
	return e2eCmd
}

func resolveEnv(name string, cfg *config.Config) (envs.Environment, error) {
	switch {
	case name == "dev":
		return envs.Dev(cfg.DevBranch), nil
	case name == "prod":
		return envs.Prod(cfg.ProdBranch), nil
	case strings.HasPrefix(name, "pr-"):
		n, err := strconv.Atoi(strings.TrimPrefix(name, "pr-"))
		if err != nil {
			return envs.Environment{}, fmt.Errorf("invalid PR environment %q", name)
		}
		return envs.Preview(n), nil
	default:
		return envs.Environment{}, fmt.Errorf("unknown environment %q (want dev, prod, or pr-N)", name)
	}
}

func init() {
	rootCmd.AddCommand(newPipelineCmd())
	rootCmd.AddCommand(newSeedCmd())
	rootCmd.AddCommand(newE2ECmd())

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			printBanner()
			fmt.Printf("%s %s\n", titleStyle.Render("pipectl"), "v"+version)
		},
	}
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
