// Package config assembles the pipeline's configuration from the environment
// once at startup. Clients and updaters receive the values at construction
// time; nothing reads ambient environment mid-run.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config carries every externally supplied setting for a pipeline run.
type Config struct {
	// GitHubToken authenticates PR creation, labeling and merging, and the
	// in-cluster token secret. Only the PR-preview phase requires it.
	GitHubToken string `envconfig:"GITHUB_TOKEN"`
	GitHubOwner string `envconfig:"GITHUB_OWNER" default:"a2z-ice" validate:"required"`
	GitHubRepo  string `envconfig:"GITHUB_REPO" default:"student-mgmt" validate:"required"`

	// Bootstrap admin credentials for the Keycloak master realm.
	KeycloakAdmin         string `envconfig:"KEYCLOAK_ADMIN" default:"admin" validate:"required"`
	KeycloakAdminPassword string `envconfig:"KEYCLOAK_ADMIN_PASSWORD" default:"admin" validate:"required"`
	KeycloakURL           string `envconfig:"KEYCLOAK_URL" default:"https://idp.keycloak.com:31111" validate:"required,url"`
	KeycloakRealm         string `envconfig:"KEYCLOAK_REALM" default:"student-mgmt" validate:"required"`
	// The local Keycloak serves a self-signed certificate.
	KeycloakInsecureTLS bool `envconfig:"KEYCLOAK_INSECURE_TLS" default:"true"`

	// AppURL overrides the target base URL handed to the E2E runner.
	AppURL string `envconfig:"APP_URL" validate:"omitempty,url"`

	// RepoRoot is the checkout holding the Kustomize overlays ArgoCD watches.
	RepoRoot   string `envconfig:"REPO_ROOT" default:"." validate:"required"`
	GitRemote  string `envconfig:"GIT_REMOTE" default:"origin" validate:"required"`
	DevBranch  string `envconfig:"DEV_BRANCH" default:"dev" validate:"required"`
	ProdBranch string `envconfig:"PROD_BRANCH" default:"main" validate:"required"`

	// HostsFile receives temporary entries so per-PR hostnames resolve
	// locally; IngressIP is where they point.
	HostsFile string `envconfig:"HOSTS_FILE" default:"/etc/hosts" validate:"required"`
	IngressIP string `envconfig:"INGRESS_IP" default:"127.0.0.1" validate:"required,ip"`

	RegistryHost    string `envconfig:"REGISTRY_HOST" default:"localhost:5001" validate:"required"`
	ArgoCDNamespace string `envconfig:"ARGOCD_NAMESPACE" default:"argocd" validate:"required"`
	KubeContext     string `envconfig:"KUBE_CONTEXT" default:"kind-student-mgmt"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration from environment: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
