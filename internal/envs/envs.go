// Package envs names the deployment environments the pipeline promotes
// through. All durable state lives in git, the cluster, the registry and
// Keycloak; an Environment is just the coordinates for reaching it.
package envs

import (
	"fmt"
	"path/filepath"
	"regexp"
)

// Kind distinguishes the three environment classes.
type Kind string

const (
	KindDev     Kind = "dev"
	KindPreview Kind = "pr-preview"
	KindProd    Kind = "prod"
)

// PreviewNamespacePrefix is shared with the ArgoCD pull-request generator;
// the Verify phase uses it to detect leftover preview namespaces.
const PreviewNamespacePrefix = "student-mgmt-pr-"

// Environment holds the coordinates of one deployment target.
type Environment struct {
	Kind      Kind
	Namespace string
	// Host is the ingress hostname; BaseURL is the same host with scheme and
	// port attached.
	Host        string
	BaseURL     string
	ArgoCDApp   string
	OverlayPath string
	// WatchedBranch is the git branch ArgoCD reconciles this environment from.
	// Empty for previews, which are materialized from the PR head by the
	// pull-request generator.
	WatchedBranch string
	// PRNumber is set for preview environments only.
	PRNumber int
}

// Dev returns the static development environment.
func Dev(devBranch string) Environment {
	return Environment{
		Kind:          KindDev,
		Namespace:     "student-mgmt-dev",
		Host:          "dev.student-mgmt.local",
		BaseURL:       "https://dev.student-mgmt.local:8443",
		ArgoCDApp:     "student-mgmt-dev",
		OverlayPath:   filepath.Join("gitops", "environments", "overlays", "dev"),
		WatchedBranch: devBranch,
	}
}

// Prod returns the static production environment.
func Prod(prodBranch string) Environment {
	return Environment{
		Kind:          KindProd,
		Namespace:     "student-mgmt-prod",
		Host:          "student-mgmt.local",
		BaseURL:       "https://student-mgmt.local:8443",
		ArgoCDApp:     "student-mgmt-prod",
		OverlayPath:   filepath.Join("gitops", "environments", "overlays", "prod"),
		WatchedBranch: prodBranch,
	}
}

// Preview returns the ephemeral environment ArgoCD materializes for a pull
// request. It has no overlay: image tags travel in the PR head itself.
func Preview(prNumber int) Environment {
	ns := fmt.Sprintf("%s%d", PreviewNamespacePrefix, prNumber)
	host := fmt.Sprintf("pr-%d.student-mgmt.local", prNumber)
	return Environment{
		Kind:      KindPreview,
		Namespace: ns,
		Host:      host,
		BaseURL:   fmt.Sprintf("https://%s:8443", host),
		ArgoCDApp: ns,
		PRNumber:  prNumber,
	}
}

// KeycloakClientID returns the OIDC client registration name for the
// environment. Dev and prod registrations are static; previews get a
// throwaway registration scoped to the PR.
func (e Environment) KeycloakClientID() string {
	switch e.Kind {
	case KindPreview:
		return fmt.Sprintf("student-mgmt-pr-%d", e.PRNumber)
	case KindProd:
		return "student-mgmt-prod"
	default:
		return "student-mgmt-dev"
	}
}

var tagPattern = regexp.MustCompile(`^[a-z0-9-]+-[0-9a-f]{8}$`)

// ImageTag identifies one built pair of backend/frontend images. Promotion
// copies a tag between overlays; it never rebuilds.
type ImageTag string

// NewImageTag builds a tag of the form <prefix>-<sha8>.
func NewImageTag(prefix, shortSHA string) ImageTag {
	return ImageTag(fmt.Sprintf("%s-%s", prefix, shortSHA))
}

// PreviewImageTag builds a tag of the form pr-<N>-<sha8>.
func PreviewImageTag(prNumber int, shortSHA string) ImageTag {
	return ImageTag(fmt.Sprintf("pr-%d-%s", prNumber, shortSHA))
}

// Valid reports whether the tag matches the <env-prefix>-<sha8> shape.
func (t ImageTag) Valid() bool {
	return tagPattern.MatchString(string(t))
}

func (t ImageTag) String() string {
	return string(t)
}
