// Package keycloak wraps the Keycloak Admin REST API operations the pipeline
// needs: bootstrap admin token, user lookup for seeding, and the lifecycle of
// per-environment OIDC client registrations.
package keycloak

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/Nerzal/gocloak/v13"
)

// Config holds the connection settings for the admin client. Credentials are
// passed in explicitly so per-environment secrets can be substituted without
// code changes.
type Config struct {
	BaseURL       string
	Realm         string
	AdminUser     string
	AdminPassword string
	// InsecureTLS skips certificate verification; the local Keycloak serves a
	// self-signed certificate.
	InsecureTLS bool
}

// Client is a thin admin-API wrapper. All state lives on the Keycloak server.
type Client struct {
	gc  *gocloak.GoCloak
	cfg Config
}

// New builds a Client for the given server.
func New(cfg Config) *Client {
	gc := gocloak.NewClient(cfg.BaseURL)
	if cfg.InsecureTLS {
		gc.RestyClient().SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) // nolint: gosec
	}
	return &Client{gc: gc, cfg: cfg}
}

// AdminToken acquires an access token via the resource-owner password grant
// against the master realm. Unreachable server or a malformed token response
// propagate as errors; there is no retry here.
func (c *Client) AdminToken(ctx context.Context) (string, error) {
	token, err := c.gc.LoginAdmin(ctx, c.cfg.AdminUser, c.cfg.AdminPassword, "master")
	if err != nil {
		return "", fmt.Errorf("failed to login to Keycloak at %s: %w", c.cfg.BaseURL, err)
	}
	return token.AccessToken, nil
}

// UserID looks up a user by exact username and returns its id. Zero matches is
// an error. Keycloak enforces username uniqueness per realm, so the lookup
// takes the first result; the admin API technically allows loose queries, so
// ambiguity would go unnoticed here.
func (c *Client) UserID(ctx context.Context, token, username string) (string, error) {
	users, err := c.gc.GetUsers(ctx, token, c.cfg.Realm, gocloak.GetUsersParams{
		Username: gocloak.StringP(username),
		Exact:    gocloak.BoolP(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to look up user %q: %w", username, err)
	}
	if len(users) == 0 || users[0].ID == nil {
		return "", fmt.Errorf("user %q not found in realm %s", username, c.cfg.Realm)
	}
	return *users[0].ID, nil
}

// ClientSpec describes the OIDC client registration for one environment. The
// redirect URIs and web origins must match the environment's externally
// reachable base URL exactly or the OAuth flow fails at the identity provider.
type ClientSpec struct {
	ClientID     string
	RedirectURIs []string
	WebOrigins   []string
	Description  string
}

// UpsertClient creates the client registration or updates an existing one.
// Safe to call repeatedly.
func (c *Client) UpsertClient(ctx context.Context, token string, spec ClientSpec) error {
	existing, err := c.gc.GetClients(ctx, token, c.cfg.Realm, gocloak.GetClientsParams{
		ClientID: gocloak.StringP(spec.ClientID),
	})
	if err != nil {
		return fmt.Errorf("failed to list clients: %w", err)
	}

	if len(existing) > 0 {
		kc := existing[0]
		kc.RedirectURIs = &spec.RedirectURIs
		kc.WebOrigins = &spec.WebOrigins
		kc.PublicClient = gocloak.BoolP(true)
		kc.StandardFlowEnabled = gocloak.BoolP(true)
		kc.Enabled = gocloak.BoolP(true)
		if err := c.gc.UpdateClient(ctx, token, c.cfg.Realm, *kc); err != nil {
			return fmt.Errorf("failed to update client %q: %w", spec.ClientID, err)
		}
		return nil
	}

	newClient := gocloak.Client{
		ClientID:                  gocloak.StringP(spec.ClientID),
		Description:               gocloak.StringP(spec.Description),
		RedirectURIs:              &spec.RedirectURIs,
		WebOrigins:                &spec.WebOrigins,
		PublicClient:              gocloak.BoolP(true),
		StandardFlowEnabled:       gocloak.BoolP(true),
		DirectAccessGrantsEnabled: gocloak.BoolP(true),
		Protocol:                  gocloak.StringP("openid-connect"),
		Enabled:                   gocloak.BoolP(true),
	}
	if _, err := c.gc.CreateClient(ctx, token, c.cfg.Realm, newClient); err != nil {
		return fmt.Errorf("failed to create client %q: %w", spec.ClientID, err)
	}
	return nil
}

// DeleteClient removes a client registration. A registration that is already
// absent is not an error; teardown must be idempotent.
func (c *Client) DeleteClient(ctx context.Context, token, clientID string) error {
	existing, err := c.gc.GetClients(ctx, token, c.cfg.Realm, gocloak.GetClientsParams{
		ClientID: gocloak.StringP(clientID),
	})
	if err != nil {
		return fmt.Errorf("failed to list clients: %w", err)
	}
	if len(existing) == 0 || existing[0].ID == nil {
		return nil
	}
	if err := c.gc.DeleteClient(ctx, token, c.cfg.Realm, *existing[0].ID); err != nil {
		return fmt.Errorf("failed to delete client %q: %w", clientID, err)
	}
	return nil
}

// ClientExists reports whether a client registration is present. Used by the
// PR-preview teardown verification.
func (c *Client) ClientExists(ctx context.Context, token, clientID string) (bool, error) {
	existing, err := c.gc.GetClients(ctx, token, c.cfg.Realm, gocloak.GetClientsParams{
		ClientID: gocloak.StringP(clientID),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list clients: %w", err)
	}
	return len(existing) > 0, nil
}
