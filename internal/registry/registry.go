// Package registry builds and pushes the application images to the local
// registry the Kind cluster pulls from.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/a2z-ice/student-mgmt-pipeline/internal/envs"
	"github.com/a2z-ice/student-mgmt-pipeline/internal/execx"
)

// Image names are fixed: the overlays reference exactly this pair.
const (
	BackendImage  = "student-mgmt-backend"
	FrontendImage = "student-mgmt-frontend"
)

// Client drives docker for builds/pushes and the registry HTTP API for
// catalog listing.
type Client struct {
	host string
	http *retryablehttp.Client
}

// New returns a Client for the registry at host (e.g. localhost:5001).
func New(host string) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 3
	httpClient.Logger = nil
	return &Client{host: host, http: httpClient}
}

// ContainerRunning reports whether the local registry container is up. Setup
// checks before creating anything.
func (c *Client) ContainerRunning(ctx context.Context, containerName string) (bool, error) {
	output, err := execx.Run(ctx, "docker", "inspect", "-f", "{{.State.Running}}", containerName)
	if err != nil {
		// docker inspect fails when the container does not exist.
		return false, nil
	}
	return strings.TrimSpace(string(output)) == "true", nil
}

// BuildAndPush builds both application images from their build contexts and
// pushes them tagged with the given tag. Build output is streamed so long
// builds stay observable.
func (c *Client) BuildAndPush(ctx context.Context, repoRoot string, tag envs.ImageTag) error {
	images := []struct {
		name    string
		context string
	}{
		{BackendImage, repoRoot + "/backend"},
		{FrontendImage, repoRoot + "/frontend"},
	}
	for _, img := range images {
		ref := c.Ref(img.name, tag)
		if err := execx.RunStreaming(ctx, "docker", "build", "-t", ref, img.context); err != nil {
			return fmt.Errorf("failed to build %s: %w", ref, err)
		}
		if err := execx.RunStreaming(ctx, "docker", "push", ref); err != nil {
			return fmt.Errorf("failed to push %s: %w", ref, err)
		}
	}
	return nil
}

// Ref returns the fully qualified image reference for a name and tag.
func (c *Client) Ref(name string, tag envs.ImageTag) string {
	return fmt.Sprintf("%s/%s:%s", c.host, name, tag)
}

// Catalog lists the repositories the registry currently holds.
func (c *Client) Catalog(ctx context.Context) ([]string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", fmt.Sprintf("http://%s/v2/_catalog", c.host), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query registry catalog: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("registry catalog returned status %d", resp.StatusCode)
	}
	var catalog struct {
		Repositories []string `json:"repositories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return nil, fmt.Errorf("failed to decode registry catalog: %w", err)
	}
	return catalog.Repositories, nil
}
