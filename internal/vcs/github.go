// Package vcs drives the GitHub pull-request lifecycle for the PR-preview
// phase: create or reuse the PR, apply the label the ArgoCD pull-request
// generator watches, and merge or close it when the preview is done.
package vcs

import (
	"context"
	"fmt"

	"github.com/google/go-github/v56/github"
)

// Client wraps the GitHub REST API for one repository.
type Client struct {
	gh    *github.Client
	owner string
	repo  string
}

// New returns a Client authenticated with the given token.
func New(token, owner, repo string) *Client {
	gh := github.NewClient(nil)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	return &Client{gh: gh, owner: owner, repo: repo}
}

// EnsurePullRequest returns the number of an open PR from head into base,
// creating one if none exists.
func (c *Client) EnsurePullRequest(ctx context.Context, head, base, title, body string) (int, error) {
	existing, _, err := c.gh.PullRequests.List(ctx, c.owner, c.repo, &github.PullRequestListOptions{
		State: "open",
		Head:  fmt.Sprintf("%s:%s", c.owner, head),
		Base:  base,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list pull requests: %w", err)
	}
	if len(existing) > 0 {
		return existing[0].GetNumber(), nil
	}

	pr, _, err := c.gh.PullRequests.Create(ctx, c.owner, c.repo, &github.NewPullRequest{
		Title:               github.String(title),
		Head:                github.String(head),
		Base:                github.String(base),
		Body:                github.String(body),
		MaintainerCanModify: github.Bool(false),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create pull request %s -> %s: %w", head, base, err)
	}
	return pr.GetNumber(), nil
}

// AddLabel attaches a label to the pull request. The preview label is what
// triggers the ArgoCD pull-request generator to materialize the environment.
func (c *Client) AddLabel(ctx context.Context, number int, label string) error {
	_, _, err := c.gh.Issues.AddLabelsToIssue(ctx, c.owner, c.repo, number, []string{label})
	if err != nil {
		return fmt.Errorf("failed to label PR #%d with %q: %w", number, label, err)
	}
	return nil
}

// MergePullRequest merges the PR, which makes the pull-request generator prune
// the preview environment.
func (c *Client) MergePullRequest(ctx context.Context, number int) error {
	_, _, err := c.gh.PullRequests.Merge(ctx, c.owner, c.repo, number, "", &github.PullRequestOptions{})
	if err != nil {
		return fmt.Errorf("failed to merge PR #%d: %w", number, err)
	}
	return nil
}

// ClosePullRequest closes the PR without merging. Used on the failure path so
// a broken preview does not linger.
func (c *Client) ClosePullRequest(ctx context.Context, number int) error {
	_, _, err := c.gh.PullRequests.Edit(ctx, c.owner, c.repo, number, &github.PullRequest{
		State: github.String("closed"),
	})
	if err != nil {
		return fmt.Errorf("failed to close PR #%d: %w", number, err)
	}
	return nil
}
