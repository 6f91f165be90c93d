// Package gitops owns the git side of promotion: rewriting the image tag in a
// Kustomize overlay and pushing it to the branch ArgoCD watches, plus
// observing ArgoCD application health through its CLI.
package gitops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"sigs.k8s.io/yaml"

	"github.com/a2z-ice/student-mgmt-pipeline/internal/envs"
)

// kustomization models only the fields the updater reads. Writes are textual
// so the file's layout and comments survive round trips.
type kustomization struct {
	Images []struct {
		Name   string `json:"name"`
		NewTag string `json:"newTag"`
	} `json:"images"`
}

var newTagLine = regexp.MustCompile(`(?m)^(\s*newTag:\s*).*$`)

// OverlayUpdater mutates overlay image tags and commits/pushes the result.
// The watched branches are a single-writer resource for the duration of a run;
// a rejected push from a concurrent writer surfaces as a fatal error.
type OverlayUpdater struct {
	repoRoot string
	remote   string
	token    string
}

// NewOverlayUpdater returns an updater rooted at the overlay repo checkout.
// An empty remote disables pushing, for repos with no upstream.
func NewOverlayUpdater(repoRoot, remote, token string) *OverlayUpdater {
	return &OverlayUpdater{repoRoot: repoRoot, remote: remote, token: token}
}

// CurrentTag reads the tag currently recorded in the overlay. Promotion copies
// this value into the prod overlay instead of rebuilding.
func (u *OverlayUpdater) CurrentTag(overlayPath string) (envs.ImageTag, error) {
	path := filepath.Join(u.repoRoot, overlayPath, "kustomization.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read overlay %s: %w", path, err)
	}
	var k kustomization
	if err := yaml.Unmarshal(data, &k); err != nil {
		return "", fmt.Errorf("failed to parse overlay %s: %w", path, err)
	}
	if len(k.Images) == 0 || k.Images[0].NewTag == "" {
		return "", fmt.Errorf("overlay %s declares no image tag", path)
	}
	return envs.ImageTag(k.Images[0].NewTag), nil
}

// SetImageTag rewrites every newTag field in the overlay's kustomization.yaml,
// commits the change and pushes it to branch. Returns false when the tag
// already matches: no commit is created, so ArgoCD sees no spurious sync.
func (u *OverlayUpdater) SetImageTag(ctx context.Context, overlayPath string, tag envs.ImageTag, branch, message string) (bool, error) {
	repo, err := git.PlainOpen(u.repoRoot)
	if err != nil {
		return false, fmt.Errorf("failed to open overlay repo at %s: %w", u.repoRoot, err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
	}); err != nil {
		return false, fmt.Errorf("failed to checkout branch %s: %w", branch, err)
	}

	relPath := filepath.Join(overlayPath, "kustomization.yaml")
	absPath := filepath.Join(u.repoRoot, relPath)
	data, err := os.ReadFile(absPath)
	if err != nil {
		return false, fmt.Errorf("failed to read overlay %s: %w", absPath, err)
	}
	updated := newTagLine.ReplaceAll(data, []byte("${1}"+tag.String()))
	if err := os.WriteFile(absPath, updated, 0o644); err != nil {
		return false, fmt.Errorf("failed to write overlay %s: %w", absPath, err)
	}

	status, err := worktree.Status()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree status: %w", err)
	}
	if status.IsClean() {
		return false, nil
	}

	if _, err := worktree.Add(relPath); err != nil {
		return false, fmt.Errorf("failed to stage %s: %w", relPath, err)
	}
	if _, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "student-mgmt-pipeline",
			Email: "pipeline@student-mgmt.local",
			When:  time.Now(),
		},
	}); err != nil {
		return false, fmt.Errorf("failed to commit overlay update: %w", err)
	}

	if err := u.push(ctx, repo, branch); err != nil {
		return false, err
	}
	return true, nil
}

// PushBranch creates branch at the current HEAD and pushes it. The PR-preview
// phase uses it to give each pull request a disposable head branch.
func (u *OverlayUpdater) PushBranch(ctx context.Context, branch string) error {
	repo, err := git.PlainOpen(u.repoRoot)
	if err != nil {
		return fmt.Errorf("failed to open overlay repo at %s: %w", u.repoRoot, err)
	}
	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(branch), head.Hash())
	if err := repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("failed to create branch %s: %w", branch, err)
	}
	return u.push(ctx, repo, branch)
}

// HeadShortSHA returns the 8-character short hash of HEAD, the suffix of every
// image tag this pipeline produces.
func (u *OverlayUpdater) HeadShortSHA() (string, error) {
	repo, err := git.PlainOpen(u.repoRoot)
	if err != nil {
		return "", fmt.Errorf("failed to open overlay repo at %s: %w", u.repoRoot, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return head.Hash().String()[:8], nil
}

func (u *OverlayUpdater) push(ctx context.Context, repo *git.Repository, branch string) error {
	if u.remote == "" {
		return nil
	}
	opts := &git.PushOptions{
		RemoteName: u.remote,
		RefSpecs: []gitconfig.RefSpec{
			gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch)),
		},
	}
	if u.token != "" {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: u.token}
	}
	if err := repo.PushContext(ctx, opts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to push branch %s: %w", branch, err)
	}
	return nil
}
