package gitops

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2z-ice/student-mgmt-pipeline/internal/envs"
)

const kustomizationTemplate = `apiVersion: kustomize.config.k8s.io/v1beta1
kind: Kustomization

resources:
  - ../../base

images:
  - name: student-mgmt-backend
    newTag: dev-00000000
  - name: student-mgmt-frontend
    newTag: dev-00000000
`

// newOverlayRepo builds a git repo with dev and prod overlays and both watched
// branches pointing at the initial commit. The updater has no remote, so
// pushes are disabled.
func newOverlayRepo(t *testing.T) (string, *OverlayUpdater) {
	t.Helper()
	dir := t.TempDir()

	for _, env := range []string{"dev", "prod"} {
		overlay := filepath.Join(dir, "gitops", "environments", "overlays", env)
		require.NoError(t, os.MkdirAll(overlay, 0o755))
		require.NoError(t, os.WriteFile(
			filepath.Join(overlay, "kustomization.yaml"), []byte(kustomizationTemplate), 0o644))
	}

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	worktree, err := repo.Worktree()
	require.NoError(t, err)
	_, err = worktree.Add(".")
	require.NoError(t, err)
	commit, err := worktree.Commit("initial overlays", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	for _, branch := range []string{"dev", "main"} {
		ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(branch), commit)
		require.NoError(t, repo.Storer.SetReference(ref))
	}

	return dir, NewOverlayUpdater(dir, "", "")
}

func devOverlay() string {
	return filepath.Join("gitops", "environments", "overlays", "dev")
}

func prodOverlay() string {
	return filepath.Join("gitops", "environments", "overlays", "prod")
}

func TestCurrentTagReadsOverlay(t *testing.T) {
	_, u := newOverlayRepo(t)
	tag, err := u.CurrentTag(devOverlay())
	require.NoError(t, err)
	assert.Equal(t, envs.ImageTag("dev-00000000"), tag)
}

func TestCurrentTagMissingOverlay(t *testing.T) {
	_, u := newOverlayRepo(t)
	_, err := u.CurrentTag(filepath.Join("gitops", "nope"))
	require.Error(t, err)
}

func TestSetImageTagCommitsAndRewritesAllImages(t *testing.T) {
	dir, u := newOverlayRepo(t)
	tag := envs.NewImageTag("dev", "1a2b3c4d")

	committed, err := u.SetImageTag(context.Background(), devOverlay(), tag, "dev", "deploy(dev): image tag dev-1a2b3c4d")
	require.NoError(t, err)
	assert.True(t, committed)

	got, err := u.CurrentTag(devOverlay())
	require.NoError(t, err)
	assert.Equal(t, tag, got)

	// Both image entries are rewritten and the surrounding layout survives.
	data, err := os.ReadFile(filepath.Join(dir, devOverlay(), "kustomization.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "newTag: dev-1a2b3c4d"))
	assert.Contains(t, string(data), "resources:\n  - ../../base")

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	ref, err := repo.Reference(plumbing.NewBranchReferenceName("dev"), true)
	require.NoError(t, err)
	commit, err := repo.CommitObject(ref.Hash())
	require.NoError(t, err)
	assert.Equal(t, "deploy(dev): image tag dev-1a2b3c4d", commit.Message)
}

func TestSetImageTagIsNoOpWhenTagAlreadyCurrent(t *testing.T) {
	dir, u := newOverlayRepo(t)
	tag := envs.NewImageTag("dev", "1a2b3c4d")

	committed, err := u.SetImageTag(context.Background(), devOverlay(), tag, "dev", "first")
	require.NoError(t, err)
	require.True(t, committed)

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	before, err := repo.Reference(plumbing.NewBranchReferenceName("dev"), true)
	require.NoError(t, err)

	committed, err = u.SetImageTag(context.Background(), devOverlay(), tag, "dev", "second")
	require.NoError(t, err)
	assert.False(t, committed)

	after, err := repo.Reference(plumbing.NewBranchReferenceName("dev"), true)
	require.NoError(t, err)
	assert.Equal(t, before.Hash(), after.Hash())
}

func TestPromotionCopiesDevTagIntoProd(t *testing.T) {
	_, u := newOverlayRepo(t)
	devTag := envs.NewImageTag("dev", "1a2b3c4d")

	_, err := u.SetImageTag(context.Background(), devOverlay(), devTag, "dev", "deploy(dev)")
	require.NoError(t, err)

	promoted, err := u.CurrentTag(devOverlay())
	require.NoError(t, err)

	committed, err := u.SetImageTag(context.Background(), prodOverlay(), promoted, "main", "promote(prod)")
	require.NoError(t, err)
	assert.True(t, committed)

	got, err := u.CurrentTag(prodOverlay())
	require.NoError(t, err)
	assert.Equal(t, devTag, got)
}

func TestPushBranchCreatesBranchAtHead(t *testing.T) {
	dir, u := newOverlayRepo(t)
	require.NoError(t, u.PushBranch(context.Background(), "preview/abc12345"))

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	ref, err := repo.Reference(plumbing.NewBranchReferenceName("preview/abc12345"), true)
	require.NoError(t, err)
	assert.Equal(t, head.Hash(), ref.Hash())
}

func TestHeadShortSHA(t *testing.T) {
	dir, u := newOverlayRepo(t)
	sha, err := u.HeadShortSHA()
	require.NoError(t, err)
	assert.Len(t, sha, 8)

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, head.Hash().String()[:8], sha)
}
