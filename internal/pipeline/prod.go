package pipeline

import (
	"context"
	"fmt"

	"github.com/a2z-ice/student-mgmt-pipeline/internal/envs"
)

// runProdPromotion copies the tag validated in dev into the prod overlay.
// Promotion never rebuilds: the artifact that passed the dev suite is exactly
// what reaches production.
func (p *Pipeline) runProdPromotion(ctx context.Context) error {
	devEnv := envs.Dev(p.cfg.DevBranch)
	prodEnv := envs.Prod(p.cfg.ProdBranch)

	p.ui.Step(1, "Reading tag from dev overlay...")
	tag, err := p.deps.Overlays.CurrentTag(devEnv.OverlayPath)
	if err != nil {
		return err
	}
	if !tag.Valid() {
		return fmt.Errorf("dev overlay holds malformed tag %q", tag)
	}
	p.ui.Info(fmt.Sprintf("Promoting tag: %s", tag))

	if !p.opts.AutoApprove {
		ok, err := p.deps.Confirm(fmt.Sprintf("Promote %s to production?", tag))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("prod promotion declined")
		}
	}

	p.ui.Step(2, fmt.Sprintf("Updating prod overlay to %s...", tag))
	committed, err := p.deps.Overlays.SetImageTag(ctx, prodEnv.OverlayPath, tag, prodEnv.WatchedBranch,
		fmt.Sprintf("promote(prod): image tag %s", tag))
	if err != nil {
		return err
	}
	if committed {
		p.ui.Success(fmt.Sprintf("Prod overlay updated on branch %s", prodEnv.WatchedBranch))
	} else {
		p.ui.Info("Prod overlay already at this tag, no commit created")
	}

	return p.deployAndTest(ctx, prodEnv)
}
