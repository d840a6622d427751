package cmd

import (
	"context"
	"path/filepath"

	"github.com/conneroisu/extplan/internal/config"
	"github.com/conneroisu/extplan/internal/env"
	"github.com/conneroisu/extplan/internal/logging"
	"github.com/conneroisu/extplan/internal/manifest"
	"github.com/conneroisu/extplan/internal/paths"
	"github.com/conneroisu/extplan/internal/plan"
)

// project is a loaded extension app: its configuration, resolved paths and
// bundle manifest.
type project struct {
	cfg          *config.Config
	paths        paths.Paths
	manifestPath string
	manifest     *manifest.Manifest
	synth        *plan.Synthesizer
}

func loadProject(ctx context.Context) (*project, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Debug(ctx, "configuration loaded", "config", cfg.String())

	p, err := paths.Resolve(cfg.App.Dir, cfg.PathOptions()...)
	if err != nil {
		return nil, err
	}

	provider, err := env.NewProvider(p.AppDir, cfg.EnvOptions()...)
	if err != nil {
		return nil, err
	}

	manifestPath := cfg.App.Manifest
	if !filepath.IsAbs(manifestPath) {
		manifestPath = filepath.Join(p.AppDir, manifestPath)
	}
	m, err := manifest.ParseFile(manifestPath)
	if err != nil {
		return nil, err
	}

	return &project{
		cfg:          cfg,
		paths:        p,
		manifestPath: manifestPath,
		manifest:     m,
		synth:        plan.NewSynthesizer(p, provider, cfg.SynthesizerOptions()...),
	}, nil
}

func (pr *project) bundles() []plan.Bundle {
	return pr.manifest.PlanBundles(pr.paths.SourceRoot)
}

// synthesize builds the plan and logs its advisories.
func (pr *project) synthesize(ctx context.Context) (*plan.BuildPlan, error) {
	op := logging.StartOperation(logger, "synthesize")
	bp, err := pr.synth.Synthesize(pr.bundles(), pr.cfg.Options())
	if err != nil {
		op.EndWithError(ctx, err)
		return nil, err
	}
	op.End(ctx, "bundles", len(pr.manifest.Bundles), "stages", len(bp.Pipeline()), "hot_update", bp.HotUpdateEnabled())

	for _, a := range bp.Advisories() {
		logger.Debug(ctx, a.Message, "code", a.Code, "subject", a.Subject)
	}
	return bp, nil
}
