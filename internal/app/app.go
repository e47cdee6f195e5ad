package app

import (
	"context"
	"fmt"

	"github.com/ccastromar/sourcemap-uploader/internal/batch"
	"github.com/ccastromar/sourcemap-uploader/internal/config"
	"github.com/ccastromar/sourcemap-uploader/internal/logx"
)

type App struct {
	env      *config.EnvVars
	manifest *config.Manifest
	runner   *batch.Runner
}

// New loads the manifest, merges it with env and checks it is uploadable.
func New(env *config.EnvVars, manifestPath string) (*App, error) {
	logx.SetLevel(env.LogLevel)

	m, err := config.LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	m.ApplyEnv(env)
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", manifestPath, err)
	}
	logx.Info("Config", "%d source maps to upload to %s", len(m.Uploads), m.Endpoint)

	return &App{
		env:      env,
		manifest: m,
		runner:   batch.NewRunner(),
	}, nil
}

// Run uploads the whole manifest and returns the joined upload failures.
func (a *App) Run(ctx context.Context) error {
	logx.Info("App", "sourcemap-uploader v0.1.0 started")

	report, err := a.runner.Run(ctx, batch.JobFromManifest(a.manifest, a.env))
	for _, res := range report.Results {
		if res.Err == nil {
			logx.Info("App", "ok     %s (%d attempts)", res.SourceMap, res.Attempts)
		} else {
			logx.Error("App", "failed %s (%d attempts): %v", res.SourceMap, res.Attempts, res.Err)
		}
	}
	return err
}
