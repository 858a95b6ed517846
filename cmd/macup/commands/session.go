package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/macup/macup/pkg/backends"
	"github.com/macup/macup/pkg/config"
	"github.com/macup/macup/pkg/engine"
	"github.com/macup/macup/pkg/telemetry"
)

// overrides are command-line settings applied on top of the config file.
type overrides struct {
	failFast    bool
	maxParallel int
}

func (o overrides) apply(s engine.Settings) engine.Settings {
	if o.failFast {
		s.FailFast = true
	}
	if o.maxParallel > 0 {
		s.MaxParallel = o.maxParallel
	}
	return s
}

// session holds the telemetry of one command invocation.
type session struct {
	tel    *telemetry.Telemetry
	logger *telemetry.Logger
}

func newSession() (*session, error) {
	cfg, err := telemetry.LoadConfig()
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if jsonOutput && cfg.Logging.Output == "stdout" {
		// keep stdout parseable
		cfg.Logging.Output = "stderr"
	}

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	return &session{tel: tel, logger: tel.Logger.NewComponentLogger("cli")}, nil
}

func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.tel.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Warn("Telemetry shutdown failed")
	}
}

// workspace is a loaded configuration bound to its backends and engine.
type workspace struct {
	cfg      *config.Config
	registry *engine.Registry
	engine   *engine.Engine
	runner   backends.Runner
}

func (s *session) loadWorkspace(path string, o overrides) (*workspace, error) {
	cfg, err := config.LoadAuto(path)
	if err != nil {
		return nil, err
	}
	s.logger.Debugf("Loaded config from %s", cfg.Path)
	return s.workspaceFor(cfg, o)
}

func (s *session) workspaceFor(cfg *config.Config, o overrides) (*workspace, error) {
	env, err := cfg.ScriptEnv()
	if err != nil {
		return nil, err
	}

	runner := backends.NewExecRunner(s.tel.Logger)
	opts := cfg.BackendOptions(env)
	opts.Runner = runner
	registry := backends.NewDefaultRegistry(opts)

	return &workspace{
		cfg:      cfg,
		registry: registry,
		engine:   engine.NewEngine(registry, o.apply(cfg.EngineSettings()), engine.WithTelemetry(s.tel)),
		runner:   runner,
	}, nil
}

func (w *workspace) plan(only []string) (*engine.Plan, error) {
	return w.engine.Plan(w.cfg.Sections(), engine.RunOptions{Only: only})
}
