package main

import (
	"log/slog"
	"strings"
	"sync"

	"newsdesk/internal/api"
	"newsdesk/internal/config"
	"newsdesk/internal/ingest"
	"newsdesk/internal/llm"
	"newsdesk/internal/logging"
	"newsdesk/internal/pipeline"
	"newsdesk/internal/publish"
	"newsdesk/internal/store"
	"newsdesk/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolvedPath, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolvedPath
	})
	return c.config, c.configErr
}

func (c *commandContext) newLogger(cfg *config.Config) *slog.Logger {
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

// services bundles everything a command needs against one open store.
type services struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *store.Store
	orchestrator *pipeline.Orchestrator
	poller       *ingest.Poller
	manager      *workflow.Manager
	api          *api.Service
}

// withServices opens the store, wires the service graph, runs fn, and closes
// the store afterwards.
func (c *commandContext) withServices(fn func(*services) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger := c.newLogger(cfg)

	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	executor := llm.NewExecutor(cfg, logger)
	orchestrator := pipeline.New(st, executor, logger)
	poller := ingest.NewPoller(cfg, st, orchestrator, logger)
	publisher := publish.NewHTTPPublisher(cfg)
	manager := workflow.NewManager(cfg, st, orchestrator, poller, logger)

	return fn(&services{
		cfg:          cfg,
		logger:       logger,
		store:        st,
		orchestrator: orchestrator,
		poller:       poller,
		manager:      manager,
		api:          api.New(st, poller, orchestrator, publisher, logger),
	})
}
