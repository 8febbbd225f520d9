package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joeblack2k/openclaw-studio-sub002/internal/core"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// RetentionConfig holds the audit retention job settings.
type RetentionConfig struct {
	Enabled  *bool  `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
	MaxAge   string `yaml:"max_age"`
}

// ModuleConfig holds YAML configuration for the scheduler module.
type ModuleConfig struct {
	Retention RetentionConfig `yaml:"retention"`
}

// defaults fills zero values with sensible defaults.
func (c *ModuleConfig) defaults() {
	if c.Retention.Enabled == nil {
		t := true
		c.Retention.Enabled = &t
	}
	if c.Retention.MaxAge == "" {
		c.Retention.MaxAge = "720h" // 30 days
	}
}

// Module runs the scheduler and registers the built-in jobs.
type Module struct {
	config    ModuleConfig
	appCtx    *core.AppContext
	logger    *slog.Logger
	scheduler *Scheduler
	maxAge    time.Duration
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "cron.scheduler",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return err
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.appCtx = ctx
	m.logger = ctx.Logger
	m.config.defaults()

	var err error
	m.maxAge, err = time.ParseDuration(m.config.Retention.MaxAge)
	if err != nil {
		return fmt.Errorf("cron: invalid retention max_age %q: %w", m.config.Retention.MaxAge, err)
	}

	m.scheduler = NewScheduler(ctx.Logger)
	return nil
}

// Start implements core.Starter. The retention job is registered only when
// enabled and an audit store is present.
func (m *Module) Start() error {
	if *m.config.Retention.Enabled {
		if svc, ok := m.appCtx.Service("audit.recorder"); ok {
			if store, ok := svc.(RetentionStore); ok {
				job := &RetentionJob{
					Store:        store,
					MaxAge:       m.maxAge,
					Logger:       m.logger,
					ScheduleExpr: m.config.Retention.Schedule,
				}
				if err := m.scheduler.RegisterJob(job); err != nil {
					return err
				}
			}
		} else {
			m.logger.Debug("cron: audit store absent, retention job skipped")
		}
	}

	return m.scheduler.Start()
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.scheduler != nil {
		return m.scheduler.Stop(ctx)
	}
	return nil
}
