package approval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joeblack2k/openclaw-studio-sub002/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// ModuleConfig holds YAML configuration for the coordinator module.
type ModuleConfig struct {
	WaitTimeout  string `yaml:"wait_timeout"`
	GracePeriod  string `yaml:"grace_period"`
	Continuation string `yaml:"continuation"`
}

// defaults fills zero values with sensible defaults.
func (c *ModuleConfig) defaults() {
	if c.WaitTimeout == "" {
		c.WaitTimeout = "60s"
	}
	if c.GracePeriod == "" {
		c.GracePeriod = "60s"
	}
}

// Module wires the Coordinator into the module system. Collaborators are
// resolved lazily at Start() from the service registry: the runtime client
// and resolver, the agent store, and (optionally) the decision recorder.
type Module struct {
	config      ModuleConfig
	appCtx      *core.AppContext
	logger      *slog.Logger
	waitTimeout time.Duration
	gracePeriod time.Duration

	coordinator *Coordinator
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "approval.coordinator",
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
	m.waitTimeout, err = time.ParseDuration(m.config.WaitTimeout)
	if err != nil {
		return fmt.Errorf("approval: invalid wait_timeout %q: %w", m.config.WaitTimeout, err)
	}
	m.gracePeriod, err = time.ParseDuration(m.config.GracePeriod)
	if err != nil {
		return fmt.Errorf("approval: invalid grace_period %q: %w", m.config.GracePeriod, err)
	}

	return nil
}

// Start implements core.Starter. It binds the coordinator to its
// collaborators and publishes it for the HTTP and MCP surfaces.
func (m *Module) Start() error {
	runtime, err := resolveService[RuntimeClient](m.appCtx, "runtime.client")
	if err != nil {
		return err
	}
	resolver, err := resolveService[Resolver](m.appCtx, "runtime.resolver")
	if err != nil {
		return err
	}
	agents, err := resolveService[AgentSource](m.appCtx, "state.store")
	if err != nil {
		return err
	}
	status, err := resolveService[StatusSink](m.appCtx, "state.store")
	if err != nil {
		return err
	}

	// Audit is optional: the coordinator runs without a recorder.
	var recorder DecisionRecorder
	if svc, ok := m.appCtx.Service("audit.recorder"); ok {
		if r, ok := svc.(DecisionRecorder); ok {
			recorder = r
		}
	}

	var isDisconnect func(error) bool
	if svc, ok := m.appCtx.Service("runtime.disconnect_classifier"); ok {
		if fn, ok := svc.(func(error) bool); ok {
			isDisconnect = fn
		}
	}

	m.coordinator, err = New(Config{
		WaitTimeout:  m.waitTimeout,
		GracePeriod:  m.gracePeriod,
		Continuation: m.config.Continuation,
		Logger:       m.logger,
		Metrics:      NewMetrics(prometheus.DefaultRegisterer),
		IsDisconnect: isDisconnect,
	}, runtime, resolver, agents, status, recorder)
	if err != nil {
		return err
	}

	m.appCtx.RegisterService("approval.coordinator", m.coordinator)

	m.logger.Info("approval coordinator started",
		"wait_timeout", m.waitTimeout,
		"grace_period", m.gracePeriod,
	)
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.coordinator != nil {
		m.coordinator.Close()
	}
	return nil
}

// resolveService fetches a required service and asserts its type.
func resolveService[T any](ctx *core.AppContext, name string) (T, error) {
	var zero T
	svc, ok := ctx.Service(name)
	if !ok {
		return zero, fmt.Errorf("approval: required service %q not registered", name)
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, fmt.Errorf("approval: service %q has unexpected type %T", name, svc)
	}
	return typed, nil
}
