package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joeblack2k/openclaw-studio-sub002/internal/core"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// ModuleConfig holds YAML configuration for the runtime client module.
type ModuleConfig struct {
	URL            string `yaml:"url"`
	Token          string `yaml:"token"`
	DialTimeout    string `yaml:"dial_timeout"`
	RequestTimeout string `yaml:"request_timeout"`
	ReconnectMin   string `yaml:"reconnect_min"`
	ReconnectMax   string `yaml:"reconnect_max"`
}

// defaults fills zero values with sensible defaults.
func (c *ModuleConfig) defaults() {
	if c.DialTimeout == "" {
		c.DialTimeout = "10s"
	}
	if c.RequestTimeout == "" {
		c.RequestTimeout = "30s"
	}
	if c.ReconnectMin == "" {
		c.ReconnectMin = "1s"
	}
	if c.ReconnectMax == "" {
		c.ReconnectMax = "30s"
	}
}

// Module owns the runtime connection. It publishes the client, the remote
// resolver, and the disconnect classifier as services during Provision, and
// wires the event dispatcher at Start once the coordinator and agent store
// exist.
type Module struct {
	config ModuleConfig
	appCtx *core.AppContext
	logger *slog.Logger
	client *Client
	cancel context.CancelFunc
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "runtime.client",
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

	parse := func(name, value string) (time.Duration, error) {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("runtime: invalid %s %q: %w", name, value, err)
		}
		return d, nil
	}

	dialTimeout, err := parse("dial_timeout", m.config.DialTimeout)
	if err != nil {
		return err
	}
	requestTimeout, err := parse("request_timeout", m.config.RequestTimeout)
	if err != nil {
		return err
	}
	reconnectMin, err := parse("reconnect_min", m.config.ReconnectMin)
	if err != nil {
		return err
	}
	reconnectMax, err := parse("reconnect_max", m.config.ReconnectMax)
	if err != nil {
		return err
	}

	m.client = NewClient(Config{
		URL:            m.config.URL,
		Token:          m.config.Token,
		DialTimeout:    dialTimeout,
		RequestTimeout: requestTimeout,
		ReconnectMin:   reconnectMin,
		ReconnectMax:   reconnectMax,
		Logger:         m.logger,
	})

	ctx.RegisterService("runtime.client", m.client)
	ctx.RegisterService("runtime.resolver", NewRemoteResolver(m.client))
	ctx.RegisterService("runtime.disconnect_classifier", IsDisconnect)

	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.config.URL == "" {
		return errors.New("runtime: url is required")
	}
	return nil
}

// Start implements core.Starter. It connects the event stream to the
// coordinator and the agent store, then launches the connection loop.
func (m *Module) Start() error {
	sinkSvc, ok := m.appCtx.Service("approval.coordinator")
	if !ok {
		return errors.New("runtime: approval.coordinator service not registered")
	}
	sink, ok := sinkSvc.(ApprovalSink)
	if !ok {
		return fmt.Errorf("runtime: approval.coordinator has unexpected type %T", sinkSvc)
	}

	storeSvc, ok := m.appCtx.Service("state.store")
	if !ok {
		return errors.New("runtime: state.store service not registered")
	}
	store, ok := storeSvc.(AgentStore)
	if !ok {
		return fmt.Errorf("runtime: state.store has unexpected type %T", storeSvc)
	}

	dispatcher := NewDispatcher(sink, store, m.logger, nil)
	m.client.OnEvent(dispatcher.Dispatch)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.client.Run(ctx)

	m.logger.Info("runtime client started", "url", m.config.URL)
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}
