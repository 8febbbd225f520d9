// Package gateway provides the HTTP API for operating the approval
// coordinator: listing and resolving pending approvals, inspecting agents,
// and exposing health and metrics. It binds to loopback by default and
// follows the module system pattern.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/joeblack2k/openclaw-studio-sub002/internal/approval"
	"github.com/joeblack2k/openclaw-studio-sub002/internal/core"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Coordinator is the approval surface the gateway exposes over HTTP.
// Satisfied by the approval coordinator.
type Coordinator interface {
	PendingList() []approval.Approval
	PausedSnapshot() approval.PausedRuns
	ResolveApproval(ctx context.Context, approvalID string, decision approval.Decision) error
	PrunePending() int
}

// AgentLister supplies agent records for the API. Satisfied by the state store.
type AgentLister interface {
	List() []approval.Agent
}

// ConnectionStatus reports runtime connectivity. Satisfied by the runtime client.
type ConnectionStatus interface {
	Connected() bool
}

// DecisionLister reads recent audit records. Satisfied by the audit store.
type DecisionLister interface {
	List(ctx context.Context, n int) ([]approval.DecisionRecord, error)
}

// Gateway is the HTTP gateway module. It is a leaf module, nothing
// imports it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	// Resolved lazily at Start() via service registry.
	coordinator Coordinator
	agents      AgentLister
	runtime     ConnectionStatus
	audit       DecisionLister
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.config.defaults()
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	if svc, ok := g.appCtx.Service("approval.coordinator"); ok {
		if c, ok := svc.(Coordinator); ok {
			g.coordinator = c
		}
	}
	if svc, ok := g.appCtx.Service("state.store"); ok {
		if lister, ok := svc.(AgentLister); ok {
			g.agents = lister
		}
	}
	if svc, ok := g.appCtx.Service("runtime.client"); ok {
		if status, ok := svc.(ConnectionStatus); ok {
			g.runtime = status
		}
	}
	if svc, ok := g.appCtx.Service("audit.recorder"); ok {
		if lister, ok := svc.(DecisionLister); ok {
			g.audit = lister
		}
	}
	if g.coordinator == nil {
		return errors.New("gateway: approval.coordinator service not registered")
	}

	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
