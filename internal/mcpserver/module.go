// Package mcpserver exposes the approval coordinator as MCP tools so agent
// tooling (editors, chat clients) can list and resolve approvals over SSE.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joeblack2k/openclaw-studio-sub002/internal/approval"
	"github.com/joeblack2k/openclaw-studio-sub002/internal/core"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Coordinator is the approval surface exposed as MCP tools. Satisfied by the
// approval coordinator.
type Coordinator interface {
	PendingList() []approval.Approval
	ResolveApproval(ctx context.Context, approvalID string, decision approval.Decision) error
}

// AgentLister supplies agent records. Satisfied by the state store.
type AgentLister interface {
	List() []approval.Agent
}

// ModuleConfig holds YAML configuration for the MCP server module.
type ModuleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
}

// defaults fills zero values with sensible defaults.
func (c *ModuleConfig) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8765"
	}
}

// Module runs the MCP SSE server.
type Module struct {
	config ModuleConfig
	appCtx *core.AppContext
	logger *slog.Logger

	coordinator Coordinator
	agents      AgentLister
	sse         *server.SSEServer
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "mcp.server",
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
	return nil
}

// Start implements core.Starter.
func (m *Module) Start() error {
	if !m.config.Enabled {
		m.logger.Debug("mcp server disabled")
		return nil
	}

	svc, ok := m.appCtx.Service("approval.coordinator")
	if !ok {
		return errors.New("mcpserver: approval.coordinator service not registered")
	}
	m.coordinator, ok = svc.(Coordinator)
	if !ok {
		return fmt.Errorf("mcpserver: approval.coordinator has unexpected type %T", svc)
	}
	if svc, ok := m.appCtx.Service("state.store"); ok {
		if lister, ok := svc.(AgentLister); ok {
			m.agents = lister
		}
	}

	s := server.NewMCPServer("studio", "1.0.0",
		server.WithToolCapabilities(false),
	)
	m.registerTools(s)

	m.sse = server.NewSSEServer(s)
	go func() {
		m.logger.Info("mcp server listening", "addr", m.config.Bind)
		if err := m.sse.Start(m.config.Bind); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("mcp server error", "error", err)
		}
	}()

	return nil
}

func (m *Module) registerTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("approvals_list",
		mcp.WithDescription("List exec approvals currently awaiting a decision."),
	), m.handleApprovalsList)

	s.AddTool(mcp.NewTool("approvals_resolve",
		mcp.WithDescription("Apply a decision to a pending exec approval."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Approval id to resolve."),
		),
		mcp.WithString("decision",
			mcp.Required(),
			mcp.Description("Decision to apply."),
			mcp.Enum(string(approval.DecisionAllowOnce), string(approval.DecisionAllowAlways), string(approval.DecisionDeny)),
		),
	), m.handleApprovalsResolve)

	s.AddTool(mcp.NewTool("agents_list",
		mcp.WithDescription("List agents known to the runtime, including paused and awaiting-input state."),
	), m.handleAgentsList)
}

func (m *Module) handleApprovalsList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list := m.coordinator.PendingList()
	if list == nil {
		list = []approval.Approval{}
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (m *Module) handleApprovalsResolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("decision")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	decision := approval.Decision(raw)
	if !decision.Valid() {
		return mcp.NewToolResultError("unsupported decision: " + raw), nil
	}

	if err := m.coordinator.ResolveApproval(ctx, id, decision); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("approval %s resolved: %s", id, decision)), nil
}

func (m *Module) handleAgentsList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list := []approval.Agent{}
	if m.agents != nil {
		if agents := m.agents.List(); agents != nil {
			list = agents
		}
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.sse == nil {
		return nil
	}
	return m.sse.Shutdown(ctx)
}
