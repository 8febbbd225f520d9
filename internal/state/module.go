package state

import (
	"context"

	"github.com/joeblack2k/openclaw-studio-sub002/internal/core"
)

func init() {
	core.RegisterModule(&Module{})
}

// Module publishes the agent store as the "state.store" service.
type Module struct {
	store *Store
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "state.agents",
		New: func() core.Module { return &Module{} },
	}
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.store = NewStore(ctx.Logger)
	ctx.RegisterService("state.store", m.store)
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	return nil
}
