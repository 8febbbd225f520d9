package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joeblack2k/openclaw-studio-sub002/internal/approval"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string `json:"status"` // "ok" or "degraded"
	Connected bool   `json:"connected"`
}

// handleHealth returns 200 while the process is up; "degraded" signals a
// lost runtime connection without failing the probe.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok"}
		if g.runtime != nil {
			resp.Connected = g.runtime.Connected()
			if !resp.Connected {
				resp.Status = "degraded"
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime           int64 `json:"uptime_seconds"`
	Connected        bool  `json:"connected"`
	PendingApprovals int   `json:"pending_approvals"`
	PausedRuns       int   `json:"paused_runs"`
	Agents           int   `json:"agents"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:           int64(time.Since(g.startedAt).Seconds()),
			PendingApprovals: len(g.coordinator.PendingList()),
			PausedRuns:       len(g.coordinator.PausedSnapshot()),
		}
		if g.runtime != nil {
			resp.Connected = g.runtime.Connected()
		}
		if g.agents != nil {
			resp.Agents = len(g.agents.List())
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleListApprovals returns all pending approvals as JSON.
func (g *Gateway) handleListApprovals() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		list := g.coordinator.PendingList()
		if list == nil {
			list = []approval.Approval{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// resolveRequest is the JSON body for POST /api/approvals/{id}/resolve.
type resolveRequest struct {
	Decision string `json:"decision"`
}

// handleResolveApproval applies a decision to a pending approval.
func (g *Gateway) handleResolveApproval() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			http.Error(w, "missing approval id", http.StatusBadRequest)
			return
		}

		var req resolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		decision := approval.Decision(req.Decision)
		if !decision.Valid() {
			http.Error(w, "unsupported decision: "+req.Decision, http.StatusBadRequest)
			return
		}

		err := g.coordinator.ResolveApproval(r.Context(), id, decision)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
		case errors.Is(err, approval.ErrUnknownApproval):
			http.Error(w, "approval not found", http.StatusNotFound)
		case errors.Is(err, approval.ErrAlreadyResolving):
			http.Error(w, "decision already in flight", http.StatusConflict)
		default:
			g.logger.Warn("resolve via API failed", "approval_id", id, "error", err)
			http.Error(w, "resolution failed: "+err.Error(), http.StatusBadGateway)
		}
	}
}

// handlePrune triggers an immediate prune pass.
func (g *Gateway) handlePrune() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		removed := g.coordinator.PrunePending()
		writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
	}
}

// handleListPaused returns the paused-run table.
func (g *Gateway) handleListPaused() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, g.coordinator.PausedSnapshot())
	}
}

// handleListAgents returns all known agents as JSON.
func (g *Gateway) handleListAgents() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		list := []approval.Agent{}
		if g.agents != nil {
			if agents := g.agents.List(); agents != nil {
				list = agents
			}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// handleListAudit returns recent decision records, newest first. The limit
// defaults to 50 and caps at 500.
func (g *Gateway) handleListAudit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.audit == nil {
			http.Error(w, "audit store not configured", http.StatusNotFound)
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = min(n, 500)
		}

		records, err := g.audit.List(r.Context(), limit)
		if err != nil {
			g.logger.Error("audit list failed", "error", err)
			http.Error(w, "audit read failed", http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []approval.DecisionRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
