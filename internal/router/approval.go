package router

import (
	"context"

	"github.com/abdul-hamid-achik/skillpanes/internal/permissions"
	"github.com/abdul-hamid-achik/skillpanes/internal/tools"
)

// panelApprover gates one panel's tool calls through that panel's Gate.
type panelApprover struct {
	policy *permissions.Policy
	tools  ToolExecutor
	gate   *permissions.Gate
}

func (a *panelApprover) RequiresApproval(tool string) bool {
	level := tools.PermissionRead
	if t, ok := a.tools.Get(tool); ok {
		level = t.Permission()
	}
	return a.policy.RequiresApproval(tool, level)
}

func (a *panelApprover) Approve(ctx context.Context, tool, command string, notify func()) (bool, error) {
	routerLog.Info("approval requested for %s: %s", tool, command)
	return a.gate.Request(ctx, tool, command, func(*permissions.Approval) { notify() })
}

// HasPendingApproval reports whether a gated call on panel is waiting
func (r *Router) HasPendingApproval(panel int) bool {
	e := r.table.get(panel)
	return e != nil && e.gate.Pending() != nil
}

// PendingCommand returns the command awaiting approval on panel, or ""
func (r *Router) PendingCommand(panel int) string {
	e := r.table.get(panel)
	if e == nil {
		return ""
	}
	if a := e.gate.Pending(); a != nil {
		return a.Command
	}
	return ""
}

// ApproveCommand answers panel's pending approval. It returns false when
// nothing was pending.
func (r *Router) ApproveCommand(approved bool, panel int) bool {
	e := r.table.get(panel)
	if e == nil {
		return false
	}
	ok := e.gate.Resolve(approved)
	if ok {
		routerLog.Info("panel %d: command approved=%v", panel, approved)
	}
	return ok
}
