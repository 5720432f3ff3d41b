package dispatch

import (
	"github.com/workbridge/workbridge/internal/session"
	"github.com/workbridge/workbridge/internal/wire"
)

// WorkerLink is the sending side of one worker connection. The concrete
// implementation lives in the relay package; the narrow interface keeps the
// router testable without sockets.
type WorkerLink interface {
	Send(frame wire.CommandFrame) error
	Close()
}

// ControlMeta is the handle stored for a control-plane session.
type ControlMeta struct {
	RemoteAddr string
}

// Route is a resolved dispatch target.
type Route struct {
	TenantKey       string
	WorkerSessionID string
	Worker          WorkerLink
}

// Resolver maps a control-plane session (or a workspace key directly) to the
// workspace's currently connected worker session. Absence is a first-class
// outcome reported as a sentinel error, never a panic or a generic fault.
type Resolver struct {
	control *session.Registry[ControlMeta]
	workers *session.Registry[WorkerLink]
}

func NewResolver(control *session.Registry[ControlMeta], workers *session.Registry[WorkerLink]) *Resolver {
	return &Resolver{control: control, workers: workers}
}

// FromControlSession resolves via the control registry first. The two failure
// reasons stay distinct: ErrControlSessionNotFound means the caller should
// reconnect, ErrNoWorkerForWorkspace means the worker plugin is not running.
func (r *Resolver) FromControlSession(controlSessionID string) (Route, error) {
	tenantKey, ok := r.control.LookupTenant(controlSessionID)
	if !ok {
		return Route{}, ErrControlSessionNotFound
	}
	return r.FromTenant(tenantKey)
}

// FromTenant skips the control hop, for callers that already know the
// workspace key.
func (r *Resolver) FromTenant(tenantKey string) (Route, error) {
	record, ok := r.workers.LookupByTenant(tenantKey)
	if !ok {
		return Route{}, ErrNoWorkerForWorkspace
	}
	return Route{
		TenantKey:       tenantKey,
		WorkerSessionID: record.SessionID,
		Worker:          record.Handle,
	}, nil
}
