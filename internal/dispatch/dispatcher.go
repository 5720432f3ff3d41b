// Package dispatch implements the workspace-scoped command router: the
// correlation table for in-flight calls, the resolver that maps a control
// session to its workspace's worker session, and the dispatcher that turns a
// fire-and-forget frame send into an awaitable call with a deadline.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/workbridge/workbridge/internal/session"
	"github.com/workbridge/workbridge/internal/wire"
)

const DefaultCommandTimeout = 5 * time.Second

// Snapshot is the diagnostics view exposed to the status endpoint.
type Snapshot struct {
	ControlSessions session.Diagnostics `json:"control_sessions"`
	WorkerSessions  session.Diagnostics `json:"worker_sessions"`
	InFlightCalls   int                 `json:"in_flight_calls"`
}

// Dispatcher owns the two session registries and the correlation table. All
// shared mutation goes through their narrow APIs; a dispatch suspends only
// while awaiting its call outcome and holds no registry lock while suspended.
type Dispatcher struct {
	control *session.Registry[ControlMeta]
	workers *session.Registry[WorkerLink]

	resolver *Resolver
	table    *CallTable
	catalog  *Catalog

	defaultTimeout time.Duration
	logger         zerolog.Logger
}

func NewDispatcher(catalog *Catalog, defaultTimeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultCommandTimeout
	}

	control := session.NewRegistry[ControlMeta]()
	workers := session.NewRegistry[WorkerLink]()
	return &Dispatcher{
		control:        control,
		workers:        workers,
		resolver:       NewResolver(control, workers),
		table:          NewCallTable(),
		catalog:        catalog,
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

func (d *Dispatcher) Catalog() *Catalog {
	return d.catalog
}

// OnControlConnect registers a control-plane session for a workspace. A prior
// control session for the same workspace is superseded silently.
func (d *Dispatcher) OnControlConnect(sessionID string, tenantKey string, meta ControlMeta) {
	superseded, didSupersede := d.control.Register(sessionID, tenantKey, meta)
	event := d.logger.Info().
		Str("session_id", sessionID).
		Str("workspace", tenantKey)
	if didSupersede {
		event = event.Str("superseded_session_id", superseded.SessionID)
	}
	event.Msg("control session connected")
}

func (d *Dispatcher) OnControlDisconnect(sessionID string) {
	if record, ok := d.control.Unregister(sessionID); ok {
		d.logger.Info().
			Str("session_id", sessionID).
			Str("workspace", record.TenantKey).
			Msg("control session disconnected")
	}
}

// OnWorkerConnect registers a worker-plane session. When a worker reconnects
// for a workspace the stale session is superseded atomically and its sender
// is closed so in-flight producers fail fast; routing only ever sees the new
// session.
func (d *Dispatcher) OnWorkerConnect(sessionID string, tenantKey string, link WorkerLink) {
	superseded, didSupersede := d.workers.Register(sessionID, tenantKey, link)
	event := d.logger.Info().
		Str("session_id", sessionID).
		Str("workspace", tenantKey)
	if didSupersede {
		event = event.Str("superseded_session_id", superseded.SessionID)
	}
	event.Msg("worker session connected")

	if didSupersede && superseded.Handle != nil {
		superseded.Handle.Close()
	}
}

func (d *Dispatcher) OnWorkerDisconnect(sessionID string) {
	if record, ok := d.workers.Unregister(sessionID); ok {
		d.logger.Info().
			Str("session_id", sessionID).
			Str("workspace", record.TenantKey).
			Msg("worker session disconnected")
	}
}

// Dispatch routes a command entering through a control session. The returned
// error is a value from the taxonomy in errors.go; branch with errors.Is and
// errors.As, nothing here panics or crashes the process.
func (d *Dispatcher) Dispatch(ctx context.Context, controlSessionID string, command string, args json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	if err := d.catalog.Validate(command, args); err != nil {
		return nil, err
	}
	route, err := d.resolver.FromControlSession(controlSessionID)
	if err != nil {
		return nil, err
	}
	return d.dispatchRoute(ctx, route, command, args, timeout)
}

// DispatchToTenant routes a command for a caller that already knows the
// workspace key, such as the stateless MCP ingress.
func (d *Dispatcher) DispatchToTenant(ctx context.Context, tenantKey string, command string, args json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	if err := d.catalog.Validate(command, args); err != nil {
		return nil, err
	}
	route, err := d.resolver.FromTenant(tenantKey)
	if err != nil {
		return nil, err
	}
	return d.dispatchRoute(ctx, route, command, args, timeout)
}

func (d *Dispatcher) dispatchRoute(ctx context.Context, route Route, command string, args json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}

	call := d.table.Begin(timeout)
	frame := wire.CommandFrame{
		CallID:  call.ID,
		Command: command,
		Args:    args,
	}
	if err := route.Worker.Send(frame); err != nil {
		d.table.Abandon(call.ID)
		return nil, fmt.Errorf("%w: %v", ErrWorkerGone, err)
	}

	d.logger.Debug().
		Str("call_id", call.ID).
		Str("workspace", route.TenantKey).
		Str("worker_session_id", route.WorkerSessionID).
		Str("command", command).
		Msg("command dispatched")

	outcome := call.Wait(ctx, d.table)
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	return outcome.Payload, nil
}

// HandleWorkerResult matches a worker result frame against the correlation
// table. Frames for unknown, already resolved, or expired call ids are logged
// and discarded; they cannot be attributed safely, so no caller hears about
// them.
func (d *Dispatcher) HandleWorkerResult(frame wire.ResultFrame) {
	outcome := Outcome{Payload: frame.Payload}
	if !frame.OK {
		commandErr := &CommandError{}
		if frame.Error != nil {
			commandErr.Code = frame.Error.Code
			commandErr.Message = frame.Error.Message
		}
		outcome = Outcome{Err: commandErr}
	}

	if !d.table.Resolve(frame.CallID, outcome) {
		d.logger.Warn().
			Str("call_id", frame.CallID).
			Msg("dropping result for unknown or completed call")
	}
}

func (d *Dispatcher) Diagnostics() Snapshot {
	return Snapshot{
		ControlSessions: d.control.Diagnostics(),
		WorkerSessions:  d.workers.Diagnostics(),
		InFlightCalls:   d.table.Len(),
	}
}

// WorkspaceStatus is the routing view of one workspace: which planes are
// currently attached.
type WorkspaceStatus struct {
	Workspace  string `json:"workspace"`
	HasControl bool   `json:"has_control"`
	HasWorker  bool   `json:"has_worker"`
}

// Workspaces reports every workspace with at least one attached session,
// sorted by key.
func (d *Dispatcher) Workspaces() []WorkspaceStatus {
	controlKeys := d.control.Diagnostics().TenantKeys
	workerKeys := d.workers.Diagnostics().TenantKeys

	byKey := make(map[string]*WorkspaceStatus, len(controlKeys)+len(workerKeys))
	keys := make([]string, 0, len(controlKeys)+len(workerKeys))
	for _, key := range controlKeys {
		byKey[key] = &WorkspaceStatus{Workspace: key, HasControl: true}
		keys = append(keys, key)
	}
	for _, key := range workerKeys {
		if status, ok := byKey[key]; ok {
			status.HasWorker = true
			continue
		}
		byKey[key] = &WorkspaceStatus{Workspace: key, HasWorker: true}
		keys = append(keys, key)
	}

	sort.Strings(keys)
	statuses := make([]WorkspaceStatus, 0, len(keys))
	for _, key := range keys {
		statuses = append(statuses, *byKey[key])
	}
	return statuses
}
