// Package session tracks which connection currently serves a workspace on one
// plane. The process owns two registries: one for control-plane sessions and
// one for worker-plane sessions; the only relationship between them is a
// shared workspace key.
package session

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Record is one registered session. Handle is an opaque value owned by the
// transport layer (the worker registry stores the connection handle, the
// control registry stores connection metadata).
type Record[H any] struct {
	SessionID string
	TenantKey string
	CreatedAt time.Time
	Handle    H
}

// Registry is a bidirectional session/workspace map. Within one registry a
// workspace key maps to at most one active session id and a session id maps
// to at most one workspace key. All operations are synchronous and in-memory;
// no lock is ever held across a blocking call.
type Registry[H any] struct {
	mu        sync.RWMutex
	bySession map[string]Record[H]
	byTenant  map[string]string
	nowFn     func() time.Time
}

// Diagnostics is a read-only snapshot for the status endpoint.
type Diagnostics struct {
	Count      int      `json:"count"`
	TenantKeys []string `json:"workspaces"`
}

func NewRegistry[H any]() *Registry[H] {
	return &Registry[H]{
		bySession: make(map[string]Record[H]),
		byTenant:  make(map[string]string),
		nowFn:     time.Now,
	}
}

// Register installs a session for a workspace. A prior session for the same
// workspace is atomically superseded and returned so the caller can close its
// physical connection; replacement is an expected event (plugin reload), not
// an error. Empty ids are ignored.
func (r *Registry[H]) Register(sessionID string, tenantKey string, handle H) (Record[H], bool) {
	sessionID = strings.TrimSpace(sessionID)
	tenantKey = strings.TrimSpace(tenantKey)
	if sessionID == "" || tenantKey == "" {
		return Record[H]{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var superseded Record[H]
	didSupersede := false
	if priorID, ok := r.byTenant[tenantKey]; ok {
		superseded = r.bySession[priorID]
		didSupersede = true
		delete(r.bySession, priorID)
	}
	// A reused session id must not leave a dangling tenant mapping behind.
	if prior, ok := r.bySession[sessionID]; ok && r.byTenant[prior.TenantKey] == sessionID {
		delete(r.byTenant, prior.TenantKey)
	}

	r.bySession[sessionID] = Record[H]{
		SessionID: sessionID,
		TenantKey: tenantKey,
		CreatedAt: r.nowFn(),
		Handle:    handle,
	}
	r.byTenant[tenantKey] = sessionID
	return superseded, didSupersede
}

// Unregister removes a session by id. Removing an absent session is a no-op,
// so duplicate close events are harmless. When the session was superseded
// earlier its workspace already points at the newer session and is left
// untouched.
func (r *Registry[H]) Unregister(sessionID string) (Record[H], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.bySession[sessionID]
	if !ok {
		return Record[H]{}, false
	}
	delete(r.bySession, sessionID)
	if r.byTenant[record.TenantKey] == sessionID {
		delete(r.byTenant, record.TenantKey)
	}
	return record, true
}

// LookupByTenant returns the current session for a workspace.
func (r *Registry[H]) LookupByTenant(tenantKey string) (Record[H], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessionID, ok := r.byTenant[tenantKey]
	if !ok {
		return Record[H]{}, false
	}
	record, ok := r.bySession[sessionID]
	return record, ok
}

// LookupTenant is the reverse lookup, used when a message arrives and only
// the physical session is known.
func (r *Registry[H]) LookupTenant(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.bySession[sessionID]
	if !ok {
		return "", false
	}
	return record.TenantKey, true
}

func (r *Registry[H]) Diagnostics() Diagnostics {
	r.mu.RLock()
	keys := make([]string, 0, len(r.byTenant))
	for key := range r.byTenant {
		keys = append(keys, key)
	}
	count := len(r.bySession)
	r.mu.RUnlock()

	sort.Strings(keys)
	return Diagnostics{Count: count, TenantKeys: keys}
}
