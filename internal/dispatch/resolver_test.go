package dispatch

import (
	"errors"
	"testing"

	"github.com/workbridge/workbridge/internal/session"
)

func newTestResolver() (*Resolver, *session.Registry[ControlMeta], *session.Registry[WorkerLink]) {
	control := session.NewRegistry[ControlMeta]()
	workers := session.NewRegistry[WorkerLink]()
	return NewResolver(control, workers), control, workers
}

func TestFromControlSessionResolvesTwoHops(t *testing.T) {
	resolver, control, workers := newTestResolver()
	link := newFakeWorkerLink()
	control.Register("c1", "doc-a", ControlMeta{RemoteAddr: "127.0.0.1:9"})
	workers.Register("w1", "doc-a", link)

	route, err := resolver.FromControlSession("c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.TenantKey != "doc-a" || route.WorkerSessionID != "w1" {
		t.Fatalf("unexpected route: %+v", route)
	}
	if route.Worker != WorkerLink(link) {
		t.Fatalf("expected route to carry the registered worker link")
	}
}

func TestFromControlSessionUnknownSession(t *testing.T) {
	resolver, _, workers := newTestResolver()
	workers.Register("w1", "doc-a", newFakeWorkerLink())

	_, err := resolver.FromControlSession("never-registered")
	if !errors.Is(err, ErrControlSessionNotFound) {
		t.Fatalf("expected ErrControlSessionNotFound, got %v", err)
	}
}

func TestFromControlSessionNoWorker(t *testing.T) {
	resolver, control, _ := newTestResolver()
	control.Register("c1", "doc-a", ControlMeta{})

	// The failure reason must stay distinct from an unknown control session:
	// the client is fine, the workspace plugin is not running.
	_, err := resolver.FromControlSession("c1")
	if !errors.Is(err, ErrNoWorkerForWorkspace) {
		t.Fatalf("expected ErrNoWorkerForWorkspace, got %v", err)
	}
	if errors.Is(err, ErrControlSessionNotFound) {
		t.Fatalf("routing failures must not collapse into one reason")
	}
}

func TestFromTenantSkipsControlHop(t *testing.T) {
	resolver, _, workers := newTestResolver()
	workers.Register("w1", "doc-a", newFakeWorkerLink())

	route, err := resolver.FromTenant("doc-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.WorkerSessionID != "w1" {
		t.Fatalf("unexpected route: %+v", route)
	}

	if _, err := resolver.FromTenant("doc-b"); !errors.Is(err, ErrNoWorkerForWorkspace) {
		t.Fatalf("expected ErrNoWorkerForWorkspace for unknown workspace, got %v", err)
	}
}
