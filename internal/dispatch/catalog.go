package dispatch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// CommandSpec declares one routable command and the argument fields it
// requires. Validation happens before routing, so a malformed request never
// creates a correlation entry.
type CommandSpec struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Required    []string `json:"required,omitempty"`
}

// Catalog is the set of commands the router accepts. Workers execute the
// commands; the router only checks shape.
type Catalog struct {
	mu    sync.RWMutex
	specs map[string]CommandSpec
}

func NewCatalog(specs ...CommandSpec) *Catalog {
	c := &Catalog{specs: make(map[string]CommandSpec)}
	for _, spec := range specs {
		c.Register(spec)
	}
	return c
}

// DefaultCatalog carries the built-in document commands. The bulk of the
// command set is uniform request builders; these cover the shapes the bridge
// itself exercises.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		CommandSpec{Name: "ping", Description: "Round-trip connectivity check answered by the worker."},
		CommandSpec{Name: "get-note", Description: "Read one document from the workspace.", Required: []string{"path"}},
		CommandSpec{Name: "put-note", Description: "Create or replace one document in the workspace.", Required: []string{"path", "content"}},
		CommandSpec{Name: "delete-note", Description: "Delete one document from the workspace.", Required: []string{"path"}},
		CommandSpec{Name: "search-notes", Description: "Search workspace documents.", Required: []string{"query"}},
	)
}

func (c *Catalog) Register(spec CommandSpec) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return
	}
	spec.Name = name

	c.mu.Lock()
	c.specs[name] = spec
	c.mu.Unlock()
}

// Validate checks the command name and required argument fields. Absent and
// JSON-null fields both fail; the worker never sees an invalid frame.
func (c *Catalog) Validate(command string, args json.RawMessage) error {
	c.mu.RLock()
	spec, ok := c.specs[strings.TrimSpace(command)]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}

	if len(args) == 0 {
		if len(spec.Required) > 0 {
			return fmt.Errorf("%w: field %q is required", ErrInvalidArguments, spec.Required[0])
		}
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(args, &fields); err != nil {
		return fmt.Errorf("%w: arguments must be a JSON object", ErrInvalidArguments)
	}
	for _, field := range spec.Required {
		value, present := fields[field]
		if !present || string(value) == "null" {
			return fmt.Errorf("%w: field %q is required", ErrInvalidArguments, field)
		}
	}
	return nil
}

// List returns the registered specs sorted by name.
func (c *Catalog) List() []CommandSpec {
	c.mu.RLock()
	specs := make([]CommandSpec, 0, len(c.specs))
	for _, spec := range c.specs {
		specs = append(specs, spec)
	}
	c.mu.RUnlock()

	sort.Slice(specs, func(i, j int) bool {
		return specs[i].Name < specs[j].Name
	})
	return specs
}
