package dispatch

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestValidateUnknownCommand(t *testing.T) {
	catalog := DefaultCatalog()

	err := catalog.Validate("reboot-universe", nil)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestValidateTrimsCommandName(t *testing.T) {
	catalog := DefaultCatalog()

	if err := catalog.Validate("  ping  ", nil); err != nil {
		t.Fatalf("expected trimmed command name to validate, got %v", err)
	}
}

func TestValidateRequiredFields(t *testing.T) {
	catalog := DefaultCatalog()

	cases := []struct {
		name    string
		command string
		args    string
		wantErr error
	}{
		{"no args command accepts empty", "ping", "", nil},
		{"no args command accepts object", "ping", `{}`, nil},
		{"required field present", "get-note", `{"path":"notes/a.md"}`, nil},
		{"required field missing", "get-note", `{}`, ErrInvalidArguments},
		{"required field null", "get-note", `{"path":null}`, ErrInvalidArguments},
		{"empty args with required field", "get-note", "", ErrInvalidArguments},
		{"args not an object", "get-note", `["notes/a.md"]`, ErrInvalidArguments},
		{"second required field missing", "put-note", `{"path":"notes/a.md"}`, ErrInvalidArguments},
		{"all required fields present", "put-note", `{"path":"notes/a.md","content":""}`, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var args json.RawMessage
			if tc.args != "" {
				args = json.RawMessage(tc.args)
			}
			err := catalog.Validate(tc.command, args)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestRegisterIgnoresBlankName(t *testing.T) {
	catalog := NewCatalog()
	catalog.Register(CommandSpec{Name: "   "})

	if got := len(catalog.List()); got != 0 {
		t.Fatalf("expected empty catalog, got %d specs", got)
	}
}

func TestListReturnsSortedSpecs(t *testing.T) {
	catalog := NewCatalog(
		CommandSpec{Name: "zeta"},
		CommandSpec{Name: "alpha"},
		CommandSpec{Name: "mu"},
	)

	specs := catalog.List()
	expected := []string{"alpha", "mu", "zeta"}
	if len(specs) != len(expected) {
		t.Fatalf("expected %d specs, got %d", len(expected), len(specs))
	}
	for i, name := range expected {
		if specs[i].Name != name {
			t.Fatalf("expected spec %d to be %q, got %q", i, name, specs[i].Name)
		}
	}
}

func TestDefaultCatalogCoversDocumentCommands(t *testing.T) {
	byName := map[string]CommandSpec{}
	for _, spec := range DefaultCatalog().List() {
		byName[spec.Name] = spec
	}

	for _, name := range []string{"ping", "get-note", "put-note", "delete-note", "search-notes"} {
		if _, ok := byName[name]; !ok {
			t.Fatalf("expected default catalog to include %q", name)
		}
	}
	if got := byName["put-note"].Required; len(got) != 2 {
		t.Fatalf("expected put-note to require two fields, got %v", got)
	}
}
