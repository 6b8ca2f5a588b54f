package plugindir

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/gantryhost/gantry/internal/capability"
)

const echoManifest = `
exports:
  - contract: command
    provider: echo
    command:
      exec: echo
`

const greeterPlugin = `package main

import "github.com/gantryhost/gantry/internal/builtin"

func Exports() []map[string]any {
	return []map[string]any{
		{
			"contract":  "greeter",
			"provider":  "pirate",
			"construct": "NewGreeter",
		},
	}
}

type greeter struct{}

func (greeter) Greet(name string) string { return "ahoy, " + name }

func NewGreeter() builtin.Greeter { return greeter{} }
`

func write(t *testing.T, dir, name, payload string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(payload), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func keys(exports []capability.Export) []string {
	out := make([]string, 0, len(exports))
	for _, export := range exports {
		out = append(out, string(export.Contract)+"/"+export.Provider)
	}
	return out
}

func TestRefreshMixedFiles(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "echo.yaml", echoManifest)
	write(t, dir, "greeter.go", greeterPlugin)
	write(t, dir, "notes.txt", "not a plugin")

	catalog, err := New(dir, "", nil)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if got := catalog.Exports(); len(got) != 0 {
		t.Fatalf("expected empty catalog before refresh, got %v", keys(got))
	}
	if err := catalog.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	got := keys(catalog.Exports())
	want := []string{"command/echo", "greeter/pirate"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestRefreshSkipsBrokenFile(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "echo.yaml", echoManifest)
	write(t, dir, "broken.yaml", ": not yaml :\n\t-")

	catalog, err := New(dir, "", nil)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if err := catalog.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	got := keys(catalog.Exports())
	if !reflect.DeepEqual(got, []string{"command/echo"}) {
		t.Fatalf("expected the healthy export to survive, got %v", got)
	}
}

func TestRefreshSkipsDuplicateKeys(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "echo.yaml", `
exports:
  - contract: command
    provider: echo
    command:
      exec: echo
  - contract: command
    provider: echo
    command:
      exec: printf
`)

	catalog, err := New(dir, "", nil)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if err := catalog.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	exports := catalog.Exports()
	if len(exports) != 1 {
		t.Fatalf("expected one export after dedup, got %v", keys(exports))
	}
	if exports[0].Origin != filepath.Clean(path) {
		t.Fatalf("unexpected origin %s", exports[0].Origin)
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "echo.yaml", echoManifest)

	catalog, err := New(dir, "", nil)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if err := catalog.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	first := keys(catalog.Exports())
	if err := catalog.Refresh(); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	second := keys(catalog.Exports())
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical snapshots, got %v then %v", first, second)
	}
}

func TestRefreshMissingDirectoryEmptiesCatalog(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "echo.yaml", echoManifest)

	catalog, err := New(dir, "", nil)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if err := catalog.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(catalog.Exports()) != 1 {
		t.Fatalf("expected one export before removal")
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("remove dir: %v", err)
	}
	if err := catalog.Refresh(); err != nil {
		t.Fatalf("refresh after removal: %v", err)
	}
	if got := catalog.Exports(); len(got) != 0 {
		t.Fatalf("expected empty catalog after directory removal, got %v", keys(got))
	}
}
