package runtime

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gantryhost/gantry/internal/capability"
)

const testSettle = 50 * time.Millisecond

const echoManifest = `
exports:
  - contract: command
    provider: echo
    metadata:
      name: loud-echo
    command:
      exec: echo
      args: ["hello"]
`

type greeter struct{ prefix string }

func (g *greeter) Greet(name string) string { return g.prefix + name }

func greeterBuiltin() capability.Export {
	return capability.Export{
		Contract: capability.ContractGreeter,
		Provider: "host-greeter",
		Policy:   capability.PolicyShared,
		Metadata: capability.Metadata{capability.NameKey: "host-greeter"},
		Factory: func(capability.Resolver) (any, error) {
			return &greeter{prefix: "hello, "}, nil
		},
	}
}

func newTestRuntime(t *testing.T) (*Runtime, string) {
	t.Helper()
	dir := t.TempDir()
	rt, err := New(Options{
		Dir:      dir,
		Settle:   testSettle,
		Builtins: []capability.Export{greeterBuiltin()},
	})
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	return rt, dir
}

// waitNotification consumes the stream until a notification of kind for
// contract arrives.
func waitNotification(t *testing.T, sub Subscription, kind ChangeKind, contract capability.Contract) Notification {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case notification, ok := <-sub.Events:
			if !ok {
				t.Fatalf("notification stream closed while waiting for %s %s", kind, contract)
			}
			if notification.Kind == kind && notification.Export.Contract == contract {
				return notification
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s %s", kind, contract)
		}
	}
}

func TestBuiltinResolves(t *testing.T) {
	rt, _ := newTestRuntime(t)

	g, ok, err := Resolve[interface{ Greet(string) string }](rt, capability.ContractGreeter)
	if err != nil {
		t.Fatalf("resolve greeter: %v", err)
	}
	if !ok {
		t.Fatalf("expected builtin greeter to resolve")
	}
	if got := g.Greet("deck"); got != "hello, deck" {
		t.Fatalf("unexpected greeting %q", got)
	}
}

func TestAbsentContractIsNotAnError(t *testing.T) {
	rt, _ := newTestRuntime(t)

	instance, ok, err := rt.Resolve(capability.ContractTask)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ok || instance != nil {
		t.Fatalf("expected absence, got %v", instance)
	}
}

func TestManifestDropAddsExport(t *testing.T) {
	rt, dir := newTestRuntime(t)
	sub := rt.Subscribe()
	defer sub.Close()

	path := filepath.Join(dir, "echo.yaml")
	if err := os.WriteFile(path, []byte(echoManifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	notification := waitNotification(t, sub, ExportAdded, capability.ContractCommand)
	if notification.Export.Provider != "echo" {
		t.Fatalf("unexpected export %s", notification.Export.Key())
	}

	instance, ok, err := rt.ResolveWhere(capability.ContractCommand, capability.WithName("loud-echo"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !ok || instance == nil {
		t.Fatalf("expected the dropped-in command to resolve")
	}
}

func TestManifestRemovalRemovesExport(t *testing.T) {
	rt, dir := newTestRuntime(t)
	sub := rt.Subscribe()
	defer sub.Close()

	path := filepath.Join(dir, "echo.yaml")
	if err := os.WriteFile(path, []byte(echoManifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	waitNotification(t, sub, ExportAdded, capability.ContractCommand)

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove manifest: %v", err)
	}
	waitNotification(t, sub, ExportRemoved, capability.ContractCommand)

	_, ok, err := rt.ResolveWhere(capability.ContractCommand, capability.WithName("loud-echo"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ok {
		t.Fatalf("expected the removed command to be absent")
	}
}

func TestSharedBuiltinSurvivesRefresh(t *testing.T) {
	rt, dir := newTestRuntime(t)
	sub := rt.Subscribe()
	defer sub.Close()

	before, ok, err := rt.Resolve(capability.ContractGreeter)
	if err != nil || !ok {
		t.Fatalf("resolve before refresh: ok=%v err=%v", ok, err)
	}

	path := filepath.Join(dir, "echo.yaml")
	if err := os.WriteFile(path, []byte(echoManifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	waitNotification(t, sub, ExportAdded, capability.ContractCommand)

	after, ok, err := rt.Resolve(capability.ContractGreeter)
	if err != nil || !ok {
		t.Fatalf("resolve after refresh: ok=%v err=%v", ok, err)
	}
	if before != after {
		t.Fatalf("shared builtin identity must survive a plugin refresh")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	rt, _ := newTestRuntime(t)
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	sub := rt.Subscribe()
	if _, ok := <-sub.Events; ok {
		t.Fatalf("expected the notification stream closed after Close")
	}
}

func TestTypedResolveWrongType(t *testing.T) {
	rt, _ := newTestRuntime(t)

	_, _, err := Resolve[int](rt, capability.ContractGreeter)
	if err == nil {
		t.Fatalf("expected a type mismatch error")
	}
}

func TestDefaultRuntimeLifecycle(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { CloseDefault() })

	if _, err := Default(); err == nil {
		t.Fatalf("expected Default before Configure to fail")
	}
	if err := Configure(Options{Dir: dir, Settle: testSettle}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	first, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	second, err := Default()
	if err != nil {
		t.Fatalf("second default: %v", err)
	}
	if first != second {
		t.Fatalf("Default must return the same runtime")
	}
	if err := Configure(Options{Dir: dir}); err == nil {
		t.Fatalf("expected Configure after build to fail")
	}
	if err := CloseDefault(); err != nil {
		t.Fatalf("close default: %v", err)
	}
	if err := CloseDefault(); err != nil {
		t.Fatalf("second close default: %v", err)
	}
}
