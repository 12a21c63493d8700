package tools

import (
	"context"
	"encoding/json"
	"runtime"
	"strings"
	"testing"
)

func TestRegistryUnknownTool(t *testing.T) {
	r := NewRegistry()
	r.Register(NewShellTool())

	res := r.Execute(context.Background(), "nope", json.RawMessage(`{}`))
	if !res.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(res.Content, "TOOL ERROR") || !strings.Contains(res.Content, "shell") {
		t.Errorf("unexpected content: %s", res.Content)
	}
}

func TestRegistryNames(t *testing.T) {
	r := NewRegistry()
	r.Register(NewShellTool())
	r.Register(NewDesktopTool(&fakeAutomator{}))

	names := r.Names()
	if len(names) != 2 || names[0] != "desktop" || names[1] != "shell" {
		t.Errorf("unexpected names: %v", names)
	}
}

func TestShellToolEcho(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell expectations")
	}
	tool := NewShellTool()
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"command":"echo hello; echo oops >&2"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", res.Content)
	}
	if !strings.Contains(res.Content, "hello") {
		t.Errorf("stdout missing: %s", res.Content)
	}
	if !strings.Contains(res.Content, "STDERR:\noops") {
		t.Errorf("stderr section missing: %s", res.Content)
	}
	if !strings.Contains(res.Content, "exit code: 0") {
		t.Errorf("exit code missing: %s", res.Content)
	}
}

func TestShellToolNonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell expectations")
	}
	tool := NewShellTool()
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"command":"exit 3"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error result for non-zero exit")
	}
	if !strings.Contains(res.Content, "exit code: 3") {
		t.Errorf("exit code missing: %s", res.Content)
	}
}
