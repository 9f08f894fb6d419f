package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func writeStub(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	present := writeStub(t, t.TempDir(), "az")
	reqs := []Requirement{
		{Name: "Cloud CLI", Command: present, Purpose: "power state"},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Path != present || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected status for empty command: %#v", results[2])
	}
}

func TestCheckBinariesUsesPath(t *testing.T) {
	dir := t.TempDir()
	writeStub(t, dir, "tail-stub")
	t.Setenv("PATH", dir)

	results := CheckBinaries([]Requirement{{Name: "tail", Command: "tail-stub"}})
	if !results[0].Available {
		t.Fatalf("expected PATH lookup to succeed, got %#v", results[0])
	}
	if !Available("tail-stub") || Available("") {
		t.Fatal("Available disagrees with PATH contents")
	}
}

func TestMissingRequired(t *testing.T) {
	statuses := []Status{
		{Requirement: Requirement{Name: "az"}, Available: true},
		{Requirement: Requirement{Name: "tail", Optional: true}},
		{Requirement: Requirement{Name: "sh"}},
	}
	missing := MissingRequired(statuses)
	if len(missing) != 1 || missing[0].Name != "sh" {
		t.Fatalf("unexpected missing set: %#v", missing)
	}
}
