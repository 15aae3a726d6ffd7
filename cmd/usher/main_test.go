package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/usher-agent/usher/internal/config"
)

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), nil, &out, &out, []string{"version"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "Usher") {
		t.Errorf("output missing name: %q", out.String())
	}
}

func TestRun_VersionJSON(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), nil, &out, &out, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if info["version"] == "" {
		t.Errorf("info missing version: %v", info)
	}
}

func TestRun_NoCommandPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), nil, &out, &out, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Errorf("output missing usage: %q", out.String())
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"bogus"}},
		{"unknown flag", []string{"-bogus"}},
		{"ask without question", []string{"ask"}},
		{"bad output format", []string{"-o", "xml", "version"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := run(context.Background(), nil, &out, &out, tt.args); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRun_Init(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	if err := run(context.Background(), nil, &out, &out, []string{"init", dir}); err != nil {
		t.Fatalf("run: %v", err)
	}

	// The generated file must parse as a valid config.
	path := filepath.Join(dir, "usher.yaml")
	if _, err := config.Load(path); err != nil {
		t.Errorf("generated config does not load: %v", err)
	}

	// A second init must refuse to overwrite.
	if err := run(context.Background(), nil, &out, &out, []string{"init", dir}); err == nil {
		t.Error("expected error on existing config")
	}
}

func TestRun_ConfigFlagForms(t *testing.T) {
	// Both -config <path> and -config=<path> must parse; a missing file
	// is reported by the config loader, not the argument parser.
	for _, args := range [][]string{
		{"-config", "/nonexistent/usher.yaml", "serve"},
		{"-config=/nonexistent/usher.yaml", "serve"},
	} {
		var out bytes.Buffer
		err := run(context.Background(), nil, &out, &out, args)
		if err == nil || !strings.Contains(err.Error(), "nonexistent") {
			t.Errorf("args %v: err = %v, want missing-config error", args, err)
		}
	}
}
