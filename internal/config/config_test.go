package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("org-1")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Org.ID != "org-1" || cfg.Scoring.Mode != ScoringRecorded {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.ReportKindAllowed("attorney_summary") || cfg.ReportKindAllowed("press_release") {
		t.Fatalf("unexpected report kinds: %v", cfg.Release.ReportKinds)
	}
	if cfg.Notify.Redis.MaxLen != 10000 {
		t.Fatalf("unexpected redis max_len: %d", cfg.Notify.Redis.MaxLen)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing org", "scoring: {mode: recorded}\nrelease: {report_kinds: [a]}", "org.id"},
		{"bad mode", "org: {id: o}\nscoring: {mode: magic}\nrelease: {report_kinds: [a]}", "scoring.mode"},
		{"no kinds", "org: {id: o}\nscoring: {mode: tenvs}", "report_kinds"},
		{"dup kinds", "org: {id: o}\nscoring: {mode: tenvs}\nrelease: {report_kinds: [a, a]}", "twice"},
		{"webhook url", "org: {id: o}\nscoring: {mode: tenvs}\nrelease: {report_kinds: [a]}\nwebhooks: [{events: [x]}]", "webhooks[0].url"},
		{"log format", "org: {id: o}\nscoring: {mode: tenvs}\nrelease: {report_kinds: [a]}\nlog: {format: xml}", "log.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("expected nil config for empty workspace, got %v %v", cfg, err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected not found error")
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(GenerateDefault("org-x")), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Org.ID != "org-x" {
		t.Fatalf("unexpected org: %s", cfg.Org.ID)
	}
}
