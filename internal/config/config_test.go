package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"worktally/internal/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if cfg.Attribution.OnMissingMember != config.MissingMemberReject {
		t.Fatalf("default policy = %q, want reject", cfg.Attribution.OnMissingMember)
	}
	if cfg.Tasks.EnforcePrerequisites {
		t.Fatalf("prerequisites should be advisory by default")
	}
	if cfg.Engine.MaxUpdateAttempts != 5 {
		t.Fatalf("default attempts = %d, want 5", cfg.Engine.MaxUpdateAttempts)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestFromYAML(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
attribution:
  on_missing_member: zero
tasks:
  enforce_prerequisites: true
engine:
  max_update_attempts: 3
webhooks:
  - url: https://example.com/hook
    secret: s3cret
    projects: [p1]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Attribution.OnMissingMember != config.MissingMemberZero {
		t.Fatalf("policy = %q", cfg.Attribution.OnMissingMember)
	}
	if !cfg.Tasks.EnforcePrerequisites || cfg.Engine.MaxUpdateAttempts != 3 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].URL != "https://example.com/hook" {
		t.Fatalf("webhooks: %+v", cfg.Webhooks)
	}
}

func TestFromYAMLDefaultsSurvive(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`tasks: {enforce_prerequisites: true}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Attribution.OnMissingMember != config.MissingMemberReject {
		t.Fatalf("omitted policy should keep default, got %q", cfg.Attribution.OnMissingMember)
	}
}

func TestFromYAMLInvalid(t *testing.T) {
	cases := map[string]string{
		"bad policy":      `attribution: {on_missing_member: maybe}`,
		"zero attempts":   `engine: {max_update_attempts: 0}`,
		"webhook no url":  `webhooks: [{secret: x}]`,
		"webhook timeout": `webhooks: [{url: "https://x", timeout_seconds: -1}]`,
	}
	for name, y := range cases {
		if _, err := config.FromYAML([]byte(y)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load without file: %v", err)
	}
	if cfg.Attribution.OnMissingMember != config.MissingMemberReject {
		t.Fatalf("missing file should yield defaults")
	}

	if err := os.WriteFile(filepath.Join(dir, "worktally.yml"), []byte(`attribution: {on_missing_member: zero}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Attribution.OnMissingMember != config.MissingMemberZero {
		t.Fatalf("file not applied: %+v", cfg)
	}
}
