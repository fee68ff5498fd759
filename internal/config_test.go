package internal

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadConfigDefaults tests that the default values are applied correctly when loading a config.
func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o600); err != nil {
		t.Fatalf("write app config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Server.Port != 11333 {
		t.Fatalf("expected default port 11333, got %d", cfg.Server.Port)
	}
	if cfg.GitHub.Path != "/githubWebhook" {
		t.Fatalf("expected default webhook path, got %q", cfg.GitHub.Path)
	}
	if cfg.PersistDir != "/output" {
		t.Fatalf("expected default persist dir, got %q", cfg.PersistDir)
	}
	if cfg.Docker.CAPath != "/etc/ssl/certs/ca-certificates.crt" {
		t.Fatalf("expected default ca path, got %q", cfg.Docker.CAPath)
	}
	if cfg.Docker.APIVersion != "1.30" {
		t.Fatalf("expected default docker api version, got %q", cfg.Docker.APIVersion)
	}
	if cfg.Engine.PushTopic != "autotest.push" || cfg.Engine.CommentTopic != "autotest.comment" {
		t.Fatalf("unexpected default topics: %+v", cfg.Engine)
	}
	if cfg.Watermill.Driver != "gochannel" {
		t.Fatalf("expected default watermill driver, got %q", cfg.Watermill.Driver)
	}
	if cfg.Watermill.GoChannel.OutputChannelBuffer != 64 {
		t.Fatalf("expected default gochannel output buffer, got %d", cfg.Watermill.GoChannel.OutputChannelBuffer)
	}
	if cfg.Storage.Table != "autotest_commit_targets" {
		t.Fatalf("expected default storage table, got %q", cfg.Storage.Table)
	}
	if cfg.Worker.ConsumerGroup != "autotest" || cfg.Worker.ClientIDSuffix != "-worker" || cfg.Worker.Concurrency != 4 {
		t.Fatalf("unexpected worker defaults: %+v", cfg.Worker)
	}
	if cfg.IsTestDeployment() {
		t.Fatalf("expected empty name not to be the test deployment")
	}
}

// TestLoadConfigExpandsEnv tests that environment variables are expanded before parsing.
func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("AUTOTEST_NAME", TestDeploymentName)
	t.Setenv("AUTOTEST_DOCKER_HOST", "tcp://docker.internal:2376")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "name: ${AUTOTEST_NAME}\ndocker:\n  host: ${AUTOTEST_DOCKER_HOST}\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.IsTestDeployment() {
		t.Fatalf("expected test deployment, got name %q", cfg.Name)
	}
	if cfg.Docker.Host != "tcp://docker.internal:2376" {
		t.Fatalf("expected expanded docker host, got %q", cfg.Docker.Host)
	}
}

// TestLoadConfigInvalidRule tests that loading a config with an invalid rule returns an error.
func TestLoadConfigInvalidRule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "rules:\n  - when: kind == \"push\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write rules config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for missing emit")
	}
}

// TestLoadConfigTrimsFields tests that the fields in a rule are trimmed correctly.
func TestLoadConfigTrimsFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "rules:\n  - when: \"  kind == \\\"comment\\\"  \"\n    emit: \"  autotest.comment.audit  \"\n    drivers: [\" amqp \", \"\"]\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write rules config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load rules config: %v", err)
	}
	if cfg.Rules[0].When != "kind == \"comment\"" {
		t.Fatalf("expected trimmed when, got %q", cfg.Rules[0].When)
	}
	if len(cfg.Rules[0].Emit) != 1 || cfg.Rules[0].Emit[0] != "autotest.comment.audit" {
		t.Fatalf("expected trimmed emit, got %v", cfg.Rules[0].Emit)
	}
	if len(cfg.Rules[0].Drivers) != 1 || cfg.Rules[0].Drivers[0] != "amqp" {
		t.Fatalf("expected trimmed drivers, got %v", cfg.Rules[0].Drivers)
	}
}
