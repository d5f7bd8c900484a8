// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/invowk/nodectl/internal/issue"
	"github.com/invowk/nodectl/internal/testutil"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	return testutil.MustWriteFile(t, filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), content, 0o644)
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.BaseDir != "nodectl-runtime" {
		t.Errorf("BaseDir = %q", cfg.BaseDir)
	}
	if cfg.IndexURL != "https://nodejs.org/dist/latest/" {
		t.Errorf("IndexURL = %q", cfg.IndexURL)
	}
	if !cfg.PreferSystem {
		t.Error("PreferSystem should default to true")
	}
	if len(cfg.Packages) != 0 {
		t.Errorf("Packages = %v, want empty", cfg.Packages)
	}
	if got := cfg.Execution.DefaultTimeout(); got != 30*time.Second {
		t.Errorf("DefaultTimeout() = %v", got)
	}
	if got := cfg.Execution.PollInterval(); got != 100*time.Millisecond {
		t.Errorf("PollInterval() = %v", got)
	}
	if !cfg.Execution.Wrap || cfg.Execution.SyntaxCheck {
		t.Errorf("Execution = %+v", cfg.Execution)
	}
	if got := cfg.Process.ShutdownTimeout(); got != 5*time.Second {
		t.Errorf("ShutdownTimeout() = %v", got)
	}
	if got := cfg.PackageManager.Timeout(); got != 10*time.Minute {
		t.Errorf("package manager Timeout() = %v", got)
	}
	if cfg.Log.Level != LogLevelInfo || cfg.Log.MirrorOutput {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if valid, errs := cfg.IsValid(); !valid {
		t.Errorf("DefaultConfig() is invalid: %v", errs)
	}
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	t.Parallel()

	cfg, path, err := LoadWithPath(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("LoadWithPath() error = %v", err)
	}
	if path != "" {
		t.Errorf("resolved path = %q, want none", path)
	}
	if cfg.Execution.DefaultTimeoutSeconds != 30 || cfg.BaseDir != "nodectl-runtime" {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoad_ConfigDirFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	want := writeConfig(t, dir, `
base_dir: "/srv/node"
packages: ["lodash", "left-pad"]
execution: {
	default_timeout_seconds: 5
	syntax_check: true
}
log: level: "debug"
`)

	cfg, path, err := LoadWithPath(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("LoadWithPath() error = %v", err)
	}
	if path != want {
		t.Errorf("resolved path = %q, want %q", path, want)
	}
	if cfg.BaseDir != "/srv/node" {
		t.Errorf("BaseDir = %q", cfg.BaseDir)
	}
	if strings.Join(cfg.Packages, ",") != "lodash,left-pad" {
		t.Errorf("Packages = %v", cfg.Packages)
	}
	if cfg.Execution.DefaultTimeoutSeconds != 5 || !cfg.Execution.SyntaxCheck {
		t.Errorf("Execution = %+v", cfg.Execution)
	}
	// Keys absent from the file keep their defaults.
	if !cfg.Execution.Wrap || cfg.Execution.PollIntervalMS != 100 {
		t.Errorf("defaults lost: %+v", cfg.Execution)
	}
	if cfg.Log.Level != LogLevelDebug {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoad_CustomPath(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), `prefer_system: false`)
	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PreferSystem {
		t.Error("PreferSystem should be false")
	}
}

func TestLoad_CustomPathNotFound(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "missing.cue")
	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: missing})
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}

	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("error should be *issue.ActionableError, got %T", err)
	}
	if ae.Resource != missing || !ae.HasSuggestions() {
		t.Errorf("unexpected error context: %+v", ae)
	}
	if got := issue.FromError(err); got == nil || got.Id() != issue.ConfigLoadFailedId {
		t.Errorf("FromError() = %v", got)
	}
}

func TestLoad_SchemaViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "syntax error", content: `execution: {`, want: "config.cue"},
		{name: "unknown key", content: `container_engine: "docker"`, want: "container_engine"},
		{name: "wrong type", content: `execution: wrap: "yes"`, want: "execution.wrap"},
		{name: "negative timeout", content: `execution: default_timeout_seconds: -1`, want: "execution.default_timeout_seconds"},
		{name: "bad log level", content: `log: level: "trace"`, want: "log.level"},
		{name: "empty package", content: `packages: ["lodash", ""]`, want: "packages[1]"},
		{name: "bad index url", content: `index_url: "ftp://example.com/"`, want: "index_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeConfig(t, t.TempDir(), tt.content)
			_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_OversizedFile(t *testing.T) {
	t.Parallel()

	content := "// " + strings.Repeat("x", maxConfigFileSize) + "\n"
	path := writeConfig(t, t.TempDir(), content)
	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
	if err == nil || !strings.Contains(err.Error(), "exceeds maximum") {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `execution: default_timeout_seconds: 5`)

	t.Setenv("NODECTL_EXECUTION_DEFAULT_TIMEOUT_SECONDS", "7")
	t.Setenv("NODECTL_EXECUTION_WRAP", "false")
	t.Setenv("NODECTL_LOG_LEVEL", "warn")

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Execution.DefaultTimeoutSeconds != 7 {
		t.Errorf("DefaultTimeoutSeconds = %d, want 7 from the environment", cfg.Execution.DefaultTimeoutSeconds)
	}
	if cfg.Execution.Wrap {
		t.Error("Wrap should be false from the environment")
	}
	if cfg.Log.Level != LogLevelWarn {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoad_InvalidEnvironmentValue(t *testing.T) {
	t.Setenv("NODECTL_LOG_LEVEL", "loud")

	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if !errors.Is(err, ErrInvalidLogLevel) {
		t.Fatalf("expected ErrInvalidLogLevel, got %v", err)
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig in chain, got %v", err)
	}
}

func TestLoad_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewProvider().Load(ctx, LoadOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestGenerateCUE_RoundTrip(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Packages = []string{"lodash", "@types/node"}
	cfg.Execution.SyntaxCheck = true
	cfg.Log.MirrorOutput = true

	path := writeConfig(t, t.TempDir(), GenerateCUE(cfg))
	loaded, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("generated CUE did not load: %v\n%s", err, GenerateCUE(cfg))
	}
	if strings.Join(loaded.Packages, ",") != "lodash,@types/node" {
		t.Errorf("Packages = %v", loaded.Packages)
	}
	if !loaded.Execution.SyntaxCheck || !loaded.Log.MirrorOutput {
		t.Errorf("round trip lost flags: %+v", loaded)
	}
}

//nolint:paralleltest // mutates the package-level config dir override
func TestCreateDefaultConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nodectl")
	SetConfigDirOverride(dir)
	t.Cleanup(Reset)

	path, err := CreateDefaultConfig()
	if err != nil {
		t.Fatalf("CreateDefaultConfig() error = %v", err)
	}
	if path != filepath.Join(dir, "config.cue") {
		t.Errorf("path = %q", path)
	}

	// An existing file is left untouched.
	if err := os.WriteFile(path, []byte(`base_dir: "/custom"`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateDefaultConfig(); err != nil {
		t.Fatalf("second CreateDefaultConfig() error = %v", err)
	}

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BaseDir != "/custom" {
		t.Errorf("BaseDir = %q, want /custom", cfg.BaseDir)
	}
}

//nolint:paralleltest // mutates environment variables
func TestConfigDir(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG lookup applies to linux")
	}
	t.Setenv("XDG_CONFIG_HOME", "/tmp/test-xdg-config")

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	if want := filepath.Join("/tmp/test-xdg-config", AppName); dir != want {
		t.Errorf("ConfigDir() = %q, want %q", dir, want)
	}
}
