// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"

	"github.com/invowk/nodectl/internal/issue"
)

const (
	// AppName is the application name.
	AppName = "nodectl"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment overrides, e.g. NODECTL_LOG_LEVEL.
	EnvPrefix = "NODECTL"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the nodectl configuration directory: %APPDATA% on
// Windows, ~/Library/Application Support on macOS and $XDG_CONFIG_HOME
// (default ~/.config) elsewhere.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var dir string
	switch runtime.GOOS {
	case "windows":
		dir = os.Getenv("APPDATA")
		if dir == "" {
			dir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, "Library", "Application Support")
	default:
		dir = os.Getenv("XDG_CONFIG_HOME")
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			dir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(dir, AppName), nil
}

// loadWithOptions layers defaults, the first config file found and
// NODECTL_* environment variables. It returns the path of the file that was
// loaded, or "" when only defaults and environment applied.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	if err := opts.Validate(); err != nil {
		return nil, "", err
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath, err := resolveConfigFile(opts)
	if err != nil {
		return nil, "", err
	}
	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("Run 'nodectl config show' to see the effective configuration").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if valid, errs := cfg.IsValid(); !valid {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Check NODECTL_* environment variables for malformed values").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(errs[0]).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("base_dir", d.BaseDir)
	v.SetDefault("index_url", d.IndexURL)
	v.SetDefault("prefer_system", d.PreferSystem)
	v.SetDefault("packages", d.Packages)
	v.SetDefault("execution.default_timeout_seconds", d.Execution.DefaultTimeoutSeconds)
	v.SetDefault("execution.poll_interval_ms", d.Execution.PollIntervalMS)
	v.SetDefault("execution.wrap", d.Execution.Wrap)
	v.SetDefault("execution.syntax_check", d.Execution.SyntaxCheck)
	v.SetDefault("process.shutdown_timeout_seconds", d.Process.ShutdownTimeoutSeconds)
	v.SetDefault("package_manager.timeout_seconds", d.PackageManager.TimeoutSeconds)
	v.SetDefault("log.level", string(d.Log.Level))
	v.SetDefault("log.mirror_output", d.Log.MirrorOutput)
}

// resolveConfigFile applies the lookup order: explicit file, config
// directory, current directory. A missing explicit file is an error; the
// other locations are optional.
func resolveConfigFile(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Run 'nodectl config init' to create a default configuration").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
	if err != nil {
		return "", err
	}
	if p := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt); fileExists(p) {
		return p, nil
	}
	if p := ConfigFileName + "." + ConfigFileExt; fileExists(p) {
		return p, nil
	}
	return "", nil
}

func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}
	return ConfigDir()
}

// loadCUEIntoViper validates a CUE file against #Config and merges it over
// the defaults. Fields are optional, so validation does not require
// concrete values.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigFileSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", path, len(data), maxConfigFileSize)
	}

	cctx := cuecontext.New()

	schemaValue := cctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := cctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}

	unified := schemaValue.LookupPath(cue.ParsePath("#Config")).Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return formatCUEError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ConfigFilePath returns the default config file location.
func ConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}

// CreateDefaultConfig writes the default configuration to the config
// directory unless a file already exists. It returns the file path.
func CreateDefaultConfig() (string, error) {
	cfgPath, err := ConfigFilePath()
	if err != nil {
		return "", err
	}
	if fileExists(cfgPath) {
		return cfgPath, nil
	}
	return cfgPath, Save(DefaultConfig())
}

// Save writes cfg to the config directory as CUE.
func Save(cfg *Config) error {
	cfgPath, err := ConfigFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(cfg)), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateCUE renders cfg as a config file accepted by the schema.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// nodectl configuration\n\n")
	fmt.Fprintf(&sb, "base_dir: %q\n", cfg.BaseDir)
	fmt.Fprintf(&sb, "index_url: %q\n", cfg.IndexURL)
	fmt.Fprintf(&sb, "prefer_system: %v\n", cfg.PreferSystem)

	if len(cfg.Packages) == 0 {
		sb.WriteString("packages: []\n")
	} else {
		sb.WriteString("packages: [\n")
		for _, p := range cfg.Packages {
			fmt.Fprintf(&sb, "\t%q,\n", p)
		}
		sb.WriteString("]\n")
	}

	sb.WriteString("\nexecution: {\n")
	fmt.Fprintf(&sb, "\tdefault_timeout_seconds: %d\n", cfg.Execution.DefaultTimeoutSeconds)
	fmt.Fprintf(&sb, "\tpoll_interval_ms: %d\n", cfg.Execution.PollIntervalMS)
	fmt.Fprintf(&sb, "\twrap: %v\n", cfg.Execution.Wrap)
	fmt.Fprintf(&sb, "\tsyntax_check: %v\n", cfg.Execution.SyntaxCheck)
	sb.WriteString("}\n")

	sb.WriteString("\nprocess: {\n")
	fmt.Fprintf(&sb, "\tshutdown_timeout_seconds: %d\n", cfg.Process.ShutdownTimeoutSeconds)
	sb.WriteString("}\n")

	sb.WriteString("\npackage_manager: {\n")
	fmt.Fprintf(&sb, "\ttimeout_seconds: %d\n", cfg.PackageManager.TimeoutSeconds)
	sb.WriteString("}\n")

	sb.WriteString("\nlog: {\n")
	fmt.Fprintf(&sb, "\tlevel: %q\n", cfg.Log.Level)
	fmt.Fprintf(&sb, "\tmirror_output: %v\n", cfg.Log.MirrorOutput)
	sb.WriteString("}\n")

	return sb.String()
}
