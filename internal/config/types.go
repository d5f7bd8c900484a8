// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"

	// Defined locally to avoid coupling config to the provisioner.
	defaultBaseDir  = "nodectl-runtime"
	defaultIndexURL = "https://nodejs.org/dist/latest/"
)

var (
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// LogLevel is the minimum level the CLI logger emits.
	LogLevel string

	// InvalidLogLevelError wraps ErrInvalidLogLevel.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidConfigError collects field-level validation errors and wraps
	// ErrInvalidConfig.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// BaseDir holds installation/, working-dir/ and downloads/.
		BaseDir string `json:"base_dir" mapstructure:"base_dir"`
		// IndexURL is the distribution listing scanned for archives.
		IndexURL string `json:"index_url" mapstructure:"index_url"`
		// PreferSystem uses a runtime already on PATH when it is launchable.
		PreferSystem bool `json:"prefer_system" mapstructure:"prefer_system"`
		// Packages are installed into the working directory before launch.
		Packages []string `json:"packages" mapstructure:"packages"`

		Execution      ExecutionConfig      `json:"execution" mapstructure:"execution"`
		Process        ProcessConfig        `json:"process" mapstructure:"process"`
		PackageManager PackageManagerConfig `json:"package_manager" mapstructure:"package_manager"`
		Log            LogConfig            `json:"log" mapstructure:"log"`
	}

	// ExecutionConfig controls how scripts are submitted.
	ExecutionConfig struct {
		// DefaultTimeoutSeconds bounds each execution; 0 waits forever.
		DefaultTimeoutSeconds int `json:"default_timeout_seconds" mapstructure:"default_timeout_seconds"`
		// PollIntervalMS is how often collected output is inspected.
		PollIntervalMS int `json:"poll_interval_ms" mapstructure:"poll_interval_ms"`
		// Wrap surrounds scripts with an error-capturing block.
		Wrap bool `json:"wrap" mapstructure:"wrap"`
		// SyntaxCheck parses scripts locally before submitting them.
		SyntaxCheck bool `json:"syntax_check" mapstructure:"syntax_check"`
	}

	ProcessConfig struct {
		ShutdownTimeoutSeconds int `json:"shutdown_timeout_seconds" mapstructure:"shutdown_timeout_seconds"`
	}

	PackageManagerConfig struct {
		TimeoutSeconds int `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	}

	LogConfig struct {
		Level LogLevel `json:"level" mapstructure:"level"`
		// MirrorOutput copies the runtime's stdout and stderr to the log.
		MirrorOutput bool `json:"mirror_output" mapstructure:"mirror_output"`
	}
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseDir:      defaultBaseDir,
		IndexURL:     defaultIndexURL,
		PreferSystem: true,
		Packages:     []string{},
		Execution: ExecutionConfig{
			DefaultTimeoutSeconds: 30,
			PollIntervalMS:        100,
			Wrap:                  true,
		},
		Process:        ProcessConfig{ShutdownTimeoutSeconds: 5},
		PackageManager: PackageManagerConfig{TimeoutSeconds: 600},
		Log:            LogConfig{Level: LogLevelInfo},
	}
}

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// IsValid returns whether the LogLevel is one of the defined levels.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

// Error implements the error interface.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns ErrInvalidLogLevel for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// IsValid checks constraints on values that may have arrived through
// environment overrides, which bypass the CUE schema.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if strings.TrimSpace(c.BaseDir) == "" {
		errs = append(errs, errors.New("base_dir must not be empty"))
	}
	if strings.TrimSpace(c.IndexURL) == "" {
		errs = append(errs, errors.New("index_url must not be empty"))
	}
	for i, pkg := range c.Packages {
		if strings.TrimSpace(pkg) == "" {
			errs = append(errs, fmt.Errorf("packages[%d] must not be empty", i))
		}
	}
	if c.Execution.DefaultTimeoutSeconds < 0 {
		errs = append(errs, errors.New("execution.default_timeout_seconds must not be negative"))
	}
	if c.Execution.PollIntervalMS <= 0 {
		errs = append(errs, errors.New("execution.poll_interval_ms must be positive"))
	}
	if c.Process.ShutdownTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("process.shutdown_timeout_seconds must be positive"))
	}
	if c.PackageManager.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("package_manager.timeout_seconds must be positive"))
	}
	if valid, fieldErrs := c.Log.Level.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap exposes ErrInvalidConfig and every field error to errors.Is.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// DefaultTimeout returns the per-execution timeout; 0 means none.
func (c ExecutionConfig) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutSeconds) * time.Second
}

// PollInterval returns the output inspection interval.
func (c ExecutionConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

func (c ProcessConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

func (c PackageManagerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
