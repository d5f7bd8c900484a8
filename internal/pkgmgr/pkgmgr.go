// SPDX-License-Identifier: MPL-2.0

package pkgmgr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/invowk/nodectl/internal/metrics"
)

const (
	// DefaultTimeout bounds a single install.
	DefaultTimeout = 10 * time.Minute

	// maxOutputLines is how much trailing output a PackageInstallError keeps.
	maxOutputLines = 40

	sentinelPrefix = "__npm_done_"
)

var (
	// ErrPackageInstall is the sentinel wrapped by PackageInstallError.
	ErrPackageInstall = errors.New("package install failed")

	// ErrInstallTimeout is returned when no completion sentinel arrives in time.
	ErrInstallTimeout = errors.New("package install did not finish in time")
)

type (
	// PackageInstallError reports a failed install. ExitCode is -1 when the
	// install never reported a status.
	PackageInstallError struct {
		Package  string
		ExitCode int
		Output   []string
		Err      error
	}

	// Bridge runs installs for one package manager in one working directory.
	Bridge struct {
		packageManager string
		workingDir     string
		shell          string
		env            []string
		timeout        time.Duration
		logger         *log.Logger
		metrics        *metrics.Metrics

		// mu serializes installs; they share the working directory.
		mu sync.Mutex
	}

	// Option configures a Bridge.
	Option func(*Bridge)

	// tail keeps the last maxOutputLines lines.
	tail struct {
		mu    sync.Mutex
		lines []string
	}
)

// Error implements the error interface.
func (e *PackageInstallError) Error() string {
	target := "dependencies"
	if e.Package != "" {
		target = fmt.Sprintf("package %q", e.Package)
	}
	msg := fmt.Sprintf("installing %s failed", target)
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf(" with exit status %d", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes ErrPackageInstall and the underlying cause, if any.
func (e *PackageInstallError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPackageInstall}
	}
	return []error{ErrPackageInstall, e.Err}
}

// WithShell overrides the shell hosting the install.
func WithShell(shell string) Option {
	return func(b *Bridge) {
		if shell != "" {
			b.shell = shell
		}
	}
}

// WithEnv appends variables to the install environment.
func WithEnv(env ...string) Option {
	return func(b *Bridge) { b.env = append(b.env, env...) }
}

// WithTimeout bounds each install.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithLogger sets the logger. Terminal output is logged at debug level.
func WithLogger(l *log.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMetrics records install results on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// New creates a Bridge for the package manager executable.
func New(packageManager, workingDir string, opts ...Option) *Bridge {
	b := &Bridge{
		packageManager: packageManager,
		workingDir:     workingDir,
		shell:          defaultShell,
		timeout:        DefaultTimeout,
		logger:         log.NewWithOptions(os.Stderr, log.Options{Prefix: "pkgmgr"}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Install installs pkg, or the working directory's declared dependencies
// when pkg is empty. Failures are returned as *PackageInstallError and are
// not retried.
func (b *Bridge) Install(ctx context.Context, pkg string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	b.logger.Info("installing", "package", displayName(pkg), "dir", b.workingDir)

	out := &tail{}
	code, err := b.run(ctx, pkg, out)
	if err == nil && code != 0 {
		err = &PackageInstallError{Package: pkg, ExitCode: code, Output: out.snapshot()}
	} else if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			err = fmt.Errorf("%w after %s", ErrInstallTimeout, b.timeout)
		}
		err = &PackageInstallError{Package: pkg, ExitCode: -1, Output: out.snapshot(), Err: err}
	}

	b.metrics.PackageInstalled(err == nil)
	if err != nil {
		return err
	}
	b.logger.Debug("install finished", "package", displayName(pkg), "elapsed", time.Since(start))
	return nil
}

func (t *tail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > maxOutputLines {
		t.lines = t.lines[len(t.lines)-maxOutputLines:]
	}
}

func (t *tail) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lines...)
}

func displayName(pkg string) string {
	if pkg == "" {
		return "(dependencies)"
	}
	return pkg
}

// parseStatus extracts the exit status following marker in line.
func parseStatus(line, marker string) (int, bool) {
	_, rest, found := strings.Cut(line, marker)
	if !found {
		return 0, false
	}
	end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if end >= 0 {
		rest = rest[:end]
	}
	code, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return code, true
}
