// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/invowk/nodectl/internal/metrics"
	"github.com/invowk/nodectl/internal/pkgmgr"
	"github.com/invowk/nodectl/internal/process"
	"github.com/invowk/nodectl/internal/provision"
)

var (
	_ Executor = (*Session)(nil)
	_ Executor = (*Engine)(nil)
)

type (
	// SessionOptions configures NewSession.
	SessionOptions struct {
		// Provisioner resolves the runtime. Ignored when Installation is set.
		Provisioner *provision.Provisioner
		// Installation skips provisioning and uses these paths directly.
		Installation *provision.Installation
		// Packages are installed, in order, before the runtime starts.
		Packages []string
		// InterpreterArgs default to the interactive flag.
		InterpreterArgs []string
		// Env is appended to the runtime's and the package manager's environment.
		Env []string

		ShutdownTimeout time.Duration
		PackageTimeout  time.Duration
		Engine          []EngineOption
		// MirrorOutput logs every runtime output line at debug level.
		MirrorOutput bool

		Logger  *log.Logger
		Metrics *metrics.Metrics
	}

	// Session owns one runtime: its installation, its process and the
	// engine that talks to it. It is safe for concurrent use; requests are
	// serialized.
	Session struct {
		inst    *provision.Installation
		proc    *process.Process
		engine  *Engine
		logger  *log.Logger
		closeMu sync.Once
		err     error
	}
)

// NewSession provisions the runtime, installs the requested packages,
// launches the interactive runtime in the working directory and connects
// an Engine to it.
func NewSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "session"})
	}

	inst := opts.Installation
	if inst == nil {
		p := opts.Provisioner
		if p == nil {
			p = provision.New(provision.WithLogger(logger), provision.WithMetrics(opts.Metrics))
		}
		var err error
		if inst, err = p.EnsureInstalled(ctx); err != nil {
			return nil, err
		}
	}

	if len(opts.Packages) > 0 {
		bridge := pkgmgr.New(inst.PackageManagerPath, inst.WorkingDir,
			pkgmgr.WithEnv(opts.Env...),
			pkgmgr.WithTimeout(opts.PackageTimeout),
			pkgmgr.WithLogger(logger.WithPrefix("pkgmgr")),
			pkgmgr.WithMetrics(opts.Metrics),
		)
		for _, pkg := range opts.Packages {
			if err := bridge.Install(ctx, pkg); err != nil {
				return nil, err
			}
		}
	}

	args := opts.InterpreterArgs
	if args == nil {
		args = []string{"-i"}
	}
	procOpts := []process.Option{
		process.WithLogger(logger.WithPrefix("process")),
		process.WithShutdownTimeout(opts.ShutdownTimeout),
	}
	if opts.MirrorOutput {
		procOpts = append(procOpts,
			process.WithStdoutListener(func(line string) { logger.Debug(line, "stream", "stdout") }),
			process.WithStderrListener(func(line string) { logger.Debug(line, "stream", "stderr") }),
		)
	}
	proc, err := process.Launch(ctx, process.Spec{
		Path: inst.InterpreterPath,
		Args: args,
		Dir:  inst.WorkingDir,
		Env:  opts.Env,
	}, procOpts...)
	if err != nil {
		return nil, fmt.Errorf("launching runtime: %w", err)
	}

	engineOpts := append([]EngineOption{
		WithEngineLogger(logger.WithPrefix("engine")),
		WithEngineMetrics(opts.Metrics),
	}, opts.Engine...)
	engine := NewEngine(proc, proc.Stdout(), proc.Stderr(), inst.WorkingDir, engineOpts...)

	return &Session{inst: inst, proc: proc, engine: engine, logger: logger}, nil
}

// Installation returns the runtime the session runs on.
func (s *Session) Installation() provision.Installation {
	return *s.inst
}

// Alive reports whether the runtime process is still running.
func (s *Session) Alive() bool {
	return s.proc.Alive()
}

// Execute runs req on the session's runtime. See Engine.Execute.
func (s *Session) Execute(ctx context.Context, req Request) (Outcome, error) {
	outcome, err := s.engine.Execute(ctx, req)
	return outcome, s.annotate(err)
}

// ExecuteAndGetResult runs req and returns its result. See Engine.ExecuteAndGetResult.
func (s *Session) ExecuteAndGetResult(ctx context.Context, req Request) (string, error) {
	result, err := s.engine.ExecuteAndGetResult(ctx, req)
	return result, s.annotate(err)
}

// Close stops accepting requests and shuts the runtime down. It is
// idempotent; later calls return the first call's result.
func (s *Session) Close() error {
	s.closeMu.Do(func() {
		s.err = errors.Join(s.engine.Close(), s.proc.Shutdown())
	})
	return s.err
}

// annotate points out a dead runtime, which otherwise only shows up as a
// timeout.
func (s *Session) annotate(err error) error {
	if err == nil || !errors.Is(err, ErrTimedOut) || s.proc.Alive() {
		return err
	}
	if exitErr := s.proc.ExitErr(); exitErr != nil {
		return fmt.Errorf("%w (runtime exited: %v)", err, exitErr)
	}
	return fmt.Errorf("%w (runtime exited)", err)
}
