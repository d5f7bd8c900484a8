// SPDX-License-Identifier: MPL-2.0

package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/invowk/nodectl/internal/stream"
)

const (
	// DefaultShutdownTimeout bounds the graceful phase of Shutdown.
	DefaultShutdownTimeout = 5 * time.Second

	// killWait bounds how long Shutdown waits after a forced kill.
	killWait = 2 * time.Second
)

var (
	// ErrNotExecutable is returned by Launch when the executable is missing
	// or lacks execute permission.
	ErrNotExecutable = errors.New("executable not found or not executable")

	// ErrNotRunning is returned by Write once the process has left StateRunning.
	ErrNotRunning = errors.New("process is not running")
)

type (
	// Spec describes the child to launch.
	Spec struct {
		// Path is the executable, either a path or a bare command resolved via PATH.
		Path string
		// Args are passed after Path.
		Args []string
		// Dir is the child's working directory.
		Dir string
		// Env is appended to the parent's environment.
		Env []string
	}

	// Process is a supervised child with multiplexed output and a writable stdin.
	Process struct {
		cmd    *exec.Cmd
		logger *log.Logger

		shutdownTimeout time.Duration
		stdoutOpts      []stream.Option
		stderrOpts      []stream.Option

		state atomic.Int32

		writeMu sync.Mutex
		stdin   io.WriteCloser
		writer  *bufio.Writer

		stdout *stream.Subscription
		stderr *stream.Subscription

		exited  chan struct{}
		waitErr error // set before exited is closed

		shutdownOnce sync.Once
		shutdownErr  error
	}

	// Option configures a Process during Launch.
	Option func(*Process)
)

// WithLogger sets the logger for lifecycle events. It is also handed to the
// stdout and stderr subscriptions.
func WithLogger(l *log.Logger) Option {
	return func(p *Process) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithShutdownTimeout bounds the graceful phase of Shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(p *Process) {
		if d > 0 {
			p.shutdownTimeout = d
		}
	}
}

// WithStdoutListener registers fn on stdout before the reader starts.
func WithStdoutListener(fn stream.Listener) Option {
	return func(p *Process) {
		p.stdoutOpts = append(p.stdoutOpts, stream.WithListener(fn))
	}
}

// WithStderrListener registers fn on stderr before the reader starts.
func WithStderrListener(fn stream.Listener) Option {
	return func(p *Process) {
		p.stderrOpts = append(p.stderrOpts, stream.WithListener(fn))
	}
}

// Launch verifies spec.Path is executable, starts the child and attaches the
// output streams. The context only bounds the launch itself; the child
// outlives it and is stopped with Shutdown.
func Launch(ctx context.Context, spec Spec, opts ...Option) (*Process, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("launch canceled: %w", ctx.Err())
	default:
	}

	p := &Process{
		logger:          log.NewWithOptions(os.Stderr, log.Options{Prefix: "process"}),
		shutdownTimeout: DefaultShutdownTimeout,
		exited:          make(chan struct{}),
	}
	p.state.Store(int32(StateCreated))
	for _, opt := range opts {
		opt(p)
	}

	resolved, err := exec.LookPath(spec.Path)
	if err != nil {
		p.state.Store(int32(StateFailed))
		return nil, fmt.Errorf("%w: %s: %w", ErrNotExecutable, spec.Path, err)
	}

	if !p.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		return nil, fmt.Errorf("cannot launch process in state %s", p.State())
	}

	cmd := exec.Command(resolved, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)

	// Real pipes rather than StdoutPipe: the readers must be able to drain
	// trailing output independently of Wait.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, p.fail(fmt.Errorf("creating stdout pipe: %w", err))
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return nil, p.fail(fmt.Errorf("creating stderr pipe: %w", err))
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	stdin, err := cmd.StdinPipe()
	if err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return nil, p.fail(fmt.Errorf("creating stdin pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return nil, p.fail(fmt.Errorf("starting %s: %w", resolved, err))
	}
	// The child owns the write ends now.
	closeAll(stdoutW, stderrW)

	p.cmd = cmd
	p.stdin = stdin
	p.writer = bufio.NewWriter(stdin)
	p.logger = p.logger.With("pid", cmd.Process.Pid)
	p.stdout = stream.Attach("stdout", stdoutR, append([]stream.Option{stream.WithLogger(p.logger)}, p.stdoutOpts...)...)
	p.stderr = stream.Attach("stderr", stderrR, append([]stream.Option{stream.WithLogger(p.logger)}, p.stderrOpts...)...)

	p.state.Store(int32(StateRunning))
	go p.watch()

	p.logger.Debug("process started", "path", resolved, "args", spec.Args, "dir", spec.Dir)
	return p, nil
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	return State(p.state.Load())
}

// Pid returns the child's process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Alive reports whether the child is running.
func (p *Process) Alive() bool {
	select {
	case <-p.exited:
		return false
	default:
	}
	return p.State() == StateRunning && probe(p.Pid())
}

// Exited is closed once the child has exited and been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// ExitErr returns the error reported by Wait, nil for a clean exit or while
// the child is still running.
func (p *Process) ExitErr() error {
	select {
	case <-p.exited:
		return p.waitErr
	default:
		return nil
	}
}

// Stdout returns the child's stdout subscription.
func (p *Process) Stdout() *stream.Subscription { return p.stdout }

// Stderr returns the child's stderr subscription.
func (p *Process) Stderr() *stream.Subscription { return p.stderr }

// Write sends b to the child's stdin and flushes.
func (p *Process) Write(b []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if p.State() != StateRunning {
		return ErrNotRunning
	}
	if _, err := p.writer.Write(b); err != nil {
		return fmt.Errorf("writing to stdin: %w", err)
	}
	if err := p.writer.Flush(); err != nil {
		return fmt.Errorf("flushing stdin: %w", err)
	}
	return nil
}

// WriteLine sends line followed by a newline.
func (p *Process) WriteLine(line string) error {
	return p.Write([]byte(line + "\n"))
}

// Shutdown closes stdin, requests termination, waits up to the shutdown
// timeout and then kills the child. It is safe to call more than once; later
// calls return the first call's result.
func (p *Process) Shutdown() error {
	p.shutdownOnce.Do(func() {
		p.shutdownErr = p.shutdown()
	})
	return p.shutdownErr
}

func (p *Process) shutdown() error {
	if !p.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		// Already exited on its own.
		<-p.exited
		return nil
	}

	p.writeMu.Lock()
	if err := p.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.logger.Debug("closing stdin", "error", err)
	}
	p.writeMu.Unlock()

	if err := terminate(p.Pid()); err != nil {
		p.logger.Debug("terminate signal failed", "error", err)
	}

	select {
	case <-p.exited:
		p.logger.Debug("process exited gracefully")
		return nil
	case <-time.After(p.shutdownTimeout):
	}

	p.logger.Warn("process did not exit in time, killing", "timeout", p.shutdownTimeout)
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing process %d: %w", p.Pid(), err)
	}

	select {
	case <-p.exited:
		return nil
	case <-time.After(killWait):
		return fmt.Errorf("process %d did not exit after kill", p.Pid())
	}
}

// watch reaps the child. It is the only goroutine that calls Wait.
func (p *Process) watch() {
	err := p.cmd.Wait()
	p.waitErr = err
	p.state.Store(int32(StateStopped))
	close(p.exited)

	if err != nil {
		p.logger.Debug("process exited", "error", err)
		return
	}
	p.logger.Debug("process exited")
}

func (p *Process) fail(err error) error {
	p.state.Store(int32(StateFailed))
	return err
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
