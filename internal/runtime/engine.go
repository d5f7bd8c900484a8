// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/oklog/ulid/v2"

	"github.com/invowk/nodectl/internal/metrics"
	"github.com/invowk/nodectl/internal/stream"
)

const (
	// DefaultPollInterval is how often a waiting request checks its state.
	DefaultPollInterval = 100 * time.Millisecond

	handoffName = "result-handoff.txt"
)

type (
	// Request is one block of code to run.
	Request struct {
		Code string
		// Timeout bounds the wait for an outcome; zero waits indefinitely.
		Timeout time.Duration
		// Wrap guards the code with a try/catch that reports exceptions.
		// Unwrapped code that throws is only detected through the console's
		// own uncaught-error report.
		Wrap bool
	}

	// Executor is the capability handed to callers that run code.
	Executor interface {
		Execute(ctx context.Context, req Request) (Outcome, error)
		ExecuteAndGetResult(ctx context.Context, req Request) (string, error)
		Close() error
	}

	// LineWriter sends one command line to the runtime console.
	LineWriter interface {
		WriteLine(line string) error
	}

	// LineSource delivers the runtime's output lines to subscribers.
	LineSource interface {
		Subscribe(fn stream.Listener) (unsubscribe func())
	}

	// Engine runs code on an interactive runtime console, one request at a
	// time, detecting completion through per-request sentinels.
	Engine struct {
		stdin       LineWriter
		stdout      LineSource
		stderr      LineSource
		workingDir  string
		handoffPath string

		pollInterval time.Duration
		syntaxCheck  bool
		logger       *log.Logger
		metrics      *metrics.Metrics

		// sem admits one request at a time; unlike a mutex, acquiring it
		// respects context cancellation.
		sem    chan struct{}
		closed atomic.Bool
	}

	// EngineOption configures an Engine.
	EngineOption func(*Engine)

	// requestState is shared between the caller and the reader goroutines.
	requestState struct {
		completed atomic.Bool
		mu        sync.Mutex
		errs      []string
	}
)

// WithPollInterval sets how often a waiting request checks for an outcome.
func WithPollInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithSyntaxCheck parses code before submitting it and rejects syntax
// errors with ErrSyntax.
func WithSyntaxCheck(enabled bool) EngineOption {
	return func(e *Engine) { e.syntaxCheck = enabled }
}

// WithEngineLogger sets the engine's logger.
func WithEngineLogger(l *log.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEngineMetrics records execution outcomes on m.
func WithEngineMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine that writes commands to stdin and observes
// stdout and stderr. Scripts and the result handoff file live in workingDir.
func NewEngine(stdin LineWriter, stdout, stderr LineSource, workingDir string, opts ...EngineOption) *Engine {
	e := &Engine{
		stdin:        stdin,
		stdout:       stdout,
		stderr:       stderr,
		workingDir:   workingDir,
		handoffPath:  filepath.Join(workingDir, handoffName),
		pollInterval: DefaultPollInterval,
		logger:       log.NewWithOptions(os.Stderr, log.Options{Prefix: "engine"}),
		sem:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandoffPath returns the file used to pass results out of the runtime.
func (e *Engine) HandoffPath() string {
	return e.handoffPath
}

// Execute runs req.Code and waits for its outcome. Any outcome other than
// OutcomeCompleted comes with a non-nil error, an *ExecutionError for
// failures, timeouts and cancellation.
//
// A timed-out or cancelled request may still be running inside the
// runtime; callers should usually discard the runtime afterwards.
func (e *Engine) Execute(ctx context.Context, req Request) (Outcome, error) {
	if err := e.acquire(ctx); err != nil {
		if errors.Is(err, ErrClosed) {
			return OutcomeFailed, err
		}
		return OutcomeCancelled, err
	}
	defer e.release()

	return e.run(ctx, req)
}

// ExecuteAndGetResult runs req.Code, which must assign a variable named
// result, and returns String(result). The handoff file is cleared after
// every read. A completed run that leaves it empty returns ErrEmptyResult.
func (e *Engine) ExecuteAndGetResult(ctx context.Context, req Request) (string, error) {
	if err := e.acquire(ctx); err != nil {
		return "", err
	}
	defer e.release()

	if err := e.clearHandoff(); err != nil {
		return "", err
	}

	req.Code += handoffStatement(e.handoffPath)
	if _, err := e.run(ctx, req); err != nil {
		return "", err
	}

	data, err := os.ReadFile(e.handoffPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("reading result: %w", err)
	}
	if err := e.clearHandoff(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrEmptyResult
	}
	return string(data), nil
}

// Close rejects further requests. A request already in flight finishes
// normally. Stopping the runtime process is the owner's job.
func (e *Engine) Close() error {
	e.closed.Store(true)
	return nil
}

func (e *Engine) acquire(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return &ExecutionError{Outcome: OutcomeCancelled, Cause: ctx.Err()}
	}
	if e.closed.Load() {
		e.release()
		return ErrClosed
	}
	return nil
}

func (e *Engine) release() {
	<-e.sem
}

// run executes one request. The caller holds the semaphore.
func (e *Engine) run(ctx context.Context, req Request) (outcome Outcome, err error) {
	start := time.Now()
	id := ulid.Make().String()
	logger := e.logger.With("sentinel", id)
	defer func() {
		e.metrics.ObserveExecution(outcome.String(), time.Since(start))
		logger.Debug("execution finished", "outcome", outcome, "elapsed", time.Since(start))
	}()

	if e.syntaxCheck {
		if err := checkSyntax(req.Code); err != nil {
			return OutcomeFailed, err
		}
	}

	script, err := e.writeScript(wrapScript(req.Code, id, req.Wrap))
	if err != nil {
		return OutcomeFailed, err
	}
	defer func() {
		if rmErr := os.Remove(script); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logger.Warn("removing script", "path", script, "error", rmErr)
		}
	}()

	st := &requestState{}
	sentinel := sentinelPrefix + id
	errorMarker := errorPrefix + id + " "
	unsubOut := e.stdout.Subscribe(func(line string) {
		if strings.Contains(line, sentinel) {
			st.completed.Store(true)
			return
		}
		if bare := stripPrompt(line); consoleUncaught(bare, req.Wrap) {
			st.addError(bare)
		}
	})
	defer unsubOut()
	unsubErr := e.stderr.Subscribe(func(line string) {
		if strings.TrimSpace(line) == "" {
			return
		}
		st.addError(strings.TrimPrefix(line, errorMarker))
	})
	defer unsubErr()

	logger.Debug("submitting script", "path", script, "timeout", req.Timeout, "wrap", req.Wrap)
	if err := e.stdin.WriteLine(".load " + script); err != nil {
		return OutcomeFailed, fmt.Errorf("sending load command: %w", err)
	}

	return e.wait(ctx, st, req.Timeout)
}

// wait polls st until it resolves, the timeout elapses or ctx ends.
func (e *Engine) wait(ctx context.Context, st *requestState, timeout time.Duration) (Outcome, error) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		if st.failed() {
			// Stack traces arrive as several lines; give them one more tick.
			<-ticker.C
			return OutcomeFailed, &ExecutionError{Outcome: OutcomeFailed, Lines: st.lines()}
		}
		if st.completed.Load() {
			return OutcomeCompleted, nil
		}

		select {
		case <-ticker.C:
		case <-deadline:
			if st.failed() {
				return OutcomeFailed, &ExecutionError{Outcome: OutcomeFailed, Lines: st.lines()}
			}
			if st.completed.Load() {
				return OutcomeCompleted, nil
			}
			return OutcomeTimedOut, &ExecutionError{Outcome: OutcomeTimedOut, Timeout: timeout}
		case <-ctx.Done():
			return OutcomeCancelled, &ExecutionError{Outcome: OutcomeCancelled, Cause: ctx.Err()}
		}
	}
}

// writeScript stores code in a uniquely named file in the working directory
// and returns its absolute path.
func (e *Engine) writeScript(code string) (_ string, err error) {
	f, err := os.CreateTemp(e.workingDir, "exec-*.js")
	if err != nil {
		return "", fmt.Errorf("creating script file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing script file: %w", closeErr)
		}
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()

	if _, err := f.WriteString(code); err != nil {
		return "", fmt.Errorf("writing script file: %w", err)
	}
	return filepath.Abs(f.Name())
}

func (e *Engine) clearHandoff() error {
	if err := os.WriteFile(e.handoffPath, nil, 0o644); err != nil {
		return fmt.Errorf("clearing result handoff file: %w", err)
	}
	return nil
}

func (s *requestState) addError(line string) {
	s.mu.Lock()
	s.errs = append(s.errs, line)
	s.mu.Unlock()
}

func (s *requestState) failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs) > 0
}

func (s *requestState) lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errs...)
}
