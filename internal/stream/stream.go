// SPDX-License-Identifier: MPL-2.0

package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

type (
	// Listener consumes one line, without its trailing newline.
	// It runs on the reader goroutine and must not block for long.
	Listener func(line string)

	// Subscription is the fan-out point for one attached source.
	Subscription struct {
		name   string
		logger *log.Logger

		// listeners is replaced wholesale on every change; readers load it
		// once per line and never observe a partially updated set.
		listeners atomic.Pointer[[]entry]
		writeMu   sync.Mutex
		nextID    uint64

		lines atomic.Uint64
		done  chan struct{}
		err   error // set before done is closed
	}

	// Option configures a Subscription during Attach.
	Option func(*Subscription)

	entry struct {
		id uint64
		fn Listener
	}
)

// WithLogger sets the logger used for reader termination and listener panics.
func WithLogger(l *log.Logger) Option {
	return func(s *Subscription) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithListener registers fn before the reader starts, so it cannot miss the
// first line.
func WithListener(fn Listener) Option {
	return func(s *Subscription) {
		s.add(fn)
	}
}

// Attach starts a reader goroutine over src and returns its Subscription.
// The name identifies the stream in logs (e.g. "stdout").
func Attach(name string, src io.Reader, opts ...Option) *Subscription {
	s := &Subscription{
		name:   name,
		logger: log.NewWithOptions(os.Stderr, log.Options{Prefix: "stream"}),
		done:   make(chan struct{}),
	}
	empty := []entry{}
	s.listeners.Store(&empty)

	for _, opt := range opts {
		opt(s)
	}

	go s.read(src)
	return s
}

// Name returns the stream name given to Attach.
func (s *Subscription) Name() string { return s.name }

// Subscribe registers fn and returns a function that removes it. Removal is
// idempotent. A line already being delivered may still reach fn once after
// removal returns.
func (s *Subscription) Subscribe(fn Listener) (unsubscribe func()) {
	id := s.add(fn)
	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

// Len returns the number of registered listeners.
func (s *Subscription) Len() int {
	return len(*s.listeners.Load())
}

// Lines returns how many lines have been delivered so far.
func (s *Subscription) Lines() uint64 {
	return s.lines.Load()
}

// Done is closed when the reader goroutine has terminated.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the read error that stopped the reader, or nil for a clean
// end of stream. It is only meaningful after Done is closed.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Subscription) add(fn Listener) uint64 {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.nextID++
	cur := *s.listeners.Load()
	next := make([]entry, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, entry{id: s.nextID, fn: fn})
	s.listeners.Store(&next)
	return s.nextID
}

func (s *Subscription) remove(id uint64) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := slices.DeleteFunc(slices.Clone(*s.listeners.Load()), func(e entry) bool {
		return e.id == id
	})
	s.listeners.Store(&next)
}

func (s *Subscription) read(src io.Reader) {
	defer close(s.done)

	r := bufio.NewReader(src)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			s.deliver(strings.TrimRight(line, "\r\n"))
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
			s.err = fmt.Errorf("reading %s: %w", s.name, err)
			s.logger.Warn("stream reader stopped", "stream", s.name, "error", err)
			return
		}
		s.logger.Debug("stream closed", "stream", s.name, "lines", s.lines.Load())
		return
	}
}

func (s *Subscription) deliver(line string) {
	s.lines.Add(1)
	for _, e := range *s.listeners.Load() {
		s.invoke(e.fn, line)
	}
}

func (s *Subscription) invoke(fn Listener, line string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("listener panicked", "stream", s.name, "panic", r)
		}
	}()
	fn(line)
}
