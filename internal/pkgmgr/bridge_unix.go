// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package pkgmgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"mvdan.cc/sh/v3/syntax"

	"github.com/invowk/nodectl/internal/stream"
)

const (
	defaultShell = "sh"

	// exitWait bounds how long the shell gets to exit after the sentinel.
	exitWait = 2 * time.Second
)

// ptyReader ends the stream cleanly on EIO, which a pty master reports
// once the slave side has closed.
type ptyReader struct{ f *os.File }

func (r ptyReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if errors.Is(err, syscall.EIO) {
		err = io.EOF
	}
	return n, err
}

// run types the install into a shell hosted on a pseudo-terminal and waits
// for the sentinel carrying the exit status.
func (b *Bridge) run(ctx context.Context, pkg string, out *tail) (int, error) {
	id := uuid.NewString()
	lines, err := b.commandLines(pkg, id)
	if err != nil {
		return -1, err
	}

	cmd := exec.Command(b.shell)
	cmd.Env = append(os.Environ(), b.env...)
	cmd.Env = append(cmd.Env, "PS1=", "TERM=dumb")

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return -1, fmt.Errorf("starting %s on a pseudo-terminal: %w", b.shell, err)
	}
	defer func() {
		_ = ptmx.Close()
		_ = cmd.Process.Kill()
		_ = cmd.Wait() // reaped after kill; status already reported by the sentinel
	}()

	marker := sentinelPrefix + id + ":"
	status := make(chan int, 1)
	sub := stream.Attach("pty", ptyReader{ptmx},
		stream.WithLogger(b.logger),
		stream.WithListener(func(line string) {
			out.add(line)
			b.logger.Debug(line, "stream", "pty")
			if code, ok := parseStatus(line, marker); ok {
				select {
				case status <- code:
				default:
				}
			}
		}),
	)

	for _, line := range lines {
		if _, err := io.WriteString(ptmx, line+"\n"); err != nil {
			return -1, fmt.Errorf("writing to pseudo-terminal: %w", err)
		}
	}

	select {
	case code := <-status:
		_, _ = io.WriteString(ptmx, "exit\n")
		select {
		case <-sub.Done():
		case <-time.After(exitWait):
		}
		return code, nil
	case <-sub.Done():
		return -1, errors.New("terminal closed before the install reported completion")
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// commandLines builds the shell input: change directory, install, then
// echo the sentinel with the install's exit status.
func (b *Bridge) commandLines(pkg, id string) ([]string, error) {
	dir, err := syntax.Quote(b.workingDir, syntax.LangPOSIX)
	if err != nil {
		return nil, fmt.Errorf("quoting working directory: %w", err)
	}
	manager, err := syntax.Quote(b.packageManager, syntax.LangPOSIX)
	if err != nil {
		return nil, fmt.Errorf("quoting package manager path: %w", err)
	}
	install := manager + " install"
	if pkg != "" {
		quoted, err := syntax.Quote(pkg, syntax.LangPOSIX)
		if err != nil {
			return nil, fmt.Errorf("quoting package name: %w", err)
		}
		install += " " + quoted
	}

	// Split so the terminal's echo of this line never contains the marker.
	half := len(sentinelPrefix) / 2
	echo := fmt.Sprintf(`echo "%s""%s%s:$?"`, sentinelPrefix[:half], sentinelPrefix[half:], id)

	lines := []string{"cd " + dir, install, echo}
	if _, err := syntax.NewParser().Parse(strings.NewReader(strings.Join(lines, "\n")), "install"); err != nil {
		return nil, fmt.Errorf("building install script: %w", err)
	}
	return lines, nil
}
