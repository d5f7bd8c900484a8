// SPDX-License-Identifier: MPL-2.0

//go:build windows

package pkgmgr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/invowk/nodectl/internal/stream"
)

const defaultShell = "cmd.exe"

// run executes the install through a piped cmd.exe; the exit status comes
// straight from the process.
func (b *Bridge) run(ctx context.Context, pkg string, out *tail) (int, error) {
	args := []string{"/d", "/c", b.packageManager, "install"}
	if pkg != "" {
		args = append(args, pkg)
	}
	cmd := exec.CommandContext(ctx, b.shell, args...)
	cmd.Dir = b.workingDir
	cmd.Env = append(os.Environ(), b.env...)

	r, w, err := os.Pipe()
	if err != nil {
		return -1, fmt.Errorf("creating output pipe: %w", err)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	sub := stream.Attach("install", r, stream.WithLogger(b.logger), stream.WithListener(func(line string) {
		out.add(line)
		b.logger.Debug(line, "stream", "install")
	}))

	err = cmd.Start()
	_ = w.Close()
	if err != nil {
		_ = r.Close()
		return -1, fmt.Errorf("starting %s: %w", b.shell, err)
	}

	err = cmd.Wait()
	<-sub.Done()
	_ = r.Close()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case ctx.Err() != nil:
		return -1, ctx.Err()
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), nil
	default:
		return -1, err
	}
}
