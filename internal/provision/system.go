// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"os/exec"
)

// SystemCheck reports whether command names a runtime that can be launched
// from PATH.
type SystemCheck func(ctx context.Context, command string) bool

// launchable starts command with no arguments and kills it once the start
// succeeded; being able to launch it is all that is checked.
func launchable(ctx context.Context, command string) bool {
	path, err := exec.LookPath(command)
	if err != nil {
		return false
	}

	cmd := exec.CommandContext(ctx, path)
	if err := cmd.Start(); err != nil {
		return false
	}
	_ = cmd.Process.Kill()
	_ = cmd.Wait() // killed on purpose; the exit status carries no information
	return true
}
