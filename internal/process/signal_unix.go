// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package process

import (
	"errors"

	"golang.org/x/sys/unix"
)

// terminate sends SIGTERM to pid.
func terminate(pid int) error {
	err := unix.Kill(pid, unix.SIGTERM)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// probe reports whether a process with pid still exists.
func probe(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
